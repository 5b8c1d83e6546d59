package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("identity: not found")
	ErrDuplicateEmail = errors.New("identity: email already registered")
)

type AccountRepository interface {
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type CodeRepository interface {
	// Upsert replaces any code already stored for the account.
	Upsert(ctx context.Context, c *OneTimeCode) error
	Get(ctx context.Context, accountID uuid.UUID) (*OneTimeCode, error)
	// IncrementAttempts returns the attempt count after the increment.
	IncrementAttempts(ctx context.Context, accountID uuid.UUID) (int, error)
	Delete(ctx context.Context, accountID uuid.UUID) error
}
