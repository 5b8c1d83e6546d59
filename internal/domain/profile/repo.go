package profile

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("profile not found")

type ProfileRepository interface {
	Create(ctx context.Context, p *Profile) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Profile, error)
	Update(ctx context.Context, p *Profile) error
	UpdatePharmacy(ctx context.Context, userID uuid.UUID, pharmacy string) error
}

type ChangeRepository interface {
	Append(ctx context.Context, e *ChangeEntry) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*ChangeEntry, int, error)
}
