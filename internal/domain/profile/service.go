package profile

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carepath/portal/internal/platform/apperr"
)

type Service struct {
	profiles ProfileRepository
	changes  ChangeRepository
	timeout  time.Duration
	logger   zerolog.Logger
}

func NewService(profiles ProfileRepository, changes ChangeRepository, timeout time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		profiles: profiles,
		changes:  changes,
		timeout:  timeout,
		logger:   logger,
	}
}

func (s *Service) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Validate checks the required fields and formats of a profile document.
func Validate(p *Profile) error {
	if p.UserID == uuid.Nil {
		return apperr.Validation("profile.validate", "user_id is required")
	}
	if strings.TrimSpace(p.FirstName) == "" {
		return apperr.Validation("profile.validate", "first_name is required")
	}
	if strings.TrimSpace(p.LastName) == "" {
		return apperr.Validation("profile.validate", "last_name is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return apperr.Validation("profile.validate", "email is required")
	}
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return apperr.Validation("profile.validate", "email %q is not a valid address", p.Email)
	}
	if p.DOB != "" {
		if _, err := time.Parse("2006-01-02", p.DOB); err != nil {
			return apperr.Validation("profile.validate", "dob must be YYYY-MM-DD")
		}
	}
	return nil
}

func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	p, err := s.profiles.GetByUserID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("profile.get", "profile not found")
	}
	if err != nil {
		return nil, apperr.Unavailable("profile.get", "read profile", err)
	}
	return p, nil
}

func (s *Service) CreateProfile(ctx context.Context, p *Profile) error {
	if err := Validate(p); err != nil {
		return err
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if err := s.profiles.Create(ctx, p); err != nil {
		return apperr.Write("profile.create", "create profile", err)
	}
	return nil
}

// UpdateProfile replaces the whole document and records what changed.
func (s *Service) UpdateProfile(ctx context.Context, p *Profile) (*Profile, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}

	old, err := s.GetProfile(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = old.CreatedAt

	wctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.profiles.Update(wctx, p); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("profile.update", "profile not found")
		}
		return nil, apperr.Write("profile.update", "update profile", err)
	}

	s.audit(ctx, p.UserID, Diff(old, p))
	return p, nil
}

// UpdatePharmacy changes only the pharmacy field.
func (s *Service) UpdatePharmacy(ctx context.Context, userID uuid.UUID, pharmacy string) (*Profile, error) {
	pharmacy = strings.TrimSpace(pharmacy)
	if pharmacy == "" {
		return nil, apperr.Validation("profile.pharmacy", "pharmacy is required")
	}

	p, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p.Pharmacy == pharmacy {
		return p, nil
	}

	wctx, cancel := s.bounded(ctx)
	defer cancel()
	if err := s.profiles.UpdatePharmacy(wctx, userID, pharmacy); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("profile.pharmacy", "profile not found")
		}
		return nil, apperr.Write("profile.pharmacy", "update pharmacy", err)
	}

	old := p.Pharmacy
	p.Pharmacy = pharmacy
	s.audit(ctx, userID, map[string]FieldChange{"pharmacy": {Old: old, New: pharmacy}})
	return p, nil
}

// audit appends a change entry. Failures are logged only; the update has
// already been committed.
func (s *Service) audit(ctx context.Context, userID uuid.UUID, changes map[string]FieldChange) {
	if len(changes) == 0 {
		return
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	entry := &ChangeEntry{UserID: userID, Changes: changes}
	if err := s.changes.Append(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID.String()).Int("fields", len(changes)).Msg("profile change audit failed")
	}
}

func (s *Service) ListHistory(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*ChangeEntry, int, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	items, total, err := s.changes.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, 0, apperr.Unavailable("profile.history", "list profile history", err)
	}
	return items, total, nil
}
