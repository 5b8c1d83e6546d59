package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/carepath/portal/internal/domain/profile"
	"github.com/carepath/portal/internal/platform/apperr"
	"github.com/carepath/portal/internal/platform/auth"
)

const (
	codeDigits      = 6
	passwordSpecial = "@$!%*?&"
	minPasswordLen  = 8
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	codePattern  = regexp.MustCompile(`^[0-9]{6}$`)
)

// ProfileCreator stores the patient profile created alongside an account.
type ProfileCreator interface {
	CreateProfile(ctx context.Context, p *profile.Profile) error
}

// CodeSender delivers a one-time code out of band.
type CodeSender interface {
	SendOneTimeCode(ctx context.Context, email, code string) error
}

type TokenIssuer interface {
	IssuePending(userID, email string) (*auth.Token, error)
	IssueVerified(userID, email string) (*auth.Token, error)
}

type Options struct {
	CodeTTL     time.Duration
	MaxAttempts int
	Timeout     time.Duration
}

type Service struct {
	accounts AccountRepository
	codes    CodeRepository
	profiles ProfileCreator
	sender   CodeSender
	tokens   TokenIssuer
	opts     Options
	logger   zerolog.Logger

	now        func() time.Time
	newCode    func() (string, error)
	bcryptCost int
}

func NewService(accounts AccountRepository, codes CodeRepository, profiles ProfileCreator, sender CodeSender, tokens TokenIssuer, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		accounts:   accounts,
		codes:      codes,
		profiles:   profiles,
		sender:     sender,
		tokens:     tokens,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
		newCode:    generateCode,
		bcryptCost: bcrypt.DefaultCost,
	}
}

func (s *Service) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.Timeout)
}

// generateCode returns a uniformly random zero-padded six digit code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

// ValidatePassword enforces at least eight characters with an upper case
// letter, a lower case letter, a digit and one of @$!%*?&.
func ValidatePassword(pw string) error {
	if len(pw) < minPasswordLen {
		return apperr.Validation("identity.password", "password must be at least %d characters long", minPasswordLen)
	}
	var upper, lower, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecial, r):
			special = true
		}
	}
	if !upper || !lower || !digit || !special {
		return apperr.Validation("identity.password",
			"password must include uppercase, lowercase, number, and special character (%s)", passwordSpecial)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account and its patient profile. The profile seed
// carries the demographic fields collected at sign-up.
func (s *Service) Register(ctx context.Context, email, password string, seed profile.Profile) (*Account, error) {
	email = normalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return nil, apperr.Validation("identity.register", "email %q is not a valid address", email)
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	acct := &Account{ID: uuid.New(), Email: email}
	seed.UserID = acct.ID
	seed.Email = email
	if err := profile.Validate(&seed); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	acct.PasswordHash = string(hash)

	cctx, cancel := s.bounded(ctx)
	err = s.accounts.Create(cctx, acct)
	cancel()
	if errors.Is(err, ErrDuplicateEmail) {
		return nil, apperr.Validation("identity.register", "an account with this email already exists")
	}
	if err != nil {
		return nil, apperr.Write("identity.register", "create account", err)
	}

	if err := s.profiles.CreateProfile(ctx, &seed); err != nil {
		dctx, cancel := s.bounded(context.WithoutCancel(ctx))
		defer cancel()
		if derr := s.accounts.Delete(dctx, acct.ID); derr != nil {
			s.logger.Error().Err(derr).Str("user_id", acct.ID.String()).Msg("failed to remove account after profile create failure")
		}
		return nil, err
	}

	s.logger.Info().Str("user_id", acct.ID.String()).Msg("account registered")
	return acct, nil
}

// Authenticate checks credentials, sends a one-time code and returns a
// pending token that is only good for verifying or resending that code.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*auth.Token, error) {
	cctx, cancel := s.bounded(ctx)
	acct, err := s.accounts.GetByEmail(cctx, normalizeEmail(email))
	cancel()
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.Auth("identity.login", "invalid email or password")
	}
	if err != nil {
		return nil, apperr.Unavailable("identity.login", "read account", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.Auth("identity.login", "invalid email or password")
	}

	if err := s.sendCode(ctx, acct); err != nil {
		return nil, err
	}
	tok, err := s.tokens.IssuePending(acct.ID.String(), acct.Email)
	if err != nil {
		return nil, fmt.Errorf("issue pending token: %w", err)
	}
	return tok, nil
}

// RequestOneTimeCode replaces the account's active code with a fresh one and
// delivers it.
func (s *Service) RequestOneTimeCode(ctx context.Context, accountID uuid.UUID) error {
	cctx, cancel := s.bounded(ctx)
	acct, err := s.accounts.GetByID(cctx, accountID)
	cancel()
	if errors.Is(err, ErrNotFound) {
		return apperr.Auth("identity.code", "account not found")
	}
	if err != nil {
		return apperr.Unavailable("identity.code", "read account", err)
	}
	return s.sendCode(ctx, acct)
}

func (s *Service) sendCode(ctx context.Context, acct *Account) error {
	code, err := s.newCode()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash code: %w", err)
	}

	otc := &OneTimeCode{
		AccountID: acct.ID,
		CodeHash:  string(hash),
		ExpiresAt: s.now().Add(s.opts.CodeTTL),
	}
	cctx, cancel := s.bounded(ctx)
	err = s.codes.Upsert(cctx, otc)
	cancel()
	if err != nil {
		return apperr.Write("identity.code", "store one-time code", err)
	}

	if err := s.sender.SendOneTimeCode(ctx, acct.Email, code); err != nil {
		if apperr.KindOf(err) == "" {
			err = apperr.Dispatch("identity.code", "send one-time code", err)
		}
		return err
	}
	return nil
}

// VerifyCode checks a submitted code and, on a match, issues a verified
// session token. Each mismatch counts as an attempt; the code is burned once
// the configured maximum is reached.
func (s *Service) VerifyCode(ctx context.Context, accountID uuid.UUID, code string) (*auth.Token, error) {
	code = strings.TrimSpace(code)
	if !codePattern.MatchString(code) {
		return nil, apperr.Validation("identity.verify", "code must be %d digits", codeDigits)
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	otc, err := s.codes.Get(ctx, accountID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.Auth("identity.verify", "no active code, request a new one")
	}
	if err != nil {
		return nil, apperr.Unavailable("identity.verify", "read one-time code", err)
	}

	if otc.Expired(s.now()) {
		s.burnCode(ctx, accountID)
		return nil, apperr.Auth("identity.verify", "code expired, request a new one")
	}

	if bcrypt.CompareHashAndPassword([]byte(otc.CodeHash), []byte(code)) != nil {
		attempts, err := s.codes.IncrementAttempts(ctx, accountID)
		if err != nil {
			return nil, apperr.Write("identity.verify", "record attempt", err)
		}
		if attempts >= s.opts.MaxAttempts {
			s.burnCode(ctx, accountID)
			s.logger.Warn().Str("user_id", accountID.String()).Int("attempts", attempts).Msg("one-time code burned after too many attempts")
			return nil, apperr.Auth("identity.verify", "too many attempts, request a new code")
		}
		return nil, apperr.Auth("identity.verify", "invalid code")
	}

	s.burnCode(ctx, accountID)

	acct, err := s.accounts.GetByID(ctx, accountID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.Auth("identity.verify", "account not found")
	}
	if err != nil {
		return nil, apperr.Unavailable("identity.verify", "read account", err)
	}
	tok, err := s.tokens.IssueVerified(acct.ID.String(), acct.Email)
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}
	return tok, nil
}

func (s *Service) burnCode(ctx context.Context, accountID uuid.UUID) {
	if err := s.codes.Delete(ctx, accountID); err != nil {
		s.logger.Warn().Err(err).Str("user_id", accountID.String()).Msg("failed to delete one-time code")
	}
}
