package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer signs session tokens. Pending tokens are issued after the password
// check; verified tokens after the one-time code.
type Issuer struct {
	cfg        JWTConfig
	pendingTTL time.Duration
	sessionTTL time.Duration
	now        func() time.Time
}

func NewIssuer(cfg JWTConfig, pendingTTL, sessionTTL time.Duration) *Issuer {
	return &Issuer{cfg: cfg, pendingTTL: pendingTTL, sessionTTL: sessionTTL, now: time.Now}
}

// Token is a signed session token and its expiry.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Verified    bool      `json:"verified"`
}

func (i *Issuer) IssuePending(userID, email string) (*Token, error) {
	return i.issue(userID, email, false, i.pendingTTL)
}

func (i *Issuer) IssueVerified(userID, email string) (*Token, error) {
	return i.issue(userID, email, true, i.sessionTTL)
}

func (i *Issuer) issue(userID, email string, mfa bool, ttl time.Duration) (*Token, error) {
	now := i.now()
	exp := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: email,
		MFA:   mfa,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Token{AccessToken: signed, ExpiresAt: exp, Verified: mfa}, nil
}
