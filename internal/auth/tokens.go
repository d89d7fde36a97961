package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tintworks/dyeops/internal/rbac"
)

// Claims is the JWT payload carried by bearer tokens.
type Claims struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Role     rbac.Role `json:"role"`
	jwt.RegisteredClaims
}

// DefaultTokenTTL applies when no positive lifetime is configured.
const DefaultTokenTTL = 24 * time.Hour

// AccountFinder loads the account a token was issued to.
type AccountFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (User, error)
}

// TokenIssuer signs and verifies HS256 bearer tokens.
type TokenIssuer struct {
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
	accounts AccountFinder
}

// NewTokenIssuer constructs a TokenIssuer.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithAccounts makes Authenticate confirm that the account behind a token
// still exists with the role it was issued for.
func (t *TokenIssuer) WithAccounts(accounts AccountFinder) *TokenIssuer {
	t.accounts = accounts
	return t
}

// Issue generates a signed token for the user.
func (t *TokenIssuer) Issue(user User) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.ttl)
	claims := &Claims{
		UserID:   user.ID.String(),
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies the token and returns the principal it names.
func (t *TokenIssuer) Parse(raw string) (rbac.Principal, error) {
	if raw == "" {
		return rbac.Principal{}, ErrInvalidToken
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return rbac.Principal{}, fmt.Errorf("token expired: %w", ErrInvalidToken)
		}
		return rbac.Principal{}, ErrInvalidToken
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil || !claims.Role.Valid() {
		return rbac.Principal{}, ErrInvalidToken
	}
	return rbac.Principal{UserID: id, Username: claims.Username, Role: claims.Role}, nil
}

// Authenticate parses raw and, when accounts are wired, rejects tokens whose
// user was deleted or had its role changed since the token was issued.
func (t *TokenIssuer) Authenticate(ctx context.Context, raw string) (rbac.Principal, error) {
	principal, err := t.Parse(raw)
	if err != nil || t.accounts == nil {
		return principal, err
	}
	user, err := t.accounts.FindByID(ctx, principal.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return rbac.Principal{}, fmt.Errorf("account removed: %w", ErrInvalidToken)
	}
	if err != nil {
		return rbac.Principal{}, fmt.Errorf("auth: load account: %w", err)
	}
	if user.Role != principal.Role {
		return rbac.Principal{}, fmt.Errorf("role changed, sign in again: %w", ErrInvalidToken)
	}
	principal.Username = user.Username
	return principal, nil
}
