package auth

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tintworks/dyeops/internal/platform/httpx"
	"github.com/tintworks/dyeops/internal/rbac"
)

// User represents an authenticated user account.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         rbac.Role `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Principal converts the user into the access-control identity.
func (u User) Principal() rbac.Principal {
	return rbac.Principal{UserID: u.ID, Username: u.Username, Role: u.Role}
}

var (
	// ErrUserNotFound indicates a missing account.
	ErrUserNotFound = fmt.Errorf("auth: user not found: %w", httpx.ErrNotFound)
	// ErrUsernameTaken indicates a duplicate username on register.
	ErrUsernameTaken = fmt.Errorf("auth: username already exists: %w", httpx.ErrDuplicate)
	// ErrSelfDelete prevents an admin from removing their own account.
	ErrSelfDelete = fmt.Errorf("auth: cannot delete your own account: %w", httpx.ErrValidation)
	// ErrInvalidToken indicates a missing, malformed or expired bearer token.
	ErrInvalidToken = fmt.Errorf("auth: invalid or expired token: %w", httpx.ErrUnauthorized)
)
