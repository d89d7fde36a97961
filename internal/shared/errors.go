package shared

import (
	"fmt"

	"github.com/tintworks/dyeops/internal/platform/httpx"
)

var (
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", httpx.ErrUnauthorized)
	// ErrIdempotencyConflict indicates a duplicate idempotency key.
	ErrIdempotencyConflict = fmt.Errorf("idempotent request already processed: %w", httpx.ErrConflict)
)
