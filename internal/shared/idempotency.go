package shared

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tintworks/dyeops/internal/platform/db"
	"github.com/tintworks/dyeops/internal/platform/httpx"
)

// maxIdempotencyKey bounds client-supplied Idempotency-Key headers.
const maxIdempotencyKey = 128

// IdempotencyStore remembers which client keys a module has already applied,
// so a retried stock return or inward entry posts at most once. Bind it to the
// pgx.Tx of the guarded workflow: a rolled back workflow then leaves no claim.
type IdempotencyStore struct {
	q   db.Querier
	now func() time.Time
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(q db.Querier) *IdempotencyStore {
	return &IdempotencyStore{q: q, now: time.Now}
}

func validateIdempotency(key, module string) error {
	switch {
	case strings.TrimSpace(key) == "":
		return fmt.Errorf("idempotency key required: %w", httpx.ErrValidation)
	case len(key) > maxIdempotencyKey:
		return fmt.Errorf("idempotency key longer than %d characters: %w", maxIdempotencyKey, httpx.ErrValidation)
	case module == "":
		return fmt.Errorf("idempotency module required: %w", httpx.ErrValidation)
	}
	return nil
}

// CheckAndInsert claims key for module. A key claimed before returns
// ErrIdempotencyConflict. A concurrent claim of the same key waits on the
// unique index until the other transaction ends.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if err := validateIdempotency(key, module); err != nil {
		return err
	}
	tag, err := s.q.Exec(ctx, `
		INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (module, key) DO NOTHING`, key, module, s.now().UTC())
	if err != nil {
		return fmt.Errorf("shared: claim idempotency key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

// Cleanup prunes claims older than the retention and reports how many went.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("idempotency retention must be positive: %w", httpx.ErrValidation)
	}
	tag, err := s.q.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, s.now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("shared: prune idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
