package shared

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/tintworks/dyeops/internal/platform/httpx"
)

type execCall struct {
	sql  string
	args []any
}

// scriptedQuerier answers Exec with a fixed affected-row count.
type scriptedQuerier struct {
	affected int64
	calls    []execCall
}

func (q *scriptedQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.calls = append(q.calls, execCall{sql: sql, args: args})
	verb := "INSERT 0"
	if strings.Contains(sql, "DELETE") {
		verb = "DELETE"
	}
	return pgconn.NewCommandTag(verb + " " + strconv.FormatInt(q.affected, 10)), nil
}

func (q *scriptedQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not used")
}

func (q *scriptedQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not used")
}

func TestIdempotencyClaimAndReplay(t *testing.T) {
	q := &scriptedQuerier{affected: 1}
	store := NewIdempotencyStore(q)
	require.NoError(t, store.CheckAndInsert(context.Background(), "abc", "pi.inward"))

	q.affected = 0
	require.ErrorIs(t, store.CheckAndInsert(context.Background(), "abc", "pi.inward"), ErrIdempotencyConflict)
	require.ErrorIs(t, store.CheckAndInsert(context.Background(), "abc", "pi.inward"), httpx.ErrConflict)
}

func TestIdempotencyRejectsBadKeys(t *testing.T) {
	store := NewIdempotencyStore(&scriptedQuerier{})
	ctx := context.Background()

	require.ErrorIs(t, store.CheckAndInsert(ctx, " ", "pi.inward"), httpx.ErrValidation)
	require.ErrorIs(t, store.CheckAndInsert(ctx, strings.Repeat("k", 129), "pi.inward"), httpx.ErrValidation)
	require.ErrorIs(t, store.CheckAndInsert(ctx, "abc", ""), httpx.ErrValidation)
}

func TestIdempotencyCleanupUsesCutoff(t *testing.T) {
	q := &scriptedQuerier{affected: 3}
	store := NewIdempotencyStore(q)
	fixed := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	n, err := store.Cleanup(context.Background(), 48*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
	require.Len(t, q.calls, 1)
	require.Equal(t, fixed.Add(-48*time.Hour), q.calls[0].args[0])

	_, err = store.Cleanup(context.Background(), 0)
	require.ErrorIs(t, err, httpx.ErrValidation)
}
