package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/meetgrid/internal/persistence/sqlite"
)

// SQLiteHarness provides a migrated meeting repository backed by a temporary
// database file.
type SQLiteHarness struct {
	Pool     *sqlite.ConnectionPool
	Meetings *sqlite.MeetingRepository
	Clock    *Clock

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens and migrates a database under tb.TempDir. The harness
// closes itself through tb.Cleanup; calling Close earlier is allowed.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	ctx := context.Background()
	path := filepath.Join(tb.TempDir(), "meetgrid.db")

	pool, err := sqlite.NewConnectionPool(ctx, sqlite.DefaultConfig(path))
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := sqlite.Migrate(ctx, pool, logger); err != nil {
		_ = pool.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	clock := NewClock(ReferenceTime())
	harness := &SQLiteHarness{
		Pool:     pool,
		Meetings: sqlite.NewMeetingRepository(pool, clock.NowFunc()),
		Clock:    clock,
		cleanup: func() {
			_ = pool.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}
