package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/example/meetgrid/internal/config"
	"github.com/example/meetgrid/internal/persistence"
	"github.com/example/meetgrid/internal/testfixtures"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("MEETGRID_LOG_LEVEL", "error")
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "meetgrid.db")
	t.Setenv("MEETGRID_SQLITE_PATH", dbPath)

	t.Run("status before migrating lists pending", func(t *testing.T) {
		out, err := runCLI(t, "migrate", "--status")
		if err != nil {
			t.Fatalf("migrate --status failed: %v", err)
		}
		if !strings.Contains(out, "current version: none") || !strings.Contains(out, "pending  001") {
			t.Fatalf("unexpected status output:\n%s", out)
		}
	})

	t.Run("applies migrations", func(t *testing.T) {
		out, err := runCLI(t, "migrate")
		if err != nil {
			t.Fatalf("migrate failed: %v", err)
		}
		if !strings.Contains(out, "applied  001") || strings.Contains(out, "pending") {
			t.Fatalf("unexpected migrate output:\n%s", out)
		}
	})

	t.Run("is idempotent", func(t *testing.T) {
		out, err := runCLI(t, "migrate")
		if err != nil {
			t.Fatalf("second migrate failed: %v", err)
		}
		if strings.Count(out, "applied  001") != 1 {
			t.Fatalf("expected one applied migration:\n%s", out)
		}
	})
}

func TestPurgeCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "meetgrid.db")
	t.Setenv("MEETGRID_SQLITE_PATH", dbPath)

	cfg := config.Defaults()
	cfg.SQLitePath = dbPath
	st, err := openStore(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("openStore failed: %v", err)
	}
	expired := testfixtures.NewMeetingFixture(
		testfixtures.WithCreatedAt(time.Now().Add(-8 * 24 * time.Hour)),
	).Persistence()
	expired.Meta.ExpiresAt = time.Now().Add(-24 * time.Hour)
	if err := st.meetings.CreateMeeting(context.Background(), expired); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := st.close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	out, err := runCLI(t, "purge")
	if err != nil {
		t.Fatalf("purge failed: %v", err)
	}
	if !strings.Contains(out, "purged 1 expired meeting(s)") {
		t.Fatalf("unexpected purge output: %q", out)
	}
}

func TestOpenStoreMemory(t *testing.T) {
	cfg := config.Defaults()
	cfg.Store = config.StoreMemory
	st, err := openStore(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("openStore failed: %v", err)
	}
	defer st.close()

	if err := st.ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	if _, err := st.meetings.GetMeeting(context.Background(), testfixtures.FixtureMeetingID); err != persistence.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRelayRequiresRedis(t *testing.T) {
	t.Setenv("MEETGRID_REDIS_URL", "")
	_, err := runCLI(t, "relay")
	if err != errRelayNeedsRedis {
		t.Fatalf("expected errRelayNeedsRedis, got %v", err)
	}
}

func TestInvalidConfigFails(t *testing.T) {
	t.Setenv("MEETGRID_STORE", "postgres")
	_, err := runCLI(t, "purge")
	if err == nil || !strings.Contains(err.Error(), "MEETGRID_STORE") {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestEventBusSelection(t *testing.T) {
	bus := newEventBus(nil, discardLogger())
	if bus.local == nil || bus.publisher == nil {
		t.Fatalf("expected local bus without redis")
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
