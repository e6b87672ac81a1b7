package migration

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManagerRunsPendingMigrationsOnce(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	files := fstest.MapFS{
		"migrations/002_add_index.sql":    {Data: []byte("CREATE INDEX idx_widgets_name ON widgets(name);")},
		"migrations/001_create_table.sql": {Data: []byte("-- widgets\nCREATE TABLE widgets (id TEXT PRIMARY KEY, name TEXT);\n")},
		"migrations/README.md":            {Data: []byte("ignored")},
	}
	manager := NewManager(NewScanner(files, "migrations"), NewSQLiteExecutor(db), quietLogger())

	if err := manager.Run(ctx); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if err := manager.Run(ctx); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	status, err := manager.Status(ctx)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.CurrentVersion != "002" || len(status.Applied) != 2 || len(status.Pending) != 0 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO widgets (id, name) VALUES ('w1', 'gear')"); err != nil {
		t.Fatalf("expected widgets table to exist: %v", err)
	}
}

func TestManagerRollsBackFailedMigration(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	files := fstest.MapFS{
		"m/001_broken.sql": {Data: []byte("CREATE TABLE ok_table (id TEXT); INSERT INTO missing_table VALUES (1);")},
	}
	manager := NewManager(NewScanner(files, "m"), NewSQLiteExecutor(db), quietLogger())

	err := manager.Run(ctx)
	if !errors.Is(err, ErrMigrationFailed) {
		t.Fatalf("expected ErrMigrationFailed, got %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE name = 'ok_table'").Scan(&count); err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected partial migration to be rolled back")
	}
}

func TestManagerDetectsEditedMigration(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	files := fstest.MapFS{
		"m/001_create.sql": {Data: []byte("CREATE TABLE a (id TEXT);")},
	}
	if err := NewManager(NewScanner(files, "m"), NewSQLiteExecutor(db), quietLogger()).Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	files["m/001_create.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE a (id TEXT, extra TEXT);")}
	_, err := NewManager(NewScanner(files, "m"), NewSQLiteExecutor(db), quietLogger()).Status(ctx)
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestScannerRejectsBadFiles(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad name":  {"m/create.sql": {Data: []byte("SELECT 1;")}},
		"empty":     {"m/001_empty.sql": {Data: []byte("-- nothing here\n")}},
		"duplicate": {"m/001_a.sql": {Data: []byte("SELECT 1;")}, "m/1_b.sql": {Data: []byte("SELECT 2;")}},
	}
	for name, files := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewScanner(files, "m").Scan(); err == nil {
				t.Fatalf("expected scan error")
			}
		})
	}
}

func TestStatementsSkipsComments(t *testing.T) {
	got := statements("-- header\nCREATE TABLE a (id TEXT);\n\n-- trailing\n;  ;\nSELECT 1")
	if len(got) != 2 || got[0] != "CREATE TABLE a (id TEXT)" || got[1] != "SELECT 1" {
		t.Fatalf("unexpected statements: %#v", got)
	}
}
