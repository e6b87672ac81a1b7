package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Manager coordinates scanning and executing pending migrations.
type Manager struct {
	scanner  *Scanner
	executor *SQLiteExecutor
	logger   *slog.Logger
}

// NewManager constructs a manager. A nil logger falls back to slog.Default.
func NewManager(scanner *Scanner, executor *SQLiteExecutor, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{scanner: scanner, executor: executor, logger: logger.With("component", "migration")}
}

// Run applies every pending migration in version order and stops at the first failure.
func (m *Manager) Run(ctx context.Context) error {
	started := time.Now()

	status, err := m.Status(ctx)
	if err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "schema version",
		"current_version", status.CurrentVersion,
		"pending", len(status.Pending),
	)

	for i, migration := range status.Pending {
		m.logger.InfoContext(ctx, "applying migration",
			"version", migration.Version,
			"description", migration.Description,
			"position", fmt.Sprintf("%d/%d", i+1, len(status.Pending)),
		)
		if err := m.executor.Execute(ctx, migration); err != nil {
			m.logger.ErrorContext(ctx, "migration failed", "version", migration.Version, "error", err)
			return err
		}
	}

	if len(status.Pending) > 0 {
		m.logger.InfoContext(ctx, "migrations complete",
			"applied", len(status.Pending),
			"duration", time.Since(started),
		)
	}
	return nil
}

// Status reports applied and pending migrations. An applied migration whose
// file content changed since it ran is an error.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	if err := m.executor.InitializeVersionTable(ctx); err != nil {
		return Status{}, err
	}
	available, err := m.scanner.Scan()
	if err != nil {
		return Status{}, err
	}
	applied, err := m.executor.Applied(ctx)
	if err != nil {
		return Status{}, err
	}

	byVersion := make(map[string]AppliedMigration, len(applied))
	for _, a := range applied {
		byVersion[a.Version] = a
	}

	status := Status{Applied: applied}
	for _, migration := range available {
		a, done := byVersion[migration.Version]
		if !done {
			status.Pending = append(status.Pending, migration)
			continue
		}
		if a.Checksum != "" && a.Checksum != migration.Checksum {
			return Status{}, newMigrationError(migration.Version, migration.FilePath, "verify checksum", ErrChecksumMismatch)
		}
	}
	if n := len(applied); n > 0 {
		status.CurrentVersion = applied[n-1].Version
	}
	return status, nil
}
