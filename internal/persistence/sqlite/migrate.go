package sqlite

import (
	"context"
	"embed"
	"log/slog"

	"github.com/example/meetgrid/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies the embedded schema migrations to the pool's database.
func Migrate(ctx context.Context, pool *ConnectionPool, logger *slog.Logger) error {
	manager := migration.NewManager(
		migration.NewScanner(migrationFiles, "migrations"),
		migration.NewSQLiteExecutor(pool.DB()),
		logger,
	)
	return manager.Run(ctx)
}

// MigrationStatus reports applied and pending embedded migrations.
func MigrationStatus(ctx context.Context, pool *ConnectionPool, logger *slog.Logger) (migration.Status, error) {
	manager := migration.NewManager(
		migration.NewScanner(migrationFiles, "migrations"),
		migration.NewSQLiteExecutor(pool.DB()),
		logger,
	)
	return manager.Status(ctx)
}
