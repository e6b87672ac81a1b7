// Package migration applies versioned SQL schema changes to a SQLite database.
//
// Migration files are read from an fs.FS (normally an embed.FS compiled into
// the binary) and must be named {version}_{description}.sql, for example
// "001_create_meetings.sql". Each file runs in its own transaction together
// with the schema_migrations row that records it, so a failed file leaves no
// trace and is retried on the next run.
//
// Example usage:
//
//	manager := migration.NewManager(migration.NewScanner(files, "migrations"), migration.NewSQLiteExecutor(db), logger)
//	if err := manager.Run(ctx); err != nil {
//		return err
//	}
package migration
