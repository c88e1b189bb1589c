package migrations

import (
	"context"
	"database/sql"
	_ "embed"

	"github.com/goran-ethernal/logrange/internal/db"
	"github.com/goran-ethernal/logrange/internal/logger"
)

//go:embed 001_event_logs.sql
var mig001 string

//go:embed 002_fetch_runs.sql
var mig002 string

var all = []db.Migration{
	{
		ID:  "001_event_logs.sql",
		SQL: mig001,
	},
	{
		ID:  "002_fetch_runs.sql",
		SQL: mig002,
	},
}

// RunMigrations runs all log store migrations on the database at dbPath.
func RunMigrations(dbPath string) error {
	return db.RunMigrations(dbPath, all)
}

// RunMigrationsDB runs all log store migrations on an open database.
func RunMigrationsDB(ctx context.Context, log *logger.Logger, sqlDB *sql.DB) error {
	return db.RunMigrationsDB(ctx, log, sqlDB, all)
}
