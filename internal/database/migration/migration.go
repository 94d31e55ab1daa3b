package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type migrationStep struct {
	Name string
	SQL  string
}

var steps = []migrationStep{
	{
		Name: "create_table_stego_operations",
		SQL: `CREATE TABLE IF NOT EXISTS stego_operations (
  id             UUID        PRIMARY KEY,
  kind           TEXT        NOT NULL CHECK (kind IN ('hide', 'extract')),
  outcome        TEXT        NOT NULL,
  request_id     TEXT        NOT NULL DEFAULT '',
  width          INTEGER     NOT NULL CHECK (width >= 0),
  height         INTEGER     NOT NULL CHECK (height >= 0),
  envelope_bytes INTEGER     NOT NULL CHECK (envelope_bytes >= 0),
  time_locked    BOOLEAN     NOT NULL DEFAULT FALSE,
  geo_locked     BOOLEAN     NOT NULL DEFAULT FALSE,
  created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_index_stego_operations_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_stego_operations_created_at ON stego_operations (created_at);`,
	},
	{
		Name: "create_index_stego_operations_kind_outcome",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_stego_operations_kind_outcome ON stego_operations (kind, outcome);`,
	},
}

// EnsureMigrated checks if the 'stego_operations' table exists and runs migrations if it doesn't.
func EnsureMigrated(ctx context.Context, db *sql.DB, log *zap.Logger, dbHost string) error {
	start := time.Now()
	log = log.With(zap.String("component", "database"), zap.String("db_host", dbHost))

	log.Info("db_migration_check", zap.String("status", "starting"))

	var exists bool
	query := "SELECT to_regclass('public.stego_operations') IS NOT NULL"
	if err := db.QueryRowContext(ctx, query).Scan(&exists); err != nil {
		log.Error("db_migration_failed",
			zap.String("status", "error"),
			zap.Error(err),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return fmt.Errorf("failed to check sentinel table: %w", err)
	}

	if exists {
		log.Info("db_migration_skip",
			zap.String("status", "success"),
			zap.String("msg", "schema already exists, skipping migration"),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
		return nil
	}

	log.Info("db_migration_start", zap.String("status", "in_progress"))

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := db.ExecContext(ctx, step.SQL); err != nil {
			log.Error("db_migration_failed",
				zap.String("status", "error"),
				zap.String("migration_step", step.Name),
				zap.Error(err),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()),
			)
			return fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}

		log.Info("db_migration_step",
			zap.String("status", "success"),
			zap.String("migration_step", step.Name),
			zap.Int64("step_duration_ms", time.Since(stepStart).Milliseconds()),
		)
	}

	log.Info("db_migration_success",
		zap.String("status", "success"),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	return nil
}
