// internal/database/migrations.go
package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all SQLite migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			CREATE TABLE IF NOT EXISTS domain_configurations (
				id TEXT PRIMARY KEY,
				domain TEXT UNIQUE NOT NULL,
				status TEXT NOT NULL DEFAULT 'enabled',
				record_type TEXT NOT NULL DEFAULT '',
				target_value TEXT NOT NULL DEFAULT '',
				last_health_check DATETIME,
				is_accessible INTEGER NOT NULL DEFAULT 0,
				ssl_valid INTEGER NOT NULL DEFAULT 0,
				ssl_expires_at DATETIME,
				response_time_ms INTEGER,
				last_error TEXT,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_domain_configurations_status ON domain_configurations(status);

			CREATE TABLE IF NOT EXISTS alerts (
				id TEXT PRIMARY KEY,
				domain TEXT NOT NULL,
				alert_type TEXT NOT NULL,
				severity TEXT NOT NULL,
				message TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				resolved INTEGER NOT NULL DEFAULT 0,
				resolved_at DATETIME
			);

			CREATE INDEX IF NOT EXISTS idx_alerts_domain ON alerts(domain);
			CREATE INDEX IF NOT EXISTS idx_alerts_created_at ON alerts(created_at);
		`,
	},
	{
		Version: 2,
		Name:    "unique_open_alert",
		Up: `
			-- At most one unresolved alert per (domain, alert_type).
			CREATE UNIQUE INDEX IF NOT EXISTS idx_alerts_open
				ON alerts(domain, alert_type) WHERE resolved = 0;
		`,
	},
	{
		Version: 3,
		Name:    "alert_archive",
		Up: `
			ALTER TABLE alerts ADD COLUMN archived_at DATETIME;
		`,
	},
}

// runMigrations applies pending migrations, each in its own transaction.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now().UTC(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
