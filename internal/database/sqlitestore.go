// internal/database/sqlitestore.go - SQLite implementation
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store on SQLite. Open-alert uniqueness is enforced
// by a partial unique index, so CreateAlertIfAbsent is a single statement.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

const domainColumns = `id, domain, status, record_type, target_value, last_health_check,
	is_accessible, ssl_valid, ssl_expires_at, response_time_ms, last_error, created_at, updated_at`

const alertColumns = `id, domain, alert_type, severity, message, created_at, resolved, resolved_at, archived_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDomain(row rowScanner) (*DomainConfiguration, error) {
	var (
		d            DomainConfiguration
		lastCheck    sql.NullTime
		sslExpiresAt sql.NullTime
		responseTime sql.NullInt64
		lastError    sql.NullString
	)
	err := row.Scan(&d.ID, &d.Domain, &d.Status, &d.RecordType, &d.TargetValue, &lastCheck,
		&d.IsAccessible, &d.SSLValid, &sslExpiresAt, &responseTime, &lastError, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastCheck.Valid {
		t := lastCheck.Time
		d.LastHealthCheck = &t
	}
	if sslExpiresAt.Valid {
		t := sslExpiresAt.Time
		d.SSLExpiresAt = &t
	}
	if responseTime.Valid {
		v := responseTime.Int64
		d.ResponseTimeMS = &v
	}
	if lastError.Valid {
		v := lastError.String
		d.LastError = &v
	}
	return &d, nil
}

func scanAlert(row rowScanner) (*Alert, error) {
	var (
		a          Alert
		resolvedAt sql.NullTime
		archivedAt sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.Domain, &a.AlertType, &a.Severity, &a.Message, &a.CreatedAt, &a.Resolved, &resolvedAt, &archivedAt); err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	if archivedAt.Valid {
		t := archivedAt.Time
		a.ArchivedAt = &t
	}
	return &a, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func (s *SQLiteStore) queryDomains(ctx context.Context, query string, args ...any) ([]DomainConfiguration, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()

	var domains []DomainConfiguration
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		domains = append(domains, *d)
	}
	return domains, rows.Err()
}

func (s *SQLiteStore) ListDomains(ctx context.Context) ([]DomainConfiguration, error) {
	return s.queryDomains(ctx,
		"SELECT "+domainColumns+" FROM domain_configurations ORDER BY created_at, domain")
}

func (s *SQLiteStore) ListEnabledDomains(ctx context.Context) ([]DomainConfiguration, error) {
	return s.queryDomains(ctx,
		"SELECT "+domainColumns+" FROM domain_configurations WHERE status = ? ORDER BY created_at, domain",
		DomainEnabled)
}

func (s *SQLiteStore) GetDomain(ctx context.Context, domain string) (*DomainConfiguration, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+domainColumns+" FROM domain_configurations WHERE domain = ?", domain)
	d, err := scanDomain(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("domain %s: %w", domain, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get domain: %w", err)
	}
	return d, nil
}

func (s *SQLiteStore) UpdateHealth(ctx context.Context, id string, update HealthUpdate) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE domain_configurations
		SET last_health_check = ?, is_accessible = ?, ssl_valid = ?, ssl_expires_at = ?,
			response_time_ms = ?, last_error = ?, updated_at = ?
		WHERE id = ?`,
		update.LastHealthCheck.UTC(), update.IsAccessible, update.SSLValid, nullTime(update.SSLExpiresAt),
		nullInt64(update.ResponseTimeMS), nullString(update.LastError), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update health: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update health: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("domain id %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) UpsertDomain(ctx context.Context, cfg *DomainConfiguration) error {
	id := cfg.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO domain_configurations (id, domain, status, record_type, target_value, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET
			status = excluded.status,
			record_type = excluded.record_type,
			target_value = excluded.target_value,
			updated_at = excluded.updated_at`,
		id, cfg.Domain, cfg.Status, cfg.RecordType, cfg.TargetValue, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert domain: %w", err)
	}

	stored, err := s.GetDomain(ctx, cfg.Domain)
	if err != nil {
		return err
	}
	*cfg = *stored
	return nil
}

func (s *SQLiteStore) CreateAlertIfAbsent(ctx context.Context, alert *Alert) (bool, error) {
	id := alert.ID
	if id == "" {
		id = uuid.New().String()
	}
	createdAt := alert.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, domain, alert_type, severity, message, created_at, resolved)
		VALUES (?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT DO NOTHING`,
		id, alert.Domain, alert.AlertType, alert.Severity, alert.Message, createdAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("create alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create alert: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	alert.ID = id
	alert.CreatedAt = createdAt.UTC()
	alert.Resolved = false
	alert.ResolvedAt = nil
	return true, nil
}

func (s *SQLiteStore) HasUnresolvedAlert(ctx context.Context, domain string, alertType AlertType) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM alerts WHERE domain = ? AND alert_type = ? AND resolved = 0)",
		domain, alertType,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check open alert: %w", err)
	}
	return exists == 1, nil
}

func (s *SQLiteStore) ListActiveAlerts(ctx context.Context, domain string) ([]Alert, error) {
	query := "SELECT " + alertColumns + " FROM alerts WHERE resolved = 0"
	var args []any
	if domain != "" {
		query += " AND domain = ?"
		args = append(args, domain)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	alerts := []Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

func (s *SQLiteStore) GetAlert(ctx context.Context, id string) (*Alert, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+alertColumns+" FROM alerts WHERE id = ?", id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) ResolveAlert(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE alerts SET resolved = 1, resolved_at = ? WHERE id = ? AND resolved = 0",
		at.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("resolve alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve alert: %w", err)
	}
	if n > 0 {
		return nil
	}

	// Nothing updated: either already resolved or unknown.
	if _, err := s.GetAlert(ctx, id); err != nil {
		return err
	}
	return nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM domain_configurations),
			(SELECT COUNT(*) FROM domain_configurations WHERE status = 'enabled'),
			(SELECT COUNT(*) FROM alerts),
			(SELECT COUNT(*) FROM alerts WHERE resolved = 0),
			(SELECT COUNT(*) FROM alerts WHERE archived_at IS NOT NULL)`,
	).Scan(&stats.Domains, &stats.EnabledDomains, &stats.Alerts, &stats.OpenAlerts, &stats.ArchivedAlerts)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}

func (s *SQLiteStore) ArchiveResolvedAlerts(ctx context.Context, cutoff, at time.Time) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, resolved_at FROM alerts WHERE resolved = 1 AND archived_at IS NULL")
	if err != nil {
		return 0, fmt.Errorf("archive resolved alerts: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		var resolvedAt sql.NullTime
		if err := rows.Scan(&id, &resolvedAt); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan resolved alert: %w", err)
		}
		// Compared in Go: stored timestamps are not reliably ordered as text.
		if resolvedAt.Valid && resolvedAt.Time.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("archive resolved alerts: %w", err)
	}
	rows.Close()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		_, err := tx.ExecContext(ctx,
			"UPDATE alerts SET archived_at = ? WHERE id = ? AND archived_at IS NULL", at.UTC(), id)
		if err != nil {
			return 0, fmt.Errorf("archive alert %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit archive: %w", err)
	}
	return len(ids), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
