// internal/database/store.go
package database

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a domain or alert does not exist.
var ErrNotFound = errors.New("not found")

// ConfigStore holds domain configurations. The monitor reads enabled rows and
// writes back health fields only.
type ConfigStore interface {
	ListEnabledDomains(ctx context.Context) ([]DomainConfiguration, error)
	ListDomains(ctx context.Context) ([]DomainConfiguration, error)
	GetDomain(ctx context.Context, domain string) (*DomainConfiguration, error)
	UpdateHealth(ctx context.Context, id string, update HealthUpdate) error
	// UpsertDomain creates or updates the desired-state fields of a
	// configuration, keyed by domain name. Health fields are preserved.
	UpsertDomain(ctx context.Context, cfg *DomainConfiguration) error
}

type AlertStore interface {
	// CreateAlertIfAbsent inserts the alert unless an unresolved alert with
	// the same domain and type already exists. The check and the insert are
	// atomic. created is false when the insert was suppressed.
	CreateAlertIfAbsent(ctx context.Context, alert *Alert) (created bool, err error)
	HasUnresolvedAlert(ctx context.Context, domain string, alertType AlertType) (bool, error)
	// ListActiveAlerts returns unresolved alerts newest first. An empty
	// domain means all domains.
	ListActiveAlerts(ctx context.Context, domain string) ([]Alert, error)
	GetAlert(ctx context.Context, id string) (*Alert, error)
	ResolveAlert(ctx context.Context, id string, at time.Time) error
}

// Store defines the interface for database operations
type Store interface {
	ConfigStore
	AlertStore

	Stats(ctx context.Context) (*Stats, error)
	// ArchiveResolvedAlerts stamps ArchivedAt on alerts resolved before
	// cutoff and returns how many were archived. Rows stay readable through
	// GetAlert. Open and already archived alerts are left alone.
	ArchiveResolvedAlerts(ctx context.Context, cutoff, at time.Time) (int, error)

	// Close the database connection
	Close() error
}
