// internal/database/models.go
package database

import (
	"time"
)

type DomainStatus string

const (
	DomainEnabled  DomainStatus = "enabled"
	DomainDisabled DomainStatus = "disabled"
)

type AlertType string

const (
	AlertAccessibility AlertType = "accessibility"
	AlertSSLExpiring   AlertType = "ssl_expiring"
	AlertSSLExpired    AlertType = "ssl_expired"
	AlertConfigDrift   AlertType = "config_drift"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// DomainConfiguration is a monitored domain plus the health fields the
// monitor writes back after every probe.
type DomainConfiguration struct {
	ID          string       `json:"id"`
	Domain      string       `json:"domain"`
	Status      DomainStatus `json:"status"`
	RecordType  string       `json:"record_type"`
	TargetValue string       `json:"target_value"`

	LastHealthCheck *time.Time `json:"last_health_check"`
	IsAccessible    bool       `json:"is_accessible"`
	SSLValid        bool       `json:"ssl_valid"`
	SSLExpiresAt    *time.Time `json:"ssl_expires_at"`
	ResponseTimeMS  *int64     `json:"response_time_ms"`
	LastError       *string    `json:"last_error"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HealthUpdate is the set of health columns written by UpdateHealth.
type HealthUpdate struct {
	LastHealthCheck time.Time
	IsAccessible    bool
	SSLValid        bool
	SSLExpiresAt    *time.Time
	ResponseTimeMS  *int64
	LastError       *string
}

func (u HealthUpdate) apply(d *DomainConfiguration) {
	checked := u.LastHealthCheck
	d.LastHealthCheck = &checked
	d.IsAccessible = u.IsAccessible
	d.SSLValid = u.SSLValid
	d.SSLExpiresAt = u.SSLExpiresAt
	d.ResponseTimeMS = u.ResponseTimeMS
	d.LastError = u.LastError
}

// Alert rows are never deleted. Old resolved alerts are archived instead.
type Alert struct {
	ID         string     `json:"id"`
	Domain     string     `json:"domain"`
	AlertType  AlertType  `json:"alert_type"`
	Severity   Severity   `json:"severity"`
	Message    string     `json:"message"`
	CreatedAt  time.Time  `json:"created_at"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

type Stats struct {
	Domains        int `json:"domains"`
	EnabledDomains int `json:"enabled_domains"`
	Alerts         int `json:"alerts"`
	OpenAlerts     int `json:"open_alerts"`
	ArchivedAlerts int `json:"archived_alerts"`
}
