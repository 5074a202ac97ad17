// internal/monitoring/result.go
package monitoring

import (
	"time"

	"github.com/MORADOK/VaccineHomeBot-sub001/internal/database"
)

// UnknownError is reported when a probe fails with an error that has no text.
const UnknownError = "Unknown error"

// HealthCheckResult is the outcome of one probe. It is folded into the
// domain configuration and used for alert evaluation, never stored itself.
type HealthCheckResult struct {
	Domain         string     `json:"domain"`
	IsAccessible   bool       `json:"is_accessible"`
	ResponseTimeMS *int64     `json:"response_time_ms,omitempty"`
	StatusCode     *int       `json:"status_code,omitempty"`
	SSLValid       bool       `json:"ssl_valid"`
	SSLExpiresAt   *time.Time `json:"ssl_expires_at,omitempty"`
	CheckedAt      time.Time  `json:"checked_at"`
	Error          string     `json:"error,omitempty"`
}

func (r HealthCheckResult) healthUpdate() database.HealthUpdate {
	u := database.HealthUpdate{
		LastHealthCheck: r.CheckedAt,
		IsAccessible:    r.IsAccessible,
		SSLValid:        r.SSLValid,
		SSLExpiresAt:    r.SSLExpiresAt,
		ResponseTimeMS:  r.ResponseTimeMS,
	}
	if r.Error != "" {
		msg := r.Error
		u.LastError = &msg
	}
	return u
}

// failed folds an error into the result with both health flags forced off.
func failed(domain string, checkedAt time.Time, msg string) HealthCheckResult {
	if msg == "" {
		msg = UnknownError
	}
	return HealthCheckResult{
		Domain:    domain,
		CheckedAt: checkedAt,
		Error:     msg,
	}
}
