// internal/monitoring/evaluator.go - alert rules and dedupe
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/MORADOK/VaccineHomeBot-sub001/internal/database"
)

// Candidate is an alert the rules want raised for one result.
type Candidate struct {
	AlertType database.AlertType
	Severity  database.Severity
	Message   string
}

// Evaluator turns health results into alerts and persists the ones that are
// not already open for the same domain and type.
type Evaluator struct {
	alerts       database.AlertStore
	warningDays  int
	criticalDays int
	now          func() time.Time
}

func NewEvaluator(alerts database.AlertStore, warningDays, criticalDays int) *Evaluator {
	return &Evaluator{
		alerts:       alerts,
		warningDays:  warningDays,
		criticalDays: criticalDays,
		now:          time.Now,
	}
}

// DaysUntil is the floor of the remaining duration in whole 24h periods.
func DaysUntil(expiry, now time.Time) int {
	return int(math.Floor(expiry.Sub(now).Hours() / 24))
}

// Candidates applies the alert rules. Each rule is independent, so one
// result can yield several candidates.
func (e *Evaluator) Candidates(r HealthCheckResult, now time.Time) []Candidate {
	var out []Candidate

	if !r.IsAccessible {
		reason := r.Error
		if reason == "" {
			reason = UnknownError
		}
		out = append(out, Candidate{
			AlertType: database.AlertAccessibility,
			Severity:  database.SeverityCritical,
			Message:   fmt.Sprintf("Domain %s is not accessible: %s", r.Domain, reason),
		})
	}

	if r.SSLExpiresAt != nil {
		days := DaysUntil(*r.SSLExpiresAt, now)
		switch {
		case days <= 0:
			out = append(out, Candidate{
				AlertType: database.AlertSSLExpired,
				Severity:  database.SeverityCritical,
				Message: fmt.Sprintf("SSL certificate for %s expired on %s",
					r.Domain, r.SSLExpiresAt.UTC().Format(time.RFC3339)),
			})
		case days <= e.warningDays:
			severity := database.SeverityMedium
			if days <= e.criticalDays {
				severity = database.SeverityHigh
			}
			out = append(out, Candidate{
				AlertType: database.AlertSSLExpiring,
				Severity:  severity,
				Message:   fmt.Sprintf("SSL certificate for %s expires in %d days", r.Domain, days),
			})
		}
	}

	return out
}

// Evaluate persists every candidate that has no open duplicate and returns
// the alerts actually created. A failed insert does not stop the others;
// all failures are joined into the returned error.
func (e *Evaluator) Evaluate(ctx context.Context, r HealthCheckResult) ([]database.Alert, error) {
	now := e.now()

	var (
		created []database.Alert
		errs    []error
	)
	for _, c := range e.Candidates(r, now) {
		alert := &database.Alert{
			Domain:    r.Domain,
			AlertType: c.AlertType,
			Severity:  c.Severity,
			Message:   c.Message,
			CreatedAt: now,
		}
		ok, err := e.alerts.CreateAlertIfAbsent(ctx, alert)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s alert: %w", c.AlertType, err))
			continue
		}
		if ok {
			created = append(created, *alert)
		}
	}

	return created, errors.Join(errs...)
}
