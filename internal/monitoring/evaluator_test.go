package monitoring

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MORADOK/VaccineHomeBot-sub001/internal/database"
)

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		expiry time.Time
		want   int
	}{
		{"exactly five days", now.Add(5 * 24 * time.Hour), 5},
		{"just under five days", now.Add(5*24*time.Hour - time.Second), 4},
		{"twelve hours", now.Add(12 * time.Hour), 0},
		{"now", now, 0},
		{"one hour ago", now.Add(-time.Hour), -1},
		{"one day ago", now.Add(-24 * time.Hour), -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysUntil(tt.expiry, now); got != tt.want {
				t.Errorf("DaysUntil() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEvaluator_Candidates(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		t := now.Add(d)
		return &t
	}
	day := 24 * time.Hour

	type want struct {
		alertType database.AlertType
		severity  database.Severity
	}
	tests := []struct {
		name   string
		result HealthCheckResult
		want   []want
	}{
		{
			name:   "healthy far from expiry",
			result: HealthCheckResult{Domain: "a.com", IsAccessible: true, SSLValid: true, SSLExpiresAt: at(90 * day)},
		},
		{
			name:   "healthy without expiry",
			result: HealthCheckResult{Domain: "a.com", IsAccessible: true, SSLValid: true},
		},
		{
			name:   "inaccessible",
			result: HealthCheckResult{Domain: "a.com", Error: "Network error"},
			want:   []want{{database.AlertAccessibility, database.SeverityCritical}},
		},
		{
			name:   "expired yesterday",
			result: HealthCheckResult{Domain: "a.com", IsAccessible: true, SSLExpiresAt: at(-day)},
			want:   []want{{database.AlertSSLExpired, database.SeverityCritical}},
		},
		{
			name:   "expires within the day counts as expired",
			result: HealthCheckResult{Domain: "a.com", IsAccessible: true, SSLExpiresAt: at(12 * time.Hour)},
			want:   []want{{database.AlertSSLExpired, database.SeverityCritical}},
		},
		{
			name:   "five days",
			result: HealthCheckResult{Domain: "a.com", IsAccessible: true, SSLExpiresAt: at(5 * day)},
			want:   []want{{database.AlertSSLExpiring, database.SeverityHigh}},
		},
		{
			name:   "seven days",
			result: HealthCheckResult{Domain: "a.com", IsAccessible: true, SSLExpiresAt: at(7 * day)},
			want:   []want{{database.AlertSSLExpiring, database.SeverityHigh}},
		},
		{
			name:   "eight days",
			result: HealthCheckResult{Domain: "a.com", IsAccessible: true, SSLExpiresAt: at(8 * day)},
			want:   []want{{database.AlertSSLExpiring, database.SeverityMedium}},
		},
		{
			name:   "thirty days",
			result: HealthCheckResult{Domain: "a.com", IsAccessible: true, SSLExpiresAt: at(30 * day)},
			want:   []want{{database.AlertSSLExpiring, database.SeverityMedium}},
		},
		{
			name:   "thirty one days",
			result: HealthCheckResult{Domain: "a.com", IsAccessible: true, SSLExpiresAt: at(31 * day)},
		},
		{
			name:   "inaccessible and expired",
			result: HealthCheckResult{Domain: "a.com", Error: "x", SSLExpiresAt: at(-2 * day)},
			want: []want{
				{database.AlertAccessibility, database.SeverityCritical},
				{database.AlertSSLExpired, database.SeverityCritical},
			},
		},
	}

	e := NewEvaluator(newMemStore(), 30, 7)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Candidates(tt.result, now)
			if len(got) != len(tt.want) {
				t.Fatalf("Candidates() = %+v, want %d candidates", got, len(tt.want))
			}
			for i, w := range tt.want {
				if got[i].AlertType != w.alertType || got[i].Severity != w.severity {
					t.Errorf("candidate[%d] = %s/%s, want %s/%s",
						i, got[i].AlertType, got[i].Severity, w.alertType, w.severity)
				}
			}
		})
	}
}

func TestEvaluator_AccessibilityMessage(t *testing.T) {
	e := NewEvaluator(newMemStore(), 30, 7)

	got := e.Candidates(HealthCheckResult{Domain: "down.example.com", Error: "Network error"}, time.Now())
	if !strings.Contains(got[0].Message, "down.example.com") || !strings.Contains(got[0].Message, "Network error") {
		t.Errorf("Message = %q, want domain and error", got[0].Message)
	}

	got = e.Candidates(HealthCheckResult{Domain: "down.example.com"}, time.Now())
	if !strings.Contains(got[0].Message, UnknownError) {
		t.Errorf("Message = %q, want %q", got[0].Message, UnknownError)
	}
}

func TestEvaluator_EvaluateDedupes(t *testing.T) {
	store := newMemStore()
	e := NewEvaluator(store, 30, 7)
	expired := time.Now().Add(-24 * time.Hour)
	r := HealthCheckResult{Domain: "example.com", IsAccessible: true, SSLValid: true, SSLExpiresAt: &expired}

	created, err := e.Evaluate(context.Background(), r)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(created) != 1 || created[0].AlertType != database.AlertSSLExpired || created[0].Severity != database.SeverityCritical {
		t.Fatalf("created = %+v, want one ssl_expired/critical", created)
	}

	created, err = e.Evaluate(context.Background(), r)
	if err != nil {
		t.Fatalf("second Evaluate() error = %v", err)
	}
	if len(created) != 0 {
		t.Errorf("second Evaluate() created %d alerts, want 0", len(created))
	}
	if n := store.alertCount(); n != 1 {
		t.Errorf("stored alerts = %d, want 1", n)
	}
}

func TestEvaluator_EvaluateIsolatesFailures(t *testing.T) {
	store := newMemStore()
	store.createErr = map[database.AlertType]error{
		database.AlertAccessibility: errors.New("insert failed"),
	}
	e := NewEvaluator(store, 30, 7)
	soon := time.Now().Add(3 * 24 * time.Hour)

	created, err := e.Evaluate(context.Background(), HealthCheckResult{
		Domain: "example.com", Error: "down", SSLExpiresAt: &soon,
	})
	if err == nil || !strings.Contains(err.Error(), "insert failed") {
		t.Fatalf("Evaluate() error = %v, want insert failed", err)
	}
	if len(created) != 1 || created[0].AlertType != database.AlertSSLExpiring {
		t.Errorf("created = %+v, want the ssl_expiring alert", created)
	}
}
