package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MORADOK/VaccineHomeBot-sub001/internal/config"
)

// setupStores opens every backend in a temp dir; each test runs against all.
func setupStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	stores := map[string]Store{}
	for _, typ := range []string{"boltdb", "sqlite"} {
		s, err := Open(config.DatabaseConfig{Type: typ, Path: filepath.Join(dir, typ, "test.db")})
		if err != nil {
			t.Fatalf("open %s: %v", typ, err)
		}
		t.Cleanup(func() { s.Close() })
		stores[typ] = s
	}
	return stores
}

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, s := range setupStores(t) {
		t.Run(name, func(t *testing.T) { fn(t, s) })
	}
}

func TestOpen_UnknownType(t *testing.T) {
	if _, err := Open(config.DatabaseConfig{Type: "postgres"}); err == nil {
		t.Fatal("Open() error = nil, want error")
	}
}

func TestStore_UpsertAndList(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		a := &DomainConfiguration{Domain: "a.example.com", Status: DomainEnabled, RecordType: "A", TargetValue: "10.0.0.1"}
		b := &DomainConfiguration{Domain: "b.example.com", Status: DomainDisabled}
		for _, d := range []*DomainConfiguration{a, b} {
			if err := s.UpsertDomain(ctx, d); err != nil {
				t.Fatalf("UpsertDomain(%s) error = %v", d.Domain, err)
			}
			if d.ID == "" {
				t.Fatalf("UpsertDomain(%s) left ID empty", d.Domain)
			}
		}

		all, err := s.ListDomains(ctx)
		if err != nil {
			t.Fatalf("ListDomains() error = %v", err)
		}
		if len(all) != 2 {
			t.Fatalf("len(ListDomains) = %d, want 2", len(all))
		}

		enabled, err := s.ListEnabledDomains(ctx)
		if err != nil {
			t.Fatalf("ListEnabledDomains() error = %v", err)
		}
		if len(enabled) != 1 || enabled[0].Domain != "a.example.com" {
			t.Fatalf("ListEnabledDomains() = %+v, want only a.example.com", enabled)
		}

		got, err := s.GetDomain(ctx, "a.example.com")
		if err != nil {
			t.Fatalf("GetDomain() error = %v", err)
		}
		if got.ID != a.ID || got.RecordType != "A" || got.TargetValue != "10.0.0.1" {
			t.Errorf("GetDomain() = %+v", got)
		}

		if _, err := s.GetDomain(ctx, "missing.example.com"); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetDomain(missing) error = %v, want ErrNotFound", err)
		}
	})
}

func TestStore_UpdateHealthPreservedByUpsert(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		d := &DomainConfiguration{Domain: "example.com", Status: DomainEnabled}
		if err := s.UpsertDomain(ctx, d); err != nil {
			t.Fatalf("UpsertDomain() error = %v", err)
		}

		checked := time.Now().UTC().Truncate(time.Second)
		expires := checked.Add(48 * time.Hour)
		rt := int64(120)
		if err := s.UpdateHealth(ctx, d.ID, HealthUpdate{
			LastHealthCheck: checked,
			IsAccessible:    true,
			SSLValid:        true,
			SSLExpiresAt:    &expires,
			ResponseTimeMS:  &rt,
		}); err != nil {
			t.Fatalf("UpdateHealth() error = %v", err)
		}

		// Re-sync from config must not wipe health columns.
		d2 := &DomainConfiguration{Domain: "example.com", Status: DomainDisabled, RecordType: "CNAME"}
		if err := s.UpsertDomain(ctx, d2); err != nil {
			t.Fatalf("UpsertDomain() error = %v", err)
		}
		if d2.ID != d.ID {
			t.Errorf("upsert changed ID: got %s, want %s", d2.ID, d.ID)
		}

		got, err := s.GetDomain(ctx, "example.com")
		if err != nil {
			t.Fatalf("GetDomain() error = %v", err)
		}
		if got.Status != DomainDisabled || got.RecordType != "CNAME" {
			t.Errorf("desired state not updated: %+v", got)
		}
		if !got.IsAccessible || !got.SSLValid {
			t.Errorf("health flags lost: %+v", got)
		}
		if got.LastHealthCheck == nil || !got.LastHealthCheck.Equal(checked) {
			t.Errorf("LastHealthCheck = %v, want %v", got.LastHealthCheck, checked)
		}
		if got.SSLExpiresAt == nil || !got.SSLExpiresAt.Equal(expires) {
			t.Errorf("SSLExpiresAt = %v, want %v", got.SSLExpiresAt, expires)
		}
		if got.ResponseTimeMS == nil || *got.ResponseTimeMS != 120 {
			t.Errorf("ResponseTimeMS = %v, want 120", got.ResponseTimeMS)
		}
		if got.LastError != nil {
			t.Errorf("LastError = %v, want nil", *got.LastError)
		}

		if err := s.UpdateHealth(ctx, "nope", HealthUpdate{LastHealthCheck: checked}); !errors.Is(err, ErrNotFound) {
			t.Errorf("UpdateHealth(unknown) error = %v, want ErrNotFound", err)
		}
	})
}

func TestStore_CreateAlertIfAbsent_Dedupe(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		first := &Alert{Domain: "example.com", AlertType: AlertSSLExpired, Severity: SeverityCritical, Message: "expired"}
		created, err := s.CreateAlertIfAbsent(ctx, first)
		if err != nil || !created {
			t.Fatalf("CreateAlertIfAbsent() = %v, %v; want true, nil", created, err)
		}

		dup := &Alert{Domain: "example.com", AlertType: AlertSSLExpired, Severity: SeverityLow, Message: "again"}
		created, err = s.CreateAlertIfAbsent(ctx, dup)
		if err != nil || created {
			t.Fatalf("duplicate CreateAlertIfAbsent() = %v, %v; want false, nil", created, err)
		}

		other := &Alert{Domain: "example.com", AlertType: AlertAccessibility, Severity: SeverityCritical, Message: "down"}
		if created, err := s.CreateAlertIfAbsent(ctx, other); err != nil || !created {
			t.Fatalf("other type CreateAlertIfAbsent() = %v, %v; want true, nil", created, err)
		}

		alerts, err := s.ListActiveAlerts(ctx, "example.com")
		if err != nil {
			t.Fatalf("ListActiveAlerts() error = %v", err)
		}
		if len(alerts) != 2 {
			t.Fatalf("len(alerts) = %d, want 2", len(alerts))
		}
		for _, a := range alerts {
			if a.AlertType == AlertSSLExpired && (a.Message != "expired" || a.Severity != SeverityCritical) {
				t.Errorf("existing alert was modified: %+v", a)
			}
		}

		// Resolving reopens the slot.
		if err := s.ResolveAlert(ctx, first.ID, time.Now()); err != nil {
			t.Fatalf("ResolveAlert() error = %v", err)
		}
		if open, _ := s.HasUnresolvedAlert(ctx, "example.com", AlertSSLExpired); open {
			t.Error("HasUnresolvedAlert() = true after resolve")
		}
		if created, err := s.CreateAlertIfAbsent(ctx, dup); err != nil || !created {
			t.Fatalf("CreateAlertIfAbsent() after resolve = %v, %v; want true, nil", created, err)
		}
	})
}

func TestStore_CreateAlertIfAbsent_Concurrent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		const n = 10
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.CreateAlertIfAbsent(ctx, &Alert{
					Domain: "race.example.com", AlertType: AlertAccessibility,
					Severity: SeverityCritical, Message: "down",
				})
				if err != nil {
					t.Errorf("CreateAlertIfAbsent() error = %v", err)
					return
				}
				if ok {
					mu.Lock()
					created++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if created != 1 {
			t.Errorf("created = %d, want 1", created)
		}
	})
}

func TestStore_ListActiveAlerts_Order(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Now().UTC().Add(-time.Hour)

		inputs := []*Alert{
			{Domain: "a.com", AlertType: AlertAccessibility, Severity: SeverityCritical, Message: "1", CreatedAt: base},
			{Domain: "b.com", AlertType: AlertSSLExpiring, Severity: SeverityMedium, Message: "2", CreatedAt: base.Add(2 * time.Minute)},
			{Domain: "a.com", AlertType: AlertSSLExpired, Severity: SeverityCritical, Message: "3", CreatedAt: base.Add(time.Minute)},
		}
		for _, a := range inputs {
			if _, err := s.CreateAlertIfAbsent(ctx, a); err != nil {
				t.Fatalf("CreateAlertIfAbsent() error = %v", err)
			}
		}

		all, err := s.ListActiveAlerts(ctx, "")
		if err != nil {
			t.Fatalf("ListActiveAlerts() error = %v", err)
		}
		want := []string{"2", "3", "1"}
		if len(all) != len(want) {
			t.Fatalf("len = %d, want %d", len(all), len(want))
		}
		for i, a := range all {
			if a.Message != want[i] {
				t.Errorf("alerts[%d].Message = %s, want %s", i, a.Message, want[i])
			}
		}

		onlyA, err := s.ListActiveAlerts(ctx, "a.com")
		if err != nil {
			t.Fatalf("ListActiveAlerts(a.com) error = %v", err)
		}
		if len(onlyA) != 2 || onlyA[0].Message != "3" {
			t.Errorf("ListActiveAlerts(a.com) = %+v", onlyA)
		}

		none, err := s.ListActiveAlerts(ctx, "c.com")
		if err != nil {
			t.Fatalf("ListActiveAlerts(c.com) error = %v", err)
		}
		if none == nil || len(none) != 0 {
			t.Errorf("ListActiveAlerts(c.com) = %#v, want empty non-nil slice", none)
		}
	})
}

func TestStore_ResolveAlert(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		a := &Alert{Domain: "example.com", AlertType: AlertAccessibility, Severity: SeverityCritical, Message: "down"}
		if _, err := s.CreateAlertIfAbsent(ctx, a); err != nil {
			t.Fatalf("CreateAlertIfAbsent() error = %v", err)
		}

		first := time.Now().UTC().Truncate(time.Second)
		if err := s.ResolveAlert(ctx, a.ID, first); err != nil {
			t.Fatalf("ResolveAlert() error = %v", err)
		}
		// Second resolve is a no-op and keeps the original timestamp.
		if err := s.ResolveAlert(ctx, a.ID, first.Add(time.Hour)); err != nil {
			t.Fatalf("second ResolveAlert() error = %v", err)
		}

		got, err := s.GetAlert(ctx, a.ID)
		if err != nil {
			t.Fatalf("GetAlert() error = %v", err)
		}
		if !got.Resolved || got.ResolvedAt == nil || !got.ResolvedAt.Equal(first) {
			t.Errorf("GetAlert() = %+v, want resolved at %v", got, first)
		}

		active, err := s.ListActiveAlerts(ctx, "")
		if err != nil {
			t.Fatalf("ListActiveAlerts() error = %v", err)
		}
		if len(active) != 0 {
			t.Errorf("len(active) = %d, want 0", len(active))
		}

		if err := s.ResolveAlert(ctx, "alert-123", time.Now()); !errors.Is(err, ErrNotFound) {
			t.Errorf("ResolveAlert(unknown) error = %v, want ErrNotFound", err)
		}
	})
}

func TestStore_Stats(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		for _, d := range []*DomainConfiguration{
			{Domain: "a.com", Status: DomainEnabled},
			{Domain: "b.com", Status: DomainEnabled},
			{Domain: "c.com", Status: DomainDisabled},
		} {
			if err := s.UpsertDomain(ctx, d); err != nil {
				t.Fatalf("UpsertDomain() error = %v", err)
			}
		}
		a := &Alert{Domain: "a.com", AlertType: AlertAccessibility, Severity: SeverityCritical, Message: "down"}
		s.CreateAlertIfAbsent(ctx, a)
		s.CreateAlertIfAbsent(ctx, &Alert{Domain: "b.com", AlertType: AlertAccessibility, Severity: SeverityCritical, Message: "down"})
		if err := s.ResolveAlert(ctx, a.ID, time.Now()); err != nil {
			t.Fatalf("ResolveAlert() error = %v", err)
		}

		stats, err := s.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats() error = %v", err)
		}
		want := Stats{Domains: 3, EnabledDomains: 2, Alerts: 2, OpenAlerts: 1}
		if *stats != want {
			t.Errorf("Stats() = %+v, want %+v", *stats, want)
		}
	})
}

func TestStore_ArchiveResolvedAlerts(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		now := time.Now().UTC()

		mk := func(domain string) *Alert {
			a := &Alert{Domain: domain, AlertType: AlertAccessibility, Severity: SeverityCritical, Message: "down"}
			if _, err := s.CreateAlertIfAbsent(ctx, a); err != nil {
				t.Fatalf("CreateAlertIfAbsent(%s) error = %v", domain, err)
			}
			return a
		}
		old, recent, open := mk("old.example.com"), mk("recent.example.com"), mk("open.example.com")

		if err := s.ResolveAlert(ctx, old.ID, now.Add(-48*time.Hour)); err != nil {
			t.Fatalf("ResolveAlert(old) error = %v", err)
		}
		if err := s.ResolveAlert(ctx, recent.ID, now.Add(-time.Hour)); err != nil {
			t.Fatalf("ResolveAlert(recent) error = %v", err)
		}

		n, err := s.ArchiveResolvedAlerts(ctx, now.Add(-24*time.Hour), now)
		if err != nil {
			t.Fatalf("ArchiveResolvedAlerts() error = %v", err)
		}
		if n != 1 {
			t.Errorf("ArchiveResolvedAlerts() = %d, want 1", n)
		}

		// The archived row is kept and still readable.
		got, err := s.GetAlert(ctx, old.ID)
		if err != nil {
			t.Fatalf("GetAlert(old) error = %v, want archived row", err)
		}
		if got.ArchivedAt == nil || !got.Resolved || got.ResolvedAt == nil {
			t.Errorf("GetAlert(old) = %+v, want resolved and archived", got)
		}
		if got.Message != "down" || got.Domain != "old.example.com" {
			t.Errorf("GetAlert(old) = %+v, fields changed by archive", got)
		}
		for _, id := range []string{recent.ID, open.ID} {
			a, err := s.GetAlert(ctx, id)
			if err != nil {
				t.Fatalf("GetAlert(%s) error = %v", id, err)
			}
			if a.ArchivedAt != nil {
				t.Errorf("GetAlert(%s).ArchivedAt = %v, want nil", id, a.ArchivedAt)
			}
		}

		active, err := s.ListActiveAlerts(ctx, "")
		if err != nil {
			t.Fatalf("ListActiveAlerts() error = %v", err)
		}
		if len(active) != 1 || active[0].ID != open.ID {
			t.Errorf("ListActiveAlerts() = %v, want only the open alert", active)
		}

		// Running again finds nothing new.
		if n, err := s.ArchiveResolvedAlerts(ctx, now, now); err != nil || n != 1 {
			t.Errorf("second ArchiveResolvedAlerts() = %d, %v, want 1 (recent only)", n, err)
		}

		stats, err := s.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats() error = %v", err)
		}
		if stats.Alerts != 3 || stats.OpenAlerts != 1 || stats.ArchivedAlerts != 2 {
			t.Errorf("Stats() = %+v, want 3 alerts, 1 open, 2 archived", stats)
		}
	})
}
