// internal/database/boltstore.go - BoltDB implementation
package database

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	DomainsBucket     = []byte("domains")
	DomainNamesBucket = []byte("domain_names")
	AlertsBucket      = []byte("alerts")
	OpenAlertsBucket  = []byte("open_alerts")
	MetaBucket        = []byte("meta")
)

const boltSchemaVersion = "1"

type BoltStore struct {
	db   *bbolt.DB
	path string
}

func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open BoltDB: %w", err)
	}

	store := &BoltStore{db: db, path: path}

	if err := store.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return store, nil
}

func (s *BoltStore) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{DomainsBucket, DomainNamesBucket, AlertsBucket, OpenAlertsBucket, MetaBucket}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return tx.Bucket(MetaBucket).Put([]byte("schema_version"), []byte(boltSchemaVersion))
	})
}

// openAlertKey indexes unresolved alerts by (domain, type). NUL cannot occur
// in a host name, so the key is unambiguous and prefix-scannable by domain.
func openAlertKey(domain string, alertType AlertType) []byte {
	return []byte(domain + "\x00" + string(alertType))
}

func (s *BoltStore) ListDomains(ctx context.Context) ([]DomainConfiguration, error) {
	return s.listDomains(func(DomainConfiguration) bool { return true })
}

func (s *BoltStore) ListEnabledDomains(ctx context.Context) ([]DomainConfiguration, error) {
	return s.listDomains(func(d DomainConfiguration) bool { return d.Status == DomainEnabled })
}

func (s *BoltStore) listDomains(keep func(DomainConfiguration) bool) ([]DomainConfiguration, error) {
	var domains []DomainConfiguration

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(DomainsBucket).ForEach(func(k, v []byte) error {
			var d DomainConfiguration
			if err := json.Unmarshal(v, &d); err != nil {
				return fmt.Errorf("failed to unmarshal domain %s: %w", k, err)
			}
			if keep(d) {
				domains = append(domains, d)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	// Keys are random uuids; order by creation so cycles are stable.
	sort.SliceStable(domains, func(i, j int) bool {
		if !domains[i].CreatedAt.Equal(domains[j].CreatedAt) {
			return domains[i].CreatedAt.Before(domains[j].CreatedAt)
		}
		return domains[i].Domain < domains[j].Domain
	})
	return domains, nil
}

func (s *BoltStore) GetDomain(ctx context.Context, domain string) (*DomainConfiguration, error) {
	var d DomainConfiguration

	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(DomainNamesBucket).Get([]byte(domain))
		if id == nil {
			return fmt.Errorf("domain %s: %w", domain, ErrNotFound)
		}
		v := tx.Bucket(DomainsBucket).Get(id)
		if v == nil {
			return fmt.Errorf("domain %s: %w", domain, ErrNotFound)
		}
		return json.Unmarshal(v, &d)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *BoltStore) UpdateHealth(ctx context.Context, id string, update HealthUpdate) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(DomainsBucket)
		v := b.Get([]byte(id))
		if v == nil {
			return fmt.Errorf("domain id %s: %w", id, ErrNotFound)
		}

		var d DomainConfiguration
		if err := json.Unmarshal(v, &d); err != nil {
			return fmt.Errorf("failed to unmarshal domain: %w", err)
		}
		update.apply(&d)
		d.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(&d)
		if err != nil {
			return fmt.Errorf("failed to marshal domain: %w", err)
		}
		return b.Put([]byte(id), data)
	})
}

func (s *BoltStore) UpsertDomain(ctx context.Context, cfg *DomainConfiguration) error {
	now := time.Now().UTC()

	return s.db.Update(func(tx *bbolt.Tx) error {
		domains := tx.Bucket(DomainsBucket)
		names := tx.Bucket(DomainNamesBucket)

		stored := *cfg
		if id := names.Get([]byte(cfg.Domain)); id != nil {
			var existing DomainConfiguration
			if err := json.Unmarshal(domains.Get(id), &existing); err != nil {
				return fmt.Errorf("failed to unmarshal domain: %w", err)
			}
			existing.Status = cfg.Status
			existing.RecordType = cfg.RecordType
			existing.TargetValue = cfg.TargetValue
			existing.UpdatedAt = now
			stored = existing
		} else {
			if stored.ID == "" {
				stored.ID = uuid.New().String()
			}
			stored.CreatedAt = now
			stored.UpdatedAt = now
		}

		data, err := json.Marshal(&stored)
		if err != nil {
			return fmt.Errorf("failed to marshal domain: %w", err)
		}
		if err := domains.Put([]byte(stored.ID), data); err != nil {
			return err
		}
		if err := names.Put([]byte(stored.Domain), []byte(stored.ID)); err != nil {
			return err
		}
		*cfg = stored
		return nil
	})
}

func (s *BoltStore) CreateAlertIfAbsent(ctx context.Context, alert *Alert) (bool, error) {
	created := false

	err := s.db.Update(func(tx *bbolt.Tx) error {
		open := tx.Bucket(OpenAlertsBucket)
		key := openAlertKey(alert.Domain, alert.AlertType)
		if open.Get(key) != nil {
			return nil
		}

		if alert.ID == "" {
			alert.ID = uuid.New().String()
		}
		if alert.CreatedAt.IsZero() {
			alert.CreatedAt = time.Now().UTC()
		}
		alert.Resolved = false
		alert.ResolvedAt = nil

		data, err := json.Marshal(alert)
		if err != nil {
			return fmt.Errorf("failed to marshal alert: %w", err)
		}
		if err := tx.Bucket(AlertsBucket).Put([]byte(alert.ID), data); err != nil {
			return err
		}
		if err := open.Put(key, []byte(alert.ID)); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("create alert: %w", err)
	}
	return created, nil
}

func (s *BoltStore) HasUnresolvedAlert(ctx context.Context, domain string, alertType AlertType) (bool, error) {
	exists := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		exists = tx.Bucket(OpenAlertsBucket).Get(openAlertKey(domain, alertType)) != nil
		return nil
	})
	return exists, err
}

func (s *BoltStore) ListActiveAlerts(ctx context.Context, domain string) ([]Alert, error) {
	alerts := []Alert{}

	err := s.db.View(func(tx *bbolt.Tx) error {
		all := tx.Bucket(AlertsBucket)
		c := tx.Bucket(OpenAlertsBucket).Cursor()

		var prefix []byte
		if domain != "" {
			prefix = []byte(domain + "\x00")
		}

		for k, id := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, id = c.Next() {
			v := all.Get(id)
			if v == nil {
				continue
			}
			var a Alert
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("failed to unmarshal alert %s: %w", id, err)
			}
			alerts = append(alerts, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
	return alerts, nil
}

func (s *BoltStore) GetAlert(ctx context.Context, id string) (*Alert, error) {
	var a Alert
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(AlertsBucket).Get([]byte(id))
		if v == nil {
			return fmt.Errorf("alert %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(v, &a)
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *BoltStore) ResolveAlert(ctx context.Context, id string, at time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		alerts := tx.Bucket(AlertsBucket)
		v := alerts.Get([]byte(id))
		if v == nil {
			return fmt.Errorf("alert %s: %w", id, ErrNotFound)
		}

		var a Alert
		if err := json.Unmarshal(v, &a); err != nil {
			return fmt.Errorf("failed to unmarshal alert: %w", err)
		}
		if a.Resolved {
			return nil
		}

		resolvedAt := at.UTC()
		a.Resolved = true
		a.ResolvedAt = &resolvedAt

		data, err := json.Marshal(&a)
		if err != nil {
			return fmt.Errorf("failed to marshal alert: %w", err)
		}
		if err := alerts.Put([]byte(id), data); err != nil {
			return err
		}

		open := tx.Bucket(OpenAlertsBucket)
		key := openAlertKey(a.Domain, a.AlertType)
		if bytes.Equal(open.Get(key), []byte(id)) {
			return open.Delete(key)
		}
		return nil
	})
}

// Stats returns row counts, adapted from bucket statistics.
func (s *BoltStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := s.db.View(func(tx *bbolt.Tx) error {
		stats.Alerts = tx.Bucket(AlertsBucket).Stats().KeyN
		stats.OpenAlerts = tx.Bucket(OpenAlertsBucket).Stats().KeyN

		err := tx.Bucket(AlertsBucket).ForEach(func(k, v []byte) error {
			var a Alert
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("failed to unmarshal alert %s: %w", k, err)
			}
			if a.ArchivedAt != nil {
				stats.ArchivedAlerts++
			}
			return nil
		})
		if err != nil {
			return err
		}

		return tx.Bucket(DomainsBucket).ForEach(func(k, v []byte) error {
			var d DomainConfiguration
			if err := json.Unmarshal(v, &d); err != nil {
				return fmt.Errorf("failed to unmarshal domain %s: %w", k, err)
			}
			stats.Domains++
			if d.Status == DomainEnabled {
				stats.EnabledDomains++
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *BoltStore) ArchiveResolvedAlerts(ctx context.Context, cutoff, at time.Time) (int, error) {
	archived := 0

	err := s.db.Update(func(tx *bbolt.Tx) error {
		alerts := tx.Bucket(AlertsBucket)

		// Collect first; bbolt does not allow Put while iterating.
		var keys [][]byte
		var values [][]byte
		err := alerts.ForEach(func(k, v []byte) error {
			var a Alert
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("failed to unmarshal alert %s: %w", k, err)
			}
			if !a.Resolved || a.ArchivedAt != nil || a.ResolvedAt == nil || !a.ResolvedAt.Before(cutoff) {
				return nil
			}
			stamp := at
			a.ArchivedAt = &stamp
			data, err := json.Marshal(a)
			if err != nil {
				return fmt.Errorf("failed to marshal alert %s: %w", k, err)
			}
			keys = append(keys, copyBytes(k))
			values = append(values, data)
			return nil
		})
		if err != nil {
			return err
		}

		for i, key := range keys {
			if err := alerts.Put(key, values[i]); err != nil {
				return err
			}
			archived++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("archive resolved alerts: %w", err)
	}
	return archived, nil
}

// copyBytes copies a key out of a bbolt page; keys are only valid inside the tx.
func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	copied := make([]byte, len(b))
	copy(copied, b)
	return copied
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
