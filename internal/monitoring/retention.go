// internal/monitoring/retention.go - resolved alert archiving
package monitoring

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// AlertArchiveStore is the store surface needed by AlertArchiver.
type AlertArchiveStore interface {
	ArchiveResolvedAlerts(ctx context.Context, cutoff, at time.Time) (int, error)
}

// AlertArchiver archives alerts that have been resolved for longer than the
// retention period. Archived rows are kept.
type AlertArchiver struct {
	store     AlertArchiveStore
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	log       *logrus.Entry
}

func NewAlertArchiver(store AlertArchiveStore, retention, interval time.Duration) *AlertArchiver {
	return &AlertArchiver{
		store:     store,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		log:       logrus.WithField("component", "alert_archiver"),
	}
}

// ArchiveOnce archives alerts resolved more than the retention period ago.
func (a *AlertArchiver) ArchiveOnce(ctx context.Context) (int, error) {
	now := a.now()
	cutoff := now.Add(-a.retention)
	n, err := a.store.ArchiveResolvedAlerts(ctx, cutoff, now)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		a.log.WithFields(logrus.Fields{
			"archived": n,
			"cutoff":   cutoff,
		}).Info("Archived resolved alerts")
	}
	return n, nil
}

// Run archives immediately and then every interval until ctx is cancelled.
func (a *AlertArchiver) Run(ctx context.Context) {
	if _, err := a.ArchiveOnce(ctx); err != nil {
		a.log.WithError(err).Error("Initial archive failed")
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.log.WithFields(logrus.Fields{
		"interval":  a.interval,
		"retention": a.retention,
	}).Info("Scheduled resolved alert archiving")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.ArchiveOnce(ctx); err != nil {
				a.log.WithError(err).Error("Scheduled archive failed")
			}
		}
	}
}
