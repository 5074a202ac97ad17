// internal/metrics/prometheus.go
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MORADOK/VaccineHomeBot-sub001/internal/database"
	"github.com/MORADOK/VaccineHomeBot-sub001/internal/monitoring"
)

const namespace = "domainmon"

// Collector records monitor events as Prometheus metrics.
type Collector struct {
	monitoring.NopObserver

	checksTotal          *prometheus.CounterVec
	alertsCreated        *prometheus.CounterVec
	cycleFailures        prometheus.Counter
	checkDuration        prometheus.Histogram
	cycleDuration        prometheus.Histogram
	domainAccessible     *prometheus.GaugeVec
	sslDaysRemaining     *prometheus.GaugeVec
	monitorRunning       prometheus.Gauge
	websocketConnections prometheus.Gauge
	domains              *prometheus.GaugeVec
	openAlerts           prometheus.Gauge

	now func() time.Time
}

// NewCollector registers the metric set with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default handler.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		checksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checks_total",
				Help:      "Total number of domain health checks by result",
			},
			[]string{"result"},
		),
		alertsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_created_total",
				Help:      "Alerts created by type and severity",
			},
			[]string{"type", "severity"},
		),
		cycleFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_failures_total",
			Help:      "Monitoring cycles aborted before checking any domain",
		}),
		checkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_duration_seconds",
			Help:      "Response time of successful domain probes",
			Buckets:   prometheus.DefBuckets,
		}),
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Time spent on a full monitoring cycle",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		domainAccessible: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "domain_accessible",
				Help:      "Whether the last probe reached the domain (1) or not (0)",
			},
			[]string{"domain"},
		),
		sslDaysRemaining: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ssl_days_remaining",
				Help:      "Whole days until the domain's certificate expires",
			},
			[]string{"domain"},
		),
		monitorRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitor_running",
			Help:      "1 while the periodic monitor is running",
		}),
		websocketConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Number of active WebSocket connections",
		}),
		domains: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "domains",
				Help:      "Configured domains by status",
			},
			[]string{"status"},
		),
		openAlerts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_alerts",
			Help:      "Unresolved alerts",
		}),
		now: time.Now,
	}
}

func (c *Collector) HealthChecked(r monitoring.HealthCheckResult) {
	if !r.IsAccessible {
		c.checksTotal.WithLabelValues("failure").Inc()
		c.domainAccessible.WithLabelValues(r.Domain).Set(0)
		return
	}

	c.checksTotal.WithLabelValues("success").Inc()
	c.domainAccessible.WithLabelValues(r.Domain).Set(1)
	if r.ResponseTimeMS != nil {
		c.checkDuration.Observe(float64(*r.ResponseTimeMS) / 1000)
	}
	if r.SSLExpiresAt != nil {
		now := r.CheckedAt
		if now.IsZero() {
			now = c.now()
		}
		c.sslDaysRemaining.WithLabelValues(r.Domain).Set(float64(monitoring.DaysUntil(*r.SSLExpiresAt, now)))
	}
}

func (c *Collector) AlertCreated(a database.Alert) {
	c.alertsCreated.WithLabelValues(string(a.AlertType), string(a.Severity)).Inc()
}

func (c *Collector) CycleCompleted(_ int, d time.Duration) {
	c.cycleDuration.Observe(d.Seconds())
}

func (c *Collector) CycleFailed(error) {
	c.cycleFailures.Inc()
}

func (c *Collector) MonitorStateChanged(running bool) {
	if running {
		c.monitorRunning.Set(1)
	} else {
		c.monitorRunning.Set(0)
	}
}

func (c *Collector) RecordWebSocketConnection(delta int) {
	c.websocketConnections.Add(float64(delta))
}

// UpdateSystemMetrics refreshes the store-derived gauges.
func (c *Collector) UpdateSystemMetrics(ctx context.Context, store database.Store) error {
	stats, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	c.domains.WithLabelValues(string(database.DomainEnabled)).Set(float64(stats.EnabledDomains))
	c.domains.WithLabelValues(string(database.DomainDisabled)).Set(float64(stats.Domains - stats.EnabledDomains))
	c.openAlerts.Set(float64(stats.OpenAlerts))
	return nil
}
