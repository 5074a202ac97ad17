// internal/monitoring/monitor.go
package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/MORADOK/VaccineHomeBot-sub001/internal/config"
	"github.com/MORADOK/VaccineHomeBot-sub001/internal/database"
)

// Observer receives cycle events. Implementations must not block.
type Observer interface {
	HealthChecked(result HealthCheckResult)
	AlertCreated(alert database.Alert)
	CycleCompleted(domains int, duration time.Duration)
	CycleFailed(err error)
	MonitorStateChanged(running bool)
}

// NopObserver ignores every event. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) HealthChecked(HealthCheckResult)   {}
func (NopObserver) AlertCreated(database.Alert)       {}
func (NopObserver) CycleCompleted(int, time.Duration) {}
func (NopObserver) CycleFailed(error)                 {}
func (NopObserver) MonitorStateChanged(bool)          {}

// Observers fans events out to several observers.
type Observers []Observer

func (o Observers) HealthChecked(r HealthCheckResult) {
	for _, ob := range o {
		ob.HealthChecked(r)
	}
}

func (o Observers) AlertCreated(a database.Alert) {
	for _, ob := range o {
		ob.AlertCreated(a)
	}
}

func (o Observers) CycleCompleted(n int, d time.Duration) {
	for _, ob := range o {
		ob.CycleCompleted(n, d)
	}
}

func (o Observers) CycleFailed(err error) {
	for _, ob := range o {
		ob.CycleFailed(err)
	}
}

func (o Observers) MonitorStateChanged(running bool) {
	for _, ob := range o {
		ob.MonitorStateChanged(running)
	}
}

// Monitor owns the periodic health-check cycle. It is either stopped or
// running with exactly one active ticker.
type Monitor struct {
	configs   database.ConfigStore
	alerts    database.AlertStore
	prober    HealthProber
	evaluator *Evaluator
	drift     *DriftDetector

	interval  time.Duration
	workers   int
	newTicker TickerFactory
	now       func() time.Time
	observer  Observer
	log       *logrus.Entry

	mu      sync.Mutex
	running bool
	ticker  Ticker
	cancel  context.CancelFunc

	// cycleMu keeps scheduled cycles from overlapping across restarts.
	cycleMu sync.Mutex
}

type Option func(*Monitor)

func WithInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// WithWorkers bounds how many domains are processed concurrently. One
// (the default) keeps processing sequential in store order.
func WithWorkers(n int) Option {
	return func(m *Monitor) { m.workers = n }
}

func WithTickerFactory(f TickerFactory) Option {
	return func(m *Monitor) { m.newTicker = f }
}

func WithObserver(o Observer) Option {
	return func(m *Monitor) { m.observer = o }
}

func WithLogger(l *logrus.Entry) Option {
	return func(m *Monitor) { m.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

func WithDriftDetector(d *DriftDetector) Option {
	return func(m *Monitor) { m.drift = d }
}

func NewMonitor(configs database.ConfigStore, alerts database.AlertStore, prober HealthProber, evaluator *Evaluator, opts ...Option) *Monitor {
	m := &Monitor{
		configs:   configs,
		alerts:    alerts,
		prober:    prober,
		evaluator: evaluator,
		interval:  5 * time.Minute,
		workers:   1,
		newTicker: NewTimeTicker,
		now:       time.Now,
		observer:  NopObserver{},
		log:       logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// New wires a Monitor from configuration with the default prober,
// evaluator and drift detector.
func New(cfg config.MonitoringConfig, store database.Store, opts ...Option) *Monitor {
	prober := NewProber(cfg.Timeout, WithAssumedCertLifetime(cfg.AssumedCertLifetime))
	evaluator := NewEvaluator(store, cfg.SSLWarningDays, cfg.SSLCriticalDays)

	base := []Option{
		WithInterval(cfg.Interval),
		WithWorkers(cfg.Workers),
		WithDriftDetector(NewDriftDetector(nil)),
	}
	return NewMonitor(store, store, prober, evaluator, append(base, opts...)...)
}

// Start begins monitoring. A running monitor is stopped first so only one
// ticker is ever active. The first cycle runs immediately.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.stopLocked()
	}

	ticker := m.newTicker(m.interval)
	ctx, cancel := context.WithCancel(context.Background())
	m.ticker = ticker
	m.cancel = cancel
	m.running = true

	m.log.WithField("interval", m.interval).Info("Starting domain monitor")
	m.observer.MonitorStateChanged(true)

	go m.loop(ctx, ticker)
}

// Stop cancels the ticker. A cycle already in progress runs to completion.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.stopLocked()
	m.log.Info("Stopped domain monitor")
}

func (m *Monitor) stopLocked() {
	m.ticker.Stop()
	m.cancel()
	m.ticker = nil
	m.cancel = nil
	m.running = false
	m.observer.MonitorStateChanged(false)
}

func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) loop(ctx context.Context, ticker Ticker) {
	// Cycles outlive Stop; only the schedule is cancelled.
	cycleCtx := context.WithoutCancel(ctx)

	m.scheduledCycle(ctx, cycleCtx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			m.scheduledCycle(ctx, cycleCtx)
		}
	}
}

// scheduledCycle runs one cycle unless the schedule has been cancelled,
// including while it waited for a previous schedule's cycle to finish.
func (m *Monitor) scheduledCycle(schedule, cycleCtx context.Context) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	if schedule.Err() != nil {
		return
	}
	m.RunCycle(cycleCtx)
}

// RunCycle checks every enabled domain once. Failures are logged per domain
// and never abort the remaining domains.
func (m *Monitor) RunCycle(ctx context.Context) {
	start := time.Now()

	domains, err := m.configs.ListEnabledDomains(ctx)
	if err != nil {
		m.log.WithError(err).Error("Failed to load enabled domains, skipping cycle")
		m.observer.CycleFailed(err)
		return
	}

	if m.workers <= 1 {
		for _, d := range domains {
			m.processDomain(ctx, d)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(m.workers)
		for _, d := range domains {
			d := d
			g.Go(func() error {
				m.processDomain(ctx, d)
				return nil
			})
		}
		g.Wait()
	}

	duration := time.Since(start)
	m.observer.CycleCompleted(len(domains), duration)
	m.log.WithFields(logrus.Fields{
		"domains":  len(domains),
		"duration": duration,
	}).Debug("Health check cycle completed")
}

func (m *Monitor) processDomain(ctx context.Context, cfg database.DomainConfiguration) {
	log := m.log.WithField("domain", cfg.Domain)
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Domain check panicked")
		}
	}()

	result := m.CheckDomainHealth(ctx, cfg.Domain)
	m.observer.HealthChecked(result)

	if err := m.configs.UpdateHealth(ctx, cfg.ID, result.healthUpdate()); err != nil {
		log.WithError(err).Error("Failed to write health status")
	}

	created, err := m.evaluator.Evaluate(ctx, result)
	for _, a := range created {
		log.WithFields(logrus.Fields{
			"alert_type": a.AlertType,
			"severity":   a.Severity,
		}).Warn(a.Message)
		m.observer.AlertCreated(a)
	}
	if err != nil {
		log.WithError(err).Error("Failed to persist alerts")
	}

	log.WithFields(logrus.Fields{
		"accessible": result.IsAccessible,
		"ssl_valid":  result.SSLValid,
		"error":      result.Error,
	}).Debug("Domain checked")
}

// CheckDomainHealth probes one domain outside the schedule. It never fails.
func (m *Monitor) CheckDomainHealth(ctx context.Context, domain string) (result HealthCheckResult) {
	domain = config.NormalizeDomain(domain)
	checkedAt := m.now()

	defer func() {
		if r := recover(); r != nil {
			result = failed(domain, checkedAt, fmt.Sprint(r))
		}
	}()

	result = m.prober.Check(ctx, domain)
	if !result.IsAccessible {
		// Failures never report TLS as valid, whatever the prober says.
		result.SSLValid = false
		if result.Error == "" {
			result.Error = UnknownError
		}
	}
	return result
}

// GetActiveAlerts returns unresolved alerts, newest first. An empty domain
// returns alerts for every domain.
func (m *Monitor) GetActiveAlerts(ctx context.Context, domain string) ([]database.Alert, error) {
	alerts, err := m.alerts.ListActiveAlerts(ctx, config.NormalizeDomain(domain))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch alerts: %w", err)
	}
	return alerts, nil
}

func (m *Monitor) ResolveAlert(ctx context.Context, id string) error {
	if err := m.alerts.ResolveAlert(ctx, id, m.now()); err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}
	return nil
}

// DetectConfigurationDrift compares the stored DNS expectation for domain
// with the live records. Without a detector it always reports no drift.
func (m *Monitor) DetectConfigurationDrift(ctx context.Context, domain string) (bool, error) {
	if m.drift == nil {
		return false, nil
	}
	cfg, err := m.configs.GetDomain(ctx, config.NormalizeDomain(domain))
	if err != nil {
		return false, fmt.Errorf("failed to load domain configuration: %w", err)
	}
	return m.drift.Detect(ctx, cfg)
}

// SyncDomains upserts file-defined domains into the configuration store.
// Domains missing from the file are left untouched.
func (m *Monitor) SyncDomains(ctx context.Context, domains []config.DomainConfig) error {
	var firstErr error
	for _, d := range domains {
		status := database.DomainEnabled
		if !d.IsEnabled() {
			status = database.DomainDisabled
		}
		cfg := &database.DomainConfiguration{
			Domain:      d.Domain,
			Status:      status,
			RecordType:  d.RecordType,
			TargetValue: d.TargetValue,
		}
		if err := m.configs.UpsertDomain(ctx, cfg); err != nil {
			m.log.WithError(err).WithField("domain", d.Domain).Error("Failed to sync domain")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		m.log.WithFields(logrus.Fields{
			"domain": cfg.Domain,
			"status": cfg.Status,
		}).Debug("Synced domain")
	}
	return firstErr
}
