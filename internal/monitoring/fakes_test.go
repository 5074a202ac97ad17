package monitoring

import (
	"context"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/MORADOK/VaccineHomeBot-sub001/internal/database"
)

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// memStore is an in-memory ConfigStore and AlertStore with injectable errors.
type memStore struct {
	mu      sync.Mutex
	domains []database.DomainConfiguration
	alerts  []database.Alert
	updates map[string]int

	listErr    error
	updateErr  map[string]error
	createErr  map[database.AlertType]error
	listAlErr  error
	resolveErr error
}

func newMemStore(domains ...string) *memStore {
	s := &memStore{updates: map[string]int{}}
	for _, d := range domains {
		s.domains = append(s.domains, database.DomainConfiguration{
			ID:     "id-" + d,
			Domain: d,
			Status: database.DomainEnabled,
		})
	}
	return s
}

func (s *memStore) ListEnabledDomains(ctx context.Context) ([]database.DomainConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []database.DomainConfiguration
	for _, d := range s.domains {
		if d.Status == database.DomainEnabled {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *memStore) ListDomains(ctx context.Context) ([]database.DomainConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]database.DomainConfiguration(nil), s.domains...), nil
}

func (s *memStore) GetDomain(ctx context.Context, domain string) (*database.DomainConfiguration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.domains {
		if d.Domain == domain {
			d := d
			return &d, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *memStore) UpdateHealth(ctx context.Context, id string, u database.HealthUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.updateErr[id]; err != nil {
		return err
	}
	for i := range s.domains {
		if s.domains[i].ID == id {
			checked := u.LastHealthCheck
			s.domains[i].LastHealthCheck = &checked
			s.domains[i].IsAccessible = u.IsAccessible
			s.domains[i].SSLValid = u.SSLValid
			s.domains[i].SSLExpiresAt = u.SSLExpiresAt
			s.domains[i].ResponseTimeMS = u.ResponseTimeMS
			s.domains[i].LastError = u.LastError
			s.updates[id]++
			return nil
		}
	}
	return database.ErrNotFound
}

func (s *memStore) UpsertDomain(ctx context.Context, cfg *database.DomainConfiguration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.domains {
		if s.domains[i].Domain == cfg.Domain {
			s.domains[i].Status = cfg.Status
			s.domains[i].RecordType = cfg.RecordType
			s.domains[i].TargetValue = cfg.TargetValue
			*cfg = s.domains[i]
			return nil
		}
	}
	cfg.ID = "id-" + cfg.Domain
	s.domains = append(s.domains, *cfg)
	return nil
}

func (s *memStore) CreateAlertIfAbsent(ctx context.Context, a *database.Alert) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.createErr[a.AlertType]; err != nil {
		return false, err
	}
	for _, existing := range s.alerts {
		if !existing.Resolved && existing.Domain == a.Domain && existing.AlertType == a.AlertType {
			return false, nil
		}
	}
	a.ID = uuid.New().String()
	s.alerts = append(s.alerts, *a)
	return true, nil
}

func (s *memStore) HasUnresolvedAlert(ctx context.Context, domain string, t database.AlertType) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.alerts {
		if !a.Resolved && a.Domain == domain && a.AlertType == t {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) ListActiveAlerts(ctx context.Context, domain string) ([]database.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listAlErr != nil {
		return nil, s.listAlErr
	}
	out := []database.Alert{}
	for _, a := range s.alerts {
		if !a.Resolved && (domain == "" || a.Domain == domain) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) GetAlert(ctx context.Context, id string) (*database.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.alerts {
		if a.ID == id {
			a := a
			return &a, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *memStore) ResolveAlert(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolveErr != nil {
		return s.resolveErr
	}
	for i := range s.alerts {
		if s.alerts[i].ID == id {
			s.alerts[i].Resolved = true
			s.alerts[i].ResolvedAt = &at
			return nil
		}
	}
	return database.ErrNotFound
}

func (s *memStore) alertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func (s *memStore) updateCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates[id]
}

// fakeProber returns canned results and signals every call.
type fakeProber struct {
	mu      sync.Mutex
	calls   []string
	results map[string]HealthCheckResult
	panics  map[string]bool
	block   chan struct{}
	called  chan string
}

func newFakeProber() *fakeProber {
	return &fakeProber{
		results: map[string]HealthCheckResult{},
		panics:  map[string]bool{},
		called:  make(chan string, 100),
	}
}

func (p *fakeProber) Check(ctx context.Context, domain string) HealthCheckResult {
	p.mu.Lock()
	p.calls = append(p.calls, domain)
	block := p.block
	p.mu.Unlock()

	p.called <- domain
	if block != nil {
		<-block
	}
	if p.panics[domain] {
		panic("probe exploded")
	}
	if r, ok := p.results[domain]; ok {
		return r
	}
	return HealthCheckResult{Domain: domain, IsAccessible: true, SSLValid: true, CheckedAt: time.Now()}
}

func (p *fakeProber) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// fakeTicker is fired by hand and counts Stop calls.
type fakeTicker struct {
	ch    chan time.Time
	mu    sync.Mutex
	stops int
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{ch: make(chan time.Time, 1)}
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stops++
	t.mu.Unlock()
}

func (t *fakeTicker) stopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

func (t *fakeTicker) fire() {
	select {
	case t.ch <- time.Now():
	default:
	}
}

// tickerRecorder hands out fake tickers and remembers them in order.
type tickerRecorder struct {
	mu      sync.Mutex
	tickers []*fakeTicker
	// stopsBeforeCreate[i] is how many times ticker i-1 had been stopped
	// when ticker i was created.
	stopsBeforeCreate []int
}

func (r *tickerRecorder) factory(time.Duration) Ticker {
	r.mu.Lock()
	defer r.mu.Unlock()
	prevStops := -1
	if n := len(r.tickers); n > 0 {
		prevStops = r.tickers[n-1].stopCount()
	}
	t := newFakeTicker()
	r.tickers = append(r.tickers, t)
	r.stopsBeforeCreate = append(r.stopsBeforeCreate, prevStops)
	return t
}

func (r *tickerRecorder) get(i int) *fakeTicker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tickers[i]
}

func (r *tickerRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tickers)
}

// recordingObserver captures observer events.
type recordingObserver struct {
	NopObserver
	mu         sync.Mutex
	results    []HealthCheckResult
	alerts     []database.Alert
	cycles     int
	failures   int
	cycleDone  chan struct{}
	cycleFails chan error
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		cycleDone:  make(chan struct{}, 100),
		cycleFails: make(chan error, 100),
	}
}

func (o *recordingObserver) HealthChecked(r HealthCheckResult) {
	o.mu.Lock()
	o.results = append(o.results, r)
	o.mu.Unlock()
}

func (o *recordingObserver) AlertCreated(a database.Alert) {
	o.mu.Lock()
	o.alerts = append(o.alerts, a)
	o.mu.Unlock()
}

func (o *recordingObserver) CycleCompleted(int, time.Duration) {
	o.mu.Lock()
	o.cycles++
	o.mu.Unlock()
	o.cycleDone <- struct{}{}
}

func (o *recordingObserver) CycleFailed(err error) {
	o.mu.Lock()
	o.failures++
	o.mu.Unlock()
	o.cycleFails <- err
}
