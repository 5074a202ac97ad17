// internal/notifications/notifications.go - notification sinks and dispatch
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/MORADOK/VaccineHomeBot-sub001/internal/config"
	"github.com/MORADOK/VaccineHomeBot-sub001/internal/database"
)

var (
	ErrThrottled   = errors.New("notification throttled")
	ErrUnknownSink = errors.New("unknown notification sink")
)

// Message is a notification payload. Template is an optional sink-specific
// rich object (a LINE flex or template message) passed through as raw JSON.
type Message struct {
	Text     string          `json:"text"`
	Template json.RawMessage `json:"template,omitempty"`
}

// Sink delivers messages to one channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, recipient string, msg Message) error
	Close() error
}

// Dispatcher routes messages to registered sinks, subject to throttling.
type Dispatcher struct {
	mu        sync.RWMutex
	sinks     map[string]Sink
	throttler *Throttler
}

func NewDispatcher(throttler *Throttler) *Dispatcher {
	return &Dispatcher{
		sinks:     make(map[string]Sink),
		throttler: throttler,
	}
}

// NewDispatcherFromConfig builds a dispatcher with every enabled sink.
func NewDispatcherFromConfig(cfg config.NotificationConfig) (*Dispatcher, error) {
	d := NewDispatcher(NewThrottler(cfg.Throttle))

	if cfg.Line.Enabled {
		line, err := NewLineSink(cfg.Line)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LINE sink: %w", err)
		}
		d.Register(line)
	}
	if cfg.Email.Enabled {
		email, err := NewEmailSink(cfg.Email)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize email sink: %w", err)
		}
		d.Register(email)
	}

	logrus.WithFields(logrus.Fields{
		"line_enabled":     cfg.Line.Enabled,
		"email_enabled":    cfg.Email.Enabled,
		"throttle_enabled": cfg.Throttle.Enabled,
	}).Info("Notification dispatcher initialized")

	return d, nil
}

func (d *Dispatcher) Register(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks[s.Name()] = s
}

func (d *Dispatcher) Get(name string) (Sink, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sinks[name]
	return s, ok
}

// Names returns the registered sink names, sorted.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.sinks))
	for name := range d.sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Send delivers msg to recipient through the named sink. A throttled
// message is dropped with ErrThrottled; only delivered messages count
// against the throttle window.
func (d *Dispatcher) Send(ctx context.Context, sink, recipient string, msg Message) error {
	s, ok := d.Get(sink)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSink, sink)
	}

	release := func() {}
	if d.throttler != nil {
		var ok bool
		if release, ok = d.throttler.Reserve(recipient); !ok {
			logrus.WithFields(logrus.Fields{
				"sink":      sink,
				"recipient": recipient,
			}).Debug("Notification throttled")
			return ErrThrottled
		}
	}

	if err := s.Send(ctx, recipient, msg); err != nil {
		release()
		logrus.WithError(err).WithField("sink", sink).Error("Failed to send notification")
		return fmt.Errorf("%s: %w", sink, err)
	}
	return nil
}

// Close closes every sink and returns the joined errors.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	for name, s := range d.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// AlertMessage renders an alert as a plain text notification.
func AlertMessage(a database.Alert) Message {
	return Message{
		Text: fmt.Sprintf("%s [%s] %s\n%s", severityEmoji(a.Severity), a.Severity, a.AlertType, a.Message),
	}
}

func severityEmoji(s database.Severity) string {
	switch s {
	case database.SeverityCritical:
		return "🚨"
	case database.SeverityHigh:
		return "⚠️"
	case database.SeverityMedium:
		return "🔶"
	default:
		return "ℹ️"
	}
}
