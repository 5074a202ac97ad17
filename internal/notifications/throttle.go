// internal/notifications/throttle.go
package notifications

import (
	"sync"
	"time"

	"github.com/MORADOK/VaccineHomeBot-sub001/internal/config"
)

// Throttler limits notifications over a sliding window, per recipient and
// in total.
type Throttler struct {
	config      config.ThrottleConfig
	perTarget   map[string][]time.Time
	totalCounts []time.Time
	now         func() time.Time
	mu          sync.Mutex
}

func NewThrottler(cfg config.ThrottleConfig) *Throttler {
	return &Throttler{
		config:    cfg,
		perTarget: make(map[string][]time.Time),
		now:       time.Now,
	}
}

// Reserve checks both limits and, when neither is reached, counts one
// notification to recipient under the same lock. release undoes the
// reservation for a message that was not delivered.
func (t *Throttler) Reserve(recipient string) (release func(), ok bool) {
	if !t.config.Enabled {
		return func() {}, true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	windowStart := now.Add(-t.config.Window)
	t.cleanup(windowStart)

	if len(t.perTarget[recipient]) >= t.config.MaxPerRecipient || len(t.totalCounts) >= t.config.MaxTotal {
		return nil, false
	}

	t.perTarget[recipient] = append(t.perTarget[recipient], now)
	t.totalCounts = append(t.totalCounts, now)

	var once sync.Once
	return func() {
		once.Do(func() { t.release(recipient, now) })
	}, true
}

func (t *Throttler) release(recipient string, stamp time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.perTarget[recipient] = removeStamp(t.perTarget[recipient], stamp)
	if len(t.perTarget[recipient]) == 0 {
		delete(t.perTarget, recipient)
	}
	t.totalCounts = removeStamp(t.totalCounts, stamp)
}

func (t *Throttler) cleanup(windowStart time.Time) {
	for recipient, times := range t.perTarget {
		valid := keepSince(times, windowStart)
		if len(valid) == 0 {
			delete(t.perTarget, recipient)
		} else {
			t.perTarget[recipient] = valid
		}
	}
	t.totalCounts = keepSince(t.totalCounts, windowStart)
}

// removeStamp drops the last occurrence of stamp.
func removeStamp(times []time.Time, stamp time.Time) []time.Time {
	for i := len(times) - 1; i >= 0; i-- {
		if times[i].Equal(stamp) {
			return append(times[:i], times[i+1:]...)
		}
	}
	return times
}

func keepSince(times []time.Time, start time.Time) []time.Time {
	valid := make([]time.Time, 0, len(times))
	for _, ts := range times {
		if ts.After(start) {
			valid = append(valid, ts)
		}
	}
	return valid
}
