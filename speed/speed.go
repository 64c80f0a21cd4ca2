// Package speed implements a sliding-window byte/sec meter plus a lifetime
// cumulative total (spec.md §3 SpeedMeter). Every SSocketWrapper carries two
// of these (upload, download), and Meter.String formats a meter with
// github.com/dustin/go-humanize, the way the teacher formats
// cn.downloadRate()/(1<<10) in peer.go's writeStatus.
package speed

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

type sample struct {
	at    time.Time
	bytes int64
}

// Meter is an append-only sequence of (tick, bytes) samples. The zero value
// is ready to use. History is bounded by maxAge; samples older than that are
// dropped lazily on the next Add/GetSpeed call.
type Meter struct {
	mu      sync.Mutex
	samples []sample
	total   int64
	maxAge  time.Duration
}

// DefaultMaxAge is the sliding-window history retained when New is not
// given an explicit age (enough to answer GetSpeed for any window up to a
// minute, which is all the scheduler ever asks for).
const DefaultMaxAge = time.Minute

// New returns a Meter retaining maxAge of sample history. A zero maxAge
// uses DefaultMaxAge.
func New(maxAge time.Duration) *Meter {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Meter{maxAge: maxAge}
}

// Add records n bytes transferred at time now.
func (m *Meter) Add(now time.Time, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, sample{now, n})
	m.total += n
	m.prune(now)
}

func (m *Meter) prune(now time.Time) {
	cutoff := now.Add(-m.maxAge)
	i := 0
	for i < len(m.samples) && m.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		m.samples = m.samples[i:]
	}
}

// GetSpeed returns the average bytes/sec over the trailing window, as of
// now.
func (m *Meter) GetSpeed(now time.Time, window time.Duration) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prune(now)
	if window <= 0 {
		return 0
	}
	cutoff := now.Add(-window)
	var sum int64
	for _, s := range m.samples {
		if !s.at.Before(cutoff) {
			sum += s.bytes
		}
	}
	return float64(sum) / window.Seconds()
}

// GetTotal returns the lifetime cumulative byte count.
func (m *Meter) GetTotal() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// String renders the 10s speed and lifetime total, human-readable.
func (m *Meter) String() string {
	now := time.Now()
	return fmt.Sprintf("%s/s (%s total)",
		humanize.Bytes(uint64(m.GetSpeed(now, 10*time.Second))),
		humanize.Bytes(uint64(m.GetTotal())))
}
