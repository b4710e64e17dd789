// Package monitor runs a background resistance watcher: a fixed-cadence
// goroutine measuring the probe and accumulating timestamped samples, used to
// keep an eye on a device while the cryostat ramps between conditions.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/attolab/cryosweep/internal/monitoring"
	"github.com/attolab/cryosweep/internal/sweep"
)

const (
	defaultInterval = time.Second
	stopJoinTimeout = 5 * time.Second
)

// Sample is one timestamped background measurement.
type Sample struct {
	Taken      time.Time
	Voltage    float64
	Current    float64
	Resistance float64
}

// Callback receives each new sample synchronously on the worker goroutine.
// A slow callback slows the sampling cadence; it never drops samples.
type Callback func(Sample)

// Monitor owns the worker goroutine and the accumulated sample buffer.
type Monitor struct {
	probe    *sweep.Probe
	interval time.Duration

	mu        sync.Mutex
	samples   []Sample
	callbacks []Callback
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// New builds a monitor sampling the probe at the given interval. A
// non-positive interval means 1s.
func New(probe *sweep.Probe, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Monitor{probe: probe, interval: interval}
}

// OnSample registers a callback for every future sample. Not safe to call
// while the monitor is running.
func (m *Monitor) OnSample(cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// Running reports whether the worker goroutine is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Start launches the worker. Starting a running monitor is a no-op beyond a
// log line; there is never more than one worker.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		monitoring.Logf("monitor: already running, ignoring start")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	go m.run(ctx)
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)
	for {
		reading, err := m.probe.Measure(ctx)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			// a failed reading is logged and the cadence continues;
			// transient comm glitches must not kill the watcher
			monitoring.Logf("monitor: measurement failed: %v", err)
		default:
			m.record(Sample{
				Taken:      time.Now(),
				Voltage:    reading.Voltage,
				Current:    reading.Current,
				Resistance: reading.Resistance,
			})
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.interval):
		}
	}
}

func (m *Monitor) record(s Sample) {
	m.mu.Lock()
	m.samples = append(m.samples, s)
	callbacks := m.callbacks
	m.mu.Unlock()

	for _, cb := range callbacks {
		cb(s)
	}
}

// Stop halts the worker and drains the sample buffer. Safe to call on a
// stopped monitor, which returns any samples still buffered.
func (m *Monitor) Stop() []Sample {
	m.mu.Lock()
	if m.running {
		m.running = false
		cancel, done := m.cancel, m.done
		m.mu.Unlock()

		cancel()
		select {
		case <-done:
		case <-time.After(stopJoinTimeout):
			monitoring.Logf("monitor: worker did not stop within %s", stopJoinTimeout)
		}

		m.mu.Lock()
	}

	samples := m.samples
	m.samples = nil
	m.mu.Unlock()
	return samples
}

// Peek returns a copy of the buffered samples without draining them.
func (m *Monitor) Peek() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sample, len(m.samples))
	copy(out, m.samples)
	return out
}
