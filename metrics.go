// Copyright 2026 The KeyWarp Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package keywarp

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ringSize is the number of latency samples kept per named operation.
// Power of two so the wrap is a mask.
const ringSize = 4096

// latencyRing is a lock-free ring of latency samples.  Writers do a
// single relaxed fetch-add plus store; readers take a racy snapshot,
// which is fine for statistics.
type latencyRing struct {
	writeIdx atomic.Uint64
	samples  [ringSize]atomic.Uint64
}

func (r *latencyRing) record(d uint64) {
	i := r.writeIdx.Add(1) - 1
	r.samples[i&(ringSize-1)].Store(d)
}

func (r *latencyRing) snapshot() []uint64 {
	out := make([]uint64, 0, ringSize)
	for i := range r.samples {
		if v := r.samples[i].Load(); v > 0 {
			out = append(out, v)
		}
	}
	return out
}

func (r *latencyRing) count() uint64 {
	return r.writeIdx.Load()
}

func (r *latencyRing) clear() {
	for i := range r.samples {
		r.samples[i].Store(0)
	}
	r.writeIdx.Store(0)
}

// Stats summarizes the recorded latency samples of one operation.
// All durations are nanoseconds.
type Stats struct {
	Name  string
	Count uint64
	Mean  float64
	P50   float64
	P95   float64
	P99   float64
	Min   float64
	Max   float64
}

// Metrics collects per-operation latency distributions.  Recording is
// lock-free; the registry of names is guarded by a mutex taken only on
// first use of a name and in readers.
type Metrics struct {
	mu    sync.Mutex
	rings map[string]*latencyRing
}

// NewMetrics returns an empty metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{rings: make(map[string]*latencyRing)}
}

// Ring returns the ring for the named operation, creating it if
// needed.  Hot-path callers should cache the result.
func (m *Metrics) Ring(name string) *MetricRecorder {
	m.mu.Lock()
	r, ok := m.rings[name]
	if !ok {
		r = &latencyRing{}
		m.rings[name] = r
	}
	m.mu.Unlock()
	return &MetricRecorder{ring: r}
}

// MetricRecorder is the write handle for one named operation.
type MetricRecorder struct {
	ring *latencyRing
}

// Record stores one latency sample.
func (rec *MetricRecorder) Record(d time.Duration) {
	if rec == nil || d <= 0 {
		return
	}
	rec.ring.record(uint64(d))
}

// Count returns the total number of samples ever recorded.
func (rec *MetricRecorder) Count() uint64 {
	if rec == nil {
		return 0
	}
	return rec.ring.count()
}

// Stats computes the distribution for one named operation by sorting a
// snapshot of its ring.  Returns a zero-count Stats for unknown names.
func (m *Metrics) Stats(name string) Stats {
	m.mu.Lock()
	r := m.rings[name]
	m.mu.Unlock()
	st := Stats{Name: name}
	if r == nil {
		return st
	}
	samples := r.snapshot()
	st.Count = r.count()
	if len(samples) == 0 {
		return st
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	var sum uint64
	for _, v := range samples {
		sum += v
	}
	n := len(samples)
	st.Mean = float64(sum) / float64(n)
	st.P50 = float64(samples[n*50/100])
	st.P95 = float64(samples[min(n*95/100, n-1)])
	st.P99 = float64(samples[min(n*99/100, n-1)])
	st.Min = float64(samples[0])
	st.Max = float64(samples[n-1])
	return st
}

// Names returns the registered operation names, sorted.
func (m *Metrics) Names() []string {
	m.mu.Lock()
	names := make([]string, 0, len(m.rings))
	for n := range m.rings {
		names = append(names, n)
	}
	m.mu.Unlock()
	sort.Strings(names)
	return names
}

// Clear drops all recorded samples.
func (m *Metrics) Clear() {
	m.mu.Lock()
	for _, r := range m.rings {
		r.clear()
	}
	m.mu.Unlock()
}

// Counter is a monotonically increasing event counter (drops, retries).
type Counter struct {
	n atomic.Uint64
}

// Inc adds one.
func (c *Counter) Inc() { c.n.Add(1) }

// Value returns the current count.
func (c *Counter) Value() uint64 { return c.n.Load() }

// Reporter periodically logs aggregated stats for every registered
// operation.  It runs on a background goroutine and honors Stop.
type Reporter struct {
	metrics  *Metrics
	log      *slog.Logger
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewReporter returns a reporter that logs every interval.  Call Run
// on a background goroutine and Stop for a bounded shutdown.
func NewReporter(m *Metrics, log *slog.Logger, interval time.Duration) *Reporter {
	if log == nil {
		log = slog.Default()
	}
	return &Reporter{
		metrics:  m,
		log:      log,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run loops until Stop, logging one line per operation per interval.
func (rp *Reporter) Run() {
	defer close(rp.done)
	t := time.NewTicker(rp.interval)
	defer t.Stop()
	for {
		select {
		case <-rp.stop:
			return
		case <-t.C:
			for _, name := range rp.metrics.Names() {
				st := rp.metrics.Stats(name)
				if st.Count == 0 {
					continue
				}
				rp.log.Info("metrics",
					"op", st.Name,
					"count", st.Count,
					"mean_ns", uint64(st.Mean),
					"p50_ns", uint64(st.P50),
					"p95_ns", uint64(st.P95),
					"p99_ns", uint64(st.P99),
					"max_ns", uint64(st.Max))
			}
		}
	}
}

// Stop terminates Run and waits for it to exit.
func (rp *Reporter) Stop() {
	close(rp.stop)
	<-rp.done
}
