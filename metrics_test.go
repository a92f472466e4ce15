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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsStats(t *testing.T) {
	m := NewMetrics()
	rec := m.Ring("process")
	for i := 1; i <= 100; i++ {
		rec.Record(time.Duration(i) * time.Microsecond)
	}

	st := m.Stats("process")
	assert.Equal(t, uint64(100), st.Count)
	assert.Equal(t, float64(time.Microsecond), st.Min)
	assert.Equal(t, float64(100*time.Microsecond), st.Max)
	assert.InDelta(t, float64(50500*time.Nanosecond), st.Mean, float64(time.Microsecond))
	assert.True(t, st.P50 <= st.P95 && st.P95 <= st.P99)
}

func TestMetricsRingWraps(t *testing.T) {
	m := NewMetrics()
	rec := m.Ring("wrap")
	for i := 0; i < ringSize*2; i++ {
		rec.Record(time.Nanosecond)
	}
	st := m.Stats("wrap")
	assert.Equal(t, uint64(ringSize*2), st.Count)
}

func TestMetricsUnknownName(t *testing.T) {
	m := NewMetrics()
	st := m.Stats("nope")
	assert.Equal(t, uint64(0), st.Count)
}

func TestMetricsConcurrentRecord(t *testing.T) {
	m := NewMetrics()
	rec := m.Ring("hot")
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				rec.Record(time.Microsecond)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(4000), rec.Count())
}

func TestMetricsNamesAndClear(t *testing.T) {
	m := NewMetrics()
	m.Ring("b").Record(time.Nanosecond)
	m.Ring("a").Record(time.Nanosecond)
	assert.Equal(t, []string{"a", "b"}, m.Names())

	m.Clear()
	assert.Equal(t, uint64(0), m.Stats("a").Count)
}

func TestCounter(t *testing.T) {
	var c Counter
	c.Inc()
	c.Inc()
	assert.Equal(t, uint64(2), c.Value())
}

// TestProcessLatency smoke-checks the hot path against the latency
// budget: the p99 over a batch of events stays far under a
// millisecond.  This is a coarse guard, not a benchmark.
func TestProcessLatency(t *testing.T) {
	if testing.Short() {
		t.Skip("latency smoke test")
	}
	sim := NewSimInjector()
	eng := NewEngine(WithInjector(sim))
	defer eng.Close()
	if err := eng.InstallConfig(capsConfig()); err != nil {
		t.Fatal(err)
	}

	evH := Encode(CodeH)
	for i := 0; i < 100000; i++ {
		typ := Press
		if i%2 == 1 {
			typ = Release
		}
		eng.Submit(InputEvent{Code: evH, Type: typ})
	}
	st := eng.Metrics().Stats("process")
	if st.P99 >= float64(time.Millisecond) {
		t.Errorf("p99 latency %v ns exceeds 1ms budget", st.P99)
	}
}
