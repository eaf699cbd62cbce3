/*
   Copyright 2025 The DIRPX Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package fanout

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks per-sink success/failure counts, circuit rejections and
// fallback routing, per spec 4.7.9/4.8. Built on sync/atomic and a mutex
// for the per-sink map, matching runtime/pipeline/worker.Metrics: no
// metrics library is present anywhere in the retrieved corpus.
type Metrics struct {
	unrouted          atomic.Int64
	droppedNoFallback atomic.Int64
	globalFallback    atomic.Int64

	mu    sync.Mutex
	sinks map[string]*sinkCounters
}

type sinkCounters struct {
	success         int64
	failure         int64
	circuitRejected int64
	latencyNanosSum int64
	latencyCount    int64
}

func newMetrics() *Metrics {
	return &Metrics{sinks: make(map[string]*sinkCounters)}
}

func (m *Metrics) incSuccess(name string) {
	m.mu.Lock()
	c := m.counterLocked(name)
	c.success++
	m.mu.Unlock()
}

func (m *Metrics) incFailure(name string) {
	m.mu.Lock()
	c := m.counterLocked(name)
	c.failure++
	m.mu.Unlock()
}

func (m *Metrics) incCircuitRejected(name string) {
	m.mu.Lock()
	c := m.counterLocked(name)
	c.circuitRejected++
	m.mu.Unlock()
}

func (m *Metrics) observeLatency(name string, d time.Duration) {
	m.mu.Lock()
	c := m.counterLocked(name)
	c.latencyNanosSum += d.Nanoseconds()
	c.latencyCount++
	m.mu.Unlock()
}

// counterLocked must be called with m.mu held.
func (m *Metrics) counterLocked(name string) *sinkCounters {
	c, ok := m.sinks[name]
	if !ok {
		c = &sinkCounters{}
		m.sinks[name] = c
	}
	return c
}

func (m *Metrics) incUnrouted()         { m.unrouted.Add(1) }
func (m *Metrics) incDroppedNoFallback() { m.droppedNoFallback.Add(1) }
func (m *Metrics) incGlobalFallback()    { m.globalFallback.Add(1) }

// SinkSnapshot is a point-in-time copy of one sink's counters.
type SinkSnapshot struct {
	Success         int64
	Failure         int64
	CircuitRejected int64
	AvgLatency      time.Duration
}

// Snapshot returns the current counters for every sink observed so far,
// plus the fan-out-wide unrouted/fallback counts.
func (m *Metrics) Snapshot() (perSink map[string]SinkSnapshot, unrouted, droppedNoFallback, globalFallback int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	perSink = make(map[string]SinkSnapshot, len(m.sinks))
	for name, c := range m.sinks {
		var avg time.Duration
		if c.latencyCount > 0 {
			avg = time.Duration(c.latencyNanosSum / c.latencyCount)
		}
		perSink[name] = SinkSnapshot{
			Success:         c.success,
			Failure:         c.failure,
			CircuitRejected: c.circuitRejected,
			AvgLatency:      avg,
		}
	}
	return perSink, m.unrouted.Load(), m.droppedNoFallback.Load(), m.globalFallback.Load()
}
