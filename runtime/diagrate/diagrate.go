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

// Package diagrate wraps an apis/diagnostics.Sink with a monotonically
// de-duplicated, per-component rate limiter (spec section 6: the
// diagnostics sink is itself rate-limited and de-duplicated per component
// tag so a misbehaving component cannot flood it). Without this, a burst
// scenario like 10k events landing on a 100-capacity queue would emit one
// diagnostic line per drop, unthrottled.
package diagrate

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"dirpx.dev/pulselog/apis/diagnostics"
)

const defaultMaxComponents = 512

// bucket pairs a component's token bucket with the (kind, text) key of the
// last event it saw. Repeats draw tokens like any other event; a repeat the
// bucket rejects is added to a running suppressed count, which is attached
// to the component's next event if that event is admitted and discarded
// otherwise.
type bucket struct {
	limiter *rate.Limiter

	mu         sync.Mutex
	lastKey    string
	suppressed int64
}

// Limiter wraps next, admitting at most ratePerSec events per component
// (bursting up to burst). Immediate repeats of the same (kind, text) pair
// that the bucket rejects are counted, and the count is reported as a
// suppressed_repeats annotation on the component's next event when that
// event is admitted. maxComponents bounds the number of
// distinct component buckets tracked at once, LRU-evicting idle ones, so
// an attacker-controlled component string cannot grow this unbounded.
type Limiter struct {
	next       diagnostics.Sink
	ratePerSec float64
	burst      int

	mu      sync.Mutex
	buckets *lru.Cache[string, *bucket]

	dropped atomic.Int64
}

// New constructs a Limiter. next receives admitted events; a nil next is
// treated as diagnostics.NopSink{}. maxComponents <= 0 uses a default of
// 512.
func New(next diagnostics.Sink, ratePerSec float64, burst, maxComponents int) *Limiter {
	if next == nil {
		next = diagnostics.NopSink{}
	}
	if maxComponents <= 0 {
		maxComponents = defaultMaxComponents
	}
	l := &Limiter{next: next, ratePerSec: ratePerSec, burst: burst}
	c, err := lru.New[string, *bucket](maxComponents)
	if err == nil {
		l.buckets = c
	}
	return l
}

// Emit implements diagnostics.Sink. It is safe for concurrent use.
func (l *Limiter) Emit(e diagnostics.Event) {
	b := l.bucketFor(e.Component)
	key := e.Kind + "\x00" + e.Text

	b.mu.Lock()
	repeat := key == b.lastKey
	if repeat && !b.limiter.Allow() {
		b.suppressed++
		b.mu.Unlock()
		l.dropped.Add(1)
		return
	}

	allowed := repeat || b.limiter.Allow()
	suppressedSinceLast := b.suppressed
	b.suppressed = 0
	b.lastKey = key
	b.mu.Unlock()

	if !allowed {
		l.dropped.Add(1)
		return
	}
	if suppressedSinceLast > 0 {
		if e.Data == nil {
			e.Data = make(map[string]any, 1)
		}
		e.Data["suppressed_repeats"] = suppressedSinceLast
	}
	l.next.Emit(e)
}

func (l *Limiter) bucketFor(component string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets.Get(component); ok {
		return b
	}
	b := &bucket{limiter: rate.NewLimiter(rate.Limit(l.ratePerSec), l.burst)}
	l.buckets.Add(component, b)
	return b
}

// Dropped reports the lifetime count of events this Limiter has
// suppressed, across every component.
func (l *Limiter) Dropped() int64 { return l.dropped.Load() }

var _ diagnostics.Sink = (*Limiter)(nil)

// defaultRatePerSec and defaultBurst are the facade's out-of-the-box
// throttle (spec section 6's burst scenario: thousands of drops against a
// 100-capacity queue should collapse to a handful of diagnostic lines per
// second, not one per drop).
const (
	defaultRatePerSec = 5.0
	defaultBurst      = 10
)

// NewDefault wraps next with the facade's default rate/burst/component
// bound.
func NewDefault(next diagnostics.Sink) *Limiter {
	return New(next, defaultRatePerSec, defaultBurst, defaultMaxComponents)
}
