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

package filter

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"dirpx.dev/pulselog/apis/pipeline/stage"
	"dirpx.dev/pulselog/apis/record"
)

// PartitionKeyFunc derives the rate-limit partition key for a record
// (e.g. logger name, or a field value). A nil PartitionKeyFunc yields a
// single global bucket.
type PartitionKeyFunc func(record.Record) string

const defaultMaxPartitions = 4096

// RateLimiter drops events once a token bucket is empty. With a
// PartitionKeyFunc configured, each distinct key gets its own bucket; the
// number of live buckets is bounded, with LRU eviction of idle keys.
type RateLimiter struct {
	alwaysEnabled

	ratePerSec float64
	burst      int
	keyFunc    PartitionKeyFunc

	mu     sync.Mutex
	global *rate.Limiter
	byKey  *lru.Cache[string, *rate.Limiter]
}

// NewRateLimiter constructs a token-bucket RateLimiter refilling at
// ratePerSec with the given burst size. keyFunc may be nil for a single
// global bucket; maxPartitions bounds the number of live per-key buckets
// (<=0 uses a default of 4096).
func NewRateLimiter(ratePerSec float64, burst int, keyFunc PartitionKeyFunc, maxPartitions int) *RateLimiter {
	if maxPartitions <= 0 {
		maxPartitions = defaultMaxPartitions
	}
	rl := &RateLimiter{
		ratePerSec: ratePerSec,
		burst:      burst,
		keyFunc:    keyFunc,
	}
	if keyFunc == nil {
		rl.global = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	} else {
		c, err := lru.New[string, *rate.Limiter](maxPartitions)
		if err == nil {
			rl.byKey = c
		}
	}
	return rl
}

// Name implements stage.Stage.
func (f *RateLimiter) Name() string { return "rate_limit" }

// Process implements stage.Stage.
func (f *RateLimiter) Process(_ context.Context, r record.Record) (record.Record, stage.Decision, error) {
	limiter := f.limiterFor(r)
	if limiter.Allow() {
		return r, stage.Continue, nil
	}
	return r, stage.Drop, nil
}

func (f *RateLimiter) limiterFor(r record.Record) *rate.Limiter {
	if f.keyFunc == nil {
		return f.global
	}

	key := f.keyFunc(r)
	f.mu.Lock()
	defer f.mu.Unlock()

	if lim, ok := f.byKey.Get(key); ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Limit(f.ratePerSec), f.burst)
	f.byKey.Add(key, lim)
	return lim
}
