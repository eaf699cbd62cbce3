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
	"hash/fnv"
	"math/rand"

	"dirpx.dev/pulselog/apis/pipeline/stage"
	"dirpx.dev/pulselog/apis/record"
)

// KeyFunc extracts a deterministic sampling key from a record (e.g. a
// trace id), so that every event sharing the key survives or drops
// together. A nil KeyFunc means pure per-event randomness.
type KeyFunc func(record.Record) string

// Probabilistic drops events with probability 1-Rate. When Key is set,
// the keep/drop decision is derived deterministically from the key's hash
// instead of a fresh random draw, so correlated events agree.
type Probabilistic struct {
	alwaysEnabled
	Rate float64
	Key  KeyFunc

	rng func() float64
}

// NewProbabilistic constructs a Probabilistic filter. rate is clamped to
// [0,1].
func NewProbabilistic(rate float64, key KeyFunc) *Probabilistic {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	return &Probabilistic{Rate: rate, Key: key, rng: rand.Float64}
}

// Name implements stage.Stage.
func (f *Probabilistic) Name() string { return "probabilistic_sampling" }

// Process implements stage.Stage.
func (f *Probabilistic) Process(_ context.Context, r record.Record) (record.Record, stage.Decision, error) {
	if f.Rate >= 1 {
		return r, stage.Continue, nil
	}
	if f.Rate <= 0 {
		return r, stage.Drop, nil
	}

	var draw float64
	if f.Key != nil {
		if k := f.Key(r); k != "" {
			draw = keyToUnitInterval(k)
		} else {
			draw = f.rng()
		}
	} else {
		draw = f.rng()
	}

	if draw < f.Rate {
		return r, stage.Continue, nil
	}
	return r, stage.Drop, nil
}

// keyToUnitInterval hashes key into a deterministic value in [0,1).
func keyToUnitInterval(key string) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	const maxUint64 = ^uint64(0)
	return float64(h.Sum64()) / float64(maxUint64)
}
