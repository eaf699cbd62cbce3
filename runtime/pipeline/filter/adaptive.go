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
	"math/rand"
	"sync"
	"time"

	"dirpx.dev/pulselog/apis/level"
	"dirpx.dev/pulselog/apis/pipeline/stage"
	"dirpx.dev/pulselog/apis/record"
)

// timeNow is a package-level indirection so tests can substitute a fake
// clock without depending on wall-clock sleeps.
var timeNow = time.Now

const (
	defaultAdaptiveWindow = 10 * time.Second
	// ewmaAlpha weights how strongly the newest observed-rate sample moves
	// the smoothed pass probability; low values bias toward stability.
	ewmaAlpha = 0.3
	// hysteresisEpsilon is the minimum change in pass probability required
	// before an adjustment is actually applied, so a single noisy sample
	// near a threshold cannot flip the decision back and forth every event.
	hysteresisEpsilon = 0.02
)

// AdaptiveSampler adjusts its pass probability toward a target
// events-per-second rate, bounded by [MinRate, MaxRate], using a rolling
// observation window and exponentially smoothed adjustments.
type AdaptiveSampler struct {
	TargetRate       float64
	MinRate          float64
	MaxRate          float64
	Window           time.Duration
	AlwaysPassLevels map[level.Level]struct{}

	mu      sync.Mutex
	events  []time.Time // timestamps of observed (non-bypassed) events, oldest first
	passP   float64     // current smoothed pass probability
	rng     func() float64
	initted bool
}

// NewAdaptiveSampler constructs an AdaptiveSampler. minRate/maxRate bound
// the pass probability; window defaults to 10s when <= 0.
func NewAdaptiveSampler(targetRate, minRate, maxRate float64, window time.Duration, alwaysPass ...level.Level) *AdaptiveSampler {
	if window <= 0 {
		window = defaultAdaptiveWindow
	}
	if minRate < 0 {
		minRate = 0
	}
	if maxRate > 1 {
		maxRate = 1
	}
	if maxRate < minRate {
		maxRate = minRate
	}

	bypass := make(map[level.Level]struct{}, len(alwaysPass))
	for _, lvl := range alwaysPass {
		bypass[lvl] = struct{}{}
	}

	return &AdaptiveSampler{
		TargetRate:       targetRate,
		MinRate:          minRate,
		MaxRate:          maxRate,
		Window:           window,
		AlwaysPassLevels: bypass,
		passP:            clamp(1, minRate, maxRate),
		rng:              rand.Float64,
	}
}

// Enabled implements stage.Stage.
func (f *AdaptiveSampler) Enabled() bool { return true }

// Name implements stage.Stage.
func (f *AdaptiveSampler) Name() string { return "adaptive_sampling" }

// Process implements stage.Stage.
func (f *AdaptiveSampler) Process(_ context.Context, r record.Record) (record.Record, stage.Decision, error) {
	if _, bypass := f.AlwaysPassLevels[r.Level]; bypass {
		return r, stage.Continue, nil
	}

	f.mu.Lock()
	now := timeNow()
	f.events = pruneBefore(f.events, now.Add(-f.Window))
	f.events = append(f.events, now)
	observedRate := float64(len(f.events)) / f.Window.Seconds()

	f.adjustLocked(observedRate)
	passP := f.passP
	f.mu.Unlock()

	if f.rng() < passP {
		return r, stage.Continue, nil
	}
	return r, stage.Drop, nil
}

// adjustLocked recomputes the smoothed pass probability. Must be called
// with f.mu held.
func (f *AdaptiveSampler) adjustLocked(observedRate float64) {
	if f.TargetRate <= 0 {
		return
	}
	// raw is the probability that would exactly hit the target rate if
	// applied to the current observed (pre-sampling) rate.
	raw := clamp(f.TargetRate/observedRate, f.MinRate, f.MaxRate)
	smoothed := ewmaAlpha*raw + (1-ewmaAlpha)*f.passP
	if abs(smoothed-f.passP) >= hysteresisEpsilon {
		f.passP = clamp(smoothed, f.MinRate, f.MaxRate)
	}
}

func pruneBefore(events []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(events) && events[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return events
	}
	return append(events[:0], events[i:]...)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
