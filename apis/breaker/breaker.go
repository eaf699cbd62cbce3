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

// Package breaker defines the vendor-neutral per-sink circuit breaker
// contract (spec 4.4). Concrete state machines live in runtime/breaker.
package breaker

import (
	"context"
	"time"
)

// State is the circuit breaker's externally observable state.
type State uint8

const (
	// Closed is the initial state: writes are attempted normally.
	Closed State = iota
	// Open means writes are not attempted; callers must route to fallback.
	Open
	// HalfOpen means a single probe write is in flight; all other callers
	// must still route to fallback until the probe resolves.
	HalfOpen
)

// String returns a stable lowercase name for the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker guards a single sink. Implementations must be safe for
// concurrent use; per spec 4.4, state is never shared across sinks.
type Breaker interface {
	// Allow reports whether a write attempt should proceed right now. When
	// it returns false, the caller must not attempt the write and should
	// route to fallback instead. When it returns true, the caller MUST
	// invoke the returned Outcome function exactly once with the result of
	// the attempt, so the breaker can update its counters/state.
	Allow(ctx context.Context) (proceed bool, outcome func(success bool))

	// State returns the breaker's current state for health/diagnostics.
	State() State

	// Name identifies the sink this breaker guards.
	Name() string
}

// Specification configures a per-sink breaker's thresholds (spec 4.4
// defaults: failure_threshold=5, recovery_timeout=30s).
type Specification struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
}
