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

// Package breaker adapts github.com/sony/gobreaker/v2 to the
// apis/breaker.Breaker contract (spec 4.4): one breaker per sink, default
// failure_threshold=5 consecutive failures to trip, recovery_timeout=30s
// before a half-open probe is allowed.
//
// gobreaker's public surface is shaped around Execute(func() (T, error)),
// but the fanout stage needs to perform the actual sink write itself (so it
// can also feed the write into per-sink metrics and the queue's drop
// accounting). Adapter bridges that gap by running Execute on a
// goroutine and handing the caller a proceed/outcome pair instead: the
// goroutine blocks inside the gobreaker-managed call until the caller
// reports the real outcome.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	apisbreaker "dirpx.dev/pulselog/apis/breaker"
)

var errProbeFailed = errors.New("breaker: guarded call reported failure")

// DefaultSpecification returns spec 4.4's documented defaults.
func DefaultSpecification() apisbreaker.Specification {
	return apisbreaker.Specification{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
	}
}

// Adapter implements apis/breaker.Breaker on top of a gobreaker
// CircuitBreaker.
type Adapter struct {
	name string
	cb   *gobreaker.CircuitBreaker[any]
}

var _ apisbreaker.Breaker = (*Adapter)(nil)

// New constructs an Adapter named name with the given specification. A
// FailureThreshold <= 0 falls back to DefaultSpecification's value, same
// for a non-positive RecoveryTimeout.
func New(name string, spec apisbreaker.Specification) *Adapter {
	threshold := spec.FailureThreshold
	if threshold <= 0 {
		threshold = DefaultSpecification().FailureThreshold
	}
	timeout := spec.RecoveryTimeout
	if timeout <= 0 {
		timeout = DefaultSpecification().RecoveryTimeout
	}

	settings := gobreaker.Settings{
		Name:    name,
		Timeout: timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
	}
	return &Adapter{name: name, cb: gobreaker.NewCircuitBreaker[any](settings)}
}

// Name implements apis/breaker.Breaker.
func (a *Adapter) Name() string { return a.name }

// State implements apis/breaker.Breaker.
func (a *Adapter) State() apisbreaker.State {
	switch a.cb.State() {
	case gobreaker.StateOpen:
		return apisbreaker.Open
	case gobreaker.StateHalfOpen:
		return apisbreaker.HalfOpen
	default:
		return apisbreaker.Closed
	}
}

// Allow implements apis/breaker.Breaker. When it returns true, the caller
// MUST invoke the returned function exactly once; failing to do so leaves
// the bridging goroutine blocked indefinitely, since it waits only for the
// reported outcome and does not watch ctx.
func (a *Adapter) Allow(ctx context.Context) (bool, func(success bool)) {
	proceedCh := make(chan bool, 1)
	outcomeCh := make(chan bool, 1)

	go func() {
		entered := false
		_, _ = a.cb.Execute(func() (any, error) {
			entered = true
			proceedCh <- true
			if ok := <-outcomeCh; ok {
				return nil, nil
			}
			return nil, errProbeFailed
		})
		if !entered {
			proceedCh <- false
		}
	}()

	select {
	case proceed := <-proceedCh:
		if !proceed {
			return false, func(bool) {}
		}
		return true, func(success bool) { outcomeCh <- success }
	case <-ctx.Done():
		return false, func(bool) {}
	}
}
