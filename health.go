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

package pulselog

import (
	"context"
	"time"

	apisbreaker "dirpx.dev/pulselog/apis/breaker"
	"dirpx.dev/pulselog/apis/health"
)

// sinkHealthReporter is satisfied by *runtime/sink/fanout.Fanout. It is
// declared locally rather than imported so this package does not need to
// depend on the fanout package just to type-assert cfg.Fanout (which is
// held as the narrower worker.Fanout interface).
type sinkHealthReporter interface {
	SinkHealth() map[string]apisbreaker.State
}

// queuePressureUnhealthy is the fraction of queue capacity at or above
// which Health reports StatusUnhealthy rather than StatusDegraded: past
// this point priority eviction is doing most of the admission work and
// non-protected records are routinely being dropped.
const queuePressureUnhealthy = 0.95

// queuePressureDegraded is the fraction of queue capacity at or above
// which Health reports StatusDegraded.
const queuePressureDegraded = 0.75

// Health returns a apis/health.Checker reporting this Logger's admission
// queue pressure and lifetime drop counts. It is meant to be registered
// by name with a health.Aggregator alongside checkers for the rest of a
// service's dependencies, so an operator-facing readiness endpoint can
// surface "the log pipeline is backing up" the same way it would surface
// "the database is slow".
func (l *Logger) Health() health.Checker {
	return health.CheckFunc(func(ctx context.Context) (health.Result, error) {
		depth := l.queue.Depth()
		capacity := l.queue.Capacity()

		status := health.StatusHealthy
		if capacity > 0 {
			pressure := float64(depth) / float64(capacity)
			switch {
			case pressure >= queuePressureUnhealthy:
				status = health.StatusUnhealthy
			case pressure >= queuePressureDegraded:
				status = health.StatusDegraded
			}
		}

		details := map[string]any{
			"queue_depth":          depth,
			"queue_capacity":       capacity,
			"queue_high_watermark": l.queue.HighWatermark(),
			"dropped_total":        l.droppedTotal(),
		}

		// spec 7: a sink whose circuit is Open is unhealthy, regardless of
		// queue pressure.
		if reporter, ok := l.cfg.Fanout.(sinkHealthReporter); ok {
			sinkStatus := make(map[string]string, len(details))
			for name, state := range reporter.SinkHealth() {
				sinkStatus[name] = state.String()
				switch state {
				case apisbreaker.Open:
					status = health.StatusUnhealthy
				case apisbreaker.HalfOpen:
					if status == health.StatusHealthy {
						status = health.StatusDegraded
					}
				}
			}
			details["sinks"] = sinkStatus
		}

		return health.Result{
			Name:       "pulselog." + l.name,
			Status:     status,
			ObservedAt: time.Now(),
			Details:    details,
		}, nil
	})
}
