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
)

// DrainResult reports what happened during a Drain or StopAndDrain call
// (spec 4.9): how many envelopes the worker has flushed and dropped over
// the logger's lifetime, the highest queue depth ever observed, and
// whether the queue emptied before the deadline.
type DrainResult struct {
	// FlushedEnvelopes is the cumulative count of envelopes the pipeline
	// worker has handed to fan-out since the logger was constructed (not
	// a delta since the last Drain call; Drain is idempotent and safe to
	// call repeatedly).
	FlushedEnvelopes int64
	// DroppedTotal sums every drop accounting counter (full queue,
	// protected-over-full, dedupe suppression, serialization failure,
	// post-shutdown) plus the envelopes the worker's filters rejected. A
	// serialization failure does not drop the envelope, so that counter
	// stays zero.
	DroppedTotal int64
	// QueueHighWatermark is the highest depth ever observed on the
	// admission queue.
	QueueHighWatermark int
	// AvgFlushLatency is the worker's running average batch-flush
	// latency at the time Drain returned.
	AvgFlushLatency time.Duration
	// Complete reports whether the queue reached depth zero before the
	// deadline. false means Drain timed out with items still queued or
	// in flight.
	Complete bool
}

// Drain blocks, up to timeout, until the admission queue empties (every
// enqueued record has been picked up by the worker's next batch), then
// returns a snapshot of the logger's cumulative counters. Drain does not
// stop the worker or reject new emissions; callers that want to stop
// accepting new records first should use StopAndDrain.
//
// Drain polls queue depth rather than waiting on an explicit "flush done"
// signal: the worker has no such channel (its control loop only reports
// completion of the whole Run via Stopped), so an empty admission queue,
// re-checked after one short settle interval, is the proxy for "caught
// up" used here. It does not observe the worker itself: a batch the
// worker has dequeued may still be in processing when Drain returns.
func (l *Logger) Drain(ctx context.Context, timeout time.Duration) DrainResult {
	deadline := time.Now().Add(timeout)
	if timeout <= 0 {
		deadline = time.Now()
	}

	const pollInterval = 2 * time.Millisecond
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	complete := l.queue.Depth() == 0
	for !complete && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			complete = l.queue.Depth() == 0
			goto snapshot
		case <-ticker.C:
			complete = l.queue.Depth() == 0
		}
	}

snapshot:
	// One more settle tick: the worker may have just dequeued a batch
	// that is still being processed when Depth first read zero.
	if complete {
		time.Sleep(pollInterval)
		complete = l.queue.Depth() == 0
	}

	snap := l.worker.Metrics().Snapshot()
	return DrainResult{
		FlushedEnvelopes:   snap.Envelopes,
		DroppedTotal:       l.droppedTotal(),
		QueueHighWatermark: l.queue.HighWatermark(),
		AvgFlushLatency:    snap.AvgFlushLatency,
		Complete:           complete,
	}
}

// StopAndDrain stops accepting new emissions (subsequent Log/Debug/Info/
// Warn/Error/Fatal calls are counted as DroppedDueToShutdown and
// discarded), cancels the worker's context so its trailing drain runs
// (after ctx is done, Run keeps making non-blocking DequeueBatch calls
// until the queue is empty), and waits up to timeout for the worker
// goroutine to finish.
//
// StopAndDrain is idempotent: calling it more than once on the same
// Logger is safe and every call after the first simply waits on the
// already-stopping worker.
func (l *Logger) StopAndDrain(ctx context.Context, timeout time.Duration) DrainResult {
	l.stopOnce.Do(func() {
		l.stopped.Store(true)
		l.workerCancel()
	})

	deadline := time.Now().Add(timeout)
	select {
	case <-l.worker.Stopped():
	case <-ctx.Done():
	case <-time.After(time.Until(deadline)):
	}

	snap := l.worker.Metrics().Snapshot()
	return DrainResult{
		FlushedEnvelopes:   snap.Envelopes,
		DroppedTotal:       l.droppedTotal(),
		QueueHighWatermark: l.queue.HighWatermark(),
		AvgFlushLatency:    snap.AvgFlushLatency,
		Complete:           l.queue.Depth() == 0,
	}
}

func (l *Logger) droppedTotal() int64 {
	return l.drops.DroppedDueToFull.Load() +
		l.drops.DroppedDueToSerialization.Load() +
		l.drops.DroppedByFilter.Load() +
		l.drops.DroppedByDedupe.Load() +
		l.drops.DroppedProtectedOverFull.Load() +
		l.drops.DroppedDueToShutdown.Load() +
		l.worker.Metrics().Snapshot().Dropped
}
