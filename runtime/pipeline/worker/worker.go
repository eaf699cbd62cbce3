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

// Package worker implements the pipeline worker (spec 4.7): the single
// consumer of the bounded admission queue. It drains batches, runs them
// through filters, enrichers, redactors, optional serialization and
// byte-level processors, then hands the survivors to the sink fan-out
// layer. Every stage call is isolated so a single envelope's failure
// never takes down its batch, grounded on mtlog's AsyncSink worker loop
// (select over the event channel, flush timer, drain-then-exit on
// shutdown) adapted to a blocking-dequeue batch source instead of a
// channel.
package worker

import (
	"bytes"
	"context"
	"time"

	"fmt"

	aqueue "dirpx.dev/pulselog/apis/queue"
	"dirpx.dev/pulselog/apis/record"

	"dirpx.dev/pulselog/runtime/encoder"
	"dirpx.dev/pulselog/runtime/pipeline/process"

	"dirpx.dev/pulselog/apis/diagnostics"
	"dirpx.dev/pulselog/apis/pipeline/stage"
)

// EnricherStage runs the enricher stage (spec 4.6.2) over a single
// envelope. runtime/pipeline/enrich.Pool satisfies this.
type EnricherStage interface {
	Process(ctx context.Context, r record.Record) record.Record
}

// Envelope is a single survivor handed to the sink fan-out layer: the
// record itself, plus its serialized byte view when serialize_in_flush is
// enabled (nil otherwise).
type Envelope struct {
	Record     record.Record
	Serialized []byte
}

// Fanout is the narrow contract the worker needs from the sink fan-out
// layer (runtime/sink/fanout): accept a drained, fully-processed batch
// and attempt delivery to every configured sink.
type Fanout interface {
	Dispatch(ctx context.Context, batch []Envelope)
}

// Config configures a Worker's batching and stage composition.
type Config struct {
	// BatchMaxSize bounds how many items a single DequeueBatch call drains.
	BatchMaxSize int
	// BatchTimeout bounds how long DequeueBatch blocks waiting for the
	// first item of an otherwise-empty batch.
	BatchTimeout time.Duration
	// PressureThreshold: when queue depth is at or above this value, the
	// worker skips the batch timeout wait entirely and drains whatever is
	// already queued, to keep latency bounded under backlog. Zero disables
	// the fast path.
	PressureThreshold int

	Filters    []stage.Stage
	Enrich     EnricherStage
	Redactors  []stage.Stage
	Processors *process.Chain

	// SerializeInFlush, when true, renders every surviving envelope to a
	// canonical JSON byte view via Encoder before Processors runs.
	SerializeInFlush bool
	Encoder          encoder.Encoder

	Fanout Fanout
	Diag   diagnostics.Sink
}

// Worker owns the execution of the pipeline on a dedicated goroutine,
// separate from any caller-owned executor, per spec 4.7.
type Worker struct {
	cfg     Config
	queue   aqueue.Queue
	metrics *Metrics
	stopped chan struct{}
}

// New constructs a Worker draining queue according to cfg. Zero-value
// BatchMaxSize/BatchTimeout are replaced with conservative defaults.
func New(cfg Config, queue aqueue.Queue) *Worker {
	if cfg.BatchMaxSize <= 0 {
		cfg.BatchMaxSize = 256
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 200 * time.Millisecond
	}
	if cfg.Diag == nil {
		cfg.Diag = diagnostics.NopSink{}
	}
	return &Worker{
		cfg:     cfg,
		queue:   queue,
		metrics: newMetrics(),
		stopped: make(chan struct{}),
	}
}

// Metrics returns the worker's running counters (spec 4.7.9: batch size,
// flush latency, per-stage timings).
func (w *Worker) Metrics() *Metrics { return w.metrics }

// Run drives the control loop described in spec 4.7 until ctx is done, at
// which point it drains the trailing items with non-blocking DequeueBatch
// calls, one batch at a time, until the queue is empty, then returns. Run must be called from exactly one goroutine;
// callers typically do `go worker.Run(ctx)` and wait on Stopped().
func (w *Worker) Run(ctx context.Context) {
	defer close(w.stopped)
	for {
		items := w.dequeue(ctx)
		if len(items) > 0 {
			w.processBatch(ctx, items)
		}

		if ctx.Err() != nil {
			for {
				trailing := w.queue.DequeueBatch(ctx, w.cfg.BatchMaxSize)
				if len(trailing) == 0 {
					return
				}
				w.processBatch(context.Background(), trailing)
			}
		}
	}
}

// Stopped returns a channel that is closed once Run has returned.
func (w *Worker) Stopped() <-chan struct{} { return w.stopped }

func (w *Worker) dequeue(ctx context.Context) []aqueue.Item {
	timeout := w.cfg.BatchTimeout
	if w.cfg.PressureThreshold > 0 && w.queue.Depth() >= w.cfg.PressureThreshold {
		timeout = 0
	}
	batchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return w.queue.DequeueBatch(batchCtx, w.cfg.BatchMaxSize)
}

func (w *Worker) processBatch(ctx context.Context, items []aqueue.Item) {
	start := time.Now()
	w.metrics.observeBatch(len(items))

	survivors := make([]record.Record, 0, len(items))
	for _, it := range items {
		r, keep := w.runFilters(ctx, it.Record)
		if !keep {
			w.metrics.incDropped()
			continue
		}
		survivors = append(survivors, r)
	}

	for i, r := range survivors {
		survivors[i] = w.runEnrich(ctx, r)
	}

	for i, r := range survivors {
		survivors[i] = w.runRedactors(ctx, r)
	}

	envelopes := make([]Envelope, len(survivors))
	for i, r := range survivors {
		env := Envelope{Record: r}
		if w.cfg.SerializeInFlush && w.cfg.Encoder != nil {
			env.Serialized = w.serialize(r)
		}
		envelopes[i] = env
	}

	if w.cfg.Fanout != nil && len(envelopes) > 0 {
		w.cfg.Fanout.Dispatch(ctx, envelopes)
	}

	w.metrics.observeFlushLatency(time.Since(start))
}

// runFilters applies every configured filter in order, stopping at the
// first Drop decision. A panicking or erroring filter is treated as
// Continue (spec: "no batch may be discarded wholesale because of a
// single envelope's stage failure").
func (w *Worker) runFilters(ctx context.Context, r record.Record) (record.Record, bool) {
	defer w.metrics.timeStage("filter", time.Now())
	for _, f := range w.cfg.Filters {
		if !f.Enabled() {
			continue
		}
		out, decision, err := w.safeStage(ctx, f, r)
		if err != nil {
			w.emitStageFailure(f.Name(), err)
			continue
		}
		r = out
		if decision == stage.Drop {
			return r, false
		}
	}
	return r, true
}

func (w *Worker) runEnrich(ctx context.Context, r record.Record) record.Record {
	defer w.metrics.timeStage("enrich", time.Now())
	if w.cfg.Enrich == nil {
		return r
	}
	return w.cfg.Enrich.Process(ctx, r)
}

func (w *Worker) runRedactors(ctx context.Context, r record.Record) record.Record {
	defer w.metrics.timeStage("redact", time.Now())
	for _, red := range w.cfg.Redactors {
		if !red.Enabled() {
			continue
		}
		out, _, err := w.safeStage(ctx, red, r)
		if err != nil {
			w.emitStageFailure(red.Name(), err)
			continue
		}
		r = out
	}
	return r
}

// safeStage isolates a single stage.Stage call, converting a panic into an
// error so a single misbehaving plugin cannot crash the worker goroutine.
func (w *Worker) safeStage(ctx context.Context, s stage.Stage, r record.Record) (out record.Record, decision stage.Decision, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = r
			decision = stage.Continue
			err = stagePanic{stage: s.Name(), recovered: rec}
		}
	}()
	return s.Process(ctx, r)
}

func (w *Worker) serialize(r record.Record) []byte {
	var buf bytes.Buffer
	if err := w.cfg.Encoder.Encode(&r, &buf); err != nil {
		w.emitStageFailure("serialize", err)
		return nil
	}
	view := buf.Bytes()
	if w.cfg.Processors != nil {
		return w.cfg.Processors.Run(context.Background(), view)
	}
	return view
}

func (w *Worker) emitStageFailure(stageName string, err error) {
	w.metrics.incStageFailure(stageName)
	w.cfg.Diag.Emit(diagnostics.Event{
		Component: "pipeline.worker." + stageName,
		Kind:      "stage_failed",
		Text:      err.Error(),
	})
}

type stagePanic struct {
	stage     string
	recovered any
}

func (e stagePanic) Error() string {
	return fmt.Sprintf("stage %q panicked: %v", e.stage, e.recovered)
}
