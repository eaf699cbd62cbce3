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

// Package pulselog is the non-blocking structured logging facade (spec
// 4.9): GetLogger/GetLoggerAsync hand out cached *Logger instances, and
// *Logger itself implements apis.Logger / apis.FieldLogger /
// apis.ContextLogger on top of the bounded admission queue, the staged
// transformation pipeline worker, and the sink fan-out layer built up in
// the runtime subpackages.
//
// Emission never blocks the caller on I/O: Log and its level-named
// shorthands only build a record.Record, assign it a sequence number,
// and hand it to the bounded queue's priority-aware admission policy
// (runtime/queue.AdmitWithPriority). Everything downstream — filtering,
// enrichment, redaction, serialization and sink fan-out — runs on the
// logger's own pipeline worker goroutine.
package pulselog

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"dirpx.dev/pulselog/apis"
	aqueue "dirpx.dev/pulselog/apis/queue"
	"dirpx.dev/pulselog/apis/diagnostics"
	"dirpx.dev/pulselog/apis/field"
	"dirpx.dev/pulselog/apis/level"
	"dirpx.dev/pulselog/apis/record"

	"dirpx.dev/pulselog/runtime/boundctx"
	"dirpx.dev/pulselog/runtime/dedupe"
	rqueue "dirpx.dev/pulselog/runtime/queue"
	"dirpx.dev/pulselog/runtime/pipeline/worker"
)

var (
	_ apis.Logger        = (*Logger)(nil)
	_ apis.FieldLogger   = (*Logger)(nil)
	_ apis.ContextLogger = (*Logger)(nil)
)

// core holds everything a Logger and every Logger derived from it via
// WithFields/WithContext share: the bounded queue, the pipeline worker
// goroutine, drop/dedupe accounting and shutdown state. It is never
// copied; every derived Logger holds the same *core pointer, so stopping
// one (StopAndDrain) stops all of them.
type core struct {
	name string
	cfg  Config

	queue     *rqueue.Ring
	drops     rqueue.DropAccounting
	dedupe    *dedupe.Window
	protected map[level.Level]bool

	worker       *worker.Worker
	workerCtx    context.Context
	workerCancel context.CancelFunc

	seq atomic.Int64

	stopOnce sync.Once
	stopped  atomic.Bool
}

// Logger is the facade's concrete apis.Logger implementation. A Logger
// owns a bounded queue, a pipeline worker goroutine and the drop/dedupe
// accounting for exactly one named logger instance; derived loggers
// (WithFields, WithContext) share all of that state (via *core) and
// differ only in the base fields/context they merge onto each emitted
// record.
type Logger struct {
	*core

	baseFields []field.Field
	baseCtx    context.Context
}

// newLogger wires together a fresh Logger from cfg: a runtime/queue.Ring
// admission point, a runtime/dedupe.Window, and a runtime/pipeline/worker.
// Worker consuming that queue, started immediately on its own goroutine
// (spec 4.7: the worker runs independent of any caller-owned executor).
func newLogger(name string, cfg Config) *Logger {
	cfg = cfg.withDefaults()

	q := rqueue.New(cfg.MaxQueueSize)

	dedupeCapacity := cfg.DedupeCapacity
	if cfg.ErrorDedupeWindow <= 0 {
		dedupeCapacity = 0
	}

	c := &core{
		name:      name,
		cfg:       cfg,
		queue:     q,
		dedupe:    dedupe.New(dedupeCapacity, cfg.ErrorDedupeWindow),
		protected: cfg.protectedSet(),
	}

	c.workerCtx, c.workerCancel = context.WithCancel(context.Background())
	c.worker = worker.New(worker.Config{
		BatchMaxSize:      cfg.BatchMaxSize,
		BatchTimeout:      cfg.BatchTimeout,
		PressureThreshold: cfg.PressureThreshold,
		Filters:           cfg.Filters,
		Enrich:            cfg.Enrich,
		Redactors:         cfg.Redactors,
		Processors:        cfg.Processors,
		SerializeInFlush:  cfg.SerializeInFlush,
		Encoder:           cfg.Encoder,
		Fanout:            cfg.Fanout,
		Diag:              cfg.Diag,
	}, q)

	go c.worker.Run(c.workerCtx)

	if cfg.DropPolicy == DropPolicyDropAfterWait {
		cfg.Diag.Emit(diagnostics.Event{
			Component: "facade." + name,
			Kind:      "drop_policy_wait_not_honored",
			Text:      "drop_after_wait_ms is accepted but not honored: this logger never blocks a producer, so it behaves as an immediate drop",
			At:        time.Now(),
			Data:      map[string]any{"configured_wait": cfg.DropPolicyWait.String()},
		})
	}

	return &Logger{core: c, baseCtx: context.Background()}
}

// Enabled implements apis.Logger.
func (l *Logger) Enabled(lvl level.Level) bool {
	return lvl >= l.cfg.Level
}

// Debug implements apis.Logger.
func (l *Logger) Debug(ctx context.Context, msg string, fields ...field.Field) {
	l.Log(ctx, level.Debug, msg, fields...)
}

// Info implements apis.Logger.
func (l *Logger) Info(ctx context.Context, msg string, fields ...field.Field) {
	l.Log(ctx, level.Info, msg, fields...)
}

// Warn implements apis.Logger.
func (l *Logger) Warn(ctx context.Context, msg string, fields ...field.Field) {
	l.Log(ctx, level.Warn, msg, fields...)
}

// Error implements apis.Logger.
func (l *Logger) Error(ctx context.Context, msg string, fields ...field.Field) {
	l.Log(ctx, level.Error, msg, fields...)
}

// Fatal implements apis.Logger. Unlike many synchronous loggers, Fatal
// here does not call os.Exit: terminating the process immediately would
// race the record past the async pipeline, defeating the delivery
// guarantees this package exists to provide. Instead Fatal enqueues the
// record at its (always-protected) severity and performs a best-effort
// synchronous Drain bounded by cfg.ShutdownTimeout before returning, so a
// caller that does choose to exit right after Fatal has given the
// pipeline a chance to flush first.
func (l *Logger) Fatal(ctx context.Context, msg string, fields ...field.Field) {
	l.Log(ctx, level.Fatal, msg, fields...)
	l.Drain(ctx, l.cfg.ShutdownTimeout)
}

// Log implements apis.Logger.
func (l *Logger) Log(ctx context.Context, lvl level.Level, msg string, fields ...field.Field) {
	l.logWithErr(ctx, lvl, msg, nil, fields)
}

// LogError behaves like Log but additionally attaches err to the record
// (spec 4.1): Record.Err is always set, and Record.Exception captures a
// bounded (kind, message, frames) triple via record.CaptureException — the
// stack trace itself is only walked when Config.CaptureFrames is set,
// since runtime.Callers is the expensive part of this path and most
// callers only want the error's kind/message attached. A nil err makes
// LogError equivalent to Log.
func (l *Logger) LogError(ctx context.Context, lvl level.Level, msg string, err error, fields ...field.Field) {
	l.logWithErr(ctx, lvl, msg, err, fields)
}

func (l *Logger) logWithErr(ctx context.Context, lvl level.Level, msg string, err error, fields []field.Field) {
	if !l.Enabled(lvl) {
		return
	}
	if ctx == nil {
		ctx = l.baseCtx
	}

	protected := l.protected[lvl]

	if lvl == level.Error || lvl == level.Fatal {
		key := dedupe.Key(lvl, msg)
		if !l.dedupe.Admit(key) {
			l.drops.DroppedByDedupe.Add(1)
			return
		}
	}

	merged := mergeFields(l.baseFields, boundctx.Extract(l.baseCtx), boundctx.Extract(ctx), fields)
	pack := l.cfg.ContextExtractor.Extract(ctx)

	r := record.NewRecord(time.Now().UTC(), lvl, msg, pack, merged, err)
	r.Logger = l.name
	r = r.WithSeq(l.seq.Add(1))

	if err != nil {
		var frames []string
		if l.cfg.CaptureFrames {
			frames = captureFrames(3)
		}
		r.Exception = record.CaptureException(fmt.Sprintf("%T", err), err.Error(), frames)
	}

	l.enqueue(r, protected)
}

// captureFrames walks the call stack starting skip frames above itself,
// formatting each as "function (file:line)", most recent call first, bounded
// by record.MaxExceptionFrames.
func captureFrames(skip int) []string {
	pcs := make([]uintptr, record.MaxExceptionFrames)
	n := runtime.Callers(skip, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	out := make([]string, 0, n)
	for {
		f, more := frames.Next()
		out = append(out, fmt.Sprintf("%s (%s:%d)", f.Function, f.File, f.Line))
		if !more {
			break
		}
	}
	return out
}

// WithFields implements apis.FieldLogger.
func (l *Logger) WithFields(fields ...field.Field) apis.Logger {
	if len(fields) == 0 {
		return l
	}
	derived := l.clone()
	derived.baseFields = append(append([]field.Field(nil), l.baseFields...), fields...)
	return derived
}

// WithContext implements apis.ContextLogger.
func (l *Logger) WithContext(ctx context.Context) apis.Logger {
	if ctx == nil {
		return l
	}
	derived := l.clone()
	derived.baseCtx = ctx
	return derived
}

// clone returns a shallow copy of l sharing the same *core (queue,
// worker, dedupe window, drop accounting, shutdown state); only the base
// fields/context differ between a logger and its WithFields/WithContext
// derivatives.
func (l *Logger) clone() *Logger {
	cp := *l
	return &cp
}

func (l *Logger) enqueue(r record.Record, protected bool) {
	if l.stopped.Load() {
		l.drops.DroppedDueToShutdown.Add(1)
		l.emitDrop("shutdown", r)
		return
	}

	reason := rqueue.AdmitWithPriority(l.queue, aqueue.Item{Record: r, Protected: protected}, &l.drops)
	switch reason {
	case rqueue.AdmitDroppedFull:
		l.emitDrop("queue_full", r)
	case rqueue.AdmitDroppedProtectedOverProtected:
		l.emitDrop("protected_over_full", r)
	}
}

func (l *Logger) emitDrop(reason string, r record.Record) {
	l.cfg.Diag.Emit(diagnostics.Event{
		Component: "facade." + l.name,
		Kind:      "drop_" + reason,
		Text:      "record dropped: " + reason,
		At:        time.Now(),
		Data: map[string]any{
			"level":   r.Level.String(),
			"message": r.Message,
		},
	})
}

// mergeFields concatenates field slices in increasing priority order: a
// later slice's keys win over an earlier slice's same-named keys at
// render time (record.CanonicalFields iterates Fields in order and lets
// later entries overwrite the map), matching Bind/WithFields semantics
// where the value closest to the emit call wins.
func mergeFields(groups ...[]field.Field) []field.Field {
	n := 0
	for _, g := range groups {
		n += len(g)
	}
	if n == 0 {
		return nil
	}
	out := make([]field.Field, 0, n)
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
