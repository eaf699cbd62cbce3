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
	"time"

	actx "dirpx.dev/pulselog/apis/context"
	"dirpx.dev/pulselog/apis/diagnostics"
	"dirpx.dev/pulselog/apis/level"
	"dirpx.dev/pulselog/apis/pipeline/stage"

	"dirpx.dev/pulselog/runtime/diagrate"
	"dirpx.dev/pulselog/runtime/encoder"
	"dirpx.dev/pulselog/runtime/pipeline/process"
	"dirpx.dev/pulselog/runtime/pipeline/worker"
)

// Config assembles every knob a Logger's worker needs: the configuration
// surface described in spec section 6, minus anything that belongs to
// config loading (out of scope here; callers are expected to have already
// turned a file/env source into a Config).
//
// Two Config values are considered the same configuration identity, for
// GetLogger's caching purposes, by reflect.DeepEqual. Fields holding a
// func value (an EnricherFunc-wrapped closure, for instance) never compare
// equal to themselves across calls even when logically identical; passing
// one means every GetLogger call with that name builds a fresh Logger.
// This is consistent with spec 4.9's "a configuration difference forces a
// new instance" and simply means closures are not a stable identity.
type Config struct {
	// Level is the minimum severity this logger will enqueue. Events below
	// Level are dropped by Enabled before an envelope is even built.
	Level level.Level

	// MaxQueueSize bounds the admission queue (default 10,000).
	MaxQueueSize int
	// BatchMaxSize bounds how many envelopes one worker flush drains
	// (default 256).
	BatchMaxSize int
	// BatchTimeout bounds how long the worker waits for the first item of
	// an otherwise-empty batch (default 250ms).
	BatchTimeout time.Duration
	// PressureThreshold, when nonzero, skips BatchTimeout entirely once
	// queue depth reaches this value, trading batch efficiency for
	// latency under backlog.
	PressureThreshold int

	// ProtectedLevels are never silently dropped by the bounded queue if
	// eviction of a lower-severity item can admit them. Error and Fatal
	// are always protected regardless of this set (spec 4.3).
	ProtectedLevels []level.Level

	// ErrorDedupeWindow suppresses repeated Error/Fatal emissions sharing
	// the same (level, message) pair within the window (default 5s). Zero
	// selects the default; only a negative value disables dedupe entirely.
	ErrorDedupeWindow time.Duration
	// DedupeCapacity bounds the number of distinct (level, message) keys
	// tracked at once (default 1024).
	DedupeCapacity int

	// Filters, Enrich, Redactors and Processors compose the staged
	// transformation pipeline (spec 4.6). Enrich is optional; a nil value
	// means envelopes pass through the enrich stage unchanged.
	Filters    []stage.Stage
	Enrich     worker.EnricherStage
	Redactors  []stage.Stage
	Processors *process.Chain

	// SerializeInFlush, when true, renders every surviving envelope to its
	// canonical JSON byte view inside the worker, before fan-out, so
	// sinks that only accept serialized payloads never pay encode cost
	// per sink.
	SerializeInFlush bool
	Encoder          encoder.Encoder

	// Fanout dispatches a flushed batch to the configured sinks (spec
	// 4.8). A nil Fanout means flushed envelopes are discarded, which is
	// only useful for tests exercising the pipeline stages in isolation.
	Fanout worker.Fanout

	// Diag receives internal diagnostic events (stage failures, circuit
	// transitions, drop reasons). Nil is treated as diagnostics.NopSink{}.
	Diag diagnostics.Sink

	// ContextExtractor builds the well-known context Pack attached to
	// every Record from the caller-supplied context.Context. Nil yields
	// an always-empty Pack.
	ContextExtractor actx.Extractor

	// ShutdownTimeout bounds StopAndDrain's wait for the worker to finish
	// its trailing drain (default 3s, per spec 4.9/5).
	ShutdownTimeout time.Duration

	// CaptureFrames enables runtime.Callers stack capture in LogError
	// (spec 4.1). Kind and message are always attached to a record built
	// from a non-nil error; this only gates the more expensive frame
	// walk. Off by default.
	CaptureFrames bool

	// DropPolicy controls what the admission queue does once it is full
	// (spec 6). DropPolicyDropAfterWait is accepted but not honored as a
	// blocking wait: this logger's whole design is a producer that never
	// blocks, so a wait variant degrades to an immediate drop, and
	// newLogger emits a one-shot diagnostic saying so.
	DropPolicy DropPolicy
	// DropPolicyWait is the wait duration recorded alongside
	// DropPolicyDropAfterWait for diagnostic purposes; it is never
	// actually waited on.
	DropPolicyWait time.Duration
}

// DropPolicy selects the admission queue's full-queue behavior (spec 6).
type DropPolicy uint8

const (
	// DropPolicyDrop drops the incoming record immediately when the
	// queue is full and eviction cannot make room (the only behavior
	// this package actually implements).
	DropPolicyDrop DropPolicy = iota
	// DropPolicyDropAfterWait asks for a bounded blocking wait before
	// dropping. This logger never blocks a producer, so it is honored as
	// DropPolicyDrop with a startup diagnostic noting the gap.
	DropPolicyDropAfterWait
)

// withDefaults returns a copy of c with every zero-valued tunable replaced
// by its spec-mandated default. It also wraps whatever diagnostics sink
// the caller configured in a runtime/diagrate.Limiter (spec 6: the
// diagnostics path itself must be rate-limited and de-duplicated per
// component, so a burst of drops cannot flood it) and points
// c.Processors at that same wrapped sink, so the worker's stage
// failures, the process chain's processor failures, and the facade's own
// drop diagnostics all share one set of per-component buckets instead of
// each independently re-deriving a limit.
func (c Config) withDefaults() Config {
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 10_000
	}
	if c.BatchMaxSize <= 0 {
		c.BatchMaxSize = 256
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 250 * time.Millisecond
	}
	if c.ErrorDedupeWindow == 0 {
		c.ErrorDedupeWindow = 5 * time.Second
	}
	if c.DedupeCapacity <= 0 {
		c.DedupeCapacity = 1024
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 3 * time.Second
	}
	if c.Diag == nil {
		c.Diag = diagnostics.NopSink{}
	}
	if _, alreadyLimited := c.Diag.(*diagrate.Limiter); !alreadyLimited {
		c.Diag = diagrate.NewDefault(c.Diag)
	}
	if c.Processors != nil {
		c.Processors.Diag = c.Diag
	}
	if c.ContextExtractor == nil {
		c.ContextExtractor = actx.Static(actx.Empty())
	}
	return c
}

func (c Config) protectedSet() map[level.Level]bool {
	set := map[level.Level]bool{level.Error: true, level.Fatal: true}
	for _, lvl := range c.ProtectedLevels {
		set[lvl] = true
	}
	return set
}
