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

// Package diagnostics defines the internal self-observability surface
// (spec section 6, "Diagnostics output"): one event per internal
// occurrence (worker error, plugin failure, circuit transition, drop due
// to dedupe/full), tagged by component, emitted to a configured sink.
package diagnostics

import "time"

// Event is a single internal diagnostic occurrence.
//
// Field names avoid colliding with the accessor methods below (Timestamp,
// Level, Message, Fields) so Event can satisfy runtime/encoder/internalzap's
// duck-typed extraction interfaces directly.
type Event struct {
	// Component names the part of the runtime that produced the event
	// (e.g. "queue", "breaker", "filter.rate_limit", "redact.field_mask").
	Component string
	// Kind is a short stable machine-readable tag (e.g. "drop_full",
	// "circuit_open", "stage_panic").
	Kind string
	// Text is a human-readable description.
	Text string
	// At is when the event occurred.
	At time.Time
	// Data carries structured context about the event.
	Data map[string]any
}

// Timestamp satisfies the duck-typed extraction contract used by
// runtime/encoder/internalzap so diagnostics events reuse the same
// zap-backed encoding path as envelopes.
func (e Event) Timestamp() time.Time { return e.At }

// Level satisfies the duck-typed string-level extraction contract; internal
// diagnostics are not severities, so they are rendered at "info".
func (e Event) Level() string { return "info" }

// Message satisfies the duck-typed message extraction contract.
func (e Event) Message() string { return e.Text }

// Fields satisfies the duck-typed field extraction contract.
func (e Event) Fields() map[string]any {
	out := make(map[string]any, len(e.Data)+2)
	out["component"] = e.Component
	out["kind"] = e.Kind
	for k, v := range e.Data {
		out[k] = v
	}
	return out
}

// Sink receives diagnostic events. Implementations must not block the
// caller for long (spec requires diagnostics to be best-effort and
// rate-limited); runtime/diagcodec.WriterSink provides an io.Writer-backed
// implementation.
type Sink interface {
	Emit(e Event)
}

// NopSink discards every event. It is the default when diagnostics are
// disabled in configuration.
type NopSink struct{}

// Emit implements Sink by discarding e.
func (NopSink) Emit(Event) {}
