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

package record

import (
	"fmt"
	"strings"
	"time"

	"dirpx.dev/pulselog/apis/context"
	"dirpx.dev/pulselog/apis/field"
	"dirpx.dev/pulselog/apis/level"
)

// Record is the canonical log event shape inside dlog.
//
// Implementations are free to treat Record as immutable and use copy-on-write
// when plugins need to modify fields.
type Record struct {
	// Seq is a monotonically increasing sequence number assigned at
	// emission time, within a single logger instance. The worker never
	// reorders by Seq; it exists so batches and diagnostics can assert
	// admission order.
	Seq int64
	// Time is the event time (UTC is recommended but not enforced here)
	Time time.Time
	// Level defines the severity
	Level level.Level
	// Logger is the name of the logger instance that produced this record.
	Logger string
	// Message is the human-readable text
	Message string
	// Ctx is the well-known, pre-extracted context (trace/correlation/node/...)
	Ctx context.Pack
	// Fields is the structured payload (caller-supplied or plugin-enriched)
	Fields []field.Field
	// Err is the original error, if any (implementations may project it via ErrorAdapter)
	Err error
	// Exception is a captured (kind, message, frames) triple, set when the
	// emitter attached an error and exception capture is enabled.
	Exception *Exception
}

// NewRecord builds a Record with the required parts.
// This is a convenience constructor for code that wants an explicit shape.
// It does NOT perform deep copies of fields; callers should pass owned slices.
func NewRecord(
	t time.Time,
	lvl level.Level,
	msg string,
	ctx context.Pack,
	fields []field.Field,
	err error,
) Record {
	return Record{
		Time:    t,
		Level:   lvl,
		Message: msg,
		Ctx:     ctx,
		Fields:  fields,
		Err:     err,
	}
}

// Validate checks that the record has a valid level and a non-zero timestamp.
// This is a contract-level check; runtime implementations may add stricter rules
// (e.g. require UTC, require non-empty message, limit field counts).
func (r Record) Validate() error {
	if err := r.Level.Validate(); err != nil {
		return fmt.Errorf("dlog: invalid record level: %w", err)
	}
	if r.Time.IsZero() {
		return fmt.Errorf("dlog: record time is zero")
	}
	// Ctx and Fields are allowed to be empty.
	return nil
}

// WithFields returns a shallow copy of the record with additional fields appended.
// This is useful for plugins that want to enrich the record while keeping the
// original value semantics.
//
// NOTE: this helper lives in apis because enriching records is a very common
// operation for all implementations; keeping it here ensures consistent behavior.
func (r Record) WithFields(extra ...field.Field) Record {
	if len(extra) == 0 {
		return r
	}
	// shallow copy
	out := r
	out.Fields = append(append([]field.Field(nil), r.Fields...), extra...)
	return out
}

// WithError returns a shallow copy of the record with a new error attached.
func (r Record) WithError(err error) Record {
	out := r
	out.Err = err
	return out
}

// WithSeq returns a shallow copy of the record with the sequence number set.
func (r Record) WithSeq(seq int64) Record {
	out := r
	out.Seq = seq
	return out
}

// CanonicalFields renders the record as the canonical envelope map described
// by the external JSON form: snake_case keys, well-known context fields
// promoted to the top level, exception nested under "exception". Keys
// present in r.Fields win over same-named promoted context keys, matching
// the emit-time merge rule (caller fields override context fields).
func (r Record) CanonicalFields() map[string]any {
	out := make(map[string]any, 8+len(r.Fields))
	out["timestamp"] = r.Time.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	out["level"] = strings.ToUpper(r.Level.String())
	out["logger"] = r.Logger
	out["message"] = r.Message

	if r.Ctx.CorrelationID != "" {
		out["correlation_id"] = r.Ctx.CorrelationID
	}
	if r.Ctx.TraceID != "" {
		out["trace_id"] = r.Ctx.TraceID
	}
	if r.Ctx.SpanID != "" {
		out["span_id"] = r.Ctx.SpanID
	}
	if r.Ctx.Service != "" {
		out["service"] = r.Ctx.Service
	}
	if r.Ctx.Version != "" {
		out["version"] = r.Ctx.Version
	}
	if r.Ctx.Env != "" {
		out["env"] = r.Ctx.Env
	}
	if r.Ctx.NodeID != "" {
		out["node_id"] = r.Ctx.NodeID
	}
	if r.Ctx.Instance != "" {
		out["instance"] = r.Ctx.Instance
	}
	if r.Ctx.Region != "" {
		out["region"] = r.Ctx.Region
	}
	if r.Ctx.Component != "" {
		out["component"] = r.Ctx.Component
	}
	if r.Ctx.Subsystem != "" {
		out["subsystem"] = r.Ctx.Subsystem
	}
	if r.Ctx.Operation != "" {
		out["operation"] = r.Ctx.Operation
	}

	if r.Exception != nil {
		out["exception"] = map[string]any{
			"type":    r.Exception.Kind,
			"message": r.Exception.Message,
			"stack":   r.Exception.Frames,
		}
	}

	for _, f := range r.Fields {
		if f.Key == "" {
			continue
		}
		out[f.Key] = f.Value
	}
	return out
}

