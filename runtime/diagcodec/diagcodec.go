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

// Package diagcodec encodes apis/diagnostics.Event values using the same
// zap-backed machinery runtime/encoder/json uses for records, but through
// runtime/encoder/internalzap's duck-typed extraction path rather than
// reading Record's fields directly: Event's accessor methods (Timestamp,
// Level, Message, Fields) exist specifically to be discovered this way.
package diagcodec

import (
	"io"
	"sync"

	"dirpx.dev/pulselog/apis/diagnostics"

	"dirpx.dev/pulselog/runtime/encoder"
	"dirpx.dev/pulselog/runtime/encoder/internalzap"
	"go.uber.org/zap/zapcore"
)

const (
	encoderName = "diagnostics-json(zap)"
	contentType = "application/json"
)

// Encoder serializes diagnostics.Event values as single-line JSON.
//
// Concurrency: like runtime/encoder/json.Encoder, the prototype
// zapcore.Encoder is cloned on every call, so Encoder is safe for
// concurrent use.
type Encoder struct {
	base       zapcore.Encoder
	lineEnding string
}

var _ interface {
	Encode(e diagnostics.Event, w io.Writer) error
} = (*Encoder)(nil)

// New constructs a diagnostics encoder. Options behave the same as
// runtime/encoder/json.New's: AppendNewline controls trailing '\n'
// framing, Pretty and EscapeHTML are no-ops.
func New(opt encoder.Options) *Encoder {
	cfg := internalzap.DefaultEncoderConfig()
	return &Encoder{
		base:       zapcore.NewJSONEncoder(cfg),
		lineEnding: internalzap.PickLineEnding(opt.AppendNewline),
	}
}

// Name returns a short, stable identifier for this encoder.
func (e *Encoder) Name() string { return encoderName }

// ContentType returns the MIME type of the encoded output.
func (e *Encoder) ContentType() string { return contentType }

// Encode extracts ev's timestamp, level, message and fields through
// internalzap's duck-typed interfaces (exercising the same hasTS/
// hasStringLevel/hasMsg/hasFields contracts the teacher wrote for
// concrete record types that, per a latent bug fixed in
// runtime/encoder/json and runtime/encoder/console, could never actually
// satisfy them) and writes one JSON line to w.
func (e *Encoder) Encode(ev diagnostics.Event, w io.Writer) error {
	zenc := e.base.Clone()

	var v any = ev
	entry := zapcore.Entry{
		Time:    internalzap.ExtractTimestamp(v),
		Level:   internalzap.ExtractZapLevel(v),
		Message: internalzap.ExtractMessage(v),
	}
	fields := internalzap.ToZapFields(internalzap.FilterReserved(internalzap.ExtractFields(v)))

	buf, err := zenc.EncodeEntry(entry, fields)
	if err != nil {
		return err
	}

	out := internalzap.NormalizeLineEnding(buf.Bytes(), e.lineEnding)
	_, werr := w.Write(out)
	buf.Free()
	return werr
}

// WriterSink adapts an Encoder and an io.Writer into a diagnostics.Sink.
// Writes are serialized so lines from concurrent Emit calls never
// interleave; encoding or write errors are swallowed, matching
// diagnostics' best-effort contract (spec 6: diagnostics must never
// become a new source of blocking or failure).
type WriterSink struct {
	enc *Encoder
	out io.Writer
	mu  sync.Mutex
}

// NewWriterSink constructs a WriterSink writing encoded events to out.
func NewWriterSink(out io.Writer, enc *Encoder) *WriterSink {
	return &WriterSink{enc: enc, out: out}
}

// Emit implements diagnostics.Sink.
func (s *WriterSink) Emit(e diagnostics.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.enc.Encode(e, s.out)
}
