package diagcodec

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"dirpx.dev/pulselog/apis/diagnostics"

	"dirpx.dev/pulselog/runtime/encoder"
)

func TestEncoder_EncodesEventViaDuckTypedExtraction(t *testing.T) {
	enc := New(encoder.Options{})

	ev := diagnostics.Event{
		Component: "breaker.primary",
		Kind:      "circuit_open",
		Text:      "circuit tripped after 5 consecutive failures",
		At:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Data:      map[string]any{"consecutive_failures": 5},
	}

	var buf bytes.Buffer
	if err := enc.Encode(ev, &buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode output: %v (output=%q)", err, buf.String())
	}

	if decoded["message"] != ev.Text {
		t.Fatalf("message = %v, want %q", decoded["message"], ev.Text)
	}
	if decoded["level"] != "info" {
		t.Fatalf("level = %v, want info", decoded["level"])
	}
	if decoded["component"] != "breaker.primary" {
		t.Fatalf("component = %v, want breaker.primary", decoded["component"])
	}
	if decoded["kind"] != "circuit_open" {
		t.Fatalf("kind = %v, want circuit_open", decoded["kind"])
	}
	if decoded["consecutive_failures"] != float64(5) {
		t.Fatalf("consecutive_failures = %v, want 5", decoded["consecutive_failures"])
	}
}

func TestWriterSink_EmitWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf, New(encoder.Options{}))

	sink.Emit(diagnostics.Event{Component: "queue", Kind: "drop_full", Text: "queue full"})
	sink.Emit(diagnostics.Event{Component: "queue", Kind: "drop_full", Text: "queue full again"})

	lines := bytes.Split(bytes.TrimRight(buf.Bytes(), "\n"), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d (%q)", len(lines), buf.String())
	}
}
