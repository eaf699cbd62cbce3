package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"dirpx.dev/pulselog/apis/diagnostics"
	"dirpx.dev/pulselog/apis/record"
)

func baseRecord() record.Record {
	return record.Record{Message: "x", Time: time.Unix(0, 0)}
}

func TestPool_MergesFieldsFromAllEnrichers(t *testing.T) {
	a := EnricherFunc{EnricherName: "a", Fn: func(_ context.Context, _ record.Record) (map[string]any, error) {
		return map[string]any{"host": "node-1", "shared": "from-a"}, nil
	}}
	b := EnricherFunc{EnricherName: "b", Fn: func(_ context.Context, _ record.Record) (map[string]any, error) {
		return map[string]any{"pid": 42, "shared": "from-b"}, nil
	}}

	pool := NewPool([]Enricher{a, b}, 2, diagnostics.NopSink{})
	defer pool.Stop()

	out := pool.Process(context.Background(), baseRecord())
	merged := out.CanonicalFields()

	if merged["host"] != "node-1" {
		t.Fatalf("host = %v, want node-1", merged["host"])
	}
	if merged["pid"] != 42 {
		t.Fatalf("pid = %v, want 42", merged["pid"])
	}
	// b is configured after a, so its value must win the collision.
	if merged["shared"] != "from-b" {
		t.Fatalf("shared = %v, want from-b (later enricher wins)", merged["shared"])
	}
}

func TestPool_FailingEnricherContributesNothingButDoesNotDropEnvelope(t *testing.T) {
	ok := EnricherFunc{EnricherName: "ok", Fn: func(_ context.Context, _ record.Record) (map[string]any, error) {
		return map[string]any{"ok_field": true}, nil
	}}
	broken := EnricherFunc{EnricherName: "broken", Fn: func(_ context.Context, _ record.Record) (map[string]any, error) {
		return nil, errors.New("boom")
	}}

	var diagEvents []diagnostics.Event
	diag := diagnostics.Sink(recordingSink{events: &diagEvents})

	pool := NewPool([]Enricher{ok, broken}, 2, diag)
	defer pool.Stop()

	out := pool.Process(context.Background(), baseRecord())
	merged := out.CanonicalFields()

	if merged["ok_field"] != true {
		t.Fatalf("expected ok enricher's field to survive, got %v", merged["ok_field"])
	}
	if out.Message != "x" {
		t.Fatalf("expected envelope to survive a failing enricher")
	}
	if len(diagEvents) != 1 {
		t.Fatalf("expected exactly one diagnostic for the failing enricher, got %d", len(diagEvents))
	}
}

func TestPool_NoEnrichersIsNoop(t *testing.T) {
	pool := NewPool(nil, 2, diagnostics.NopSink{})
	defer pool.Stop()

	in := baseRecord()
	out := pool.Process(context.Background(), in)
	if len(out.Fields) != 0 {
		t.Fatalf("expected no fields added when no enrichers are configured")
	}
}

type recordingSink struct {
	events *[]diagnostics.Event
}

func (r recordingSink) Emit(e diagnostics.Event) {
	*r.events = append(*r.events, e)
}
