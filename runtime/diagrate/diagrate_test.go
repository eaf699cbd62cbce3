package diagrate

import (
	"testing"
	"time"

	"dirpx.dev/pulselog/apis/diagnostics"
)

type recordingSink struct {
	events []diagnostics.Event
}

func (s *recordingSink) Emit(e diagnostics.Event) { s.events = append(s.events, e) }

func TestLimiter_AdmitsUpToBurstThenDrops(t *testing.T) {
	rec := &recordingSink{}
	l := New(rec, 0, 2, 0)

	for i := 0; i < 3; i++ {
		l.Emit(diagnostics.Event{Component: "queue", Kind: "drop_full", Text: "queue full"})
	}

	if len(rec.events) != 2 {
		t.Fatalf("expected burst of 2 admitted, got %d", len(rec.events))
	}
	if l.Dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", l.Dropped())
	}
}

func TestLimiter_PartitionsByComponent(t *testing.T) {
	rec := &recordingSink{}
	l := New(rec, 0, 1, 0)

	l.Emit(diagnostics.Event{Component: "queue", Kind: "drop_full", Text: "a"})
	l.Emit(diagnostics.Event{Component: "breaker", Kind: "circuit_open", Text: "b"})
	l.Emit(diagnostics.Event{Component: "queue", Kind: "drop_full", Text: "a"})

	if len(rec.events) != 2 {
		t.Fatalf("expected one admitted event per component, got %d", len(rec.events))
	}
	if l.Dropped() != 1 {
		t.Fatalf("expected the second queue event to be dropped, got %d dropped", l.Dropped())
	}
}

func TestLimiter_AnnotatesSuppressedRepeatsOnNextAdmit(t *testing.T) {
	rec := &recordingSink{}
	l := New(rec, 50, 1, 0)

	e := diagnostics.Event{Component: "queue", Kind: "drop_full", Text: "same"}
	l.Emit(e) // consumes the single burst token
	l.Emit(e) // same key, bucket empty: suppressed
	l.Emit(e) // same key, bucket empty: suppressed

	time.Sleep(30 * time.Millisecond) // let the bucket refill at least one token
	l.Emit(e)

	if len(rec.events) != 2 {
		t.Fatalf("expected exactly 2 admitted events, got %d", len(rec.events))
	}
	if l.Dropped() != 2 {
		t.Fatalf("expected 2 suppressed repeats, got %d", l.Dropped())
	}
	got, _ := rec.events[1].Data["suppressed_repeats"].(int64)
	if got != 2 {
		t.Fatalf("suppressed_repeats = %v, want 2", rec.events[1].Data["suppressed_repeats"])
	}
}

func TestNewDefault_UsesFacadeDefaults(t *testing.T) {
	rec := &recordingSink{}
	l := NewDefault(rec)
	if l.ratePerSec != defaultRatePerSec || l.burst != defaultBurst {
		t.Fatalf("NewDefault did not apply facade defaults: rate=%v burst=%v", l.ratePerSec, l.burst)
	}
}
