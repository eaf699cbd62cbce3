package fanout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apisbreaker "dirpx.dev/pulselog/apis/breaker"
	"dirpx.dev/pulselog/apis/level"
	"dirpx.dev/pulselog/apis/record"

	"dirpx.dev/pulselog/runtime/fallback"
	"dirpx.dev/pulselog/runtime/pipeline/worker"
)

// alwaysAllow is a no-op breaker that never trips, for tests that are not
// exercising circuit-breaker behavior.
type alwaysAllow struct{ name string }

func (a alwaysAllow) Allow(context.Context) (bool, func(bool)) {
	return true, func(bool) {}
}
func (a alwaysAllow) State() apisbreaker.State { return apisbreaker.Closed }
func (a alwaysAllow) Name() string             { return a.name }

// neverAllow simulates an open circuit.
type neverAllow struct{ name string }

func (a neverAllow) Allow(context.Context) (bool, func(bool)) {
	return false, func(bool) {}
}
func (a neverAllow) State() apisbreaker.State { return apisbreaker.Open }
func (a neverAllow) Name() string             { return a.name }

type recordingSink struct {
	mu      sync.Mutex
	name    string
	writes  [][]byte
	failing bool
}

func (s *recordingSink) Name() string { return s.name }
func (s *recordingSink) Write(_ context.Context, entry []byte) error {
	if s.failing {
		return errors.New("simulated write failure")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(entry))
	copy(cp, entry)
	s.writes = append(s.writes, cp)
	return nil
}
func (s *recordingSink) Flush(context.Context) error { return nil }
func (s *recordingSink) Close(context.Context) error { return nil }

func (s *recordingSink) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func envelope(msg string, lvl level.Level) worker.Envelope {
	return worker.Envelope{
		Record:     record.Record{Message: msg, Level: lvl, Time: time.Now()},
		Serialized: []byte(`{"message":"` + msg + `"}`),
	}
}

func TestFanout_GlobalModeWritesToEveryConfiguredSink(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}
	sinks := map[string]GuardedSink{
		"a": {Sink: a, Breaker: alwaysAllow{"a"}},
		"b": {Sink: b, Breaker: alwaysAllow{"b"}},
	}
	f, err := New(Config{Mode: GlobalFanout}, sinks, []string{"a", "b"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	f.Dispatch(context.Background(), []worker.Envelope{envelope("hello", level.Info)})

	if a.writeCount() != 1 || b.writeCount() != 1 {
		t.Fatalf("expected both sinks to receive the envelope: a=%d b=%d", a.writeCount(), b.writeCount())
	}
}

func TestFanout_LevelRoutingFirstMatchWins(t *testing.T) {
	errSink := &recordingSink{name: "errors"}
	infoSink := &recordingSink{name: "info"}
	sinks := map[string]GuardedSink{
		"errors": {Sink: errSink, Breaker: alwaysAllow{"errors"}},
		"info":   {Sink: infoSink, Breaker: alwaysAllow{"info"}},
	}
	f, err := New(Config{
		Mode: LevelRouting,
		Rules: []Rule{
			{Levels: []level.Level{level.Error, level.Fatal}, Sinks: []string{"errors"}},
			{Levels: []level.Level{level.Info, level.Debug}, Sinks: []string{"info"}},
		},
	}, sinks, []string{"errors", "info"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	f.Dispatch(context.Background(), []worker.Envelope{
		envelope("boom", level.Error),
		envelope("hi", level.Info),
	})

	if errSink.writeCount() != 1 {
		t.Fatalf("errors sink writes = %d, want 1", errSink.writeCount())
	}
	if infoSink.writeCount() != 1 {
		t.Fatalf("info sink writes = %d, want 1", infoSink.writeCount())
	}
}

func TestFanout_UnmatchedLevelRoutesToDefaultSinks(t *testing.T) {
	fallbackSink := &recordingSink{name: "fallback"}
	sinks := map[string]GuardedSink{
		"fallback": {Sink: fallbackSink, Breaker: alwaysAllow{"fallback"}},
	}
	f, err := New(Config{
		Mode:         LevelRouting,
		Rules:        []Rule{{Levels: []level.Level{level.Error}, Sinks: []string{"nonexistent"}}},
		DefaultSinks: []string{"fallback"},
	}, sinks, []string{"fallback"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	f.Dispatch(context.Background(), []worker.Envelope{envelope("hi", level.Info)})

	if fallbackSink.writeCount() != 1 {
		t.Fatalf("expected default sink to receive unmatched envelope")
	}
}

func TestFanout_EmptyDefaultSinksCountsAsUnrouted(t *testing.T) {
	f, err := New(Config{Mode: LevelRouting}, map[string]GuardedSink{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	f.Dispatch(context.Background(), []worker.Envelope{envelope("hi", level.Info)})

	_, unrouted, _, _ := f.Metrics().Snapshot()
	if unrouted != 1 {
		t.Fatalf("unrouted = %d, want 1", unrouted)
	}
}

func TestFanout_OpenCircuitRoutesToPerSinkFallback(t *testing.T) {
	primary := &recordingSink{name: "primary"}
	fb := &recordingSink{name: "fb"}
	sinks := map[string]GuardedSink{
		"primary": {Sink: primary, Breaker: neverAllow{"primary"}, FallbackSink: "fb"},
		"fb":      {Sink: fb, Breaker: alwaysAllow{"fb"}},
	}
	f, err := New(Config{Mode: GlobalFanout}, sinks, []string{"primary"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	f.Dispatch(context.Background(), []worker.Envelope{envelope("hi", level.Info)})

	if primary.writeCount() != 0 {
		t.Fatalf("primary sink should not have been written to while its circuit is open")
	}
	if fb.writeCount() != 1 {
		t.Fatalf("expected the per-sink fallback to receive the envelope")
	}
}

func TestFanout_FailingSinkWithNoFallbackUsesGlobalFallback(t *testing.T) {
	var buf safeBuffer
	gw := fallback.New(fallback.WithOutput(&buf))

	failing := &recordingSink{name: "primary", failing: true}
	sinks := map[string]GuardedSink{
		"primary": {Sink: failing, Breaker: alwaysAllow{"primary"}},
	}
	f, err := New(Config{Mode: GlobalFanout, GlobalFallback: gw}, sinks, []string{"primary"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	f.Dispatch(context.Background(), []worker.Envelope{envelope("hi", level.Info)})

	if buf.Len() == 0 {
		t.Fatalf("expected the global fallback writer to receive the failed envelope")
	}
}

func TestFanout_NoGlobalFallbackConfiguredCountsDroppedNoFallback(t *testing.T) {
	failing := &recordingSink{name: "primary", failing: true}
	sinks := map[string]GuardedSink{
		"primary": {Sink: failing, Breaker: alwaysAllow{"primary"}},
	}
	f, err := New(Config{Mode: GlobalFanout}, sinks, []string{"primary"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	f.Dispatch(context.Background(), []worker.Envelope{envelope("hi", level.Info)})

	_, _, droppedNoFallback, _ := f.Metrics().Snapshot()
	if droppedNoFallback != 1 {
		t.Fatalf("droppedNoFallback = %d, want 1", droppedNoFallback)
	}
}

// safeBuffer is a minimal concurrency-safe io.Writer for tests.
type safeBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *safeBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}
