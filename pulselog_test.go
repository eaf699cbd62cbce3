package pulselog

import (
	"context"
	"sync"
	"testing"
	"time"

	apisbreaker "dirpx.dev/pulselog/apis/breaker"
	"dirpx.dev/pulselog/apis/field"
	"dirpx.dev/pulselog/apis/level"

	"dirpx.dev/pulselog/runtime/pipeline/worker"
)

// capturingFanout records every envelope batch handed to it by the
// worker, standing in for runtime/sink/fanout.Fanout in tests that only
// care about what reaches the end of the pipeline.
type capturingFanout struct {
	mu    sync.Mutex
	batch [][]worker.Envelope
}

func (c *capturingFanout) Dispatch(_ context.Context, batch []worker.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]worker.Envelope, len(batch))
	copy(cp, batch)
	c.batch = append(c.batch, cp)
}

func (c *capturingFanout) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, b := range c.batch {
		for _, e := range b {
			out = append(out, e.Record.Message)
		}
	}
	return out
}

// healthReportingFanout pairs capturingFanout's Dispatch with a
// caller-controlled SinkHealth result, standing in for
// runtime/sink/fanout.Fanout's SinkHealth method.
type healthReportingFanout struct {
	capturingFanout
	sinks map[string]apisbreaker.State
}

func (c *healthReportingFanout) SinkHealth() map[string]apisbreaker.State {
	return c.sinks
}

func (c *capturingFanout) fields() [][]field.Field {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out [][]field.Field
	for _, b := range c.batch {
		for _, e := range b {
			out = append(out, e.Record.Fields)
		}
	}
	return out
}

// waitFor polls cond every couple milliseconds up to timeout, failing the
// test if cond never becomes true. Emission is asynchronous by design, so
// assertions on pipeline output must poll rather than read immediately.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %s", timeout)
	}
}

func testConfig(fo worker.Fanout) Config {
	return Config{
		Level:        level.Debug,
		MaxQueueSize: 64,
		BatchMaxSize: 32,
		BatchTimeout: 5 * time.Millisecond,
		Fanout:       fo,
	}
}

func TestLogger_EnabledRespectsConfiguredLevel(t *testing.T) {
	fo := &capturingFanout{}
	cfg := testConfig(fo)
	cfg.Level = level.Warn
	l := newLogger("threshold", cfg)
	defer l.StopAndDrain(context.Background(), time.Second)

	if l.Enabled(level.Info) {
		t.Fatalf("Info should not be enabled when Level is Warn")
	}
	if !l.Enabled(level.Error) {
		t.Fatalf("Error should be enabled when Level is Warn")
	}
}

func TestLogger_InfoReachesFanoutAsynchronously(t *testing.T) {
	fo := &capturingFanout{}
	l := newLogger("emit", testConfig(fo))
	defer l.StopAndDrain(context.Background(), time.Second)

	l.Info(context.Background(), "hello world", field.New("k", "v"))

	waitFor(t, time.Second, func() bool {
		msgs := fo.messages()
		return len(msgs) == 1 && msgs[0] == "hello world"
	})
}

func TestLogger_BelowThresholdNeverEnqueued(t *testing.T) {
	fo := &capturingFanout{}
	cfg := testConfig(fo)
	cfg.Level = level.Error
	l := newLogger("filtered", cfg)

	l.Info(context.Background(), "should not appear")
	res := l.StopAndDrain(context.Background(), time.Second)

	if len(fo.messages()) != 0 {
		t.Fatalf("expected no messages to reach fanout, got %v", fo.messages())
	}
	if res.FlushedEnvelopes != 0 {
		t.Fatalf("FlushedEnvelopes = %d, want 0", res.FlushedEnvelopes)
	}
}

func TestLogger_WithFieldsMergesBeforeCallerFields(t *testing.T) {
	fo := &capturingFanout{}
	l := newLogger("withfields", testConfig(fo))
	defer l.StopAndDrain(context.Background(), time.Second)

	derived := l.WithFields(field.New("service", "router"))
	derived.Info(context.Background(), "started", field.New("service", "override"))

	waitFor(t, time.Second, func() bool { return len(fo.fields()) == 1 })

	fields := fo.fields()[0]
	var last string
	for _, f := range fields {
		if f.Key == "service" {
			last = f.Value.(string)
		}
	}
	if last != "override" {
		t.Fatalf("expected caller field to win over WithFields, got %q", last)
	}
}

func TestLogger_BoundContextFieldsSurviveToEmission(t *testing.T) {
	fo := &capturingFanout{}
	l := newLogger("bound", testConfig(fo))
	defer l.StopAndDrain(context.Background(), time.Second)

	ctx := Bind(context.Background(), field.New("request_id", "abc-123"))
	l.Info(ctx, "handled request")

	waitFor(t, time.Second, func() bool { return len(fo.fields()) == 1 })

	fields := fo.fields()[0]
	found := false
	for _, f := range fields {
		if f.Key == "request_id" && f.Value == "abc-123" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected bound context field to reach the emitted record, got %v", fields)
	}
}

func TestLogger_ErrorDedupeSuppressesRepeatsWithinWindow(t *testing.T) {
	fo := &capturingFanout{}
	cfg := testConfig(fo)
	cfg.ErrorDedupeWindow = time.Minute
	l := newLogger("dedupe", cfg)
	defer l.StopAndDrain(context.Background(), time.Second)

	for i := 0; i < 5; i++ {
		l.Error(context.Background(), "disk write failed")
	}

	time.Sleep(50 * time.Millisecond)
	msgs := fo.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected dedupe to suppress repeats, got %d messages: %v", len(msgs), msgs)
	}
}

func TestLogger_StopAndDrainIsIdempotent(t *testing.T) {
	fo := &capturingFanout{}
	l := newLogger("idempotent", testConfig(fo))

	l.Info(context.Background(), "one")
	first := l.StopAndDrain(context.Background(), time.Second)
	second := l.StopAndDrain(context.Background(), time.Second)

	if !first.Complete || !second.Complete {
		t.Fatalf("expected both drains to report complete, got %+v and %+v", first, second)
	}
}

func TestGetLogger_CachesByNameAndConfigIdentity(t *testing.T) {
	fo := &capturingFanout{}
	cfg := testConfig(fo)

	a := GetLogger("cached-logger", cfg)
	b := GetLogger("cached-logger", cfg)
	if a != b {
		t.Fatalf("expected GetLogger to return the cached instance for an unchanged config")
	}
	defer a.StopAndDrain(context.Background(), time.Second)

	cfg2 := cfg
	cfg2.Level = level.Error
	c := GetLogger("cached-logger", cfg2)
	if c == a {
		t.Fatalf("expected GetLogger to build a new instance when config differs")
	}
	defer c.StopAndDrain(context.Background(), time.Second)
}

func TestLogger_DrainReportsQueueHighWatermark(t *testing.T) {
	fo := &capturingFanout{}
	l := newLogger("watermark", testConfig(fo))
	defer l.StopAndDrain(context.Background(), time.Second)

	for i := 0; i < 10; i++ {
		l.Info(context.Background(), "burst")
	}

	res := l.Drain(context.Background(), time.Second)
	if res.QueueHighWatermark == 0 {
		t.Fatalf("expected a nonzero high watermark after a burst of emissions")
	}
}

func TestLogger_HealthReportsDegradedUnderQueuePressure(t *testing.T) {
	fo := &capturingFanout{}
	cfg := testConfig(fo)
	cfg.MaxQueueSize = 10
	cfg.BatchTimeout = time.Hour // keep the worker from draining during the check
	l := newLogger("health", cfg)
	defer l.StopAndDrain(context.Background(), time.Second)

	checker := l.Health()

	res, err := checker.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !res.OK() {
		t.Fatalf("expected a healthy result on an empty queue, got %+v", res)
	}

	for i := 0; i < 9; i++ {
		l.Info(context.Background(), "filling queue")
	}

	res, err = checker.Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.OK() {
		t.Fatalf("expected a degraded/unhealthy result once the queue is nearly full, got %+v", res)
	}
}

func TestLogger_HealthReportsUnhealthyWhenSinkCircuitOpen(t *testing.T) {
	fo := &healthReportingFanout{sinks: map[string]apisbreaker.State{
		"primary": apisbreaker.Closed,
		"archive": apisbreaker.Open,
	}}
	cfg := testConfig(fo)
	l := newLogger("sink-health", cfg)
	defer l.StopAndDrain(context.Background(), time.Second)

	res, err := l.Health().Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if res.OK() {
		t.Fatalf("expected an unhealthy result with an open sink circuit, got %+v", res)
	}
	sinks, ok := res.Details["sinks"].(map[string]string)
	if !ok {
		t.Fatalf("expected Details[\"sinks\"] to be populated, got %+v", res.Details)
	}
	if sinks["archive"] != "open" {
		t.Fatalf("expected archive sink reported open, got %q", sinks["archive"])
	}
}

func TestLogger_HealthOmitsSinksWhenFanoutDoesNotReportHealth(t *testing.T) {
	fo := &capturingFanout{}
	l := newLogger("no-sink-health", testConfig(fo))
	defer l.StopAndDrain(context.Background(), time.Second)

	res, err := l.Health().Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if _, ok := res.Details["sinks"]; ok {
		t.Fatalf("expected no sinks detail when the fanout does not implement SinkHealth, got %+v", res.Details)
	}
}
