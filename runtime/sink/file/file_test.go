package file

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	asink "dirpx.dev/pulselog/apis/sink"
	apolicy "dirpx.dev/pulselog/apis/sink/policy"

	rsink "dirpx.dev/pulselog/runtime/sink"
)

func TestNew_WritesToRotatingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	s, err := New(Config{Path: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close(context.Background())

	if err := s.Write(context.Background(), []byte("hello\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestBuild_ReadsPathFromLabels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")

	s, err := rsink.Build(context.Background(), "sink", Kind, asink.Specification{
		Name:   "primary",
		Labels: map[string]string{"path": path},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer s.Close(context.Background())

	if err := s.Write(context.Background(), []byte("x\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

type flakySink struct {
	mu       sync.Mutex
	failures int
	writes   int
}

func (f *flakySink) Name() string { return "flaky" }
func (f *flakySink) Write(context.Context, []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.failures > 0 {
		f.failures--
		return errors.New("transient failure")
	}
	return nil
}
func (f *flakySink) Flush(context.Context) error { return nil }
func (f *flakySink) Close(context.Context) error { return nil }

func TestRetryingSink_RetriesUntilSuccess(t *testing.T) {
	inner := &flakySink{failures: 2}
	s := withRetry(inner, apolicy.Retry{
		Enable:     true,
		MaxRetries: 3,
		Initial:    time.Millisecond,
		Max:        10 * time.Millisecond,
		Multiplier: 2,
	})

	if err := s.Write(context.Background(), []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if inner.writes != 3 {
		t.Fatalf("writes = %d, want 3 (2 failures + 1 success)", inner.writes)
	}
}

func TestRetryingSink_GivesUpAfterMaxRetries(t *testing.T) {
	inner := &flakySink{failures: 100}
	s := withRetry(inner, apolicy.Retry{
		Enable:     true,
		MaxRetries: 2,
		Initial:    time.Millisecond,
		Max:        10 * time.Millisecond,
		Multiplier: 2,
	})

	err := s.Write(context.Background(), []byte("x"))
	if err == nil {
		t.Fatalf("expected an error after exhausting retries")
	}
	if inner.writes != 3 {
		t.Fatalf("writes = %d, want 3 (1 initial + 2 retries)", inner.writes)
	}
}

func TestRetryingSink_ContextCancelledDuringBackoffStopsRetrying(t *testing.T) {
	inner := &flakySink{failures: 100}
	s := withRetry(inner, apolicy.Retry{
		Enable:     true,
		MaxRetries: 10,
		Initial:    50 * time.Millisecond,
		Max:        time.Second,
		Multiplier: 2,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := s.Write(ctx, []byte("x"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
