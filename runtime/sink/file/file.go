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

// Package file wires the teacher's kept rotation and batching mechanics
// (runtime/sink/policy) into a concrete, registry-buildable apis/sink.Sink:
// a rotating file sink, optionally retried and batched per
// apis/sink/policy.Retry and apis/sink/policy.Batch. Spec section 2 scopes
// concrete sinks out of the core runtime, but the circuit breaker (4.4) and
// fan-out layer (4.8) need at least one real target to exercise their
// fallback paths against, and this is it.
package file

import (
	"context"
	"os"
	"time"

	asink "dirpx.dev/pulselog/apis/sink"
	apolicy "dirpx.dev/pulselog/apis/sink/policy"

	"dirpx.dev/pulselog/runtime/registry"
	rsink "dirpx.dev/pulselog/runtime/sink"
	rpolicy "dirpx.dev/pulselog/runtime/sink/policy"
)

// Kind is the registry kind under which the file sink builder is registered.
const Kind = "file"

// Config describes a rotating file sink's concrete parameters. Path is the
// one thing apis/sink.Specification deliberately omits (it stays generic
// across sink families), so it is carried here and, for registry-built
// instances, read out of Specification.Labels["path"].
type Config struct {
	Path     string
	Rotation apolicy.Rotation
	Batch    *apolicy.Batch
	Retry    apolicy.Retry
	FileMode os.FileMode
	Name     string
}

// New constructs a rotating file sink from cfg, wrapping it with a retry
// decorator and a batching decorator when configured. Decorator order
// (innermost to outermost): rotating file -> retry -> batch, so a batch
// flush's individual writes are each retried before the batch worker moves
// on to the next entry.
func New(cfg Config) (asink.Sink, error) {
	base, err := rpolicy.NewRotatingFileSink(rpolicy.FileRotationOptions{
		Path:     cfg.Path,
		Policy:   cfg.Rotation,
		Name:     cfg.Name,
		FileMode: cfg.FileMode,
	})
	if err != nil {
		return nil, err
	}

	s := base
	if cfg.Retry.Enable {
		s = withRetry(s, cfg.Retry)
	}
	if cfg.Batch != nil {
		s = rpolicy.WithBatch(s, rpolicy.BatchOptions{Batch: *cfg.Batch, Name: cfg.Name})
	}
	return s, nil
}

// retryingSink retries a failing Write with exponential backoff, per
// apis/sink/policy.Retry's declared shape. It does not retry Flush or
// Close: those are expected to be idempotent and cheap enough to fail fast.
type retryingSink struct {
	next   asink.Sink
	policy apolicy.Retry
}

var _ asink.Sink = (*retryingSink)(nil)

func withRetry(next asink.Sink, p apolicy.Retry) asink.Sink {
	if p.Initial <= 0 {
		p.Initial = 100 * time.Millisecond
	}
	if p.Max <= 0 {
		p.Max = 5 * time.Second
	}
	if p.Multiplier <= 1 {
		p.Multiplier = 2
	}
	return &retryingSink{next: next, policy: p}
}

func (s *retryingSink) Name() string { return s.next.Name() }

func (s *retryingSink) Write(ctx context.Context, entry []byte) error {
	wait := s.policy.Initial
	var err error
	for attempt := 0; ; attempt++ {
		err = s.next.Write(ctx, entry)
		if err == nil {
			return nil
		}
		if attempt >= s.policy.MaxRetries {
			return err
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
		wait = time.Duration(float64(wait) * s.policy.Multiplier)
		if wait > s.policy.Max {
			wait = s.policy.Max
		}
	}
}

func (s *retryingSink) Flush(ctx context.Context) error { return s.next.Flush(ctx) }
func (s *retryingSink) Close(ctx context.Context) error { return s.next.Close(ctx) }

func init() {
	rsink.Register("sink", Kind, registry.BuilderFunc[asink.Sink, asink.Specification](build))
}

func build(_ context.Context, spec asink.Specification) (asink.Sink, error) {
	cfg := Config{
		Path: spec.Labels["path"],
		Name: spec.Name,
	}
	if spec.Rotation != nil {
		cfg.Rotation = *spec.Rotation
	}
	cfg.Batch = spec.Batch
	cfg.Retry = spec.Retry
	return New(cfg)
}
