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

// Package fanout implements the sink fan-out and routing layer (spec
// 4.8): for each envelope, it resolves a set of target sinks (either
// every configured sink, or a level-routing rules table), consults each
// sink's circuit breaker, writes when allowed, and routes failures to a
// per-sink fallback sink or the global fallback writer.
package fanout

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	apisbreaker "dirpx.dev/pulselog/apis/breaker"
	"dirpx.dev/pulselog/apis/diagnostics"
	"dirpx.dev/pulselog/apis/level"
	"dirpx.dev/pulselog/apis/sink"

	"dirpx.dev/pulselog/runtime/encoder"
	"dirpx.dev/pulselog/runtime/fallback"
	"dirpx.dev/pulselog/runtime/pipeline/worker"
)

var errNoEncoder = errors.New("fanout: envelope was not pre-serialized and no encoder is configured")

// RoutingMode selects between the two mutually exclusive disciplines spec
// 4.8 describes.
type RoutingMode uint8

const (
	// GlobalFanout offers every envelope to every configured sink.
	GlobalFanout RoutingMode = iota
	// LevelRouting consults Config.Rules to pick a subset of sinks per
	// envelope, based on its level.
	LevelRouting
)

// Rule maps a set of levels to a set of sink names.
type Rule struct {
	Levels []level.Level
	Sinks  []string
}

func (r Rule) matches(lvl level.Level) bool {
	for _, l := range r.Levels {
		if l == lvl {
			return true
		}
	}
	return false
}

// GuardedSink pairs a sink with the breaker that guards it and the name
// of another configured sink to try first on failure, before falling
// back to the global fallback writer.
type GuardedSink struct {
	Sink         sink.Sink
	Breaker      apisbreaker.Breaker
	FallbackSink string
}

// Config configures a Fanout's routing discipline and concurrency.
type Config struct {
	Mode RoutingMode

	// Rules is consulted only when Mode is LevelRouting, in order.
	Rules []Rule
	// Overlap: when true, every matching rule's sinks are unioned;
	// otherwise the first matching rule wins exclusively.
	Overlap bool
	// DefaultSinks is used when Mode is LevelRouting and no rule matches
	// (and, with Overlap, no rule matched at all). Empty means an
	// unmatched envelope is not sent to any sink (and is counted).
	DefaultSinks []string

	// Parallel, when true, writes to a single envelope's target sinks
	// concurrently (bounded by MaxConcurrency); otherwise sinks are
	// written to in configured order. A sink's failure never cancels its
	// peers either way.
	Parallel       bool
	MaxConcurrency int

	// Encoder serializes an envelope on demand when it was not already
	// serialized in the pipeline worker's flush (serialize_in_flush=false).
	Encoder encoder.Encoder

	// GlobalFallback is the floor every envelope lands on when a sink
	// fails and has no per-sink fallback (or that fallback also fails).
	GlobalFallback *fallback.Writer

	Diag diagnostics.Sink
}

// Fanout implements worker.Fanout.
type Fanout struct {
	cfg     Config
	sinks   map[string]GuardedSink
	order   []string
	metrics *Metrics
}

var _ worker.Fanout = (*Fanout)(nil)

// New validates and constructs a Fanout. order determines the iteration
// order used for GlobalFanout and for sequential (non-Parallel) writes.
func New(cfg Config, sinks map[string]GuardedSink, order []string) (*Fanout, error) {
	for _, name := range order {
		if _, ok := sinks[name]; !ok {
			return nil, fmt.Errorf("fanout: order references unknown sink %q", name)
		}
	}
	if cfg.Diag == nil {
		cfg.Diag = diagnostics.NopSink{}
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = len(order)
		if cfg.MaxConcurrency == 0 {
			cfg.MaxConcurrency = 1
		}
	}
	return &Fanout{cfg: cfg, sinks: sinks, order: order, metrics: newMetrics()}, nil
}

// Metrics returns the fan-out's per-sink running counters.
func (f *Fanout) Metrics() *Metrics { return f.metrics }

// SinkHealth reports the current circuit state of every configured sink,
// keyed by sink name (spec 7: health checks aggregate per-sink health; a
// sink whose circuit is Open is unhealthy).
func (f *Fanout) SinkHealth() map[string]apisbreaker.State {
	out := make(map[string]apisbreaker.State, len(f.sinks))
	for name, gs := range f.sinks {
		out[name] = gs.Breaker.State()
	}
	return out
}

// Dispatch implements worker.Fanout.
func (f *Fanout) Dispatch(ctx context.Context, batch []worker.Envelope) {
	for _, env := range batch {
		names := f.resolveSinkNames(env.Record.Level)
		if len(names) == 0 {
			f.metrics.incUnrouted()
			continue
		}
		if f.cfg.Parallel {
			f.dispatchParallel(ctx, env, names)
		} else {
			f.dispatchSequential(ctx, env, names)
		}
	}
}

func (f *Fanout) resolveSinkNames(lvl level.Level) []string {
	if f.cfg.Mode == GlobalFanout {
		return f.order
	}

	var matched []string
	seen := make(map[string]struct{})
	for _, rule := range f.cfg.Rules {
		if !rule.matches(lvl) {
			continue
		}
		if !f.cfg.Overlap {
			return rule.Sinks
		}
		for _, name := range rule.Sinks {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			matched = append(matched, name)
		}
	}
	if len(matched) > 0 {
		return matched
	}
	return f.cfg.DefaultSinks
}

func (f *Fanout) dispatchSequential(ctx context.Context, env worker.Envelope, names []string) {
	for _, name := range names {
		f.writeOne(ctx, name, env)
	}
}

func (f *Fanout) dispatchParallel(ctx context.Context, env worker.Envelope, names []string) {
	sem := make(chan struct{}, f.cfg.MaxConcurrency)
	var wg sync.WaitGroup
	for _, name := range names {
		name := name
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			f.writeOne(ctx, name, env)
		}()
	}
	wg.Wait()
}

func (f *Fanout) writeOne(ctx context.Context, name string, env worker.Envelope) {
	gs, ok := f.sinks[name]
	if !ok {
		f.emitDiag(name, "unknown_sink", "sink %q is not configured", name)
		f.writeGlobalFallback(env)
		return
	}

	proceed, reportOutcome := gs.Breaker.Allow(ctx)
	if !proceed {
		f.metrics.incCircuitRejected(name)
		f.routeToFallback(ctx, gs.FallbackSink, env)
		return
	}

	start := time.Now()
	payload, err := f.payloadFor(env)
	if err == nil {
		err = gs.Sink.Write(ctx, payload)
	}
	reportOutcome(err == nil)

	if err != nil {
		f.metrics.incFailure(name)
		f.emitDiag(name, "write_failed", "%v", err)
		f.routeToFallback(ctx, gs.FallbackSink, env)
		return
	}
	f.metrics.incSuccess(name)
	f.metrics.observeLatency(name, time.Since(start))
}

// routeToFallback makes a single attempt at the per-sink fallback (if
// configured), then falls back to the global fallback writer. It does not
// recurse through writeOne, so a misconfigured fallback chain cannot loop.
func (f *Fanout) routeToFallback(ctx context.Context, fallbackSinkName string, env worker.Envelope) {
	if fallbackSinkName != "" {
		if gs, ok := f.sinks[fallbackSinkName]; ok {
			proceed, reportOutcome := gs.Breaker.Allow(ctx)
			if proceed {
				start := time.Now()
				payload, err := f.payloadFor(env)
				if err == nil {
					err = gs.Sink.Write(ctx, payload)
				}
				reportOutcome(err == nil)
				if err == nil {
					f.metrics.incSuccess(fallbackSinkName)
					f.metrics.observeLatency(fallbackSinkName, time.Since(start))
					return
				}
				f.metrics.incFailure(fallbackSinkName)
			} else {
				f.metrics.incCircuitRejected(fallbackSinkName)
			}
		}
	}
	f.writeGlobalFallback(env)
}

func (f *Fanout) writeGlobalFallback(env worker.Envelope) {
	if f.cfg.GlobalFallback == nil {
		f.metrics.incDroppedNoFallback()
		return
	}
	f.metrics.incGlobalFallback()
	if env.Serialized != nil {
		_ = f.cfg.GlobalFallback.WriteRaw(env.Serialized)
		return
	}
	_ = f.cfg.GlobalFallback.WriteStructured(env.Record.CanonicalFields())
}

func (f *Fanout) payloadFor(env worker.Envelope) ([]byte, error) {
	if env.Serialized != nil {
		return env.Serialized, nil
	}
	if f.cfg.Encoder == nil {
		return nil, errNoEncoder
	}
	var buf bytes.Buffer
	if err := f.cfg.Encoder.Encode(&env.Record, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *Fanout) emitDiag(sinkName, kind, format string, args ...any) {
	f.cfg.Diag.Emit(diagnostics.Event{
		Component: "fanout." + sinkName,
		Kind:      kind,
		Text:      fmt.Sprintf(format, args...),
	})
}
