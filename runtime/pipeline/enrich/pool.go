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

// Package enrich implements the enricher stage (spec 4.6.2): a fixed set
// of configured enrichers runs concurrently, with a bounded worker count,
// for every envelope; outputs are merged with a deterministic later-wins
// tiebreak, and a failing enricher contributes nothing rather than
// dropping the envelope.
//
// Work is handed from Process (one call per envelope, N jobs per call,
// N = number of configured enrichers) to the worker goroutines through
// code.hybscloud.com/lfq's MPMC queue: a pure bounded-concurrency FIFO
// handoff with no need for the mid-queue removal that ruled lfq out for
// the core admission queue (runtime/queue).
package enrich

import (
	"context"
	"sync"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"

	"dirpx.dev/pulselog/apis/diagnostics"
	"dirpx.dev/pulselog/apis/field"
	"dirpx.dev/pulselog/apis/record"
)

// Enricher adds fields derived from a record. Implementations must not
// mutate r; they return only the fields to merge in.
type Enricher interface {
	Name() string
	Enrich(ctx context.Context, r record.Record) (map[string]any, error)
}

// EnricherFunc adapts a plain function to Enricher.
type EnricherFunc struct {
	EnricherName string
	Fn           func(ctx context.Context, r record.Record) (map[string]any, error)
}

// Name implements Enricher.
func (f EnricherFunc) Name() string { return f.EnricherName }

// Enrich implements Enricher.
func (f EnricherFunc) Enrich(ctx context.Context, r record.Record) (map[string]any, error) {
	return f.Fn(ctx, r)
}

type job struct {
	ctx      context.Context
	enricher Enricher
	record   record.Record
	result   chan enrichResult
}

type enrichResult struct {
	fields map[string]any
	err    error
}

// Pool runs a configured, ordered list of enrichers against every
// envelope handed to Process, with bounded worker concurrency.
type Pool struct {
	enrichers []Enricher
	diag      diagnostics.Sink

	queue     lfq.Queue[*job]
	stopOnce  sync.Once
	stopCh    chan struct{}
	workersWG sync.WaitGroup
}

// NewPool constructs a Pool running enrichers (in the given order, which
// determines merge-tiebreak priority) across workers concurrent goroutines.
// diag receives a diagnostic event for every enricher failure; pass
// diagnostics.NopSink{} to discard them. workers <= 0 is treated as 1.
func NewPool(enrichers []Enricher, workers int, diag diagnostics.Sink) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if diag == nil {
		diag = diagnostics.NopSink{}
	}

	p := &Pool{
		enrichers: enrichers,
		diag:      diag,
		queue:     lfq.NewMPMC[*job](queueCapacityFor(workers)),
		stopCh:    make(chan struct{}),
	}
	p.workersWG.Add(workers)
	for i := 0; i < workers; i++ {
		go p.workerLoop()
	}
	return p
}

// queueCapacityFor picks an lfq-compatible (power-of-2, >=2) capacity
// comfortably larger than the worker count so bursts of jobs from a single
// Process call rarely have to wait on backoff.
func queueCapacityFor(workers int) int {
	capacity := 2
	for capacity < workers*4 {
		capacity *= 2
	}
	return capacity
}

func (p *Pool) workerLoop() {
	defer p.workersWG.Done()
	var backoff iox.Backoff
	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		j, err := p.queue.Dequeue()
		if err != nil {
			if lfq.IsWouldBlock(err) {
				backoff.Wait()
				continue
			}
			return
		}
		backoff.Reset()

		fields, enrichErr := j.enricher.Enrich(j.ctx, j.record)
		j.result <- enrichResult{fields: fields, err: enrichErr}
	}
}

// Process runs every configured enricher against r with bounded
// concurrency and returns r with the merged fields appended. A failing
// enricher contributes an empty map and a diagnostic event; it never
// causes Process to return an error or drop the envelope, per spec 4.6.2.
func (p *Pool) Process(ctx context.Context, r record.Record) record.Record {
	if len(p.enrichers) == 0 {
		return r
	}

	results := make([]chan enrichResult, len(p.enrichers))
	for i, e := range p.enrichers {
		ch := make(chan enrichResult, 1)
		results[i] = ch
		p.dispatch(&job{ctx: ctx, enricher: e, record: r, result: ch})
	}

	merged := make(map[string]any)
	for i, ch := range results {
		res := <-ch
		if res.err != nil {
			p.diag.Emit(diagnostics.Event{
				Component: "enrich",
				Kind:      "enricher_failed",
				Text:      p.enrichers[i].Name() + ": " + res.err.Error(),
			})
			continue
		}
		for k, v := range res.fields {
			merged[k] = v
		}
	}

	if len(merged) == 0 {
		return r
	}
	fields := make([]field.Field, 0, len(merged))
	for k, v := range merged {
		fields = append(fields, field.Field{Key: k, Value: v})
	}
	return r.WithFields(fields...)
}

func (p *Pool) dispatch(j *job) {
	var backoff iox.Backoff
	for {
		// lfq's Enqueue copies *v into an internal slot of type *job, so it
		// takes the address of a variable holding the job pointer.
		err := p.queue.Enqueue(&j)
		if err == nil {
			return
		}
		if !lfq.IsWouldBlock(err) {
			j.result <- enrichResult{err: err}
			return
		}
		backoff.Wait()
	}
}

// Stop terminates the worker goroutines. Process must not be called after
// Stop returns.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.workersWG.Wait()
}
