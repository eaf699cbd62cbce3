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

// Package process implements the byte-level processor chain (spec 4.6.4):
// compression, encryption and framing over a canonical
// JSON byte view, run after optional serialization. A failing processor
// never breaks the batch: it returns the view unchanged to the chain and
// the chain emits a diagnostic.
package process

import (
	"context"
	"fmt"

	"dirpx.dev/pulselog/apis/diagnostics"
)

// Processor transforms a byte view into another byte view. Implementations
// must not mutate the input slice in place; they should return a new slice
// (or the same slice, unmodified, on failure).
type Processor interface {
	Name() string
	Process(ctx context.Context, view []byte) ([]byte, error)
}

// ProcessorFunc adapts a plain function to Processor.
type ProcessorFunc struct {
	FuncName string
	Fn       func(ctx context.Context, view []byte) ([]byte, error)
}

// Name implements Processor.
func (p ProcessorFunc) Name() string { return p.FuncName }

// Process implements Processor.
func (p ProcessorFunc) Process(ctx context.Context, view []byte) ([]byte, error) {
	return p.Fn(ctx, view)
}

// Chain runs a configured sequence of Processors over a byte view,
// containing any single processor's failure per spec 4.6.4: "A processor
// that fails returns the original view and emits a diagnostic."
type Chain struct {
	Processors []Processor
	Diag       diagnostics.Sink
}

// NewChain builds a Chain. diag may be nil, in which case failures are
// silently contained (still never propagated).
func NewChain(procs []Processor, diag diagnostics.Sink) *Chain {
	return &Chain{Processors: procs, Diag: diag}
}

// Run applies every configured processor in order to view, returning the
// final byte view. A processor whose Process call returns an error is
// skipped: the view entering it is passed unchanged to the next processor.
func (c *Chain) Run(ctx context.Context, view []byte) []byte {
	for _, p := range c.Processors {
		out, err := c.runOne(ctx, p, view)
		if err != nil {
			c.emit(p.Name(), err)
			continue
		}
		view = out
	}
	return view
}

// runOne isolates a single processor call so a panic inside a third-party
// codec cannot take down the pipeline worker.
func (c *Chain) runOne(ctx context.Context, p Processor, view []byte) (out []byte, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = panicError{processor: p.Name(), recovered: rec}
		}
	}()
	return p.Process(ctx, view)
}

func (c *Chain) emit(name string, err error) {
	if c.Diag == nil {
		return
	}
	c.Diag.Emit(diagnostics.Event{
		Component: "pipeline.process." + name,
		Kind:      "processor_failed",
		Text:      err.Error(),
	})
}

type panicError struct {
	processor string
	recovered any
}

func (e panicError) Error() string {
	return fmt.Sprintf("processor %q panicked: %v", e.processor, e.recovered)
}
