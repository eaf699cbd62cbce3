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

// Package boundctx carries logger-bound fields across goroutine and async
// boundaries where a FieldLogger.WithFields chain cannot reach: a request
// handler can Bind fields onto its context.Context and any code downstream
// (including code invoked after the record has already been handed to the
// async queue) can Extract them without threading a Logger value through
// every call.
//
// This complements, and does not replace, apis.FieldLogger.WithFields: the
// synchronous bound-logger chain remains the primary mechanism; boundctx
// exists for the cases spec 4.1 calls out explicitly, where fields need to
// survive a context handoff that outlives the call that attached them.
package boundctx

import (
	"context"

	"dirpx.dev/pulselog/apis/field"
)

type boundKey struct{}

// bound is an immutable linked accumulation of fields, so Bind is cheap and
// never mutates a parent context's slice.
type bound struct {
	parent *bound
	fields []field.Field
}

// Bind returns a derived context.Context that carries fields in addition
// to any fields already bound on ctx. Bind never mutates its argument.
func Bind(ctx context.Context, fields ...field.Field) context.Context {
	if len(fields) == 0 {
		return ctx
	}
	parent, _ := ctx.Value(boundKey{}).(*bound)
	cp := make([]field.Field, len(fields))
	copy(cp, fields)
	return context.WithValue(ctx, boundKey{}, &bound{parent: parent, fields: cp})
}

// Extract returns every field bound onto ctx via Bind, oldest first, so
// later Bind calls (closer to the leaf) naturally appear last and win on
// key collision during merge at emission time.
func Extract(ctx context.Context) []field.Field {
	b, _ := ctx.Value(boundKey{}).(*bound)
	if b == nil {
		return nil
	}
	var chain []*bound
	for cur := b; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	var out []field.Field
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, chain[i].fields...)
	}
	return out
}
