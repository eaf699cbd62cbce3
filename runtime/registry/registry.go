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

// Package registry provides a small generic builder registry used by the
// runtime's sink registry (runtime/sink).
//
// A Registry[V, S] maps a (kind, name) Key to a Builder[V, S] that knows how
// to construct a V from an S specification. Registration happens from
// package init() functions at process startup; Seal prevents further
// registration once construction is complete, matching the plugin contract
// in spec section 6 ("Plugins are discovered at logger construction time
// only; no runtime registration is allowed once the worker has started").
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Key identifies a registered builder by kind (the component category,
// e.g. "sink" in runtime/sink) and name (the implementation within that
// category, e.g. "file").
type Key struct {
	Kind string
	Name string
}

func (k Key) String() string {
	return k.Kind + "/" + k.Name
}

// Builder constructs a V from a specification S.
type Builder[V any, S any] interface {
	Build(ctx context.Context, spec S) (V, error)
}

// BuilderFunc adapts a plain function to Builder.
type BuilderFunc[V any, S any] func(ctx context.Context, spec S) (V, error)

// Build calls f(ctx, spec).
func (f BuilderFunc[V, S]) Build(ctx context.Context, spec S) (V, error) {
	return f(ctx, spec)
}

// Option configures a Registry at construction time.
type Option func(*options)

type options struct {
	caseFoldLower bool
}

// WithCaseFoldLower normalizes Key.Kind and Key.Name to lowercase on both
// registration and lookup, so "File" and "file" resolve to the same entry.
func WithCaseFoldLower() Option {
	return func(o *options) { o.caseFoldLower = true }
}

// Registry holds builders keyed by (kind, name), safe for concurrent Build
// calls. Registration is expected to happen single-threaded during init();
// Register/MustRegister still take the lock so concurrent init() in
// multiple packages (Go guarantees sequential init per package but not
// cross-package ordering beyond dependency order) cannot race.
type Registry[V any, S any] struct {
	opts     options
	mu       sync.RWMutex
	builders map[Key]Builder[V, S]
	sealed   bool
}

// New constructs an empty Registry.
func New[V any, S any](opts ...Option) *Registry[V, S] {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return &Registry[V, S]{
		opts:     o,
		builders: make(map[Key]Builder[V, S]),
	}
}

func (r *Registry[V, S]) normalize(k Key) Key {
	if r.opts.caseFoldLower {
		k.Kind = strings.ToLower(k.Kind)
		k.Name = strings.ToLower(k.Name)
	}
	return k
}

// Register associates key with b. It returns an error if the registry is
// sealed or if key is already registered.
func (r *Registry[V, S]) Register(key Key, b Builder[V, S]) error {
	key = r.normalize(key)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("registry: sealed, cannot register %s", key)
	}
	if _, exists := r.builders[key]; exists {
		return fmt.Errorf("registry: %s already registered", key)
	}
	r.builders[key] = b
	return nil
}

// MustRegister calls Register and panics on error. Intended for use from
// package init() functions, where a duplicate or post-seal registration is
// a programming error that should fail fast at startup.
func MustRegister[V any, S any](r *Registry[V, S], key Key, b Builder[V, S]) {
	if err := r.Register(key, b); err != nil {
		panic(err)
	}
}

// Build looks up key and invokes its builder. Returns an error if key is
// unregistered.
func (r *Registry[V, S]) Build(ctx context.Context, key Key, spec S) (V, error) {
	key = r.normalize(key)
	r.mu.RLock()
	b, ok := r.builders[key]
	r.mu.RUnlock()
	if !ok {
		var zero V
		return zero, fmt.Errorf("registry: no builder registered for %s", key)
	}
	return b.Build(ctx, spec)
}

// Has reports whether key has a registered builder.
func (r *Registry[V, S]) Has(key Key) bool {
	key = r.normalize(key)
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.builders[key]
	return ok
}

// Keys returns all currently registered keys, in no particular order.
func (r *Registry[V, S]) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Key, 0, len(r.builders))
	for k := range r.builders {
		out = append(out, k)
	}
	return out
}

// Seal prevents further registration. Calling Build after Seal is
// unaffected; only Register/MustRegister are blocked.
func (r *Registry[V, S]) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}
