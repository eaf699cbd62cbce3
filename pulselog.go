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

package pulselog

import (
	"context"
	"reflect"
	"runtime"
	"sync"
	"time"

	"dirpx.dev/pulselog/apis/diagnostics"
	"dirpx.dev/pulselog/apis/field"

	"dirpx.dev/pulselog/runtime/boundctx"
)

var (
	registryMu sync.Mutex
	registry   = map[string]*cacheEntry{}
)

type cacheEntry struct {
	cfg    Config
	logger *Logger
}

// GetLogger returns the cached *Logger for name, constructing one the
// first time name is requested. A later call with the same name but a
// Config that differs (compared with reflect.DeepEqual) replaces the
// cache entry and builds a fresh Logger rather than mutating the old one
// in place — the old Logger keeps running with its original worker and
// queue until its own caller stops it; GetLogger never stops a Logger it
// evicts from the cache (spec 4.9: configuration changes never silently
// interrupt in-flight emission from whoever still holds the old handle).
func GetLogger(name string, cfg Config) *Logger {
	registryMu.Lock()
	defer registryMu.Unlock()

	if e, ok := registry[name]; ok && reflect.DeepEqual(e.cfg, cfg) {
		return e.logger
	}

	l := newLogger(name, cfg)
	registry[name] = &cacheEntry{cfg: cfg, logger: l}
	runtime.SetFinalizer(l, finalizeLogger)
	return l
}

// GetLoggerAsync is equivalent to GetLogger: construction itself never
// blocks on I/O (the worker goroutine starts and reaches its dequeue
// loop independently), so there is no meaningfully different "async"
// variant to offer. It exists so callers migrating from an
// acquire-then-await idiom have a direct, obviously-named replacement.
func GetLoggerAsync(name string, cfg Config) *Logger {
	return GetLogger(name, cfg)
}

// finalizeLogger runs if a Logger returned by GetLogger is garbage
// collected without the caller ever calling StopAndDrain: it is a safety
// net, not a substitute for an explicit shutdown, so it only attempts a
// short best-effort drain and surfaces a diagnostic rather than blocking
// the finalizer goroutine indefinitely.
func finalizeLogger(l *Logger) {
	if l.stopped.Load() {
		return
	}
	l.cfg.Diag.Emit(diagnostics.Event{
		Component: "facade." + l.name,
		Kind:      "unclosed_logger",
		Text:      "logger garbage-collected without StopAndDrain; attempting best-effort drain",
		At:        time.Now(),
	})
	l.StopAndDrain(context.Background(), 500*time.Millisecond)
}

// Bind returns a context derived from ctx that carries fields for any
// subsequent Log call made with that context (or a context derived from
// it), even across goroutine or async boundaries a WithFields chain
// cannot reach. It is a thin re-export of runtime/boundctx.Bind so
// callers only need to import this package.
func Bind(ctx context.Context, fields ...field.Field) context.Context {
	return boundctx.Bind(ctx, fields...)
}
