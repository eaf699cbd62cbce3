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

// Package dedupe implements the error dedupe window described in spec
// 4.1: a bounded map of hash(level, message) to last-emission-timestamp,
// used to suppress duplicate error bursts within a configurable window
// while still counting suppressed occurrences.
//
// The map is backed by github.com/hashicorp/golang-lru/v2 rather than a
// hand-rolled map+list, so capacity bound and amortized O(1) lookup/evict
// come from a maintained library instead of a bespoke LRU implementation.
package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"dirpx.dev/pulselog/apis/level"
)

// entry tracks the last time a given (level, message) key was admitted and
// how many occurrences have been suppressed since.
type entry struct {
	lastEmitted time.Time
	suppressed  int64
}

// Window is a bounded, time-windowed duplicate suppressor. It is safe for
// concurrent use.
type Window struct {
	mu     sync.Mutex
	window time.Duration
	cache  *lru.Cache[string, *entry]
	now    func() time.Time
}

// New constructs a Window with the given capacity (entries) and
// suppression window duration. A non-positive capacity disables dedupe
// (every call to Admit reports admit=true).
func New(capacity int, window time.Duration) *Window {
	w := &Window{window: window, now: time.Now}
	if capacity > 0 {
		c, err := lru.New[string, *entry](capacity)
		if err == nil {
			w.cache = c
		}
	}
	return w
}

// Key computes the dedupe key for a (level, message) pair: the first 16
// bytes of sha256(level || 0x00 || message), hex-encoded. The level is
// included so distinct severities for the same message text dedupe
// independently.
func Key(lvl level.Level, message string) string {
	h := sha256.New()
	h.Write([]byte(lvl.String()))
	h.Write([]byte{0})
	h.Write([]byte(message))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// Admit reports whether an event with the given key should be emitted
// (true) or suppressed as a duplicate within the window (false). When
// suppressed, the caller should increment its own "dropped by dedupe"
// counter; Suppressed reports the running count for a key independently.
func (w *Window) Admit(key string) bool {
	if w == nil || w.cache == nil {
		return true
	}
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.cache.Get(key)
	if !ok || now.Sub(e.lastEmitted) >= w.window {
		w.cache.Add(key, &entry{lastEmitted: now})
		return true
	}
	e.suppressed++
	return false
}

// Suppressed returns how many occurrences of key have been suppressed
// since its last admitted emission, or 0 if key is unknown or dedupe is
// disabled.
func (w *Window) Suppressed(key string) int64 {
	if w == nil || w.cache == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.cache.Peek(key)
	if !ok {
		return 0
	}
	return e.suppressed
}

// Len reports the number of keys currently tracked.
func (w *Window) Len() int {
	if w == nil || w.cache == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cache.Len()
}
