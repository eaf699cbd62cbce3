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

package redact

import "fmt"

// walker traverses a decoded field tree (maps and slices produced from
// JSON-like field values), masking any leaf whose dot-path satisfies
// matches. It enforces the guardrails spec 4.6.3 requires: max_depth
// bounds nested traversal, max_keys_scanned bounds total key/index
// visits per envelope. On breach, traversal stops early (remaining
// values are left unmodified) rather than panicking or dropping the
// envelope.
type walker struct {
	maxDepth       int
	maxKeysScanned int
	mask           string
	matches        func(path string) bool

	scanned  int
	breached bool
}

func newWalker(maxDepth, maxKeysScanned int, mask string, matches func(string) bool) *walker {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if maxKeysScanned <= 0 {
		maxKeysScanned = DefaultMaxKeysScanned
	}
	return &walker{maxDepth: maxDepth, maxKeysScanned: maxKeysScanned, mask: mask, matches: matches}
}

// run masks top in place (functionally — it returns a new tree) and
// reports whether a guardrail was breached during traversal.
func (w *walker) run(top map[string]any) (map[string]any, bool) {
	out := w.walk(top, "", 0).(map[string]any)
	return out, w.breached
}

func (w *walker) walk(v any, path string, depth int) any {
	if w.breached {
		return v
	}
	if depth > w.maxDepth {
		w.breached = true
		return v
	}

	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if !w.countScan() {
				out[k] = val
				continue
			}
			childPath := k
			if path != "" {
				childPath = path + "." + k
			}
			out[k] = w.walk(val, childPath, depth+1)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			if !w.countScan() {
				out[i] = item
				continue
			}
			out[i] = w.walk(item, fmt.Sprintf("%s[%d]", path, i), depth+1)
		}
		return out
	default:
		if w.matches(path) {
			return maskString(w.mask)
		}
		return v
	}
}

// countScan increments the scan counter and reports whether the scan
// budget still allows visiting this node. Once breached it keeps
// reporting false so the remainder of the tree passes through untouched.
func (w *walker) countScan() bool {
	if w.breached {
		return false
	}
	w.scanned++
	if w.scanned > w.maxKeysScanned {
		w.breached = true
		return false
	}
	return true
}
