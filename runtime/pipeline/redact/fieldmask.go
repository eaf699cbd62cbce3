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

import (
	"context"
	"regexp"
	"strings"

	"dirpx.dev/pulselog/apis/diagnostics"
	"dirpx.dev/pulselog/apis/pipeline/stage"
	"dirpx.dev/pulselog/apis/record"
)

var arrayIndexPattern = regexp.MustCompile(`\[\d+\]`)

// FieldMask replaces the value at each configured dot-path with Mask. A
// path segment of "*" matches any key at that level; a segment suffixed
// "[*]" matches every element of an array at that level (e.g.
// "items[*].token").
type FieldMask struct {
	Paths          []string
	Mask           string
	MaxDepth       int
	MaxKeysScanned int
	Diag           diagnostics.Sink
}

var _ stage.Stage = (*FieldMask)(nil)

// Enabled implements stage.Stage.
func (f *FieldMask) Enabled() bool { return true }

// Name implements stage.Stage.
func (f *FieldMask) Name() string { return "field_mask" }

// Process implements stage.Stage. Field-mask never drops the envelope.
func (f *FieldMask) Process(_ context.Context, r record.Record) (record.Record, stage.Decision, error) {
	if len(f.Paths) == 0 || len(r.Fields) == 0 {
		return r, stage.Continue, nil
	}

	top := fieldsToMap(r.Fields)
	anyBreach := false
	for _, pattern := range f.Paths {
		w := newWalker(f.MaxDepth, f.MaxKeysScanned, f.Mask, func(path string) bool {
			return pathMatchesPattern(path, pattern)
		})
		masked, breached := w.run(top)
		top = masked
		anyBreach = anyBreach || breached
	}

	if anyBreach && f.Diag != nil {
		f.Diag.Emit(diagnostics.Event{
			Component: "redact.field_mask",
			Kind:      "guardrail_breached",
			Text:      "max_depth or max_keys_scanned exceeded; traversal stopped early",
		})
	}

	out := r
	out.Fields = mapToFields(top)
	return out, stage.Continue, nil
}

// pathMatchesPattern compares a concrete traversal path (array indices
// already rendered as "[N]") against a configured pattern where "*"
// matches any single key segment and a "[*]" suffix matches any index.
func pathMatchesPattern(path, pattern string) bool {
	normalized := arrayIndexPattern.ReplaceAllString(path, "[*]")
	pathSegs := strings.Split(normalized, ".")
	patSegs := strings.Split(pattern, ".")
	if len(pathSegs) != len(patSegs) {
		return false
	}
	for i := range pathSegs {
		if patSegs[i] == "*" {
			continue
		}
		if patSegs[i] != pathSegs[i] {
			return false
		}
	}
	return true
}
