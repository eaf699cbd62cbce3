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
	"fmt"
	"regexp"

	"dirpx.dev/pulselog/apis/diagnostics"
	"dirpx.dev/pulselog/apis/pipeline/stage"
	"dirpx.dev/pulselog/apis/record"
)

// RegexMask masks the value at every leaf whose dot-path (array elements
// rendered "[N]") matches any configured pattern. Patterns match the
// *path*, not the value.
type RegexMask struct {
	Mask           string
	MaxDepth       int
	MaxKeysScanned int
	Diag           diagnostics.Sink

	// AllowUnsafePatterns bypasses the catastrophic-backtracking guard in
	// NewRegexMask's pattern validation.
	AllowUnsafePatterns bool

	compiled []*regexp.Regexp
}

var _ stage.Stage = (*RegexMask)(nil)

// NewRegexMask compiles and validates patterns, rejecting any that
// contain the constructs validatePattern flags unless allowUnsafe is set.
func NewRegexMask(patterns []string, mask string, maxDepth, maxKeysScanned int, allowUnsafe bool, diag diagnostics.Sink) (*RegexMask, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if !allowUnsafe {
			if err := validatePattern(p); err != nil {
				return nil, fmt.Errorf("redact: regex_mask: pattern %q rejected: %w", p, err)
			}
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("redact: regex_mask: pattern %q does not compile: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return &RegexMask{
		Mask:                mask,
		MaxDepth:            maxDepth,
		MaxKeysScanned:      maxKeysScanned,
		Diag:                diag,
		AllowUnsafePatterns: allowUnsafe,
		compiled:            compiled,
	}, nil
}

// Enabled implements stage.Stage.
func (f *RegexMask) Enabled() bool { return true }

// Name implements stage.Stage.
func (f *RegexMask) Name() string { return "regex_mask" }

// Process implements stage.Stage. Regex-mask never drops the envelope.
func (f *RegexMask) Process(_ context.Context, r record.Record) (record.Record, stage.Decision, error) {
	if len(f.compiled) == 0 || len(r.Fields) == 0 {
		return r, stage.Continue, nil
	}

	top := fieldsToMap(r.Fields)
	w := newWalker(f.MaxDepth, f.MaxKeysScanned, f.Mask, func(path string) bool {
		for _, re := range f.compiled {
			if re.MatchString(path) {
				return true
			}
		}
		return false
	})
	masked, breached := w.run(top)

	if breached && f.Diag != nil {
		f.Diag.Emit(diagnostics.Event{
			Component: "redact.regex_mask",
			Kind:      "guardrail_breached",
			Text:      "max_depth or max_keys_scanned exceeded; traversal stopped early",
		})
	}

	out := r
	out.Fields = mapToFields(masked)
	return out, stage.Continue, nil
}
