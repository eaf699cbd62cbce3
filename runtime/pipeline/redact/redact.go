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

// Package redact implements the three built-in redactor stages required
// by spec 4.6.3: URL-credential scrubbing, dot-path field masking, and
// path-matching regex masking. All three implement
// apis/pipeline/stage.Stage and never drop the envelope. When a redactor
// panics or returns an error, the pipeline worker passes the envelope on
// as it was before that redactor ran, never half-redacted; there is no
// strict mode that drops the envelope instead.
//
// Matched leaves are replaced with the stage's configured mask text
// verbatim (plain string substitution): github.com/cockroachdb/redact's
// Redact/StripMarkers pipeline produces the library's own fixed
// redaction marker, not an arbitrary caller-chosen replacement string, so
// it has no real role here once the requirement is "substitute exactly
// this configured text" rather than "mark this value as sensitive for a
// later Redact() pass over the whole payload" (nothing downstream of
// this package ever makes that pass). See DESIGN.md for why the
// dependency was dropped rather than kept as a decorative wrapper.
package redact

import (
	"dirpx.dev/pulselog/apis/field"
)

// DefaultMask is the replacement text used when a stage is not
// configured with an explicit mask string.
const DefaultMask = "***"

const (
	DefaultMaxDepth       = 16
	DefaultMaxKeysScanned = 1000
)

// maskString returns mask, or DefaultMask when mask is empty. Matched
// leaves are always replaced with this exact text.
func maskString(mask string) string {
	if mask == "" {
		mask = DefaultMask
	}
	return mask
}

func fieldsToMap(fields []field.Field) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f.Key] = f.Value
	}
	return out
}

func mapToFields(m map[string]any) []field.Field {
	out := make([]field.Field, 0, len(m))
	for k, v := range m {
		out = append(out, field.Field{Key: k, Value: v})
	}
	return out
}
