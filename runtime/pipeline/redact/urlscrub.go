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

	"dirpx.dev/pulselog/apis/pipeline/stage"
	"dirpx.dev/pulselog/apis/record"
)

var urlCredentialPattern = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.\-]*://)[^/\s@]+:[^/\s@]+@`)

// URLCredentialScrub strips `user:pass@` from any URL-like string value,
// recursively, through nested maps and slices. It is enabled by default
// per spec 4.6.3 even when no other redaction is configured.
type URLCredentialScrub struct {
	MaxDepth       int
	MaxKeysScanned int
}

var _ stage.Stage = (*URLCredentialScrub)(nil)

// Enabled implements stage.Stage.
func (u *URLCredentialScrub) Enabled() bool { return true }

// Name implements stage.Stage.
func (u *URLCredentialScrub) Name() string { return "url_credential_scrub" }

// Process implements stage.Stage. It never drops the envelope.
func (u *URLCredentialScrub) Process(_ context.Context, r record.Record) (record.Record, stage.Decision, error) {
	if len(r.Fields) == 0 {
		return r, stage.Continue, nil
	}

	top := fieldsToMap(r.Fields)
	scrubbed := scrubURLsInValue(top, u.MaxDepth, u.MaxKeysScanned, 0, new(int))
	out := r
	out.Fields = mapToFields(scrubbed.(map[string]any))
	return out, stage.Continue, nil
}

func scrubURLsInValue(v any, maxDepth, maxKeysScanned, depth int, scanned *int) any {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if maxKeysScanned <= 0 {
		maxKeysScanned = DefaultMaxKeysScanned
	}
	if depth > maxDepth {
		return v
	}

	switch t := v.(type) {
	case string:
		return urlCredentialPattern.ReplaceAllString(t, "$1")
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			(*scanned)++
			if *scanned > maxKeysScanned {
				out[k] = val
				continue
			}
			out[k] = scrubURLsInValue(val, maxDepth, maxKeysScanned, depth+1, scanned)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			(*scanned)++
			if *scanned > maxKeysScanned {
				out[i] = item
				continue
			}
			out[i] = scrubURLsInValue(item, maxDepth, maxKeysScanned, depth+1, scanned)
		}
		return out
	default:
		return v
	}
}
