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
	"errors"
	"regexp"
)

// These are heuristic, source-text checks, not a general regex static
// analyzer: they catch three shapes (a quantified group that itself
// contains a quantifier, any alternation group under a quantifier, and two
// adjacent unbounded wildcards such as ".*.*") without attempting to prove or
// disprove catastrophic backtracking in general, which is undecidable
// for arbitrary patterns in the general case.
var (
	nestedQuantifierPattern  = regexp.MustCompile(`\([^()]*[*+][^()]*\)[*+]`)
	alternationUnderQuantPat = regexp.MustCompile(`\([^()]*\|[^()]*\)[*+]`)
	repeatedWildcardRunPat   = regexp.MustCompile(`\.[*+]\.[*+]`)
)

var errUnsafePattern = errors.New("pattern contains a construct associated with catastrophic backtracking")

// validatePattern rejects regex patterns matching the heuristics above.
// Callers may bypass this with an explicit opt-in per spec 4.6.3.
func validatePattern(pattern string) error {
	if nestedQuantifierPattern.MatchString(pattern) {
		return errUnsafePattern
	}
	if alternationUnderQuantPat.MatchString(pattern) {
		return errUnsafePattern
	}
	if repeatedWildcardRunPat.MatchString(pattern) {
		return errUnsafePattern
	}
	return nil
}
