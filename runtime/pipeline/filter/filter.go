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

// Package filter implements the built-in filter stage (spec 4.6.1): level
// threshold, probabilistic sampling, adaptive sampling, and token-bucket
// rate limiting. Every built-in implements apis/pipeline/stage.Stage, so
// the pipeline worker can run them uniformly alongside user-supplied
// stages.
package filter

// alwaysEnabled is embedded by filters that have no independent on/off
// switch beyond being present in the configured chain.
type alwaysEnabled struct{}

func (alwaysEnabled) Enabled() bool { return true }
