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

package filter

import (
	"context"

	"dirpx.dev/pulselog/apis/level"
	"dirpx.dev/pulselog/apis/pipeline/stage"
	"dirpx.dev/pulselog/apis/record"
)

// LevelThreshold drops any record whose level is below Min.
type LevelThreshold struct {
	alwaysEnabled
	Min level.Level
}

// NewLevelThreshold constructs a LevelThreshold filter.
func NewLevelThreshold(min level.Level) *LevelThreshold {
	return &LevelThreshold{Min: min}
}

// Name implements stage.Stage.
func (f *LevelThreshold) Name() string { return "level_threshold" }

// Process implements stage.Stage.
func (f *LevelThreshold) Process(_ context.Context, r record.Record) (record.Record, stage.Decision, error) {
	if r.Level < f.Min {
		return r, stage.Drop, nil
	}
	return r, stage.Continue, nil
}
