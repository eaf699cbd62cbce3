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

package process

import (
	"context"
	"encoding/binary"
	"fmt"
)

// LengthPrefixFramer prepends a big-endian uint32 byte count to the view,
// letting a stream-oriented sink (a TCP forwarder, a pipe to an external
// collector) split a byte stream back into discrete envelopes without a
// delimiter that could collide with envelope content.
type LengthPrefixFramer struct{}

var _ Processor = (*LengthPrefixFramer)(nil)

// Name implements Processor.
func (f *LengthPrefixFramer) Name() string { return "length_prefix_frame" }

// Process implements Processor.
func (f *LengthPrefixFramer) Process(_ context.Context, view []byte) ([]byte, error) {
	if len(view) > 0xFFFFFFFF {
		return nil, fmt.Errorf("process: length_prefix_frame: view too large to frame")
	}
	out := make([]byte, 4+len(view))
	binary.BigEndian.PutUint32(out, uint32(len(view)))
	copy(out[4:], view)
	return out, nil
}

// LengthPrefixDeframer reverses LengthPrefixFramer, validating that the
// declared length matches the remaining bytes.
type LengthPrefixDeframer struct{}

var _ Processor = (*LengthPrefixDeframer)(nil)

// Name implements Processor.
func (f *LengthPrefixDeframer) Name() string { return "length_prefix_deframe" }

// Process implements Processor.
func (f *LengthPrefixDeframer) Process(_ context.Context, view []byte) ([]byte, error) {
	if len(view) < 4 {
		return nil, fmt.Errorf("process: length_prefix_deframe: view shorter than length header")
	}
	n := binary.BigEndian.Uint32(view)
	body := view[4:]
	if uint32(len(body)) != n {
		return nil, fmt.Errorf("process: length_prefix_deframe: declared length %d does not match body length %d", n, len(body))
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}
