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
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
)

// GzipCompressor gzip-compresses the byte view. Level follows
// compress/gzip's constants; zero uses gzip.DefaultCompression.
//
// No third-party compression library appears anywhere in the retrieved
// corpus (the teacher tree's only dependency is the zap encoding stack),
// so this processor is built directly on the standard library rather than
// reaching for an unverified dependency.
type GzipCompressor struct {
	Level int
}

var _ Processor = (*GzipCompressor)(nil)

// Name implements Processor.
func (g *GzipCompressor) Name() string { return "gzip_compress" }

// Process implements Processor.
func (g *GzipCompressor) Process(_ context.Context, view []byte) ([]byte, error) {
	level := g.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("process: gzip_compress: %w", err)
	}
	if _, err := w.Write(view); err != nil {
		return nil, fmt.Errorf("process: gzip_compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("process: gzip_compress: %w", err)
	}
	return buf.Bytes(), nil
}

// GzipDecompressor reverses GzipCompressor. It is provided for sinks or
// downstream consumers that need to read a compressed view back.
type GzipDecompressor struct{}

var _ Processor = (*GzipDecompressor)(nil)

// Name implements Processor.
func (g *GzipDecompressor) Name() string { return "gzip_decompress" }

// Process implements Processor.
func (g *GzipDecompressor) Process(_ context.Context, view []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(view))
	if err != nil {
		return nil, fmt.Errorf("process: gzip_decompress: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("process: gzip_decompress: %w", err)
	}
	return out, nil
}
