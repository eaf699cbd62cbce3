package process

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestChain_RunsProcessorsInOrder(t *testing.T) {
	var order []string
	p1 := ProcessorFunc{FuncName: "p1", Fn: func(_ context.Context, v []byte) ([]byte, error) {
		order = append(order, "p1")
		return append(v, '1'), nil
	}}
	p2 := ProcessorFunc{FuncName: "p2", Fn: func(_ context.Context, v []byte) ([]byte, error) {
		order = append(order, "p2")
		return append(v, '2'), nil
	}}

	c := NewChain([]Processor{p1, p2}, nil)
	out := c.Run(context.Background(), []byte("x"))

	if string(out) != "x12" {
		t.Fatalf("out = %q, want x12", out)
	}
	if len(order) != 2 || order[0] != "p1" || order[1] != "p2" {
		t.Fatalf("processors ran out of order: %v", order)
	}
}

func TestChain_FailingProcessorLeavesViewUnchanged(t *testing.T) {
	failing := ProcessorFunc{FuncName: "boom", Fn: func(_ context.Context, v []byte) ([]byte, error) {
		return nil, errors.New("boom")
	}}
	trailing := ProcessorFunc{FuncName: "trailing", Fn: func(_ context.Context, v []byte) ([]byte, error) {
		return append(v, "!"...), nil
	}}

	c := NewChain([]Processor{failing, trailing}, nil)
	out := c.Run(context.Background(), []byte("x"))

	if string(out) != "x!" {
		t.Fatalf("out = %q, want x! (failing processor should pass the original view through)", out)
	}
}

func TestChain_PanickingProcessorIsContained(t *testing.T) {
	panicker := ProcessorFunc{FuncName: "panics", Fn: func(_ context.Context, v []byte) ([]byte, error) {
		panic("unexpected")
	}}
	c := NewChain([]Processor{panicker}, nil)

	out := c.Run(context.Background(), []byte("x"))
	if string(out) != "x" {
		t.Fatalf("out = %q, want x unchanged after panicking processor", out)
	}
}

func TestGzipCompressor_RoundTripsWithDecompressor(t *testing.T) {
	original := []byte(`{"message":"hello world","level":"info"}`)

	compressor := &GzipCompressor{}
	compressed, err := compressor.Process(context.Background(), original)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if bytes.Equal(compressed, original) {
		t.Fatalf("compressed output identical to input")
	}

	decompressor := &GzipDecompressor{}
	restored, err := decompressor.Process(context.Background(), compressed)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(restored, original) {
		t.Fatalf("restored = %q, want %q", restored, original)
	}
}

func TestAESGCMEncryptor_RoundTripsWithDecryptor(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	original := []byte(`{"message":"secret payload"}`)

	enc := &AESGCMEncryptor{Key: key}
	ciphertext, err := enc.Process(context.Background(), original)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Equal(ciphertext, original) {
		t.Fatalf("ciphertext identical to plaintext")
	}

	dec := &AESGCMDecryptor{Key: key}
	restored, err := dec.Process(context.Background(), ciphertext)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(restored, original) {
		t.Fatalf("restored = %q, want %q", restored, original)
	}
}

func TestAESGCMEncryptor_ProducesDistinctCiphertextsPerCall(t *testing.T) {
	key := bytes.Repeat([]byte{0x7}, 32)
	enc := &AESGCMEncryptor{Key: key}
	payload := []byte("same payload each time")

	a, err := enc.Process(context.Background(), payload)
	if err != nil {
		t.Fatalf("encrypt 1: %v", err)
	}
	b, err := enc.Process(context.Background(), payload)
	if err != nil {
		t.Fatalf("encrypt 2: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("expected distinct ciphertexts due to random nonce, got identical output")
	}
}

func TestLengthPrefixFramer_RoundTripsWithDeframer(t *testing.T) {
	payload := []byte(`{"k":"v"}`)

	framer := &LengthPrefixFramer{}
	framed, err := framer.Process(context.Background(), payload)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if len(framed) != len(payload)+4 {
		t.Fatalf("framed length = %d, want %d", len(framed), len(payload)+4)
	}

	deframer := &LengthPrefixDeframer{}
	restored, err := deframer.Process(context.Background(), framed)
	if err != nil {
		t.Fatalf("deframe: %v", err)
	}
	if !bytes.Equal(restored, payload) {
		t.Fatalf("restored = %q, want %q", restored, payload)
	}
}

func TestLengthPrefixDeframer_RejectsLengthMismatch(t *testing.T) {
	deframer := &LengthPrefixDeframer{}
	bogus := []byte{0, 0, 0, 99, 'a', 'b'}

	if _, err := deframer.Process(context.Background(), bogus); err == nil {
		t.Fatalf("expected error on declared-length mismatch")
	}
}
