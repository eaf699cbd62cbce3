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
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// AESGCMEncryptor encrypts the byte view with AES-256-GCM, prefixing the
// output with the random nonce GCM requires for decryption. Key must be 32
// bytes (AES-256). As with GzipCompressor, no encryption library appears
// in the corpus, so this is built on the standard library's crypto/aes and
// crypto/cipher rather than an unverified dependency.
type AESGCMEncryptor struct {
	Key []byte
}

var _ Processor = (*AESGCMEncryptor)(nil)

// Name implements Processor.
func (e *AESGCMEncryptor) Name() string { return "aes_gcm_encrypt" }

// Process implements Processor.
func (e *AESGCMEncryptor) Process(_ context.Context, view []byte) ([]byte, error) {
	gcm, err := e.gcm()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("process: aes_gcm_encrypt: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, view, nil)
	return sealed, nil
}

func (e *AESGCMEncryptor) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.Key)
	if err != nil {
		return nil, fmt.Errorf("process: aes_gcm: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("process: aes_gcm: %w", err)
	}
	return gcm, nil
}

// AESGCMDecryptor reverses AESGCMEncryptor.
type AESGCMDecryptor struct {
	Key []byte
}

var _ Processor = (*AESGCMDecryptor)(nil)

// Name implements Processor.
func (d *AESGCMDecryptor) Name() string { return "aes_gcm_decrypt" }

// Process implements Processor.
func (d *AESGCMDecryptor) Process(_ context.Context, view []byte) ([]byte, error) {
	block, err := aes.NewCipher(d.Key)
	if err != nil {
		return nil, fmt.Errorf("process: aes_gcm_decrypt: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("process: aes_gcm_decrypt: %w", err)
	}
	if len(view) < gcm.NonceSize() {
		return nil, fmt.Errorf("process: aes_gcm_decrypt: view shorter than nonce")
	}
	nonce, ciphertext := view[:gcm.NonceSize()], view[gcm.NonceSize():]
	out, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("process: aes_gcm_decrypt: %w", err)
	}
	return out, nil
}
