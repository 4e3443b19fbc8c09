// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Andrei Vetrov

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// keychain is the private implementation of [Keychain].
type keychain struct {
	// Argon2id tuning parameters. Stored in the struct so they can be
	// adjusted per deployment target (e.g. mobile vs. desktop).
	argonTime    uint32
	argonMemory  uint32
	argonThreads uint8
	argonKeyLen  uint32
}

// NewKeychain constructs a [Keychain] with the Argon2id parameters
// recommended by OWASP (2024):
//   - time cost:   1 iteration
//   - memory cost: 64 MiB
//   - parallelism: 4 threads
//   - key length:  32 bytes (256 bits)
func NewKeychain() Keychain {
	return &keychain{
		argonTime:    1,
		argonMemory:  64 * 1024, // 64 MiB
		argonThreads: 4,
		argonKeyLen:  32, // 256 bits
	}
}

// GenerateSalt implements [Keychain]. It reads 16 random bytes from the OS
// CSPRNG and returns them as the key-derivation salt. Returns an error if
// the random read fails.
func (k *keychain) GenerateSalt() ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// DeriveKey implements [Keychain]. It derives a 256-bit storage key from the
// device secret and salt using Argon2id with the parameters stored in the
// receiver. The result exists only in client memory and is never persisted
// or transmitted.
func (k *keychain) DeriveKey(deviceSecret string, salt []byte) []byte {
	return argon2.IDKey(
		[]byte(deviceSecret),
		salt,
		k.argonTime,
		k.argonMemory,
		k.argonThreads,
		k.argonKeyLen,
	)
}

// Seal implements [Keychain]. It marshals data to JSON, then encrypts it
// with key using AES-256-GCM. The output is a Base64 (standard encoding)
// string of the blob: nonce (12 bytes) ‖ ciphertext. Returns an error if
// marshalling, cipher creation, or nonce generation fails.
func (k *keychain) Seal(data any, key []byte) (string, error) {
	// 1. Serialize to JSON
	plaintext, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal data: %w", err)
	}

	// 2. Build AES-GCM cipher from the storage key
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create gcm: %w", err)
	}

	// 3. Generate a random nonce
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	// 4. Encrypt: nonce || ciphertext
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	blob := append(nonce, ciphertext...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// Open implements [Keychain]. It Base64-decodes sealedB64, splits out the
// nonce, decrypts the ciphertext with key via AES-256-GCM, and unmarshals
// the resulting JSON into target. target must be a non-nil pointer,
// identical to the requirement of [encoding/json.Unmarshal]. Returns an
// error if any step (decoding, cipher creation, decryption, or
// unmarshalling) fails.
func (k *keychain) Open(sealedB64 string, key []byte, target any) error {
	// 1. Decode base64 blob
	blob, err := base64.StdEncoding.DecodeString(sealedB64)
	if err != nil {
		return fmt.Errorf("decode base64: %w", err)
	}

	// 2. Build AES-GCM cipher from the storage key
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("create gcm: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(blob) < nonceSize {
		return fmt.Errorf("ciphertext too short")
	}

	// 3. Split the blob into nonce and actual ciphertext.
	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]

	// 4. Decrypt and verify auth tag. An error here almost always means the
	// device secret changed, producing a wrong storage key.
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("decryption failed: %w", err)
	}

	if err := json.Unmarshal(plaintext, target); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}

	return nil
}
