// Package crypto implements the at-rest encryption primitives backing the
// secure credential store.
package crypto

// Keychain derives storage keys and seals/opens JSON blobs. It is the only
// component that touches key material; callers hold opaque byte slices.
type Keychain interface {
	// GenerateSalt returns 16 CSPRNG bytes for key derivation.
	GenerateSalt() ([]byte, error)

	// DeriveKey derives a 256-bit storage key from the device secret and
	// salt via Argon2id.
	DeriveKey(deviceSecret string, salt []byte) []byte

	// Seal JSON-marshals data and encrypts it with AES-256-GCM, returning a
	// Base64 blob of nonce ‖ ciphertext.
	Seal(data any, key []byte) (string, error)

	// Open reverses Seal into target, which must be a non-nil pointer.
	// Fails if the key is wrong or the blob is corrupted.
	Open(sealedB64 string, key []byte, target any) error
}
