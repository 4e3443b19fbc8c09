package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/avetrov/offsync/internal/config"
	"github.com/avetrov/offsync/internal/crypto"
	"github.com/avetrov/offsync/internal/logger"
	"github.com/avetrov/offsync/models"
)

// sealedCredentialFile is the persisted layout of the secure store: the
// key-derivation salt in the clear, the credential sealed with the derived
// key.
type sealedCredentialFile struct {
	Salt []byte `json:"salt"`
	Blob string `json:"blob"`
}

type fileSecureStore struct {
	path     string
	secret   string
	keychain crypto.Keychain
	log      *logger.Logger

	mu sync.Mutex
}

// NewSecureStore constructs a [SecureStore] backed by a sealed file at
// cfg.Path. The storage key is derived per write from cfg.DeviceKey and a
// fresh salt via the keychain. The device key is expected to come from the
// platform keystore; an empty one still works but downgrades the at-rest
// protection to obfuscation.
func NewSecureStore(cfg config.Secure, keychain crypto.Keychain, log *logger.Logger) SecureStore {
	return &fileSecureStore{
		path:     cfg.Path,
		secret:   cfg.DeviceKey,
		keychain: keychain,
		log:      log,
	}
}

func (s *fileSecureStore) Save(ctx context.Context, cred models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cred.ExpiresAt.IsZero() {
		if exp, ok := tokenExpiry(cred.AccessToken); ok {
			cred.ExpiresAt = exp
		}
	}

	salt, err := s.keychain.GenerateSalt()
	if err != nil {
		return fmt.Errorf("generate credential salt: %w", err)
	}

	key := s.keychain.DeriveKey(s.secret, salt)
	blob, err := s.keychain.Seal(cred, key)
	if err != nil {
		return fmt.Errorf("seal credential: %w", err)
	}

	return s.writeEnvelope(sealedCredentialFile{Salt: salt, Blob: blob})
}

func (s *fileSecureStore) Load(ctx context.Context) (models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	envelope, err := s.readEnvelope()
	if err != nil {
		return models.Credential{}, err
	}

	key := s.keychain.DeriveKey(s.secret, envelope.Salt)

	var cred models.Credential
	if err := s.keychain.Open(envelope.Blob, key, &cred); err != nil {
		// Wrong device key or corrupted file: the credential is gone either
		// way, surface it as an unavailable backend.
		s.log.Warn().Err(err).Msg("credential blob could not be opened")
		return models.Credential{}, fmt.Errorf("open credential blob: %w", ErrStorageUnavailable)
	}

	return cred, nil
}

func (s *fileSecureStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove credential file: %w", err)
	}
	return nil
}

func (s *fileSecureStore) writeEnvelope(envelope sealedCredentialFile) error {
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create secure store dir: %w", err)
		}
	}

	payload, err := encodeEnvelope(envelope)
	if err != nil {
		return err
	}

	if err := os.WriteFile(s.path, payload, 0o600); err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}
	return nil
}

func (s *fileSecureStore) readEnvelope() (sealedCredentialFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return sealedCredentialFile{}, ErrCredentialNotFound
		}
		return sealedCredentialFile{}, fmt.Errorf("read credential file: %w", ErrStorageUnavailable)
	}

	envelope, err := decodeEnvelope(data)
	if err != nil {
		return sealedCredentialFile{}, fmt.Errorf("decode credential file: %w", ErrStorageUnavailable)
	}
	return envelope, nil
}

func encodeEnvelope(envelope sealedCredentialFile) ([]byte, error) {
	payload, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode credential envelope: %w", err)
	}
	return payload, nil
}

func decodeEnvelope(data []byte) (sealedCredentialFile, error) {
	var envelope sealedCredentialFile
	if err := json.Unmarshal(data, &envelope); err != nil {
		return sealedCredentialFile{}, err
	}
	return envelope, nil
}

// tokenExpiry extracts the "exp" claim from a JWT access token without
// verifying the signature; verification is the server's job, the client only
// needs the lifetime hint.
func tokenExpiry(accessToken string) (time.Time, bool) {
	if accessToken == "" {
		return time.Time{}, false
	}

	token, _, err := jwt.NewParser().ParseUnverified(accessToken, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}

	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
