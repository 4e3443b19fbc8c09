// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Andrei Vetrov

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avetrov/offsync/internal/config"
	"github.com/avetrov/offsync/internal/crypto"
	"github.com/avetrov/offsync/internal/logger"
	"github.com/avetrov/offsync/models"
)

func newTestSecureStore(t *testing.T, deviceKey string) (SecureStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.sealed")
	cfg := config.Secure{Path: path, DeviceKey: deviceKey}
	return NewSecureStore(cfg, crypto.NewKeychain(), logger.Nop()), path
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

// ── Save / Load ──────────────────────────────────────────────────────────────

func TestSecureStore_SaveLoad_RoundTrip(t *testing.T) {
	s, _ := newTestSecureStore(t, "device-key")
	ctx := context.Background()

	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	cred := models.Credential{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		ExpiresAt:    expiry,
	}
	require.NoError(t, s.Save(ctx, cred))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-token", got.AccessToken)
	assert.Equal(t, "refresh-token", got.RefreshToken)
	assert.True(t, expiry.Equal(got.ExpiresAt))
}

func TestSecureStore_Save_DerivesExpiryFromJWT(t *testing.T) {
	s, _ := newTestSecureStore(t, "device-key")
	ctx := context.Background()

	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	cred := models.Credential{AccessToken: signedToken(t, exp)}
	require.NoError(t, s.Save(ctx, cred))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, exp.Equal(got.ExpiresAt), "срок берётся из exp-клейма токена")
}

func TestSecureStore_Save_OpaqueToken_NoExpiry(t *testing.T) {
	s, _ := newTestSecureStore(t, "device-key")
	ctx := context.Background()

	// не-JWT токен: срок остаётся нулевым, Expired() его не отбраковывает
	require.NoError(t, s.Save(ctx, models.Credential{AccessToken: "opaque-token"}))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.IsZero())
	assert.False(t, got.Expired(time.Now()))
}

func TestSecureStore_Load_NotFound(t *testing.T) {
	s, _ := newTestSecureStore(t, "device-key")

	_, err := s.Load(context.Background())
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestSecureStore_Load_WrongDeviceKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.sealed")
	keychain := crypto.NewKeychain()
	ctx := context.Background()

	s1 := NewSecureStore(config.Secure{Path: path, DeviceKey: "key-one"}, keychain, logger.Nop())
	require.NoError(t, s1.Save(ctx, models.Credential{AccessToken: "secret"}))

	// другой device key → расшифровка невозможна, деградация без паники
	s2 := NewSecureStore(config.Secure{Path: path, DeviceKey: "key-two"}, keychain, logger.Nop())
	_, err := s2.Load(ctx)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestSecureStore_Load_CorruptedFile(t *testing.T) {
	s, path := newTestSecureStore(t, "device-key")
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, models.Credential{AccessToken: "secret"}))
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

// ── Clear ────────────────────────────────────────────────────────────────────

func TestSecureStore_Clear_RemovesCredential(t *testing.T) {
	s, path := newTestSecureStore(t, "device-key")
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, models.Credential{AccessToken: "secret"}))
	require.NoError(t, s.Clear(ctx))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	_, err = s.Load(ctx)
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestSecureStore_Clear_Idempotent(t *testing.T) {
	s, _ := newTestSecureStore(t, "device-key")

	assert.NoError(t, s.Clear(context.Background()))
}

// ── Формат файла ─────────────────────────────────────────────────────────────

func TestSecureStore_File_DoesNotLeakPlaintext(t *testing.T) {
	s, path := newTestSecureStore(t, "device-key")

	require.NoError(t, s.Save(context.Background(), models.Credential{AccessToken: "very-secret-token"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "very-secret-token")
}
