package config

import (
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomSecretHex(t *testing.T) string {
	t.Helper()
	b := make([]byte, 32)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return hex.EncodeToString(b)
}

func TestDecodeSecretHex(t *testing.T) {
	t.Parallel()
	hexSecret := randomSecretHex(t)
	b, err := decodeSecret(hexSecret)
	require.NoError(t, err)
	assert.Len(t, b, 32)
}

func TestDecodeSecretRejectsGarbage(t *testing.T) {
	t.Parallel()
	_, err := decodeSecret("not-hex-or-base64!!")
	assert.Error(t, err)
}

func TestDecodeSecretRejectsEmpty(t *testing.T) {
	t.Parallel()
	_, err := decodeSecret("")
	assert.Error(t, err)
}

func TestLoadAppliesDefaultsAndValidates(t *testing.T) {
	t.Setenv("OPENAUTH_SESSION_SECRET", randomSecretHex(t))
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxAccountsPerSession, cfg.MaxAccountsPerSession)
	assert.Equal(t, DefaultSessionLifetime, cfg.SessionLifetime)
	assert.Equal(t, DefaultTenantHeaderName, cfg.TenantHeaderName)
}

func TestLoadFailsWithoutSecret(t *testing.T) {
	_, err := Load("")
	assert.Error(t, err)
}

func TestValidateRejectsShortSecret(t *testing.T) {
	t.Parallel()
	cfg := &Config{SessionSecret: []byte("short"), MaxAccountsPerSession: 3}
	assert.Error(t, cfg.Validate())
}
