package credentials

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	keyring.MockInit()
	return NewManager(zap.NewNop())
}

func TestEncryptDecrypt(t *testing.T) {
	m := newTestManager(t)

	blob, err := m.Encrypt("lifetracker-webdav", "s3cret")
	require.NoError(t, err)
	assert.NotContains(t, blob, "s3cret")
	assert.True(t, IsEncrypted(blob))

	var b Blob
	require.NoError(t, json.Unmarshal([]byte(blob), &b))
	assert.Equal(t, Algorithm, b.Algorithm)
	assert.NotEmpty(t, b.Nonce)
	assert.NotEmpty(t, b.Ciphertext)

	plain, err := m.Decrypt("lifetracker-webdav", blob)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", plain)

	// fresh nonce every time
	again, err := m.Encrypt("lifetracker-webdav", "s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, blob, again)
}

func TestDecrypt_WrongService(t *testing.T) {
	m := newTestManager(t)

	blob, err := m.Encrypt("lifetracker-webdav", "s3cret")
	require.NoError(t, err)
	_, err = m.Encrypt("lifetracker-smb", "other")
	require.NoError(t, err)

	_, err = m.Decrypt("lifetracker-smb", blob)
	assert.Error(t, err)
}

func TestDecrypt_NoKey(t *testing.T) {
	m := newTestManager(t)

	blob, err := m.Encrypt("lifetracker-webdav", "s3cret")
	require.NoError(t, err)
	require.NoError(t, m.DeleteKey("lifetracker-webdav"))

	_, err = m.Decrypt("lifetracker-webdav", blob)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestDecrypt_InvalidBlobs(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Encrypt("svc", "x")
	require.NoError(t, err)

	tests := []struct {
		name string
		blob string
		want error
	}{
		{"not json", "not json", ErrInvalidBlob},
		{"array", `["a","b"]`, ErrInvalidBlob},
		{"algorithm", `{"algorithm":"rot13","nonce":"","ciphertext":""}`, ErrUnknownAlgorithm},
		{"nonce encoding", `{"algorithm":"aes-256-gcm","nonce":"!!","ciphertext":""}`, ErrInvalidBlob},
		{"nonce size", `{"algorithm":"aes-256-gcm","nonce":"AAAA","ciphertext":""}`, ErrInvalidBlob},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Decrypt("svc", tt.blob)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDatabaseKey(t *testing.T) {
	m := newTestManager(t)

	k1, err := m.DatabaseKey()
	require.NoError(t, err)
	assert.Len(t, k1, 64)

	k2, err := m.DatabaseKey()
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestIsEncrypted(t *testing.T) {
	assert.False(t, IsEncrypted("plain password"))
	assert.False(t, IsEncrypted("{not json"))
	assert.False(t, IsEncrypted(`{"nonce":"x"}`))
	assert.True(t, IsEncrypted(`{"algorithm":"aes-256-gcm","nonce":"x","ciphertext":"y"}`))
}
