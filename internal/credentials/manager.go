// Package credentials encrypts stored secrets with AES-256-GCM keys kept in
// the system keyring.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
	"go.uber.org/zap"
)

const (
	// KeyringService is the keyring entry all keys are stored under
	KeyringService = "lifetracker-sync"

	// Algorithm tags encrypted blobs
	Algorithm = "aes-256-gcm"

	databaseKeyUser = "database"
	keySize         = 32
)

var (
	ErrInvalidBlob      = errors.New("invalid encrypted blob")
	ErrUnknownAlgorithm = errors.New("unknown encryption algorithm")
	ErrKeyNotFound      = errors.New("encryption key not found")
)

// Blob is the stored form of an encrypted secret
type Blob struct {
	Algorithm  string `json:"algorithm"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Manager encrypts and decrypts secrets. One key is kept per service label,
// and the label is bound to the ciphertext as additional data.
type Manager struct {
	mu     sync.Mutex
	logger *zap.Logger
}

// NewManager creates a credential manager
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger: logger.With(zap.String("component", "credential-manager")),
	}
}

// Encrypt returns the JSON blob for plaintext, creating the service key on first use
func (m *Manager) Encrypt(service, plaintext string) (string, error) {
	if service == "" {
		return "", fmt.Errorf("service cannot be empty")
	}

	key, err := m.key(service, true)
	if err != nil {
		return "", err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, []byte(plaintext), []byte(service))

	data, err := json.Marshal(Blob{
		Algorithm:  Algorithm,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal blob: %w", err)
	}
	return string(data), nil
}

// Decrypt reverses Encrypt. It never creates a key.
func (m *Manager) Decrypt(service, blob string) (string, error) {
	var b Blob
	if err := json.Unmarshal([]byte(blob), &b); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBlob, err)
	}
	if b.Algorithm != Algorithm {
		return "", fmt.Errorf("%w: %q", ErrUnknownAlgorithm, b.Algorithm)
	}
	nonce, err := base64.StdEncoding.DecodeString(b.Nonce)
	if err != nil {
		return "", fmt.Errorf("%w: nonce: %v", ErrInvalidBlob, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(b.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext: %v", ErrInvalidBlob, err)
	}

	key, err := m.key(service, false)
	if err != nil {
		return "", err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("%w: nonce size %d", ErrInvalidBlob, len(nonce))
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(service))
	if err != nil {
		return "", fmt.Errorf("failed to decrypt %s secret: %w", service, err)
	}
	return string(plaintext), nil
}

// DatabaseKey returns the SQLCipher key, creating it on first use
func (m *Manager) DatabaseKey() (string, error) {
	key, err := m.loadOrCreate(databaseKeyUser, true)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

// DeleteKey removes the key of a service. Blobs encrypted with it become unreadable.
func (m *Manager) DeleteKey(service string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := keyring.Delete(KeyringService, keyUser(service)); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete key from keyring: %w", err)
	}
	m.logger.Info("encryption key deleted", zap.String("service", service))
	return nil
}

// IsEncrypted reports whether s looks like a blob produced by Encrypt
func IsEncrypted(s string) bool {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return false
	}
	var b Blob
	return json.Unmarshal([]byte(s), &b) == nil && b.Algorithm != ""
}

func (m *Manager) key(service string, create bool) ([]byte, error) {
	return m.loadOrCreate(keyUser(service), create)
}

func (m *Manager) loadOrCreate(user string, create bool) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := keyring.Get(KeyringService, user)
	switch {
	case err == nil:
		key, err := base64.StdEncoding.DecodeString(stored)
		if err != nil || len(key) != keySize {
			return nil, fmt.Errorf("corrupted key %q in keyring", user)
		}
		return key, nil
	case !errors.Is(err, keyring.ErrNotFound):
		return nil, fmt.Errorf("failed to load key from keyring: %w", err)
	case !create:
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, user)
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	if err := keyring.Set(KeyringService, user, base64.StdEncoding.EncodeToString(key)); err != nil {
		return nil, fmt.Errorf("failed to store key in keyring: %w", err)
	}

	m.logger.Info("encryption key created", zap.String("key", user))
	return key, nil
}

func keyUser(service string) string {
	return "key:" + service
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
