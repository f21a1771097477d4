package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/hoistscout/hoistscout/internal/interfaces"
	"github.com/hoistscout/hoistscout/internal/models"
)

const keySize = 32 // AES-256

// Service provides authenticated symmetric encryption for credential
// blobs. Ciphertext layout: version byte || nonce || AES-256-GCM output.
// The version byte selects the key, so Rotate can install a new key while
// blobs sealed under older keys stay readable until re-encrypted.
type Service struct {
	mu      sync.RWMutex
	keys    map[byte][]byte
	current byte
	logger  arbor.ILogger
}

// NewService creates a vault from a base64-encoded 32-byte key. Fails
// fast with ErrKeyMissing when the key is absent or malformed.
func NewService(keyB64 string, logger arbor.ILogger) (*Service, error) {
	if keyB64 == "" {
		return nil, models.ErrKeyMissing
	}
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: key is not valid base64", models.ErrKeyMissing)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", models.ErrKeyMissing, keySize, len(key))
	}

	return &Service{
		keys:    map[byte][]byte{1: key},
		current: 1,
		logger:  logger,
	}, nil
}

// Seal encrypts plaintext under the current key
func (s *Service) Seal(plaintext []byte) ([]byte, error) {
	s.mu.RLock()
	version := s.current
	key := s.keys[version]
	s.mu.RUnlock()

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	out := make([]byte, 0, 1+len(nonce)+len(sealed))
	out = append(out, version)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// Open decrypts ciphertext produced by Seal. Returns ErrTampered when the
// blob is truncated, references an unknown key version, or fails the MAC.
func (s *Service) Open(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 2 {
		return nil, fmt.Errorf("%w: ciphertext too short", models.ErrTampered)
	}

	version := ciphertext[0]
	s.mu.RLock()
	key, ok := s.keys[version]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown key version %d", models.ErrTampered, version)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	body := ciphertext[1:]
	nonceSize := gcm.NonceSize()
	if len(body) < nonceSize {
		return nil, fmt.Errorf("%w: ciphertext too short", models.ErrTampered)
	}

	plaintext, err := gcm.Open(nil, body[:nonceSize], body[nonceSize:], nil)
	if err != nil {
		return nil, models.ErrTampered
	}
	return plaintext, nil
}

// Rotate installs newKey as the current key. Blobs sealed under previous
// versions remain readable.
func (s *Service) Rotate(newKey []byte) error {
	if len(newKey) != keySize {
		return fmt.Errorf("%w: key must be %d bytes, got %d", models.ErrKeyMissing, keySize, len(newKey))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current + 1
	if _, exists := s.keys[next]; exists {
		return fmt.Errorf("key version space exhausted")
	}
	keyCopy := make([]byte, keySize)
	copy(keyCopy, newKey)
	s.keys[next] = keyCopy
	s.current = next

	s.logger.Info().Int("version", int(next)).Msg("Vault key rotated")
	return nil
}

// SealCredentials encrypts a credential map as JSON
func (s *Service) SealCredentials(creds *models.Credentials) ([]byte, error) {
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize credentials: %w", err)
	}
	sealed, err := s.Seal(plaintext)
	zero(plaintext)
	return sealed, err
}

// OpenCredentials decrypts a credential blob. The caller wipes the result
// once used.
func (s *Service) OpenCredentials(ciphertext []byte) (*models.Credentials, error) {
	plaintext, err := s.Open(ciphertext)
	if err != nil {
		return nil, err
	}
	defer zero(plaintext)

	var creds models.Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, fmt.Errorf("%w: credential payload is not valid JSON", models.ErrTampered)
	}
	return &creds, nil
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

// zero overwrites a buffer that held plaintext secrets
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

var _ interfaces.Vault = (*Service)(nil)
