package interfaces

import "github.com/hoistscout/hoistscout/internal/models"

// Vault provides authenticated symmetric encryption for credential blobs.
// One process-wide key is loaded at startup; Seal output carries a version
// byte so Rotate can re-encrypt without downtime.
type Vault interface {
	// Seal encrypts plaintext and returns versioned ciphertext
	Seal(plaintext []byte) ([]byte, error)

	// Open decrypts ciphertext produced by Seal. Returns ErrTampered on
	// MAC failure.
	Open(ciphertext []byte) ([]byte, error)

	// Rotate installs a new key for future Seal calls. Previously sealed
	// blobs remain readable until re-encrypted.
	Rotate(newKey []byte) error

	// SealCredentials and OpenCredentials wrap Seal/Open with the
	// credential JSON codec.
	SealCredentials(creds *models.Credentials) ([]byte, error)
	OpenCredentials(ciphertext []byte) (*models.Credentials, error)
}
