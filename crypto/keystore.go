package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

const (
	// gcmNonceSize is the AES-GCM nonce size in bytes.
	gcmNonceSize = 12
	// gcmTagSize is the AES-GCM authentication tag size in bytes.
	gcmTagSize = 16
)

// EncryptedKeyRecord is the persisted form of an identity private key. It is
// the only artifact from this core that is ever written to durable storage;
// the decrypted key exists only transiently in memory.
type EncryptedKeyRecord struct {
	Ciphertext []byte `json:"ciphertext"`
	Nonce      []byte `json:"nonce"`
	Tag        []byte `json:"tag"`
	Salt       []byte `json:"salt"`
}

// EncryptIdentityKey encrypts a raw private key under the master key with
// AES-256-GCM and a fresh random nonce. kdfSalt is the salt the master key
// was derived with; it travels inside the record so the key can be
// re-derived at next unlock.
func EncryptIdentityKey(rawPrivate, masterKey, kdfSalt []byte) (*EncryptedKeyRecord, error) {
	if len(masterKey) != MasterKeySize {
		return nil, fmt.Errorf("%w: master key is %d bytes, want %d", ErrInvalidKeyLength, len(masterKey), MasterKeySize)
	}
	if len(rawPrivate) == 0 {
		return nil, fmt.Errorf("%w: empty private key", ErrInvalidKeyLength)
	}

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, rawPrivate, nil)
	tagStart := len(sealed) - gcmTagSize

	return &EncryptedKeyRecord{
		Ciphertext: sealed[:tagStart],
		Nonce:      nonce,
		Tag:        sealed[tagStart:],
		Salt:       append([]byte(nil), kdfSalt...),
	}, nil
}

// DecryptIdentityKey decrypts an identity-key record with the master key.
// It fails closed: if the authentication tag does not verify the result is
// ErrBadDecryptionKey and no plaintext of any kind is returned.
func DecryptIdentityKey(record *EncryptedKeyRecord, masterKey []byte) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("%w: nil record", ErrInvalidPayload)
	}
	if len(masterKey) != MasterKeySize {
		return nil, fmt.Errorf("%w: master key is %d bytes, want %d", ErrInvalidKeyLength, len(masterKey), MasterKeySize)
	}
	if len(record.Nonce) != gcmNonceSize {
		return nil, fmt.Errorf("%w: nonce is %d bytes, want %d", ErrInvalidPayload, len(record.Nonce), gcmNonceSize)
	}
	if len(record.Tag) != gcmTagSize {
		return nil, fmt.Errorf("%w: tag is %d bytes, want %d", ErrInvalidPayload, len(record.Tag), gcmTagSize)
	}

	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	sealed := make([]byte, 0, len(record.Ciphertext)+gcmTagSize)
	sealed = append(sealed, record.Ciphertext...)
	sealed = append(sealed, record.Tag...)

	plaintext, err := gcm.Open(nil, record.Nonce, sealed, nil)
	if err != nil {
		return nil, ErrBadDecryptionKey
	}
	return plaintext, nil
}

// KeyStore persists encrypted identity-key records as files with restricted
// permissions. Records are stored as JSON; the key material inside is
// already AES-GCM protected.
type KeyStore struct {
	dataDir string
}

// NewKeyStore creates a key store rooted at dataDir, creating the directory
// if needed.
func NewKeyStore(dataDir string) (*KeyStore, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &KeyStore{dataDir: dataDir}, nil
}

// SaveIdentityKey writes a record under the given name.
func (ks *KeyStore) SaveIdentityKey(name string, record *EncryptedKeyRecord) error {
	if record == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidPayload)
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	path := ks.recordPath(name)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "SaveIdentityKey",
		"package":  "crypto",
		"name":     name,
	}).Debug("persisted identity key record")

	return nil
}

// LoadIdentityKey reads a record previously written with SaveIdentityKey.
func (ks *KeyStore) LoadIdentityKey(name string) (*EncryptedKeyRecord, error) {
	raw, err := os.ReadFile(ks.recordPath(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}

	var record EncryptedKeyRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &record, nil
}

// DeleteIdentityKey shreds and removes a record file. Used by the duress
// flow; see ShredFile for the overwrite semantics.
func (ks *KeyStore) DeleteIdentityKey(name string) error {
	return ShredFile(ks.recordPath(name))
}

func (ks *KeyStore) recordPath(name string) string {
	return filepath.Join(ks.dataDir, name+".key")
}
