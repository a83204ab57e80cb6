package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

const (
	// MasterKeySize is the size of all derived working keys in bytes.
	MasterKeySize = 32

	// MinSaltSize is the minimum acceptable salt length for Argon2id.
	MinSaltSize = 16

	// Argon2id parameters. Memory-hard settings sized for interactive
	// unlock on mobile and desktop hardware.
	argonTimeCost    = 3
	argonMemoryKiB   = 64 * 1024
	argonParallelism = 4
)

// Domain-separation labels for HKDF-derived working keys.
const (
	databaseKeySalt = "veilcore-dek-v1"
	databaseKeyInfo = "database-encryption"
)

// DeriveMasterKey derives the 256-bit master key from a user secret using
// Argon2id. The secret is the user's passphrase or a biometric-unwrapped
// token; the salt must be at least MinSaltSize bytes and is persisted
// alongside the encrypted identity key.
//
// This is deliberately expensive and must not run on a latency-sensitive
// path. The caller owns the returned key and must SecureWipe it on lock.
func DeriveMasterKey(secret, salt []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if len(salt) < MinSaltSize {
		return nil, fmt.Errorf("%w: got %d bytes, want at least %d", ErrInvalidSaltLength, len(salt), MinSaltSize)
	}

	start := time.Now()
	key := argon2.IDKey(secret, salt, argonTimeCost, argonMemoryKiB, argonParallelism, MasterKeySize)

	logrus.WithFields(logrus.Fields{
		"function":    "DeriveMasterKey",
		"package":     "crypto",
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("derived master key")

	return key, nil
}

// DeriveDatabaseKey derives the storage-layer encryption key from the master
// key via HKDF with a fixed domain-separation label. Pure function of the
// master key.
func DeriveDatabaseKey(masterKey []byte) ([]byte, error) {
	if len(masterKey) != MasterKeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKeyLength, len(masterKey), MasterKeySize)
	}

	reader := hkdf.New(sha256.New, masterKey, []byte(databaseKeySalt), []byte(databaseKeyInfo))
	key := make([]byte, MasterKeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("hkdf expand failed: %w", err)
	}
	return key, nil
}

// GenerateSalt returns n cryptographically random bytes for use as a KDF
// salt.
func GenerateSalt(n int) ([]byte, error) {
	salt := make([]byte, n)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}
