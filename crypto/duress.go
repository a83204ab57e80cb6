package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/hkdf"
)

// Duress password support. A user under coercion can enter a secondary
// password that appears to unlock the client normally while opening a decoy
// identity and destroying the real key material.

const (
	// secureWipePasses is the number of overwrite passes used when
	// shredding key files.
	secureWipePasses = 3

	duressKeySalt = "veilcore-duress-v1"
	duressKeyInfo = "duress-password-key"
)

// DuressCheckResult reports the outcome of a password check that is
// duress-aware.
type DuressCheckResult struct {
	// IsDuress is true when the entered password matched the duress hash.
	IsDuress bool
	// PasswordValid is true when the password matched either hash.
	PasswordValid bool
}

// HashDuressPassword hashes a password for duress detection: Argon2id with
// the same cost as the master key, then HKDF to domain-separate the result
// from the master key itself. A duress hash therefore never doubles as an
// encryption key.
func HashDuressPassword(password, salt []byte) ([]byte, error) {
	derived, err := DeriveMasterKey(password, salt)
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(derived)

	reader := hkdf.New(sha256.New, derived, []byte(duressKeySalt), []byte(duressKeyInfo))
	hash := make([]byte, MasterKeySize)
	if _, err := io.ReadFull(reader, hash); err != nil {
		return nil, fmt.Errorf("hkdf expand failed: %w", err)
	}
	return hash, nil
}

// CheckDuressPassword compares an entered password against the stored duress
// and normal hashes using constant-time comparisons. It must run before any
// other unlock check so the duress flow can trigger first.
func CheckDuressPassword(entered, salt, storedDuressHash, storedNormalHash []byte) (DuressCheckResult, error) {
	enteredHash, err := HashDuressPassword(entered, salt)
	if err != nil {
		return DuressCheckResult{}, err
	}
	defer ZeroBytes(enteredHash)

	isDuress := subtle.ConstantTimeCompare(enteredHash, storedDuressHash) == 1
	isNormal := subtle.ConstantTimeCompare(enteredHash, storedNormalHash) == 1

	return DuressCheckResult{
		IsDuress:      isDuress,
		PasswordValid: isDuress || isNormal,
	}, nil
}

// SecureDestroyKey overwrites in-memory key material with multiple patterns
// before the final zeroization. Best effort: copies may survive in swap or
// page cache.
func SecureDestroyKey(key []byte) {
	if len(key) == 0 {
		return
	}

	patterns := [secureWipePasses]byte{0xFF, 0x00, 0xAA}
	for _, p := range patterns {
		for i := range key {
			key[i] = p
		}
	}
	ZeroBytes(key)
}

// ShredFile overwrites a file's contents with random data for several
// passes, then zeros, then removes it. Used to destroy persisted identity
// keys during the duress flow.
func ShredFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat file: %w", err)
	}

	size := info.Size()
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open file for shredding: %w", err)
	}

	buf := make([]byte, size)
	for pass := 0; pass < secureWipePasses; pass++ {
		if _, err := rand.Read(buf); err != nil {
			f.Close()
			return fmt.Errorf("failed to generate overwrite data: %w", err)
		}
		if _, err := f.WriteAt(buf, 0); err != nil {
			f.Close()
			return fmt.Errorf("overwrite pass %d failed: %w", pass, err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return fmt.Errorf("sync after pass %d failed: %w", pass, err)
		}
	}

	ZeroBytes(buf)
	if _, err := f.WriteAt(buf, 0); err != nil {
		f.Close()
		return fmt.Errorf("final zero pass failed: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("final sync failed: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove file: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "ShredFile",
		"package":  "crypto",
	}).Info("shredded key file")

	return nil
}
