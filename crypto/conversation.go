package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/hkdf"
)

// conversationKeySalt is the protocol-version salt for conversation-key
// derivation. Both sides must use the same value or decryption fails.
const conversationKeySalt = "veilcore-conv-v1"

// DeriveConversationKey computes the per-pair symmetric key from a local
// private key and a remote x-only public key: the x coordinate of the ECDH
// shared point fed through HKDF-SHA256.
//
// Derivation is symmetric: (aPriv, bPub) and (bPriv, aPub) yield the same
// key. It is also cheap and deterministic, so callers recompute it on demand
// rather than caching key material.
func DeriveConversationKey(localPrivate [32]byte, remotePublic string) ([]byte, error) {
	if isZeroKey(localPrivate) {
		return nil, fmt.Errorf("%w: all zeros", ErrInvalidKeyLength)
	}

	pub, err := ParseXOnlyPublicKey(remotePublic)
	if err != nil {
		return nil, err
	}

	priv := secp256k1.PrivKeyFromBytes(localPrivate[:])

	// GenerateSharedSecret returns only the x coordinate of the shared
	// point, which is parity-independent.
	shared := secp256k1.GenerateSharedSecret(priv, pub)
	defer ZeroBytes(shared)

	reader := hkdf.New(sha256.New, shared, []byte(conversationKeySalt), nil)
	key := make([]byte, MasterKeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("hkdf expand failed: %w", err)
	}
	return key, nil
}
