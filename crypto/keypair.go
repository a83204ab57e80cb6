package crypto

import (
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// KeyPair represents a secp256k1 keypair used for identities and for the
// disposable keys that sign outer envelopes. The public key is the x-only
// form (64 hex characters) used everywhere on the wire.
type KeyPair struct {
	Private [32]byte
	Public  string
}

// GenerateKeyPair creates a new random secp256k1 keypair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	kp := &KeyPair{
		Public: xOnlyHex(priv.PubKey()),
	}
	copy(kp.Private[:], priv.Serialize())
	return kp, nil
}

// FromSecretKey creates a keypair from an existing 32-byte private key.
func FromSecretKey(secret [32]byte) (*KeyPair, error) {
	if isZeroKey(secret) {
		return nil, fmt.Errorf("%w: all zeros", ErrInvalidKeyLength)
	}

	priv := secp256k1.PrivKeyFromBytes(secret[:])
	return &KeyPair{
		Private: secret,
		Public:  xOnlyHex(priv.PubKey()),
	}, nil
}

// PublicKeyFromPrivate derives the x-only public key for a private key.
func PublicKeyFromPrivate(private [32]byte) (string, error) {
	if isZeroKey(private) {
		return "", fmt.Errorf("%w: all zeros", ErrInvalidKeyLength)
	}
	priv := secp256k1.PrivKeyFromBytes(private[:])
	return xOnlyHex(priv.PubKey()), nil
}

// xOnlyHex serializes a public key as its 32-byte x coordinate in hex.
func xOnlyHex(pub *secp256k1.PublicKey) string {
	return hex.EncodeToString(pub.SerializeCompressed()[1:])
}

// ParseXOnlyPublicKey parses a 64-character hex x-only public key by
// lifting it with the even-y prefix. Every x coordinate on the curve has an
// even-y point, and the ECDH x coordinate is the same for either parity, so
// one lift suffices.
func ParseXOnlyPublicKey(pubHex string) (*secp256k1.PublicKey, error) {
	raw, err := hex.DecodeString(pubHex)
	if err != nil {
		return nil, fmt.Errorf("%w: not hex", ErrInvalidPublicKey)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: got %d bytes, want 32", ErrInvalidPublicKey, len(raw))
	}

	compressed := make([]byte, 33)
	compressed[0] = 0x02
	copy(compressed[1:], raw)

	pub, err := secp256k1.ParsePubKey(compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: not on curve", ErrInvalidPublicKey)
	}
	return pub, nil
}

// isZeroKey checks if a key consists of all zeros.
func isZeroKey(key [32]byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}
