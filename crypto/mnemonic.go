package crypto

import (
	"fmt"

	"github.com/tyler-smith/go-bip39"
)

// MnemonicFromKey encodes a 32-byte private key as a 24-word BIP-39
// mnemonic for paper backup. The mnemonic is equivalent to the key itself
// and must be protected accordingly.
func MnemonicFromKey(private [32]byte) (string, error) {
	if isZeroKey(private) {
		return "", fmt.Errorf("%w: all zeros", ErrInvalidKeyLength)
	}

	mnemonic, err := bip39.NewMnemonic(private[:])
	if err != nil {
		return "", fmt.Errorf("failed to encode mnemonic: %w", err)
	}
	return mnemonic, nil
}

// KeyFromMnemonic recovers the private key from a 24-word mnemonic produced
// by MnemonicFromKey.
func KeyFromMnemonic(mnemonic string) ([32]byte, error) {
	var key [32]byte

	entropy, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return key, fmt.Errorf("invalid mnemonic: %w", err)
	}
	if len(entropy) != 32 {
		return key, fmt.Errorf("%w: mnemonic encodes %d bytes, want 32", ErrInvalidKeyLength, len(entropy))
	}

	copy(key[:], entropy)
	ZeroBytes(entropy)

	if isZeroKey(key) {
		return [32]byte{}, fmt.Errorf("%w: all zeros", ErrInvalidKeyLength)
	}
	return key, nil
}
