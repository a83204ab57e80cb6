package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// DecryptPayload reverses EncryptPayload. Malformed version bytes and
// truncated payloads are rejected before any cryptographic work; the MAC is
// verified with a constant-time comparison before the ciphertext is opened.
// On any authentication mismatch the result is ErrAuthenticationFailed and
// never partial plaintext.
func DecryptPayload(blob string, conversationKey []byte) ([]byte, error) {
	if len(conversationKey) != MasterKeySize {
		return nil, fmt.Errorf("%w: conversation key is %d bytes, want %d", ErrInvalidKeyLength, len(conversationKey), MasterKeySize)
	}

	payload, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: not base64", ErrInvalidPayload)
	}
	if len(payload) < minPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes, want at least %d", ErrInvalidPayload, len(payload), minPayloadSize)
	}
	if payload[0] != PayloadVersion {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownVersion, payload[0])
	}

	nonce := payload[1 : 1+messageNonceSize]
	ciphertext := payload[1+messageNonceSize : len(payload)-macSize]
	receivedMAC := payload[len(payload)-macSize:]

	keys, err := deriveMessageKeys(conversationKey, nonce)
	if err != nil {
		return nil, err
	}
	defer keys.wipe()

	mac := hmac.New(sha256.New, keys.macKey)
	mac.Write(nonce)
	mac.Write(ciphertext)
	if !hmac.Equal(mac.Sum(nil), receivedMAC) {
		return nil, ErrAuthenticationFailed
	}

	aead, err := chacha20poly1305.New(keys.cipherKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	padded, err := aead.Open(nil, keys.cipherNonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	defer ZeroBytes(padded)

	return unpad(padded)
}
