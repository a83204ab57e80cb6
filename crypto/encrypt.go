package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	// PayloadVersion is the current payload framing version byte.
	PayloadVersion = 0x01

	// messageNonceSize is the per-message random nonce carried on the wire.
	messageNonceSize = 12

	// macSize is the HMAC-SHA256 output size.
	macSize = 32

	// messageKeyInfo is the HKDF info label for per-message subkeys.
	messageKeyInfo = "veilcore-msg-v1"

	// minPayloadSize is the smallest valid decoded payload:
	// version(1) + nonce(12) + ciphertext(34 padded + 16 tag) + mac(32).
	minPayloadSize = 1 + messageNonceSize + (lengthPrefixSize + 32 + chacha20poly1305.Overhead) + macSize
)

// messageKeys is the per-message subkey triple derived from the conversation
// key and the message nonce.
type messageKeys struct {
	cipherKey   []byte
	cipherNonce []byte
	macKey      []byte
}

// deriveMessageKeys expands conversationKey and nonce into the cipher key,
// cipher nonce, and MAC key for a single message.
func deriveMessageKeys(conversationKey, nonce []byte) (*messageKeys, error) {
	reader := hkdf.New(sha256.New, conversationKey, nonce, []byte(messageKeyInfo))
	material := make([]byte, 32+messageNonceSize+32)
	if _, err := io.ReadFull(reader, material); err != nil {
		return nil, fmt.Errorf("hkdf expand failed: %w", err)
	}
	return &messageKeys{
		cipherKey:   material[0:32],
		cipherNonce: material[32 : 32+messageNonceSize],
		macKey:      material[32+messageNonceSize:],
	}, nil
}

// wipe erases the subkey material.
func (mk *messageKeys) wipe() {
	ZeroBytes(mk.cipherKey)
	ZeroBytes(mk.cipherNonce)
	ZeroBytes(mk.macKey)
}

// EncryptPayload encrypts plaintext under a conversation key and returns the
// base64 payload: version(1) || nonce(12) || ciphertext || mac(32).
//
// The plaintext is padded on a content-independent schedule before
// encryption, so repeated calls with the same plaintext length always
// produce payloads of the same size.
func EncryptPayload(plaintext, conversationKey []byte) (string, error) {
	if len(conversationKey) != MasterKeySize {
		return "", fmt.Errorf("%w: conversation key is %d bytes, want %d", ErrInvalidKeyLength, len(conversationKey), MasterKeySize)
	}
	if len(plaintext) < MinPlaintextSize || len(plaintext) > MaxPlaintextSize {
		return "", fmt.Errorf("%w: %d bytes", ErrInvalidPlaintextLength, len(plaintext))
	}

	nonce := make([]byte, messageNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	keys, err := deriveMessageKeys(conversationKey, nonce)
	if err != nil {
		return "", err
	}
	defer keys.wipe()

	padded, err := pad(plaintext)
	if err != nil {
		return "", err
	}
	defer ZeroBytes(padded)

	aead, err := chacha20poly1305.New(keys.cipherKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	ciphertext := aead.Seal(nil, keys.cipherNonce, padded, nil)

	mac := hmac.New(sha256.New, keys.macKey)
	mac.Write(nonce)
	mac.Write(ciphertext)

	payload := make([]byte, 0, 1+messageNonceSize+len(ciphertext)+macSize)
	payload = append(payload, PayloadVersion)
	payload = append(payload, nonce...)
	payload = append(payload, ciphertext...)
	payload = mac.Sum(payload)

	return base64.StdEncoding.EncodeToString(payload), nil
}
