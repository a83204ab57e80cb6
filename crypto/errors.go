package crypto

import "errors"

var (
	// ErrInvalidKeyLength is returned when key material has the wrong size.
	ErrInvalidKeyLength = errors.New("invalid key length")

	// ErrInvalidPublicKey is returned when a public key cannot be parsed as
	// an x-only secp256k1 point.
	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrEmptySecret is returned when a key derivation is attempted with an
	// empty user secret.
	ErrEmptySecret = errors.New("empty secret")

	// ErrInvalidSaltLength is returned when a KDF salt is shorter than
	// MinSaltSize.
	ErrInvalidSaltLength = errors.New("salt too short")

	// ErrInvalidPlaintextLength is returned for plaintext outside the
	// 1..65535 byte range the padding schedule covers.
	ErrInvalidPlaintextLength = errors.New("invalid plaintext length")

	// ErrInvalidPayload is returned for payloads that are truncated,
	// malformed, or carry invalid padding. The payload is rejected before
	// any cryptographic operation where possible.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrUnknownVersion is returned when a payload's version byte is not
	// recognized.
	ErrUnknownVersion = errors.New("unknown payload version")

	// ErrAuthenticationFailed is returned when a MAC or AEAD tag does not
	// verify. No plaintext is ever returned alongside this error.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrBadDecryptionKey is returned when an identity-key record fails to
	// authenticate, which means the supplied master key is wrong or the
	// record was tampered with.
	ErrBadDecryptionKey = errors.New("bad decryption key")
)
