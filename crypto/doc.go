// Package crypto implements the key hierarchy and payload cipher for veilcore.
//
// This package provides the cryptographic foundation for the privacy core:
// secp256k1 keypairs with x-only public keys, the Argon2id master-key
// derivation, HKDF-separated working keys, AES-256-GCM identity-key records,
// and the authenticated payload cipher used by every encrypted envelope.
//
// # Key Hierarchy
//
// A user secret unlocks everything else:
//
//	masterKey, _ := crypto.DeriveMasterKey(secret, salt)
//	dbKey, _ := crypto.DeriveDatabaseKey(masterKey)
//	record, _ := crypto.EncryptIdentityKey(privKey, masterKey, salt)
//
// The master key lives only in memory; callers are responsible for calling
// [SecureWipe] on key material once it is no longer needed.
//
// # Conversation Encryption
//
// Any two parties can derive the same symmetric key from their own private
// key and the other's public key:
//
//	key, _ := crypto.DeriveConversationKey(myPrivate, theirPublic)
//	blob, _ := crypto.EncryptPayload(plaintext, key)
//	plaintext, _ := crypto.DecryptPayload(blob, key)
//
// The payload format is version(1) || nonce(12) || ciphertext || mac(32),
// base64-encoded, with content-independent padding so ciphertext length
// reveals only a coarse bucket of the plaintext length.
package crypto
