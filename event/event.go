// Package event implements the relay event model: canonical serialization,
// id computation, BIP-340 Schnorr signatures, and schema validation for
// events arriving from untrusted relays.
package event

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Event kinds used by the envelope protocol.
const (
	// KindSeal is the signed layer hiding inside an envelope.
	KindSeal = 13
	// KindRumor is the innermost, unsigned application message.
	KindRumor = 14
	// KindGiftWrap is the only kind ever transmitted on the wire.
	KindGiftWrap = 1059
)

var (
	// ErrInvalidEvent is returned when an event fails schema validation.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrInvalidSignature is returned when signing input is malformed.
	ErrInvalidSignature = errors.New("invalid signature")
)

// Event is a relay event. A Rumor is an Event with an empty Sig; Seals and
// GiftWraps are always signed.
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// ComputeID returns the hex SHA-256 of the canonical serialization
// [0, pubkey, created_at, kind, tags, content].
func ComputeID(ev *Event) (string, error) {
	canonical, err := json.Marshal([]interface{}{
		0, ev.PubKey, ev.CreatedAt, ev.Kind, ev.Tags, ev.Content,
	})
	if err != nil {
		return "", fmt.Errorf("failed to serialize event: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Sign computes the event id and signs it with the given private key,
// filling in ID and Sig. The pubkey field must already be set to the x-only
// public key matching the private key.
func Sign(ev *Event, private [32]byte) error {
	id, err := ComputeID(ev)
	if err != nil {
		return err
	}
	idBytes, err := hex.DecodeString(id)
	if err != nil {
		return fmt.Errorf("failed to decode event id: %w", err)
	}

	priv := secp256k1.PrivKeyFromBytes(private[:])
	defer priv.Zero()

	sig, err := schnorr.Sign(priv, idBytes)
	if err != nil {
		return fmt.Errorf("schnorr sign failed: %w", err)
	}

	ev.ID = id
	ev.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

// Verify reports whether the event's id matches its contents and its
// signature verifies against its pubkey. An unsigned event never verifies.
func Verify(ev *Event) bool {
	expectedID, err := ComputeID(ev)
	if err != nil || ev.ID != expectedID {
		return false
	}

	pubBytes, err := hex.DecodeString(ev.PubKey)
	if err != nil || len(pubBytes) != 32 {
		return false
	}
	pub, err := schnorr.ParsePubKey(pubBytes)
	if err != nil {
		return false
	}

	sigBytes, err := hex.DecodeString(ev.Sig)
	if err != nil || len(sigBytes) != 64 {
		return false
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false
	}

	idBytes, err := hex.DecodeString(ev.ID)
	if err != nil {
		return false
	}

	return sig.Verify(idBytes, pub)
}

// Serialize encodes the event as JSON for encryption or transmission.
func (ev *Event) Serialize() ([]byte, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize event: %w", err)
	}
	return raw, nil
}

// Parse decodes and validates an event from untrusted input. Unknown fields
// are rejected so hostile peers cannot smuggle extra data into the object.
func Parse(data []byte) (*Event, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var ev Event
	if err := dec.Decode(&ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrInvalidEvent)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Validate checks field shape before any field is trusted.
func (ev *Event) Validate() error {
	if !isHex(ev.PubKey, 64) {
		return fmt.Errorf("%w: pubkey must be 64 hex characters", ErrInvalidEvent)
	}
	if ev.ID != "" && !isHex(ev.ID, 64) {
		return fmt.Errorf("%w: id must be 64 hex characters", ErrInvalidEvent)
	}
	if ev.Sig != "" && !isHex(ev.Sig, 128) {
		return fmt.Errorf("%w: sig must be 128 hex characters", ErrInvalidEvent)
	}
	if ev.Kind < 0 {
		return fmt.Errorf("%w: negative kind", ErrInvalidEvent)
	}
	if ev.CreatedAt < 0 {
		return fmt.Errorf("%w: negative created_at", ErrInvalidEvent)
	}
	for _, tag := range ev.Tags {
		if len(tag) == 0 {
			return fmt.Errorf("%w: empty tag", ErrInvalidEvent)
		}
	}
	return nil
}

// TagValue returns the first value of the named tag, or "".
func (ev *Event) TagValue(name string) string {
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1]
		}
	}
	return ""
}

func isHex(s string, length int) bool {
	if len(s) != length {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
