// Package envelope implements the three-layer sender-anonymizing envelope:
// an unsigned Rumor is encrypted into a Seal signed by the true sender, and
// the Seal is encrypted into a GiftWrap signed by a single-use ephemeral
// key. Only the GiftWrap ever touches the wire, so a relay observer sees
// nothing but disposable authorship.
package envelope

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/veilnet/veilcore/crypto"
	"github.com/veilnet/veilcore/event"
)

var (
	// ErrWrongRecipient is returned when the outer layer cannot be
	// decrypted with the supplied key: the envelope is addressed to someone
	// else or is corrupt.
	ErrWrongRecipient = errors.New("envelope not addressed to this recipient")

	// ErrMalformedEnvelope is returned when a layer decrypts but fails
	// schema validation, carries the wrong kind, or its inner ciphertext is
	// unreadable.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrSignatureInvalid tags seal-signature failures for callers that
	// choose to treat them as fatal; Unwrap itself only flags them.
	ErrSignatureInvalid = errors.New("seal signature invalid")
)

// UnwrapResult is what a successfully opened envelope yields. SenderPubKey
// comes from the seal, never from the gift wrap's disposable key.
type UnwrapResult struct {
	Rumor        *event.Event
	SenderPubKey string
	SealVerified bool
}

// NewRumor builds the unsigned innermost message: true kind and content,
// recipient tag, randomized timestamp, no signature.
func NewRumor(senderPublic, recipientPublic, content string) (*event.Event, error) {
	rumor := &event.Event{
		PubKey:    senderPublic,
		CreatedAt: randomizeTimestamp(time.Now().Unix(), TimestampRange),
		Kind:      event.KindRumor,
		Tags:      [][]string{{"p", recipientPublic}},
		Content:   content,
	}

	id, err := event.ComputeID(rumor)
	if err != nil {
		return nil, err
	}
	rumor.ID = id
	return rumor, nil
}

// Wrap seals a rumor for the recipient and wraps the seal in a disposable
// envelope. The ephemeral keypair is generated, used, and wiped entirely
// within this call; retaining it would link envelopes to each other.
func Wrap(rumor *event.Event, senderPrivate [32]byte, recipientPublic string) (*event.Event, error) {
	seal, err := createSeal(rumor, senderPrivate, recipientPublic)
	if err != nil {
		return nil, err
	}
	return createGiftWrap(seal, recipientPublic)
}

// createSeal encrypts the serialized rumor under the sender/recipient
// conversation key and signs the result with the sender's identity key.
func createSeal(rumor *event.Event, senderPrivate [32]byte, recipientPublic string) (*event.Event, error) {
	rumorJSON, err := rumor.Serialize()
	if err != nil {
		return nil, err
	}

	conversationKey, err := crypto.DeriveConversationKey(senderPrivate, recipientPublic)
	if err != nil {
		return nil, err
	}
	defer crypto.ZeroBytes(conversationKey)

	encrypted, err := crypto.EncryptPayload(rumorJSON, conversationKey)
	if err != nil {
		return nil, err
	}

	senderPublic, err := crypto.PublicKeyFromPrivate(senderPrivate)
	if err != nil {
		return nil, err
	}

	seal := &event.Event{
		PubKey:    senderPublic,
		CreatedAt: randomizeTimestamp(time.Now().Unix(), TimestampRange),
		Kind:      event.KindSeal,
		Tags:      [][]string{},
		Content:   encrypted,
	}
	if err := event.Sign(seal, senderPrivate); err != nil {
		return nil, err
	}
	return seal, nil
}

// createGiftWrap encrypts the serialized seal under a fresh ephemeral key
// and signs the wrap with that key before discarding it.
func createGiftWrap(seal *event.Event, recipientPublic string) (*event.Event, error) {
	ephemeral, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	defer func() {
		if wipeErr := crypto.WipeKeyPair(ephemeral); wipeErr != nil {
			logrus.WithFields(logrus.Fields{
				"function": "createGiftWrap",
				"package":  "envelope",
				"error":    wipeErr.Error(),
			}).Warn("failed to wipe ephemeral key")
		}
	}()

	sealJSON, err := seal.Serialize()
	if err != nil {
		return nil, err
	}

	conversationKey, err := crypto.DeriveConversationKey(ephemeral.Private, recipientPublic)
	if err != nil {
		return nil, err
	}
	defer crypto.ZeroBytes(conversationKey)

	encrypted, err := crypto.EncryptPayload(sealJSON, conversationKey)
	if err != nil {
		return nil, err
	}

	// The wrap timestamp is randomized independently of the seal's and is
	// re-drawn on collision so the two layers never match.
	createdAt := randomizeTimestamp(time.Now().Unix(), TimestampRange)
	for createdAt == seal.CreatedAt {
		createdAt = randomizeTimestamp(time.Now().Unix(), TimestampRange)
	}

	wrap := &event.Event{
		PubKey:    ephemeral.Public,
		CreatedAt: createdAt,
		Kind:      event.KindGiftWrap,
		Tags:      [][]string{{"p", recipientPublic}},
		Content:   encrypted,
	}
	if err := event.Sign(wrap, ephemeral.Private); err != nil {
		return nil, err
	}
	return wrap, nil
}

// Unwrap opens a gift wrap addressed to the holder of recipientPrivate.
//
// Outer decryption failures are hard rejects. A seal whose signature does
// not verify still yields its rumor with SealVerified false: the caller
// decides whether unverified content is surfaced, and a missing signature
// check must never crash the unwrap pipeline.
func Unwrap(wrap *event.Event, recipientPrivate [32]byte) (*UnwrapResult, error) {
	if wrap == nil {
		return nil, fmt.Errorf("%w: nil event", ErrMalformedEnvelope)
	}
	if wrap.Kind != event.KindGiftWrap {
		return nil, fmt.Errorf("%w: kind %d is not a gift wrap", ErrMalformedEnvelope, wrap.Kind)
	}

	outerKey, err := crypto.DeriveConversationKey(recipientPrivate, wrap.PubKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	defer crypto.ZeroBytes(outerKey)

	sealJSON, err := crypto.DecryptPayload(wrap.Content, outerKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrongRecipient, err)
	}

	seal, err := event.Parse(sealJSON)
	if err != nil {
		return nil, fmt.Errorf("%w: seal: %v", ErrMalformedEnvelope, err)
	}
	if seal.Kind != event.KindSeal {
		return nil, fmt.Errorf("%w: kind %d is not a seal", ErrMalformedEnvelope, seal.Kind)
	}

	sealVerified := event.Verify(seal)
	if !sealVerified {
		logrus.WithFields(logrus.Fields{
			"function": "Unwrap",
			"package":  "envelope",
		}).Warn("seal signature did not verify")
	}

	// The seal's pubkey is the authoritative sender identity. The wrap's
	// pubkey is a disposable key and must never be used as the sender.
	senderPubKey := seal.PubKey

	innerKey, err := crypto.DeriveConversationKey(recipientPrivate, senderPubKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	defer crypto.ZeroBytes(innerKey)

	rumorJSON, err := crypto.DecryptPayload(seal.Content, innerKey)
	if err != nil {
		return nil, fmt.Errorf("%w: seal content: %v", ErrMalformedEnvelope, err)
	}

	rumor, err := event.Parse(rumorJSON)
	if err != nil {
		return nil, fmt.Errorf("%w: rumor: %v", ErrMalformedEnvelope, err)
	}
	if rumor.Kind != event.KindRumor {
		return nil, fmt.Errorf("%w: kind %d is not a rumor", ErrMalformedEnvelope, rumor.Kind)
	}

	return &UnwrapResult{
		Rumor:        rumor,
		SenderPubKey: senderPubKey,
		SealVerified: sealVerified,
	}, nil
}
