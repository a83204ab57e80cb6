package veilcore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/veilnet/veilcore/crypto"
	"github.com/veilnet/veilcore/envelope"
	"github.com/veilnet/veilcore/event"
	"github.com/veilnet/veilcore/publish"
)

// ErrKeyUnavailable is returned when an operation needs the identity private
// key but the client is locked. Recoverable by calling Unlock.
var ErrKeyUnavailable = errors.New("identity key unavailable: client is locked")

// Options configure a Client.
type Options struct {
	// Relays is the default write-relay set handed to the publish queue.
	Relays []string

	// Privacy tunes relay mixing and timing obfuscation. Zero value means
	// publish.DefaultConfig.
	Privacy *publish.Config

	// Transport publishes envelopes to relays. Required.
	Transport publish.Transport
}

// DecryptResult is what feature modules receive for an inbound envelope.
// Trusted reports whether the seal signature verified; callers decide how
// to surface untrusted content.
type DecryptResult struct {
	Plaintext    string
	SenderPubKey string
	Trusted      bool
}

// Client is the facade feature modules use: encrypt for a recipient,
// decrypt an incoming envelope, schedule a publish. It never exposes
// conversation keys or seals.
type Client struct {
	mu      sync.Mutex
	keyPair *crypto.KeyPair
	locked  bool
	queue   *publish.Queue
}

// New creates a Client around an unlocked identity keypair and starts its
// publish queue. The client takes custody of its own copy of the keypair;
// Lock wipes that copy only.
func New(keyPair *crypto.KeyPair, opts Options) (*Client, error) {
	if err := validateKeyPair(keyPair); err != nil {
		return nil, err
	}
	if opts.Transport == nil {
		return nil, errors.New("transport is required")
	}

	cfg := publish.DefaultConfig()
	if opts.Privacy != nil {
		cfg = *opts.Privacy
	}

	queue, err := publish.NewQueue(opts.Transport, opts.Relays, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create publish queue: %w", err)
	}

	owned := &crypto.KeyPair{
		Private: keyPair.Private,
		Public:  keyPair.Public,
	}

	queue.Start()

	logrus.WithFields(logrus.Fields{
		"function":    "New",
		"package":     "veilcore",
		"relay_count": len(opts.Relays),
	}).Info("veilcore client created")

	return &Client{
		keyPair: owned,
		queue:   queue,
	}, nil
}

// EncryptForRecipient wraps plaintext into a gift wrap addressed to the
// recipient. The returned event is the only structure that may touch the
// wire; the caller never sees the intermediate rumor or seal.
func (c *Client) EncryptForRecipient(plaintext, recipientPubKey string) (*event.Event, error) {
	c.mu.Lock()
	if c.locked {
		c.mu.Unlock()
		return nil, ErrKeyUnavailable
	}
	private := c.keyPair.Private
	public := c.keyPair.Public
	c.mu.Unlock()
	defer crypto.ZeroBytes(private[:])

	rumor, err := envelope.NewRumor(public, recipientPubKey, plaintext)
	if err != nil {
		return nil, err
	}
	return envelope.Wrap(rumor, private, recipientPubKey)
}

// DecryptIncoming unwraps an inbound gift wrap and returns plaintext plus
// the verified sender identity.
func (c *Client) DecryptIncoming(wrap *event.Event) (*DecryptResult, error) {
	c.mu.Lock()
	if c.locked {
		c.mu.Unlock()
		return nil, ErrKeyUnavailable
	}
	private := c.keyPair.Private
	c.mu.Unlock()
	defer crypto.ZeroBytes(private[:])

	result, err := envelope.Unwrap(wrap, private)
	if err != nil {
		return nil, err
	}

	return &DecryptResult{
		Plaintext:    result.Rumor.Content,
		SenderPubKey: result.SenderPubKey,
		Trusted:      result.SealVerified,
	}, nil
}

// SchedulePublish hands a finished envelope to the privacy publish queue
// instead of publishing directly. Works while the client is locked; the
// queue holds no key material.
func (c *Client) SchedulePublish(wrap *event.Event, opts publish.PublishOptions) (*publish.Handle, error) {
	return c.queue.Enqueue(wrap, opts)
}

// UpdatePrivacyConfig swaps the queue's relay-mixing and timing settings,
// effective from the next scheduling decision.
func (c *Client) UpdatePrivacyConfig(cfg publish.Config) error {
	return c.queue.UpdateConfig(cfg)
}

// QueueLength reports how many envelopes are buffered for publication.
func (c *Client) QueueLength() int {
	return c.queue.Len()
}

// Lock wipes the in-memory identity private key and clears the publish
// queue. Encrypt and decrypt fail with ErrKeyUnavailable until Unlock.
func (c *Client) Lock() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.locked {
		return
	}
	c.locked = true

	if err := crypto.WipeKeyPair(c.keyPair); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Lock",
			"package":  "veilcore",
			"error":    err.Error(),
		}).Warn("failed to wipe identity key")
	}

	cleared := c.queue.Clear()
	logrus.WithFields(logrus.Fields{
		"function": "Lock",
		"package":  "veilcore",
		"cleared":  cleared,
	}).Info("client locked")
}

// Unlock restores the identity keypair after a Lock, typically from a
// record decrypted with crypto.DecryptIdentityKey.
func (c *Client) Unlock(keyPair *crypto.KeyPair) error {
	if err := validateKeyPair(keyPair); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.keyPair = &crypto.KeyPair{
		Private: keyPair.Private,
		Public:  keyPair.Public,
	}
	c.locked = false
	return nil
}

// validateKeyPair checks that the public half actually belongs to the
// private half. A mismatched pair would produce seals whose pubkey never
// verifies, so it is rejected before the client stores it.
func validateKeyPair(keyPair *crypto.KeyPair) error {
	if keyPair == nil {
		return errors.New("keypair is required")
	}
	derived, err := crypto.PublicKeyFromPrivate(keyPair.Private)
	if err != nil {
		return fmt.Errorf("invalid private key: %w", err)
	}
	if derived != keyPair.Public {
		return errors.New("public key does not match private key")
	}
	return nil
}

// Close locks the client and stops its publish queue.
func (c *Client) Close() {
	c.Lock()
	c.queue.Stop()
}
