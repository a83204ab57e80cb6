// Package veilcore implements the end-to-end encryption and traffic-metadata
// protection core of the veil network client.
//
// The core has four layers, exposed to feature modules through the Client
// facade: a key-derivation hierarchy (crypto), an authenticated conversation
// cipher (crypto), a three-layer sender-anonymizing envelope (envelope), and
// a privacy publish queue that randomizes publication timing and relay
// fan-out (publish).
//
// Example:
//
//	keyPair, err := crypto.GenerateKeyPair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client, err := veilcore.New(keyPair, veilcore.Options{
//	    Relays:    []string{"wss://relay.example.com"},
//	    Transport: relayTransport,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	wrap, err := client.EncryptForRecipient("hello", recipientPubKey)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	handle, err := client.SchedulePublish(wrap, publish.PublishOptions{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	results, err := handle.Wait(ctx)
package veilcore
