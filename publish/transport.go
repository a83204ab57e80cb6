package publish

import (
	"context"

	"github.com/veilnet/veilcore/event"
)

// RelayResult reports the outcome of publishing an envelope to one relay.
// The queue does not retry failed relays; retry policy belongs to the
// caller, where it can be weighed against timing-obfuscation guarantees.
type RelayResult struct {
	Relay   string
	Success bool
	Err     error
}

// Transport is the one operation the queue consumes from the relay layer.
// Implementations publish the envelope to each listed relay and report a
// per-relay result; a returned error means no relay was attempted at all.
type Transport interface {
	Publish(ctx context.Context, envelope *event.Event, relays []string) ([]RelayResult, error)
}
