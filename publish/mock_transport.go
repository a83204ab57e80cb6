package publish

import (
	"context"
	"sync"

	"github.com/veilnet/veilcore/event"
)

// MockTransport implements Transport for testing.
type MockTransport struct {
	mu          sync.Mutex
	calls       []MockPublish
	publishFunc func(ctx context.Context, envelope *event.Event, relays []string) ([]RelayResult, error)
}

// MockPublish records one Publish call made against the mock transport.
type MockPublish struct {
	Envelope *event.Event
	Relays   []string
}

// NewMockTransport creates a mock transport whose publishes all succeed.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		publishFunc: func(_ context.Context, _ *event.Event, relays []string) ([]RelayResult, error) {
			results := make([]RelayResult, len(relays))
			for i, relay := range relays {
				results[i] = RelayResult{Relay: relay, Success: true}
			}
			return results, nil
		},
	}
}

// Publish implements Transport.Publish.
func (m *MockTransport) Publish(ctx context.Context, envelope *event.Event, relays []string) ([]RelayResult, error) {
	m.mu.Lock()
	recorded := make([]string, len(relays))
	copy(recorded, relays)
	m.calls = append(m.calls, MockPublish{Envelope: envelope, Relays: recorded})
	fn := m.publishFunc
	m.mu.Unlock()

	return fn(ctx, envelope, relays)
}

// Calls returns all publishes made via this transport.
func (m *MockTransport) Calls() []MockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockPublish, len(m.calls))
	copy(result, m.calls)
	return result
}

// SetPublishFunc customizes the publish behavior for testing.
func (m *MockTransport) SetPublishFunc(f func(ctx context.Context, envelope *event.Event, relays []string) ([]RelayResult, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishFunc = f
}
