package publish

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilnet/veilcore/event"
)

func testEnvelope(content string) *event.Event {
	return &event.Event{Kind: event.KindGiftWrap, Content: content}
}

// instantConfig disables all timing so dispatch order is deterministic.
func instantConfig() Config {
	cfg := DefaultConfig()
	cfg.TimingObfuscationEnabled = false
	return cfg
}

var testRelays = []string{"wss://a", "wss://b", "wss://c"}

// fakeTimeProvider records requested waits and returns immediately.
type fakeTimeProvider struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (f *fakeTimeProvider) Now() time.Time { return time.Unix(0, 0) }

func (f *fakeTimeProvider) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	f.waits = append(f.waits, d)
	f.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func (f *fakeTimeProvider) recorded() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make([]time.Duration, len(f.waits))
	copy(result, f.waits)
	return result
}

func TestEnqueueAndWait(t *testing.T) {
	transport := NewMockTransport()
	queue, err := NewQueue(transport, testRelays, instantConfig())
	require.NoError(t, err)
	queue.Start()
	defer queue.Stop()

	handle, err := queue.Enqueue(testEnvelope("hello"), PublishOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results, err := handle.Wait(ctx)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.Success)
		assert.NoError(t, r.Err)
	}
}

func TestEnqueueRequiresRelays(t *testing.T) {
	queue, err := NewQueue(NewMockTransport(), nil, instantConfig())
	require.NoError(t, err)

	_, err = queue.Enqueue(testEnvelope("x"), PublishOptions{})
	assert.ErrorIs(t, err, ErrNoRelays)

	// A per-task relay list satisfies the requirement.
	_, err = queue.Enqueue(testEnvelope("x"), PublishOptions{Relays: []string{"wss://a"}})
	assert.NoError(t, err)
}

func TestPriorityOrdering(t *testing.T) {
	transport := NewMockTransport()

	gate := make(chan struct{})
	var mu sync.Mutex
	var order []string
	transport.SetPublishFunc(func(_ context.Context, envelope *event.Event, relays []string) ([]RelayResult, error) {
		mu.Lock()
		order = append(order, envelope.Content)
		mu.Unlock()
		<-gate
		return []RelayResult{{Relay: relays[0], Success: true}}, nil
	})

	queue, err := NewQueue(transport, testRelays, instantConfig())
	require.NoError(t, err)
	queue.Start()
	defer queue.Stop()

	h1, err := queue.Enqueue(testEnvelope("N1"), PublishOptions{})
	require.NoError(t, err)

	// Wait until N1 is in flight so later tasks cannot jump ahead of it.
	require.Eventually(t, queue.Processing, 2*time.Second, 5*time.Millisecond)

	h2, err := queue.Enqueue(testEnvelope("N2"), PublishOptions{})
	require.NoError(t, err)
	h3, err := queue.Enqueue(testEnvelope("H1"), PublishOptions{Priority: PriorityHigh})
	require.NoError(t, err)

	gate <- struct{}{}
	gate <- struct{}{}
	gate <- struct{}{}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, h := range []*Handle{h1, h2, h3} {
		_, err := h.Wait(ctx)
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"N1", "H1", "N2"}, order)
}

func TestClearRejectsPendingOnly(t *testing.T) {
	transport := NewMockTransport()

	gate := make(chan struct{})
	transport.SetPublishFunc(func(_ context.Context, _ *event.Event, relays []string) ([]RelayResult, error) {
		<-gate
		return []RelayResult{{Relay: relays[0], Success: true}}, nil
	})

	queue, err := NewQueue(transport, testRelays, instantConfig())
	require.NoError(t, err)
	queue.Start()
	defer queue.Stop()

	h1, err := queue.Enqueue(testEnvelope("T1"), PublishOptions{})
	require.NoError(t, err)
	require.Eventually(t, queue.Processing, 2*time.Second, 5*time.Millisecond)

	h2, err := queue.Enqueue(testEnvelope("T2"), PublishOptions{})
	require.NoError(t, err)

	cleared := queue.Clear()
	assert.Equal(t, 1, cleared)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// T2 was still buffered and must be rejected.
	_, err = h2.Wait(ctx)
	assert.ErrorIs(t, err, ErrQueueCleared)

	// T1 was already in flight and still resolves.
	close(gate)
	results, err := h1.Wait(ctx)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestCriticalOversampling(t *testing.T) {
	sixRelays := []string{"wss://a", "wss://b", "wss://c", "wss://d", "wss://e", "wss://f"}

	cfg := instantConfig()
	cfg.RelaySelectionCount = 3
	cfg.MinRelaysForCritical = 5

	transport := NewMockTransport()
	queue, err := NewQueue(transport, sixRelays, cfg)
	require.NoError(t, err)
	queue.Start()
	defer queue.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	normal, err := queue.Enqueue(testEnvelope("normal"), PublishOptions{})
	require.NoError(t, err)
	results, err := normal.Wait(ctx)
	require.NoError(t, err)
	assert.Len(t, results, 3)

	critical, err := queue.Enqueue(testEnvelope("critical"), PublishOptions{Critical: true})
	require.NoError(t, err)
	results, err = critical.Wait(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(results), 5)
}

func TestMixingDisabledUsesAllRelays(t *testing.T) {
	cfg := instantConfig()
	cfg.RelayMixingEnabled = false

	transport := NewMockTransport()
	queue, err := NewQueue(transport, testRelays, cfg)
	require.NoError(t, err)
	queue.Start()
	defer queue.Stop()

	handle, err := queue.Enqueue(testEnvelope("broadcast"), PublishOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	results, err := handle.Wait(ctx)
	require.NoError(t, err)
	assert.Len(t, results, len(testRelays))
}

func TestSelectRelaysSubsetIsDistinct(t *testing.T) {
	relays := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	cfg := DefaultConfig()
	cfg.RelaySelectionCount = 4

	for i := 0; i < 50; i++ {
		subset := selectRelays(relays, cfg, false)
		require.Len(t, subset, 4)

		seen := make(map[string]bool)
		for _, r := range subset {
			assert.Contains(t, relays, r)
			assert.False(t, seen[r], "relay selected twice in one subset")
			seen[r] = true
		}
	}
}

func TestQueueDelayAppliedToNormal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinQueueDelay = 10 * time.Second
	cfg.MaxQueueDelay = 20 * time.Second
	cfg.MinInterMessageDelay = 1 * time.Second
	cfg.MaxInterMessageDelay = 2 * time.Second

	tp := &fakeTimeProvider{}
	queue, err := NewQueue(NewMockTransport(), testRelays, cfg)
	require.NoError(t, err)
	queue.SetTimeProvider(tp)
	queue.Start()
	defer queue.Stop()

	handle, err := queue.Enqueue(testEnvelope("slow"), PublishOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = handle.Wait(ctx)
	require.NoError(t, err)

	waits := tp.recorded()
	require.NotEmpty(t, waits)
	assert.GreaterOrEqual(t, waits[0], 10*time.Second)
	assert.LessOrEqual(t, waits[0], 20*time.Second)
}

func TestQueueDelaySkippedForHighAndCritical(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinQueueDelay = 10 * time.Second
	cfg.MaxQueueDelay = 20 * time.Second
	cfg.MinInterMessageDelay = 1 * time.Second
	cfg.MaxInterMessageDelay = 2 * time.Second

	tests := []struct {
		name string
		opts PublishOptions
	}{
		{"high priority", PublishOptions{Priority: PriorityHigh}},
		{"critical", PublishOptions{Critical: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp := &fakeTimeProvider{}
			queue, err := NewQueue(NewMockTransport(), testRelays, cfg)
			require.NoError(t, err)
			queue.SetTimeProvider(tp)
			queue.Start()
			defer queue.Stop()

			handle, err := queue.Enqueue(testEnvelope("fast"), tt.opts)
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, err = handle.Wait(ctx)
			require.NoError(t, err)

			// The 10s+ queue delay range must never be drawn; only the
			// inter-message delay can appear.
			for _, w := range tp.recorded() {
				assert.Less(t, w, 10*time.Second)
			}
		})
	}
}

func TestInterMessageDelayBetweenDispatches(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinQueueDelay = 0
	cfg.MaxQueueDelay = 0
	cfg.MinInterMessageDelay = 1 * time.Second
	cfg.MaxInterMessageDelay = 2 * time.Second

	tp := &fakeTimeProvider{}
	queue, err := NewQueue(NewMockTransport(), testRelays, cfg)
	require.NoError(t, err)
	queue.SetTimeProvider(tp)
	queue.Start()
	defer queue.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		handle, err := queue.Enqueue(testEnvelope("msg"), PublishOptions{Priority: PriorityHigh})
		require.NoError(t, err)
		_, err = handle.Wait(ctx)
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool {
		waits := tp.recorded()
		if len(waits) < 2 {
			return false
		}
		for _, w := range waits {
			if w < 1*time.Second || w > 2*time.Second {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)
}

func TestLenAndProcessing(t *testing.T) {
	transport := NewMockTransport()

	gate := make(chan struct{})
	transport.SetPublishFunc(func(_ context.Context, _ *event.Event, relays []string) ([]RelayResult, error) {
		<-gate
		return []RelayResult{{Relay: relays[0], Success: true}}, nil
	})

	queue, err := NewQueue(transport, testRelays, instantConfig())
	require.NoError(t, err)

	// Tasks buffer while the queue is stopped.
	_, err = queue.Enqueue(testEnvelope("1"), PublishOptions{})
	require.NoError(t, err)
	_, err = queue.Enqueue(testEnvelope("2"), PublishOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, queue.Len())
	assert.False(t, queue.Processing())

	queue.Start()
	defer queue.Stop()

	require.Eventually(t, func() bool {
		return queue.Processing() && queue.Len() == 1
	}, 2*time.Second, 5*time.Millisecond)

	close(gate)
}

func TestStopKeepsBufferedTasks(t *testing.T) {
	transport := NewMockTransport()

	gate := make(chan struct{})
	transport.SetPublishFunc(func(_ context.Context, _ *event.Event, relays []string) ([]RelayResult, error) {
		<-gate
		return []RelayResult{{Relay: relays[0], Success: true}}, nil
	})

	queue, err := NewQueue(transport, testRelays, instantConfig())
	require.NoError(t, err)
	queue.Start()

	h1, err := queue.Enqueue(testEnvelope("T1"), PublishOptions{})
	require.NoError(t, err)
	require.Eventually(t, queue.Processing, 2*time.Second, 5*time.Millisecond)

	h2, err := queue.Enqueue(testEnvelope("T2"), PublishOptions{})
	require.NoError(t, err)

	queue.Stop()
	close(gate)

	// T1 was in flight and still resolves.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	results, err := h1.Wait(ctx)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	// T2 must stay buffered, not dispatch and not be rejected.
	require.Eventually(t, func() bool { return !queue.Processing() }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, queue.Len())

	shortCtx, shortCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer shortCancel()
	_, err = h2.Wait(shortCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	calls := transport.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "T1", calls[0].Envelope.Content)
}

func TestRestartDispatchesBufferedTasks(t *testing.T) {
	transport := NewMockTransport()
	queue, err := NewQueue(transport, testRelays, instantConfig())
	require.NoError(t, err)

	queue.Start()
	queue.Stop()

	handle, err := queue.Enqueue(testEnvelope("held"), PublishOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, queue.Len())

	queue.Start()
	defer queue.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	results, err := handle.Wait(ctx)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, 0, queue.Len())
}

func TestStopRejectsDelayedTask(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinQueueDelay = time.Minute
	cfg.MaxQueueDelay = time.Minute

	queue, err := NewQueue(NewMockTransport(), testRelays, cfg)
	require.NoError(t, err)
	queue.Start()

	handle, err := queue.Enqueue(testEnvelope("stuck"), PublishOptions{})
	require.NoError(t, err)
	require.Eventually(t, queue.Processing, 2*time.Second, 5*time.Millisecond)

	queue.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = handle.Wait(ctx)
	assert.ErrorIs(t, err, ErrQueueStopped)
}

func TestUpdateConfigTakesEffectNextDecision(t *testing.T) {
	transport := NewMockTransport()
	queue, err := NewQueue(transport, testRelays, instantConfig())
	require.NoError(t, err)
	queue.Start()
	defer queue.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	handle, err := queue.Enqueue(testEnvelope("before"), PublishOptions{})
	require.NoError(t, err)
	results, err := handle.Wait(ctx)
	require.NoError(t, err)
	assert.Len(t, results, 3)

	cfg := instantConfig()
	cfg.RelayMixingEnabled = false
	require.NoError(t, queue.UpdateConfig(cfg))

	handle, err = queue.Enqueue(testEnvelope("after"), PublishOptions{})
	require.NoError(t, err)
	results, err = handle.Wait(ctx)
	require.NoError(t, err)
	assert.Len(t, results, len(testRelays))
}

func TestWaitRespectsContext(t *testing.T) {
	queue, err := NewQueue(NewMockTransport(), testRelays, instantConfig())
	require.NoError(t, err)

	// Queue never started, so the handle never completes.
	handle, err := queue.Enqueue(testEnvelope("never"), PublishOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = handle.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
