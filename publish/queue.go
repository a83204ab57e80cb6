package publish

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/veilnet/veilcore/event"
)

var (
	// ErrQueueCleared rejects handles whose tasks were still buffered when
	// Clear was called.
	ErrQueueCleared = errors.New("publish queue cleared")

	// ErrQueueStopped rejects the in-flight task when the queue is stopped
	// while the task is still waiting out its delay.
	ErrQueueStopped = errors.New("publish queue stopped")

	// ErrNoRelays is returned when a task names no relays and the queue has
	// no default write-relay set.
	ErrNoRelays = errors.New("no relays configured")

	// ErrInvalidConfig is returned for inconsistent configuration values.
	ErrInvalidConfig = errors.New("invalid publish config")
)

// Priority orders tasks within the queue. High-priority tasks dispatch
// ahead of pending normal tasks and skip the queue delay.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

// String returns the priority name used in logs and metrics labels.
func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "normal"
}

// PublishOptions control how one envelope is scheduled.
type PublishOptions struct {
	// Priority selects the queue class. High skips the queue delay; use it
	// for hangups, acks, and other latency-sensitive traffic that cannot be
	// meaningfully anonymized anyway.
	Priority Priority

	// Critical guarantees the dispatch at least MinRelaysForCritical relays
	// even when mixing would pick fewer, trading some metadata protection
	// for delivery reliability.
	Critical bool

	// Relays overrides the queue's default write-relay set for this task.
	Relays []string
}

// Handle is the caller's future for one enqueued task.
type Handle struct {
	done    chan struct{}
	results []RelayResult
	err     error
}

// Wait blocks until the task is dispatched, cleared, or the context ends.
func (h *Handle) Wait(ctx context.Context) ([]RelayResult, error) {
	select {
	case <-h.done:
		return h.results, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// complete must be called exactly once per handle.
func (h *Handle) complete(results []RelayResult, err error) {
	h.results = results
	h.err = err
	close(h.done)
}

type task struct {
	envelope   *event.Event
	relays     []string
	priority   Priority
	critical   bool
	enqueuedAt time.Time
	handle     *Handle
}

// Queue buffers outbound envelopes and emits them through a Transport with
// randomized timing and relay selection. Exactly one drain goroutine exists
// per queue; producers synchronize only at the enqueue boundary.
type Queue struct {
	mu           sync.Mutex
	cfg          Config
	transport    Transport
	writeRelays  []string
	timeProvider TimeProvider

	normal   []*task
	high     []*task
	inFlight bool
	running  bool
	wake     chan struct{}
	stopChan chan struct{}
	loopDone chan struct{}
}

// NewQueue creates a stopped queue. writeRelays is the default target set
// for tasks that do not name their own relays.
func NewQueue(transport Transport, writeRelays []string, cfg Config) (*Queue, error) {
	if transport == nil {
		return nil, errors.New("transport is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	relays := make([]string, len(writeRelays))
	copy(relays, writeRelays)

	logrus.WithFields(logrus.Fields{
		"function":    "NewQueue",
		"package":     "publish",
		"relay_count": len(relays),
		"mixing":      cfg.RelayMixingEnabled,
		"timing":      cfg.TimingObfuscationEnabled,
	}).Debug("publish queue created")

	return &Queue{
		cfg:          cfg,
		transport:    transport,
		writeRelays:  relays,
		timeProvider: DefaultTimeProvider{},
		wake:         make(chan struct{}, 1),
	}, nil
}

// SetTimeProvider replaces the queue's time source. Call before Start.
func (q *Queue) SetTimeProvider(tp TimeProvider) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if tp == nil {
		tp = DefaultTimeProvider{}
	}
	q.timeProvider = tp
}

// Start launches the drain goroutine. After a Stop/Start cycle the new
// loop waits for the previous one to exit, so at most one drain loop ever
// pops tasks.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}
	q.running = true
	q.stopChan = make(chan struct{})

	stop := q.stopChan
	prev := q.loopDone
	done := make(chan struct{})
	q.loopDone = done

	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		q.drainLoop(stop)
	}()
}

// Stop halts the drain goroutine. Buffered tasks stay buffered; a task
// waiting out a delay is rejected with ErrQueueStopped.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return
	}
	q.running = false
	close(q.stopChan)
}

// Enqueue inserts a task and returns its handle. High-priority tasks go to
// the head class but never preempt the task already in flight.
func (q *Queue) Enqueue(envelope *event.Event, opts PublishOptions) (*Handle, error) {
	if envelope == nil {
		return nil, errors.New("envelope is required")
	}

	relays := opts.Relays
	if len(relays) == 0 {
		relays = q.writeRelays
	}
	if len(relays) == 0 {
		return nil, ErrNoRelays
	}

	t := &task{
		envelope:   envelope,
		relays:     relays,
		priority:   opts.Priority,
		critical:   opts.Critical,
		enqueuedAt: q.timeProvider.Now(),
		handle:     &Handle{done: make(chan struct{})},
	}

	q.mu.Lock()
	if opts.Priority == PriorityHigh {
		q.high = append(q.high, t)
	} else {
		q.normal = append(q.normal, t)
	}
	q.mu.Unlock()

	metricQueueDepth.Inc()

	// Non-blocking wake; a pending wake already covers this task.
	select {
	case q.wake <- struct{}{}:
	default:
	}

	return t.handle, nil
}

// Clear rejects every buffered task with ErrQueueCleared and returns how
// many were rejected. The task currently in flight is not recalled.
func (q *Queue) Clear() int {
	q.mu.Lock()
	cleared := make([]*task, 0, len(q.high)+len(q.normal))
	cleared = append(cleared, q.high...)
	cleared = append(cleared, q.normal...)
	q.high = nil
	q.normal = nil
	q.mu.Unlock()

	for _, t := range cleared {
		t.handle.complete(nil, ErrQueueCleared)
	}

	if len(cleared) > 0 {
		metricQueueDepth.Sub(float64(len(cleared)))
		metricCleared.Add(float64(len(cleared)))
		logrus.WithFields(logrus.Fields{
			"function": "Clear",
			"package":  "publish",
			"count":    len(cleared),
		}).Info("publish queue cleared")
	}
	return len(cleared)
}

// Len returns the number of buffered tasks, excluding the one in flight.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.high) + len(q.normal)
}

// Processing reports whether a task is currently in flight.
func (q *Queue) Processing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight
}

// UpdateConfig swaps the configuration; it applies from the next scheduling
// decision onward.
func (q *Queue) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	q.mu.Lock()
	q.cfg = cfg
	q.mu.Unlock()
	return nil
}

func (q *Queue) snapshotConfig() Config {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cfg
}

func (q *Queue) drainLoop(stop <-chan struct{}) {
	for {
		t := q.nextTask(stop)
		if t == nil {
			return
		}

		stopped := q.dispatch(t, stop)

		q.mu.Lock()
		q.inFlight = false
		q.mu.Unlock()

		if stopped {
			return
		}

		cfg := q.snapshotConfig()
		if cfg.TimingObfuscationEnabled {
			if !q.sleep(randomDelay(cfg.MinInterMessageDelay, cfg.MaxInterMessageDelay), stop) {
				return
			}
		}
	}
}

// nextTask blocks until a task is available or the queue stops. The stop
// channel is checked before every pop so a stopped queue never drains
// buffered work. A popped task counts as in flight from this moment,
// including its queue delay.
func (q *Queue) nextTask(stop <-chan struct{}) *task {
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		q.mu.Lock()
		var t *task
		switch {
		case len(q.high) > 0:
			t = q.high[0]
			q.high = q.high[1:]
		case len(q.normal) > 0:
			t = q.normal[0]
			q.normal = q.normal[1:]
		}
		if t != nil {
			q.inFlight = true
			q.mu.Unlock()
			metricQueueDepth.Dec()
			return t
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-stop:
			return nil
		}
	}
}

// dispatch waits out the queue delay if one applies, then publishes.
// It reports whether the queue was stopped mid-delay.
func (q *Queue) dispatch(t *task, stop <-chan struct{}) bool {
	cfg := q.snapshotConfig()

	if cfg.TimingObfuscationEnabled && t.priority == PriorityNormal && !t.critical {
		if !q.sleep(randomDelay(cfg.MinQueueDelay, cfg.MaxQueueDelay), stop) {
			t.handle.complete(nil, ErrQueueStopped)
			return true
		}
	}

	relays := selectRelays(t.relays, cfg, t.critical)

	results, err := q.transport.Publish(context.Background(), t.envelope, relays)
	metricDispatched.WithLabelValues(t.priority.String()).Inc()

	failures := 0
	for _, r := range results {
		if !r.Success {
			failures++
		}
	}
	if failures > 0 {
		metricRelayFailures.Add(float64(failures))
	}
	if err != nil || failures > 0 {
		logrus.WithFields(logrus.Fields{
			"function":    "dispatch",
			"package":     "publish",
			"relay_count": len(relays),
			"failures":    failures,
		}).Warn("publish completed with failures")
	}

	t.handle.complete(results, err)
	return false
}

// sleep waits for d or until the queue stops, reporting which happened.
func (q *Queue) sleep(d time.Duration, stop <-chan struct{}) bool {
	if d <= 0 {
		return true
	}

	q.mu.Lock()
	tp := q.timeProvider
	q.mu.Unlock()

	select {
	case <-tp.After(d):
		return true
	case <-stop:
		return false
	}
}

// selectRelays applies the mixing policy: all relays when mixing is off,
// otherwise a uniform random subset, oversampled for critical tasks.
func selectRelays(relays []string, cfg Config, critical bool) []string {
	if !cfg.RelayMixingEnabled {
		return relays
	}

	count := cfg.RelaySelectionCount
	if critical && count < cfg.MinRelaysForCritical {
		count = cfg.MinRelaysForCritical
	}
	if count >= len(relays) {
		return relays
	}

	// Partial Fisher-Yates over a copy; the first count entries end up as a
	// uniform random subset.
	shuffled := make([]string, len(relays))
	copy(shuffled, relays)
	for i := 0; i < count; i++ {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(len(shuffled)-i)))
		if err != nil {
			// Entropy failure: fall back to the full set rather than a
			// predictable subset.
			return relays
		}
		k := i + int(j.Int64())
		shuffled[i], shuffled[k] = shuffled[k], shuffled[i]
	}
	return shuffled[:count]
}

// randomDelay draws a uniform duration in [min, max].
func randomDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	span := int64(max - min)
	n, err := rand.Int(rand.Reader, big.NewInt(span+1))
	if err != nil {
		return min
	}
	return min + time.Duration(n.Int64())
}

// String implements fmt.Stringer for debug logging.
func (q *Queue) String() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return fmt.Sprintf("publish.Queue{buffered: %d, inFlight: %v, running: %v}",
		len(q.high)+len(q.normal), q.inFlight, q.running)
}
