// Package publish implements the privacy publish queue: outbound envelopes
// are buffered and emitted to the relay transport at randomized times and
// over randomized relay subsets, so a relay-side observer cannot correlate
// consecutive sends from the same client.
//
// A Queue runs exactly one drain goroutine. Tasks dispatch FIFO within a
// priority class; high-priority tasks jump ahead of pending normal tasks
// but never preempt the task already in flight. When timing obfuscation is
// enabled, normal tasks incur a randomized queue delay before dispatch and
// every dispatch is followed by a randomized inter-message delay.
//
// Basic usage:
//
//	queue, err := publish.NewQueue(transport, writeRelays, publish.DefaultConfig())
//	if err != nil {
//	    // handle invalid configuration
//	}
//	queue.Start()
//	defer queue.Stop()
//
//	handle, err := queue.Enqueue(wrap, publish.PublishOptions{
//	    Priority: publish.PriorityHigh,
//	})
//	results, err := handle.Wait(ctx)
package publish
