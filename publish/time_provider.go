package publish

import "time"

// TimeProvider abstracts time operations so delay logic is testable.
// Implementations must be safe for concurrent use.
type TimeProvider interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// After waits for the duration to elapse and then delivers the current time.
func (DefaultTimeProvider) After(d time.Duration) <-chan time.Time { return time.After(d) }
