// Package clock abstracts the wall clock so expiry can be tested without
// waiting on real time.
package clock

import "time"

// Clock provides time operations that can be mocked for testing
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system clock
type RealClock struct{}

// New creates a new RealClock
func New() *RealClock {
	return &RealClock{}
}

// Now returns the current time in UTC
func (c *RealClock) Now() time.Time {
	return time.Now().UTC()
}

// Cutoff returns the expiry boundary for records idle longer than timeout.
// A record whose last access is at or before the cutoff has timed out.
func Cutoff(c Clock, timeout time.Duration) time.Time {
	return c.Now().Add(-timeout)
}

// Expired reports whether lastAccess is at or before cutoff
func Expired(lastAccess, cutoff time.Time) bool {
	return !lastAccess.After(cutoff)
}
