// Package system provides the wall clock.
package system

import "time"

// Clock implements crawler.Clock. Times are in the local zone because session files
// and page headers record local wall-clock time.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current local time.
func (Clock) Now() time.Time {
	return time.Now()
}
