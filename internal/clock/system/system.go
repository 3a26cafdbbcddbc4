// Package system provides the wall clock used to timestamp trace records.
package system

import "time"

// Clock reports UTC wall time. It satisfies trace.Clock.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Since returns the elapsed time since start.
func (c Clock) Since(start time.Time) time.Duration {
	return c.Now().Sub(start)
}
