// Package clock abstracts time for the orchestrator, ledger, and classifier.
// Day-key derivation, transition timestamps, and diagnosis times all flow
// through a Clock so tests can pin them to fixed instants.
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}

var _ Clock = RealClock{}
