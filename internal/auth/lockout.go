package auth

import "time"

const (
	// DefaultLockoutThreshold is the number of failed attempts that locks an identity
	DefaultLockoutThreshold = 5
	// DefaultLockoutDuration is how long a locked identity stays locked
	DefaultLockoutDuration = 30 * time.Minute
)

// Lockout tracks failed login attempts for an identity. The counter is
// persisted with the identity and incremented atomically at the storage layer;
// this type only evaluates and transitions the state.
type Lockout struct {
	Attempts  int
	LockUntil *time.Time
}

// Locked reports whether the identity is locked at the given instant. Expiry
// is evaluated lazily; there is no explicit unlock transition.
func (l Lockout) Locked(now time.Time) bool {
	return l.LockUntil != nil && l.LockUntil.After(now)
}

// RecordFailure increments the attempt counter and, once the threshold is
// reached, sets the lock expiry. It returns the new state; callers must not
// invoke it while the identity is already locked.
func (l Lockout) RecordFailure(now time.Time, threshold int, duration time.Duration) Lockout {
	l.Attempts++
	if l.Attempts >= threshold {
		until := now.Add(duration)
		l.LockUntil = &until
	}
	return l
}

// Reset clears the counter and lock after a successful authentication.
func (l Lockout) Reset() Lockout {
	return Lockout{}
}
