package service

import (
	"sync"
	"time"
)

// SessionClock tracks the remaining time of one attempt. The deadline is
// computed once from startedAt + duration and is the single source of truth:
// a process restart rebuilds an identical clock from the persisted attempt,
// and the optional armed timer is only a notification convenience.
type SessionClock struct {
	deadline time.Time

	mu    sync.Mutex
	timer *time.Timer
}

func NewSessionClock(startedAt time.Time, duration time.Duration) *SessionClock {
	return &SessionClock{deadline: startedAt.Add(duration)}
}

// ClockFromDeadline rebuilds a clock around an already-persisted deadline.
func ClockFromDeadline(deadline time.Time) *SessionClock {
	return &SessionClock{deadline: deadline}
}

func (c *SessionClock) Deadline() time.Time {
	return c.deadline
}

// Remaining returns the time left before the deadline, clamped at zero.
func (c *SessionClock) Remaining(now time.Time) time.Duration {
	remaining := c.deadline.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (c *SessionClock) HasExpired(now time.Time) bool {
	return now.After(c.deadline)
}

// Arm schedules fn to run once at the deadline. If the deadline has already
// passed, fn runs immediately on its own goroutine. Re-arming replaces the
// previous timer.
func (c *SessionClock) Arm(now time.Time, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.deadline.Sub(now), fn)
}

// Stop cancels a pending expiry notification, e.g. when the session reached
// graded before the clock ran out.
func (c *SessionClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
