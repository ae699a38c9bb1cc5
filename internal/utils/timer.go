package utils

import (
	"math"
	"time"
)

// A Timer wraps time.Timer with deadline bookkeeping, so that it can be
// safely reset even when the previous value was never read from the channel.
// Event loops arm it with the earliest alarm deadline and rearm it after
// every wakeup.
type Timer struct {
	t        *time.Timer
	read     bool
	deadline time.Time
}

func NewTimer() *Timer {
	// Armed far in the future, so the channel is valid but won't fire.
	return &Timer{t: time.NewTimer(time.Duration(math.MaxInt64))}
}

func (t *Timer) Chan() <-chan time.Time { return t.t.C }

// Reset rearms the timer for the given deadline.
// A zero deadline leaves the timer stopped.
func (t *Timer) Reset(deadline time.Time) {
	if deadline.Equal(t.deadline) && !t.read {
		// already armed for this deadline
		return
	}

	// drain the channel if an unread value is pending,
	// see https://groups.google.com/forum/#!topic/golang-dev/c9UUfASVPoU
	if !t.t.Stop() && !t.read {
		<-t.t.C
	}
	if !deadline.IsZero() {
		t.t.Reset(time.Until(deadline))
	}

	t.read = false
	t.deadline = deadline
}

// SetRead must be called after receiving a value from Chan.
func (t *Timer) SetRead() { t.read = true }

// Deadline returns the deadline the timer was last armed for.
func (t *Timer) Deadline() time.Time { return t.deadline }

func (t *Timer) Stop() { t.t.Stop() }
