package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimerFires(t *testing.T) {
	timer := NewTimer()
	timer.Reset(time.Now().Add(scaleDuration(25 * time.Millisecond)))
	select {
	case <-timer.Chan():
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestTimerDoesntFireEarly(t *testing.T) {
	timer := NewTimer()
	deadline := time.Now().Add(scaleDuration(50 * time.Millisecond))
	timer.Reset(deadline)
	require.Equal(t, deadline, timer.Deadline())
	select {
	case <-timer.Chan():
		t.Fatal("timer fired too early")
	case <-time.After(scaleDuration(10 * time.Millisecond)):
	}
}

func TestTimerResetAfterRead(t *testing.T) {
	timer := NewTimer()
	timer.Reset(time.Now().Add(scaleDuration(10 * time.Millisecond)))
	<-timer.Chan()
	timer.SetRead()
	timer.Reset(time.Now().Add(scaleDuration(10 * time.Millisecond)))
	select {
	case <-timer.Chan():
	case <-time.After(time.Second):
		t.Fatal("timer did not fire after reset")
	}
}

func TestTimerResetBeforeRead(t *testing.T) {
	timer := NewTimer()
	timer.Reset(time.Now().Add(scaleDuration(5 * time.Millisecond)))
	time.Sleep(scaleDuration(20 * time.Millisecond))
	// the value was never read from the channel
	timer.Reset(time.Now().Add(scaleDuration(10 * time.Millisecond)))
	select {
	case <-timer.Chan():
	case <-time.After(time.Second):
		t.Fatal("timer did not fire after reset")
	}
}

func TestTimerStop(t *testing.T) {
	timer := NewTimer()
	timer.Reset(time.Now().Add(scaleDuration(20 * time.Millisecond)))
	timer.Stop()
	select {
	case <-timer.Chan():
		t.Fatal("timer fired after Stop")
	case <-time.After(scaleDuration(50 * time.Millisecond)):
	}
}

// scaleDuration leaves headroom for slow CI machines.
func scaleDuration(d time.Duration) time.Duration {
	return 4 * d
}
