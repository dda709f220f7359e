package concurrent

import (
	"fmt"
	"time"
)

type TimeoutError struct {
	timeout time.Duration
	msg     string
}

func NewTimeoutError(timeout time.Duration, msg string) TimeoutError {
	return TimeoutError{timeout, msg}
}

func (t TimeoutError) Error() string {
	return fmt.Sprintf("Timeout[%v]: %v", t.timeout, t.msg)
}

// Runs the function in the background and returns a TimeoutError if it
// has not completed within the duration.  The function itself is never
// interrupted.
func Within(dur time.Duration, fn func()) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()

	timer := time.NewTimer(dur)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return NewTimeoutError(dur, "Concurrent:Breaker")
	}
}

// Polls the condition until it holds or the duration elapses.
func Eventually(dur time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(dur)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}
