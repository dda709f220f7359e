package common

import (
	"io"
	"sync"
)

type Control interface {
	io.Closer
	Fail(error)
	Closed() <-chan struct{}
	IsClosed() bool
	Failure() error
	Defer(func(error))
	Sub() Control
}

type control struct {
	lock    sync.Mutex
	closes  []func(error)
	closed  chan struct{}
	closer  chan struct{}
	failure error
}

func NewControl(parent Control) Control {
	l := &control{
		closes: make([]func(error), 0, 8),
		closed: make(chan struct{}),
		closer: make(chan struct{}, 1),
	}

	if parent != nil {
		go func() {
			select {
			case <-parent.Closed():
				l.Fail(parent.Failure())
				return
			case <-l.closed:
				return
			}
		}()
	}

	return l
}

func (c *control) Fail(cause error) {
	select {
	case <-c.closed:
		return
	case c.closer <- struct{}{}:
	}

	c.lock.Lock()
	c.failure = cause
	closes := c.closes
	c.closes = nil
	close(c.closed)
	c.lock.Unlock()

	for i := len(closes) - 1; i >= 0; i-- {
		closes[i](cause)
	}
}

func (c *control) Close() error {
	c.Fail(nil)
	return c.Failure()
}

func (c *control) Closed() <-chan struct{} {
	return c.closed
}

func (c *control) IsClosed() bool {
	select {
	default:
		return false
	case <-c.closed:
		return true
	}
}

func (c *control) Failure() error {
	<-c.closed
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.failure
}

// Registers a function to run when the control is closed.  Functions
// run in reverse order of registration.  If the control is already
// closed, the function runs immediately.
func (c *control) Defer(fn func(error)) {
	c.lock.Lock()
	if !c.IsClosed() {
		c.closes = append(c.closes, fn)
		c.lock.Unlock()
		return
	}
	cause := c.failure
	c.lock.Unlock()
	fn(cause)
}

func (c *control) Sub() Control {
	return NewControl(c)
}
