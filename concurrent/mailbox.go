package concurrent

import (
	"github.com/Workiva/go-datastructures/queue"
)

// A mailbox is the inbound queue of an actor.  Any number of producers
// may post to it; a single consumer takes from it in FIFO order.  Once
// closed, posts are rejected and pending messages are discarded.
//
// Children hold a parent's mailbox as a non-owning handle: posting to a
// closed mailbox is a silent no-op, so a child never keeps its parent
// alive and never needs to know whether the parent still exists.
type Mailbox struct {
	inner *queue.Queue
}

func NewMailbox(hint int64) *Mailbox {
	return &Mailbox{queue.New(hint)}
}

// Posts a message.  Returns false if the mailbox has been closed.
func (m *Mailbox) Post(msg interface{}) bool {
	return m.inner.Put(msg) == nil
}

// Blocks until a message is available or the mailbox is closed.
func (m *Mailbox) Take() (interface{}, bool) {
	items, err := m.inner.Get(1)
	if err != nil || len(items) == 0 {
		return nil, false
	}
	return items[0], true
}

func (m *Mailbox) Len() int {
	return int(m.inner.Len())
}

func (m *Mailbox) Closed() bool {
	return m.inner.Disposed()
}

func (m *Mailbox) Close() {
	m.inner.Dispose()
}
