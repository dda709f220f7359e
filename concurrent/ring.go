package concurrent

import (
	"sync"
	"time"

	"github.com/Workiva/go-datastructures/queue"
)

// A bounded FIFO that drops its oldest entry when full.  The underlying
// ring buffer rounds capacities up to a power of two, so the logical
// capacity is tracked here.
type Ring struct {
	lock  sync.Mutex
	inner *queue.RingBuffer
	cap   int
}

func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{inner: queue.NewRingBuffer(uint64(capacity)), cap: capacity}
}

// Adds an item, returning true if an older item was dropped to make room.
func (r *Ring) Push(item interface{}) (dropped bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	for int(r.inner.Len()) >= r.cap {
		if _, err := r.inner.Poll(time.Millisecond); err != nil {
			break
		}
		dropped = true
	}

	ok, err := r.inner.Offer(item)
	return dropped || !ok || err != nil
}

// Removes the oldest item, if any.
func (r *Ring) Pop() (interface{}, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.inner.Len() == 0 {
		return nil, false
	}

	item, err := r.inner.Poll(time.Millisecond)
	if err != nil {
		return nil, false
	}
	return item, true
}

func (r *Ring) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return int(r.inner.Len())
}

func (r *Ring) Cap() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.cap
}

// Changes the capacity, keeping the newest items that still fit.
func (r *Ring) Resize(capacity int) {
	if capacity < 1 {
		capacity = 1
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	items := make([]interface{}, 0, r.inner.Len())
	for r.inner.Len() > 0 {
		item, err := r.inner.Poll(time.Millisecond)
		if err != nil {
			break
		}
		items = append(items, item)
	}

	if len(items) > capacity {
		items = items[len(items)-capacity:]
	}

	r.inner.Dispose()
	r.inner = queue.NewRingBuffer(uint64(capacity))
	r.cap = capacity
	for _, item := range items {
		r.inner.Offer(item)
	}
}

func (r *Ring) Close() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.inner.Dispose()
}
