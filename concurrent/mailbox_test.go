package concurrent

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMailbox_Order(t *testing.T) {
	box := NewMailbox(8)
	defer box.Close()

	for i := 0; i < 10; i++ {
		assert.True(t, box.Post(i))
	}

	for i := 0; i < 10; i++ {
		msg, ok := box.Take()
		assert.True(t, ok)
		assert.Equal(t, i, msg)
	}
}

func TestMailbox_CloseWakesConsumer(t *testing.T) {
	box := NewMailbox(8)

	var wait sync.WaitGroup
	wait.Add(1)
	go func() {
		defer wait.Done()
		_, ok := box.Take()
		assert.False(t, ok)
	}()

	time.Sleep(10 * time.Millisecond)
	box.Close()
	assert.Nil(t, Within(time.Second, wait.Wait))
	assert.False(t, box.Post(1))
	assert.True(t, box.Closed())
}

func TestRing_DropsOldest(t *testing.T) {
	ring := NewRing(3)
	defer ring.Close()

	assert.False(t, ring.Push(1))
	assert.False(t, ring.Push(2))
	assert.False(t, ring.Push(3))
	assert.True(t, ring.Push(4))
	assert.Equal(t, 3, ring.Len())

	for _, exp := range []int{2, 3, 4} {
		item, ok := ring.Pop()
		assert.True(t, ok)
		assert.Equal(t, exp, item)
	}

	_, ok := ring.Pop()
	assert.False(t, ok)
}

func TestRing_Resize(t *testing.T) {
	ring := NewRing(4)
	defer ring.Close()

	for i := 0; i < 4; i++ {
		ring.Push(i)
	}

	ring.Resize(2)
	assert.Equal(t, 2, ring.Cap())
	assert.Equal(t, 2, ring.Len())

	item, _ := ring.Pop()
	assert.Equal(t, 2, item)
}

func TestEventually(t *testing.T) {
	start := time.Now()
	assert.True(t, Eventually(time.Second, func() bool {
		return time.Since(start) > 20*time.Millisecond
	}))
	assert.False(t, Eventually(20*time.Millisecond, func() bool { return false }))
}
