package netcode

import (
	"sync"
	"testing"

	"github.com/pkopriv2/lockstep/common"
	"github.com/pkopriv2/lockstep/concurrent"
	"github.com/stretchr/testify/assert"
)

type fakeChannel struct {
	hooks
	label string

	lock   sync.Mutex
	sent   [][]byte
	closes int
	err    error
}

func (f *fakeChannel) Label() string {
	return f.label
}

func (f *fakeChannel) Send(data []byte) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeChannel) Close() error {
	f.lock.Lock()
	f.closes++
	f.lock.Unlock()
	f.fireClose()
	return nil
}

func (f *fakeChannel) numSent() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.sent)
}

func newTestChannel(maxMessage int) (*Channel, *fakeChannel, *concurrent.Mailbox, *concurrent.Mailbox) {
	ctx := common.NewContext(common.NewEmptyConfig())
	peer, conn := concurrent.NewMailbox(8), concurrent.NewMailbox(8)
	raw := &fakeChannel{label: PublicChannel}
	parent := channelParent{
		remote:     "remote",
		peer:       peer,
		conn:       conn,
		logger:     ctx.Logger(),
		maxMessage: maxMessage,
	}
	return newChannel(parent, PublicChannel, raw), raw, peer, conn
}

func TestChannel_OpenNotifiesPeer(t *testing.T) {
	c, raw, peer, _ := newTestChannel(0)
	assert.True(t, c.IsActive())
	assert.False(t, c.IsOpen())

	raw.fireOpen()
	assert.True(t, c.IsOpen())

	msg, ok := peer.Take()
	assert.True(t, ok)
	assert.Equal(t, channelOpened{PublicChannel}, msg)
}

func TestChannel_BinaryForwarded(t *testing.T) {
	c, raw, _, conn := newTestChannel(0)
	raw.fireOpen()

	raw.fireMessage([]byte("text"), false)
	raw.fireMessage([]byte("binary"), true)

	msg, ok := conn.Take()
	assert.True(t, ok)
	assert.Equal(t, envelope{"remote", []byte("binary")}, msg)
	assert.Equal(t, 0, conn.Len())
	assert.Equal(t, int64(1), c.Stats().MessagesReceived.Count())
}

func TestChannel_SendInactive(t *testing.T) {
	c, raw, _, _ := newTestChannel(0)
	raw.fireOpen()

	assert.True(t, c.Send([]byte{1}))
	c.Dispose()
	assert.False(t, c.Send([]byte{2}))
	assert.Equal(t, 1, raw.numSent())
}

func TestChannel_SendRejected(t *testing.T) {
	c, raw, _, _ := newTestChannel(0)
	raw.err = ClosedError
	assert.False(t, c.Send([]byte{1}))
	assert.Equal(t, int64(1), c.Stats().MessagesDropped.Count())
}

func TestChannel_SendTooLarge(t *testing.T) {
	c, raw, _, _ := newTestChannel(4)
	assert.False(t, c.Send([]byte{1, 2, 3, 4, 5}))
	assert.True(t, c.Send([]byte{1, 2, 3, 4}))
	assert.Equal(t, 1, raw.numSent())
}

func TestChannel_CloseDisposes(t *testing.T) {
	c, _, peer, _ := newTestChannel(0)
	assert.True(t, c.Close())
	assert.False(t, c.IsActive())
	assert.False(t, c.Close())

	msg, ok := peer.Take()
	assert.True(t, ok)
	assert.Equal(t, channelClosed{PublicChannel, c}, msg)
}

func TestChannel_ConcurrentDisposeNotifiesOnce(t *testing.T) {
	c, raw, peer, _ := newTestChannel(0)
	raw.fireOpen()
	peer.Take()

	var wait sync.WaitGroup
	for i := 0; i < 16; i++ {
		wait.Add(1)
		go func(i int) {
			defer wait.Done()
			switch i % 3 {
			case 0:
				c.Dispose()
			case 1:
				c.Close()
			default:
				raw.fireClose()
			}
		}(i)
	}
	wait.Wait()

	assert.False(t, c.IsActive())
	assert.Equal(t, 1, peer.Len())
}
