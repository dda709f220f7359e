package netcode

import (
	"fmt"
	"sync"
	"testing"

	"github.com/pkopriv2/lockstep/common"
	"github.com/pkopriv2/lockstep/concurrent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPeer(t *testing.T) (*Peer, *concurrent.Mailbox) {
	ctx := common.NewContext(common.NewEmptyConfig())
	t.Cleanup(func() { ctx.Close() })

	conn := concurrent.NewMailbox(8)
	p, err := newPeer(ctx, conn, NewMemTransport(), DefaultConfig(), "remote", false)
	require.Nil(t, err)
	return p, conn
}

// Drains whatever the peer has posted to its connection.
func numPeerClosed(conn *concurrent.Mailbox) int {
	n := 0
	for conn.Len() > 0 {
		msg, ok := conn.Take()
		if !ok {
			break
		}
		if _, ok := msg.(peerClosed); ok {
			n++
		}
	}
	return n
}

func TestPeer_CreateChannel(t *testing.T) {
	p, _ := newTestPeer(t)

	require.True(t, p.CreateChannel("a"))
	c, ok := p.Channel("a")
	require.True(t, ok)
	assert.True(t, c.IsActive())

	// replacing a label disposes the old channel
	require.True(t, p.CreateChannel("a"))
	assert.False(t, c.IsActive())
	assert.Equal(t, []string{"a"}, p.Channels())
}

func TestPeer_DisposeNotifiesOnce(t *testing.T) {
	p, conn := newTestPeer(t)
	require.True(t, p.CreateChannel(PublicChannel))
	c, _ := p.Channel(PublicChannel)

	p.Dispose()
	p.Dispose()
	assert.False(t, p.IsActive())
	assert.False(t, c.IsActive())
	assert.Empty(t, p.Channels())
	assert.False(t, p.CreateChannel("late"))
	assert.False(t, p.Close())
	assert.Equal(t, 1, numPeerClosed(conn))
}

func TestPeer_ConcurrentCloseAndDispose(t *testing.T) {
	p, conn := newTestPeer(t)

	chans := make([]*Channel, 0, 4)
	for i := 0; i < 4; i++ {
		label := fmt.Sprintf("chan-%v", i)
		require.True(t, p.CreateChannel(label))
		c, _ := p.Channel(label)
		chans = append(chans, c)
	}

	var wait sync.WaitGroup
	for i := 0; i < 24; i++ {
		wait.Add(1)
		go func(i int) {
			defer wait.Done()
			switch i % 6 {
			case 0:
				p.Dispose()
			case 1:
				chans[i%4].Close()
			case 2:
				chans[i%4].Dispose()
			case 3:
				p.Close()
			case 4:
				p.SetDebug(i%2 == 0)
			default:
				p.CreateChannel(fmt.Sprintf("late-%v", i))
			}
		}(i)
	}
	require.Nil(t, concurrent.Within(timeout, wait.Wait))

	assert.False(t, p.IsActive())
	assert.Empty(t, p.Channels())
	for _, c := range chans {
		assert.False(t, c.IsActive())
	}

	// the transport's own close report arrives after the dispose
	assert.True(t, concurrent.Eventually(timeout, func() bool {
		return p.box.Closed()
	}))
	assert.Equal(t, 1, numPeerClosed(conn))
}

func TestConnection_ConcurrentCloseAndSend(t *testing.T) {
	f := newFixture(t)
	host, client := connected(t, f)

	var wait sync.WaitGroup
	for i := 0; i < 24; i++ {
		wait.Add(1)
		go func(i int) {
			defer wait.Done()
			switch i % 4 {
			case 0:
				host.Close()
			case 1:
				host.Broadcast([]byte("all"))
			case 2:
				host.SendTo(client.UUID(), []byte("one"))
			default:
				client.SendToHost([]byte("back"))
			}
		}(i)
	}
	require.Nil(t, concurrent.Within(timeout, wait.Wait))

	require.True(t, awaitState(host, Disconnected))
	assert.False(t, host.IsActive())
	assert.Empty(t, host.Peers())
	assert.False(t, host.Broadcast([]byte("late")))
	assert.False(t, host.SendTo(client.UUID(), []byte("late")))
}
