package netcode

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"strconv"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/pkopriv2/lockstep/common"
	"github.com/pkopriv2/lockstep/concurrent"
	"github.com/pkopriv2/lockstep/inet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Serves the in-process lobby over real websockets.
func newWebSocketLobby(t *testing.T, lobby *MemLobby) inet.Address {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		lobby.Serve(path.Base(r.URL.Path), NewWebSocket(conn, time.Second))
	}))
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	require.Nil(t, err)

	port, err := strconv.Atoi(u.Port())
	require.Nil(t, err)
	return inet.NewAddress(u.Hostname(), uint16(port))
}

func TestWebSocketLobby_HostAndClient(t *testing.T) {
	ctx := common.NewContext(common.NewEmptyConfig())
	defer ctx.Close()

	lobby := NewMemLobby(ctx)
	cfg := NewConfig(newWebSocketLobby(t, lobby))

	transport := NewMemTransport()
	layer := NewLayer(ctx, func(o *LayerOptions) {
		o.WithTransport(transport)
	})
	require.True(t, layer.Start(LevelNone))

	host, err := NewHostConnection(layer, cfg)
	require.Nil(t, err)
	require.Nil(t, host.Open())
	require.True(t, awaitState(host, Connected))
	assert.Equal(t, []string{host.Room()}, lobby.Rooms())

	client, err := NewClientConnection(layer, cfg, host.Room())
	require.Nil(t, err)
	require.Nil(t, client.Open())
	require.True(t, awaitState(client, Connected))

	assert.True(t, client.SendToHost([]byte("over the wire")))
	received := &inbox{}
	assert.True(t, concurrent.Eventually(timeout, received.drain(host)))
	assert.True(t, received.contains(client.UUID(), "over the wire"))
}

func TestWebSocketLobby_Unreachable(t *testing.T) {
	ctx := common.NewContext(common.NewConfig(map[string]interface{}{
		Config.DialTimeout: 200,
	}))
	defer ctx.Close()

	layer := NewLayer(ctx, func(o *LayerOptions) {
		o.WithTransport(NewMemTransport())
	})
	require.True(t, layer.Start(LevelNone))

	host, err := NewHostConnection(layer, NewConfig(inet.Localhost(1)))
	require.Nil(t, err)
	require.Nil(t, host.Open())
	assert.True(t, awaitState(host, Failed))
}

func TestMemLobby_Kick(t *testing.T) {
	f := newFixture(t)
	host, client := connected(t, f)

	f.lobby.Kick(client.UUID())
	assert.True(t, awaitState(client, Disconnected))
	assert.True(t, concurrent.Eventually(timeout, func() bool { return host.NumPlayers() == 1 }))
}

func TestMemLobby_HostLeavesBeforeSession(t *testing.T) {
	f := newFixture(t)
	host, client := connected(t, f)

	host.Close()
	assert.True(t, awaitState(client, Disconnected))
	assert.True(t, concurrent.Eventually(timeout, func() bool { return len(f.lobby.Rooms()) == 0 }))
}
