package netcode

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/pkopriv2/lockstep/inet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, inet.Localhost(DefaultLobbyPort), cfg.Lobby)
	assert.Equal(t, uint16(DefaultPortBegin), cfg.PortBegin)
	assert.Equal(t, uint16(DefaultPortEnd), cfg.PortEnd)
	assert.Equal(t, DefaultMaxPlayers, cfg.MaxPlayers)
	assert.Empty(t, cfg.ICEServers)
	assert.Nil(t, cfg.Validate())
}

func TestConfig_Parse(t *testing.T) {
	doc := `
lobby:
  address: lobby.example.com
  port: 9000
ice servers:
  - address: stun.example.com
    port: 3478
  - address: turn.example.com
    port: 3478
    turn: true
    username: user
    password: pass
secure: true
port range: [5000, 6000]
max players: 4
API version: 3
`
	cfg, err := ParseConfig([]byte(doc))
	require.Nil(t, err)

	assert.Equal(t, inet.NewAddress("lobby.example.com", 9000), cfg.Lobby)
	assert.Equal(t, 2, len(cfg.ICEServers))
	assert.False(t, cfg.ICEServers[0].Turn)
	assert.True(t, cfg.ICEServers[1].Turn)
	assert.Equal(t, "user", cfg.ICEServers[1].Username)
	assert.True(t, cfg.Secure)
	assert.Equal(t, uint16(5000), cfg.PortBegin)
	assert.Equal(t, uint16(6000), cfg.PortEnd)
	assert.Equal(t, 4, cfg.MaxPlayers)
	assert.Equal(t, uint8(3), cfg.APIVersion)
	assert.Equal(t, "wss://lobby.example.com:9000/abc", cfg.LobbyURL("abc"))

	servers := cfg.iceServers()
	assert.Equal(t, []string{"stun:stun.example.com:3478"}, servers[0].URLs)
	assert.Equal(t, "pass", servers[1].Credential)
}

func TestConfig_ParseShortPortRange(t *testing.T) {
	cfg, err := ParseConfig([]byte(`port range: [5000]`))
	require.Nil(t, err)
	assert.Equal(t, uint16(DefaultPortBegin), cfg.PortBegin)
}

func TestConfig_ParseInvalid(t *testing.T) {
	_, err := ParseConfig([]byte(`port range: [6000, 5000]`))
	assert.Equal(t, InvalidConfigError, errors.Cause(err))

	_, err = ParseConfig([]byte(`max players: 0`))
	assert.Equal(t, InvalidConfigError, errors.Cause(err))

	_, err = ParseConfig([]byte(`lobby: {address: "1.2.3"}`))
	assert.Equal(t, InvalidConfigError, errors.Cause(err))

	_, err = ParseConfig([]byte(`max players: 256`))
	assert.Equal(t, InvalidConfigError, errors.Cause(err))
}

func TestConfig_ParseOutOfRange(t *testing.T) {
	_, err := ParseConfig([]byte(`{"API version": 256}`))
	assert.Equal(t, InvalidConfigError, errors.Cause(err))

	_, err = ParseConfig([]byte(`{"API version": -1}`))
	assert.Equal(t, InvalidConfigError, errors.Cause(err))

	_, err = ParseConfig([]byte(`{"port range": [70000, 70001]}`))
	assert.Equal(t, InvalidConfigError, errors.Cause(err))

	_, err = ParseConfig([]byte(`{"port range": [-1, 5000]}`))
	assert.Equal(t, InvalidConfigError, errors.Cause(err))

	cfg, err := ParseConfig([]byte(`{"API version": 255, "port range": [0, 65535], "max players": 255}`))
	assert.Nil(t, err)
	assert.Equal(t, uint8(255), cfg.APIVersion)
	assert.Equal(t, uint16(0), cfg.PortBegin)
	assert.Equal(t, uint16(65535), cfg.PortEnd)
	assert.Equal(t, MaxPlayers, cfg.MaxPlayers)
}

func TestConfig_Copy(t *testing.T) {
	cfg := NewConfigWithICE(inet.Localhost(80), inet.NewSTUN("stun.example.com", 3478))
	cp := cfg.Copy()
	cp.ICEServers[0].Port = 1

	assert.Equal(t, uint16(3478), cfg.ICEServers[0].Port)
	assert.Equal(t, "ws://localhost:80/id", cfg.LobbyURL("id"))
}
