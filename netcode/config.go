package netcode

import (
	"fmt"
	"math"

	"github.com/pion/webrtc/v3"
	"github.com/pkg/errors"
	"github.com/pkopriv2/lockstep/inet"
	yaml "gopkg.in/yaml.v2"
)

const (
	DefaultLobbyPort  = 8000
	DefaultPortBegin  = 1024
	DefaultPortEnd    = 65535
	DefaultMaxPlayers = 2

	// Players are numbered with a single byte, and zero is reserved.
	MaxPlayers = 255
)

// The settings used to establish a connection.  Only the lobby address
// is required; every other field has a usable default.  A connection
// copies its configuration when it is created, so later changes to a
// config never affect a live connection.
//
// Devices with different api versions are never placed in the same room.
type ConnectionConfig struct {
	Lobby      inet.Address
	ICEServers []inet.ICEAddress
	Secure     bool
	Multiplex  bool
	PortBegin  uint16
	PortEnd    uint16
	MTU        int
	MaxMessage int
	MaxPlayers int
	APIVersion uint8
}

func DefaultConfig() ConnectionConfig {
	return NewConfig(inet.Localhost(DefaultLobbyPort))
}

func NewConfig(lobby inet.Address) ConnectionConfig {
	return ConnectionConfig{
		Lobby:      lobby,
		PortBegin:  DefaultPortBegin,
		PortEnd:    DefaultPortEnd,
		MaxPlayers: DefaultMaxPlayers,
	}
}

func NewConfigWithICE(lobby inet.Address, ice inet.ICEAddress) ConnectionConfig {
	ret := NewConfig(lobby)
	ret.ICEServers = []inet.ICEAddress{ice}
	return ret
}

// The configuration document format.  Json documents are valid yaml,
// so either may be supplied.
type configDoc struct {
	Lobby      *inet.Address     `yaml:"lobby"`
	ICEServers []inet.ICEAddress `yaml:"ice servers"`
	Secure     bool              `yaml:"secure"`
	Multiplex  bool              `yaml:"multiplex"`
	PortRange  []int             `yaml:"port range"`
	MTU        int               `yaml:"MTU"`
	MaxMessage int               `yaml:"max message"`
	MaxPlayers *int              `yaml:"max players"`
	APIVersion int               `yaml:"API version"`
}

// Parses a configuration document.  A port range with fewer than two
// entries is ignored.
func ParseConfig(data []byte) (ConnectionConfig, error) {
	var doc configDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return ConnectionConfig{}, errors.Wrap(err, "Error parsing connection config")
	}

	ret := DefaultConfig()
	if doc.Lobby != nil {
		ret.Lobby = *doc.Lobby
	}

	ret.ICEServers = doc.ICEServers
	ret.Secure = doc.Secure
	ret.Multiplex = doc.Multiplex
	ret.MTU = doc.MTU
	ret.MaxMessage = doc.MaxMessage
	if doc.APIVersion < 0 || doc.APIVersion > math.MaxUint8 {
		return ConnectionConfig{}, errors.Wrapf(InvalidConfigError, "Invalid api version [%v]", doc.APIVersion)
	}
	ret.APIVersion = uint8(doc.APIVersion)
	if doc.MaxPlayers != nil {
		ret.MaxPlayers = *doc.MaxPlayers
	}
	if len(doc.PortRange) >= 2 {
		for _, port := range doc.PortRange[:2] {
			if port < 0 || port > math.MaxUint16 {
				return ConnectionConfig{}, errors.Wrapf(InvalidConfigError, "Invalid port [%v]", port)
			}
		}
		ret.PortBegin = uint16(doc.PortRange[0])
		ret.PortEnd = uint16(doc.PortRange[1])
	}

	return ret, ret.Validate()
}

func (c ConnectionConfig) Validate() error {
	if !c.Lobby.Valid() {
		return errors.Wrapf(InvalidConfigError, "Invalid lobby address [%v]", c.Lobby.Host)
	}
	for _, ice := range c.ICEServers {
		if !ice.Valid() {
			return errors.Wrapf(InvalidConfigError, "Invalid ice server [%v]", ice.Host)
		}
	}
	if c.PortBegin > c.PortEnd {
		return errors.Wrapf(InvalidConfigError, "Invalid port range [%v, %v]", c.PortBegin, c.PortEnd)
	}
	if c.MaxPlayers < 1 || c.MaxPlayers > MaxPlayers {
		return errors.Wrapf(InvalidConfigError, "Invalid max players [%v]", c.MaxPlayers)
	}
	return nil
}

// Returns a deep copy of the config.
func (c ConnectionConfig) Copy() ConnectionConfig {
	ret := c
	ret.ICEServers = append([]inet.ICEAddress(nil), c.ICEServers...)
	return ret
}

// The websocket url that a device with the given id uses to reach the
// lobby.
func (c ConnectionConfig) LobbyURL(id string) string {
	if c.Secure {
		return fmt.Sprintf("wss://%v/%v", c.Lobby, id)
	}
	return fmt.Sprintf("ws://%v/%v", c.Lobby, id)
}

func (c ConnectionConfig) iceServers() []webrtc.ICEServer {
	ret := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, ice := range c.ICEServers {
		server := webrtc.ICEServer{URLs: []string{ice.URL()}}
		if ice.Turn {
			server.Username = ice.Username
			server.Credential = ice.Password
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		ret = append(ret, server)
	}
	return ret
}
