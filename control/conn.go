package control

import "github.com/pkopriv2/lockstep/netcode"

// The subset of a netcode connection that a controller drives.
type Conn interface {
	Open() error
	Close() error
	UUID() string
	State() netcode.State
	Room() string
	Players() []string
	NumPlayers() int
	StartSession() bool
	SendTo(dest string, data []byte) bool
	Broadcast(data []byte) bool
	Receive(fn netcode.Dispatcher)
}

// Builds unopened connections for a controller.
type Connector interface {
	Host() (Conn, error)
	Join(room string) (Conn, error)
}

type netcodeConnector struct {
	layer  *netcode.Layer
	config netcode.ConnectionConfig
}

// Returns a connector that builds netcode connections on the layer.
func NewNetcodeConnector(layer *netcode.Layer, cfg netcode.ConnectionConfig) Connector {
	return &netcodeConnector{layer, cfg}
}

func (n *netcodeConnector) Host() (Conn, error) {
	conn, err := netcode.NewHostConnection(n.layer, n.config)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (n *netcodeConnector) Join(room string) (Conn, error) {
	conn, err := netcode.NewClientConnection(n.layer, n.config, room)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
