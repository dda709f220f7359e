package control

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/pkopriv2/lockstep/event"
	"github.com/pkopriv2/lockstep/netcode"
	"github.com/pkopriv2/lockstep/physics"
	"github.com/pkopriv2/lockstep/world"
	uuid "github.com/satori/go.uuid"
)

type delivery struct {
	source string
	data   []byte
}

// A room where every message is delivered instantly.
type hub struct {
	lock  sync.Mutex
	conns []*fakeConn
	room  string
	fail  error
}

func newHub() *hub {
	return &hub{room: "R0001"}
}

func (h *hub) Host() (Conn, error) {
	return h.join()
}

func (h *hub) Join(room string) (Conn, error) {
	if room != h.room {
		return nil, errors.Errorf("No such room [%v]", room)
	}
	return h.join()
}

func (h *hub) join() (Conn, error) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.fail != nil {
		return nil, h.fail
	}

	c := &fakeConn{hub: h, id: uuid.NewV4().String(), state: netcode.Inactive}
	h.conns = append(h.conns, c)
	return c, nil
}

func (h *hub) setState(s netcode.State) {
	h.lock.Lock()
	defer h.lock.Unlock()
	for _, c := range h.conns {
		c.state = s
	}
}

func (h *hub) deliver(dest string, source string, data []byte) bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	for _, c := range h.conns {
		if c.id == dest && !c.closed {
			c.inbox = append(c.inbox, delivery{source, append([]byte(nil), data...)})
			return true
		}
	}
	return false
}

type fakeConn struct {
	hub    *hub
	id     string
	state  netcode.State
	inbox  []delivery
	closed bool
}

func (c *fakeConn) Open() error {
	c.hub.lock.Lock()
	defer c.hub.lock.Unlock()
	c.state = netcode.Connected
	return nil
}

func (c *fakeConn) Close() error {
	c.hub.lock.Lock()
	defer c.hub.lock.Unlock()
	c.closed = true
	c.state = netcode.Disconnected
	return nil
}

func (c *fakeConn) UUID() string {
	return c.id
}

func (c *fakeConn) State() netcode.State {
	c.hub.lock.Lock()
	defer c.hub.lock.Unlock()
	return c.state
}

func (c *fakeConn) Room() string {
	return c.hub.room
}

func (c *fakeConn) Players() []string {
	c.hub.lock.Lock()
	defer c.hub.lock.Unlock()
	ret := make([]string, 0, len(c.hub.conns))
	for _, o := range c.hub.conns {
		if !o.closed {
			ret = append(ret, o.id)
		}
	}
	return ret
}

func (c *fakeConn) NumPlayers() int {
	return len(c.Players())
}

func (c *fakeConn) StartSession() bool {
	c.hub.setState(netcode.InSession)
	return true
}

func (c *fakeConn) SendTo(dest string, data []byte) bool {
	return c.hub.deliver(dest, c.id, data)
}

func (c *fakeConn) Broadcast(data []byte) bool {
	for _, id := range c.Players() {
		c.hub.deliver(id, c.id, data)
	}
	return true
}

func (c *fakeConn) Receive(fn netcode.Dispatcher) {
	c.hub.lock.Lock()
	inbox := c.inbox
	c.inbox = nil
	c.hub.lock.Unlock()

	for _, d := range inbox {
		fn(d.source, d.data)
	}
}

// Builds square bodies at the position packed in the params.
type boxFactory struct{}

func boxParams(x, y float32) []byte {
	enc := event.NewEncoder()
	enc.PutFloat32(x)
	enc.PutFloat32(y)
	return enc.Bytes()
}

func (boxFactory) Create(params []byte) (world.Obstacle, error) {
	dec := event.NewDecoder(params)
	x, y := dec.ReadFloat32(), dec.ReadFloat32()
	if err := dec.Err(); err != nil {
		return nil, err
	}
	return physics.NewBody(physics.Dynamic, x, y, 4, 4), nil
}

type brokenFactory struct{}

func (brokenFactory) Create([]byte) (world.Obstacle, error) {
	return nil, fmt.Errorf("broken")
}

// A user event kind.
type chat struct {
	text string
}

func (c *chat) Serialize() []byte {
	return []byte(c.text)
}

func (c *chat) Deserialize(data []byte) error {
	c.text = string(data)
	return nil
}
