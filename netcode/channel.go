package netcode

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/pkopriv2/lockstep/common"
	"github.com/pkopriv2/lockstep/concurrent"
)

// A non-owning reference to an actor.  Posting to an actor that has gone
// away is a silent no-op, so holding a handle never keeps its target
// alive.
type handle interface {
	Post(interface{}) bool
}

// Posted to a peer once a channel has completed its handshake.
type channelOpened struct {
	label string
}

// Posted to a peer exactly once, when a channel is disposed.
type channelClosed struct {
	label   string
	channel *Channel
}

// Posted to a connection for every binary message received.
type envelope struct {
	source string
	data   []byte
}

// What a channel inherits from the peer that creates it.
type channelParent struct {
	remote     string
	peer       handle
	conn       handle
	raw        RawPeer
	logger     common.Logger
	debug      bool
	maxMessage int
}

// A channel is a single labeled data path to a remote device.  Channels
// are passive: they never call into their peer or connection, but post
// messages to them after releasing their own lock.
//
// A channel begins active and closed, opens once the transport completes
// its handshake, and is disposed (irreversibly) when it closes for any
// reason.
type Channel struct {
	label      string
	remote     string
	peer       handle
	conn       handle
	logger     common.Logger
	stats      *Stats
	maxMessage int
	debug      concurrent.AtomicBool

	lock   sync.Mutex
	raw    RawChannel
	open   bool
	active bool
}

// Creates a channel with the given label on the peer.  The peer must be
// active.
func openChannel(p *Peer, label string) (*Channel, error) {
	parent, ok := p.inherit()
	if !ok {
		return nil, errors.Wrapf(InactiveError, "Peer [%v] is not active", p.UUID())
	}

	raw, err := parent.raw.CreateChannel(label)
	if err != nil {
		return nil, errors.Wrapf(err, "Error creating channel [%v] to [%v]", label, parent.remote)
	}

	return newChannel(parent, label, raw), nil
}

// Wraps a channel that the remote device created.
func acceptChannel(p *Peer, raw RawChannel) (*Channel, error) {
	parent, ok := p.inherit()
	if !ok {
		raw.Close()
		return nil, errors.Wrapf(InactiveError, "Peer [%v] is not active", p.UUID())
	}

	return newChannel(parent, raw.Label(), raw), nil
}

func newChannel(parent channelParent, label string, raw RawChannel) *Channel {
	c := &Channel{
		label:      label,
		remote:     parent.remote,
		peer:       parent.peer,
		conn:       parent.conn,
		logger:     parent.logger.Fmt("Channel(%v)", label),
		stats:      newStats("netcode.channel.%v.%v", parent.remote, label),
		maxMessage: parent.maxMessage,
		raw:        raw,
		active:     true,
	}
	c.debug.Set(parent.debug)

	raw.OnOpen(c.onOpen)
	raw.OnClose(c.onClosed)
	raw.OnMessage(c.onMessage)
	return c
}

func (c *Channel) Label() string {
	return c.label
}

// The uuid of the remote device.
func (c *Channel) Remote() string {
	return c.remote
}

func (c *Channel) Stats() *Stats {
	return c.stats
}

func (c *Channel) SetDebug(flag bool) {
	c.debug.Set(flag)
}

func (c *Channel) IsOpen() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.open
}

func (c *Channel) IsActive() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.active
}

// Sends a binary message.  Returns false if the channel is no longer
// active or the transport refused the message.
func (c *Channel) Send(data []byte) bool {
	c.lock.Lock()
	raw, active := c.raw, c.active
	c.lock.Unlock()

	if !active || raw == nil {
		c.stats.dropped(len(data))
		return false
	}

	if c.maxMessage > 0 && len(data) > c.maxMessage {
		c.logger.Error("Message of [%v] bytes exceeds limit [%v]", len(data), c.maxMessage)
		c.stats.dropped(len(data))
		return false
	}

	if err := raw.Send(data); err != nil {
		if c.debug.Get() {
			c.logger.Info("Error sending [%v] bytes: %v", len(data), err)
		}
		c.stats.dropped(len(data))
		return false
	}

	c.stats.sent(len(data))
	return true
}

// Requests that the channel close.  Disposal follows once the transport
// confirms the close.
func (c *Channel) Close() bool {
	c.lock.Lock()
	raw, active := c.raw, c.active
	c.open = false
	c.lock.Unlock()

	if !active || raw == nil {
		return false
	}

	raw.Close()
	return true
}

// Releases the channel.  Only the first call has any effect: it closes
// the raw channel and then informs the peer.
func (c *Channel) Dispose() {
	c.lock.Lock()
	if !c.active {
		c.lock.Unlock()
		return
	}

	c.active = false
	c.open = false
	raw := c.raw
	c.raw = nil
	c.lock.Unlock()

	if raw != nil {
		raw.Close()
	}

	c.stats.unregister()
	if c.debug.Get() {
		c.logger.Info("Disposed")
	}
	c.peer.Post(channelClosed{c.label, c})
}

func (c *Channel) onOpen() {
	c.lock.Lock()
	if !c.active {
		c.lock.Unlock()
		return
	}
	c.open = true
	c.lock.Unlock()

	if c.debug.Get() {
		c.logger.Info("Opened")
	}
	c.peer.Post(channelOpened{c.label})
}

func (c *Channel) onClosed() {
	if c.debug.Get() {
		c.logger.Info("Closed by transport")
	}
	c.Dispose()
}

// Only binary payloads carry application data.
func (c *Channel) onMessage(data []byte, binary bool) {
	if !binary {
		if c.debug.Get() {
			c.logger.Info("Dropped text frame of [%v] bytes", len(data))
		}
		return
	}

	c.lock.Lock()
	active := c.active
	c.lock.Unlock()

	if !active {
		return
	}

	c.stats.received(len(data))
	c.conn.Post(envelope{c.remote, data})
}
