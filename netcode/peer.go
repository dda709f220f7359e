package netcode

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/pkopriv2/lockstep/common"
	"github.com/pkopriv2/lockstep/concurrent"
	"github.com/pkopriv2/lockstep/scribe"
)

// The label of the channel that carries application data.  A peer is
// considered established once its public channel opens.
const PublicChannel = "public"

// Posted to a connection once a peer's public channel opens.
type peerEstablished struct {
	id string
}

// Posted to a connection exactly once, when a peer is disposed.
type peerClosed struct {
	id   string
	peer *Peer
}

// Posted to a connection for every lobby message a child must send.
type outbound struct {
	msg scribe.Message
}

type peerStateChanged struct {
	state PeerState
}

type channelAccepted struct {
	raw RawChannel
}

type localCandidate struct {
	candidate Candidate
}

// A peer is the connection to a single remote device.  Each peer is an
// actor: transport callbacks and channel notifications are posted to
// its mailbox and handled, in order, by a single goroutine.  A peer only
// ever posts to its connection.  The connection, in turn, may call a
// peer's methods directly.
type Peer struct {
	ctx        common.Context
	logger     common.Logger
	id         string
	conn       handle
	box        *concurrent.Mailbox
	maxMessage int
	debug      concurrent.AtomicBool

	lock        sync.Mutex
	raw         RawPeer
	channels    map[string]*Channel
	local       []Candidate
	remote      []Candidate
	described   bool
	remoteReady bool
	open        bool
	active      bool
}

func newPeer(ctx common.Context, conn handle, transport Transport, cfg ConnectionConfig, id string, debug bool) (*Peer, error) {
	raw, err := transport.NewPeer(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "Error creating peer [%v]", id)
	}

	sub := ctx.Sub("Peer(%v)", short(id))
	p := &Peer{
		ctx:        sub,
		logger:     sub.Logger(),
		id:         id,
		conn:       conn,
		box:        concurrent.NewMailbox(mailboxHint(ctx)),
		maxMessage: cfg.MaxMessage,
		raw:        raw,
		channels:   make(map[string]*Channel),
		active:     true,
	}
	p.debug.Set(debug)

	raw.OnStateChange(func(s PeerState) {
		p.box.Post(peerStateChanged{s})
	})
	raw.OnChannel(func(c RawChannel) {
		if !p.box.Post(channelAccepted{c}) {
			c.Close()
		}
	})
	raw.OnCandidate(func(c Candidate) {
		p.box.Post(localCandidate{c})
	})

	sub.Control().Defer(func(error) {
		p.Dispose()
	})

	go p.run()
	return p, nil
}

func (p *Peer) run() {
	for {
		msg, ok := p.box.Take()
		if !ok {
			return
		}

		switch m := msg.(type) {
		case peerStateChanged:
			p.handleState(m.state)
		case channelOpened:
			p.handleOpened(m.label)
		case channelClosed:
			p.handleClosed(m.label, m.channel)
		case channelAccepted:
			p.handleAccepted(m.raw)
		case localCandidate:
			p.handleCandidate(m.candidate)
		}
	}
}

func (p *Peer) handleState(s PeerState) {
	if p.debug.Get() {
		p.logger.Info("State changed [%v]", s)
	}

	switch s {
	case PeerConnected:
		p.lock.Lock()
		p.open = p.active
		p.lock.Unlock()
	case PeerDisconnected, PeerFailed, PeerClosed:
		p.Dispose()
	}
}

func (p *Peer) handleOpened(label string) {
	if !p.IsActive() {
		return
	}

	if label == PublicChannel {
		p.conn.Post(peerEstablished{p.id})
	}
}

func (p *Peer) handleClosed(label string, c *Channel) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if cur, ok := p.channels[label]; ok && cur == c {
		delete(p.channels, label)
	}
}

func (p *Peer) handleAccepted(raw RawChannel) {
	c, err := acceptChannel(p, raw)
	if err != nil {
		return
	}

	if p.debug.Get() {
		p.logger.Info("Accepted channel [%v]", c.Label())
	}

	if !p.install(c) {
		c.Dispose()
	}
}

func (p *Peer) handleCandidate(c Candidate) {
	p.lock.Lock()
	if !p.active {
		p.lock.Unlock()
		return
	}

	if !p.described {
		p.local = append(p.local, c)
		p.lock.Unlock()
		return
	}
	p.lock.Unlock()

	p.conn.Post(outbound{newCandidateSignal(p.id, c)})
}

// Installs the channel, replacing (and disposing) any channel with the
// same label.  Returns false if the peer is no longer active.
func (p *Peer) install(c *Channel) bool {
	p.lock.Lock()
	if !p.active {
		p.lock.Unlock()
		return false
	}

	old := p.channels[c.Label()]
	p.channels[c.Label()] = c
	p.lock.Unlock()

	if old != nil && old != c {
		old.Dispose()
	}
	return true
}

// Snapshot of the state a new channel inherits.
func (p *Peer) inherit() (channelParent, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if !p.active {
		return channelParent{}, false
	}

	return channelParent{
		remote:     p.id,
		peer:       p.box,
		conn:       p.conn,
		raw:        p.raw,
		logger:     p.logger,
		debug:      p.debug.Get(),
		maxMessage: p.maxMessage,
	}, true
}

// Creates a channel with the given label.
func (p *Peer) CreateChannel(label string) bool {
	c, err := openChannel(p, label)
	if err != nil {
		p.logger.Error("Unable to create channel [%v]: %v", label, err)
		return false
	}

	if !p.install(c) {
		c.Dispose()
		return false
	}
	return true
}

// Begins negotiation as the offering side.  The offer is sent to the
// remote through the connection.
func (p *Peer) offer() error {
	if !p.CreateChannel(PublicChannel) {
		return errors.Wrapf(InactiveError, "Unable to open public channel to [%v]", p.id)
	}

	p.lock.Lock()
	raw, active := p.raw, p.active
	p.lock.Unlock()
	if !active {
		return errors.WithStack(InactiveError)
	}

	desc, err := raw.Offer()
	if err != nil {
		return errors.Wrapf(err, "Error creating offer for [%v]", p.id)
	}

	p.conn.Post(outbound{newDescriptionSignal(p.id, desc)})
	p.flushLocal()
	return nil
}

// Answers a remote offer.
func (p *Peer) answer(offer Description) error {
	p.lock.Lock()
	raw, active := p.raw, p.active
	p.lock.Unlock()
	if !active {
		return errors.WithStack(InactiveError)
	}

	desc, err := raw.Answer(offer)
	if err != nil {
		return errors.Wrapf(err, "Error answering offer from [%v]", p.id)
	}

	p.flushRemote()
	p.conn.Post(outbound{newDescriptionSignal(p.id, desc)})
	p.flushLocal()
	return nil
}

// Completes negotiation with the remote answer.
func (p *Peer) complete(answer Description) error {
	p.lock.Lock()
	raw, active := p.raw, p.active
	p.lock.Unlock()
	if !active {
		return errors.WithStack(InactiveError)
	}

	if err := raw.Complete(answer); err != nil {
		return errors.Wrapf(err, "Error completing negotiation with [%v]", p.id)
	}

	p.flushRemote()
	return nil
}

// Adds a remote candidate.  Candidates that arrive before the remote
// description are held until it is installed.
func (p *Peer) addCandidate(c Candidate) error {
	p.lock.Lock()
	if !p.active {
		p.lock.Unlock()
		return errors.WithStack(InactiveError)
	}

	if !p.remoteReady {
		p.remote = append(p.remote, c)
		p.lock.Unlock()
		return nil
	}

	raw := p.raw
	p.lock.Unlock()
	return raw.AddCandidate(c)
}

func (p *Peer) flushLocal() {
	p.lock.Lock()
	p.described = true
	pending := p.local
	p.local = nil
	p.lock.Unlock()

	for _, c := range pending {
		p.conn.Post(outbound{newCandidateSignal(p.id, c)})
	}
}

func (p *Peer) flushRemote() {
	p.lock.Lock()
	p.remoteReady = true
	pending := p.remote
	p.remote = nil
	raw := p.raw
	p.lock.Unlock()

	for _, c := range pending {
		if err := raw.AddCandidate(c); err != nil {
			p.logger.Error("Error adding candidate: %v", err)
		}
	}
}

// The uuid of the remote device.
func (p *Peer) UUID() string {
	return p.id
}

func (p *Peer) IsActive() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.active
}

func (p *Peer) IsOpen() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.open
}

// Returns the channel with the given label.
func (p *Peer) Channel(label string) (*Channel, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	c, ok := p.channels[label]
	return c, ok
}

// Returns the labels of every channel.
func (p *Peer) Channels() []string {
	p.lock.Lock()
	defer p.lock.Unlock()
	ret := make([]string, 0, len(p.channels))
	for l := range p.channels {
		ret = append(ret, l)
	}
	return ret
}

// Sends a binary message on the labeled channel.
func (p *Peer) Send(label string, data []byte) bool {
	c, ok := p.Channel(label)
	if !ok {
		return false
	}
	return c.Send(data)
}

func (p *Peer) SetDebug(flag bool) {
	p.debug.Set(flag)

	p.lock.Lock()
	chans := make([]*Channel, 0, len(p.channels))
	for _, c := range p.channels {
		chans = append(chans, c)
	}
	p.lock.Unlock()

	for _, c := range chans {
		c.SetDebug(flag)
	}
}

// Requests that the peer close.  Disposal follows once the transport
// reports the close.
func (p *Peer) Close() bool {
	p.lock.Lock()
	raw, active := p.raw, p.active
	p.open = false
	p.lock.Unlock()

	if !active {
		return false
	}

	raw.Close()
	return true
}

// Releases the peer and all of its channels.  Only the first call has
// any effect.
func (p *Peer) Dispose() {
	p.lock.Lock()
	if !p.active {
		p.lock.Unlock()
		return
	}

	p.active = false
	p.open = false
	chans := p.channels
	p.channels = make(map[string]*Channel)
	raw := p.raw
	p.local, p.remote = nil, nil
	p.lock.Unlock()

	for _, c := range chans {
		c.Dispose()
	}

	raw.Close()
	p.box.Close()
	p.ctx.Control().Close()

	if p.debug.Get() {
		p.logger.Info("Disposed")
	}
	p.conn.Post(peerClosed{p.id, p})
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
