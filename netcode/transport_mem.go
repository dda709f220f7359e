package netcode

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/pkopriv2/lockstep/concurrent"
	uuid "github.com/satori/go.uuid"
)

const memPrefix = "mem:"

// An in-process transport.  Every device that should be able to reach
// another must share the same transport instance.  Descriptions carry a
// token that identifies the peer that produced them, and all callbacks
// are delivered asynchronously, in order, from a goroutine owned by the
// receiving peer.
type MemTransport struct {
	lock  sync.Mutex
	peers map[string]*memPeer
	fail  bool
}

func NewMemTransport() *MemTransport {
	return &MemTransport{peers: make(map[string]*memPeer)}
}

// Causes subsequent channel creation to fail.
func (t *MemTransport) FailChannels(fail bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.fail = fail
}

func (t *MemTransport) failing() bool {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.fail
}

func (t *MemTransport) NewPeer(cfg ConnectionConfig) (RawPeer, error) {
	p := &memPeer{
		transport: t,
		token:     uuid.NewV1().String(),
		events:    concurrent.NewMailbox(16),
		channels:  make([]*memChannel, 0, 1),
	}

	t.lock.Lock()
	t.peers[p.token] = p
	t.lock.Unlock()

	go p.run()
	return p, nil
}

func (t *MemTransport) find(desc Description) (*memPeer, error) {
	if !strings.HasPrefix(desc.SDP, memPrefix) {
		return nil, errors.Wrapf(SignalError, "Malformed description [%v]", desc.SDP)
	}

	t.lock.Lock()
	defer t.lock.Unlock()
	p, ok := t.peers[strings.TrimPrefix(desc.SDP, memPrefix)]
	if !ok {
		return nil, errors.Wrapf(SignalError, "Unknown peer [%v]", desc.SDP)
	}
	return p, nil
}

func (t *MemTransport) remove(p *memPeer) {
	t.lock.Lock()
	defer t.lock.Unlock()
	delete(t.peers, p.token)
}

type memPeer struct {
	transport *MemTransport
	token     string
	events    *concurrent.Mailbox

	lock        sync.Mutex
	remote      *memPeer
	local       bool
	remoteSet   bool
	connected   bool
	closed      bool
	channels    []*memChannel
	onCandidate func(Candidate)
	onChannel   func(RawChannel)
	onState     func(PeerState)
}

func (p *memPeer) run() {
	for {
		fn, ok := p.events.Take()
		if !ok {
			return
		}
		fn.(func())()
	}
}

func (p *memPeer) post(fn func()) {
	p.events.Post(fn)
}

func (p *memPeer) description(typ string) Description {
	return Description{typ, memPrefix + p.token}
}

func (p *memPeer) CreateChannel(label string) (RawChannel, error) {
	if p.transport.failing() {
		return nil, errors.Wrapf(ClosedError, "Channel creation refused [%v]", label)
	}

	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		return nil, errors.Wrapf(ClosedError, "Peer closed")
	}

	c := &memChannel{label: label, owner: p}
	p.channels = append(p.channels, c)
	connected, remote := p.connected, p.remote
	p.lock.Unlock()

	if connected {
		p.pair(remote, c)
	}
	return c, nil
}

func (p *memPeer) Offer() (Description, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.closed {
		return Description{}, errors.Wrap(ClosedError, "Peer closed")
	}

	p.local = true
	p.announceCandidate()
	return p.description("offer"), nil
}

func (p *memPeer) Answer(offer Description) (Description, error) {
	if offer.Type != "offer" {
		return Description{}, errors.Wrapf(SignalError, "Expected an offer, got [%v]", offer.Type)
	}

	remote, err := p.transport.find(offer)
	if err != nil {
		return Description{}, err
	}

	p.lock.Lock()
	defer p.lock.Unlock()
	if p.closed {
		return Description{}, errors.Wrap(ClosedError, "Peer closed")
	}

	p.remote = remote
	p.remoteSet = true
	p.local = true
	p.announceCandidate()
	return p.description("answer"), nil
}

func (p *memPeer) Complete(answer Description) error {
	if answer.Type != "answer" {
		return errors.Wrapf(SignalError, "Expected an answer, got [%v]", answer.Type)
	}

	remote, err := p.transport.find(answer)
	if err != nil {
		return err
	}

	remote.lock.Lock()
	linked := remote.remote == p
	remote.lock.Unlock()
	if !linked {
		return errors.Wrapf(SignalError, "Answer from unrelated peer [%v]", answer.SDP)
	}

	p.lock.Lock()
	if p.closed || !p.local {
		p.lock.Unlock()
		return errors.Wrap(SignalError, "No local offer")
	}
	p.remote = remote
	p.remoteSet = true
	p.lock.Unlock()

	remote.connect()
	p.connect()
	return nil
}

// Marks the peer connected and pairs every channel created so far.
func (p *memPeer) connect() {
	p.lock.Lock()
	if p.connected || p.closed {
		p.lock.Unlock()
		return
	}

	p.connected = true
	remote := p.remote
	channels := append([]*memChannel(nil), p.channels...)
	if fn := p.onState; fn != nil {
		p.post(func() { fn(PeerConnected) })
	}
	p.lock.Unlock()

	for _, c := range channels {
		p.pair(remote, c)
	}
}

// Creates the remote end of a local channel.  Never called with a peer
// lock held.
func (p *memPeer) pair(remote *memPeer, c *memChannel) {
	if remote == nil || c.paired() {
		return
	}

	other := &memChannel{label: c.label, owner: remote}
	c.link(other)
	other.link(c)

	remote.lock.Lock()
	remote.channels = append(remote.channels, other)
	onChannel := remote.onChannel
	remote.lock.Unlock()

	if onChannel != nil {
		remote.post(func() { onChannel(other) })
	}
	remote.post(other.fireOpen)
	p.post(c.fireOpen)
}

func (p *memPeer) announceCandidate() {
	if fn := p.onCandidate; fn != nil {
		cand := Candidate{"candidate:mem " + p.token, "0"}
		p.post(func() { fn(cand) })
	}
}

func (p *memPeer) AddCandidate(c Candidate) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if !p.remoteSet {
		return errors.Wrap(SignalError, "Remote description not set")
	}
	return nil
}

func (p *memPeer) OnCandidate(fn func(Candidate)) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.onCandidate = fn
}

func (p *memPeer) OnChannel(fn func(RawChannel)) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.onChannel = fn
}

func (p *memPeer) OnStateChange(fn func(PeerState)) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.onState = fn
}

// Simulates a transport failure.
func (p *memPeer) fail() {
	p.lock.Lock()
	fn := p.onState
	p.lock.Unlock()
	if fn != nil {
		p.post(func() { fn(PeerFailed) })
	}
}

func (p *memPeer) Close() error {
	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		return nil
	}
	p.closed = true
	remote := p.remote
	channels := p.channels
	p.channels = nil
	onState := p.onState
	p.lock.Unlock()

	p.transport.remove(p)
	for _, c := range channels {
		c.Close()
	}

	if onState != nil {
		p.post(func() { onState(PeerClosed) })
	}
	p.post(p.events.Close)

	if remote != nil {
		remote.disconnect(p)
	}
	return nil
}

func (p *memPeer) disconnect(from *memPeer) {
	p.lock.Lock()
	if p.closed || p.remote != from {
		p.lock.Unlock()
		return
	}
	fn := p.onState
	p.lock.Unlock()

	if fn != nil {
		p.post(func() { fn(PeerDisconnected) })
	}
}

type memChannel struct {
	hooks
	label string
	owner *memPeer

	plock  sync.Mutex
	remote *memChannel
}

func (c *memChannel) link(other *memChannel) {
	c.plock.Lock()
	defer c.plock.Unlock()
	c.remote = other
}

func (c *memChannel) paired() bool {
	c.plock.Lock()
	defer c.plock.Unlock()
	return c.remote != nil
}

func (c *memChannel) Label() string {
	return c.label
}

func (c *memChannel) Send(data []byte) error {
	return c.send(data, true)
}

// Sends a text frame.
func (c *memChannel) SendText(text string) error {
	return c.send([]byte(text), false)
}

func (c *memChannel) send(data []byte, binary bool) error {
	c.plock.Lock()
	remote := c.remote
	c.plock.Unlock()

	if remote == nil || !c.isOpen() {
		return errors.Wrapf(ClosedError, "Channel [%v] not open", c.label)
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	remote.owner.post(func() { remote.fireMessage(cp, binary) })
	return nil
}

func (c *memChannel) Close() error {
	c.plock.Lock()
	remote := c.remote
	c.remote = nil
	c.plock.Unlock()

	c.owner.post(c.fireClose)
	if remote != nil {
		remote.plock.Lock()
		remote.remote = nil
		remote.plock.Unlock()
		remote.owner.post(remote.fireClose)
	}
	return nil
}
