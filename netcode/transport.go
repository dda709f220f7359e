package netcode

import (
	"sync"
)

// The state of a raw peer connection, as reported by the transport.
type PeerState int

const (
	PeerNew PeerState = iota
	PeerConnecting
	PeerConnected
	PeerDisconnected
	PeerFailed
	PeerClosed
)

func (s PeerState) String() string {
	switch s {
	default:
		return "New"
	case PeerConnecting:
		return "Connecting"
	case PeerConnected:
		return "Connected"
	case PeerDisconnected:
		return "Disconnected"
	case PeerFailed:
		return "Failed"
	case PeerClosed:
		return "Closed"
	}
}

// A session description exchanged through the lobby.  Type is either
// "offer" or "answer".
type Description struct {
	Type string
	SDP  string
}

// An ice candidate exchanged through the lobby.
type Candidate struct {
	Candidate string
	Mid       string
}

// A transport produces raw peer connections.  The production transport
// is backed by webrtc; tests use an in-process transport.
type Transport interface {
	NewPeer(cfg ConnectionConfig) (RawPeer, error)
}

// A raw peer connection.  Callbacks may be invoked from any goroutine
// and must not block.
type RawPeer interface {
	CreateChannel(label string) (RawChannel, error)

	// Creates an offer and installs it as the local description.
	Offer() (Description, error)

	// Installs a remote offer and returns the local answer.
	Answer(offer Description) (Description, error)

	// Installs the remote answer.
	Complete(answer Description) error

	AddCandidate(Candidate) error

	OnCandidate(func(Candidate))
	OnChannel(func(RawChannel))
	OnStateChange(func(PeerState))

	Close() error
}

// A raw labeled data channel.  Handlers registered after the event they
// observe has fired are invoked immediately, and messages that arrive
// before a message handler is registered are held until one is.
type RawChannel interface {
	Label() string
	Send(data []byte) error
	Close() error

	OnOpen(func())
	OnClose(func())
	OnMessage(func(data []byte, binary bool))
}

type rawMessage struct {
	data   []byte
	binary bool
}

// Handler bookkeeping shared by the raw channel implementations.
// Message handlers are invoked under the lock to preserve delivery order
// and must never call back into the channel.
type hooks struct {
	lock      sync.Mutex
	onOpen    func()
	onClose   func()
	onMessage func([]byte, bool)
	opened    bool
	closed    bool
	pending   []rawMessage
}

func (h *hooks) OnOpen(fn func()) {
	h.lock.Lock()
	h.onOpen = fn
	fire := h.opened && !h.closed
	h.lock.Unlock()
	if fire && fn != nil {
		fn()
	}
}

func (h *hooks) OnClose(fn func()) {
	h.lock.Lock()
	h.onClose = fn
	fire := h.closed
	h.lock.Unlock()
	if fire && fn != nil {
		fn()
	}
}

func (h *hooks) OnMessage(fn func([]byte, bool)) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.onMessage = fn
	if fn == nil {
		return
	}

	pending := h.pending
	h.pending = nil
	for _, m := range pending {
		fn(m.data, m.binary)
	}
}

func (h *hooks) fireOpen() {
	h.lock.Lock()
	if h.opened || h.closed {
		h.lock.Unlock()
		return
	}
	h.opened = true
	fn := h.onOpen
	h.lock.Unlock()
	if fn != nil {
		fn()
	}
}

func (h *hooks) fireClose() {
	h.lock.Lock()
	if h.closed {
		h.lock.Unlock()
		return
	}
	h.closed = true
	h.pending = nil
	fn := h.onClose
	h.lock.Unlock()
	if fn != nil {
		fn()
	}
}

func (h *hooks) fireMessage(data []byte, binary bool) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.closed {
		return
	}

	if h.onMessage == nil {
		h.pending = append(h.pending, rawMessage{data, binary})
		return
	}
	h.onMessage(data, binary)
}

func (h *hooks) isOpen() bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.opened && !h.closed
}
