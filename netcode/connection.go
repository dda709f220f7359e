package netcode

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/pkopriv2/lockstep/common"
	"github.com/pkopriv2/lockstep/concurrent"
	"github.com/pkopriv2/lockstep/scribe"
	uuid "github.com/satori/go.uuid"
)

// A dispatcher receives application messages along with the uuid of the
// device that sent them.
type Dispatcher func(source string, data []byte)

type lobbyMessage struct {
	data []byte
}

type lobbyClosed struct {
	cause error
}

type closeRequest struct{}

// A connection is a device's membership in a lobby room, along with the
// peers it holds to every other member of the room.
//
// A connection is an actor.  Lobby traffic, peer notifications and
// received messages are posted to its mailbox and handled by a single
// goroutine, which is also the only goroutine that writes to the lobby.
// Callbacks are always invoked from that goroutine, never while the
// connection's lock is held, so they may freely call back into the
// connection.
type Connection struct {
	ctx    common.Context
	logger common.Logger
	layer  *Layer
	config ConnectionConfig
	id     string
	box    *concurrent.Mailbox
	buffer *concurrent.Ring
	stats  *Stats
	debug  concurrent.AtomicBool

	lock      sync.Mutex
	socket    Socket
	state     State
	previous  State
	host      string
	room      string
	isHost    bool
	players   map[string]struct{}
	peers     map[string]*Peer
	initial   int
	migration int
	started   bool
	active    bool
	disposed  bool

	onConnect     func(string)
	onDisconnect  func(string)
	onStateChange func(State)
	onReceipt     Dispatcher
	onPromotion   func(bool) bool
}

// Creates a connection that will host a new room.
func NewHostConnection(layer *Layer, cfg ConnectionConfig) (*Connection, error) {
	return newConnection(layer, cfg, true, "")
}

// Creates a connection that will join the given room.
func NewClientConnection(layer *Layer, cfg ConnectionConfig, room string) (*Connection, error) {
	return newConnection(layer, cfg, false, room)
}

func newConnection(layer *Layer, cfg ConnectionConfig, host bool, room string) (*Connection, error) {
	session, ok := layer.Get()
	if !ok {
		return nil, errors.Wrap(InactiveError, "Network layer is not started")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewV4().String()
	ctx := session.Sub("Connection(%v)", short(id))
	c := &Connection{
		ctx:      ctx,
		logger:   ctx.Logger(),
		layer:    layer,
		config:   cfg.Copy(),
		id:       id,
		box:      concurrent.NewMailbox(mailboxHint(ctx)),
		buffer:   concurrent.NewRing(ctx.Config().OptionalInt(Config.BufferCapacity, defaultBufferCapacity)),
		stats:    newStats("netcode.connection.%v", id),
		state:    Inactive,
		previous: Inactive,
		room:     room,
		isHost:   host,
		players:  make(map[string]struct{}),
		peers:    make(map[string]*Peer),
	}
	c.debug.Set(layer.Debug())
	if host {
		c.host = id
	}

	ctx.Control().Defer(func(error) {
		c.shutdown()
	})
	return c, nil
}

// Begins connecting to the lobby.  A connection may only be opened once.
func (c *Connection) Open() error {
	c.lock.Lock()
	if c.started || c.ctx.Control().IsClosed() {
		c.lock.Unlock()
		return errors.Wrap(ClosedError, "Connection already opened")
	}

	c.started = true
	c.active = true
	c.state = Connecting
	c.players[c.id] = struct{}{}
	c.lock.Unlock()

	go c.run(c.config.LobbyURL(c.id))
	return nil
}

// Closes the connection.  Peers are disposed and the lobby socket is
// closed.  Safe to call any number of times.
func (c *Connection) Close() error {
	return c.ctx.Close()
}

func (c *Connection) shutdown() {
	c.lock.Lock()
	started, sock := c.started, c.socket
	c.lock.Unlock()

	if sock != nil {
		sock.Close()
	}

	if !started || !c.box.Post(closeRequest{}) {
		c.dispose()
	}
}

func (c *Connection) run(url string) {
	defer c.dispose()

	sock, err := c.layer.dialer.Dial(c.ctx.Control().Closed(), url)
	if err != nil {
		next := Failed
		if c.ctx.Control().IsClosed() {
			next = Disconnected
		} else {
			c.logger.Error("Unable to reach lobby [%v]: %v", url, err)
		}

		c.lock.Lock()
		cb := c.setState(next)
		c.lock.Unlock()
		notify(cb)
		return
	}

	c.lock.Lock()
	if !c.active || c.ctx.Control().IsClosed() {
		c.lock.Unlock()
		sock.Close()
		return
	}
	c.socket = sock
	cb := c.setState(Negotiating)
	c.lock.Unlock()
	notify(cb)

	if c.debug.Get() {
		c.logger.Info("Connected to lobby [%v]", url)
	}

	go c.listen(sock)
	for {
		msg, ok := c.box.Take()
		if !ok {
			return
		}

		switch m := msg.(type) {
		case lobbyMessage:
			c.handleLobby(m.data)
		case lobbyClosed, closeRequest:
			c.handleLobbyClosed()
			return
		case outbound:
			c.write(m.msg)
		case envelope:
			c.Append(m.source, m.data)
		case peerEstablished:
			c.handleEstablished(m.id)
		case peerClosed:
			c.handlePeerClosed(m.id, m.peer)
		}
	}
}

func (c *Connection) listen(sock Socket) {
	for {
		data, err := sock.Read()
		if err != nil {
			c.box.Post(lobbyClosed{err})
			return
		}
		c.box.Post(lobbyMessage{data})
	}
}

// Must be called from the actor.
func (c *Connection) write(msg scribe.Message) {
	c.lock.Lock()
	sock, active := c.socket, c.active
	c.lock.Unlock()

	if !active || sock == nil {
		return
	}

	if c.debug.Get() {
		c.logger.Info("Sending: %v", msg)
	}

	if err := sock.Write(msg.Bytes()); err != nil {
		c.logger.Error("Error writing to lobby: %v", err)
	}
}

// Transitions to the given state, returning the state change callback.
// Must be called with the lock held.
func (c *Connection) setState(next State) func() {
	c.previous, c.state = c.state, next
	if fn := c.onStateChange; fn != nil {
		return func() { fn(next) }
	}
	return nil
}

func notify(fns ...func()) {
	for _, fn := range fns {
		if fn != nil {
			fn()
		}
	}
}

func (c *Connection) handleLobby(data []byte) {
	msg, err := scribe.Parse(data)
	if err != nil {
		c.logger.Error("Received invalid lobby message: %v", err)
		return
	}

	if c.debug.Get() {
		c.logger.Info("Received: %v", msg)
	}

	h := readHeader(msg)
	if h.typ != typeLobby {
		c.handleSignal(h, msg)
		return
	}

	switch h.category {
	case catRoomAssign:
		c.handleNegotiation(h, msg)
	case catPlayer, catSession:
		c.handleSession(h, msg)
	case catMigration, catPromotion:
		c.handleMigration(h, msg)
	case catFailed:
		c.logger.Error("Lobby reported a failure")
		c.fail()
	default:
		c.logger.Error("Unknown lobby category [%v]", h.category)
		c.fail()
	}
}

// Moves to the failed state and closes the lobby socket.  Disposal
// follows when the socket close is observed.
func (c *Connection) fail() {
	c.lock.Lock()
	if !c.active {
		c.lock.Unlock()
		return
	}
	cb := c.setState(Failed)
	sock := c.socket
	c.lock.Unlock()

	if sock != nil {
		sock.Close()
	}
	notify(cb)
}

func (c *Connection) handleNegotiation(h header, msg scribe.Message) {
	var out scribe.Message
	var offers []string
	var cb func()
	var terminate bool

	c.lock.Lock()
	if !c.active {
		c.lock.Unlock()
		return
	}

	switch h.status {
	default:
		c.logger.Error("Unexpected negotiation status [%v]", h.status)
	case statusHandshake:
		host, room, players := c.isHost, c.room, c.config.MaxPlayers
		version := int(c.config.APIVersion)
		out = newLobbyMessage(c.id, catRoomAssign, statusRequest, func(w scribe.Writer) {
			w.WriteBool("host", host)
			if host {
				w.WriteInt("maxPlayers", players)
			} else {
				w.WriteString("room", room)
			}
			w.WriteInt("apiVersion", version)
		})
	case statusSuccess:
		msg.ReadString("room", &c.room)
		msg.ReadString("host", &c.host)
		for _, p := range readPlayers(msg) {
			c.players[p] = struct{}{}
			if p != c.id && !c.isHost {
				offers = append(offers, p)
			}
		}

		if c.isHost {
			c.logger.Info("Hosting room [%v]", c.room)
			cb = c.setState(Connected)
		} else {
			c.logger.Info("Joined room [%v]", c.room)
		}
	case statusInvalid:
		c.logger.Error("Room [%v] does not exist", c.room)
		cb, terminate = c.setState(Invalid), true
	case statusDenial:
		c.logger.Error("Denied entry to room [%v]", c.room)
		cb, terminate = c.setState(Denied), true
	case statusMismatch:
		c.logger.Error("Room [%v] runs an incompatible version", c.room)
		cb, terminate = c.setState(Mismatched), true
	}
	sock := c.socket
	c.lock.Unlock()

	if out != nil {
		c.write(out)
	}

	for _, id := range offers {
		c.offerPeer(id)
	}

	if terminate && sock != nil {
		sock.Close()
	}
	notify(cb)
}

func (c *Connection) handleSession(h header, msg scribe.Message) {
	var cbs []func()
	var closing []*Peer
	var terminate bool

	c.lock.Lock()
	if !c.active {
		c.lock.Unlock()
		return
	}

	switch h.category + "/" + h.status {
	default:
		c.logger.Error("Unexpected session message [%v/%v]", h.category, h.status)
	case catPlayer + "/" + statusConnect:
		var player string
		msg.ReadString("player", &player)
		if c.debug.Get() {
			c.logger.Info("Player [%v] joined the room", short(player))
		}
	case catPlayer + "/" + statusDisconnect:
		var player string
		msg.ReadString("player", &player)
		if _, ok := c.players[player]; ok {
			delete(c.players, player)
			if fn := c.onDisconnect; fn != nil {
				cbs = append(cbs, func() { fn(player) })
			}
		}
		if p, ok := c.peers[player]; ok {
			delete(c.peers, player)
			closing = append(closing, p)
		}
	case catSession + "/" + statusStart:
		players := readPlayers(msg)
		next := make(map[string]struct{}, len(players))
		for _, p := range players {
			if _, ok := c.players[p]; ok {
				next[p] = struct{}{}
			}
		}
		c.players = next
		c.initial = len(next)
		c.logger.Info("Session started with [%v] players", c.initial)
		cbs = append(cbs, c.setState(InSession))
	case catSession + "/" + statusShutdown:
		c.logger.Info("Session shut down")
		cbs = append(cbs, c.setState(Disconnected))
		terminate = true
	}
	sock := c.socket
	c.lock.Unlock()

	for _, p := range closing {
		p.Close()
	}

	if terminate && sock != nil {
		sock.Close()
	}
	notify(cbs...)
}

func (c *Connection) handleMigration(h header, msg scribe.Message) {
	var cbs []func()
	var out scribe.Message
	var closing []*Peer
	var offers []string
	var promote func(bool) bool
	var confirmed bool

	c.lock.Lock()
	if !c.active {
		c.lock.Unlock()
		return
	}

	switch h.category + "/" + h.status {
	default:
		c.logger.Error("Unexpected migration message [%v/%v]", h.category, h.status)
	case catMigration + "/" + statusStart:
		c.logger.Info("Host migration started")
		cbs = append(cbs, c.setState(Migrating))
	case catMigration + "/" + statusAttempt:
		c.isHost = false
		msg.ReadString("host", &c.host)
		closing, offers = c.reconcile(readPlayers(msg))
	case catMigration + "/" + statusComplete:
		c.logger.Info("Host migration complete. Host is [%v]", short(c.host))
		cbs = append(cbs, c.setState(c.previous))
	case catPromotion + "/" + statusQuery:
		promote = c.onPromotion
		if promote == nil {
			out = newPromotionResponse(c.id, false)
		}
	case catPromotion + "/" + statusConfirmed:
		c.isHost = true
		c.host = c.id
		closing, _ = c.reconcile(readPlayers(msg))
		c.migration = 0
		for p := range c.players {
			if _, ok := c.peers[p]; !ok && p != c.id {
				c.migration++
			}
		}
		if c.migration == 0 {
			out = newLobbyMessage(c.id, catPromotion, statusComplete, nil)
		}
		promote, confirmed = c.onPromotion, true
	}
	c.lock.Unlock()

	for _, p := range closing {
		p.Close()
	}

	for _, id := range offers {
		c.offerPeer(id)
	}

	if promote != nil {
		accepted := promote(confirmed)
		switch {
		case !confirmed:
			out = newPromotionResponse(c.id, accepted)
		case !accepted:
			out = newLobbyMessage(c.id, catSession, statusShutdown, nil)
		}
	}

	if out != nil {
		c.write(out)
	}
	notify(cbs...)
}

func newPromotionResponse(id string, accept bool) scribe.Message {
	return newLobbyMessage(id, catPromotion, statusResponse, func(w scribe.Writer) {
		w.WriteBool("response", accept)
	})
}

// Replaces the player set, returning the peers to close and the players
// that have no peer.  Must be called with the lock held.
func (c *Connection) reconcile(players []string) (closing []*Peer, missing []string) {
	c.players = make(map[string]struct{}, len(players))
	for _, p := range players {
		c.players[p] = struct{}{}
		if _, ok := c.peers[p]; !ok && p != c.id {
			missing = append(missing, p)
		}
	}

	for id, p := range c.peers {
		if _, ok := c.players[id]; !ok {
			delete(c.peers, id)
			closing = append(closing, p)
		}
	}
	return
}

func (c *Connection) handleSignal(h header, msg scribe.Message) {
	c.lock.Lock()
	p, active := c.peers[h.id], c.active
	c.lock.Unlock()

	if !active {
		return
	}

	if p == nil && h.typ == typeOffer {
		p = c.createPeer(h.id)
	}

	if p == nil {
		if c.debug.Get() {
			c.logger.Info("Dropped [%v] signal for unknown peer [%v]", h.typ, short(h.id))
		}
		return
	}

	var err error
	switch h.typ {
	default:
		c.logger.Error("Unknown signal type [%v]", h.typ)
	case typeOffer:
		var desc Description
		if desc, err = readDescription(msg, typeOffer); err == nil {
			err = p.answer(desc)
		}
	case typeAnswer:
		var desc Description
		if desc, err = readDescription(msg, typeAnswer); err == nil {
			err = p.complete(desc)
		}
	case typeCandidate:
		var cand Candidate
		if cand, err = readCandidate(msg); err == nil {
			err = p.addCandidate(cand)
		}
	}

	if err != nil {
		c.logger.Error("Error handling [%v] from [%v]: %v", h.typ, short(h.id), err)
	}
}

func (c *Connection) createPeer(id string) *Peer {
	p, err := newPeer(c.ctx, c.box, c.layer.transport, c.config, id, c.debug.Get())
	if err != nil {
		c.logger.Error("Unable to create peer: %v", err)
		return nil
	}

	c.lock.Lock()
	if !c.active {
		c.lock.Unlock()
		p.Dispose()
		return nil
	}
	old := c.peers[id]
	c.peers[id] = p
	c.lock.Unlock()

	if old != nil {
		old.Dispose()
	}
	return p
}

func (c *Connection) offerPeer(id string) {
	p := c.createPeer(id)
	if p == nil {
		return
	}

	if err := p.offer(); err != nil {
		c.logger.Error("Unable to offer to [%v]: %v", short(id), err)
		p.Dispose()
	}
}

func (c *Connection) handleEstablished(id string) {
	var cbs []func()
	var out scribe.Message

	c.lock.Lock()
	if !c.active {
		c.lock.Unlock()
		return
	}

	if c.debug.Get() {
		c.logger.Info("Peer [%v] established", short(id))
	}

	switch {
	case c.state != Migrating:
		if id == c.host {
			cbs = append(cbs, c.setState(Connected))
		} else {
			c.players[id] = struct{}{}
			if fn := c.onConnect; fn != nil {
				cbs = append(cbs, func() { fn(id) })
			}
		}
	case c.migration == 1:
		c.migration = 0
		out = newLobbyMessage(c.id, catPromotion, statusComplete, nil)
	case c.migration > 1:
		c.migration--
	}
	c.lock.Unlock()

	if out != nil {
		c.write(out)
	}
	notify(cbs...)
}

func (c *Connection) handlePeerClosed(id string, p *Peer) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if cur, ok := c.peers[id]; ok && cur == p {
		delete(c.peers, id)
	}
}

func (c *Connection) handleLobbyClosed() {
	c.lock.Lock()
	var cb func()
	if c.active && !c.state.Terminal() {
		cb = c.setState(Disconnected)
	}
	c.lock.Unlock()

	notify(cb)
	c.dispose()
}

// Releases every resource.  The terminal state that caused disposal is
// preserved.
func (c *Connection) dispose() {
	c.lock.Lock()
	if c.disposed {
		c.lock.Unlock()
		return
	}

	var cb func()
	if c.active && !c.state.Terminal() {
		cb = c.setState(Disconnected)
	}

	c.disposed = true
	c.active = false
	peers := c.peers
	c.peers = make(map[string]*Peer)
	c.players = make(map[string]struct{})
	sock := c.socket
	c.socket = nil
	c.lock.Unlock()

	for _, p := range peers {
		p.Dispose()
	}

	if sock != nil {
		sock.Close()
	}

	c.box.Close()
	c.buffer.Close()
	c.stats.unregister()
	c.ctx.Control().Close()
	notify(cb)
}

// Delivers a received message.  The message is handed to the receipt
// callback if one is registered, otherwise it is buffered until the next
// call to Receive.  A full buffer drops its oldest message.
func (c *Connection) Append(source string, data []byte) bool {
	c.lock.Lock()
	active, fn := c.active, c.onReceipt
	c.lock.Unlock()

	if !active {
		return false
	}

	c.stats.received(len(data))
	if fn != nil {
		fn(source, data)
		return true
	}

	if c.buffer.Push(envelope{source, data}) {
		c.stats.MessagesDropped.Inc(1)
	}
	return true
}

// Drains buffered messages into the dispatcher, oldest first.  Messages
// that arrive during the drain are left for the next call.
func (c *Connection) Receive(fn Dispatcher) {
	if fn == nil {
		return
	}

	for n := c.buffer.Len(); n > 0; n-- {
		item, ok := c.buffer.Pop()
		if !ok {
			return
		}
		env := item.(envelope)
		fn(env.source, env.data)
	}
}

// Sends a message to a single device.  Messages addressed to this device
// are appended locally.
func (c *Connection) SendTo(dest string, data []byte) bool {
	c.lock.Lock()
	ok := c.active && c.state != Migrating
	p := c.peers[dest]
	c.lock.Unlock()

	if !ok {
		return false
	}

	if dest == c.id {
		return c.Append(c.id, data)
	}

	if p == nil {
		if c.debug.Get() {
			c.logger.Info("No route to [%v]", short(dest))
		}
		c.stats.dropped(len(data))
		return false
	}

	if !p.Send(PublicChannel, data) {
		c.stats.dropped(len(data))
		return false
	}

	c.stats.sent(len(data))
	return true
}

func (c *Connection) SendToHost(data []byte) bool {
	return c.SendTo(c.Host(), data)
}

// Sends a message to every peer and to this device.  Returns false if any
// peer send failed.
func (c *Connection) Broadcast(data []byte) bool {
	c.lock.Lock()
	ok := c.active && c.state != Migrating
	peers := make([]*Peer, 0, len(c.peers))
	for _, p := range c.peers {
		peers = append(peers, p)
	}
	c.lock.Unlock()

	if !ok {
		return false
	}

	success := true
	for _, p := range peers {
		if p.Send(PublicChannel, data) {
			c.stats.sent(len(data))
		} else {
			c.stats.dropped(len(data))
			success = false
		}
	}

	c.Append(c.id, data)
	return success
}

// Asks the lobby to start the session.  Only the host may do so.
func (c *Connection) StartSession() bool {
	return c.requestSession(statusRequest)
}

// Asks the lobby to end the session.  Only the host may do so.
func (c *Connection) EndSession() bool {
	return c.requestSession(statusShutdown)
}

func (c *Connection) requestSession(status string) bool {
	c.lock.Lock()
	active, host := c.active, c.isHost
	c.lock.Unlock()

	if !active {
		return false
	}

	if !host {
		c.logger.Error("Only the host may change the session")
		return false
	}

	return c.box.Post(outbound{newLobbyMessage(c.id, catSession, status, nil)})
}

func (c *Connection) UUID() string {
	return c.id
}

func (c *Connection) State() State {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state
}

func (c *Connection) Host() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.host
}

func (c *Connection) Room() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.room
}

func (c *Connection) IsHost() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.isHost
}

func (c *Connection) IsActive() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.active
}

// Returns the uuids of every player, sorted.
func (c *Connection) Players() []string {
	c.lock.Lock()
	defer c.lock.Unlock()
	ret := make([]string, 0, len(c.players))
	for p := range c.players {
		ret = append(ret, p)
	}
	sort.Strings(ret)
	return ret
}

func (c *Connection) IsPlayerActive(id string) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	_, ok := c.players[id]
	return ok
}

func (c *Connection) NumPlayers() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.players)
}

// The number of players present when the session started.
func (c *Connection) TotalPlayers() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.initial
}

func (c *Connection) Peer(id string) (*Peer, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	p, ok := c.peers[id]
	return p, ok
}

func (c *Connection) Peers() []*Peer {
	c.lock.Lock()
	defer c.lock.Unlock()
	ret := make([]*Peer, 0, len(c.peers))
	for _, p := range c.peers {
		ret = append(ret, p)
	}
	return ret
}

func (c *Connection) Capacity() int {
	return c.buffer.Cap()
}

// Resizes the receive buffer, keeping the newest messages.
func (c *Connection) SetCapacity(n int) {
	c.buffer.Resize(n)
}

func (c *Connection) Stats() *Stats {
	return c.stats
}

func (c *Connection) SetDebug(flag bool) {
	c.debug.Set(flag)
	for _, p := range c.Peers() {
		p.SetDebug(flag)
	}
}

func (c *Connection) OnConnect(fn func(id string)) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.onConnect = fn
}

func (c *Connection) OnDisconnect(fn func(id string)) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.onDisconnect = fn
}

func (c *Connection) OnStateChange(fn func(State)) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.onStateChange = fn
}

// Registers a callback that receives messages as they arrive instead of
// buffering them.
func (c *Connection) OnReceipt(fn Dispatcher) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.onReceipt = fn
}

// Registers the promotion callback.  It is invoked with false when the
// lobby asks whether this device will become host, and with true once
// the promotion is confirmed.  Its result is the answer.
func (c *Connection) OnPromotion(fn func(confirmed bool) bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.onPromotion = fn
}
