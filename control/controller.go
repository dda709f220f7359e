package control

import (
	"github.com/emirpasic/gods/queues/linkedlistqueue"
	"github.com/pkg/errors"
	"github.com/pkopriv2/lockstep/common"
	"github.com/pkopriv2/lockstep/event"
	"github.com/pkopriv2/lockstep/journal"
	"github.com/pkopriv2/lockstep/netcode"
	"github.com/pkopriv2/lockstep/world"
	uuid "github.com/satori/go.uuid"
)

var NotReadyError = errors.New("Control:NotReady")

// A received event.  Sent is the sender's game tick and Received is
// ours.
type Message struct {
	Source   string
	Sent     uint64
	Received uint64
	Event    event.Event
}

// A controller runs a game session over a connection.  It walks the
// device through the session handshake, frames and unframes events,
// and keeps a shared physics world in sync once the game starts.
//
// Events pushed out are broadcast, including to this device, at the
// end of the next UpdateNet.  Events received while in game are queued
// for PopIn, except physics events, which are applied directly.
//
// A controller is not safe for concurrent use.  It is meant to be
// driven from the game loop, with UpdateNet called once per tick.
type Controller struct {
	ctx       common.Context
	logger    common.Logger
	connector Connector
	registry  *Registry
	in        *linkedlistqueue.Queue
	out       *linkedlistqueue.Queue
	journal   *journal.Journal
	session   *journal.Session

	conn      Conn
	status    Status
	isHost    bool
	room      string
	shortUID  uint8
	numReady  int
	starting  bool
	tick      uint64
	startTick uint64
	physics   *Physics
}

func NewController(ctx common.Context, connector Connector) *Controller {
	c := &Controller{
		ctx:       ctx.Sub("Controller"),
		connector: connector,
		registry:  NewRegistry(),
		in:        linkedlistqueue.New(),
		out:       linkedlistqueue.New(),
	}
	c.logger = c.ctx.Logger()
	c.registry.Attach(func() event.Event { return &event.GameStateEvent{} })
	ctx.Control().Defer(func(error) {
		c.Disconnect()
	})
	return c
}

// Records every frame sent or received in the journal, under a session
// named by the connection's uuid.
func (c *Controller) Record(j *journal.Journal) {
	c.journal = j
	c.session = nil
	if c.conn != nil {
		c.openSession()
	}
}

// Attaches a user event kind.  Every device must attach the same kinds
// in the same order.
func (c *Controller) Attach(fn Factory) uint8 {
	return c.registry.Attach(fn)
}

func (c *Controller) Status() Status {
	return c.status
}

func (c *Controller) IsHost() bool {
	return c.isHost
}

func (c *Controller) Room() string {
	return c.room
}

// The short uid assigned by the host.  Zero until assigned.
func (c *Controller) ShortUID() uint8 {
	return c.shortUID
}

func (c *Controller) NumReady() int {
	return c.numReady
}

func (c *Controller) NumPlayers() int {
	if c.conn == nil {
		return 1
	}
	return c.conn.NumPlayers()
}

func (c *Controller) Conn() Conn {
	return c.conn
}

// The number of ticks since the game started.
func (c *Controller) GameTick() uint64 {
	return c.tick - c.startTick
}

// Opens a room as its host.  Returns false if the connection has failed.
func (c *Controller) ConnectAsHost() bool {
	return c.connect(true, "")
}

// Joins the given room.  Returns false if the connection has failed.
func (c *Controller) ConnectAsClient(room string) bool {
	return c.connect(false, room)
}

func (c *Controller) connect(host bool, room string) bool {
	if c.status == NetError {
		c.Disconnect()
	}

	c.isHost = host
	if c.status == Idle {
		c.status = Connecting

		var conn Conn
		var err error
		if host {
			conn, err = c.connector.Host()
		} else {
			conn, err = c.connector.Join(room)
		}
		if err == nil {
			err = conn.Open()
		}
		if err != nil {
			c.logger.Error("Unable to connect: %+v", err)
			c.status = NetError
			return false
		}

		c.conn = conn
		c.openSession()
	}

	if !host {
		c.room = room
	}
	return c.checkConnection()
}

// Closes the connection and resets the controller.
func (c *Controller) Disconnect() {
	if c.conn != nil {
		c.conn.Close()
	}

	c.DisablePhysics()
	c.conn = nil
	c.session = nil
	c.status = Idle
	c.isHost = false
	c.shortUID = 0
	c.numReady = 0
	c.starting = false
	c.startTick = 0
	c.in.Clear()
	c.out.Clear()
}

// Asks the lobby to start the session.  Only the host may start the game.
func (c *Controller) StartGame() bool {
	common.Assert(c.isHost, "Only the host may start the game")
	if c.status != Connected {
		return false
	}
	return c.conn.StartSession()
}

// Declares this device ready to play.  Only possible once the host has
// assigned a short uid.
func (c *Controller) MarkReady() bool {
	if c.status != Handshake || c.shortUID == 0 {
		return false
	}

	c.status = Ready
	c.PushOut(event.NewClientReady())
	return true
}

// Starts synchronizing the world.  The world adopts the short uid as
// its owner tag.  Requires a short uid from the host.
func (c *Controller) EnablePhysics(w *world.NetWorld, link LinkFunc) *Physics {
	common.Assert(c.shortUID != 0, "Physics requires a short uid from the host")

	c.DisablePhysics()
	w.SetShortUID(uint32(c.shortUID))
	c.physics = newPhysics(c.ctx, w, c.conn.UUID(), c.isHost, link)
	c.registry.Attach(func() event.Event { return event.NewPhysSync() })
	c.registry.Attach(func() event.Event { return &event.PhysObstEvent{} })
	if c.isHost {
		c.physics.OwnAll()
	}
	return c.physics
}

func (c *Controller) DisablePhysics() {
	if c.physics != nil {
		c.physics.close()
		c.physics = nil
	}
}

func (c *Controller) Physics() *Physics {
	return c.physics
}

// Queues an event for broadcast on the next update.
func (c *Controller) PushOut(e event.Event) {
	c.out.Enqueue(e)
}

// Returns whether the oldest received event is due.
func (c *Controller) IsInAvailable() bool {
	val, ok := c.in.Peek()
	if !ok {
		return false
	}
	return val.(Message).Sent <= c.GameTick()
}

func (c *Controller) PopIn() (Message, bool) {
	val, ok := c.in.Dequeue()
	if !ok {
		return Message{}, false
	}
	return val.(Message), true
}

// Advances the tick and exchanges every pending event with the room.
func (c *Controller) UpdateNet() {
	if c.conn == nil {
		return
	}

	c.tick++
	c.checkConnection()

	if c.status == InGame && c.physics != nil {
		c.physics.PackSync(FullSync)
		c.physics.PackObstacles()
		c.physics.UpdateSimulation()
		for _, e := range c.physics.Drain() {
			c.PushOut(e)
		}
	}

	c.processReceived()
	c.sendQueued()
}

func (c *Controller) checkConnection() bool {
	state := c.conn.State()
	switch {
	case state == netcode.Connected:
		if c.status == Connecting || c.status == Idle {
			c.setStatus(Connected)
		}
		if c.isHost {
			c.room = c.conn.Room()
		}
		return true
	case state == netcode.InSession && c.status == Connected:
		c.setStatus(Handshake)
		if c.isHost {
			c.assignUIDs()
		}
		return true
	case c.status == Ready && c.isHost && !c.starting && c.numReady == c.conn.NumPlayers():
		c.logger.Info("Every player is ready. Starting game")
		c.starting = true
		c.PushOut(event.NewGameStart())
	case state == netcode.Negotiating:
		c.setStatus(Connecting)
		return true
	case state.Terminal():
		c.setStatus(NetError)
		return false
	}
	return true
}

func (c *Controller) assignUIDs() {
	for i, player := range c.conn.Players() {
		if i >= netcode.MaxPlayers {
			c.logger.Error("No uid left for player [%v]", player)
			continue
		}

		data, err := c.wrap(event.NewUIDAssign(uint8(i + 1)))
		if err != nil {
			continue
		}
		c.conn.SendTo(player, data)
		c.record(c.conn.UUID(), data, true)
	}
}

func (c *Controller) setStatus(s Status) {
	if c.status == s {
		return
	}
	c.logger.Debug("Status [%v] -> [%v]", c.status, s)
	c.status = s
}

func (c *Controller) processReceived() {
	c.conn.Receive(func(source string, data []byte) {
		c.record(source, data, false)

		e, sent, err := c.registry.Unwrap(data)
		if err != nil {
			c.logger.Debug("Dropping frame from [%v]: %v", source, err)
			return
		}

		c.processEvent(Message{Source: source, Sent: sent, Received: c.GameTick(), Event: e})
	})
}

func (c *Controller) processEvent(msg Message) {
	if game, ok := msg.Event.(*event.GameStateEvent); ok {
		c.processGameState(msg.Source, game)
		return
	}

	if c.status != InGame {
		return
	}

	switch e := msg.Event.(type) {
	case *event.PhysSyncEvent:
		if c.physics != nil {
			c.physics.ProcessSync(msg.Source, e)
		}
	case *event.PhysObstEvent:
		if c.physics != nil {
			c.physics.ProcessObstacle(msg.Source, e)
		}
	default:
		c.in.Enqueue(msg)
	}
}

func (c *Controller) processGameState(source string, e *event.GameStateEvent) {
	c.logger.Debug("Game state [%v] from [%v] while [%v]", e, short(source), c.status)

	switch e.Type {
	case event.UIDAssign:
		// The assignment may outrun the lobby's session notice.
		if c.status == Handshake || c.status == Connected {
			c.shortUID = e.ShortUID
			c.logger.Info("Assigned short uid [%v]", c.shortUID)
		}
	case event.GameStart:
		if c.status == Ready {
			c.setStatus(InGame)
			c.startTick = c.tick
		}
	case event.ClientReady:
		if c.isHost {
			c.numReady++
			c.logger.Debug("Player [%v] ready (%v/%v)", short(source), c.numReady, c.conn.NumPlayers())
		}
	}
}

func (c *Controller) sendQueued() {
	for !c.out.Empty() {
		val, _ := c.out.Dequeue()

		data, err := c.wrap(val.(event.Event))
		if err != nil {
			c.logger.Error("Unable to send event: %v", err)
			continue
		}

		c.conn.Broadcast(data)
		c.record(c.conn.UUID(), data, true)
	}
}

func (c *Controller) wrap(e event.Event) ([]byte, error) {
	return c.registry.Wrap(e, c.GameTick())
}

func (c *Controller) openSession() {
	if c.journal == nil {
		return
	}

	id, err := uuid.FromString(c.conn.UUID())
	if err != nil {
		id = uuid.NewV4()
	}
	c.session = c.journal.Session(id)
}

func (c *Controller) record(source string, data []byte, outbound bool) {
	if c.session == nil {
		return
	}

	rec := journal.Record{Tick: c.GameTick(), Source: source, Outbound: outbound, Frame: data}
	if _, err := c.session.Append(rec); err != nil {
		c.logger.Error("Unable to journal frame: %v", err)
	}
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
