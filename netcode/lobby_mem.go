package netcode

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/pkopriv2/lockstep/common"
	"github.com/pkopriv2/lockstep/concurrent"
	"github.com/pkopriv2/lockstep/scribe"
)

// An in-process lobby.  It implements the room protocol and doubles as a
// Dialer, so that connections can be exercised without a lobby server.
// Sockets from other transports may be attached with Serve.
type MemLobby struct {
	ctx    common.Context
	logger common.Logger

	lock    sync.Mutex
	clients map[string]*lobbyClient
	rooms   map[string]*lobbyRoom
	next    int
}

type lobbyClient struct {
	id   string
	sock Socket
	out  *concurrent.Mailbox
	room string
}

func (c *lobbyClient) send(msg scribe.Message) {
	c.out.Post(msg.Bytes())
}

type lobbyRoom struct {
	id        string
	host      string
	players   []string
	max       int
	version   int
	inSession bool
	migrating bool

	// players yet to be asked to take over as host
	candidates []string
}

func NewMemLobby(ctx common.Context) *MemLobby {
	return &MemLobby{
		ctx:     ctx,
		logger:  ctx.Logger().Fmt("MemLobby"),
		clients: make(map[string]*lobbyClient),
		rooms:   make(map[string]*lobbyRoom),
	}
}

// Returns the ids of every open room.
func (l *MemLobby) Rooms() []string {
	l.lock.Lock()
	defer l.lock.Unlock()
	ret := make([]string, 0, len(l.rooms))
	for id := range l.rooms {
		ret = append(ret, id)
	}
	return ret
}

// Disconnects a client, as though its socket had dropped.
func (l *MemLobby) Kick(id string) {
	l.lock.Lock()
	c := l.clients[id]
	l.lock.Unlock()

	if c != nil {
		c.sock.Close()
	}
}

func (l *MemLobby) Dial(cancel <-chan struct{}, url string) (Socket, error) {
	select {
	case <-cancel:
		return nil, errors.Wrapf(ClosedError, "Dial canceled [%v]", url)
	case <-l.ctx.Control().Closed():
		return nil, errors.Wrapf(ClosedError, "Lobby closed [%v]", url)
	default:
	}

	id := url[strings.LastIndex(url, "/")+1:]
	client, server := newMemSocketPair()
	go l.Serve(id, server)
	return client, nil
}

// Serves a single client until its socket closes.
func (l *MemLobby) Serve(id string, sock Socket) {
	c := &lobbyClient{id: id, sock: sock, out: concurrent.NewMailbox(16)}

	l.lock.Lock()
	if _, ok := l.clients[id]; ok || l.ctx.Control().IsClosed() {
		l.lock.Unlock()
		sock.Close()
		return
	}
	l.clients[id] = c
	l.lock.Unlock()

	go func() {
		for {
			data, ok := c.out.Take()
			if !ok {
				return
			}
			if err := sock.Write(data.([]byte)); err != nil {
				sock.Close()
				return
			}
		}
	}()

	c.send(newLobbyMessage("", catRoomAssign, statusHandshake, nil))
	for {
		data, err := sock.Read()
		if err != nil {
			break
		}
		l.handle(c, data)
	}

	l.leave(c)
	c.out.Close()
	sock.Close()
}

func (l *MemLobby) handle(c *lobbyClient, data []byte) {
	msg, err := scribe.Parse(data)
	if err != nil {
		l.logger.Error("Invalid message from [%v]: %v", short(c.id), err)
		return
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	h := readHeader(msg)
	if h.typ != typeLobby {
		l.relay(c, h, msg)
		return
	}

	switch h.category + "/" + h.status {
	case catRoomAssign + "/" + statusRequest:
		l.assign(c, msg)
	case catSession + "/" + statusRequest:
		if r := l.hosted(c); r != nil && !r.inSession {
			r.inSession = true
			players := append([]string(nil), r.players...)
			l.broadcast(r, newLobbyMessage("", catSession, statusStart, func(w scribe.Writer) {
				w.WriteStrings("players", players)
			}))
		}
	case catSession + "/" + statusShutdown:
		if r := l.hosted(c); r != nil {
			l.shutdown(r)
		}
	case catPromotion + "/" + statusResponse:
		r := l.rooms[c.room]
		if r == nil || !r.migrating || len(r.candidates) == 0 || r.candidates[0] != c.id {
			return
		}

		var accept bool
		msg.ReadBool("response", &accept)
		r.candidates = r.candidates[1:]
		if !accept {
			l.promote(r)
			return
		}

		r.host = c.id
		players := append([]string(nil), r.players...)
		for _, p := range r.players {
			if p == c.id {
				c.send(newLobbyMessage("", catPromotion, statusConfirmed, func(w scribe.Writer) {
					w.WriteStrings("players", players)
				}))
				continue
			}
			if o := l.clients[p]; o != nil {
				o.send(newLobbyMessage("", catMigration, statusAttempt, func(w scribe.Writer) {
					w.WriteString("host", c.id)
					w.WriteStrings("players", players)
				}))
			}
		}
	case catPromotion + "/" + statusComplete:
		if r := l.hosted(c); r != nil && r.migrating {
			r.migrating = false
			r.candidates = nil
			l.broadcast(r, newLobbyMessage("", catMigration, statusComplete, nil))
		}
	default:
		l.logger.Error("Unexpected message [%v/%v] from [%v]", h.category, h.status, short(c.id))
	}
}

func (l *MemLobby) assign(c *lobbyClient, msg scribe.Message) {
	var host bool
	var version int
	msg.ReadBool("host", &host)
	msg.ReadInt("apiVersion", &version)

	if host {
		max := DefaultMaxPlayers
		msg.ReadInt("maxPlayers", &max)

		l.next++
		r := &lobbyRoom{
			id:      fmt.Sprintf("R%04d", l.next),
			host:    c.id,
			players: []string{c.id},
			max:     max,
			version: version,
		}
		l.rooms[r.id] = r
		c.room = r.id
		c.send(newAssignment(r))
		return
	}

	var room string
	msg.ReadString("room", &room)

	r := l.rooms[room]
	switch {
	case r == nil:
		c.send(newLobbyMessage("", catRoomAssign, statusInvalid, nil))
		return
	case r.version != version:
		c.send(newLobbyMessage("", catRoomAssign, statusMismatch, nil))
		return
	case r.inSession || r.migrating || len(r.players) >= r.max:
		c.send(newLobbyMessage("", catRoomAssign, statusDenial, nil))
		return
	}

	r.players = append(r.players, c.id)
	c.room = r.id
	c.send(newAssignment(r))

	joined := newLobbyMessage("", catPlayer, statusConnect, func(w scribe.Writer) {
		w.WriteString("player", c.id)
	})
	for _, p := range r.players {
		if o := l.clients[p]; o != nil && p != c.id {
			o.send(joined)
		}
	}
}

func newAssignment(r *lobbyRoom) scribe.Message {
	players := append([]string(nil), r.players...)
	return newLobbyMessage("", catRoomAssign, statusSuccess, func(w scribe.Writer) {
		w.WriteString("room", r.id)
		w.WriteString("host", r.host)
		w.WriteStrings("players", players)
	})
}

// Forwards a signal to its target, replacing the id with the sender's.
func (l *MemLobby) relay(c *lobbyClient, h header, msg scribe.Message) {
	target := l.clients[h.id]
	if target == nil || target.room == "" || target.room != c.room {
		return
	}

	target.send(msg.Merge(func(w scribe.Writer) {
		w.WriteString("id", c.id)
	}))
}

// Returns the room the client hosts, if any.
func (l *MemLobby) hosted(c *lobbyClient) *lobbyRoom {
	r := l.rooms[c.room]
	if r == nil || r.host != c.id {
		return nil
	}
	return r
}

func (l *MemLobby) broadcast(r *lobbyRoom, msg scribe.Message) {
	for _, p := range r.players {
		if c := l.clients[p]; c != nil {
			c.send(msg)
		}
	}
}

func (l *MemLobby) shutdown(r *lobbyRoom) {
	l.broadcast(r, newLobbyMessage("", catSession, statusShutdown, nil))
	for _, p := range r.players {
		if c := l.clients[p]; c != nil {
			c.room = ""
		}
	}
	delete(l.rooms, r.id)
}

// Asks the next candidate to take over as host.  The room is shut down
// once every candidate has refused.
func (l *MemLobby) promote(r *lobbyRoom) {
	for len(r.candidates) > 0 {
		if c := l.clients[r.candidates[0]]; c != nil {
			c.send(newLobbyMessage("", catPromotion, statusQuery, nil))
			return
		}
		r.candidates = r.candidates[1:]
	}
	l.shutdown(r)
}

func (l *MemLobby) leave(c *lobbyClient) {
	l.lock.Lock()
	defer l.lock.Unlock()

	delete(l.clients, c.id)
	r := l.rooms[c.room]
	if r == nil {
		return
	}

	players := r.players[:0]
	for _, p := range r.players {
		if p != c.id {
			players = append(players, p)
		}
	}
	r.players = players

	if len(r.players) == 0 {
		delete(l.rooms, r.id)
		return
	}

	if r.migrating {
		if len(r.candidates) > 0 && r.candidates[0] == c.id {
			r.candidates = r.candidates[1:]
			l.promote(r)
		}
		return
	}

	if r.host != c.id {
		l.broadcast(r, newLobbyMessage("", catPlayer, statusDisconnect, func(w scribe.Writer) {
			w.WriteString("player", c.id)
		}))
		return
	}

	if !r.inSession {
		l.shutdown(r)
		return
	}

	r.migrating = true
	r.candidates = append([]string(nil), r.players...)
	l.broadcast(r, newLobbyMessage("", catMigration, statusStart, nil))
	l.promote(r)
}

// One end of an in-process socket pair.  Closing either end closes both.
type memSocket struct {
	inbox  *concurrent.Mailbox
	remote *memSocket
	once   *sync.Once
}

func newMemSocketPair() (*memSocket, *memSocket) {
	once := new(sync.Once)
	a := &memSocket{inbox: concurrent.NewMailbox(16), once: once}
	b := &memSocket{inbox: concurrent.NewMailbox(16), once: once}
	a.remote, b.remote = b, a
	return a, b
}

func (s *memSocket) Read() ([]byte, error) {
	data, ok := s.inbox.Take()
	if !ok {
		return nil, errors.WithStack(ClosedError)
	}
	return data.([]byte), nil
}

func (s *memSocket) Write(data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	if !s.remote.inbox.Post(cp) {
		return errors.WithStack(ClosedError)
	}
	return nil
}

func (s *memSocket) Close() error {
	s.once.Do(func() {
		s.inbox.Close()
		s.remote.inbox.Close()
	})
	return nil
}
