package netcode

import (
	"context"
	"time"

	"github.com/coder/websocket"
	"github.com/pkg/errors"
	"github.com/pkopriv2/lockstep/common"
)

// A socket is a message oriented, bidirectional connection to the lobby.
// Reads block until a message arrives or the socket closes.
type Socket interface {
	Read() ([]byte, error)
	Write([]byte) error
	Close() error
}

// A dialer opens sockets to the lobby.
type Dialer interface {
	Dial(cancel <-chan struct{}, url string) (Socket, error)
}

type wsDialer struct {
	ctx          common.Context
	dialTimeout  time.Duration
	writeTimeout time.Duration
}

// Returns a dialer that reaches the lobby over websockets.
func NewWebSocketDialer(ctx common.Context) Dialer {
	return &wsDialer{
		ctx:          ctx,
		dialTimeout:  ctx.Config().OptionalDuration(Config.DialTimeout, defaultDialTimeout),
		writeTimeout: ctx.Config().OptionalDuration(Config.WriteTimeout, defaultWriteTimeout),
	}
}

func (d *wsDialer) Dial(cancel <-chan struct{}, url string) (Socket, error) {
	timeout, done := context.WithTimeout(context.Background(), d.dialTimeout)
	defer done()

	go func() {
		select {
		case <-cancel:
			done()
		case <-timeout.Done():
		}
	}()

	conn, _, err := websocket.Dial(timeout, url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "Error dialing lobby [%v]", url)
	}

	return NewWebSocket(conn, d.writeTimeout), nil
}

// Wraps an established websocket.  Lobby servers use this to speak to
// accepted clients.
func NewWebSocket(conn *websocket.Conn, writeTimeout time.Duration) Socket {
	ctx, stop := context.WithCancel(context.Background())
	return &wsSocket{conn: conn, ctx: ctx, stop: stop, writeTimeout: writeTimeout}
}

type wsSocket struct {
	conn         *websocket.Conn
	ctx          context.Context
	stop         context.CancelFunc
	writeTimeout time.Duration
}

// Only text frames carry lobby messages; anything else is skipped.
func (s *wsSocket) Read() ([]byte, error) {
	for {
		typ, data, err := s.conn.Read(s.ctx)
		if err != nil {
			return nil, errors.Wrap(ClosedError, err.Error())
		}
		if typ == websocket.MessageText {
			return data, nil
		}
	}
}

func (s *wsSocket) Write(data []byte) error {
	timeout, done := context.WithTimeout(s.ctx, s.writeTimeout)
	defer done()
	return s.conn.Write(timeout, websocket.MessageText, data)
}

func (s *wsSocket) Close() error {
	defer s.stop()
	return s.conn.Close(websocket.StatusNormalClosure, "")
}
