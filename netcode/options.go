package netcode

import (
	"time"

	"github.com/pkopriv2/lockstep/common"
)

// Public Configuration
var Config = struct {

	// The number of incoming messages a connection buffers before it
	// begins dropping the oldest.
	BufferCapacity string

	// The maximum time to wait for the lobby to accept a connection.
	DialTimeout string

	// The maximum time to wait for a single lobby write.
	WriteTimeout string

	// The initial size of each actor mailbox.
	MailboxHint string
}{
	"lockstep.netcode.buffer.capacity",
	"lockstep.netcode.dial.timeout",
	"lockstep.netcode.write.timeout",
	"lockstep.netcode.mailbox.hint",
}

var (
	defaultBufferCapacity = 32
	defaultDialTimeout    = 10 * time.Second
	defaultWriteTimeout   = 5 * time.Second
	defaultMailboxHint    = 32
)

type LayerOptions struct {
	transport Transport
	dialer    Dialer
}

func (o *LayerOptions) WithTransport(t Transport) *LayerOptions {
	o.transport = t
	return o
}

func (o *LayerOptions) WithDialer(d Dialer) *LayerOptions {
	o.dialer = d
	return o
}

func buildLayerOptions(ctx common.Context, fns []func(*LayerOptions)) *LayerOptions {
	opts := &LayerOptions{}
	for _, fn := range fns {
		fn(opts)
	}

	if opts.transport == nil {
		opts.WithTransport(NewPionTransport(ctx))
	}

	if opts.dialer == nil {
		opts.WithDialer(NewWebSocketDialer(ctx))
	}

	return opts
}

func mailboxHint(ctx common.Context) int64 {
	return int64(ctx.Config().OptionalInt(Config.MailboxHint, defaultMailboxHint))
}
