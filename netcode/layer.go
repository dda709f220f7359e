package netcode

import (
	"sync"

	"github.com/pkopriv2/lockstep/common"
)

// The verbosity of the network layer.
type Level int

const (
	LevelNone Level = iota
	LevelFatal
	LevelErrors
	LevelWarnings
	LevelNetcode
	LevelInfo
	LevelDeveloper
	LevelVerbose
)

func (l Level) String() string {
	switch l {
	default:
		return "NONE"
	case LevelFatal:
		return "FATAL"
	case LevelErrors:
		return "ERRORS"
	case LevelWarnings:
		return "WARNINGS"
	case LevelNetcode:
		return "NETCODE"
	case LevelInfo:
		return "INFO"
	case LevelDeveloper:
		return "DEVELOPER"
	case LevelVerbose:
		return "VERBOSE"
	}
}

// The network layer is the runtime that every connection is built on.
// It must be started before any connection is created, and stopping it
// closes every connection created from it.  A layer is an ordinary value:
// an application creates one at startup and passes it to each connection
// it builds.
type Layer struct {
	ctx       common.Context
	logger    common.Logger
	transport Transport
	dialer    Dialer

	lock    sync.Mutex
	session common.Context
	level   Level
}

func NewLayer(ctx common.Context, fns ...func(*LayerOptions)) *Layer {
	opts := buildLayerOptions(ctx, fns)
	return &Layer{
		ctx:       ctx,
		logger:    ctx.Logger().Fmt("Netcode"),
		transport: opts.transport,
		dialer:    opts.dialer,
	}
}

// Starts the layer at the given verbosity.  Starting a live layer has no
// effect.  Returns whether the layer is live.
func (l *Layer) Start(level Level) bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.session != nil && !l.session.Control().IsClosed() {
		return true
	}

	if l.ctx.Control().IsClosed() {
		return false
	}

	l.level = level
	l.session = l.ctx.Sub("Netcode")
	if l.level >= LevelNetcode {
		l.logger.Info("Network layer started [%v]", level)
	}
	return true
}

// Stops the layer, closing every outstanding connection.
func (l *Layer) Stop() {
	l.lock.Lock()
	session := l.session
	l.session = nil
	l.lock.Unlock()

	if session == nil {
		return
	}

	session.Close()
	if l.Debug() {
		l.logger.Info("Network layer stopped")
	}
}

func (l *Layer) Live() bool {
	_, ok := l.Get()
	return ok
}

// Returns the live session context, or false if the layer is not started.
func (l *Layer) Get() (common.Context, bool) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.session == nil || l.session.Control().IsClosed() {
		return nil, false
	}
	return l.session, true
}

func (l *Layer) Level() Level {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.level
}

func (l *Layer) Debug() bool {
	return l.Level() >= LevelNetcode
}
