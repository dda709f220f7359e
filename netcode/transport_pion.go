package netcode

import (
	"net"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/pkg/errors"
	"github.com/pkopriv2/lockstep/common"
)

// A transport backed by webrtc peer connections.
type pionTransport struct {
	ctx    common.Context
	logger common.Logger

	lock  sync.Mutex
	muxed func(*webrtc.SettingEngine)
}

func NewPionTransport(ctx common.Context) Transport {
	return &pionTransport{ctx: ctx, logger: ctx.Logger().Fmt("PionTransport")}
}

func (t *pionTransport) NewPeer(cfg ConnectionConfig) (RawPeer, error) {
	engine := webrtc.SettingEngine{}
	if err := engine.SetEphemeralUDPPortRange(cfg.PortBegin, cfg.PortEnd); err != nil {
		return nil, errors.Wrapf(err, "Invalid port range [%v, %v]", cfg.PortBegin, cfg.PortEnd)
	}

	if cfg.MTU > 0 {
		engine.SetReceiveMTU(uint(cfg.MTU))
	}

	if cfg.Multiplex {
		muxed, err := t.udpMux(cfg.PortBegin)
		if err != nil {
			return nil, err
		}
		muxed(&engine)
	}

	api := webrtc.NewAPI(webrtc.WithSettingEngine(engine))
	conn, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: cfg.iceServers()})
	if err != nil {
		return nil, errors.Wrap(err, "Error creating peer connection")
	}

	return &pionPeer{conn: conn}, nil
}

// All multiplexed peers share a single udp socket.
func (t *pionTransport) udpMux(port uint16) (func(*webrtc.SettingEngine), error) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.muxed != nil {
		return t.muxed, nil
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: int(port)})
	if err != nil {
		return nil, errors.Wrapf(err, "Error opening multiplexed port [%v]", port)
	}

	mux := webrtc.NewICEUDPMux(nil, conn)
	t.ctx.Control().Defer(func(error) {
		mux.Close()
	})

	t.muxed = func(e *webrtc.SettingEngine) {
		e.SetICEUDPMux(mux)
	}
	t.logger.Info("Multiplexing peers over udp port [%v]", port)
	return t.muxed, nil
}

type pionPeer struct {
	conn *webrtc.PeerConnection
}

func (p *pionPeer) CreateChannel(label string) (RawChannel, error) {
	dc, err := p.conn.CreateDataChannel(label, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "Error creating data channel [%v]", label)
	}
	return newPionChannel(dc), nil
}

func (p *pionPeer) Offer() (Description, error) {
	offer, err := p.conn.CreateOffer(nil)
	if err != nil {
		return Description{}, errors.Wrap(err, "Error creating offer")
	}

	if err := p.conn.SetLocalDescription(offer); err != nil {
		return Description{}, errors.Wrap(err, "Error setting local description")
	}

	return Description{offer.Type.String(), offer.SDP}, nil
}

func (p *pionPeer) Answer(offer Description) (Description, error) {
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := p.conn.SetRemoteDescription(remote); err != nil {
		return Description{}, errors.Wrap(err, "Error setting remote description")
	}

	answer, err := p.conn.CreateAnswer(nil)
	if err != nil {
		return Description{}, errors.Wrap(err, "Error creating answer")
	}

	if err := p.conn.SetLocalDescription(answer); err != nil {
		return Description{}, errors.Wrap(err, "Error setting local description")
	}

	return Description{answer.Type.String(), answer.SDP}, nil
}

func (p *pionPeer) Complete(answer Description) error {
	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP}
	return errors.Wrap(p.conn.SetRemoteDescription(remote), "Error setting remote description")
}

func (p *pionPeer) AddCandidate(c Candidate) error {
	mid := c.Mid
	return errors.Wrap(
		p.conn.AddICECandidate(webrtc.ICECandidateInit{Candidate: c.Candidate, SDPMid: &mid}),
		"Error adding candidate")
}

func (p *pionPeer) OnCandidate(fn func(Candidate)) {
	p.conn.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}

		init := c.ToJSON()
		mid := ""
		if init.SDPMid != nil {
			mid = *init.SDPMid
		}
		fn(Candidate{init.Candidate, mid})
	})
}

func (p *pionPeer) OnChannel(fn func(RawChannel)) {
	p.conn.OnDataChannel(func(dc *webrtc.DataChannel) {
		fn(newPionChannel(dc))
	})
}

func (p *pionPeer) OnStateChange(fn func(PeerState)) {
	p.conn.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateConnecting:
			fn(PeerConnecting)
		case webrtc.PeerConnectionStateConnected:
			fn(PeerConnected)
		case webrtc.PeerConnectionStateDisconnected:
			fn(PeerDisconnected)
		case webrtc.PeerConnectionStateFailed:
			fn(PeerFailed)
		case webrtc.PeerConnectionStateClosed:
			fn(PeerClosed)
		}
	})
}

func (p *pionPeer) Close() error {
	return p.conn.Close()
}

type pionChannel struct {
	hooks
	dc *webrtc.DataChannel
}

// Pion handlers are installed immediately so that no event is missed
// while the owning peer decides what to do with the channel.
func newPionChannel(dc *webrtc.DataChannel) *pionChannel {
	c := &pionChannel{dc: dc}
	dc.OnOpen(c.fireOpen)
	dc.OnClose(c.fireClose)
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.fireMessage(msg.Data, !msg.IsString)
	})
	return c
}

func (c *pionChannel) Label() string {
	return c.dc.Label()
}

func (c *pionChannel) Send(data []byte) error {
	return c.dc.Send(data)
}

func (c *pionChannel) Close() error {
	return c.dc.Close()
}
