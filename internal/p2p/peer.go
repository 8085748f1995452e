// Package p2p upgrades a matched pair to a direct WebRTC data channel for
// chat. The rendezvous server only carries the signaling.
package p2p

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pion/ice/v4"
	pion "github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Rendezvous/internal/config"
	"github.com/BioHazard786/Rendezvous/internal/netutil"
)

const channelLabel = "chat"

// SignalPayload is the WebRTC signaling data (SDP offer/answer or ICE
// candidate) carried inside the server's signal frames.
type SignalPayload struct {
	Type         string                 `json:"type,omitempty"`
	SDP          string                 `json:"sdp,omitempty"`
	ICECandidate *pion.ICECandidateInit `json:"ice_candidate,omitempty"`
}

// Signaler forwards a payload to the partner through the server.
type Signaler func(SignalPayload) error

// Options configures the peer connection.
type Options struct {
	ICEServers []pion.ICEServer
	ForceRelay bool

	// IncludeLoopback gathers 127.0.0.1 candidates with plain host names.
	// Used for in-process tests.
	IncludeLoopback bool
}

// OptionsFrom builds ICE settings from the client configuration.
func OptionsFrom(cfg *config.Client) Options {
	var servers []pion.ICEServer
	if stun := cfg.GetSTUNServers(); len(stun) > 0 {
		servers = append(servers, pion.ICEServer{URLs: stun})
	}

	turn := cfg.GetTURNServers()
	if turn != nil {
		username, password := cfg.GetTURNCredentials()
		servers = append(servers, pion.ICEServer{
			URLs:       turn,
			Username:   username,
			Credential: password,
		})
	}

	return Options{
		ICEServers: servers,
		ForceRelay: turn != nil && (cfg.ForceRelay || netutil.ShouldForceRelay()),
	}
}

// ShouldOffer decides which side of a pair creates the offer. Both sides
// compute the same answer from the two ids.
func ShouldOffer(self, partner string) bool {
	return self < partner
}

// Event is emitted by a Peer.
type Event interface{ peerEvent() }

type (
	// ChannelOpen fires once the data channel is usable.
	ChannelOpen struct{}

	// Message is a chat line received on the data channel.
	Message struct {
		Text   string
		SentAt time.Time
	}
)

func (ChannelOpen) peerEvent() {}
func (Message) peerEvent()     {}

// Peer is one side of a direct chat connection.
type Peer struct {
	pc     *pion.PeerConnection
	signal Signaler
	events chan Event
	done   chan struct{}

	mu      sync.Mutex
	dc      *pion.DataChannel
	pending []pion.ICECandidateInit
	closed  bool

	closedOnce sync.Once
}

// NewPeer creates a peer connection that sends its signaling through
// signal.
func NewPeer(opts Options, signal Signaler) (*Peer, error) {
	policy := pion.ICETransportPolicyAll
	if opts.ForceRelay {
		policy = pion.ICETransportPolicyRelay
	}

	var se pion.SettingEngine
	if opts.IncludeLoopback {
		se.SetIncludeLoopbackCandidate(true)
		se.SetICEMulticastDNSMode(ice.MulticastDNSModeDisabled)
	}
	api := pion.NewAPI(pion.WithSettingEngine(se))

	pc, err := api.NewPeerConnection(pion.Configuration{
		ICEServers:         opts.ICEServers,
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, NewError("create peer connection", err)
	}

	p := &Peer{
		pc:     pc,
		signal: signal,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
	p.setupHandlers()
	return p, nil
}

// Events returns the peer's event stream.
func (p *Peer) Events() <-chan Event {
	return p.events
}

// Done is closed when the partner says goodbye or the connection fails.
// Events sent before that stay buffered on Events.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

func (p *Peer) setupHandlers() {
	p.pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		slog.Debug("peer connection state", "state", state.String())
		if state == pion.PeerConnectionStateFailed || state == pion.PeerConnectionStateClosed {
			p.emitClosed()
		}
	})

	p.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		if err := p.signal(SignalPayload{ICECandidate: &init}); err != nil {
			slog.Debug("failed to send ICE candidate", "err", err)
		}
	})

	p.pc.OnDataChannel(func(dc *pion.DataChannel) {
		if dc.Label() != channelLabel {
			slog.Debug("ignoring data channel", "label", dc.Label())
			return
		}
		p.attach(dc)
	})
}

func (p *Peer) attach(dc *pion.DataChannel) {
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()

	dc.OnOpen(func() {
		p.emit(ChannelOpen{})
	})

	dc.OnMessage(func(msg pion.DataChannelMessage) {
		f, err := decodeFrame(msg.Data)
		if err != nil {
			slog.Warn("malformed data channel frame", "err", err)
			return
		}
		switch f.Type {
		case FrameChat:
			var body ChatBody
			if err := f.DecodePayload(&body); err != nil {
				slog.Warn("malformed chat frame", "err", err)
				return
			}
			p.emit(Message{Text: body.Text, SentAt: time.UnixMilli(body.SentAt)})
		case FrameBye:
			p.emitClosed()
		default:
			slog.Debug("unknown data channel frame", "type", f.Type)
		}
	})

	dc.OnClose(func() {
		p.emitClosed()
	})
}

// Offer opens the chat channel and sends an SDP offer to the partner.
func (p *Peer) Offer() error {
	dc, err := p.pc.CreateDataChannel(channelLabel, nil)
	if err != nil {
		return NewError("create data channel", err)
	}
	p.attach(dc)

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return NewError("create offer", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return NewError("set local description", err)
	}

	return p.signal(SignalPayload{Type: "offer", SDP: p.pc.LocalDescription().SDP})
}

// HandleSignal applies a payload received from the partner. Candidates that
// arrive before the remote description are held until it is set.
func (p *Peer) HandleSignal(s SignalPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return NewError("handle signal", ErrClosed)
	}

	if s.SDP != "" {
		if err := p.handleSDP(s); err != nil {
			return err
		}
	}

	if s.ICECandidate != nil {
		if p.pc.RemoteDescription() == nil {
			p.pending = append(p.pending, *s.ICECandidate)
			return nil
		}
		if err := p.pc.AddICECandidate(*s.ICECandidate); err != nil {
			return NewError("add ICE candidate", err)
		}
	}
	return nil
}

func (p *Peer) handleSDP(s SignalPayload) error {
	switch s.Type {
	case "offer":
		desc := pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: s.SDP}
		if err := p.pc.SetRemoteDescription(desc); err != nil {
			return NewError("set remote description", err)
		}
		answer, err := p.pc.CreateAnswer(nil)
		if err != nil {
			return NewError("create answer", err)
		}
		if err := p.pc.SetLocalDescription(answer); err != nil {
			return NewError("set local description", err)
		}
		if err := p.signal(SignalPayload{Type: "answer", SDP: p.pc.LocalDescription().SDP}); err != nil {
			return NewError("send answer", err)
		}

	case "answer":
		desc := pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: s.SDP}
		if err := p.pc.SetRemoteDescription(desc); err != nil {
			return NewError("set remote description", err)
		}

	default:
		return WrapError("handle signal", ErrUnexpectedSignal, s.Type)
	}

	for _, c := range p.pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			slog.Debug("failed to add queued ICE candidate", "err", err)
		}
	}
	p.pending = nil
	return nil
}

// Send writes a chat line to the data channel.
func (p *Peer) Send(text string) error {
	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()

	if dc == nil || dc.ReadyState() != pion.DataChannelStateOpen {
		return NewError("send chat", ErrChannelNotOpen)
	}
	data, err := encodeChat(text, time.Now())
	if err != nil {
		return NewError("encode chat", err)
	}
	if err := dc.Send(data); err != nil {
		return NewError("send chat", err)
	}
	return nil
}

// Ready reports whether the data channel is open.
func (p *Peer) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dc != nil && p.dc.ReadyState() == pion.DataChannelStateOpen
}

// Close says goodbye on the channel if it is open and tears the connection
// down. Safe to call more than once.
func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	dc := p.dc
	p.mu.Unlock()

	if dc != nil && dc.ReadyState() == pion.DataChannelStateOpen {
		if bye, err := encodeBye(); err == nil {
			_ = dc.Send(bye)
		}
	}
	if err := p.pc.Close(); err != nil {
		return NewError("close peer connection", err)
	}
	return nil
}

func (p *Peer) emit(ev Event) {
	select {
	case p.events <- ev:
	default:
		slog.Warn("peer event dropped", "event", ev)
	}
}

func (p *Peer) emitClosed() {
	p.closedOnce.Do(func() { close(p.done) })
}
