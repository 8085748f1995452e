// Package chat drives one chat client: it turns server events into screen
// updates, upgrades each pairing to a direct data channel when it can, and
// carries the user's commands back to the server.
package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/BioHazard786/Rendezvous/internal/client"
	"github.com/BioHazard786/Rendezvous/internal/p2p"
	"github.com/BioHazard786/Rendezvous/internal/ui"
)

// Conn is the server connection. *client.Client satisfies it.
type Conn interface {
	Join(interests []string) error
	FindMatch() error
	NextPartner() error
	Stop() error
	Signal(to string, payload any) error
	SendChat(to, text string) error
	Close()
}

// Sink receives screen updates. *tea.Program satisfies it.
type Sink interface {
	Send(msg tea.Msg)
}

// Peer is a direct connection to the partner. *p2p.Peer satisfies it.
type Peer interface {
	Offer() error
	HandleSignal(p2p.SignalPayload) error
	Send(text string) error
	Ready() bool
	Close() error
	Events() <-chan p2p.Event
	Done() <-chan struct{}
}

// PeerFactory opens a peer whose signaling goes through signal.
type PeerFactory func(signal p2p.Signaler) (Peer, error)

// NewPeerFactory builds real WebRTC peers with opts.
func NewPeerFactory(opts p2p.Options) PeerFactory {
	return func(signal p2p.Signaler) (Peer, error) {
		return p2p.NewPeer(opts, signal)
	}
}

// Session implements ui.Actions.
type Session struct {
	conn      Conn
	sink      Sink
	newPeer   PeerFactory
	interests []string

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	self    string
	partner string
	peer    Peer
}

var _ ui.Actions = (*Session)(nil)

// NewSession creates a session. A nil newPeer keeps all chat on the server
// relay.
func NewSession(ctx context.Context, conn Conn, sink Sink, newPeer PeerFactory, interests []string) *Session {
	ctx, cancel := context.WithCancel(ctx)
	return &Session{
		conn:      conn,
		sink:      sink,
		newPeer:   newPeer,
		interests: interests,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Done is closed once the session has been quit.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Run applies server events until the stream ends or the session is quit.
func (s *Session) Run(events <-chan client.Event) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.handle(ev)
		}
	}
}

func (s *Session) handle(ev client.Event) {
	switch ev := ev.(type) {
	case client.Connected:
		s.mu.Lock()
		s.self = ev.ID
		s.mu.Unlock()
		s.sink.Send(ui.ConnectedMsg{ID: ev.ID})
		if err := s.conn.Join(s.interests); err != nil {
			s.sink.Send(ui.ErrorMsg{Err: err})
		}

	case client.Searching:
		s.reset()
		s.sink.Send(ui.SearchingMsg{Text: ev.Message})

	case client.PartnerFound:
		s.reset()
		s.mu.Lock()
		s.partner = ev.PartnerID
		s.mu.Unlock()
		s.sink.Send(ui.PartnerFoundMsg{ID: ev.PartnerID})
		s.startPeer(ev.PartnerID)

	case client.Signal:
		s.handleSignal(ev)

	case client.ChatMessage:
		s.mu.Lock()
		current := ev.From == s.partner
		s.mu.Unlock()
		if current {
			s.sink.Send(ui.ChatMsg{Text: ev.Text, At: ev.Timestamp})
		}

	case client.PartnerDisconnected:
		s.reset()
		s.sink.Send(ui.PartnerLeftMsg{})

	case client.UserCount:
		s.sink.Send(ui.OnlineMsg{Count: ev.Count})

	case client.Disconnected:
		s.reset()
		s.sink.Send(ui.DisconnectedMsg{})
	}
}

func (s *Session) handleSignal(ev client.Signal) {
	s.mu.Lock()
	peer, current := s.peer, ev.From == s.partner
	s.mu.Unlock()

	if !current || peer == nil {
		slog.Debug("dropping signal", "from", ev.From)
		return
	}

	var payload p2p.SignalPayload
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		slog.Warn("malformed signal payload", "err", err)
		return
	}
	if err := peer.HandleSignal(payload); err != nil {
		slog.Warn("failed to apply signal", "err", err)
	}
}

func (s *Session) startPeer(partner string) {
	if s.newPeer == nil {
		return
	}

	peer, err := s.newPeer(func(p p2p.SignalPayload) error {
		return s.conn.Signal(partner, p)
	})
	if err != nil {
		slog.Warn("direct channel unavailable, using relay", "err", err)
		return
	}

	s.mu.Lock()
	if s.partner != partner {
		s.mu.Unlock()
		peer.Close()
		return
	}
	s.peer = peer
	self := s.self
	s.mu.Unlock()

	go s.pump(peer)

	if p2p.ShouldOffer(self, partner) {
		if err := peer.Offer(); err != nil {
			slog.Warn("failed to offer direct channel", "err", err)
		}
	}
}

// pump forwards one peer's events while it is the current peer.
func (s *Session) pump(peer Peer) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-peer.Events():
			s.forward(peer, ev)
		case <-peer.Done():
			s.drain(peer)
			if s.isCurrent(peer) {
				s.sink.Send(ui.DirectMsg{Open: false})
			}
			return
		}
	}
}

// drain forwards whatever the peer buffered before it closed.
func (s *Session) drain(peer Peer) {
	for {
		select {
		case ev := <-peer.Events():
			s.forward(peer, ev)
		default:
			return
		}
	}
}

func (s *Session) forward(peer Peer, ev p2p.Event) {
	if !s.isCurrent(peer) {
		return
	}
	switch ev := ev.(type) {
	case p2p.ChannelOpen:
		s.sink.Send(ui.DirectMsg{Open: true})
	case p2p.Message:
		s.sink.Send(ui.ChatMsg{Text: ev.Text, At: ev.SentAt, Direct: true})
	}
}

func (s *Session) isCurrent(peer Peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer == peer
}

// reset forgets the partner and closes any direct channel.
func (s *Session) reset() {
	s.mu.Lock()
	peer := s.peer
	s.peer = nil
	s.partner = ""
	s.mu.Unlock()

	if peer != nil {
		if err := peer.Close(); err != nil {
			slog.Debug("failed to close peer", "err", err)
		}
	}
}

// Send delivers text over the direct channel when open, otherwise through
// the server.
func (s *Session) Send(text string) error {
	s.mu.Lock()
	partner, peer := s.partner, s.peer
	s.mu.Unlock()

	if partner == "" {
		return client.ErrNotPaired
	}
	if peer != nil && peer.Ready() {
		err := peer.Send(text)
		if err == nil {
			return nil
		}
		slog.Debug("direct send failed, using relay", "err", err)
	}
	return s.conn.SendChat(partner, text)
}

// Next leaves the current partner and searches again.
func (s *Session) Next() error {
	s.reset()
	if err := s.conn.NextPartner(); err != nil {
		return err
	}
	s.sink.Send(ui.SearchingMsg{Text: "Finding someone new..."})
	return nil
}

// Stop leaves the current partner or the queue.
func (s *Session) Stop() error {
	s.reset()
	if err := s.conn.Stop(); err != nil {
		return err
	}
	s.sink.Send(ui.IdleMsg{})
	return nil
}

// Find asks the server for a partner.
func (s *Session) Find() error {
	return s.conn.FindMatch()
}

// Quit ends the session and closes the connection.
func (s *Session) Quit() {
	s.cancel()
	s.reset()
	s.conn.Close()
}
