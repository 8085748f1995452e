package signaling

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/BioHazard786/Rendezvous/internal/matching"
	"github.com/BioHazard786/Rendezvous/internal/metrics"
	"github.com/BioHazard786/Rendezvous/internal/protocol"
)

// Outbox queues a frame for a connected client. It returns false if the
// client is gone or cannot keep up.
type Outbox interface {
	Send(id string, msg *protocol.Message) bool
}

// Controller turns client intents into engine operations and engine
// events into protocol notifications. Engine errors stop here: clients
// only ever see state notifications.
type Controller struct {
	registry *matching.Registry
	engine   *matching.Engine
	gateway  *matching.Gateway
	out      Outbox
	metrics  *metrics.Metrics
}

// NewController wires a fresh registry, engine and gateway to out.
func NewController(out Outbox, sched matching.Scheduler, opts matching.Options, m *metrics.Metrics) *Controller {
	c := &Controller{
		registry: matching.NewRegistry(),
		out:      out,
		metrics:  m,
	}
	c.engine = matching.NewEngine(c.registry, c, sched, opts)
	c.gateway = matching.NewGateway(c.engine, c)
	return c
}

// Engine exposes the pairing engine, mainly for tests.
func (c *Controller) Engine() *matching.Engine {
	return c.engine
}

// Stats returns the engine counters.
func (c *Controller) Stats() matching.Stats {
	return c.engine.Stats()
}

// Connect registers a new idle session. bind runs before the connected
// notification is sent so the caller can route frames to the new id.
func (c *Controller) Connect(bind func(id string)) string {
	id := c.registry.Register()
	bind(id)
	c.out.Send(id, protocol.MustNew(protocol.TypeConnected, protocol.ConnectedPayload{ID: id}))
	return id
}

// Join stores the client's interests and starts looking for a partner.
func (c *Controller) Join(id string, interests []string) {
	if err := c.registry.SetInterests(id, interests); err != nil {
		slog.Debug("join ignored", "id", id, "err", err)
		return
	}
	c.FindMatch(id)
}

// FindMatch queues the client for matching.
func (c *Controller) FindMatch(id string) {
	if err := c.engine.Enqueue(id); err != nil {
		slog.Debug("find match ignored", "id", id, "err", err)
	}
}

// NextPartner splits the current pair and queues both sides again.
func (c *Controller) NextPartner(id string) {
	if !c.engine.Rematch(id) {
		slog.Debug("next partner ignored, not paired", "id", id)
		return
	}
	c.metrics.Rematched()
	slog.Info("pair split for rematch", "id", id)
}

// Stop returns the client to idle.
func (c *Controller) Stop(id string) {
	c.engine.Leave(id)
}

// Disconnect tears down the session. Unknown ids are ignored.
func (c *Controller) Disconnect(id string) {
	c.engine.Remove(id)
}

// Relay forwards payload from id to its partner.
func (c *Controller) Relay(id string, kind matching.Kind, to string, payload json.RawMessage) {
	err := c.gateway.Relay(id, to, kind, payload)
	switch {
	case err == nil:
		c.metrics.Relayed(kind)

	case errors.Is(err, matching.ErrUnknownClient):
		slog.Debug("relay ignored", "err", err)

	case errors.Is(err, matching.ErrInvalidRoute):
		c.metrics.RelayFailed(kind, "invalid_route")
		slog.Warn("relay rejected", "from", id, "to", to, "kind", kind)

	case errors.Is(err, matching.ErrPartnerGone):
		c.metrics.RelayFailed(kind, "partner_gone")
		slog.Info("relay target gone", "from", id, "to", to, "kind", kind)
		// Dissolving from the partner's side notifies the sender.
		if _, ok := c.engine.Dissolve(to); !ok {
			c.PartnerLost(id)
		}

	default:
		slog.Error("relay failed", "from", id, "to", to, "err", err)
	}
}

// Dispatch decodes one inbound frame and applies it. Malformed frames are
// logged and dropped.
func (c *Controller) Dispatch(id string, msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeJoin:
		var p protocol.JoinPayload
		if err := msg.Decode(&p); err != nil {
			slog.Warn("malformed join", "id", id, "err", err)
			return
		}
		c.Join(id, p.Interests)

	case protocol.TypeFindMatch:
		c.FindMatch(id)

	case protocol.TypeNextPartner:
		c.NextPartner(id)

	case protocol.TypeStop:
		c.Stop(id)

	case protocol.TypeSignal, protocol.TypeSendMessage:
		var p protocol.RoutedPayload
		if err := msg.Decode(&p); err != nil {
			slog.Warn("malformed relay", "id", id, "type", msg.Type, "err", err)
			return
		}
		kind := matching.KindSignal
		if msg.Type == protocol.TypeSendMessage {
			kind = matching.KindChat
		}
		c.Relay(id, kind, p.To, p.Payload)

	default:
		slog.Warn("unknown message type", "id", id, "type", msg.Type)
	}
}

// Matched implements matching.Notifier.
func (c *Controller) Matched(id, partnerID string) {
	slog.Info("partner found", "id", id, "partner", partnerID)
	c.out.Send(id, protocol.MustNew(protocol.TypePartnerFound, protocol.PartnerFoundPayload{PartnerID: partnerID}))
}

// Searching implements matching.Notifier.
func (c *Controller) Searching(id string) {
	c.out.Send(id, protocol.MustNew(protocol.TypeSearching, protocol.SearchingPayload{Message: protocol.SearchingText}))
}

// PartnerLost implements matching.Notifier.
func (c *Controller) PartnerLost(id string) {
	c.out.Send(id, protocol.MustNew(protocol.TypePartnerDisconnected, nil))
}

// Deliver implements matching.Sink.
func (c *Controller) Deliver(to string, env matching.Envelope) bool {
	msg := protocol.Signal(env.From, env.Payload)
	if env.Kind == matching.KindChat {
		msg = protocol.ReceiveMessage(env.From, env.Payload, env.Timestamp)
	}
	return c.out.Send(to, msg)
}
