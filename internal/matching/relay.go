package matching

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind tags a relayed payload.
type Kind string

const (
	KindSignal Kind = "signal"
	KindChat   Kind = "chat"
)

// Envelope is a relayed payload as handed to the recipient's sink.
type Envelope struct {
	From      string
	Kind      Kind
	Payload   json.RawMessage
	Timestamp time.Time
}

// Sink delivers an envelope to a connected client's outbound channel. It
// returns false if the client can no longer receive.
type Sink interface {
	Deliver(to string, env Envelope) bool
}

// Gateway relays opaque payloads between the two sides of a pair. It never
// inspects the payload.
type Gateway struct {
	engine *Engine
	sink   Sink
	now    func() time.Time
}

// NewGateway creates a gateway that checks routes against engine.
func NewGateway(engine *Engine, sink Sink) *Gateway {
	return &Gateway{engine: engine, sink: sink, now: time.Now}
}

// Relay delivers payload from one client to its partner. to must be the
// sender's current partner.
func (g *Gateway) Relay(from, to string, kind Kind, payload json.RawMessage) error {
	if !g.engine.Registry().Exists(from) {
		return fmt.Errorf("relay %s from %s: %w", kind, from, ErrUnknownClient)
	}

	partnerID, ok := g.engine.PartnerOf(from)
	if !ok || partnerID != to {
		return fmt.Errorf("relay %s from %s to %s: %w", kind, from, to, ErrInvalidRoute)
	}

	if !g.engine.Registry().Exists(to) {
		return fmt.Errorf("relay %s from %s to %s: %w", kind, from, to, ErrPartnerGone)
	}

	env := Envelope{
		From:      from,
		Kind:      kind,
		Payload:   payload,
		Timestamp: g.now(),
	}
	if !g.sink.Deliver(to, env) {
		return fmt.Errorf("relay %s from %s to %s: %w", kind, from, to, ErrPartnerGone)
	}
	return nil
}
