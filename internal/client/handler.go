package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BioHazard786/Rendezvous/internal/protocol"
)

// ChatPayload is the body this client puts in sendMessage frames.
type ChatPayload struct {
	Text string `json:"text"`
}

// Event is a decoded server notification.
type Event interface{ event() }

type (
	Connected    struct{ ID string }
	PartnerFound struct{ PartnerID string }
	Searching    struct{ Message string }
	Signal       struct {
		From    string
		Payload json.RawMessage
	}
	ChatMessage struct {
		From      string
		Text      string
		Timestamp time.Time
	}
	PartnerDisconnected struct{}
	UserCount           struct{ Count int }

	// Disconnected is the last event, sent when the connection ends.
	Disconnected struct{}
)

func (Connected) event()           {}
func (PartnerFound) event()        {}
func (Searching) event()           {}
func (Signal) event()              {}
func (ChatMessage) event()         {}
func (PartnerDisconnected) event() {}
func (UserCount) event()           {}
func (Disconnected) event()        {}

// Source yields raw frames. *Client is a Source.
type Source interface {
	Incoming() <-chan *protocol.Message
}

// Handler decodes frames from a Source into Events.
type Handler struct {
	src    Source
	events chan Event
}

// NewHandler creates a new message handler.
func NewHandler(src Source) *Handler {
	return &Handler{
		src:    src,
		events: make(chan Event, 32),
	}
}

// Events returns the decoded stream. It is closed after Disconnected.
func (h *Handler) Events() <-chan Event {
	return h.events
}

// Run routes frames until the source closes or ctx ends.
func (h *Handler) Run(ctx context.Context) {
	defer close(h.events)

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-h.src.Incoming():
			if !ok {
				h.emit(ctx, Disconnected{})
				return
			}
			ev, err := Decode(msg)
			if err != nil {
				slog.Warn("dropping malformed frame", "type", msg.Type, "err", err)
				continue
			}
			if ev == nil {
				slog.Debug("ignoring frame", "type", msg.Type)
				continue
			}
			h.emit(ctx, ev)
		}
	}
}

func (h *Handler) emit(ctx context.Context, ev Event) {
	select {
	case h.events <- ev:
	case <-ctx.Done():
	}
}

// Decode turns one frame into an Event. Unknown types yield nil.
func Decode(msg *protocol.Message) (Event, error) {
	switch msg.Type {
	case protocol.TypeConnected:
		var p protocol.ConnectedPayload
		if err := msg.Decode(&p); err != nil {
			return nil, newError("decode connected", err)
		}
		return Connected{ID: p.ID}, nil

	case protocol.TypePartnerFound:
		var p protocol.PartnerFoundPayload
		if err := msg.Decode(&p); err != nil {
			return nil, newError("decode partnerFound", err)
		}
		return PartnerFound{PartnerID: p.PartnerID}, nil

	case protocol.TypeSearching:
		var p protocol.SearchingPayload
		if err := msg.Decode(&p); err != nil {
			return nil, newError("decode searching", err)
		}
		return Searching{Message: p.Message}, nil

	case protocol.TypeSignal:
		var p protocol.SignalPayload
		if err := msg.Decode(&p); err != nil {
			return nil, newError("decode signal", err)
		}
		return Signal{From: p.From, Payload: p.Payload}, nil

	case protocol.TypeReceiveMessage:
		var p protocol.ReceiveMessagePayload
		if err := msg.Decode(&p); err != nil {
			return nil, newError("decode receiveMessage", err)
		}
		return ChatMessage{From: p.From, Text: chatText(p.Payload), Timestamp: p.Timestamp}, nil

	case protocol.TypePartnerDisconnected:
		return PartnerDisconnected{}, nil

	case protocol.TypeUserCount:
		var p protocol.UserCountPayload
		if err := msg.Decode(&p); err != nil {
			return nil, newError("decode userCount", err)
		}
		return UserCount{Count: p.Count}, nil
	}
	return nil, nil
}

// chatText reads {"text": ...}, a bare JSON string, or falls back to the
// raw JSON so other clients' payloads still show up.
func chatText(raw json.RawMessage) string {
	var p ChatPayload
	if err := json.Unmarshal(raw, &p); err == nil && p.Text != "" {
		return p.Text
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
