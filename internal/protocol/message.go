// Package protocol defines the JSON frames exchanged over the signaling
// websocket.
package protocol

import (
	"bytes"
	"encoding/json"
	"time"
)

// Message is the envelope for every C2S (client to server) and S2C (server
// to client) frame.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound intents (client to server).
const (
	TypeJoin        = "join"
	TypeFindMatch   = "findMatch"
	TypeNextPartner = "nextPartner"
	TypeStop        = "stop"
	TypeSignal      = "signal"
	TypeSendMessage = "sendMessage"
)

// Outbound notifications (server to client).
const (
	TypeConnected           = "connected"
	TypePartnerFound        = "partnerFound"
	TypeSearching           = "searching"
	TypeReceiveMessage      = "receiveMessage"
	TypePartnerDisconnected = "partnerDisconnected"
	TypeUserCount           = "userCount"
)

// SearchingText is the message carried by a searching notification.
const SearchingText = "Looking for a partner..."

type JoinPayload struct {
	Interests []string `json:"interests"`
}

// RoutedPayload is the body of signal and sendMessage intents. Payload is
// relayed to To without being parsed.
type RoutedPayload struct {
	To      string          `json:"to"`
	Payload json.RawMessage `json:"payload"`
}

type ConnectedPayload struct {
	ID string `json:"id"`
}

type PartnerFoundPayload struct {
	PartnerID string `json:"partnerId"`
}

type SearchingPayload struct {
	Message string `json:"message"`
}

type SignalPayload struct {
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

type ReceiveMessagePayload struct {
	From      string          `json:"from"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

type UserCountPayload struct {
	Count int `json:"count"`
}

// Signal builds a signal notification. payload is spliced into the frame
// exactly as the sender wrote it.
func Signal(from string, payload json.RawMessage) *Message {
	return relayed(TypeSignal, from, payload, nil)
}

// ReceiveMessage builds a chat notification stamped with at. payload is
// spliced into the frame exactly as the sender wrote it.
func ReceiveMessage(from string, payload json.RawMessage, at time.Time) *Message {
	return relayed(TypeReceiveMessage, from, payload, &at)
}

func relayed(t, from string, payload json.RawMessage, at *time.Time) *Message {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	var buf bytes.Buffer
	buf.WriteString(`{"from":`)
	buf.Write(quote(from))
	buf.WriteString(`,"payload":`)
	buf.Write(payload)
	if at != nil {
		buf.WriteString(`,"timestamp":`)
		buf.Write(quote(at.UTC().Format(time.RFC3339Nano)))
	}
	buf.WriteByte('}')
	return &Message{Type: t, Payload: buf.Bytes()}
}

// Encode renders the frame for the wire. Unlike json.Marshal it writes
// Payload untouched, so relayed bytes reach the partner unchanged.
func (m *Message) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(quote(m.Type))
	if len(m.Payload) > 0 {
		buf.WriteString(`,"payload":`)
		buf.Write(m.Payload)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

func quote(s string) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s) // strings always encode
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}

// New builds a message with payload encoded as JSON. A nil payload yields
// a frame without a payload field.
func New(t string, payload any) (*Message, error) {
	msg := &Message{Type: t}
	if payload == nil {
		return msg, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	msg.Payload = b
	return msg, nil
}

// MustNew is New for payloads that always encode.
func MustNew(t string, payload any) *Message {
	msg, err := New(t, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// Decode unmarshals the message payload into v. An empty payload leaves v
// untouched.
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
