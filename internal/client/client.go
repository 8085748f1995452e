// Package client speaks the rendezvous websocket protocol from the chat
// side.
package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/Rendezvous/internal/netutil"
	"github.com/BioHazard786/Rendezvous/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Client manages the WebSocket connection to the rendezvous server.
type Client struct {
	conn     *websocket.Conn
	incoming chan *protocol.Message
	outgoing chan *protocol.Message
	done     chan struct{}
	once     sync.Once
}

// Dial connects to the websocket endpoint at url. Host names go through
// the fallback resolver.
func Dial(ctx context.Context, url string) (*Client, error) {
	dialer := *websocket.DefaultDialer
	dialer.NetDialContext = netutil.NewResolver().DialContext

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, newError("dial", err)
	}
	return newClient(conn), nil
}

func newClient(conn *websocket.Conn) *Client {
	c := &Client{
		conn:     conn,
		incoming: make(chan *protocol.Message, 16),
		outgoing: make(chan *protocol.Message, 16),
		done:     make(chan struct{}),
	}

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()
	return c
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var msg protocol.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		select {
		case c.incoming <- &msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues msg for the server.
func (c *Client) Send(msg *protocol.Message) error {
	select {
	case <-c.done:
		return newError("send "+msg.Type, ErrClosed)
	default:
	}

	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return newError("send "+msg.Type, ErrClosed)
	}
}

func (c *Client) send(typ string, payload any) error {
	msg, err := protocol.New(typ, payload)
	if err != nil {
		return newError("encode "+typ, err)
	}
	return c.Send(msg)
}

// Join announces interests and asks for a partner.
func (c *Client) Join(interests []string) error {
	return c.send(protocol.TypeJoin, protocol.JoinPayload{Interests: interests})
}

// FindMatch asks for a partner without touching interests.
func (c *Client) FindMatch() error {
	return c.send(protocol.TypeFindMatch, nil)
}

// NextPartner leaves the current partner and searches again.
func (c *Client) NextPartner() error {
	return c.send(protocol.TypeNextPartner, nil)
}

// Stop leaves the current partner or the queue.
func (c *Client) Stop() error {
	return c.send(protocol.TypeStop, nil)
}

// Signal relays an opaque signaling payload to the partner.
func (c *Client) Signal(to string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return newError("encode signal", err)
	}
	return c.send(protocol.TypeSignal, protocol.RoutedPayload{To: to, Payload: raw})
}

// SendChat relays a chat line to the partner through the server.
func (c *Client) SendChat(to, text string) error {
	if to == "" {
		return newError("send chat", ErrNotPaired)
	}
	raw, err := json.Marshal(ChatPayload{Text: text})
	if err != nil {
		return newError("encode chat", err)
	}
	return c.send(protocol.TypeSendMessage, protocol.RoutedPayload{To: to, Payload: raw})
}

// Incoming returns the channel for receiving messages. It is closed when the
// connection ends.
func (c *Client) Incoming() <-chan *protocol.Message {
	return c.incoming
}

// Close closes the WebSocket connection. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}
