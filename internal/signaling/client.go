package signaling

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/Rendezvous/internal/presence"
	"github.com/BioHazard786/Rendezvous/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024 // 64 KB - enough for WebRTC SDP messages

	// Outbound frames buffered per client before it counts as stalled.
	sendBuffer = 256
)

// Client is a wrapper for a single websocket connection.
type Client struct {
	// Hub is the hub that manages this client.
	Hub *Hub

	// Conn is the websocket connection.
	Conn *websocket.Conn

	// ID is assigned by the hub on registration. Only the hub goroutine
	// reads or writes it.
	ID string

	// Send is a buffered channel for all outbound messages. The hub writes
	// to it and closes it; WritePump drains it to the websocket.
	Send chan *protocol.Message

	// presence delivers connected-count updates outside the hub loop. The
	// hub sets it before queueing the connected frame.
	presence *presence.Subscription

	evicted bool
}

// NewClient creates a client for conn. The caller registers it with the
// hub and starts the pumps.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		Hub:  hub,
		Conn: conn,
		Send: make(chan *protocol.Message, sendBuffer),
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine, which also keeps intents from one client in order.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg protocol.Message
		err := c.Conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read failed", "remote", c.Conn.RemoteAddr().String(), "err", err)
			}
			return
		}

		if !c.Hub.submit(&Inbound{Message: msg, client: c}) {
			return
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	// The hub queues connected first, and only then is presence set. Waiting
	// for it here keeps userCount from overtaking it.
	message, ok := <-c.Send
	if !c.write(message, ok) {
		return
	}

	for {
		select {
		case message, ok := <-c.Send:
			if !c.write(message, ok) {
				return
			}

		case count := <-c.presence.C():
			msg := protocol.MustNew(protocol.TypeUserCount, protocol.UserCountPayload{Count: count})
			if !c.write(msg, true) {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// write sends one frame. ok is false once the hub has closed Send, in which
// case a close frame goes out instead.
func (c *Client) write(message *protocol.Message, ok bool) bool {
	c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	if !ok {
		// The hub closed the channel.
		c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
		return false
	}

	if err := c.Conn.WriteMessage(websocket.TextMessage, message.Encode()); err != nil {
		slog.Debug("websocket write failed", "remote", c.Conn.RemoteAddr().String(), "err", err)
		return false
	}
	return true
}
