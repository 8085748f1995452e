package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Rendezvous/internal/protocol"
)

// echoServer greets with a connected frame and then echoes every frame back.
func echoServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteJSON(protocol.MustNew(protocol.TypeConnected, protocol.ConnectedPayload{ID: "c1"}))
		for {
			var msg protocol.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if err := conn.WriteJSON(&msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func next(t *testing.T, c *Client) *protocol.Message {
	t.Helper()
	select {
	case msg, ok := <-c.Incoming():
		require.True(t, ok)
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no frame")
		return nil
	}
}

func TestClient_RoundTrip(t *testing.T) {
	c, err := Dial(context.Background(), echoServer(t))
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, protocol.TypeConnected, next(t, c).Type)

	require.NoError(t, c.Join([]string{"go", "chess"}))
	msg := next(t, c)
	assert.Equal(t, protocol.TypeJoin, msg.Type)
	var join protocol.JoinPayload
	require.NoError(t, msg.Decode(&join))
	assert.Equal(t, []string{"go", "chess"}, join.Interests)

	require.NoError(t, c.NextPartner())
	msg = next(t, c)
	assert.Equal(t, protocol.TypeNextPartner, msg.Type)
	assert.Empty(t, msg.Payload)

	require.NoError(t, c.SendChat("c2", "hello"))
	msg = next(t, c)
	var routed protocol.RoutedPayload
	require.NoError(t, msg.Decode(&routed))
	assert.Equal(t, "c2", routed.To)
	assert.JSONEq(t, `{"text":"hello"}`, string(routed.Payload))

	require.NoError(t, c.Signal("c2", map[string]string{"type": "answer"}))
	msg = next(t, c)
	require.NoError(t, msg.Decode(&routed))
	assert.JSONEq(t, `{"type":"answer"}`, string(routed.Payload))
}

func TestClient_SendAfterClose(t *testing.T) {
	c, err := Dial(context.Background(), echoServer(t))
	require.NoError(t, err)
	c.Close()
	c.Close()

	err = c.FindMatch()
	assert.ErrorIs(t, err, ErrClosed)

	// Incoming drains and closes.
	require.Eventually(t, func() bool {
		for {
			select {
			case _, ok := <-c.Incoming():
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClient_SendChatNeedsPartner(t *testing.T) {
	c, err := Dial(context.Background(), echoServer(t))
	require.NoError(t, err)
	defer c.Close()
	assert.ErrorIs(t, c.SendChat("", "anyone?"), ErrNotPaired)
}

func TestDial_Failure(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1/ws")
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "dial", e.Op)
}
