package signaling

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Rendezvous/internal/matching"
	"github.com/BioHazard786/Rendezvous/internal/metrics"
	"github.com/BioHazard786/Rendezvous/internal/protocol"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(matching.Options{
		MatchDelay:   10 * time.Millisecond,
		RematchDelay: 10 * time.Millisecond,
	}, metrics.New("test"))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return h
}

// join registers a connection-less client and returns it with its id.
func join(t *testing.T, h *Hub) (*Client, string) {
	t.Helper()
	c := NewClient(h, nil)
	require.True(t, h.Register(c))
	msg := expect(t, c, protocol.TypeConnected)
	return c, decode[protocol.ConnectedPayload](t, msg).ID
}

func expect(t *testing.T, c *Client, typ string) *protocol.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-c.Send:
			require.True(t, ok, "send channel closed while waiting for %s", typ)
			if msg.Type == typ {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
			return nil
		}
	}
}

func send(t *testing.T, h *Hub, c *Client, typ string, payload any) {
	t.Helper()
	msg := protocol.MustNew(typ, payload)
	require.True(t, h.submit(&Inbound{Message: *msg, client: c}))
}

func TestHub_PairsTwoClientsAndRelays(t *testing.T) {
	h := startHub(t)
	a, aID := join(t, h)
	b, bID := join(t, h)

	send(t, h, a, protocol.TypeJoin, protocol.JoinPayload{Interests: []string{"chess"}})
	expect(t, a, protocol.TypeSearching)
	send(t, h, b, protocol.TypeJoin, protocol.JoinPayload{})

	found := expect(t, a, protocol.TypePartnerFound)
	assert.Equal(t, bID, decode[protocol.PartnerFoundPayload](t, found).PartnerID)
	found = expect(t, b, protocol.TypePartnerFound)
	assert.Equal(t, aID, decode[protocol.PartnerFoundPayload](t, found).PartnerID)

	send(t, h, a, protocol.TypeSignal, protocol.RoutedPayload{To: bID, Payload: json.RawMessage(`{"candidate":"x"}`)})
	sig := decode[protocol.SignalPayload](t, expect(t, b, protocol.TypeSignal))
	assert.Equal(t, aID, sig.From)
	assert.JSONEq(t, `{"candidate":"x"}`, string(sig.Payload))

	require.Eventually(t, func() bool {
		s := h.Stats()
		return s.Connected == 2 && s.Paired == 2 && s.Waiting == 0 && s.Matches == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHub_DisconnectNotifiesPartner(t *testing.T) {
	h := startHub(t)
	a, _ := join(t, h)
	b, _ := join(t, h)
	send(t, h, a, protocol.TypeFindMatch, nil)
	send(t, h, b, protocol.TypeFindMatch, nil)
	expect(t, a, protocol.TypePartnerFound)
	expect(t, b, protocol.TypePartnerFound)

	h.Unregister(a)
	expect(t, b, protocol.TypePartnerDisconnected)

	// a's send channel is closed once it is unregistered.
	require.Eventually(t, func() bool {
		for {
			select {
			case _, ok := <-a.Send:
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		s := h.Stats()
		return s.Connected == 1 && s.Paired == 0
	}, time.Second, 5*time.Millisecond)

	// Unregistering twice is harmless.
	h.Unregister(a)
}

func TestHub_NextPartnerPrefersWaitingClient(t *testing.T) {
	h := startHub(t)
	a, aID := join(t, h)
	b, bID := join(t, h)
	c, _ := join(t, h)

	send(t, h, a, protocol.TypeFindMatch, nil)
	send(t, h, b, protocol.TypeFindMatch, nil)
	expect(t, a, protocol.TypePartnerFound)
	expect(t, b, protocol.TypePartnerFound)

	send(t, h, c, protocol.TypeFindMatch, nil)
	expect(t, c, protocol.TypeSearching)

	send(t, h, a, protocol.TypeNextPartner, nil)
	expect(t, b, protocol.TypePartnerDisconnected)

	// Both former partners are queued behind c, so whichever attempt runs
	// first takes c and the other keeps searching.
	found := decode[protocol.PartnerFoundPayload](t, expect(t, c, protocol.TypePartnerFound)).PartnerID
	require.Contains(t, []string{aID, bID}, found)
	left := b
	if found == bID {
		left = a
	}
	expect(t, left, protocol.TypeSearching)
}

func TestHub_PublishesPresence(t *testing.T) {
	h := startHub(t)
	a, _ := join(t, h)
	require.NotNil(t, a.presence)
	join(t, h)

	require.Eventually(t, func() bool {
		select {
		case n := <-a.presence.C():
			return n == 2
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestHub_StalledClientIsEvicted(t *testing.T) {
	h := startHub(t)
	a, _ := join(t, h)
	b, bID := join(t, h)
	send(t, h, a, protocol.TypeFindMatch, nil)
	send(t, h, b, protocol.TypeFindMatch, nil)
	expect(t, a, protocol.TypePartnerFound)
	expect(t, b, protocol.TypePartnerFound)

	// b never drains its buffer.
	for i := 0; i < sendBuffer+1; i++ {
		send(t, h, a, protocol.TypeSendMessage, protocol.RoutedPayload{To: bID, Payload: json.RawMessage(`"spam"`)})
	}

	expect(t, a, protocol.TypePartnerDisconnected)
	require.Eventually(t, func() bool {
		s := h.Stats()
		return s.Connected == 1 && s.Paired == 0
	}, time.Second, 5*time.Millisecond)
}

func TestHub_RegisterAfterStop(t *testing.T) {
	h := NewHub(matching.Options{}, metrics.New("test"))
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	c := NewClient(h, nil)
	assert.False(t, h.Register(c))
	assert.Nil(t, c.presence, "a refused client never subscribes to presence")
}
