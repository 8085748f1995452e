package signaling

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Rendezvous/internal/matching"
	"github.com/BioHazard786/Rendezvous/internal/metrics"
	"github.com/BioHazard786/Rendezvous/internal/protocol"
)

type sent struct {
	to  string
	msg *protocol.Message
}

type fakeOutbox struct {
	sent   []sent
	refuse map[string]bool
}

func (o *fakeOutbox) Send(id string, msg *protocol.Message) bool {
	if o.refuse[id] {
		return false
	}
	o.sent = append(o.sent, sent{to: id, msg: msg})
	return true
}

func (o *fakeOutbox) take() []sent {
	out := o.sent
	o.sent = nil
	return out
}

func (o *fakeOutbox) types(id string) []string {
	var out []string
	for _, s := range o.sent {
		if s.to == id {
			out = append(out, s.msg.Type)
		}
	}
	return out
}

// queueScheduler holds deferred work until the test flushes it.
type queueScheduler struct {
	fns []*func()
}

func (q *queueScheduler) Schedule(_ time.Duration, fn func()) func() {
	p := &fn
	q.fns = append(q.fns, p)
	return func() { *p = nil }
}

func (q *queueScheduler) flush() {
	for len(q.fns) > 0 {
		p := q.fns[0]
		q.fns = q.fns[1:]
		if *p != nil {
			(*p)()
		}
	}
}

func newController() (*Controller, *fakeOutbox, *queueScheduler) {
	out := &fakeOutbox{}
	sched := &queueScheduler{}
	c := NewController(out, sched, matching.Options{}, metrics.New("test"))
	return c, out, sched
}

func connect(c *Controller) string {
	return c.Connect(func(string) {})
}

func decode[T any](t *testing.T, msg *protocol.Message) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(msg.Payload, &v))
	return v
}

func TestController_ConnectAnnouncesID(t *testing.T) {
	c, out, _ := newController()
	var bound string
	id := c.Connect(func(id string) { bound = id })

	assert.Equal(t, id, bound)
	msgs := out.take()
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.TypeConnected, msgs[0].msg.Type)
	assert.Equal(t, id, decode[protocol.ConnectedPayload](t, msgs[0].msg).ID)
}

func TestController_JoinStoresInterestsAndSearches(t *testing.T) {
	c, out, sched := newController()
	a := connect(c)
	out.take()

	c.Dispatch(a, protocol.MustNew(protocol.TypeJoin, protocol.JoinPayload{Interests: []string{"music"}}))
	s, ok := c.registry.Get(a)
	require.True(t, ok)
	assert.Equal(t, []string{"music"}, s.Interests)
	assert.Equal(t, matching.StateWaiting, s.State)

	sched.flush()
	msgs := out.take()
	require.Len(t, msgs, 1)
	assert.Equal(t, protocol.TypeSearching, msgs[0].msg.Type)
	assert.Equal(t, protocol.SearchingText, decode[protocol.SearchingPayload](t, msgs[0].msg).Message)
}

func TestController_TwoJoinsArePaired(t *testing.T) {
	c, out, sched := newController()
	a := connect(c)
	b := connect(c)
	out.take()

	c.Dispatch(a, protocol.MustNew(protocol.TypeJoin, protocol.JoinPayload{}))
	c.Dispatch(b, &protocol.Message{Type: protocol.TypeFindMatch})
	sched.flush()

	msgs := out.take()
	require.Len(t, msgs, 2)
	got := map[string]string{}
	for _, m := range msgs {
		require.Equal(t, protocol.TypePartnerFound, m.msg.Type)
		got[m.to] = decode[protocol.PartnerFoundPayload](t, m.msg).PartnerID
	}
	assert.Equal(t, map[string]string{a: b, b: a}, got)
	require.NoError(t, c.Engine().CheckInvariants())
}

func TestController_RelaySignalAndChat(t *testing.T) {
	c, out, sched := newController()
	a, b := pairUp(t, c, out, sched)

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	c.Dispatch(a, protocol.MustNew(protocol.TypeSignal, protocol.RoutedPayload{To: b, Payload: offer}))
	c.Dispatch(b, protocol.MustNew(protocol.TypeSendMessage, protocol.RoutedPayload{To: a, Payload: json.RawMessage(`"hi"`)}))

	msgs := out.take()
	require.Len(t, msgs, 2)

	assert.Equal(t, b, msgs[0].to)
	assert.Equal(t, protocol.TypeSignal, msgs[0].msg.Type)
	sig := decode[protocol.SignalPayload](t, msgs[0].msg)
	assert.Equal(t, a, sig.From)
	assert.JSONEq(t, string(offer), string(sig.Payload))

	assert.Equal(t, a, msgs[1].to)
	assert.Equal(t, protocol.TypeReceiveMessage, msgs[1].msg.Type)
	chat := decode[protocol.ReceiveMessagePayload](t, msgs[1].msg)
	assert.Equal(t, b, chat.From)
	assert.JSONEq(t, `"hi"`, string(chat.Payload))
	assert.False(t, chat.Timestamp.IsZero())
}

func TestController_RelayToStrangerIsDropped(t *testing.T) {
	c, out, sched := newController()
	a, b := pairUp(t, c, out, sched)
	stranger := connect(c)
	out.take()

	c.Dispatch(a, protocol.MustNew(protocol.TypeSignal, protocol.RoutedPayload{To: stranger, Payload: json.RawMessage(`{}`)}))
	assert.Empty(t, out.take(), "nothing reaches the stranger, the partner or the sender")

	p, ok := c.Engine().PartnerOf(a)
	require.True(t, ok)
	assert.Equal(t, b, p, "a rejected relay leaves the pair intact")
}

func TestController_RelayToStalledPartner(t *testing.T) {
	c, out, sched := newController()
	a, b := pairUp(t, c, out, sched)
	out.refuse = map[string]bool{b: true}

	c.Dispatch(a, protocol.MustNew(protocol.TypeSendMessage, protocol.RoutedPayload{To: b, Payload: json.RawMessage(`"hello?"`)}))

	assert.Equal(t, []string{protocol.TypePartnerDisconnected}, out.types(a))
	_, ok := c.Engine().PartnerOf(a)
	assert.False(t, ok)
	require.NoError(t, c.Engine().CheckInvariants())
}

func TestController_DisconnectNotifiesPartner(t *testing.T) {
	c, out, sched := newController()
	a, b := pairUp(t, c, out, sched)

	c.Disconnect(a)
	assert.Equal(t, []string{protocol.TypePartnerDisconnected}, out.types(b))
	assert.False(t, c.registry.Exists(a))
	_, ok := c.Engine().PartnerOf(b)
	assert.False(t, ok)

	c.Disconnect(a)
	out.take()
	sched.flush()
	assert.Empty(t, out.take(), "partner is not requeued automatically")
}

func TestController_NextPartner(t *testing.T) {
	c, out, sched := newController()
	a, b := pairUp(t, c, out, sched)
	third := connect(c)
	c.FindMatch(third)
	sched.flush()
	out.take()

	c.Dispatch(a, &protocol.Message{Type: protocol.TypeNextPartner})
	assert.Equal(t, []string{protocol.TypePartnerDisconnected}, out.types(b))
	out.take()

	sched.flush()
	p, ok := c.Engine().PartnerOf(a)
	require.True(t, ok)
	assert.Equal(t, third, p)
	assert.Equal(t, []string{protocol.TypeSearching}, out.types(b))
	require.NoError(t, c.Engine().CheckInvariants())
}

func TestController_StopReturnsToIdle(t *testing.T) {
	c, out, sched := newController()
	a, b := pairUp(t, c, out, sched)

	c.Dispatch(a, &protocol.Message{Type: protocol.TypeStop})
	assert.Equal(t, []string{protocol.TypePartnerDisconnected}, out.types(b))
	for _, id := range []string{a, b} {
		s, _ := c.registry.Get(id)
		assert.Equal(t, matching.StateIdle, s.State)
	}
}

func TestController_MalformedAndUnknownFrames(t *testing.T) {
	c, out, _ := newController()
	a := connect(c)
	out.take()

	c.Dispatch(a, &protocol.Message{Type: protocol.TypeJoin, Payload: json.RawMessage(`{"interests": 5}`)})
	c.Dispatch(a, &protocol.Message{Type: protocol.TypeSignal, Payload: json.RawMessage(`[]`)})
	c.Dispatch(a, &protocol.Message{Type: "teleport"})
	c.Dispatch("ghost", &protocol.Message{Type: protocol.TypeFindMatch})

	assert.Empty(t, out.take())
	assert.False(t, c.Engine().Waiting(a))
}

func pairUp(t *testing.T, c *Controller, out *fakeOutbox, sched *queueScheduler) (string, string) {
	t.Helper()
	a := connect(c)
	b := connect(c)
	c.FindMatch(a)
	c.FindMatch(b)
	sched.flush()
	out.take()

	p, ok := c.Engine().PartnerOf(a)
	require.True(t, ok)
	require.Equal(t, b, p)
	return a, b
}
