package signaling

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/BioHazard786/Rendezvous/internal/matching"
	"github.com/BioHazard786/Rendezvous/internal/metrics"
	"github.com/BioHazard786/Rendezvous/internal/presence"
	"github.com/BioHazard786/Rendezvous/internal/protocol"
)

// Hub is the central brain of the signaling server. Its Run loop is the
// single goroutine that owns the registry, the pairing engine and the relay
// gateway, and it applies every intent and deferred task one at a time.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	inbound    chan *Inbound
	deferred   chan func()
	done       chan struct{}

	// clients maps session ids to connections. Only Run touches it.
	clients map[string]*Client
	evict   []*Client

	controller *Controller
	presence   *presence.Broadcaster
	metrics    *metrics.Metrics

	stats     atomic.Pointer[matching.Stats]
	lastCount int
}

// NewHub creates a new Hub instance.
func NewHub(opts matching.Options, m *metrics.Metrics) *Hub {
	h := &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan *Inbound),
		deferred:   make(chan func(), 64),
		done:       make(chan struct{}),
		clients:    make(map[string]*Client),
		presence:   presence.New(),
		metrics:    m,
		lastCount:  -1,
	}
	h.controller = NewController(h, h, opts, m)
	h.stats.Store(&matching.Stats{})
	return h
}

// Stats returns the most recent snapshot published by Run. It never
// blocks on the hub loop and may be slightly stale.
func (h *Hub) Stats() matching.Stats {
	return *h.stats.Load()
}

// Register hands a new connection to the hub. It returns false if the hub
// has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister tells the hub that c's connection is gone. Safe to call more
// than once.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) submit(in *Inbound) bool {
	select {
	case h.inbound <- in:
		return true
	case <-h.done:
		return false
	}
}

// Schedule implements matching.Scheduler. The timer posts fn back onto
// the Run loop so that it executes alongside every other mutation.
func (h *Hub) Schedule(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, func() {
		select {
		case h.deferred <- fn:
		case <-h.done:
		}
	})
	return func() { t.Stop() }
}

// Run starts the hub's main processing loop. It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	go h.presence.Run()
	defer h.presence.Close()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.drop(client)

		case in := <-h.inbound:
			if h.clients[in.client.ID] != in.client {
				// Sender was already unregistered or evicted.
				continue
			}
			h.controller.Dispatch(in.client.ID, &in.Message)

		case fn := <-h.deferred:
			fn()
		}

		h.flushEvictions()
		h.publish()
	}
}

// Send implements Outbox. It never blocks: a client whose buffer is full
// is marked for eviction once the current event has been applied.
func (h *Hub) Send(id string, msg *protocol.Message) bool {
	client, ok := h.clients[id]
	if !ok || client.evicted {
		return false
	}

	select {
	case client.Send <- msg:
		return true
	default:
		slog.Warn("client send buffer full, evicting", "id", id)
		client.evicted = true
		h.evict = append(h.evict, client)
		return false
	}
}

func (h *Hub) handleRegister(client *Client) {
	id := h.controller.Connect(func(id string) {
		client.ID = id
		client.presence = h.presence.Subscribe()
		h.clients[id] = client
	})
	slog.Info("client registered", "id", id, "connected", len(h.clients))
}

// drop removes client from the hub and closes its send channel to stop its
// WritePump. Unknown or already dropped clients are ignored.
func (h *Hub) drop(client *Client) {
	if client.ID == "" || h.clients[client.ID] != client {
		return
	}

	delete(h.clients, client.ID)
	h.controller.Disconnect(client.ID)
	if client.presence != nil {
		h.presence.Unsubscribe(client.presence)
	}
	close(client.Send)
	h.metrics.Disconnected()

	slog.Info("client unregistered", "id", client.ID, "connected", len(h.clients))
}

func (h *Hub) flushEvictions() {
	for len(h.evict) > 0 {
		client := h.evict[0]
		h.evict = h.evict[1:]
		h.drop(client)
	}
}

// publish refreshes the stats snapshot and metrics, and announces the
// connected count when it changes. None of this feeds back into matching.
func (h *Hub) publish() {
	s := h.controller.Stats()
	h.stats.Store(&s)
	h.metrics.Observe(s)

	if s.Connected != h.lastCount {
		h.lastCount = s.Connected
		h.presence.Publish(s.Connected)
	}
}

func (h *Hub) shutdown() {
	for id, client := range h.clients {
		h.controller.Disconnect(id)
		close(client.Send)
		delete(h.clients, id)
	}
	h.evict = nil
	slog.Info("hub stopped")
}
