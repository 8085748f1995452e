// Package presence fans the connected-client count out to subscribers
// without ever blocking the publisher.
package presence

import (
	"sync"
)

// Subscription receives the latest published count. Stale values are
// dropped in favour of newer ones.
type Subscription struct {
	c chan int
}

// C returns the channel carrying counts.
func (s *Subscription) C() <-chan int {
	return s.c
}

// Broadcaster coalesces published counts and delivers the newest one to
// every subscriber.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	latest chan int
	done   chan struct{}
	once   sync.Once
}

// New creates a broadcaster. Run must be started for counts to flow.
func New() *Broadcaster {
	return &Broadcaster{
		subs:   make(map[*Subscription]struct{}),
		latest: make(chan int, 1),
		done:   make(chan struct{}),
	}
}

// Subscribe registers a new subscriber.
func (b *Broadcaster) Subscribe() *Subscription {
	s := &Subscription{c: make(chan int, 1)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Unsubscribe stops deliveries to s. The channel is not closed.
func (b *Broadcaster) Unsubscribe(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// Publish records count as the newest value. It never blocks.
func (b *Broadcaster) Publish(count int) {
	offer(b.latest, count)
}

// Run delivers published counts until Close is called.
func (b *Broadcaster) Run() {
	for {
		select {
		case <-b.done:
			return
		case count := <-b.latest:
			b.mu.RLock()
			for s := range b.subs {
				offer(s.c, count)
			}
			b.mu.RUnlock()
		}
	}
}

// Close stops Run.
func (b *Broadcaster) Close() {
	b.once.Do(func() { close(b.done) })
}

// offer puts v into a one-slot channel, replacing whatever was there.
func offer(ch chan int, v int) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
