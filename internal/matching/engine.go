package matching

import (
	"fmt"
	"time"
)

const (
	// DefaultMatchDelay is how long an enqueued client waits before its
	// match attempt runs.
	DefaultMatchDelay = 1 * time.Second

	// DefaultRematchDelay is how long both former partners wait before
	// being enqueued again after next-partner.
	DefaultRematchDelay = 500 * time.Millisecond
)

// Notifier receives engine notifications. Calls happen synchronously on
// the goroutine driving the engine.
type Notifier interface {
	// Matched tells id that it is now paired with partnerID.
	Matched(id, partnerID string)

	// Searching tells id that no partner was available yet.
	Searching(id string)

	// PartnerLost tells id that its partner left.
	PartnerLost(id string)
}

// Scheduler runs fn after d on the goroutine driving the engine. The
// returned func stops the timer if it has not fired yet.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) (cancel func())
}

// Options tunes the engine's deferred work.
type Options struct {
	MatchDelay   time.Duration
	RematchDelay time.Duration
}

// Stats is a point-in-time view of the engine.
type Stats struct {
	Connected int `json:"connected"`
	Waiting   int `json:"waiting"`
	Paired    int `json:"paired"`

	// Matches counts pairs formed since start.
	Matches uint64 `json:"matches"`
}

type task struct {
	gen    uint64
	cancel func()
}

// Engine owns the waiting pool and the active-pair map.
//
// Engine is not safe for concurrent use. All calls, including the
// callbacks handed to the Scheduler, must run on one goroutine.
type Engine struct {
	registry *Registry
	pool     *Pool
	pairs    map[string]string
	pending  map[string]task
	gen      uint64
	matches  uint64

	notify Notifier
	sched  Scheduler
	opts   Options
}

// NewEngine creates an engine over registry. Zero delays fall back to the
// defaults.
func NewEngine(registry *Registry, notify Notifier, sched Scheduler, opts Options) *Engine {
	if opts.MatchDelay <= 0 {
		opts.MatchDelay = DefaultMatchDelay
	}
	if opts.RematchDelay <= 0 {
		opts.RematchDelay = DefaultRematchDelay
	}
	return &Engine{
		registry: registry,
		pool:     NewPool(),
		pairs:    make(map[string]string),
		pending:  make(map[string]task),
		notify:   notify,
		sched:    sched,
		opts:     opts,
	}
}

// Registry returns the registry the engine matches over.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Enqueue puts id at the back of the waiting pool and schedules a match
// attempt. Paired or already waiting clients are left alone.
func (e *Engine) Enqueue(id string) error {
	s, ok := e.registry.Get(id)
	if !ok {
		return fmt.Errorf("enqueue %s: %w", id, ErrUnknownClient)
	}
	if _, paired := e.pairs[id]; paired {
		return nil
	}
	if !e.pool.Push(id) {
		return nil
	}

	s.State = StateWaiting
	e.schedule(id, e.opts.MatchDelay, func() { e.AttemptMatch(id) })
	return nil
}

// AttemptMatch pairs id with the earliest other waiting client. If id has
// already left the pool this is a no-op.
func (e *Engine) AttemptMatch(id string) {
	if !e.pool.Contains(id) {
		return
	}

	partnerID, ok := e.pool.FirstOther(id)
	if !ok {
		e.notify.Searching(id)
		return
	}

	e.pool.Remove(id)
	e.pool.Remove(partnerID)
	e.cancel(id)
	e.cancel(partnerID)

	e.pairs[id] = partnerID
	e.pairs[partnerID] = id
	e.matches++
	e.setPaired(id, partnerID)
	e.setPaired(partnerID, id)

	e.notify.Matched(id, partnerID)
	e.notify.Matched(partnerID, id)
}

// Dissolve splits id from its partner and notifies the partner. It
// returns the former partner, or false if id was not paired.
func (e *Engine) Dissolve(id string) (string, bool) {
	partnerID, ok := e.pairs[id]
	if !ok {
		return "", false
	}

	delete(e.pairs, id)
	delete(e.pairs, partnerID)
	e.setIdle(id)
	e.setIdle(partnerID)

	e.notify.PartnerLost(partnerID)
	return partnerID, true
}

// Rematch dissolves id's pair and, after the rematch delay, enqueues both
// former partners again. It reports whether id was paired.
func (e *Engine) Rematch(id string) bool {
	partnerID, ok := e.Dissolve(id)
	if !ok {
		return false
	}

	for _, who := range []string{id, partnerID} {
		e.schedule(who, e.opts.RematchDelay, func() {
			// The scheduled task already checked that who is registered.
			_ = e.Enqueue(who)
		})
	}
	return true
}

// Leave returns id to idle: its pair is dissolved, it leaves the pool and
// any pending deferred work for it is dropped.
func (e *Engine) Leave(id string) {
	e.cancel(id)
	if _, ok := e.Dissolve(id); ok {
		return
	}
	if e.pool.Remove(id) {
		e.setIdle(id)
	}
}

// Remove handles a disconnect: Leave followed by unregistering the
// session. Calling it for an unknown id is a no-op.
func (e *Engine) Remove(id string) bool {
	e.Leave(id)
	return e.registry.Unregister(id)
}

// PartnerOf returns id's current partner.
func (e *Engine) PartnerOf(id string) (string, bool) {
	p, ok := e.pairs[id]
	return p, ok
}

// Waiting reports whether id is in the pool.
func (e *Engine) Waiting(id string) bool {
	return e.pool.Contains(id)
}

// Queue returns the waiting pool in queue order.
func (e *Engine) Queue() []string {
	return e.pool.IDs()
}

// Stats returns current counts.
func (e *Engine) Stats() Stats {
	return Stats{
		Connected: e.registry.Count(),
		Waiting:   e.pool.Len(),
		Paired:    len(e.pairs),
		Matches:   e.matches,
	}
}

// CheckInvariants verifies pool/pair/registry consistency.
func (e *Engine) CheckInvariants() error {
	for a, b := range e.pairs {
		if a == b {
			return fmt.Errorf("%s is paired with itself", a)
		}
		if e.pairs[b] != a {
			return fmt.Errorf("pair %s->%s is not symmetric", a, b)
		}
		if e.pool.Contains(a) {
			return fmt.Errorf("%s is both paired and waiting", a)
		}
		s, ok := e.registry.Get(a)
		if !ok {
			return fmt.Errorf("paired client %s is not registered", a)
		}
		if s.State != StatePaired || s.PartnerID != b {
			return fmt.Errorf("session %s is %s with partner %q, want paired with %s", a, s.State, s.PartnerID, b)
		}
	}

	seen := make(map[string]struct{}, e.pool.Len())
	for _, id := range e.pool.IDs() {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%s appears twice in the pool", id)
		}
		seen[id] = struct{}{}
		s, ok := e.registry.Get(id)
		if !ok {
			return fmt.Errorf("waiting client %s is not registered", id)
		}
		if s.State != StateWaiting {
			return fmt.Errorf("waiting client %s has state %s", id, s.State)
		}
	}

	for id, s := range e.registry.sessions {
		if s.State == StatePaired {
			if _, ok := e.pairs[id]; !ok {
				return fmt.Errorf("session %s claims a partner the engine does not know", id)
			}
		}
		if s.State == StateWaiting && !e.pool.Contains(id) {
			return fmt.Errorf("session %s claims to wait but is not in the pool", id)
		}
	}
	return nil
}

// schedule replaces id's pending task. The generation check makes a timer
// that already fired, but was superseded or cancelled, a no-op.
func (e *Engine) schedule(id string, d time.Duration, fn func()) {
	e.cancel(id)

	e.gen++
	gen := e.gen
	cancel := e.sched.Schedule(d, func() {
		t, ok := e.pending[id]
		if !ok || t.gen != gen {
			return
		}
		delete(e.pending, id)
		if !e.registry.Exists(id) {
			return
		}
		fn()
	})
	e.pending[id] = task{gen: gen, cancel: cancel}
}

func (e *Engine) cancel(id string) {
	t, ok := e.pending[id]
	if !ok {
		return
	}
	delete(e.pending, id)
	if t.cancel != nil {
		t.cancel()
	}
}

func (e *Engine) setPaired(id, partnerID string) {
	if s, ok := e.registry.Get(id); ok {
		s.State = StatePaired
		s.PartnerID = partnerID
	}
}

func (e *Engine) setIdle(id string) {
	if s, ok := e.registry.Get(id); ok {
		s.State = StateIdle
		s.PartnerID = ""
	}
}
