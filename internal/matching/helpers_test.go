package matching

import (
	"fmt"
	"sort"
	"time"
)

type event struct {
	kind    string
	id      string
	partner string
}

type recorder struct {
	events []event
}

func (r *recorder) Matched(id, partnerID string) {
	r.events = append(r.events, event{kind: "matched", id: id, partner: partnerID})
}

func (r *recorder) Searching(id string) {
	r.events = append(r.events, event{kind: "searching", id: id})
}

func (r *recorder) PartnerLost(id string) {
	r.events = append(r.events, event{kind: "lost", id: id})
}

func (r *recorder) take() []event {
	out := r.events
	r.events = nil
	return out
}

type timer struct {
	at      time.Duration
	fn      func()
	stopped bool
	fired   bool
}

// manualClock is a Scheduler whose timers only fire when the test
// advances it.
type manualClock struct {
	now    time.Duration
	timers []*timer
}

func (c *manualClock) Schedule(d time.Duration, fn func()) func() {
	t := &timer{at: c.now + d, fn: fn}
	c.timers = append(c.timers, t)
	return func() { t.stopped = true }
}

// Advance fires every due timer in deadline order.
func (c *manualClock) Advance(d time.Duration) {
	c.now += d
	for {
		due := c.due()
		if len(due) == 0 {
			return
		}
		t := due[0]
		t.fired = true
		t.fn()
	}
}

// FireStale runs the callbacks of stopped timers, as if a timer fired
// just before it was cancelled.
func (c *manualClock) FireStale() {
	for _, t := range c.timers {
		if t.stopped && !t.fired {
			t.fired = true
			t.fn()
		}
	}
}

func (c *manualClock) live() int {
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (c *manualClock) due() []*timer {
	var out []*timer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].at < out[j].at })
	return out
}

type fixture struct {
	registry *Registry
	engine   *Engine
	rec      *recorder
	clock    *manualClock
}

func newFixture() *fixture {
	reg := NewRegistry()
	n := 0
	reg.newID = func() string {
		n++
		return fmt.Sprintf("c%d", n)
	}
	rec := &recorder{}
	clock := &manualClock{}
	eng := NewEngine(reg, rec, clock, Options{
		MatchDelay:   time.Second,
		RematchDelay: 500 * time.Millisecond,
	})
	return &fixture{registry: reg, engine: eng, rec: rec, clock: clock}
}
