package matching

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// State is the matchmaking state of a connected client.
type State int

const (
	// StateIdle means connected but not seeking a partner.
	StateIdle State = iota
	// StateWaiting means enqueued in the waiting pool.
	StateWaiting
	// StatePaired means the client has a live partner.
	StatePaired
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StatePaired:
		return "paired"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is one connected participant.
type Session struct {
	// ID is assigned on connect and never changes.
	ID string

	// Interests are advisory. Matching ignores them.
	Interests []string

	State State

	// PartnerID is set only while State is StatePaired.
	PartnerID string

	ConnectedAt time.Time
}

// Registry tracks every connected client.
//
// Registry is not safe for concurrent use. The Hub goroutine owns it.
type Registry struct {
	sessions map[string]*Session
	newID    func() string
	now      func() time.Time
}

// NewRegistry creates an empty registry that assigns UUIDv4 identifiers.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// Register allocates a new identifier and creates an idle session for it.
func (r *Registry) Register() string {
	id := r.newID()
	for r.Exists(id) {
		id = r.newID()
	}

	r.sessions[id] = &Session{
		ID:          id,
		State:       StateIdle,
		ConnectedAt: r.now(),
	}
	return id
}

// Unregister removes the session. Unknown ids are ignored, so it is safe
// to call more than once. It reports whether a session was removed.
func (r *Registry) Unregister(id string) bool {
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Exists reports whether id is a registered session.
func (r *Registry) Exists(id string) bool {
	_, ok := r.sessions[id]
	return ok
}

// Get returns the session for id.
func (r *Registry) Get(id string) (*Session, bool) {
	s, ok := r.sessions[id]
	return s, ok
}

// SetInterests replaces the session's interests. Blank and repeated
// entries are dropped.
func (r *Registry) SetInterests(id string, interests []string) error {
	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("set interests for %s: %w", id, ErrUnknownClient)
	}

	seen := make(map[string]struct{}, len(interests))
	cleaned := make([]string, 0, len(interests))
	for _, interest := range interests {
		interest = strings.TrimSpace(interest)
		if interest == "" {
			continue
		}
		if _, dup := seen[interest]; dup {
			continue
		}
		seen[interest] = struct{}{}
		cleaned = append(cleaned, interest)
	}
	s.Interests = cleaned
	return nil
}

// Count returns the number of connected sessions.
func (r *Registry) Count() int {
	return len(r.sessions)
}
