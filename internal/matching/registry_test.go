package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAssignsUniqueIdleSessions(t *testing.T) {
	r := NewRegistry()
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := r.Register()
		require.NotEmpty(t, id)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}

		s, ok := r.Get(id)
		require.True(t, ok)
		assert.Equal(t, StateIdle, s.State)
		assert.False(t, s.ConnectedAt.IsZero())
	}
	assert.Equal(t, 100, r.Count())
}

func TestRegistry_RegisterSkipsCollisions(t *testing.T) {
	r := NewRegistry()
	ids := []string{"same", "same", "other"}
	r.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	assert.Equal(t, "same", r.Register())
	assert.Equal(t, "other", r.Register())
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	id := r.Register()

	assert.True(t, r.Unregister(id))
	assert.False(t, r.Unregister(id))
	assert.False(t, r.Unregister("never-registered"))
	assert.False(t, r.Exists(id))
	assert.Zero(t, r.Count())
}

func TestRegistry_SetInterests(t *testing.T) {
	r := NewRegistry()
	id := r.Register()

	require.NoError(t, r.SetInterests(id, []string{"music", " ", "music", " films "}))
	s, _ := r.Get(id)
	assert.Equal(t, []string{"music", "films"}, s.Interests)

	require.NoError(t, r.SetInterests(id, nil))
	assert.Empty(t, s.Interests)

	assert.ErrorIs(t, r.SetInterests("ghost", []string{"x"}), ErrUnknownClient)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "waiting", StateWaiting.String())
	assert.Equal(t, "paired", StatePaired.String())
	assert.Equal(t, "state(9)", State(9).String())
}
