package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRegistry_Lifecycle(t *testing.T) {
	r := NewSessionRegistry()
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, r.Upsert("a@x.io", t0))
	assert.False(t, r.Upsert("a@x.io", t0.Add(time.Minute)))
	assert.False(t, r.Touch("ghost@x.io", t0))
	assert.Equal(t, 0, r.BeginTurn("ghost@x.io", t0))
	assert.Equal(t, 1, r.BeginTurn("a@x.io", t0.Add(2*time.Minute)))

	rec, ok := r.Get("a@x.io")
	require.True(t, ok)
	assert.Equal(t, t0, rec.JoinedAt)
	assert.Equal(t, t0.Add(2*time.Minute), rec.LastActivity)
	assert.Equal(t, 1, rec.TurnCount)
}

func TestSessionRegistry_EvictIdle(t *testing.T) {
	r := NewSessionRegistry()
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	r.Upsert("old@x.io", t0)
	r.Upsert("new@x.io", t0.Add(time.Hour))

	evicted := r.EvictIdle(t0.Add(30 * time.Minute))
	assert.Equal(t, []Identity{"old@x.io"}, evicted)
	assert.Equal(t, 1, r.Len())
	_, ok := r.Get("old@x.io")
	assert.False(t, ok)
}

func TestSessionRegistry_IdentitiesOrderedByFirstSeen(t *testing.T) {
	r := NewSessionRegistry()
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	r.Upsert("c@x.io", t0.Add(2*time.Second))
	r.Upsert("a@x.io", t0)
	r.Upsert("b@x.io", t0.Add(time.Second))

	assert.Equal(t, []Identity{"a@x.io", "b@x.io"}, r.Identities(2))
	assert.Len(t, r.Identities(10), 3)

	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Identities(5))
}
