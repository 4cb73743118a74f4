package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_StartRejectsWhileValid(t *testing.T) {
	clock := newClock()
	r := NewRegistry(DefaultGrace, clock.Now)

	stale, ok := r.Start("CS101", 30*time.Minute)
	require.True(t, ok)
	assert.Nil(t, stale)

	_, ok = r.Start("CS101", 30*time.Minute)
	assert.False(t, ok, "second start while first is valid")

	// past end but inside grace: still valid
	clock.Advance(33 * time.Minute)
	_, ok = r.Start("CS101", 30*time.Minute)
	assert.False(t, ok)

	clock.Advance(3 * time.Minute)
	stale, ok = r.Start("CS101", 10*time.Minute)
	require.True(t, ok)
	require.NotNil(t, stale)
	assert.Equal(t, t0, stale.StartTime)

	s, _ := r.Get("CS101")
	assert.Equal(t, clock.Now().Add(10*time.Minute), s.EndTime)
}

func TestRegistry_OpenForMarkingWindow(t *testing.T) {
	clock := newClock()
	r := NewRegistry(DefaultGrace, clock.Now)

	open, _ := r.OpenForMarking("CS101")
	assert.False(t, open, "no session")

	r.Start("CS101", 10*time.Minute)
	open, evicted := r.OpenForMarking("CS101")
	assert.True(t, open)
	assert.Nil(t, evicted)

	clock.Advance(10 * time.Minute)
	open, _ = r.OpenForMarking("CS101")
	assert.True(t, open, "end instant is inclusive")

	clock.Advance(time.Second)
	open, evicted = r.OpenForMarking("CS101")
	assert.False(t, open)
	assert.Nil(t, evicted, "inside grace nothing is evicted")
	assert.Equal(t, 1, r.Len())

	clock.Advance(5 * time.Minute)
	open, evicted = r.OpenForMarking("CS101")
	assert.False(t, open)
	require.NotNil(t, evicted)
	assert.False(t, evicted.Active)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_RemainingTime(t *testing.T) {
	clock := newClock()
	r := NewRegistry(DefaultGrace, clock.Now)
	assert.Equal(t, "00:00", r.RemainingTime("CS101"))

	r.Start("CS101", 30*time.Minute)
	assert.Equal(t, "30:00", r.RemainingTime("CS101"))

	clock.Advance(90*time.Second + 400*time.Millisecond)
	assert.Equal(t, "28:29", r.RemainingTime("CS101"))

	clock.Advance(29 * time.Minute)
	assert.Equal(t, "00:00", r.RemainingTime("CS101"))
}

func TestRegistry_EndReturnsMarkedSet(t *testing.T) {
	r := NewRegistry(DefaultGrace, newClock().Now)
	r.Start("CS101", 30*time.Minute)
	r.MarkPresent("CS101", "A")
	r.MarkPresent("CS999", "A")

	s, ok := r.End("CS101")
	require.True(t, ok)
	assert.False(t, s.Active)
	assert.Equal(t, map[string]struct{}{"A": {}}, s.MarkedStudents())

	_, ok = r.End("CS101")
	assert.False(t, ok)
	open, _ := r.OpenForMarking("CS101")
	assert.False(t, open)
}

func TestRegistry_ExpiredOnlyTakesInvalid(t *testing.T) {
	clock := newClock()
	r := NewRegistry(DefaultGrace, clock.Now)
	r.Start("CS101", 1*time.Minute)
	clock.Advance(2 * time.Minute)
	r.Start("CS102", 60*time.Minute)

	assert.Empty(t, r.Expired())

	clock.Advance(5 * time.Minute)
	expired := r.Expired()
	require.Len(t, expired, 1)
	assert.Equal(t, "CS101", expired[0].UnitCode)
	assert.Empty(t, r.Expired())

	infos := r.Sessions()
	require.Len(t, infos, 1)
	assert.Equal(t, "CS102", infos[0].UnitCode)
	assert.Equal(t, "55:00", infos[0].RemainingTime)
}
