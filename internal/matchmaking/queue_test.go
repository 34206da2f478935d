package matchmaking

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minitoshi/susbot/engine"
)

type matchRecorder struct {
	mu      sync.Mutex
	rosters [][]engine.Profile
}

func (m *matchRecorder) onMatch(p []engine.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rosters = append(m.rosters, p)
}

func (m *matchRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rosters)
}

func profile(i int) engine.Profile {
	return engine.Profile{ID: fmt.Sprintf("agent-%d", i), Name: fmt.Sprintf("Agent %d", i)}
}

func newTestQueue(rec *matchRecorder) (*Queue, *time.Time) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	q := NewQueue(Options{
		MinPlayers: 8,
		MaxPlayers: 10,
		Wait:       30 * time.Second,
		Now:        func() time.Time { return now },
	}, rec.onMatch)
	return q, &now
}

func TestEnqueueDequeue(t *testing.T) {
	q, _ := newTestQueue(&matchRecorder{})

	pos, err := q.Enqueue(profile(1))
	require.NoError(t, err)
	assert.Equal(t, 1, pos)
	pos, err = q.Enqueue(profile(2))
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	_, err = q.Enqueue(profile(1))
	assert.ErrorIs(t, err, ErrAlreadyQueued)

	require.NoError(t, q.Dequeue("agent-1"))
	assert.ErrorIs(t, q.Dequeue("agent-1"), ErrNotQueued)
	assert.Equal(t, 1, q.Size())
	assert.Equal(t, 1, q.Position("agent-2"))
	assert.Zero(t, q.Position("agent-1"))
}

func TestCheckStartsFullRosterImmediately(t *testing.T) {
	rec := &matchRecorder{}
	q, _ := newTestQueue(rec)
	for i := 0; i < 12; i++ {
		_, err := q.Enqueue(profile(i))
		require.NoError(t, err)
	}

	assert.True(t, q.Check())
	require.Len(t, rec.rosters, 1)
	require.Len(t, rec.rosters[0], 10)
	assert.Equal(t, "agent-0", rec.rosters[0][0].ID, "oldest entries go first")
	assert.Equal(t, 2, q.Size())
	assert.Equal(t, 1, q.Position("agent-10"))

	assert.False(t, q.Check(), "two agents are not enough")
}

func TestCheckWaitsBeforeShortRoster(t *testing.T) {
	rec := &matchRecorder{}
	q, now := newTestQueue(rec)
	for i := 0; i < 8; i++ {
		_, err := q.Enqueue(profile(i))
		require.NoError(t, err)
	}

	*now = now.Add(29 * time.Second)
	assert.False(t, q.Check())

	*now = now.Add(time.Second)
	assert.True(t, q.Check())
	require.Len(t, rec.rosters, 1)
	assert.Len(t, rec.rosters[0], 8)
	assert.Zero(t, q.Size())
}

func TestCheckNeedsMinimum(t *testing.T) {
	rec := &matchRecorder{}
	q, now := newTestQueue(rec)
	for i := 0; i < 7; i++ {
		_, err := q.Enqueue(profile(i))
		require.NoError(t, err)
	}
	*now = now.Add(time.Hour)
	assert.False(t, q.Check())
	assert.Zero(t, rec.count())
}

func TestRunChecksPeriodically(t *testing.T) {
	rec := &matchRecorder{}
	q := NewQueue(Options{MinPlayers: 5, MaxPlayers: 5}, rec.onMatch)
	for i := 0; i < 5; i++ {
		_, err := q.Enqueue(profile(i))
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	_, err := q.Enqueue(profile(99))
	require.NoError(t, err)
	cancel()
	<-done
	assert.Zero(t, q.Size(), "the queue is cleared on shutdown")
}
