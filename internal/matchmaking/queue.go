// internal/matchmaking/queue.go
package matchmaking

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/minitoshi/susbot/engine"
)

var (
	ErrAlreadyQueued = errors.New("ALREADY_IN_QUEUE")
	ErrNotQueued     = errors.New("NOT_IN_QUEUE")
)

// MatchFunc receives a full roster, in queue order, once a match forms.
type MatchFunc func(players []engine.Profile)

// Options tune when a match forms.
type Options struct {
	MinPlayers int           // smallest roster started after Wait
	MaxPlayers int           // roster size started immediately
	Wait       time.Duration // how long the oldest entry waits before a short game starts
	Now        func() time.Time
}

type entry struct {
	profile  engine.Profile
	joinedAt time.Time
}

// Queue is a FIFO of agents waiting for a game.
type Queue struct {
	opts    Options
	onMatch MatchFunc

	mu      sync.Mutex
	entries []entry
}

// NewQueue returns an empty queue that hands formed rosters to onMatch.
func NewQueue(opts Options, onMatch MatchFunc) *Queue {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxPlayers <= 0 {
		opts.MaxPlayers = engine.MaxPlayers
	}
	if opts.MinPlayers <= 0 || opts.MinPlayers > opts.MaxPlayers {
		opts.MinPlayers = opts.MaxPlayers
	}
	return &Queue{opts: opts, onMatch: onMatch}
}

// Enqueue appends profile and returns its 1-based position.
func (q *Queue) Enqueue(profile engine.Profile) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.profile.ID == profile.ID {
			return 0, ErrAlreadyQueued
		}
	}
	q.entries = append(q.entries, entry{profile: profile, joinedAt: q.opts.Now()})
	log.WithFields(log.Fields{"agent": profile.ID, "size": len(q.entries)}).Debug("Agent queued")
	return len(q.entries), nil
}

// Dequeue removes the agent with id from the queue.
func (q *Queue) Dequeue(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.profile.ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return nil
		}
	}
	return ErrNotQueued
}

// Size returns how many agents are waiting.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Position returns the 1-based position of id, or 0 if it is not queued.
func (q *Queue) Position(id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.profile.ID == id {
			return i + 1
		}
	}
	return 0
}

// Check forms at most one match: a full roster immediately, or everyone
// waiting once there are at least MinPlayers and the oldest entry has
// waited Wait. It reports whether a match was handed off.
func (q *Queue) Check() bool {
	q.mu.Lock()
	n := len(q.entries)
	var take int
	switch {
	case n < q.opts.MinPlayers:
	case n >= q.opts.MaxPlayers:
		take = q.opts.MaxPlayers
	case q.opts.Now().Sub(q.entries[0].joinedAt) >= q.opts.Wait:
		take = n
	}
	if take == 0 {
		q.mu.Unlock()
		return false
	}
	roster := make([]engine.Profile, take)
	for i := range roster {
		roster[i] = q.entries[i].profile
	}
	q.entries = append([]entry(nil), q.entries[take:]...)
	q.mu.Unlock()

	log.WithFields(log.Fields{"players": take, "remaining": n - take}).Info("Match formed")
	if q.onMatch != nil {
		q.onMatch(roster)
	}
	return true
}

// Run calls Check every interval until ctx is cancelled, then clears the
// queue.
func (q *Queue) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			q.entries = nil
			q.mu.Unlock()
			return
		case <-ticker.C:
			q.Check()
		}
	}
}
