// internal/server/registry.go
package server

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/minitoshi/susbot/engine"
	"github.com/minitoshi/susbot/internal/game"
)

// ResultStore archives finished games.
type ResultStore interface {
	SaveGameResult(ctx context.Context, r game.GameResult) error
}

// RegistryOptions configures session creation and reclamation.
type RegistryOptions struct {
	Settings    engine.Settings
	Historian   game.Historian // optional
	Store       ResultStore    // optional
	Grace       time.Duration  // delay between game_over and Destroy
	Clock       game.Clock     // optional, for tests
	ManualTicks bool
}

type registered struct {
	session *game.Session
	hub     *Hub
}

// Registry owns every live session and its hub.
type Registry struct {
	opts RegistryOptions

	mu    sync.RWMutex
	games map[uuid.UUID]registered
}

// NewRegistry returns an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Grace <= 0 {
		opts.Grace = 30 * time.Second
	}
	return &Registry{opts: opts, games: make(map[uuid.UUID]registered)}
}

// Create builds a lobby session, registers it and starts its hub.
func (r *Registry) Create() (*game.Session, *Hub) {
	settings := r.opts.Settings
	s := game.NewSession(game.Options{
		Settings:    &settings,
		Clock:       r.opts.Clock,
		Historian:   r.opts.Historian,
		OnGameEnd:   r.onGameEnd,
		ManualTicks: r.opts.ManualTicks,
	})
	hub := NewHub(s)
	go hub.Run()

	r.mu.Lock()
	r.games[s.ID] = registered{session: s, hub: hub}
	n := len(r.games)
	r.mu.Unlock()

	log.WithFields(log.Fields{"game": s.ID, "active": n}).Info("Game registered")
	return s, hub
}

// CreateWithPlayers seats profiles in a new session. Profiles that cannot
// join are logged and skipped.
func (r *Registry) CreateWithPlayers(profiles []engine.Profile) (*game.Session, *Hub) {
	s, hub := r.Create()
	for _, p := range profiles {
		if _, res := s.AddPlayer(p); !res.Accepted {
			log.WithFields(log.Fields{"game": s.ID, "agent": p.ID, "reason": res.Reason}).Warn("Could not seat matched agent")
		}
	}
	return s, hub
}

// StartMatch seats a matched roster and starts the game. It satisfies
// matchmaking.MatchFunc.
func (r *Registry) StartMatch(profiles []engine.Profile) {
	s, _ := r.CreateWithPlayers(profiles)
	if res := s.Start(); !res.Accepted {
		log.WithFields(log.Fields{"game": s.ID, "reason": res.Reason}).Error("Matched game failed to start")
		r.Remove(s.ID)
	}
}

// Get returns the session and hub registered under id.
func (r *Registry) Get(id uuid.UUID) (*game.Session, *Hub, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.games[id]
	return g.session, g.hub, ok
}

// Lookup is Get for an id in string form.
func (r *Registry) Lookup(id string) (*game.Session, *Hub, bool) {
	u, err := uuid.Parse(id)
	if err != nil {
		return nil, nil, false
	}
	return r.Get(u)
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.games)
}

func (r *Registry) sessions() []*game.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*game.Session, 0, len(r.games))
	for _, g := range r.games {
		out = append(out, g.session)
	}
	return out
}

// List returns the lobby listing of every session, oldest first.
func (r *Registry) List() []game.LobbyInfo {
	out := make([]game.LobbyInfo, 0)
	for _, s := range r.sessions() {
		out = append(out, s.LobbyInfo())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ActiveGameOf returns the unfinished session playerID is seated in.
func (r *Registry) ActiveGameOf(playerID string) (*game.Session, bool) {
	for _, s := range r.sessions() {
		if s.HasPlayer(playerID) && s.Phase() != engine.PhaseGameOver {
			return s, true
		}
	}
	return nil, false
}

// onGameEnd runs with the session lock held: it must not call back into s.
func (r *Registry) onGameEnd(s *game.Session, res game.GameResult) {
	log.WithFields(log.Fields{"game": res.GameID, "winner": res.Winner, "reason": res.Reason}).Info("Game over")

	if r.opts.Store != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := r.opts.Store.SaveGameResult(ctx, res); err != nil {
				log.WithError(err).WithField("game", res.GameID).Error("Failed archiving game result")
			}
		}()
	}

	id := s.ID
	time.AfterFunc(r.opts.Grace, func() { r.Remove(id) })
}

// Remove destroys and unregisters a session.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	g, ok := r.games[id]
	delete(r.games, id)
	r.mu.Unlock()
	if !ok {
		return
	}
	g.session.Destroy()
	log.WithField("game", id).Info("Game cleaned up")
}

// Shutdown destroys every session.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	games := r.games
	r.games = make(map[uuid.UUID]registered)
	r.mu.Unlock()
	for _, g := range games {
		g.session.Destroy()
		<-g.hub.Done()
	}
}
