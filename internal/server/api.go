// internal/server/api.go
package server

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/minitoshi/susbot/engine"
	"github.com/minitoshi/susbot/internal/auth"
	"github.com/minitoshi/susbot/internal/game"
	"github.com/minitoshi/susbot/internal/matchmaking"
)

// maxBodyBytes bounds action request bodies.
const maxBodyBytes = 16 << 10

// testAgentNames name the seats of a dev test game.
var testAgentNames = []string{
	"DeepThink", "NeuralNova", "ByteWise", "QuantumLeap",
	"SynthMind", "LogicLord", "DataDaemon", "CipherBot",
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"activeGames": s.registry.Len(),
		"queueSize":   s.queue.Size(),
		"uptime":      s.now().Sub(s.started).Seconds(),
	})
}

func (s *Server) handleListGames(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"games": s.registry.List()})
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"queueSize": s.queue.Size()})
}

func (s *Server) handleEnqueue(w http.ResponseWriter, _ *http.Request, agent engine.Profile) {
	if g, ok := s.registry.ActiveGameOf(agent.ID); ok {
		writeError(w, http.StatusBadRequest, "ALREADY_IN_GAME", g.ID.String())
		return
	}
	pos, err := s.queue.Enqueue(agent)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queued":    true,
		"position":  pos,
		"queueSize": s.queue.Size(),
	})
}

func (s *Server) handleDequeue(w http.ResponseWriter, _ *http.Request, agent engine.Profile) {
	err := s.queue.Dequeue(agent.ID)
	writeJSON(w, http.StatusOK, map[string]any{"dequeued": !errors.Is(err, matchmaking.ErrNotQueued)})
}

// seated resolves the {id} path value to a session the agent sits in,
// writing the 404/403 response itself when it cannot.
func (s *Server) seated(w http.ResponseWriter, r *http.Request, agent engine.Profile) (*game.Session, bool) {
	sess, _, ok := s.registry.Lookup(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "GAME_NOT_FOUND", "")
		return nil, false
	}
	if !sess.HasPlayer(agent.ID) {
		writeError(w, http.StatusForbidden, "NOT_IN_GAME", "")
		return nil, false
	}
	return sess, true
}

func resultStatus(res game.Result) int {
	if res.Accepted {
		return http.StatusOK
	}
	return http.StatusBadRequest
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request, agent engine.Profile) {
	sess, _, ok := s.registry.Lookup(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "GAME_NOT_FOUND", "")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrInvalidBody.Error(), err.Error())
		return
	}

	res, err := dispatch(sess, agent.ID, r.PathValue("action"), body)
	switch {
	case errors.Is(err, ErrUnknownAction):
		writeError(w, http.StatusNotFound, err.Error(), r.PathValue("action"))
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, ErrInvalidBody.Error(), err.Error())
		return
	}
	writeJSON(w, resultStatus(res), res)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request, agent engine.Profile) {
	sess, ok := s.seated(w, r, agent)
	if !ok {
		return
	}
	view, res := sess.AgentView(agent.ID)
	if !res.Accepted {
		writeJSON(w, http.StatusBadRequest, res)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleMeeting(w http.ResponseWriter, r *http.Request, agent engine.Profile) {
	sess, ok := s.seated(w, r, agent)
	if !ok {
		return
	}
	view, res := sess.MeetingView(agent.ID)
	if !res.Accepted {
		writeJSON(w, http.StatusBadRequest, res)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSpectate(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := s.registry.Lookup(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "GAME_NOT_FOUND", "")
		return
	}
	writeJSON(w, http.StatusOK, sess.SpectatorView())
}

func queryInt(r *http.Request, key string, def, ceiling int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, ceiling)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		writeError(w, http.StatusServiceUnavailable, "ARCHIVE_DISABLED", "")
		return
	}
	results, err := s.results.RecentResults(r.Context(), queryInt(r, "limit", 20, 100))
	if err != nil {
		log.WithError(err).Error("Failed listing game results")
		writeError(w, http.StatusInternalServerError, "ARCHIVE_UNAVAILABLE", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// handleHistory replays a game's recorded actions. It is refused while the
// game is still being played.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.actions == nil {
		writeError(w, http.StatusServiceUnavailable, "HISTORY_DISABLED", "")
		return
	}
	id := r.PathValue("id")
	gameID, err := uuid.Parse(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "GAME_NOT_FOUND", "")
		return
	}
	if sess, _, ok := s.registry.Get(gameID); ok && sess.Phase() != engine.PhaseGameOver {
		writeError(w, http.StatusForbidden, "GAME_IN_PROGRESS", "")
		return
	}
	records, err := s.actions.GameActions(r.Context(), gameID, int64(queryInt(r, "scan", 10_000, 100_000)))
	if err != nil {
		log.WithError(err).WithField("game", id).Error("Failed reading game history")
		writeError(w, http.StatusInternalServerError, "HISTORY_UNAVAILABLE", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"gameId": gameID, "actions": records})
}

type testSeat struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Color engine.Color `json:"color"`
	Token string       `json:"token,omitempty"`
}

func (s *Server) handleTestGame(w http.ResponseWriter, _ *http.Request) {
	sess, _ := s.registry.Create()
	seats := make([]testSeat, 0, len(testAgentNames))
	for i, name := range testAgentNames {
		profile := engine.Profile{
			ID:    fmt.Sprintf("test-agent-%d", i),
			Name:  name,
			Karma: rand.IntN(5000),
		}
		color, res := sess.AddPlayer(profile)
		if !res.Accepted {
			writeJSON(w, http.StatusInternalServerError, res)
			return
		}
		seats = append(seats, testSeat{
			ID:    profile.ID,
			Name:  profile.Name,
			Color: color,
			Token: auth.DevTokenPrefix + profile.ID + ":" + profile.Name,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"gameId":  sess.ID,
		"phase":   sess.Phase(),
		"players": seats,
	})
}

func (s *Server) handleStartGame(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := s.registry.Lookup(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "GAME_NOT_FOUND", "")
		return
	}
	if res := sess.Start(); !res.Accepted {
		writeJSON(w, http.StatusBadRequest, res)
		return
	}
	// Roles are dealt when the countdown ends; spectate shows them from then on.
	view := sess.SpectatorView()
	seats := make([]testSeat, 0, len(view.Players))
	for _, p := range view.Players {
		seats = append(seats, testSeat{ID: p.PlayerID, Name: p.Name, Color: p.Color})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"gameId":  view.GameID,
		"phase":   view.Phase,
		"players": seats,
	})
}
