// internal/server/server.go
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/minitoshi/susbot/engine"
	"github.com/minitoshi/susbot/internal/auth"
	"github.com/minitoshi/susbot/internal/cache"
	"github.com/minitoshi/susbot/internal/config"
	"github.com/minitoshi/susbot/internal/database"
	"github.com/minitoshi/susbot/internal/matchmaking"
)

// ResultArchive lists archived games.
type ResultArchive interface {
	RecentResults(ctx context.Context, limit int) ([]database.ResultSummary, error)
}

// ActionLog replays the recorded actions of one game.
type ActionLog interface {
	GameActions(ctx context.Context, gameID uuid.UUID, count int64) ([]cache.ActionRecord, error)
}

// Options wires a Server. Results and Actions may be nil when Postgres or
// Redis are not configured.
type Options struct {
	Config   *config.Config
	Registry *Registry
	Queue    *matchmaking.Queue
	Verifier *auth.Verifier
	Results  ResultArchive
	Actions  ActionLog
	Now      func() time.Time
}

// Server serves the REST API and the WebSocket endpoints.
type Server struct {
	cfg      *config.Config
	registry *Registry
	queue    *matchmaking.Queue
	verifier *auth.Verifier
	results  ResultArchive
	actions  ActionLog
	now      func() time.Time
	started  time.Time

	heartbeat time.Duration
}

// New returns a Server over the given collaborators.
func New(opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{
		cfg:       opts.Config,
		registry:  opts.Registry,
		queue:     opts.Queue,
		verifier:  opts.Verifier,
		results:   opts.Results,
		actions:   opts.Actions,
		now:       opts.Now,
		started:   opts.Now(),
		heartbeat: time.Second,
	}
}

// Handler returns the routed, logged and CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/games", s.handleListGames)
	mux.HandleFunc("GET /api/queue/status", s.handleQueueStatus)
	mux.HandleFunc("GET /api/results", s.handleResults)
	mux.HandleFunc("GET /api/games/{id}/spectate", s.handleSpectate)
	mux.HandleFunc("GET /api/games/{id}/history", s.handleHistory)

	mux.HandleFunc("POST /api/queue", s.authenticated(s.handleEnqueue))
	mux.HandleFunc("DELETE /api/queue", s.authenticated(s.handleDequeue))
	mux.HandleFunc("POST /api/games/{id}/{action}", s.authenticated(s.handleAction))
	mux.HandleFunc("GET /api/games/{id}/state", s.authenticated(s.handleState))
	mux.HandleFunc("GET /api/games/{id}/meeting", s.authenticated(s.handleMeeting))

	mux.HandleFunc("POST /api/dev/test-game", s.devOnly(s.handleTestGame))
	mux.HandleFunc("POST /api/dev/start-game/{id}", s.devOnly(s.handleStartGame))

	mux.HandleFunc("GET /ws/agent", s.handleAgentSocket)
	mux.HandleFunc("GET /ws/spectate", s.handleSpectatorSocket)

	return s.withCORS(withLogging(mux))
}

// errorBody is the JSON shape of every non-2xx response.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("Failed writing response")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

type profileHandler func(w http.ResponseWriter, r *http.Request, agent engine.Profile)

// authenticated resolves the caller's identity token before calling next.
func (s *Server) authenticated(next profileHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profile, err := s.verifier.Verify(auth.TokenFromRequest(r))
		switch {
		case errors.Is(err, auth.ErrMissingToken):
			writeError(w, http.StatusUnauthorized, "MISSING_AUTH", "Provide Authorization: Bearer <token> or X-Identity-Token header")
			return
		case err != nil:
			writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", err.Error())
			return
		}
		next(w, r, profile)
	}
}

// devOnly guards the dev endpoints: dev mode must be on, and when an admin
// key hash is configured the X-Admin-Key header must match it.
func (s *Server) devOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.DevMode {
			writeError(w, http.StatusForbidden, "DEV_MODE_ONLY", "")
			return
		}
		if s.cfg.AdminKeyHash != "" && !auth.CheckAdminKey(s.cfg.AdminKeyHash, r.Header.Get("X-Admin-Key")) {
			writeError(w, http.StatusForbidden, "INVALID_ADMIN_KEY", "")
			return
		}
		next(w, r)
	}
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Identity-Token, X-Admin-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for the access log. It passes
// Hijack through so WebSocket upgrades still work behind it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start),
		}).Debug("HTTP request")
	})
}
