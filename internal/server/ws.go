// internal/server/ws.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	log "github.com/sirupsen/logrus"

	"github.com/minitoshi/susbot/internal/auth"
)

const writeTimeout = 5 * time.Second

// MsgState carries an agent's filtered snapshot when its socket opens.
const MsgState = "game:state"

// actionEnvelope is one inbound agent frame. Action accepts both "move" and
// "action:move".
type actionEnvelope struct {
	ID     string          `json:"id"`
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// ackMessage answers an actionEnvelope with the same id.
type ackMessage struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Data any    `json:"data"`
}

func (s *Server) acceptOptions() *websocket.AcceptOptions {
	if s.cfg.CORSOrigin == "" || s.cfg.CORSOrigin == "*" {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	return &websocket.AcceptOptions{OriginPatterns: []string{s.cfg.CORSOrigin}}
}

func writeFrame(ctx context.Context, c *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c, v)
}

// handleAgentSocket serves /ws/agent?gameId=. Identity and seat are checked
// before the upgrade so failures are plain HTTP errors.
func (s *Server) handleAgentSocket(w http.ResponseWriter, r *http.Request) {
	agent, err := s.verifier.Verify(auth.TokenFromRequest(r))
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		writeError(w, http.StatusUnauthorized, "MISSING_AUTH", "")
		return
	case err != nil:
		writeError(w, http.StatusUnauthorized, "INVALID_TOKEN", err.Error())
		return
	}

	gameID := r.URL.Query().Get("gameId")
	if gameID == "" {
		writeError(w, http.StatusBadRequest, "MISSING_GAME_ID", "gameId query parameter required")
		return
	}
	sess, hub, ok := s.registry.Lookup(gameID)
	if !ok {
		writeError(w, http.StatusNotFound, "GAME_NOT_FOUND", "")
		return
	}
	if !sess.HasPlayer(agent.ID) {
		writeError(w, http.StatusForbidden, "NOT_IN_GAME", "")
		return
	}

	c, err := websocket.Accept(w, r, s.acceptOptions())
	if err != nil {
		log.WithError(err).Warn("Agent socket upgrade failed")
		return
	}
	defer c.CloseNow()

	logger := log.WithFields(log.Fields{"game": sess.ID, "agent": agent.ID})
	logger.Info("Agent connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := hub.Subscribe(agent.ID)
	if view, res := sess.AgentView(agent.ID); res.Accepted {
		if err := writeFrame(ctx, c, Message{Type: MsgState, Data: view}); err != nil {
			hub.Unsubscribe(sub)
			return
		}
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Messages():
				if !ok {
					c.Close(websocket.StatusGoingAway, "game closed")
					return
				}
				if err := writeFrame(ctx, c, msg); err != nil {
					logger.WithError(err).Debug("Agent write failed")
					cancel()
					return
				}
			}
		}
	}()

	for {
		var env actionEnvelope
		if err := wsjson.Read(ctx, c, &env); err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				logger.WithError(err).Debug("Agent read ended")
			}
			break
		}

		ack := ackMessage{Type: MsgAck, ID: env.ID}
		res, err := dispatch(sess, agent.ID, strings.TrimPrefix(env.Action, "action:"), env.Data)
		if err != nil {
			code := ErrInvalidBody.Error()
			if errors.Is(err, ErrUnknownAction) {
				code = ErrUnknownAction.Error()
			}
			ack.Type = MsgError
			ack.Data = errorBody{Error: code, Message: err.Error()}
		} else {
			ack.Data = res
		}
		if err := writeFrame(ctx, c, ack); err != nil {
			break
		}
	}

	cancel()
	<-writerDone
	hub.Unsubscribe(sub)
	logger.Info("Agent disconnected")
}

// handleSpectatorSocket serves /ws/spectate?gameId=: every event unfiltered,
// plus the full spectator view on connect and on each heartbeat.
func (s *Server) handleSpectatorSocket(w http.ResponseWriter, r *http.Request) {
	sess, hub, ok := s.registry.Lookup(r.URL.Query().Get("gameId"))
	if !ok {
		writeError(w, http.StatusNotFound, "GAME_NOT_FOUND", "")
		return
	}

	c, err := websocket.Accept(w, r, s.acceptOptions())
	if err != nil {
		log.WithError(err).Warn("Spectator socket upgrade failed")
		return
	}
	defer c.CloseNow()

	ctx := c.CloseRead(r.Context())
	sub := hub.SubscribeSpectator()
	defer hub.Unsubscribe(sub)

	log.WithField("game", sess.ID).Debug("Spectator connected")

	if err := writeFrame(ctx, c, Message{Type: MsgHeartbeat, Data: sess.SpectatorView()}); err != nil {
		return
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				c.Close(websocket.StatusGoingAway, "game closed")
				return
			}
			if err := writeFrame(ctx, c, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := writeFrame(ctx, c, Message{Type: MsgHeartbeat, Data: sess.SpectatorView()}); err != nil {
				return
			}
		}
	}
}
