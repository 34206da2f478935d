// internal/server/dispatch.go
package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/minitoshi/susbot/engine"
	"github.com/minitoshi/susbot/internal/game"
)

// ErrInvalidBody means an action payload was malformed or missing a field.
var ErrInvalidBody = errors.New("INVALID_BODY")

// ErrUnknownAction means the action name is not one of the Action* constants.
var ErrUnknownAction = errors.New("UNKNOWN_ACTION")

// Action names shared by the REST routes and the agent socket.
const (
	ActionMove      = "move"
	ActionKill      = "kill"
	ActionReport    = "report"
	ActionEmergency = "emergency"
	ActionTask      = "task"
	ActionDiscuss   = "discuss"
	ActionVote      = "vote"
	ActionVent      = "vent"
)

type moveRequest struct {
	Target *engine.Position `json:"target"`
}

type targetRequest struct {
	TargetPlayerID string `json:"targetPlayerId"`
}

type reportRequest struct {
	BodyPlayerID string `json:"bodyPlayerId"`
}

type taskRequest struct {
	TaskID string `json:"taskId"`
}

type discussRequest struct {
	Message string       `json:"message"`
	Channel game.Channel `json:"channel"`
}

type ventRequest struct {
	Action     game.VentAction `json:"action"`
	TargetRoom string          `json:"targetRoom"`
}

func decode(body []byte, v any) error {
	if len(body) == 0 {
		body = []byte("{}")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	return nil
}

func required(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s required", ErrInvalidBody, field)
	}
	return nil
}

// dispatch decodes body for action and applies it to s on behalf of
// playerID. A non-nil error means the request never reached the session.
func dispatch(s *game.Session, playerID, action string, body []byte) (game.Result, error) {
	switch action {
	case ActionMove:
		var req moveRequest
		if err := decode(body, &req); err != nil {
			return game.Result{}, err
		}
		if req.Target == nil {
			return game.Result{}, fmt.Errorf("%w: target.x and target.y required", ErrInvalidBody)
		}
		return s.Move(playerID, *req.Target), nil

	case ActionKill:
		var req targetRequest
		if err := decode(body, &req); err != nil {
			return game.Result{}, err
		}
		if err := required("targetPlayerId", req.TargetPlayerID); err != nil {
			return game.Result{}, err
		}
		return s.Kill(playerID, req.TargetPlayerID), nil

	case ActionReport:
		var req reportRequest
		if err := decode(body, &req); err != nil {
			return game.Result{}, err
		}
		if err := required("bodyPlayerId", req.BodyPlayerID); err != nil {
			return game.Result{}, err
		}
		return s.Report(playerID, req.BodyPlayerID), nil

	case ActionEmergency:
		return s.Emergency(playerID), nil

	case ActionTask:
		var req taskRequest
		if err := decode(body, &req); err != nil {
			return game.Result{}, err
		}
		if err := required("taskId", req.TaskID); err != nil {
			return game.Result{}, err
		}
		return s.StartTask(playerID, req.TaskID), nil

	case ActionDiscuss:
		var req discussRequest
		if err := decode(body, &req); err != nil {
			return game.Result{}, err
		}
		if err := required("message", req.Message); err != nil {
			return game.Result{}, err
		}
		if req.Channel == "" {
			req.Channel = game.ChannelPublic
		}
		return s.Discuss(playerID, req.Message, req.Channel), nil

	case ActionVote:
		var req targetRequest
		if err := decode(body, &req); err != nil {
			return game.Result{}, err
		}
		if err := required("targetPlayerId", req.TargetPlayerID); err != nil {
			return game.Result{}, err
		}
		return s.Vote(playerID, engine.VoteTarget(req.TargetPlayerID)), nil

	case ActionVent:
		var req ventRequest
		if err := decode(body, &req); err != nil {
			return game.Result{}, err
		}
		if err := required("action", string(req.Action)); err != nil {
			return game.Result{}, err
		}
		return s.Vent(playerID, req.Action, req.TargetRoom), nil
	}
	return game.Result{}, ErrUnknownAction
}
