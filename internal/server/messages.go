// internal/server/messages.go
package server

import (
	"slices"

	"github.com/minitoshi/susbot/engine"
	"github.com/minitoshi/susbot/internal/game"
)

// Message is one outbound WebSocket frame.
type Message struct {
	Type string `json:"type"`
	Seq  uint64 `json:"seq,omitempty"`
	Data any    `json:"data,omitempty"`
}

// Outbound message types.
const (
	MsgPhaseChanged  = "game:phase_changed"
	MsgPlayerJoined  = "lobby:player_joined"
	MsgPlayerLeft    = "lobby:player_left"
	MsgRoleAssigned  = "game:role_assigned"
	MsgRolesAssigned = "game:roles_assigned"
	MsgPlayerMoved   = "player:moved"
	MsgPlayerKilled  = "player:killed"
	MsgYouKilled     = "you:killed"
	MsgPlayerVented  = "player:vented"
	MsgMeetingCalled = "meeting:called"
	MsgDiscussion    = "discussion:message"
	MsgImpostorChat  = "impostor:chat"
	MsgVotingOpened  = "voting:opened"
	MsgPlayerVoted   = "voting:player_voted"
	MsgVoteResult    = "vote:result"
	MsgTaskCompleted = "task:completed"
	MsgTaskbar       = "taskbar:updated"
	MsgGameOver      = "game:over"
	MsgHeartbeat     = "heartbeat:state"
	MsgAck           = "ack"
	MsgError         = "error"
)

var eventMessageTypes = map[game.EventType]string{
	game.EventPhaseChanged:      MsgPhaseChanged,
	game.EventPlayerJoined:      MsgPlayerJoined,
	game.EventPlayerLeft:        MsgPlayerLeft,
	game.EventPlayerMoved:       MsgPlayerMoved,
	game.EventPlayerKilled:      MsgPlayerKilled,
	game.EventPlayerVented:      MsgPlayerVented,
	game.EventMeetingCalled:     MsgMeetingCalled,
	game.EventDiscussionMessage: MsgDiscussion,
	game.EventImpostorChat:      MsgImpostorChat,
	game.EventVotingOpened:      MsgVotingOpened,
	game.EventPlayerVoted:       MsgPlayerVoted,
	game.EventVoteResult:        MsgVoteResult,
	game.EventTaskCompleted:     MsgTaskCompleted,
	game.EventTaskbarUpdated:    MsgTaskbar,
	game.EventGameOver:          MsgGameOver,
}

type roleAssignment struct {
	Role            engine.Role      `json:"role"`
	Tasks           []engine.Task    `json:"tasks"`
	FellowImpostors []game.PlayerRef `json:"fellowImpostors"`
}

type rolesAssigned struct {
	Roles map[string]engine.Role `json:"roles"`
}

type movedView struct {
	PlayerID string          `json:"playerId"`
	Color    engine.Color    `json:"color"`
	Position engine.Position `json:"position"`
}

type killWitnessed struct {
	VictimID    string          `json:"victimId"`
	VictimColor engine.Color    `json:"victimColor"`
	Location    engine.Position `json:"location"`
	KillerID    *string         `json:"killerId"`
	KillerColor *engine.Color   `json:"killerColor"`
}

type youKilled struct {
	KillerID    string       `json:"killerId"`
	KillerColor engine.Color `json:"killerColor"`
}

type taskDone struct {
	TaskID   string `json:"taskId"`
	TaskName string `json:"taskName"`
}

// spectatorMessage renders ev for the omniscient audience.
func spectatorMessage(ev game.Event) (Message, bool) {
	if ev.Type == game.EventGameStarted {
		p := ev.Payload.(game.GameStartedPayload)
		roles := make(map[string]engine.Role, len(p.Players))
		for _, pl := range p.Players {
			roles[pl.ID] = pl.Role
		}
		return Message{Type: MsgRolesAssigned, Seq: ev.Seq, Data: rolesAssigned{Roles: roles}}, true
	}
	typ, ok := eventMessageTypes[ev.Type]
	if !ok {
		return Message{}, false
	}
	return Message{Type: typ, Seq: ev.Seq, Data: ev.Payload}, true
}

// agentMessage renders ev for one player, or reports false if that player
// must not learn of it. viewer is the player's state at delivery time.
func agentMessage(ev game.Event, viewer engine.Player) (Message, bool) {
	msg := func(typ string, data any) (Message, bool) {
		return Message{Type: typ, Seq: ev.Seq, Data: data}, true
	}

	switch p := ev.Payload.(type) {
	case game.GameStartedPayload:
		var self *engine.Player
		for i := range p.Players {
			if p.Players[i].ID == viewer.ID {
				self = &p.Players[i]
			}
		}
		if self == nil {
			return Message{}, false
		}
		out := roleAssignment{Role: self.Role, Tasks: self.Tasks}
		if self.IsImpostor() {
			out.FellowImpostors = []game.PlayerRef{}
			for _, o := range p.Players {
				if o.IsImpostor() && o.ID != self.ID {
					out.FellowImpostors = append(out.FellowImpostors, game.PlayerRef{PlayerID: o.ID, Name: o.Profile.Name, Color: o.Color})
				}
			}
		}
		return msg(MsgRoleAssigned, out)

	case game.PlayerMovedPayload:
		if !slices.Contains(p.Witnesses, viewer.ID) {
			return Message{}, false
		}
		return msg(MsgPlayerMoved, movedView{PlayerID: p.PlayerID, Color: p.Color, Position: p.Position})

	case game.PlayerKilledPayload:
		switch {
		case viewer.ID == p.VictimID:
			return msg(MsgYouKilled, youKilled{KillerID: p.KillerID, KillerColor: p.KillerColor})
		case viewer.ID == p.KillerID:
			return Message{}, false
		case !slices.Contains(p.Witnesses, viewer.ID):
			return Message{}, false
		}
		out := killWitnessed{VictimID: p.VictimID, VictimColor: p.VictimColor, Location: p.Position}
		if slices.Contains(p.KillerSeenBy, viewer.ID) {
			id, color := p.KillerID, p.KillerColor
			out.KillerID, out.KillerColor = &id, &color
		}
		return msg(MsgPlayerKilled, out)

	case game.PlayerVentedPayload:
		return Message{}, false

	case game.DiscussionMessagePayload:
		if !viewer.Alive {
			return Message{}, false
		}

	case game.ImpostorChatPayload:
		if !viewer.Alive || !viewer.IsImpostor() {
			return Message{}, false
		}

	case game.TaskCompletedPayload:
		if viewer.ID != p.PlayerID {
			return Message{}, false
		}
		return msg(MsgTaskCompleted, taskDone{TaskID: p.TaskID, TaskName: p.TaskName})
	}

	typ, ok := eventMessageTypes[ev.Type]
	if !ok {
		return Message{}, false
	}
	return msg(typ, ev.Payload)
}
