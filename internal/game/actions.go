package game

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/minitoshi/susbot/engine"
)

// Result is the outcome of an agent action. Reason is empty when accepted.
type Result struct {
	Accepted bool          `json:"accepted"`
	Reason   engine.Reason `json:"error,omitempty"`
}

func accept() Result { return Result{Accepted: true} }

func reject(r engine.Reason) Result { return Result{Reason: r} }

func reasonOf(err error) engine.Reason {
	var r engine.Reason
	if errors.As(err, &r) {
		return r
	}
	log.Panicf("unexpected validation error: %v", err)
	return engine.ReasonNone
}

// Channel selects where a discussion message goes.
type Channel string

const (
	ChannelPublic   Channel = "public"
	ChannelImpostor Channel = "impostor"
)

// VentAction is one of the three vent manoeuvres.
type VentAction string

const (
	VentEnter VentAction = "enter"
	VentMove  VentAction = "move"
	VentExit  VentAction = "exit"
)

// actor resolves playerID for an action valid only in phase.
// Assumes lock is held by caller.
func (s *Session) actor(playerID string, phases ...engine.Phase) (*engine.Player, engine.Reason) {
	if s.destroyed {
		return nil, engine.ReasonSessionClosed
	}
	ok := false
	for _, ph := range phases {
		if s.phase == ph {
			ok = true
			break
		}
	}
	if !ok {
		return nil, engine.ReasonWrongPhase
	}
	p, found := s.players[playerID]
	if !found {
		return nil, engine.ReasonPlayerNotFound
	}
	return p, engine.ReasonNone
}

// Move sets the player's commanded destination. Movement itself happens
// one cell at a time in the tick loop.
func (s *Session) Move(playerID string, target engine.Position) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, r := s.actor(playerID, engine.PhaseTasks)
	switch {
	case r != engine.ReasonNone:
		return reject(r)
	case !p.Alive:
		return reject(engine.ReasonPlayerDead)
	case p.InVent:
		return reject(engine.ReasonInVent)
	case !s.m.IsWalkable(target):
		return reject(engine.ReasonInvalidTarget)
	}

	t := target
	p.Target = &t
	return accept()
}

// Kill lets an impostor kill a nearby crewmate, leaving a body behind.
func (s *Session) Kill(killerID, targetID string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	killer, r := s.actor(killerID, engine.PhaseTasks)
	if r != engine.ReasonNone {
		return reject(r)
	}
	target, ok := s.players[targetID]
	if !ok {
		return reject(engine.ReasonTargetNotFound)
	}

	now := s.clock.Now()
	if err := engine.ValidateKill(killer, target, s.Settings, now); err != nil {
		return reject(reasonOf(err))
	}

	target.Alive = false
	target.Target = nil
	killer.LastKillAt = &now

	body := engine.Body{
		PlayerID: target.ID,
		Color:    target.Color,
		Position: target.Position,
		Room:     target.Room,
	}
	s.bodies = append(s.bodies, body)

	s.emit(EventPlayerKilled, PlayerKilledPayload{
		KillerID:     killer.ID,
		KillerColor:  killer.Color,
		VictimID:     target.ID,
		VictimColor:  target.Color,
		Position:     body.Position,
		Room:         body.Room,
		Witnesses:    s.perceivers(body.Position, killer.ID, target.ID),
		KillerSeenBy: s.perceivers(killer.Position, killer.ID, target.ID),
	})
	s.logAction(killer.ID, "kill", map[string]any{"victim": target.ID, "x": body.Position.X, "y": body.Position.Y})
	log.Infof("Game %s: %s killed %s in %q.", s.ID, killer.ID, target.ID, body.Room)

	s.checkWin()
	return accept()
}

// Report calls a meeting over a body the reporter can see.
func (s *Session) Report(reporterID, bodyID string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	reporter, r := s.actor(reporterID, engine.PhaseTasks)
	if r != engine.ReasonNone {
		return reject(r)
	}
	if reporter.Alive && reporter.InVent {
		return reject(engine.ReasonInVent)
	}
	radius := s.Settings.VisionRadius(reporter.Role)
	if err := engine.ValidateReport(reporter, s.bodies, bodyID, radius); err != nil {
		return reject(reasonOf(err))
	}

	meeting := engine.Meeting{
		Trigger:     engine.TriggerBodyReported,
		CallerID:    reporter.ID,
		CallerColor: reporter.Color,
		BodyID:      bodyID,
	}
	for _, b := range s.bodies {
		if b.PlayerID == bodyID {
			meeting.BodyColor = b.Color
			meeting.BodyRoom = b.Room
		}
	}
	s.callMeeting(meeting)
	return accept()
}

// Emergency presses the emergency button.
func (s *Session) Emergency(playerID string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, r := s.actor(playerID, engine.PhaseTasks)
	switch {
	case r != engine.ReasonNone:
		return reject(r)
	case !p.Alive:
		return reject(engine.ReasonPlayerDead)
	case p.InVent:
		return reject(engine.ReasonInVent)
	case p.EmergencyLeft <= 0:
		return reject(engine.ReasonNoButtonsLeft)
	case !s.m.NearButton(p.Position):
		return reject(engine.ReasonNotNearButton)
	case s.clock.Now().Before(s.meetingCooldownEnd):
		return reject(engine.ReasonMeetingOnCooldown)
	}

	p.EmergencyLeft--
	s.callMeeting(engine.Meeting{
		Trigger:     engine.TriggerEmergency,
		CallerID:    p.ID,
		CallerColor: p.Color,
	})
	return accept()
}

// StartTask begins work on an assigned task. The player is rooted until the
// task completes or a meeting interrupts it.
func (s *Session) StartTask(playerID, taskID string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, r := s.actor(playerID, engine.PhaseTasks)
	switch {
	case r != engine.ReasonNone:
		return reject(r)
	case !p.Alive:
		return reject(engine.ReasonPlayerDead)
	case p.InVent:
		return reject(engine.ReasonInVent)
	}

	task := p.TaskByID(taskID)
	switch {
	case task == nil:
		return reject(engine.ReasonTaskNotAssigned)
	case task.Completed:
		return reject(engine.ReasonTaskAlreadyCompleted)
	case task.InProgress():
		return reject(engine.ReasonTaskInProgress)
	case !s.m.NearTaskStation(p.Position, task.Room):
		return reject(engine.ReasonNotAtTaskStation)
	case p.ActiveTask() != nil:
		return reject(engine.ReasonAlreadyDoingTask)
	}

	now := s.clock.Now()
	task.StartedAt = &now
	p.Target = nil
	s.logAction(p.ID, "task_start", map[string]any{"task": task.ID})
	return accept()
}

// Discuss posts a chat message. The impostor channel is a private
// free-roam back channel; the public channel is the meeting transcript.
func (s *Session) Discuss(playerID, message string, channel Channel) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return reject(engine.ReasonSessionClosed)
	}
	if channel == "" {
		channel = ChannelPublic
	}

	switch channel {
	case ChannelImpostor:
		p, r := s.actor(playerID, engine.PhaseTasks)
		switch {
		case r != engine.ReasonNone:
			return reject(r)
		case !p.Alive:
			return reject(engine.ReasonPlayerDead)
		case !p.IsImpostor():
			return reject(engine.ReasonNotImpostor)
		}
		text, ok := s.cleanMessage(message)
		if !ok {
			return reject(engine.ReasonEmptyMessage)
		}
		s.emit(EventImpostorChat, ImpostorChatPayload{PlayerRef: refOf(p), Message: text, Timestamp: s.clock.Now()})
		return accept()

	case ChannelPublic:
		p, r := s.actor(playerID, engine.PhaseDiscussion, engine.PhaseVoting)
		switch {
		case r != engine.ReasonNone:
			return reject(r)
		case !p.Alive:
			return reject(engine.ReasonPlayerDead)
		case s.msgCount[p.ID] >= s.Settings.MessagesPerMeeting:
			return reject(engine.ReasonMessageLimitReached)
		}
		now := s.clock.Now()
		if last, ok := s.lastMsgAt[p.ID]; ok && now.Sub(last) < s.Settings.MessageInterval {
			return reject(engine.ReasonMessageCooldown)
		}
		text, ok := s.cleanMessage(message)
		if !ok {
			return reject(engine.ReasonEmptyMessage)
		}

		id, _ := uuid.NewRandom()
		msg := engine.DiscussionMessage{
			ID:         id.String(),
			PlayerID:   p.ID,
			Color:      p.Color,
			PlayerName: p.Profile.Name,
			Message:    text,
			Timestamp:  now,
		}
		s.messages = append(s.messages, msg)
		s.msgCount[p.ID]++
		s.lastMsgAt[p.ID] = now
		s.emit(EventDiscussionMessage, DiscussionMessagePayload{DiscussionMessage: msg})
		s.logAction(p.ID, "discuss", map[string]any{"message": text})
		return accept()
	}
	return reject(engine.ReasonInvalidChannel)
}

// cleanMessage trims surrounding whitespace and truncates to the configured
// rune limit. ok is false for an empty message.
func (s *Session) cleanMessage(message string) (string, bool) {
	text := strings.TrimSpace(message)
	if text == "" {
		return "", false
	}
	if limit := s.Settings.MessageMaxLength; limit > 0 && utf8.RuneCountInString(text) > limit {
		text = string([]rune(text)[:limit])
	}
	return text, true
}

// Vote casts a ballot. Once every living player has voted the meeting
// resolves immediately.
func (s *Session) Vote(playerID string, target engine.VoteTarget) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, r := s.actor(playerID, engine.PhaseVoting)
	switch {
	case r != engine.ReasonNone:
		return reject(r)
	case !p.Alive:
		return reject(engine.ReasonPlayerDead)
	}
	if _, voted := s.votes[p.ID]; voted {
		return reject(engine.ReasonAlreadyVoted)
	}
	if target != engine.VoteSkip {
		tp, ok := s.players[string(target)]
		if !ok || !tp.Alive {
			return reject(engine.ReasonInvalidVoteTarget)
		}
		if tp.ID == p.ID {
			return reject(engine.ReasonCannotSelfVote)
		}
	}

	s.votes[p.ID] = target
	s.emit(EventPlayerVoted, PlayerVotedPayload{PlayerID: p.ID, Color: p.Color})
	s.logAction(p.ID, "vote", map[string]any{"target": target})

	if len(s.votes) >= s.aliveCountLocked() {
		s.resolveVotes()
	}
	return accept()
}

// Vent performs an impostor vent manoeuvre. Entering snaps the player onto
// the vent cell; moving jumps to a connected room's vent.
func (s *Session) Vent(playerID string, action VentAction, targetRoom string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, r := s.actor(playerID, engine.PhaseTasks)
	switch {
	case r != engine.ReasonNone:
		return reject(r)
	case !p.IsImpostor():
		return reject(engine.ReasonNotImpostor)
	case !p.Alive:
		return reject(engine.ReasonPlayerDead)
	}

	switch action {
	case VentEnter:
		if p.InVent {
			return reject(engine.ReasonAlreadyInVent)
		}
		room := s.m.NearVent(p.Position)
		if room == nil {
			return reject(engine.ReasonNotNearVent)
		}
		p.InVent = true
		p.Target = nil
		p.Position = *room.Vent
		p.Room = room.Name

	case VentMove:
		if !p.InVent {
			return reject(engine.ReasonNotInVent)
		}
		if targetRoom == "" {
			return reject(engine.ReasonTargetRoomRequired)
		}
		cur := s.m.RoomAt(p.Position)
		if cur == nil {
			return reject(engine.ReasonRoomNotFound)
		}
		var dest *engine.Room
		for _, room := range s.m.ConnectedVentRooms(cur.ID) {
			if room.Name == targetRoom && room.Vent != nil {
				dest = &room
				break
			}
		}
		if dest == nil {
			return reject(engine.ReasonVentNotConnected)
		}
		p.Position = *dest.Vent
		p.Room = dest.Name

	case VentExit:
		if !p.InVent {
			return reject(engine.ReasonNotInVent)
		}
		p.InVent = false
		p.Target = nil

	default:
		return reject(engine.ReasonInvalidVentAction)
	}

	s.emit(EventPlayerVented, PlayerVentedPayload{
		PlayerID: p.ID,
		Color:    p.Color,
		Action:   action,
		Room:     p.Room,
		Position: p.Position,
	})
	s.logAction(p.ID, "vent_"+string(action), map[string]any{"room": p.Room})
	return accept()
}
