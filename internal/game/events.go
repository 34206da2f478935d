package game

import (
	"sync"
	"time"

	"github.com/minitoshi/susbot/engine"
)

// EventType names an outbound session event.
type EventType string

const (
	EventPhaseChanged      EventType = "phase_changed"
	EventPlayerJoined      EventType = "player_joined"
	EventPlayerLeft        EventType = "player_left"
	EventPlayerMoved       EventType = "player_moved"
	EventPlayerKilled      EventType = "player_killed"
	EventPlayerVented      EventType = "player_vented"
	EventMeetingCalled     EventType = "meeting_called"
	EventDiscussionMessage EventType = "discussion_message"
	EventImpostorChat      EventType = "impostor_chat"
	EventVotingOpened      EventType = "voting_opened"
	EventPlayerVoted       EventType = "player_voted"
	EventVoteResult        EventType = "vote_result"
	EventTaskCompleted     EventType = "task_completed"
	EventTaskbarUpdated    EventType = "taskbar_updated"
	EventGameStarted       EventType = "game_started"
	EventGameOver          EventType = "game_over"
)

// Event is one entry of a session's ordered event stream. Payload holds one
// of the *Payload types below, matching Type.
type Event struct {
	Seq     uint64    `json:"seq"`
	Type    EventType `json:"type"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// PlayerRef is the public identity of a player.
type PlayerRef struct {
	PlayerID string       `json:"playerId"`
	Name     string       `json:"name"`
	Color    engine.Color `json:"color"`
}

type PhaseChangedPayload struct {
	Phase    engine.Phase `json:"phase"`
	TimerSec int          `json:"timerSec,omitempty"`
}

type PlayerJoinedPayload struct {
	PlayerRef
	AvatarURL string `json:"avatarUrl,omitempty"`
}

type PlayerLeftPayload struct {
	PlayerRef
}

// PlayerMovedPayload carries the ids of living players whose vision covered
// the destination at the moment of the move.
type PlayerMovedPayload struct {
	PlayerID  string          `json:"playerId"`
	Color     engine.Color    `json:"color"`
	Position  engine.Position `json:"position"`
	Room      string          `json:"room,omitempty"`
	Witnesses []string        `json:"-"`
}

// PlayerKilledPayload records a kill. Witnesses saw the victim fall;
// KillerSeenBy is the subset that also had the killer in view.
type PlayerKilledPayload struct {
	KillerID     string          `json:"killerId"`
	KillerColor  engine.Color    `json:"killerColor"`
	VictimID     string          `json:"victimId"`
	VictimColor  engine.Color    `json:"victimColor"`
	Position     engine.Position `json:"location"`
	Room         string          `json:"room,omitempty"`
	Witnesses    []string        `json:"-"`
	KillerSeenBy []string        `json:"-"`
}

type PlayerVentedPayload struct {
	PlayerID string          `json:"playerId"`
	Color    engine.Color    `json:"color"`
	Action   VentAction      `json:"action"`
	Room     string          `json:"room,omitempty"`
	Position engine.Position `json:"position"`
}

type MeetingCalledPayload struct {
	engine.Meeting
	Round int `json:"round"`
}

type DiscussionMessagePayload struct {
	engine.DiscussionMessage
}

type ImpostorChatPayload struct {
	PlayerRef
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type VotingOpenedPayload struct {
	TimerSec     int         `json:"timerSec"`
	AlivePlayers []PlayerRef `json:"alivePlayers"`
}

type PlayerVotedPayload struct {
	PlayerID string       `json:"playerId"`
	Color    engine.Color `json:"color"`
}

type VoteResultPayload struct {
	engine.VoteResult
}

type TaskCompletedPayload struct {
	PlayerID string `json:"playerId"`
	TaskID   string `json:"taskId"`
	TaskName string `json:"taskName"`
}

type TaskbarUpdatedPayload struct {
	Progress float64 `json:"progress"`
}

// GameStartedPayload is the full roster with roles and tasks. It must only
// reach spectators whole; agents receive their own slice of it.
type GameStartedPayload struct {
	Players     []engine.Player `json:"players"`
	ImpostorIDs []string        `json:"impostorIds"`
}

type GameOverPayload struct {
	Winner engine.Winner          `json:"winner"`
	Reason engine.WinReason       `json:"reason"`
	Roles  map[string]engine.Role `json:"roles"`
}

// EventQueue is an unbounded FIFO of session events. The session appends
// while holding its own lock; a single transport consumer waits on Ready
// and calls Drain.
type EventQueue struct {
	mu     sync.Mutex
	events []Event
	seq    uint64
	ready  chan struct{}
	closed bool
}

// NewEventQueue returns an empty queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{ready: make(chan struct{}, 1)}
}

// Push appends an event, stamping its sequence number.
func (q *EventQueue) Push(t EventType, at time.Time, payload any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.seq++
	q.events = append(q.events, Event{Seq: q.seq, Type: t, At: at, Payload: payload})
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Ready is signalled whenever events are pushed. It is closed by Close.
func (q *EventQueue) Ready() <-chan struct{} {
	return q.ready
}

// Drain returns all queued events in order and clears the queue.
func (q *EventQueue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return nil
	}
	out := q.events
	q.events = nil
	return out
}

// Len reports how many events are waiting.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close stops accepting events and wakes the consumer for the last time.
// Events already queued can still be drained.
func (q *EventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ready)
}
