package game

import (
	"time"

	"github.com/google/uuid"

	"github.com/minitoshi/susbot/engine"
)

// VisiblePlayer is another player as seen by an agent.
type VisiblePlayer struct {
	PlayerRef
	Position engine.Position `json:"position"`
	Alive    bool            `json:"alive"`
}

// TaskView is an assigned task with its duration in wire units.
type TaskView struct {
	engine.Task
	DurationMs int64 `json:"durationMs"`
}

// SelfView is an agent's complete knowledge of itself.
type SelfView struct {
	PlayerID           string           `json:"playerId"`
	Name               string           `json:"name"`
	Color              engine.Color     `json:"color"`
	Role               engine.Role      `json:"role"`
	Alive              bool             `json:"alive"`
	Position           engine.Position  `json:"position"`
	Target             *engine.Position `json:"targetPosition,omitempty"`
	Room               string           `json:"currentRoom,omitempty"`
	Tasks              []TaskView       `json:"tasks"`
	EmergencyLeft      int              `json:"emergencyButtonsLeft"`
	KillCooldownSec    *int             `json:"killCooldownRemaining"`
	InVent             bool             `json:"inVent"`
	FellowImpostors    []PlayerRef      `json:"fellowImpostors,omitempty"`
	ConnectedVentRooms []string         `json:"connectedVentRooms,omitempty"`
}

// AgentView is the vision-filtered snapshot served to one player.
type AgentView struct {
	GameID              uuid.UUID        `json:"gameId"`
	Phase               engine.Phase     `json:"phase"`
	PhaseTimerRemaining *int             `json:"phaseTimerRemaining"`
	GameTimerRemaining  *int             `json:"gameTimerRemaining"`
	Round               int              `json:"round"`
	You                 SelfView         `json:"you"`
	VisiblePlayers      []VisiblePlayer  `json:"visiblePlayers"`
	VisibleBodies       []engine.Body    `json:"visibleBodies"`
	TaskBarProgress     float64          `json:"taskBarProgress"`
	AliveCount          int              `json:"aliveCount"`
	MeetingCooldown     *int             `json:"meetingCooldownRemaining"`
	Meeting             *engine.Meeting  `json:"meeting,omitempty"`
	Winner              engine.Winner    `json:"winner,omitempty"`
	WinReason           engine.WinReason `json:"winReason,omitempty"`
}

// MeetingView is the meeting context served to one player.
type MeetingView struct {
	Phase                 engine.Phase               `json:"phase"`
	PhaseTimerRemaining   *int                       `json:"phaseTimerRemaining"`
	Trigger               engine.MeetingTrigger      `json:"trigger"`
	TriggerDetails        engine.Meeting             `json:"triggerDetails"`
	Round                 int                        `json:"round"`
	DiscussionMessages    []engine.DiscussionMessage `json:"discussionMessages"`
	AlivePlayers          []PlayerRef                `json:"alivePlayers"`
	YourVote              *engine.VoteTarget         `json:"yourVote"`
	VotesCastCount        int                        `json:"votesCastCount"`
	YourRemainingMessages int                        `json:"yourRemainingMessages"`
	Result                *engine.VoteResult         `json:"result,omitempty"`
}

// SpectatorPlayer is the unfiltered state of one player.
type SpectatorPlayer struct {
	PlayerRef
	Role     engine.Role     `json:"role"`
	Alive    bool            `json:"alive"`
	Position engine.Position `json:"position"`
	Room     string          `json:"currentRoom,omitempty"`
	InVent   bool            `json:"inVent"`
	Tasks    []TaskView      `json:"tasks"`
}

// SpectatorView is the omniscient snapshot, roles included.
type SpectatorView struct {
	GameID              uuid.UUID                    `json:"gameId"`
	Phase               engine.Phase                 `json:"phase"`
	PhaseTimerRemaining *int                         `json:"phaseTimerRemaining"`
	GameTimerRemaining  *int                         `json:"gameTimerRemaining"`
	Players             []SpectatorPlayer            `json:"players"`
	Bodies              []engine.Body                `json:"bodies"`
	TaskBarProgress     float64                      `json:"taskBarProgress"`
	AliveCount          int                          `json:"aliveCount"`
	ImpostorIDs         []string                     `json:"impostorIds"`
	Messages            []engine.DiscussionMessage   `json:"messages"`
	Meeting             *engine.Meeting              `json:"meetingInfo"`
	Votes               map[string]engine.VoteTarget `json:"votes"`
	LastResult          *engine.VoteResult           `json:"lastVoteResult,omitempty"`
	Round               int                          `json:"round"`
	Winner              engine.Winner                `json:"winner,omitempty"`
	WinReason           engine.WinReason             `json:"winReason,omitempty"`
}

// LobbyInfo is the public listing entry of a session.
type LobbyInfo struct {
	GameID      uuid.UUID    `json:"gameId"`
	Phase       engine.Phase `json:"phase"`
	PlayerCount int          `json:"playerCount"`
	MaxPlayers  int          `json:"maxPlayers"`
	CreatedAt   time.Time    `json:"createdAt"`
	Players     []PlayerRef  `json:"players"`
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// Phase returns the current phase.
func (s *Session) Phase() engine.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// HasPlayer reports whether playerID is seated in this session.
func (s *Session) HasPlayer(playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.players[playerID]
	return ok
}

// Player returns a copy of one player's full state.
func (s *Session) Player(playerID string) (engine.Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		return engine.Player{}, false
	}
	return clonePlayer(p), true
}

// AliveCount returns the number of living players.
func (s *Session) AliveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aliveCountLocked()
}

func (s *Session) aliveCountLocked() int {
	n := 0
	for _, p := range s.players {
		if p.Alive {
			n++
		}
	}
	return n
}

// TaskProgress is the fraction of crewmate tasks completed, in [0, 1].
func (s *Session) TaskProgress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taskProgressLocked()
}

func (s *Session) taskProgressLocked() float64 {
	if s.totalTasks == 0 {
		return 0
	}
	return float64(s.completedTasks) / float64(s.totalTasks)
}

// PhaseTimerRemaining returns the whole seconds left in the current phase,
// or nil when the phase has no deadline.
func (s *Session) PhaseTimerRemaining() *int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining(s.phaseEnd)
}

// GameTimerRemaining returns the whole seconds left before the time-limit
// win, or nil before the first task phase.
func (s *Session) GameTimerRemaining() *int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining(s.gameEnd)
}

// remaining rounds the time until deadline up to seconds, floored at zero.
// Assumes lock is held by caller.
func (s *Session) remaining(deadline time.Time) *int {
	if deadline.IsZero() {
		return nil
	}
	d := deadline.Sub(s.clock.Now())
	sec := ceilSeconds(d)
	return &sec
}

// Winner returns the winning side and reason, empty while the game runs.
func (s *Session) Winner() (engine.Winner, engine.WinReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.winner, s.winReason
}

// Result returns the archive summary of a finished game.
func (s *Session) Result() (GameResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != engine.PhaseGameOver {
		return GameResult{}, false
	}
	return s.resultLocked(), true
}

// ---------------------------------------------------------------------------
// Vision
// ---------------------------------------------------------------------------

// Perceivers returns the ids of living players whose vision covers pos, in
// join order, skipping any id in exclude.
func (s *Session) Perceivers(pos engine.Position, exclude ...string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.perceivers(pos, exclude...)
}

// Assumes lock is held by caller.
func (s *Session) perceivers(pos engine.Position, exclude ...string) []string {
	var out []string
outer:
	for _, id := range s.order {
		for _, x := range exclude {
			if id == x {
				continue outer
			}
		}
		p := s.players[id]
		if p.Alive && engine.Visible(p.Position, pos, s.Settings.VisionRadius(p.Role)) {
			out = append(out, id)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Views
// ---------------------------------------------------------------------------

func taskViews(tasks []engine.Task) []TaskView {
	out := make([]TaskView, len(tasks))
	for i, t := range tasks {
		if t.StartedAt != nil {
			st := *t.StartedAt
			t.StartedAt = &st
		}
		out[i] = TaskView{Task: t, DurationMs: t.Duration.Milliseconds()}
	}
	return out
}

// AgentView builds the filtered snapshot for playerID: full self state,
// other living, non-vented players and bodies within vision radius, and
// meeting context.
func (s *Session) AgentView(playerID string) (AgentView, Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return AgentView{}, reject(engine.ReasonSessionClosed)
	}
	p, ok := s.players[playerID]
	if !ok {
		return AgentView{}, reject(engine.ReasonPlayerNotFound)
	}
	now := s.clock.Now()
	radius := s.Settings.VisionRadius(p.Role)

	self := SelfView{
		PlayerID:      p.ID,
		Name:          p.Profile.Name,
		Color:         p.Color,
		Role:          p.Role,
		Alive:         p.Alive,
		Position:      p.Position,
		Room:          p.Room,
		Tasks:         taskViews(p.Tasks),
		EmergencyLeft: p.EmergencyLeft,
		InVent:        p.InVent,
	}
	if p.Target != nil {
		t := *p.Target
		self.Target = &t
	}
	if p.IsImpostor() {
		sec := ceilSeconds(engine.KillCooldownRemaining(p, s.Settings, now))
		self.KillCooldownSec = &sec
		for _, id := range s.impostorIDs {
			if id != p.ID {
				self.FellowImpostors = append(self.FellowImpostors, refOf(s.players[id]))
			}
		}
		if p.InVent {
			if room := s.m.RoomAt(p.Position); room != nil {
				for _, r := range s.m.ConnectedVentRooms(room.ID) {
					if r.Vent != nil {
						self.ConnectedVentRooms = append(self.ConnectedVentRooms, r.Name)
					}
				}
			}
		}
	}

	view := AgentView{
		GameID:              s.ID,
		Phase:               s.phase,
		PhaseTimerRemaining: s.remaining(s.phaseEnd),
		GameTimerRemaining:  s.remaining(s.gameEnd),
		Round:               s.round,
		You:                 self,
		VisiblePlayers:      []VisiblePlayer{},
		VisibleBodies:       []engine.Body{},
		TaskBarProgress:     s.taskProgressLocked(),
		AliveCount:          s.aliveCountLocked(),
		MeetingCooldown:     s.remaining(s.meetingCooldownEnd),
		Winner:              s.winner,
		WinReason:           s.winReason,
	}
	if s.meeting != nil {
		m := *s.meeting
		view.Meeting = &m
	}

	for _, id := range s.order {
		o := s.players[id]
		if o.ID == p.ID || !o.Alive || o.InVent {
			continue
		}
		if engine.Visible(p.Position, o.Position, radius) {
			view.VisiblePlayers = append(view.VisiblePlayers, VisiblePlayer{PlayerRef: refOf(o), Position: o.Position, Alive: o.Alive})
		}
	}
	for _, b := range s.bodies {
		if engine.Visible(p.Position, b.Position, radius) {
			view.VisibleBodies = append(view.VisibleBodies, b)
		}
	}
	return view, accept()
}

// MeetingView builds the meeting context for playerID. It is rejected with
// WRONG_PHASE when no meeting is running.
func (s *Session) MeetingView(playerID string) (MeetingView, Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return MeetingView{}, reject(engine.ReasonSessionClosed)
	}
	p, ok := s.players[playerID]
	if !ok {
		return MeetingView{}, reject(engine.ReasonPlayerNotFound)
	}
	if s.meeting == nil {
		return MeetingView{}, reject(engine.ReasonWrongPhase)
	}

	view := MeetingView{
		Phase:                 s.phase,
		PhaseTimerRemaining:   s.remaining(s.phaseEnd),
		Trigger:               s.meeting.Trigger,
		TriggerDetails:        *s.meeting,
		Round:                 s.round,
		DiscussionMessages:    append([]engine.DiscussionMessage{}, s.messages...),
		AlivePlayers:          []PlayerRef{},
		VotesCastCount:        len(s.votes),
		YourRemainingMessages: s.Settings.MessagesPerMeeting - s.msgCount[p.ID],
	}
	if view.YourRemainingMessages < 0 {
		view.YourRemainingMessages = 0
	}
	if v, ok := s.votes[p.ID]; ok {
		view.YourVote = &v
	}
	for _, id := range s.order {
		if o := s.players[id]; o.Alive {
			view.AlivePlayers = append(view.AlivePlayers, refOf(o))
		}
	}
	if s.lastResult != nil {
		r := *s.lastResult
		view.Result = &r
	}
	return view, accept()
}

// SpectatorView builds the omniscient snapshot.
func (s *Session) SpectatorView() SpectatorView {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := SpectatorView{
		GameID:              s.ID,
		Phase:               s.phase,
		PhaseTimerRemaining: s.remaining(s.phaseEnd),
		GameTimerRemaining:  s.remaining(s.gameEnd),
		Players:             make([]SpectatorPlayer, 0, len(s.order)),
		Bodies:              append([]engine.Body{}, s.bodies...),
		TaskBarProgress:     s.taskProgressLocked(),
		AliveCount:          s.aliveCountLocked(),
		ImpostorIDs:         append([]string{}, s.impostorIDs...),
		Messages:            append([]engine.DiscussionMessage{}, s.messages...),
		Votes:               make(map[string]engine.VoteTarget, len(s.votes)),
		Round:               s.round,
		Winner:              s.winner,
		WinReason:           s.winReason,
	}
	for _, id := range s.order {
		p := s.players[id]
		view.Players = append(view.Players, SpectatorPlayer{
			PlayerRef: refOf(p),
			Role:      p.Role,
			Alive:     p.Alive,
			Position:  p.Position,
			Room:      p.Room,
			InVent:    p.InVent,
			Tasks:     taskViews(p.Tasks),
		})
	}
	for k, v := range s.votes {
		view.Votes[k] = v
	}
	if s.meeting != nil {
		m := *s.meeting
		view.Meeting = &m
	}
	if s.lastResult != nil {
		r := *s.lastResult
		view.LastResult = &r
	}
	return view
}

// LobbyInfo builds the public listing entry.
func (s *Session) LobbyInfo() LobbyInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := LobbyInfo{
		GameID:      s.ID,
		Phase:       s.phase,
		PlayerCount: len(s.players),
		MaxPlayers:  s.Settings.MaxPlayers,
		CreatedAt:   s.CreatedAt,
		Players:     make([]PlayerRef, 0, len(s.order)),
	}
	for _, id := range s.order {
		info.Players = append(info.Players, refOf(s.players[id]))
	}
	return info
}
