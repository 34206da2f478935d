package engine

import "time"

// ---------------------------------------------------------------------------
// Geometry
// ---------------------------------------------------------------------------

// Position is an integer grid coordinate.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Adjacent reports whether p and o differ by one unit on exactly one axis.
func (p Position) Adjacent(o Position) bool {
	dx, dy := absInt(p.X-o.X), absInt(p.Y-o.Y)
	return dx+dy == 1
}

// Rect is an axis-aligned rectangle of cells; X/Y inclusive, W/H exclusive.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Contains reports whether p lies inside r.
func (r Rect) Contains(p Position) bool {
	return p.X >= r.X && p.X < r.X+r.W && p.Y >= r.Y && p.Y < r.Y+r.H
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// ---------------------------------------------------------------------------
// Phases, roles, colours
// ---------------------------------------------------------------------------

// Phase is one state of the top-level game state machine.
type Phase string

const (
	PhaseLobby          Phase = "lobby"
	PhaseStarting       Phase = "starting"
	PhaseTasks          Phase = "tasks"
	PhaseMeetingCalled  Phase = "meeting_called"
	PhaseDiscussion     Phase = "discussion"
	PhaseVoting         Phase = "voting"
	PhaseVoteResolution Phase = "vote_resolution"
	PhaseGameOver       Phase = "game_over"
)

// Role is a player's secret allegiance.
type Role string

const (
	RoleCrewmate Role = "crewmate"
	RoleImpostor Role = "impostor"
)

// Color identifies a player on the map. Unique within a session.
type Color string

const (
	ColorRed    Color = "red"
	ColorBlue   Color = "blue"
	ColorGreen  Color = "green"
	ColorPink   Color = "pink"
	ColorOrange Color = "orange"
	ColorYellow Color = "yellow"
	ColorBlack  Color = "black"
	ColorWhite  Color = "white"
	ColorPurple Color = "purple"
	ColorBrown  Color = "brown"
	ColorCyan   Color = "cyan"
	ColorLime   Color = "lime"
)

// ---------------------------------------------------------------------------
// Tasks
// ---------------------------------------------------------------------------

// TaskType classifies a task. Common tasks are shared by every player;
// short and long tasks are sampled per player.
type TaskType string

const (
	TaskCommon TaskType = "common"
	TaskShort  TaskType = "short"
	TaskLong   TaskType = "long"
)

// TaskDefinition is an entry in the static task pool.
type TaskDefinition struct {
	ID       string
	Name     string
	Room     string
	Type     TaskType
	Duration time.Duration
}

// Task is one task assigned to a player.
// It is in progress iff StartedAt is set and Completed is false.
type Task struct {
	ID        string        `json:"taskId"`
	Name      string        `json:"name"`
	Room      string        `json:"room"`
	Type      TaskType      `json:"type"`
	Completed bool          `json:"completed"`
	StartedAt *time.Time    `json:"startedAt,omitempty"`
	Duration  time.Duration `json:"-"`
}

// InProgress reports whether the task has been started and not yet finished.
func (t *Task) InProgress() bool {
	return t.StartedAt != nil && !t.Completed
}

// NewTask builds an unstarted assignment from a pool definition.
func NewTask(def TaskDefinition) Task {
	return Task{
		ID:       def.ID,
		Name:     def.Name,
		Room:     def.Room,
		Type:     def.Type,
		Duration: def.Duration,
	}
}

// ---------------------------------------------------------------------------
// Players and bodies
// ---------------------------------------------------------------------------

// Profile is the verified identity of the agent controlling a player.
type Profile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Karma     int    `json:"karma"`
}

// Player is the full server-side state of one participant.
//
// A dead player never has a Target. A player InVent cannot be a kill target
// and has no room visibility.
type Player struct {
	ID            string     `json:"id"`
	Profile       Profile    `json:"profile"`
	Color         Color      `json:"color"`
	Role          Role       `json:"role"`
	Alive         bool       `json:"alive"`
	Position      Position   `json:"position"`
	Target        *Position  `json:"targetPosition,omitempty"`
	Room          string     `json:"currentRoom,omitempty"`
	Tasks         []Task     `json:"tasks"`
	EmergencyLeft int        `json:"emergencyButtonsLeft"`
	LastKillAt    *time.Time `json:"lastKillAt,omitempty"`
	InVent        bool       `json:"inVent"`
}

// IsImpostor reports whether the player holds the impostor role.
func (p *Player) IsImpostor() bool { return p.Role == RoleImpostor }

// ActiveTask returns the task currently in progress, or nil.
func (p *Player) ActiveTask() *Task {
	for i := range p.Tasks {
		if p.Tasks[i].InProgress() {
			return &p.Tasks[i]
		}
	}
	return nil
}

// TaskByID returns the assigned task with the given id, or nil.
func (p *Player) TaskByID(id string) *Task {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return &p.Tasks[i]
		}
	}
	return nil
}

// Body marks where a player was killed. Bodies persist until the next
// meeting resolves.
type Body struct {
	PlayerID string   `json:"playerId"`
	Color    Color    `json:"color"`
	Position Position `json:"position"`
	Room     string   `json:"room,omitempty"`
}

// ---------------------------------------------------------------------------
// Meetings and voting
// ---------------------------------------------------------------------------

// MeetingTrigger records why a meeting was called.
type MeetingTrigger string

const (
	TriggerBodyReported MeetingTrigger = "body_reported"
	TriggerEmergency    MeetingTrigger = "emergency"
)

// Meeting describes the meeting in progress. Body fields are only set for
// body-triggered meetings.
type Meeting struct {
	Trigger     MeetingTrigger `json:"trigger"`
	CallerID    string         `json:"callerId"`
	CallerColor Color          `json:"callerColor"`
	BodyID      string         `json:"bodyPlayerId,omitempty"`
	BodyColor   Color          `json:"bodyColor,omitempty"`
	BodyRoom    string         `json:"bodyRoom,omitempty"`
}

// VoteTarget is either a player id or VoteSkip.
type VoteTarget string

// VoteSkip is an abstention. It is reserved and never a valid player id.
const VoteSkip VoteTarget = "skip"

// VoteOutcome is the result class of a tally.
type VoteOutcome string

const (
	OutcomeEjected VoteOutcome = "ejected"
	OutcomeSkipped VoteOutcome = "skipped"
	OutcomeTie     VoteOutcome = "tie"
)

// VoteResult is the outcome of TallyVotes. WasImpostor is nil unless eject
// confirmation is enabled.
type VoteResult struct {
	Outcome      VoteOutcome           `json:"outcome"`
	EjectedID    string                `json:"ejectedPlayerId,omitempty"`
	EjectedColor Color                 `json:"ejectedColor,omitempty"`
	WasImpostor  *bool                 `json:"wasImpostor"`
	Votes        map[string]VoteTarget `json:"votes"`
	Counts       map[string]int        `json:"counts"`
	Skips        int                   `json:"skips"`
}

// DiscussionMessage is one public chat line during a meeting.
type DiscussionMessage struct {
	ID         string    `json:"messageId"`
	PlayerID   string    `json:"playerId"`
	Color      Color     `json:"color"`
	PlayerName string    `json:"playerName"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// ---------------------------------------------------------------------------
// Outcome
// ---------------------------------------------------------------------------

// Winner is the winning side, or WinnerNone while the game continues.
type Winner string

const (
	WinnerNone      Winner = ""
	WinnerCrewmates Winner = "crewmates"
	WinnerImpostors Winner = "impostors"
)

// WinReason explains why the game ended.
type WinReason string

const (
	ReasonAllTasks            WinReason = "all_tasks"
	ReasonAllImpostorsEjected WinReason = "all_impostors_ejected"
	ReasonImpostorsMajority   WinReason = "impostors_majority"
	ReasonTimeout             WinReason = "timeout"
)
