// internal/game/session.go
package game

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/minitoshi/susbot/engine"
	"github.com/minitoshi/susbot/internal/cache"
)

// Historian receives an append-only record of everything that happens in a
// session. Records are published one at a time in action order.
type Historian interface {
	PublishAction(ctx context.Context, rec cache.ActionRecord) error
}

// OnGameEndFunc is called once when a session reaches game_over. It runs
// with the session lock held and must not call back into the session.
type OnGameEndFunc func(s *Session, result GameResult)

// GameResult summarises a finished game.
type GameResult struct {
	GameID      uuid.UUID              `json:"gameId"`
	Winner      engine.Winner          `json:"winner"`
	Reason      engine.WinReason       `json:"reason"`
	Rounds      int                    `json:"rounds"`
	Players     []PlayerRef            `json:"players"`
	Roles       map[string]engine.Role `json:"roles"`
	ImpostorIDs []string               `json:"impostorIds"`
	TasksDone   int                    `json:"tasksCompleted"`
	TasksTotal  int                    `json:"tasksTotal"`
	StartedAt   time.Time              `json:"startedAt"`
	EndedAt     time.Time              `json:"endedAt"`
}

// Options configures a new Session. Zero values select the defaults.
type Options struct {
	Settings  *engine.Settings
	Map       *engine.Map
	Clock     Clock
	Seed      *[2]uint64 // seeds the role and task shuffles
	Historian Historian
	OnGameEnd OnGameEndFunc

	// ManualTicks disables the internal ticker; the caller drives Tick.
	ManualTicks bool
}

// actionBacklog bounds the records waiting for the historian per session.
const actionBacklog = 1024

// Session is one running game. All state is guarded by mu; every exported
// method locks it, and timer callbacks and ticks do the same.
type Session struct {
	ID        uuid.UUID
	Settings  engine.Settings
	CreatedAt time.Time

	mu        sync.Mutex
	m         *engine.Map
	clock     Clock
	rng       *rand.Rand
	actions   chan cache.ActionRecord // nil without a historian
	onGameEnd OnGameEndFunc
	events    *EventQueue

	phase      engine.Phase
	phaseGen   uint64    // bumped on every phase change; stale timers compare against it
	phaseEnd   time.Time // zero when the phase has no deadline
	phaseTimer Timer
	gameEnd    time.Time
	startedAt  time.Time

	players     map[string]*engine.Player
	order       []string // join order
	usedColors  map[engine.Color]bool
	impostorIDs []string
	bodies      []engine.Body

	meeting            *engine.Meeting
	votes              map[string]engine.VoteTarget
	messages           []engine.DiscussionMessage
	msgCount           map[string]int
	lastMsgAt          map[string]time.Time
	lastResult         *engine.VoteResult
	meetingCooldownEnd time.Time
	round              int

	completedTasks int
	totalTasks     int
	winner         engine.Winner
	winReason      engine.WinReason
	endedAt        time.Time

	tickCount   int
	manualTicks bool
	stopTick    chan struct{}
	destroyed   bool
	actionIndex int
}

// NewSession creates a session in the lobby phase.
func NewSession(opts Options) *Session {
	settings := engine.DefaultSettings()
	if opts.Settings != nil {
		settings = *opts.Settings
	}
	m := opts.Map
	if m == nil {
		m = engine.Skeld()
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	var seed [2]uint64
	if opts.Seed != nil {
		seed = *opts.Seed
	} else {
		seed = [2]uint64{rand.Uint64(), rand.Uint64()}
	}

	id, _ := uuid.NewRandom()
	s := &Session{
		ID:          id,
		Settings:    settings,
		CreatedAt:   clock.Now(),
		m:           m,
		clock:       clock,
		rng:         rand.New(rand.NewPCG(seed[0], seed[1])),
		onGameEnd:   opts.OnGameEnd,
		events:      NewEventQueue(),
		phase:       engine.PhaseLobby,
		players:     make(map[string]*engine.Player),
		usedColors:  make(map[engine.Color]bool),
		votes:       make(map[string]engine.VoteTarget),
		msgCount:    make(map[string]int),
		lastMsgAt:   make(map[string]time.Time),
		manualTicks: opts.ManualTicks,
	}
	if opts.Historian != nil {
		s.actions = make(chan cache.ActionRecord, actionBacklog)
		go publishActions(opts.Historian, s.actions)
	}
	log.Infof("Game %s: Created (max %d players).", s.ID, settings.MaxPlayers)
	return s
}

// Events returns the session's outbound event queue.
func (s *Session) Events() *EventQueue { return s.events }

// Map returns the static map the session is played on.
func (s *Session) Map() *engine.Map { return s.m }

// ---------------------------------------------------------------------------
// Lobby
// ---------------------------------------------------------------------------

// AddPlayer seats a new player in the lobby at the spawn point and hands
// out the first free colour.
func (s *Session) AddPlayer(profile engine.Profile) (engine.Color, Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return "", reject(engine.ReasonSessionClosed)
	}
	if s.phase != engine.PhaseLobby {
		return "", reject(engine.ReasonWrongPhase)
	}
	if profile.ID == "" || engine.VoteTarget(profile.ID) == engine.VoteSkip {
		return "", reject(engine.ReasonInvalidPlayerID)
	}
	if _, ok := s.players[profile.ID]; ok {
		return "", reject(engine.ReasonAlreadyJoined)
	}
	if len(s.players) >= s.Settings.MaxPlayers {
		return "", reject(engine.ReasonGameFull)
	}
	color, ok := s.assignColor()
	if !ok {
		return "", reject(engine.ReasonGameFull)
	}

	spawn := s.m.Spawn()
	p := &engine.Player{
		ID:            profile.ID,
		Profile:       profile,
		Color:         color,
		Role:          engine.RoleCrewmate,
		Alive:         true,
		Position:      spawn,
		Room:          s.m.RoomName(spawn),
		EmergencyLeft: s.Settings.EmergencyButtonsPerPlayer,
	}
	s.players[p.ID] = p
	s.order = append(s.order, p.ID)

	s.emit(EventPlayerJoined, PlayerJoinedPayload{PlayerRef: refOf(p), AvatarURL: profile.AvatarURL})
	s.logAction(p.ID, "player_joined", map[string]any{"color": color})
	log.Infof("Game %s: Player %s (%s) joined as %s.", s.ID, p.ID, profile.Name, color)
	return color, accept()
}

// RemovePlayer drops a player from the lobby and frees their colour.
func (s *Session) RemovePlayer(playerID string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return reject(engine.ReasonSessionClosed)
	}
	if s.phase != engine.PhaseLobby {
		return reject(engine.ReasonWrongPhase)
	}
	p, ok := s.players[playerID]
	if !ok {
		return reject(engine.ReasonPlayerNotFound)
	}

	delete(s.usedColors, p.Color)
	delete(s.players, playerID)
	for i, id := range s.order {
		if id == playerID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	s.emit(EventPlayerLeft, PlayerLeftPayload{PlayerRef: refOf(p)})
	s.logAction(playerID, "player_left", nil)
	log.Infof("Game %s: Player %s left the lobby.", s.ID, playerID)
	return accept()
}

// assignColor hands out the first palette colour not already taken.
// Assumes lock is held by caller.
func (s *Session) assignColor() (engine.Color, bool) {
	for _, c := range engine.Palette {
		if !s.usedColors[c] {
			s.usedColors[c] = true
			return c, true
		}
	}
	return "", false
}

// Start begins the pre-game countdown. Roles and tasks are assigned when
// the countdown elapses.
func (s *Session) Start() Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return reject(engine.ReasonSessionClosed)
	}
	if s.phase != engine.PhaseLobby {
		return reject(engine.ReasonWrongPhase)
	}
	if len(s.players) < engine.MinPlayers {
		return reject(engine.ReasonNotEnoughPlayers)
	}

	s.setPhase(engine.PhaseStarting, s.Settings.StartingCountdown)
	s.armPhaseTimer(s.Settings.StartingCountdown, s.beginGame)
	s.logAction("", "game_starting", map[string]any{"players": len(s.players)})
	log.Infof("Game %s: Starting with %d players in %s.", s.ID, len(s.players), s.Settings.StartingCountdown)
	return accept()
}

// beginGame assigns roles and tasks and enters the first task phase.
// Assumes lock is held by caller.
func (s *Session) beginGame() {
	s.assignRoles()
	s.assignTasks()
	s.startedAt = s.clock.Now()

	roster := make([]engine.Player, 0, len(s.order))
	for _, id := range s.order {
		roster = append(roster, clonePlayer(s.players[id]))
	}
	s.emit(EventGameStarted, GameStartedPayload{
		Players:     roster,
		ImpostorIDs: append([]string(nil), s.impostorIDs...),
	})
	s.logAction("", "game_start", map[string]any{"impostors": s.impostorIDs, "totalTasks": s.totalTasks})
	log.Infof("Game %s: Started. %d impostor(s), %d crew tasks.", s.ID, len(s.impostorIDs), s.totalTasks)

	s.beginTaskPhase()
}

// assignRoles shuffles the roster uniformly and takes the first N as
// impostors. Assumes lock is held by caller.
func (s *Session) assignRoles() {
	ids := append([]string(nil), s.order...)
	s.rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	n := engine.ImpostorCount(len(ids))
	if n > len(ids) {
		log.Panicf("Game %s: %d impostors requested for %d players", s.ID, n, len(ids))
	}

	s.impostorIDs = ids[:n]
	for _, id := range s.impostorIDs {
		s.players[id].Role = engine.RoleImpostor
	}
}

// assignTasks gives every player the common tasks plus a random sample of
// short and long tasks. Only crewmate tasks count toward the total.
// Assumes lock is held by caller.
func (s *Session) assignTasks() {
	common := engine.TasksOfType(engine.TaskPool, engine.TaskCommon)
	if len(common) > s.Settings.CommonTasks {
		common = common[:s.Settings.CommonTasks]
	}
	short := engine.TasksOfType(engine.TaskPool, engine.TaskShort)
	long := engine.TasksOfType(engine.TaskPool, engine.TaskLong)

	s.totalTasks, s.completedTasks = 0, 0
	for _, id := range s.order {
		p := s.players[id]
		var tasks []engine.Task
		for _, d := range common {
			tasks = append(tasks, engine.NewTask(d))
		}
		for _, d := range s.sample(short, s.Settings.ShortTasks) {
			tasks = append(tasks, engine.NewTask(d))
		}
		for _, d := range s.sample(long, s.Settings.LongTasks) {
			tasks = append(tasks, engine.NewTask(d))
		}
		p.Tasks = tasks
		if !p.IsImpostor() {
			s.totalTasks += len(tasks)
		}
	}
}

// sample returns n definitions drawn without replacement.
func (s *Session) sample(pool []engine.TaskDefinition, n int) []engine.TaskDefinition {
	cp := append([]engine.TaskDefinition(nil), pool...)
	s.rng.Shuffle(len(cp), func(i, j int) { cp[i], cp[j] = cp[j], cp[i] })
	if n > len(cp) {
		n = len(cp)
	}
	if n < 0 {
		n = 0
	}
	return cp[:n]
}

// ---------------------------------------------------------------------------
// Phase management
// ---------------------------------------------------------------------------

// setPhase moves to phase, invalidating any timer armed for the previous
// one. d is the phase deadline, zero for none.
// Assumes lock is held by caller.
func (s *Session) setPhase(phase engine.Phase, d time.Duration) {
	if s.phaseTimer != nil {
		s.phaseTimer.Stop()
		s.phaseTimer = nil
	}
	s.phaseGen++
	s.phase = phase
	if d > 0 {
		s.phaseEnd = s.clock.Now().Add(d)
	} else {
		s.phaseEnd = time.Time{}
	}
	s.emit(EventPhaseChanged, PhaseChangedPayload{Phase: phase, TimerSec: ceilSeconds(d)})
	log.Debugf("Game %s: Phase -> %s.", s.ID, phase)
}

// armPhaseTimer schedules fn after d unless the phase changes first.
// Assumes lock is held by caller.
func (s *Session) armPhaseTimer(d time.Duration, fn func()) {
	gen := s.phaseGen
	s.phaseTimer = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.destroyed || s.phaseGen != gen {
			return
		}
		s.phaseTimer = nil
		fn()
	})
}

// beginTaskPhase (re)enters the free-roam phase and resumes ticking.
// Assumes lock is held by caller.
func (s *Session) beginTaskPhase() {
	s.setPhase(engine.PhaseTasks, 0)

	now := s.clock.Now()
	if s.gameEnd.IsZero() {
		s.gameEnd = now.Add(s.Settings.GameTimeLimit)
	}

	// After a meeting impostors get the shorter post-meeting cooldown.
	if s.round > 0 {
		offset := s.Settings.KillCooldown - s.Settings.PostMeetingKillCooldown
		if offset < 0 {
			offset = 0
		}
		for _, id := range s.impostorIDs {
			if p := s.players[id]; p.Alive {
				t := now.Add(-offset)
				p.LastKillAt = &t
			}
		}
	}

	s.startTicker()
}

// callMeeting interrupts free roam: tasks pause, vents empty, everybody is
// teleported to spawn and the tick loop stops.
// Assumes lock is held by caller.
func (s *Session) callMeeting(meeting engine.Meeting) {
	s.stopTicker()
	s.meeting = &meeting
	s.lastResult = nil
	s.round++

	spawn := s.m.Spawn()
	spawnRoom := s.m.RoomName(spawn)
	for _, id := range s.order {
		p := s.players[id]
		for i := range p.Tasks {
			if p.Tasks[i].InProgress() {
				p.Tasks[i].StartedAt = nil
			}
		}
		p.InVent = false
		p.Target = nil
		p.Position = spawn
		p.Room = spawnRoom
	}

	s.setPhase(engine.PhaseMeetingCalled, s.Settings.MeetingFreeze)
	s.emit(EventMeetingCalled, MeetingCalledPayload{Meeting: meeting, Round: s.round})
	s.logAction(meeting.CallerID, "meeting_called", map[string]any{
		"trigger": meeting.Trigger,
		"body":    meeting.BodyID,
		"round":   s.round,
	})
	log.Infof("Game %s: Meeting %d called by %s (%s).", s.ID, s.round, meeting.CallerID, meeting.Trigger)

	s.armPhaseTimer(s.Settings.MeetingFreeze, s.beginDiscussion)
}

// beginDiscussion resets the meeting transcript and ballots.
// Assumes lock is held by caller.
func (s *Session) beginDiscussion() {
	s.messages = nil
	s.votes = make(map[string]engine.VoteTarget)
	s.msgCount = make(map[string]int)
	s.lastMsgAt = make(map[string]time.Time)

	s.setPhase(engine.PhaseDiscussion, s.Settings.DiscussionTime)
	s.armPhaseTimer(s.Settings.DiscussionTime, s.beginVoting)
}

// beginVoting opens the ballot. Anyone still silent when the timer runs
// out abstains.
// Assumes lock is held by caller.
func (s *Session) beginVoting() {
	s.setPhase(engine.PhaseVoting, s.Settings.VotingTime)

	var alive []PlayerRef
	for _, id := range s.order {
		if p := s.players[id]; p.Alive {
			alive = append(alive, refOf(p))
		}
	}
	s.emit(EventVotingOpened, VotingOpenedPayload{TimerSec: ceilSeconds(s.Settings.VotingTime), AlivePlayers: alive})

	s.armPhaseTimer(s.Settings.VotingTime, func() {
		for _, id := range s.order {
			if p := s.players[id]; p.Alive {
				if _, voted := s.votes[id]; !voted {
					s.votes[id] = engine.VoteSkip
				}
			}
		}
		s.resolveVotes()
	})
}

// resolveVotes tallies, ejects, and schedules either the return to free
// roam or the end of the game.
// Assumes lock is held by caller.
func (s *Session) resolveVotes() {
	res := engine.TallyVotes(s.votes, s.players, s.Settings.ConfirmEjects)
	if res.Outcome == engine.OutcomeEjected {
		if p, ok := s.players[res.EjectedID]; ok {
			p.Alive = false
			p.Target = nil
		}
	}
	s.lastResult = &res

	s.setPhase(engine.PhaseVoteResolution, s.Settings.VoteResolutionDisplay)
	s.emit(EventVoteResult, VoteResultPayload{VoteResult: res})
	s.logAction("", "vote_result", map[string]any{
		"outcome": res.Outcome,
		"ejected": res.EjectedID,
		"counts":  res.Counts,
		"skips":   res.Skips,
	})
	log.Infof("Game %s: Vote resolved: %s %s.", s.ID, res.Outcome, res.EjectedID)

	if w, r := engine.CheckWinCondition(s.players, s.completedTasks, s.totalTasks); w != engine.WinnerNone {
		s.armPhaseTimer(s.Settings.VoteResolutionDisplay, func() { s.endGame(w, r) })
		return
	}

	s.armPhaseTimer(s.Settings.VoteResolutionDisplay, func() {
		s.bodies = nil
		s.meeting = nil
		s.meetingCooldownEnd = s.clock.Now().Add(s.Settings.MeetingCooldown)
		s.beginTaskPhase()
	})
}

// checkWin ends the game if the roster or task count decides it.
// Assumes lock is held by caller.
func (s *Session) checkWin() bool {
	w, r := engine.CheckWinCondition(s.players, s.completedTasks, s.totalTasks)
	if w == engine.WinnerNone {
		return false
	}
	s.endGame(w, r)
	return true
}

// endGame moves to the terminal phase and notifies the owner.
// Assumes lock is held by caller.
func (s *Session) endGame(w engine.Winner, r engine.WinReason) {
	if s.phase == engine.PhaseGameOver {
		log.Warnf("Game %s: endGame called, but game is already over.", s.ID)
		return
	}
	s.stopTicker()
	s.winner, s.winReason = w, r
	s.endedAt = s.clock.Now()
	s.setPhase(engine.PhaseGameOver, 0)

	roles := make(map[string]engine.Role, len(s.players))
	for id, p := range s.players {
		roles[id] = p.Role
	}
	s.emit(EventGameOver, GameOverPayload{Winner: w, Reason: r, Roles: roles})
	s.logAction("", "game_over", map[string]any{"winner": w, "reason": r, "roles": roles})
	log.Infof("Game %s: Ended. Winner: %s (%s).", s.ID, w, r)

	if s.onGameEnd != nil {
		s.onGameEnd(s, s.resultLocked())
	}
}

// resultLocked builds the archive summary.
// Assumes lock is held by caller.
func (s *Session) resultLocked() GameResult {
	res := GameResult{
		GameID:      s.ID,
		Winner:      s.winner,
		Reason:      s.winReason,
		Rounds:      s.round,
		Roles:       make(map[string]engine.Role, len(s.players)),
		ImpostorIDs: append([]string(nil), s.impostorIDs...),
		TasksDone:   s.completedTasks,
		TasksTotal:  s.totalTasks,
		StartedAt:   s.startedAt,
		EndedAt:     s.endedAt,
	}
	for _, id := range s.order {
		p := s.players[id]
		res.Players = append(res.Players, refOf(p))
		res.Roles[id] = p.Role
	}
	return res
}

// Destroy stops the tick driver and any pending timer, closes the event
// queue and releases per-session state. Later calls are rejected with
// SESSION_CLOSED.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	s.destroyed = true
	s.stopTicker()
	if s.phaseTimer != nil {
		s.phaseTimer.Stop()
		s.phaseTimer = nil
	}
	s.phaseGen++
	s.events.Close()
	if s.actions != nil {
		close(s.actions)
		s.actions = nil
	}

	s.votes = nil
	s.msgCount = nil
	s.lastMsgAt = nil
	s.messages = nil
	s.bodies = nil
	log.Infof("Game %s: Destroyed.", s.ID)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// emit appends an event to the outbound queue.
// Assumes lock is held by caller.
func (s *Session) emit(t EventType, payload any) {
	s.events.Push(t, s.clock.Now(), payload)
}

// logAction queues an action record for the session's publisher.
// Assumes lock is held by caller.
func (s *Session) logAction(actorID string, actionType string, payload map[string]any) {
	s.actionIndex++
	if s.actions == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]any)
	}
	rec := cache.ActionRecord{
		GameID:      s.ID,
		ActionIndex: s.actionIndex,
		ActorID:     actorID,
		ActionType:  actionType,
		Payload:     payload,
		Timestamp:   s.clock.Now().UnixMilli(),
	}
	select {
	case s.actions <- rec:
	default:
		log.Warnf("Game %s: Action backlog full, dropping action %d ('%s').", s.ID, rec.ActionIndex, rec.ActionType)
	}
}

// publishActions drains one session's records in order until the channel
// is closed by Destroy.
func publishActions(h Historian, in <-chan cache.ActionRecord) {
	for rec := range in {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := h.PublishAction(ctx, rec); err != nil {
			log.Errorf("Game %s: Failed publishing action %d ('%s'): %v", rec.GameID, rec.ActionIndex, rec.ActionType, err)
		}
		cancel()
	}
}

func refOf(p *engine.Player) PlayerRef {
	return PlayerRef{PlayerID: p.ID, Name: p.Profile.Name, Color: p.Color}
}

// clonePlayer deep-copies a player so snapshots never alias live state.
func clonePlayer(p *engine.Player) engine.Player {
	cp := *p
	if p.Target != nil {
		t := *p.Target
		cp.Target = &t
	}
	if p.LastKillAt != nil {
		t := *p.LastKillAt
		cp.LastKillAt = &t
	}
	cp.Tasks = make([]engine.Task, len(p.Tasks))
	for i, t := range p.Tasks {
		if t.StartedAt != nil {
			st := *t.StartedAt
			t.StartedAt = &st
		}
		cp.Tasks[i] = t
	}
	return cp
}

// ceilSeconds rounds a duration up to whole seconds.
func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
