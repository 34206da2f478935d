// internal/game/session_test.go
package game

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minitoshi/susbot/engine"
	"github.com/minitoshi/susbot/internal/cache"
)

// fakeClock fires timers only when advanced. Callbacks run without the
// clock lock so they may take the session lock.
type fakeClock struct {
	mu         sync.Mutex
	now        time.Time
	timers     []*fakeTimer
	ignoreStop bool // Stop reports success but the timer still fires
}

type fakeTimer struct {
	c    *fakeClock
	at   time.Time
	fn   func()
	done bool
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.done {
		return false
	}
	if !t.c.ignoreStop {
		t.done = true
	}
	return true
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward by d, firing due timers in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.done || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.done = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()
		next.fn()
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// newTestSession builds a manually ticked session with n players seated.
func newTestSession(t *testing.T, n int, configure func(*Options)) (*Session, *fakeClock) {
	t.Helper()
	settings := engine.DefaultSettings()
	clock := newFakeClock()
	opts := Options{
		Settings:    &settings,
		Clock:       clock,
		Seed:        &[2]uint64{7, 11},
		ManualTicks: true,
	}
	if configure != nil {
		configure(&opts)
	}
	s := NewSession(opts)
	t.Cleanup(s.Destroy)

	for i := 0; i < n; i++ {
		_, res := s.AddPlayer(engine.Profile{ID: fmt.Sprintf("p%d", i), Name: fmt.Sprintf("Agent%d", i)})
		require.True(t, res.Accepted, "player %d should join: %s", i, res.Reason)
	}
	return s, clock
}

// startGame runs the countdown and lands in the task phase.
func startGame(t *testing.T, s *Session, clock *fakeClock) {
	t.Helper()
	require.True(t, s.Start().Accepted)
	require.Equal(t, engine.PhaseStarting, s.Phase())
	clock.Advance(s.Settings.StartingCountdown)
	require.Equal(t, engine.PhaseTasks, s.Phase())
}

// roles splits the roster into impostor and crewmate ids, in join order.
func roles(s *Session) (imps, crew []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		if s.players[id].IsImpostor() {
			imps = append(imps, id)
		} else {
			crew = append(crew, id)
		}
	}
	return imps, crew
}

func place(s *Session, id string, pos engine.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.players[id]
	p.Position = pos
	p.Room = s.m.RoomName(pos)
}

func drainTypes(s *Session) []EventType {
	var out []EventType
	for _, ev := range s.Events().Drain() {
		out = append(out, ev.Type)
	}
	return out
}

func lastEvent(s *Session, typ EventType) *Event {
	evs := s.Events().Drain()
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Type == typ {
			return &evs[i]
		}
	}
	return nil
}

// enterVoting calls an emergency meeting with caller and runs the clock to
// the voting phase.
func enterVoting(t *testing.T, s *Session, clock *fakeClock, caller string) {
	t.Helper()
	place(s, caller, s.Map().Button())
	require.True(t, s.Emergency(caller).Accepted)
	clock.Advance(s.Settings.MeetingFreeze)
	require.Equal(t, engine.PhaseDiscussion, s.Phase())
	clock.Advance(s.Settings.DiscussionTime)
	require.Equal(t, engine.PhaseVoting, s.Phase())
}

// ---------------------------------------------------------------------------
// Lobby
// ---------------------------------------------------------------------------

func TestAddPlayerAssignsUniqueColors(t *testing.T) {
	s, _ := newTestSession(t, engine.MaxPlayers, nil)

	view := s.SpectatorView()
	seen := make(map[engine.Color]bool)
	for i, p := range view.Players {
		assert.Equal(t, engine.Palette[i], p.Color, "colours are handed out in palette order")
		assert.False(t, seen[p.Color], "colour %s assigned twice", p.Color)
		seen[p.Color] = true
		assert.Equal(t, s.Map().Spawn(), p.Position)
	}

	_, res := s.AddPlayer(engine.Profile{ID: "late", Name: "Late"})
	assert.Equal(t, engine.ReasonGameFull, res.Reason)

	_, res = s.AddPlayer(engine.Profile{ID: "p0", Name: "Again"})
	assert.Equal(t, engine.ReasonAlreadyJoined, res.Reason)

	_, res = s.AddPlayer(engine.Profile{Name: "Nobody"})
	assert.Equal(t, engine.ReasonInvalidPlayerID, res.Reason)

	_, res = s.AddPlayer(engine.Profile{ID: string(engine.VoteSkip), Name: "Skip"})
	assert.Equal(t, engine.ReasonInvalidPlayerID, res.Reason, "the skip ballot is not a player id")
}

func TestRemovePlayerFreesColor(t *testing.T) {
	s, _ := newTestSession(t, 3, nil)

	require.True(t, s.RemovePlayer("p0").Accepted)
	assert.False(t, s.HasPlayer("p0"))
	assert.Equal(t, engine.ReasonPlayerNotFound, s.RemovePlayer("p0").Reason)

	color, res := s.AddPlayer(engine.Profile{ID: "p9", Name: "Newcomer"})
	require.True(t, res.Accepted)
	assert.Equal(t, engine.Palette[0], color, "the freed colour is reused")
}

func TestStartRequiresMinimumPlayers(t *testing.T) {
	s, _ := newTestSession(t, engine.MinPlayers-1, nil)

	assert.Equal(t, engine.ReasonNotEnoughPlayers, s.Start().Reason)
	assert.Equal(t, engine.PhaseLobby, s.Phase())
}

func TestStartAssignsRolesAndTasks(t *testing.T) {
	s, clock := newTestSession(t, 8, nil)
	startGame(t, s, clock)

	imps, crew := roles(s)
	assert.Len(t, imps, 2, "8 players get 2 impostors")
	assert.Len(t, crew, 6)

	perPlayer := s.Settings.CommonTasks + s.Settings.ShortTasks + s.Settings.LongTasks
	view := s.SpectatorView()
	var common []string
	for _, p := range view.Players {
		require.Len(t, p.Tasks, perPlayer)
		ids := make(map[string]bool)
		for _, task := range p.Tasks {
			assert.False(t, ids[task.ID], "task %s assigned twice to %s", task.ID, p.PlayerID)
			ids[task.ID] = true
		}
		commonHere := []string{p.Tasks[0].ID, p.Tasks[1].ID}
		if common == nil {
			common = commonHere
		}
		assert.Equal(t, common, commonHere, "common tasks are identical across players")
	}
	assert.ElementsMatch(t, imps, view.ImpostorIDs)

	s.mu.Lock()
	total := s.totalTasks
	s.mu.Unlock()
	assert.Equal(t, len(crew)*perPlayer, total, "only crewmate tasks count")

	require.NotNil(t, s.GameTimerRemaining())
	assert.Equal(t, int(s.Settings.GameTimeLimit/time.Second), *s.GameTimerRemaining())
	assert.Nil(t, s.PhaseTimerRemaining())

	assert.Contains(t, drainTypes(s), EventGameStarted)
	assert.Equal(t, engine.ReasonWrongPhase, s.Start().Reason)

	_, res := s.AddPlayer(engine.Profile{ID: "late", Name: "Late"})
	assert.Equal(t, engine.ReasonWrongPhase, res.Reason)
}

func TestSeededRoleAssignmentIsDeterministic(t *testing.T) {
	a, clockA := newTestSession(t, 10, nil)
	b, clockB := newTestSession(t, 10, nil)
	startGame(t, a, clockA)
	startGame(t, b, clockB)

	impsA, _ := roles(a)
	impsB, _ := roles(b)
	assert.Equal(t, impsA, impsB)
	assert.Len(t, impsA, 3)
}

// ---------------------------------------------------------------------------
// Kills and reports
// ---------------------------------------------------------------------------

func TestKillCreatesBodyAndStartsCooldown(t *testing.T) {
	s, clock := newTestSession(t, 8, nil)
	startGame(t, s, clock)
	imps, crew := roles(s)
	s.Events().Drain()

	res := s.Kill(imps[0], crew[0])
	require.True(t, res.Accepted, "kill at spawn should succeed: %s", res.Reason)
	assert.Equal(t, 7, s.AliveCount())

	victim, _ := s.Player(crew[0])
	assert.False(t, victim.Alive)
	assert.Nil(t, victim.Target)

	view := s.SpectatorView()
	require.Len(t, view.Bodies, 1)
	assert.Equal(t, crew[0], view.Bodies[0].PlayerID)
	assert.Equal(t, s.Map().Spawn(), view.Bodies[0].Position)

	ev := lastEvent(s, EventPlayerKilled)
	require.NotNil(t, ev)
	payload := ev.Payload.(PlayerKilledPayload)
	assert.Equal(t, imps[0], payload.KillerID)
	assert.NotContains(t, payload.Witnesses, imps[0])
	assert.NotContains(t, payload.Witnesses, crew[0])
	assert.Contains(t, payload.Witnesses, crew[1], "bystanders at spawn see the kill")

	clock.Advance(5 * time.Second)
	assert.Equal(t, engine.ReasonKillOnCooldown, s.Kill(imps[0], crew[1]).Reason)

	iv, _ := s.AgentView(imps[0])
	require.NotNil(t, iv.You.KillCooldownSec)
	assert.Equal(t, 20, *iv.You.KillCooldownSec)

	clock.Advance(20 * time.Second)
	assert.True(t, s.Kill(imps[0], crew[1]).Accepted, "cooldown has elapsed")
}

func TestRejectedActionsLeaveStateUnchanged(t *testing.T) {
	s, clock := newTestSession(t, 8, nil)
	startGame(t, s, clock)
	imps, crew := roles(s)
	place(s, crew[1], engine.Position{X: 20, Y: 5})
	s.Events().Drain()

	before := s.SpectatorView()

	cases := []struct {
		name   string
		do     func() Result
		reason engine.Reason
	}{
		{"crewmate kill", func() Result { return s.Kill(crew[0], crew[2]) }, engine.ReasonNotImpostor},
		{"kill impostor", func() Result { return s.Kill(imps[0], imps[1]) }, engine.ReasonCannotKillImpostor},
		{"out of range", func() Result { return s.Kill(imps[0], crew[1]) }, engine.ReasonTargetNotInRange},
		{"unknown target", func() Result { return s.Kill(imps[0], "ghost") }, engine.ReasonTargetNotFound},
		{"unknown player", func() Result { return s.Move("ghost", engine.Position{X: 24, Y: 5}) }, engine.ReasonPlayerNotFound},
		{"move into wall", func() Result { return s.Move(crew[0], engine.Position{X: 0, Y: 0}) }, engine.ReasonInvalidTarget},
		{"vote in tasks", func() Result { return s.Vote(crew[0], engine.VoteSkip) }, engine.ReasonWrongPhase},
		{"public chat in tasks", func() Result { return s.Discuss(crew[0], "hi", ChannelPublic) }, engine.ReasonWrongPhase},
		{"report missing body", func() Result { return s.Report(crew[0], crew[3]) }, engine.ReasonBodyNotFound},
		{"task not assigned", func() Result { return s.StartTask(crew[0], "no_such_task") }, engine.ReasonTaskNotAssigned},
		{"crewmate vent", func() Result { return s.Vent(crew[0], VentEnter, "") }, engine.ReasonNotImpostor},
		{"vent far away", func() Result { return s.Vent(imps[0], VentEnter, "") }, engine.ReasonNotNearVent},
		{"exit without vent", func() Result { return s.Vent(imps[0], VentExit, "") }, engine.ReasonNotInVent},
		{"bad vent action", func() Result { return s.Vent(imps[0], VentAction("dance"), "") }, engine.ReasonInvalidVentAction},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := tc.do()
			assert.False(t, res.Accepted)
			assert.Equal(t, tc.reason, res.Reason)
		})
	}

	assert.Equal(t, before, s.SpectatorView(), "rejections must not mutate the session")
	assert.Zero(t, s.Events().Len(), "rejections emit nothing")
}

func TestReportBodyCallsMeeting(t *testing.T) {
	s, clock := newTestSession(t, 8, nil)
	startGame(t, s, clock)
	imps, crew := roles(s)

	require.True(t, s.Kill(imps[0], crew[0]).Accepted)

	place(s, crew[1], engine.Position{X: 40, Y: 11})
	assert.Equal(t, engine.ReasonBodyNotVisible, s.Report(crew[1], crew[0]).Reason)
	assert.Equal(t, engine.ReasonReporterDead, s.Report(crew[0], crew[0]).Reason)

	require.True(t, s.Report(crew[2], crew[0]).Accepted)
	assert.Equal(t, engine.PhaseMeetingCalled, s.Phase())

	mv, res := s.MeetingView(crew[2])
	require.True(t, res.Accepted)
	assert.Equal(t, engine.TriggerBodyReported, mv.Trigger)
	assert.Equal(t, crew[0], mv.TriggerDetails.BodyID)
	assert.Equal(t, crew[2], mv.TriggerDetails.CallerID)
	assert.Len(t, mv.AlivePlayers, 7)
	assert.Len(t, s.SpectatorView().Bodies, 1, "bodies stay until the meeting resolves")
}

// ---------------------------------------------------------------------------
// Movement and tasks
// ---------------------------------------------------------------------------

func TestMovementAdvancesOnEveryOtherTick(t *testing.T) {
	s, clock := newTestSession(t, 5, nil)
	startGame(t, s, clock)
	_, crew := roles(s)
	dest := engine.Position{X: 20, Y: 5}
	s.Events().Drain()

	require.True(t, s.Move(crew[0], dest).Accepted)

	s.Tick()
	p, _ := s.Player(crew[0])
	assert.Equal(t, s.Map().Spawn(), p.Position, "odd ticks do not move")

	prev := p.Position
	for i := 0; i < 20; i++ {
		s.Tick()
		p, _ = s.Player(crew[0])
		if p.Position != prev {
			assert.True(t, prev.Adjacent(p.Position), "step %v -> %v is not adjacent", prev, p.Position)
			prev = p.Position
		}
	}
	assert.Equal(t, dest, p.Position)
	assert.Nil(t, p.Target, "target cleared on arrival")
	assert.Equal(t, "Cafeteria", p.Room)
	assert.Contains(t, drainTypes(s), EventPlayerMoved)
}

func TestTaskCompletionUpdatesProgress(t *testing.T) {
	s, clock := newTestSession(t, 5, nil)
	startGame(t, s, clock)
	imps, crew := roles(s)
	station := engine.Position{X: 25, Y: 6}

	place(s, crew[0], station)
	require.True(t, s.StartTask(crew[0], "fix_wiring").Accepted)
	assert.Equal(t, engine.ReasonTaskInProgress, s.StartTask(crew[0], "fix_wiring").Reason)
	assert.Equal(t, engine.ReasonNotAtTaskStation, s.StartTask(crew[0], "swipe_card").Reason)

	place(s, imps[0], station)
	require.True(t, s.StartTask(imps[0], "fix_wiring").Accepted, "impostors may fake tasks")
	s.Events().Drain()

	clock.Advance(2 * time.Second)
	s.Tick()
	p, _ := s.Player(crew[0])
	assert.True(t, p.Tasks[0].InProgress(), "duration has not elapsed yet")

	clock.Advance(time.Second)
	s.Tick()
	p, _ = s.Player(crew[0])
	assert.True(t, p.Tasks[0].Completed)
	assert.Nil(t, p.Tasks[0].StartedAt)

	s.mu.Lock()
	total := s.totalTasks
	s.mu.Unlock()
	assert.InDelta(t, 1/float64(total), s.TaskProgress(), 1e-9, "the impostor's completion does not count")

	imp, _ := s.Player(imps[0])
	assert.True(t, imp.Tasks[0].Completed)

	evs := s.Events().Drain()
	var completed int
	for _, ev := range evs {
		if ev.Type == EventTaskCompleted {
			completed++
			assert.Equal(t, crew[0], ev.Payload.(TaskCompletedPayload).PlayerID)
		}
	}
	assert.Equal(t, 1, completed)

	assert.Equal(t, engine.ReasonTaskAlreadyCompleted, s.StartTask(crew[0], "fix_wiring").Reason)
}

func TestStartTaskRootsPlayer(t *testing.T) {
	s, clock := newTestSession(t, 5, nil)
	startGame(t, s, clock)
	_, crew := roles(s)

	place(s, crew[0], engine.Position{X: 25, Y: 6})
	require.True(t, s.Move(crew[0], engine.Position{X: 20, Y: 5}).Accepted)
	require.True(t, s.StartTask(crew[0], "fix_wiring").Accepted)

	p, _ := s.Player(crew[0])
	assert.Nil(t, p.Target)

	place(s, crew[0], engine.Position{X: 25, Y: 13})
	assert.Equal(t, engine.ReasonAlreadyDoingTask, s.StartTask(crew[0], "swipe_card").Reason)
}

// ---------------------------------------------------------------------------
// Win conditions
// ---------------------------------------------------------------------------

func TestAllTasksWin(t *testing.T) {
	var ended []GameResult
	s, clock := newTestSession(t, 5, func(o *Options) {
		o.Settings.ShortTasks = 0
		o.Settings.LongTasks = 0
		o.Settings.CommonTasks = 1
		o.OnGameEnd = func(_ *Session, r GameResult) { ended = append(ended, r) }
	})
	startGame(t, s, clock)
	_, crew := roles(s)

	for _, id := range crew {
		place(s, id, engine.Position{X: 25, Y: 6})
		require.True(t, s.StartTask(id, "fix_wiring").Accepted)
	}
	clock.Advance(3 * time.Second)
	s.Tick()

	assert.Equal(t, engine.PhaseGameOver, s.Phase())
	w, r := s.Winner()
	assert.Equal(t, engine.WinnerCrewmates, w)
	assert.Equal(t, engine.ReasonAllTasks, r)

	require.Len(t, ended, 1, "game end is reported exactly once")
	assert.Equal(t, len(crew), ended[0].TasksDone)
	assert.Equal(t, len(crew), ended[0].TasksTotal)

	res, ok := s.Result()
	require.True(t, ok)
	assert.Equal(t, ended[0], res)
	assert.Equal(t, engine.ReasonWrongPhase, s.Move(crew[0], engine.Position{X: 24, Y: 5}).Reason)
}

func TestImpostorMajorityWin(t *testing.T) {
	s, clock := newTestSession(t, 5, func(o *Options) { o.Settings.KillCooldown = 0 })
	startGame(t, s, clock)
	imps, crew := roles(s)
	require.Len(t, imps, 1)

	require.True(t, s.Kill(imps[0], crew[0]).Accepted)
	require.True(t, s.Kill(imps[0], crew[1]).Accepted)
	assert.Equal(t, engine.PhaseTasks, s.Phase())
	require.True(t, s.Kill(imps[0], crew[2]).Accepted)

	assert.Equal(t, engine.PhaseGameOver, s.Phase())
	w, r := s.Winner()
	assert.Equal(t, engine.WinnerImpostors, w)
	assert.Equal(t, engine.ReasonImpostorsMajority, r)

	ev := lastEvent(s, EventGameOver)
	require.NotNil(t, ev)
	assert.Equal(t, engine.RoleImpostor, ev.Payload.(GameOverPayload).Roles[imps[0]])
}

func TestTimeoutWin(t *testing.T) {
	s, clock := newTestSession(t, 5, nil)
	startGame(t, s, clock)

	clock.Advance(s.Settings.GameTimeLimit - time.Second)
	s.Tick()
	assert.Equal(t, engine.PhaseTasks, s.Phase())

	clock.Advance(time.Second)
	s.Tick()
	assert.Equal(t, engine.PhaseGameOver, s.Phase())
	w, r := s.Winner()
	assert.Equal(t, engine.WinnerImpostors, w)
	assert.Equal(t, engine.ReasonTimeout, r)
}

// ---------------------------------------------------------------------------
// Meetings
// ---------------------------------------------------------------------------

func TestMeetingTeleportsAndPausesTasks(t *testing.T) {
	s, clock := newTestSession(t, 8, nil)
	startGame(t, s, clock)
	imps, crew := roles(s)

	place(s, crew[0], engine.Position{X: 25, Y: 6})
	require.True(t, s.StartTask(crew[0], "fix_wiring").Accepted)
	place(s, imps[0], engine.Position{X: 22, Y: 3})
	require.True(t, s.Vent(imps[0], VentEnter, "").Accepted)
	require.True(t, s.Move(crew[2], engine.Position{X: 20, Y: 5}).Accepted)

	require.True(t, s.Emergency(crew[1]).Accepted)
	assert.Equal(t, engine.PhaseMeetingCalled, s.Phase())
	assert.Equal(t, engine.ReasonWrongPhase, s.Emergency(crew[2]).Reason)

	for _, p := range s.SpectatorView().Players {
		assert.Equal(t, s.Map().Spawn(), p.Position, "%s teleported", p.PlayerID)
		assert.False(t, p.InVent)
		for _, task := range p.Tasks {
			assert.False(t, task.InProgress(), "%s task %s paused", p.PlayerID, task.ID)
		}
	}
	moved, _ := s.Player(crew[2])
	assert.Nil(t, moved.Target)

	caller, _ := s.Player(crew[1])
	assert.Zero(t, caller.EmergencyLeft)
}

func TestMeetingRoundTrip(t *testing.T) {
	s, clock := newTestSession(t, 8, nil)
	startGame(t, s, clock)
	imps, crew := roles(s)

	enterVoting(t, s, clock, crew[0])
	require.NotNil(t, s.PhaseTimerRemaining())
	assert.Equal(t, 30, *s.PhaseTimerRemaining())

	for _, id := range append(append([]string{}, crew...), imps...) {
		require.True(t, s.Vote(id, engine.VoteSkip).Accepted)
	}
	assert.Equal(t, engine.PhaseVoteResolution, s.Phase(), "the last ballot resolves immediately")

	mv, res := s.MeetingView(crew[0])
	require.True(t, res.Accepted)
	require.NotNil(t, mv.Result)
	assert.Equal(t, engine.OutcomeSkipped, mv.Result.Outcome)

	clock.Advance(s.Settings.VoteResolutionDisplay)
	assert.Equal(t, engine.PhaseTasks, s.Phase())
	assert.Empty(t, s.SpectatorView().Bodies)
	_, res = s.MeetingView(crew[0])
	assert.Equal(t, engine.ReasonWrongPhase, res.Reason)

	iv, _ := s.AgentView(imps[0])
	require.NotNil(t, iv.You.KillCooldownSec)
	assert.Equal(t, int(s.Settings.PostMeetingKillCooldown/time.Second), *iv.You.KillCooldownSec)
	require.NotNil(t, iv.MeetingCooldown)
	assert.Equal(t, int(s.Settings.MeetingCooldown/time.Second), *iv.MeetingCooldown)

	assert.Equal(t, engine.ReasonNoButtonsLeft, s.Emergency(crew[0]).Reason)
	place(s, crew[1], s.Map().Button())
	assert.Equal(t, engine.ReasonMeetingOnCooldown, s.Emergency(crew[1]).Reason)
	place(s, crew[1], engine.Position{X: 20, Y: 5})
	assert.Equal(t, engine.ReasonNotNearButton, s.Emergency(crew[1]).Reason)

	clock.Advance(s.Settings.MeetingCooldown)
	place(s, crew[1], s.Map().Button())
	assert.True(t, s.Emergency(crew[1]).Accepted)
}

func TestVoteEjectsLastImpostor(t *testing.T) {
	s, clock := newTestSession(t, 5, nil)
	startGame(t, s, clock)
	imps, crew := roles(s)
	enterVoting(t, s, clock, crew[0])

	assert.Equal(t, engine.ReasonCannotSelfVote, s.Vote(crew[0], engine.VoteTarget(crew[0])).Reason)
	assert.Equal(t, engine.ReasonInvalidVoteTarget, s.Vote(crew[0], engine.VoteTarget("ghost")).Reason)

	require.True(t, s.Vote(crew[0], engine.VoteTarget(imps[0])).Accepted)
	assert.Equal(t, engine.ReasonAlreadyVoted, s.Vote(crew[0], engine.VoteSkip).Reason)

	mv, _ := s.MeetingView(crew[0])
	require.NotNil(t, mv.YourVote)
	assert.Equal(t, engine.VoteTarget(imps[0]), *mv.YourVote)
	assert.Equal(t, 1, mv.VotesCastCount)

	for _, id := range crew[1:] {
		require.True(t, s.Vote(id, engine.VoteTarget(imps[0])).Accepted)
	}
	require.True(t, s.Vote(imps[0], engine.VoteTarget(crew[0])).Accepted)

	require.Equal(t, engine.PhaseVoteResolution, s.Phase())
	ev := lastEvent(s, EventVoteResult)
	require.NotNil(t, ev)
	result := ev.Payload.(VoteResultPayload)
	assert.Equal(t, engine.OutcomeEjected, result.Outcome)
	assert.Equal(t, imps[0], result.EjectedID)
	require.NotNil(t, result.WasImpostor)
	assert.True(t, *result.WasImpostor)

	clock.Advance(s.Settings.VoteResolutionDisplay)
	assert.Equal(t, engine.PhaseGameOver, s.Phase())
	w, r := s.Winner()
	assert.Equal(t, engine.WinnerCrewmates, w)
	assert.Equal(t, engine.ReasonAllImpostorsEjected, r)
}

func TestVotingTimeoutRecordsAbstentions(t *testing.T) {
	s, clock := newTestSession(t, 5, nil)
	startGame(t, s, clock)
	_, crew := roles(s)
	enterVoting(t, s, clock, crew[0])

	require.True(t, s.Vote(crew[0], engine.VoteTarget(crew[1])).Accepted)
	clock.Advance(s.Settings.VotingTime)

	require.Equal(t, engine.PhaseVoteResolution, s.Phase())
	view := s.SpectatorView()
	require.NotNil(t, view.LastResult)
	assert.Equal(t, engine.OutcomeSkipped, view.LastResult.Outcome)
	assert.Len(t, view.LastResult.Votes, 5)
	assert.Equal(t, 4, view.LastResult.Skips)
}

func TestStaleTimerIsIgnored(t *testing.T) {
	s, clock := newTestSession(t, 5, nil)
	clock.ignoreStop = true
	startGame(t, s, clock)
	imps, crew := roles(s)
	enterVoting(t, s, clock, crew[0])

	for _, id := range append(append([]string{}, crew...), imps...) {
		require.True(t, s.Vote(id, engine.VoteSkip).Accepted)
	}
	clock.Advance(s.Settings.VoteResolutionDisplay)
	require.Equal(t, engine.PhaseTasks, s.Phase())
	s.Events().Drain()

	// The voting timer still fires because Stop was advisory.
	clock.Advance(s.Settings.VotingTime)
	assert.Equal(t, engine.PhaseTasks, s.Phase())
	assert.Zero(t, s.Events().Len())
}

// ---------------------------------------------------------------------------
// Discussion
// ---------------------------------------------------------------------------

func TestPublicDiscussionLimits(t *testing.T) {
	s, clock := newTestSession(t, 5, nil)
	startGame(t, s, clock)
	_, crew := roles(s)
	place(s, crew[0], s.Map().Button())
	require.True(t, s.Emergency(crew[0]).Accepted)
	clock.Advance(s.Settings.MeetingFreeze)

	require.True(t, s.Discuss(crew[0], "  it was red  ", ChannelPublic).Accepted)
	assert.Equal(t, engine.ReasonMessageCooldown, s.Discuss(crew[0], "again", ChannelPublic).Reason)

	clock.Advance(s.Settings.MessageInterval)
	assert.Equal(t, engine.ReasonEmptyMessage, s.Discuss(crew[0], "   ", "").Reason)
	require.True(t, s.Discuss(crew[0], strings.Repeat("x", 300), "").Accepted)

	clock.Advance(s.Settings.MessageInterval)
	assert.Equal(t, engine.ReasonMessageLimitReached, s.Discuss(crew[0], "third", ChannelPublic).Reason)

	mv, _ := s.MeetingView(crew[0])
	require.Len(t, mv.DiscussionMessages, 2)
	assert.Equal(t, "it was red", mv.DiscussionMessages[0].Message)
	assert.Equal(t, s.Settings.MessageMaxLength, len([]rune(mv.DiscussionMessages[1].Message)))
	assert.Zero(t, mv.YourRemainingMessages)

	other, _ := s.MeetingView(crew[1])
	assert.Equal(t, s.Settings.MessagesPerMeeting, other.YourRemainingMessages)

	assert.Equal(t, engine.ReasonInvalidChannel, s.Discuss(crew[1], "hi", Channel("team")).Reason)
}

func TestImpostorChat(t *testing.T) {
	s, clock := newTestSession(t, 8, nil)
	startGame(t, s, clock)
	imps, crew := roles(s)
	s.Events().Drain()

	require.True(t, s.Discuss(imps[0], "take electrical", ChannelImpostor).Accepted)
	assert.Equal(t, engine.ReasonNotImpostor, s.Discuss(crew[0], "me too", ChannelImpostor).Reason)
	assert.Equal(t, engine.ReasonEmptyMessage, s.Discuss(imps[1], "", ChannelImpostor).Reason)

	ev := lastEvent(s, EventImpostorChat)
	require.NotNil(t, ev)
	assert.Equal(t, "take electrical", ev.Payload.(ImpostorChatPayload).Message)

	s.mu.Lock()
	assert.Empty(t, s.messages, "impostor chat is not part of the transcript")
	s.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Vents and vision
// ---------------------------------------------------------------------------

func TestVentFlow(t *testing.T) {
	s, clock := newTestSession(t, 8, nil)
	startGame(t, s, clock)
	imps, crew := roles(s)
	imp := imps[0]

	place(s, imp, engine.Position{X: 22, Y: 3})
	require.True(t, s.Move(imp, engine.Position{X: 24, Y: 5}).Accepted)
	require.True(t, s.Vent(imp, VentEnter, "").Accepted)

	p, _ := s.Player(imp)
	assert.True(t, p.InVent)
	assert.Nil(t, p.Target)
	assert.Equal(t, engine.Position{X: 22, Y: 2}, p.Position)

	assert.Equal(t, engine.ReasonAlreadyInVent, s.Vent(imp, VentEnter, "").Reason)
	assert.Equal(t, engine.ReasonInVent, s.Move(imp, engine.Position{X: 24, Y: 5}).Reason)
	assert.Equal(t, engine.ReasonInVent, s.Kill(imp, crew[0]).Reason)
	assert.Equal(t, engine.ReasonTargetRoomRequired, s.Vent(imp, VentMove, "").Reason)
	assert.Equal(t, engine.ReasonVentNotConnected, s.Vent(imp, VentMove, "Navigation").Reason)

	iv, _ := s.AgentView(imp)
	assert.Equal(t, []string{"Admin"}, iv.You.ConnectedVentRooms)

	cv, _ := s.AgentView(crew[0])
	for _, vp := range cv.VisiblePlayers {
		assert.NotEqual(t, imp, vp.PlayerID, "vented players are hidden")
	}

	require.True(t, s.Vent(imp, VentMove, "Admin").Accepted)
	p, _ = s.Player(imp)
	assert.Equal(t, engine.Position{X: 26, Y: 15}, p.Position)
	assert.Equal(t, "Admin", p.Room)

	require.True(t, s.Vent(imp, VentExit, "").Accepted)
	p, _ = s.Player(imp)
	assert.False(t, p.InVent)
	assert.Equal(t, engine.ReasonNotInVent, s.Vent(imp, VentExit, "").Reason)

	var actions []VentAction
	for _, ev := range s.Events().Drain() {
		if ev.Type == EventPlayerVented {
			actions = append(actions, ev.Payload.(PlayerVentedPayload).Action)
		}
	}
	assert.Equal(t, []VentAction{VentEnter, VentMove, VentExit}, actions)
}

func TestVentRoundTripAcrossSharedGroups(t *testing.T) {
	s, clock := newTestSession(t, 8, nil)
	startGame(t, s, clock)
	imps, _ := roles(s)
	imp := imps[0]

	place(s, imp, engine.Position{X: 32, Y: 18})
	require.True(t, s.Vent(imp, VentEnter, "").Accepted)
	require.True(t, s.Vent(imp, VentMove, "Navigation").Accepted)

	iv, _ := s.AgentView(imp)
	assert.Equal(t, []string{"Shields"}, iv.You.ConnectedVentRooms, "Weapons has no vent")

	require.True(t, s.Vent(imp, VentMove, "Shields").Accepted)
	p, _ := s.Player(imp)
	assert.Equal(t, engine.Position{X: 32, Y: 19}, p.Position)
	assert.Equal(t, "Shields", p.Room)
}

func TestAgentViewFiltersByVision(t *testing.T) {
	s, clock := newTestSession(t, 8, nil)
	startGame(t, s, clock)
	imps, crew := roles(s)

	place(s, crew[0], engine.Position{X: 40, Y: 11})
	v, res := s.AgentView(crew[0])
	require.True(t, res.Accepted)
	assert.Empty(t, v.VisiblePlayers, "nobody is near Navigation")
	assert.Equal(t, crew[0], v.You.PlayerID)
	assert.Equal(t, engine.RoleCrewmate, v.You.Role)
	assert.Nil(t, v.You.KillCooldownSec)
	assert.Empty(t, v.You.FellowImpostors)
	assert.Equal(t, 8, v.AliveCount)

	near, _ := s.AgentView(crew[1])
	assert.Len(t, near.VisiblePlayers, 6, "everyone else still stands at spawn")

	iv, _ := s.AgentView(imps[0])
	require.Len(t, iv.You.FellowImpostors, 1)
	assert.Equal(t, imps[1], iv.You.FellowImpostors[0].PlayerID)

	require.True(t, s.Kill(imps[0], crew[1]).Accepted)
	near, _ = s.AgentView(crew[2])
	assert.Len(t, near.VisibleBodies, 1)
	far, _ := s.AgentView(crew[0])
	assert.Empty(t, far.VisibleBodies)

	_, res = s.AgentView("ghost")
	assert.Equal(t, engine.ReasonPlayerNotFound, res.Reason)

	assert.Len(t, s.SpectatorView().Players, 8, "spectators see everyone")
}

func TestPerceivers(t *testing.T) {
	s, clock := newTestSession(t, 5, nil)
	startGame(t, s, clock)
	_, crew := roles(s)

	place(s, crew[0], engine.Position{X: 40, Y: 11})
	got := s.Perceivers(engine.Position{X: 38, Y: 12})
	assert.Equal(t, []string{crew[0]}, got)
	assert.Empty(t, s.Perceivers(engine.Position{X: 38, Y: 12}, crew[0]))
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func TestDestroyClosesSession(t *testing.T) {
	s, clock := newTestSession(t, 5, nil)
	startGame(t, s, clock)
	_, crew := roles(s)

	s.Destroy()
	s.Destroy()

	assert.Equal(t, engine.ReasonSessionClosed, s.Move(crew[0], engine.Position{X: 24, Y: 5}).Reason)
	assert.Equal(t, engine.ReasonSessionClosed, s.Discuss(crew[0], "hello", ChannelPublic).Reason)
	_, res := s.AgentView(crew[0])
	assert.Equal(t, engine.ReasonSessionClosed, res.Reason)

	_, open := <-s.Events().Ready()
	for open {
		_, open = <-s.Events().Ready()
	}
	assert.False(t, open, "ready channel is closed")
}

// slowFirstHistorian stalls on the first record so out-of-order publishing
// would show up as a reordered log.
type slowFirstHistorian struct {
	mu   sync.Mutex
	recs []cache.ActionRecord
}

func (h *slowFirstHistorian) PublishAction(_ context.Context, rec cache.ActionRecord) error {
	if rec.ActionIndex == 1 {
		time.Sleep(30 * time.Millisecond)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recs = append(h.recs, rec)
	return nil
}

func (h *slowFirstHistorian) snapshot() []cache.ActionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]cache.ActionRecord(nil), h.recs...)
}

func TestActionsArePublishedInOrder(t *testing.T) {
	h := &slowFirstHistorian{}
	s, _ := newTestSession(t, 4, func(o *Options) { o.Historian = h })
	require.True(t, s.Start().Accepted)

	require.Eventually(t, func() bool { return len(h.snapshot()) == 5 }, 2*time.Second, 5*time.Millisecond)
	recs := h.snapshot()
	for i, rec := range recs {
		assert.Equal(t, i+1, rec.ActionIndex)
		assert.Equal(t, s.ID, rec.GameID)
	}
	for _, rec := range recs[:4] {
		assert.Equal(t, "player_joined", rec.ActionType)
	}
	assert.Equal(t, "p0", recs[0].ActorID)
}

func TestDestroyStopsPublishing(t *testing.T) {
	h := &slowFirstHistorian{}
	s, _ := newTestSession(t, 1, func(o *Options) { o.Historian = h })
	require.Eventually(t, func() bool { return len(h.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)

	s.Destroy()
	_, res := s.AddPlayer(engine.Profile{ID: "late", Name: "Late"})
	assert.Equal(t, engine.ReasonSessionClosed, res.Reason)
	assert.Len(t, h.snapshot(), 1)
}
