package game

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/minitoshi/susbot/engine"
)

// startTicker launches the fixed-rate tick driver for the current phase
// generation. It is a no-op with manual ticks or when already running.
// Assumes lock is held by caller.
func (s *Session) startTicker() {
	if s.manualTicks || s.stopTick != nil {
		return
	}
	stop := make(chan struct{})
	s.stopTick = stop
	gen := s.phaseGen
	interval := s.Settings.TickInterval()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.mu.Lock()
				if s.phaseGen == gen && !s.destroyed {
					s.tickLocked()
				}
				s.mu.Unlock()
			}
		}
	}()
}

// stopTicker halts the tick driver if it is running.
// Assumes lock is held by caller.
func (s *Session) stopTicker() {
	if s.stopTick != nil {
		close(s.stopTick)
		s.stopTick = nil
	}
}

// Tick advances the simulation by one step. It does nothing outside the
// task phase. The internal ticker calls it; with ManualTicks the owner does.
func (s *Session) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	s.tickLocked()
}

// tickLocked runs the three tick stages: game timer, movement on every
// second tick, task completion.
// Assumes lock is held by caller.
func (s *Session) tickLocked() {
	if s.phase != engine.PhaseTasks {
		return
	}
	s.tickCount++
	now := s.clock.Now()

	if !s.gameEnd.IsZero() && !now.Before(s.gameEnd) {
		log.Infof("Game %s: Time limit reached.", s.ID)
		s.endGame(engine.WinnerImpostors, engine.ReasonTimeout)
		return
	}

	if s.tickCount%2 == 0 {
		s.advanceMovement()
	}

	s.advanceTasks(now)
}

// advanceMovement steps every moving player one cell along a shortest path.
// Assumes lock is held by caller.
func (s *Session) advanceMovement() {
	for _, id := range s.order {
		p := s.players[id]
		if !p.Alive || p.InVent || p.Target == nil {
			continue
		}
		next, ok := s.m.NextStep(p.Position, *p.Target)
		if !ok {
			p.Target = nil
			continue
		}
		p.Position = next
		p.Room = s.m.RoomName(next)
		s.emit(EventPlayerMoved, PlayerMovedPayload{
			PlayerID:  p.ID,
			Color:     p.Color,
			Position:  next,
			Room:      p.Room,
			Witnesses: s.perceivers(next, p.ID),
		})
		if next == *p.Target {
			p.Target = nil
		}
	}
}

// advanceTasks completes every task whose duration has elapsed. A crewmate
// completion may end the game on the spot.
// Assumes lock is held by caller.
func (s *Session) advanceTasks(now time.Time) {
	for _, id := range s.order {
		p := s.players[id]
		if !p.Alive {
			continue
		}
		for i := range p.Tasks {
			task := &p.Tasks[i]
			if !task.InProgress() || now.Sub(*task.StartedAt) < task.Duration {
				continue
			}
			task.Completed = true
			task.StartedAt = nil
			if p.IsImpostor() {
				continue
			}

			s.completedTasks++
			s.emit(EventTaskCompleted, TaskCompletedPayload{PlayerID: p.ID, TaskID: task.ID, TaskName: task.Name})
			s.emit(EventTaskbarUpdated, TaskbarUpdatedPayload{Progress: s.taskProgressLocked()})
			s.logAction(p.ID, "task_complete", map[string]any{"task": task.ID})

			if s.checkWin() {
				return
			}
		}
	}
}
