package engine

import "time"

// ValidateKill decides whether killer may kill target at time now. It returns
// nil when the kill is legal, otherwise the Reason for refusing. It has no
// side effects; the caller applies the kill.
func ValidateKill(killer, target *Player, s Settings, now time.Time) error {
	switch {
	case killer.Role != RoleImpostor:
		return ReasonNotImpostor
	case !killer.Alive:
		return ReasonKillerDead
	case !target.Alive:
		return ReasonTargetDead
	case target.Role == RoleImpostor:
		return ReasonCannotKillImpostor
	case killer.InVent:
		return ReasonInVent
	case target.InVent:
		return ReasonTargetInVent
	}

	if Distance(killer.Position, target.Position) > s.KillRange {
		return ReasonTargetNotInRange
	}

	if killer.LastKillAt != nil && now.Before(killer.LastKillAt.Add(s.KillCooldown)) {
		return ReasonKillOnCooldown
	}
	return nil
}

// KillCooldownRemaining returns how long until killer may kill again. Zero
// when the cooldown has elapsed or the player never killed.
func KillCooldownRemaining(killer *Player, s Settings, now time.Time) time.Duration {
	if killer.LastKillAt == nil {
		return 0
	}
	left := killer.LastKillAt.Add(s.KillCooldown).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// ValidateReport decides whether reporter may report the body of bodyID.
func ValidateReport(reporter *Player, bodies []Body, bodyID string, visionRadius float64) error {
	if !reporter.Alive {
		return ReasonReporterDead
	}

	body := findBody(bodies, bodyID)
	if body == nil {
		return ReasonBodyNotFound
	}

	if !Visible(reporter.Position, body.Position, visionRadius) {
		return ReasonBodyNotVisible
	}
	return nil
}

func findBody(bodies []Body, id string) *Body {
	for i := range bodies {
		if bodies[i].PlayerID == id {
			return &bodies[i]
		}
	}
	return nil
}
