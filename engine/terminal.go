package engine

// CheckWinCondition evaluates the roster and task counters. The first
// matching rule wins:
//
//  1. no impostor alive             → crewmates, all_impostors_ejected
//  2. alive impostors >= crewmates  → impostors, impostors_majority
//  3. every crewmate task completed → crewmates, all_tasks
//
// It returns WinnerNone while the game should continue. The timeout win is
// decided by the session clock, not here.
func CheckWinCondition(players map[string]*Player, completedTasks, totalTasks int) (Winner, WinReason) {
	var crew, imps int
	for _, p := range players {
		if !p.Alive {
			continue
		}
		if p.Role == RoleImpostor {
			imps++
		} else {
			crew++
		}
	}

	switch {
	case imps == 0:
		return WinnerCrewmates, ReasonAllImpostorsEjected
	case imps >= crew:
		return WinnerImpostors, ReasonImpostorsMajority
	case totalTasks > 0 && completedTasks >= totalTasks:
		return WinnerCrewmates, ReasonAllTasks
	}
	return WinnerNone, ""
}
