package engine

// TallyVotes resolves a meeting's ballots.
//
// Votes are counted per target and abstentions separately. The leading target
// is ejected only if it holds strictly more votes than every other target and
// strictly more votes than there are abstentions. Otherwise nobody is ejected:
// the outcome is skipped when abstentions reach the leading count (or nobody
// was named at all), and tie when two or more targets share the lead.
//
// The result depends only on the contents of votes, never on map iteration
// order. WasImpostor is filled in only when confirmEjects is set.
func TallyVotes(votes map[string]VoteTarget, players map[string]*Player, confirmEjects bool) VoteResult {
	counts := make(map[string]int)
	record := make(map[string]VoteTarget, len(votes))
	skips := 0

	for voter, target := range votes {
		record[voter] = target
		if target == VoteSkip {
			skips++
			continue
		}
		counts[string(target)]++
	}

	leading, leaders := 0, 0
	var leader string
	for id, n := range counts {
		switch {
		case n > leading:
			leading, leaders, leader = n, 1, id
		case n == leading:
			leaders++
		}
	}

	res := VoteResult{Votes: record, Counts: counts, Skips: skips}

	switch {
	case leading == 0 || skips >= leading:
		res.Outcome = OutcomeSkipped
		return res
	case leaders > 1:
		res.Outcome = OutcomeTie
		return res
	}

	res.Outcome = OutcomeEjected
	res.EjectedID = leader
	if p, ok := players[leader]; ok {
		res.EjectedColor = p.Color
		if confirmEjects {
			was := p.Role == RoleImpostor
			res.WasImpostor = &was
		}
	}
	return res
}
