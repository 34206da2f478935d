package engine

import "time"

// Settings holds the fixed configuration a session is created with. A copy is
// snapshotted into each session; it never changes mid-game.
type Settings struct {
	MaxPlayers                int
	DiscussionTime            time.Duration
	VotingTime                time.Duration
	KillCooldown              time.Duration
	KillRange                 float64
	VisionCrewmate            float64
	VisionImpostor            float64
	MeetingCooldown           time.Duration // emergency button lockout after a meeting resolves
	EmergencyButtonsPerPlayer int
	MessagesPerMeeting        int
	MessageMaxLength          int // in runes
	MessageInterval           time.Duration
	GameTimeLimit             time.Duration
	ConfirmEjects             bool
	CommonTasks               int
	ShortTasks                int
	LongTasks                 int
	TickRateHz                int

	StartingCountdown       time.Duration
	MeetingFreeze           time.Duration
	VoteResolutionDisplay   time.Duration
	PostMeetingKillCooldown time.Duration
}

// DefaultSettings returns the standard game configuration.
func DefaultSettings() Settings {
	return Settings{
		MaxPlayers:                MaxPlayers,
		DiscussionTime:            45 * time.Second,
		VotingTime:                30 * time.Second,
		KillCooldown:              25 * time.Second,
		KillRange:                 2,
		VisionCrewmate:            6,
		VisionImpostor:            8,
		MeetingCooldown:           15 * time.Second,
		EmergencyButtonsPerPlayer: 1,
		MessagesPerMeeting:        2,
		MessageMaxLength:          200,
		MessageInterval:           3 * time.Second,
		GameTimeLimit:             10 * time.Minute,
		ConfirmEjects:             true,
		CommonTasks:               2,
		ShortTasks:                2,
		LongTasks:                 1,
		TickRateHz:                5,

		StartingCountdown:       5 * time.Second,
		MeetingFreeze:           3 * time.Second,
		VoteResolutionDisplay:   8 * time.Second,
		PostMeetingKillCooldown: 10 * time.Second,
	}
}

// VisionRadius returns how far a player of the given role can see.
func (s *Settings) VisionRadius(r Role) float64 {
	if r == RoleImpostor {
		return s.VisionImpostor
	}
	return s.VisionCrewmate
}

// TickInterval is the period of one simulation tick.
func (s *Settings) TickInterval() time.Duration {
	hz := s.TickRateHz
	if hz <= 0 {
		hz = 5
	}
	return time.Second / time.Duration(hz)
}
