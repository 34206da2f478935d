package engine

// Reason is a machine-readable rejection code. Every expected, recoverable
// refusal in the game is one of these; it satisfies error so the validators
// can return it directly.
type Reason string

func (r Reason) Error() string { return string(r) }

const (
	ReasonNone Reason = ""

	// Session-level.
	ReasonWrongPhase       Reason = "WRONG_PHASE"
	ReasonPlayerNotFound   Reason = "PLAYER_NOT_FOUND"
	ReasonPlayerDead       Reason = "PLAYER_DEAD"
	ReasonSessionClosed    Reason = "SESSION_CLOSED"
	ReasonGameFull         Reason = "GAME_FULL"
	ReasonAlreadyJoined    Reason = "ALREADY_JOINED"
	ReasonInvalidPlayerID  Reason = "INVALID_PLAYER_ID"
	ReasonNotEnoughPlayers Reason = "NOT_ENOUGH_PLAYERS"

	// Movement.
	ReasonInvalidTarget Reason = "INVALID_TARGET"

	// Kill.
	ReasonNotImpostor        Reason = "NOT_IMPOSTOR"
	ReasonKillerDead         Reason = "KILLER_DEAD"
	ReasonTargetNotFound     Reason = "TARGET_NOT_FOUND"
	ReasonTargetDead         Reason = "TARGET_DEAD"
	ReasonCannotKillImpostor Reason = "CANNOT_KILL_IMPOSTOR"
	ReasonInVent             Reason = "IN_VENT"
	ReasonTargetInVent       Reason = "TARGET_IN_VENT"
	ReasonTargetNotInRange   Reason = "TARGET_NOT_IN_RANGE"
	ReasonKillOnCooldown     Reason = "KILL_ON_COOLDOWN"

	// Report and emergency.
	ReasonReporterDead      Reason = "REPORTER_DEAD"
	ReasonBodyNotFound      Reason = "BODY_NOT_FOUND"
	ReasonBodyNotVisible    Reason = "BODY_NOT_VISIBLE"
	ReasonNoButtonsLeft     Reason = "NO_BUTTONS_LEFT"
	ReasonNotNearButton     Reason = "NOT_NEAR_BUTTON"
	ReasonMeetingOnCooldown Reason = "MEETING_ON_COOLDOWN"

	// Tasks.
	ReasonTaskNotAssigned      Reason = "TASK_NOT_ASSIGNED"
	ReasonTaskAlreadyCompleted Reason = "TASK_ALREADY_COMPLETED"
	ReasonTaskInProgress       Reason = "TASK_IN_PROGRESS"
	ReasonNotAtTaskStation     Reason = "NOT_AT_TASK_STATION"
	ReasonAlreadyDoingTask     Reason = "ALREADY_DOING_TASK"

	// Discussion.
	ReasonMessageLimitReached Reason = "MESSAGE_LIMIT_REACHED"
	ReasonMessageCooldown     Reason = "MESSAGE_COOLDOWN"
	ReasonEmptyMessage        Reason = "EMPTY_MESSAGE"
	ReasonInvalidChannel      Reason = "INVALID_CHANNEL"

	// Voting.
	ReasonAlreadyVoted      Reason = "ALREADY_VOTED"
	ReasonInvalidVoteTarget Reason = "INVALID_VOTE_TARGET"
	ReasonCannotSelfVote    Reason = "CANNOT_SELF_VOTE"

	// Vents.
	ReasonAlreadyInVent      Reason = "ALREADY_IN_VENT"
	ReasonNotNearVent        Reason = "NOT_NEAR_VENT"
	ReasonNotInVent          Reason = "NOT_IN_VENT"
	ReasonTargetRoomRequired Reason = "TARGET_ROOM_REQUIRED"
	ReasonRoomNotFound       Reason = "ROOM_NOT_FOUND"
	ReasonVentNotConnected   Reason = "VENT_NOT_CONNECTED"
	ReasonInvalidVentAction  Reason = "INVALID_VENT_ACTION"
)
