package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minitoshi/susbot/engine"
	"github.com/minitoshi/susbot/internal/game"
)

func player(id string, role engine.Role, alive bool) engine.Player {
	return engine.Player{
		ID:      id,
		Profile: engine.Profile{ID: id, Name: "Agent " + id},
		Color:   engine.ColorRed,
		Role:    role,
		Alive:   alive,
	}
}

func TestRoleAssignmentIsPrivate(t *testing.T) {
	roster := []engine.Player{
		player("imp1", engine.RoleImpostor, true),
		player("imp2", engine.RoleImpostor, true),
		player("crew", engine.RoleCrewmate, true),
	}
	roster[2].Tasks = []engine.Task{{ID: "t1", Name: "Fix Wiring"}}
	ev := game.Event{Seq: 3, Type: game.EventGameStarted, Payload: game.GameStartedPayload{Players: roster, ImpostorIDs: []string{"imp1", "imp2"}}}

	msg, ok := agentMessage(ev, roster[0])
	require.True(t, ok)
	assert.Equal(t, MsgRoleAssigned, msg.Type)
	ra := msg.Data.(roleAssignment)
	assert.Equal(t, engine.RoleImpostor, ra.Role)
	require.Len(t, ra.FellowImpostors, 1)
	assert.Equal(t, "imp2", ra.FellowImpostors[0].PlayerID)

	msg, ok = agentMessage(ev, roster[2])
	require.True(t, ok)
	ra = msg.Data.(roleAssignment)
	assert.Equal(t, engine.RoleCrewmate, ra.Role)
	assert.Nil(t, ra.FellowImpostors, "crewmates learn nothing about impostors")
	assert.Len(t, ra.Tasks, 1)

	_, ok = agentMessage(ev, player("outsider", engine.RoleCrewmate, true))
	assert.False(t, ok)

	spec, ok := spectatorMessage(ev)
	require.True(t, ok)
	assert.Equal(t, MsgRolesAssigned, spec.Type)
	assert.Len(t, spec.Data.(rolesAssigned).Roles, 3)
}

func TestMovementReachesWitnessesOnly(t *testing.T) {
	ev := game.Event{Type: game.EventPlayerMoved, Payload: game.PlayerMovedPayload{
		PlayerID:  "mover",
		Position:  engine.Position{X: 4, Y: 5},
		Witnesses: []string{"near"},
	}}

	msg, ok := agentMessage(ev, player("near", engine.RoleCrewmate, true))
	require.True(t, ok)
	assert.Equal(t, MsgPlayerMoved, msg.Type)
	assert.Equal(t, engine.Position{X: 4, Y: 5}, msg.Data.(movedView).Position)

	_, ok = agentMessage(ev, player("far", engine.RoleCrewmate, true))
	assert.False(t, ok)

	_, ok = spectatorMessage(ev)
	assert.True(t, ok)
}

func TestKillFanOut(t *testing.T) {
	ev := game.Event{Type: game.EventPlayerKilled, Payload: game.PlayerKilledPayload{
		KillerID:     "imp",
		KillerColor:  engine.ColorRed,
		VictimID:     "victim",
		VictimColor:  engine.ColorBlue,
		Witnesses:    []string{"sees-all", "sees-body"},
		KillerSeenBy: []string{"sees-all"},
	}}

	cases := []struct {
		name       string
		viewer     string
		wantType   string
		wantKiller bool
	}{
		{"victim", "victim", MsgYouKilled, false},
		{"killer", "imp", "", false},
		{"full witness", "sees-all", MsgPlayerKilled, true},
		{"body only", "sees-body", MsgPlayerKilled, false},
		{"elsewhere", "away", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, ok := agentMessage(ev, player(tc.viewer, engine.RoleCrewmate, true))
			if tc.wantType == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tc.wantType, msg.Type)
			if kw, isWitness := msg.Data.(killWitnessed); isWitness {
				assert.Equal(t, "victim", kw.VictimID)
				if tc.wantKiller {
					require.NotNil(t, kw.KillerID)
					assert.Equal(t, "imp", *kw.KillerID)
				} else {
					assert.Nil(t, kw.KillerID)
					assert.Nil(t, kw.KillerColor)
				}
			}
		})
	}
}

func TestChatVisibility(t *testing.T) {
	public := game.Event{Type: game.EventDiscussionMessage, Payload: game.DiscussionMessagePayload{}}
	private := game.Event{Type: game.EventImpostorChat, Payload: game.ImpostorChatPayload{Message: "kill blue"}}

	_, ok := agentMessage(public, player("alive", engine.RoleCrewmate, true))
	assert.True(t, ok)
	_, ok = agentMessage(public, player("ghost", engine.RoleCrewmate, false))
	assert.False(t, ok, "dead players do not hear the meeting")

	_, ok = agentMessage(private, player("imp", engine.RoleImpostor, true))
	assert.True(t, ok)
	_, ok = agentMessage(private, player("crew", engine.RoleCrewmate, true))
	assert.False(t, ok)
	_, ok = agentMessage(private, player("dead-imp", engine.RoleImpostor, false))
	assert.False(t, ok)

	msg, ok := spectatorMessage(private)
	require.True(t, ok)
	assert.Equal(t, MsgImpostorChat, msg.Type)
}

func TestVentsAndTasksStayPrivate(t *testing.T) {
	vent := game.Event{Type: game.EventPlayerVented, Payload: game.PlayerVentedPayload{PlayerID: "imp", Action: game.VentEnter}}
	_, ok := agentMessage(vent, player("imp2", engine.RoleImpostor, true))
	assert.False(t, ok)
	msg, ok := spectatorMessage(vent)
	require.True(t, ok)
	assert.Equal(t, MsgPlayerVented, msg.Type)

	task := game.Event{Type: game.EventTaskCompleted, Payload: game.TaskCompletedPayload{PlayerID: "crew", TaskID: "t1", TaskName: "Swipe Card"}}
	msg, ok = agentMessage(task, player("crew", engine.RoleCrewmate, true))
	require.True(t, ok)
	assert.Equal(t, taskDone{TaskID: "t1", TaskName: "Swipe Card"}, msg.Data)
	_, ok = agentMessage(task, player("other", engine.RoleCrewmate, true))
	assert.False(t, ok)
}

func TestBroadcastEventsPassThrough(t *testing.T) {
	ev := game.Event{Seq: 9, Type: game.EventTaskbarUpdated, Payload: game.TaskbarUpdatedPayload{Progress: 0.5}}
	msg, ok := agentMessage(ev, player("ghost", engine.RoleCrewmate, false))
	require.True(t, ok)
	assert.Equal(t, Message{Type: MsgTaskbar, Seq: 9, Data: game.TaskbarUpdatedPayload{Progress: 0.5}}, msg)
}
