package database

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minitoshi/susbot/engine"
	"github.com/minitoshi/susbot/internal/game"
)

func TestResultArgs(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	r := game.GameResult{
		GameID:      uuid.New(),
		Winner:      engine.WinnerCrewmates,
		Reason:      engine.ReasonAllTasks,
		Rounds:      2,
		Players:     []game.PlayerRef{{PlayerID: "a", Name: "Alpha", Color: engine.ColorRed}},
		Roles:       map[string]engine.Role{"a": engine.RoleCrewmate},
		ImpostorIDs: []string{"b"},
		TasksDone:   30,
		TasksTotal:  30,
		StartedAt:   start,
		EndedAt:     start.Add(7 * time.Minute),
	}

	args, err := resultArgs(r)
	require.NoError(t, err)
	require.Len(t, args, 11, "one argument per insert column")

	assert.Equal(t, r.GameID, args[0])
	assert.Equal(t, "crewmates", args[1])
	assert.Equal(t, "all_tasks", args[2])

	var players []game.PlayerRef
	require.NoError(t, json.Unmarshal(args[4].([]byte), &players))
	assert.Equal(t, r.Players, players)
	assert.JSONEq(t, `{"a":"crewmate"}`, string(args[5].([]byte)))
	assert.JSONEq(t, `["b"]`, string(args[6].([]byte)))
	assert.Equal(t, r.EndedAt, args[10])
}

func TestConnectRejectsBadURL(t *testing.T) {
	_, err := Connect(context.Background(), "postgres://%zz")
	assert.Error(t, err)
}
