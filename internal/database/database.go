// internal/database/database.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/minitoshi/susbot/internal/game"
)

// Connect opens a pgx pool for url and verifies it with a ping.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 8

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	log.WithField("host", cfg.ConnConfig.Host).Info("Connected to Postgres")
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS game_results (
	game_id         UUID PRIMARY KEY,
	winner          TEXT NOT NULL,
	reason          TEXT NOT NULL,
	rounds          INT NOT NULL,
	players         JSONB NOT NULL,
	roles           JSONB NOT NULL,
	impostor_ids    JSONB NOT NULL,
	tasks_completed INT NOT NULL,
	tasks_total     INT NOT NULL,
	started_at      TIMESTAMPTZ NOT NULL,
	ended_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS game_results_ended_at_idx ON game_results (ended_at DESC);
`

const insertResult = `
INSERT INTO game_results
	(game_id, winner, reason, rounds, players, roles, impostor_ids, tasks_completed, tasks_total, started_at, ended_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (game_id) DO NOTHING`

const selectRecent = `
SELECT game_id, winner, reason, rounds, players, tasks_completed, tasks_total, started_at, ended_at
FROM game_results
ORDER BY ended_at DESC
LIMIT $1`

// Store archives finished games. Nothing is ever loaded back into a live
// session.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an open pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the archive table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// resultArgs orders r into the insert's positional arguments.
func resultArgs(r game.GameResult) ([]any, error) {
	players, err := json.Marshal(r.Players)
	if err != nil {
		return nil, fmt.Errorf("encode players: %w", err)
	}
	roles, err := json.Marshal(r.Roles)
	if err != nil {
		return nil, fmt.Errorf("encode roles: %w", err)
	}
	imps, err := json.Marshal(r.ImpostorIDs)
	if err != nil {
		return nil, fmt.Errorf("encode impostor ids: %w", err)
	}
	return []any{
		r.GameID, string(r.Winner), string(r.Reason), r.Rounds,
		players, roles, imps,
		r.TasksDone, r.TasksTotal, r.StartedAt, r.EndedAt,
	}, nil
}

// SaveGameResult archives one finished game. Saving the same game twice is
// a no-op.
func (s *Store) SaveGameResult(ctx context.Context, r game.GameResult) error {
	args, err := resultArgs(r)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, insertResult, args...); err != nil {
		return fmt.Errorf("insert game result %s: %w", r.GameID, err)
	}
	log.WithFields(log.Fields{"game": r.GameID, "winner": r.Winner}).Debug("Archived game result")
	return nil
}

// ResultSummary is one row of the recent-games listing.
type ResultSummary struct {
	GameID     uuid.UUID        `json:"gameId"`
	Winner     string           `json:"winner"`
	Reason     string           `json:"reason"`
	Rounds     int              `json:"rounds"`
	Players    []game.PlayerRef `json:"players"`
	TasksDone  int              `json:"tasksCompleted"`
	TasksTotal int              `json:"tasksTotal"`
	StartedAt  time.Time        `json:"startedAt"`
	EndedAt    time.Time        `json:"endedAt"`
}

// RecentResults returns up to limit archived games, newest first.
func (s *Store) RecentResults(ctx context.Context, limit int) ([]ResultSummary, error) {
	rows, err := s.pool.Query(ctx, selectRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent results: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ResultSummary, error) {
		var (
			r       ResultSummary
			players []byte
		)
		if err := row.Scan(&r.GameID, &r.Winner, &r.Reason, &r.Rounds, &players,
			&r.TasksDone, &r.TasksTotal, &r.StartedAt, &r.EndedAt); err != nil {
			return r, err
		}
		if err := json.Unmarshal(players, &r.Players); err != nil {
			return r, fmt.Errorf("decode players of %s: %w", r.GameID, err)
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan recent results: %w", err)
	}
	return out, nil
}
