// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// ActionStream is the Redis stream every session action is appended to.
const ActionStream = "susbot:actions"

// DefaultStreamLen caps the action stream, approximately.
const DefaultStreamLen = 100_000

// Connect parses a redis:// URL, dials it and checks the connection with a PING.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	log.WithField("addr", opts.Addr).Info("Connected to Redis")
	return rdb, nil
}

// ActionRecord is one entry of a session's action history.
type ActionRecord struct {
	GameID      uuid.UUID      `json:"gameId"`
	ActionIndex int            `json:"actionIndex"`
	ActorID     string         `json:"actorId,omitempty"` // empty for engine-driven events
	ActionType  string         `json:"actionType"`
	Payload     map[string]any `json:"payload"`
	Timestamp   int64          `json:"timestamp"` // unix millis
}

// Values flattens the record into stream fields. The payload is stored as
// a JSON string.
func (r ActionRecord) Values() (map[string]any, error) {
	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload of action %d: %w", r.ActionIndex, err)
	}
	return map[string]any{
		"gameId":  r.GameID.String(),
		"index":   r.ActionIndex,
		"actor":   r.ActorID,
		"type":    r.ActionType,
		"payload": string(payload),
		"ts":      r.Timestamp,
	}, nil
}

// decodeAction rebuilds a record from stream fields. go-redis returns every
// field value as a string.
func decodeAction(values map[string]any) (ActionRecord, error) {
	str := func(k string) string {
		s, _ := values[k].(string)
		return s
	}

	var rec ActionRecord
	id, err := uuid.Parse(str("gameId"))
	if err != nil {
		return rec, fmt.Errorf("decode gameId: %w", err)
	}
	rec.GameID = id
	if rec.ActionIndex, err = strconv.Atoi(str("index")); err != nil {
		return rec, fmt.Errorf("decode index: %w", err)
	}
	if rec.Timestamp, err = strconv.ParseInt(str("ts"), 10, 64); err != nil {
		return rec, fmt.Errorf("decode ts: %w", err)
	}
	rec.ActorID = str("actor")
	rec.ActionType = str("type")
	if p := str("payload"); p != "" {
		if err := json.Unmarshal([]byte(p), &rec.Payload); err != nil {
			return rec, fmt.Errorf("decode payload: %w", err)
		}
	}
	return rec, nil
}

// Historian appends session actions to a capped Redis stream.
type Historian struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

// NewHistorian returns a historian writing to ActionStream.
func NewHistorian(rdb *redis.Client) *Historian {
	return &Historian{rdb: rdb, stream: ActionStream, maxLen: DefaultStreamLen}
}

// PublishAction appends rec to the stream.
func (h *Historian) PublishAction(ctx context.Context, rec ActionRecord) error {
	values, err := rec.Values()
	if err != nil {
		return err
	}
	err = h.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: h.stream,
		MaxLen: h.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", h.stream, err)
	}
	return nil
}

// GameActions scans the most recent count stream entries and returns those
// belonging to gameID, oldest first.
func (h *Historian) GameActions(ctx context.Context, gameID uuid.UUID, count int64) ([]ActionRecord, error) {
	msgs, err := h.rdb.XRevRangeN(ctx, h.stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange %s: %w", h.stream, err)
	}

	want := gameID.String()
	var out []ActionRecord
	for i := len(msgs) - 1; i >= 0; i-- {
		if g, _ := msgs[i].Values["gameId"].(string); g != want {
			continue
		}
		rec, err := decodeAction(msgs[i].Values)
		if err != nil {
			log.WithError(err).WithField("entry", msgs[i].ID).Warn("Skipping malformed action entry")
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
