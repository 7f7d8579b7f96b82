package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pepe999/PartyGames-BE/models"
)

const snapshotTTL = 2 * time.Hour

// SnapshotView is the reconciliation read clients fall back to when they
// miss a broadcast.
type SnapshotView struct {
	Room    models.RoomView `json:"room"`
	Session *SessionView    `json:"session,omitempty"`
}

// SnapshotCache keeps the latest room snapshot in redis, refreshed on every
// mutation. It is a read-side convenience: the store stays authoritative
// and the cache only serves when the store is unavailable.
type SnapshotCache struct {
	rdb *redis.Client
	log zerolog.Logger
}

func NewSnapshotCache(rdb *redis.Client, log zerolog.Logger) *SnapshotCache {
	return &SnapshotCache{
		rdb: rdb,
		log: log.With().Str("component", "snapshots").Logger(),
	}
}

func (c *SnapshotCache) Store(ctx context.Context, snapshot SnapshotView) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		c.log.Error().Err(err).Msg("marshaling room snapshot")
		return
	}
	if err := c.rdb.Set(ctx, snapshotKey(snapshot.Room.Code), data, snapshotTTL).Err(); err != nil {
		c.log.Warn().Str("room", snapshot.Room.Code).Err(err).Msg("caching room snapshot")
	}
}

func (c *SnapshotCache) Get(ctx context.Context, code string) (*SnapshotView, error) {
	data, err := c.rdb.Get(ctx, snapshotKey(code)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrRoomNotFound
		}
		return nil, transient("reading room snapshot", err)
	}
	var snapshot SnapshotView
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshaling room snapshot: %w", err)
	}
	return &snapshot, nil
}

func (c *SnapshotCache) Drop(ctx context.Context, code string) {
	if err := c.rdb.Del(ctx, snapshotKey(code)).Err(); err != nil {
		c.log.Warn().Str("room", code).Err(err).Msg("dropping room snapshot")
	}
}

func snapshotKey(code string) string {
	return "room:" + code
}
