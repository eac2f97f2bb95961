package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wfunc/dominoserver/game"
)

// SnapshotKeyPrefix namespaces match snapshots. The owning server id and the
// room name follow, separated by a colon.
const SnapshotKeyPrefix = "game_state:"

// SnapshotStore holds the latest authoritative match state per room.
type SnapshotStore interface {
	Save(ctx context.Context, room string, match *game.State) error
	Load(ctx context.Context, room string) (*game.State, error)
	Delete(ctx context.Context, room string) error
}

func SnapshotKey(owner, room string) string {
	return SnapshotKeyPrefix + owner + ":" + room
}

// RedisSnapshotStore writes snapshots as JSON with a TTL so abandoned rooms
// expire on their own. Keys carry the owning server id, so processes sharing
// one Redis never touch each other's matches.
type RedisSnapshotStore struct {
	client *redis.Client
	owner  string
	ttl    time.Duration
}

func NewRedisSnapshotStore(client *redis.Client, owner string, ttl time.Duration) *RedisSnapshotStore {
	return &RedisSnapshotStore{client: client, owner: owner, ttl: ttl}
}

func (s *RedisSnapshotStore) Save(ctx context.Context, room string, match *game.State) error {
	data, err := json.Marshal(match)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, SnapshotKey(s.owner, room), data, s.ttl).Err()
}

func (s *RedisSnapshotStore) Load(ctx context.Context, room string) (*game.State, error) {
	data, err := s.client.Get(ctx, SnapshotKey(s.owner, room)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	var match game.State
	if err := json.Unmarshal(data, &match); err != nil {
		return nil, err
	}
	return &match, nil
}

func (s *RedisSnapshotStore) Delete(ctx context.Context, room string) error {
	return s.client.Del(ctx, SnapshotKey(s.owner, room)).Err()
}

// Rooms lists the rooms of this owner that currently have a snapshot.
func (s *RedisSnapshotStore) Rooms(ctx context.Context) ([]string, error) {
	prefix := SnapshotKey(s.owner, "")
	var rooms []string
	iter := s.client.Scan(ctx, 0, globEscape(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		rooms = append(rooms, strings.TrimPrefix(iter.Val(), prefix))
	}
	return rooms, iter.Err()
}

func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
