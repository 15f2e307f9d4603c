package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const joinKeyPrefix = "join:"

// RedisStore keeps join records in redis with the validity window as the
// key TTL. Expiry needs no prune pass, and records are visible to every
// proxy instance sharing the redis.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func joinKey(username, serverID string) string {
	return joinKeyPrefix + username + ":" + serverID
}

func (s *RedisStore) RecordJoin(ctx context.Context, username, profileID, serverID string, _ time.Time) error {
	username = strings.ToLower(username)
	if err := s.rdb.Set(ctx, joinKey(username, serverID), profileID, Window).Err(); err != nil {
		return fmt.Errorf("record join for %s: %w", username, err)
	}
	return nil
}

func (s *RedisStore) CheckJoin(ctx context.Context, username, serverID string, _ time.Time) (string, bool, error) {
	username = strings.ToLower(username)
	profileID, err := s.rdb.Get(ctx, joinKey(username, serverID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("check join for %s: %w", username, err)
	}
	return profileID, true, nil
}
