package statestore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore checkpoints counter state to a redis key per connection name.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "tradegate:state"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(name string) string {
	return fmt.Sprintf("%s:%s", s.prefix, name)
}

func (s *RedisStore) Load(ctx context.Context, name string) (State, error) {
	var st State
	raw, err := s.client.Get(ctx, s.key(name)).Bytes()
	if err == redis.Nil {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("statestore: load %s: %w", name, err)
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return st, fmt.Errorf("statestore: decode %s: %w", name, err)
	}
	return st, nil
}

func (s *RedisStore) Save(ctx context.Context, name string, st State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(name), raw, 0).Err(); err != nil {
		return fmt.Errorf("statestore: save %s: %w", name, err)
	}
	return nil
}
