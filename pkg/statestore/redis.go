package statestore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash key used when none is configured.
const DefaultRedisKey = "tabrec:state"

// RedisStore keeps the state in a Redis hash with the fields recording,
// filename and updated_at.
type RedisStore struct {
	client redis.UniversalClient
	key    string
	owned  bool
}

var (
	_ Store  = (*RedisStore)(nil)
	_ Pinger = (*RedisStore)(nil)
)

// RedisOptions configures [NewRedisStore].
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// NewRedisStore connects to Redis. The client is closed by Close.
func NewRedisStore(opts RedisOptions) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	s := NewRedisStoreWithClient(client, opts.Key)
	s.owned = true
	return s
}

// NewRedisStoreWithClient wraps an existing client. Close does not close it.
func NewRedisStoreWithClient(client redis.UniversalClient, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

// Load implements [Store].
func (r *RedisStore) Load(ctx context.Context) (State, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return State{}, fmt.Errorf("statestore: redis hgetall %s: %w", r.key, err)
	}
	var s State
	if v, ok := fields["recording"]; ok {
		s.Recording, err = strconv.ParseBool(v)
		if err != nil {
			return State{}, fmt.Errorf("statestore: redis field recording: %w", err)
		}
	}
	s.Filename = fields["filename"]
	if v, ok := fields["updated_at"]; ok && v != "" {
		s.UpdatedAt, err = time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return State{}, fmt.Errorf("statestore: redis field updated_at: %w", err)
		}
	}
	return s, nil
}

// Save implements [Store].
func (r *RedisStore) Save(ctx context.Context, s State) error {
	err := r.client.HSet(ctx, r.key,
		"recording", strconv.FormatBool(s.Recording),
		"filename", s.Filename,
		"updated_at", s.UpdatedAt.UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("statestore: redis hset %s: %w", r.key, err)
	}
	return nil
}

// Ping implements [Pinger].
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("statestore: redis ping: %w", err)
	}
	return nil
}

// Close implements [Store].
func (r *RedisStore) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}
