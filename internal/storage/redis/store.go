// Package redis stores ledger keys in Redis.
//
// Plain reads and writes map to GET and SET. Update serializes writers with a
// redsync lock and commits the staged writes in a single MULTI/EXEC so readers
// never observe a partially applied mutation.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"

	"github.com/Dan9191/budget-service/internal/storage"
)

const defaultLockKey = "lock:ledger"

// Options configures the Redis store.
type Options struct {
	Prefix     string        // prepended to every key
	LockKey    string        // redsync mutex name
	LockExpiry time.Duration // lock TTL; an update must finish within it
	LockTries  int
	RetryDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.LockKey == "" {
		o.LockKey = defaultLockKey
	}
	if o.LockExpiry == 0 {
		o.LockExpiry = 10 * time.Second
	}
	if o.LockTries == 0 {
		o.LockTries = 64
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = 25 * time.Millisecond
	}
	return o
}

// Store implements storage.Store on top of a go-redis client.
type Store struct {
	client redis.UniversalClient
	rs     *redsync.Redsync
	opts   Options
}

// NewStore creates a Redis-backed store. The caller owns the client.
func NewStore(client redis.UniversalClient, opts Options) *Store {
	return &Store{
		client: client,
		rs:     redsync.New(goredis.NewPool(client)),
		opts:   opts.withDefaults(),
	}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis ping: %w", storage.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) key(k string) string { return s.opts.Prefix + k }

func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: redis get %q: %w", storage.ErrUnavailable, key, err)
	}
	return val, nil
}

func (s *Store) Set(ctx context.Context, key string, value json.RawMessage) error {
	if err := s.client.Set(ctx, s.key(key), []byte(value), 0).Err(); err != nil {
		return fmt.Errorf("%w: redis set %q: %w", storage.ErrUnavailable, key, err)
	}
	return nil
}

// Incr uses INCR, which stores the counter as a decimal string that is also valid JSON.
func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, s.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: redis incr %q: %w", storage.ErrUnavailable, key, err)
	}
	return n, nil
}

func (s *Store) Update(ctx context.Context, fn func(tx storage.KeyValueStore) error) error {
	mutex := s.rs.NewMutex(
		s.key(s.opts.LockKey),
		redsync.WithExpiry(s.opts.LockExpiry),
		redsync.WithTries(s.opts.LockTries),
		redsync.WithRetryDelay(s.opts.RetryDelay),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("%w: acquire ledger lock: %w", storage.ErrUnavailable, err)
	}
	defer func() {
		// an expired lock is released by Redis anyway
		_, _ = mutex.UnlockContext(context.WithoutCancel(ctx))
	}()

	staged := storage.NewStaged(s.Get)
	if err := fn(staged); err != nil {
		return err
	}
	if staged.Len() == 0 {
		return nil
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return staged.Each(func(key string, value json.RawMessage) error {
			pipe.Set(ctx, s.key(key), []byte(value), 0)
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("%w: redis commit: %w", storage.ErrUnavailable, err)
	}
	return nil
}

var _ storage.Store = (*Store)(nil)
