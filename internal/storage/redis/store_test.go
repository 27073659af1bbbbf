package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/budget-service/internal/storage"
)

func newTestStore(t *testing.T, opts Options) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewStore(client, opts), mr
}

func TestStore_GetSet(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, Options{Prefix: "budget:"})

	v, err := s.Get(ctx, "balance")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, s.Set(ctx, "balance", json.RawMessage(`70`)))

	v, err = s.Get(ctx, "balance")
	require.NoError(t, err)
	assert.JSONEq(t, `70`, string(v))

	raw, err := mr.Get("budget:balance")
	require.NoError(t, err)
	assert.Equal(t, "70", raw)
}

func TestStore_Incr(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, Options{})

	n, err := s.Incr(ctx, "transactionId")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.Incr(ctx, "transactionId")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	v, err := s.Get(ctx, "transactionId")
	require.NoError(t, err)
	var decoded int64
	require.NoError(t, json.Unmarshal(v, &decoded))
	assert.Equal(t, int64(2), decoded)
}

func TestStore_UpdateCommitsTogether(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, Options{})
	require.NoError(t, s.Set(ctx, "balance", json.RawMessage(`10`)))

	err := s.Update(ctx, func(tx storage.KeyValueStore) error {
		v, err := tx.Get(ctx, "balance")
		require.NoError(t, err)
		assert.JSONEq(t, `10`, string(v))

		require.NoError(t, tx.Set(ctx, "balance", json.RawMessage(`20`)))
		return tx.Set(ctx, "transactions", json.RawMessage(`[]`))
	})
	require.NoError(t, err)

	balance, _ := mr.Get("balance")
	txs, _ := mr.Get("transactions")
	assert.Equal(t, "20", balance)
	assert.Equal(t, "[]", txs)
	assert.False(t, mr.Exists(defaultLockKey), "lock must be released")
}

func TestStore_UpdateDiscardsOnError(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, Options{})
	require.NoError(t, s.Set(ctx, "balance", json.RawMessage(`10`)))

	boom := errors.New("boom")
	err := s.Update(ctx, func(tx storage.KeyValueStore) error {
		_ = tx.Set(ctx, "balance", json.RawMessage(`99`))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	balance, _ := mr.Get("balance")
	assert.Equal(t, "10", balance)
}

func TestStore_UpdateSerializesWriters(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, Options{})
	require.NoError(t, s.Set(ctx, "n", json.RawMessage(`0`)))

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update(ctx, func(tx storage.KeyValueStore) error {
				v, err := tx.Get(ctx, "n")
				if err != nil {
					return err
				}
				var n int
				if err := json.Unmarshal(v, &n); err != nil {
					return err
				}
				out, _ := json.Marshal(n + 1)
				return tx.Set(ctx, "n", out)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v, err := s.Get(ctx, "n")
	require.NoError(t, err)
	assert.JSONEq(t, `10`, string(v))
}

func TestStore_Unavailable(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, Options{})
	mr.Close()

	_, err := s.Get(ctx, "balance")
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	err = s.Set(ctx, "balance", json.RawMessage(`1`))
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	assert.ErrorIs(t, s.Ping(ctx), storage.ErrUnavailable)
}
