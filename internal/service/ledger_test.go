package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dan9191/budget-service/internal/config"
	"github.com/Dan9191/budget-service/internal/events"
	"github.com/Dan9191/budget-service/internal/models"
	"github.com/Dan9191/budget-service/internal/repository"
	"github.com/Dan9191/budget-service/internal/storage"
	"github.com/Dan9191/budget-service/internal/storage/memory"
	redisstore "github.com/Dan9191/budget-service/internal/storage/redis"
)

var fixedNow = time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC)

func newLedger(t *testing.T, kv storage.KeyValueStore, cfg LedgerConfig, opts ...Option) *LedgerService {
	t.Helper()
	log, _ := test.NewNullLogger()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewLedgerService(kv, log, cfg, opts...)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func record(t *testing.T, l *LedgerService, typ, amount, desc string) (models.Transaction, decimal.Decimal) {
	t.Helper()
	tx, balance, err := l.Record(context.Background(), RecordInput{Type: typ, Amount: dec(amount), Description: desc})
	require.NoError(t, err)
	return tx, balance
}

func tids(txs []models.Transaction) []int64 {
	out := []int64{}
	for _, tx := range txs {
		out = append(out, tx.TID)
	}
	return out
}

func ledgerModes() map[string]LedgerConfig {
	return map[string]LedgerConfig{
		"sequential": {AtomicWrites: false},
		"atomic":     {AtomicWrites: true},
	}
}

func TestLedgerScenario(t *testing.T) {
	for name, cfg := range ledgerModes() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := newLedger(t, memory.NewStore(), cfg)

			salary, balance := record(t, l, models.TypeIncome, "100", "salary")
			assert.Equal(t, int64(1), salary.TID)
			assert.Equal(t, models.TypeIncome, salary.Type)
			assert.Equal(t, "100", salary.Amount.String())
			assert.Equal(t, "salary", salary.Description)
			assert.Equal(t, "2025-03-14T09:26:53.589Z", salary.Date)
			assert.Equal(t, "100", balance.String())

			food, balance := record(t, l, models.TypeExpense, "30", "food")
			assert.Equal(t, int64(2), food.TID)
			assert.Equal(t, "70", balance.String())

			balance, err := l.Delete(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, "-30", balance.String())

			snap, err := l.Snapshot(ctx)
			require.NoError(t, err)
			assert.Equal(t, []int64{2}, tids(snap.Transactions))
			assert.Equal(t, "-30", snap.Balance.String())
			assert.Equal(t, int64(3), snap.NextTransactionID)
		})
	}
}

func TestSnapshotOfEmptyStore(t *testing.T) {
	l := newLedger(t, memory.NewStore(), LedgerConfig{AtomicWrites: true})

	snap, err := l.Snapshot(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, snap.Transactions)
	assert.Empty(t, snap.Transactions)
	assert.True(t, snap.Balance.IsZero())
	assert.Equal(t, int64(1), snap.NextTransactionID)
}

func TestRecordDefaultDescription(t *testing.T) {
	l := newLedger(t, memory.NewStore(), LedgerConfig{})

	tx, _ := record(t, l, models.TypeIncome, "50", "")
	assert.Equal(t, models.DefaultDescription, tx.Description)
}

func TestRecordRejectsUnknownType(t *testing.T) {
	kv := memory.NewStore()
	l := newLedger(t, kv, LedgerConfig{})

	_, _, err := l.Record(context.Background(), RecordInput{Type: "transfer", Amount: dec("10")})
	assert.ErrorIs(t, err, ErrValidation)

	v, _ := kv.Get(context.Background(), repository.KeyTransactionID)
	assert.Nil(t, v, "rejected input must not consume an id")
}

func TestRecordDoesNotRangeCheckAmounts(t *testing.T) {
	l := newLedger(t, memory.NewStore(), LedgerConfig{})

	_, balance := record(t, l, models.TypeExpense, "-5", "refund")
	assert.Equal(t, "5", balance.String())
	_, balance = record(t, l, models.TypeIncome, "0", "nothing")
	assert.Equal(t, "5", balance.String())
}

func TestDateSource(t *testing.T) {
	ctx := context.Background()

	t.Run("server ignores supplied date", func(t *testing.T) {
		l := newLedger(t, memory.NewStore(), LedgerConfig{DateSource: config.DateSourceServer})
		tx, _, err := l.Record(ctx, RecordInput{Type: models.TypeIncome, Amount: dec("1"), Date: "2020-01-01T10:00"})
		require.NoError(t, err)
		assert.Equal(t, "2025-03-14T09:26:53.589Z", tx.Date)
	})

	t.Run("client date kept as supplied", func(t *testing.T) {
		l := newLedger(t, memory.NewStore(), LedgerConfig{DateSource: config.DateSourceClient})
		tx, _, err := l.Record(ctx, RecordInput{Type: models.TypeIncome, Amount: dec("1"), Date: "2020-01-01T10:00"})
		require.NoError(t, err)
		assert.Equal(t, "2020-01-01T10:00", tx.Date)
	})

	t.Run("client without date falls back to server time", func(t *testing.T) {
		l := newLedger(t, memory.NewStore(), LedgerConfig{DateSource: config.DateSourceClient})
		tx, _, err := l.Record(ctx, RecordInput{Type: models.TypeIncome, Amount: dec("1")})
		require.NoError(t, err)
		assert.Equal(t, "2025-03-14T09:26:53.589Z", tx.Date)
	})

	t.Run("client date must parse", func(t *testing.T) {
		l := newLedger(t, memory.NewStore(), LedgerConfig{DateSource: config.DateSourceClient})
		_, _, err := l.Record(ctx, RecordInput{Type: models.TypeIncome, Amount: dec("1"), Date: "last tuesday"})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestDeleteUnknownIDLeavesLedgerUnchanged(t *testing.T) {
	for name, cfg := range ledgerModes() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := newLedger(t, memory.NewStore(), cfg)
			record(t, l, models.TypeIncome, "100", "salary")
			before, err := l.Snapshot(ctx)
			require.NoError(t, err)

			_, err = l.Delete(ctx, 42)
			assert.ErrorIs(t, err, ErrNotFound)

			after, err := l.Snapshot(ctx)
			require.NoError(t, err)
			assert.Equal(t, tids(before.Transactions), tids(after.Transactions))
			assert.Equal(t, before.Balance.String(), after.Balance.String())
		})
	}
}

func TestDeleteIsInverseOfRecord(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, memory.NewStore(), LedgerConfig{AtomicWrites: true})
	record(t, l, models.TypeIncome, "12.34", "a")
	record(t, l, models.TypeExpense, "5.01", "b")
	before, err := l.Snapshot(ctx)
	require.NoError(t, err)

	for _, typ := range []string{models.TypeIncome, models.TypeExpense} {
		tx, _ := record(t, l, typ, "7.77", "temp")
		balance, err := l.Delete(ctx, tx.TID)
		require.NoError(t, err)
		assert.Equal(t, before.Balance.String(), balance.String())
	}

	after, err := l.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, tids(before.Transactions), tids(after.Transactions))
}

func TestIDsAreNeverReused(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, memory.NewStore(), LedgerConfig{})

	a, _ := record(t, l, models.TypeIncome, "1", "")
	b, _ := record(t, l, models.TypeIncome, "1", "")
	_, err := l.Delete(ctx, b.TID)
	require.NoError(t, err)
	_, err = l.Delete(ctx, a.TID)
	require.NoError(t, err)

	c, _ := record(t, l, models.TypeIncome, "1", "")
	assert.Equal(t, int64(3), c.TID)
}

func TestBalanceInvariantOverRandomOperations(t *testing.T) {
	for name, cfg := range ledgerModes() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			l := newLedger(t, memory.NewStore(), cfg)
			rng := rand.New(rand.NewSource(7))

			var lastTID int64
			for i := 0; i < 200; i++ {
				snap, err := l.Snapshot(ctx)
				require.NoError(t, err)

				if len(snap.Transactions) > 0 && rng.Intn(3) == 0 {
					victim := snap.Transactions[rng.Intn(len(snap.Transactions))]
					_, err := l.Delete(ctx, victim.TID)
					require.NoError(t, err)
				} else {
					typ := models.TypeIncome
					if rng.Intn(2) == 0 {
						typ = models.TypeExpense
					}
					amount := decimal.New(rng.Int63n(100_000)+1, -2)
					tx, _, err := l.Record(ctx, RecordInput{Type: typ, Amount: amount})
					require.NoError(t, err)
					assert.Greater(t, tx.TID, lastTID)
					lastTID = tx.TID
				}

				snap, err = l.Snapshot(ctx)
				require.NoError(t, err)
				assert.True(t, snap.Balance.Equal(snap.DerivedBalance()), "step %d: stored %s derived %s", i, snap.Balance, snap.DerivedBalance())
				assert.Greater(t, snap.NextTransactionID, lastTID)
			}
		})
	}
}

func TestAtomicModeSerializesConcurrentRecords(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, memory.NewStore(), LedgerConfig{AtomicWrites: true})

	const workers = 40
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			typ := models.TypeIncome
			if i%2 == 1 {
				typ = models.TypeExpense
			}
			_, _, err := l.Record(ctx, RecordInput{Type: typ, Amount: decimal.NewFromInt(int64(i + 1))})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	snap, err := l.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Transactions, workers)

	seen := map[int64]bool{}
	for _, tx := range snap.Transactions {
		assert.False(t, seen[tx.TID], "duplicate tid %d", tx.TID)
		seen[tx.TID] = true
	}
	assert.True(t, snap.Balance.Equal(snap.DerivedBalance()))
	assert.Equal(t, "-20", snap.Balance.String())
}

// failingStore wraps a memory store and fails every write to one key.
type failingStore struct {
	*memory.Store
	failKey string
}

var errDiskFull = fmt.Errorf("%w: disk full", storage.ErrUnavailable)

func (f *failingStore) Set(ctx context.Context, key string, value json.RawMessage) error {
	if key == f.failKey {
		return errDiskFull
	}
	return f.Store.Set(ctx, key, value)
}

func (f *failingStore) Update(ctx context.Context, fn func(tx storage.KeyValueStore) error) error {
	return f.Store.Update(ctx, func(tx storage.KeyValueStore) error {
		return fn(&failingTx{KeyValueStore: tx, failKey: f.failKey})
	})
}

type failingTx struct {
	storage.KeyValueStore
	failKey string
}

func (f *failingTx) Set(ctx context.Context, key string, value json.RawMessage) error {
	if key == f.failKey {
		return errDiskFull
	}
	return f.KeyValueStore.Set(ctx, key, value)
}

func TestSequentialModeKeepsPartialWrites(t *testing.T) {
	ctx := context.Background()
	kv := &failingStore{Store: memory.NewStore(), failKey: repository.KeyBalance}
	l := newLedger(t, kv, LedgerConfig{AtomicWrites: false})

	_, _, err := l.Record(ctx, RecordInput{Type: models.TypeIncome, Amount: dec("100")})
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	// the transaction and counter landed, the balance did not
	snap, err := l.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, tids(snap.Transactions))
	assert.True(t, snap.Balance.IsZero())

	rec, err := l.Reconcile(ctx)
	require.NoError(t, err)
	assert.False(t, rec.Consistent)
	assert.Equal(t, "-100", rec.Drift.String())
}

// getSetStore has no atomic counter, so ids go through get-then-set.
type getSetStore struct {
	kv      *memory.Store
	failKey string
	writes  []string
}

func (g *getSetStore) Get(ctx context.Context, key string) (json.RawMessage, error) {
	return g.kv.Get(ctx, key)
}

func (g *getSetStore) Set(ctx context.Context, key string, value json.RawMessage) error {
	if key == g.failKey {
		return errDiskFull
	}
	g.writes = append(g.writes, key)
	return g.kv.Set(ctx, key, value)
}

func TestSequentialModeWriteOrder(t *testing.T) {
	ctx := context.Background()

	kv := &getSetStore{kv: memory.NewStore()}
	l := newLedger(t, kv, LedgerConfig{AtomicWrites: false})
	_, _, err := l.Record(ctx, RecordInput{Type: models.TypeIncome, Amount: dec("100")})
	require.NoError(t, err)
	assert.Equal(t, []string{repository.KeyTransactions, repository.KeyTransactionID, repository.KeyBalance}, kv.writes)

	// a failed transactions write leaves the counter untouched
	kv = &getSetStore{kv: memory.NewStore(), failKey: repository.KeyTransactions}
	l = newLedger(t, kv, LedgerConfig{AtomicWrites: false})
	_, _, err = l.Record(ctx, RecordInput{Type: models.TypeIncome, Amount: dec("100")})
	assert.ErrorIs(t, err, storage.ErrUnavailable)
	assert.Empty(t, kv.writes)

	snap, err := l.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.NextTransactionID)
}

func TestAtomicModeRollsBackFailedWrites(t *testing.T) {
	ctx := context.Background()
	kv := &failingStore{Store: memory.NewStore(), failKey: repository.KeyBalance}
	l := newLedger(t, kv, LedgerConfig{AtomicWrites: true})

	_, _, err := l.Record(ctx, RecordInput{Type: models.TypeIncome, Amount: dec("100")})
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	snap, err := l.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Transactions)
	assert.Equal(t, int64(1), snap.NextTransactionID, "counter must not advance")
}

type unavailableStore struct{}

func (unavailableStore) Get(context.Context, string) (json.RawMessage, error) {
	return nil, fmt.Errorf("%w: connection refused", storage.ErrUnavailable)
}

func (unavailableStore) Set(context.Context, string, json.RawMessage) error {
	return fmt.Errorf("%w: connection refused", storage.ErrUnavailable)
}

func TestStorageUnavailable(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, unavailableStore{}, LedgerConfig{AtomicWrites: true})

	_, err := l.Snapshot(ctx)
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	_, _, err = l.Record(ctx, RecordInput{Type: models.TypeIncome, Amount: dec("1")})
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	_, err = l.Delete(ctx, 1)
	assert.ErrorIs(t, err, storage.ErrUnavailable)
	assert.NotErrorIs(t, err, ErrNotFound)
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	keys   []string
	events []any
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, topic, key string, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	r.keys = append(r.keys, key)
	r.events = append(r.events, event)
	return r.err
}

type recordingNotifier struct {
	sent []models.Transaction
	err  error
}

func (r *recordingNotifier) SendTransactionNotification(tx models.Transaction, _ decimal.Decimal) error {
	r.sent = append(r.sent, tx)
	return r.err
}

func TestEventsAndNotifications(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	notifier := &recordingNotifier{}
	l := newLedger(t, memory.NewStore(), LedgerConfig{AtomicWrites: true}, WithPublisher(pub), WithNotifier(notifier))

	tx, _ := record(t, l, models.TypeIncome, "100", "salary")
	_, err := l.Delete(ctx, tx.TID)
	require.NoError(t, err)
	_, err = l.Delete(ctx, tx.TID)
	require.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []string{events.TopicTransactionRecorded, events.TopicTransactionDeleted}, pub.topics)
	assert.Equal(t, []string{"1", "1"}, pub.keys)

	recorded := pub.events[0].(events.TransactionRecorded)
	assert.Equal(t, "100", recorded.Balance.String())
	deleted := pub.events[1].(events.TransactionDeleted)
	assert.True(t, deleted.Balance.IsZero())
	assert.Equal(t, models.TypeIncome, deleted.Type)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, "salary", notifier.sent[0].Description)
}

func TestPublisherAndNotifierFailuresDoNotFailRecord(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	pub := &recordingPublisher{err: errors.New("broker down")}
	notifier := &recordingNotifier{err: errors.New("smtp down")}
	l := NewLedgerService(memory.NewStore(), log, LedgerConfig{}, WithPublisher(pub), WithNotifier(notifier))

	_, balance, err := l.Record(context.Background(), RecordInput{Type: models.TypeIncome, Amount: dec("5")})
	require.NoError(t, err)
	assert.Equal(t, "5", balance.String())

	warnings := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings++
		}
	}
	assert.Equal(t, 2, warnings)
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t, memory.NewStore(), LedgerConfig{AtomicWrites: true})
	record(t, l, models.TypeIncome, "100", "salary")
	record(t, l, models.TypeIncome, "20.5", "gift")
	record(t, l, models.TypeExpense, "30", "food")

	stats, err := l.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "120.5", stats.Income.String())
	assert.Equal(t, "30", stats.Expense.String())
	assert.Equal(t, "90.5", stats.NetBalance.String())
	assert.Equal(t, "90.5", stats.Balance.String())
	assert.Equal(t, 3, stats.Count)
}

func TestReconcileDetectsTampering(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewStore()
	l := newLedger(t, kv, LedgerConfig{AtomicWrites: true})
	record(t, l, models.TypeIncome, "100", "salary")

	rec, err := l.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, rec.Consistent)
	assert.Equal(t, fixedNow, rec.CheckedAt)

	require.NoError(t, kv.Set(ctx, repository.KeyBalance, json.RawMessage(`250`)))
	rec, err = l.Reconcile(ctx)
	require.NoError(t, err)
	assert.False(t, rec.Consistent)
	assert.Equal(t, "150", rec.Drift.String())

	// reconciliation never rewrites the balance
	snap, err := l.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "250", snap.Balance.String())
}

func TestLedgerOnRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	for name, cfg := range ledgerModes() {
		t.Run(name, func(t *testing.T) {
			mr.FlushAll()
			l := newLedger(t, redisstore.NewStore(client, redisstore.Options{}), cfg)

			record(t, l, models.TypeIncome, "100", "salary")
			record(t, l, models.TypeExpense, "30", "food")
			balance, err := l.Delete(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, "-30", balance.String())

			raw, err := mr.Get(repository.KeyBalance)
			require.NoError(t, err)
			assert.Equal(t, "-30", raw)

			counter, err := mr.Get(repository.KeyTransactionID)
			require.NoError(t, err)
			assert.Equal(t, "2", counter)
		})
	}
}
