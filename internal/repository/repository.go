package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/budget-service/internal/models"
	"github.com/Dan9191/budget-service/internal/storage"
)

// Persisted keys
const (
	KeyTransactions  = "transactions"
	KeyBalance       = "balance"
	KeyTransactionID = "transactionId"
)

// Repository provides typed access to the ledger keys
type Repository struct {
	kv storage.KeyValueStore
}

// NewRepository initializes a new repository
func NewRepository(kv storage.KeyValueStore) *Repository {
	return &Repository{kv: kv}
}

// Store returns the underlying key-value store
func (r *Repository) Store() storage.KeyValueStore {
	return r.kv
}

func (r *Repository) load(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := r.kv.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return true, nil
}

func (r *Repository) save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}
	if err := r.kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("failed to save %q: %w", key, err)
	}
	return nil
}

// Transactions returns the stored transactions, empty if never initialized
func (r *Repository) Transactions(ctx context.Context) ([]models.Transaction, error) {
	var txs []models.Transaction
	if _, err := r.load(ctx, KeyTransactions, &txs); err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	return txs, nil
}

// SaveTransactions replaces the stored transactions
func (r *Repository) SaveTransactions(ctx context.Context, txs []models.Transaction) error {
	if txs == nil {
		txs = []models.Transaction{}
	}
	return r.save(ctx, KeyTransactions, txs)
}

// Balance returns the stored running balance, zero if never initialized
func (r *Repository) Balance(ctx context.Context) (decimal.Decimal, error) {
	balance := decimal.Zero
	if _, err := r.load(ctx, KeyBalance, &balance); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// SaveBalance stores the running balance
func (r *Repository) SaveBalance(ctx context.Context, balance decimal.Decimal) error {
	return r.save(ctx, KeyBalance, balance)
}

// LastTransactionID returns the last issued transaction id, zero if none
func (r *Repository) LastTransactionID(ctx context.Context) (int64, error) {
	var id int64
	if _, err := r.load(ctx, KeyTransactionID, &id); err != nil {
		return 0, err
	}
	return id, nil
}

// SaveLastTransactionID stores the last issued transaction id
func (r *Repository) SaveLastTransactionID(ctx context.Context, id int64) error {
	return r.save(ctx, KeyTransactionID, id)
}

// NextTransactionID issues the next id and persists the counter at once.
func (r *Repository) NextTransactionID(ctx context.Context) (int64, error) {
	id, commit, err := r.ReserveTransactionID(ctx)
	if err != nil {
		return 0, err
	}
	if err := commit(ctx); err != nil {
		return 0, err
	}
	return id, nil
}

// ReserveTransactionID returns the next id and a commit func that persists
// the counter. Stores implementing storage.Counter increment atomically and
// commit is a no-op. Others read the last id now and write it back only when
// commit runs, so callers can persist the transactions key first.
func (r *Repository) ReserveTransactionID(ctx context.Context) (int64, func(context.Context) error, error) {
	if c, ok := r.kv.(storage.Counter); ok {
		id, err := c.Incr(ctx, KeyTransactionID)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to increment %q: %w", KeyTransactionID, err)
		}
		return id, func(context.Context) error { return nil }, nil
	}
	last, err := r.LastTransactionID(ctx)
	if err != nil {
		return 0, nil, err
	}
	id := last + 1
	return id, func(ctx context.Context) error { return r.SaveLastTransactionID(ctx, id) }, nil
}
