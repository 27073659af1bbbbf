package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/Dan9191/budget-service/internal/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ledgerLockID is the advisory lock taken by Update.
const ledgerLockID = 7_405_112

// Store keeps every key as a JSONB row in kv_store.
type Store struct {
	db *sql.DB
}

// NewStore initializes a new store over an open database
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func get(ctx context.Context, q querier, key string) (json.RawMessage, error) {
	const query = `SELECT value FROM kv_store WHERE key = $1`

	var value []byte
	err := q.QueryRowContext(ctx, query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get %q: %w", storage.ErrUnavailable, key, err)
	}
	return value, nil
}

func set(ctx context.Context, q querier, key string, value json.RawMessage) error {
	const query = `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES ($1, $2::jsonb, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = CURRENT_TIMESTAMP`

	if _, err := q.ExecContext(ctx, query, key, string(value)); err != nil {
		return fmt.Errorf("%w: failed to set %q: %w", storage.ErrUnavailable, key, err)
	}
	return nil
}

func (p *Store) Get(ctx context.Context, key string) (json.RawMessage, error) {
	return get(ctx, p.db, key)
}

func (p *Store) Set(ctx context.Context, key string, value json.RawMessage) error {
	return set(ctx, p.db, key, value)
}

// Incr increments the integer at key in a single upsert.
func (p *Store) Incr(ctx context.Context, key string) (int64, error) {
	const query = `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES ($1, '1'::jsonb, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE
			SET value = to_jsonb((kv_store.value #>> '{}')::bigint + 1), updated_at = CURRENT_TIMESTAMP
		RETURNING (value #>> '{}')::bigint`

	var n int64
	if err := p.db.QueryRowContext(ctx, query, key).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: failed to increment %q: %w", storage.ErrUnavailable, key, err)
	}
	return n, nil
}

// Update runs fn inside one SQL transaction holding the ledger advisory lock.
func (p *Store) Update(ctx context.Context, fn func(tx storage.KeyValueStore) error) (err error) {
	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", storage.ErrUnavailable, err)
	}
	defer func() {
		if err != nil {
			_ = dbTx.Rollback()
		}
	}()

	if _, err = dbTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, ledgerLockID); err != nil {
		return fmt.Errorf("%w: failed to lock ledger: %w", storage.ErrUnavailable, err)
	}

	if err = fn(txStore{tx: dbTx}); err != nil {
		return err
	}

	if err = dbTx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit: %w", storage.ErrUnavailable, err)
	}
	return nil
}

// txStore exposes an open transaction as a KeyValueStore.
type txStore struct {
	tx *sql.Tx
}

func (t txStore) Get(ctx context.Context, key string) (json.RawMessage, error) {
	return get(ctx, t.tx, key)
}

func (t txStore) Set(ctx context.Context, key string, value json.RawMessage) error {
	return set(ctx, t.tx, key, value)
}

var _ storage.Store = (*Store)(nil)
