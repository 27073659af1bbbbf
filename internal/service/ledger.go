package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/budget-service/internal/config"
	"github.com/Dan9191/budget-service/internal/events"
	"github.com/Dan9191/budget-service/internal/models"
	"github.com/Dan9191/budget-service/internal/repository"
	"github.com/Dan9191/budget-service/internal/storage"
)

// serverDateLayout matches JavaScript's Date.toISOString.
const serverDateLayout = "2006-01-02T15:04:05.000Z"

// LedgerConfig selects the ledger behaviour variants.
type LedgerConfig struct {
	DateSource   string // config.DateSourceServer or config.DateSourceClient
	AtomicWrites bool
}

// Notifier is told about every recorded transaction.
type Notifier interface {
	SendTransactionNotification(tx models.Transaction, balance decimal.Decimal) error
}

// Observer is told about ledger mutations and reconciliations.
type Observer interface {
	TransactionRecorded(tx models.Transaction, balance decimal.Decimal)
	TransactionDeleted(tx models.Transaction, balance decimal.Decimal)
	Reconciled(rec models.Reconciliation)
}

// LedgerService owns the transactions, balance and transaction id keys.
// Every mutation of those keys goes through Record or Delete.
//
// With AtomicWrites disabled each operation issues independent writes and a
// failure midway leaves the earlier writes in place. With AtomicWrites
// enabled operations are serialized in-process and, when the store is
// storage.Transactional, run inside a single Update.
type LedgerService struct {
	repo      *repository.Repository
	log       *logrus.Logger
	cfg       LedgerConfig
	publisher events.Publisher
	notifier  Notifier
	observer  Observer
	now       func() time.Time

	mu sync.Mutex
}

// Option customizes a LedgerService.
type Option func(*LedgerService)

// WithPublisher sets the event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(s *LedgerService) { s.publisher = p }
}

// WithNotifier sets the transaction notifier.
func WithNotifier(n Notifier) Option {
	return func(s *LedgerService) { s.notifier = n }
}

// WithObserver sets the mutation observer, typically the metrics collector.
func WithObserver(o Observer) Option {
	return func(s *LedgerService) { s.observer = o }
}

// WithClock overrides the time source used for server-assigned dates.
func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

// NewLedgerService initializes a new ledger service
func NewLedgerService(kv storage.KeyValueStore, log *logrus.Logger, cfg LedgerConfig, opts ...Option) *LedgerService {
	if cfg.DateSource == "" {
		cfg.DateSource = config.DateSourceServer
	}
	s := &LedgerService{
		repo:      repository.NewRepository(kv),
		log:       log,
		cfg:       cfg,
		publisher: events.NopPublisher{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordInput carries the caller-supplied fields of a new transaction.
type RecordInput struct {
	Type        string
	Amount      decimal.Decimal
	Description string
	Date        string
}

// withLedger runs fn against the repository under the configured write mode.
func (s *LedgerService) withLedger(ctx context.Context, fn func(repo *repository.Repository) error) error {
	if !s.cfg.AtomicWrites {
		return fn(s.repo)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.repo.Store().(storage.Transactional); ok {
		return t.Update(ctx, func(tx storage.KeyValueStore) error {
			return fn(repository.NewRepository(tx))
		})
	}
	return fn(s.repo)
}

// Snapshot returns the current transactions and balance
func (s *LedgerService) Snapshot(ctx context.Context) (models.LedgerSnapshot, error) {
	var snap models.LedgerSnapshot
	err := s.withLedger(ctx, func(repo *repository.Repository) error {
		txs, err := repo.Transactions(ctx)
		if err != nil {
			return err
		}
		balance, err := repo.Balance(ctx)
		if err != nil {
			return err
		}
		last, err := repo.LastTransactionID(ctx)
		if err != nil {
			return err
		}
		snap = models.LedgerSnapshot{Transactions: txs, Balance: balance, NextTransactionID: last + 1}
		return nil
	})
	if err != nil {
		return models.LedgerSnapshot{}, fmt.Errorf("failed to read ledger: %w", err)
	}
	return snap, nil
}

func (s *LedgerService) transactionDate(supplied string) (string, error) {
	if s.cfg.DateSource == config.DateSourceClient && supplied != "" {
		if _, err := models.ParseDate(supplied); err != nil {
			return "", fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return supplied, nil
	}
	return s.now().UTC().Format(serverDateLayout), nil
}

// Record appends a transaction and applies its amount to the balance
func (s *LedgerService) Record(ctx context.Context, in RecordInput) (models.Transaction, decimal.Decimal, error) {
	if !models.ValidType(in.Type) {
		return models.Transaction{}, decimal.Zero, fmt.Errorf("%w: unknown transaction type %q", ErrValidation, in.Type)
	}
	date, err := s.transactionDate(in.Date)
	if err != nil {
		return models.Transaction{}, decimal.Zero, err
	}
	description := in.Description
	if description == "" {
		description = models.DefaultDescription
	}

	var (
		tx      models.Transaction
		balance decimal.Decimal
	)
	err = s.withLedger(ctx, func(repo *repository.Repository) error {
		current, err := repo.Balance(ctx)
		if err != nil {
			return err
		}

		id, commitID, err := repo.ReserveTransactionID(ctx)
		if err != nil {
			return err
		}
		tx = models.Transaction{
			TID:         id,
			Type:        in.Type,
			Amount:      in.Amount,
			Description: description,
			Date:        date,
		}
		balance = current.Add(tx.Delta())

		txs, err := repo.Transactions(ctx)
		if err != nil {
			return err
		}
		if err := repo.SaveTransactions(ctx, append(txs, tx)); err != nil {
			return err
		}
		if err := commitID(ctx); err != nil {
			return err
		}
		return repo.SaveBalance(ctx, balance)
	})
	if err != nil {
		s.log.WithError(err).WithField("type", in.Type).Error("Failed to record transaction")
		return models.Transaction{}, decimal.Zero, fmt.Errorf("failed to record transaction: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"tid":     tx.TID,
		"type":    tx.Type,
		"amount":  tx.Amount.String(),
		"balance": balance.String(),
	}).Info("Transaction recorded")
	if s.observer != nil {
		s.observer.TransactionRecorded(tx, balance)
	}

	s.publish(ctx, events.TopicTransactionRecorded, tx.TID, events.TransactionRecorded{
		Transaction: tx,
		Balance:     balance,
		OccurredAt:  s.now().UTC(),
	})
	if s.notifier != nil {
		if err := s.notifier.SendTransactionNotification(tx, balance); err != nil {
			s.log.WithError(err).WithField("tid", tx.TID).Warn("Failed to send transaction notification")
		}
	}
	return tx, balance, nil
}

// Delete removes a transaction and reverts its effect on the balance.
// The transaction id counter is left untouched.
func (s *LedgerService) Delete(ctx context.Context, tid int64) (decimal.Decimal, error) {
	var (
		removed models.Transaction
		balance decimal.Decimal
	)
	err := s.withLedger(ctx, func(repo *repository.Repository) error {
		txs, err := repo.Transactions(ctx)
		if err != nil {
			return err
		}
		idx := slices.IndexFunc(txs, func(t models.Transaction) bool { return t.TID == tid })
		if idx < 0 {
			return ErrNotFound
		}
		removed = txs[idx]

		current, err := repo.Balance(ctx)
		if err != nil {
			return err
		}
		balance = current.Sub(removed.Delta())

		if err := repo.SaveTransactions(ctx, slices.Delete(txs, idx, idx+1)); err != nil {
			return err
		}
		return repo.SaveBalance(ctx, balance)
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.WithError(err).WithField("tid", tid).Error("Failed to delete transaction")
		}
		return decimal.Zero, fmt.Errorf("failed to delete transaction %d: %w", tid, err)
	}

	s.log.WithFields(logrus.Fields{"tid": tid, "balance": balance.String()}).Info("Transaction deleted")
	if s.observer != nil {
		s.observer.TransactionDeleted(removed, balance)
	}

	s.publish(ctx, events.TopicTransactionDeleted, tid, events.TransactionDeleted{
		Transaction: removed,
		Balance:     balance,
		OccurredAt:  s.now().UTC(),
	})
	return balance, nil
}

// Summary totals income and expense over the present transactions
func (s *LedgerService) Summary(ctx context.Context) (models.IncomeExpenseStats, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return models.IncomeExpenseStats{}, err
	}
	stats := models.IncomeExpenseStats{
		Income:  decimal.Zero,
		Expense: decimal.Zero,
		Balance: snap.Balance,
		Count:   len(snap.Transactions),
	}
	for _, tx := range snap.Transactions {
		if tx.Type == models.TypeIncome {
			stats.Income = stats.Income.Add(tx.Amount)
		} else {
			stats.Expense = stats.Expense.Add(tx.Amount)
		}
	}
	stats.NetBalance = stats.Income.Sub(stats.Expense)
	return stats, nil
}

// Reconcile compares the stored balance against the transactions. It only
// reports drift and never rewrites the balance.
func (s *LedgerService) Reconcile(ctx context.Context) (models.Reconciliation, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return models.Reconciliation{}, err
	}
	derived := snap.DerivedBalance()
	rec := models.Reconciliation{
		StoredBalance:  snap.Balance,
		DerivedBalance: derived,
		Drift:          snap.Balance.Sub(derived),
		CheckedAt:      s.now().UTC(),
	}
	rec.Consistent = rec.Drift.IsZero()

	entry := s.log.WithFields(logrus.Fields{
		"stored_balance":  rec.StoredBalance.String(),
		"derived_balance": rec.DerivedBalance.String(),
	})
	if rec.Consistent {
		entry.Debug("Ledger balance consistent")
	} else {
		entry.WithField("drift", rec.Drift.String()).Warn("Ledger balance drift detected")
	}
	if s.observer != nil {
		s.observer.Reconciled(rec)
	}
	return rec, nil
}

func (s *LedgerService) publish(ctx context.Context, topic string, tid int64, event any) {
	if err := s.publisher.Publish(ctx, topic, strconv.FormatInt(tid, 10), event); err != nil {
		s.log.WithError(err).WithField("topic", topic).Warn("Failed to publish ledger event")
	}
}
