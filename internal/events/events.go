package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/budget-service/internal/models"
)

// Topics
const (
	TopicTransactionRecorded = "ledger.transaction_recorded"
	TopicTransactionDeleted  = "ledger.transaction_deleted"
)

// Publisher delivers ledger events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, event any) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, any) error { return nil }

// TransactionRecorded is emitted after a transaction has been persisted.
type TransactionRecorded struct {
	models.Transaction
	Balance    decimal.Decimal `json:"balance"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// TransactionDeleted is emitted after a transaction has been removed.
type TransactionDeleted struct {
	models.Transaction
	Balance    decimal.Decimal `json:"balance"`
	OccurredAt time.Time       `json:"occurred_at"`
}
