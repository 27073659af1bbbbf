package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types
const (
	TypeIncome  = "income"
	TypeExpense = "expense"
)

// DefaultDescription is stored when a transaction is recorded without one.
const DefaultDescription = "No description provided"

// Transaction represents a single income or expense entry in the ledger
type Transaction struct {
	TID         int64           `json:"tid"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
}

// Delta returns the signed effect of the transaction on the running balance.
func (t Transaction) Delta() decimal.Decimal {
	if t.Type == TypeExpense {
		return t.Amount.Neg()
	}
	return t.Amount
}

// ValidType reports whether typ is a known transaction type.
func ValidType(typ string) bool {
	return typ == TypeIncome || typ == TypeExpense
}

// Date layouts accepted for client-supplied dates, most specific first.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDate parses an ISO-8601 date as accepted from clients.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// Sort keys and orders for transaction listings
const (
	SortByTID    = "tid"
	SortByAmount = "amount"
	SortByDate   = "date"

	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// SortTransactions returns a sorted copy of txs. Unparseable dates sort first.
func SortTransactions(txs []Transaction, key, order string) ([]Transaction, error) {
	var less func(a, b Transaction) bool
	switch key {
	case "", SortByTID:
		less = func(a, b Transaction) bool { return a.TID < b.TID }
	case SortByAmount:
		less = func(a, b Transaction) bool { return a.Amount.LessThan(b.Amount) }
	case SortByDate:
		less = func(a, b Transaction) bool {
			ta, _ := ParseDate(a.Date)
			tb, _ := ParseDate(b.Date)
			return ta.Before(tb)
		}
	default:
		return nil, fmt.Errorf("unknown sort key %q", key)
	}
	switch order {
	case "", OrderAsc:
	case OrderDesc:
		asc := less
		less = func(a, b Transaction) bool { return asc(b, a) }
	default:
		return nil, fmt.Errorf("unknown sort order %q", order)
	}

	sorted := make([]Transaction, len(txs))
	copy(sorted, txs)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	return sorted, nil
}
