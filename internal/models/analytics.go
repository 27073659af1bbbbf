package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// IncomeExpenseStats represents income and expense totals over the present transactions
type IncomeExpenseStats struct {
	Income     decimal.Decimal `json:"income"`
	Expense    decimal.Decimal `json:"expense"`
	NetBalance decimal.Decimal `json:"net_balance"` // Income - Expense
	Balance    decimal.Decimal `json:"balance"`     // stored running balance
	Count      int             `json:"count"`
}

// Reconciliation compares the stored balance with the one derived from transactions
type Reconciliation struct {
	StoredBalance  decimal.Decimal `json:"stored_balance"`
	DerivedBalance decimal.Decimal `json:"derived_balance"`
	Drift          decimal.Decimal `json:"drift"`
	Consistent     bool            `json:"consistent"`
	CheckedAt      time.Time       `json:"checked_at"`
}
