package models

import "github.com/shopspring/decimal"

// LedgerSnapshot is the current read view of the ledger
type LedgerSnapshot struct {
	Transactions      []Transaction   `json:"transactions"`
	Balance           decimal.Decimal `json:"currentBalance"`
	NextTransactionID int64           `json:"nextTransactionId"`
}

// DerivedBalance sums the deltas of the present transactions.
func (s LedgerSnapshot) DerivedBalance() decimal.Decimal {
	total := decimal.Zero
	for _, tx := range s.Transactions {
		total = total.Add(tx.Delta())
	}
	return total
}
