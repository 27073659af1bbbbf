package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tx(tid int64, typ, amount, date string) Transaction {
	return Transaction{TID: tid, Type: typ, Amount: decimal.RequireFromString(amount), Date: date}
}

func TestDelta(t *testing.T) {
	assert.Equal(t, "100", tx(1, TypeIncome, "100", "").Delta().String())
	assert.Equal(t, "-30.5", tx(2, TypeExpense, "30.5", "").Delta().String())
}

func TestTransactionJSONUsesNumbers(t *testing.T) {
	data, err := json.Marshal(tx(1, TypeIncome, "12.5", "2025-01-02T10:00:00.000Z"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"tid":1,"type":"income","amount":12.5,"description":"","date":"2025-01-02T10:00:00.000Z"}`, string(data))
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"2025-01-02T10:00:00.000Z", "2025-01-02T10:00:00+02:00", "2025-01-02T10:00", "2025-01-02"} {
		_, err := ParseDate(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseDate("yesterday")
	assert.Error(t, err)
}

func TestSortTransactions(t *testing.T) {
	txs := []Transaction{
		tx(1, TypeIncome, "100", "2025-03-01T00:00:00.000Z"),
		tx(2, TypeExpense, "30", "2025-01-01T00:00:00.000Z"),
		tx(3, TypeExpense, "55", "2025-02-01T00:00:00.000Z"),
	}

	tids := func(in []Transaction) []int64 {
		var out []int64
		for _, t := range in {
			out = append(out, t.TID)
		}
		return out
	}

	byAmount, err := SortTransactions(txs, SortByAmount, OrderAsc)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 1}, tids(byAmount))

	byDateDesc, err := SortTransactions(txs, SortByDate, OrderDesc)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 2}, tids(byDateDesc))

	byDefault, err := SortTransactions(txs, "", "")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, tids(byDefault))

	// the input is never reordered
	assert.Equal(t, []int64{1, 2, 3}, tids(txs))

	_, err = SortTransactions(txs, "description", OrderAsc)
	assert.Error(t, err)
	_, err = SortTransactions(txs, SortByAmount, "up")
	assert.Error(t, err)
}

func TestDerivedBalance(t *testing.T) {
	s := LedgerSnapshot{Transactions: []Transaction{
		tx(1, TypeIncome, "100", ""),
		tx(2, TypeExpense, "30", ""),
		tx(3, TypeExpense, "0.25", ""),
	}}
	assert.Equal(t, "69.75", s.DerivedBalance().String())
	assert.True(t, LedgerSnapshot{}.DerivedBalance().IsZero())
}
