package models

import "github.com/shopspring/decimal"

// Amounts and balances travel as plain JSON numbers. The flag is global to
// shopspring/decimal, so it applies to every decimal the process encodes:
// API responses, persisted ledger keys and event payloads alike. Packages
// that encode decimals import models, which keeps the wire format the same
// no matter which binary or test links them.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}
