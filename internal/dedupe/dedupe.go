// Package dedupe flags likely duplicate rows inside an import batch.
//
// The natural key is date|amount|counterparty. Two genuinely distinct transactions that share
// all three (two $50 fuel purchases at the same station on the same day) collapse into one;
// the import report surfaces every collapsed row so an operator can restore it.
package dedupe

import (
	"fmt"
	"strings"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/normalize"
)

// Duplicate is a row dropped because an earlier row had the same key.
type Duplicate struct {
	Transaction model.Transaction
	Original    model.Transaction
	Key         string
	Reason      string
}

// Result splits a batch into kept and duplicate rows. Unique preserves input order.
type Result struct {
	Unique     []model.Transaction
	Duplicates []Duplicate
}

// Key returns the lowercased date|amount|name natural key of a transaction.
func Key(t model.Transaction) string {
	return strings.ToLower(fmt.Sprintf("%s|%s|%s",
		normalize.DateKey(t.Date),
		normalize.AmountKey(t.Amount),
		strings.TrimSpace(t.CounterpartyName)))
}

// Detect keeps the first occurrence of each key and reports the rest. It is idempotent:
// running it on its own Unique output finds nothing further.
func Detect(transactions []model.Transaction) Result {
	seen := make(map[string]int, len(transactions))
	res := Result{Unique: make([]model.Transaction, 0, len(transactions))}

	for _, t := range transactions {
		key := Key(t)
		if idx, ok := seen[key]; ok {
			original := res.Unique[idx]
			res.Duplicates = append(res.Duplicates, Duplicate{
				Transaction: t,
				Original:    original,
				Key:         key,
				Reason:      reason(original),
			})
			continue
		}
		seen[key] = len(res.Unique)
		res.Unique = append(res.Unique, t)
	}

	return res
}

func reason(original model.Transaction) string {
	return fmt.Sprintf("duplicate of row %d: %s on %s for %s",
		original.Row,
		original.CounterpartyName,
		normalize.DateKey(original.Date),
		normalize.AmountKey(original.Amount))
}
