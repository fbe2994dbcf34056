// Package model defines the core domain models used throughout the application.
package model

import (
	"strings"
	"time"
)

// TransactionType is the accounting-system transaction kind of an imported row.
type TransactionType string

// Transaction types recognized by the importer.
const (
	TypeBill       TransactionType = "bill"
	TypeCheck      TransactionType = "check"
	TypeCreditCard TransactionType = "credit_card"
	TypeCash       TransactionType = "cash"
	TypeExpense    TransactionType = "expense"
	TypeInvoice    TransactionType = "invoice"
)

// ParseTransactionType maps the free-text type column of an export to a TransactionType.
// Anything unrecognized is an expense.
func ParseTransactionType(raw string) TransactionType {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(s, "invoice"):
		return TypeInvoice
	case strings.Contains(s, "bill"):
		return TypeBill
	case strings.Contains(s, "check") || strings.Contains(s, "cheque"):
		return TypeCheck
	case strings.Contains(s, "credit card") || strings.Contains(s, "credit-card") ||
		strings.Contains(s, "credit_card") || strings.Contains(s, "creditcard"):
		return TypeCreditCard
	case strings.Contains(s, "cash"):
		return TypeCash
	default:
		return TypeExpense
	}
}

// IsRevenue reports whether rows of this type belong to the revenue stream.
func (t TransactionType) IsRevenue() bool {
	return t == TypeInvoice
}

// Transaction is a single row parsed from an accounting export or fetched from the provider.
// It is never persisted as-is; the importer turns it into an Expense or a Revenue.
type Transaction struct {
	Date             time.Time
	RawDate          string
	RawAmount        string
	Type             string
	CounterpartyName string
	ProjectReference string
	AccountPath      string
	Description      string
	Amount           float64
	Row              int
	// DateFlagged is set when the raw date could not be parsed and Date fell back to now.
	DateFlagged bool
}

// TransactionType returns the typed kind of this transaction.
func (t *Transaction) TransactionType() TransactionType {
	return ParseTransactionType(t.Type)
}

// ClassificationText is the free text the category classifier scans for keywords.
func (t *Transaction) ClassificationText() string {
	parts := make([]string, 0, 2)
	for _, s := range []string{t.Description, t.CounterpartyName} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
