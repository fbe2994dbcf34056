package model

import "time"

// Expense is a cost line attached to a project.
type Expense struct {
	CreatedAt             time.Time
	UpdatedAt             time.Time
	ExpenseDate           time.Time
	PayeeID               *string
	AccountName           *string
	ExternalTransactionID *string
	ID                    string
	ProjectID             string
	Description           string
	Category              Category
	TransactionType       TransactionType
	Amount                float64
	IsPlanned             bool
}

// Revenue is an invoiced amount attached to a project.
type Revenue struct {
	CreatedAt             time.Time
	UpdatedAt             time.Time
	InvoiceDate           time.Time
	ClientID              *string
	AccountName           *string
	ExternalTransactionID *string
	ID                    string
	ProjectID             string
	Description           string
	Amount                float64
}

// Linked reports whether the expense already carries an accounting-system id.
func (e *Expense) Linked() bool {
	return e.ExternalTransactionID != nil && *e.ExternalTransactionID != ""
}

// Linked reports whether the revenue already carries an accounting-system id.
func (r *Revenue) Linked() bool {
	return r.ExternalTransactionID != nil && *r.ExternalTransactionID != ""
}
