package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/tally/internal/model"
)

// Validation errors.
var (
	ErrNilContext     = errors.New("context cannot be nil")
	ErrEmptyString    = errors.New("string parameter cannot be empty")
	ErrNilParameter   = errors.New("parameter cannot be nil")
	ErrInvalidExpense = errors.New("invalid expense")
	ErrInvalidRevenue = errors.New("invalid revenue")
	ErrInvalidPayee   = errors.New("invalid payee")
	ErrInvalidMapping = errors.New("invalid account mapping")
	ErrInvalidConn    = errors.New("invalid connection")
)

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateExpense(e *model.Expense) error {
	if e == nil {
		return fmt.Errorf("%w: expense", ErrNilParameter)
	}
	if e.ProjectID == "" {
		return fmt.Errorf("%w: missing project", ErrInvalidExpense)
	}
	if e.ExpenseDate.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidExpense)
	}
	if _, err := model.ParseCategory(string(e.Category)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExpense, err)
	}
	if e.TransactionType == "" {
		return fmt.Errorf("%w: missing transaction type", ErrInvalidExpense)
	}
	return nil
}

func validateRevenue(r *model.Revenue) error {
	if r == nil {
		return fmt.Errorf("%w: revenue", ErrNilParameter)
	}
	if r.ProjectID == "" {
		return fmt.Errorf("%w: missing project", ErrInvalidRevenue)
	}
	if r.InvoiceDate.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidRevenue)
	}
	return nil
}

func validatePayee(p *model.Payee) error {
	if p == nil {
		return fmt.Errorf("%w: payee", ErrNilParameter)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidPayee)
	}
	return nil
}

func validateMapping(m *model.AccountMapping) error {
	if m == nil {
		return fmt.Errorf("%w: mapping", ErrNilParameter)
	}
	if strings.TrimSpace(m.QBAccountFullPath) == "" {
		return fmt.Errorf("%w: missing account path", ErrInvalidMapping)
	}
	if _, err := model.ParseCategory(string(m.InternalCategory)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMapping, err)
	}
	return nil
}

// validateConnection checks a connection about to become active at now.
func validateConnection(c *model.Connection, now time.Time) error {
	if c == nil {
		return fmt.Errorf("%w: connection", ErrNilParameter)
	}
	if c.AccessToken == "" || c.RefreshToken == "" {
		return fmt.Errorf("%w: missing tokens", ErrInvalidConn)
	}
	if c.RealmID == "" {
		return fmt.Errorf("%w: missing realm id", ErrInvalidConn)
	}
	if _, err := model.ParseEnvironment(string(c.Environment)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConn, err)
	}
	if c.TokenExpiresAt.IsZero() {
		return fmt.Errorf("%w: missing expiry", ErrInvalidConn)
	}
	if !c.TokenExpiresAt.After(now) {
		return fmt.Errorf("%w: access token expired at %s", ErrInvalidConn, c.TokenExpiresAt.Format(time.RFC3339))
	}
	return nil
}
