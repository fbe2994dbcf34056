package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

// CreateExpense inserts an expense, assigning id and timestamps.
func (s *SQLiteStorage) CreateExpense(ctx context.Context, e *model.Expense) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateExpense(e); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := s.now()
	e.CreatedAt, e.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (
			id, project_id, payee_id, category, transaction_type, amount, expense_date,
			description, account_name, external_transaction_id, is_planned, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.ProjectID, nullString(e.PayeeID), string(e.Category), string(e.TransactionType),
		e.Amount, e.ExpenseDate, e.Description, nullString(e.AccountName),
		nullString(e.ExternalTransactionID), e.IsPlanned, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: expense external id", common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create expense: %w", err)
	}
	return nil
}

// CreateRevenue inserts a project revenue, assigning id and timestamps.
func (s *SQLiteStorage) CreateRevenue(ctx context.Context, r *model.Revenue) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRevenue(r); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := s.now()
	r.CreatedAt, r.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_revenues (
			id, project_id, client_id, amount, invoice_date, description, account_name,
			external_transaction_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.ProjectID, nullString(r.ClientID), r.Amount, r.InvoiceDate, r.Description,
		nullString(r.AccountName), nullString(r.ExternalTransactionID), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: revenue external id", common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create revenue: %w", err)
	}
	return nil
}

const expenseColumns = `id, project_id, payee_id, category, transaction_type, amount, expense_date,
	description, account_name, external_transaction_id, is_planned, created_at, updated_at`

// GetExpense loads one expense by id.
func (s *SQLiteStorage) GetExpense(ctx context.Context, id string) (*model.Expense, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query expense: %w", err)
	}
	expenses, err := scanExpenses(rows)
	if err != nil {
		return nil, err
	}
	if len(expenses) == 0 {
		return nil, common.ErrNotFound
	}
	return &expenses[0], nil
}

// ListUnlinkedExpenses returns expenses that have no external transaction id yet.
func (s *SQLiteStorage) ListUnlinkedExpenses(ctx context.Context) ([]model.Expense, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+expenseColumns+` FROM expenses
		WHERE external_transaction_id IS NULL AND is_planned = 0
		ORDER BY expense_date, rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unlinked expenses: %w", err)
	}
	return scanExpenses(rows)
}

func scanExpenses(rows *sql.Rows) ([]model.Expense, error) {
	defer func() { _ = rows.Close() }()

	var expenses []model.Expense
	for rows.Next() {
		var (
			e                          model.Expense
			payeeID, account, external sql.NullString
			description                sql.NullString
			category, transactionType  string
		)
		err := rows.Scan(&e.ID, &e.ProjectID, &payeeID, &category, &transactionType, &e.Amount,
			&e.ExpenseDate, &description, &account, &external, &e.IsPlanned, &e.CreatedAt, &e.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		e.PayeeID = stringPtr(payeeID)
		e.AccountName = stringPtr(account)
		e.ExternalTransactionID = stringPtr(external)
		e.Description = description.String
		e.Category = model.Category(category)
		e.TransactionType = model.TransactionType(transactionType)
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

const revenueColumns = `id, project_id, client_id, amount, invoice_date, description, account_name,
	external_transaction_id, created_at, updated_at`

// GetRevenue loads one revenue by id.
func (s *SQLiteStorage) GetRevenue(ctx context.Context, id string) (*model.Revenue, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+revenueColumns+` FROM project_revenues WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query revenue: %w", err)
	}
	revenues, err := scanRevenues(rows)
	if err != nil {
		return nil, err
	}
	if len(revenues) == 0 {
		return nil, common.ErrNotFound
	}
	return &revenues[0], nil
}

// ListUnlinkedRevenues returns revenues that have no external transaction id yet.
func (s *SQLiteStorage) ListUnlinkedRevenues(ctx context.Context) ([]model.Revenue, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+revenueColumns+` FROM project_revenues
		WHERE external_transaction_id IS NULL
		ORDER BY invoice_date, rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unlinked revenues: %w", err)
	}
	return scanRevenues(rows)
}

func scanRevenues(rows *sql.Rows) ([]model.Revenue, error) {
	defer func() { _ = rows.Close() }()

	var revenues []model.Revenue
	for rows.Next() {
		var (
			r                                  model.Revenue
			clientID, description, account, ex sql.NullString
		)
		err := rows.Scan(&r.ID, &r.ProjectID, &clientID, &r.Amount, &r.InvoiceDate, &description,
			&account, &ex, &r.CreatedAt, &r.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan revenue: %w", err)
		}
		r.ClientID = stringPtr(clientID)
		r.Description = description.String
		r.AccountName = stringPtr(account)
		r.ExternalTransactionID = stringPtr(ex)
		revenues = append(revenues, r)
	}
	return revenues, rows.Err()
}

// ListExternalTransactionIDs returns every provider id linked to an expense or revenue.
func (s *SQLiteStorage) ListExternalTransactionIDs(ctx context.Context) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT external_transaction_id FROM expenses WHERE external_transaction_id IS NOT NULL
		UNION
		SELECT external_transaction_id FROM project_revenues WHERE external_transaction_id IS NOT NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query external ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan external id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetExpenseExternalID links an expense to a provider transaction if it is still unlinked.
func (s *SQLiteStorage) SetExpenseExternalID(ctx context.Context, id, externalID string) error {
	return s.setExternalID(ctx, "expenses", id, externalID)
}

// SetRevenueExternalID links a revenue to a provider transaction if it is still unlinked.
func (s *SQLiteStorage) SetRevenueExternalID(ctx context.Context, id, externalID string) error {
	return s.setExternalID(ctx, "project_revenues", id, externalID)
}

func (s *SQLiteStorage) setExternalID(ctx context.Context, table, id, externalID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if err := validateString(externalID, "externalID"); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.linkExternalID(ctx, tx, table, id, externalID)
	})
}

// linkExternalID sets external_transaction_id on an unlinked row of table. table is one of
// two constants above, never user input.
func (s *SQLiteStorage) linkExternalID(ctx context.Context, q queryable, table, id, externalID string) error {
	result, err := q.ExecContext(ctx, `
		UPDATE `+table+` SET external_transaction_id = ?, updated_at = ?
		WHERE id = ? AND external_transaction_id IS NULL
	`, externalID, s.now(), id)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: external id %s", common.ErrDuplicateEntry, externalID)
		}
		return fmt.Errorf("failed to link %s: %w", table, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 1 {
		return nil
	}

	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = ?)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check %s existence: %w", table, err)
	}
	if !exists {
		return common.ErrNotFound
	}
	return common.ErrAlreadyLinked
}
