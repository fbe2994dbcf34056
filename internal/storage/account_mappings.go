package storage

import (
	"context"
	"fmt"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

// UpsertAccountMapping creates or replaces the mapping for an account path.
func (s *SQLiteStorage) UpsertAccountMapping(ctx context.Context, mapping *model.AccountMapping) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateMapping(mapping); err != nil {
		return err
	}
	mapping.UpdatedAt = s.now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO account_mappings (qb_account_full_path, internal_category, is_active, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(qb_account_full_path) DO UPDATE SET
			internal_category = excluded.internal_category,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`, mapping.QBAccountFullPath, string(mapping.InternalCategory), mapping.IsActive, mapping.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save account mapping: %w", err)
	}
	return nil
}

// SetAccountMappingActive toggles a mapping without deleting it.
func (s *SQLiteStorage) SetAccountMappingActive(ctx context.Context, accountPath string, active bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(accountPath, "accountPath"); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE account_mappings SET is_active = ?, updated_at = ? WHERE qb_account_full_path = ?
	`, active, s.now(), accountPath)
	if err != nil {
		return fmt.Errorf("failed to update account mapping: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return common.ErrNotFound
	}
	return nil
}

// ListAccountMappings returns mappings ordered by path.
func (s *SQLiteStorage) ListAccountMappings(ctx context.Context, activeOnly bool) ([]model.AccountMapping, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT qb_account_full_path, internal_category, is_active, updated_at FROM account_mappings`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY qb_account_full_path`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query account mappings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var mappings []model.AccountMapping
	for rows.Next() {
		var (
			m        model.AccountMapping
			category string
		)
		if err := rows.Scan(&m.QBAccountFullPath, &category, &m.IsActive, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account mapping: %w", err)
		}
		m.InternalCategory = model.Category(category)
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}
