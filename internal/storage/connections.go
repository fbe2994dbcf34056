package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
)

// GetActiveConnection returns the active connection for env or common.ErrNotFound.
func (s *SQLiteStorage) GetActiveConnection(ctx context.Context, env model.Environment) (*model.Connection, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		c              model.Connection
		refreshExpires sql.NullTime
		environment    string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, access_token, refresh_token, realm_id, token_expires_at,
		       refresh_token_expires_at, environment, is_active, updated_at
		FROM quickbooks_connections
		WHERE environment = ? AND is_active = 1
	`, string(env)).Scan(&c.ID, &c.AccessToken, &c.RefreshToken, &c.RealmID, &c.TokenExpiresAt,
		&refreshExpires, &environment, &c.IsActive, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active connection: %w", err)
	}
	if refreshExpires.Valid {
		c.RefreshTokenExpiresAt = refreshExpires.Time
	}
	c.Environment = model.Environment(environment)
	return &c, nil
}

// UpdateConnectionTokens replaces the tokens of an active connection, but only if its refresh
// token is still previousRefreshToken. Otherwise another refresh won and
// service.ErrStaleConnection is returned.
func (s *SQLiteStorage) UpdateConnectionTokens(ctx context.Context, id, previousRefreshToken string, update service.TokenUpdate) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if update.AccessToken == "" || update.RefreshToken == "" {
		return fmt.Errorf("%w: missing tokens", ErrInvalidConn)
	}

	var refreshExpires sql.NullTime
	if !update.RefreshTokenExpiresAt.IsZero() {
		refreshExpires = sql.NullTime{Time: update.RefreshTokenExpiresAt, Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE quickbooks_connections
		SET access_token = ?, refresh_token = ?, token_expires_at = ?,
		    refresh_token_expires_at = COALESCE(?, refresh_token_expires_at), updated_at = ?
		WHERE id = ? AND refresh_token = ? AND is_active = 1
	`, update.AccessToken, update.RefreshToken, update.ExpiresAt, refreshExpires, s.now(),
		id, previousRefreshToken)
	if err != nil {
		return fmt.Errorf("failed to update connection tokens: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return service.ErrStaleConnection
	}
	return nil
}

// SaveConnection stores conn as the active connection for its environment, deactivating any
// previous one.
func (s *SQLiteStorage) SaveConnection(ctx context.Context, conn *model.Connection) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	now := s.now()
	if err := validateConnection(conn, now); err != nil {
		return err
	}
	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}
	conn.UpdatedAt = now
	conn.IsActive = true

	var refreshExpires sql.NullTime
	if !conn.RefreshTokenExpiresAt.IsZero() {
		refreshExpires = sql.NullTime{Time: conn.RefreshTokenExpiresAt, Valid: true}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE quickbooks_connections SET is_active = 0, updated_at = ?
			WHERE environment = ? AND is_active = 1
		`, now, string(conn.Environment))
		if err != nil {
			return fmt.Errorf("failed to deactivate previous connection: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO quickbooks_connections (
				id, access_token, refresh_token, realm_id, token_expires_at,
				refresh_token_expires_at, environment, is_active, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		`, conn.ID, conn.AccessToken, conn.RefreshToken, conn.RealmID, conn.TokenExpiresAt,
			refreshExpires, string(conn.Environment), now, now)
		if err != nil {
			return fmt.Errorf("failed to insert connection: %w", err)
		}
		return nil
	})
}
