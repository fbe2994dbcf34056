package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/Veraticus/tally/internal/model"
)

// AppendSyncLog writes one audit record. Rows are never updated or deleted.
func (s *SQLiteStorage) AppendSyncLog(ctx context.Context, entry *model.SyncLogEntry) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("%w: sync log entry", ErrNilParameter)
	}
	if err := validateString(entry.EntityType, "entity type"); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quickbooks_sync_log (
			id, entity_type, entity_id, direction, status, error_message,
			request_payload, response_payload, duration_ms, environment, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.EntityType, entry.EntityID, string(entry.Direction), string(entry.Status),
		nullString(entry.ErrorMessage), entry.RequestPayload, entry.ResponsePayload,
		entry.DurationMs, string(entry.Environment), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append sync log: %w", err)
	}
	return nil
}

// ListSyncLog returns the most recent entries, newest first. limit <= 0 returns all.
func (s *SQLiteStorage) ListSyncLog(ctx context.Context, limit int) ([]model.SyncLogEntry, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, direction, status, error_message,
		       request_payload, response_payload, duration_ms, environment, created_at
		FROM quickbooks_sync_log
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.SyncLogEntry
	for rows.Next() {
		var (
			e                                   model.SyncLogEntry
			entityID, errMsg, request, response sql.NullString
			direction, status, environment      string
		)
		err := rows.Scan(&e.ID, &e.EntityType, &entityID, &direction, &status, &errMsg,
			&request, &response, &e.DurationMs, &environment, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		e.EntityID = entityID.String
		e.ErrorMessage = stringPtr(errMsg)
		e.RequestPayload = request.String
		e.ResponsePayload = response.String
		e.Direction = model.SyncDirection(direction)
		e.Status = model.SyncStatus(status)
		e.Environment = model.Environment(environment)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
