package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
const ExpectedSchemaVersion = 2

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS projects (
					id TEXT PRIMARY KEY,
					project_number TEXT NOT NULL,
					name TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_projects_number ON projects(project_number)`,

				`CREATE TABLE IF NOT EXISTS payees (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					alternate_name TEXT,
					payee_type TEXT NOT NULL DEFAULT 'other',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE UNIQUE INDEX idx_payees_name ON payees(name COLLATE NOCASE)`,

				`CREATE TABLE IF NOT EXISTS clients (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					alternate_name TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS expenses (
					id TEXT PRIMARY KEY,
					project_id TEXT NOT NULL REFERENCES projects(id),
					payee_id TEXT REFERENCES payees(id),
					category TEXT NOT NULL,
					transaction_type TEXT NOT NULL,
					amount REAL NOT NULL,
					expense_date DATETIME NOT NULL,
					description TEXT,
					account_name TEXT,
					external_transaction_id TEXT,
					is_planned BOOLEAN NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_expenses_project ON expenses(project_id)`,
				`CREATE INDEX idx_expenses_date_amount ON expenses(expense_date, amount)`,

				`CREATE TABLE IF NOT EXISTS project_revenues (
					id TEXT PRIMARY KEY,
					project_id TEXT NOT NULL REFERENCES projects(id),
					client_id TEXT REFERENCES clients(id),
					amount REAL NOT NULL,
					invoice_date DATETIME NOT NULL,
					description TEXT,
					account_name TEXT,
					external_transaction_id TEXT,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_project_revenues_project ON project_revenues(project_id)`,

				`CREATE TABLE IF NOT EXISTS account_mappings (
					qb_account_full_path TEXT PRIMARY KEY COLLATE NOCASE,
					internal_category TEXT NOT NULL,
					is_active BOOLEAN NOT NULL DEFAULT 1,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS quickbooks_connections (
					id TEXT PRIMARY KEY,
					access_token TEXT NOT NULL,
					refresh_token TEXT NOT NULL,
					realm_id TEXT NOT NULL,
					token_expires_at DATETIME NOT NULL,
					refresh_token_expires_at DATETIME,
					environment TEXT NOT NULL,
					is_active BOOLEAN NOT NULL DEFAULT 1,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE UNIQUE INDEX idx_quickbooks_connections_active
					ON quickbooks_connections(environment) WHERE is_active = 1`,

				`CREATE TABLE IF NOT EXISTS quickbooks_sync_log (
					id TEXT PRIMARY KEY,
					entity_type TEXT NOT NULL,
					entity_id TEXT,
					direction TEXT NOT NULL,
					status TEXT NOT NULL,
					error_message TEXT,
					request_payload TEXT,
					response_payload TEXT,
					duration_ms INTEGER NOT NULL DEFAULT 0,
					environment TEXT NOT NULL,
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_quickbooks_sync_log_created ON quickbooks_sync_log(created_at)`,
			)
		},
	},
	{
		Version:     2,
		Description: "Enforce external id uniqueness and append-only sync log",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE UNIQUE INDEX idx_expenses_external_id
					ON expenses(external_transaction_id) WHERE external_transaction_id IS NOT NULL`,
				`CREATE UNIQUE INDEX idx_project_revenues_external_id
					ON project_revenues(external_transaction_id) WHERE external_transaction_id IS NOT NULL`,
				`CREATE TRIGGER quickbooks_sync_log_no_update
					BEFORE UPDATE ON quickbooks_sync_log
					BEGIN SELECT RAISE(ABORT, 'quickbooks_sync_log is append-only'); END`,
				`CREATE TRIGGER quickbooks_sync_log_no_delete
					BEFORE DELETE ON quickbooks_sync_log
					BEGIN SELECT RAISE(ABORT, 'quickbooks_sync_log is append-only'); END`,
			)
		},
	},
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
