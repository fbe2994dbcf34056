package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

// CreateProject inserts a project, assigning an id if it has none.
func (s *SQLiteStorage) CreateProject(ctx context.Context, project *model.Project) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if project == nil {
		return fmt.Errorf("%w: project", ErrNilParameter)
	}
	if err := validateString(project.Number, "project number"); err != nil {
		return err
	}
	if project.ID == "" {
		project.ID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, project_number, name) VALUES (?, ?, ?)
	`, project.ID, project.Number, project.Name)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// ListProjects returns projects in creation order.
func (s *SQLiteStorage) ListProjects(ctx context.Context) ([]model.Project, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_number, name FROM projects ORDER BY created_at, rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []model.Project
	for rows.Next() {
		var p model.Project
		if err := rows.Scan(&p.ID, &p.Number, &p.Name); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// CreatePayee inserts a payee. A case-insensitive name collision returns common.ErrDuplicateEntry.
func (s *SQLiteStorage) CreatePayee(ctx context.Context, payee *model.Payee) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePayee(payee); err != nil {
		return err
	}
	if payee.ID == "" {
		payee.ID = uuid.NewString()
	}
	if payee.Type == "" {
		payee.Type = model.PayeeOther
	}

	alt := payee.AlternateName
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payees (id, name, alternate_name, payee_type) VALUES (?, ?, ?, ?)
	`, payee.ID, payee.Name, nullString(&alt), string(payee.Type))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: payee %q", common.ErrDuplicateEntry, payee.Name)
		}
		return fmt.Errorf("failed to create payee: %w", err)
	}

	cached := *payee
	s.payeeCache.SetDefault(payeeCacheKey(payee.Name), &cached)
	return nil
}

// FindPayeeByName looks a payee up by case-insensitive name. Returns common.ErrNotFound
// when no payee has that name.
func (s *SQLiteStorage) FindPayeeByName(ctx context.Context, name string) (*model.Payee, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	if cached, ok := s.payeeCache.Get(payeeCacheKey(name)); ok {
		p := *cached.(*model.Payee)
		return &p, nil
	}

	var (
		p    model.Payee
		alt  sql.NullString
		kind string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, alternate_name, payee_type FROM payees WHERE name = ? COLLATE NOCASE
	`, strings.TrimSpace(name)).Scan(&p.ID, &p.Name, &alt, &kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payee: %w", err)
	}
	p.AlternateName = alt.String
	p.Type = model.PayeeType(kind)

	cached := p
	s.payeeCache.SetDefault(payeeCacheKey(name), &cached)
	return &p, nil
}

// ListPayees returns all payees ordered by name.
func (s *SQLiteStorage) ListPayees(ctx context.Context) ([]model.Payee, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, alternate_name, payee_type FROM payees ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query payees: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var payees []model.Payee
	for rows.Next() {
		var (
			p    model.Payee
			alt  sql.NullString
			kind string
		)
		if err := rows.Scan(&p.ID, &p.Name, &alt, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan payee: %w", err)
		}
		p.AlternateName = alt.String
		p.Type = model.PayeeType(kind)
		payees = append(payees, p)
	}
	return payees, rows.Err()
}

// CreateClient inserts a client.
func (s *SQLiteStorage) CreateClient(ctx context.Context, client *model.Client) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if client == nil {
		return fmt.Errorf("%w: client", ErrNilParameter)
	}
	if err := validateString(client.Name, "client name"); err != nil {
		return err
	}
	if client.ID == "" {
		client.ID = uuid.NewString()
	}

	alt := client.AlternateName
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, alternate_name) VALUES (?, ?, ?)
	`, client.ID, client.Name, nullString(&alt))
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

// ListClients returns all clients ordered by name.
func (s *SQLiteStorage) ListClients(ctx context.Context) ([]model.Client, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, alternate_name FROM clients ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var clients []model.Client
	for rows.Next() {
		var (
			c   model.Client
			alt sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Name, &alt); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		c.AlternateName = alt.String
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func payeeCacheKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
