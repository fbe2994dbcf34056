// Package service defines the persistence contracts the import and reconciliation code
// depends on.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/Veraticus/tally/internal/model"
)

// ErrStaleConnection means a connection's refresh token changed between read and write,
// i.e. another refresh won the race.
var ErrStaleConnection = errors.New("connection tokens changed concurrently")

// ReferenceReader loads the reference data an import resolves against.
type ReferenceReader interface {
	ListProjects(ctx context.Context) ([]model.Project, error)
	ListPayees(ctx context.Context) ([]model.Payee, error)
	ListClients(ctx context.Context) ([]model.Client, error)
	ListAccountMappings(ctx context.Context, activeOnly bool) ([]model.AccountMapping, error)
}

// ImportStore is what the import pipeline needs from storage.
type ImportStore interface {
	ReferenceReader
	FindPayeeByName(ctx context.Context, name string) (*model.Payee, error)
	CreatePayee(ctx context.Context, payee *model.Payee) error
	CreateExpense(ctx context.Context, expense *model.Expense) error
	CreateRevenue(ctx context.Context, revenue *model.Revenue) error
}

// SyncLogger appends audit records for external calls.
type SyncLogger interface {
	AppendSyncLog(ctx context.Context, entry *model.SyncLogEntry) error
}

// ConnectionStore persists provider OAuth connections.
type ConnectionStore interface {
	SyncLogger
	// GetActiveConnection returns common.ErrNotFound when the environment has no active row.
	GetActiveConnection(ctx context.Context, env model.Environment) (*model.Connection, error)
	// UpdateConnectionTokens writes new tokens only if the row still holds previousRefreshToken,
	// returning ErrStaleConnection otherwise.
	UpdateConnectionTokens(ctx context.Context, id, previousRefreshToken string, update TokenUpdate) error
	// SaveConnection stores conn as the single active connection for its environment.
	SaveConnection(ctx context.Context, conn *model.Connection) error
}

// TokenUpdate is the token material written after a refresh.
type TokenUpdate struct {
	ExpiresAt             time.Time
	RefreshTokenExpiresAt time.Time
	AccessToken           string
	RefreshToken          string
}

// BackfillStore is what the reconciliation backfill needs from storage.
type BackfillStore interface {
	ConnectionStore
	ListPayees(ctx context.Context) ([]model.Payee, error)
	ListClients(ctx context.Context) ([]model.Client, error)
	ListUnlinkedExpenses(ctx context.Context) ([]model.Expense, error)
	ListUnlinkedRevenues(ctx context.Context) ([]model.Revenue, error)
	// ListExternalTransactionIDs returns every provider id already linked to a record.
	ListExternalTransactionIDs(ctx context.Context) ([]string, error)
	// SetExpenseExternalID links an expense; it never overwrites an existing link and returns
	// common.ErrAlreadyLinked in that case.
	SetExpenseExternalID(ctx context.Context, id, externalID string) error
	SetRevenueExternalID(ctx context.Context, id, externalID string) error
}

// Storage is the full persistence layer.
type Storage interface {
	ImportStore
	BackfillStore

	CreateProject(ctx context.Context, project *model.Project) error
	CreateClient(ctx context.Context, client *model.Client) error
	UpsertAccountMapping(ctx context.Context, mapping *model.AccountMapping) error
	SetAccountMappingActive(ctx context.Context, accountPath string, active bool) error
	ListSyncLog(ctx context.Context, limit int) ([]model.SyncLogEntry, error)

	Migrate(ctx context.Context) error
	Close() error
}
