package backfill

import (
	"context"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/quickbooks"
)

// TokenEnsurer returns a connection whose access token is valid for the duration of a run.
type TokenEnsurer interface {
	EnsureValid(ctx context.Context, conn model.Connection) (model.Connection, error)
}

// TransactionFetcher reads the provider's full history for one entity type.
type TransactionFetcher interface {
	Query(ctx context.Context, conn model.Connection, entity quickbooks.EntityType) ([]quickbooks.ProviderTransaction, error)
}
