// Package backfill links already-stored expenses and revenues to the accounting provider's
// own transactions by date, amount and counterparty name.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/normalize"
	"github.com/Veraticus/tally/internal/quickbooks"
	"github.com/Veraticus/tally/internal/service"
	"github.com/Veraticus/tally/internal/similarity"
)

// Config holds backfill options.
type Config struct {
	// OnRecord is called after each examined record.
	OnRecord  func()
	Threshold float64
	DryRun    bool
}

// DefaultConfig returns a dry-run configuration with the standard name threshold.
func DefaultConfig() Config {
	return Config{
		Threshold: 0.8,
		DryRun:    true,
	}
}

// Engine runs reconciliation backfills.
type Engine struct {
	store   service.BackfillStore
	tokens  TokenEnsurer
	fetcher TransactionFetcher
	cfg     Config
}

// New creates a backfill engine.
func New(store service.BackfillStore, tokens TokenEnsurer, fetcher TransactionFetcher, cfg Config) *Engine {
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	return &Engine{
		store:   store,
		tokens:  tokens,
		fetcher: fetcher,
		cfg:     cfg,
	}
}

// providerIndex maps a date|amount key to the first unclaimed provider transaction with it.
type providerIndex map[string]quickbooks.ProviderTransaction

// Run reconciles env's records against the provider. Authentication and fetch failures abort
// the run; per-record write failures are collected in the report.
func (e *Engine) Run(ctx context.Context, env model.Environment) (*Report, error) {
	started := time.Now()
	report := &Report{
		Environment: env,
		DryRun:      e.cfg.DryRun,
		Fetched:     make(map[quickbooks.EntityType]int),
	}

	conn, err := e.store.GetActiveConnection(ctx, env)
	if errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("%w for %s", common.ErrNoConnection, env)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load connection: %w", err)
	}

	valid, err := e.tokens.EnsureValid(ctx, *conn)
	if err != nil {
		return nil, err
	}

	linked, err := e.store.ListExternalTransactionIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load linked ids: %w", err)
	}
	skip := make(map[string]bool, len(linked))
	for _, id := range linked {
		skip[id] = true
	}

	expenseSide, err := e.fetch(ctx, valid, report, skip, quickbooks.EntityBill, quickbooks.EntityPurchase)
	if err != nil {
		return nil, err
	}
	revenueSide, err := e.fetch(ctx, valid, report, skip, quickbooks.EntityInvoice)
	if err != nil {
		return nil, err
	}

	slog.Info("Starting backfill",
		"environment", env,
		"dry_run", e.cfg.DryRun,
		"expense_keys", len(expenseSide),
		"revenue_keys", len(revenueSide),
		"collisions", report.KeyCollisions)

	if err := e.reconcileExpenses(ctx, expenseSide, report); err != nil {
		return report, err
	}
	if err := e.reconcileRevenues(ctx, revenueSide, report); err != nil {
		return report, err
	}

	report.Duration = time.Since(started)
	slog.Info("Backfill complete",
		"environment", env,
		"examined", report.Examined,
		"links", len(report.Links),
		"updated", report.Updated(),
		"rejected", len(report.Rejected),
		"errors", len(report.Errors))
	return report, nil
}

func (e *Engine) fetch(ctx context.Context, conn model.Connection, report *Report, skip map[string]bool, entities ...quickbooks.EntityType) (providerIndex, error) {
	index := make(providerIndex)
	for _, entity := range entities {
		txns, err := e.fetcher.Query(ctx, conn, entity)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s transactions: %w", entity, err)
		}
		report.Fetched[entity] = len(txns)

		for _, txn := range txns {
			if skip[txn.ID] {
				report.AlreadyLinked++
				continue
			}
			key := matchKey(txn.Date, txn.Amount)
			if _, taken := index[key]; taken {
				report.KeyCollisions++
				continue
			}
			index[key] = txn
		}
	}
	return index, nil
}

func (e *Engine) reconcileExpenses(ctx context.Context, index providerIndex, report *Report) error {
	expenses, err := e.store.ListUnlinkedExpenses(ctx)
	if err != nil {
		return fmt.Errorf("failed to load unlinked expenses: %w", err)
	}
	payees, err := e.store.ListPayees(ctx)
	if err != nil {
		return fmt.Errorf("failed to load payees: %w", err)
	}
	names := make(map[string]counterparty, len(payees))
	for _, p := range payees {
		names[p.ID] = counterparty{name: p.Name, alternate: p.AlternateName}
	}

	for _, exp := range expenses {
		if err := ctx.Err(); err != nil {
			return err
		}
		party := lookupCounterparty(names, exp.PayeeID, exp.Description)
		e.reconcile(ctx, index, report, StreamExpense, exp.ID, party, exp.ExpenseDate, exp.Amount)
	}
	return nil
}

func (e *Engine) reconcileRevenues(ctx context.Context, index providerIndex, report *Report) error {
	revenues, err := e.store.ListUnlinkedRevenues(ctx)
	if err != nil {
		return fmt.Errorf("failed to load unlinked revenues: %w", err)
	}
	clients, err := e.store.ListClients(ctx)
	if err != nil {
		return fmt.Errorf("failed to load clients: %w", err)
	}
	names := make(map[string]counterparty, len(clients))
	for _, c := range clients {
		names[c.ID] = counterparty{name: c.Name, alternate: c.AlternateName}
	}

	for _, rev := range revenues {
		if err := ctx.Err(); err != nil {
			return err
		}
		party := lookupCounterparty(names, rev.ClientID, rev.Description)
		e.reconcile(ctx, index, report, StreamRevenue, rev.ID, party, rev.InvoiceDate, rev.Amount)
	}
	return nil
}

// reconcile matches one record against index, claiming the provider transaction on a link.
func (e *Engine) reconcile(ctx context.Context, index providerIndex, report *Report, stream Stream, id string, party counterparty, date time.Time, amount float64) {
	report.Examined++
	if e.cfg.OnRecord != nil {
		defer e.cfg.OnRecord()
	}

	key := matchKey(date, amount)
	txn, ok := index[key]
	if !ok {
		report.NoKey++
		return
	}

	name := party.name
	ratio := party.ratio(txn.Name)
	if ratio < e.cfg.Threshold {
		report.Rejected = append(report.Rejected, Rejection{
			RecordID:     id,
			ProviderID:   txn.ID,
			InternalName: name,
			ProviderName: txn.Name,
			Stream:       stream,
			Confidence:   ratio,
		})
		slog.Debug("Rejected backfill candidate",
			"stream", stream,
			"record", id,
			"provider_id", txn.ID,
			"ratio", ratio)
		return
	}

	delete(index, key)
	link := Link{
		RecordID:       id,
		ProviderID:     txn.ID,
		ProviderEntity: txn.EntityType,
		InternalName:   name,
		ProviderName:   txn.Name,
		Stream:         stream,
		MatchType:      model.MatchFuzzy,
		Confidence:     ratio,
	}
	if ratio == 1 {
		link.MatchType = model.MatchExact
	}
	report.Links = append(report.Links, link)

	if e.cfg.DryRun {
		return
	}

	var err error
	switch stream {
	case StreamExpense:
		err = e.store.SetExpenseExternalID(ctx, id, txn.ID)
	case StreamRevenue:
		err = e.store.SetRevenueExternalID(ctx, id, txn.ID)
	}
	if err != nil {
		slog.Warn("Failed to link record",
			"stream", stream,
			"record", id,
			"provider_id", txn.ID,
			"error", err)
		report.Errors = append(report.Errors, LinkError{
			RecordID:   id,
			ProviderID: txn.ID,
			Stream:     stream,
			Err:        err,
		})
		return
	}

	if stream == StreamExpense {
		report.UpdatedExpenses++
	} else {
		report.UpdatedRevenues++
	}
}

// matchKey ignores sign: imported expenses keep the export's negative amounts while the
// provider reports totals as positive.
func matchKey(date time.Time, amount float64) string {
	return normalize.DateKey(date) + "|" + normalize.AmountKey(math.Abs(amount))
}

// counterparty is the internal side's name plus the alias it may be booked under.
type counterparty struct {
	name      string
	alternate string
}

func (c counterparty) ratio(providerName string) float64 {
	ratio := similarity.Ratio(c.name, providerName)
	if c.alternate != "" {
		if alt := similarity.Ratio(c.alternate, providerName); alt > ratio {
			ratio = alt
		}
	}
	return ratio
}

func lookupCounterparty(names map[string]counterparty, id *string, description string) counterparty {
	if id != nil {
		if c, ok := names[*id]; ok && c.name != "" {
			return c
		}
	}
	return counterparty{name: description}
}
