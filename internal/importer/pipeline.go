package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Veraticus/tally/internal/classify"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/dedupe"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/project"
	"github.com/Veraticus/tally/internal/resolver"
	"github.com/Veraticus/tally/internal/service"
)

// Config tunes an import run.
type Config struct {
	// OnRow is called after each row is processed, from worker goroutines.
	OnRow      func()
	Thresholds resolver.Thresholds
	// Workers is the number of rows processed concurrently. Values below 1 mean 1.
	Workers int
	// DryRun computes the full report without writing anything.
	DryRun bool
}

// Pipeline imports transaction batches into the store.
type Pipeline struct {
	store    service.ImportStore
	resolver *resolver.Resolver
	cfg      Config
}

// NewPipeline creates an import pipeline.
func NewPipeline(store service.ImportStore, cfg Config) *Pipeline {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Pipeline{
		store:    store,
		cfg:      cfg,
		resolver: resolver.New(cfg.Thresholds),
	}
}

// run holds the reference data and shared state of one Run.
type run struct {
	projects   *project.Matcher
	classifier *classify.Classifier
	acc        *accumulator
	created    map[string]*model.Payee
	clients    []resolver.Candidate
	payeeGroup singleflight.Group

	mu sync.Mutex
	// payees grows as the run creates payees; guarded by mu.
	payees []resolver.Candidate
}

func (r *run) payeeCandidates() []resolver.Candidate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.payees[:len(r.payees):len(r.payees)]
}

// Import runs the pipeline over a parsed export, folding its parse errors into the report.
func (p *Pipeline) Import(ctx context.Context, exp *Export) (*Report, error) {
	report, err := p.Run(ctx, exp.Transactions)
	if report != nil && len(exp.Errors) > 0 {
		report.TotalRows += len(exp.Errors)
		merged := make([]RowError, 0, len(exp.Errors)+len(report.Errors))
		merged = append(merged, exp.Errors...)
		report.Errors = append(merged, report.Errors...)
		sortErrors(report.Errors)
	}
	return report, err
}

// Run takes a batch through dedupe, per-row matching and classification, and persistence.
// Row failures are recorded in the report; an error is returned only when reference data
// cannot be loaded or ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, transactions []model.Transaction) (*Report, error) {
	started := time.Now()

	r, err := p.load(ctx)
	if err != nil {
		return nil, err
	}

	deduped := dedupe.Detect(transactions)
	r.acc.report.TotalRows = len(transactions)
	r.acc.report.Parsed = len(transactions)
	r.acc.report.Duplicates = len(deduped.Duplicates)
	r.acc.report.DuplicateRows = deduped.Duplicates
	r.acc.report.DuplicateHeuristicWarning = len(deduped.Duplicates) > 0
	for _, d := range deduped.Duplicates {
		slog.Warn("Skipping duplicate row", "row", d.Transaction.Row, "reason", d.Reason)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for _, txn := range deduped.Unique {
		txn := txn
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r.acc.add(p.processRow(gctx, r, txn))
			if p.cfg.OnRow != nil {
				p.cfg.OnRow()
			}
			return nil
		})
	}
	waitErr := g.Wait()

	report := r.acc.finish(started)
	slog.Info("Import finished",
		"rows", report.TotalRows,
		"expenses", report.Expenses.Imported,
		"revenues", report.Revenues.Imported,
		"failed", report.Failed(),
		"duplicates", report.Duplicates,
		"dry_run", report.DryRun,
		"duration", report.Duration)

	if waitErr != nil {
		return report, fmt.Errorf("import interrupted: %w", waitErr)
	}
	return report, nil
}

func (p *Pipeline) load(ctx context.Context) (*run, error) {
	projects, err := p.store.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}
	if len(projects) == 0 {
		return nil, common.ErrNoProjects
	}
	payees, err := p.store.ListPayees(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load payees: %w", err)
	}
	clients, err := p.store.ListClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load clients: %w", err)
	}
	mappings, err := p.store.ListAccountMappings(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load account mappings: %w", err)
	}

	slog.Debug("Loaded reference data",
		"projects", len(projects),
		"payees", len(payees),
		"clients", len(clients),
		"mappings", len(mappings))

	return &run{
		projects:   project.NewMatcher(projects),
		classifier: classify.New(mappings),
		payees:     resolver.PayeeCandidates(payees),
		clients:    resolver.ClientCandidates(clients),
		created:    make(map[string]*model.Payee),
		acc:        newAccumulator(p.cfg.DryRun),
	}, nil
}

func (p *Pipeline) processRow(ctx context.Context, r *run, txn model.Transaction) rowOutcome {
	out := rowOutcome{row: txn.Row, revenue: txn.TransactionType().IsRevenue()}

	if txn.DateFlagged {
		out.flaggedDate = &FlaggedDate{Row: txn.Row, Raw: txn.RawDate}
	}

	match := r.projects.Match(txn.ProjectReference)
	if match.Unmatched {
		out.unmatchedProject = strings.TrimSpace(txn.ProjectReference)
	}
	if match.Project == nil {
		out.errs = append(out.errs, RowError{Row: txn.Row, Stage: StageProject, Err: common.ErrNoProjects})
		return out
	}

	if out.revenue {
		return p.persistRevenue(ctx, r, txn, match.Project, out)
	}
	return p.persistExpense(ctx, r, txn, match.Project, out)
}

func (p *Pipeline) persistExpense(ctx context.Context, r *run, txn model.Transaction, proj *model.Project, out rowOutcome) rowOutcome {
	name := strings.TrimSpace(txn.CounterpartyName)

	var payeeID *string
	if name != "" {
		res := p.resolver.Resolve(name, r.payeeCandidates())
		switch {
		case res.Matched():
			if res.Best.CandidateID != "" {
				payeeID = &res.Best.CandidateID
			}
			out.match = &Match{Row: txn.Row, Name: name, Party: PartyPayee, Result: *res.Best}
		case len(res.Suggestions) > 0:
			out.unmatchedPayee = name
			out.suggestion = &Suggestion{Row: txn.Row, Name: name, Party: PartyPayee, Candidates: res.Suggestions}
		default:
			out.unmatchedPayee = name
			payee, err := p.ensurePayee(ctx, r, name, txn)
			if err != nil {
				slog.Warn("Failed to create payee", "row", txn.Row, "payee", name, "error", err)
				out.errs = append(out.errs, RowError{Row: txn.Row, Stage: StagePayee, Err: err})
			} else if payee.ID != "" {
				payeeID = &payee.ID
			}
		}
	}

	result := r.classifier.Classify(txn.ClassificationText(), txn.AccountPath)
	out.tier = result.Tier

	expense := &model.Expense{
		ProjectID:       proj.ID,
		PayeeID:         payeeID,
		Category:        result.Category,
		TransactionType: txn.TransactionType(),
		Amount:          txn.Amount,
		ExpenseDate:     txn.Date,
		Description:     txn.Description,
		AccountName:     optional(txn.AccountPath),
	}

	if p.cfg.DryRun {
		out.persisted = true
		return out
	}
	if err := p.store.CreateExpense(ctx, expense); err != nil {
		slog.Warn("Failed to save expense", "row", txn.Row, "error", err)
		out.errs = append(out.errs, RowError{Row: txn.Row, Stage: StagePersist, Err: err})
		return out
	}
	out.persisted = true
	return out
}

func (p *Pipeline) persistRevenue(ctx context.Context, r *run, txn model.Transaction, proj *model.Project, out rowOutcome) rowOutcome {
	name := strings.TrimSpace(txn.CounterpartyName)

	var clientID *string
	if name != "" {
		res := p.resolver.Resolve(name, r.clients)
		switch {
		case res.Matched():
			clientID = &res.Best.CandidateID
			out.match = &Match{Row: txn.Row, Name: name, Party: PartyClient, Result: *res.Best}
		case len(res.Suggestions) > 0:
			out.unmatchedClient = name
			out.suggestion = &Suggestion{Row: txn.Row, Name: name, Party: PartyClient, Candidates: res.Suggestions}
		default:
			// Clients are never created; the revenue stays unlinked for follow-up.
			out.unmatchedClient = name
		}
	}

	revenue := &model.Revenue{
		ProjectID:   proj.ID,
		ClientID:    clientID,
		Amount:      txn.Amount,
		InvoiceDate: txn.Date,
		Description: txn.Description,
		AccountName: optional(txn.AccountPath),
	}

	if p.cfg.DryRun {
		out.persisted = true
		return out
	}
	if err := p.store.CreateRevenue(ctx, revenue); err != nil {
		slog.Warn("Failed to save revenue", "row", txn.Row, "error", err)
		out.errs = append(out.errs, RowError{Row: txn.Row, Stage: StagePersist, Err: err})
		return out
	}
	out.persisted = true
	return out
}

// ensurePayee returns the payee for an unknown counterparty name, creating it at most once per
// name even when several rows reach here concurrently.
func (p *Pipeline) ensurePayee(ctx context.Context, r *run, name string, txn model.Transaction) (*model.Payee, error) {
	key := strings.ToLower(name)

	v, err, _ := r.payeeGroup.Do(key, func() (any, error) {
		r.mu.Lock()
		existing := r.created[key]
		r.mu.Unlock()
		if existing != nil {
			return existing, nil
		}

		payee, err := p.findOrCreatePayee(ctx, r, name, txn)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.created[key] = payee
		r.payees = append(r.payees, resolver.Candidate{
			ID:            payee.ID,
			Name:          payee.Name,
			AlternateName: payee.AlternateName,
		})
		r.mu.Unlock()
		return payee, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Payee), nil
}

func (p *Pipeline) findOrCreatePayee(ctx context.Context, r *run, name string, txn model.Transaction) (*model.Payee, error) {
	found, err := p.store.FindPayeeByName(ctx, name)
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up payee: %w", err)
	}

	payee := &model.Payee{Name: name, Type: resolver.InferPayeeType(txn.AccountPath)}
	if !p.cfg.DryRun {
		if err := p.store.CreatePayee(ctx, payee); err != nil {
			if !errors.Is(err, common.ErrDuplicateEntry) {
				return nil, fmt.Errorf("failed to create payee: %w", err)
			}
			// Created by another import between the lookup and the insert.
			return p.store.FindPayeeByName(ctx, name)
		}
		slog.Info("Created payee", "payee", name, "type", payee.Type, "row", txn.Row)
	}

	r.acc.addCreatedPayee(CreatedPayee{ID: payee.ID, Name: payee.Name, Type: payee.Type, Row: txn.Row})
	return payee, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
