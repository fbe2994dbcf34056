package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tally/internal/classify"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/service"
	"github.com/Veraticus/tally/internal/testutil"
)

func parseSample(t *testing.T, input string) *Export {
	t.Helper()
	exp, err := testParser().Parse(strings.NewReader(input))
	require.NoError(t, err)
	return exp
}

func TestPipeline_ImportExport(t *testing.T) {
	db := testutil.SetupTestDB(t, testutil.StandardSeed())
	ctx := context.Background()

	report, err := NewPipeline(db.Storage, Config{}).Import(ctx, parseSample(t, sampleExport))
	require.NoError(t, err)

	assert.Equal(t, 5, report.TotalRows)
	assert.Equal(t, 4, report.Parsed)
	assert.Equal(t, StreamCounts{Imported: 3}, report.Expenses)
	assert.Equal(t, StreamCounts{Imported: 1}, report.Revenues)
	assert.Zero(t, report.Duplicates)
	assert.False(t, report.DuplicateHeuristicWarning)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, 11, report.Errors[0].Row)
	assert.Equal(t, StageParse, report.Errors[0].Stage)

	assert.Equal(t, 1, report.ClassificationTiers[classify.TierMapping])
	assert.Equal(t, 2, report.ClassificationTiers[classify.TierStatic])

	require.Len(t, report.Matches, 3)
	assert.Equal(t, PartyPayee, report.Matches[0].Party)
	assert.Equal(t, model.MatchExact, report.Matches[0].Result.MatchType)
	assert.Equal(t, PartyClient, report.Matches[2].Party)
	assert.Equal(t, db.MustClient("Smith Family").ID, report.Matches[2].Result.CandidateID)

	require.Len(t, report.CreatedPayees, 1)
	created := report.CreatedPayees[0]
	assert.Equal(t, "New Vendor Co", created.Name)
	assert.Equal(t, model.PayeeMaterialSupplier, created.Type)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, []Unmatched{{Value: "New Vendor Co", Row: 9}}, report.UnmatchedPayees)
	assert.Equal(t, []FlaggedDate{{Raw: "not a date", Row: 9}}, report.FlaggedDates)
	assert.Empty(t, report.UnmatchedProjects)

	expenses, err := db.Storage.ListUnlinkedExpenses(ctx)
	require.NoError(t, err)
	require.Len(t, expenses, 3)

	byAmount := make(map[string]model.Expense)
	for _, e := range expenses {
		byAmount[fmt.Sprintf("%.2f", e.Amount)] = e
	}
	lumber := byAmount["-1200.00"]
	assert.Equal(t, db.MustProject("2024-001").ID, lumber.ProjectID)
	assert.Equal(t, model.CategoryMaterials, lumber.Category)
	assert.Equal(t, model.TypeBill, lumber.TransactionType)
	require.NotNil(t, lumber.PayeeID)
	assert.Equal(t, db.MustPayee("ACME Supply").ID, *lumber.PayeeID)

	electric := byAmount["850.00"]
	assert.Equal(t, model.CategorySubcontractor, electric.Category)
	assert.Equal(t, model.TypeCheck, electric.TransactionType)

	office := byAmount["45.10"]
	assert.Equal(t, db.MustProject("MISC").ID, office.ProjectID)
	require.NotNil(t, office.PayeeID)
	assert.Equal(t, created.ID, *office.PayeeID)

	revenues, err := db.Storage.ListUnlinkedRevenues(ctx)
	require.NoError(t, err)
	require.Len(t, revenues, 1)
	require.NotNil(t, revenues[0].ClientID)
	assert.Equal(t, db.MustClient("Smith Family").ID, *revenues[0].ClientID)
	assert.InDelta(t, 5000.0, revenues[0].Amount, 0.001)
}

func TestPipeline_SupplyKeywordWithoutAccount(t *testing.T) {
	seed := testutil.StandardSeed()
	seed.Mappings = nil
	db := testutil.SetupTestDB(t, seed)
	ctx := context.Background()

	exp := parseSample(t, "Date,Amount,Name\n2024-03-01,\"(1,200.00)\",ACME Supply\n")
	report, err := NewPipeline(db.Storage, Config{}).Import(ctx, exp)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ClassificationTiers[classify.TierKeyword])

	expenses, err := db.Storage.ListUnlinkedExpenses(ctx)
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, model.CategoryMaterials, expenses[0].Category)
	assert.InDelta(t, -1200.00, expenses[0].Amount, 0.001)
}

func TestPipeline_DuplicateRows(t *testing.T) {
	db := testutil.SetupTestDB(t, testutil.StandardSeed())
	ctx := context.Background()

	exp := parseSample(t, "Date,Amount,Name,Project\n"+
		"2024-03-01,50.00,ACME Supply,2024-001\n"+
		"2024-03-01,50.00,acme supply,2024-002\n")
	report, err := NewPipeline(db.Storage, Config{}).Import(ctx, exp)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Duplicates)
	assert.True(t, report.DuplicateHeuristicWarning)
	require.Len(t, report.DuplicateRows, 1)
	dup := report.DuplicateRows[0]
	assert.Equal(t, 3, dup.Transaction.Row)
	assert.Contains(t, dup.Reason, "ACME Supply")
	assert.Contains(t, dup.Reason, "2024-03-01")
	assert.Equal(t, 1, report.Expenses.Imported)

	expenses, err := db.Storage.ListUnlinkedExpenses(ctx)
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, db.MustProject("2024-001").ID, expenses[0].ProjectID)
}

func TestPipeline_DryRunWritesNothing(t *testing.T) {
	db := testutil.SetupTestDB(t, testutil.StandardSeed())
	ctx := context.Background()

	report, err := NewPipeline(db.Storage, Config{DryRun: true}).Import(ctx, parseSample(t, sampleExport))
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 3, report.Expenses.Imported)
	require.Len(t, report.CreatedPayees, 1)
	assert.Empty(t, report.CreatedPayees[0].ID)

	expenses, err := db.Storage.ListUnlinkedExpenses(ctx)
	require.NoError(t, err)
	assert.Empty(t, expenses)

	payees, err := db.Storage.ListPayees(ctx)
	require.NoError(t, err)
	assert.Len(t, payees, 3)
}

func TestPipeline_UnmatchedProjectAndSuggestions(t *testing.T) {
	db := testutil.SetupTestDB(t, testutil.StandardSeed())
	ctx := context.Background()

	exp := parseSample(t, "Date,Amount,Name,Project,Type\n"+
		"2024-03-01,10.00,Acme Sup Co,999-1,Bill\n"+
		"2024-03-02,20.00,Unknown Client,2024-002,Invoice\n")
	report, err := NewPipeline(db.Storage, Config{}).Import(ctx, exp)
	require.NoError(t, err)

	assert.Equal(t, []Unmatched{{Value: "999-1", Row: 2}}, report.UnmatchedProjects)
	require.Len(t, report.Suggestions, 1)
	assert.Equal(t, PartyPayee, report.Suggestions[0].Party)
	assert.Equal(t, db.MustPayee("ACME Supply").ID, report.Suggestions[0].Candidates[0].CandidateID)
	assert.Empty(t, report.CreatedPayees)
	assert.Equal(t, []Unmatched{{Value: "Unknown Client", Row: 3}}, report.UnmatchedClients)

	expenses, err := db.Storage.ListUnlinkedExpenses(ctx)
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Nil(t, expenses[0].PayeeID)
	assert.Equal(t, db.MustProject("MISC").ID, expenses[0].ProjectID)

	revenues, err := db.Storage.ListUnlinkedRevenues(ctx)
	require.NoError(t, err)
	require.Len(t, revenues, 1)
	assert.Nil(t, revenues[0].ClientID)
}

func TestPipeline_ConcurrentRowsCreateOnePayee(t *testing.T) {
	db := testutil.SetupTestDB(t, testutil.StandardSeed())
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	txns := make([]model.Transaction, 20)
	for i := range txns {
		txns[i] = model.Transaction{
			Row:              i + 2,
			Date:             base.AddDate(0, 0, i),
			Amount:           float64(10 + i),
			CounterpartyName: "Home Depot",
			ProjectReference: "2024-001",
			AccountPath:      "Job Expenses:Job Materials",
		}
	}

	var rows atomic.Int32
	report, err := NewPipeline(db.Storage, Config{
		Workers: 4,
		OnRow:   func() { rows.Add(1) },
	}).Run(ctx, txns)
	require.NoError(t, err)

	assert.Equal(t, int32(20), rows.Load())
	assert.Equal(t, 20, report.Expenses.Imported)
	require.Len(t, report.CreatedPayees, 1)
	require.Len(t, report.UnmatchedPayees, 1)
	assert.Equal(t, "Home Depot", report.UnmatchedPayees[0].Value)

	payees, err := db.Storage.ListPayees(ctx)
	require.NoError(t, err)
	assert.Len(t, payees, 4)

	expenses, err := db.Storage.ListUnlinkedExpenses(ctx)
	require.NoError(t, err)
	for _, e := range expenses {
		require.NotNil(t, e.PayeeID)
		assert.Equal(t, report.CreatedPayees[0].ID, *e.PayeeID)
	}
}

func TestPipeline_LaterRowsResolveAgainstCreatedPayees(t *testing.T) {
	db := testutil.SetupTestDB(t, testutil.StandardSeed())
	ctx := context.Background()

	exp := parseSample(t, "Date,Amount,Name,Project\n"+
		"2024-03-01,40.00,Home Depot,2024-001\n"+
		"2024-03-02,60.00,Home Depot #4521,2024-001\n")
	report, err := NewPipeline(db.Storage, Config{}).Import(ctx, exp)
	require.NoError(t, err)

	require.Len(t, report.CreatedPayees, 1)
	created := report.CreatedPayees[0]
	assert.Equal(t, "Home Depot", created.Name)

	require.Len(t, report.Matches, 1)
	assert.Equal(t, 3, report.Matches[0].Row)
	assert.Equal(t, created.ID, report.Matches[0].Result.CandidateID)
	assert.Equal(t, model.MatchAuto, report.Matches[0].Result.MatchType)

	payees, err := db.Storage.ListPayees(ctx)
	require.NoError(t, err)
	assert.Len(t, payees, 4)

	expenses, err := db.Storage.ListUnlinkedExpenses(ctx)
	require.NoError(t, err)
	require.Len(t, expenses, 2)
	for _, e := range expenses {
		require.NotNil(t, e.PayeeID)
		assert.Equal(t, created.ID, *e.PayeeID)
	}
}

func TestPipeline_DryRunResolvesAgainstPlannedPayees(t *testing.T) {
	db := testutil.SetupTestDB(t, testutil.StandardSeed())

	exp := parseSample(t, "Date,Amount,Name,Project\n"+
		"2024-03-01,40.00,Home Depot,2024-001\n"+
		"2024-03-02,60.00,Home Depot #4521,2024-001\n")
	report, err := NewPipeline(db.Storage, Config{DryRun: true}).Import(context.Background(), exp)
	require.NoError(t, err)

	require.Len(t, report.CreatedPayees, 1)
	require.Len(t, report.Matches, 1)
	assert.Equal(t, "Home Depot", report.Matches[0].Result.CandidateName)
}

func TestPipeline_NoProjects(t *testing.T) {
	db := testutil.SetupTestDB(t, testutil.Seed{})
	_, err := NewPipeline(db.Storage, Config{}).Run(context.Background(), []model.Transaction{{Row: 1}})
	assert.ErrorIs(t, err, common.ErrNoProjects)
}

// failingStore fails expense writes for one amount.
type failingStore struct {
	service.ImportStore
	failAmount float64
}

func (s *failingStore) CreateExpense(ctx context.Context, e *model.Expense) error {
	if e.Amount == s.failAmount {
		return errors.New("disk full")
	}
	return s.ImportStore.CreateExpense(ctx, e)
}

func TestPipeline_PersistFailureDoesNotAbortBatch(t *testing.T) {
	db := testutil.SetupTestDB(t, testutil.StandardSeed())
	store := &failingStore{ImportStore: db.Storage, failAmount: 850}

	report, err := NewPipeline(store, Config{}).Import(context.Background(), parseSample(t, sampleExport))
	require.NoError(t, err)

	assert.Equal(t, StreamCounts{Imported: 2, Failed: 1}, report.Expenses)
	assert.Equal(t, StreamCounts{Imported: 1}, report.Revenues)
	require.Len(t, report.Errors, 2)
	assert.Equal(t, 8, report.Errors[0].Row)
	assert.Equal(t, StagePersist, report.Errors[0].Stage)
	assert.Equal(t, 11, report.Errors[1].Row)
}
