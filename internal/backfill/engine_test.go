package backfill

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/quickbooks"
	"github.com/Veraticus/tally/internal/service"
	"github.com/Veraticus/tally/internal/testutil"
)

type fakeTokens struct {
	err   error
	calls int
}

func (f *fakeTokens) EnsureValid(_ context.Context, conn model.Connection) (model.Connection, error) {
	f.calls++
	if f.err != nil {
		return model.Connection{}, f.err
	}
	conn.AccessToken = "valid"
	return conn, nil
}

type fakeFetcher struct {
	txns  map[quickbooks.EntityType][]quickbooks.ProviderTransaction
	errOn quickbooks.EntityType
	conns []model.Connection
}

func (f *fakeFetcher) Query(_ context.Context, conn model.Connection, entity quickbooks.EntityType) ([]quickbooks.ProviderTransaction, error) {
	f.conns = append(f.conns, conn)
	if entity == f.errOn {
		return nil, &quickbooks.APIError{StatusCode: 500, EntityType: entity}
	}
	return f.txns[entity], nil
}

func day(month time.Month, d int) time.Time {
	return time.Date(2024, month, d, 0, 0, 0, 0, time.UTC)
}

func purchase(id string, date time.Time, amount float64, name string) quickbooks.ProviderTransaction {
	return quickbooks.ProviderTransaction{ID: id, EntityType: quickbooks.EntityPurchase, Date: date, Amount: amount, Name: name}
}

type fixture struct {
	db      *testutil.TestDB
	tokens  *fakeTokens
	fetcher *fakeFetcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	seed := testutil.StandardSeed()
	seed.Payees = append(seed.Payees, model.Payee{Name: "Ace Rentals", Type: model.PayeeEquipmentRental})
	db := testutil.SetupTestDB(t, seed)

	require.NoError(t, db.Storage.SaveConnection(context.Background(), &model.Connection{
		AccessToken:    "a1",
		RefreshToken:   "r1",
		RealmID:        "123145",
		Environment:    model.EnvironmentSandbox,
		TokenExpiresAt: time.Now().Add(time.Hour),
	}))

	return &fixture{
		db:      db,
		tokens:  &fakeTokens{},
		fetcher: &fakeFetcher{txns: make(map[quickbooks.EntityType][]quickbooks.ProviderTransaction)},
	}
}

func (f *fixture) expense(t *testing.T, payee string, date time.Time, amount float64) model.Expense {
	t.Helper()
	e := model.Expense{
		ProjectID:       f.db.MustProject("2024-001").ID,
		Category:        model.CategoryEquipment,
		TransactionType: model.TypeCreditCard,
		ExpenseDate:     date,
		Amount:          amount,
		Description:     "imported",
	}
	if payee != "" {
		id := f.db.MustPayee(payee).ID
		e.PayeeID = &id
	}
	require.NoError(t, f.db.Storage.CreateExpense(context.Background(), &e))
	return e
}

func (f *fixture) revenue(t *testing.T, client string, date time.Time, amount float64) model.Revenue {
	t.Helper()
	id := f.db.MustClient(client).ID
	r := model.Revenue{
		ProjectID:   f.db.MustProject("2024-001").ID,
		ClientID:    &id,
		InvoiceDate: date,
		Amount:      amount,
	}
	require.NoError(t, f.db.Storage.CreateRevenue(context.Background(), &r))
	return r
}

func (f *fixture) run(t *testing.T, dryRun bool) (*Report, error) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DryRun = dryRun
	return New(f.db.Storage, f.tokens, f.fetcher, cfg).Run(context.Background(), model.EnvironmentSandbox)
}

func (f *fixture) linkedIDs(t *testing.T) []string {
	t.Helper()
	ids, err := f.db.Storage.ListExternalTransactionIDs(context.Background())
	require.NoError(t, err)
	return ids
}

func TestRun_FuzzyNameMatchLinks(t *testing.T) {
	f := newFixture(t)
	exp := f.expense(t, "Ace Rentals", day(time.January, 5), -450)
	f.fetcher.txns[quickbooks.EntityPurchase] = []quickbooks.ProviderTransaction{
		purchase("p-77", day(time.January, 5), 450, "ACE Rentals Inc"),
	}

	dry, err := f.run(t, true)
	require.NoError(t, err)
	require.Len(t, dry.Links, 1)
	assert.Equal(t, exp.ID, dry.Links[0].RecordID)
	assert.Equal(t, "p-77", dry.Links[0].ProviderID)
	assert.Equal(t, model.MatchFuzzy, dry.Links[0].MatchType)
	assert.InDelta(t, 0.9, dry.Links[0].Confidence, 0.001)
	assert.Equal(t, StreamExpense, dry.Links[0].Stream)
	assert.True(t, dry.DryRun)
	assert.Equal(t, 0, dry.Updated())
	assert.Empty(t, f.linkedIDs(t))

	committed, err := f.run(t, false)
	require.NoError(t, err)
	assert.Equal(t, 1, committed.UpdatedExpenses)
	assert.Empty(t, committed.Errors)
	assert.Equal(t, []string{"p-77"}, f.linkedIDs(t))

	unlinked, err := f.db.Storage.ListUnlinkedExpenses(context.Background())
	require.NoError(t, err)
	assert.Empty(t, unlinked)
}

func TestRun_ExactRevenueLink(t *testing.T) {
	f := newFixture(t)
	rev := f.revenue(t, "Smith Family", day(time.February, 1), 5000)
	f.fetcher.txns[quickbooks.EntityInvoice] = []quickbooks.ProviderTransaction{
		{ID: "inv-1", EntityType: quickbooks.EntityInvoice, Date: day(time.February, 1), Amount: 5000, Name: "smith family"},
	}

	report, err := f.run(t, false)
	require.NoError(t, err)

	links := report.LinksFor(StreamRevenue)
	require.Len(t, links, 1)
	assert.Equal(t, rev.ID, links[0].RecordID)
	assert.Equal(t, model.MatchExact, links[0].MatchType)
	assert.Equal(t, quickbooks.EntityInvoice, links[0].ProviderEntity)
	assert.Equal(t, 1, report.UpdatedRevenues)
	assert.Equal(t, 0, report.UpdatedExpenses)
}

func TestRun_ExpenseNeverMatchesInvoice(t *testing.T) {
	f := newFixture(t)
	f.expense(t, "ACME Supply", day(time.March, 1), -100)
	f.fetcher.txns[quickbooks.EntityInvoice] = []quickbooks.ProviderTransaction{
		{ID: "inv-9", EntityType: quickbooks.EntityInvoice, Date: day(time.March, 1), Amount: 100, Name: "ACME Supply"},
	}

	report, err := f.run(t, false)
	require.NoError(t, err)
	assert.Empty(t, report.Links)
	assert.Equal(t, 1, report.NoKey)
}

func TestRun_NameBelowThresholdIsRejected(t *testing.T) {
	f := newFixture(t)
	f.expense(t, "ACME Supply", day(time.March, 2), -80)
	f.fetcher.txns[quickbooks.EntityBill] = []quickbooks.ProviderTransaction{
		{ID: "b-1", EntityType: quickbooks.EntityBill, Date: day(time.March, 2), Amount: 80, Name: "Totally Different Co"},
	}

	report, err := f.run(t, false)
	require.NoError(t, err)
	assert.Empty(t, report.Links)
	require.Len(t, report.Rejected, 1)
	assert.Equal(t, "b-1", report.Rejected[0].ProviderID)
	assert.Less(t, report.Rejected[0].Confidence, 0.8)
	assert.Empty(t, f.linkedIDs(t))
}

func TestRun_ProviderTransactionLinksOnce(t *testing.T) {
	f := newFixture(t)
	first := f.expense(t, "Ace Rentals", day(time.January, 5), -450)
	f.expense(t, "Ace Rentals", day(time.January, 5), -450)
	f.fetcher.txns[quickbooks.EntityPurchase] = []quickbooks.ProviderTransaction{
		purchase("p-77", day(time.January, 5), 450, "Ace Rentals"),
	}

	report, err := f.run(t, false)
	require.NoError(t, err)
	require.Len(t, report.Links, 1)
	assert.Equal(t, first.ID, report.Links[0].RecordID)
	assert.Equal(t, 2, report.Examined)
	assert.Equal(t, 1, report.NoKey)
	assert.Equal(t, 1, report.UpdatedExpenses)
}

func TestRun_KeyCollisionFirstWins(t *testing.T) {
	f := newFixture(t)
	f.expense(t, "Ace Rentals", day(time.January, 5), -450)
	f.fetcher.txns[quickbooks.EntityBill] = []quickbooks.ProviderTransaction{
		{ID: "b-1", EntityType: quickbooks.EntityBill, Date: day(time.January, 5), Amount: 450, Name: "Ace Rentals"},
	}
	f.fetcher.txns[quickbooks.EntityPurchase] = []quickbooks.ProviderTransaction{
		purchase("p-1", day(time.January, 5), 450, "Ace Rentals"),
	}

	report, err := f.run(t, true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.KeyCollisions)
	require.Len(t, report.Links, 1)
	assert.Equal(t, "b-1", report.Links[0].ProviderID)
	assert.Equal(t, 1, report.Fetched[quickbooks.EntityBill])
	assert.Equal(t, 1, report.Fetched[quickbooks.EntityPurchase])
	assert.Equal(t, 0, report.Fetched[quickbooks.EntityInvoice])
}

func TestRun_RerunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.expense(t, "Ace Rentals", day(time.January, 5), -450)
	f.expense(t, "ACME Supply", day(time.January, 6), -20)
	f.fetcher.txns[quickbooks.EntityPurchase] = []quickbooks.ProviderTransaction{
		purchase("p-77", day(time.January, 5), 450, "ACE Rentals Inc"),
	}

	first, err := f.run(t, false)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Updated())

	second, err := f.run(t, false)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Updated())
	assert.Empty(t, second.Links)
	assert.Equal(t, 1, second.AlreadyLinked)
	assert.Equal(t, 1, second.Examined)
	assert.Equal(t, []string{"p-77"}, f.linkedIDs(t))
}

func TestRun_FallsBackToDescription(t *testing.T) {
	f := newFixture(t)
	exp := model.Expense{
		ProjectID:       f.db.MustProject("MISC").ID,
		Category:        model.CategoryOther,
		TransactionType: model.TypeCheck,
		ExpenseDate:     day(time.April, 9),
		Amount:          -75,
		Description:     "City Permits Office",
	}
	require.NoError(t, f.db.Storage.CreateExpense(context.Background(), &exp))
	f.fetcher.txns[quickbooks.EntityPurchase] = []quickbooks.ProviderTransaction{
		purchase("p-5", day(time.April, 9), 75, "City Permits Office"),
	}

	report, err := f.run(t, true)
	require.NoError(t, err)
	require.Len(t, report.Links, 1)
	assert.Equal(t, "City Permits Office", report.Links[0].InternalName)
	assert.Equal(t, model.MatchExact, report.Links[0].MatchType)
}

func TestRun_AuthFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.tokens.err = fmt.Errorf("%w: token refresh failed", common.ErrAuthExpired)

	report, err := f.run(t, false)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, common.ErrAuthExpired)
	assert.Empty(t, f.fetcher.conns)
}

func TestRun_NoConnection(t *testing.T) {
	f := newFixture(t)

	cfg := DefaultConfig()
	_, err := New(f.db.Storage, f.tokens, f.fetcher, cfg).Run(context.Background(), model.EnvironmentProduction)
	assert.ErrorIs(t, err, common.ErrNoConnection)
	assert.Equal(t, 0, f.tokens.calls)
}

func TestRun_FetchErrorIsFatal(t *testing.T) {
	f := newFixture(t)
	f.expense(t, "Ace Rentals", day(time.January, 5), -450)
	f.fetcher.errOn = quickbooks.EntityPurchase

	_, err := f.run(t, false)
	assert.ErrorIs(t, err, common.ErrProviderAPI)
	assert.Empty(t, f.linkedIDs(t))
}

func TestRun_QueriesUseEnsuredConnection(t *testing.T) {
	f := newFixture(t)

	_, err := f.run(t, true)
	require.NoError(t, err)
	require.Len(t, f.fetcher.conns, 3)
	for _, c := range f.fetcher.conns {
		assert.Equal(t, "valid", c.AccessToken)
	}
}

// failingLinks rejects writes for one record id.
type failingLinks struct {
	service.BackfillStore
	failID string
}

func (s *failingLinks) SetExpenseExternalID(ctx context.Context, id, externalID string) error {
	if id == s.failID {
		return errors.New("disk full")
	}
	return s.BackfillStore.SetExpenseExternalID(ctx, id, externalID)
}

func TestRun_WriteFailuresAreCollected(t *testing.T) {
	f := newFixture(t)
	bad := f.expense(t, "Ace Rentals", day(time.January, 5), -450)
	f.expense(t, "ACME Supply", day(time.January, 6), -20)
	f.fetcher.txns[quickbooks.EntityPurchase] = []quickbooks.ProviderTransaction{
		purchase("p-1", day(time.January, 5), 450, "Ace Rentals"),
		purchase("p-2", day(time.January, 6), 20, "ACME Supply"),
	}

	store := &failingLinks{BackfillStore: f.db.Storage, failID: bad.ID}
	cfg := DefaultConfig()
	cfg.DryRun = false
	report, err := New(store, f.tokens, f.fetcher, cfg).Run(context.Background(), model.EnvironmentSandbox)
	require.NoError(t, err)

	assert.Len(t, report.Links, 2)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, bad.ID, report.Errors[0].RecordID)
	assert.Equal(t, 1, report.UpdatedExpenses)
	assert.Equal(t, []string{"p-2"}, f.linkedIDs(t))
}

func TestRun_OnRecordProgress(t *testing.T) {
	f := newFixture(t)
	f.expense(t, "Ace Rentals", day(time.January, 5), -450)
	f.revenue(t, "Smith Family", day(time.January, 7), 900)

	calls := 0
	cfg := DefaultConfig()
	cfg.OnRecord = func() { calls++ }
	report, err := New(f.db.Storage, f.tokens, f.fetcher, cfg).Run(context.Background(), model.EnvironmentSandbox)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Examined)
	assert.Equal(t, 2, calls)
}

func TestRun_MatchesAlternateName(t *testing.T) {
	f := newFixture(t)
	exp := f.expense(t, "Bob's Electric", day(time.May, 3), -1800)
	f.fetcher.txns[quickbooks.EntityBill] = []quickbooks.ProviderTransaction{
		{ID: "b-9", EntityType: quickbooks.EntityBill, Date: day(time.May, 3), Amount: 1800, Name: "Bob Electric LLC"},
	}

	report, err := f.run(t, true)
	require.NoError(t, err)
	require.Len(t, report.Links, 1)
	assert.Equal(t, exp.ID, report.Links[0].RecordID)
	assert.Equal(t, "Bob's Electric", report.Links[0].InternalName)
	assert.Equal(t, model.MatchExact, report.Links[0].MatchType)
}
