package importer

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/tally/internal/classify"
	"github.com/Veraticus/tally/internal/dedupe"
	"github.com/Veraticus/tally/internal/model"
)

// Stage names the step of the per-row chain that failed.
type Stage string

// Row stages.
const (
	StageParse   Stage = "parse"
	StageProject Stage = "project"
	StagePayee   Stage = "payee"
	StagePersist Stage = "persist"
)

// RowError is a per-row failure. It is recorded in the report and never aborts the batch.
type RowError struct {
	Err   error
	Stage Stage
	Row   int
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d (%s): %v", e.Row, e.Stage, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// StreamCounts splits outcomes for one record stream.
type StreamCounts struct {
	Imported int
	Failed   int
}

// Party says which reference set a name was resolved against.
type Party string

// Counterparty kinds.
const (
	PartyPayee  Party = "payee"
	PartyClient Party = "client"
)

// Match is an automatically accepted counterparty resolution.
type Match struct {
	Name   string
	Party  Party
	Result model.MatchResult
	Row    int
}

// Suggestion lists candidates that need a human to confirm.
type Suggestion struct {
	Name       string
	Party      Party
	Candidates []model.MatchResult
	Row        int
}

// Unmatched is a reference that found nothing. Only its first row is kept.
type Unmatched struct {
	Value string
	Row   int
}

// CreatedPayee is a payee inserted (or, in a dry run, that would be inserted) for an
// unknown expense counterparty.
type CreatedPayee struct {
	ID   string
	Name string
	Type model.PayeeType
	Row  int
}

// FlaggedDate is a row whose date could not be parsed and was stamped with the import time.
type FlaggedDate struct {
	Raw string
	Row int
}

// Report is the outcome of one import.
type Report struct {
	ClassificationTiers map[classify.Tier]int
	UnmatchedProjects   []Unmatched
	UnmatchedPayees     []Unmatched
	UnmatchedClients    []Unmatched
	Matches             []Match
	Suggestions         []Suggestion
	DuplicateRows       []dedupe.Duplicate
	CreatedPayees       []CreatedPayee
	FlaggedDates        []FlaggedDate
	Errors              []RowError
	Expenses            StreamCounts
	Revenues            StreamCounts
	TotalRows           int
	Parsed              int
	Duplicates          int
	Duration            time.Duration
	// DuplicateHeuristicWarning is set whenever rows were dropped as duplicates. The key
	// ignores account and memo, so distinct same-day same-amount rows for one name collapse.
	DuplicateHeuristicWarning bool
	DryRun                    bool
}

// Failed is the number of rows that were not imported because of an error.
func (r *Report) Failed() int {
	return r.Expenses.Failed + r.Revenues.Failed
}

// Imported is the number of records written (or that would be written in a dry run).
func (r *Report) Imported() int {
	return r.Expenses.Imported + r.Revenues.Imported
}

// rowOutcome is everything one row contributes to the report.
type rowOutcome struct {
	errs             []RowError
	tier             classify.Tier
	match            *Match
	suggestion       *Suggestion
	flaggedDate      *FlaggedDate
	unmatchedProject string
	unmatchedPayee   string
	unmatchedClient  string
	row              int
	revenue          bool
	persisted        bool
}

// accumulator is the single point where concurrent rows merge into the report.
type accumulator struct {
	report *Report
	seen   map[string]int
	mu     sync.Mutex
}

func newAccumulator(dryRun bool) *accumulator {
	return &accumulator{
		report: &Report{
			ClassificationTiers: make(map[classify.Tier]int),
			DryRun:              dryRun,
		},
		seen: make(map[string]int),
	}
}

func (a *accumulator) add(o rowOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := a.report
	counts := &r.Expenses
	if o.revenue {
		counts = &r.Revenues
	}
	if o.persisted {
		counts.Imported++
	} else {
		counts.Failed++
	}

	r.Errors = append(r.Errors, o.errs...)
	if o.tier != "" {
		r.ClassificationTiers[o.tier]++
	}
	if o.match != nil {
		r.Matches = append(r.Matches, *o.match)
	}
	if o.suggestion != nil {
		r.Suggestions = append(r.Suggestions, *o.suggestion)
	}
	if o.flaggedDate != nil {
		r.FlaggedDates = append(r.FlaggedDates, *o.flaggedDate)
	}
	a.addUnmatched(&r.UnmatchedProjects, "project", o.unmatchedProject, o.row)
	a.addUnmatched(&r.UnmatchedPayees, "payee", o.unmatchedPayee, o.row)
	a.addUnmatched(&r.UnmatchedClients, "client", o.unmatchedClient, o.row)
}

func (a *accumulator) addUnmatched(list *[]Unmatched, kind, value string, row int) {
	if value == "" {
		return
	}
	key := kind + "|" + strings.ToLower(value)
	if idx, ok := a.seen[key]; ok {
		if row < (*list)[idx].Row {
			(*list)[idx] = Unmatched{Value: value, Row: row}
		}
		return
	}
	a.seen[key] = len(*list)
	*list = append(*list, Unmatched{Value: value, Row: row})
}

func (a *accumulator) addCreatedPayee(p CreatedPayee) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.report.CreatedPayees = append(a.report.CreatedPayees, p)
}

// finish orders every per-row list by row so concurrent runs report deterministically.
func (a *accumulator) finish(started time.Time) *Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := a.report
	sortErrors(r.Errors)
	sort.SliceStable(r.Matches, func(i, j int) bool { return r.Matches[i].Row < r.Matches[j].Row })
	sort.SliceStable(r.Suggestions, func(i, j int) bool { return r.Suggestions[i].Row < r.Suggestions[j].Row })
	sort.SliceStable(r.CreatedPayees, func(i, j int) bool { return r.CreatedPayees[i].Row < r.CreatedPayees[j].Row })
	sort.SliceStable(r.FlaggedDates, func(i, j int) bool { return r.FlaggedDates[i].Row < r.FlaggedDates[j].Row })
	for _, list := range [][]Unmatched{r.UnmatchedProjects, r.UnmatchedPayees, r.UnmatchedClients} {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Row < list[j].Row })
	}
	r.Duration = time.Since(started)
	return r
}

func sortErrors(errs []RowError) {
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Row < errs[j].Row })
}
