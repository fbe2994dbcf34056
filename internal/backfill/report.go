package backfill

import (
	"time"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/quickbooks"
)

// Stream says which internal table a record lives in.
type Stream string

// Record streams.
const (
	StreamExpense Stream = "expense"
	StreamRevenue Stream = "revenue"
)

// Link is a confirmed pairing of an internal record with a provider transaction.
type Link struct {
	RecordID       string
	ProviderID     string
	ProviderEntity quickbooks.EntityType
	InternalName   string
	ProviderName   string
	Stream         Stream
	MatchType      model.MatchType
	Confidence     float64
}

// Rejection is a record whose date and amount matched a provider transaction but whose
// counterparty name did not.
type Rejection struct {
	RecordID     string
	ProviderID   string
	InternalName string
	ProviderName string
	Stream       Stream
	Confidence   float64
}

// LinkError is a confirmed link that could not be written.
type LinkError struct {
	Err        error
	RecordID   string
	ProviderID string
	Stream     Stream
}

func (e LinkError) Error() string {
	return string(e.Stream) + " " + e.RecordID + " -> " + e.ProviderID + ": " + e.Err.Error()
}

func (e LinkError) Unwrap() error {
	return e.Err
}

// Report summarizes one backfill run.
type Report struct {
	Fetched     map[quickbooks.EntityType]int
	Environment model.Environment
	Links       []Link
	Rejected    []Rejection
	Errors      []LinkError
	Duration    time.Duration

	// Examined counts internal records that lacked an external id.
	Examined int
	// NoKey counts examined records with no unclaimed provider transaction on the same date
	// and amount.
	NoKey int
	// KeyCollisions counts provider transactions dropped because an earlier one held the key.
	KeyCollisions int
	// AlreadyLinked counts provider transactions skipped because a record already carries
	// their id.
	AlreadyLinked   int
	UpdatedExpenses int
	UpdatedRevenues int
	DryRun          bool
}

// Updated is the number of records whose external id this run wrote.
func (r *Report) Updated() int {
	return r.UpdatedExpenses + r.UpdatedRevenues
}

// LinksFor returns the links of one stream.
func (r *Report) LinksFor(stream Stream) []Link {
	var out []Link
	for _, l := range r.Links {
		if l.Stream == stream {
			out = append(out, l)
		}
	}
	return out
}
