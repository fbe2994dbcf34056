package model

// MatchType tags how a counterparty candidate was matched.
type MatchType string

// Match types.
const (
	MatchExact MatchType = "exact"
	MatchAuto  MatchType = "auto"
	MatchFuzzy MatchType = "fuzzy"
	MatchNone  MatchType = "none"
)

// MatchResult scores one reference entity against a free-text name.
type MatchResult struct {
	CandidateID   string
	CandidateName string
	MatchType     MatchType
	Confidence    int
}
