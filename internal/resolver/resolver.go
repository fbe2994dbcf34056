// Package resolver links free-text counterparty names to known payees and clients.
package resolver

import (
	"sort"
	"strings"

	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/similarity"
)

// Thresholds controls when a score becomes a match or a suggestion.
type Thresholds struct {
	// Auto is the minimum confidence used without operator confirmation.
	Auto int
	// Suggest is the minimum confidence surfaced for operator review.
	Suggest int
	// MaxSuggestions caps the suggestion list.
	MaxSuggestions int
}

// DefaultThresholds returns the stock 75/40/3 thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Auto:           75,
		Suggest:        40,
		MaxSuggestions: 3,
	}
}

// Candidate is a reference entity a name can resolve to.
type Candidate struct {
	ID            string
	Name          string
	AlternateName string
}

// Resolution is the outcome of resolving one name.
type Resolution struct {
	// Best is set only when the top candidate clears the auto threshold.
	Best *model.MatchResult
	// Matches holds every candidate at or above the suggestion threshold, best first.
	Matches []model.MatchResult
	// Suggestions are the candidates below auto but at or above suggest, capped.
	Suggestions []model.MatchResult
}

// Matched reports whether a best match was found.
func (r Resolution) Matched() bool {
	return r.Best != nil
}

// Resolver scores names against candidate sets.
type Resolver struct {
	thresholds Thresholds
}

// New creates a Resolver. Zero-valued thresholds fall back to the defaults.
func New(t Thresholds) *Resolver {
	def := DefaultThresholds()
	if t.Auto <= 0 {
		t.Auto = def.Auto
	}
	if t.Suggest <= 0 {
		t.Suggest = def.Suggest
	}
	if t.MaxSuggestions <= 0 {
		t.MaxSuggestions = def.MaxSuggestions
	}
	return &Resolver{thresholds: t}
}

// Thresholds returns the resolver's effective thresholds.
func (r *Resolver) Thresholds() Thresholds {
	return r.thresholds
}

// Resolve scores name against every candidate's primary and alternate names, keeping the
// higher of the two per candidate.
func (r *Resolver) Resolve(name string, candidates []Candidate) Resolution {
	var res Resolution
	if strings.TrimSpace(name) == "" {
		return res
	}

	for _, c := range candidates {
		ratio := similarity.Ratio(name, c.Name)
		if c.AlternateName != "" {
			if alt := similarity.Ratio(name, c.AlternateName); alt > ratio {
				ratio = alt
			}
		}
		score := similarity.Confidence(ratio)
		if score < r.thresholds.Suggest {
			continue
		}
		res.Matches = append(res.Matches, model.MatchResult{
			CandidateID:   c.ID,
			CandidateName: c.Name,
			Confidence:    score,
			MatchType:     r.matchType(score, ratio == 1),
		})
	}

	sort.SliceStable(res.Matches, func(i, j int) bool {
		if res.Matches[i].Confidence != res.Matches[j].Confidence {
			return res.Matches[i].Confidence > res.Matches[j].Confidence
		}
		return res.Matches[i].CandidateName < res.Matches[j].CandidateName
	})

	if len(res.Matches) > 0 && res.Matches[0].Confidence >= r.thresholds.Auto {
		best := res.Matches[0]
		res.Best = &best
	}

	for _, m := range res.Matches {
		if m.Confidence >= r.thresholds.Auto {
			continue
		}
		if len(res.Suggestions) == r.thresholds.MaxSuggestions {
			break
		}
		res.Suggestions = append(res.Suggestions, m)
	}

	return res
}

func (r *Resolver) matchType(score int, exact bool) model.MatchType {
	switch {
	case exact:
		return model.MatchExact
	case score >= r.thresholds.Auto:
		return model.MatchAuto
	case score >= r.thresholds.Suggest:
		return model.MatchFuzzy
	default:
		return model.MatchNone
	}
}

// PayeeCandidates adapts payees for resolution.
func PayeeCandidates(payees []model.Payee) []Candidate {
	out := make([]Candidate, len(payees))
	for i, p := range payees {
		out[i] = Candidate{ID: p.ID, Name: p.Name, AlternateName: p.AlternateName}
	}
	return out
}

// ClientCandidates adapts clients for resolution.
func ClientCandidates(clients []model.Client) []Candidate {
	out := make([]Candidate, len(clients))
	for i, c := range clients {
		out[i] = Candidate{ID: c.ID, Name: c.Name, AlternateName: c.AlternateName}
	}
	return out
}
