// Package classify assigns expense categories through an ordered fallback chain:
// operator account mappings, the built-in account table, description keywords, then "other".
package classify

import (
	"strings"

	"github.com/Veraticus/tally/internal/model"
)

// Tier identifies which step of the chain produced a category.
type Tier string

// Classification tiers, highest priority first.
const (
	TierMapping Tier = "mapping"
	TierStatic  Tier = "static"
	TierKeyword Tier = "keyword"
	TierDefault Tier = "default"
)

// Tiers lists every tier in priority order.
func Tiers() []Tier {
	return []Tier{TierMapping, TierStatic, TierKeyword, TierDefault}
}

// Result is a classification with the tier that decided it.
type Result struct {
	Category model.Category
	Tier     Tier
	// Rule is the mapping path or keyword that matched; empty for the default tier.
	Rule string
}

// Classifier resolves categories. It is safe for concurrent use once built.
type Classifier struct {
	mappings map[string]model.Category
}

// New builds a classifier from the persisted account mappings. Inactive mappings are ignored.
func New(mappings []model.AccountMapping) *Classifier {
	c := &Classifier{mappings: make(map[string]model.Category, len(mappings))}
	for _, m := range mappings {
		if !m.IsActive {
			continue
		}
		key := normalizePath(m.QBAccountFullPath)
		if key == "" {
			continue
		}
		c.mappings[key] = m.InternalCategory
	}
	return c
}

// Classify returns the first hit of the chain for the given description and account path.
func (c *Classifier) Classify(description, accountPath string) Result {
	path := normalizePath(accountPath)

	if path != "" {
		if cat, ok := c.mappings[path]; ok {
			return Result{Category: cat, Tier: TierMapping, Rule: accountPath}
		}
		if rule, ok := matchRules(staticAccountRules, path); ok {
			return Result{Category: rule.category, Tier: TierStatic, Rule: rule.substring}
		}
	}

	if rule, ok := matchRules(keywordRules, strings.ToLower(description)); ok {
		return Result{Category: rule.category, Tier: TierKeyword, Rule: rule.substring}
	}

	return Result{Category: model.CategoryOther, Tier: TierDefault}
}

func normalizePath(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}
