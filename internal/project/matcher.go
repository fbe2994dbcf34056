// Package project resolves an export's project/job reference to an internal project.
package project

import (
	"strings"

	"github.com/Veraticus/tally/internal/model"
)

// Method records how a project was chosen.
type Method string

// Match methods.
const (
	MethodExact   Method = "exact"
	MethodPrefix  Method = "prefix"
	MethodDefault Method = "default"
)

// placeholders are references that never name a real project.
var placeholders = map[string]bool{
	"":      true,
	"tools": true,
	"split": true,
}

var defaultProjectHints = []string{"misc", "general", "tool"}

// Result is the outcome of matching one reference.
type Result struct {
	// Project is nil only when the matcher was built with no projects.
	Project *model.Project
	Method  Method
	// IsDefault is true when the reference did not resolve and the default project was used.
	IsDefault bool
	// Unmatched is true when a non-placeholder reference found no project.
	Unmatched bool
}

// Matcher matches references against a fixed project set. Safe for concurrent use.
type Matcher struct {
	byNumber map[string]*model.Project
	projects []model.Project
	def      *model.Project
}

// NewMatcher indexes projects by number and picks the default project.
func NewMatcher(projects []model.Project) *Matcher {
	m := &Matcher{
		projects: projects,
		byNumber: make(map[string]*model.Project, len(projects)),
	}
	for i := range m.projects {
		p := &m.projects[i]
		key := strings.ToLower(strings.TrimSpace(p.Number))
		if _, exists := m.byNumber[key]; !exists && key != "" {
			m.byNumber[key] = p
		}
	}
	m.def = m.pickDefault()
	return m
}

// Default returns the designated unassigned project, or nil if there are no projects.
func (m *Matcher) Default() *model.Project {
	return m.def
}

// Match resolves a reference: exact number, then shared PREFIX for PREFIX-SUFFIX references,
// then the default project. Unmatched references still get the default so the row is kept.
func (m *Matcher) Match(reference string) Result {
	ref := strings.ToLower(strings.TrimSpace(reference))
	if placeholders[ref] {
		return Result{Project: m.def, Method: MethodDefault, IsDefault: true}
	}

	if p, ok := m.byNumber[ref]; ok {
		return Result{Project: p, Method: MethodExact}
	}

	if prefix, suffix, found := strings.Cut(ref, "-"); found && prefix != "" && suffix != "" {
		for i := range m.projects {
			p := &m.projects[i]
			if strings.ToLower(p.NumberPrefix()) == prefix {
				return Result{Project: p, Method: MethodPrefix}
			}
		}
	}

	return Result{Project: m.def, Method: MethodDefault, IsDefault: true, Unmatched: true}
}

func (m *Matcher) pickDefault() *model.Project {
	if len(m.projects) == 0 {
		return nil
	}
	for i := range m.projects {
		name := strings.ToLower(m.projects[i].Name)
		for _, hint := range defaultProjectHints {
			if strings.Contains(name, hint) {
				return &m.projects[i]
			}
		}
	}
	return &m.projects[0]
}
