// Package merge folds partial analysis results into the accumulated result
// for a run.
//
// Issue identity is multi-key: two issues are the same when they share an
// exact title, an exact file:line pair, or the first 50 characters of their
// descriptions. Matched issues reconcile field-by-field with a
// non-empty-wins rule; unmatched issues append in discovery order. Merging
// is pure: inputs are never mutated and the same pair of inputs always
// produces the same output.
package merge

import (
	"github.com/alpsla/codequal/internal/types"
)

// issueIndex locates accumulated issues by each identity key. Keys are
// checked in a fixed order (title, then location, then description prefix)
// so an incoming issue that matches different accumulated issues on
// different keys resolves deterministically.
type issueIndex struct {
	byTitle    map[string]int
	byLocation map[string]int
	byPrefix   map[string]int
}

func buildIssueIndex(issues []types.Issue) *issueIndex {
	idx := &issueIndex{
		byTitle:    make(map[string]int),
		byLocation: make(map[string]int),
		byPrefix:   make(map[string]int),
	}
	for i := range issues {
		idx.add(&issues[i], i)
	}
	return idx
}

// add registers an issue's keys. Existing entries are never displaced:
// the first issue seen under a key owns it.
func (idx *issueIndex) add(issue *types.Issue, position int) {
	if key := issue.TitleKey(); key != "" {
		if _, taken := idx.byTitle[key]; !taken {
			idx.byTitle[key] = position
		}
	}
	if key := issue.LocationKey(); key != "" {
		if _, taken := idx.byLocation[key]; !taken {
			idx.byLocation[key] = position
		}
	}
	if key := issue.DescriptionKey(); key != "" {
		if _, taken := idx.byPrefix[key]; !taken {
			idx.byPrefix[key] = position
		}
	}
}

func (idx *issueIndex) find(issue *types.Issue) (int, bool) {
	if key := issue.TitleKey(); key != "" {
		if i, ok := idx.byTitle[key]; ok {
			return i, true
		}
	}
	if key := issue.LocationKey(); key != "" {
		if i, ok := idx.byLocation[key]; ok {
			return i, true
		}
	}
	if key := issue.DescriptionKey(); key != "" {
		if i, ok := idx.byPrefix[key]; ok {
			return i, true
		}
	}
	return 0, false
}

// IssueMatcher answers identity queries against a fixed set of issues,
// using the same multi-key rule the merge applies. Branch comparison uses
// it to classify issues as new, resolved, or persisting between two runs.
type IssueMatcher struct {
	idx *issueIndex
}

// NewIssueMatcher indexes a set of issues for identity lookups.
func NewIssueMatcher(issues []types.Issue) *IssueMatcher {
	return &IssueMatcher{idx: buildIssueIndex(issues)}
}

// Matches reports whether the issue shares an identity key with any
// indexed issue.
func (m *IssueMatcher) Matches(issue *types.Issue) bool {
	_, ok := m.idx.find(issue)
	return ok
}

// Results merges an incoming partial result into the accumulated result and
// returns a new result; neither input is modified. A nil existing result is
// treated as empty, a nil incoming result returns a clone of existing.
func Results(existing, incoming *types.AnalysisResult) *types.AnalysisResult {
	var out *types.AnalysisResult
	if existing == nil {
		out = types.NewAnalysisResult()
	} else {
		out = existing.Clone()
	}
	if incoming == nil {
		return out
	}

	mergeIssues(out, incoming.Issues)

	out.TestCoverage = mergeCoverage(out.TestCoverage, incoming.TestCoverage)
	out.Dependencies = mergeDependencies(out.Dependencies, incoming.Dependencies)
	out.BreakingChanges = mergeBreakingChanges(out.BreakingChanges, incoming.BreakingChanges)
	out.Architecture = deepMerge(out.Architecture, incoming.Architecture)
	out.TeamMetrics = deepMerge(out.TeamMetrics, incoming.TeamMetrics)
	out.Documentation = deepMerge(out.Documentation, incoming.Documentation)
	out.Scores = deepMerge(out.Scores, incoming.Scores)

	return out
}

// mergeIssues matches each incoming issue against the accumulated set.
// Matches update the accumulated issue in place, preserving its position;
// new issues append at the end. The index is maintained incrementally so
// duplicates within the incoming batch also collapse.
func mergeIssues(out *types.AnalysisResult, incoming []types.Issue) {
	idx := buildIssueIndex(out.Issues)

	for i := range incoming {
		in := &incoming[i]
		if position, ok := idx.find(in); ok {
			reconcileIssue(&out.Issues[position], in)
			// Reconciliation can introduce keys the issue did not have
			// before (a title filled in, a location completed).
			idx.add(&out.Issues[position], position)
			continue
		}
		out.Issues = append(out.Issues, *in)
		idx.add(&out.Issues[len(out.Issues)-1], len(out.Issues)-1)
	}
}

// reconcileIssue applies the non-empty-wins rule: an incoming non-empty
// field overwrites, an incoming empty field never erases. Location merges
// per-field with the same precedence.
func reconcileIssue(existing, incoming *types.Issue) {
	if incoming.Title != "" {
		existing.Title = incoming.Title
	}
	if incoming.Description != "" {
		existing.Description = incoming.Description
	}
	if incoming.Severity != "" {
		existing.Severity = incoming.Severity
	}
	if incoming.Category != "" {
		existing.Category = incoming.Category
	}
	if incoming.CodeSnippet != "" {
		existing.CodeSnippet = incoming.CodeSnippet
	}
	if incoming.Recommendation != "" {
		existing.Recommendation = incoming.Recommendation
	}
	if incoming.Confidence != 0 {
		existing.Confidence = incoming.Confidence
	}
	if incoming.Location.File != "" {
		existing.Location.File = incoming.Location.File
	}
	if incoming.Location.Line > 0 {
		existing.Location.Line = incoming.Location.Line
	}
}
