package report

import (
	"github.com/alpsla/codequal/internal/merge"
	"github.com/alpsla/codequal/internal/types"
)

// Comparison classifies head-branch issues against a base branch.
type Comparison struct {
	// New issues appear in head but match nothing in base.
	New []types.Issue `json:"new"`

	// Resolved issues appear in base but match nothing in head.
	Resolved []types.Issue `json:"resolved"`

	// Persisting issues appear in both. The head copy is kept, since it
	// reflects the current state of the code.
	Persisting []types.Issue `json:"persisting"`
}

// Diff classifies issues between two analysis results using the merge
// engine's multi-key identity rule (exact title, exact file:line, or
// shared description prefix). Either result may be nil and is treated
// as empty.
func Diff(base, head *types.AnalysisResult) Comparison {
	var baseIssues, headIssues []types.Issue
	if base != nil {
		baseIssues = base.Issues
	}
	if head != nil {
		headIssues = head.Issues
	}

	inBase := merge.NewIssueMatcher(baseIssues)
	inHead := merge.NewIssueMatcher(headIssues)

	var cmp Comparison
	for i := range headIssues {
		if inBase.Matches(&headIssues[i]) {
			cmp.Persisting = append(cmp.Persisting, headIssues[i])
		} else {
			cmp.New = append(cmp.New, headIssues[i])
		}
	}
	for i := range baseIssues {
		if !inHead.Matches(&baseIssues[i]) {
			cmp.Resolved = append(cmp.Resolved, baseIssues[i])
		}
	}

	SortBySeverity(cmp.New)
	SortBySeverity(cmp.Resolved)
	SortBySeverity(cmp.Persisting)
	return cmp
}
