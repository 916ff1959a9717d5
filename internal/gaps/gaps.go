// Package gaps measures how complete an accumulated analysis result is and
// names the deficiencies the next iteration should chase.
package gaps

import (
	"fmt"

	"github.com/alpsla/codequal/internal/types"
)

// GapType classifies a detected deficiency
type GapType string

const (
	// GapNoIssues means the result contains no issues at all
	GapNoIssues GapType = "no_issues"
	// GapMissingCategory means an expected category has no issues
	GapMissingCategory GapType = "missing_category"
	// GapLowCategoryCount means a category is present but below its
	// expected minimum
	GapLowCategoryCount GapType = "low_category_count"
	// GapUnlocatedIssues means issues lack a file and line location
	GapUnlocatedIssues GapType = "unlocated_issues"
)

// Gap is one detected deficiency in the accumulated result
type Gap struct {
	Type        GapType        `json:"type"`
	Category    types.Category `json:"category,omitempty"`
	Description string         `json:"description"`
	Critical    bool           `json:"critical"`
}

// Analysis is the derived completeness picture for one result. It is
// recomputed from scratch every iteration and never persisted.
type Analysis struct {
	Completeness float64 `json:"completeness"` // 0-100
	TotalGaps    int     `json:"total_gaps"`
	CriticalGaps int     `json:"critical_gaps"`
	Gaps         []Gap   `json:"gaps,omitempty"`
}

// IsComplete reports whether the result has converged: completeness meets
// the configured threshold and no critical gaps remain.
func (a *Analysis) IsComplete(minCompleteness float64) bool {
	return a.Completeness >= minCompleteness && a.CriticalGaps == 0
}

// Completeness weights. Category presence dominates because a category the
// service never mentioned is the strongest signal the analysis is partial.
const (
	categoryPresenceWeight = 60.0
	categoryCountWeight    = 20.0
	locationWeight         = 20.0

	// locationTarget is the located-issue count that earns full location
	// credit. Scoring against a fixed target instead of the located
	// fraction keeps completeness from dropping when an iteration adds
	// valid but unlocated findings.
	locationTarget = 10
)

// minimumCounts is the expected minimum number of issues per category. A
// real repository essentially always has at least this much to report, so
// falling short marks the category as under-analyzed.
var minimumCounts = map[types.Category]int{
	types.CategorySecurity:     2,
	types.CategoryCodeQuality:  2,
	types.CategoryPerformance:  1,
	types.CategoryDependencies: 1,
	types.CategoryTesting:      1,
	types.CategoryArchitecture: 1,
}

// Analyze computes the completeness score and gap list for a result. It is
// a pure function: identical inputs always produce identical output, and
// the input is never modified.
func Analyze(result *types.AnalysisResult) *Analysis {
	analysis := &Analysis{}
	if result == nil {
		result = types.NewAnalysisResult()
	}

	counts := result.CountByCategory()
	located := result.LocatedCount()
	expected := types.ExpectedCategories()

	if len(result.Issues) == 0 {
		analysis.Gaps = append(analysis.Gaps, Gap{
			Type:        GapNoIssues,
			Description: "no issues collected yet",
			Critical:    true,
		})
	}

	present := 0
	meetingMinimum := 0
	for _, category := range expected {
		count := counts[category]
		minimum := minimumCounts[category]

		if count == 0 {
			analysis.Gaps = append(analysis.Gaps, Gap{
				Type:        GapMissingCategory,
				Category:    category,
				Description: fmt.Sprintf("no %s issues reported", category),
				Critical:    category == types.CategorySecurity,
			})
			continue
		}
		present++

		if count < minimum {
			analysis.Gaps = append(analysis.Gaps, Gap{
				Type:        GapLowCategoryCount,
				Category:    category,
				Description: fmt.Sprintf("only %d %s issue(s) reported, expected at least %d", count, category, minimum),
			})
			continue
		}
		meetingMinimum++
	}

	if unlocated := len(result.Issues) - located; unlocated > 0 {
		analysis.Gaps = append(analysis.Gaps, Gap{
			Type:        GapUnlocatedIssues,
			Description: fmt.Sprintf("%d issue(s) lack a file and line location", unlocated),
		})
	}

	analysis.Completeness = score(present, meetingMinimum, located, len(expected))
	analysis.TotalGaps = len(analysis.Gaps)
	for _, gap := range analysis.Gaps {
		if gap.Critical {
			analysis.CriticalGaps++
		}
	}
	return analysis
}

func score(present, meetingMinimum, located, expectedCategories int) float64 {
	presence := float64(present) / float64(expectedCategories) * categoryPresenceWeight
	thresholds := float64(meetingMinimum) / float64(expectedCategories) * categoryCountWeight

	cappedLocated := located
	if cappedLocated > locationTarget {
		cappedLocated = locationTarget
	}
	location := float64(cappedLocated) / float64(locationTarget) * locationWeight

	total := presence + thresholds + location
	if total > 100 {
		total = 100
	}
	if total < 0 {
		total = 0
	}
	return total
}
