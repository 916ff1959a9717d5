package types

import (
	"fmt"
	"strings"
)

// Severity classifies how urgent a finding is
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Rank orders severities for display (critical first). Unknown severities
// sort last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	}
	return 4
}

// Category classifies the area of the codebase a finding concerns
type Category string

const (
	CategorySecurity     Category = "security"
	CategoryPerformance  Category = "performance"
	CategoryCodeQuality  Category = "code-quality"
	CategoryDependencies Category = "dependencies"
	CategoryTesting      Category = "testing"
	CategoryArchitecture Category = "architecture"
)

// IsValid checks if the category value is valid
func (c Category) IsValid() bool {
	switch c {
	case CategorySecurity, CategoryPerformance, CategoryCodeQuality,
		CategoryDependencies, CategoryTesting, CategoryArchitecture:
		return true
	}
	return false
}

// ExpectedCategories returns the fixed set of categories a complete analysis
// is expected to cover, in report order. Gap analysis and completeness
// scoring iterate this list, so the order must stay stable.
func ExpectedCategories() []Category {
	return []Category{
		CategorySecurity,
		CategoryPerformance,
		CategoryCodeQuality,
		CategoryDependencies,
		CategoryTesting,
		CategoryArchitecture,
	}
}

// Location pinpoints a finding within the repository
type Location struct {
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
}

// IsZero reports whether the location carries no information
func (l Location) IsZero() bool {
	return l.File == "" && l.Line == 0
}

// Complete reports whether the location carries both a file and a positive
// line number. Only complete locations count toward the located-findings
// portion of the completeness score.
func (l Location) Complete() bool {
	return l.File != "" && l.Line > 0
}

// String renders the location as "file:line" (or just the file when no line
// is known)
func (l Location) String() string {
	if l.File == "" {
		return ""
	}
	if l.Line <= 0 {
		return l.File
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// descriptionKeyLength is the number of leading characters of a description
// that serve as a fallback identity key during deduplication.
const descriptionKeyLength = 50

// Issue is a single finding reported by the analysis service.
//
// Severity and Category may be empty on freshly normalized data when the
// upstream response did not state them; the parser chain fills them in
// (keyword inference, then documented defaults) before an issue leaves the
// parsing stage.
type Issue struct {
	Title          string   `json:"title,omitempty"`
	Description    string   `json:"description,omitempty"`
	Severity       Severity `json:"severity,omitempty"`
	Category       Category `json:"category,omitempty"`
	Location       Location `json:"location,omitempty"`
	CodeSnippet    string   `json:"code_snippet,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
	Confidence     int      `json:"confidence,omitempty"` // 0-100
}

// Meaningful reports whether the issue carries enough information to keep.
// An issue with neither a complete location nor a description identifies
// nothing and is dropped before it reaches the merge stage.
func (i *Issue) Meaningful() bool {
	return i.Location.Complete() || strings.TrimSpace(i.Description) != ""
}

// Located reports whether the issue points at a concrete file and line
func (i *Issue) Located() bool {
	return i.Location.Complete()
}

// TitleKey returns the exact-title identity key, or "" when the issue has
// no title.
func (i *Issue) TitleKey() string {
	return i.Title
}

// LocationKey returns the "file:line" identity key, or "" when the issue
// has no complete location.
func (i *Issue) LocationKey() string {
	if !i.Location.Complete() {
		return ""
	}
	return i.Location.String()
}

// DescriptionKey returns the truncated-description identity key: the first
// 50 characters of the description, or "" when the description is empty.
func (i *Issue) DescriptionKey() string {
	d := i.Description
	if d == "" {
		return ""
	}
	r := []rune(d)
	if len(r) <= descriptionKeyLength {
		return d
	}
	return string(r[:descriptionKeyLength])
}

// DependencyInfo describes one dependency entry in the outdated, vulnerable,
// or deprecated lists. Name is the identity key when merging lists.
type DependencyInfo struct {
	Name     string   `json:"name"`
	Current  string   `json:"current,omitempty"`
	Latest   string   `json:"latest,omitempty"`
	Severity Severity `json:"severity,omitempty"`
	Advisory string   `json:"advisory,omitempty"`
}

// DependencyReport aggregates dependency health for the repository
type DependencyReport struct {
	Total      int              `json:"total,omitempty"`
	Direct     int              `json:"direct,omitempty"`
	Outdated   []DependencyInfo `json:"outdated,omitempty"`
	Vulnerable []DependencyInfo `json:"vulnerable,omitempty"`
	Deprecated []DependencyInfo `json:"deprecated,omitempty"`
}

// IsZero reports whether the report carries no dependency data at all
func (d *DependencyReport) IsZero() bool {
	if d == nil {
		return true
	}
	return d.Total == 0 && d.Direct == 0 &&
		len(d.Outdated) == 0 && len(d.Vulnerable) == 0 && len(d.Deprecated) == 0
}

// BreakingChange records an API or behavior break detected between versions.
// Title is the identity key when merging lists.
type BreakingChange struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	File        string `json:"file,omitempty"`
	Migration   string `json:"migration,omitempty"`
}

// AnalysisResult is the accumulating state for one analysis run of one
// repository and branch. It is created empty, grown by the merge engine
// after each iteration, and frozen once the iteration controller stops.
//
// Issues are deduplicated by composite identity (title, file:line, or
// description prefix); their order reflects discovery order across
// iterations. The remaining fields are free-form sub-reports merged
// independently of the issue list.
type AnalysisResult struct {
	Issues          []Issue            `json:"issues"`
	TestCoverage    map[string]float64 `json:"test_coverage,omitempty"`
	Dependencies    *DependencyReport  `json:"dependencies,omitempty"`
	BreakingChanges []BreakingChange   `json:"breaking_changes,omitempty"`
	Architecture    map[string]any     `json:"architecture,omitempty"`
	TeamMetrics     map[string]any     `json:"team_metrics,omitempty"`
	Documentation   map[string]any     `json:"documentation,omitempty"`
	Scores          map[string]any     `json:"scores,omitempty"`
}

// NewAnalysisResult returns an empty result ready for accumulation
func NewAnalysisResult() *AnalysisResult {
	return &AnalysisResult{}
}

// CountByCategory tallies issues per category
func (r *AnalysisResult) CountByCategory() map[Category]int {
	counts := make(map[Category]int)
	for _, issue := range r.Issues {
		counts[issue.Category]++
	}
	return counts
}

// CountBySeverity tallies issues per severity
func (r *AnalysisResult) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int)
	for _, issue := range r.Issues {
		counts[issue.Severity]++
	}
	return counts
}

// LocatedCount returns how many issues carry a complete file:line location
func (r *AnalysisResult) LocatedCount() int {
	n := 0
	for i := range r.Issues {
		if r.Issues[i].Located() {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the result. The merge engine clones the
// existing result before folding a partial in, so callers never observe a
// half-merged state.
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	out := &AnalysisResult{}
	if r.Issues != nil {
		out.Issues = make([]Issue, len(r.Issues))
		copy(out.Issues, r.Issues)
	}
	if r.TestCoverage != nil {
		out.TestCoverage = make(map[string]float64, len(r.TestCoverage))
		for k, v := range r.TestCoverage {
			out.TestCoverage[k] = v
		}
	}
	if r.Dependencies != nil {
		dep := *r.Dependencies
		dep.Outdated = append([]DependencyInfo(nil), r.Dependencies.Outdated...)
		dep.Vulnerable = append([]DependencyInfo(nil), r.Dependencies.Vulnerable...)
		dep.Deprecated = append([]DependencyInfo(nil), r.Dependencies.Deprecated...)
		out.Dependencies = &dep
	}
	if r.BreakingChanges != nil {
		out.BreakingChanges = append([]BreakingChange(nil), r.BreakingChanges...)
	}
	out.Architecture = copyTree(r.Architecture)
	out.TeamMetrics = copyTree(r.TeamMetrics)
	out.Documentation = copyTree(r.Documentation)
	out.Scores = copyTree(r.Scores)
	return out
}

// copyTree deep-copies a JSON-shaped map (maps, slices, and scalars)
func copyTree(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyTreeValue(v)
	}
	return out
}

func copyTreeValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return copyTree(tv)
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = copyTreeValue(e)
		}
		return out
	default:
		return v
	}
}
