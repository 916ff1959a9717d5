// Package report renders finished analysis results for humans and
// machines. Markdown gets the sections a person reads: summary counts,
// issues grouped by category in severity order, coverage, dependency
// health, breaking changes, and scores. JSON is the full result,
// indented. Free-form sub-reports (architecture, team metrics,
// documentation) appear only in the JSON rendering.
//
// Everything here is a pure function over the result; rendering never
// mutates it.
package report

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alpsla/codequal/internal/types"
)

// Meta carries run-level context the Markdown header displays alongside
// the findings. Zero-value fields are omitted from the header.
type Meta struct {
	RepositoryURL string
	Branch        string
	RunID         string
	GeneratedAt   time.Time
	Iterations    int
	Duration      time.Duration
	Completeness  float64
	StopReason    string
	Degraded      bool
}

// Markdown renders the result as a Markdown report.
func Markdown(result *types.AnalysisResult, meta Meta) string {
	if result == nil {
		result = types.NewAnalysisResult()
	}

	var sb strings.Builder

	sb.WriteString("# Code Analysis Report\n\n")
	if meta.RepositoryURL != "" {
		sb.WriteString(fmt.Sprintf("**Repository:** %s\n", meta.RepositoryURL))
	}
	if meta.Branch != "" {
		sb.WriteString(fmt.Sprintf("**Branch:** %s\n", meta.Branch))
	}
	if meta.RunID != "" {
		sb.WriteString(fmt.Sprintf("**Run:** %s\n", meta.RunID))
	}
	if !meta.GeneratedAt.IsZero() {
		sb.WriteString(fmt.Sprintf("**Generated:** %s\n",
			meta.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC")))
	}
	if meta.Iterations > 0 {
		sb.WriteString(fmt.Sprintf("**Iterations:** %d (%s)\n",
			meta.Iterations, meta.Duration.Round(time.Millisecond)))
	}
	sb.WriteString(fmt.Sprintf("**Completeness:** %.1f%%\n", meta.Completeness))
	if meta.StopReason != "" {
		sb.WriteString(fmt.Sprintf("**Stopped:** %s\n", meta.StopReason))
	}
	if meta.Degraded {
		sb.WriteString("\n> Partial results: a later iteration failed and the run kept what it had.\n")
	}
	sb.WriteString("\n")

	writeSummary(&sb, result)
	writeIssueSections(&sb, result)
	writeCoverage(&sb, result.TestCoverage)
	writeDependencies(&sb, result.Dependencies)
	writeBreakingChanges(&sb, result.BreakingChanges)
	writeScores(&sb, result.Scores)

	return sb.String()
}

// JSON renders the result as indented JSON.
func JSON(result *types.AnalysisResult) ([]byte, error) {
	if result == nil {
		result = types.NewAnalysisResult()
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return data, nil
}

func writeSummary(sb *strings.Builder, result *types.AnalysisResult) {
	sb.WriteString("## Summary\n\n")
	if len(result.Issues) == 0 {
		sb.WriteString("No issues found.\n\n")
		return
	}

	sb.WriteString(fmt.Sprintf("%d issue(s) found.\n\n", len(result.Issues)))

	bySeverity := result.CountBySeverity()
	sb.WriteString("| Severity | Count |\n")
	sb.WriteString("|----------|-------|\n")
	for _, sev := range severityOrder() {
		if n := bySeverity[sev]; n > 0 {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", sev, n))
		}
	}
	sb.WriteString("\n")
}

func writeIssueSections(sb *strings.Builder, result *types.AnalysisResult) {
	byCategory := make(map[types.Category][]types.Issue)
	for _, issue := range result.Issues {
		byCategory[issue.Category] = append(byCategory[issue.Category], issue)
	}

	// Known categories render in their fixed order; anything else (the
	// merge accepts whatever it is given) follows in name order.
	categories := types.ExpectedCategories()
	var extras []types.Category
	for cat := range byCategory {
		if !cat.IsValid() {
			extras = append(extras, cat)
		}
	}
	sort.Slice(extras, func(i, j int) bool { return extras[i] < extras[j] })
	categories = append(categories, extras...)

	for _, cat := range categories {
		issues := byCategory[cat]
		if len(issues) == 0 {
			continue
		}
		SortBySeverity(issues)

		sb.WriteString(fmt.Sprintf("## %s (%d)\n\n", categoryHeading(cat), len(issues)))
		for i := range issues {
			writeIssue(sb, &issues[i])
		}
	}
}

func writeIssue(sb *strings.Builder, issue *types.Issue) {
	sb.WriteString(fmt.Sprintf("### %s\n\n", IssueTitle(issue)))

	if issue.Severity != "" {
		sb.WriteString(fmt.Sprintf("**Severity:** %s\n", issue.Severity))
	}
	if loc := issue.Location.String(); loc != "" {
		sb.WriteString(fmt.Sprintf("**Location:** `%s`\n", loc))
	}
	if issue.Confidence > 0 {
		sb.WriteString(fmt.Sprintf("**Confidence:** %d%%\n", issue.Confidence))
	}
	sb.WriteString("\n")

	if issue.Description != "" && issue.Description != issue.Title {
		sb.WriteString(issue.Description + "\n\n")
	}
	if issue.CodeSnippet != "" {
		sb.WriteString("```\n" + issue.CodeSnippet + "\n```\n\n")
	}
	if issue.Recommendation != "" {
		sb.WriteString(fmt.Sprintf("**Recommendation:** %s\n\n", issue.Recommendation))
	}
}

// IssueTitle returns a display title for an issue, falling back to the
// first sentence (or first 80 characters) of the description when the
// issue has no title.
func IssueTitle(issue *types.Issue) string {
	if issue.Title != "" {
		return issue.Title
	}
	desc := issue.Description
	if idx := strings.Index(desc, "."); idx > 0 && idx < 80 {
		desc = desc[:idx]
	} else if len(desc) > 80 {
		desc = desc[:77] + "..."
	}
	if desc == "" {
		return "Untitled finding"
	}
	return desc
}

func writeCoverage(sb *strings.Builder, coverage map[string]float64) {
	if len(coverage) == 0 {
		return
	}

	keys := make([]string, 0, len(coverage))
	for k := range coverage {
		if k != "overall" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if _, ok := coverage["overall"]; ok {
		keys = append([]string{"overall"}, keys...)
	}

	sb.WriteString("## Test Coverage\n\n")
	sb.WriteString("| Area | Coverage |\n")
	sb.WriteString("|------|----------|\n")
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("| %s | %.1f%% |\n", k, coverage[k]))
	}
	sb.WriteString("\n")
}

func writeDependencies(sb *strings.Builder, deps *types.DependencyReport) {
	if deps.IsZero() {
		return
	}

	sb.WriteString("## Dependencies\n\n")
	if deps.Total > 0 {
		sb.WriteString(fmt.Sprintf("%d total, %d direct.\n\n", deps.Total, deps.Direct))
	}
	writeDependencyList(sb, "Vulnerable", deps.Vulnerable)
	writeDependencyList(sb, "Outdated", deps.Outdated)
	writeDependencyList(sb, "Deprecated", deps.Deprecated)
}

func writeDependencyList(sb *strings.Builder, heading string, deps []types.DependencyInfo) {
	if len(deps) == 0 {
		return
	}
	sb.WriteString(fmt.Sprintf("### %s\n\n", heading))
	for _, dep := range deps {
		line := fmt.Sprintf("- `%s`", dep.Name)
		if dep.Current != "" && dep.Latest != "" {
			line += fmt.Sprintf(" %s -> %s", dep.Current, dep.Latest)
		}
		if dep.Severity != "" {
			line += fmt.Sprintf(" [%s]", dep.Severity)
		}
		if dep.Advisory != "" {
			line += ": " + dep.Advisory
		}
		sb.WriteString(line + "\n")
	}
	sb.WriteString("\n")
}

func writeBreakingChanges(sb *strings.Builder, changes []types.BreakingChange) {
	if len(changes) == 0 {
		return
	}

	sb.WriteString("## Breaking Changes\n\n")
	for _, change := range changes {
		sb.WriteString(fmt.Sprintf("### %s\n\n", change.Title))
		if change.File != "" {
			sb.WriteString(fmt.Sprintf("**File:** `%s`\n\n", change.File))
		}
		if change.Description != "" {
			sb.WriteString(change.Description + "\n\n")
		}
		if change.Migration != "" {
			sb.WriteString(fmt.Sprintf("**Migration:** %s\n\n", change.Migration))
		}
	}
}

func writeScores(sb *strings.Builder, scores map[string]any) {
	if len(scores) == 0 {
		return
	}

	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sb.WriteString("## Scores\n\n")
	sb.WriteString("| Metric | Score |\n")
	sb.WriteString("|--------|-------|\n")
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf("| %s | %s |\n", k, formatScore(scores[k])))
	}
	sb.WriteString("\n")
}

// formatScore prints JSON numbers (always float64 after decoding) without
// a trailing .0 when they are whole.
func formatScore(v any) string {
	switch tv := v.(type) {
	case float64:
		if tv == math.Trunc(tv) && math.Abs(tv) < 1e15 {
			return strconv.FormatInt(int64(tv), 10)
		}
		return fmt.Sprintf("%.1f", tv)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func categoryHeading(cat types.Category) string {
	if cat == "" {
		return "Uncategorized"
	}
	words := strings.Split(string(cat), "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func severityOrder() []types.Severity {
	return []types.Severity{
		types.SeverityCritical,
		types.SeverityHigh,
		types.SeverityMedium,
		types.SeverityLow,
	}
}

// SortBySeverity orders issues critical first, preserving discovery order
// within each severity.
func SortBySeverity(issues []types.Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].Severity.Rank() < issues[j].Severity.Rank()
	})
}
