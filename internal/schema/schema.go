// Package schema normalizes untrusted analysis payloads into the canonical
// domain types.
//
// Upstream responses are loosely structured and spell the same field several
// ways (file vs filePath vs file_path, nested vs flat locations, UPPERCASE
// severities). Normalization is best-effort and never fails: unknown enum
// values come back empty for the parser chain to resolve, unusable issues
// are dropped, and numeric fields are clamped to their documented ranges.
package schema

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/alpsla/codequal/internal/types"
)

// severityAliases maps lowercase upstream spellings to canonical severities.
var severityAliases = map[string]types.Severity{
	"critical": types.SeverityCritical,
	"high":     types.SeverityHigh,
	"medium":   types.SeverityMedium,
	"moderate": types.SeverityMedium,
	"low":      types.SeverityLow,
}

// categoryAliases maps lowercase upstream spellings to canonical categories.
var categoryAliases = map[string]types.Category{
	"security":     types.CategorySecurity,
	"performance":  types.CategoryPerformance,
	"perf":         types.CategoryPerformance,
	"code-quality": types.CategoryCodeQuality,
	"code_quality": types.CategoryCodeQuality,
	"code quality": types.CategoryCodeQuality,
	"codequality":  types.CategoryCodeQuality,
	"quality":      types.CategoryCodeQuality,
	"dependencies": types.CategoryDependencies,
	"dependency":   types.CategoryDependencies,
	"deps":         types.CategoryDependencies,
	"testing":      types.CategoryTesting,
	"tests":        types.CategoryTesting,
	"test":         types.CategoryTesting,
	"architecture": types.CategoryArchitecture,
}

// structuredKeys are the top-level keys that mark a decoded JSON object as an
// analysis payload even when it carries no issues (a metrics-only response is
// still a structured result).
var structuredKeys = []string{
	"issues", "vulnerabilities", "findings",
	"testCoverage", "test_coverage", "testing",
	"dependencies", "breakingChanges", "breaking_changes",
	"architecture", "teamMetrics", "team_metrics",
	"documentation", "scores",
}

// CanonicalSeverity maps an upstream severity string to its canonical value.
// Matching is case-insensitive; unknown values return the empty severity so
// the parser chain can run keyword inference before applying the default.
func CanonicalSeverity(raw string) types.Severity {
	return severityAliases[strings.ToLower(strings.TrimSpace(raw))]
}

// CanonicalCategory maps an upstream category string to its canonical value.
// Matching is case-insensitive; unknown values return the empty category.
func CanonicalCategory(raw string) types.Category {
	return categoryAliases[strings.ToLower(strings.TrimSpace(raw))]
}

// LooksStructured reports whether a decoded JSON object is recognizable as
// an analysis payload rather than some unrelated JSON embedded in prose.
func LooksStructured(payload map[string]any) bool {
	for _, key := range structuredKeys {
		if _, ok := payload[key]; ok {
			return true
		}
	}
	return false
}

// NormalizeResult converts a decoded upstream payload into a partial
// AnalysisResult. It never fails: malformed sections are skipped, issues
// without a usable location or description are dropped, and enum values it
// cannot canonicalize are left empty.
func NormalizeResult(payload map[string]any) *types.AnalysisResult {
	result := types.NewAnalysisResult()
	if payload == nil {
		return result
	}

	for _, key := range []string{"issues", "vulnerabilities", "findings"} {
		for _, raw := range sliceValue(payload, key) {
			entry, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			issue, ok := NormalizeIssue(entry)
			if !ok {
				slog.Debug("Dropping issue without location or description",
					"title", issue.Title,
					"sourceKey", key)
				continue
			}
			result.Issues = append(result.Issues, issue)
		}
	}

	result.TestCoverage = normalizeCoverage(payload)
	result.Dependencies = normalizeDependencies(mapValue(payload, "dependencies"))
	result.BreakingChanges = normalizeBreakingChanges(payload)
	result.Architecture = mapValue(payload, "architecture")
	result.TeamMetrics = firstMap(payload, "teamMetrics", "team_metrics")
	result.Documentation = mapValue(payload, "documentation")
	result.Scores = mapValue(payload, "scores")

	return result
}

// NormalizeIssue converts one raw issue object into the canonical Issue
// shape. The second return value is false when the issue carries neither a
// complete location nor a description and must be discarded.
func NormalizeIssue(raw map[string]any) (types.Issue, bool) {
	issue := types.Issue{
		Title:          stringField(raw, "title"),
		Description:    stringField(raw, "description", "message", "summary"),
		Severity:       CanonicalSeverity(stringField(raw, "severity")),
		Category:       CanonicalCategory(stringField(raw, "category")),
		CodeSnippet:    stringField(raw, "codeSnippet", "code_snippet", "snippet"),
		Recommendation: stringField(raw, "recommendation", "suggestion", "remediation", "fix"),
	}

	issue.Location = normalizeLocation(raw)

	if issue.CodeSnippet == "" {
		if evidence := firstMap(raw, "evidence"); evidence != nil {
			issue.CodeSnippet = stringField(evidence, "snippet", "code")
		}
	}

	if confidence, ok := intValue(raw["confidence"]); ok {
		issue.Confidence = clampInt(confidence, 0, 100)
	}

	return issue, issue.Meaningful()
}

// normalizeLocation accepts both the nested {"location": {"file", "line"}}
// shape and flat file/line keys on the issue object itself.
func normalizeLocation(raw map[string]any) types.Location {
	loc := types.Location{}
	if nested := firstMap(raw, "location"); nested != nil {
		loc.File = stringField(nested, "file", "filePath", "file_path", "path")
		if line, ok := intValue(firstValue(nested, "line", "lineNumber", "line_number")); ok && line > 0 {
			loc.Line = line
		}
	}
	if loc.File == "" {
		loc.File = stringField(raw, "file", "filePath", "file_path", "path")
	}
	if loc.Line == 0 {
		if line, ok := intValue(firstValue(raw, "line", "lineNumber", "line_number")); ok && line > 0 {
			loc.Line = line
		}
	}
	return loc
}

// normalizeCoverage collects numeric test metrics from whichever of the
// coverage-shaped sections is present. A bare number becomes the "overall"
// metric; coverage_percent is folded into "overall" as well so every
// upstream shape lands on one canonical key.
func normalizeCoverage(payload map[string]any) map[string]float64 {
	raw := firstValue(payload, "testCoverage", "test_coverage", "coverage", "testing")
	if raw == nil {
		return nil
	}

	if overall, ok := floatValue(raw); ok {
		return map[string]float64{"overall": overall}
	}

	section, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	coverage := make(map[string]float64)
	for key, value := range section {
		number, ok := floatValue(value)
		if !ok {
			continue
		}
		switch key {
		case "coverage_percent", "coveragePercent", "percent", "overall":
			coverage["overall"] = number
		default:
			coverage[key] = number
		}
	}
	if len(coverage) == 0 {
		return nil
	}
	return coverage
}

func normalizeDependencies(section map[string]any) *types.DependencyReport {
	if section == nil {
		return nil
	}
	report := &types.DependencyReport{}
	if total, ok := intValue(section["total"]); ok {
		report.Total = total
	}
	if direct, ok := intValue(section["direct"]); ok {
		report.Direct = direct
	}
	report.Outdated = normalizeDependencyList(section, "outdated")
	report.Vulnerable = normalizeDependencyList(section, "vulnerable")
	report.Deprecated = normalizeDependencyList(section, "deprecated")
	if report.IsZero() {
		return nil
	}
	return report
}

// normalizeDependencyList reads one of the outdated/vulnerable/deprecated
// lists. Some upstream responses report these as bare counts rather than
// entry lists; counts carry no identity to merge on, so they are skipped.
func normalizeDependencyList(section map[string]any, key string) []types.DependencyInfo {
	raw, ok := section[key]
	if !ok {
		return nil
	}
	if _, isCount := floatValue(raw); isCount {
		slog.Debug("Skipping dependency count without entries", "key", key)
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	var entries []types.DependencyInfo
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		info := types.DependencyInfo{
			Name:     stringField(entry, "name", "package"),
			Current:  stringField(entry, "current", "currentVersion", "current_version", "version"),
			Latest:   stringField(entry, "latest", "latestVersion", "latest_version"),
			Severity: CanonicalSeverity(stringField(entry, "severity")),
			Advisory: stringField(entry, "advisory", "cve"),
		}
		if info.Name == "" {
			continue
		}
		entries = append(entries, info)
	}
	return entries
}

func normalizeBreakingChanges(payload map[string]any) []types.BreakingChange {
	var changes []types.BreakingChange
	for _, key := range []string{"breakingChanges", "breaking_changes"} {
		for _, raw := range sliceValue(payload, key) {
			entry, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			change := types.BreakingChange{
				Title:       stringField(entry, "title", "name"),
				Description: stringField(entry, "description", "message"),
				File:        stringField(entry, "file", "filePath", "file_path"),
				Migration:   stringField(entry, "migration", "migrationPath", "migration_path"),
			}
			if change.Title == "" {
				continue
			}
			changes = append(changes, change)
		}
	}
	return changes
}

// stringField returns the first non-empty string among the named keys.
func stringField(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

func firstValue(m map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			return v
		}
	}
	return nil
}

func firstMap(m map[string]any, keys ...string) map[string]any {
	for _, key := range keys {
		if sub, ok := m[key].(map[string]any); ok {
			return sub
		}
	}
	return nil
}

func mapValue(m map[string]any, key string) map[string]any {
	sub, _ := m[key].(map[string]any)
	return sub
}

func sliceValue(m map[string]any, key string) []any {
	items, _ := m[key].([]any)
	return items
}

// intValue coerces the numeric shapes JSON decoding can produce, plus
// numeric strings, into an int.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}

func floatValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
