package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/alpsla/codequal/internal/types"
)

// locationPattern recovers a (file, line, description) triple from prose.
// Submatch indexes name where each piece lands in the match, since patterns
// phrase the triple in different orders.
type locationPattern struct {
	name string
	re   *regexp.Regexp
	file int
	line int
	desc int
}

// locationPatterns are tried in this fixed order over the whole response.
// The first match per file:line key wins; later matches for the same key
// are skipped silently regardless of which pattern produced them.
var locationPatterns = []locationPattern{
	{
		// File Path: test/stream.ts
		// Line 14: description
		name: "file-path-block",
		re:   regexp.MustCompile(`(?i)File\s*Path:\s*(\S+)\s*\n\s*Line\s*(\d+)\s*[:\-]?\s*([^\n]*)`),
		file: 1, line: 2, desc: 3,
	},
	{
		// src/auth.ts:42: description
		name: "compiler-style",
		re:   regexp.MustCompile(`(?m)^\s*([\w./\\-]+\.[A-Za-z]{1,6}):(\d+)(?::\d+)?[:\s\-]+([^\n]+)$`),
		file: 1, line: 2, desc: 3,
	},
	{
		// src/auth.ts (line 42): description
		name: "parenthesized-line",
		re:   regexp.MustCompile(`(?i)([\w./\\-]+\.[A-Za-z]{1,6})\s*\(line\s*(\d+)\)\s*[:\-]?\s*([^\n]*)`),
		file: 1, line: 2, desc: 3,
	},
	{
		// in src/auth.ts at line 42, description
		name: "in-file-at-line",
		re:   regexp.MustCompile(`(?i)\bin\s+([\w./\\-]+\.[A-Za-z]{1,6})\s+at\s+line\s+(\d+)\s*[:,\-]?\s*([^\n]*)`),
		file: 1, line: 2, desc: 3,
	},
	{
		// Line 42 in src/auth.ts: description
		name: "line-in-file",
		re:   regexp.MustCompile(`(?i)\bline\s+(\d+)\s+(?:in|of)\s+([\w./\\-]+\.[A-Za-z]{1,6})\s*[:,\-]?\s*([^\n]*)`),
		file: 2, line: 1, desc: 3,
	},
}

// numberedItemRegex matches numbered list items ("1. ..." or "2) ...").
var numberedItemRegex = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+(.+)$`)

// minGenericItemLength filters out numbered items too short to describe a
// finding ("1. Yes", section headings).
const minGenericItemLength = 10

// extractByPatterns runs the ordered location-pattern list over the raw
// response and returns one issue per unique file:line key (falling back to
// a description-prefix key when a pattern yields no usable location).
func extractByPatterns(text string) []types.Issue {
	var issues []types.Issue
	seen := make(map[string]bool)

	for _, pattern := range locationPatterns {
		for _, match := range pattern.re.FindAllStringSubmatch(text, -1) {
			issue := types.Issue{
				Description: cleanDescription(match[pattern.desc]),
				Location: types.Location{
					File: cleanFilePath(match[pattern.file]),
					Line: parseLine(match[pattern.line]),
				},
			}
			if !issue.Meaningful() {
				continue
			}

			key := issue.LocationKey()
			if key == "" {
				key = issue.DescriptionKey()
			}
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			issues = append(issues, issue)
		}
	}
	return issues
}

// extractNumberedItems is the generic fallback: each numbered list item
// becomes an untitled, unlocated issue. Used only when the structured and
// pattern strategies both come up empty.
func extractNumberedItems(text string) []types.Issue {
	var issues []types.Issue
	seen := make(map[string]bool)

	for _, match := range numberedItemRegex.FindAllStringSubmatch(text, -1) {
		description := cleanDescription(match[1])
		if len(description) < minGenericItemLength {
			continue
		}
		issue := types.Issue{Description: description}
		key := issue.DescriptionKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		issues = append(issues, issue)
	}
	return issues
}

func cleanFilePath(raw string) string {
	return strings.Trim(strings.TrimSpace(raw), `"'(),;:`+"`")
}

func cleanDescription(raw string) string {
	return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(raw), "-*>•"))
}

func parseLine(raw string) int {
	line, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || line <= 0 {
		return 0
	}
	return line
}

// severityKeywords is the fixed precedence table for severity inference.
// Rows are checked top to bottom and the first row with any keyword present
// in the description wins. Matching is case-insensitive substring search;
// the table is deliberately simple and its misclassifications (a "critical"
// mention in a benign sentence) are accepted as part of the contract.
var severityKeywords = []struct {
	severity types.Severity
	keywords []string
}{
	{types.SeverityCritical, []string{"critical", "vulnerability", "exploit", "remote code execution", "data loss"}},
	{types.SeverityHigh, []string{"high", "severe", "major", "injection", "crash", "race condition"}},
	{types.SeverityMedium, []string{"medium", "moderate", "warning", "deprecated", "potential"}},
	{types.SeverityLow, []string{"low", "minor", "style", "cosmetic", "nitpick"}},
}

// categoryKeywords is the fixed precedence table for category inference,
// checked top to bottom like severityKeywords. code-quality has no keywords
// because it is the default when nothing matches.
var categoryKeywords = []struct {
	category types.Category
	keywords []string
}{
	{types.CategorySecurity, []string{"security", "injection", "xss", "csrf", "authentication", "authorization", "sanitiz", "vulnerab"}},
	{types.CategoryPerformance, []string{"performance", "slow", "latency", "memory leak", "n+1", "bottleneck", "inefficien"}},
	{types.CategoryDependencies, []string{"dependency", "dependencies", "outdated package", "package version"}},
	{types.CategoryTesting, []string{"test coverage", "untested", "missing test", "flaky test", "assertion"}},
	{types.CategoryArchitecture, []string{"architecture", "coupling", "circular import", "layering", "boundary violation"}},
}

// InferSeverity infers a severity from keywords in a description. Returns
// the empty severity when no keyword matches so callers can apply the
// documented default.
func InferSeverity(description string) types.Severity {
	lower := strings.ToLower(description)
	for _, row := range severityKeywords {
		for _, keyword := range row.keywords {
			if strings.Contains(lower, keyword) {
				return row.severity
			}
		}
	}
	return ""
}

// InferCategory infers a category from keywords in a description. Returns
// the empty category when no keyword matches.
func InferCategory(description string) types.Category {
	lower := strings.ToLower(description)
	for _, row := range categoryKeywords {
		for _, keyword := range row.keywords {
			if strings.Contains(lower, keyword) {
				return row.category
			}
		}
	}
	return ""
}
