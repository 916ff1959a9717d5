// Package parser converts raw analysis-service responses into partial
// analysis results. Responses arrive as structured JSON, JSON buried in
// prose, or plain prose; a fixed chain of extraction strategies is tried in
// priority order and the first usable outcome wins.
package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alpsla/codequal/internal/types"
)

// Strategy identifies which extraction strategy produced an outcome.
type Strategy string

const (
	// StrategyStructured means the response was (or contained) a parseable
	// JSON analysis payload.
	StrategyStructured Strategy = "structured"
	// StrategyPattern means issues were recovered from prose via the
	// ordered location-pattern list.
	StrategyPattern Strategy = "pattern"
	// StrategyGeneric means only numbered-list items could be extracted.
	StrategyGeneric Strategy = "generic"
	// StrategyNone means no strategy produced a usable result.
	StrategyNone Strategy = "none"
)

// maxResponseBytes caps the input size to keep pathological responses from
// exhausting memory. Typical responses are a few KB.
const maxResponseBytes = 10 * 1024 * 1024

// Outcome is the result of running the parser chain over one response.
// Each variant carries only what its strategy can guarantee: structured
// outcomes may include sub-reports, pattern outcomes carry located issues,
// generic outcomes carry bare descriptions.
type Outcome struct {
	Strategy     Strategy
	Result       *types.AnalysisResult
	OriginalText string
}

// ParseError reports that no strategy extracted a usable result from a
// response. It carries a truncated response preview for diagnostics.
type ParseError struct {
	Reason   string
	Response string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("response parsing failed: %s (response: %s)", e.Reason, e.Response)
}

// IsParseError reports whether err is (or wraps) a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// Parse runs the extraction chain over one raw response:
//
//  1. Structured parse: direct JSON, then code-fence removal, JSON cleanup,
//     and balanced-bracket extraction from mixed content.
//  2. Pattern extraction: ordered location patterns over the prose.
//  3. Generic fallback: numbered-list items as unlocated issues.
//
// Every extracted issue leaves with a severity and category: explicit values
// are kept, otherwise keywords in the description decide, otherwise the
// documented defaults (low, code-quality) apply. Parse never mutates shared
// state; a fresh result is built per call.
func Parse(text string) (*Outcome, error) {
	if len(text) > maxResponseBytes {
		return nil, &ParseError{
			Reason:   fmt.Sprintf("response exceeds size limit (%d > %d bytes)", len(text), maxResponseBytes),
			Response: truncate(text, 200),
		}
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, &ParseError{Reason: "empty response", Response: ""}
	}

	if result, ok := parseStructured(trimmed); ok {
		finalizeResult(result)
		slog.Debug("Response parsed as structured payload",
			"issues", len(result.Issues))
		return &Outcome{Strategy: StrategyStructured, Result: result, OriginalText: text}, nil
	}

	if issues := extractByPatterns(text); len(issues) > 0 {
		result := types.NewAnalysisResult()
		result.Issues = issues
		finalizeResult(result)
		slog.Debug("Response parsed via location patterns",
			"issues", len(result.Issues))
		return &Outcome{Strategy: StrategyPattern, Result: result, OriginalText: text}, nil
	}

	if issues := extractNumberedItems(text); len(issues) > 0 {
		result := types.NewAnalysisResult()
		result.Issues = issues
		finalizeResult(result)
		slog.Debug("Response parsed via generic list fallback",
			"issues", len(result.Issues))
		return &Outcome{Strategy: StrategyGeneric, Result: result, OriginalText: text}, nil
	}

	return nil, &ParseError{
		Reason:   "no strategy extracted a usable result",
		Response: truncate(text, 500),
	}
}

// finalizeResult fills in missing severities and categories on every issue.
// Inference reads only the description; titles never influence
// classification.
func finalizeResult(result *types.AnalysisResult) {
	for i := range result.Issues {
		issue := &result.Issues[i]
		if issue.Severity == "" {
			issue.Severity = InferSeverity(issue.Description)
			if issue.Severity == "" {
				issue.Severity = types.SeverityLow
			}
		}
		if issue.Category == "" {
			issue.Category = InferCategory(issue.Description)
			if issue.Category == "" {
				issue.Category = types.CategoryCodeQuality
			}
		}
	}
}

// truncate shortens s to maxLen bytes for log and error previews.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
