package parser

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/alpsla/codequal/internal/schema"
	"github.com/alpsla/codequal/internal/types"
)

// Pre-compiled regular expressions shared across parses.
var (
	// Code fence patterns. Newlines are optional because the service does
	// not always include them around fenced payloads.
	codeFenceStartRegex = regexp.MustCompile(`(?s)^` + "`" + `{3}(?:json|javascript|js)?\s*\n?([\s\S]*?)\n?` + "`" + `{3}\s*$`)
	codeFenceAnyRegex   = regexp.MustCompile(`(?s)` + "`" + `{3}(?:json|javascript|js)?\s*\n?([\s\S]*?)\n?` + "`" + `{3}`)

	// JSON cleanup patterns
	trailingCommaRegex     = regexp.MustCompile(`,(\s*[}\]])`)
	unquotedKeyRegex       = regexp.MustCompile(`([{,]\s*)([a-zA-Z_$][a-zA-Z0-9_$]*)\s*:`)
	singleLineCommentRegex = regexp.MustCompile(`(?m)//.*$`)
	multiLineCommentRegex  = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// issueListKeys are the fields that mark a bare JSON array element as an
// issue object. Some responses return a naked issue array instead of a
// wrapped payload.
var issueListKeys = []string{"title", "description", "severity", "file", "location"}

// parseStructured attempts the structured-JSON strategy:
//
//  1. Direct parse of the whole response
//  2. Parse after stripping markdown code fences
//  3. Parse after fixing common JSON defects (trailing commas, unquoted
//     keys, comments)
//  4. Balanced-bracket extraction of embedded JSON from mixed prose
//
// A candidate only counts when it decodes AND looks like an analysis
// payload; a payload with recognized sections but zero issues is still a
// structured success (the service reporting a clean result is a result).
func parseStructured(trimmed string) (*types.AnalysisResult, bool) {
	if payload, ok := decodeCandidate(trimmed); ok {
		return schema.NormalizeResult(payload), true
	}

	unfenced := removeCodeFences(trimmed)
	if unfenced != trimmed {
		if payload, ok := decodeCandidate(unfenced); ok {
			return schema.NormalizeResult(payload), true
		}
	}

	cleaned := cleanupJSON(unfenced)
	if cleaned != unfenced {
		if payload, ok := decodeCandidate(cleaned); ok {
			return schema.NormalizeResult(payload), true
		}
	}

	for _, candidate := range extractBalanced(cleaned) {
		if payload, ok := decodeCandidate(candidate); ok {
			return schema.NormalizeResult(payload), true
		}
	}

	return nil, false
}

// decodeCandidate decodes one JSON candidate and gates it on recognizable
// analysis structure. Bare arrays of issue-shaped objects are wrapped into
// the canonical payload form.
func decodeCandidate(candidate string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return nil, false
	}

	switch trimmed[0] {
	case '{':
		var payload map[string]any
		if err := json.Unmarshal([]byte(trimmed), &payload); err == nil && schema.LooksStructured(payload) {
			return payload, true
		}
	case '[':
		var items []any
		if err := json.Unmarshal([]byte(trimmed), &items); err == nil && looksLikeIssueList(items) {
			return map[string]any{"issues": items}, true
		}
	}
	return nil, false
}

func looksLikeIssueList(items []any) bool {
	if len(items) == 0 {
		return false
	}
	first, ok := items[0].(map[string]any)
	if !ok {
		return false
	}
	for _, key := range issueListKeys {
		if _, present := first[key]; present {
			return true
		}
	}
	return false
}

// removeCodeFences strips markdown code fences from text. Handles both
// ```json and bare ``` forms, plus single backticks wrapping the whole
// content.
func removeCodeFences(text string) string {
	cleaned := codeFenceStartRegex.ReplaceAllString(text, "$1")
	if cleaned == text {
		cleaned = codeFenceAnyRegex.ReplaceAllString(text, "$1")
	}
	if strings.HasPrefix(cleaned, "`") && strings.HasSuffix(cleaned, "`") {
		cleaned = strings.TrimPrefix(cleaned, "`")
		cleaned = strings.TrimSuffix(cleaned, "`")
	}
	return strings.TrimSpace(cleaned)
}

// cleanupJSON fixes common defects in service-generated JSON:
//   - trailing commas before closing braces/brackets
//   - unquoted object keys (JavaScript identifiers only)
//   - // and /* */ comments
//
// Single quotes are deliberately left alone; converting them would corrupt
// valid JSON containing apostrophes.
func cleanupJSON(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = trailingCommaRegex.ReplaceAllString(cleaned, "$1")
	cleaned = unquotedKeyRegex.ReplaceAllString(cleaned, `$1"$2":`)
	cleaned = singleLineCommentRegex.ReplaceAllString(cleaned, "")
	cleaned = multiLineCommentRegex.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// extractBalanced returns every top-level JSON object or array embedded in
// mixed content, in order of appearance. The scan tracks string and escape
// state so braces inside string values do not unbalance the count.
func extractBalanced(text string) []string {
	var candidates []string
	for i := 0; i < len(text); {
		start := strings.IndexAny(text[i:], "{[")
		if start == -1 {
			break
		}
		start += i

		segment, end := scanBalanced(text, start)
		if segment == "" {
			i = start + 1
			continue
		}
		candidates = append(candidates, segment)
		i = end + 1
	}
	return candidates
}

// scanBalanced scans one balanced JSON value starting at start and returns
// the segment plus the index of its closing bracket. Returns "" when the
// value never closes.
func scanBalanced(text string, start int) (string, int) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		char := text[i]

		if escaped {
			escaped = false
			continue
		}
		if char == '\\' {
			escaped = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch char {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1], i
			}
		}
	}
	return "", -1
}
