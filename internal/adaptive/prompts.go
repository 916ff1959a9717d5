package adaptive

import (
	"fmt"
	"strings"

	"github.com/alpsla/codequal/internal/gaps"
)

// responseFormatInstructions is appended to every prompt. The service
// ignores it often enough that the parser keeps its fallback chain, but
// asking for this shape makes the structured strategy succeed most of the
// time.
const responseFormatInstructions = `**Response format:**
{
  "issues": [
    {
      "title": "...",
      "description": "...",
      "severity": "critical|high|medium|low",
      "category": "security|performance|dependencies|code-quality|testing|architecture",
      "location": {"file": "path/to/file", "line": 42},
      "codeSnippet": "...",
      "recommendation": "...",
      "confidence": 0-100
    }
  ],
  "testCoverage": {"overall": 0-100},
  "dependencies": {"total": 0, "outdated": [], "vulnerable": []},
  "breakingChanges": [],
  "architecture": {},
  "scores": {}
}

IMPORTANT: Respond with ONLY raw JSON. Do NOT wrap in markdown code fences.
Every issue needs a file path and line number.`

// comprehensiveAnalysisPrompt opens every run. It asks for everything at
// once; follow-up prompts then chase whatever this pass missed.
const comprehensiveAnalysisPrompt = `Perform a comprehensive code analysis of this repository.

Cover all of the following:
1. **Security**: injection risks, authentication/authorization flaws, unsafe input handling, secrets in code
2. **Performance**: slow paths, memory leaks, N+1 queries, unnecessary allocations
3. **Dependencies**: outdated packages, known vulnerabilities, deprecated libraries
4. **Code quality**: error handling gaps, dead code, confusing structure, missing validation
5. **Testing**: untested critical paths, overall coverage, flaky patterns
6. **Architecture**: coupling, circular imports, layering violations

For each issue provide the exact file path and line number, a severity, and a concrete recommendation.
Also report overall test coverage and a dependency summary.

` + responseFormatInstructions

// buildPrompt selects the prompt for an iteration. The first iteration is
// always comprehensive; later iterations target the measured gaps.
func buildPrompt(index int, analysis *gaps.Analysis) string {
	if index == 0 || analysis == nil {
		return comprehensiveAnalysisPrompt
	}
	return buildFollowUpPrompt(analysis)
}

// buildFollowUpPrompt turns the current gap analysis into targeted asks.
// One directive per gap keeps the request specific enough that the service
// looks where coverage is thin instead of repeating its first answer.
func buildFollowUpPrompt(analysis *gaps.Analysis) string {
	var b strings.Builder
	b.WriteString("Previous analysis passes left gaps. Focus ONLY on the following:\n\n")

	n := 0
	for _, gap := range analysis.Gaps {
		var directive string
		switch gap.Type {
		case gaps.GapNoIssues:
			directive = "No issues were found at all. Re-examine the repository thoroughly across security, performance, dependencies, code quality, testing, and architecture."
		case gaps.GapMissingCategory:
			directive = fmt.Sprintf("Find %s issues. None have been reported yet; examine the code paths where %s problems typically hide.",
				gap.Category, gap.Category)
		case gaps.GapLowCategoryCount:
			directive = fmt.Sprintf("Find additional %s issues beyond those already reported. %s",
				gap.Category, gap.Description)
		case gaps.GapUnlocatedIssues:
			directive = "Provide exact file paths and line numbers. " + gap.Description
		default:
			directive = gap.Description
		}
		n++
		fmt.Fprintf(&b, "%d. %s\n", n, directive)
	}

	b.WriteString("\nReport new findings only where asked; do not restate conclusions that need no correction.\n\n")
	b.WriteString(responseFormatInstructions)
	return b.String()
}
