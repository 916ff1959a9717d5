package adaptive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/alpsla/codequal/internal/parser"
)

// mockClient is a test implementation of the Client interface
type mockClient struct {
	analyzeFunc func(ctx context.Context, repositoryURL, branch, prompt string) (string, error)
	calls       int
	prompts     []string
	branches    []string
}

func (m *mockClient) Analyze(ctx context.Context, repositoryURL, branch, prompt string) (string, error) {
	m.calls++
	m.prompts = append(m.prompts, prompt)
	m.branches = append(m.branches, branch)
	if m.analyzeFunc != nil {
		return m.analyzeFunc(ctx, repositoryURL, branch, prompt)
	}
	return completeResponse, nil
}

// completeResponse satisfies every category minimum with located issues,
// scoring well above the default completeness threshold.
const completeResponse = `{
  "issues": [
    {"title": "SQL injection in login", "description": "Raw string concatenation into query", "severity": "critical", "category": "security", "location": {"file": "auth/login.go", "line": 42}},
    {"title": "Session token logged", "description": "Token written to debug log", "severity": "high", "category": "security", "location": {"file": "auth/session.go", "line": 88}},
    {"title": "Unchecked error from Close", "description": "File close error ignored", "severity": "low", "category": "code-quality", "location": {"file": "store/file.go", "line": 17}},
    {"title": "Duplicated validation logic", "description": "Same checks in two handlers", "severity": "medium", "category": "code-quality", "location": {"file": "api/validate.go", "line": 5}},
    {"title": "Per-row lookup in listing", "description": "Query issued inside the result loop", "severity": "high", "category": "performance", "location": {"file": "store/list.go", "line": 61}},
    {"title": "Outdated TLS library", "description": "Two major versions behind", "severity": "medium", "category": "dependencies", "location": {"file": "go.mod", "line": 12}},
    {"title": "Auth flow untested", "description": "Login path has no tests", "severity": "medium", "category": "testing", "location": {"file": "auth/login.go", "line": 1}},
    {"title": "Import cycle forming", "description": "api and store reference each other", "severity": "medium", "category": "architecture", "location": {"file": "api/deps.go", "line": 3}}
  ],
  "testCoverage": {"overall": 71.5}
}`

// partialResponse covers only code-quality, leaving five categories open.
const partialResponse = `{
  "issues": [
    {"title": "Unchecked error from Close", "description": "File close error ignored", "severity": "low", "category": "code-quality", "location": {"file": "store/file.go", "line": 17}},
    {"title": "Duplicated validation logic", "description": "Same checks in two handlers", "severity": "medium", "category": "code-quality", "location": {"file": "api/validate.go", "line": 5}}
  ]
}`

// unlocatedResponse and locatedResponse carry the same three issues; only
// the second provides file and line information.
const unlocatedResponse = `{
  "issues": [
    {"title": "Dead branch in dispatcher", "description": "Condition can never be true", "severity": "low", "category": "code-quality"},
    {"title": "Magic numbers in retry loop", "description": "Unexplained constants", "severity": "low", "category": "code-quality"},
    {"title": "Shadowed error variable", "description": "Inner err hides outer err", "severity": "medium", "category": "code-quality"}
  ]
}`

const locatedResponse = `{
  "issues": [
    {"title": "Dead branch in dispatcher", "description": "Condition can never be true", "severity": "low", "category": "code-quality", "location": {"file": "core/dispatch.go", "line": 120}},
    {"title": "Magic numbers in retry loop", "description": "Unexplained constants", "severity": "low", "category": "code-quality", "location": {"file": "net/retry.go", "line": 33}},
    {"title": "Shadowed error variable", "description": "Inner err hides outer err", "severity": "medium", "category": "code-quality", "location": {"file": "core/run.go", "line": 58}}
  ]
}`

func newTestAnalyzer(t *testing.T, client Client, maxIterations int) *Analyzer {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MaxIterations = maxIterations
	analyzer, err := NewAnalyzer(client, cfg)
	if err != nil {
		t.Fatalf("NewAnalyzer failed: %v", err)
	}
	return analyzer
}

func TestNewAnalyzer_Validation(t *testing.T) {
	if _, err := NewAnalyzer(nil, DefaultConfig()); err == nil {
		t.Error("expected error for nil client")
	}

	bad := DefaultConfig()
	bad.MaxIterations = 0
	if _, err := NewAnalyzer(&mockClient{}, bad); err == nil {
		t.Error("expected error for invalid config")
	}
}

func TestAnalyzeWithGapFilling_ConvergesAtFloor(t *testing.T) {
	ctx := context.Background()
	client := &mockClient{}
	analyzer := newTestAnalyzer(t, client, 5)

	run, err := analyzer.AnalyzeWithGapFilling(ctx, "https://github.com/acme/api", "main")
	if err != nil {
		t.Fatalf("AnalyzeWithGapFilling failed: %v", err)
	}

	// Complete from the first response, but the floor forces three
	// iterations before convergence may be declared.
	if client.calls != 3 {
		t.Errorf("expected 3 calls, got %d", client.calls)
	}
	if !run.Converged {
		t.Error("expected converged=true")
	}
	if run.StopReason != StopConverged {
		t.Errorf("StopReason = %q, want %q", run.StopReason, StopConverged)
	}
	if run.Degraded {
		t.Error("expected degraded=false")
	}
	if run.Completeness < 80 {
		t.Errorf("Completeness = %.1f, want >= 80", run.Completeness)
	}
	if run.GapAnalysis == nil || run.GapAnalysis.CriticalGaps != 0 {
		t.Errorf("expected zero critical gaps, got %+v", run.GapAnalysis)
	}
	if len(run.Result.Issues) != 8 {
		t.Errorf("expected 8 merged issues, got %d", len(run.Result.Issues))
	}
	if run.RunID == "" {
		t.Error("expected non-empty RunID")
	}

	// Iteration records: first brings everything, later ones merge to
	// nothing new.
	if len(run.Iterations) != 3 {
		t.Fatalf("expected 3 iteration records, got %d", len(run.Iterations))
	}
	first := run.Iterations[0]
	if first.Index != 0 || first.NewIssues != 8 || first.Strategy != parser.StrategyStructured {
		t.Errorf("unexpected first iteration record: %+v", first)
	}
	if run.Iterations[2].NewIssues != 0 {
		t.Errorf("expected 0 new issues on third iteration, got %d", run.Iterations[2].NewIssues)
	}
}

func TestAnalyzeWithGapFilling_BudgetBelowFloorNeverConverges(t *testing.T) {
	ctx := context.Background()
	client := &mockClient{}
	analyzer := newTestAnalyzer(t, client, 2)

	run, err := analyzer.AnalyzeWithGapFilling(ctx, "https://github.com/acme/api", "main")
	if err != nil {
		t.Fatalf("AnalyzeWithGapFilling failed: %v", err)
	}

	// Two iterations never reach the early-stop floor, so even a fully
	// complete result ends as a budget stop.
	if client.calls != 2 {
		t.Errorf("expected 2 calls, got %d", client.calls)
	}
	if run.Converged {
		t.Error("expected converged=false below the floor")
	}
	if run.StopReason != StopMaxIterations {
		t.Errorf("StopReason = %q, want %q", run.StopReason, StopMaxIterations)
	}
	if run.Completeness < 80 {
		t.Errorf("Completeness = %.1f, want >= 80 (results are still complete)", run.Completeness)
	}
}

func TestAnalyzeWithGapFilling_NoProgressStops(t *testing.T) {
	ctx := context.Background()
	client := &mockClient{
		analyzeFunc: func(ctx context.Context, repositoryURL, branch, prompt string) (string, error) {
			return partialResponse, nil
		},
	}
	analyzer := newTestAnalyzer(t, client, 6)

	run, err := analyzer.AnalyzeWithGapFilling(ctx, "https://github.com/acme/api", "main")
	if err != nil {
		t.Fatalf("AnalyzeWithGapFilling failed: %v", err)
	}

	// The same partial answer every time: the gap count improves once at
	// the first measurement and then stalls for two iterations.
	if client.calls != 3 {
		t.Errorf("expected 3 calls, got %d", client.calls)
	}
	if run.StopReason != StopNoProgress {
		t.Errorf("StopReason = %q, want %q", run.StopReason, StopNoProgress)
	}
	if run.Converged {
		t.Error("expected converged=false")
	}
	if run.Degraded {
		t.Error("no-progress stop is not degradation")
	}
	if len(run.Result.Issues) != 2 {
		t.Errorf("expected 2 issues, got %d", len(run.Result.Issues))
	}
}

func TestAnalyzeWithGapFilling_NoNewIssuesStops(t *testing.T) {
	ctx := context.Background()
	client := &mockClient{}
	client.analyzeFunc = func(ctx context.Context, repositoryURL, branch, prompt string) (string, error) {
		if client.calls == 1 {
			return unlocatedResponse, nil
		}
		return locatedResponse, nil
	}
	analyzer := newTestAnalyzer(t, client, 6)

	run, err := analyzer.AnalyzeWithGapFilling(ctx, "https://github.com/acme/api", "main")
	if err != nil {
		t.Fatalf("AnalyzeWithGapFilling failed: %v", err)
	}

	// The second iteration adds locations (progress) but no new issues;
	// the third adds neither. The no-new-issues streak ends the run while
	// the gap count is still moving too slowly to matter.
	if client.calls != 3 {
		t.Errorf("expected 3 calls, got %d", client.calls)
	}
	if run.StopReason != StopNoNewIssues {
		t.Errorf("StopReason = %q, want %q", run.StopReason, StopNoNewIssues)
	}
	if len(run.Result.Issues) != 3 {
		t.Fatalf("expected 3 issues, got %d", len(run.Result.Issues))
	}
	for _, issue := range run.Result.Issues {
		if !issue.Located() {
			t.Errorf("issue %q should have gained a location from the merge", issue.Title)
		}
	}
}

func TestAnalyzeWithGapFilling_MaxIterationsExhausted(t *testing.T) {
	ctx := context.Background()

	// Each response contributes one new category, so every iteration makes
	// progress and no voluntary stop fires before the budget runs out.
	responses := []string{
		`{"issues": [{"title": "Token comparison not constant time", "description": "Allows timing probes", "severity": "high", "category": "security", "location": {"file": "auth/token.go", "line": 9}}]}`,
		`{"issues": [{"title": "Allocations in hot loop", "description": "Builder recreated per row", "severity": "medium", "category": "performance", "location": {"file": "render/table.go", "line": 44}}]}`,
		`{"issues": [{"title": "Parser error paths untested", "description": "Fallback chain has no failure tests", "severity": "medium", "category": "testing", "location": {"file": "parse/parse.go", "line": 1}}]}`,
		`{"issues": [{"title": "Storage layer reaches into transport", "description": "Layering violation", "severity": "medium", "category": "architecture", "location": {"file": "store/client.go", "line": 77}}]}`,
	}
	client := &mockClient{}
	client.analyzeFunc = func(ctx context.Context, repositoryURL, branch, prompt string) (string, error) {
		return responses[client.calls-1], nil
	}
	analyzer := newTestAnalyzer(t, client, 4)

	run, err := analyzer.AnalyzeWithGapFilling(ctx, "https://github.com/acme/api", "main")
	if err != nil {
		t.Fatalf("AnalyzeWithGapFilling failed: %v", err)
	}

	if client.calls != 4 {
		t.Errorf("expected 4 calls, got %d", client.calls)
	}
	if run.StopReason != StopMaxIterations {
		t.Errorf("StopReason = %q, want %q", run.StopReason, StopMaxIterations)
	}
	if run.Converged {
		t.Error("expected converged=false")
	}
	if len(run.Result.Issues) != 4 {
		t.Errorf("expected 4 issues, got %d", len(run.Result.Issues))
	}
	for i, rec := range run.Iterations {
		if rec.Index != i {
			t.Errorf("iteration %d has index %d", i, rec.Index)
		}
		if rec.NewIssues != 1 {
			t.Errorf("iteration %d: NewIssues = %d, want 1", i, rec.NewIssues)
		}
	}
}

func TestAnalyzeWithGapFilling_FirstCallFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	client := &mockClient{
		analyzeFunc: func(ctx context.Context, repositoryURL, branch, prompt string) (string, error) {
			return "", fmt.Errorf("connect: connection refused")
		},
	}
	analyzer := newTestAnalyzer(t, client, 3)

	run, err := analyzer.AnalyzeWithGapFilling(ctx, "https://github.com/acme/api", "main")
	if err == nil {
		t.Fatal("expected error when the first iteration fails")
	}
	if run != nil {
		t.Errorf("expected nil run, got %+v", run)
	}
	if !IsAnalysisFailed(err) {
		t.Errorf("expected AnalysisFailedError, got %v", err)
	}
	if !IsUpstreamCallError(err) {
		t.Errorf("expected wrapped UpstreamCallError, got %v", err)
	}

	var uce *UpstreamCallError
	if !errors.As(err, &uce) {
		t.Fatalf("errors.As should find UpstreamCallError in %v", err)
	}
	if uce.RepositoryURL != "https://github.com/acme/api" {
		t.Errorf("RepositoryURL = %q", uce.RepositoryURL)
	}
	if uce.Iteration != 0 {
		t.Errorf("Iteration = %d, want 0", uce.Iteration)
	}
}

func TestAnalyzeWithGapFilling_FirstParseFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	client := &mockClient{
		analyzeFunc: func(ctx context.Context, repositoryURL, branch, prompt string) (string, error) {
			return "Everything looks fine to me.", nil
		},
	}
	analyzer := newTestAnalyzer(t, client, 3)

	_, err := analyzer.AnalyzeWithGapFilling(ctx, "https://github.com/acme/api", "main")
	if err == nil {
		t.Fatal("expected error when the first response is unusable")
	}
	if !IsAnalysisFailed(err) {
		t.Errorf("expected AnalysisFailedError, got %v", err)
	}
	if !parser.IsParseError(err) {
		t.Errorf("expected wrapped ParseError, got %v", err)
	}
	if IsUpstreamCallError(err) {
		t.Errorf("parse failure should not carry UpstreamCallError: %v", err)
	}
}

func TestAnalyzeWithGapFilling_LaterCallFailureDegrades(t *testing.T) {
	ctx := context.Background()
	client := &mockClient{}
	client.analyzeFunc = func(ctx context.Context, repositoryURL, branch, prompt string) (string, error) {
		if client.calls == 1 {
			return partialResponse, nil
		}
		return "", fmt.Errorf("upstream timed out")
	}
	analyzer := newTestAnalyzer(t, client, 5)

	run, err := analyzer.AnalyzeWithGapFilling(ctx, "https://github.com/acme/api", "main")
	if err != nil {
		t.Fatalf("later failures should not error, got: %v", err)
	}

	if !run.Degraded {
		t.Error("expected degraded=true")
	}
	if run.StopReason != StopUpstreamFailure {
		t.Errorf("StopReason = %q, want %q", run.StopReason, StopUpstreamFailure)
	}
	if len(run.Result.Issues) != 2 {
		t.Errorf("expected the first iteration's 2 issues, got %d", len(run.Result.Issues))
	}
	if len(run.Iterations) != 2 {
		t.Fatalf("expected 2 iteration records, got %d", len(run.Iterations))
	}
	failed := run.Iterations[1]
	if failed.Error == "" {
		t.Error("failed iteration should record its error")
	}
	if failed.Completeness != run.Iterations[0].Completeness {
		t.Errorf("failed iteration should snapshot prior completeness: %v vs %v",
			failed.Completeness, run.Iterations[0].Completeness)
	}
}

func TestAnalyzeWithGapFilling_LaterParseFailureDegrades(t *testing.T) {
	ctx := context.Background()
	client := &mockClient{}
	client.analyzeFunc = func(ctx context.Context, repositoryURL, branch, prompt string) (string, error) {
		if client.calls == 1 {
			return partialResponse, nil
		}
		return "No further comment.", nil
	}
	analyzer := newTestAnalyzer(t, client, 5)

	run, err := analyzer.AnalyzeWithGapFilling(ctx, "https://github.com/acme/api", "main")
	if err != nil {
		t.Fatalf("later failures should not error, got: %v", err)
	}
	if !run.Degraded {
		t.Error("expected degraded=true")
	}
	if run.StopReason != StopParseFailure {
		t.Errorf("StopReason = %q, want %q", run.StopReason, StopParseFailure)
	}
	if len(run.Result.Issues) != 2 {
		t.Errorf("expected accumulated issues to survive, got %d", len(run.Result.Issues))
	}
}

func TestAnalyzeWithGapFilling_FollowUpPromptsTargetGaps(t *testing.T) {
	ctx := context.Background()
	client := &mockClient{}
	client.analyzeFunc = func(ctx context.Context, repositoryURL, branch, prompt string) (string, error) {
		if client.calls == 1 {
			return partialResponse, nil
		}
		return completeResponse, nil
	}
	analyzer := newTestAnalyzer(t, client, 5)

	if _, err := analyzer.AnalyzeWithGapFilling(ctx, "https://github.com/acme/api", "main"); err != nil {
		t.Fatalf("AnalyzeWithGapFilling failed: %v", err)
	}

	if len(client.prompts) < 2 {
		t.Fatalf("expected at least 2 prompts, got %d", len(client.prompts))
	}
	if !strings.Contains(client.prompts[0], "comprehensive code analysis") {
		t.Errorf("first prompt should be comprehensive, got: %s", client.prompts[0][:80])
	}
	followUp := client.prompts[1]
	if !strings.Contains(followUp, "Find security issues") {
		t.Error("follow-up should target the missing security category")
	}
	if !strings.Contains(followUp, "gaps") {
		t.Errorf("follow-up should reference remaining gaps, got: %s", followUp[:80])
	}
	if strings.Contains(followUp, "comprehensive code analysis") {
		t.Error("follow-up should not repeat the comprehensive prompt")
	}
}

func TestAnalyzeWithGapFilling_DefaultsBranch(t *testing.T) {
	ctx := context.Background()
	client := &mockClient{}
	analyzer := newTestAnalyzer(t, client, 3)

	run, err := analyzer.AnalyzeWithGapFilling(ctx, "https://github.com/acme/api", "")
	if err != nil {
		t.Fatalf("AnalyzeWithGapFilling failed: %v", err)
	}
	if run.Branch != DefaultBranch {
		t.Errorf("Branch = %q, want %q", run.Branch, DefaultBranch)
	}
	for i, branch := range client.branches {
		if branch != DefaultBranch {
			t.Errorf("call %d used branch %q, want %q", i, branch, DefaultBranch)
		}
	}
}

func TestAnalyzeWithGapFilling_EmptyRepositoryURL(t *testing.T) {
	ctx := context.Background()
	client := &mockClient{}
	analyzer := newTestAnalyzer(t, client, 3)

	if _, err := analyzer.AnalyzeWithGapFilling(ctx, "", "main"); err == nil {
		t.Fatal("expected error for empty repository URL")
	}
	if client.calls != 0 {
		t.Errorf("client should not be called, got %d calls", client.calls)
	}
}

func TestAnalyzeWithGapFilling_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &mockClient{}
	analyzer := newTestAnalyzer(t, client, 3)

	_, err := analyzer.AnalyzeWithGapFilling(ctx, "https://github.com/acme/api", "main")
	if err == nil {
		t.Fatal("expected error for canceled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled in chain, got %v", err)
	}
}
