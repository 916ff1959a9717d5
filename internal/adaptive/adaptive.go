package adaptive

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alpsla/codequal/internal/gaps"
	"github.com/alpsla/codequal/internal/merge"
	"github.com/alpsla/codequal/internal/parser"
	"github.com/alpsla/codequal/internal/types"
)

// Client is the upstream analysis service. Implementations send one prompt
// about one repository branch and return the raw response text, which may
// be JSON, prose, or any mixture of the two.
type Client interface {
	// Analyze sends a single analysis request. The context carries the
	// per-call deadline; implementations must honor cancellation.
	Analyze(ctx context.Context, repositoryURL, branch, prompt string) (string, error)
}

// StopReason identifies why an analysis run ended.
type StopReason string

const (
	// StopConverged means completeness reached the configured threshold
	// with no critical gaps remaining.
	StopConverged StopReason = "converged"

	// StopNoProgress means the gap count failed to shrink for consecutive
	// iterations.
	StopNoProgress StopReason = "no_progress"

	// StopNoNewIssues means consecutive iterations added zero new issues
	// after merging.
	StopNoNewIssues StopReason = "no_new_issues"

	// StopMaxIterations means the run used its full iteration budget.
	StopMaxIterations StopReason = "max_iterations"

	// StopUpstreamFailure means a later iteration's service call failed
	// and the run kept its accumulated findings.
	StopUpstreamFailure StopReason = "upstream_failure"

	// StopParseFailure means a later iteration's response was unusable by
	// every parsing strategy and the run kept its accumulated findings.
	StopParseFailure StopReason = "parse_failure"
)

// IterationRecord captures what a single iteration contributed.
type IterationRecord struct {
	// Index is the zero-based iteration number.
	Index int `json:"index"`

	// Duration covers the service call plus parsing and merging.
	Duration time.Duration `json:"duration"`

	// Strategy is the parsing strategy that produced this iteration's
	// result. Empty when the iteration failed before parsing.
	Strategy parser.Strategy `json:"strategy,omitempty"`

	// NewIssues is how many issues the merge added that were not already
	// accumulated. Duplicates refine existing issues and do not count.
	NewIssues int `json:"new_issues"`

	// TotalIssues is the accumulated issue count after this iteration.
	TotalIssues int `json:"total_issues"`

	// Completeness is the gap analysis score (0-100) after this iteration.
	Completeness float64 `json:"completeness"`

	// TotalGaps is the open gap count after this iteration.
	TotalGaps int `json:"total_gaps"`

	// Error describes a failed iteration. Empty on success.
	Error string `json:"error,omitempty"`
}

// RunResult is the final outcome of an adaptive analysis run.
type RunResult struct {
	// RunID uniquely identifies this run for history and comparison.
	RunID string `json:"run_id"`

	// RepositoryURL and Branch identify what was analyzed.
	RepositoryURL string `json:"repository_url"`
	Branch        string `json:"branch"`

	// Result is the merged analysis across all successful iterations.
	Result *types.AnalysisResult `json:"result"`

	// GapAnalysis is the final gap measurement of Result.
	GapAnalysis *gaps.Analysis `json:"gap_analysis"`

	// Iterations records each iteration in order, including failed ones.
	Iterations []IterationRecord `json:"iterations"`

	// TotalDuration is wall-clock time for the whole run.
	TotalDuration time.Duration `json:"total_duration"`

	// Completeness is the final score (0-100), mirrored from GapAnalysis.
	Completeness float64 `json:"completeness"`

	// Converged is true only when the run stopped because completeness
	// reached the threshold, never when it merely ran out of budget.
	Converged bool `json:"converged"`

	// StopReason records which condition ended the run.
	StopReason StopReason `json:"stop_reason"`

	// Degraded is true when a later iteration failed and the run returned
	// partial findings instead of an error.
	Degraded bool `json:"degraded"`
}

// Analyzer drives the iterative gap-filling loop against an analysis
// service.
type Analyzer struct {
	client Client
	config Config
}

// NewAnalyzer creates an analyzer for the given service client.
//
// Returns an error if client is nil or the configuration is invalid, so
// misconfiguration surfaces before any network activity.
func NewAnalyzer(client Client, config Config) (*Analyzer, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Analyzer{
		client: client,
		config: config,
	}, nil
}

// AnalyzeWithGapFilling runs the full adaptive loop for one repository
// branch and returns the merged findings.
//
// The loop:
//  1. Sends a comprehensive analysis prompt on the first iteration,
//     gap-targeted follow-up prompts afterward
//  2. Parses each response through the fallback chain and merges the
//     findings into the accumulated result
//  3. Measures gaps after every merge and stops on convergence, a
//     no-progress streak, a no-new-issues streak, or the iteration cap
//
// Early stops are never taken before three iterations have completed; a
// single lucky response is not convergence. The iteration cap always
// applies.
//
// Failure semantics: if the first iteration fails there is nothing to
// return and the error is an AnalysisFailedError wrapping the cause. If a
// later iteration fails, the run stops and returns the findings gathered
// so far with Degraded set.
//
// If branch is empty, DefaultBranch is analyzed.
func (a *Analyzer) AnalyzeWithGapFilling(ctx context.Context, repositoryURL, branch string) (*RunResult, error) {
	if repositoryURL == "" {
		return nil, fmt.Errorf("repository URL cannot be empty")
	}
	if branch == "" {
		branch = DefaultBranch
	}

	startTime := time.Now()
	run := &RunResult{
		RunID:         uuid.New().String(),
		RepositoryURL: repositoryURL,
		Branch:        branch,
		Iterations:    make([]IterationRecord, 0, a.config.MaxIterations),
	}

	slog.Info("Starting adaptive analysis",
		"runID", run.RunID,
		"repository", repositoryURL,
		"branch", branch,
		"maxIterations", a.config.MaxIterations)

	var accumulated *types.AnalysisResult
	var gapAnalysis *gaps.Analysis

	// Streak counters for the voluntary stop conditions. previousGapCount
	// starts at MaxInt so the first measurement always counts as progress.
	noProgress := 0
	noNewIssues := 0
	previousGapCount := math.MaxInt

	for index := 0; index < a.config.MaxIterations; index++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("analysis canceled after %d iterations: %w", index, err)
		}

		prompt := buildPrompt(index, gapAnalysis)
		iterStart := time.Now()

		text, callErr := a.callWithTimeout(ctx, repositoryURL, branch, prompt)
		if callErr != nil {
			uce := &UpstreamCallError{
				RepositoryURL: repositoryURL,
				Branch:        branch,
				Iteration:     index,
				Err:           callErr,
			}
			if index == 0 {
				return nil, &AnalysisFailedError{
					RepositoryURL: repositoryURL,
					Branch:        branch,
					Cause:         uce,
				}
			}
			slog.Warn("Analysis call failed, keeping accumulated findings",
				"runID", run.RunID,
				"iteration", index,
				"error", callErr)
			run.Iterations = append(run.Iterations, IterationRecord{
				Index:        index,
				Duration:     time.Since(iterStart),
				TotalIssues:  len(accumulated.Issues),
				Completeness: gapAnalysis.Completeness,
				TotalGaps:    gapAnalysis.TotalGaps,
				Error:        uce.Error(),
			})
			run.Degraded = true
			run.StopReason = StopUpstreamFailure
			break
		}

		outcome, parseErr := parser.Parse(text)
		if parseErr != nil {
			if index == 0 {
				return nil, &AnalysisFailedError{
					RepositoryURL: repositoryURL,
					Branch:        branch,
					Cause:         parseErr,
				}
			}
			slog.Warn("Response unusable by every parsing strategy, keeping accumulated findings",
				"runID", run.RunID,
				"iteration", index,
				"error", parseErr)
			run.Iterations = append(run.Iterations, IterationRecord{
				Index:        index,
				Duration:     time.Since(iterStart),
				TotalIssues:  len(accumulated.Issues),
				Completeness: gapAnalysis.Completeness,
				TotalGaps:    gapAnalysis.TotalGaps,
				Error:        parseErr.Error(),
			})
			run.Degraded = true
			run.StopReason = StopParseFailure
			break
		}

		previousTotal := 0
		if accumulated != nil {
			previousTotal = len(accumulated.Issues)
		}

		accumulated = merge.Results(accumulated, outcome.Result)
		gapAnalysis = gaps.Analyze(accumulated)
		newIssues := len(accumulated.Issues) - previousTotal

		// Update streaks on every iteration, including those before the
		// early-stop floor, so a stall that starts early is not forgotten.
		if gapAnalysis.TotalGaps < previousGapCount {
			noProgress = 0
		} else {
			noProgress++
		}
		previousGapCount = gapAnalysis.TotalGaps

		if newIssues == 0 {
			noNewIssues++
		} else {
			noNewIssues = 0
		}

		run.Iterations = append(run.Iterations, IterationRecord{
			Index:        index,
			Duration:     time.Since(iterStart),
			Strategy:     outcome.Strategy,
			NewIssues:    newIssues,
			TotalIssues:  len(accumulated.Issues),
			Completeness: gapAnalysis.Completeness,
			TotalGaps:    gapAnalysis.TotalGaps,
		})

		slog.Info("Iteration complete",
			"runID", run.RunID,
			"iteration", index,
			"strategy", outcome.Strategy,
			"newIssues", newIssues,
			"totalIssues", len(accumulated.Issues),
			"completeness", gapAnalysis.Completeness,
			"gaps", gapAnalysis.TotalGaps)

		if index >= minIterationIndexFloor {
			if gapAnalysis.IsComplete(a.config.MinCompleteness) {
				run.Converged = true
				run.StopReason = StopConverged
				break
			}
			if noProgress >= noProgressLimit {
				run.StopReason = StopNoProgress
				break
			}
			if noNewIssues >= noNewIssuesLimit {
				run.StopReason = StopNoNewIssues
				break
			}
		}
	}

	if run.StopReason == "" {
		run.StopReason = StopMaxIterations
	}

	run.Result = accumulated
	run.GapAnalysis = gapAnalysis
	if gapAnalysis != nil {
		run.Completeness = gapAnalysis.Completeness
	}
	run.TotalDuration = time.Since(startTime)

	slog.Info("Adaptive analysis finished",
		"runID", run.RunID,
		"iterations", len(run.Iterations),
		"completeness", run.Completeness,
		"stopReason", run.StopReason,
		"converged", run.Converged,
		"degraded", run.Degraded,
		"duration", run.TotalDuration)

	return run, nil
}

// callWithTimeout bounds a single service call with the configured
// per-call timeout.
func (a *Analyzer) callWithTimeout(ctx context.Context, repositoryURL, branch, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.config.CallTimeout)
	defer cancel()
	return a.client.Analyze(callCtx, repositoryURL, branch, prompt)
}
