// Package adaptive drives iterative, gap-filling code analysis runs.
//
// # Overview
//
// A single call to the analysis service rarely produces complete results:
// some categories come back empty, issue counts run thin, and locations go
// missing. The adaptive package closes those gaps by calling the service
// repeatedly, measuring what is still missing after each pass, and asking
// targeted follow-up questions until the results converge or the iteration
// budget runs out.
//
// # Iteration Loop
//
// Each run proceeds through the same cycle:
//
//  1. Build a prompt: comprehensive on the first iteration, gap-targeted
//     afterward (see prompts.go)
//  2. Call the service with a per-call timeout
//  3. Parse the response through the fallback chain (internal/parser)
//  4. Merge the findings into the accumulated result (internal/merge)
//  5. Measure gaps and completeness (internal/gaps)
//  6. Decide whether to stop
//
// # Stop Conditions
//
// Checked in priority order after each iteration:
//
//   - Converged: completeness reached MinCompleteness with no critical
//     gaps remaining
//   - No progress: the gap count failed to shrink for two consecutive
//     iterations
//   - No new issues: two consecutive iterations added nothing after
//     merging
//   - Max iterations: the configured budget is exhausted
//
// The first three are voluntary and are never taken before three
// iterations have completed; a single fortunate response does not prove
// the analysis is done. The iteration cap applies unconditionally.
//
// # Failure Semantics
//
// A failure on the first iteration is fatal: there are no findings to
// return, so AnalyzeWithGapFilling returns an AnalysisFailedError wrapping
// the cause (an UpstreamCallError for service failures, a parser.ParseError
// for unusable responses).
//
// A failure on any later iteration is not fatal: the run stops, keeps
// everything accumulated so far, and marks the result Degraded with a
// StopReason recording what went wrong. Partial findings beat no findings.
//
// # Configuration
//
// The defaults bound cost and latency:
//   - MaxIterations: 3 (hard cap 10)
//   - CallTimeout: 5 minutes per service call
//   - MinCompleteness: 80 (early-stop threshold)
//
// See DefaultConfig() and ConfigFromEnv() for details.
//
// # Usage Example
//
// Basic run against a repository:
//
//	client, err := deepwiki.NewClient(deepwiki.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//
//	analyzer, err := adaptive.NewAnalyzer(client, adaptive.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//
//	run, err := analyzer.AnalyzeWithGapFilling(ctx, repoURL, "main")
//	if err != nil {
//	    var failed *adaptive.AnalysisFailedError
//	    if errors.As(err, &failed) {
//	        log.Printf("no results for %s: %v", failed.RepositoryURL, failed.Cause)
//	    }
//	    return err
//	}
//
//	log.Printf("run %s: %d issues, completeness %.1f%%, stopped: %s",
//	    run.RunID, len(run.Result.Issues), run.Completeness, run.StopReason)
//	if run.Degraded {
//	    log.Printf("partial results: a later iteration failed")
//	}
package adaptive
