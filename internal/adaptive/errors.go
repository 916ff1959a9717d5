package adaptive

import (
	"errors"
	"fmt"
)

// UpstreamCallError reports a failed call to the analysis service. It
// carries enough context to identify which call failed without re-reading
// logs.
type UpstreamCallError struct {
	RepositoryURL string
	Branch        string
	Iteration     int
	Err           error
}

func (e *UpstreamCallError) Error() string {
	return fmt.Sprintf("analysis call failed for %s@%s (iteration %d): %v",
		e.RepositoryURL, e.Branch, e.Iteration, e.Err)
}

func (e *UpstreamCallError) Unwrap() error {
	return e.Err
}

// AnalysisFailedError means the run produced no results at all: the first
// iteration failed before any findings were accumulated. Later-iteration
// failures do not produce this error; they degrade the run instead.
type AnalysisFailedError struct {
	RepositoryURL string
	Branch        string
	Cause         error
}

func (e *AnalysisFailedError) Error() string {
	return fmt.Sprintf("analysis failed for %s@%s: %v", e.RepositoryURL, e.Branch, e.Cause)
}

func (e *AnalysisFailedError) Unwrap() error {
	return e.Cause
}

// IsAnalysisFailed reports whether err is (or wraps) an AnalysisFailedError.
func IsAnalysisFailed(err error) bool {
	var afe *AnalysisFailedError
	return errors.As(err, &afe)
}

// IsUpstreamCallError reports whether err is (or wraps) an UpstreamCallError.
func IsUpstreamCallError(err error) bool {
	var uce *UpstreamCallError
	return errors.As(err, &uce)
}
