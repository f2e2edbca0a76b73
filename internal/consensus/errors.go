package consensus

import "fmt"

// ClassificationFailedError is fatal: without a category there is no way to
// select sources.
type ClassificationFailedError struct {
	Err error
}

func (e *ClassificationFailedError) Error() string {
	return fmt.Sprintf("consensus: classification failed: %v", e.Err)
}

func (e *ClassificationFailedError) Unwrap() error {
	return e.Err
}

// InsufficientSourcesError is returned when fewer sources than the required
// minimum serve the category, even after discovery.
type InsufficientSourcesError struct {
	Category  string
	Available int
	Required  int
}

func (e *InsufficientSourcesError) Error() string {
	return fmt.Sprintf("consensus: insufficient sources for category %q: %d available, %d required",
		e.Category, e.Available, e.Required)
}

// NoConsensusError is returned when outlier filtering leaves zero inliers to
// vote with.
type NoConsensusError struct {
	QuestionHash string
	Responded    int
	Outliers     int
}

func (e *NoConsensusError) Error() string {
	return fmt.Sprintf("consensus: no consensus for question %s: %d responded, %d excluded as outliers",
		e.QuestionHash, e.Responded, e.Outliers)
}

// Failure stages for skipped sources during fan-out.
const (
	FailureBreaker = "breaker"
	FailureBudget  = "budget"
	FailurePayment = "payment"
	FailureFetch   = "fetch"
	FailureParse   = "parse"
)

// QueryFailure records why one source produced no DataPoint. Failures are
// local: they never abort sibling queries.
type QueryFailure struct {
	SourceID string
	Stage    string
	Err      error
}

func (f QueryFailure) Error() string {
	return fmt.Sprintf("consensus: source %s failed at %s: %v", f.SourceID, f.Stage, f.Err)
}
