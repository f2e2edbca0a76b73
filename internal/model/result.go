package model

import "time"

// ConsensusResult is the final answer for one research call, returned to the
// caller and committed to the proof chain.
type ConsensusResult struct {
	QuestionHash      string   `json:"question_hash"`
	Category          string   `json:"category"`
	Outcome           bool     `json:"outcome"`
	Confidence        float64  `json:"confidence"`
	ConsensusStrength float64  `json:"consensus_strength"`
	IncludedSources   []string `json:"included_sources"`
	ExcludedOutliers  []string `json:"excluded_outliers"`
	ProofHash         string   `json:"proof_hash"`
	TotalCost         float64  `json:"total_cost"`
	SourcesAttempted  int      `json:"sources_attempted"`
	SourcesSucceeded  int      `json:"sources_succeeded"`
}

// RunStatus tracks a research run through its lifecycle.
type RunStatus string

// Run statuses.
const (
	RunStatusQueued      RunStatus = "queued"
	RunStatusClassifying RunStatus = "classifying"
	RunStatusDiscovering RunStatus = "discovering"
	RunStatusQuerying    RunStatus = "querying"
	RunStatusComplete    RunStatus = "complete"
	RunStatusFailed      RunStatus = "failed"
)

// ResearchRun is the persistence record for one ResearchQuestion call.
type ResearchRun struct {
	ID           string           `json:"id" db:"id"`
	QuestionHash string           `json:"question_hash" db:"question_hash"`
	QuestionText string           `json:"question_text" db:"question_text"`
	Status       RunStatus        `json:"status" db:"status"`
	Result       *ConsensusResult `json:"result,omitempty" db:"result"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at" db:"updated_at"`
}

// ProofRecord is a content-addressed blob in the proof chain. Hash is a
// deterministic function of Payload: identical payloads always yield the
// same hash.
type ProofRecord struct {
	Hash    string `json:"hash"`
	Payload []byte `json:"payload"`
}
