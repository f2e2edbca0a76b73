package model

import "time"

// OriginProof records what the fetcher could verify about where a response
// came from. The engine only cares about the Verified flag; the mechanics of
// certificate validation live entirely inside the fetcher.
type OriginProof struct {
	Verified bool   `json:"verified"`
	Domain   string `json:"domain,omitempty"`
	Method   string `json:"method,omitempty"`
}

// DataPoint is the parsed answer from querying one source for one question.
// It is immutable and scoped to a single research call.
type DataPoint struct {
	SourceID        string      `json:"source_id"`
	RawResponseHash string      `json:"raw_response_hash"`
	Outcome         bool        `json:"outcome"`
	Confidence      float64     `json:"confidence"`
	ResponseTimeMs  int64       `json:"response_time_ms"`
	Timestamp       time.Time   `json:"timestamp"`
	Origin          OriginProof `json:"origin"`
}

// OutcomeValue encodes the boolean outcome as 1/0 for the outlier statistics.
func (d DataPoint) OutcomeValue() float64 {
	if d.Outcome {
		return 1
	}
	return 0
}
