package model

import "time"

// Source is a catalog entry for one external data provider. Sources are owned
// by the catalog: mutated only through registration and deactivation, never
// deleted (deactivation preserves audit history).
type Source struct {
	ID           string    `json:"id" db:"id"`
	Endpoint     string    `json:"endpoint" db:"endpoint"`
	Categories   []string  `json:"categories" db:"categories"`
	CostPerCall  float64   `json:"cost_per_call" db:"cost_per_call"`
	Discovered   bool      `json:"discovered" db:"discovered"`
	Active       bool      `json:"active" db:"active"`
	RegisteredAt time.Time `json:"registered_at" db:"registered_at"`
}

// HasCategory reports whether the source serves the given category.
func (s Source) HasCategory(category string) bool {
	for _, c := range s.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// ReputationRecord holds rolling performance statistics for one source,
// 1:1 with a catalog entry. TotalQueries == CorrectCount + WrongCount holds
// at all times.
type ReputationRecord struct {
	SourceID          string  `json:"source_id" db:"source_id"`
	TotalQueries      int64   `json:"total_queries" db:"total_queries"`
	CorrectCount      int64   `json:"correct_count" db:"correct_count"`
	WrongCount        int64   `json:"wrong_count" db:"wrong_count"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms" db:"avg_response_time_ms"`
	AvgConfidence     float64 `json:"avg_confidence" db:"avg_confidence"`
	SuccessRate       float64 `json:"success_rate" db:"success_rate"`
}
