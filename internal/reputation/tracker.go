// Package reputation maintains rolling per-source performance statistics and
// the trust models that feed them back into consensus weighting.
package reputation

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/SoraOracle/SoraOracle-sub003/internal/model"
)

// Persister is the optional write-through persistence hook.
type Persister interface {
	SaveReputation(ctx context.Context, rec model.ReputationRecord) error
	ListReputation(ctx context.Context) ([]model.ReputationRecord, error)
}

// entry pairs a record with its own lock so concurrent research calls
// touching different sources never contend.
type entry struct {
	mu  sync.Mutex
	rec model.ReputationRecord
}

// Tracker maintains one ReputationRecord per source. The map-level lock only
// guards entry lookup/creation; updates lock the entry itself.
type Tracker struct {
	mu      sync.RWMutex
	entries map[string]*entry
	store   Persister
}

// Option configures the tracker.
type Option func(*Tracker)

// WithStore enables write-through persistence of reputation records.
func WithStore(p Persister) Option {
	return func(t *Tracker) {
		t.store = p
	}
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{entries: make(map[string]*entry)}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Load populates the tracker from the configured store.
func (t *Tracker) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	records, err := t.store.ListReputation(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rec := range records {
		t.entries[rec.SourceID] = &entry{rec: rec}
	}
	return nil
}

func (t *Tracker) entryFor(sourceID string) *entry {
	t.mu.RLock()
	e, ok := t.entries[sourceID]
	t.mu.RUnlock()
	if ok {
		return e
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok = t.entries[sourceID]; ok {
		return e
	}
	e = &entry{rec: model.ReputationRecord{SourceID: sourceID}}
	t.entries[sourceID] = e
	return e
}

// Update records the outcome of one query against a source. The read-modify-
// write is atomic per source; updates to different sources proceed in
// parallel.
func (t *Tracker) Update(ctx context.Context, sourceID string, wasCorrect bool, responseTimeMs int64, confidence float64) {
	e := t.entryFor(sourceID)

	e.mu.Lock()
	rec := &e.rec
	rec.TotalQueries++
	if wasCorrect {
		rec.CorrectCount++
	} else {
		rec.WrongCount++
	}
	rec.SuccessRate = float64(rec.CorrectCount) / float64(rec.TotalQueries)

	// Rolling averages over all observed queries.
	n := float64(rec.TotalQueries)
	rec.AvgResponseTimeMs = rec.AvgResponseTimeMs + (float64(responseTimeMs)-rec.AvgResponseTimeMs)/n
	rec.AvgConfidence = rec.AvgConfidence + (confidence-rec.AvgConfidence)/n
	snapshot := *rec
	e.mu.Unlock()

	if t.store != nil {
		if err := t.store.SaveReputation(ctx, snapshot); err != nil {
			zap.L().Warn("reputation: persist failed",
				zap.String("source_id", sourceID),
				zap.Error(err),
			)
		}
	}
}

// Get returns a read-only snapshot of a source's record. The zero record is
// returned for sources never queried.
func (t *Tracker) Get(sourceID string) model.ReputationRecord {
	t.mu.RLock()
	e, ok := t.entries[sourceID]
	t.mu.RUnlock()
	if !ok {
		return model.ReputationRecord{SourceID: sourceID}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec
}

// Top returns up to limit records sorted by success rate descending, ties
// broken by total queries descending (more evidence ranks higher on equal
// rate).
func (t *Tracker) Top(limit int) []model.ReputationRecord {
	t.mu.RLock()
	records := make([]model.ReputationRecord, 0, len(t.entries))
	for _, e := range t.entries {
		e.mu.Lock()
		records = append(records, e.rec)
		e.mu.Unlock()
	}
	t.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].SuccessRate != records[j].SuccessRate {
			return records[i].SuccessRate > records[j].SuccessRate
		}
		if records[i].TotalQueries != records[j].TotalQueries {
			return records[i].TotalQueries > records[j].TotalQueries
		}
		return records[i].SourceID < records[j].SourceID
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}
