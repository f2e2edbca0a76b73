// Package store persists catalog entries, reputation records, research
// runs, and proof blobs. Two backends: SQLite for single-node use and
// Postgres for shared deployments.
package store

import (
	"context"

	"github.com/SoraOracle/SoraOracle-sub003/internal/model"
)

// Store is the persistence surface. It satisfies the write-through
// Persister hooks of catalog, reputation, and proofchain, plus the engine's
// run bookkeeping.
type Store interface {
	// Sources
	SaveSource(ctx context.Context, src model.Source) error
	ListSources(ctx context.Context) ([]model.Source, error)

	// Reputation
	SaveReputation(ctx context.Context, rec model.ReputationRecord) error
	ListReputation(ctx context.Context) ([]model.ReputationRecord, error)

	// Research runs
	CreateRun(ctx context.Context, run model.ResearchRun) error
	UpdateRunStatus(ctx context.Context, id string, status model.RunStatus) error
	CompleteRun(ctx context.Context, id string, status model.RunStatus, result *model.ConsensusResult) error
	GetRun(ctx context.Context, id string) (*model.ResearchRun, error)

	// Proof blobs
	SaveProof(ctx context.Context, hash string, payload []byte) error
	GetProof(ctx context.Context, hash string) ([]byte, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
