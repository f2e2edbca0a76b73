// Package proofchain builds a content-addressed, hash-linked audit record of
// raw source responses and final consensus decisions, so any third party can
// re-verify that nothing was altered after the fact.
package proofchain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/SoraOracle/SoraOracle-sub003/internal/model"
)

// Persister is the optional write-through persistence hook for proof blobs.
type Persister interface {
	SaveProof(ctx context.Context, hash string, payload []byte) error
	GetProof(ctx context.Context, hash string) ([]byte, error)
}

// Chain is a content-addressed blob store. Storing identical bytes twice
// yields the same hash and a single stored copy.
type Chain struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	store Persister
}

// Option configures the chain.
type Option func(*Chain)

// WithStore enables write-through persistence of proof blobs.
func WithStore(p Persister) Option {
	return func(c *Chain) {
		c.store = p
	}
}

// New creates an empty proof chain.
func New(opts ...Option) *Chain {
	c := &Chain{blobs: make(map[string][]byte)}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Hash returns the hex sha256 of the payload. It is the single hashing
// function for the whole chain; Verify recomputes it.
func Hash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Store saves a payload and returns its content hash.
func (c *Chain) Store(ctx context.Context, payload []byte) string {
	h := Hash(payload)

	c.mu.Lock()
	_, exists := c.blobs[h]
	if !exists {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		c.blobs[h] = cp
	}
	c.mu.Unlock()

	if !exists && c.store != nil {
		if err := c.store.SaveProof(ctx, h, payload); err != nil {
			zap.L().Warn("proofchain: persist failed",
				zap.String("hash", h),
				zap.Error(err),
			)
		}
	}

	return h
}

// RootRecord is the payload of an audit-trail root. It references every raw
// response hash for a research call plus the final decision, forming a
// Merkle-like chain rooted at its own hash.
type RootRecord struct {
	QuestionHash string                 `json:"question_hash"`
	ChildHashes  []string               `json:"child_hashes"`
	Outliers     []string               `json:"outliers"`
	Result       *model.ConsensusResult `json:"result,omitempty"`
}

// StoreRecord stores a record referencing child hashes, returning the root
// hash. Child hashes are sorted before encoding so the root hash is a
// deterministic function of the referenced set.
func (c *Chain) StoreRecord(ctx context.Context, rec RootRecord) (string, error) {
	sort.Strings(rec.ChildHashes)
	sort.Strings(rec.Outliers)

	payload, err := json.Marshal(rec)
	if err != nil {
		return "", eris.Wrap(err, "proofchain: encode record")
	}
	return c.Store(ctx, payload), nil
}

// Get returns the payload for a hash, falling back to the persistent store
// when the blob is not resident.
func (c *Chain) Get(ctx context.Context, hash string) ([]byte, bool) {
	c.mu.RLock()
	payload, ok := c.blobs[hash]
	c.mu.RUnlock()
	if ok {
		return payload, true
	}

	if c.store != nil {
		payload, err := c.store.GetProof(ctx, hash)
		if err == nil && payload != nil {
			return payload, true
		}
	}
	return nil, false
}

// Verify recomputes the hash of payload and compares it to the claimed hash.
func (c *Chain) Verify(hash string, payload []byte) bool {
	return Hash(payload) == hash
}

// Len returns the number of resident blobs.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blobs)
}
