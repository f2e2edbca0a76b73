// Package catalog implements the concurrency-safe registry of known data
// sources, queryable by category.
package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/SoraOracle/SoraOracle-sub003/internal/model"
)

// Persister is the optional write-through persistence hook. The catalog is
// fully functional without one.
type Persister interface {
	SaveSource(ctx context.Context, src model.Source) error
	ListSources(ctx context.Context) ([]model.Source, error)
}

// Catalog is a concurrency-safe store of known data sources. Reads are
// concurrent; writes are infrequent and exclusive.
type Catalog struct {
	mu      sync.RWMutex
	sources map[string]model.Source
	store   Persister

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// Option configures the catalog.
type Option func(*Catalog)

// WithStore enables write-through persistence of catalog entries.
func WithStore(p Persister) Option {
	return func(c *Catalog) {
		c.store = p
	}
}

// New creates an empty catalog.
func New(opts ...Option) *Catalog {
	c := &Catalog{
		sources: make(map[string]model.Source),
		nowFunc: time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Load populates the catalog from the configured store. It is a no-op when
// no store is attached.
func (c *Catalog) Load(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	sources, err := c.store.ListSources(ctx)
	if err != nil {
		return eris.Wrap(err, "catalog: load sources")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, src := range sources {
		c.sources[src.ID] = src
	}
	zap.L().Info("catalog loaded", zap.Int("sources", len(sources)))
	return nil
}

// Register inserts or updates a source by id. Re-registering an existing id
// overwrites its metadata but never touches its reputation record, which is
// keyed by the same id and owned elsewhere. Registration is idempotent, which
// keeps concurrent discovery of the same candidate safe.
func (c *Catalog) Register(ctx context.Context, src model.Source) error {
	if src.ID == "" {
		return eris.New("catalog: source id is required")
	}
	if src.Endpoint == "" {
		return eris.Errorf("catalog: source %s has empty endpoint", src.ID)
	}
	if src.CostPerCall < 0 {
		return eris.Errorf("catalog: source %s has negative cost per call", src.ID)
	}

	c.mu.Lock()
	if existing, ok := c.sources[src.ID]; ok && src.RegisteredAt.IsZero() {
		// Preserve the original registration time on metadata updates.
		src.RegisteredAt = existing.RegisteredAt
	}
	if src.RegisteredAt.IsZero() {
		src.RegisteredAt = c.nowFunc().UTC()
	}
	src.Active = true
	c.sources[src.ID] = src
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.SaveSource(ctx, src); err != nil {
			// Persistence lag is not fatal; the in-memory entry is authoritative.
			zap.L().Warn("catalog: persist source failed",
				zap.String("source_id", src.ID),
				zap.Error(err),
			)
		}
	}

	return nil
}

// FindByCategory returns all active sources serving the given category.
// Order is not significant; callers must not rely on it.
func (c *Catalog) FindByCategory(category string) []model.Source {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []model.Source
	for _, src := range c.sources {
		if src.Active && src.HasCategory(category) {
			out = append(out, src)
		}
	}
	return out
}

// Get returns the source with the given id.
func (c *Catalog) Get(id string) (model.Source, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	src, ok := c.sources[id]
	return src, ok
}

// Deactivate marks a source inactive. It is excluded from future
// FindByCategory results but its entry and history remain queryable.
func (c *Catalog) Deactivate(ctx context.Context, id string) error {
	c.mu.Lock()
	src, ok := c.sources[id]
	if !ok {
		c.mu.Unlock()
		return eris.Errorf("catalog: unknown source %s", id)
	}
	src.Active = false
	c.sources[id] = src
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.SaveSource(ctx, src); err != nil {
			zap.L().Warn("catalog: persist deactivation failed",
				zap.String("source_id", id),
				zap.Error(err),
			)
		}
	}
	return nil
}

// All returns every catalog entry, active or not.
func (c *Catalog) All() []model.Source {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Source, 0, len(c.sources))
	for _, src := range c.sources {
		out = append(out, src)
	}
	return out
}

// Len returns the number of catalog entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sources)
}
