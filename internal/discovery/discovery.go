// Package discovery finds, validates, and registers new data sources for
// topic categories the catalog cannot yet serve.
package discovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SoraOracle/SoraOracle-sub003/internal/budget"
	"github.com/SoraOracle/SoraOracle-sub003/internal/catalog"
	"github.com/SoraOracle/SoraOracle-sub003/internal/config"
	"github.com/SoraOracle/SoraOracle-sub003/internal/directory"
	"github.com/SoraOracle/SoraOracle-sub003/internal/fetcher"
	"github.com/SoraOracle/SoraOracle-sub003/internal/model"
)

// maxValidationParallel bounds concurrent candidate probes.
const maxValidationParallel = 4

// Result summarizes one discovery pass.
type Result struct {
	Registered      []model.Source
	CandidatesTried int
	CostSpent       float64
	PartialFailure  bool
}

// Engine searches directory backends for candidate sources, probes each
// candidate with a real query, and registers the ones that answer.
type Engine struct {
	backends []directory.Search
	fetch    fetcher.Fetcher
	catalog  *catalog.Catalog
	cfg      config.DiscoveryConfig
}

// NewEngine creates a discovery engine over the given directory backends.
func NewEngine(backends []directory.Search, fetch fetcher.Fetcher, cat *catalog.Catalog, cfg config.DiscoveryConfig) *Engine {
	return &Engine{
		backends: backends,
		fetch:    fetch,
		catalog:  cat,
		cfg:      cfg,
	}
}

// Discover runs one budgeted discovery pass for the topic. Backend failures
// degrade the result (PartialFailure) rather than aborting it; the only way
// Discover itself fails is context cancellation.
func (e *Engine) Discover(ctx context.Context, topic model.Topic, budgetLimit float64) (Result, error) {
	ledger := budget.NewLedger(budgetLimit)
	queries := DeriveQueries(topic)

	var res Result

	candidates := e.searchBackends(ctx, topic, queries, ledger, &res)
	if err := ctx.Err(); err != nil {
		res.CostSpent = ledger.Spent()
		return res, err
	}

	candidates = e.filterKnown(candidates)
	if len(candidates) > e.maxCandidates() {
		candidates = candidates[:e.maxCandidates()]
	}

	e.validateAndRegister(ctx, candidates, topic, ledger, &res)

	res.CostSpent = ledger.Spent()
	zap.L().Info("discovery: pass complete",
		zap.String("category", topic.Category),
		zap.Int("candidates_tried", res.CandidatesTried),
		zap.Int("registered", len(res.Registered)),
		zap.Float64("cost_spent", res.CostSpent),
		zap.Bool("partial_failure", res.PartialFailure),
	)

	return res, ctx.Err()
}

// searchBackends queries directory backends in order within budget,
// collecting deduplicated candidates and stopping once the candidate cap is
// reached so later backends are not paid for results that would be dropped.
func (e *Engine) searchBackends(ctx context.Context, topic model.Topic, queries []string, ledger *budget.Ledger, res *Result) []directory.Candidate {
	var all []directory.Candidate
	seen := make(map[string]struct{})

	for _, backend := range e.backends {
		if ctx.Err() != nil {
			return all
		}
		if len(all) >= e.maxCandidates() {
			break
		}

		cost := backend.SearchCost() * float64(len(queries))
		if err := ledger.Reserve(cost); err != nil {
			zap.L().Warn("discovery: skipping backend, budget exhausted",
				zap.String("backend", backend.Name()),
				zap.Float64("cost", cost),
				zap.Float64("remaining", ledger.Remaining()),
			)
			res.PartialFailure = true
			continue
		}

		cands, err := backend.Search(ctx, queries, topic.Category)
		if err != nil {
			ledger.Release(cost)
			res.PartialFailure = true
			zap.L().Warn("discovery: backend search failed",
				zap.String("backend", backend.Name()),
				zap.Error(err),
			)
			continue
		}
		ledger.Commit(cost, cost)

		for _, c := range cands {
			if _, ok := seen[c.Endpoint]; ok {
				continue
			}
			seen[c.Endpoint] = struct{}{}
			all = append(all, c)
		}
	}

	return all
}

// filterKnown drops candidates whose endpoint is already in the catalog.
func (e *Engine) filterKnown(cands []directory.Candidate) []directory.Candidate {
	known := make(map[string]struct{})
	for _, src := range e.catalog.All() {
		known[src.Endpoint] = struct{}{}
	}

	var out []directory.Candidate
	for _, c := range cands {
		if _, ok := known[c.Endpoint]; ok {
			continue
		}
		out = append(out, c)
	}
	return out
}

// validateAndRegister probes candidates concurrently and registers the ones
// that answer a real query within the validation timeout.
func (e *Engine) validateAndRegister(ctx context.Context, cands []directory.Candidate, topic model.Topic, ledger *budget.Ledger, res *Result) {
	probeQuestion := probeQuestionFor(topic)
	probeCost := e.cfg.DefaultCostPerCall

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxValidationParallel)

	for _, cand := range cands {
		if err := ledger.Reserve(probeCost); err != nil {
			mu.Lock()
			res.PartialFailure = true
			mu.Unlock()
			break
		}

		mu.Lock()
		res.CandidatesTried++
		mu.Unlock()

		g.Go(func() error {
			ok := e.probe(gCtx, cand, probeQuestion)
			if !ok {
				ledger.Release(probeCost)
				return nil
			}
			ledger.Commit(probeCost, probeCost)

			categories := []string{topic.Category}
			if cand.Category != "" && cand.Category != topic.Category {
				categories = append(categories, cand.Category)
			}
			src := model.Source{
				ID:          SourceID(cand.Endpoint),
				Endpoint:    cand.Endpoint,
				Categories:  categories,
				CostPerCall: e.cfg.DefaultCostPerCall,
				Discovered:  true,
			}
			if err := e.catalog.Register(gCtx, src); err != nil {
				zap.L().Warn("discovery: register failed",
					zap.String("endpoint", cand.Endpoint),
					zap.Error(err),
				)
				return nil
			}

			mu.Lock()
			res.Registered = append(res.Registered, src)
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
}

// probe issues one real query against the candidate and checks the response
// parses as an answer.
func (e *Engine) probe(ctx context.Context, cand directory.Candidate, question string) bool {
	timeout := time.Duration(e.cfg.ValidationTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, _, err := e.fetch.FetchVerified(probeCtx, cand.Endpoint, question)
	if err != nil {
		zap.L().Debug("discovery: candidate probe failed",
			zap.String("endpoint", cand.Endpoint),
			zap.Error(err),
		)
		return false
	}

	if _, err := fetcher.ParseAnswer(body); err != nil {
		zap.L().Debug("discovery: candidate response unusable",
			zap.String("endpoint", cand.Endpoint),
			zap.Error(err),
		)
		return false
	}

	return true
}

func (e *Engine) maxCandidates() int {
	if e.cfg.MaxCandidates <= 0 {
		return 10
	}
	return e.cfg.MaxCandidates
}

// DeriveQueries builds deterministic directory search queries from a topic:
// one per keyword plus a category-wide query, capped at five. Topics without
// keywords fall back to the category query alone.
func DeriveQueries(topic model.Topic) []string {
	queries := []string{fmt.Sprintf("%s data api", topic.Category)}
	for _, kw := range topic.Keywords {
		if len(queries) == 5 {
			break
		}
		queries = append(queries, fmt.Sprintf("%s %s api", topic.Category, kw))
	}
	return queries
}

// SourceID derives a stable identifier for a discovered endpoint, so
// repeated discovery of the same endpoint is idempotent.
func SourceID(endpoint string) string {
	sum := sha256.Sum256([]byte(endpoint))
	return "disc-" + hex.EncodeToString(sum[:])[:12]
}

// probeQuestionFor builds the validation question from the topic keywords.
func probeQuestionFor(topic model.Topic) string {
	if len(topic.Keywords) > 0 {
		return fmt.Sprintf("is %s data available", topic.Keywords[0])
	}
	return fmt.Sprintf("is %s data available", topic.Category)
}
