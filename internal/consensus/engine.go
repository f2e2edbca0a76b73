// Package consensus orchestrates one research call end to end: classify the
// question, select sources, fan out queries, filter outliers, vote, and
// commit the audit trail.
package consensus

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/SoraOracle/SoraOracle-sub003/internal/budget"
	"github.com/SoraOracle/SoraOracle-sub003/internal/catalog"
	"github.com/SoraOracle/SoraOracle-sub003/internal/classifier"
	"github.com/SoraOracle/SoraOracle-sub003/internal/config"
	"github.com/SoraOracle/SoraOracle-sub003/internal/discovery"
	"github.com/SoraOracle/SoraOracle-sub003/internal/fetcher"
	"github.com/SoraOracle/SoraOracle-sub003/internal/model"
	"github.com/SoraOracle/SoraOracle-sub003/internal/payment"
	"github.com/SoraOracle/SoraOracle-sub003/internal/proofchain"
	"github.com/SoraOracle/SoraOracle-sub003/internal/reputation"
	"github.com/SoraOracle/SoraOracle-sub003/internal/resilience"
)

// maxFanOut is the hard cap on parallel source queries.
const maxFanOut = 10

// Discoverer runs a budgeted discovery pass for a topic.
type Discoverer interface {
	Discover(ctx context.Context, topic model.Topic, budgetLimit float64) (discovery.Result, error)
}

// RunRecorder persists research run lifecycle records. All methods are
// best-effort from the engine's point of view: persistence failures are
// logged, never fatal.
type RunRecorder interface {
	CreateRun(ctx context.Context, run model.ResearchRun) error
	UpdateRunStatus(ctx context.Context, id string, status model.RunStatus) error
	CompleteRun(ctx context.Context, id string, status model.RunStatus, result *model.ConsensusResult) error
}

// Options wires the engine's collaborators. Classifier, Catalog, Fetcher,
// and Chain are required; the rest default to safe no-op or in-memory
// implementations.
type Options struct {
	Classifier classifier.Classifier
	Catalog    *catalog.Catalog
	Discovery  Discoverer
	Fetcher    fetcher.Fetcher
	Payments   payment.Authorizer
	Reputation *reputation.Tracker
	Trust      reputation.TrustModel
	Chain      *proofchain.Chain
	Runs       RunRecorder

	Research        config.ResearchConfig
	DiscoveryBudget float64 // fraction of the research budget, 0 < f <= 1
}

// CallOption overrides one research default for a single call. Zero or
// out-of-range values fall back to the engine's configured defaults.
type CallOption func(*config.ResearchConfig)

// WithBudget caps total spend for one call.
func WithBudget(budget float64) CallOption {
	return func(c *config.ResearchConfig) {
		if budget > 0 {
			c.Budget = budget
		}
	}
}

// WithMinSources overrides the minimum source count for one call.
func WithMinSources(n int) CallOption {
	return func(c *config.ResearchConfig) {
		if n > 0 {
			c.MinSources = n
		}
	}
}

// WithDiscovery enables or disables discovery for one call.
func WithDiscovery(allow bool) CallOption {
	return func(c *config.ResearchConfig) {
		c.AllowDiscovery = allow
	}
}

// Engine is the sole entry point for answering research questions.
type Engine struct {
	classify   classifier.Classifier
	catalog    *catalog.Catalog
	discover   Discoverer
	fetch      fetcher.Fetcher
	payments   payment.Authorizer
	reputation *reputation.Tracker
	trust      reputation.TrustModel
	chain      *proofchain.Chain
	runs       RunRecorder
	breakers   *resilience.BreakerSet
	cfg        config.ResearchConfig
	discBudget float64
}

// NewEngine creates a consensus engine.
func NewEngine(opts Options) *Engine {
	if opts.Payments == nil {
		opts.Payments = payment.NoopAuthorizer{}
	}
	if opts.Reputation == nil {
		opts.Reputation = reputation.NewTracker()
	}
	if opts.Trust == nil {
		opts.Trust = reputation.ModelByName(opts.Research.TrustModel)
	}
	if opts.Research.OutlierK <= 0 {
		opts.Research.OutlierK = DefaultOutlierK
	}
	if opts.Research.MinSources <= 0 {
		opts.Research.MinSources = 5
	}
	if opts.Research.MaxParallel <= 0 || opts.Research.MaxParallel > maxFanOut {
		opts.Research.MaxParallel = maxFanOut
	}
	if opts.DiscoveryBudget <= 0 || opts.DiscoveryBudget > 1 {
		opts.DiscoveryBudget = 0.2
	}

	return &Engine{
		classify:   opts.Classifier,
		catalog:    opts.Catalog,
		discover:   opts.Discovery,
		fetch:      opts.Fetcher,
		payments:   opts.Payments,
		reputation: opts.Reputation,
		trust:      opts.Trust,
		chain:      opts.Chain,
		runs:       opts.Runs,
		breakers:   resilience.NewBreakerSet(resilience.DefaultBreakerConfig()),
		cfg:        opts.Research,
		discBudget: opts.DiscoveryBudget,
	}
}

// ResearchQuestion answers one yes/no question by consensus across
// independent sources. The returned result carries the proof chain root
// hash for later verification.
func (e *Engine) ResearchQuestion(ctx context.Context, text string, opts ...CallOption) (*model.ConsensusResult, error) {
	cc := e.cfg
	for _, o := range opts {
		o(&cc)
	}

	q := model.NewQuestion(text)
	runID := uuid.NewString()

	e.recordCreate(ctx, model.ResearchRun{
		ID:           runID,
		QuestionHash: q.ContentHash,
		QuestionText: q.Text,
		Status:       model.RunStatusQueued,
	})

	setStatus := func(status model.RunStatus) {
		if e.runs == nil {
			return
		}
		if err := e.runs.UpdateRunStatus(ctx, runID, status); err != nil {
			zap.L().Warn("consensus: run status update failed",
				zap.String("run_id", runID),
				zap.String("status", string(status)),
				zap.Error(err),
			)
		}
	}
	fail := func(err error) (*model.ConsensusResult, error) {
		e.recordComplete(ctx, runID, model.RunStatusFailed, nil)
		return nil, err
	}

	// 1. Classify.
	setStatus(model.RunStatusClassifying)
	topic, err := e.classify.Classify(ctx, q)
	if err != nil {
		return fail(&ClassificationFailedError{Err: err})
	}

	ledger := budget.NewLedger(cc.Budget)

	// 2-3. Catalog lookup, discovery when the category is thin.
	sources := e.catalog.FindByCategory(topic.Category)
	if len(sources) < cc.MinSources && cc.AllowDiscovery && e.discover != nil {
		setStatus(model.RunStatusDiscovering)
		sources = e.runDiscovery(ctx, topic, ledger, sources, cc.Budget)
	}

	if len(sources) < cc.MinSources {
		return fail(&InsufficientSourcesError{
			Category:  topic.Category,
			Available: len(sources),
			Required:  cc.MinSources,
		})
	}

	// 4. Fan out to the best-reputed sources.
	setStatus(model.RunStatusQuerying)
	selected := e.selectSources(sources)
	dps, failures := e.queryAll(ctx, selected, q, ledger)
	// Cancellation mid-flight keeps finished queries as evidence; the call
	// only fails outright when nothing was collected.
	if err := ctx.Err(); err != nil && len(dps) == 0 {
		e.recordComplete(ctx, runID, model.RunStatusFailed, nil)
		return nil, err
	}

	for _, f := range failures {
		zap.L().Warn("consensus: source skipped",
			zap.String("source_id", f.SourceID),
			zap.String("stage", f.Stage),
			zap.Error(f.Err),
		)
	}

	// 5. Outlier filter.
	inliers, outliers := FilterOutliers(dps, e.cfg.OutlierK)
	if len(inliers) == 0 {
		return fail(&NoConsensusError{
			QuestionHash: q.ContentHash,
			Responded:    len(dps),
			Outliers:     len(outliers),
		})
	}

	// 6. Weighted vote.
	vote, ok := WeightedVote(inliers, func(dp model.DataPoint) float64 {
		return e.trust.Weight(dp, e.reputation.Get(dp.SourceID))
	})
	if !ok {
		return fail(&NoConsensusError{
			QuestionHash: q.ContentHash,
			Responded:    len(dps),
			Outliers:     len(outliers),
		})
	}

	// 7. Reputation update for every source that answered.
	e.updateReputation(ctx, inliers, outliers, vote.Outcome)

	// 8. Proof chain commit.
	result := &model.ConsensusResult{
		QuestionHash:      q.ContentHash,
		Category:          topic.Category,
		Outcome:           vote.Outcome,
		Confidence:        vote.Confidence,
		ConsensusStrength: vote.Strength,
		IncludedSources:   sourceIDs(inliers),
		ExcludedOutliers:  sourceIDs(outliers),
		TotalCost:         ledger.Spent(),
		SourcesAttempted:  len(selected),
		SourcesSucceeded:  len(dps),
	}

	rootHash, err := e.chain.StoreRecord(ctx, proofchain.RootRecord{
		QuestionHash: q.ContentHash,
		ChildHashes:  responseHashes(dps),
		Outliers:     sourceIDs(outliers),
		Result:       result,
	})
	if err != nil {
		return fail(err)
	}
	result.ProofHash = rootHash

	e.recordComplete(ctx, runID, model.RunStatusComplete, result)

	zap.L().Info("consensus: research complete",
		zap.String("question_hash", q.ContentHash),
		zap.String("category", topic.Category),
		zap.Bool("outcome", result.Outcome),
		zap.Float64("confidence", result.Confidence),
		zap.Float64("strength", result.ConsensusStrength),
		zap.Int("inliers", len(inliers)),
		zap.Int("outliers", len(outliers)),
		zap.Float64("total_cost", result.TotalCost),
	)

	return result, nil
}

// runDiscovery spends at most the configured fraction of the research
// budget looking for new sources, then re-reads the catalog. Discovery
// failures degrade to the existing source set.
func (e *Engine) runDiscovery(ctx context.Context, topic model.Topic, ledger *budget.Ledger, sources []model.Source, callBudget float64) []model.Source {
	subBudget := callBudget * e.discBudget
	if err := ledger.Reserve(subBudget); err != nil {
		zap.L().Warn("consensus: no budget left for discovery", zap.Error(err))
		return sources
	}

	res, err := e.discover.Discover(ctx, topic, subBudget)
	ledger.Commit(subBudget, res.CostSpent)
	if err != nil {
		zap.L().Warn("consensus: discovery failed",
			zap.String("category", topic.Category),
			zap.Error(err),
		)
		return sources
	}

	zap.L().Info("consensus: discovery registered sources",
		zap.String("category", topic.Category),
		zap.Int("registered", len(res.Registered)),
		zap.Float64("cost", res.CostSpent),
	)
	return e.catalog.FindByCategory(topic.Category)
}

// selectSources orders sources by reputation (success rate, then history
// depth, then id for determinism) and keeps the top MaxParallel.
func (e *Engine) selectSources(sources []model.Source) []model.Source {
	sorted := make([]model.Source, len(sources))
	copy(sorted, sources)

	recs := make(map[string]model.ReputationRecord, len(sorted))
	for _, s := range sorted {
		recs[s.ID] = e.reputation.Get(s.ID)
	}

	sort.Slice(sorted, func(i, j int) bool {
		ri, rj := recs[sorted[i].ID], recs[sorted[j].ID]
		if ri.SuccessRate != rj.SuccessRate {
			return ri.SuccessRate > rj.SuccessRate
		}
		if ri.TotalQueries != rj.TotalQueries {
			return ri.TotalQueries > rj.TotalQueries
		}
		return sorted[i].ID < sorted[j].ID
	})

	if len(sorted) > e.cfg.MaxParallel {
		sorted = sorted[:e.cfg.MaxParallel]
	}
	return sorted
}

// queryAll fans out one query per source under the parallelism cap. Every
// failure is local: recorded and skipped, never fatal to siblings.
func (e *Engine) queryAll(ctx context.Context, sources []model.Source, q model.Question, ledger *budget.Ledger) ([]model.DataPoint, []QueryFailure) {
	var mu sync.Mutex
	var dps []model.DataPoint
	var failures []QueryFailure

	addFailure := func(f QueryFailure) {
		mu.Lock()
		failures = append(failures, f)
		mu.Unlock()
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxParallel)

	for _, src := range sources {
		g.Go(func() error {
			dp, f := e.querySource(gCtx, src, q, ledger)
			if f != nil {
				addFailure(*f)
				return nil
			}
			mu.Lock()
			dps = append(dps, dp)
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return dps, failures
}

// querySource runs the breaker/budget/payment/fetch/parse pipeline for one
// source and stores the raw response in the proof chain on success.
func (e *Engine) querySource(ctx context.Context, src model.Source, q model.Question, ledger *budget.Ledger) (model.DataPoint, *QueryFailure) {
	breaker := e.breakers.For(src.ID)
	if err := breaker.Allow(); err != nil {
		return model.DataPoint{}, &QueryFailure{SourceID: src.ID, Stage: FailureBreaker, Err: err}
	}

	if err := ledger.Reserve(src.CostPerCall); err != nil {
		return model.DataPoint{}, &QueryFailure{SourceID: src.ID, Stage: FailureBudget, Err: err}
	}

	if src.CostPerCall > 0 {
		if _, err := e.payments.Authorize(ctx, src.ID, src.CostPerCall); err != nil {
			ledger.Release(src.CostPerCall)
			return model.DataPoint{}, &QueryFailure{SourceID: src.ID, Stage: FailurePayment, Err: err}
		}
	}

	timeout := time.Duration(e.cfg.SourceTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	body, proof, err := e.fetch.FetchVerified(fetchCtx, src.Endpoint, q.Text)
	elapsed := time.Since(start)
	breaker.Record(err)
	if err != nil {
		ledger.Release(src.CostPerCall)
		return model.DataPoint{}, &QueryFailure{SourceID: src.ID, Stage: FailureFetch, Err: err}
	}

	ans, err := fetcher.ParseAnswer(body)
	if err != nil {
		ledger.Release(src.CostPerCall)
		return model.DataPoint{}, &QueryFailure{SourceID: src.ID, Stage: FailureParse, Err: err}
	}

	ledger.Commit(src.CostPerCall, src.CostPerCall)
	rawHash := e.chain.Store(ctx, body)

	return model.DataPoint{
		SourceID:        src.ID,
		RawResponseHash: rawHash,
		Outcome:         ans.Outcome,
		Confidence:      ans.Confidence,
		ResponseTimeMs:  elapsed.Milliseconds(),
		Timestamp:       time.Now().UTC(),
		Origin:          proof,
	}, nil
}

// updateReputation credits inliers that matched the outcome and debits the
// rest. Outliers count as incorrect under the canonical policy; with
// PenalizeOutliers off they are judged by agreement like everyone else.
func (e *Engine) updateReputation(ctx context.Context, inliers, outliers []model.DataPoint, outcome bool) {
	for _, dp := range inliers {
		e.reputation.Update(ctx, dp.SourceID, dp.Outcome == outcome, dp.ResponseTimeMs, dp.Confidence)
	}
	for _, dp := range outliers {
		wasCorrect := dp.Outcome == outcome && !e.cfg.PenalizeOutliers
		e.reputation.Update(ctx, dp.SourceID, wasCorrect, dp.ResponseTimeMs, dp.Confidence)
	}
}

func (e *Engine) recordCreate(ctx context.Context, run model.ResearchRun) {
	if e.runs == nil {
		return
	}
	if err := e.runs.CreateRun(ctx, run); err != nil {
		zap.L().Warn("consensus: run create failed",
			zap.String("run_id", run.ID),
			zap.Error(err),
		)
	}
}

func (e *Engine) recordComplete(ctx context.Context, runID string, status model.RunStatus, result *model.ConsensusResult) {
	if e.runs == nil {
		return
	}
	if err := e.runs.CompleteRun(ctx, runID, status, result); err != nil {
		zap.L().Warn("consensus: run complete failed",
			zap.String("run_id", runID),
			zap.Error(err),
		)
	}
}

func sourceIDs(dps []model.DataPoint) []string {
	out := make([]string, len(dps))
	for i, dp := range dps {
		out[i] = dp.SourceID
	}
	sort.Strings(out)
	return out
}

func responseHashes(dps []model.DataPoint) []string {
	out := make([]string, len(dps))
	for i, dp := range dps {
		out[i] = dp.RawResponseHash
	}
	return out
}
