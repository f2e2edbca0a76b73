package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/SoraOracle/SoraOracle-sub003/internal/catalog"
	"github.com/SoraOracle/SoraOracle-sub003/internal/classifier"
	"github.com/SoraOracle/SoraOracle-sub003/internal/consensus"
	"github.com/SoraOracle/SoraOracle-sub003/internal/directory"
	"github.com/SoraOracle/SoraOracle-sub003/internal/discovery"
	"github.com/SoraOracle/SoraOracle-sub003/internal/fetcher"
	"github.com/SoraOracle/SoraOracle-sub003/internal/payment"
	"github.com/SoraOracle/SoraOracle-sub003/internal/proofchain"
	"github.com/SoraOracle/SoraOracle-sub003/internal/reputation"
	"github.com/SoraOracle/SoraOracle-sub003/internal/resilience"
	"github.com/SoraOracle/SoraOracle-sub003/internal/store"
	anthropicpkg "github.com/SoraOracle/SoraOracle-sub003/pkg/anthropic"
	"github.com/SoraOracle/SoraOracle-sub003/pkg/jina"
	"github.com/SoraOracle/SoraOracle-sub003/pkg/perplexity"
)

// oracleEnv holds the initialized store, registries, and consensus engine
// shared by the research and serve commands.
type oracleEnv struct {
	Store   store.Store // nil when the store driver is "none"
	Catalog *catalog.Catalog
	Tracker *reputation.Tracker
	Chain   *proofchain.Chain
	Engine  *consensus.Engine
}

// Close releases the store. Safe to call on an env without one.
func (e *oracleEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("store close failed", zap.Error(err))
		}
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "oracle.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	case "none", "":
		return nil, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initRegistries builds the catalog, reputation tracker, and proof chain,
// attached to the store when one is configured, and loads persisted state.
func initRegistries(ctx context.Context, st store.Store) (*catalog.Catalog, *reputation.Tracker, *proofchain.Chain, error) {
	var (
		catOpts   []catalog.Option
		trackOpts []reputation.Option
		chainOpts []proofchain.Option
	)
	if st != nil {
		if err := st.Migrate(ctx); err != nil {
			return nil, nil, nil, eris.Wrap(err, "migrate store")
		}
		catOpts = append(catOpts, catalog.WithStore(st))
		trackOpts = append(trackOpts, reputation.WithStore(st))
		chainOpts = append(chainOpts, proofchain.WithStore(st))
	}

	cat := catalog.New(catOpts...)
	if err := cat.Load(ctx); err != nil {
		return nil, nil, nil, err
	}
	tracker := reputation.NewTracker(trackOpts...)
	if err := tracker.Load(ctx); err != nil {
		return nil, nil, nil, err
	}
	chain := proofchain.New(chainOpts...)

	return cat, tracker, chain, nil
}

func initEngine(ctx context.Context) (*oracleEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	cat, tracker, chain, err := initRegistries(ctx, st)
	if err != nil {
		if st != nil {
			_ = st.Close()
		}
		return nil, err
	}

	fetch := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout: time.Duration(cfg.Research.SourceTimeoutSecs) * time.Second,
		Retry:   resilience.DefaultRetryConfig(),
	})

	// Directory backends are optional; discovery degrades to catalog-only
	// research when no search API keys are configured.
	var backends []directory.Search
	if cfg.Jina.Key != "" {
		jinaClient := jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.SearchBaseURL))
		backends = append(backends, directory.NewJinaSearch(jinaClient, cfg.Jina))
	}
	if cfg.Perplexity.Key != "" {
		pplxClient := perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
		)
		backends = append(backends, directory.NewPerplexitySearch(pplxClient, cfg.Perplexity))
	}

	opts := consensus.Options{
		Classifier:      classifier.New(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic),
		Catalog:         cat,
		Fetcher:         fetch,
		Reputation:      tracker,
		Chain:           chain,
		Research:        cfg.Research,
		DiscoveryBudget: cfg.Discovery.BudgetFraction,
	}
	if len(backends) > 0 {
		opts.Discovery = discovery.NewEngine(backends, fetch, cat, cfg.Discovery)
	}
	if cfg.Payment.GatewayURL != "" {
		opts.Payments = payment.NewGateway(cfg.Payment)
	}
	if st != nil {
		opts.Runs = st
	}

	zap.L().Info("engine initialized",
		zap.String("store", cfg.Store.Driver),
		zap.Int("directory_backends", len(backends)),
		zap.Int("catalog_sources", cat.Len()),
	)

	return &oracleEnv{
		Store:   st,
		Catalog: cat,
		Tracker: tracker,
		Chain:   chain,
		Engine:  consensus.NewEngine(opts),
	}, nil
}
