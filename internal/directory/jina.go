package directory

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/SoraOracle/SoraOracle-sub003/internal/config"
	"github.com/SoraOracle/SoraOracle-sub003/pkg/jina"
)

// JinaSearch finds candidate sources through the Jina Search API.
type JinaSearch struct {
	client  jina.Client
	cost    float64
	limiter *rate.Limiter
}

// NewJinaSearch creates a Jina-backed directory search.
func NewJinaSearch(client jina.Client, cfg config.JinaConfig) *JinaSearch {
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 5
	}
	return &JinaSearch{
		client:  client,
		cost:    cfg.SearchCost,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (s *JinaSearch) Name() string { return "jina" }

func (s *JinaSearch) SearchCost() float64 { return s.cost }

func (s *JinaSearch) Search(ctx context.Context, queries []string, category string) ([]Candidate, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	var all []Candidate
	var failures int

	for _, query := range queries {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "directory: jina rate limit wait")
		}

		resp, err := s.client.Search(ctx, query)
		if err != nil {
			failures++
			zap.L().Warn("directory: jina search failed",
				zap.String("query", query),
				zap.Error(err),
			)
			continue
		}

		for _, r := range resp.Data {
			all = append(all, Candidate{
				Endpoint:    strings.TrimSpace(r.URL),
				Title:       r.Title,
				Description: r.Description,
				Category:    category,
			})
		}
	}

	if failures == len(queries) {
		return nil, eris.New("directory: all jina searches failed")
	}

	return dedupeCandidates(all), nil
}
