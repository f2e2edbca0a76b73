package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/SoraOracle/SoraOracle-sub003/internal/config"
	"github.com/SoraOracle/SoraOracle-sub003/pkg/anthropic"
	"github.com/SoraOracle/SoraOracle-sub003/pkg/perplexity"
)

const perplexitySystemPrompt = `You locate machine-readable data APIs. Given a topic, list public HTTP APIs that return JSON and could answer yes/no questions about that topic.

Respond with a valid JSON object and nothing else:
{"sources": [{"endpoint": "<https url>", "title": "<name>", "description": "<one sentence>"}]}`

// PerplexitySearch finds candidate sources by asking the Perplexity model
// for data APIs on a topic. Citations from the answer are included as
// additional candidates.
type PerplexitySearch struct {
	client perplexity.Client
	model  string
	cost   float64
}

// NewPerplexitySearch creates a Perplexity-backed directory search.
func NewPerplexitySearch(client perplexity.Client, cfg config.PerplexityConfig) *PerplexitySearch {
	return &PerplexitySearch{
		client: client,
		model:  cfg.Model,
		cost:   cfg.SearchCost,
	}
}

func (s *PerplexitySearch) Name() string { return "perplexity" }

func (s *PerplexitySearch) SearchCost() float64 { return s.cost }

func (s *PerplexitySearch) Search(ctx context.Context, queries []string, category string) ([]Candidate, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	temp := 0.2
	prompt := fmt.Sprintf("Topic category: %s\nSearch queries:\n- %s",
		category, strings.Join(queries, "\n- "))

	resp, err := s.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model: s.model,
		Messages: []perplexity.Message{
			{Role: "system", Content: perplexitySystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "directory: perplexity search")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("directory: perplexity returned no choices")
	}

	candidates := parseSuggestions(resp.Choices[0].Message.Content, category)

	// Citations are URLs the model consulted; keep them as fallback
	// candidates when the structured answer is thin.
	for _, c := range resp.Citations {
		candidates = append(candidates, Candidate{
			Endpoint: strings.TrimSpace(c),
			Category: category,
		})
	}

	out := dedupeCandidates(candidates)
	zap.L().Debug("directory: perplexity search complete",
		zap.String("category", category),
		zap.Int("candidates", len(out)),
	)
	return out, nil
}

// parseSuggestions decodes the structured answer. A malformed answer yields
// no candidates rather than an error; citations still apply.
func parseSuggestions(text, category string) []Candidate {
	text = anthropic.CleanJSON(text)

	var result struct {
		Sources []struct {
			Endpoint    string `json:"endpoint"`
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"sources"`
	}
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		zap.L().Warn("directory: perplexity answer not parseable", zap.Error(err))
		return nil
	}

	var out []Candidate
	for _, src := range result.Sources {
		out = append(out, Candidate{
			Endpoint:    strings.TrimSpace(src.Endpoint),
			Title:       src.Title,
			Description: src.Description,
			Category:    category,
		})
	}
	return out
}
