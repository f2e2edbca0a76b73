// Package classifier assigns a topic category and search keywords to a
// research question using an LLM.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/SoraOracle/SoraOracle-sub003/internal/config"
	"github.com/SoraOracle/SoraOracle-sub003/internal/model"
	"github.com/SoraOracle/SoraOracle-sub003/pkg/anthropic"
)

// Classifier determines the topic of a research question.
type Classifier interface {
	Classify(ctx context.Context, q model.Question) (model.Topic, error)
}

// Categories is the closed set of topic categories the engine understands.
// Source registrations and catalog lookups key off these values.
var Categories = []string{
	"crypto",
	"equities",
	"commodities",
	"forex",
	"sports",
	"politics",
	"weather",
	"energy",
	"economics",
	"entertainment",
	"science",
	"other",
}

const classifySystemPrompt = `You classify yes/no prediction-market questions into exactly one category from this list: crypto, equities, commodities, forex, sports, politics, weather, energy, economics, entertainment, science, other.

Also extract 2-5 short lowercase keywords that a data-source directory search would use to find APIs able to answer the question.

Respond with a valid JSON object and nothing else:
{"category": "<category>", "keywords": ["<kw1>", "<kw2>"], "reasoning": "<one sentence>"}`

const classifyUserPrompt = `Question: %s`

// llmClassifier implements Classifier on top of the Anthropic API.
type llmClassifier struct {
	ai    anthropic.Client
	model string
}

// New creates an LLM-backed classifier.
func New(ai anthropic.Client, cfg config.AnthropicConfig) Classifier {
	return &llmClassifier{ai: ai, model: cfg.Model}
}

func (c *llmClassifier) Classify(ctx context.Context, q model.Question) (model.Topic, error) {
	temp := 0.0
	resp, err := c.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   256,
		System:      classifySystemPrompt,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(classifyUserPrompt, q.Text)},
		},
	})
	if err != nil {
		return model.Topic{}, eris.Wrap(err, "classifier: create message")
	}

	topic, err := parseTopic(anthropic.ExtractText(resp))
	if err != nil {
		return model.Topic{}, err
	}

	zap.L().Debug("classifier: classified question",
		zap.String("question_hash", q.ContentHash),
		zap.String("category", topic.Category),
		zap.Strings("keywords", topic.Keywords),
	)

	return topic, nil
}

// parseTopic decodes the model output into a Topic, validating the category
// against the closed set and normalizing keywords.
func parseTopic(text string) (model.Topic, error) {
	text = anthropic.CleanJSON(text)

	var result struct {
		Category  string   `json:"category"`
		Keywords  []string `json:"keywords"`
		Reasoning string   `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return model.Topic{}, eris.Wrap(err, "classifier: unmarshal response")
	}

	category := strings.ToLower(strings.TrimSpace(result.Category))
	if !validCategory(category) {
		zap.L().Warn("classifier: unknown category from model, falling back to other",
			zap.String("category", result.Category),
		)
		category = "other"
	}

	keywords := normalizeKeywords(result.Keywords)
	if len(keywords) == 0 {
		return model.Topic{}, eris.New("classifier: no keywords in response")
	}

	return model.Topic{
		Category:  category,
		Keywords:  keywords,
		Reasoning: strings.TrimSpace(result.Reasoning),
	}, nil
}

func validCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

// normalizeKeywords lowercases, trims, and deduplicates keywords while
// preserving order.
func normalizeKeywords(kws []string) []string {
	seen := make(map[string]struct{}, len(kws))
	var out []string
	for _, kw := range kws {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}
