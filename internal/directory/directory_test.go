package directory

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SoraOracle/SoraOracle-sub003/internal/config"
	"github.com/SoraOracle/SoraOracle-sub003/pkg/jina"
	"github.com/SoraOracle/SoraOracle-sub003/pkg/perplexity"
)

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases_host", "https://API.Example.com/v1", "https://api.example.com/v1"},
		{"strips_trailing_slash", "https://api.example.com/v1/", "https://api.example.com/v1"},
		{"keeps_query", "https://api.example.com/v1?key=x", "https://api.example.com/v1?key=x"},
		{"rejects_relative", "/v1/data", ""},
		{"rejects_ftp", "ftp://files.example.com", ""},
		{"rejects_empty", "", ""},
		{"rejects_garbage", "not a url at all ::", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeEndpoint(tt.in))
		})
	}
}

func TestDedupeCandidates(t *testing.T) {
	cands := []Candidate{
		{Endpoint: "https://api.example.com/v1", Title: "first"},
		{Endpoint: "https://API.example.com/v1/", Title: "same after normalization"},
		{Endpoint: "https://other.example.com", Title: "second"},
		{Endpoint: "not-a-url", Title: "dropped"},
	}

	out := dedupeCandidates(cands)
	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0].Title)
	assert.Equal(t, "second", out[1].Title)
}

type mockJina struct {
	responses map[string]*jina.SearchResponse
	err       error
	calls     []string
}

func (m *mockJina) Search(_ context.Context, query string, _ ...jina.SearchOption) (*jina.SearchResponse, error) {
	m.calls = append(m.calls, query)
	if m.err != nil {
		return nil, m.err
	}
	if resp, ok := m.responses[query]; ok {
		return resp, nil
	}
	return &jina.SearchResponse{Code: 200}, nil
}

func TestJinaSearch(t *testing.T) {
	mock := &mockJina{
		responses: map[string]*jina.SearchResponse{
			"crypto btc price api": {
				Code: 200,
				Data: []jina.SearchResult{
					{Title: "CoinDesk API", URL: "https://api.coindesk.example/v1", Description: "btc prices"},
					{Title: "Dup", URL: "https://api.coindesk.example/v1/"},
				},
			},
			"crypto exchange rate api": {
				Code: 200,
				Data: []jina.SearchResult{
					{Title: "Rates", URL: "https://rates.example/api"},
				},
			},
		},
	}

	s := NewJinaSearch(mock, config.JinaConfig{SearchCost: 0.005, RateLimit: 100})
	assert.Equal(t, "jina", s.Name())
	assert.InDelta(t, 0.005, s.SearchCost(), 1e-9)

	cands, err := s.Search(context.Background(), []string{"crypto btc price api", "crypto exchange rate api"}, "crypto")
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, "https://api.coindesk.example/v1", cands[0].Endpoint)
	assert.Equal(t, "crypto", cands[0].Category)
	assert.Equal(t, "https://rates.example/api", cands[1].Endpoint)
	assert.Len(t, mock.calls, 2)
}

func TestJinaSearchAllQueriesFail(t *testing.T) {
	mock := &mockJina{err: eris.New("network down")}
	s := NewJinaSearch(mock, config.JinaConfig{RateLimit: 100})

	_, err := s.Search(context.Background(), []string{"a", "b"}, "crypto")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all jina searches failed")
}

func TestJinaSearchNoQueries(t *testing.T) {
	s := NewJinaSearch(&mockJina{}, config.JinaConfig{RateLimit: 100})
	cands, err := s.Search(context.Background(), nil, "crypto")
	require.NoError(t, err)
	assert.Empty(t, cands)
}

type mockPerplexity struct {
	resp *perplexity.ChatCompletionResponse
	err  error
}

func (m *mockPerplexity) ChatCompletion(_ context.Context, _ perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func TestPerplexitySearch(t *testing.T) {
	mock := &mockPerplexity{
		resp: &perplexity.ChatCompletionResponse{
			Choices: []perplexity.Choice{{
				Message: perplexity.Message{
					Role: "assistant",
					Content: `{"sources": [
						{"endpoint": "https://api.eia.example/v2", "title": "EIA", "description": "energy stats"},
						{"endpoint": "https://grid.example/api", "title": "Grid"}
					]}`,
				},
			}},
			Citations: []string{
				"https://api.eia.example/v2",
				"https://docs.other.example/reference",
			},
		},
	}

	s := NewPerplexitySearch(mock, config.PerplexityConfig{Model: "sonar-pro", SearchCost: 0.005})
	assert.Equal(t, "perplexity", s.Name())

	cands, err := s.Search(context.Background(), []string{"energy grid api"}, "energy")
	require.NoError(t, err)
	// Two structured sources plus one non-duplicate citation.
	require.Len(t, cands, 3)
	assert.Equal(t, "https://api.eia.example/v2", cands[0].Endpoint)
	assert.Equal(t, "EIA", cands[0].Title)
	assert.Equal(t, "energy", cands[0].Category)
	assert.Equal(t, "https://docs.other.example/reference", cands[2].Endpoint)
}

func TestPerplexitySearchCitationsOnlyWhenAnswerMalformed(t *testing.T) {
	mock := &mockPerplexity{
		resp: &perplexity.ChatCompletionResponse{
			Choices: []perplexity.Choice{{
				Message: perplexity.Message{Role: "assistant", Content: "I could not find structured sources."},
			}},
			Citations: []string{"https://api.example.com/data"},
		},
	}

	s := NewPerplexitySearch(mock, config.PerplexityConfig{})
	cands, err := s.Search(context.Background(), []string{"q"}, "other")
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "https://api.example.com/data", cands[0].Endpoint)
}

func TestPerplexitySearchError(t *testing.T) {
	s := NewPerplexitySearch(&mockPerplexity{err: eris.New("quota exceeded")}, config.PerplexityConfig{})
	_, err := s.Search(context.Background(), []string{"q"}, "crypto")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "perplexity search")
}

func TestPerplexitySearchNoChoices(t *testing.T) {
	s := NewPerplexitySearch(&mockPerplexity{resp: &perplexity.ChatCompletionResponse{}}, config.PerplexityConfig{})
	_, err := s.Search(context.Background(), []string{"q"}, "crypto")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}
