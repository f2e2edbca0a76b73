// Package directory searches external indexes for candidate data sources
// able to answer questions in a given topic category.
package directory

import (
	"context"
	"net/url"
	"strings"
)

// Candidate is a potential data source surfaced by a directory search.
// It is unvalidated and unregistered until the discovery engine probes it.
type Candidate struct {
	Endpoint    string
	Title       string
	Description string
	Category    string
}

// Search queries one external directory backend for candidate sources.
type Search interface {
	// Name identifies the backend in logs and discovery results.
	Name() string
	// SearchCost is the price of a single search call.
	SearchCost() float64
	// Search runs the given queries and returns deduplicated candidates.
	Search(ctx context.Context, queries []string, category string) ([]Candidate, error)
}

// dedupeCandidates drops candidates whose normalized endpoint was already
// seen, preserving first-seen order.
func dedupeCandidates(cands []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(cands))
	var out []Candidate
	for _, c := range cands {
		key := normalizeEndpoint(c.Endpoint)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// normalizeEndpoint lowercases the host and strips trailing slashes so
// https://API.example.com/ and https://api.example.com compare equal.
// Returns "" for endpoints that are not absolute http(s) URLs.
func normalizeEndpoint(endpoint string) string {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	if u.Host == "" {
		return ""
	}
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimRight(u.Path, "/")
	u.Fragment = ""
	return u.String()
}
