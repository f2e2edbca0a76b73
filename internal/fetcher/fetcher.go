// Package fetcher queries registered data sources over HTTP and verifies
// response origin from TLS connection state.
package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/SoraOracle/SoraOracle-sub003/internal/model"
	"github.com/SoraOracle/SoraOracle-sub003/internal/resilience"
)

// maxResponseBytes caps how much of a source response is read. Source
// answers are small JSON documents; anything larger is a misbehaving
// endpoint.
const maxResponseBytes = 1 << 20

// Fetcher queries a single source endpoint for one question.
type Fetcher interface {
	// FetchVerified performs the query and returns the raw response body
	// along with an origin proof derived from the connection.
	FetchVerified(ctx context.Context, endpoint, question string) ([]byte, model.OriginProof, error)
}

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	Retry     resilience.RetryConfig
}

// HTTPFetcher implements Fetcher using net/http with retries on transient
// failures.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions
}

// NewHTTPFetcher creates an HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "oracle/1.0"
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts: opts,
	}
}

// FetchVerified issues GET <endpoint>?q=<question> and returns the body.
// Transient statuses (408, 429, 5xx) and network errors are retried;
// anything else fails immediately.
func (f *HTTPFetcher) FetchVerified(ctx context.Context, endpoint, question string) ([]byte, model.OriginProof, error) {
	reqURL, err := buildQueryURL(endpoint, question)
	if err != nil {
		return nil, model.OriginProof{}, err
	}

	type fetchResult struct {
		body  []byte
		proof model.OriginProof
	}

	res, err := resilience.DoVal(ctx, f.opts.Retry, func(ctx context.Context) (fetchResult, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fetchResult{}, eris.Wrap(err, "fetcher: create request")
		}
		req.Header.Set("User-Agent", f.opts.UserAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := f.client.Do(req)
		if err != nil {
			return fetchResult{}, eris.Wrap(err, "fetcher: request failed")
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return fetchResult{}, eris.Wrap(err, "fetcher: read response body")
		}

		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("fetcher: status %d from %s", resp.StatusCode, endpoint)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return fetchResult{}, resilience.NewTransientError(err, resp.StatusCode)
			}
			return fetchResult{}, err
		}

		return fetchResult{body: body, proof: originProof(resp)}, nil
	})
	if err != nil {
		return nil, model.OriginProof{}, err
	}

	zap.L().Debug("fetcher: fetched source response",
		zap.String("endpoint", endpoint),
		zap.Int("bytes", len(res.body)),
		zap.Bool("origin_verified", res.proof.Verified),
	)

	return res.body, res.proof, nil
}

// buildQueryURL appends the question as the q query parameter, preserving
// any parameters already present on the endpoint.
func buildQueryURL(endpoint, question string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: parse endpoint %q", endpoint)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", eris.Errorf("fetcher: unsupported endpoint scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("q", question)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// originProof derives an origin proof from the completed response. A
// response served over TLS with a verified chain counts as verified; plain
// HTTP never does.
func originProof(resp *http.Response) model.OriginProof {
	proof := model.OriginProof{Method: "tls"}
	if resp.TLS == nil {
		proof.Method = "none"
		return proof
	}
	proof.Domain = resp.TLS.ServerName
	if len(resp.TLS.VerifiedChains) > 0 {
		proof.Verified = true
	}
	return proof
}
