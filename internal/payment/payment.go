// Package payment authorizes paid source queries against a payment
// gateway. Sources with a zero cost per call never reach the gateway.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/SoraOracle/SoraOracle-sub003/internal/config"
)

// Token is the opaque proof of payment attached to a paid source query.
type Token struct {
	Value     string    `json:"value"`
	SourceID  string    `json:"source_id"`
	Amount    float64   `json:"amount"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Authorizer issues payment tokens for paid source queries.
type Authorizer interface {
	// Authorize obtains a payment token covering one query to the source.
	Authorize(ctx context.Context, sourceID string, amount float64) (Token, error)
}

// DeniedError reports that the gateway refused to authorize a payment.
type DeniedError struct {
	SourceID string
	Amount   float64
	Reason   string
}

func (e *DeniedError) Error() string {
	return "payment: denied for source " + e.SourceID + ": " + e.Reason
}

// NoopAuthorizer authorizes everything without contacting a gateway. Used
// for free sources and in tests.
type NoopAuthorizer struct{}

func (NoopAuthorizer) Authorize(_ context.Context, sourceID string, amount float64) (Token, error) {
	return Token{SourceID: sourceID, Amount: amount, IssuedAt: time.Now().UTC()}, nil
}

// GatewayAuthorizer obtains tokens from an HTTP payment gateway.
type GatewayAuthorizer struct {
	baseURL string
	key     string
	http    *http.Client
}

// NewGateway creates a gateway-backed authorizer from config.
func NewGateway(cfg config.PaymentConfig) *GatewayAuthorizer {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GatewayAuthorizer{
		baseURL: cfg.GatewayURL,
		key:     cfg.Key,
		http:    &http.Client{Timeout: timeout},
	}
}

type authorizeRequest struct {
	SourceID string  `json:"source_id"`
	Amount   float64 `json:"amount"`
}

type authorizeResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Error     string    `json:"error"`
}

func (g *GatewayAuthorizer) Authorize(ctx context.Context, sourceID string, amount float64) (Token, error) {
	body, err := json.Marshal(authorizeRequest{SourceID: sourceID, Amount: amount})
	if err != nil {
		return Token{}, eris.Wrap(err, "payment: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/authorize", bytes.NewReader(body))
	if err != nil {
		return Token{}, eris.Wrap(err, "payment: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if g.key != "" {
		req.Header.Set("Authorization", "Bearer "+g.key)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return Token{}, eris.Wrap(err, "payment: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, eris.Wrap(err, "payment: read response")
	}

	var parsed authorizeResponse
	if uerr := json.Unmarshal(respBody, &parsed); uerr != nil && resp.StatusCode == http.StatusOK {
		return Token{}, eris.Wrap(uerr, "payment: unmarshal response")
	}

	switch resp.StatusCode {
	case http.StatusOK:
		zap.L().Debug("payment: authorized",
			zap.String("source_id", sourceID),
			zap.Float64("amount", amount),
		)
		return Token{
			Value:     parsed.Token,
			SourceID:  sourceID,
			Amount:    amount,
			IssuedAt:  time.Now().UTC(),
			ExpiresAt: parsed.ExpiresAt,
		}, nil

	case http.StatusPaymentRequired, http.StatusForbidden:
		reason := parsed.Error
		if reason == "" {
			reason = http.StatusText(resp.StatusCode)
		}
		return Token{}, &DeniedError{SourceID: sourceID, Amount: amount, Reason: reason}

	default:
		return Token{}, eris.Errorf("payment: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
}
