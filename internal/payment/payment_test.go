package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SoraOracle/SoraOracle-sub003/internal/config"
)

func TestNoopAuthorizer(t *testing.T) {
	tok, err := NoopAuthorizer{}.Authorize(context.Background(), "src-1", 0.01)
	require.NoError(t, err)
	assert.Equal(t, "src-1", tok.SourceID)
	assert.InDelta(t, 0.01, tok.Amount, 1e-9)
	assert.False(t, tok.IssuedAt.IsZero())
}

func TestGatewayAuthorize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/authorize", r.URL.Path)
		assert.Equal(t, "Bearer gw-key", r.Header.Get("Authorization"))

		var req authorizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "src-1", req.SourceID)
		assert.InDelta(t, 0.02, req.Amount, 1e-9)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token": "tok-abc"}`))
	}))
	defer srv.Close()

	g := NewGateway(config.PaymentConfig{GatewayURL: srv.URL, Key: "gw-key"})
	tok, err := g.Authorize(context.Background(), "src-1", 0.02)
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", tok.Value)
	assert.Equal(t, "src-1", tok.SourceID)
}

func TestGatewayDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error": "insufficient balance"}`))
	}))
	defer srv.Close()

	g := NewGateway(config.PaymentConfig{GatewayURL: srv.URL})
	_, err := g.Authorize(context.Background(), "src-2", 0.5)
	require.Error(t, err)

	var denied *DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, "src-2", denied.SourceID)
	assert.Equal(t, "insufficient balance", denied.Reason)
}

func TestGatewayDeniedWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	g := NewGateway(config.PaymentConfig{GatewayURL: srv.URL})
	_, err := g.Authorize(context.Background(), "src-3", 0.1)

	var denied *DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, "Forbidden", denied.Reason)
}

func TestGatewayUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`upstream down`))
	}))
	defer srv.Close()

	g := NewGateway(config.PaymentConfig{GatewayURL: srv.URL})
	_, err := g.Authorize(context.Background(), "src-4", 0.1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 502")
}

func TestGatewayMalformedOKResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	g := NewGateway(config.PaymentConfig{GatewayURL: srv.URL})
	_, err := g.Authorize(context.Background(), "src-5", 0.1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal response")
}
