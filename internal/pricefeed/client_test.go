package pricefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"crat/backend/internal/config"
)

func newTestClient(serverURL string) *Client {
	return NewClient(&config.PriceFeedConfig{
		BaseURL:    serverURL,
		TimeoutSec: 5,
	}, zap.NewNop())
}

func TestFetchRates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/price", r.URL.Path)
		assert.Equal(t, "USD", r.URL.Query().Get("fsym"))
		assert.Equal(t, "USDC,USDT", r.URL.Query().Get("tsyms"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"USDC": 1.0001, "USDT": 0.9999}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	rates, err := client.FetchRates(context.Background(), []string{"USDC", "USDT"})
	require.NoError(t, err)

	require.Len(t, rates, 2)
	assert.Equal(t, "1.0001", rates["USDC"].String())
	assert.Equal(t, "0.9999", rates["USDT"].String())
}

func TestFetchRates_PartialResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"USDC": 1.0}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	rates, err := client.FetchRates(context.Background(), []string{"USDC", "USDT"})
	require.NoError(t, err)

	require.Len(t, rates, 1)
	_, ok := rates["USDT"]
	assert.False(t, ok)
}

func TestFetchRates_NonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.FetchRates(context.Background(), []string{"USDC"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestFetchRates_NoSymbols(t *testing.T) {
	client := newTestClient("http://unused.invalid")

	rates, err := client.FetchRates(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, rates)
}

func TestFetchRates_ScientificNotation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"WBTC": 2.3e-05}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	rates, err := client.FetchRates(context.Background(), []string{"WBTC"})
	require.NoError(t, err)

	require.Contains(t, rates, "WBTC")
	assert.Equal(t, "0.000023", rates["WBTC"].String())
}
