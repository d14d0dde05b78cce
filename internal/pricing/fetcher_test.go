package pricing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestBinanceFetcher_FetchRate(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"65432.10"}`))
	}))
	defer server.Close()

	fetcher := NewBinanceFetcher(server.URL, &MockLogger{})

	rate, err := fetcher.FetchRate(context.Background(), "BTC")
	assert.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("65432.10")))
	assert.Equal(t, int32(1), requests.Load())
}

func TestBinanceFetcher_StableQuoteShortCircuits(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	fetcher := NewBinanceFetcher(server.URL, &MockLogger{})

	rate, err := fetcher.FetchRate(context.Background(), "USDT")
	assert.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, int32(0), requests.Load())
}

func TestBinanceFetcher_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"code":-1000,"msg":"internal error"}`))
	}))
	defer server.Close()

	fetcher := NewBinanceFetcher(server.URL, &MockLogger{})

	_, err := fetcher.FetchRate(context.Background(), "BTC")
	assert.Error(t, err)
}

func TestBinanceFetcher_BadPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"not-a-number"}`))
	}))
	defer server.Close()

	fetcher := NewBinanceFetcher(server.URL, &MockLogger{})

	_, err := fetcher.FetchRate(context.Background(), "BTC")
	assert.Error(t, err)
}
