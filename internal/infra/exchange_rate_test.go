package infra

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dunamuBody = `[{
	"code": "FRX.KRWUSD",
	"currencyCode": "USD",
	"date": "2026-10-16",
	"time": "15:30:00",
	"basePrice": 1385.5,
	"changePrice": 2.5,
	"timestamp": 1792140600000
}]`

func newTestRateClient(url string, onUpdate func(decimal.Decimal)) *ExchangeRateClient {
	c := NewExchangeRateClient(ExchangeRateConfig{URL: url, PollIntervalSec: 1}, onUpdate)
	c.retryDelay = func(int) time.Duration { return time.Millisecond }
	return c
}

func TestExchangeRateClient_FetchRate(t *testing.T) {
	var userAgent atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent.Store(r.Header.Get("User-Agent"))
		w.Write([]byte(dunamuBody))
	}))
	defer server.Close()

	var mu sync.Mutex
	var updates []decimal.Decimal
	c := newTestRateClient(server.URL, func(d decimal.Decimal) {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, d)
	})

	require.NoError(t, c.fetchRate(context.Background()))
	assert.True(t, c.GetRate().Equal(decimal.RequireFromString("1385.5")))
	assert.Equal(t, DefaultUserAgent, userAgent.Load())

	// unchanged rate does not notify again
	require.NoError(t, c.fetchRate(context.Background()))
	mu.Lock()
	assert.Len(t, updates, 1)
	mu.Unlock()
}

func TestExchangeRateClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(dunamuBody))
	}))
	defer server.Close()

	c := newTestRateClient(server.URL, nil)
	require.NoError(t, c.fetchRate(context.Background()))
	assert.Equal(t, int32(3), calls.Load())
	assert.False(t, c.GetRate().IsZero())
}

func TestExchangeRateClient_BadPayload(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"not":"a list"}`))
	}))
	defer server.Close()

	c := newTestRateClient(server.URL, nil)
	err := c.fetchRate(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "decode errors are not retried")
	assert.True(t, c.GetRate().IsZero())
}

func TestExchangeRateClient_EmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	c := newTestRateClient(server.URL, nil)
	assert.ErrorIs(t, c.fetchRate(context.Background()), errEmptyRate)
}

func TestExchangeRateClient_Run(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(dunamuBody))
	}))
	defer server.Close()

	got := make(chan decimal.Decimal, 1)
	c := newTestRateClient(server.URL, func(d decimal.Decimal) { got <- d })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case d := <-got:
		assert.Equal(t, "1385.5", d.String())
	case <-time.After(2 * time.Second):
		t.Fatal("no rate published")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
