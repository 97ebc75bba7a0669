package pricing

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func quoteServer(t *testing.T, hits *int32, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		assert.Equal(t, "test-key", r.Header.Get("X-CMC_PRO_API_KEY"))
		assert.Equal(t, "USD", r.URL.Query().Get("convert"))
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestOracle(url string, cache Cache) *Oracle {
	return NewOracle(discardLogger(), cache, OracleConfig{QuoteURL: url, APIKey: "test-key", TTL: 5 * time.Minute, Timeout: time.Second})
}

func TestOracle_LiveQuoteIsCached(t *testing.T) {
	var hits int32
	srv := quoteServer(t, &hits, http.StatusOK, `{"data":{"BTC":{"quote":{"USD":{"price":65000.12}}}}}`)
	o := newTestOracle(srv.URL, NewMemoryCache())

	p, err := o.Price(context.Background(), "BTC")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("65000.12").Equal(p))

	p, err = o.Price(context.Background(), "btc")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("65000.12").Equal(p))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestOracle_StaleEntryRefetches(t *testing.T) {
	var hits int32
	srv := quoteServer(t, &hits, http.StatusOK, `{"data":{"ETH":{"quote":{"USD":{"price":3100}}}}}`)
	o := newTestOracle(srv.URL, NewMemoryCache())

	now := time.Now()
	o.now = func() time.Time { return now }
	_, err := o.Price(context.Background(), "ETH")
	require.NoError(t, err)

	o.now = func() time.Time { return now.Add(4 * time.Minute) }
	_, err = o.Price(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	o.now = func() time.Time { return now.Add(6 * time.Minute) }
	_, err = o.Price(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestOracle_TonUsesProviderSymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "TONCOIN", r.URL.Query().Get("symbol"))
		_, _ = io.WriteString(w, `{"data":{"TONCOIN":{"quote":{"USD":{"price":"6.2"}}}}}`)
	}))
	defer srv.Close()

	p, err := newTestOracle(srv.URL, NewMemoryCache()).Price(context.Background(), "TON")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("6.2").Equal(p))
}

func TestOracle_FallbackOnFailure(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"status":{"error_code":500}}`},
		{"malformed", http.StatusOK, `not json`},
		{"missing symbol", http.StatusOK, `{"data":{}}`},
		{"zero price", http.StatusOK, `{"data":{"SOL":{"quote":{"USD":{"price":0}}}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits int32
			srv := quoteServer(t, &hits, tt.status, tt.body)
			cache := NewMemoryCache()

			p, err := newTestOracle(srv.URL, cache).Price(context.Background(), "SOL")
			require.NoError(t, err)
			assert.True(t, decimal.NewFromInt(120).Equal(p))

			_, cached, _ := cache.Get(context.Background(), "SOL")
			assert.False(t, cached)
		})
	}
}

func TestOracle_NotAvailable(t *testing.T) {
	var hits int32
	srv := quoteServer(t, &hits, http.StatusServiceUnavailable, "")

	_, err := newTestOracle(srv.URL, NewMemoryCache()).Price(context.Background(), "XMR")
	assert.ErrorIs(t, err, ErrPriceNotAvailable)
}

func TestOracle_BrokenRedisFallsThroughToLiveQuote(t *testing.T) {
	var hits int32
	srv := quoteServer(t, &hits, http.StatusOK, `{"data":{"LTC":{"quote":{"USD":{"price":88.5}}}}}`)

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()

	p, err := newTestOracle(srv.URL, NewRedisCache(rdb, time.Minute)).Price(context.Background(), "LTC")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("88.5").Equal(p))
}

func TestFallbackPrice(t *testing.T) {
	p, ok := FallbackPrice("xrp")
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("0.5").Equal(p))

	_, ok = FallbackPrice("XMR")
	assert.False(t, ok)
}
