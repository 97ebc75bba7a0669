package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"GiftCardPay/internal/logger"
)

var ErrPriceNotAvailable = errors.New("price not available")

// fallbackPrices are used whenever the quote API cannot answer.
var fallbackPrices = map[string]decimal.Decimal{
	"BTC":  decimal.NewFromInt(50000),
	"ETH":  decimal.NewFromInt(3000),
	"USDT": decimal.NewFromInt(1),
	"BNB":  decimal.NewFromInt(380),
	"SOL":  decimal.NewFromInt(120),
	"XRP":  decimal.RequireFromString("0.50"),
	"USDC": decimal.NewFromInt(1),
	"ADA":  decimal.RequireFromString("0.40"),
	"DOGE": decimal.RequireFromString("0.08"),
	"TRX":  decimal.RequireFromString("0.10"),
	"LTC":  decimal.NewFromInt(150),
	"BCH":  decimal.NewFromInt(400),
	"TON":  decimal.RequireFromString("5.50"),
}

// quoteSymbols maps our codes to the quote provider's symbols where they differ.
var quoteSymbols = map[string]string{
	"TON": "TONCOIN",
}

// FallbackPrice returns the static USD price for a code.
func FallbackPrice(code string) (decimal.Decimal, bool) {
	p, ok := fallbackPrices[strings.ToUpper(code)]
	return p, ok
}

type Quote struct {
	Price     decimal.Decimal
	FetchedAt time.Time
}

type Cache interface {
	Get(ctx context.Context, code string) (Quote, bool, error)
	Set(ctx context.Context, code string, q Quote) error
}

type OracleConfig struct {
	QuoteURL string
	APIKey   string
	TTL      time.Duration
	Timeout  time.Duration
}

// Oracle resolves USD unit prices: fresh cache entry, then live quote, then the static table.
type Oracle struct {
	log    *slog.Logger
	cache  Cache
	client *http.Client
	cfg    OracleConfig
	now    func() time.Time
}

func NewOracle(log *slog.Logger, cache Cache, cfg OracleConfig) *Oracle {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Oracle{
		log:    log,
		cache:  cache,
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		now:    time.Now,
	}
}

func (o *Oracle) Price(ctx context.Context, code string) (decimal.Decimal, error) {
	const op = "pricing.Oracle.Price"
	code = strings.ToUpper(code)
	log := o.log.With(slog.String("op", op), slog.String("crypto", code))

	q, ok, err := o.cache.Get(ctx, code)
	if err != nil {
		log.Warn("quote cache read failed", logger.Err(err))
	} else if ok && o.now().Sub(q.FetchedAt) < o.cfg.TTL {
		return q.Price, nil
	}

	price, err := o.fetch(ctx, code)
	if err == nil {
		if err := o.cache.Set(ctx, code, Quote{Price: price, FetchedAt: o.now()}); err != nil {
			log.Warn("quote cache write failed", logger.Err(err))
		}
		return price, nil
	}
	log.Error("live quote unavailable", logger.Err(err))

	if p, ok := FallbackPrice(code); ok {
		log.Warn("using fallback price", slog.String("price", p.String()))
		return p, nil
	}
	return decimal.Zero, fmt.Errorf("%s: %s: %w", op, code, ErrPriceNotAvailable)
}

type quoteResponse struct {
	Data map[string]struct {
		Quote map[string]struct {
			Price decimal.Decimal `json:"price"`
		} `json:"quote"`
	} `json:"data"`
}

func (o *Oracle) fetch(ctx context.Context, code string) (decimal.Decimal, error) {
	symbol := code
	if s, ok := quoteSymbols[code]; ok {
		symbol = s
	}

	u, err := url.Parse(o.cfg.QuoteURL)
	if err != nil {
		return decimal.Zero, err
	}
	values := url.Values{}
	values.Set("symbol", symbol)
	values.Set("convert", "USD")
	u.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-CMC_PRO_API_KEY", o.cfg.APIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, fmt.Errorf("quote http status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, err
	}
	entry, ok := out.Data[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("symbol %s missing from quote response", symbol)
	}
	usd, ok := entry.Quote["USD"]
	if !ok || !usd.Price.IsPositive() {
		return decimal.Zero, fmt.Errorf("no usd price for %s", symbol)
	}
	return usd.Price, nil
}
