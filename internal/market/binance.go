// Package market implements the market-data and order-execution
// collaborators. The Binance client serves candles and prices over the
// public REST API; every caller shares one rate-limiter key so the
// aggregate request weight stays under the exchange budget.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kripteks/tradecore/internal/domain"
)

const (
	defaultBaseURL = "https://api.binance.com"

	// rateLimitKey is shared by the live engine, the scanner and the
	// batch runner; one budget for everyone.
	rateLimitKey = "binance"

	// maxKlinesPerRequest is the exchange's page cap.
	maxKlinesPerRequest = 1000
)

// Binance serves candles and prices from the Binance spot REST API.
type Binance struct {
	http    *http.Client
	baseURL string
	limiter domain.RateLimiter
	prices  domain.PriceCache
	logger  *slog.Logger
}

// Option configures a Binance client.
type Option func(*Binance)

// WithBaseURL points the client at a different API host (tests, mirrors).
func WithBaseURL(url string) Option {
	return func(b *Binance) { b.baseURL = strings.TrimRight(url, "/") }
}

// WithPriceCache enables write-through caching of current prices.
func WithPriceCache(cache domain.PriceCache) Option {
	return func(b *Binance) { b.prices = cache }
}

// NewBinance creates a client gated by the given limiter. A nil limiter
// disables gating (tests).
func NewBinance(limiter domain.RateLimiter, logger *slog.Logger, opts ...Option) *Binance {
	b := &Binance{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: defaultBaseURL,
		limiter: limiter,
		logger:  logger.With(slog.String("component", "binance")),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// GetCandles fetches the full range in exchange-sized pages, ascending by
// open time.
func (b *Binance) GetCandles(ctx context.Context, symbol string, interval domain.Interval, rng domain.CandleRange) ([]domain.Candle, error) {
	var out []domain.Candle
	cursor := rng.Start
	for cursor.Before(rng.End) {
		page, err := b.klines(ctx, symbol, interval, cursor, rng.End, maxKlinesPerRequest)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		out = append(out, page...)
		next := page[len(page)-1].OpenTime.Add(interval.Duration())
		if !next.After(cursor) {
			break
		}
		cursor = next
	}
	return out, nil
}

// GetLatestCandles fetches the most recent limit closed candles.
func (b *Binance) GetLatestCandles(ctx context.Context, symbol string, interval domain.Interval, limit int) ([]domain.Candle, error) {
	if limit <= 0 || limit > maxKlinesPerRequest {
		limit = maxKlinesPerRequest
	}
	return b.klines(ctx, symbol, interval, time.Time{}, time.Time{}, limit)
}

// GetCurrentPrice returns the last traded price, writing through the price
// cache when one is configured.
func (b *Binance) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var result struct {
		Price string `json:"price"`
	}
	url := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", b.baseURL, pairToSymbol(symbol))
	if err := b.getJSON(ctx, url, &result); err != nil {
		return decimal.Zero, err
	}
	price, err := decimal.NewFromString(result.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: bad price %q", domain.ErrMarketDataUnavailable, result.Price)
	}
	if b.prices != nil {
		if err := b.prices.SetPrice(ctx, symbol, price, time.Now().UTC()); err != nil {
			b.logger.Debug("price cache write failed", slog.Any("error", err))
		}
	}
	return price, nil
}

func (b *Binance) klines(ctx context.Context, symbol string, interval domain.Interval, start, end time.Time, limit int) ([]domain.Candle, error) {
	url := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=%s&limit=%d",
		b.baseURL, pairToSymbol(symbol), interval, limit)
	if !start.IsZero() {
		url += fmt.Sprintf("&startTime=%d", start.UnixMilli())
	}
	if !end.IsZero() {
		url += fmt.Sprintf("&endTime=%d", end.UnixMilli())
	}

	var raw [][]json.RawMessage
	if err := b.getJSON(ctx, url, &raw); err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			continue
		}
		c := domain.Candle{
			OpenTime: msToTime(row[0]),
			Open:     parseDecimal(row[1]),
			High:     parseDecimal(row[2]),
			Low:      parseDecimal(row[3]),
			Close:    parseDecimal(row[4]),
			Volume:   parseDecimal(row[5]),
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// Throttle retry bounds. The exchange's Retry-After is honored within them;
// a missing or unparsable header falls back to one second.
const (
	maxAttempts       = 3
	defaultRetryAfter = time.Second
	maxRetryAfter     = time.Minute
)

// getJSON performs a rate-limited GET and decodes the body, translating
// exchange failures into the domain error taxonomy. A 429 is retried up to
// maxAttempts, sleeping the Retry-After the exchange asked for.
func (b *Binance) getJSON(ctx context.Context, url string, out any) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var wait time.Duration
		wait, err = b.doGet(ctx, url, out)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrRateLimited) || attempt == maxAttempts-1 {
			return err
		}
		b.logger.Warn("exchange throttled, backing off",
			slog.Duration("retry_after", wait), slog.Int("attempt", attempt+1))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %v", domain.ErrRateLimited, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}

func (b *Binance) doGet(ctx context.Context, url string, out any) (time.Duration, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx, rateLimitKey); err != nil {
			return 0, fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrMarketDataUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return 0, json.NewDecoder(resp.Body).Decode(out)
	case resp.StatusCode == http.StatusTooManyRequests:
		wait := retryAfterDelay(resp.Header.Get("Retry-After"))
		return wait, fmt.Errorf("%w: exchange throttled", domain.ErrRateLimited)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		body, _ := io.ReadAll(resp.Body)
		if isUnknownSymbol(body) {
			return 0, fmt.Errorf("%w: %s", domain.ErrSymbolNotFound, body)
		}
		return 0, fmt.Errorf("binance %d: %s", resp.StatusCode, body)
	default:
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("%w: binance %d: %s", domain.ErrMarketDataUnavailable, resp.StatusCode, body)
	}
}

// retryAfterDelay converts the Retry-After header (the exchange sends whole
// seconds) into a clamped backoff duration.
func retryAfterDelay(header string) time.Duration {
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return defaultRetryAfter
	}
	wait := time.Duration(secs) * time.Second
	if wait > maxRetryAfter {
		return maxRetryAfter
	}
	return wait
}

// isUnknownSymbol matches the exchange's invalid-symbol error code (-1121).
func isUnknownSymbol(body []byte) bool {
	var apiErr struct {
		Code int `json:"code"`
	}
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return false
	}
	return apiErr.Code == -1121
}

// pairToSymbol converts "BTC/USDT" into exchange notation "BTCUSDT".
func pairToSymbol(pair string) string {
	return strings.ReplaceAll(strings.ToUpper(pair), "/", "")
}

func msToTime(raw json.RawMessage) time.Time {
	var ms int64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func parseDecimal(raw json.RawMessage) decimal.Decimal {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

var _ domain.MarketDataSource = (*Binance)(nil)
