package market

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kripteks/tradecore/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func klineRow(openTime time.Time, price float64) string {
	p := strconv.FormatFloat(price, 'f', 2, 64)
	return fmt.Sprintf(`[%d,"%s","%s","%s","%s","1000",%d,"0",0,"0","0","0"]`,
		openTime.UnixMilli(), p, p, p, p, openTime.Add(time.Hour).UnixMilli()-1)
}

func TestGetCandlesPagesThroughRange(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Errorf("symbol = %q, want BTCUSDT", got)
		}
		requests++
		start, _ := strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
		from := time.UnixMilli(start).UTC()

		// Serve at most 3 candles per page to force pagination.
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, "[")
		n := 0
		for ts := from; ts.Before(base.Add(8*time.Hour)) && n < 3; ts = ts.Add(time.Hour) {
			if n > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprint(w, klineRow(ts, 100+ts.Sub(base).Hours()))
			n++
		}
		fmt.Fprint(w, "]")
	}))
	defer srv.Close()

	b := NewBinance(nil, discardLogger(), WithBaseURL(srv.URL))
	candles, err := b.GetCandles(context.Background(), "BTC/USDT", domain.Interval1h, domain.CandleRange{
		Start: base,
		End:   base.Add(8 * time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 8 {
		t.Fatalf("candles = %d, want 8", len(candles))
	}
	if requests < 3 {
		t.Errorf("requests = %d, want pagination across >= 3 pages", requests)
	}
	for i := 1; i < len(candles); i++ {
		if !candles[i].OpenTime.After(candles[i-1].OpenTime) {
			t.Fatalf("candles not ascending at %d", i)
		}
	}
	if !candles[0].Close.Equal(decimal.NewFromInt(100)) {
		t.Errorf("first close = %s, want 100", candles[0].Close)
	}
}

func TestGetCurrentPriceParsesDecimal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/price" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"symbol":"ETHUSDT","price":"2001.37"}`)
	}))
	defer srv.Close()

	b := NewBinance(nil, discardLogger(), WithBaseURL(srv.URL))
	price, err := b.GetCurrentPrice(context.Background(), "ETH/USDT")
	if err != nil {
		t.Fatal(err)
	}
	if !price.Equal(decimal.RequireFromString("2001.37")) {
		t.Errorf("price = %s, want 2001.37", price)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"unknown symbol", http.StatusBadRequest, `{"code":-1121,"msg":"Invalid symbol."}`, domain.ErrSymbolNotFound},
		{"throttled", http.StatusTooManyRequests, `{"code":-1003,"msg":"Too many requests."}`, domain.ErrRateLimited},
		{"exchange down", http.StatusBadGateway, `upstream error`, domain.ErrMarketDataUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Retry-After", "0")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			b := NewBinance(nil, discardLogger(), WithBaseURL(srv.URL))
			_, err := b.GetLatestCandles(context.Background(), "XXX/USDT", domain.Interval1h, 10)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestThrottledRequestRetriesWithRetryAfter(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	var requests int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		if requests == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"code":-1003,"msg":"Too many requests."}`)
			return
		}
		fmt.Fprintf(w, "[%s]", klineRow(base, 100))
	}))
	defer srv.Close()

	b := NewBinance(nil, discardLogger(), WithBaseURL(srv.URL))
	candles, err := b.GetLatestCandles(context.Background(), "BTC/USDT", domain.Interval1h, 1)
	if err != nil {
		t.Fatalf("throttled request should succeed on retry: %v", err)
	}
	if len(candles) != 1 {
		t.Fatalf("candles = %d, want 1", len(candles))
	}
	if requests != 2 {
		t.Errorf("requests = %d, want 2 (one throttled, one retried)", requests)
	}
}

func TestRetryAfterDelay(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"0", 0},
		{"3", 3 * time.Second},
		{"", defaultRetryAfter},
		{"soon", defaultRetryAfter},
		{"-5", defaultRetryAfter},
		{"86400", maxRetryAfter},
	}
	for _, tt := range tests {
		if got := retryAfterDelay(tt.header); got != tt.want {
			t.Errorf("retryAfterDelay(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestPairToSymbol(t *testing.T) {
	tests := []struct{ in, want string }{
		{"BTC/USDT", "BTCUSDT"},
		{"eth/usdt", "ETHUSDT"},
		{"SOLUSDT", "SOLUSDT"},
	}
	for _, tt := range tests {
		if got := pairToSymbol(tt.in); got != tt.want {
			t.Errorf("pairToSymbol(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPaperExecutorRejectsBadOrders(t *testing.T) {
	p := NewPaperExecutor(discardLogger())

	filled, err := p.PlaceBuy(context.Background(), "BTC/USDT", decimal.NewFromInt(100), decimal.NewFromInt(1))
	if err != nil || !filled {
		t.Fatalf("valid order: filled=%v err=%v", filled, err)
	}

	if _, err := p.PlaceSell(context.Background(), "BTC/USDT", decimal.Zero, decimal.NewFromInt(1)); !errors.Is(err, domain.ErrOrderRejected) {
		t.Errorf("zero price error = %v, want ErrOrderRejected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.PlaceBuy(ctx, "BTC/USDT", decimal.NewFromInt(100), decimal.NewFromInt(1)); !errors.Is(err, domain.ErrContextDone) {
		t.Errorf("cancelled ctx error = %v, want ErrContextDone", err)
	}
}
