package backtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kripteks/tradecore/internal/domain"
	"github.com/kripteks/tradecore/internal/strategy"
)

var testBase = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func hourlyCandles(n int, priceAt func(i int) (open, high, low, close float64)) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := range out {
		o, h, l, c := priceAt(i)
		out[i] = domain.Candle{
			OpenTime: testBase.Add(time.Duration(i) * time.Hour),
			Open:     decimal.NewFromFloat(o),
			High:     decimal.NewFromFloat(h),
			Low:      decimal.NewFromFloat(l),
			Close:    decimal.NewFromFloat(c),
			Volume:   decimal.NewFromInt(1000),
		}
	}
	return out
}

func ascending(n int) []domain.Candle {
	return hourlyCandles(n, func(i int) (float64, float64, float64, float64) {
		p := 100 + float64(i)
		return p, p + 1, p - 0.5, p + 0.5
	})
}

func flat(n int) []domain.Candle {
	return hourlyCandles(n, func(i int) (float64, float64, float64, float64) {
		return 100, 100, 100, 100
	})
}

type fakeMarket struct {
	candles map[string][]domain.Candle
}

func (f *fakeMarket) GetCandles(_ context.Context, symbol string, _ domain.Interval, rng domain.CandleRange) ([]domain.Candle, error) {
	cs, ok := f.candles[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, domain.ErrSymbolNotFound)
	}
	var out []domain.Candle
	for _, c := range cs {
		if !c.OpenTime.Before(rng.Start) && !c.OpenTime.After(rng.End) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeMarket) GetLatestCandles(_ context.Context, symbol string, _ domain.Interval, limit int) ([]domain.Candle, error) {
	cs, ok := f.candles[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, domain.ErrSymbolNotFound)
	}
	if len(cs) > limit {
		cs = cs[len(cs)-limit:]
	}
	return cs, nil
}

func (f *fakeMarket) GetCurrentPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	cs, ok := f.candles[symbol]
	if !ok || len(cs) == 0 {
		return decimal.Zero, fmt.Errorf("%s: %w", symbol, domain.ErrSymbolNotFound)
	}
	return cs[len(cs)-1].Close, nil
}

func newTestRunner(candles map[string][]domain.Candle) *Runner {
	return NewRunner(&fakeMarket{candles: candles}, strategy.Default(), discardLogger())
}

func baseRequest(symbol string) domain.BacktestRequest {
	return domain.BacktestRequest{
		Symbol:         symbol,
		StrategyID:     "breakout-hunter",
		Interval:       domain.Interval1h,
		Start:          testBase.Add(30 * time.Hour),
		End:            testBase.Add(200 * time.Hour),
		InitialBalance: decimal.NewFromInt(10000),
		Parameters:     map[string]string{"targetPercent": "0", "stopPercent": "0"},
	}
}

func TestRunAscendingTapeSingleRoundTrip(t *testing.T) {
	r := newTestRunner(map[string][]domain.Candle{"BTCUSDT": ascending(140)})

	res, err := r.Run(context.Background(), baseRequest("BTCUSDT"))
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalTrades != 1 {
		t.Fatalf("trades = %d, want exactly 1 round trip", res.TotalTrades)
	}
	tr := res.Trades[0]
	if tr.Type != exitForcedClose {
		t.Errorf("exit type = %q, want %q", tr.Type, exitForcedClose)
	}
	if !res.TotalPnl.IsPositive() {
		t.Errorf("total pnl = %s, want positive", res.TotalPnl)
	}
	if !res.FinalBalance.GreaterThan(res.InitialBalance) {
		t.Errorf("final balance %s not above initial %s", res.FinalBalance, res.InitialBalance)
	}
	last := res.Candles[len(res.Candles)-1]
	if !tr.ExitPrice.Equal(last.Close) {
		t.Errorf("forced close at %s, want last close %s", tr.ExitPrice, last.Close)
	}
}

func TestRunFlatTapeNoTrades(t *testing.T) {
	r := newTestRunner(map[string][]domain.Candle{"BTCUSDT": flat(140)})

	res, err := r.Run(context.Background(), baseRequest("BTCUSDT"))
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalTrades != 0 {
		t.Fatalf("flat tape produced %d trades, want 0", res.TotalTrades)
	}
	if !res.FinalBalance.Equal(res.InitialBalance) {
		t.Errorf("final balance %s changed with zero trades", res.FinalBalance)
	}
	if !res.WinRate.IsZero() {
		t.Errorf("win rate = %s with zero trades", res.WinRate)
	}
}

func TestRunDeterministic(t *testing.T) {
	candles := map[string][]domain.Candle{"BTCUSDT": ascending(140)}
	req := baseRequest("BTCUSDT")
	req.CommissionRate = decimal.NewFromFloat(0.001)
	req.SlippageRate = decimal.NewFromFloat(0.0005)

	a, err := newTestRunner(candles).Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	b, err := newTestRunner(candles).Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !a.FinalBalance.Equal(b.FinalBalance) || a.TotalTrades != b.TotalTrades ||
		!a.TotalPnlPercent.Equal(b.TotalPnlPercent) {
		t.Errorf("identical requests diverged: %s/%d vs %s/%d",
			a.FinalBalance, a.TotalTrades, b.FinalBalance, b.TotalTrades)
	}
}

// Final balance must equal initial + Σ(price P&L) − Σ(commission), with
// commission and slippage turned on.
func TestLedgerBalanceInvariant(t *testing.T) {
	// A zigzag tape: steep 30-candle climbs (closes clearing the prior
	// high, so breakouts fire) alternating with 30-candle slides that run
	// through the stops.
	zigzag := hourlyCandles(240, func(i int) (float64, float64, float64, float64) {
		phase := i % 60
		base := 100 + 2*float64(phase)
		if phase >= 30 {
			base = 100 + 2*float64(60-phase)
		}
		return base, base + 1, base - 1, base + 0.5
	})
	req := baseRequest("BTCUSDT")
	req.Parameters = map[string]string{"lookback": "10", "targetPercent": "8", "stopPercent": "4"}
	req.CommissionRate = decimal.NewFromFloat(0.001)
	req.SlippageRate = decimal.NewFromFloat(0.0005)

	res, err := newTestRunner(map[string][]domain.Candle{"BTCUSDT": zigzag}).
		Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalTrades == 0 {
		t.Fatal("zigzag tape produced no trades, invariant not exercised")
	}

	sumPnl, sumFee := decimal.Zero, decimal.Zero
	for _, tr := range res.Trades {
		if !tr.Quantity.IsPositive() {
			t.Errorf("trade quantity %s not positive", tr.Quantity)
		}
		sumPnl = sumPnl.Add(tr.Pnl)
		sumFee = sumFee.Add(tr.Commission)
	}
	want := res.InitialBalance.Add(sumPnl).Sub(sumFee)
	if !res.FinalBalance.Equal(want) {
		t.Errorf("final balance = %s, want initial + pnl - commission = %s", res.FinalBalance, want)
	}
	if !res.TotalCommissionPaid.Equal(sumFee) {
		t.Errorf("commission paid = %s, want %s", res.TotalCommissionPaid, sumFee)
	}
}

// Sizing divisions that produce endless digits must floor the quantity so
// cost plus commission stays inside the cash being spent.
func TestBuySizingNeverOverdraws(t *testing.T) {
	prices := []float64{3, 7, 0.0000031, 1234.567, 99999.99}
	for _, p := range prices {
		led := newLedger(decimal.NewFromInt(10000),
			decimal.NewFromFloat(0.001), decimal.NewFromFloat(0.0005))
		c := domain.Candle{OpenTime: testBase, Close: decimal.NewFromFloat(p)}
		if err := led.buy(c, domain.StrategyResult{Action: domain.ActionBuy}); err != nil {
			t.Fatalf("price %v: %v", p, err)
		}
		if !led.inPosition() {
			t.Fatalf("price %v: no position opened", p)
		}
		if led.balance.IsNegative() {
			t.Errorf("price %v: balance %s went negative", p, led.balance)
		}
	}
}

func falling(n int, step float64) []domain.Candle {
	return hourlyCandles(n, func(i int) (float64, float64, float64, float64) {
		p := 100 - step*float64(i)
		return p, p + 0.2, p - 0.2, p
	})
}

// A steadily falling tape must walk the DCA ladder: every add increments the
// step and pulls the volume-weighted average entry down.
func TestDcaFallingTapeAveragesDown(t *testing.T) {
	strat, err := strategy.Default().New("dca")
	if err != nil {
		t.Fatal(err)
	}
	candles := falling(60, 0.5)
	led := newLedger(decimal.NewFromInt(10000), decimal.NewFromFloat(0.001), decimal.Zero)

	adds := 0
	for i, c := range candles {
		res, err := strat.Analyze(candles[:i+1], led.balance, led.qty, led.entryPrice, led.step)
		if err != nil {
			t.Fatal(err)
		}
		if res.Action != domain.ActionBuy {
			continue
		}
		prevAvg := led.entryPrice
		prevStep := led.step
		if err := led.buy(c, res); err != nil {
			t.Fatalf("candle %d: %v", i, err)
		}
		if prevStep == 0 {
			continue
		}
		adds++
		if led.step != prevStep+1 {
			t.Errorf("add %d: step = %d, want %d", adds, led.step, prevStep+1)
		}
		if !led.entryPrice.LessThan(prevAvg) {
			t.Errorf("add %d: average entry %s did not drop below %s", adds, led.entryPrice, prevAvg)
		}
	}
	if adds == 0 {
		t.Fatal("falling tape never triggered a DCA add")
	}
	if led.step != 5 {
		t.Errorf("ladder steps = %d, want the full ladder of 5", led.step)
	}
}

func TestRunDcaDeploysLadderOnFallingTape(t *testing.T) {
	req := baseRequest("BTCUSDT")
	req.StrategyID = "dca"
	req.Parameters = nil
	req.CommissionRate = decimal.NewFromFloat(0.001)

	res, err := newTestRunner(map[string][]domain.Candle{"BTCUSDT": falling(240, 0.25)}).
		Run(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalTrades != 1 {
		t.Fatalf("trades = %d, want a single forced close", res.TotalTrades)
	}
	tr := res.Trades[0]
	firstClose := decimal.NewFromFloat(100 - 0.25*30)
	if !tr.EntryPrice.LessThan(firstClose) {
		t.Errorf("average entry %s not below the initial fill %s", tr.EntryPrice, firstClose)
	}
	// The full ladder (1+2+4+8+16 rungs) deploys essentially the whole
	// balance, far beyond the first rung of ~322.
	invested := tr.Quantity.Mul(tr.EntryPrice)
	if invested.LessThan(decimal.NewFromInt(9000)) {
		t.Errorf("deployed %s of 10000, the ladder never added", invested)
	}
}

func TestRunRequestValidation(t *testing.T) {
	r := newTestRunner(map[string][]domain.Candle{"BTCUSDT": ascending(140)})
	tests := []struct {
		name   string
		mutate func(*domain.BacktestRequest)
		want   error
	}{
		{"empty symbol", func(q *domain.BacktestRequest) { q.Symbol = "" }, domain.ErrInvalidParameter},
		{"bad interval", func(q *domain.BacktestRequest) { q.Interval = "7m" }, domain.ErrInvalidParameter},
		{"inverted range", func(q *domain.BacktestRequest) { q.Start, q.End = q.End, q.Start }, domain.ErrInvalidParameter},
		{"zero balance", func(q *domain.BacktestRequest) { q.InitialBalance = decimal.Zero }, domain.ErrInvalidParameter},
		{"unknown strategy", func(q *domain.BacktestRequest) { q.StrategyID = "nope" }, domain.ErrNotFound},
		{"unknown symbol", func(q *domain.BacktestRequest) { q.Symbol = "NOPEUSDT" }, domain.ErrSymbolNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest("BTCUSDT")
			tt.mutate(&req)
			if _, err := r.Run(context.Background(), req); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

type captureSink struct {
	events []domain.ProgressEvent
	onStep func(step int)
}

func (c *captureSink) Publish(_ string, ev domain.ProgressEvent) {
	c.events = append(c.events, ev)
	if c.onStep != nil {
		c.onStep(ev.CurrentStep)
	}
}

func TestOptimizeGridProgress(t *testing.T) {
	sink := &captureSink{}
	runner := newTestRunner(map[string][]domain.Candle{"BTCUSDT": ascending(140)})
	opt := NewOptimizer(runner, sink, discardLogger())

	grid := map[string][]string{
		"lookback":      {"5", "10", "15"},
		"targetPercent": {"0", "10", "20"},
	}
	out, err := opt.Optimize(context.Background(), "session-1", baseRequest("BTCUSDT"), grid)
	if err != nil {
		t.Fatal(err)
	}

	if len(sink.events) != 9 {
		t.Fatalf("progress events = %d, want 9", len(sink.events))
	}
	for i, ev := range sink.events {
		if ev.CurrentStep != i+1 {
			t.Errorf("event %d has step %d, want %d", i, ev.CurrentStep, i+1)
		}
		if ev.TotalSteps != 9 {
			t.Errorf("event %d totalSteps = %d, want 9", i, ev.TotalSteps)
		}
		wantStatus := "running"
		if i == 8 {
			wantStatus = "completed"
		}
		if ev.Status != wantStatus {
			t.Errorf("event %d status = %q, want %q", i, ev.Status, wantStatus)
		}
	}
	if out.StepsRun != 9 || out.TotalSteps != 9 {
		t.Errorf("steps run/total = %d/%d, want 9/9", out.StepsRun, out.TotalSteps)
	}
	if out.Best == nil || len(out.BestParameters) == 0 {
		t.Fatal("no best combination recorded")
	}
	if out.BestPnlPercent.LessThan(sink.events[8].BestPnlPercent) {
		t.Error("result best pnl behind the last published event")
	}
}

func TestOptimizeCancellationBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sink := &captureSink{}
	sink.onStep = func(step int) {
		if step == 4 {
			cancel()
		}
	}
	runner := newTestRunner(map[string][]domain.Candle{"BTCUSDT": ascending(140)})
	opt := NewOptimizer(runner, sink, discardLogger())

	grid := map[string][]string{
		"lookback":      {"5", "10", "15"},
		"targetPercent": {"0", "10", "20"},
	}
	out, err := opt.Optimize(ctx, "session-2", baseRequest("BTCUSDT"), grid)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if out == nil || out.StepsRun != 4 {
		t.Fatalf("partial result steps = %v, want 4", out)
	}
	if len(sink.events) != 4 {
		t.Errorf("events after cancel = %d, want 4", len(sink.events))
	}
}

func TestExpandGridStableOrder(t *testing.T) {
	combos := expandGrid(map[string][]string{
		"b": {"1", "2"},
		"a": {"x", "y"},
	})
	want := []map[string]string{
		{"a": "x", "b": "1"},
		{"a": "x", "b": "2"},
		{"a": "y", "b": "1"},
		{"a": "y", "b": "2"},
	}
	if len(combos) != len(want) {
		t.Fatalf("combos = %d, want %d", len(combos), len(want))
	}
	for i := range want {
		for k, v := range want[i] {
			if combos[i][k] != v {
				t.Errorf("combo %d: %s = %q, want %q", i, k, combos[i][k], v)
			}
		}
	}
}

func TestBatchOneBadSymbol(t *testing.T) {
	candles := map[string][]domain.Candle{
		"BTCUSDT": ascending(140),
		"ETHUSDT": ascending(140),
		"SOLUSDT": ascending(140),
		"BNBUSDT": ascending(140),
	}
	runner := newTestRunner(candles)
	batch := NewBatch(runner, 2, discardLogger())

	base := baseRequest("")
	items := batch.Run(context.Background(), domain.BatchRequest{
		Symbols:        []string{"BTCUSDT", "ETHUSDT", "FAKEUSDT", "SOLUSDT", "BNBUSDT"},
		StrategyID:     base.StrategyID,
		Interval:       base.Interval,
		Start:          base.Start,
		End:            base.End,
		InitialBalance: base.InitialBalance,
		Parameters:     base.Parameters,
	})

	if len(items) != 5 {
		t.Fatalf("items = %d, want 5", len(items))
	}
	succeeded := 0
	for i, item := range items {
		if item.Success {
			succeeded++
			continue
		}
		if item.Symbol != "FAKEUSDT" {
			t.Errorf("item %d (%s) failed unexpectedly: %s", i, item.Symbol, item.ErrorMessage)
		}
		if item.ErrorMessage == "" {
			t.Error("failed item carries no error message")
		}
	}
	if succeeded != 4 {
		t.Errorf("successes = %d, want 4", succeeded)
	}
}
