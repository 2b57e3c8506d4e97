package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kripteks/tradecore/internal/domain"
)

func ascendingCandles(n int, start, step float64) []domain.Candle {
	out := make([]domain.Candle, n)
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		price := decimal.NewFromFloat(start + float64(i)*step)
		out[i] = domain.Candle{
			OpenTime: t.Add(time.Duration(i) * time.Hour),
			Open:     price,
			High:     price.Add(decimal.NewFromFloat(step)),
			Low:      price.Sub(decimal.NewFromFloat(step / 2)),
			Close:    price.Add(decimal.NewFromFloat(step / 2)),
			Volume:   decimal.NewFromInt(1000),
		}
	}
	return out
}

func flatCandles(n int, price float64) []domain.Candle {
	out := make([]domain.Candle, n)
	p := decimal.NewFromFloat(price)
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = domain.Candle{
			OpenTime: t.Add(time.Duration(i) * time.Hour),
			Open:     p, High: p, Low: p, Close: p,
			Volume: decimal.NewFromInt(1000),
		}
	}
	return out
}

func TestRegistryNewUnknownID(t *testing.T) {
	r := Default()
	if _, err := r.New("no-such-strategy"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("New(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestRegistryNewReturnsIndependentInstances(t *testing.T) {
	r := Default()
	a, err := r.New("breakout-hunter")
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.New("breakout-hunter")
	if err != nil {
		t.Fatal(err)
	}
	if err := a.SetParameters(map[string]string{"lookback": "5"}); err != nil {
		t.Fatal(err)
	}
	if a.MinLookback() == b.MinLookback() {
		t.Error("parameter change on one instance leaked into the other")
	}
}

func TestRegistryByCategory(t *testing.T) {
	r := Default()
	scanner := r.ByCategory(domain.CategoryScanner)
	found := false
	for _, info := range scanner {
		if info.ID == "sma111-breakout" {
			found = true
		}
		if info.Category == domain.CategoryTrading {
			t.Errorf("trading-only strategy %s listed under scanner", info.ID)
		}
	}
	if !found {
		t.Error("sma111-breakout missing from scanner category")
	}
}

func TestSetParametersMalformedValue(t *testing.T) {
	tests := []struct {
		name   string
		s      Strategy
		params map[string]string
	}{
		{"breakout lookback", NewBreakoutHunter(), map[string]string{"lookback": "abc"}},
		{"breakout target", NewBreakoutHunter(), map[string]string{"targetPercent": "1,5"}},
		{"golden cross short", NewGoldenCross(), map[string]string{"shortPeriod": "x"}},
		{"golden cross inverted", NewGoldenCross(), map[string]string{"shortPeriod": "200", "longPeriod": "50"}},
		{"dca count", NewDca(), map[string]string{"dcaCount": "two"}},
		{"oversold levels inverted", NewOversoldRecovery(), map[string]string{"oversold": "80", "overbought": "70"}},
		{"oversold atr multiplier", NewOversoldRecovery(), map[string]string{"atrMultiplier": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.s.SetParameters(tt.params); !errors.Is(err, domain.ErrInvalidParameter) {
				t.Errorf("SetParameters error = %v, want ErrInvalidParameter", err)
			}
		})
	}
}

func TestSetParametersUnknownKeysIgnored(t *testing.T) {
	s := NewBreakoutHunter()
	if err := s.SetParameters(map[string]string{"bogusKey": "whatever"}); err != nil {
		t.Fatalf("unknown key must be ignored, got %v", err)
	}
}

func TestScoreBoundsAndInsufficientData(t *testing.T) {
	r := Default()
	for _, id := range r.IDs() {
		s, err := r.New(id)
		if err != nil {
			t.Fatal(err)
		}
		t.Run(id, func(t *testing.T) {
			short := ascendingCandles(s.MinLookback()-1, 100, 1)
			if got := s.SignalScore(short); !got.IsZero() {
				t.Errorf("score on short window = %s, want 0", got)
			}
			full := ascendingCandles(s.MinLookback()+50, 100, 1)
			got := s.SignalScore(full)
			if got.IsNegative() || got.GreaterThan(decimal.NewFromInt(100)) {
				t.Errorf("score %s out of [0,100]", got)
			}
		})
	}
}

func TestBreakoutHunterBuysAscendingTape(t *testing.T) {
	s := NewBreakoutHunter()
	candles := ascendingCandles(40, 100, 1)

	res, err := s.Analyze(candles, decimal.NewFromInt(1000), decimal.Zero, decimal.Zero, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Action != domain.ActionBuy {
		t.Fatalf("ascending tape while flat: action = %s, want buy", res.Action)
	}
	if !res.TargetPrice.GreaterThan(res.Price) {
		t.Errorf("target %s not above price %s", res.TargetPrice, res.Price)
	}
	if !res.StopPrice.LessThan(res.Price) {
		t.Errorf("stop %s not below price %s", res.StopPrice, res.Price)
	}

	// In position on the same tape: no sell, the breakout is intact.
	res, err = s.Analyze(candles, decimal.Zero, decimal.NewFromInt(1), res.Price, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Action != domain.ActionNone {
		t.Errorf("in position on rising tape: action = %s, want none", res.Action)
	}
}

func TestBreakoutHunterFlatTapeScoresZero(t *testing.T) {
	s := NewBreakoutHunter()
	candles := flatCandles(60, 100)
	if got := s.SignalScore(candles); !got.IsZero() {
		t.Errorf("flat tape score = %s, want 0", got)
	}
	res, err := s.Analyze(candles, decimal.NewFromInt(1000), decimal.Zero, decimal.Zero, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Action != domain.ActionNone {
		t.Errorf("flat tape action = %s, want none", res.Action)
	}
}

func TestSma111BuySellCrossover(t *testing.T) {
	// Price sits below the SMA for the whole warmup, then jumps above it.
	candles := flatCandles(140, 100)
	jump := decimal.NewFromInt(150)
	last := &candles[len(candles)-1]
	last.Open = decimal.NewFromInt(100)
	last.Close = jump
	last.High = jump
	last.Low = decimal.NewFromInt(100)

	s := NewSma111BuySell()
	res, err := s.Analyze(candles, decimal.NewFromInt(1000), decimal.Zero, decimal.Zero, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Action != domain.ActionBuy {
		t.Fatalf("upward cross action = %s, want buy", res.Action)
	}
	if res.TargetPrice.IsZero() || res.StopPrice.IsZero() {
		t.Error("crossover entry must carry target and stop prices")
	}
}

func TestDcaLadder(t *testing.T) {
	s := NewDca()
	candles := flatCandles(10, 100)

	// Flat: immediate entry.
	res, err := s.Analyze(candles, decimal.NewFromInt(1000), decimal.Zero, decimal.Zero, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Action != domain.ActionBuy {
		t.Fatalf("flat DCA action = %s, want buy", res.Action)
	}
	// Entry stake is the balance split across the full ladder: 1+2+4+8+16 = 31.
	if !res.SuggestedAmount.Equal(decimal.NewFromInt(1000).Div(decimal.NewFromInt(31))) {
		t.Errorf("entry stake = %s, want 1000/31", res.SuggestedAmount)
	}

	entry := decimal.NewFromInt(110) // price 100 is ~9% below entry
	qty := decimal.NewFromInt(2)

	// In position, price below the deviation trigger: add.
	res, err = s.Analyze(candles, decimal.Zero, qty, entry, 1)
	if err != nil {
		t.Fatal(err)
	}
	if res.Action != domain.ActionBuy {
		t.Fatalf("deep drawdown DCA action = %s, want buy", res.Action)
	}
	// First add doubles the invested stake: qty * entry * 2.
	if !res.SuggestedAmount.Equal(qty.Mul(entry).Mul(decimal.NewFromInt(2))) {
		t.Errorf("suggested amount = %s, want doubled invested stake", res.SuggestedAmount)
	}

	// Ladder exhausted: no more adds.
	res, err = s.Analyze(candles, decimal.Zero, qty, entry, 5)
	if err != nil {
		t.Fatal(err)
	}
	if res.Action != domain.ActionNone {
		t.Errorf("exhausted ladder action = %s, want none", res.Action)
	}
}

func candlesFromCloses(closes []float64) []domain.Candle {
	out := make([]domain.Candle, len(closes))
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		price := decimal.NewFromFloat(c)
		out[i] = domain.Candle{
			OpenTime: t.Add(time.Duration(i) * time.Hour),
			Open:     price,
			High:     price.Add(decimal.NewFromInt(1)),
			Low:      price.Sub(decimal.NewFromInt(1)),
			Close:    price,
			Volume:   decimal.NewFromInt(1000),
		}
	}
	return out
}

func TestOversoldRecoveryBuysTheDipAndSellsOverbought(t *testing.T) {
	s := NewOversoldRecovery()
	if err := s.SetParameters(map[string]string{"rsiPeriod": "3", "emaPeriod": "5", "atrPeriod": "3"}); err != nil {
		t.Fatal(err)
	}

	// A grind down drives RSI to the floor, then a sharp pop recovers it
	// through the oversold line while the close holds above the trend EMA.
	candles := candlesFromCloses([]float64{100, 100, 100, 100, 99, 98, 97, 96, 95, 103})

	res, err := s.Analyze(candles, decimal.NewFromInt(1000), decimal.Zero, decimal.Zero, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Action != domain.ActionBuy {
		t.Fatalf("recovery cross action = %s, want buy", res.Action)
	}
	if !res.StopPrice.LessThan(res.Price) {
		t.Errorf("stop %s not below price %s", res.StopPrice, res.Price)
	}
	if !res.TargetPrice.GreaterThan(res.Price) {
		t.Errorf("target %s not above price %s", res.TargetPrice, res.Price)
	}

	// The same pop leaves RSI above the overbought line, so in position
	// the strategy exits.
	res, err = s.Analyze(candles, decimal.Zero, decimal.NewFromInt(1), decimal.NewFromInt(95), 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Action != domain.ActionSell {
		t.Errorf("overbought in position: action = %s, want sell", res.Action)
	}
}

func TestOversoldRecoveryIgnoresDowntrendRecovery(t *testing.T) {
	s := NewOversoldRecovery()
	if err := s.SetParameters(map[string]string{"rsiPeriod": "3", "emaPeriod": "5", "atrPeriod": "3"}); err != nil {
		t.Fatal(err)
	}

	// RSI recovers but the close stays below the EMA: no entry.
	candles := candlesFromCloses([]float64{110, 108, 106, 104, 102, 100, 98, 96, 94, 97})

	res, err := s.Analyze(candles, decimal.NewFromInt(1000), decimal.Zero, decimal.Zero, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Action != domain.ActionNone {
		t.Errorf("recovery below trend EMA: action = %s, want none", res.Action)
	}
}

func TestGoldenCrossDetectsCross(t *testing.T) {
	s := NewGoldenCross()
	if err := s.SetParameters(map[string]string{"shortPeriod": "3", "longPeriod": "6"}); err != nil {
		t.Fatal(err)
	}

	// Long decline then a sharp rally forces the short SMA through the long.
	var candles []domain.Candle
	candles = append(candles, flatCandles(8, 100)...)
	rally := ascendingCandles(4, 100, 10)
	candles = append(candles, rally...)

	var sawBuy bool
	for i := s.MinLookback(); i <= len(candles); i++ {
		res, err := s.Analyze(candles[:i], decimal.NewFromInt(1000), decimal.Zero, decimal.Zero, 0)
		if err != nil {
			t.Fatal(err)
		}
		if res.Action == domain.ActionBuy {
			sawBuy = true
			break
		}
	}
	if !sawBuy {
		t.Error("no golden cross buy on decline-then-rally tape")
	}
}
