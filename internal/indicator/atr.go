package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/kripteks/tradecore/internal/domain"
)

// ATR computes the Wilder average true range. Entries before index period
// are warmup.
func ATR(candles []domain.Candle, period int) []decimal.Decimal {
	out := make([]decimal.Decimal, len(candles))
	if period <= 0 || len(candles) <= period {
		return out
	}

	tr := make([]decimal.Decimal, len(candles))
	tr[0] = candles[0].High.Sub(candles[0].Low)
	for i := 1; i < len(candles); i++ {
		hl := candles[i].High.Sub(candles[i].Low)
		hc := candles[i].High.Sub(candles[i-1].Close).Abs()
		lc := candles[i].Low.Sub(candles[i-1].Close).Abs()
		tr[i] = decimal.Max(hl, hc, lc)
	}

	p := decimal.NewFromInt(int64(period))
	sum := decimal.Zero
	for i := 1; i <= period; i++ {
		sum = sum.Add(tr[i])
	}
	out[period] = sum.Div(p)

	pm1 := p.Sub(decimal.NewFromInt(1))
	for i := period + 1; i < len(candles); i++ {
		out[i] = out[i-1].Mul(pm1).Add(tr[i]).Div(p)
	}
	return out
}
