package indicator

import "github.com/shopspring/decimal"

var two = decimal.NewFromInt(2)

// EMA computes the exponential moving average with the standard 2/(period+1)
// smoothing. The first value at index period-1 is seeded with the SMA.
func EMA(prices []decimal.Decimal, period int) []decimal.Decimal {
	if period <= 0 {
		return nil
	}
	out := make([]decimal.Decimal, len(prices))
	if len(prices) < period {
		return out
	}
	k := two.Div(decimal.NewFromInt(int64(period + 1)))

	seed := decimal.Zero
	for i := 0; i < period; i++ {
		seed = seed.Add(prices[i])
	}
	out[period-1] = seed.Div(decimal.NewFromInt(int64(period)))

	for i := period; i < len(prices); i++ {
		prev := out[i-1]
		out[i] = prices[i].Sub(prev).Mul(k).Add(prev)
	}
	return out
}

// CrossedAbove reports whether fast crossed above slow at index i, i.e. fast
// was at or below slow on the previous point and is strictly above now.
func CrossedAbove(fast, slow []decimal.Decimal, i int) bool {
	if i < 1 || i >= len(fast) || i >= len(slow) {
		return false
	}
	return fast[i-1].LessThanOrEqual(slow[i-1]) && fast[i].GreaterThan(slow[i])
}

// CrossedBelow reports whether fast crossed below slow at index i.
func CrossedBelow(fast, slow []decimal.Decimal, i int) bool {
	if i < 1 || i >= len(fast) || i >= len(slow) {
		return false
	}
	return fast[i-1].GreaterThanOrEqual(slow[i-1]) && fast[i].LessThan(slow[i])
}
