package indicator

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// RSI computes the Wilder relative strength index. Entries up to and
// including index period are warmup.
func RSI(prices []decimal.Decimal, period int) []decimal.Decimal {
	out := make([]decimal.Decimal, len(prices))
	if period <= 0 || len(prices) <= period {
		return out
	}

	gains := make([]decimal.Decimal, 0, len(prices)-1)
	losses := make([]decimal.Decimal, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		diff := prices[i].Sub(prices[i-1])
		if diff.IsPositive() {
			gains = append(gains, diff)
			losses = append(losses, decimal.Zero)
		} else {
			gains = append(gains, decimal.Zero)
			losses = append(losses, diff.Neg())
		}
	}

	p := decimal.NewFromInt(int64(period))
	avgGain, avgLoss := decimal.Zero, decimal.Zero
	for i := 0; i < period; i++ {
		avgGain = avgGain.Add(gains[i])
		avgLoss = avgLoss.Add(losses[i])
	}
	avgGain = avgGain.Div(p)
	avgLoss = avgLoss.Div(p)

	out[period] = rsiValue(avgGain, avgLoss)

	pm1 := p.Sub(decimal.NewFromInt(1))
	for i := period + 1; i <= len(gains); i++ {
		avgGain = avgGain.Mul(pm1).Add(gains[i-1]).Div(p)
		avgLoss = avgLoss.Mul(pm1).Add(losses[i-1]).Div(p)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss decimal.Decimal) decimal.Decimal {
	if avgLoss.IsZero() {
		return hundred
	}
	rs := avgGain.Div(avgLoss)
	return hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
}
