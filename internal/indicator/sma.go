// Package indicator provides stateless numeric functions over price and
// candle series. Series functions return a slice aligned to the input
// length; entries before one full period are zero-valued warmup and must
// not be read.
package indicator

import "github.com/shopspring/decimal"

// SMA computes the simple moving average over period points.
func SMA(prices []decimal.Decimal, period int) []decimal.Decimal {
	if period <= 0 {
		return nil
	}
	out := make([]decimal.Decimal, len(prices))
	p := decimal.NewFromInt(int64(period))
	var sum decimal.Decimal
	for i := range prices {
		sum = sum.Add(prices[i])
		if i < period-1 {
			continue
		}
		if i >= period {
			sum = sum.Sub(prices[i-period])
		}
		out[i] = sum.Div(p)
	}
	return out
}
