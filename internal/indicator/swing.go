package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/kripteks/tradecore/internal/domain"
)

// RecentSwing returns the highest high and lowest low over the last lookback
// candles. Both values are zero when the window is shorter than lookback.
func RecentSwing(candles []domain.Candle, lookback int) (high, low decimal.Decimal) {
	if lookback <= 0 || len(candles) < lookback {
		return decimal.Zero, decimal.Zero
	}
	window := candles[len(candles)-lookback:]
	high = window[0].High
	low = window[0].Low
	for _, c := range window[1:] {
		if c.High.GreaterThan(high) {
			high = c.High
		}
		if c.Low.LessThan(low) {
			low = c.Low
		}
	}
	return high, low
}

// Closes extracts the close series from candles.
func Closes(candles []domain.Candle) []decimal.Decimal {
	out := make([]decimal.Decimal, len(candles))
	for i := range candles {
		out[i] = candles[i].Close
	}
	return out
}
