package strategy

import (
	"github.com/shopspring/decimal"

	"github.com/kripteks/tradecore/internal/domain"
)

// MarketBuy enters immediately at the current price and then defers to the
// caller's take-profit/stop-loss rules. It does no technical analysis.
type MarketBuy struct{}

// NewMarketBuy returns a MarketBuy strategy.
func NewMarketBuy() *MarketBuy { return &MarketBuy{} }

func (s *MarketBuy) ID() string   { return "market-buy" }
func (s *MarketBuy) Name() string { return "Instant Market Buy" }
func (s *MarketBuy) Description() string {
	return "Buys at the current price without waiting for a signal; exits are driven entirely by the configured take-profit and stop-loss."
}
func (s *MarketBuy) Category() domain.StrategyCategory { return domain.CategoryTrading }
func (s *MarketBuy) MinLookback() int                  { return 1 }

func (s *MarketBuy) SetParameters(params map[string]string) error { return nil }

func (s *MarketBuy) Analyze(candles []domain.Candle, balance, positionQty, entryPrice decimal.Decimal, currentStep int) (domain.StrategyResult, error) {
	if len(candles) < s.MinLookback() {
		return domain.StrategyResult{}, nil
	}
	last := candles[len(candles)-1]
	if positionQty.IsZero() {
		return domain.StrategyResult{
			Action:      domain.ActionBuy,
			Price:       last.Close,
			Time:        last.OpenTime,
			Description: "immediate market entry",
		}, nil
	}
	return domain.StrategyResult{
		Price: last.Close,
		Time:  last.OpenTime,
	}, nil
}

// SignalScore is a constant 50: there is no technical condition to rate.
func (s *MarketBuy) SignalScore(candles []domain.Candle) decimal.Decimal {
	if len(candles) < s.MinLookback() {
		return decimal.Zero
	}
	return decimal.NewFromInt(50)
}
