package backtest

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/kripteks/tradecore/internal/domain"
)

// profitFactorCap is reported when a run has no losing trades. A finite
// sentinel keeps the value serializable and sortable where +Inf is not.
var profitFactorCap = decimal.NewFromInt(9999)

var hundred = decimal.NewFromInt(100)

// computeMetrics fills the metric fields of res from the recorded trades.
// All ratios operate on trade-level returns so they stay independent of the
// candle interval. Wins and losses are classified net of commission.
func computeMetrics(res *domain.BacktestResult, initialBalance decimal.Decimal) {
	trades := res.Trades
	res.TotalTrades = len(trades)
	res.TotalPnl = res.FinalBalance.Sub(initialBalance)
	if initialBalance.IsPositive() {
		res.TotalPnlPercent = res.TotalPnl.Div(initialBalance).Mul(hundred)
	}
	if len(trades) == 0 {
		return
	}

	var (
		grossWin, grossLoss decimal.Decimal
		curWins, curLosses  int
		returns             []decimal.Decimal
	)
	for _, t := range trades {
		net := t.Net()

		// Per-trade return on the capital the trade tied up.
		stake := t.EntryPrice.Mul(t.Quantity)
		if stake.IsPositive() {
			returns = append(returns, net.Div(stake))
		}

		if net.IsPositive() {
			res.WinningTrades++
			grossWin = grossWin.Add(net)
			curWins++
			curLosses = 0
			if curWins > res.MaxConsecutiveWins {
				res.MaxConsecutiveWins = curWins
			}
		} else {
			res.LosingTrades++
			grossLoss = grossLoss.Add(net)
			curLosses++
			curWins = 0
			if curLosses > res.MaxConsecutiveLosses {
				res.MaxConsecutiveLosses = curLosses
			}
		}
	}

	res.WinRate = decimal.NewFromInt(int64(res.WinningTrades)).
		Div(decimal.NewFromInt(int64(res.TotalTrades)))

	if res.WinningTrades > 0 {
		res.AverageWin = grossWin.Div(decimal.NewFromInt(int64(res.WinningTrades)))
	}
	if res.LosingTrades > 0 {
		res.AverageLoss = grossLoss.Div(decimal.NewFromInt(int64(res.LosingTrades)))
	}

	switch {
	case grossLoss.IsZero():
		res.ProfitFactor = profitFactorCap
	default:
		res.ProfitFactor = grossWin.Div(grossLoss.Abs())
	}

	res.MaxDrawdown = maxDrawdown(trades, initialBalance)
	res.SharpeRatio = sharpe(returns)
	res.SortinoRatio = sortino(returns)
}

// maxDrawdown walks the equity curve of running balance after each closed
// trade and returns the largest peak-to-trough decline as a percentage of
// the peak.
func maxDrawdown(trades []domain.BacktestTrade, initialBalance decimal.Decimal) decimal.Decimal {
	equity := initialBalance
	peak := initialBalance
	worst := decimal.Zero
	for _, t := range trades {
		equity = equity.Add(t.Net())
		if equity.GreaterThan(peak) {
			peak = equity
			continue
		}
		if peak.IsPositive() {
			dd := peak.Sub(equity).Div(peak).Mul(hundred)
			if dd.GreaterThan(worst) {
				worst = dd
			}
		}
	}
	return worst
}

// sharpe is mean return over population standard deviation. Fewer than two
// trades, or zero variance, yields 0.
func sharpe(returns []decimal.Decimal) decimal.Decimal {
	if len(returns) < 2 {
		return decimal.Zero
	}
	m := mean(returns)
	sd := stdev(returns, m)
	if sd.IsZero() {
		return decimal.Zero
	}
	return m.Div(sd)
}

// sortino divides the mean return by the downside deviation, the spread of
// negative returns measured about zero. No negative returns yields 0 by
// convention, not a divide-by-zero.
func sortino(returns []decimal.Decimal) decimal.Decimal {
	if len(returns) < 2 {
		return decimal.Zero
	}
	downside := decimal.Zero
	n := 0
	for _, r := range returns {
		if r.IsNegative() {
			downside = downside.Add(r.Mul(r))
			n++
		}
	}
	if n == 0 {
		return decimal.Zero
	}
	sd := decimal.NewFromFloat(math.Sqrt(downside.Div(decimal.NewFromInt(int64(n))).InexactFloat64()))
	if sd.IsZero() {
		return decimal.Zero
	}
	return mean(returns).Div(sd)
}

func mean(xs []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, x := range xs {
		sum = sum.Add(x)
	}
	return sum.Div(decimal.NewFromInt(int64(len(xs))))
}

// stdev is the population standard deviation. The square root goes through
// float64; ratios are reporting values, not balances, so the precision loss
// is acceptable.
func stdev(xs []decimal.Decimal, m decimal.Decimal) decimal.Decimal {
	variance := decimal.Zero
	for _, x := range xs {
		d := x.Sub(m)
		variance = variance.Add(d.Mul(d))
	}
	variance = variance.Div(decimal.NewFromInt(int64(len(xs))))
	return decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64()))
}
