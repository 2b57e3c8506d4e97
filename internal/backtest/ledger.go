// Package backtest simulates strategy execution over historical candles and
// derives performance metrics from the resulting trade list. A run is a pure
// function of its request plus the candle window, so identical inputs always
// produce identical results.
package backtest

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kripteks/tradecore/internal/domain"
	"github.com/kripteks/tradecore/internal/strategy"
)

// Exit reasons recorded on simulated trades.
const (
	exitSignal      = "signal"
	exitTakeProfit  = "take_profit"
	exitStopLoss    = "stop_loss"
	exitForcedClose = "forced_close"
)

// ledger tracks the cash balance and the single open position of one
// simulation run. Fills are adjusted by the slippage rate (buys pay up,
// sells receive down) and commission is charged on both sides.
type ledger struct {
	commissionRate decimal.Decimal
	slippageRate   decimal.Decimal

	balance decimal.Decimal

	qty        decimal.Decimal
	entryPrice decimal.Decimal // volume-weighted average fill
	entryAt    time.Time
	entryFees  decimal.Decimal
	costBasis  decimal.Decimal
	target     decimal.Decimal // zero when unset
	stop       decimal.Decimal // zero when unset
	step       int

	totalCommission decimal.Decimal
	trades          []domain.BacktestTrade
}

func newLedger(initialBalance, commissionRate, slippageRate decimal.Decimal) *ledger {
	return &ledger{
		commissionRate: commissionRate,
		slippageRate:   slippageRate,
		balance:        initialBalance,
	}
}

// replay drives the strategy over candles[first:] with the earlier candles
// serving as indicator warm-up. One Analyze call per candle, evaluated on the
// close; pending take-profit/stop levels are checked against the candle's
// high/low before that call, so exits outrank new signals within a candle.
func replay(strat strategy.Strategy, candles []domain.Candle, first int, led *ledger, log *slog.Logger) error {
	for i := first; i < len(candles); i++ {
		c := candles[i]

		if led.inPosition() {
			if err := led.checkExits(c); err != nil {
				return err
			}
		}

		res, err := strat.Analyze(candles[:i+1], led.balance, led.qty, led.entryPrice, led.step)
		if err != nil {
			// A failing evaluation is a no-signal tick, never a run failure.
			log.Warn("strategy evaluation failed",
				slog.String("strategy", strat.ID()),
				slog.Time("candle", c.OpenTime),
				slog.Any("error", err))
			continue
		}

		switch res.Action {
		case domain.ActionBuy:
			if err := led.buy(c, res); err != nil {
				return err
			}
		case domain.ActionSell:
			// A sell can only close an existing position.
			if led.inPosition() {
				if err := led.close(c.OpenTime, led.sellFill(c.Close), exitSignal); err != nil {
					return err
				}
			}
		}
	}

	// Every run ends fully realized: force-close at the last candle's close.
	if led.inPosition() && len(candles) > 0 {
		last := candles[len(candles)-1]
		if err := led.close(last.OpenTime, last.Close, exitForcedClose); err != nil {
			return err
		}
	}
	return nil
}

func (l *ledger) inPosition() bool { return l.qty.IsPositive() }

func (l *ledger) buyFill(price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(1).Add(l.slippageRate))
}

func (l *ledger) sellFill(price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(1).Sub(l.slippageRate))
}

// qtyScale is the quantity precision used when sizing entries. Quantities
// are floored to this scale so cost plus commission never exceeds the cash
// being spent, whatever digits the division produces.
const qtyScale = 12

// buy opens a position, or adds to an existing one when the strategy
// suggests a DCA amount. The entry stake is the suggested amount when the
// strategy provides one (a DCA ladder reserves cash for its later adds) and
// the full balance otherwise. A buy signal while in position without a
// suggested amount is ignored (no pyramiding outside DCA).
func (l *ledger) buy(c domain.Candle, res domain.StrategyResult) error {
	fill := l.buyFill(c.Close)
	if !fill.IsPositive() {
		return nil
	}

	if !l.inPosition() {
		spend := l.balance
		if res.SuggestedAmount.IsPositive() && res.SuggestedAmount.LessThan(spend) {
			spend = res.SuggestedAmount
		}
		// Floored quantity: cost + fee = qty * fill * (1+rate) <= spend.
		unitCost := fill.Mul(decimal.NewFromInt(1).Add(l.commissionRate))
		qty := spend.DivRound(unitCost, qtyScale+8).RoundDown(qtyScale)
		if unitCost.Mul(qty).GreaterThan(spend) {
			// The half-up division landed exactly on a quantity step; back
			// off one step rather than overdraw by an epsilon.
			qty = qty.Sub(decimal.New(1, -qtyScale))
		}
		if !qty.IsPositive() {
			return nil
		}
		cost := fill.Mul(qty)
		fee := cost.Mul(l.commissionRate)
		l.balance = l.balance.Sub(cost).Sub(fee)
		l.qty = qty
		l.entryPrice = fill
		l.entryAt = c.OpenTime
		l.entryFees = fee
		l.costBasis = cost
		l.target = res.TargetPrice
		l.stop = res.StopPrice
		l.step = 1
		l.totalCommission = l.totalCommission.Add(fee)
		return l.checkBalance()
	}

	if !res.SuggestedAmount.IsPositive() {
		return nil
	}

	// DCA add: spend the suggested quote amount, capped by what the balance
	// covers including commission, and recompute the volume-weighted entry.
	spend := res.SuggestedAmount
	maxSpend := l.balance.DivRound(decimal.NewFromInt(1).Add(l.commissionRate), qtyScale+8).RoundDown(qtyScale)
	if spend.GreaterThan(maxSpend) {
		spend = maxSpend
	}
	if !spend.IsPositive() {
		return nil
	}
	addQty := spend.Div(fill)
	fee := spend.Mul(l.commissionRate)
	l.balance = l.balance.Sub(spend).Sub(fee)
	newQty := l.qty.Add(addQty)
	l.entryPrice = l.entryPrice.Mul(l.qty).Add(fill.Mul(addQty)).Div(newQty)
	l.qty = newQty
	l.entryFees = l.entryFees.Add(fee)
	l.costBasis = l.costBasis.Add(spend)
	l.step++
	if res.TargetPrice.IsPositive() {
		l.target = res.TargetPrice
	}
	if res.StopPrice.IsPositive() {
		l.stop = res.StopPrice
	}
	l.totalCommission = l.totalCommission.Add(fee)
	return l.checkBalance()
}

// checkExits tests the pending stop and target against the candle's extremes.
// The stop is checked first: within one candle a hard stop outranks the
// take-profit. The exit fills at the level itself, not the candle close.
func (l *ledger) checkExits(c domain.Candle) error {
	if l.stop.IsPositive() && c.Low.LessThanOrEqual(l.stop) {
		return l.close(c.OpenTime, l.stop, exitStopLoss)
	}
	if l.target.IsPositive() && c.High.GreaterThanOrEqual(l.target) {
		return l.close(c.OpenTime, l.target, exitTakeProfit)
	}
	return nil
}

// close realizes the open position at the given price and records the trade.
func (l *ledger) close(at time.Time, price decimal.Decimal, reason string) error {
	proceeds := price.Mul(l.qty)
	fee := proceeds.Mul(l.commissionRate)
	l.balance = l.balance.Add(proceeds).Sub(fee)
	l.totalCommission = l.totalCommission.Add(fee)

	l.trades = append(l.trades, domain.BacktestTrade{
		Type:       reason,
		EntryTime:  l.entryAt,
		ExitTime:   at,
		EntryPrice: l.entryPrice,
		ExitPrice:  price,
		Quantity:   l.qty,
		Pnl:        proceeds.Sub(l.costBasis),
		Commission: l.entryFees.Add(fee),
	})

	l.qty = decimal.Zero
	l.entryPrice = decimal.Zero
	l.entryFees = decimal.Zero
	l.costBasis = decimal.Zero
	l.target = decimal.Zero
	l.stop = decimal.Zero
	l.step = 0
	return l.checkBalance()
}

func (l *ledger) checkBalance() error {
	if l.balance.IsNegative() {
		return fmt.Errorf("%w: balance went negative (%s)", domain.ErrInvariantViolation, l.balance)
	}
	return nil
}
