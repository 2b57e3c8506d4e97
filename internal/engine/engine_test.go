package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kripteks/tradecore/internal/domain"
	"github.com/kripteks/tradecore/internal/strategy"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubStrategy emits a scripted action, letting tests drive the state
// machine directly.
type stubStrategy struct {
	action domain.TradeAction
	amount decimal.Decimal
}

func (s *stubStrategy) ID() string { return "stub" }
func (s *stubStrategy) Name() string { return "Stub" }
func (s *stubStrategy) Description() string { return "test stub" }
func (s *stubStrategy) Category() domain.StrategyCategory { return domain.CategoryTrading }
func (s *stubStrategy) MinLookback() int { return 1 }
func (s *stubStrategy) SetParameters(map[string]string) error { return nil }
func (s *stubStrategy) SignalScore([]domain.Candle) decimal.Decimal { return decimal.Zero }
func (s *stubStrategy) Analyze([]domain.Candle, decimal.Decimal, decimal.Decimal, decimal.Decimal, int) (domain.StrategyResult, error) {
	return domain.StrategyResult{Action: s.action, SuggestedAmount: s.amount}, nil
}

type memBotStore struct {
	mu   sync.Mutex
	bots map[string]domain.Bot
}

func newMemBotStore(bots ...domain.Bot) *memBotStore {
	s := &memBotStore{bots: map[string]domain.Bot{}}
	for _, b := range bots {
		s.bots[b.ID] = b
	}
	return s
}

func (s *memBotStore) Create(_ context.Context, bot domain.Bot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bots[bot.ID] = bot
	return nil
}

func (s *memBotStore) Update(_ context.Context, bot domain.Bot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bots[bot.ID] = bot
	return nil
}

func (s *memBotStore) GetByID(_ context.Context, id string) (domain.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bot, ok := s.bots[id]
	if !ok {
		return domain.Bot{}, domain.ErrNotFound
	}
	return bot, nil
}

func (s *memBotStore) ListActive(_ context.Context) ([]domain.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Bot
	for _, b := range s.bots {
		if b.Status == domain.BotRunning || b.Status == domain.BotWaitingForEntry {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memBotStore) List(_ context.Context, _ domain.ListOpts) ([]domain.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Bot
	for _, b := range s.bots {
		out = append(out, b)
	}
	return out, nil
}

func (s *memBotStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bots, id)
	return nil
}

type memTradeStore struct {
	mu     sync.Mutex
	trades []domain.Trade
}

func (s *memTradeStore) Insert(_ context.Context, trade domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, trade)
	return nil
}

func (s *memTradeStore) ListByBot(_ context.Context, botID string, _ domain.ListOpts) ([]domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Trade
	for _, t := range s.trades {
		if t.BotID == botID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memTradeStore) GetLastTimestamp(_ context.Context, _ string) (time.Time, error) {
	return time.Time{}, nil
}

func (s *memTradeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.trades)
}

type stubMarket struct {
	price decimal.Decimal
}

func (m *stubMarket) GetCandles(context.Context, string, domain.Interval, domain.CandleRange) ([]domain.Candle, error) {
	return m.GetLatestCandles(context.Background(), "", domain.Interval1h, 1)
}

func (m *stubMarket) GetLatestCandles(_ context.Context, _ string, _ domain.Interval, _ int) ([]domain.Candle, error) {
	return []domain.Candle{{
		OpenTime: time.Now().UTC(),
		Open:     m.price, High: m.price, Low: m.price, Close: m.price,
		Volume: decimal.NewFromInt(1),
	}}, nil
}

func (m *stubMarket) GetCurrentPrice(context.Context, string) (decimal.Decimal, error) {
	return m.price, nil
}

type stubOrders struct {
	mu       sync.Mutex
	failures int // orders to fail before succeeding
	placed   int
}

func (o *stubOrders) place() (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.placed++
	if o.failures > 0 {
		o.failures--
		return false, fmt.Errorf("exchange said no: %w", domain.ErrOrderRejected)
	}
	return true, nil
}

func (o *stubOrders) PlaceBuy(context.Context, string, decimal.Decimal, decimal.Decimal) (bool, error) {
	return o.place()
}

func (o *stubOrders) PlaceSell(context.Context, string, decimal.Decimal, decimal.Decimal) (bool, error) {
	return o.place()
}

type nopNotify struct{}

func (nopNotify) NotifyTrade(context.Context, domain.Trade) {}
func (nopNotify) NotifyBotUpdate(context.Context, domain.Bot) {}

func stubRegistry(action domain.TradeAction, amount decimal.Decimal) *strategy.Registry {
	r := strategy.NewRegistry()
	r.Register(func() strategy.Strategy { return &stubStrategy{action: action, amount: amount} })
	return r
}

func newTestEngine(bots *memBotStore, trades *memTradeStore, market *stubMarket,
	orders *stubOrders, reg *strategy.Registry) *Engine {
	return New(bots, trades, market, orders, nopNotify{}, reg, Options{}, discardLogger())
}

func waitingBot() domain.Bot {
	return domain.Bot{
		ID:         "bot-1",
		Symbol:     "BTC/USDT",
		StrategyID: "stub",
		Interval:   domain.Interval1h,
		Amount:     decimal.NewFromInt(100),
		Status:     domain.BotWaitingForEntry,
	}
}

func runningBot(entry, qty string) domain.Bot {
	b := waitingBot()
	b.Status = domain.BotRunning
	b.EntryPrice = decimal.RequireFromString(entry)
	b.Quantity = decimal.RequireFromString(qty)
	b.MaxPriceReached = b.EntryPrice
	b.CurrentDcaStep = 1
	return b
}

func TestEntryOnBuySignal(t *testing.T) {
	bots := newMemBotStore(waitingBot())
	trades := &memTradeStore{}
	eng := newTestEngine(bots, trades, &stubMarket{price: decimal.NewFromInt(50)},
		&stubOrders{}, stubRegistry(domain.ActionBuy, decimal.Zero))

	eng.processBot(context.Background(), mustGet(t, bots, "bot-1"))

	bot := mustGet(t, bots, "bot-1")
	if bot.Status != domain.BotRunning {
		t.Fatalf("status = %s, want running", bot.Status)
	}
	if !bot.EntryPrice.Equal(decimal.NewFromInt(50)) {
		t.Errorf("entry price = %s, want 50", bot.EntryPrice)
	}
	if !bot.Quantity.Equal(decimal.NewFromInt(2)) {
		t.Errorf("quantity = %s, want 100/50 = 2", bot.Quantity)
	}
	if trades.count() != 1 {
		t.Errorf("trades = %d, want 1 entry fill", trades.count())
	}
	if bot.EntryPrice.IsZero() && bot.Status == domain.BotRunning {
		t.Error("running bot with zero entry price")
	}
}

func TestStopLossOutranksSellSignal(t *testing.T) {
	bot := runningBot("100", "1")
	bot.StopLossPercent = decimal.NewFromInt(5)
	bots := newMemBotStore(bot)
	trades := &memTradeStore{}
	// Strategy also says sell, but the breached stop is what must close it.
	eng := newTestEngine(bots, trades, &stubMarket{price: decimal.NewFromInt(90)},
		&stubOrders{}, stubRegistry(domain.ActionSell, decimal.Zero))

	eng.processBot(context.Background(), mustGet(t, bots, "bot-1"))

	got := mustGet(t, bots, "bot-1")
	if got.Status != domain.BotCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if trades.count() != 1 {
		t.Errorf("trades = %d, want 1 closing fill", trades.count())
	}
	if !got.Quantity.IsZero() || !got.EntryPrice.IsZero() {
		t.Errorf("position not cleared: qty=%s entry=%s", got.Quantity, got.EntryPrice)
	}
}

func TestTrailingStopMonotonicAndTriggers(t *testing.T) {
	bot := runningBot("100", "1")
	bot.IsTrailingStop = true
	bot.TrailingStopDistance = decimal.NewFromInt(10)
	bots := newMemBotStore(bot)
	trades := &memTradeStore{}
	market := &stubMarket{price: decimal.NewFromInt(130)}
	eng := newTestEngine(bots, trades, market, &stubOrders{},
		stubRegistry(domain.ActionNone, decimal.Zero))

	// Price runs up: extreme follows, no exit (trigger = 130 * 0.9 = 117).
	eng.processBot(context.Background(), mustGet(t, bots, "bot-1"))
	got := mustGet(t, bots, "bot-1")
	if !got.MaxPriceReached.Equal(decimal.NewFromInt(130)) {
		t.Fatalf("max price = %s, want 130", got.MaxPriceReached)
	}
	if got.Status != domain.BotRunning {
		t.Fatalf("status = %s, want still running", got.Status)
	}

	// Price dips but stays above the trigger: the extreme must not decrease.
	market.price = decimal.NewFromInt(120)
	eng.processBot(context.Background(), mustGet(t, bots, "bot-1"))
	got = mustGet(t, bots, "bot-1")
	if !got.MaxPriceReached.Equal(decimal.NewFromInt(130)) {
		t.Fatalf("max price decreased to %s", got.MaxPriceReached)
	}
	if got.Status != domain.BotRunning {
		t.Fatalf("status = %s, want still running", got.Status)
	}

	// Price breaks the trigger: position closes.
	market.price = decimal.NewFromInt(116)
	eng.processBot(context.Background(), mustGet(t, bots, "bot-1"))
	got = mustGet(t, bots, "bot-1")
	if got.Status != domain.BotCompleted {
		t.Fatalf("status = %s, want completed after trailing stop", got.Status)
	}
}

func TestContinuousBotRearms(t *testing.T) {
	bot := runningBot("100", "1")
	bot.Continuous = true
	bots := newMemBotStore(bot)
	eng := newTestEngine(bots, &memTradeStore{}, &stubMarket{price: decimal.NewFromInt(110)},
		&stubOrders{}, stubRegistry(domain.ActionSell, decimal.Zero))

	eng.processBot(context.Background(), mustGet(t, bots, "bot-1"))

	got := mustGet(t, bots, "bot-1")
	if got.Status != domain.BotWaitingForEntry {
		t.Fatalf("status = %s, want waiting_for_entry (continuous)", got.Status)
	}
}

func TestDcaAddRecomputesEntry(t *testing.T) {
	bot := runningBot("100", "1")
	bots := newMemBotStore(bot)
	trades := &memTradeStore{}
	// Buy signal with a 50-quote suggested add at price 50 -> +1 base.
	eng := newTestEngine(bots, trades, &stubMarket{price: decimal.NewFromInt(50)},
		&stubOrders{}, stubRegistry(domain.ActionBuy, decimal.NewFromInt(50)))

	eng.processBot(context.Background(), mustGet(t, bots, "bot-1"))

	got := mustGet(t, bots, "bot-1")
	if got.Status != domain.BotRunning {
		t.Fatalf("status = %s, want running after dca add", got.Status)
	}
	if !got.Quantity.Equal(decimal.NewFromInt(2)) {
		t.Errorf("quantity = %s, want 2", got.Quantity)
	}
	if !got.EntryPrice.Equal(decimal.NewFromInt(75)) {
		t.Errorf("avg entry = %s, want (100+50)/2 = 75", got.EntryPrice)
	}
	if got.CurrentDcaStep != 2 {
		t.Errorf("dca step = %d, want 2", got.CurrentDcaStep)
	}
}

func TestAutoPauseAfterConsecutiveFailures(t *testing.T) {
	bots := newMemBotStore(waitingBot())
	orders := &stubOrders{failures: 10}
	eng := newTestEngine(bots, &memTradeStore{}, &stubMarket{price: decimal.NewFromInt(50)},
		orders, stubRegistry(domain.ActionBuy, decimal.Zero))

	for range maxConsecutiveFailures {
		eng.processBot(context.Background(), mustGet(t, bots, "bot-1"))
	}

	got := mustGet(t, bots, "bot-1")
	if got.Status != domain.BotPaused {
		t.Fatalf("status after %d failures = %s, want paused", maxConsecutiveFailures, got.Status)
	}
}

func TestFailureCounterResetsOnSuccess(t *testing.T) {
	bots := newMemBotStore(waitingBot())
	orders := &stubOrders{failures: maxConsecutiveFailures - 1}
	eng := newTestEngine(bots, &memTradeStore{}, &stubMarket{price: decimal.NewFromInt(50)},
		orders, stubRegistry(domain.ActionBuy, decimal.Zero))

	// Two failures, then a fill: the streak must never reach the cap.
	for range maxConsecutiveFailures {
		eng.processBot(context.Background(), mustGet(t, bots, "bot-1"))
	}

	got := mustGet(t, bots, "bot-1")
	if got.Status != domain.BotRunning {
		t.Fatalf("status = %s, want running after recovered fill", got.Status)
	}
	if n := eng.failures["bot-1"]; n != 0 {
		t.Errorf("failure streak = %d after success, want 0", n)
	}
}

func TestStopBotIdempotent(t *testing.T) {
	bots := newMemBotStore(runningBot("100", "1"))
	eng := newTestEngine(bots, &memTradeStore{}, &stubMarket{price: decimal.NewFromInt(100)},
		&stubOrders{}, stubRegistry(domain.ActionNone, decimal.Zero))

	for range 3 {
		if err := eng.StopBot(context.Background(), "bot-1"); err != nil {
			t.Fatal(err)
		}
	}
	got := mustGet(t, bots, "bot-1")
	if got.Status != domain.BotStopped {
		t.Fatalf("status = %s, want stopped", got.Status)
	}
}

func TestStartBotResumesPausedState(t *testing.T) {
	bot := runningBot("100", "1")
	bot.Status = domain.BotPaused
	bots := newMemBotStore(bot)
	eng := newTestEngine(bots, &memTradeStore{}, &stubMarket{price: decimal.NewFromInt(100)},
		&stubOrders{}, stubRegistry(domain.ActionNone, decimal.Zero))

	if err := eng.StartBot(context.Background(), "bot-1"); err != nil {
		t.Fatal(err)
	}
	got := mustGet(t, bots, "bot-1")
	if got.Status != domain.BotRunning {
		t.Fatalf("paused-in-position bot resumed as %s, want running", got.Status)
	}
}

func TestClaimBlocksOverlappingTicks(t *testing.T) {
	eng := newTestEngine(newMemBotStore(), &memTradeStore{}, &stubMarket{price: decimal.NewFromInt(1)},
		&stubOrders{}, stubRegistry(domain.ActionNone, decimal.Zero))

	_, ok := eng.claim(context.Background(), "bot-1")
	if !ok {
		t.Fatal("first claim refused")
	}
	if _, ok := eng.claim(context.Background(), "bot-1"); ok {
		t.Fatal("second claim succeeded while first still in flight")
	}
	eng.release("bot-1")
	if _, ok := eng.claim(context.Background(), "bot-1"); !ok {
		t.Fatal("claim refused after release")
	}
}

func mustGet(t *testing.T, s *memBotStore, id string) domain.Bot {
	t.Helper()
	bot, err := s.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get bot %s: %v", id, err)
	}
	return bot
}
