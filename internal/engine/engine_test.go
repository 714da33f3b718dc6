package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mkoval/exposure-monitor/internal/api"
	"github.com/mkoval/exposure-monitor/internal/breach"
	"github.com/mkoval/exposure-monitor/internal/model"
	"github.com/mkoval/exposure-monitor/internal/portfolio"
	"github.com/mkoval/exposure-monitor/internal/router"
)

type fakeRef struct {
	holdings     []model.Holding
	constituents map[string][]model.ETFConstituent
}

func (f *fakeRef) GetHoldings(context.Context) ([]model.Holding, error) {
	return append([]model.Holding(nil), f.holdings...), nil
}

func (f *fakeRef) GetSharesOutstanding(_ context.Context, ticker string) (api.SharesOutstanding, error) {
	return api.SharesOutstanding{Ticker: ticker}, nil
}

func (f *fakeRef) GetConstituents(_ context.Context, etf string) ([]model.ETFConstituent, error) {
	return f.constituents[etf], nil
}

func (f *fakeRef) GetRegulatoryRules(context.Context, string) ([]model.RegulatoryRule, error) {
	return nil, nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	decisions []breach.Decision
}

func (n *recordingNotifier) Notify(_ context.Context, d breach.Decision) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.decisions = append(n.decisions, d)
	return nil
}

func (n *recordingNotifier) all() []breach.Decision {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]breach.Decision(nil), n.decisions...)
}

type harness struct {
	engine   *Engine
	book     *portfolio.Book
	buffers  router.Buffers
	notifier *recordingNotifier
}

func newHarness(t *testing.T, cfg Config, ref *fakeRef) *harness {
	t.Helper()

	book := portfolio.NewBook(portfolio.Config{
		ReconcileInterval:  time.Hour,
		InitialLoadTimeout: 2 * time.Second,
		VelocityWindow:     time.Hour,
	}, ref, nil)
	if err := book.Start(context.Background()); err != nil {
		t.Fatalf("book start: %v", err)
	}
	t.Cleanup(book.Stop)

	buffers := router.Buffers{
		Trades: router.NewRingBuffer[model.TradeEvent](16),
		Quotes: router.NewRingBuffer[model.Quote](16),
	}
	notifier := &recordingNotifier{}

	eng := New(cfg, book, buffers, notifier, nil)
	eng.Start(context.Background())
	t.Cleanup(func() {
		buffers.Trades.Close()
		buffers.Quotes.Close()
		eng.Stop()
	})

	return &harness{engine: eng, book: book, buffers: buffers, notifier: notifier}
}

func waitForStats(t *testing.T, e *Engine, cond func(Stats) bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond(e.Stats()) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s (stats: %+v)", msg, e.Stats())
}

func acmeRef() *fakeRef {
	return &fakeRef{
		holdings: []model.Holding{{
			Ticker:                 "ACME",
			SharesOwned:            40000,
			TotalSharesOutstanding: 1000000,
			Rule:                   &model.RegulatoryRule{Code: "13D", ThresholdPct: 5},
		}},
	}
}

func buyEvent(orderID string, qty, cumQty float64) model.TradeEvent {
	return model.TradeEvent{
		Ticker: "ACME", Side: model.SideBuy, Quantity: qty, Price: 20,
		ExecType: "F", CumQty: cumQty, OrderID: orderID, ClOrdID: "c-" + orderID,
		ChecksumValid: true, ReceivedAt: time.Now(),
	}
}

func TestEngine_AppliesTradesAndEvaluates(t *testing.T) {
	h := newHarness(t, Config{}, acmeRef())

	// 40000 -> 48000 shares: 4.8% of 1M crosses the 4.5% warning band.
	h.buffers.Trades.Push(buyEvent("X-1", 8000, 8000))

	waitForStats(t, h.engine, func(s Stats) bool { return s.TradesApplied == 1 },
		"trade never applied")

	d, ok := h.engine.Decisions().Pop()
	if !ok {
		t.Fatal("decision stream closed")
	}
	if d.Status != model.StatusWarning {
		t.Errorf("Status = %v, want warning at 4.8%%", d.Status)
	}
	if d.OwnershipPct < 4.79 || d.OwnershipPct > 4.81 {
		t.Errorf("OwnershipPct = %v, want 4.8", d.OwnershipPct)
	}

	notified := h.notifier.all()
	if len(notified) != 1 || notified[0].Status != model.StatusWarning {
		t.Errorf("notifications = %+v, want one warning", notified)
	}
}

func TestEngine_DropsReplayedExecutions(t *testing.T) {
	h := newHarness(t, Config{}, acmeRef())

	ev := buyEvent("X-1", 1000, 1000)
	h.buffers.Trades.Push(ev)
	h.buffers.Trades.Push(ev) // replay after a reconnect

	waitForStats(t, h.engine, func(s Stats) bool { return s.Duplicates == 1 },
		"duplicate never detected")

	if got := h.engine.Stats().TradesApplied; got != 1 {
		t.Errorf("TradesApplied = %d, want 1", got)
	}

	holding, _ := h.book.Get("ACME")
	if holding.SharesOwned != 41000 {
		t.Errorf("SharesOwned = %v, want 41000 (applied once)", holding.SharesOwned)
	}
}

func TestEngine_PartialFillsNotDeduped(t *testing.T) {
	h := newHarness(t, Config{}, acmeRef())

	// Same order, advancing CumQty: two distinct fills.
	h.buffers.Trades.Push(buyEvent("X-1", 500, 500))
	h.buffers.Trades.Push(buyEvent("X-1", 500, 1000))

	waitForStats(t, h.engine, func(s Stats) bool { return s.TradesApplied == 2 },
		"partial fills were deduped")

	holding, _ := h.book.Get("ACME")
	if holding.SharesOwned != 41000 {
		t.Errorf("SharesOwned = %v, want 41000", holding.SharesOwned)
	}
}

func TestEngine_QuoteDrivesBreach(t *testing.T) {
	h := newHarness(t, Config{}, acmeRef())

	// Position jumps to 6% via a quote carrying the position figure.
	h.buffers.Quotes.Push(model.Quote{
		Ticker: "ACME", Price: 21, Position: 60000, HasPosition: true,
		ReceivedAt: time.Now(),
	})

	waitForStats(t, h.engine, func(s Stats) bool { return s.Breaches >= 1 },
		"breach never recorded")

	d, ok := h.engine.Decisions().Pop()
	if !ok || d.Status != model.StatusBreach {
		t.Fatalf("decision = (%+v, %v), want breach", d, ok)
	}

	notified := h.notifier.all()
	if len(notified) == 0 || notified[len(notified)-1].Status != model.StatusBreach {
		t.Errorf("notifications = %+v, want breach notification", notified)
	}
}

func TestEngine_SafeTransitionsEmitted(t *testing.T) {
	h := newHarness(t, Config{}, acmeRef())

	// Up into warning, then back out.
	h.buffers.Quotes.Push(model.Quote{Ticker: "ACME", Position: 48000, HasPosition: true})
	h.buffers.Quotes.Push(model.Quote{Ticker: "ACME", Position: 30000, HasPosition: true})

	waitForStats(t, h.engine, func(s Stats) bool { return s.QuotesApplied == 2 },
		"quotes never applied")

	first, _ := h.engine.Decisions().Pop()
	second, ok := h.engine.Decisions().Pop()
	if !ok {
		t.Fatal("expected a decision for the return to safe")
	}
	if first.Status != model.StatusWarning || second.Status != model.StatusSafe {
		t.Errorf("decisions = %v, %v; want warning then safe", first.Status, second.Status)
	}
}

func TestEngine_StressMultiplier(t *testing.T) {
	h := newHarness(t, Config{StressMultiplier: 2.0}, acmeRef())

	// 3% actual ownership reads as 6% under a 2x stress run.
	h.buffers.Quotes.Push(model.Quote{Ticker: "ACME", Position: 30000, HasPosition: true})

	waitForStats(t, h.engine, func(s Stats) bool { return s.Breaches >= 1 },
		"stressed evaluation never breached")

	d, _ := h.engine.Decisions().Pop()
	if d.OwnershipPct < 5.99 || d.OwnershipPct > 6.01 {
		t.Errorf("OwnershipPct = %v, want 6.0 under 2x stress", d.OwnershipPct)
	}
}

func TestEngine_EvaluateAll(t *testing.T) {
	ref := acmeRef()
	ref.holdings = append(ref.holdings,
		model.Holding{Ticker: "WIDG", SharesOwned: 55000, TotalSharesOutstanding: 1000000,
			Rule: &model.RegulatoryRule{Code: "13D", ThresholdPct: 5}},
		model.Holding{Ticker: "INDX", IsETF: true, SharesOwned: 100},
	)
	h := newHarness(t, Config{}, ref)

	h.engine.EvaluateAll(context.Background())

	// ACME at 4% is safe; WIDG at 5.5% breaches; the ETF row is skipped.
	stats := h.engine.Stats()
	if stats.Evaluations != 2 {
		t.Errorf("Evaluations = %d, want 2", stats.Evaluations)
	}
	if stats.Breaches != 1 {
		t.Errorf("Breaches = %d, want 1", stats.Breaches)
	}

	d, ok := h.engine.Decisions().TryPop()
	if !ok || d.Ticker != "WIDG" || d.Status != model.StatusBreach {
		t.Errorf("decision = (%+v, %v), want WIDG breach", d, ok)
	}
}
