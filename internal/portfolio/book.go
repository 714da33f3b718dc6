package portfolio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mkoval/exposure-monitor/internal/api"
	"github.com/mkoval/exposure-monitor/internal/model"
)

// ReferenceClient is the slice of the REST API the book needs.
type ReferenceClient interface {
	GetHoldings(ctx context.Context) ([]model.Holding, error)
	GetSharesOutstanding(ctx context.Context, ticker string) (api.SharesOutstanding, error)
	GetConstituents(ctx context.Context, etf string) ([]model.ETFConstituent, error)
	GetRegulatoryRules(ctx context.Context, jurisdiction string) ([]model.RegulatoryRule, error)
}

// Config holds book timing parameters.
type Config struct {
	ReconcileInterval  time.Duration // Vendor figure refresh cadence
	InitialLoadTimeout time.Duration // Budget for the startup load
	VelocityWindow     time.Duration // Sliding window for buying velocity
}

type tradeMark struct {
	at  time.Time
	qty float64 // signed: buys positive, sells negative
}

// Book is the in-memory holdings registry. It is loaded from the
// reference API at startup, kept current by applying stream events,
// and periodically reconciled against the vendor shares-outstanding
// figures. All accessors return copies; callers never see live state.
type Book struct {
	cfg    Config
	client ReferenceClient
	logger *slog.Logger

	mu           sync.RWMutex
	holdings     map[string]*model.Holding
	constituents map[string][]model.ETFConstituent
	trades       map[string][]tradeMark

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBook creates an empty book. Start performs the initial load.
func NewBook(cfg Config, client ReferenceClient, logger *slog.Logger) *Book {
	if logger == nil {
		logger = slog.Default()
	}
	return &Book{
		cfg:          cfg,
		client:       client,
		logger:       logger.With("component", "portfolio"),
		holdings:     make(map[string]*model.Holding),
		constituents: make(map[string][]model.ETFConstituent),
		trades:       make(map[string][]tradeMark),
	}
}

// Start loads the holdings book and launches the reconciliation loop.
// Startup fails hard if the initial load does: a monitor with no book
// has nothing to evaluate.
func (b *Book) Start(ctx context.Context) error {
	loadCtx, cancel := context.WithTimeout(ctx, b.cfg.InitialLoadTimeout)
	defer cancel()

	if err := b.initialLoad(loadCtx); err != nil {
		return fmt.Errorf("initial holdings load: %w", err)
	}

	runCtx, runCancel := context.WithCancel(ctx)
	b.cancel = runCancel

	b.wg.Add(1)
	go b.reconcileLoop(runCtx)

	b.logger.Info("portfolio book started", "holdings", b.Size())
	return nil
}

// Stop halts the reconciliation loop.
func (b *Book) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	b.logger.Info("portfolio book stopped")
}

func (b *Book) initialLoad(ctx context.Context) error {
	holdings, err := b.client.GetHoldings(ctx)
	if err != nil {
		return err
	}

	loaded := make(map[string]*model.Holding, len(holdings))
	constituents := make(map[string][]model.ETFConstituent)
	for i := range holdings {
		h := holdings[i]
		loaded[h.Ticker] = &h

		if h.IsETF {
			members, err := b.client.GetConstituents(ctx, h.Ticker)
			if err != nil {
				// Tolerable: the ETF contributes nothing until the
				// reconcile loop fills the weights in.
				b.logger.Warn("constituent load failed", "etf", h.Ticker, "error", err)
				continue
			}
			constituents[h.Ticker] = members
		}
	}

	b.mu.Lock()
	b.holdings = loaded
	b.constituents = constituents
	b.mu.Unlock()

	// Tolerable: names without a rule fall back to the default threshold
	// until the reconcile loop retries the lookup.
	b.applyRules(ctx)
	return nil
}

// applyRules fetches disclosure rules for every jurisdiction that has a
// holding without an inline rule and assigns the strictest one. Rules
// delivered with the holdings response always win.
func (b *Book) applyRules(ctx context.Context) {
	b.mu.RLock()
	jurisdictions := make(map[string]struct{})
	for _, h := range b.holdings {
		if h.Rule == nil && h.Jurisdiction != "" {
			jurisdictions[h.Jurisdiction] = struct{}{}
		}
	}
	b.mu.RUnlock()

	for j := range jurisdictions {
		rules, err := b.client.GetRegulatoryRules(ctx, j)
		if err != nil {
			b.logger.Warn("regulatory rule load failed", "jurisdiction", j, "error", err)
			continue
		}
		rule := strictestRule(rules)
		if rule == nil {
			continue
		}

		b.mu.Lock()
		for _, h := range b.holdings {
			if h.Rule == nil && h.Jurisdiction == j {
				r := *rule
				h.Rule = &r
			}
		}
		b.mu.Unlock()
	}
}

// strictestRule picks the lowest positive disclosure threshold: when a
// jurisdiction files several rules, the earliest-triggering one binds.
func strictestRule(rules []model.RegulatoryRule) *model.RegulatoryRule {
	var best *model.RegulatoryRule
	for i := range rules {
		r := &rules[i]
		if r.ThresholdPct <= 0 {
			continue
		}
		if best == nil || r.ThresholdPct < best.ThresholdPct {
			best = r
		}
	}
	return best
}

// reconcileLoop refreshes vendor shares-outstanding figures and ETF
// constituent weights on a fixed cadence.
func (b *Book) reconcileLoop(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.reconcile(ctx)
		}
	}
}

func (b *Book) reconcile(ctx context.Context) {
	b.mu.RLock()
	tickers := make([]string, 0, len(b.holdings))
	etfs := make([]string, 0)
	for t, h := range b.holdings {
		tickers = append(tickers, t)
		if h.IsETF {
			etfs = append(etfs, t)
		}
	}
	b.mu.RUnlock()

	var refreshed int
	for _, t := range tickers {
		so, err := b.client.GetSharesOutstanding(ctx, t)
		if err != nil {
			b.logger.Warn("shares outstanding refresh failed", "ticker", t, "error", err)
			continue
		}

		b.mu.Lock()
		if h, ok := b.holdings[t]; ok {
			if so.Primary > 0 {
				h.TotalSharesOutstanding = so.Primary
			}
			h.VendorAShares = so.VendorA
			h.VendorBShares = so.VendorB
			h.LastUpdated = time.Now()
			refreshed++
		}
		b.mu.Unlock()
	}

	for _, etf := range etfs {
		members, err := b.client.GetConstituents(ctx, etf)
		if err != nil {
			b.logger.Warn("constituent refresh failed", "etf", etf, "error", err)
			continue
		}
		b.mu.Lock()
		b.constituents[etf] = members
		b.mu.Unlock()
	}

	// Jurisdictions can arrive after the initial load (quote backfill),
	// so rule assignment is retried every pass.
	b.applyRules(ctx)

	b.logger.Debug("reconcile pass complete", "refreshed", refreshed, "etfs", len(etfs))
}

// ApplyTrade folds an execution report into the book: buys add to the
// position, sells subtract, and the trade enters the velocity window.
// Events that failed checksum verification are refused outright.
func (b *Book) ApplyTrade(ev model.TradeEvent) error {
	if !ev.ChecksumValid {
		return fmt.Errorf("refusing trade with failed checksum: order %s", ev.OrderID)
	}

	signed := ev.Quantity
	if ev.Side == model.SideSell {
		signed = -signed
	}

	at := ev.TransactTime
	if at.IsZero() {
		at = ev.ReceivedAt
	}
	if at.IsZero() {
		at = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok := b.holdings[ev.Ticker]
	if !ok {
		// First sight of this name: track it with what the event tells us.
		h = &model.Holding{Ticker: ev.Ticker}
		b.holdings[ev.Ticker] = h
	}

	h.SharesOwned += signed
	if ev.Price > 0 {
		h.LastPrice = ev.Price
	}
	h.LastUpdated = time.Now()

	marks := append(b.trades[ev.Ticker], tradeMark{at: at, qty: signed})
	b.trades[ev.Ticker] = pruneMarks(marks, time.Now().Add(-b.cfg.VelocityWindow))
	h.BuyingVelocity = velocity(b.trades[ev.Ticker], b.cfg.VelocityWindow)

	return nil
}

// ApplyQuote updates last price and, when the quote carries a position
// figure, the owned share count.
func (b *Book) ApplyQuote(q model.Quote) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok := b.holdings[q.Ticker]
	if !ok {
		return
	}

	if q.Price > 0 {
		h.LastPrice = q.Price
	}
	if q.HasPosition {
		h.SharesOwned = q.Position
	}
	if q.Jurisdiction != "" && h.Jurisdiction == "" {
		h.Jurisdiction = q.Jurisdiction
	}
	h.LastUpdated = time.Now()
}

// Get returns a copy of one holding.
func (b *Book) Get(ticker string) (model.Holding, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	h, ok := b.holdings[ticker]
	if !ok {
		return model.Holding{}, false
	}
	return copyHolding(h), true
}

// Snapshot returns a deep copy of all holdings.
func (b *Book) Snapshot() []model.Holding {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]model.Holding, 0, len(b.holdings))
	for _, h := range b.holdings {
		out = append(out, copyHolding(h))
	}
	return out
}

// Constituents returns a copy of the ETF constituent map.
func (b *Book) Constituents() map[string][]model.ETFConstituent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string][]model.ETFConstituent, len(b.constituents))
	for etf, members := range b.constituents {
		out[etf] = append([]model.ETFConstituent(nil), members...)
	}
	return out
}

// Size returns the number of tracked holdings.
func (b *Book) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.holdings)
}

func copyHolding(h *model.Holding) model.Holding {
	out := *h
	if h.Rule != nil {
		rule := *h.Rule
		out.Rule = &rule
	}
	out.Options = append([]model.OptionPosition(nil), h.Options...)
	return out
}

func pruneMarks(marks []tradeMark, cutoff time.Time) []tradeMark {
	kept := marks[:0]
	for _, m := range marks {
		if m.at.After(cutoff) {
			kept = append(kept, m)
		}
	}
	return kept
}

// velocity is the net signed share flow over the window, expressed in
// shares per hour. Net selling yields a negative figure; time-to-breach
// projection downstream only consumes positive velocity.
func velocity(marks []tradeMark, window time.Duration) float64 {
	if window <= 0 {
		return 0
	}
	var net float64
	for _, m := range marks {
		net += m.qty
	}
	return net / window.Hours()
}
