// Package engine ties the stream to the evaluators: it applies routed
// trades and quotes to the portfolio book, recomputes true exposure for
// the affected ticker, and emits breach decisions to the notifier and
// the audit writer.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/mkoval/exposure-monitor/internal/breach"
	"github.com/mkoval/exposure-monitor/internal/exposure"
	"github.com/mkoval/exposure-monitor/internal/model"
	"github.com/mkoval/exposure-monitor/internal/notify"
	"github.com/mkoval/exposure-monitor/internal/portfolio"
	"github.com/mkoval/exposure-monitor/internal/router"
)

// Config holds engine tunables.
type Config struct {
	// DedupWindow is how many recent execution keys to remember.
	// Upstream reconnects can replay execution reports; applying one
	// twice would double-count the position move.
	DedupWindow int

	// StressMultiplier scales computed ownership percentages. 1.0 in
	// production; other values exist for what-if simulation runs.
	StressMultiplier float64
}

// Stats contains engine counters.
type Stats struct {
	TradesApplied int64
	Duplicates    int64
	QuotesApplied int64
	Evaluations   int64
	Breaches      int64
	Warnings      int64
}

// Engine consumes the router's typed buffers and drives evaluation.
type Engine struct {
	cfg      Config
	logger   *slog.Logger
	book     *portfolio.Book
	buffers  router.Buffers
	notifier notify.Notifier

	decisions *router.RingBuffer[breach.Decision]
	events    *router.RingBuffer[model.TradeEvent]
	dedup     *dedupSet

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	lastStatus map[string]model.BreachStatus
	stats      Stats
}

// New creates an engine over the given book and router buffers.
func New(cfg Config, book *portfolio.Book, buffers router.Buffers, notifier notify.Notifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DedupWindow < 1 {
		cfg.DedupWindow = 4096
	}
	if cfg.StressMultiplier == 0 {
		cfg.StressMultiplier = 1.0
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}

	return &Engine{
		cfg:        cfg,
		logger:     logger.With("component", "engine"),
		book:       book,
		buffers:    buffers,
		notifier:   notifier,
		decisions:  router.NewRingBuffer[breach.Decision](256),
		events:     router.NewRingBuffer[model.TradeEvent](256),
		dedup:      newDedupSet(cfg.DedupWindow),
		lastStatus: make(map[string]model.BreachStatus),
	}
}

// Decisions returns the audit stream of emitted decisions, consumed by
// the decision writer.
func (e *Engine) Decisions() *router.RingBuffer[breach.Decision] {
	return e.decisions
}

// Events returns the stream of applied trade events, consumed by the
// event writer. Duplicates and checksum rejects never appear here.
func (e *Engine) Events() *router.RingBuffer[model.TradeEvent] {
	return e.events
}

// Start launches the consume loops. The loops exit when the router
// closes its buffers; call Stop afterwards to wait for them.
func (e *Engine) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(2)
	go e.tradeLoop(runCtx)
	go e.quoteLoop(runCtx)

	e.logger.Info("engine started",
		"dedup_window", e.cfg.DedupWindow,
		"stress_multiplier", e.cfg.StressMultiplier,
	)
}

// Stop waits for the consume loops to drain and closes the decision
// stream.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.decisions.Close()
	e.events.Close()
	e.logger.Info("engine stopped")
}

// Stats returns a snapshot of engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Statuses returns the latest status per evaluated ticker.
func (e *Engine) Statuses() map[string]model.BreachStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]model.BreachStatus, len(e.lastStatus))
	for t, s := range e.lastStatus {
		out[t] = s
	}
	return out
}

func (e *Engine) tradeLoop(ctx context.Context) {
	defer e.wg.Done()

	for {
		ev, ok := e.buffers.Trades.Pop()
		if !ok {
			return
		}

		key := execKey(ev)
		if !e.dedup.admit(key) {
			e.mu.Lock()
			e.stats.Duplicates++
			e.mu.Unlock()
			e.logger.Debug("dropping replayed execution", "key", key)
			continue
		}

		if err := e.book.ApplyTrade(ev); err != nil {
			e.logger.Warn("trade rejected", "error", err)
			continue
		}

		e.mu.Lock()
		e.stats.TradesApplied++
		e.mu.Unlock()

		e.events.Push(ev)
		e.Evaluate(ctx, ev.Ticker)
	}
}

func (e *Engine) quoteLoop(ctx context.Context) {
	defer e.wg.Done()

	for {
		q, ok := e.buffers.Quotes.Pop()
		if !ok {
			return
		}

		e.book.ApplyQuote(q)

		e.mu.Lock()
		e.stats.QuotesApplied++
		e.mu.Unlock()

		e.Evaluate(ctx, q.Ticker)
	}
}

// Evaluate recomputes true exposure for one ticker against the current
// book snapshot and emits a decision when the status changed or the
// position sits at warning or breach.
func (e *Engine) Evaluate(ctx context.Context, ticker string) {
	snapshot := e.book.Snapshot()
	resolver := exposure.NewResolver(e.book.Constituents())
	res := resolver.Resolve(ticker, snapshot)

	if e.cfg.StressMultiplier != 1.0 && !res.DenominatorUnknown {
		res.TotalPercentage *= e.cfg.StressMultiplier
		res.DirectPercentage *= e.cfg.StressMultiplier
	}

	var velocity float64
	if h, ok := e.book.Get(ticker); ok {
		velocity = h.BuyingVelocity
	}

	decision := breach.Evaluate(breach.FromExposure(res, velocity))

	e.mu.Lock()
	e.stats.Evaluations++
	prev, known := e.lastStatus[ticker]
	e.lastStatus[ticker] = decision.Status
	switch decision.Status {
	case model.StatusBreach:
		e.stats.Breaches++
	case model.StatusWarning:
		e.stats.Warnings++
	}
	e.mu.Unlock()

	changed := !known || prev != decision.Status
	if decision.Status == model.StatusSafe && !changed {
		return
	}

	e.decisions.Push(decision)

	if changed || decision.Status == model.StatusBreach {
		if err := e.notifier.Notify(ctx, decision); err != nil {
			e.logger.Warn("notification failed", "ticker", ticker, "error", err)
		}
	}
}

// EvaluateAll sweeps every tracked ticker against the latest snapshot.
// Run at startup and periodically while the feed is down, so decisions
// stay current on reference-data refreshes even without stream events.
func (e *Engine) EvaluateAll(ctx context.Context) {
	for _, h := range e.book.Snapshot() {
		if h.IsETF {
			continue
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		e.Evaluate(ctx, h.Ticker)
	}
}

// execKey identifies one execution for replay detection. OrderID alone
// is not enough: partial fills share it, so the cumulative quantity
// disambiguates.
func execKey(ev model.TradeEvent) string {
	return fmt.Sprintf("%s|%s|%s", ev.OrderID, ev.ClOrdID, strconv.FormatFloat(ev.CumQty, 'f', -1, 64))
}
