package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mkoval/exposure-monitor/internal/breaker"
	"github.com/mkoval/exposure-monitor/internal/model"
)

// QuoteFetcher fetches a single quote over REST. Implemented by the
// api client.
type QuoteFetcher interface {
	GetQuote(ctx context.Context, ticker string) (model.Quote, error)
}

// PollerConfig configures the REST fallback poller.
type PollerConfig struct {
	Interval            time.Duration // Tick interval
	Timeout             time.Duration // Per-request timeout
	Retries             int           // Extra attempts within one tick
	RetryBackoff        time.Duration // Delay between in-tick retries
	MaxConsecutiveFails int           // Cutoff before a key is suspended
	Breaker             breaker.Config
}

type pollKey struct {
	ticker           string
	handler          QuoteHandler
	consecutiveFails int
	suspended        bool
	breaker          *breaker.Breaker
}

// Poller is the polling variant of the stream connector, used when no
// WebSocket endpoint is available or as a fallback. Each tick it
// fetches every subscribed ticker; a failing key burns its in-tick
// retries, then waits for the next tick. Keys that fail too many ticks
// in a row are suspended and only re-admitted through their circuit
// breaker's half-open probe.
type Poller struct {
	config  PollerConfig
	fetcher QuoteFetcher
	logger  *slog.Logger

	mu   sync.Mutex
	keys map[string]*pollKey

	out    chan RawMessage
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller creates a poller over the given fetcher.
func NewPoller(cfg PollerConfig, fetcher QuoteFetcher, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		config:  cfg,
		fetcher: fetcher,
		logger:  logger.With("component", "feed_poller"),
		keys:    make(map[string]*pollKey),
		out:     make(chan RawMessage, 1),
	}
}

// Track adds a ticker to the polling set. Re-tracking an existing
// ticker replaces its handler and resets its failure state.
func (p *Poller) Track(ticker string, fn QuoteHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys[ticker] = &pollKey{
		ticker:  ticker,
		handler: fn,
		breaker: breaker.New(p.config.Breaker),
	}
}

// Untrack removes a ticker from the polling set.
func (p *Poller) Untrack(ticker string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.keys, ticker)
}

// Start launches the polling loop. The first sweep runs immediately.
func (p *Poller) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.run(runCtx)
}

// Stop halts polling and waits for the in-flight sweep to finish.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

// sweep polls every tracked key once.
func (p *Poller) sweep(ctx context.Context) {
	p.mu.Lock()
	keys := make([]*pollKey, 0, len(p.keys))
	for _, k := range p.keys {
		keys = append(keys, k)
	}
	p.mu.Unlock()

	for _, key := range keys {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.pollKey(ctx, key)
	}
}

func (p *Poller) pollKey(ctx context.Context, key *pollKey) {
	p.mu.Lock()
	suspended := key.suspended
	p.mu.Unlock()

	if suspended && !key.breaker.CanExecute() {
		return
	}

	quote, err := p.fetchWithRetry(ctx, key.ticker)
	if err != nil {
		key.breaker.RecordFailure()
		p.mu.Lock()
		key.consecutiveFails++
		fails := key.consecutiveFails
		if fails >= p.config.MaxConsecutiveFails && !key.suspended {
			key.suspended = true
			p.logger.Warn("suspending ticker after repeated failures",
				"ticker", key.ticker, "consecutive_fails", fails)
		}
		p.mu.Unlock()
		p.logger.Warn("poll failed", "ticker", key.ticker, "error", err)
		return
	}

	key.breaker.RecordSuccess()
	p.mu.Lock()
	key.consecutiveFails = 0
	if key.suspended && key.breaker.State() == breaker.StateClosed {
		key.suspended = false
		p.logger.Info("ticker resumed", "ticker", key.ticker)
	}
	handler := key.handler
	p.mu.Unlock()

	if handler != nil {
		handler(quote)
	}
}

// fetchWithRetry makes up to Retries+1 attempts within one tick, then
// gives up until the next tick.
func (p *Poller) fetchWithRetry(ctx context.Context, ticker string) (model.Quote, error) {
	var lastErr error
	for attempt := 0; attempt <= p.config.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return model.Quote{}, ctx.Err()
			case <-time.After(p.config.RetryBackoff):
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		quote, err := p.fetcher.GetQuote(reqCtx, ticker)
		cancel()
		if err == nil {
			return quote, nil
		}
		lastErr = err
	}
	return model.Quote{}, lastErr
}
