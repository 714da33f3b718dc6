package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mkoval/exposure-monitor/internal/feed"
	"github.com/mkoval/exposure-monitor/internal/fix"
	"github.com/mkoval/exposure-monitor/internal/model"
)

// Config sizes the output buffers.
type Config struct {
	TradeBufferSize int
	QuoteBufferSize int
}

// Buffers are the router's typed outputs, consumed by the engine and
// the writers.
type Buffers struct {
	Trades *RingBuffer[model.TradeEvent]
	Quotes *RingBuffer[model.Quote]
}

// Stats contains routing counters.
type Stats struct {
	Received          int64
	Routed            int64
	Heartbeats        int64
	IntegrityDiscards int64
	ParseErrors       int64
	Unknown           int64
	TradeBuffer       BufferStats
	QuoteBuffer       BufferStats
}

// Router splits the mixed raw feed into typed streams: FIX execution
// reports become trade events, JSON quote envelopes become quotes.
// Frames that fail checksum verification are integrity discards; they
// are counted but never forwarded downstream.
type Router struct {
	cfg     Config
	logger  *slog.Logger
	decoder *fix.Decoder
	input   <-chan feed.RawMessage

	tradeBuf *RingBuffer[model.TradeEvent]
	quoteBuf *RingBuffer[model.Quote]

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu                sync.Mutex
	received          int64
	routed            int64
	heartbeats        int64
	integrityDiscards int64
	parseErrors       int64
	unknown           int64
}

// New creates a router over the given raw input channel.
func New(cfg Config, input <-chan feed.RawMessage, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TradeBufferSize < 1 {
		cfg.TradeBufferSize = 1024
	}
	if cfg.QuoteBufferSize < 1 {
		cfg.QuoteBufferSize = 1024
	}

	return &Router{
		cfg:      cfg,
		logger:   logger.With("component", "router"),
		decoder:  fix.NewDecoder(),
		input:    input,
		tradeBuf: NewRingBuffer[model.TradeEvent](cfg.TradeBufferSize),
		quoteBuf: NewRingBuffer[model.Quote](cfg.QuoteBufferSize),
	}
}

// Start begins routing messages.
func (r *Router) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.routeLoop(runCtx)

	r.logger.Info("router started",
		"trade_buffer", r.cfg.TradeBufferSize,
		"quote_buffer", r.cfg.QuoteBufferSize,
	)
}

// Stop shuts down the routing loop and closes the output buffers.
// Waits up to the context deadline for in-flight routing to finish.
func (r *Router) Stop(ctx context.Context) {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("router stopped")
	case <-ctx.Done():
		r.logger.Warn("router stop timed out")
	}

	r.tradeBuf.Close()
	r.quoteBuf.Close()
}

// Buffers returns the typed output buffers.
func (r *Router) Buffers() Buffers {
	return Buffers{Trades: r.tradeBuf, Quotes: r.quoteBuf}
}

// Stats returns a snapshot of routing counters.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Received:          r.received,
		Routed:            r.routed,
		Heartbeats:        r.heartbeats,
		IntegrityDiscards: r.integrityDiscards,
		ParseErrors:       r.parseErrors,
		Unknown:           r.unknown,
		TradeBuffer:       r.tradeBuf.Stats(),
		QuoteBuffer:       r.quoteBuf.Stats(),
	}
}

func (r *Router) routeLoop(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-r.input:
			if !ok {
				r.logger.Info("input channel closed")
				return
			}
			r.route(raw)
		}
	}
}

func (r *Router) route(raw feed.RawMessage) {
	r.bump(&r.received)

	if bytes.HasPrefix(raw.Data, []byte("8=")) {
		r.routeFIX(raw)
		return
	}
	r.routeJSON(raw)
}

// routeFIX decodes an execution report frame. Heartbeats are dropped
// silently; checksum failures are recorded as integrity discards and
// the partial event is thrown away.
func (r *Router) routeFIX(raw feed.RawMessage) {
	event, err := r.decoder.Decode(raw.Data)
	switch {
	case err == nil:
		event.ReceivedAt = raw.ReceivedAt
		if r.tradeBuf.Push(event) {
			r.bump(&r.routed)
		}
	case errors.Is(err, fix.ErrHeartbeat):
		r.bump(&r.heartbeats)
	case errors.Is(err, fix.ErrChecksumMismatch):
		r.bump(&r.integrityDiscards)
		r.logger.Warn("discarding frame with bad checksum",
			"ticker", event.Ticker, "order_id", event.OrderID)
	default:
		r.bump(&r.parseErrors)
		r.logger.Warn("failed to decode frame", "error", err)
	}
}

func (r *Router) routeJSON(raw feed.RawMessage) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw.Data, &envelope); err != nil {
		r.bump(&r.parseErrors)
		r.logger.Warn("failed to parse message envelope", "error", err)
		return
	}

	switch envelope.Type {
	case "quote":
		quote, err := parseQuote(raw)
		if err != nil {
			r.bump(&r.parseErrors)
			r.logger.Warn("failed to parse quote", "error", err)
			return
		}
		if r.quoteBuf.Push(quote) {
			r.bump(&r.routed)
		}
	case "pong", "subscribed", "unsubscribed":
		// Control traffic, nothing to route.
	default:
		r.bump(&r.unknown)
		r.logger.Debug("skipping message type", "type", envelope.Type)
	}
}

func parseQuote(raw feed.RawMessage) (model.Quote, error) {
	var wire struct {
		Ticker       string   `json:"ticker"`
		Price        float64  `json:"price"`
		Position     *float64 `json:"position"`
		Jurisdiction string   `json:"jurisdiction"`
		AsOf         string   `json:"asOf"`
	}
	if err := json.Unmarshal(raw.Data, &wire); err != nil {
		return model.Quote{}, err
	}

	quote := model.Quote{
		Ticker:       wire.Ticker,
		Price:        wire.Price,
		Jurisdiction: wire.Jurisdiction,
		ReceivedAt:   raw.ReceivedAt,
	}
	if wire.Position != nil {
		quote.Position = *wire.Position
		quote.HasPosition = true
	}
	if wire.AsOf != "" {
		if t, err := time.Parse(time.RFC3339, wire.AsOf); err == nil {
			quote.AsOf = t
		}
	}
	return quote, nil
}

func (r *Router) bump(counter *int64) {
	r.mu.Lock()
	*counter++
	r.mu.Unlock()
}
