package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkoval/exposure-monitor/internal/model"
)

// QuoteHandler receives parsed quote updates for a subscribed ticker.
// Handlers for the same ticker are invoked in registration order.
type QuoteHandler func(model.Quote)

// stalePongMultiplier: a connection whose last pong is older than this
// many ping intervals is considered dead and torn down for reconnect.
const stalePongMultiplier = 3

type subscription struct {
	id      uuid.UUID
	ticker  string
	handler QuoteHandler
}

// Connector maintains one logical stream connection across physical
// reconnects. Subscriptions survive reconnection: on every successful
// (re)open the full set is replayed to the server. After MaxAttempts
// consecutive failed connects the connector enters the terminal failed
// state and reports ErrMaxAttempts.
type Connector struct {
	config ConnectorConfig
	logger *slog.Logger

	mu         sync.Mutex
	state      ConnectionState
	client     *Client
	subs       map[uuid.UUID]*subscription
	byTicker   map[string][]*subscription // registration order per ticker
	attempts   int
	totalDials int64
	disposed   bool

	out    chan RawMessage
	fatal  chan error
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConnector creates a connector. Call Start to open the connection.
func NewConnector(cfg ConnectorConfig, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		config:   cfg,
		logger:   logger.With("component", "feed_connector"),
		state:    StateDisconnected,
		subs:     make(map[uuid.UUID]*subscription),
		byTicker: make(map[string][]*subscription),
		out:      make(chan RawMessage, cfg.BufferSize),
		fatal:    make(chan error, 1),
	}
}

// State returns the current connection state.
func (c *Connector) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns raw stream messages for downstream routing.
func (c *Connector) Messages() <-chan RawMessage {
	return c.out
}

// Dials returns the cumulative connection attempt count.
func (c *Connector) Dials() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalDials
}

// Fatal returns a channel that receives ErrMaxAttempts when the
// connector gives up permanently.
func (c *Connector) Fatal() <-chan error {
	return c.fatal
}

// Start opens the initial connection and launches the supervision loop.
// The supervision loop owns all reconnect scheduling, so at most one
// reconnect is ever pending.
func (c *Connector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	if err := c.connect(runCtx); err != nil {
		// Initial failure is not terminal, supervision retries it.
		c.logger.Warn("initial connect failed, retrying in background", "error", err)
	}

	c.wg.Add(1)
	go c.supervise(runCtx)
	return nil
}

// Subscribe registers a quote handler for ticker and sends the
// subscription upstream if currently connected. Handlers for one
// ticker run in registration order. The returned id cancels the
// subscription via Unsubscribe.
func (c *Connector) Subscribe(ticker string, fn QuoteHandler) (uuid.UUID, error) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return uuid.Nil, ErrDisposed
	}
	sub := &subscription{id: uuid.New(), ticker: ticker, handler: fn}
	c.subs[sub.id] = sub
	c.byTicker[ticker] = append(c.byTicker[ticker], sub)
	client := c.client
	connected := c.state == StateConnected
	c.mu.Unlock()

	if connected && client != nil {
		if err := client.Subscribe(ticker); err != nil {
			// Keep the registration: it is replayed on reconnect.
			c.logger.Warn("subscribe send failed, will replay on reconnect",
				"ticker", ticker, "error", err)
		}
	}
	return sub.id, nil
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (c *Connector) Unsubscribe(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subs[id]
	if !ok {
		return
	}
	delete(c.subs, id)

	ordered := c.byTicker[sub.ticker]
	for i, s := range ordered {
		if s.id == id {
			c.byTicker[sub.ticker] = append(ordered[:i:i], ordered[i+1:]...)
			break
		}
	}
	if len(c.byTicker[sub.ticker]) == 0 {
		delete(c.byTicker, sub.ticker)
	}
}

// Dispose permanently shuts down the connector. It is idempotent and
// no handler runs after it returns.
func (c *Connector) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.state = StateDisconnected
	cancel := c.cancel
	client := c.client
	c.client = nil
	c.subs = make(map[uuid.UUID]*subscription)
	c.byTicker = make(map[string][]*subscription)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if client != nil {
		_ = client.Close()
	}
	c.wg.Wait()
	close(c.out)
	c.logger.Info("connector disposed")
}

// connect performs a single connection attempt and replays the
// subscription set on success.
func (c *Connector) connect(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	if c.attempts == 0 {
		c.state = StateConnecting
	} else {
		c.state = StateReconnecting
	}
	c.attempts++
	c.totalDials++
	attempt := c.attempts
	c.mu.Unlock()

	client, err := Connect(ctx, c.config.clientConfig(), c.logger)
	if err != nil {
		c.logger.Warn("connect attempt failed", "attempt", attempt, "error", err)
		return err
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		_ = client.Close()
		return ErrDisposed
	}
	c.client = client
	c.state = StateConnected
	c.attempts = 0
	tickers := make([]string, 0, len(c.byTicker))
	for ticker := range c.byTicker {
		tickers = append(tickers, ticker)
	}
	c.mu.Unlock()

	for _, ticker := range tickers {
		if err := client.Subscribe(ticker); err != nil {
			c.logger.Warn("resubscribe failed", "ticker", ticker, "error", err)
		}
	}

	c.wg.Add(1)
	go c.pump(client)
	return nil
}

// supervise watches the active client for read errors and stale
// heartbeats, reconnecting with exponential backoff.
func (c *Connector) supervise(ctx context.Context) {
	defer c.wg.Done()

	check := time.NewTicker(c.config.PingInterval)
	defer check.Stop()

	for {
		c.mu.Lock()
		client := c.client
		connected := c.state == StateConnected
		c.mu.Unlock()

		if connected && client != nil {
			select {
			case <-ctx.Done():
				return
			case err := <-client.Errors():
				c.logger.Warn("connection lost", "error", err)
				c.teardown(client)
			case <-check.C:
				stale := stalePongMultiplier * c.config.PingInterval
				if time.Since(client.LastPong()) > stale {
					c.logger.Warn("heartbeat stale, dropping connection",
						"last_pong", client.LastPong())
					c.teardown(client)
				}
				continue
			}
		}

		if !c.reconnect(ctx) {
			return
		}
	}
}

// reconnect retries connect with backoff until success, context
// cancellation, or attempt exhaustion. A fresh disconnect retries
// immediately; each consecutive failure doubles the wait from the base
// delay up to the cap. Returns false when supervision should stop.
func (c *Connector) reconnect(ctx context.Context) bool {
	for {
		c.mu.Lock()
		failures := c.attempts
		disposed := c.disposed
		c.mu.Unlock()
		if disposed {
			return false
		}

		if failures >= c.config.MaxAttempts {
			c.mu.Lock()
			c.state = StateFailed
			c.mu.Unlock()
			c.logger.Error("giving up after max connection attempts",
				"max_attempts", c.config.MaxAttempts)
			select {
			case c.fatal <- ErrMaxAttempts:
			default:
			}
			return false
		}

		if failures > 0 {
			delay := Backoff(c.config.ReconnectBaseDelay, c.config.ReconnectMaxDelay, failures)
			c.logger.Info("scheduling reconnect", "attempt", failures+1, "delay", delay)
			select {
			case <-ctx.Done():
				return false
			case <-time.After(delay):
			}
		}

		if err := c.connect(ctx); err == nil {
			return true
		}
	}
}

func (c *Connector) teardown(client *Client) {
	c.mu.Lock()
	if c.client == client {
		c.client = nil
		c.state = StateReconnecting
	}
	c.mu.Unlock()
	_ = client.Close()
}

// pump drains one client's messages, forwarding raw frames downstream
// and dispatching parsed quotes to subscribers. It exits when the
// client's read loop closes the channel.
func (c *Connector) pump(client *Client) {
	defer c.wg.Done()

	for msg := range client.Messages() {
		c.forward(RawMessage{Data: msg.Data, ReceivedAt: msg.ReceivedAt, Source: "ws"})
		c.dispatch(msg)
	}
}

func (c *Connector) forward(msg RawMessage) {
	select {
	case c.out <- msg:
	default:
		c.logger.Warn("output buffer full, dropping message")
	}
}

// dispatch parses quote envelopes and invokes matching handlers. FIX
// frames and non-quote or malformed messages are skipped here; they
// still reach the router through the raw channel.
func (c *Connector) dispatch(msg TimestampedMessage) {
	if bytes.HasPrefix(msg.Data, []byte("8=")) {
		return
	}

	var env serverMsg
	if err := json.Unmarshal(msg.Data, &env); err != nil || env.Type != "quote" {
		return
	}

	quote := model.Quote{
		Ticker:       env.Ticker,
		Price:        env.Price,
		Jurisdiction: env.Jurisdiction,
		ReceivedAt:   msg.ReceivedAt,
	}
	if env.Position != nil {
		quote.Position = *env.Position
		quote.HasPosition = true
	}
	if env.AsOf != "" {
		if t, err := time.Parse(time.RFC3339, env.AsOf); err == nil {
			quote.AsOf = t
		}
	}

	c.mu.Lock()
	ordered := c.byTicker[quote.Ticker]
	handlers := make([]QuoteHandler, 0, len(ordered))
	for _, sub := range ordered {
		if sub.handler != nil {
			handlers = append(handlers, sub.handler)
		}
	}
	c.mu.Unlock()

	for _, fn := range handlers {
		fn(quote)
	}
}

// Backoff returns the delay before reconnect attempt n (1-based):
// base * 2^(n-1), capped at max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	exp := float64(base) * math.Pow(2, float64(attempt-1))
	if exp > float64(max) || exp < 0 {
		return max
	}
	return time.Duration(exp)
}

// String implements fmt.Stringer for logging.
func (s ConnectionState) String() string {
	return string(s)
}
