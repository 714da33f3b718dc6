package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client wraps a single WebSocket connection to the market data stream.
// It serializes writes, runs a read loop, and emits an application-level
// JSON heartbeat. A Client is single-use: once closed it cannot be
// reconnected, callers create a fresh one.
type Client struct {
	config ClientConfig
	logger *slog.Logger

	conn     *websocket.Conn
	writeMu  sync.Mutex // gorilla permits one concurrent writer
	messages chan TimestampedMessage
	errors   chan error
	done     chan struct{}
	wg       sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	lastPongAt time.Time
}

// Connect dials the stream endpoint and starts the read and heartbeat
// loops. The handshake is bounded by ConnectTimeout.
func Connect(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.ConnectTimeout,
	}

	header := http.Header{}
	if cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	conn, resp, err := dialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", cfg.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}

	c := &Client{
		config:     cfg,
		logger:     logger.With("component", "feed_client"),
		conn:       conn,
		messages:   make(chan TimestampedMessage, cfg.BufferSize),
		errors:     make(chan error, 1),
		done:       make(chan struct{}),
		lastPongAt: time.Now(),
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	c.logger.Info("connected to stream", "url", cfg.URL)
	return c, nil
}

// Messages returns the channel of raw messages read from the socket.
// The channel is closed when the read loop exits.
func (c *Client) Messages() <-chan TimestampedMessage {
	return c.messages
}

// Errors returns a channel that receives the terminal read error, if
// any. A closed connection delivers at most one error.
func (c *Client) Errors() <-chan error {
	return c.errors
}

// LastPong returns the time the most recent pong was observed. The
// connection timestamp counts as the first pong.
func (c *Client) LastPong() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPongAt
}

// Send marshals v to JSON and writes it to the socket under the write
// deadline. Returns ErrAlreadyClosed after Close.
func (c *Client) Send(v any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Subscribe sends a subscription request for the given ticker.
func (c *Client) Subscribe(ticker string) error {
	return c.Send(subscribeMsg{Type: "subscribe", Ticker: ticker})
}

// Close shuts down the connection and waits for the loops to exit.
// It is safe to call multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)

	// Best-effort close handshake before tearing down the socket.
	c.writeMu.Lock()
	deadline := time.Now().Add(time.Second)
	_ = c.conn.SetWriteDeadline(deadline)
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	err := c.conn.Close()
	c.wg.Wait()
	return err
}

// readLoop reads frames until the connection fails or Close is called.
// Pong messages update the liveness timestamp and are not forwarded.
func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.messages)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				// Expected error from our own Close.
			default:
				c.logger.Warn("read loop terminated", "error", err)
				select {
				case c.errors <- err:
				default:
				}
			}
			return
		}

		if c.isPong(data) {
			c.mu.Lock()
			c.lastPongAt = time.Now()
			c.mu.Unlock()
			continue
		}

		msg := TimestampedMessage{Data: data, ReceivedAt: time.Now()}
		select {
		case c.messages <- msg:
		default:
			c.logger.Warn("message buffer full, dropping message")
		}
	}
}

// pingLoop emits the application-level heartbeat at PingInterval.
func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.Send(pingMsg{Type: "ping"}); err != nil {
				c.logger.Warn("heartbeat send failed", "error", err)
			}
		}
	}
}

func (c *Client) isPong(data []byte) bool {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return false
	}
	return env.Type == "pong"
}
