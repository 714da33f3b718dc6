package feed

import (
	"errors"
	"time"
)

// Errors
var (
	ErrAlreadyClosed = errors.New("already closed")
	ErrDisposed      = errors.New("connector disposed")
	ErrMaxAttempts   = errors.New("max connection attempts exceeded")
)

// ConnectionState is the connector's lifecycle state.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
	StateFailed       ConnectionState = "failed" // terminal
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from the socket
	ReceivedAt time.Time // Local timestamp when the read returned
}

// RawMessage is a message from the connector to the message router.
type RawMessage struct {
	Data       []byte
	ReceivedAt time.Time
	Source     string // "ws" or "poll"
}

// subscribeMsg is the client→server subscription request.
type subscribeMsg struct {
	Type   string `json:"type"`
	Ticker string `json:"ticker"`
}

// pingMsg is the client heartbeat.
type pingMsg struct {
	Type string `json:"type"`
}

// serverMsg is the envelope for every server→client message. Messages
// lacking a type, or of unknown type, are ignored.
type serverMsg struct {
	Type         string   `json:"type"`
	Ticker       string   `json:"ticker"`
	Price        float64  `json:"price"`
	Position     *float64 `json:"position,omitempty"`
	Jurisdiction string   `json:"jurisdiction,omitempty"`
	AsOf         string   `json:"asOf,omitempty"`
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL            string
	APIKey         string        // Bearer token, empty = no auth
	PingInterval   time.Duration // Application-level heartbeat interval
	WriteTimeout   time.Duration // Write deadline for sends
	ConnectTimeout time.Duration // Handshake deadline
	BufferSize     int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval:   15 * time.Second,
		WriteTimeout:   5 * time.Second,
		ConnectTimeout: 10 * time.Second,
		BufferSize:     10000,
	}
}

// ConnectorConfig configures the resilient connector.
type ConnectorConfig struct {
	URL                string
	APIKey             string
	ReconnectBaseDelay time.Duration // Backoff base: delay = base * 2^(attempt-1)
	ReconnectMaxDelay  time.Duration // Backoff cap
	MaxAttempts        int           // Terminal failure once exceeded
	PingInterval       time.Duration
	WriteTimeout       time.Duration
	ConnectTimeout     time.Duration
	BufferSize         int
}

// DefaultConnectorConfig returns sensible defaults.
func DefaultConnectorConfig() ConnectorConfig {
	return ConnectorConfig{
		ReconnectBaseDelay: 3 * time.Second,
		ReconnectMaxDelay:  30 * time.Second,
		MaxAttempts:        10,
		PingInterval:       15 * time.Second,
		WriteTimeout:       5 * time.Second,
		ConnectTimeout:     10 * time.Second,
		BufferSize:         10000,
	}
}

func (c ConnectorConfig) clientConfig() ClientConfig {
	return ClientConfig{
		URL:            c.URL,
		APIKey:         c.APIKey,
		PingInterval:   c.PingInterval,
		WriteTimeout:   c.WriteTimeout,
		ConnectTimeout: c.ConnectTimeout,
		BufferSize:     c.BufferSize,
	}
}
