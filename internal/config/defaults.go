package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAPITimeout          = 30 * time.Second
	DefaultMaxRetries          = 3
	DefaultDBPort              = 5432
	DefaultDBSSLMode           = "prefer"
	DefaultMaxConns            = 10
	DefaultMinConns            = 2
	DefaultReconnectBaseDelay  = 3 * time.Second
	DefaultReconnectMaxDelay   = 30 * time.Second
	DefaultMaxAttempts         = 10
	DefaultPingInterval        = 15 * time.Second
	DefaultWriteTimeout        = 5 * time.Second
	DefaultConnectTimeout      = 10 * time.Second
	DefaultFeedBufferSize      = 10000
	DefaultPollInterval        = 30 * time.Second
	DefaultPollTimeout         = 10 * time.Second
	DefaultPollRetries         = 2
	DefaultPollRetryBackoff    = 500 * time.Millisecond
	DefaultMaxConsecutiveFails = 10
	DefaultFailureThreshold    = 5
	DefaultResetTimeout        = 30 * time.Second
	DefaultHalfOpenSuccesses   = 2
	DefaultReconcileInterval   = 5 * time.Minute
	DefaultInitialLoadTimeout  = 5 * time.Minute
	DefaultVelocityWindow      = time.Hour
	DefaultDedupWindow         = 4096
	DefaultBatchSize           = 500
	DefaultFlushInterval       = 1 * time.Second
	DefaultWriterBufferSize    = 10000
	DefaultNotifyMode          = "none"
	DefaultMetricsPort         = 9090
	DefaultMetricsPath         = "/metrics"
)

func (c *MonitorConfig) applyDefaults() {
	// Upstream defaults
	if c.Upstream.Timeout == 0 {
		c.Upstream.Timeout = DefaultAPITimeout
	}
	if c.Upstream.MaxRetries == 0 {
		c.Upstream.MaxRetries = DefaultMaxRetries
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)

	// Feed defaults
	if c.Feed.ReconnectBaseDelay == 0 {
		c.Feed.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Feed.ReconnectMaxDelay == 0 {
		c.Feed.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Feed.MaxAttempts == 0 {
		c.Feed.MaxAttempts = DefaultMaxAttempts
	}
	if c.Feed.PingInterval == 0 {
		c.Feed.PingInterval = DefaultPingInterval
	}
	if c.Feed.WriteTimeout == 0 {
		c.Feed.WriteTimeout = DefaultWriteTimeout
	}
	if c.Feed.ConnectTimeout == 0 {
		c.Feed.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = DefaultFeedBufferSize
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Timeout == 0 {
		c.Poller.Timeout = DefaultPollTimeout
	}
	if c.Poller.Retries == 0 {
		c.Poller.Retries = DefaultPollRetries
	}
	if c.Poller.RetryBackoff == 0 {
		c.Poller.RetryBackoff = DefaultPollRetryBackoff
	}
	if c.Poller.MaxConsecutiveFails == 0 {
		c.Poller.MaxConsecutiveFails = DefaultMaxConsecutiveFails
	}

	// Breaker defaults
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = DefaultFailureThreshold
	}
	if c.Breaker.ResetTimeout == 0 {
		c.Breaker.ResetTimeout = DefaultResetTimeout
	}
	if c.Breaker.HalfOpenSuccesses == 0 {
		c.Breaker.HalfOpenSuccesses = DefaultHalfOpenSuccesses
	}

	// Portfolio defaults
	if c.Portfolio.ReconcileInterval == 0 {
		c.Portfolio.ReconcileInterval = DefaultReconcileInterval
	}
	if c.Portfolio.InitialLoadTimeout == 0 {
		c.Portfolio.InitialLoadTimeout = DefaultInitialLoadTimeout
	}
	if c.Portfolio.VelocityWindow == 0 {
		c.Portfolio.VelocityWindow = DefaultVelocityWindow
	}

	// Engine defaults
	if c.Engine.DedupWindow == 0 {
		c.Engine.DedupWindow = DefaultDedupWindow
	}
	if c.Engine.StressMultiplier == 0 {
		c.Engine.StressMultiplier = 1.0
	}

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}
	if c.Writers.BufferSize == 0 {
		c.Writers.BufferSize = DefaultWriterBufferSize
	}

	// Notify defaults
	if c.Notify.Mode == "" {
		c.Notify.Mode = DefaultNotifyMode
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
