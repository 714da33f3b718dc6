package config

import "time"

// MonitorConfig is the root configuration for a monitor instance.
type MonitorConfig struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Database  DatabaseConfig  `yaml:"database"`
	Feed      FeedConfig      `yaml:"feed"`
	Poller    PollerConfig    `yaml:"poller"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Portfolio PortfolioConfig `yaml:"portfolio"`
	Engine    EngineConfig    `yaml:"engine"`
	Writers   WritersConfig   `yaml:"writers"`
	Notify    NotifyConfig    `yaml:"notify"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// InstanceConfig identifies this monitor.
type InstanceConfig struct {
	ID string `yaml:"id"`
	AZ string `yaml:"az"`
}

// UpstreamConfig holds market-data upstream settings.
type UpstreamConfig struct {
	RestURL    string        `yaml:"rest_url"`
	WSURL      string        `yaml:"ws_url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// DatabaseConfig holds the monitor database connection.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// FeedConfig holds streaming connector settings.
type FeedConfig struct {
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	MaxAttempts        int           `yaml:"max_attempts"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	BufferSize         int           `yaml:"buffer_size"`
}

// PollerConfig holds quote-polling settings for upstreams without a push
// channel.
type PollerConfig struct {
	Enabled             bool          `yaml:"enabled"`
	Interval            time.Duration `yaml:"interval"`
	Timeout             time.Duration `yaml:"timeout"`
	Retries             int           `yaml:"retries"`
	RetryBackoff        time.Duration `yaml:"retry_backoff"`
	MaxConsecutiveFails int           `yaml:"max_consecutive_fails"`
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold  int           `yaml:"failure_threshold"`
	ResetTimeout      time.Duration `yaml:"reset_timeout"`
	HalfOpenSuccesses int           `yaml:"half_open_successes"`
}

// PortfolioConfig holds holdings book settings.
type PortfolioConfig struct {
	ReconcileInterval  time.Duration `yaml:"reconcile_interval"`
	InitialLoadTimeout time.Duration `yaml:"initial_load_timeout"`
	VelocityWindow     time.Duration `yaml:"velocity_window"`
}

// EngineConfig holds evaluation pipeline settings.
type EngineConfig struct {
	DedupWindow int `yaml:"dedup_window"`

	// StressMultiplier scales computed ownership percentages for
	// simulation runs. 1.0 (the default) disables it; it is not a
	// regulatory rule.
	StressMultiplier float64 `yaml:"stress_multiplier"`
}

// WritersConfig holds batch writer settings.
type WritersConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// NotifyConfig selects the notification capability.
type NotifyConfig struct {
	// Mode is "none" or "log". The default is "none": decisions are
	// persisted but not announced.
	Mode string `yaml:"mode"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
