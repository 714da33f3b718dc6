package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
// A misconfigured upstream must fail here, at startup, not surface later
// as a silently disabled component.
func (c *MonitorConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Upstream.RestURL == "" {
		return errors.New("upstream.rest_url is required")
	}
	if c.Upstream.WSURL == "" && !c.Poller.Enabled {
		return errors.New("upstream.ws_url is required unless the poller is enabled")
	}

	if err := c.Database.Postgres.validate("database.postgres"); err != nil {
		return err
	}

	if c.Feed.MaxAttempts < 1 {
		return errors.New("feed.max_attempts must be >= 1")
	}
	if c.Feed.ReconnectBaseDelay <= 0 {
		return errors.New("feed.reconnect_base_delay must be > 0")
	}
	if c.Feed.ReconnectMaxDelay < c.Feed.ReconnectBaseDelay {
		return errors.New("feed.reconnect_max_delay must be >= feed.reconnect_base_delay")
	}

	if c.Poller.Retries < 0 {
		return errors.New("poller.retries must be >= 0")
	}
	if c.Poller.MaxConsecutiveFails < 1 {
		return errors.New("poller.max_consecutive_fails must be >= 1")
	}

	if c.Breaker.FailureThreshold < 1 {
		return errors.New("breaker.failure_threshold must be >= 1")
	}

	if c.Engine.StressMultiplier < 0 {
		return errors.New("engine.stress_multiplier must be >= 0")
	}

	if c.Writers.BatchSize < 1 {
		return errors.New("writers.batch_size must be >= 1")
	}
	if c.Writers.BufferSize < 1 {
		return errors.New("writers.buffer_size must be >= 1")
	}

	switch c.Notify.Mode {
	case "none", "log":
	default:
		return fmt.Errorf("notify.mode must be \"none\" or \"log\", got %q", c.Notify.Mode)
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
