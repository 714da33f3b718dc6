// Command monitor runs the disclosure threshold monitor: it follows
// the market data stream, maintains the holdings book, evaluates true
// exposure against regulatory thresholds and persists the audit trail.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mkoval/exposure-monitor/internal/api"
	"github.com/mkoval/exposure-monitor/internal/breaker"
	"github.com/mkoval/exposure-monitor/internal/config"
	"github.com/mkoval/exposure-monitor/internal/database"
	"github.com/mkoval/exposure-monitor/internal/engine"
	"github.com/mkoval/exposure-monitor/internal/feed"
	"github.com/mkoval/exposure-monitor/internal/metrics"
	"github.com/mkoval/exposure-monitor/internal/model"
	"github.com/mkoval/exposure-monitor/internal/notify"
	"github.com/mkoval/exposure-monitor/internal/portfolio"
	"github.com/mkoval/exposure-monitor/internal/router"
	"github.com/mkoval/exposure-monitor/internal/version"
	"github.com/mkoval/exposure-monitor/internal/writer"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "configs/monitor.yaml", "path to config file")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	logger := newLogger(*logLevel)
	slog.SetDefault(logger)

	if err := run(*configPath, logger); err != nil {
		logger.Error("monitor exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logger.With("instance_id", cfg.Instance.ID)
	logger.Info("starting monitor",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(cfg.Instance.ID)

	db, err := database.Connect(ctx, cfg.Database.Postgres)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	apiClient := api.NewClient(cfg.Upstream.RestURL, cfg.Upstream.APIKey,
		api.WithTimeout(cfg.Upstream.Timeout),
		api.WithRetries(cfg.Upstream.MaxRetries, time.Second),
		api.WithLogger(logger),
	)

	book := portfolio.NewBook(portfolio.Config{
		ReconcileInterval:  cfg.Portfolio.ReconcileInterval,
		InitialLoadTimeout: cfg.Portfolio.InitialLoadTimeout,
		VelocityWindow:     cfg.Portfolio.VelocityWindow,
	}, apiClient, logger)
	if err := book.Start(ctx); err != nil {
		return fmt.Errorf("start portfolio book: %w", err)
	}
	defer book.Stop()

	notifier, err := notify.New(cfg.Notify.Mode, logger)
	if err != nil {
		return fmt.Errorf("create notifier: %w", err)
	}

	// Feed: streaming connector when a WS endpoint is configured, REST
	// poller otherwise (or alongside, when enabled as a fallback).
	var connector *feed.Connector
	rawInput := make(chan feed.RawMessage)
	if cfg.Upstream.WSURL != "" {
		connector = feed.NewConnector(feed.ConnectorConfig{
			URL:                cfg.Upstream.WSURL,
			APIKey:             cfg.Upstream.APIKey,
			ReconnectBaseDelay: cfg.Feed.ReconnectBaseDelay,
			ReconnectMaxDelay:  cfg.Feed.ReconnectMaxDelay,
			MaxAttempts:        cfg.Feed.MaxAttempts,
			PingInterval:       cfg.Feed.PingInterval,
			WriteTimeout:       cfg.Feed.WriteTimeout,
			ConnectTimeout:     cfg.Feed.ConnectTimeout,
			BufferSize:         cfg.Feed.BufferSize,
		}, logger)
	}

	rt := router.New(router.Config{
		TradeBufferSize: cfg.Feed.BufferSize,
		QuoteBufferSize: cfg.Feed.BufferSize,
	}, routerInput(connector, rawInput), logger)
	rt.Start(ctx)

	eng := engine.New(engine.Config{
		DedupWindow:      cfg.Engine.DedupWindow,
		StressMultiplier: cfg.Engine.StressMultiplier,
	}, book, rt.Buffers(), notifier, logger)
	eng.Start(ctx)

	writerCfg := writer.WriterConfig{
		BatchSize:     cfg.Writers.BatchSize,
		FlushInterval: cfg.Writers.FlushInterval,
	}
	eventWriter := writer.NewEventWriter(writerCfg, eng.Events(), db, logger)
	decisionWriter := writer.NewDecisionWriter(writerCfg, eng.Decisions(), db, logger)
	if err := eventWriter.Start(ctx); err != nil {
		return fmt.Errorf("start event writer: %w", err)
	}
	if err := decisionWriter.Start(ctx); err != nil {
		return fmt.Errorf("start decision writer: %w", err)
	}

	var poller *feed.Poller
	if cfg.Poller.Enabled {
		poller = feed.NewPoller(feed.PollerConfig{
			Interval:            cfg.Poller.Interval,
			Timeout:             cfg.Poller.Timeout,
			Retries:             cfg.Poller.Retries,
			RetryBackoff:        cfg.Poller.RetryBackoff,
			MaxConsecutiveFails: cfg.Poller.MaxConsecutiveFails,
			Breaker: breaker.Config{
				FailureThreshold:         cfg.Breaker.FailureThreshold,
				ResetTimeout:             cfg.Breaker.ResetTimeout,
				HalfOpenSuccessThreshold: cfg.Breaker.HalfOpenSuccesses,
			},
		}, apiClient, logger)
	}

	// Register every tracked name with whichever feed is active.
	quotes := rt.Buffers().Quotes
	for _, h := range book.Snapshot() {
		ticker := h.Ticker
		if connector != nil {
			if _, err := connector.Subscribe(ticker, nil); err != nil {
				return fmt.Errorf("subscribe %s: %w", ticker, err)
			}
		}
		if poller != nil {
			poller.Track(ticker, func(q model.Quote) { quotes.Push(q) })
		}
	}

	if connector != nil {
		if err := connector.Start(ctx); err != nil {
			return fmt.Errorf("start connector: %w", err)
		}
	}
	if poller != nil {
		poller.Start(ctx)
	}

	// Baseline pass so statuses exist before the first stream event.
	eng.EvaluateAll(ctx)

	srv := startHTTP(cfg, m, db, logger)

	go watchFatal(ctx, connector, logger)
	go syncMetrics(ctx, m, connector, rt, eng, eventWriter, decisionWriter)
	go periodicEvaluation(ctx, eng, cfg.Portfolio.ReconcileInterval)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Order: stop intake, drain the pipeline, then flush the writers.
	if connector != nil {
		connector.Dispose()
	}
	if poller != nil {
		poller.Stop()
	}
	close(rawInput)
	rt.Stop(shutdownCtx)
	eng.Stop()
	if err := eventWriter.Stop(shutdownCtx); err != nil {
		logger.Warn("event writer stop", "error", err)
	}
	if err := decisionWriter.Stop(shutdownCtx); err != nil {
		logger.Warn("decision writer stop", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}

	logger.Info("monitor stopped")
	return nil
}

// routerInput returns the connector's raw stream when present, or the
// placeholder channel (closed at shutdown) for poller-only setups.
func routerInput(connector *feed.Connector, fallback chan feed.RawMessage) <-chan feed.RawMessage {
	if connector != nil {
		return connector.Messages()
	}
	return fallback
}

func startHTTP(cfg *config.MonitorConfig, m *metrics.Metrics, db interface {
	Ping(context.Context) error
}, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
		}
	}()
	logger.Info("http endpoints up", "addr", srv.Addr, "metrics_path", cfg.Metrics.Path)
	return srv
}

// watchFatal logs terminal connector failure. The monitor keeps
// running on the last book snapshot; evaluation continues without the
// stream.
func watchFatal(ctx context.Context, connector *feed.Connector, logger *slog.Logger) {
	if connector == nil {
		return
	}
	select {
	case <-ctx.Done():
	case err := <-connector.Fatal():
		logger.Error("stream permanently down, continuing on last snapshot", "error", err)
	}
}

// syncMetrics mirrors component counters into the Prometheus
// collectors on a fixed cadence.
func syncMetrics(ctx context.Context, m *metrics.Metrics, connector *feed.Connector,
	rt *router.Router, eng *engine.Engine, ew *writer.EventWriter, dw *writer.DecisionWriter) {

	var prevDials int64
	var prevRouter router.Stats
	var prevEngine engine.Stats
	var prevEvents, prevDecisions writer.WriterMetrics

	tick := time.NewTicker(5 * time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}

		if connector != nil {
			if connector.State() == feed.StateConnected {
				m.FeedState.Set(1)
			} else {
				m.FeedState.Set(0)
			}
			dials := connector.Dials()
			m.FeedReconnects.Add(float64(dials - prevDials))
			prevDials = dials
		}

		rs := rt.Stats()
		m.MessagesReceived.WithLabelValues("trade").Add(float64(rs.TradeBuffer.Enqueued - prevRouter.TradeBuffer.Enqueued))
		m.MessagesReceived.WithLabelValues("quote").Add(float64(rs.QuoteBuffer.Enqueued - prevRouter.QuoteBuffer.Enqueued))
		m.IntegrityDiscards.Add(float64(rs.IntegrityDiscards - prevRouter.IntegrityDiscards))
		prevRouter = rs

		es := eng.Stats()
		m.TradesApplied.Add(float64(es.TradesApplied - prevEngine.TradesApplied))
		m.DuplicatesDropped.Add(float64(es.Duplicates - prevEngine.Duplicates))
		m.Evaluations.Add(float64(es.Evaluations - prevEngine.Evaluations))
		prevEngine = es

		for ticker, status := range eng.Statuses() {
			var v float64
			switch status {
			case model.StatusWarning:
				v = 1
			case model.StatusBreach:
				v = 2
			}
			m.BreachStatus.WithLabelValues(ticker).Set(v)
		}

		ws := ew.Stats()
		m.WriterFlushes.WithLabelValues("events").Add(float64(ws.Flushes - prevEvents.Flushes))
		m.WriterErrors.WithLabelValues("events").Add(float64(ws.Errors - prevEvents.Errors))
		prevEvents = ws

		ds := dw.Stats()
		m.WriterFlushes.WithLabelValues("decisions").Add(float64(ds.Flushes - prevDecisions.Flushes))
		m.WriterErrors.WithLabelValues("decisions").Add(float64(ds.Errors - prevDecisions.Errors))
		prevDecisions = ds
	}
}

// periodicEvaluation re-runs the full evaluation sweep so reference
// data refreshes surface even when the stream is quiet or down.
func periodicEvaluation(ctx context.Context, eng *engine.Engine, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			eng.EvaluateAll(ctx)
		}
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
