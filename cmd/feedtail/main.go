// Command feedtail is a debugging tool: it connects to the market data
// stream, subscribes to the given tickers and prints every raw message
// to stdout. Useful for verifying connectivity and eyeballing frames
// before pointing the monitor at a new upstream.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mkoval/exposure-monitor/internal/feed"
)

func main() {
	url := flag.String("url", "", "stream endpoint (wss://...)")
	tickers := flag.String("tickers", "", "comma-separated tickers to subscribe")
	apiKey := flag.String("api-key", os.Getenv("MONITOR_API_KEY"), "bearer token")
	duration := flag.Duration("duration", 0, "exit after this long (0 = run until interrupted)")
	flag.Parse()

	if *url == "" {
		fmt.Fprintln(os.Stderr, "usage: feedtail -url wss://host/stream -tickers ACME,WIDG")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	cfg := feed.DefaultConnectorConfig()
	cfg.URL = *url
	cfg.APIKey = *apiKey

	connector := feed.NewConnector(cfg, logger)
	defer connector.Dispose()

	for _, t := range strings.Split(*tickers, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, err := connector.Subscribe(t, nil); err != nil {
			logger.Error("subscribe failed", "ticker", t, "error", err)
			os.Exit(1)
		}
	}

	if err := connector.Start(ctx); err != nil {
		logger.Error("start failed", "error", err)
		os.Exit(1)
	}

	var count int
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(os.Stderr, "done, %d messages\n", count)
			return
		case err := <-connector.Fatal():
			logger.Error("stream permanently down", "error", err)
			os.Exit(1)
		case msg, ok := <-connector.Messages():
			if !ok {
				return
			}
			count++
			fmt.Printf("%s [%s] %s\n",
				msg.ReceivedAt.Format(time.RFC3339Nano), msg.Source, printable(msg.Data))
		}
	}
}

// printable makes FIX frames readable by swapping SOH for pipes.
func printable(data []byte) string {
	return strings.ReplaceAll(string(data), "\x01", "|")
}
