// Package notify delivers breach decisions to operators. Delivery is
// pluggable behind the Notifier interface; the monitor ships with a
// no-op sink and a structured-log sink.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mkoval/exposure-monitor/internal/breach"
	"github.com/mkoval/exposure-monitor/internal/model"
)

// Notifier receives breach decisions worth surfacing.
type Notifier interface {
	Notify(ctx context.Context, d breach.Decision) error
}

// New returns the notifier for the configured mode.
func New(mode string, logger *slog.Logger) (Notifier, error) {
	switch mode {
	case "", "none":
		return Nop{}, nil
	case "log":
		return NewLogNotifier(logger), nil
	}
	return nil, fmt.Errorf("unknown notify mode %q", mode)
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Notify(context.Context, breach.Decision) error { return nil }

// LogNotifier writes decisions to the structured log. Breaches log at
// error level, warnings at warn.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify")}
}

func (n *LogNotifier) Notify(_ context.Context, d breach.Decision) error {
	attrs := []any{
		"decision_id", d.ID,
		"ticker", d.Ticker,
		"status", string(d.Status),
		"ownership_pct", d.OwnershipPct,
		"threshold_pct", d.ThresholdPct,
		"data_quality_warning", d.DataQualityWarning,
	}
	if d.ProjectedHours != nil {
		attrs = append(attrs, "projected_hours", *d.ProjectedHours)
	}

	switch d.Status {
	case model.StatusBreach:
		n.logger.Error("disclosure threshold breached", attrs...)
	case model.StatusWarning:
		n.logger.Warn("approaching disclosure threshold", attrs...)
	default:
		n.logger.Info("position back below warning band", attrs...)
	}
	return nil
}
