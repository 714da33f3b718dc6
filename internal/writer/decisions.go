package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkoval/exposure-monitor/internal/breach"
	"github.com/mkoval/exposure-monitor/internal/router"
)

// DecisionWriter consumes breach decisions and writes the
// breach_decisions audit table.
type DecisionWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	input *router.RingBuffer[breach.Decision]
	db    *pgxpool.Pool

	batch       []decisionRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics WriterMetrics
}

// NewDecisionWriter creates a decision writer.
func NewDecisionWriter(
	cfg WriterConfig,
	input *router.RingBuffer[breach.Decision],
	db *pgxpool.Pool,
	logger *slog.Logger,
) *DecisionWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &DecisionWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger.With("component", "decision_writer"),
		batch:  make([]decisionRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming decisions and writing to the database.
func (w *DecisionWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("decision writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop shuts down the writer and flushes the remaining batch.
func (w *DecisionWriter) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("decision writer stopped")
	case <-ctx.Done():
		w.logger.Warn("decision writer stop timed out")
	}

	w.flush()
	return nil
}

// Stats returns current metrics.
func (w *DecisionWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *DecisionWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			d, ok := w.input.TryPop()
			if !ok {
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}
			w.handleDecision(d)
		}
	}
}

func (w *DecisionWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush()
		}
	}
}

func (w *DecisionWriter) handleDecision(d breach.Decision) {
	row := w.transform(d)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

// transform converts a decision to its table row.
func (w *DecisionWriter) transform(d breach.Decision) decisionRow {
	return decisionRow{
		ID:                 d.ID.String(),
		Ticker:             d.Ticker,
		Status:             string(d.Status),
		OwnershipPct:       d.OwnershipPct,
		ThresholdPct:       d.ThresholdPct,
		WarningMin:         d.WarningMin,
		ProjectedHours:     d.ProjectedHours,
		DataQualityWarning: d.DataQualityWarning,
		EvaluatedAt:        d.EvaluatedAt.UnixMicro(),
	}
}

func (w *DecisionWriter) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]decisionRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed decisions",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

func (w *DecisionWriter) batchInsert(rows []decisionRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO breach_decisions
				(id, ticker, status, ownership_pct, threshold_pct, warning_min,
				 projected_hours, data_quality_warning, evaluated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING
		`, r.ID, r.Ticker, r.Status, r.OwnershipPct, r.ThresholdPct, r.WarningMin,
			r.ProjectedHours, r.DataQualityWarning, r.EvaluatedAt)
	}

	results := w.db.SendBatch(w.ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
