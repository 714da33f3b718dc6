// Package writer persists trade events and breach decisions to
// Postgres in batches. Each writer owns one table and consumes one
// buffer; rows are inserted with ON CONFLICT DO NOTHING so replays
// across restarts stay idempotent.
package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkoval/exposure-monitor/internal/model"
	"github.com/mkoval/exposure-monitor/internal/router"
)

// EventWriter consumes applied trade events and writes the
// trade_events audit table.
type EventWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	input *router.RingBuffer[model.TradeEvent]
	db    *pgxpool.Pool

	batch       []tradeEventRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics WriterMetrics
}

// NewEventWriter creates an event writer.
func NewEventWriter(
	cfg WriterConfig,
	input *router.RingBuffer[model.TradeEvent],
	db *pgxpool.Pool,
	logger *slog.Logger,
) *EventWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger.With("component", "event_writer"),
		batch:  make([]tradeEventRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming events and writing to the database.
func (w *EventWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("event writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop shuts down the writer and flushes the remaining batch.
func (w *EventWriter) Stop(ctx context.Context) error {
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
		w.logger.Info("event writer stopped")
	case <-ctx.Done():
		w.logger.Warn("event writer stop timed out")
	}

	w.flush()
	return nil
}

// Stats returns current metrics.
func (w *EventWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *EventWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			ev, ok := w.input.TryPop()
			if !ok {
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}
			w.handleEvent(ev)
		}
	}
}

func (w *EventWriter) flushLoop() {
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

func (w *EventWriter) handleEvent(ev model.TradeEvent) {
	row := w.transform(ev)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

// transform converts a trade event to its table row.
func (w *EventWriter) transform(ev model.TradeEvent) tradeEventRow {
	row := tradeEventRow{
		OrderID:       ev.OrderID,
		ClOrdID:       ev.ClOrdID,
		Ticker:        ev.Ticker,
		Side:          string(ev.Side),
		Quantity:      ev.Quantity,
		Price:         ev.Price,
		ExecType:      ev.ExecType,
		CumQty:        ev.CumQty,
		ReceivedAt:    ev.ReceivedAt.UnixMicro(),
		ChecksumValid: ev.ChecksumValid,
	}
	if !ev.TransactTime.IsZero() {
		row.TransactTime = ev.TransactTime.UnixMicro()
	}
	return row
}

func (w *EventWriter) flush() {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]tradeEventRow, 0, w.cfg.BatchSize)
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

	w.logger.Debug("flushed trade events",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

func (w *EventWriter) batchInsert(rows []tradeEventRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO trade_events
				(order_id, cl_ord_id, ticker, side, quantity, price, exec_type, cum_qty,
				 transact_time, received_at, checksum_valid)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (order_id, cl_ord_id, cum_qty) DO NOTHING
		`, r.OrderID, r.ClOrdID, r.Ticker, r.Side, r.Quantity, r.Price, r.ExecType,
			r.CumQty, r.TransactTime, r.ReceivedAt, r.ChecksumValid)
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
