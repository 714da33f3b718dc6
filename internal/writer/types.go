package writer

import "time"

// WriterConfig holds batching parameters shared by all writers.
type WriterConfig struct {
	BatchSize     int           // Rows per flush
	FlushInterval time.Duration // Time-based flush cadence
}

// WriterMetrics tracks writer throughput.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Errors    int64
}

// tradeEventRow is the trade_events table shape. Timestamps are stored
// as microseconds since epoch.
type tradeEventRow struct {
	OrderID       string
	ClOrdID       string
	Ticker        string
	Side          string
	Quantity      float64
	Price         float64
	ExecType      string
	CumQty        float64
	TransactTime  int64
	ReceivedAt    int64
	ChecksumValid bool
}

// decisionRow is the breach_decisions table shape.
type decisionRow struct {
	ID                 string
	Ticker             string
	Status             string
	OwnershipPct       float64
	ThresholdPct       float64
	WarningMin         float64
	ProjectedHours     *float64
	DataQualityWarning bool
	EvaluatedAt        int64
}
