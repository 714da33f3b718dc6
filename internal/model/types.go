package model

import "time"

// -----------------------------------------------------------------------------
// Reference Data
// -----------------------------------------------------------------------------

// RegulatoryRule is a jurisdiction-specific disclosure rule.
type RegulatoryRule struct {
	Code         string  // Rule code (e.g., "SEC-13D")
	Name         string  // Display name (e.g., "SEC Schedule 13D")
	Jurisdiction string  // ISO country code (e.g., "US")
	ThresholdPct float64 // Disclosure threshold as a percentage (e.g., 5.0)
}

// ETFConstituent is one line of an ETF's composition.
// Immutable reference data keyed by the ETF's ticker.
type ETFConstituent struct {
	Ticker string  // Constituent ticker
	Weight float64 // Fraction of the ETF's NAV (0.0-1.0)
}

// OptionPosition is an option line attached to a holding.
type OptionPosition struct {
	Symbol     string  // Option symbol
	Delta      float64 // Price sensitivity (-1.0 to 1.0)
	Contracts  float64 // Number of contracts held (signed)
	Multiplier float64 // Shares per contract (0 = default 100)
}

// -----------------------------------------------------------------------------
// Portfolio State
// -----------------------------------------------------------------------------

// Holding is one tracked position. Owned by the portfolio book; everything
// downstream of the book works on a read snapshot.
type Holding struct {
	Ticker       string
	Issuer       string
	ISIN         string
	Jurisdiction string

	SharesOwned            float64
	TotalSharesOutstanding float64 // Primary figure
	VendorAShares          float64 // Vendor A figure, 0 = not provided
	VendorBShares          float64 // Vendor B figure, 0 = not provided

	BuyingVelocity float64 // Shares/hour, signed
	LastPrice      float64

	Rule    *RegulatoryRule  // nil = no rule on file
	Options []OptionPosition // Option overlay, may be empty

	IsETF           bool // Composite instrument with constituents on file
	LookThroughOnly bool // Metadata-only row: carries denominator/rule but no position

	LastUpdated time.Time
}

// -----------------------------------------------------------------------------
// Exposure Computation
// -----------------------------------------------------------------------------

// ExposureSource tags a breakdown entry.
type ExposureSource string

const (
	SourceDirect ExposureSource = "direct"
	SourceETF    ExposureSource = "etf"
)

// ExposureBreakdown is one contribution to a ticker's total exposure.
type ExposureBreakdown struct {
	Source     ExposureSource
	ETFTicker  string // Set only for SourceETF entries
	Shares     float64
	Percentage float64
}

// TrueExposureResult is the look-through decomposition for one ticker.
// Immutable once returned.
type TrueExposureResult struct {
	Ticker                 string
	DirectShares           float64
	IndirectShares         float64
	TotalShares            float64
	TotalSharesOutstanding float64
	DirectPercentage       float64
	TotalPercentage        float64
	Breakdown              []ExposureBreakdown
	IsBreach               bool
	Threshold              float64

	// DenominatorUnknown is set when no positive shares-outstanding figure
	// exists; percentages are reported as 0 rather than computed.
	DenominatorUnknown bool

	// DataQualityWarning is set when the vendor share-count figures
	// disagreed and a priority fallback was used.
	DataQualityWarning bool
}

// -----------------------------------------------------------------------------
// Feed Messages
// -----------------------------------------------------------------------------

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// TradeEvent is one decoded execution report. Produced once per frame,
// immutable, consumed by the portfolio book.
type TradeEvent struct {
	Ticker       string
	Side         Side
	Quantity     float64
	Price        float64
	ExecType     string
	CumQty       float64
	OrderID      string
	ClOrdID      string
	TransactTime time.Time
	ReceivedAt   time.Time

	// ChecksumValid reports frame integrity. Events with a failed checksum
	// are never applied to portfolio state.
	ChecksumValid bool
}

// Quote is a price/position update from the streaming or polling feed.
type Quote struct {
	Ticker       string
	Price        float64
	Position     float64 // Updated share count, meaningful only if HasPosition
	HasPosition  bool
	Jurisdiction string
	AsOf         time.Time
	ReceivedAt   time.Time
}

// -----------------------------------------------------------------------------
// Breach Status
// -----------------------------------------------------------------------------

// BreachStatus classifies an ownership percentage against a threshold.
type BreachStatus string

const (
	StatusSafe    BreachStatus = "safe"
	StatusWarning BreachStatus = "warning"
	StatusBreach  BreachStatus = "breach"
)
