package api

import "time"

// Wire types for upstream API responses. Converted to model types in
// convert.go; the wire shapes never leak past this package.

type quoteResponse struct {
	Ticker       string   `json:"ticker"`
	Price        float64  `json:"price"`
	Position     *float64 `json:"position,omitempty"`
	Jurisdiction string   `json:"jurisdiction,omitempty"`
	AsOf         string   `json:"asOf,omitempty"`
}

type ruleRecord struct {
	Code         string  `json:"code"`
	Name         string  `json:"name"`
	Jurisdiction string  `json:"jurisdiction"`
	ThresholdPct float64 `json:"threshold_pct"`
}

type rulesResponse struct {
	Rules []ruleRecord `json:"rules"`
}

type optionRecord struct {
	Symbol     string  `json:"symbol"`
	Delta      float64 `json:"delta"`
	Contracts  float64 `json:"contracts"`
	Multiplier float64 `json:"multiplier,omitempty"`
}

type holdingRecord struct {
	Ticker                 string         `json:"ticker"`
	Issuer                 string         `json:"issuer"`
	ISIN                   string         `json:"isin"`
	Jurisdiction           string         `json:"jurisdiction"`
	SharesOwned            float64        `json:"shares_owned"`
	TotalSharesOutstanding float64        `json:"total_shares_outstanding"`
	VendorAShares          float64        `json:"vendor_a_shares"`
	VendorBShares          float64        `json:"vendor_b_shares"`
	BuyingVelocity         float64        `json:"buying_velocity"`
	LastPrice              float64        `json:"last_price"`
	Rule                   *ruleRecord    `json:"rule,omitempty"`
	Options                []optionRecord `json:"options,omitempty"`
	IsETF                  bool           `json:"is_etf"`
	LookThroughOnly        bool           `json:"look_through_only"`
	LastUpdated            string         `json:"last_updated,omitempty"`
}

type holdingsResponse struct {
	Holdings []holdingRecord `json:"holdings"`
}

type constituentRecord struct {
	Ticker string  `json:"ticker"`
	Weight float64 `json:"weight"`
}

type constituentsResponse struct {
	Ticker       string              `json:"ticker"`
	Constituents []constituentRecord `json:"constituents"`
}

type sharesOutstandingResponse struct {
	Ticker  string  `json:"ticker"`
	Primary float64 `json:"primary"`
	VendorA float64 `json:"vendor_a"`
	VendorB float64 `json:"vendor_b"`
	AsOf    string  `json:"as_of,omitempty"`
}

// SharesOutstanding carries the three denominator figures for one
// issuer, as reported by the upstream reference-data service.
type SharesOutstanding struct {
	Ticker  string
	Primary float64
	VendorA float64
	VendorB float64
	AsOf    time.Time
}
