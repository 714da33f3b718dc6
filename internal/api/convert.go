package api

import (
	"time"

	"github.com/mkoval/exposure-monitor/internal/model"
)

func (q quoteResponse) toModel(receivedAt time.Time) model.Quote {
	quote := model.Quote{
		Ticker:       q.Ticker,
		Price:        q.Price,
		Jurisdiction: q.Jurisdiction,
		ReceivedAt:   receivedAt,
	}
	if q.Position != nil {
		quote.Position = *q.Position
		quote.HasPosition = true
	}
	if q.AsOf != "" {
		if t, err := time.Parse(time.RFC3339, q.AsOf); err == nil {
			quote.AsOf = t
		}
	}
	return quote
}

func (r ruleRecord) toModel() model.RegulatoryRule {
	return model.RegulatoryRule{
		Code:         r.Code,
		Name:         r.Name,
		Jurisdiction: r.Jurisdiction,
		ThresholdPct: r.ThresholdPct,
	}
}

func (h holdingRecord) toModel() model.Holding {
	out := model.Holding{
		Ticker:                 h.Ticker,
		Issuer:                 h.Issuer,
		ISIN:                   h.ISIN,
		Jurisdiction:           h.Jurisdiction,
		SharesOwned:            h.SharesOwned,
		TotalSharesOutstanding: h.TotalSharesOutstanding,
		VendorAShares:          h.VendorAShares,
		VendorBShares:          h.VendorBShares,
		BuyingVelocity:         h.BuyingVelocity,
		LastPrice:              h.LastPrice,
		IsETF:                  h.IsETF,
		LookThroughOnly:        h.LookThroughOnly,
	}
	if h.Rule != nil {
		rule := h.Rule.toModel()
		out.Rule = &rule
	}
	for _, opt := range h.Options {
		out.Options = append(out.Options, model.OptionPosition{
			Symbol:     opt.Symbol,
			Delta:      opt.Delta,
			Contracts:  opt.Contracts,
			Multiplier: opt.Multiplier,
		})
	}
	if h.LastUpdated != "" {
		if t, err := time.Parse(time.RFC3339, h.LastUpdated); err == nil {
			out.LastUpdated = t
		}
	}
	return out
}

func (c constituentRecord) toModel() model.ETFConstituent {
	return model.ETFConstituent{
		Ticker: c.Ticker,
		Weight: c.Weight,
	}
}

func (s sharesOutstandingResponse) toModel() SharesOutstanding {
	out := SharesOutstanding{
		Ticker:  s.Ticker,
		Primary: s.Primary,
		VendorA: s.VendorA,
		VendorB: s.VendorB,
	}
	if s.AsOf != "" {
		if t, err := time.Parse(time.RFC3339, s.AsOf); err == nil {
			out.AsOf = t
		}
	}
	return out
}
