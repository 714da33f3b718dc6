package exposure

import "github.com/mkoval/exposure-monitor/internal/model"

// DefaultThresholdPct applies when neither the reference holding nor its
// rule carries a disclosure threshold.
const DefaultThresholdPct = 5.0

// Resolver decomposes portfolio-wide exposure to a ticker into direct and
// ETF-indirect components. Stateless; callers pass an immutable holdings
// snapshot plus constituent reference data keyed by ETF ticker.
type Resolver struct {
	constituents map[string][]model.ETFConstituent
}

// NewResolver creates a resolver over the given constituent reference data.
func NewResolver(constituents map[string][]model.ETFConstituent) *Resolver {
	return &Resolver{constituents: constituents}
}

// Resolve computes the true exposure to ticker across the snapshot.
// Deterministic for a fixed snapshot; iterates the holdings once in the
// order given.
func (r *Resolver) Resolve(ticker string, holdings []model.Holding) model.TrueExposureResult {
	res := model.TrueExposureResult{Ticker: ticker}

	// Direct exposure and the reference row. A holding row flagged
	// LookThroughOnly carries the ticker's denominator and rule without a
	// position; it is the fallback reference when no direct holding exists.
	var ref *model.Holding
	var fallback *model.Holding
	for i := range holdings {
		h := &holdings[i]
		if h.Ticker != ticker {
			continue
		}
		if h.LookThroughOnly {
			if fallback == nil {
				fallback = h
			}
			continue
		}
		if h.IsETF {
			continue
		}
		res.DirectShares += DeltaAdjusted(*h)
		if ref == nil {
			ref = h
		}
	}
	if ref == nil {
		ref = fallback
	}

	var denominator float64
	threshold := DefaultThresholdPct
	if ref != nil {
		var warn bool
		denominator, warn = ReconcileSharesOutstanding(ref.TotalSharesOutstanding, ref.VendorAShares, ref.VendorBShares)
		res.DataQualityWarning = warn
		if ref.Rule != nil && ref.Rule.ThresholdPct > 0 {
			threshold = ref.Rule.ThresholdPct
		}
	}
	res.TotalSharesOutstanding = denominator
	res.Threshold = threshold

	// Indirect exposure through composite instruments.
	type contribution struct {
		etf    string
		shares float64
	}
	var contribs []contribution
	for i := range holdings {
		h := &holdings[i]
		if !h.IsETF || h.Ticker == ticker {
			continue
		}
		weight := r.effectiveWeight(h.Ticker, ticker, map[string]bool{})
		if weight <= 0 {
			continue
		}
		// Short ETF positions contribute no indirect ownership: a
		// disclosure obligation cannot shrink below the direct stake.
		if h.TotalSharesOutstanding <= 0 || h.SharesOwned <= 0 {
			continue
		}
		ownedFraction := h.SharesOwned / h.TotalSharesOutstanding
		shares := ownedFraction * weight * denominator
		res.IndirectShares += shares
		contribs = append(contribs, contribution{etf: h.Ticker, shares: shares})
	}

	res.TotalShares = res.DirectShares + res.IndirectShares

	if denominator > 0 {
		res.DirectPercentage = res.DirectShares / denominator * 100
		res.TotalPercentage = res.TotalShares / denominator * 100
	} else {
		res.DenominatorUnknown = true
	}

	res.IsBreach = denominator > 0 && res.TotalPercentage >= threshold

	if res.DirectShares != 0 {
		res.Breakdown = append(res.Breakdown, model.ExposureBreakdown{
			Source:     model.SourceDirect,
			Shares:     res.DirectShares,
			Percentage: res.DirectPercentage,
		})
	}
	for _, c := range contribs {
		entry := model.ExposureBreakdown{
			Source:    model.SourceETF,
			ETFTicker: c.etf,
			Shares:    c.shares,
		}
		if denominator > 0 {
			entry.Percentage = c.shares / denominator * 100
		}
		res.Breakdown = append(res.Breakdown, entry)
	}

	return res
}

// effectiveWeight returns the fraction of etf's NAV ultimately attributable
// to target, descending through nested composite instruments. The visited
// set guards against constituent cycles in bad reference data.
func (r *Resolver) effectiveWeight(etf, target string, visited map[string]bool) float64 {
	if visited[etf] {
		return 0
	}
	visited[etf] = true

	var total float64
	for _, c := range r.constituents[etf] {
		if c.Ticker == target {
			total += c.Weight
			continue
		}
		if _, nested := r.constituents[c.Ticker]; nested {
			total += c.Weight * r.effectiveWeight(c.Ticker, target, visited)
		}
	}
	return total
}
