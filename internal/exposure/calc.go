package exposure

import "github.com/mkoval/exposure-monitor/internal/model"

// defaultMultiplier is the contract multiplier assumed when a position
// doesn't carry one (standard equity options deliver 100 shares).
const defaultMultiplier = 100

// DeltaAdjusted computes the total share-equivalent exposure of one
// holding: the base share count plus the delta-scaled contribution of each
// option position. Pure; the holding is not mutated.
func DeltaAdjusted(h model.Holding) float64 {
	total := h.SharesOwned
	for _, opt := range h.Options {
		mult := opt.Multiplier
		if mult == 0 {
			mult = defaultMultiplier
		}
		total += opt.Delta * opt.Contracts * mult
	}
	return total
}
