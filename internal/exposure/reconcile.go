package exposure

import "math"

// vendorAgreementWindow is the maximum relative difference at which two
// vendor share-count figures are considered to agree.
const vendorAgreementWindow = 0.01

// ReconcileSharesOutstanding chooses the most trustworthy total-shares-
// outstanding figure from up to three sources. Zero or negative figures
// count as absent.
//
// Both vendors present and within 1% of each other: their mean, no
// warning. Disagreeing vendors: warning raised and the deterministic
// priority order vendor A, vendor B, primary applies instead of averaging.
// One vendor: that vendor. Neither: the primary figure.
func ReconcileSharesOutstanding(primary, vendorA, vendorB float64) (value float64, warning bool) {
	hasA := vendorA > 0
	hasB := vendorB > 0

	switch {
	case hasA && hasB:
		if relativeDiff(vendorA, vendorB) <= vendorAgreementWindow {
			return (vendorA + vendorB) / 2, false
		}
		return vendorA, true
	case hasA:
		return vendorA, false
	case hasB:
		return vendorB, false
	default:
		return primary, false
	}
}

// relativeDiff measures disagreement relative to the smaller figure, so
// the agreement window cannot widen as the figures drift apart.
func relativeDiff(a, b float64) float64 {
	small := math.Min(a, b)
	if small <= 0 {
		return math.Inf(1)
	}
	return math.Abs(a-b) / small
}
