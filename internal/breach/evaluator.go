// Package breach classifies ownership percentages against disclosure
// thresholds and projects time-to-breach from observed buying velocity.
//
// Evaluate is a pure function: it returns a decision for downstream
// notification and audit collaborators and never sends alerts itself.
package breach

import (
	"time"

	"github.com/google/uuid"

	"github.com/mkoval/exposure-monitor/internal/model"
)

// warningBandFraction defines the pre-alert band: warnings start at 90%
// of the threshold.
const warningBandFraction = 0.9

// Input carries everything needed for one evaluation.
type Input struct {
	Ticker                 string
	OwnershipPct           float64
	ThresholdPct           float64
	SharesOwned            float64
	TotalSharesOutstanding float64
	BuyingVelocity         float64 // Shares/hour, signed

	// DataQualityWarning is carried through from denominator
	// reconciliation so consumers see it alongside the status.
	DataQualityWarning bool
}

// Decision is the evaluator's output.
type Decision struct {
	ID           uuid.UUID
	Ticker       string
	Status       model.BreachStatus
	OwnershipPct float64
	ThresholdPct float64
	WarningMin   float64

	// ProjectedHours estimates hours until the threshold is crossed at
	// the current buying velocity. Only set in the warning state with
	// positive velocity and a known denominator.
	ProjectedHours *float64

	DataQualityWarning bool
	EvaluatedAt        time.Time
}

// Evaluate classifies an ownership percentage. Status boundaries:
// breach at or above the threshold, warning from 90% of the threshold,
// safe below that.
func Evaluate(in Input) Decision {
	warningMin := in.ThresholdPct * warningBandFraction

	d := Decision{
		ID:                 uuid.New(),
		Ticker:             in.Ticker,
		OwnershipPct:       in.OwnershipPct,
		ThresholdPct:       in.ThresholdPct,
		WarningMin:         warningMin,
		DataQualityWarning: in.DataQualityWarning,
		EvaluatedAt:        time.Now().UTC(),
	}

	switch {
	case in.OwnershipPct >= in.ThresholdPct:
		d.Status = model.StatusBreach
	case in.OwnershipPct >= warningMin:
		d.Status = model.StatusWarning
	default:
		d.Status = model.StatusSafe
	}

	if d.Status == model.StatusWarning && in.BuyingVelocity > 0 && in.TotalSharesOutstanding > 0 {
		thresholdShares := in.ThresholdPct / 100 * in.TotalSharesOutstanding
		remaining := thresholdShares - in.SharesOwned
		if remaining > 0 {
			hours := remaining / in.BuyingVelocity
			d.ProjectedHours = &hours
		}
	}

	return d
}

// FromExposure builds an evaluator input from a look-through result and
// the holding's observed buying velocity.
func FromExposure(res model.TrueExposureResult, velocity float64) Input {
	return Input{
		Ticker:                 res.Ticker,
		OwnershipPct:           res.TotalPercentage,
		ThresholdPct:           res.Threshold,
		SharesOwned:            res.TotalShares,
		TotalSharesOutstanding: res.TotalSharesOutstanding,
		BuyingVelocity:         velocity,
		DataQualityWarning:     res.DataQualityWarning,
	}
}
