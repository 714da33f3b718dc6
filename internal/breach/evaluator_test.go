package breach

import (
	"math"
	"testing"

	"github.com/mkoval/exposure-monitor/internal/model"
)

func TestEvaluate_StatusBands(t *testing.T) {
	cases := []struct {
		name      string
		ownership float64
		threshold float64
		want      model.BreachStatus
	}{
		{"well below band", 5.0, 10.0, model.StatusSafe},
		{"just under warning band", 8.99, 10.0, model.StatusSafe},
		{"at warning min", 9.0, 10.0, model.StatusWarning},
		{"inside warning band", 9.05, 10.0, model.StatusWarning},
		{"just under threshold", 9.99, 10.0, model.StatusWarning},
		{"at threshold", 10.0, 10.0, model.StatusBreach},
		{"above threshold", 12.5, 10.0, model.StatusBreach},
		{"five percent rule breach", 5.2, 5.0, model.StatusBreach},
		{"five percent rule warning", 4.6, 5.0, model.StatusWarning},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Evaluate(Input{Ticker: "ACME", OwnershipPct: tc.ownership, ThresholdPct: tc.threshold})
			if d.Status != tc.want {
				t.Errorf("Status = %s, want %s", d.Status, tc.want)
			}
		})
	}
}

func TestEvaluate_TimeToBreachProjection(t *testing.T) {
	// Threshold 10%, shares outstanding 10M, owned 950,000 (9.5%),
	// velocity 5,000/hr → thresholdShares 1M → 50,000/5,000 = 10 hours.
	d := Evaluate(Input{
		Ticker:                 "ACME",
		OwnershipPct:           9.5,
		ThresholdPct:           10.0,
		SharesOwned:            950000,
		TotalSharesOutstanding: 10000000,
		BuyingVelocity:         5000,
	})

	if d.Status != model.StatusWarning {
		t.Fatalf("Status = %s, want warning", d.Status)
	}
	if d.ProjectedHours == nil {
		t.Fatal("ProjectedHours = nil, want 10")
	}
	if math.Abs(*d.ProjectedHours-10.0) > 1e-9 {
		t.Errorf("ProjectedHours = %v, want 10", *d.ProjectedHours)
	}
}

func TestEvaluate_NoProjectionOutsideWarning(t *testing.T) {
	base := Input{
		Ticker:                 "ACME",
		ThresholdPct:           10.0,
		SharesOwned:            500000,
		TotalSharesOutstanding: 10000000,
		BuyingVelocity:         5000,
	}

	safe := base
	safe.OwnershipPct = 5.0
	if d := Evaluate(safe); d.ProjectedHours != nil {
		t.Errorf("safe: ProjectedHours = %v, want nil", *d.ProjectedHours)
	}

	breached := base
	breached.OwnershipPct = 11.0
	breached.SharesOwned = 1100000
	if d := Evaluate(breached); d.ProjectedHours != nil {
		t.Errorf("breach: ProjectedHours = %v, want nil", *d.ProjectedHours)
	}
}

func TestEvaluate_NoProjectionWithoutPositiveVelocity(t *testing.T) {
	in := Input{
		Ticker:                 "ACME",
		OwnershipPct:           9.5,
		ThresholdPct:           10.0,
		SharesOwned:            950000,
		TotalSharesOutstanding: 10000000,
	}

	in.BuyingVelocity = 0
	if d := Evaluate(in); d.ProjectedHours != nil {
		t.Error("zero velocity: ProjectedHours set, want nil")
	}

	in.BuyingVelocity = -2000
	if d := Evaluate(in); d.ProjectedHours != nil {
		t.Error("selling: ProjectedHours set, want nil")
	}
}

func TestEvaluate_NoProjectionUnknownDenominator(t *testing.T) {
	d := Evaluate(Input{
		Ticker:         "ACME",
		OwnershipPct:   9.5,
		ThresholdPct:   10.0,
		SharesOwned:    950000,
		BuyingVelocity: 5000,
		// TotalSharesOutstanding unset
	})
	if d.ProjectedHours != nil {
		t.Error("unknown denominator: ProjectedHours set, want nil")
	}
}

func TestEvaluate_CarriesDataQualityWarning(t *testing.T) {
	d := Evaluate(Input{Ticker: "ACME", OwnershipPct: 1, ThresholdPct: 5, DataQualityWarning: true})
	if !d.DataQualityWarning {
		t.Error("DataQualityWarning not carried through")
	}
	if d.Status != model.StatusSafe {
		t.Errorf("Status = %s, want safe (warning flag is orthogonal)", d.Status)
	}
}

func TestFromExposure(t *testing.T) {
	res := model.TrueExposureResult{
		Ticker:                 "ACME",
		TotalShares:            950000,
		TotalSharesOutstanding: 10000000,
		TotalPercentage:        9.5,
		Threshold:              10.0,
		DataQualityWarning:     true,
	}

	in := FromExposure(res, 5000)
	if in.OwnershipPct != 9.5 || in.ThresholdPct != 10.0 || in.SharesOwned != 950000 {
		t.Errorf("FromExposure() = %+v", in)
	}
	if !in.DataQualityWarning {
		t.Error("DataQualityWarning not mapped")
	}

	d := Evaluate(in)
	if d.ProjectedHours == nil || math.Abs(*d.ProjectedHours-10.0) > 1e-9 {
		t.Errorf("ProjectedHours = %v, want 10", d.ProjectedHours)
	}
}
