package payroll

import (
	"fmt"
	"maps"
	"slices"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SUMMARY CLASSIFIER
// =============================================================================

var (
	multiplierRegular    = decimal.NewFromInt(1)
	multiplierOvertime   = decimal.RequireFromString("1.5")
	multiplierDoubleTime = decimal.NewFromInt(2)
)

// Bucket names where a component's hours are counted.
type Bucket string

const (
	BucketRegular    Bucket = "regular"
	BucketOvertime   Bucket = "overtime"
	BucketDoubleTime Bucket = "double_time"
	BucketNone       Bucket = ""
)

// BucketOf returns the hour bucket of a component. Regular-typed components
// and multiplier 1.0 are regular, exactly 1.5 is overtime, 2.0 and above is
// double time. Anything else is not bucketed.
func BucketOf(c PayComponent) Bucket {
	m := c.EffectiveMultiplier()
	switch {
	case c.Type == ComponentRegular || m.Equal(multiplierRegular):
		return BucketRegular
	case m.Equal(multiplierOvertime):
		return BucketOvertime
	case m.GreaterThanOrEqual(multiplierDoubleTime):
		return BucketDoubleTime
	default:
		return BucketNone
	}
}

// IsBucketedMultiplier reports whether hours at multiplier m are counted in
// some summary bucket.
func IsBucketedMultiplier(m decimal.Decimal) bool {
	return BucketOf(PayComponent{Multiplier: m, Type: ComponentHours}) != BucketNone
}

// Classify folds components into a summary. Allowance amounts and
// differential pay are added independently of the hour buckets, so an
// allowance with an unset multiplier also lands in regular hours (with zero
// hours).
func Classify(components Components) Summary {
	s := Summary{
		RegularHours:       decimal.Zero,
		OvertimeHours:      decimal.Zero,
		DoubleTimeHours:    decimal.Zero,
		TotalAllowances:    decimal.Zero,
		ShiftDifferentials: decimal.Zero,
	}
	for _, c := range components {
		switch BucketOf(c) {
		case BucketRegular:
			s.RegularHours = s.RegularHours.Add(c.Hours)
		case BucketOvertime:
			s.OvertimeHours = s.OvertimeHours.Add(c.Hours)
		case BucketDoubleTime:
			s.DoubleTimeHours = s.DoubleTimeHours.Add(c.Hours)
		}
		if c.Type == ComponentAllowance {
			s.TotalAllowances = s.TotalAllowances.Add(c.Amount)
		}
		if !c.Differential.IsZero() {
			s.ShiftDifferentials = s.ShiftDifferentials.Add(c.Differential.Mul(c.Hours))
		}
	}
	return s
}

// UnbucketedWarnings names components whose hours no bucket counts.
func UnbucketedWarnings(components Components) []string {
	var out []string
	for _, name := range slices.Sorted(maps.Keys(components)) {
		c := components[name]
		if BucketOf(c) == BucketNone && !c.Hours.IsZero() {
			out = append(out, fmt.Sprintf(
				"component %q: multiplier %s is not classified as regular, overtime or double time; %s hours excluded from summary",
				name, c.Multiplier, c.Hours))
		}
	}
	return out
}
