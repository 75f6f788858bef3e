package payroll

import "github.com/shopspring/decimal"

// =============================================================================
// RESIDUAL RESOLVER - Unclaimed time becomes regular hours
// =============================================================================

// ResolveResidual adds a regular_hours component for time no hours-typed
// component claimed. It does nothing when a regular component already
// exists or nothing is left over. Allowance and differential components do
// not claim time.
func ResolveResidual(totalHours decimal.Decimal, components Components) Components {
	if components == nil {
		components = Components{}
	}
	if components.Has(ComponentRegular) {
		return components
	}
	residual := decimal.Max(decimal.Zero, totalHours.Sub(components.HoursOfType(ComponentHours)))
	if !residual.IsPositive() {
		return components
	}
	components[RegularComponentName] = PayComponent{
		Hours:        residual,
		Amount:       decimal.Zero,
		Multiplier:   decimal.NewFromInt(1),
		Type:         ComponentRegular,
		RulesApplied: []string{DefaultRuleName},
	}
	return components
}
