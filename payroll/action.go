package payroll

import (
	"regexp"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// ACTION APPLICATOR
// =============================================================================

var whitespaceRun = regexp.MustCompile(`\s+`)

// ComponentBaseName derives the default component name from a rule name:
// lower-cased, each whitespace run replaced by "_". Leading and trailing
// whitespace is kept as "_" as well.
func ComponentBaseName(ruleName string) string {
	// Casers are stateful, so one per call.
	lowered := cases.Lower(language.Und).String(norm.NFC.String(ruleName))
	return whitespaceRun.ReplaceAllString(lowered, "_")
}

// DefaultComponentName returns the name a pay_multiplier component gets.
func DefaultComponentName(ruleName string) string { return ComponentBaseName(ruleName) }

// DefaultAllowanceName returns the name a flat_allowance component gets.
func DefaultAllowanceName(ruleName string) string { return ComponentBaseName(ruleName) + "_allowance" }

// DefaultDifferentialName returns the name a shift_differential component gets.
func DefaultDifferentialName(ruleName string) string { return ComponentBaseName(ruleName) + "_diff" }

// Apply produces the components one matching rule contributes for one
// record. Directives are independent; a present but zero value does not
// fire. When two directives resolve to the same name the later one (in
// multiplier, allowance, differential order) replaces the earlier.
func Apply(rec AttendanceRecord, actions ActionSet, ruleName string) Components {
	out := Components{}
	hours := rec.ElapsedHours()

	if set(actions.PayMultiplier) {
		name := actions.ComponentName
		if name == "" {
			name = DefaultComponentName(ruleName)
		}
		out[name] = PayComponent{
			Hours:        hours,
			Multiplier:   *actions.PayMultiplier,
			Type:         ComponentHours,
			RulesApplied: []string{ruleName},
		}
	}

	if set(actions.FlatAllowance) {
		name := actions.AllowanceName
		if name == "" {
			name = DefaultAllowanceName(ruleName)
		}
		out[name] = PayComponent{
			Amount:       *actions.FlatAllowance,
			Type:         ComponentAllowance,
			RulesApplied: []string{ruleName},
		}
	}

	if set(actions.ShiftDifferential) {
		name := actions.DifferentialName
		if name == "" {
			name = DefaultDifferentialName(ruleName)
		}
		out[name] = PayComponent{
			Hours:        hours,
			Differential: *actions.ShiftDifferential,
			Type:         ComponentDifferential,
			RulesApplied: []string{ruleName},
		}
	}

	return out
}
