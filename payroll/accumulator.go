package payroll

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COMPONENT ACCUMULATOR - Per-employee, never shared
// =============================================================================

// Accumulator merges rule contributions for one employee. Metadata
// (multiplier, differential, type) is first-writer-wins; hours and amounts
// add; rules_applied appends, duplicates included.
type Accumulator struct {
	components Components
	conflicts  map[string]bool
	warnings   []string
}

func NewAccumulator() *Accumulator {
	return &Accumulator{components: Components{}, conflicts: map[string]bool{}}
}

// Add merges one rule's contribution.
func (a *Accumulator) Add(src Components) {
	for _, name := range slices.Sorted(maps.Keys(src)) {
		if reason := Conflict(a.components, name, src[name]); reason != "" && !a.conflicts[name] {
			a.conflicts[name] = true
			a.warnings = append(a.warnings, fmt.Sprintf(
				"component %q: %s from rule %s ignored, first definition kept",
				name, reason, strings.Join(src[name].RulesApplied, ",")))
		}
	}
	Merge(a.components, src)
}

// Components returns the accumulated map. The accumulator keeps ownership.
func (a *Accumulator) Components() Components { return a.components }

// Warnings lists metadata conflicts, one per component name.
func (a *Accumulator) Warnings() []string { return a.warnings }

// Merge folds src into dst in place.
func Merge(dst, src Components) {
	for name, in := range src {
		cur, ok := dst[name]
		if !ok {
			cur = PayComponent{
				Hours:        decimal.Zero,
				Amount:       decimal.Zero,
				Multiplier:   in.Multiplier,
				Differential: in.Differential,
				Type:         in.Type,
			}
		}
		cur.Hours = cur.Hours.Add(in.Hours)
		cur.Amount = cur.Amount.Add(in.Amount)
		cur.RulesApplied = append(slices.Clone(cur.RulesApplied), in.RulesApplied...)
		dst[name] = cur
	}
}

// Conflict describes how in's metadata disagrees with the component already
// stored under name, or returns "" when it agrees or name is new.
func Conflict(dst Components, name string, in PayComponent) string {
	cur, ok := dst[name]
	if !ok {
		return ""
	}
	var diffs []string
	if cur.Type != in.Type {
		diffs = append(diffs, fmt.Sprintf("type %s", in.Type))
	}
	if !cur.Multiplier.Equal(in.Multiplier) {
		diffs = append(diffs, fmt.Sprintf("multiplier %s", in.Multiplier))
	}
	if !cur.Differential.Equal(in.Differential) {
		diffs = append(diffs, fmt.Sprintf("differential %s", in.Differential))
	}
	return strings.Join(diffs, ", ")
}
