package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EVALUATE - Pure pipeline over in-memory inputs (rule testing)
// =============================================================================

// overlapTolerance flags hours-typed totals above 110% of elapsed time.
var overlapTolerance = decimal.RequireFromString("1.1")

type EvalOptions struct {
	Clock Clock
	Debug bool
}

// Evaluate runs the calculation pipeline without any I/O. Rules are used in
// the order given after a stable priority sort; inactive rules are ignored.
// The result period spans the records' clock-in days.
func Evaluate(records []AttendanceRecord, rules []PayRule, roles map[EmployeeID][]string, opts EvalOptions) *CalculationResult {
	active := make([]PayRule, 0, len(rules))
	for _, r := range rules {
		if r.Active {
			active = append(active, r)
		}
	}
	sortRules(active)

	result := newResult(spanOf(records))
	groups := GroupByEmployee(records)
	for _, id := range sortedEmployeeIDs(groups) {
		ctx := EvalContext{
			EmployeeID:   id,
			Roles:        roles[id],
			TotalRecords: len(groups[id]),
			Clock:        opts.Clock,
		}
		res, trace := calculateEmployee(groups[id], active, ctx, opts.Debug)
		result.Employees[id] = res
		result.Trace = append(result.Trace, trace...)
	}
	result.aggregate()
	return result
}

// Diagnose inspects a result for likely rule-configuration mistakes.
func Diagnose(result *CalculationResult) []string {
	var issues []string
	if !result.Summary.TotalHours.IsPositive() {
		return append(issues, "No hours calculated - check rule conditions")
	}
	for _, id := range result.EmployeeIDs() {
		emp := result.Employees[id]
		claimed := emp.Components.HoursOfType(ComponentHours)
		if emp.TotalHours.IsPositive() && claimed.GreaterThan(emp.TotalHours.Mul(overlapTolerance)) {
			issues = append(issues, fmt.Sprintf(
				"Employee %s: rule components claim %s hours of %s worked - possible rule overlap",
				id, claimed, emp.TotalHours))
		}
	}
	if result.Summary.RegularHours.IsZero() {
		issues = append(issues, "No regular hours calculated - may need default rule")
	}
	return issues
}

func spanOf(records []AttendanceRecord) Period {
	if len(records) == 0 {
		return Period{}
	}
	lo, hi := records[0].ClockIn, records[0].ClockIn
	for _, r := range records[1:] {
		if r.ClockIn.Before(lo) {
			lo = r.ClockIn
		}
		if r.ClockIn.After(hi) {
			hi = r.ClockIn
		}
	}
	return NewPeriod(lo, hi)
}
