package payroll

import (
	"slices"
)

// =============================================================================
// CONDITION EVALUATOR
// =============================================================================

// EvalContext carries what a condition may know beyond the record itself.
type EvalContext struct {
	EmployeeID   EmployeeID
	Roles        []string
	TotalRecords int
	Clock        Clock
}

// Matches reports whether every specified predicate of cs holds for rec.
// It has no side effects. An empty set matches every record.
func Matches(rec AttendanceRecord, cs ConditionSet, ctx EvalContext) bool {
	if cs.DayOfWeek != nil {
		if !slices.Contains(cs.DayOfWeek, ctx.Clock.Weekday(rec.ClockIn)) {
			return false
		}
	}

	if tr := cs.TimeRange; tr != nil {
		if !HourInWindow(ctx.Clock.Hour(rec.ClockIn), tr.StartHour, tr.EndHour) {
			return false
		}
	}

	// Strictly greater: a record exactly at the threshold does not match.
	if cs.OvertimeThreshold != nil {
		if !rec.ElapsedHours().GreaterThan(*cs.OvertimeThreshold) {
			return false
		}
	}

	if len(cs.EmployeeIDs) > 0 {
		if !slices.Contains(cs.EmployeeIDs, rec.EmployeeID) {
			return false
		}
	}

	if len(cs.Roles) > 0 {
		if !slices.ContainsFunc(ctx.Roles, func(r string) bool {
			return slices.Contains(cs.Roles, r)
		}) {
			return false
		}
	}

	if cs.Expression != "" {
		prg := cs.program
		if prg == nil {
			var err error
			if prg, err = CompileExpression(cs.Expression); err != nil {
				return false
			}
		}
		if !evalExpression(prg, rec, ctx) {
			return false
		}
	}

	return true
}
