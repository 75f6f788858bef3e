/*
Package payroll provides the rule-driven pay calculation engine.

PURPOSE:
  Turns closed attendance records into categorized pay components. Pay rules
  are evaluated in priority order against every record; every matching rule
  contributes components, which are accumulated per employee, topped up with
  residual regular hours, and classified into a summary.

KEY CONCEPTS IN THIS FILE (types.go):
  - AttendanceRecord: A closed clock-in/clock-out pair (read-only input)
  - PayComponent: A named, accumulated slice of pay (hours, allowance, ...)
  - Components: The per-employee component map
  - Summary / PeriodSummary: Classified totals
  - EmployeeResult / CalculationResult: Engine output

DESIGN PRINCIPLES:
  1. Precision: Hours, amounts and multipliers use decimal.Decimal, so the
     classifier can compare multipliers exactly (1.5 is 1.5)
  2. Tolerance: Bad input degrades (zero hours, skipped rule), it never aborts
  3. Statelessness: Nothing survives a run; each employee gets its own
     accumulator

USAGE:
  engine := payroll.NewEngine(payroll.Sources{
      Records: st, Rules: st, Roles: st, Snapshots: st,
  }, payroll.Options{Workers: 4})
  result, err := engine.Calculate(ctx, payroll.CalculateRequest{
      Period: payroll.NewPeriod(start, end),
  })

SEE ALSO:
  - condition.go: Condition evaluator
  - action.go: Action applicator
  - accumulator.go: Component merge semantics
  - engine.go: Orchestrator
*/
package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type RuleID string
type SnapshotID string

// =============================================================================
// ATTENDANCE RECORD - External, read-only input
// =============================================================================

// AttendanceRecord is one closed shift. Records whose clock-out precedes the
// clock-in are kept and count as zero hours.
type AttendanceRecord struct {
	ID           string
	EmployeeID   EmployeeID
	EmployeeName string
	ClockIn      time.Time
	ClockOut     time.Time
}

// ElapsedHours returns the record duration in hours, floored at zero.
func (r AttendanceRecord) ElapsedHours() decimal.Decimal {
	return ElapsedHours(r.ClockIn, r.ClockOut)
}

// =============================================================================
// PAY COMPONENT - Accumulated per employee, keyed by name
// =============================================================================

type ComponentType string

const (
	ComponentHours        ComponentType = "hours"
	ComponentAllowance    ComponentType = "allowance"
	ComponentDifferential ComponentType = "differential"
	ComponentRegular      ComponentType = "regular"
)

// RegularComponentName is the key used for residual regular hours.
const RegularComponentName = "regular_hours"

// DefaultRuleName is recorded in rules_applied for the residual component.
const DefaultRuleName = "default"

// PayComponent is a named pay line. A zero Multiplier means "unset" and is
// classified as 1.0.
type PayComponent struct {
	Hours        decimal.Decimal `json:"hours"`
	Amount       decimal.Decimal `json:"amount"`
	Multiplier   decimal.Decimal `json:"multiplier"`
	Differential decimal.Decimal `json:"differential"`
	Type         ComponentType   `json:"type"`
	RulesApplied []string        `json:"rules_applied"`
}

// EffectiveMultiplier returns the multiplier, defaulting unset values to 1.0.
func (c PayComponent) EffectiveMultiplier() decimal.Decimal {
	if c.Multiplier.IsZero() {
		return decimal.NewFromInt(1)
	}
	return c.Multiplier
}

// Components maps component name to its accumulated value.
type Components map[string]PayComponent

// HoursOfType sums hours over components of the given type.
func (c Components) HoursOfType(t ComponentType) decimal.Decimal {
	total := decimal.Zero
	for _, comp := range c {
		if comp.Type == t {
			total = total.Add(comp.Hours)
		}
	}
	return total
}

// Has reports whether any component has the given type.
func (c Components) Has(t ComponentType) bool {
	for _, comp := range c {
		if comp.Type == t {
			return true
		}
	}
	return false
}

// =============================================================================
// SUMMARY - Classified totals
// =============================================================================

type Summary struct {
	RegularHours       decimal.Decimal `json:"regular_hours"`
	OvertimeHours      decimal.Decimal `json:"overtime_hours"`
	DoubleTimeHours    decimal.Decimal `json:"double_time_hours"`
	TotalAllowances    decimal.Decimal `json:"total_allowances"`
	ShiftDifferentials decimal.Decimal `json:"shift_differentials"`
}

// Add returns the elementwise sum of two summaries.
func (s Summary) Add(o Summary) Summary {
	return Summary{
		RegularHours:       s.RegularHours.Add(o.RegularHours),
		OvertimeHours:      s.OvertimeHours.Add(o.OvertimeHours),
		DoubleTimeHours:    s.DoubleTimeHours.Add(o.DoubleTimeHours),
		TotalAllowances:    s.TotalAllowances.Add(o.TotalAllowances),
		ShiftDifferentials: s.ShiftDifferentials.Add(o.ShiftDifferentials),
	}
}

// ClassifiedHours is regular + overtime + double time.
func (s Summary) ClassifiedHours() decimal.Decimal {
	return s.RegularHours.Add(s.OvertimeHours).Add(s.DoubleTimeHours)
}

// PeriodSummary aggregates every employee summary in a run.
type PeriodSummary struct {
	Summary
	TotalHours    decimal.Decimal `json:"total_hours"`
	EmployeeCount int             `json:"employee_count"`
}

// =============================================================================
// RESULTS
// =============================================================================

// EmployeeResult is the outcome of one employee's pipeline.
type EmployeeResult struct {
	EmployeeID   EmployeeID      `json:"employee_id"`
	EmployeeName string          `json:"employee_name"`
	TotalHours   decimal.Decimal `json:"total_hours"`
	RecordCount  int             `json:"record_count"`
	RecordIDs    []string        `json:"record_ids"`
	Components   Components      `json:"components"`
	Summary      Summary         `json:"summary"`
	Warnings     []string        `json:"warnings,omitempty"`
}

// ComponentTotal aggregates one component name across employees.
type ComponentTotal struct {
	Type          ComponentType   `json:"type"`
	TotalHours    decimal.Decimal `json:"total_hours"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	EmployeeCount int             `json:"employee_count"`
}

// SnapshotOutcome reports one employee's persistence result.
type SnapshotOutcome struct {
	EmployeeID EmployeeID
	SnapshotID SnapshotID
	Err        error
}

// TraceEntry records one rule evaluation when debugging is enabled.
type TraceEntry struct {
	EmployeeID EmployeeID `json:"employee_id"`
	RecordID   string     `json:"record_id"`
	RuleName   string     `json:"rule_name"`
	Matched    bool       `json:"matched"`
}

// CalculationResult is the full output of a run.
type CalculationResult struct {
	Period        Period                         `json:"period"`
	Employees     map[EmployeeID]*EmployeeResult `json:"employees"`
	Summary       PeriodSummary                  `json:"summary"`
	EmployeeCount int                            `json:"employee_count"`
	Components    map[string]ComponentTotal      `json:"components"`
	SkippedRules  []RuleIssue                    `json:"skipped_rules,omitempty"`
	Incomplete    bool                           `json:"incomplete"`
	Snapshots     []SnapshotOutcome              `json:"-"`
	Trace         []TraceEntry                   `json:"trace,omitempty"`
}

// EmployeeIDs returns the result's employee ids in sorted order.
func (r *CalculationResult) EmployeeIDs() []EmployeeID {
	return sortedEmployeeIDs(r.Employees)
}

// RuleIssue describes a rule skipped during a run.
type RuleIssue struct {
	RuleID   RuleID `json:"rule_id"`
	RuleName string `json:"rule_name"`
	Reason   string `json:"reason"`
}
