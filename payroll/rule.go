/*
rule.go - Pay rule definitions and their closed schema

PURPOSE:
  A pay rule pairs a ConditionSet (when does it apply?) with an ActionSet
  (what does it contribute?). Rules are stored with their sets serialized as
  JSON text (RuleRecord). The engine decodes a snapshot of active rules once
  per run with DecodeRule, which rejects unknown keys and out-of-range values.

SCHEMA:
  conditions: day_of_week, time_range, overtime_threshold, employee_ids,
              roles, expression
  actions:    pay_multiplier, component_name, flat_allowance,
              allowance_name, shift_differential, differential_name

  Any other key is an InvalidRuleDefinitionError.

SEE ALSO:
  - condition.go: Evaluates a ConditionSet
  - action.go: Applies an ActionSet
  - factory/rule.go: Authoring, validation reports, YAML rule sets
*/
package payroll

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/shopspring/decimal"
)

// DefaultPriority is used when a rule is created without one.
const DefaultPriority = 100

// =============================================================================
// RULE TYPES
// =============================================================================

// PayRule is a decoded, ready-to-evaluate rule.
type PayRule struct {
	ID          RuleID       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Priority    int          `json:"priority"`
	Active      bool         `json:"active"`
	Conditions  ConditionSet `json:"conditions"`
	Actions     ActionSet    `json:"actions"`
	CreatedBy   string       `json:"created_by,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// RuleRecord is the stored form of a rule.
type RuleRecord struct {
	ID             RuleID
	Name           string
	Description    string
	Priority       int
	Active         bool
	ConditionsJSON string
	ActionsJSON    string
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TimeRange is a clock-in hour window, end exclusive.
type TimeRange struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

// UnmarshalJSON accepts {start_hour, end_hour} and the legacy {start, end}.
func (tr *TimeRange) UnmarshalJSON(data []byte) error {
	var raw struct {
		StartHour *int `json:"start_hour"`
		EndHour   *int `json:"end_hour"`
		Start     *int `json:"start"`
		End       *int `json:"end"`
	}
	if err := strictUnmarshal(data, &raw); err != nil {
		return err
	}
	start, end := raw.StartHour, raw.EndHour
	if start == nil {
		start = raw.Start
	}
	if end == nil {
		end = raw.End
	}
	if start == nil || end == nil {
		return fmt.Errorf("time_range requires start_hour and end_hour")
	}
	tr.StartHour, tr.EndHour = *start, *end
	return nil
}

// ConditionSet is a conjunction of predicates. A nil field is "not
// specified". An empty (non-nil) day_of_week matches nothing; empty
// employee_ids and roles are treated as not specified.
type ConditionSet struct {
	DayOfWeek         []int            `json:"day_of_week,omitempty"`
	TimeRange         *TimeRange       `json:"time_range,omitempty"`
	OvertimeThreshold *decimal.Decimal `json:"overtime_threshold,omitempty"`
	EmployeeIDs       []EmployeeID     `json:"employee_ids,omitempty"`
	Roles             []string         `json:"roles,omitempty"`
	Expression        string           `json:"expression,omitempty"`

	program cel.Program
}

// MarshalJSON keeps an explicit empty day_of_week, which omitempty would
// drop and turn into "any day".
func (cs ConditionSet) MarshalJSON() ([]byte, error) {
	type plain ConditionSet
	out := struct {
		DayOfWeek *[]int `json:"day_of_week,omitempty"`
		plain
	}{plain: plain(cs)}
	if cs.DayOfWeek != nil {
		out.DayOfWeek = &cs.DayOfWeek
	}
	return json.Marshal(out)
}

// IsEmpty reports whether no predicate is specified.
func (cs ConditionSet) IsEmpty() bool {
	return cs.DayOfWeek == nil && cs.TimeRange == nil && cs.OvertimeThreshold == nil &&
		len(cs.EmployeeIDs) == 0 && len(cs.Roles) == 0 && cs.Expression == ""
}

// ActionSet holds independent directives. Each fires only when its value is
// present and non-zero.
type ActionSet struct {
	PayMultiplier     *decimal.Decimal `json:"pay_multiplier,omitempty"`
	ComponentName     string           `json:"component_name,omitempty"`
	FlatAllowance     *decimal.Decimal `json:"flat_allowance,omitempty"`
	AllowanceName     string           `json:"allowance_name,omitempty"`
	ShiftDifferential *decimal.Decimal `json:"shift_differential,omitempty"`
	DifferentialName  string           `json:"differential_name,omitempty"`
}

// IsEmpty reports whether no directive would fire.
func (as ActionSet) IsEmpty() bool {
	return !set(as.PayMultiplier) && !set(as.FlatAllowance) && !set(as.ShiftDifferential)
}

func set(d *decimal.Decimal) bool { return d != nil && !d.IsZero() }

// UnmarshalJSON accepts numeric or string employee ids.
func (id *EmployeeID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = EmployeeID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("employee id must be a string or number: %s", data)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("employee id must be an integer: %s", n)
	}
	*id = EmployeeID(n.String())
	return nil
}

// =============================================================================
// DECODING - Stored text to typed rule
// =============================================================================

// DecodeConditions strictly decodes a condition set.
func DecodeConditions(text string) (ConditionSet, error) {
	var cs ConditionSet
	if isBlank(text) {
		return cs, nil
	}
	if err := strictUnmarshal([]byte(text), &cs); err != nil {
		return ConditionSet{}, err
	}
	return cs, nil
}

// DecodeActions strictly decodes an action set.
func DecodeActions(text string) (ActionSet, error) {
	var as ActionSet
	if isBlank(text) {
		return as, nil
	}
	if err := strictUnmarshal([]byte(text), &as); err != nil {
		return ActionSet{}, err
	}
	return as, nil
}

// DecodeRule turns a stored record into an evaluable rule. Any schema or
// range violation is returned as an *InvalidRuleDefinitionError.
func DecodeRule(rec RuleRecord) (PayRule, error) {
	invalid := func(field string, err error) error {
		return &InvalidRuleDefinitionError{RuleID: rec.ID, RuleName: rec.Name, Field: field, Reason: err.Error()}
	}

	conds, err := DecodeConditions(rec.ConditionsJSON)
	if err != nil {
		return PayRule{}, invalid("conditions", err)
	}
	acts, err := DecodeActions(rec.ActionsJSON)
	if err != nil {
		return PayRule{}, invalid("actions", err)
	}

	rule := PayRule{
		ID:          rec.ID,
		Name:        rec.Name,
		Description: rec.Description,
		Priority:    rec.Priority,
		Active:      rec.Active,
		Conditions:  conds,
		Actions:     acts,
		CreatedBy:   rec.CreatedBy,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
	if errs, _ := CheckRule(rule); len(errs) > 0 {
		return PayRule{}, errs[0]
	}
	if err := rule.Conditions.Compile(); err != nil {
		return PayRule{}, invalid("conditions.expression", err)
	}
	return rule, nil
}

// EncodeRule serializes a rule into its stored form.
func EncodeRule(r PayRule) (RuleRecord, error) {
	conds, err := json.Marshal(r.Conditions)
	if err != nil {
		return RuleRecord{}, fmt.Errorf("encode conditions: %w", err)
	}
	acts, err := json.Marshal(r.Actions)
	if err != nil {
		return RuleRecord{}, fmt.Errorf("encode actions: %w", err)
	}
	return RuleRecord{
		ID:             r.ID,
		Name:           r.Name,
		Description:    r.Description,
		Priority:       r.Priority,
		Active:         r.Active,
		ConditionsJSON: string(conds),
		ActionsJSON:    string(acts),
		CreatedBy:      r.CreatedBy,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}, nil
}

// =============================================================================
// CHECKS - Range and consistency validation
// =============================================================================

// CheckRule validates ranges and returns hard errors plus advisory warnings.
// Decoding guarantees the shape; CheckRule guarantees the values.
func CheckRule(r PayRule) (errs []*InvalidRuleDefinitionError, warnings []string) {
	fail := func(field, format string, args ...any) {
		errs = append(errs, &InvalidRuleDefinitionError{
			RuleID: r.ID, RuleName: r.Name, Field: field, Reason: fmt.Sprintf(format, args...),
		})
	}

	c := r.Conditions
	for _, d := range c.DayOfWeek {
		if d < 0 || d > 6 {
			fail("conditions.day_of_week", "day %d out of range 0-6", d)
		}
	}
	if c.DayOfWeek != nil && len(c.DayOfWeek) == 0 {
		warnings = append(warnings, "day_of_week is empty and matches no records")
	}
	if tr := c.TimeRange; tr != nil {
		if tr.StartHour < 0 || tr.StartHour > 23 {
			fail("conditions.time_range.start_hour", "hour %d out of range 0-23", tr.StartHour)
		}
		if tr.EndHour < 0 || tr.EndHour > 23 {
			fail("conditions.time_range.end_hour", "hour %d out of range 0-23", tr.EndHour)
		}
		if tr.StartHour == tr.EndHour {
			fail("conditions.time_range", "start_hour equals end_hour, window is empty")
		}
	}
	if c.OvertimeThreshold != nil && c.OvertimeThreshold.IsNegative() {
		fail("conditions.overtime_threshold", "must not be negative")
	}
	for _, id := range c.EmployeeIDs {
		if strings.TrimSpace(string(id)) == "" {
			fail("conditions.employee_ids", "blank employee id")
		}
	}

	a := r.Actions
	if a.PayMultiplier != nil {
		if a.PayMultiplier.IsNegative() {
			fail("actions.pay_multiplier", "must not be negative")
		} else if set(a.PayMultiplier) && !IsBucketedMultiplier(*a.PayMultiplier) {
			warnings = append(warnings, fmt.Sprintf(
				"pay_multiplier %s is not 1.0, 1.5 or >= 2.0; its hours will not be classified", a.PayMultiplier))
		}
	}
	if a.FlatAllowance != nil && a.FlatAllowance.IsNegative() {
		fail("actions.flat_allowance", "must not be negative")
	}
	if a.ShiftDifferential != nil && a.ShiftDifferential.IsNegative() {
		fail("actions.shift_differential", "must not be negative")
	}
	return errs, warnings
}

// =============================================================================
// HELPERS
// =============================================================================

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected trailing data")
	}
	return nil
}

func isBlank(text string) bool {
	t := strings.TrimSpace(text)
	return t == "" || t == "null" || t == "{}"
}
