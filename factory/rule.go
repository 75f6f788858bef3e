/*
Package factory provides JSON and YAML to Go pay rule conversion.

PURPOSE:
  Converts authored rule definitions into payroll.PayRule and stored
  payroll.RuleRecord values. Payroll administrators write rules as JSON
  (HTTP API) or YAML rule-set files (payctl), and the factory validates
  them against the closed condition/action schema before they are saved.

JSON SCHEMA:
  {
    "name": "Overtime 1.5x",
    "description": "Time and a half for hours over 8 per day",
    "priority": 10,
    "active": true,
    "conditions": {"overtime_threshold": 8},
    "actions": {"pay_multiplier": 1.5, "component_name": "overtime_1_5"}
  }

YAML RULE SETS:
  rules:
    - name: Weekend Differential
      priority: 20
      conditions:
        day_of_week: [0, 6]
      actions:
        shift_differential: 2.0
        differential_name: weekend_diff

KEY FEATURES:
  - Rejects unknown condition/action keys
  - Reports errors and warnings separately (ValidationReport)
  - Sets defaults (priority 100, active)
  - Ships example presets

USAGE:
  f := factory.NewRuleFactory()
  report := f.Validate(rj)
  if !report.Valid() { ... }
  rec, err := f.NewRecord(rj, actorID)
  err = store.CreateRule(ctx, rec)

SEE ALSO:
  - payroll/rule.go: Rule types and decoding
  - api/handlers.go: Rule administration endpoints
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RuleJSON is the authored representation of a rule. Conditions and actions
// stay loosely typed here and are strictly decoded on conversion.
type RuleJSON struct {
	ID          string         `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Priority    *int           `json:"priority,omitempty" yaml:"priority,omitempty"`
	Active      *bool          `json:"active,omitempty" yaml:"active,omitempty"`
	Conditions  map[string]any `json:"conditions" yaml:"conditions"`
	Actions     map[string]any `json:"actions" yaml:"actions"`
}

// RuleSetYAML is the top-level shape of a rule-set file.
type RuleSetYAML struct {
	Rules []RuleJSON `yaml:"rules"`
}

// ValidationReport separates blocking errors from advice.
type ValidationReport struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Valid reports whether the rule can be saved.
func (r ValidationReport) Valid() bool { return len(r.Errors) == 0 }

// =============================================================================
// RULE FACTORY
// =============================================================================

// RuleFactory converts authored rules to Go structs.
type RuleFactory struct {
	now func() time.Time
}

// NewRuleFactory creates a new rule factory.
func NewRuleFactory() *RuleFactory {
	return &RuleFactory{now: time.Now}
}

// Parse parses a JSON string into a PayRule.
func (f *RuleFactory) Parse(jsonStr string) (*payroll.PayRule, error) {
	var rj RuleJSON
	if err := json.Unmarshal([]byte(jsonStr), &rj); err != nil {
		return nil, fmt.Errorf("failed to parse rule JSON: %w", err)
	}
	return f.FromJSON(rj)
}

// FromJSON converts RuleJSON to a PayRule, failing with the first
// *payroll.InvalidRuleDefinitionError found.
func (f *RuleFactory) FromJSON(rj RuleJSON) (*payroll.PayRule, error) {
	rule, errs, _ := f.build(rj)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	return rule, nil
}

// Validate checks an authored rule without converting it.
func (f *RuleFactory) Validate(rj RuleJSON) ValidationReport {
	report := ValidationReport{Errors: []string{}, Warnings: []string{}}
	_, errs, warnings := f.build(rj)
	for _, err := range errs {
		report.Errors = append(report.Errors, err.Error())
	}
	report.Warnings = append(report.Warnings, warnings...)
	return report
}

// NewRecord converts an authored rule into its stored form with a fresh id
// and timestamps.
func (f *RuleFactory) NewRecord(rj RuleJSON, actorID string) (payroll.RuleRecord, error) {
	rule, err := f.FromJSON(rj)
	if err != nil {
		return payroll.RuleRecord{}, err
	}
	if rule.ID == "" {
		rule.ID = payroll.RuleID(uuid.NewString())
	}
	now := f.now().UTC()
	rule.CreatedBy = actorID
	rule.CreatedAt = now
	rule.UpdatedAt = now
	return payroll.EncodeRule(*rule)
}

// ToJSON converts a PayRule back to its authored form.
func (f *RuleFactory) ToJSON(rule *payroll.PayRule) RuleJSON {
	priority, active := rule.Priority, rule.Active
	return RuleJSON{
		ID:          string(rule.ID),
		Name:        rule.Name,
		Description: rule.Description,
		Priority:    &priority,
		Active:      &active,
		Conditions:  toMap(rule.Conditions),
		Actions:     toMap(rule.Actions),
	}
}

// LoadYAML reads a rule-set file.
func (f *RuleFactory) LoadYAML(r io.Reader) ([]RuleJSON, error) {
	var set RuleSetYAML
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&set); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse rule set YAML: %w", err)
	}
	return set.Rules, nil
}

// =============================================================================
// CONVERSION
// =============================================================================

func (f *RuleFactory) build(rj RuleJSON) (*payroll.PayRule, []*payroll.InvalidRuleDefinitionError, []string) {
	var errs []*payroll.InvalidRuleDefinitionError
	invalid := func(field, reason string) {
		errs = append(errs, &payroll.InvalidRuleDefinitionError{
			RuleID: payroll.RuleID(rj.ID), RuleName: rj.Name, Field: field, Reason: reason,
		})
	}

	name := strings.TrimSpace(rj.Name)
	if name == "" {
		invalid("name", "name is required")
	}

	conds, err := payroll.DecodeConditions(mustJSON(rj.Conditions))
	if err != nil {
		invalid("conditions", err.Error())
	}
	acts, err := payroll.DecodeActions(mustJSON(rj.Actions))
	if err != nil {
		invalid("actions", err.Error())
	}
	if conds.Expression != "" {
		if err := conds.Compile(); err != nil {
			invalid("conditions.expression", err.Error())
		}
	}

	rule := &payroll.PayRule{
		ID:          payroll.RuleID(rj.ID),
		Name:        name,
		Description: rj.Description,
		Priority:    payroll.DefaultPriority,
		Active:      true,
		Conditions:  conds,
		Actions:     acts,
	}
	if rj.Priority != nil {
		rule.Priority = *rj.Priority
	}
	if rj.Active != nil {
		rule.Active = *rj.Active
	}
	if rule.Priority < 0 {
		invalid("priority", "must not be negative")
	}

	checkErrs, warnings := payroll.CheckRule(*rule)
	errs = append(errs, checkErrs...)
	if conds.IsEmpty() {
		warnings = append([]string{"rule has no conditions and applies to every record"}, warnings...)
	}
	if acts.IsEmpty() {
		warnings = append(warnings, "rule has no actions and contributes nothing")
	}

	if len(errs) > 0 {
		return nil, errs, warnings
	}
	return rule, nil, warnings
}

func mustJSON(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	b, err := json.Marshal(m)
	if err != nil {
		// Unmarshalable values (from YAML) surface as a decode error.
		return fmt.Sprintf("%q", err.Error())
	}
	return string(b)
}

func toMap(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}
