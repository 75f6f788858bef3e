/*
errors.go - Centralized error types for the payroll engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Stores and the HTTP layer wrap these errors with additional context.

ERROR CATEGORIES:
  1. Run errors - No eligible data, invalid period
  2. Rule errors - Invalid definitions, duplicate names, rule in use
  3. Persistence errors - Snapshot writes that failed for one employee

USAGE:
  Callers branch with errors.Is / errors.As:

    var noData *payroll.NoEligibleDataError
    if errors.As(err, &noData) {
        // nothing to calculate for noData.Period
    }

SEE ALSO:
  - engine.go: Produces NoEligibleDataError and PersistenceError
  - rule.go: Produces InvalidRuleDefinitionError
  - api/handlers.go: Maps errors to HTTP status codes
*/
package payroll

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoEligibleData is returned when no closed records fall in the period.
	ErrNoEligibleData = errors.New("no eligible attendance records")

	// ErrInvalidRuleDefinition is returned when a rule's conditions or actions
	// cannot be decoded or violate the schema.
	ErrInvalidRuleDefinition = errors.New("invalid rule definition")

	// ErrPersistence is returned when a calculation snapshot cannot be saved.
	ErrPersistence = errors.New("snapshot persistence failed")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	ErrRuleNotFound      = errors.New("pay rule not found")
	ErrDuplicateRuleName = errors.New("pay rule name already exists")

	// ErrRuleInUse blocks deleting a rule referenced by a saved calculation.
	ErrRuleInUse = errors.New("pay rule is referenced by saved calculations")

	ErrEmployeeNotFound    = errors.New("employee not found")
	ErrCalculationNotFound = errors.New("calculation not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NoEligibleDataError describes an empty calculation window.
type NoEligibleDataError struct {
	Period      Period
	EmployeeIDs []EmployeeID
}

func (e *NoEligibleDataError) Error() string {
	if len(e.EmployeeIDs) == 0 {
		return fmt.Sprintf("no eligible attendance records in %s", e.Period)
	}
	ids := make([]string, len(e.EmployeeIDs))
	for i, id := range e.EmployeeIDs {
		ids[i] = string(id)
	}
	return fmt.Sprintf("no eligible attendance records in %s for employees [%s]",
		e.Period, strings.Join(ids, ", "))
}

func (e *NoEligibleDataError) Unwrap() error {
	return ErrNoEligibleData
}

// InvalidRuleDefinitionError pinpoints the offending part of a rule.
type InvalidRuleDefinitionError struct {
	RuleID   RuleID
	RuleName string
	Field    string
	Reason   string
}

func (e *InvalidRuleDefinitionError) Error() string {
	name := e.RuleName
	if name == "" {
		name = string(e.RuleID)
	}
	if e.Field == "" {
		return fmt.Sprintf("invalid rule %q: %s", name, e.Reason)
	}
	return fmt.Sprintf("invalid rule %q: %s: %s", name, e.Field, e.Reason)
}

func (e *InvalidRuleDefinitionError) Unwrap() error {
	return ErrInvalidRuleDefinition
}

// PersistenceError wraps a snapshot failure for one employee.
type PersistenceError struct {
	EmployeeID EmployeeID
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("save snapshot for employee %s: %v", e.EmployeeID, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidRuleDefinition) ||
		errors.Is(err, ErrDuplicateRuleName) ||
		errors.Is(err, ErrRuleInUse)
}

// IsConflict returns true if the request conflicts with existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateRuleName) ||
		errors.Is(err, ErrRuleInUse)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRuleNotFound) ||
		errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrCalculationNotFound) ||
		errors.Is(err, ErrNoEligibleData)
}
