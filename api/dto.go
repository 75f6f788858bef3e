/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the payroll domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Calculation:
    CalculateRequest, CalculateResponse, CalculationDTO, CalculationListResponse

  Rules:
    PayRuleDTO (conditions/actions as stored JSON), ReorderRequest,
    ValidateResponse, TestRulesRequest, TestRulesResponse

  Employees:
    EmployeeDTO, CreateEmployeeRequest, AssignRolesRequest, AttendanceRequest

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

DECIMALS:
  Hours and money are decimal strings ("7.5"), never floats.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/rule.go: RuleJSON request body for rule create/update
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// CALCULATION
// =============================================================================

// CalculateRequest starts a payroll run.
type CalculateRequest struct {
	PayPeriodStart string               `json:"pay_period_start"`
	PayPeriodEnd   string               `json:"pay_period_end"`
	EmployeeIDs    []payroll.EmployeeID `json:"employee_ids,omitempty"`
	SaveResults    bool                 `json:"save_results"`
	ActorID        string               `json:"actor_id,omitempty"`
	Debug          bool                 `json:"debug,omitempty"`
}

// CalculateResponse wraps the engine result with persistence outcomes.
type CalculateResponse struct {
	PayPeriodStart string                                         `json:"pay_period_start"`
	PayPeriodEnd   string                                         `json:"pay_period_end"`
	Employees      map[payroll.EmployeeID]*payroll.EmployeeResult `json:"employees"`
	Summary        payroll.PeriodSummary                          `json:"summary"`
	EmployeeCount  int                                            `json:"employee_count"`
	Components     map[string]payroll.ComponentTotal              `json:"components"`
	SkippedRules   []payroll.RuleIssue                            `json:"skipped_rules,omitempty"`
	Incomplete     bool                                           `json:"incomplete,omitempty"`
	Saved          []SavedCalculationDTO                          `json:"saved,omitempty"`
	SaveErrors     []SaveErrorDTO                                 `json:"save_errors,omitempty"`
	Trace          []payroll.TraceEntry                           `json:"trace,omitempty"`
}

type SavedCalculationDTO struct {
	EmployeeID    payroll.EmployeeID `json:"employee_id"`
	CalculationID payroll.SnapshotID `json:"calculation_id"`
}

type SaveErrorDTO struct {
	EmployeeID payroll.EmployeeID `json:"employee_id"`
	Error      string             `json:"error"`
}

// CalculationDTO is a saved calculation.
type CalculationDTO struct {
	ID             payroll.SnapshotID `json:"id"`
	EmployeeID     payroll.EmployeeID `json:"employee_id"`
	PayPeriodStart string             `json:"pay_period_start"`
	PayPeriodEnd   string             `json:"pay_period_end"`
	TotalHours     decimal.Decimal    `json:"total_hours"`
	Summary        payroll.Summary    `json:"summary"`
	PayComponents  payroll.Components `json:"pay_components"`
	RecordIDs      []string           `json:"record_ids"`
	CalculatedBy   string             `json:"calculated_by,omitempty"`
	CalculatedAt   string             `json:"calculated_at"`
}

type CalculationListResponse struct {
	Calculations []CalculationDTO `json:"calculations"`
	Total        int              `json:"total"`
	Page         int              `json:"page"`
	PerPage      int              `json:"per_page"`
}

// =============================================================================
// PAY RULES
// =============================================================================

// PayRuleDTO represents a stored rule in API responses.
type PayRuleDTO struct {
	ID          payroll.RuleID  `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Priority    int             `json:"priority"`
	Active      bool            `json:"active"`
	Conditions  json.RawMessage `json:"conditions"`
	Actions     json.RawMessage `json:"actions"`
	CreatedBy   string          `json:"created_by,omitempty"`
	CreatedAt   string          `json:"created_at,omitempty"`
	UpdatedAt   string          `json:"updated_at,omitempty"`
	Warnings    []string        `json:"warnings,omitempty"`
}

// ReorderRequest assigns new priorities in one batch.
type ReorderRequest struct {
	Rules []RulePriority `json:"rules"`
}

type RulePriority struct {
	ID       payroll.RuleID `json:"id"`
	Priority int            `json:"priority"`
}

type ValidateResponse struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// TestRulesRequest dry-runs rules over stored records. Rules may be given
// by id (any status) or inline; inline rules are never saved.
type TestRulesRequest struct {
	RuleIDs        []payroll.RuleID   `json:"rule_ids,omitempty"`
	Rules          []factory.RuleJSON `json:"rules,omitempty"`
	PayPeriodStart string             `json:"pay_period_start"`
	PayPeriodEnd   string             `json:"pay_period_end"`
}

type TestRulesResponse struct {
	RecordCount int                                            `json:"record_count"`
	Employees   map[payroll.EmployeeID]*payroll.EmployeeResult `json:"employees"`
	Summary     payroll.PeriodSummary                          `json:"summary"`
	Issues      []string                                       `json:"issues"`
	Trace       []payroll.TraceEntry                           `json:"trace,omitempty"`
}

// =============================================================================
// EMPLOYEES
// =============================================================================

type EmployeeDTO struct {
	ID     payroll.EmployeeID `json:"id"`
	Name   string             `json:"name"`
	Email  string             `json:"email,omitempty"`
	Active bool               `json:"active"`
	Roles  []string           `json:"roles"`
}

// CreateEmployeeRequest is the request to create or update an employee.
type CreateEmployeeRequest struct {
	ID     payroll.EmployeeID `json:"id"`
	Name   string             `json:"name"`
	Email  string             `json:"email"`
	Active *bool              `json:"active,omitempty"`
	Roles  []string           `json:"roles,omitempty"`
}

type AssignRolesRequest struct {
	Roles []string `json:"roles"`
}

// AttendanceRequest imports clock-in/out pairs for one employee. An empty
// clock_out stores an open record.
type AttendanceRequest struct {
	Records []AttendanceRecordDTO `json:"records"`
}

type AttendanceRecordDTO struct {
	ID       string `json:"id,omitempty"`
	ClockIn  string `json:"clock_in"`
	ClockOut string `json:"clock_out,omitempty"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo data set and the period its records fall in.
type ScenarioDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	PayPeriodStart string `json:"pay_period_start"`
	PayPeriodEnd   string `json:"pay_period_end"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toPayRuleDTO(rec payroll.RuleRecord) PayRuleDTO {
	return PayRuleDTO{
		ID:          rec.ID,
		Name:        rec.Name,
		Description: rec.Description,
		Priority:    rec.Priority,
		Active:      rec.Active,
		Conditions:  rawJSON(rec.ConditionsJSON),
		Actions:     rawJSON(rec.ActionsJSON),
		CreatedBy:   rec.CreatedBy,
		CreatedAt:   formatTimestamp(rec.CreatedAt),
		UpdatedAt:   formatTimestamp(rec.UpdatedAt),
	}
}

func toCalculationDTO(s payroll.Snapshot) CalculationDTO {
	recordIDs := s.RecordIDs
	if recordIDs == nil {
		recordIDs = []string{}
	}
	return CalculationDTO{
		ID:             s.ID,
		EmployeeID:     s.EmployeeID,
		PayPeriodStart: s.Period.Start.Format(payroll.DateLayout),
		PayPeriodEnd:   s.Period.End.Format(payroll.DateLayout),
		TotalHours:     s.TotalHours,
		Summary:        s.Summary,
		PayComponents:  s.Components,
		RecordIDs:      recordIDs,
		CalculatedBy:   s.CalculatedBy,
		CalculatedAt:   formatTimestamp(s.CalculatedAt),
	}
}

func toEmployeeDTO(e payroll.Employee) EmployeeDTO {
	roles := e.Roles
	if roles == nil {
		roles = []string{}
	}
	return EmployeeDTO{ID: e.ID, Name: e.Name, Email: e.Email, Active: e.Active, Roles: roles}
}

func toCalculateResponse(res *payroll.CalculationResult) CalculateResponse {
	resp := CalculateResponse{
		PayPeriodStart: res.Period.Start.Format(payroll.DateLayout),
		PayPeriodEnd:   res.Period.End.Format(payroll.DateLayout),
		Employees:      res.Employees,
		Summary:        res.Summary,
		EmployeeCount:  res.EmployeeCount,
		Components:     res.Components,
		SkippedRules:   res.SkippedRules,
		Incomplete:     res.Incomplete,
		Trace:          res.Trace,
	}
	for _, o := range res.Snapshots {
		if o.Err != nil {
			resp.SaveErrors = append(resp.SaveErrors, SaveErrorDTO{EmployeeID: o.EmployeeID, Error: o.Err.Error()})
			continue
		}
		resp.Saved = append(resp.Saved, SavedCalculationDTO{EmployeeID: o.EmployeeID, CalculationID: o.SnapshotID})
	}
	return resp
}

func rawJSON(text string) json.RawMessage {
	if text == "" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(text)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
