/*
handlers_test.go - HTTP tests for the payroll API

Tests for:
- Payroll calculation over demo scenarios, persistence and saved calculations
- Error mapping (400 invalid input, 404 no data / not found, 409 conflicts)
- Pay rule administration (CRUD, toggle, reorder, validate, dry run, presets)
- Employee directory, role assignment and attendance import
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/internal/logger"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/sqlite"
)

// =============================================================================
// HELPERS
// =============================================================================

func newTestRouter(t *testing.T) (*Handler, *chi.Mux) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(store, Options{Workers: 2, Logger: logger.Discard()})
	return h, NewRouter(h, RouterOptions{CORSOrigins: []string{"http://localhost:3000"}})
}

func do(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", "tester")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func loadScenario(t *testing.T, router http.Handler, id string) {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func demoWeek(save bool) CalculateRequest {
	return CalculateRequest{PayPeriodStart: demoPeriodStart, PayPeriodEnd: demoPeriodEnd, SaveResults: save}
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

// =============================================================================
// PAYROLL
// =============================================================================

func TestHealth(t *testing.T) {
	_, router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCalculate_StandardWeek(t *testing.T) {
	_, router := newTestRouter(t)

	// GIVEN: The standard week (9h days for employee 1, 8h days for employee 2)
	loadScenario(t, router, "standard-week")

	// WHEN: Calculating the demo week with persistence
	rec := do(t, router, http.MethodPost, "/api/payroll/calculate", demoWeek(true))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[CalculateResponse](t, rec)

	// THEN: Every 9h record is overtime, 8h records stay regular
	require.Len(t, resp.Employees, 2)
	long := resp.Employees["1"]
	assert.True(t, long.TotalHours.Equal(dec(45)), long.TotalHours.String())
	assert.True(t, long.Summary.OvertimeHours.Equal(dec(45)))
	assert.True(t, long.Summary.RegularHours.IsZero())
	assert.Contains(t, long.Components, "overtime_1_5")

	regular := resp.Employees["2"]
	assert.True(t, regular.Summary.RegularHours.Equal(dec(40)))
	assert.True(t, regular.Summary.OvertimeHours.IsZero())

	assert.Equal(t, 2, resp.EmployeeCount)
	assert.True(t, resp.Summary.TotalHours.Equal(dec(85)))
	assert.Equal(t, "2024-01-14", resp.PayPeriodStart)
	assert.Len(t, resp.Saved, 2)
	assert.Empty(t, resp.SaveErrors)
}

func TestCalculate_EmployeeFilterAndDebugTrace(t *testing.T) {
	_, router := newTestRouter(t)
	loadScenario(t, router, "standard-week")

	// WHEN: Calculating one employee with debug enabled
	req := demoWeek(false)
	req.EmployeeIDs = []payroll.EmployeeID{"2"}
	req.Debug = true
	rec := do(t, router, http.MethodPost, "/api/payroll/calculate", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[CalculateResponse](t, rec)

	// THEN: Only that employee is present, one trace entry per record and rule
	assert.Len(t, resp.Employees, 1)
	assert.Contains(t, resp.Employees, payroll.EmployeeID("2"))
	assert.Len(t, resp.Trace, 5)
	for _, entry := range resp.Trace {
		assert.False(t, entry.Matched, "8h records sit exactly at the threshold")
	}
	assert.Empty(t, resp.Saved)
}

func TestCalculate_RoleAllowances(t *testing.T) {
	_, router := newTestRouter(t)
	loadScenario(t, router, "role-allowances")

	rec := do(t, router, http.MethodPost, "/api/payroll/calculate", demoWeek(false))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[CalculateResponse](t, rec)

	// THEN: Nurse gets four allowances, supervisor's long shift is double time
	nurse := resp.Employees["5"]
	assert.True(t, nurse.Summary.TotalAllowances.Equal(dec(60)), nurse.Summary.TotalAllowances.String())
	assert.True(t, nurse.Summary.RegularHours.Equal(dec(32)))

	supervisor := resp.Employees["6"]
	assert.True(t, supervisor.Summary.DoubleTimeHours.Equal(dec(12)))
	assert.True(t, supervisor.Summary.RegularHours.Equal(dec(8)))

	plain := resp.Employees["7"]
	assert.True(t, plain.Summary.TotalAllowances.IsZero())
	assert.True(t, plain.Summary.RegularHours.Equal(dec(8)))
}

func TestCalculate_Errors(t *testing.T) {
	_, router := newTestRouter(t)

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "malformed body",
			body:       "{not json",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "end before start",
			body:       CalculateRequest{PayPeriodStart: "2024-01-20", PayPeriodEnd: "2024-01-14"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "bad date",
			body:       CalculateRequest{PayPeriodStart: "14/01/2024", PayPeriodEnd: "2024-01-20"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "invalid_request",
		},
		{
			name:       "no records",
			body:       demoWeek(false),
			wantStatus: http.StatusNotFound,
			wantCode:   "no_eligible_data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/api/payroll/calculate", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			resp := decode[ErrorResponse](t, rec)
			assert.NotEmpty(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestCalculations_ListAndGet(t *testing.T) {
	_, router := newTestRouter(t)
	loadScenario(t, router, "standard-week")

	// GIVEN: Two persisted runs of the same week (snapshots are append-only)
	for range 2 {
		rec := do(t, router, http.MethodPost, "/api/payroll/calculate", demoWeek(true))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	// WHEN: Listing with paging and an employee filter
	rec := do(t, router, http.MethodGet, "/api/payroll/calculations?per_page=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[CalculationListResponse](t, rec)

	// THEN: Total counts every snapshot, the page is bounded
	assert.Equal(t, 4, page.Total)
	assert.Len(t, page.Calculations, 3)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 3, page.PerPage)

	rec = do(t, router, http.MethodGet, "/api/payroll/calculations?employee_id=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	filtered := decode[CalculationListResponse](t, rec)
	assert.Equal(t, 2, filtered.Total)

	// AND: A single calculation reads back with its records and stamp
	calc := filtered.Calculations[0]
	rec = do(t, router, http.MethodGet, "/api/payroll/calculations/"+string(calc.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[CalculationDTO](t, rec)
	assert.Equal(t, calc.ID, got.ID)
	assert.Len(t, got.RecordIDs, 5)
	assert.Equal(t, "tester", got.CalculatedBy)
	assert.True(t, got.Summary.OvertimeHours.Equal(dec(45)))

	rec = do(t, router, http.MethodGet, "/api/payroll/calculations/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/payroll/calculations?page=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// PAY RULES
// =============================================================================

const weekendRuleJSON = `{
	"name": "Weekend Premium",
	"priority": 20,
	"conditions": {"day_of_week": [0, 6]},
	"actions": {"pay_multiplier": 1.5}
}`

func TestRuleLifecycle(t *testing.T) {
	_, router := newTestRouter(t)

	// GIVEN: A created rule
	rec := do(t, router, http.MethodPost, "/api/pay-rules", weekendRuleJSON)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[PayRuleDTO](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.Active)
	assert.Equal(t, "tester", created.CreatedBy)
	assert.JSONEq(t, `{"day_of_week":[0,6]}`, string(created.Conditions))

	// WHEN: Creating another rule with the same name in another case
	rec = do(t, router, http.MethodPost, "/api/pay-rules", `{"name":"weekend premium","actions":{"flat_allowance":5}}`)

	// THEN: Conflict
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decode[ErrorResponse](t, rec).Code)

	// WHEN: Updating the definition
	path := "/api/pay-rules/" + string(created.ID)
	rec = do(t, router, http.MethodPut, path, `{"name":"Weekend Premium","priority":5,"conditions":{"day_of_week":[6]},"actions":{"pay_multiplier":2}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[PayRuleDTO](t, rec)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, 5, updated.Priority)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.JSONEq(t, `{"day_of_week":[6]}`, string(updated.Conditions))

	// WHEN: Toggling it off
	rec = do(t, router, http.MethodPost, path+"/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"`+string(created.ID)+`","active":false}`, rec.Body.String())

	// THEN: It lists as inactive only
	rec = do(t, router, http.MethodGet, "/api/pay-rules?status=inactive", nil)
	assert.Len(t, decode[[]PayRuleDTO](t, rec), 1)
	rec = do(t, router, http.MethodGet, "/api/pay-rules?status=active", nil)
	assert.Empty(t, decode[[]PayRuleDTO](t, rec))

	// WHEN: Deleting it
	rec = do(t, router, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: It is gone
	rec = do(t, router, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, rec).Code)
}

func TestListRules_InvalidStatus(t *testing.T) {
	_, router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/api/pay-rules?status=archived", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRule_Invalid(t *testing.T) {
	_, router := newTestRouter(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"conditions":{},"actions":{"pay_multiplier":1.5}}`},
		{"equal hours", `{"name":"Never","conditions":{"time_range":{"start_hour":6,"end_hour":6}},"actions":{"pay_multiplier":1.5}}`},
		{"unknown condition", `{"name":"Holiday","conditions":{"holiday":true},"actions":{"pay_multiplier":2}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/api/pay-rules", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, "invalid_rule", decode[ErrorResponse](t, rec).Code)
		})
	}

	// Nothing was saved
	rec := do(t, router, http.MethodGet, "/api/pay-rules", nil)
	assert.Empty(t, decode[[]PayRuleDTO](t, rec))
}

func TestValidateRule(t *testing.T) {
	_, router := newTestRouter(t)

	// WHEN: Validating a rule with a multiplier between the buckets
	rec := do(t, router, http.MethodPost, "/api/pay-rules/validate",
		`{"name":"Odd Premium","conditions":{"roles":["nurse"]},"actions":{"pay_multiplier":1.25}}`)

	// THEN: Valid, with a classification warning
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ValidateResponse](t, rec)
	assert.True(t, resp.Valid)
	assert.Empty(t, resp.Errors)
	require.NotEmpty(t, resp.Warnings)
	assert.Contains(t, resp.Warnings[0], "1.25")

	// WHEN: Validating malformed JSON
	rec = do(t, router, http.MethodPost, "/api/pay-rules/validate", "{")

	// THEN: Still 200, reported as invalid
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[ValidateResponse](t, rec).Valid)
}

func TestDeleteRule_InUse(t *testing.T) {
	h, router := newTestRouter(t)
	loadScenario(t, router, "standard-week")

	// GIVEN: A saved calculation produced by the overtime rule
	rec := do(t, router, http.MethodPost, "/api/payroll/calculate", demoWeek(true))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rules, err := h.Store.ListRules(t.Context(), "all")
	require.NoError(t, err)
	require.Len(t, rules, 1)

	// WHEN: Deleting the rule
	rec = do(t, router, http.MethodDelete, "/api/pay-rules/"+string(rules[0].ID), nil)

	// THEN: Blocked
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, "conflict", decode[ErrorResponse](t, rec).Code)
}

func TestReorderRules(t *testing.T) {
	h, router := newTestRouter(t)
	loadScenario(t, router, "night-and-weekend")

	rules, err := h.Store.ListRules(t.Context(), "all")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	first, second := rules[0], rules[1]

	// WHEN: Swapping their priorities
	rec := do(t, router, http.MethodPost, "/api/pay-rules/reorder", ReorderRequest{Rules: []RulePriority{
		{ID: first.ID, Priority: 50},
		{ID: second.ID, Priority: 1},
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: The list order follows
	rec = do(t, router, http.MethodGet, "/api/pay-rules", nil)
	listed := decode[[]PayRuleDTO](t, rec)
	require.Len(t, listed, 2)
	assert.Equal(t, second.ID, listed[0].ID)
	assert.Equal(t, first.ID, listed[1].ID)

	// AND: Unknown ids and negative priorities are rejected
	rec = do(t, router, http.MethodPost, "/api/pay-rules/reorder", ReorderRequest{Rules: []RulePriority{{ID: "missing", Priority: 1}}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, router, http.MethodPost, "/api/pay-rules/reorder", ReorderRequest{Rules: []RulePriority{{ID: first.ID, Priority: -1}}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, router, http.MethodPost, "/api/pay-rules/reorder", ReorderRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTestRules(t *testing.T) {
	h, router := newTestRouter(t)
	loadScenario(t, router, "role-allowances")

	// GIVEN: The stored nurse rule, switched off
	rules, err := h.Store.ListRules(t.Context(), "all")
	require.NoError(t, err)
	var nurseID string
	for _, r := range rules {
		if r.Name == "Nurse Allowance" {
			nurseID = string(r.ID)
			require.NoError(t, h.Store.SetRuleActive(t.Context(), r.ID, false))
		}
	}
	require.NotEmpty(t, nurseID)

	// WHEN: Dry-running it by id
	rec := do(t, router, http.MethodPost, "/api/pay-rules/test", map[string]any{
		"rule_ids":         []string{nurseID},
		"pay_period_start": demoPeriodStart,
		"pay_period_end":   demoPeriodEnd,
	})

	// THEN: Selected rules run even when inactive
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[TestRulesResponse](t, rec)
	assert.Equal(t, 7, resp.RecordCount)
	assert.True(t, resp.Summary.TotalAllowances.Equal(dec(60)))
	assert.NotEmpty(t, resp.Trace)

	// WHEN: Dry-running an inline rule that claims every hour twice
	rec = do(t, router, http.MethodPost, "/api/pay-rules/test", map[string]any{
		"rules": []map[string]any{
			{"name": "Everything", "conditions": map[string]any{}, "actions": map[string]any{"pay_multiplier": 1.5}},
			{"name": "Everything Again", "conditions": map[string]any{}, "actions": map[string]any{"pay_multiplier": 2}},
		},
		"pay_period_start": demoPeriodStart,
		"pay_period_end":   demoPeriodEnd,
	})

	// THEN: Overlap and missing regular hours are diagnosed, nothing is saved
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp = decode[TestRulesResponse](t, rec)
	assert.NotEmpty(t, resp.Issues)

	stored, err := h.Store.ListRules(t.Context(), "all")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestTestRules_Errors(t *testing.T) {
	_, router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/pay-rules/test", map[string]any{
		"pay_period_start": demoPeriodStart, "pay_period_end": demoPeriodEnd,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/pay-rules/test", map[string]any{
		"rule_ids":         []string{"missing"},
		"pay_period_start": demoPeriodStart, "pay_period_end": demoPeriodEnd,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/pay-rules/test", map[string]any{
		"rules":            []map[string]any{{"name": "Any", "conditions": map[string]any{}, "actions": map[string]any{"flat_allowance": 1}}},
		"pay_period_start": demoPeriodStart, "pay_period_end": demoPeriodEnd,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no_eligible_data", decode[ErrorResponse](t, rec).Code)
}

func TestExamples(t *testing.T) {
	_, router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/api/pay-rules/examples", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	examples := decode[map[string]json.RawMessage](t, rec)
	assert.Len(t, examples, 4)
	assert.Contains(t, examples, "night_shift")

	rec = do(t, router, http.MethodGet, "/api/pay-rules/examples/overtime_1_5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"overtime_threshold":8`)

	rec = do(t, router, http.MethodGet, "/api/pay-rules/examples/holiday", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func TestEmployees_CreateAssignImportCalculate(t *testing.T) {
	_, router := newTestRouter(t)

	// GIVEN: An employee created over the API
	rec := do(t, router, http.MethodPost, "/api/employees", CreateEmployeeRequest{ID: "42", Name: " Zanele Khumalo ", Email: "zanele@example.com"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	emp := decode[EmployeeDTO](t, rec)
	assert.Equal(t, "Zanele Khumalo", emp.Name)
	assert.True(t, emp.Active)
	assert.Empty(t, emp.Roles)

	// WHEN: Assigning roles
	rec = do(t, router, http.MethodPost, "/api/employees/42/roles", AssignRolesRequest{Roles: []string{"nurse", "charge_nurse"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"id":"42","roles":["charge_nurse","nurse"]}`, rec.Body.String())

	// AND: Importing attendance, including an open record
	rec = do(t, router, http.MethodPost, "/api/employees/42/attendance", AttendanceRequest{Records: []AttendanceRecordDTO{
		{ID: "a1", ClockIn: "2024-01-15T07:00:00Z", ClockOut: "2024-01-15T15:30:00Z"},
		{ID: "a2", ClockIn: "2024-01-16T07:00:00Z"},
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"employee_id":"42","imported":2}`, rec.Body.String())

	// AND: A role-scoped allowance
	rec = do(t, router, http.MethodPost, "/api/pay-rules", `{"name":"Nurse Allowance","conditions":{"roles":["nurse"]},"actions":{"flat_allowance":12.5}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN: Only the closed record is paid
	rec = do(t, router, http.MethodPost, "/api/payroll/calculate", demoWeek(false))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[CalculateResponse](t, rec).Employees["42"]
	require.NotNil(t, res)
	assert.Equal(t, 1, res.RecordCount)
	assert.True(t, res.TotalHours.Equal(decimal.RequireFromString("8.5")))
	assert.True(t, res.Summary.TotalAllowances.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, "Zanele Khumalo", res.EmployeeName)

	// AND: The directory lists the employee with roles
	rec = do(t, router, http.MethodGet, "/api/employees", nil)
	list := decode[[]EmployeeDTO](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, []string{"charge_nurse", "nurse"}, list[0].Roles)
}

func TestEmployees_Errors(t *testing.T) {
	_, router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/employees", CreateEmployeeRequest{ID: "1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/employees/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/employees/missing/roles", AssignRolesRequest{Roles: []string{"nurse"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/employees/missing/attendance", AttendanceRequest{})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/employees", CreateEmployeeRequest{ID: "1", Name: "Ann"})
	require.Equal(t, http.StatusCreated, rec.Code)

	tests := []struct {
		name   string
		record AttendanceRecordDTO
	}{
		{"bad clock in", AttendanceRecordDTO{ClockIn: "2024-01-15 07:00"}},
		{"bad clock out", AttendanceRecordDTO{ClockIn: "2024-01-15T07:00:00Z", ClockOut: "later"}},
		{"reversed", AttendanceRecordDTO{ClockIn: "2024-01-15T07:00:00Z", ClockOut: "2024-01-15T06:00:00Z"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/api/employees/1/attendance", AttendanceRequest{Records: []AttendanceRecordDTO{tt.record}})

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_record", decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestNotFoundRoute(t *testing.T) {
	_, router := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/api/unknown", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Route not found", decode[ErrorResponse](t, rec).Error)
}
