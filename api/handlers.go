/*
handlers.go - HTTP request handlers for the payroll API

PURPOSE:
  Implements HTTP endpoints for payroll calculation, saved calculations,
  pay rule administration, employees and attendance import.

ENDPOINT GROUPS:
  Payroll:    /api/payroll/calculate, /api/payroll/calculations
  Pay rules:  /api/pay-rules (CRUD, toggle, reorder, validate, test, examples)
  Employees:  /api/employees (directory, roles, attendance)
  Scenarios:  /api/scenarios (see scenarios.go)

ERROR HANDLING:
  Domain errors map to status codes through writeDomainError:
    payroll.IsNotFound    -> 404
    payroll.IsConflict    -> 409
    payroll.IsClientError -> 400
    anything else         -> 500
  Bodies use ErrorResponse{error, code, details}.

SEE ALSO:
  - server.go: Route definitions
  - dto.go: Request/response types
  - payroll/engine.go: Calculation
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
)

// MaxTestRecords bounds rule dry runs.
const MaxTestRecords = 50

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is everything the API reads and writes. store/sqlite implements it.
type Store interface {
	payroll.RuleStore
	payroll.SnapshotStore
	payroll.EmployeeStore
	payroll.AttendanceStore
	Reset(ctx context.Context) error
}

type Options struct {
	Workers int
	Clock   payroll.Clock
	Logger  *slog.Logger
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       Store
	RuleFactory *factory.RuleFactory
	Engine      *payroll.Engine

	clock payroll.Clock
	log   *slog.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store Store, opts Options) *Handler {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.Clock.Location == nil {
		opts.Clock = payroll.UTCClock
	}
	engine := payroll.NewEngine(payroll.Sources{
		Records:   store,
		Rules:     store,
		Roles:     store,
		Snapshots: store,
	}, payroll.Options{Workers: opts.Workers, Clock: opts.Clock, Logger: log})

	return &Handler{
		Store:       store,
		RuleFactory: factory.NewRuleFactory(),
		Engine:      engine,
		clock:       opts.Clock,
		log:         log.With("component", "api"),
	}
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// PAYROLL HANDLERS
// =============================================================================

// Calculate runs the engine for a pay period.
// POST /api/payroll/calculate
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	period, err := payroll.ParsePeriodIn(req.PayPeriodStart, req.PayPeriodEnd, h.clock.Location)
	if err != nil {
		writeDomainError(w, "Invalid pay period", err)
		return
	}

	if req.ActorID == "" {
		req.ActorID = actor(r)
	}
	result, err := h.Engine.Calculate(r.Context(), payroll.CalculateRequest{
		Period:      period,
		EmployeeIDs: req.EmployeeIDs,
		Persist:     req.SaveResults,
		ActorID:     req.ActorID,
		Debug:       req.Debug,
	})
	if err != nil {
		writeDomainError(w, "Failed to calculate payroll", err)
		return
	}

	writeJSON(w, http.StatusOK, toCalculateResponse(result))
}

// ListCalculations returns saved calculations, newest first.
// GET /api/payroll/calculations?employee_id=&page=&per_page=
func (h *Handler) ListCalculations(w http.ResponseWriter, r *http.Request) {
	page, perPage, err := pagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid pagination", err)
		return
	}

	snaps, total, err := h.Store.ListSnapshots(r.Context(), payroll.SnapshotFilter{
		EmployeeID: payroll.EmployeeID(r.URL.Query().Get("employee_id")),
		Limit:      perPage,
		Offset:     (page - 1) * perPage,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list calculations", err)
		return
	}

	dtos := make([]CalculationDTO, len(snaps))
	for i, s := range snaps {
		dtos[i] = toCalculationDTO(s)
	}
	writeJSON(w, http.StatusOK, CalculationListResponse{
		Calculations: dtos,
		Total:        total,
		Page:         page,
		PerPage:      perPage,
	})
}

// GetCalculation returns one saved calculation.
// GET /api/payroll/calculations/{id}
func (h *Handler) GetCalculation(w http.ResponseWriter, r *http.Request) {
	id := payroll.SnapshotID(chi.URLParam(r, "id"))

	snap, err := h.Store.GetSnapshot(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get calculation", err)
		return
	}
	writeJSON(w, http.StatusOK, toCalculationDTO(*snap))
}

// =============================================================================
// PAY RULE HANDLERS
// =============================================================================

// ListRules returns rules filtered by ?status=active|inactive|all.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	status := payroll.RuleStatus(r.URL.Query().Get("status"))
	switch status {
	case "":
		status = payroll.RuleStatusAll
	case payroll.RuleStatusActive, payroll.RuleStatusInactive, payroll.RuleStatusAll:
	default:
		writeError(w, http.StatusBadRequest, "Invalid status filter (use active, inactive or all)", nil)
		return
	}

	records, err := h.Store.ListRules(r.Context(), status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list pay rules", err)
		return
	}

	dtos := make([]PayRuleDTO, len(records))
	for i, rec := range records {
		dtos[i] = toPayRuleDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRule validates and saves a new rule.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req factory.RuleJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	report := h.RuleFactory.Validate(req)
	if !report.Valid() {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid pay rule",
			Code:    "invalid_rule",
			Details: report,
		})
		return
	}

	rec, err := h.RuleFactory.NewRecord(req, actor(r))
	if err != nil {
		writeDomainError(w, "Invalid pay rule", err)
		return
	}
	if err := h.Store.CreateRule(r.Context(), rec); err != nil {
		writeDomainError(w, "Failed to create pay rule", err)
		return
	}

	h.log.Info("pay rule created", "rule_id", rec.ID, "rule_name", rec.Name)
	dto := toPayRuleDTO(rec)
	dto.Warnings = report.Warnings
	writeJSON(w, http.StatusCreated, dto)
}

// GetRule returns a single rule.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Store.GetRule(r.Context(), payroll.RuleID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get pay rule", err)
		return
	}
	writeJSON(w, http.StatusOK, toPayRuleDTO(*rec))
}

// UpdateRule replaces a rule definition, keeping its id and creation stamp.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id := payroll.RuleID(chi.URLParam(r, "id"))

	var req factory.RuleJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	existing, err := h.Store.GetRule(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get pay rule", err)
		return
	}

	report := h.RuleFactory.Validate(req)
	if !report.Valid() {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid pay rule",
			Code:    "invalid_rule",
			Details: report,
		})
		return
	}

	req.ID = string(id)
	rec, err := h.RuleFactory.NewRecord(req, existing.CreatedBy)
	if err != nil {
		writeDomainError(w, "Invalid pay rule", err)
		return
	}
	rec.CreatedAt = existing.CreatedAt

	if err := h.Store.UpdateRule(r.Context(), rec); err != nil {
		writeDomainError(w, "Failed to update pay rule", err)
		return
	}

	h.log.Info("pay rule updated", "rule_id", rec.ID, "rule_name", rec.Name)
	dto := toPayRuleDTO(rec)
	dto.Warnings = report.Warnings
	writeJSON(w, http.StatusOK, dto)
}

// DeleteRule removes a rule unless saved calculations reference it.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id := payroll.RuleID(chi.URLParam(r, "id"))
	if err := h.Store.DeleteRule(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete pay rule", err)
		return
	}
	h.log.Info("pay rule deleted", "rule_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ToggleRule flips a rule's active flag.
// POST /api/pay-rules/{id}/toggle
func (h *Handler) ToggleRule(w http.ResponseWriter, r *http.Request) {
	id := payroll.RuleID(chi.URLParam(r, "id"))
	rec, err := h.Store.GetRule(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get pay rule", err)
		return
	}
	if err := h.Store.SetRuleActive(r.Context(), id, !rec.Active); err != nil {
		writeDomainError(w, "Failed to toggle pay rule", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": !rec.Active})
}

// ReorderRules applies a batch of priorities atomically.
// POST /api/pay-rules/reorder
func (h *Handler) ReorderRules(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Rules) == 0 {
		writeError(w, http.StatusBadRequest, "No rules to reorder", nil)
		return
	}

	priorities := make(map[payroll.RuleID]int, len(req.Rules))
	for _, rp := range req.Rules {
		if rp.Priority < 0 {
			writeError(w, http.StatusBadRequest, "Priority must not be negative", nil)
			return
		}
		priorities[rp.ID] = rp.Priority
	}

	if err := h.Store.ReorderRules(r.Context(), priorities); err != nil {
		writeDomainError(w, "Failed to reorder pay rules", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ValidateRule reports errors and warnings without saving.
// POST /api/pay-rules/validate
func (h *Handler) ValidateRule(w http.ResponseWriter, r *http.Request) {
	var req factory.RuleJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, ValidateResponse{Valid: false, Errors: []string{err.Error()}, Warnings: []string{}})
		return
	}
	report := h.RuleFactory.Validate(req)
	writeJSON(w, http.StatusOK, ValidateResponse{Valid: report.Valid(), Errors: report.Errors, Warnings: report.Warnings})
}

// TestRules dry-runs rules over up to MaxTestRecords stored records.
// POST /api/pay-rules/test
func (h *Handler) TestRules(w http.ResponseWriter, r *http.Request) {
	var req TestRulesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.RuleIDs) == 0 && len(req.Rules) == 0 {
		writeError(w, http.StatusBadRequest, "Select at least one rule to test", nil)
		return
	}

	period, err := payroll.ParsePeriodIn(req.PayPeriodStart, req.PayPeriodEnd, h.clock.Location)
	if err != nil {
		writeDomainError(w, "Invalid pay period", err)
		return
	}

	rules, err := h.testRules(r.Context(), req)
	if err != nil {
		writeDomainError(w, "Invalid pay rule", err)
		return
	}

	from, to := period.Window()
	records, err := h.Store.FindClosedRecords(r.Context(), from, to, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load attendance", err)
		return
	}
	if len(records) == 0 {
		writeDomainError(w, "No attendance records in the selected range", &payroll.NoEligibleDataError{Period: period})
		return
	}
	if len(records) > MaxTestRecords {
		records = records[:MaxTestRecords]
	}

	roles := make(map[payroll.EmployeeID][]string)
	for id := range payroll.GroupByEmployee(records) {
		names, err := h.Store.FindRoleNames(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load roles", err)
			return
		}
		roles[id] = names
	}

	// Selected rules run even if inactive.
	for i := range rules {
		rules[i].Active = true
	}
	result := payroll.Evaluate(records, rules, roles, payroll.EvalOptions{Clock: h.clock, Debug: true})
	issues := payroll.Diagnose(result)
	if issues == nil {
		issues = []string{}
	}

	writeJSON(w, http.StatusOK, TestRulesResponse{
		RecordCount: len(records),
		Employees:   result.Employees,
		Summary:     result.Summary,
		Issues:      issues,
		Trace:       result.Trace,
	})
}

func (h *Handler) testRules(ctx context.Context, req TestRulesRequest) ([]payroll.PayRule, error) {
	var rules []payroll.PayRule
	for _, id := range req.RuleIDs {
		rec, err := h.Store.GetRule(ctx, id)
		if err != nil {
			return nil, err
		}
		rule, err := payroll.DecodeRule(*rec)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	for _, rj := range req.Rules {
		rule, err := h.RuleFactory.FromJSON(rj)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, nil
}

// ListExamples returns the preset rules.
// GET /api/pay-rules/examples
func (h *Handler) ListExamples(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, factory.Examples())
}

// GetExample returns one preset by key.
// GET /api/pay-rules/examples/{key}
func (h *Handler) GetExample(w http.ResponseWriter, r *http.Request) {
	rj, ok := factory.Example(chi.URLParam(r, "key"))
	if !ok {
		writeError(w, http.StatusNotFound, "Example rule type not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, rj)
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list employees", err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEmployee returns a single employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Store.GetEmployee(r.Context(), payroll.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get employee", err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*emp))
}

// CreateEmployee creates or updates an employee.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(string(req.ID)) == "" || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	emp := payroll.Employee{
		ID:     req.ID,
		Name:   strings.TrimSpace(req.Name),
		Email:  req.Email,
		Active: req.Active == nil || *req.Active,
		Roles:  req.Roles,
	}
	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create employee", err)
		return
	}

	saved, err := h.Store.GetEmployee(r.Context(), emp.ID)
	if err != nil {
		writeDomainError(w, "Failed to get employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(*saved))
}

// AssignRoles replaces an employee's roles.
// POST /api/employees/{id}/roles
func (h *Handler) AssignRoles(w http.ResponseWriter, r *http.Request) {
	id := payroll.EmployeeID(chi.URLParam(r, "id"))

	var req AssignRolesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.Store.AssignRoles(r.Context(), id, req.Roles); err != nil {
		writeDomainError(w, "Failed to assign roles", err)
		return
	}

	roles, err := h.Store.FindRoleNames(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load roles", err)
		return
	}
	if roles == nil {
		roles = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "roles": roles})
}

// ImportAttendance stores clock-in/out pairs for an existing employee.
// POST /api/employees/{id}/attendance
func (h *Handler) ImportAttendance(w http.ResponseWriter, r *http.Request) {
	id := payroll.EmployeeID(chi.URLParam(r, "id"))

	var req AttendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	emp, err := h.Store.GetEmployee(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get employee", err)
		return
	}

	records := make([]payroll.AttendanceRecord, 0, len(req.Records))
	for i, dto := range req.Records {
		rec, err := parseAttendance(dto, emp)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "Invalid attendance record",
				Code:    "invalid_record",
				Details: map[string]any{"index": i, "reason": err.Error()},
			})
			return
		}
		records = append(records, rec)
	}

	if err := h.Store.SaveRecords(r.Context(), records); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save attendance", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"employee_id": id, "imported": len(records)})
}

func parseAttendance(dto AttendanceRecordDTO, emp *payroll.Employee) (payroll.AttendanceRecord, error) {
	rec := payroll.AttendanceRecord{ID: dto.ID, EmployeeID: emp.ID, EmployeeName: emp.Name}

	in, err := time.Parse(time.RFC3339, dto.ClockIn)
	if err != nil {
		return rec, errors.New("clock_in must be RFC3339")
	}
	rec.ClockIn = in

	if dto.ClockOut != "" {
		out, err := time.Parse(time.RFC3339, dto.ClockOut)
		if err != nil {
			return rec, errors.New("clock_out must be RFC3339")
		}
		if out.Before(in) {
			return rec, errors.New("clock_out precedes clock_in")
		}
		rec.ClockOut = out
	}
	return rec, nil
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError picks the status and code from the payroll error taxonomy.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	status, code := http.StatusInternalServerError, "internal"
	switch {
	case payroll.IsNotFound(err):
		status, code = http.StatusNotFound, "not_found"
	case payroll.IsConflict(err):
		status, code = http.StatusConflict, "conflict"
	case payroll.IsClientError(err):
		status, code = http.StatusBadRequest, "invalid_request"
	}

	resp := ErrorResponse{Error: message, Code: code, Details: err.Error()}
	var noData *payroll.NoEligibleDataError
	if errors.As(err, &noData) {
		resp.Code = "no_eligible_data"
	}
	var invalid *payroll.InvalidRuleDefinitionError
	if errors.As(err, &invalid) {
		resp.Code = "invalid_rule"
		resp.Details = map[string]string{"field": invalid.Field, "reason": invalid.Reason}
	}
	writeJSON(w, status, resp)
}

func pagination(r *http.Request) (page, perPage int, err error) {
	page, perPage = 1, defaultPerPage
	q := r.URL.Query()
	if v := q.Get("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil || page < 1 {
			return 0, 0, errors.New("page must be a positive integer")
		}
	}
	if v := q.Get("per_page"); v != "" {
		if perPage, err = strconv.Atoi(v); err != nil || perPage < 1 {
			return 0, 0, errors.New("per_page must be a positive integer")
		}
		perPage = min(perPage, maxPerPage)
	}
	return page, perPage, nil
}

// actor identifies the caller for audit stamps. There is no authentication
// layer; clients pass X-Actor-ID.
func actor(r *http.Request) string {
	if id := r.Header.Get("X-Actor-ID"); id != "" {
		return id
	}
	return "api"
}
