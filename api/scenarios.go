/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with a week of
	attendance, a small employee directory and a rule set. Each scenario
	demonstrates one family of pay rules.

AVAILABLE SCENARIOS:

	standard-week:     Daily overtime threshold, one long-day and one 8h worker
	night-and-weekend: Night premium and weekend differential
	role-allowances:   Role-scoped allowance and an expression rule
	all-presets:       Every preset rule over a mixed workforce

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create rules via the rule factory (presets or inline definitions)
 3. Create employees and assign roles
 4. Import closed attendance records for the demo week

All records fall in the week of Sunday 2024-01-14 to Saturday 2024-01-20,
at local times in the configured payroll timezone. Calculate that period
after loading.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "night-and-weekend"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase
  - factory/examples.go: Preset rules
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

const (
	demoPeriodStart = "2024-01-14"
	demoPeriodEnd   = "2024-01-20"
	scenarioActor   = "scenario"
)

var scenarios = []ScenarioDTO{
	{
		ID:             "standard-week",
		Name:           "Standard Week",
		Description:    "Time and a half on days over 8 hours; one employee works 9h days, one works 8h days",
		PayPeriodStart: demoPeriodStart,
		PayPeriodEnd:   demoPeriodEnd,
	},
	{
		ID:             "night-and-weekend",
		Name:           "Night & Weekend",
		Description:    "Night shift premium (22:00-06:00 clock-in) and a weekend differential",
		PayPeriodStart: demoPeriodStart,
		PayPeriodEnd:   demoPeriodEnd,
	},
	{
		ID:             "role-allowances",
		Name:           "Role Allowances",
		Description:    "Per-shift nurse allowance and supervisor double time on shifts over 10 hours",
		PayPeriodStart: demoPeriodStart,
		PayPeriodEnd:   demoPeriodEnd,
	},
	{
		ID:             "all-presets",
		Name:           "All Presets",
		Description:    "Every preset rule (holiday double time inactive) over a mixed workforce",
		PayPeriodStart: demoPeriodStart,
		PayPeriodEnd:   demoPeriodEnd,
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current, Description: "Currently loaded scenario"})
}

// LoadScenario resets the database and loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var load func(context.Context) error
	switch req.ScenarioID {
	case "standard-week":
		load = h.loadStandardWeekScenario
	case "night-and-weekend":
		load = h.loadNightAndWeekendScenario
	case "role-allowances":
		load = h.loadRoleAllowancesScenario
	case "all-presets":
		load = h.loadAllPresetsScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		h.log.Error("scenario load failed", "scenario", req.ScenarioID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	h.log.Info("scenario loaded", "scenario", req.ScenarioID)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":           "loaded",
		"scenario":         req.ScenarioID,
		"pay_period_start": demoPeriodStart,
		"pay_period_end":   demoPeriodEnd,
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadStandardWeekScenario: one threshold rule.
//
//	1 Thandi Nkosi  Mon-Fri 08:00-17:00 (9h, every record is overtime)
//	2 Pieter Botha  Mon-Fri 09:00-17:00 (8h, at the threshold, all regular)
func (h *Handler) loadStandardWeekScenario(ctx context.Context) error {
	if err := h.createExampleRules(ctx, "overtime_1_5"); err != nil {
		return err
	}
	if err := h.seedEmployee(ctx, payroll.Employee{ID: "1", Name: "Thandi Nkosi", Email: "thandi@example.com"},
		weekdays(8, 9)); err != nil {
		return err
	}
	return h.seedEmployee(ctx, payroll.Employee{ID: "2", Name: "Pieter Botha", Email: "pieter@example.com"},
		weekdays(9, 8))
}

// loadNightAndWeekendScenario:
//
//	3 Lerato Dlamini  Sun and Fri nights 22:00-06:00, Wed day shift
//	4 Johan Meyer     Saturday 08:00-16:00
func (h *Handler) loadNightAndWeekendScenario(ctx context.Context) error {
	if err := h.createExampleRules(ctx, "night_shift", "weekend_differential"); err != nil {
		return err
	}
	if err := h.seedEmployee(ctx, payroll.Employee{ID: "3", Name: "Lerato Dlamini"},
		[]shift{{day: 0, hour: 22, hours: 8}, {day: 3, hour: 9, hours: 8}, {day: 5, hour: 22, hours: 8}}); err != nil {
		return err
	}
	return h.seedEmployee(ctx, payroll.Employee{ID: "4", Name: "Johan Meyer"},
		[]shift{{day: 6, hour: 8, hours: 8}})
}

// loadRoleAllowancesScenario:
//
//	5 Naledi Mokoena  nurse, Mon-Thu 07:00-15:00
//	6 Sipho Zulu      supervisor, Tue 07:00-19:00 (12h) and Wed 07:00-15:00
//	7 Anna van Wyk    no roles, Mon 09:00-17:00
func (h *Handler) loadRoleAllowancesScenario(ctx context.Context) error {
	rules := []factory.RuleJSON{
		{
			Name:        "Nurse Allowance",
			Description: "R15 per shift for nursing staff",
			Priority:    intPtr(40),
			Conditions:  map[string]any{"roles": []any{"nurse"}},
			Actions:     map[string]any{"flat_allowance": 15, "allowance_name": "nurse_allowance"},
		},
		{
			Name:        "Supervisor Double Time",
			Description: "Double time for supervisor shifts longer than 10 hours",
			Priority:    intPtr(15),
			Conditions:  map[string]any{"expression": `"supervisor" in roles && hours > 10.0`},
			Actions:     map[string]any{"pay_multiplier": 2.0, "component_name": "supervisor_double"},
		},
	}
	for _, rj := range rules {
		if err := h.createRule(ctx, rj); err != nil {
			return err
		}
	}

	if err := h.seedEmployee(ctx, payroll.Employee{ID: "5", Name: "Naledi Mokoena", Roles: []string{"nurse"}},
		[]shift{{day: 1, hour: 7, hours: 8}, {day: 2, hour: 7, hours: 8}, {day: 3, hour: 7, hours: 8}, {day: 4, hour: 7, hours: 8}}); err != nil {
		return err
	}
	if err := h.seedEmployee(ctx, payroll.Employee{ID: "6", Name: "Sipho Zulu", Roles: []string{"supervisor"}},
		[]shift{{day: 2, hour: 7, hours: 12}, {day: 3, hour: 7, hours: 8}}); err != nil {
		return err
	}
	return h.seedEmployee(ctx, payroll.Employee{ID: "7", Name: "Anna van Wyk"},
		[]shift{{day: 1, hour: 9, hours: 8}})
}

// loadAllPresetsScenario combines the standard week and night/weekend
// workforces under every preset rule.
func (h *Handler) loadAllPresetsScenario(ctx context.Context) error {
	if err := h.createExampleRules(ctx, factory.ExampleKeys...); err != nil {
		return err
	}
	seeds := []struct {
		emp    payroll.Employee
		shifts []shift
	}{
		{payroll.Employee{ID: "1", Name: "Thandi Nkosi"}, weekdays(8, 9)},
		{payroll.Employee{ID: "2", Name: "Pieter Botha"}, weekdays(9, 8)},
		{payroll.Employee{ID: "3", Name: "Lerato Dlamini"}, []shift{{day: 0, hour: 22, hours: 10}, {day: 5, hour: 22, hours: 8}}},
		{payroll.Employee{ID: "4", Name: "Johan Meyer"}, []shift{{day: 6, hour: 8, hours: 8}}},
	}
	for _, s := range seeds {
		if err := h.seedEmployee(ctx, s.emp, s.shifts); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// shift is a demo record: day offset from the Sunday starting the demo week,
// local clock-in hour and duration.
type shift struct {
	day   int
	hour  int
	hours int
}

// weekdays returns Monday-Friday shifts with the same start and length.
func weekdays(hour, hours int) []shift {
	out := make([]shift, 0, 5)
	for day := 1; day <= 5; day++ {
		out = append(out, shift{day: day, hour: hour, hours: hours})
	}
	return out
}

func intPtr(v int) *int { return &v }

func (h *Handler) createExampleRules(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		rj, ok := factory.Example(key)
		if !ok {
			return fmt.Errorf("unknown preset %q", key)
		}
		if err := h.createRule(ctx, rj); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) createRule(ctx context.Context, rj factory.RuleJSON) error {
	rec, err := h.RuleFactory.NewRecord(rj, scenarioActor)
	if err != nil {
		return fmt.Errorf("rule %q: %w", rj.Name, err)
	}
	if err := h.Store.CreateRule(ctx, rec); err != nil {
		return fmt.Errorf("rule %q: %w", rj.Name, err)
	}
	return nil
}

func (h *Handler) seedEmployee(ctx context.Context, emp payroll.Employee, shifts []shift) error {
	emp.Active = true
	if err := h.Store.SaveEmployee(ctx, emp); err != nil {
		return fmt.Errorf("employee %s: %w", emp.ID, err)
	}

	weekStart := time.Date(2024, time.January, 14, 0, 0, 0, 0, h.clock.Location)
	records := make([]payroll.AttendanceRecord, len(shifts))
	for i, s := range shifts {
		in := weekStart.AddDate(0, 0, s.day).Add(time.Duration(s.hour) * time.Hour)
		records[i] = payroll.AttendanceRecord{
			ID:           fmt.Sprintf("%s-%d", emp.ID, i+1),
			EmployeeID:   emp.ID,
			EmployeeName: emp.Name,
			ClockIn:      in,
			ClockOut:     in.Add(time.Duration(s.hours) * time.Hour),
		}
	}
	if err := h.Store.SaveRecords(ctx, records); err != nil {
		return fmt.Errorf("attendance for %s: %w", emp.ID, err)
	}
	return nil
}
