package api

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_ListLoadReset(t *testing.T) {
	h, router := newTestRouter(t)

	// GIVEN: A fresh database
	rec := do(t, router, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]ScenarioDTO](t, rec)
	assert.Len(t, list, len(scenarios))
	for _, s := range list {
		assert.Equal(t, demoPeriodStart, s.PayPeriodStart)
		assert.Equal(t, demoPeriodEnd, s.PayPeriodEnd)
	}

	rec = do(t, router, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))

	// WHEN: Loading a scenario
	rec = do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "night-and-weekend"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"status":"loaded"`)

	// THEN: It is current and its data is present
	rec = do(t, router, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "night-and-weekend", decode[ScenarioDTO](t, rec).ID)

	employees, err := h.Store.ListEmployees(t.Context())
	require.NoError(t, err)
	assert.Len(t, employees, 2)

	// WHEN: Loading another scenario
	loadScenario(t, router, "standard-week")

	// THEN: The previous data set is replaced, not merged
	rules, err := h.Store.ListRules(t.Context(), "all")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "Overtime 1.5x", rules[0].Name)

	// WHEN: Resetting
	rec = do(t, router, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: Nothing is current and the directory is empty
	rec = do(t, router, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))
	employees, err = h.Store.ListEmployees(t.Context())
	require.NoError(t, err)
	assert.Empty(t, employees)
}

func TestScenarios_UnknownScenario(t *testing.T) {
	_, router := newTestRouter(t)

	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "year-end"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Unknown scenario", decode[ErrorResponse](t, rec).Error)
}

func TestScenarios_AllLoadAndCalculate(t *testing.T) {
	for _, s := range scenarios {
		t.Run(s.ID, func(t *testing.T) {
			_, router := newTestRouter(t)
			loadScenario(t, router, s.ID)

			rec := do(t, router, http.MethodPost, "/api/payroll/calculate", CalculateRequest{
				PayPeriodStart: s.PayPeriodStart,
				PayPeriodEnd:   s.PayPeriodEnd,
			})

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			resp := decode[CalculateResponse](t, rec)
			assert.NotZero(t, resp.EmployeeCount)
			assert.Empty(t, resp.SkippedRules)
			assert.True(t, resp.Summary.TotalHours.IsPositive())
		})
	}
}

func TestScenarios_NightAndWeekend(t *testing.T) {
	_, router := newTestRouter(t)
	loadScenario(t, router, "night-and-weekend")

	rec := do(t, router, http.MethodPost, "/api/payroll/calculate", demoWeek(false))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[CalculateResponse](t, rec)

	// THEN: Night shifts carry the 1.1 premium and stay out of the hour buckets
	night := resp.Employees["3"]
	require.Contains(t, night.Components, "night_shift")
	assert.True(t, night.Components["night_shift"].Hours.Equal(dec(16)))
	assert.NotEmpty(t, night.Warnings)
	// Sunday night also earns the weekend differential: 8h at 2.0
	assert.True(t, night.Summary.ShiftDifferentials.Equal(dec(16)), night.Summary.ShiftDifferentials.String())

	// AND: Saturday day work earns only the differential; its hours carry the
	// default 1.0 multiplier so they land in regular beside the residual
	weekend := resp.Employees["4"]
	assert.True(t, weekend.Summary.ShiftDifferentials.Equal(dec(16)))
	assert.True(t, weekend.Summary.RegularHours.Equal(dec(16)), weekend.Summary.RegularHours.String())
	assert.True(t, weekend.Components["regular_hours"].Hours.Equal(dec(8)))
	assert.NotContains(t, weekend.Components, "night_shift")
}
