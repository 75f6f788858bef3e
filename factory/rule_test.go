package factory

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
)

func TestParse_Defaults(t *testing.T) {
	f := NewRuleFactory()
	rule, err := f.Parse(`{
		"name": "  Meal Allowance ",
		"conditions": {"overtime_threshold": 10},
		"actions": {"flat_allowance": 15, "allowance_name": "meal"}
	}`)
	require.NoError(t, err)

	assert.Equal(t, "Meal Allowance", rule.Name)
	assert.Equal(t, payroll.DefaultPriority, rule.Priority)
	assert.True(t, rule.Active)
	require.NotNil(t, rule.Conditions.OvertimeThreshold)
	assert.Equal(t, "10", rule.Conditions.OvertimeThreshold.String())
	assert.Equal(t, "meal", rule.Actions.AllowanceName)
}

func TestParse_MalformedJSON(t *testing.T) {
	_, err := NewRuleFactory().Parse(`{"name":`)
	assert.Error(t, err)
}

func TestFromJSON_RejectsUnknownKeys(t *testing.T) {
	_, err := NewRuleFactory().FromJSON(RuleJSON{
		Name:       "Holiday",
		Conditions: map[string]any{"holiday": true},
		Actions:    map[string]any{"pay_multiplier": 2},
	})

	var invalid *payroll.InvalidRuleDefinitionError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "conditions", invalid.Field)
	assert.True(t, payroll.IsClientError(err))
}

func TestValidate_Report(t *testing.T) {
	f := NewRuleFactory()

	cases := []struct {
		name         string
		rule         RuleJSON
		wantErrors   []string
		wantWarnings []string
	}{
		{
			name: "valid",
			rule: RuleJSON{
				Name:       "Overtime",
				Conditions: map[string]any{"overtime_threshold": 8},
				Actions:    map[string]any{"pay_multiplier": 1.5},
			},
		},
		{
			name:       "missing name",
			rule:       RuleJSON{Actions: map[string]any{"pay_multiplier": 1.5}},
			wantErrors: []string{"name is required"},
		},
		{
			name: "equal hours",
			rule: RuleJSON{
				Name:       "Empty Window",
				Conditions: map[string]any{"time_range": map[string]any{"start_hour": 9, "end_hour": 9}},
				Actions:    map[string]any{"pay_multiplier": 1.5},
			},
			wantErrors: []string{"start_hour equals end_hour"},
		},
		{
			name: "bad expression",
			rule: RuleJSON{
				Name:       "Expr",
				Conditions: map[string]any{"expression": "hours >"},
				Actions:    map[string]any{"flat_allowance": 5},
			},
			wantErrors: []string{"conditions.expression"},
		},
		{
			name:         "no conditions no actions",
			rule:         RuleJSON{Name: "Nothing"},
			wantWarnings: []string{"no conditions", "no actions"},
		},
		{
			name: "gap multiplier",
			rule: RuleJSON{
				Name:       "Night",
				Conditions: map[string]any{"time_range": map[string]any{"start": 22, "end": 6}},
				Actions:    map[string]any{"pay_multiplier": 1.1},
			},
			wantWarnings: []string{"1.1"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report := f.Validate(tc.rule)
			require.Len(t, report.Errors, len(tc.wantErrors), "errors: %v", report.Errors)
			for i, want := range tc.wantErrors {
				assert.Contains(t, report.Errors[i], want)
			}
			require.Len(t, report.Warnings, len(tc.wantWarnings), "warnings: %v", report.Warnings)
			for i, want := range tc.wantWarnings {
				assert.Contains(t, report.Warnings[i], want)
			}
			assert.Equal(t, len(tc.wantErrors) == 0, report.Valid())
		})
	}
}

func TestNewRecord(t *testing.T) {
	f := NewRuleFactory()
	fixed := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return fixed }

	rec, err := f.NewRecord(RuleJSON{
		Name:       "Weekend",
		Active:     boolPtr(false),
		Conditions: map[string]any{"day_of_week": []any{0, 6}},
		Actions:    map[string]any{"shift_differential": 2},
	}, "admin-1")
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.Active)
	assert.Equal(t, "admin-1", rec.CreatedBy)
	assert.Equal(t, fixed, rec.CreatedAt)
	assert.JSONEq(t, `{"day_of_week":[0,6]}`, rec.ConditionsJSON)
	assert.JSONEq(t, `{"shift_differential":"2"}`, rec.ActionsJSON)

	decoded, err := payroll.DecodeRule(rec)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 6}, decoded.Conditions.DayOfWeek)
}

func TestNewRecord_EmptyDayListStillMatchesNothing(t *testing.T) {
	// GIVEN: A rule authored with an explicit empty day list
	f := NewRuleFactory()
	rj := RuleJSON{
		Name:       "Never",
		Conditions: map[string]any{"day_of_week": []any{}},
		Actions:    map[string]any{"pay_multiplier": 2},
	}
	assert.Contains(t, strings.Join(f.Validate(rj).Warnings, "; "), "matches no records")

	// WHEN: It is stored and decoded again
	rec, err := f.NewRecord(rj, "admin-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"day_of_week":[]}`, rec.ConditionsJSON)

	decoded, err := payroll.DecodeRule(rec)
	require.NoError(t, err)

	// THEN: It still matches no record
	require.NotNil(t, decoded.Conditions.DayOfWeek)
	monday := time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)
	record := payroll.AttendanceRecord{ID: "mon", EmployeeID: "1", ClockIn: monday, ClockOut: monday.Add(8 * time.Hour)}
	assert.False(t, payroll.Matches(record, decoded.Conditions, payroll.EvalContext{EmployeeID: "1"}))
}

func TestToJSON_RoundTrip(t *testing.T) {
	f := NewRuleFactory()
	rj := Examples()["night_shift"]
	rule, err := f.FromJSON(rj)
	require.NoError(t, err)

	back := f.ToJSON(rule)
	again, err := f.FromJSON(back)
	require.NoError(t, err)

	assert.Equal(t, rule.Conditions.TimeRange, again.Conditions.TimeRange)
	assert.True(t, rule.Actions.PayMultiplier.Equal(*again.Actions.PayMultiplier))
	assert.Equal(t, 30, *back.Priority)
}

func TestLoadYAML(t *testing.T) {
	doc := `
rules:
  - name: Weekend Differential
    priority: 20
    conditions:
      day_of_week: [0, 6]
    actions:
      shift_differential: 2.0
      differential_name: weekend_diff
  - name: Night Shift
    conditions:
      time_range: {start_hour: 22, end_hour: 6}
    actions:
      pay_multiplier: 1.1
`
	f := NewRuleFactory()
	rules, err := f.LoadYAML(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, rules, 2)

	weekend, err := f.FromJSON(rules[0])
	require.NoError(t, err)
	assert.Equal(t, 20, weekend.Priority)
	assert.Equal(t, "weekend_diff", weekend.Actions.DifferentialName)

	night, err := f.FromJSON(rules[1])
	require.NoError(t, err)
	assert.Equal(t, payroll.DefaultPriority, night.Priority)
	assert.Equal(t, 22, night.Conditions.TimeRange.StartHour)
}

func TestLoadYAML_UnknownTopLevelKey(t *testing.T) {
	_, err := NewRuleFactory().LoadYAML(strings.NewReader("policies: []\n"))
	assert.Error(t, err)
}

func TestExamples_AllValid(t *testing.T) {
	f := NewRuleFactory()
	for _, key := range ExampleKeys {
		rj, ok := Example(key)
		require.True(t, ok, key)
		report := f.Validate(rj)
		assert.True(t, report.Valid(), "%s: %v", key, report.Errors)
	}

	holiday, _ := Example("holiday_double")
	rule, err := f.FromJSON(holiday)
	require.NoError(t, err)
	assert.False(t, rule.Active)
}
