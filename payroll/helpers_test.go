package payroll_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// at returns a UTC time in January 2024. Jan 1 2024 is a Monday.
func at(day, hour, minute int) time.Time {
	return time.Date(2024, time.January, day, hour, minute, 0, 0, time.UTC)
}

func record(id string, emp payroll.EmployeeID, in, out time.Time) payroll.AttendanceRecord {
	return payroll.AttendanceRecord{ID: id, EmployeeID: emp, EmployeeName: "Employee " + string(emp), ClockIn: in, ClockOut: out}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decp(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	msg := fmt.Sprintf("want %s, got %s", want, got)
	if len(msgAndArgs) > 0 {
		msg += ": " + fmt.Sprint(msgAndArgs...)
	}
	assert.True(t, dec(want).Equal(got), msg)
}

func january() payroll.Period {
	return payroll.NewPeriod(at(1, 0, 0), at(31, 0, 0))
}

// rule builds an active rule from JSON condition and action text, the way
// it would be stored.
func rule(t *testing.T, name string, priority int, conditions, actions string) payroll.RuleRecord {
	t.Helper()
	rec := payroll.RuleRecord{
		ID:             payroll.RuleID("rule-" + name),
		Name:           name,
		Priority:       priority,
		Active:         true,
		ConditionsJSON: conditions,
		ActionsJSON:    actions,
	}
	_, err := payroll.DecodeRule(rec)
	require.NoError(t, err, "fixture rule %s must decode", name)
	return rec
}

func decodeAll(t *testing.T, recs ...payroll.RuleRecord) []payroll.PayRule {
	t.Helper()
	rules := make([]payroll.PayRule, 0, len(recs))
	for _, rec := range recs {
		r, err := payroll.DecodeRule(rec)
		require.NoError(t, err)
		rules = append(rules, r)
	}
	return rules
}
