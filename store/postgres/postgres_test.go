package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/warp/payroll-engine/api"
	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/store/postgres"
)

var _ api.Store = (*postgres.Store)(nil)

// setupTestStore starts a PostgreSQL container, applies the embedded
// migrations and returns a connected store. Skipped under -short or when
// Docker is unavailable.
func setupTestStore(t *testing.T) *postgres.Store {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "payroll_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	url := fmt.Sprintf("postgres://test:test@%s:%s/payroll_test?sslmode=disable", host, port.Port())

	require.NoError(t, postgres.Migrate(url))

	store, err := postgres.Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPostgresStore_EngineRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// GIVEN: Two employees, one with a role, and role-scoped and threshold rules
	in := func(h int) time.Time { return time.Date(2024, time.January, 15, h, 0, 0, 0, time.UTC) }
	require.NoError(t, store.SaveRecords(ctx, []payroll.AttendanceRecord{
		{ID: "r1", EmployeeID: "1", EmployeeName: "Avi", ClockIn: in(8), ClockOut: in(12)},
		{ID: "r2", EmployeeID: "1", EmployeeName: "Avi", ClockIn: in(13), ClockOut: in(21)},
		{ID: "r3", EmployeeID: "2", EmployeeName: "Bea", ClockIn: in(9), ClockOut: in(17)},
		{ID: "open", EmployeeID: "2", EmployeeName: "Bea", ClockIn: in(18)},
	}))
	require.NoError(t, store.AssignRoles(ctx, "2", []string{"nurse"}))
	require.NoError(t, store.CreateRule(ctx, payroll.RuleRecord{
		ID: "ot", Name: "Overtime", Priority: 1, Active: true,
		ConditionsJSON: `{"overtime_threshold":6}`, ActionsJSON: `{"pay_multiplier":1.5}`,
	}))
	require.NoError(t, store.CreateRule(ctx, payroll.RuleRecord{
		ID: "nurse", Name: "Nurse Allowance", Priority: 2, Active: true,
		ConditionsJSON: `{"roles":["nurse"]}`, ActionsJSON: `{"flat_allowance":10}`,
	}))
	err := store.CreateRule(ctx, payroll.RuleRecord{ID: "dup", Name: "overtime", Active: true})
	assert.ErrorIs(t, err, payroll.ErrDuplicateRuleName)

	roles, err := store.FindRoleNames(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, []string{"nurse"}, roles)

	engine := payroll.NewEngine(payroll.Sources{
		Records: store, Rules: store, Roles: store, Snapshots: store,
	}, payroll.Options{})

	// WHEN: Calculating the week with persistence
	period, err := payroll.ParsePeriod("2024-01-15", "2024-01-21")
	require.NoError(t, err)
	result, err := engine.Calculate(ctx, payroll.CalculateRequest{Period: period, Persist: true, ActorID: "admin"})
	require.NoError(t, err)

	// THEN: Both employees are split correctly and snapshots read back
	assert.True(t, result.Employees["1"].Summary.OvertimeHours.Equal(decimal.NewFromInt(8)))
	assert.True(t, result.Employees["2"].Summary.TotalAllowances.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 1, result.Employees["2"].RecordCount, "open records are not eligible")

	require.Len(t, result.Snapshots, 2)
	for _, outcome := range result.Snapshots {
		require.NoError(t, outcome.Err)
		snap, err := store.GetSnapshot(ctx, outcome.SnapshotID)
		require.NoError(t, err)
		assert.Equal(t, outcome.EmployeeID, snap.EmployeeID)
		assert.Equal(t, "2024-01-15", snap.Period.Start.Format(payroll.DateLayout))
		assert.Equal(t, "admin", snap.CalculatedBy)
	}
}

func TestPostgresStore_Administration(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// GIVEN: Two rules and an employee with roles
	require.NoError(t, store.CreateRule(ctx, payroll.RuleRecord{
		ID: "a", Name: "Alpha", Priority: 10, Active: true,
		ConditionsJSON: `{"overtime_threshold":8}`, ActionsJSON: `{"pay_multiplier":1.5}`,
	}))
	require.NoError(t, store.CreateRule(ctx, payroll.RuleRecord{
		ID: "b", Name: "Beta", Priority: 20, Active: true, ActionsJSON: `{"flat_allowance":5}`,
	}))
	require.NoError(t, store.SaveEmployee(ctx, payroll.Employee{
		ID: "9", Name: "Kea", Email: "kea@example.com", Active: true, Roles: []string{"medic", "driver"},
	}))

	// WHEN: Reordering, toggling and reading back
	require.NoError(t, store.ReorderRules(ctx, map[payroll.RuleID]int{"a": 30, "b": 1}))
	require.NoError(t, store.SetRuleActive(ctx, "a", false))

	// THEN: Order and status filters follow
	all, err := store.ListRules(ctx, payroll.RuleStatusAll)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, payroll.RuleID("b"), all[0].ID)

	active, err := store.FindActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Beta", active[0].Name)

	err = store.ReorderRules(ctx, map[payroll.RuleID]int{"b": 5, "missing": 1})
	assert.ErrorIs(t, err, payroll.ErrRuleNotFound)
	rule, err := store.GetRule(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 1, rule.Priority, "failed batch rolls back")

	emp, err := store.GetEmployee(ctx, "9")
	require.NoError(t, err)
	assert.Equal(t, []string{"driver", "medic"}, emp.Roles)
	assert.Equal(t, "kea@example.com", emp.Email)

	employees, err := store.ListEmployees(ctx)
	require.NoError(t, err)
	require.Len(t, employees, 1)

	_, err = store.GetEmployee(ctx, "missing")
	assert.ErrorIs(t, err, payroll.ErrEmployeeNotFound)

	// WHEN: A saved calculation references Beta
	period, err := payroll.ParsePeriod("2024-01-15", "2024-01-21")
	require.NoError(t, err)
	_, err = store.SaveSnapshot(ctx, payroll.Snapshot{
		EmployeeID: "9",
		Period:     period,
		TotalHours: decimal.NewFromInt(8),
		Components: payroll.Components{
			"beta_allowance": {Amount: decimal.NewFromInt(5), Type: payroll.ComponentAllowance, RulesApplied: []string{"Beta"}},
		},
		CalculatedAt: time.Now(),
	})
	require.NoError(t, err)

	// THEN: Beta cannot be deleted, Alpha can
	assert.ErrorIs(t, store.DeleteRule(ctx, "b"), payroll.ErrRuleInUse)
	assert.NoError(t, store.DeleteRule(ctx, "a"))
	assert.ErrorIs(t, store.DeleteRule(ctx, "a"), payroll.ErrRuleNotFound)

	snaps, total, err := store.ListSnapshots(ctx, payroll.SnapshotFilter{EmployeeID: "9"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, snaps, 1)
	assert.Equal(t, []string{"Beta"}, snaps[0].Components["beta_allowance"].RulesApplied)

	// AND: Reset clears everything
	require.NoError(t, store.Reset(ctx))
	employees, err = store.ListEmployees(ctx)
	require.NoError(t, err)
	assert.Empty(t, employees)
}
