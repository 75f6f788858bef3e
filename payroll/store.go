/*
store.go - Interfaces between the engine and its collaborators

PURPOSE:
  The engine reads attendance, rules and roles, and optionally writes
  calculation snapshots. Each concern is a narrow interface so that the
  engine can run against SQLite, PostgreSQL, or in-memory fixtures.

KEY INTERFACES:
  RecordSource:  Closed attendance records in a clock-in window
  RuleSource:    Active rules, priority ascending
  RoleSource:    Role names of one employee
  SnapshotSink:  Append-only calculation snapshots

  RuleStore / SnapshotStore / EmployeeStore extend these for the
  administration surface (HTTP and CLI).

APPEND-ONLY CONTRACT:
  Snapshots are never updated. Recalculating a period writes a new row.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/postgres.go: PostgreSQL
  - payroll/store/memory.go: In-memory for testing

SEE ALSO:
  - engine.go: Consumes these interfaces
  - snapshot.go: Snapshot shape
*/
package payroll

import (
	"context"
	"time"
)

// =============================================================================
// ENGINE INPUTS
// =============================================================================

// RecordSource returns closed records with clock-in in [from, to). An empty
// employees filter means all employees.
type RecordSource interface {
	FindClosedRecords(ctx context.Context, from, to time.Time, employees []EmployeeID) ([]AttendanceRecord, error)
}

// RuleSource returns active rules ordered by priority ascending.
type RuleSource interface {
	FindActiveRules(ctx context.Context) ([]RuleRecord, error)
}

type RoleSource interface {
	FindRoleNames(ctx context.Context, employeeID EmployeeID) ([]string, error)
}

// SnapshotSink persists one calculation snapshot and returns its id.
type SnapshotSink interface {
	SaveSnapshot(ctx context.Context, snapshot Snapshot) (SnapshotID, error)
}

// =============================================================================
// ADMINISTRATION
// =============================================================================

type RuleStatus string

const (
	RuleStatusActive   RuleStatus = "active"
	RuleStatusInactive RuleStatus = "inactive"
	RuleStatusAll      RuleStatus = "all"
)

// RuleStore manages rule definitions. Names are unique.
type RuleStore interface {
	RuleSource
	CreateRule(ctx context.Context, rule RuleRecord) error
	GetRule(ctx context.Context, id RuleID) (*RuleRecord, error)
	ListRules(ctx context.Context, status RuleStatus) ([]RuleRecord, error)
	UpdateRule(ctx context.Context, rule RuleRecord) error
	SetRuleActive(ctx context.Context, id RuleID, active bool) error
	// ReorderRules assigns priorities in one transaction.
	ReorderRules(ctx context.Context, priorities map[RuleID]int) error
	// DeleteRule fails with ErrRuleInUse when a saved calculation
	// references the rule by name.
	DeleteRule(ctx context.Context, id RuleID) error
}

type SnapshotFilter struct {
	EmployeeID EmployeeID
	Limit      int
	Offset     int
}

type SnapshotStore interface {
	SnapshotSink
	GetSnapshot(ctx context.Context, id SnapshotID) (*Snapshot, error)
	ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]Snapshot, int, error)
}

// Employee is the minimal employee directory entry.
type Employee struct {
	ID     EmployeeID `json:"id"`
	Name   string     `json:"name"`
	Email  string     `json:"email,omitempty"`
	Active bool       `json:"active"`
	Roles  []string   `json:"roles,omitempty"`
}

type EmployeeStore interface {
	RoleSource
	SaveEmployee(ctx context.Context, emp Employee) error
	GetEmployee(ctx context.Context, id EmployeeID) (*Employee, error)
	ListEmployees(ctx context.Context) ([]Employee, error)
	AssignRoles(ctx context.Context, id EmployeeID, roles []string) error
}

// AttendanceStore accepts closed records (imports, demo seeding).
type AttendanceStore interface {
	RecordSource
	SaveRecords(ctx context.Context, records []AttendanceRecord) error
}
