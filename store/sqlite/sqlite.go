/*
Package sqlite provides a SQLite-backed implementation of the payroll storage interfaces.

PURPOSE:
  Implements every persistence interface the engine and the administration
  surface need (attendance, rules, employees/roles, calculation snapshots)
  on a single SQLite file. store/postgres covers the same engine contract
  for PostgreSQL deployments.

INTERFACES IMPLEMENTED:
  payroll.AttendanceStore: Closed attendance records
  payroll.RuleStore:       Pay rule definitions
  payroll.EmployeeStore:   Employee directory and role links
  payroll.SnapshotStore:   Saved calculations (append-only)

APPEND-ONLY ENFORCEMENT:
  pay_calculations rows are only ever inserted. Recalculating a period
  writes new rows; there is no UPDATE or DELETE on that table.

KEY TABLES:
  employees:          Directory entries
  roles:              Role names (unique)
  employee_roles:     Employee-to-role links
  attendance_records: Clock-in/out pairs, open or closed
  pay_rules:          Rule definitions, name unique (case-insensitive)
  pay_calculations:   Snapshots with the serialized component map

TIME FORMAT:
  Timestamps are stored in UTC with a fixed-width layout so that string
  comparison in SQL orders them chronologically.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. SQLite allows one writer at a time.

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := payroll.NewEngine(payroll.Sources{
      Records: store, Rules: store, Roles: store, Snapshots: store,
  }, payroll.Options{})

MIGRATION:
  Schema is auto-migrated on New(). PostgreSQL uses versioned
  golang-migrate migrations instead (store/postgres/migrations).

SEE ALSO:
  - payroll/store.go: Interface definitions
  - payroll/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements all payroll storage interfaces using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		email TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS roles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS employee_roles (
		employee_id TEXT NOT NULL REFERENCES employees(id) ON DELETE CASCADE,
		role_id INTEGER NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		PRIMARY KEY (employee_id, role_id)
	);

	-- Open records have no clock_out and are never eligible
	CREATE TABLE IF NOT EXISTS attendance_records (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		clock_in TEXT NOT NULL,
		clock_out TEXT,
		status TEXT NOT NULL DEFAULT 'closed'
	);

	-- Hot path: eligible records for a pay period
	CREATE INDEX IF NOT EXISTS idx_attendance_status_clock_in
		ON attendance_records(status, clock_in);
	CREATE INDEX IF NOT EXISTS idx_attendance_employee
		ON attendance_records(employee_id, clock_in);

	CREATE TABLE IF NOT EXISTS pay_rules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE COLLATE NOCASE,
		description TEXT NOT NULL DEFAULT '',
		priority INTEGER NOT NULL DEFAULT 100,
		active INTEGER NOT NULL DEFAULT 1,
		conditions_json TEXT NOT NULL DEFAULT '{}',
		actions_json TEXT NOT NULL DEFAULT '{}',
		created_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pay_rules_active_priority
		ON pay_rules(active, priority);

	-- Append-only
	CREATE TABLE IF NOT EXISTS pay_calculations (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		total_hours TEXT NOT NULL,
		regular_hours TEXT NOT NULL,
		overtime_hours TEXT NOT NULL,
		double_time_hours TEXT NOT NULL,
		total_allowances TEXT NOT NULL,
		shift_differentials TEXT NOT NULL,
		components_json TEXT NOT NULL,
		record_ids_json TEXT NOT NULL,
		calculated_by TEXT,
		calculated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pay_calculations_employee
		ON pay_calculations(employee_id, calculated_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset deletes all data. Used by scenario loading.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"pay_calculations", "attendance_records", "employee_roles", "roles", "pay_rules", "employees"}
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return fmt.Errorf("failed to reset %s: %w", t, err)
		}
	}
	return nil
}

// =============================================================================
// ATTENDANCE
// =============================================================================

// SaveRecords upserts attendance records. Unknown employees are created
// with the record's employee name. A zero ClockOut stores an open record.
func (s *Store) SaveRecords(ctx context.Context, records []payroll.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(s.now())
	for _, r := range records {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO employees (id, name, active, created_at) VALUES (?, ?, 1, ?)
			ON CONFLICT(id) DO NOTHING
		`, r.EmployeeID, r.EmployeeName, now); err != nil {
			return fmt.Errorf("failed to ensure employee %s: %w", r.EmployeeID, err)
		}

		status, clockOut := "closed", sql.NullString{}
		if r.ClockOut.IsZero() {
			status = "open"
		} else {
			clockOut = sql.NullString{String: formatTime(r.ClockOut), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO attendance_records (id, employee_id, clock_in, clock_out, status)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				employee_id = excluded.employee_id,
				clock_in = excluded.clock_in,
				clock_out = excluded.clock_out,
				status = excluded.status
		`, r.ID, r.EmployeeID, formatTime(r.ClockIn), clockOut, status); err != nil {
			return fmt.Errorf("failed to save record %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// FindClosedRecords returns closed records with clock-in in [from, to),
// ordered by clock-in.
func (s *Store) FindClosedRecords(ctx context.Context, from, to time.Time, employees []payroll.EmployeeID) ([]payroll.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT a.id, a.employee_id, e.name, a.clock_in, a.clock_out
		FROM attendance_records a
		JOIN employees e ON e.id = a.employee_id
		WHERE a.status = 'closed' AND a.clock_out IS NOT NULL
		  AND a.clock_in >= ? AND a.clock_in < ?
	`
	args := []any{formatTime(from), formatTime(to)}
	if len(employees) > 0 {
		query += " AND a.employee_id IN (" + placeholders(len(employees)) + ")"
		for _, id := range employees {
			args = append(args, string(id))
		}
	}
	query += " ORDER BY a.clock_in ASC, a.id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()

	var result []payroll.AttendanceRecord
	for rows.Next() {
		var rec payroll.AttendanceRecord
		var clockIn, clockOut string
		if err := rows.Scan(&rec.ID, &rec.EmployeeID, &rec.EmployeeName, &clockIn, &clockOut); err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		if rec.ClockIn, err = parseTime(clockIn); err != nil {
			return nil, err
		}
		if rec.ClockOut, err = parseTime(clockOut); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// =============================================================================
// PAY RULES
// =============================================================================

const ruleColumns = `id, name, description, priority, active, conditions_json, actions_json,
	created_by, created_at, updated_at`

// CreateRule inserts a rule. Names are unique, ignoring case.
func (s *Store) CreateRule(ctx context.Context, rule payroll.RuleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rule.ID == "" {
		rule.ID = payroll.RuleID(uuid.NewString())
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = s.now()
	}
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = rule.CreatedAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pay_rules (`+ruleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rule.ID,
		rule.Name,
		rule.Description,
		rule.Priority,
		rule.Active,
		jsonOrEmpty(rule.ConditionsJSON),
		jsonOrEmpty(rule.ActionsJSON),
		nullString(rule.CreatedBy),
		formatTime(rule.CreatedAt),
		formatTime(rule.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %q", payroll.ErrDuplicateRuleName, rule.Name)
		}
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// GetRule retrieves a rule by id.
func (s *Store) GetRule(ctx context.Context, id payroll.RuleID) (*payroll.RuleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+ruleColumns+" FROM pay_rules WHERE id = ?", id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payroll.ErrRuleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// FindActiveRules returns active rules, priority ascending.
func (s *Store) FindActiveRules(ctx context.Context) ([]payroll.RuleRecord, error) {
	return s.ListRules(ctx, payroll.RuleStatusActive)
}

// ListRules orders by priority ascending, then newest first.
func (s *Store) ListRules(ctx context.Context, status payroll.RuleStatus) ([]payroll.RuleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + ruleColumns + " FROM pay_rules"
	switch status {
	case payroll.RuleStatusActive:
		query += " WHERE active = 1"
	case payroll.RuleStatusInactive:
		query += " WHERE active = 0"
	}
	query += " ORDER BY priority ASC, created_at DESC, id ASC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []payroll.RuleRecord
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// UpdateRule replaces a rule definition. CreatedAt and CreatedBy are kept.
func (s *Store) UpdateRule(ctx context.Context, rule payroll.RuleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE pay_rules SET
			name = ?, description = ?, priority = ?, active = ?,
			conditions_json = ?, actions_json = ?, updated_at = ?
		WHERE id = ?
	`,
		rule.Name,
		rule.Description,
		rule.Priority,
		rule.Active,
		jsonOrEmpty(rule.ConditionsJSON),
		jsonOrEmpty(rule.ActionsJSON),
		formatTime(rule.UpdatedAt),
		rule.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %q", payroll.ErrDuplicateRuleName, rule.Name)
		}
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return requireAffected(res, payroll.ErrRuleNotFound)
}

// SetRuleActive toggles a rule.
func (s *Store) SetRuleActive(ctx context.Context, id payroll.RuleID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE pay_rules SET active = ?, updated_at = ? WHERE id = ?",
		active, formatTime(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to toggle rule: %w", err)
	}
	return requireAffected(res, payroll.ErrRuleNotFound)
}

// ReorderRules assigns priorities in one transaction. An unknown id rolls
// back the whole batch.
func (s *Store) ReorderRules(ctx context.Context, priorities map[payroll.RuleID]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ids := make([]payroll.RuleID, 0, len(priorities))
	for id := range priorities {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	now := formatTime(s.now())
	for _, id := range ids {
		res, err := tx.ExecContext(ctx,
			"UPDATE pay_rules SET priority = ?, updated_at = ? WHERE id = ?",
			priorities[id], now, id,
		)
		if err != nil {
			return fmt.Errorf("failed to reorder rule %s: %w", id, err)
		}
		if err := requireAffected(res, payroll.ErrRuleNotFound); err != nil {
			return fmt.Errorf("reorder %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// DeleteRule removes a rule unless a saved calculation lists it in a
// component's rules_applied.
func (s *Store) DeleteRule(ctx context.Context, id payroll.RuleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var name string
	err := s.db.QueryRowContext(ctx, "SELECT name FROM pay_rules WHERE id = ?", id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return payroll.ErrRuleNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get rule: %w", err)
	}

	inUse, err := s.ruleReferenced(ctx, name)
	if err != nil {
		return err
	}
	if inUse {
		return fmt.Errorf("%w: %q", payroll.ErrRuleInUse, name)
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM pay_rules WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return nil
}

// ruleReferenced narrows candidates with LIKE and confirms against the
// decoded component map, since a component key can equal a rule name.
func (s *Store) ruleReferenced(ctx context.Context, name string) (bool, error) {
	quoted, err := json.Marshal(name)
	if err != nil {
		return false, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT components_json FROM pay_calculations WHERE components_json LIKE ? ESCAPE '\'`,
		"%"+likeEscape(string(quoted))+"%",
	)
	if err != nil {
		return false, fmt.Errorf("failed to check rule usage: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return false, err
		}
		comps, err := payroll.UnmarshalComponents(text)
		if err != nil {
			return false, err
		}
		for _, c := range comps {
			if slices.Contains(c.RulesApplied, name) {
				return true, nil
			}
		}
	}
	return false, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(row scanner) (payroll.RuleRecord, error) {
	var rule payroll.RuleRecord
	var createdBy sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Description,
		&rule.Priority,
		&rule.Active,
		&rule.ConditionsJSON,
		&rule.ActionsJSON,
		&createdBy,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rule, err
		}
		return rule, fmt.Errorf("failed to scan rule: %w", err)
	}

	rule.CreatedBy = createdBy.String
	if rule.CreatedAt, err = parseTime(createdAt); err != nil {
		return rule, err
	}
	if rule.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return rule, err
	}
	return rule, nil
}

// =============================================================================
// EMPLOYEES & ROLES
// =============================================================================

// SaveEmployee upserts an employee. Nil Roles leaves existing links alone.
func (s *Store) SaveEmployee(ctx context.Context, emp payroll.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO employees (id, name, email, active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			active = excluded.active
	`, emp.ID, emp.Name, nullString(emp.Email), emp.Active, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}

	if emp.Roles != nil {
		if err := replaceRoles(ctx, tx, emp.ID, emp.Roles); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetEmployee retrieves an employee with roles.
func (s *Store) GetEmployee(ctx context.Context, id payroll.EmployeeID) (*payroll.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var emp payroll.Employee
	var email sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, email, active FROM employees WHERE id = ?", id,
	).Scan(&emp.ID, &emp.Name, &email, &emp.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payroll.ErrEmployeeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}
	emp.Email = email.String

	if emp.Roles, err = s.roleNames(ctx, id); err != nil {
		return nil, err
	}
	return &emp, nil
}

// ListEmployees returns all employees ordered by id.
func (s *Store) ListEmployees(ctx context.Context) ([]payroll.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, email, active FROM employees ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}

	var employees []payroll.Employee
	for rows.Next() {
		var emp payroll.Employee
		var email sql.NullString
		if err := rows.Scan(&emp.ID, &emp.Name, &email, &emp.Active); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		emp.Email = email.String
		employees = append(employees, emp)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Roles are loaded after the cursor closes; the pool holds one connection.
	for i := range employees {
		if employees[i].Roles, err = s.roleNames(ctx, employees[i].ID); err != nil {
			return nil, err
		}
	}
	return employees, nil
}

// AssignRoles replaces an employee's role links, creating missing roles.
func (s *Store) AssignRoles(ctx context.Context, id payroll.EmployeeID, roles []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM employees WHERE id = ?", id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check employee: %w", err)
	}
	if exists == 0 {
		return payroll.ErrEmployeeNotFound
	}

	if err := replaceRoles(ctx, tx, id, roles); err != nil {
		return err
	}
	return tx.Commit()
}

// FindRoleNames returns the employee's role names, sorted. Unknown
// employees have no roles.
func (s *Store) FindRoleNames(ctx context.Context, id payroll.EmployeeID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roleNames(ctx, id)
}

func (s *Store) roleNames(ctx context.Context, id payroll.EmployeeID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.name FROM roles r
		JOIN employee_roles er ON er.role_id = r.id
		WHERE er.employee_id = ?
		ORDER BY r.name
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func replaceRoles(ctx context.Context, tx *sql.Tx, id payroll.EmployeeID, roles []string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM employee_roles WHERE employee_id = ?", id); err != nil {
		return fmt.Errorf("failed to clear roles: %w", err)
	}
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO roles (name) VALUES (?) ON CONFLICT(name) DO NOTHING", role); err != nil {
			return fmt.Errorf("failed to save role %q: %w", role, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO employee_roles (employee_id, role_id)
			SELECT ?, id FROM roles WHERE name = ?
			ON CONFLICT DO NOTHING
		`, id, role); err != nil {
			return fmt.Errorf("failed to assign role %q: %w", role, err)
		}
	}
	return nil
}

// =============================================================================
// CALCULATION SNAPSHOTS
// =============================================================================

const snapshotColumns = `id, employee_id, period_start, period_end, total_hours,
	regular_hours, overtime_hours, double_time_hours, total_allowances, shift_differentials,
	components_json, record_ids_json, calculated_by, calculated_at`

// SaveSnapshot appends a calculation and returns its new id.
func (s *Store) SaveSnapshot(ctx context.Context, snap payroll.Snapshot) (payroll.SnapshotID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	components, err := payroll.MarshalComponents(snap.Components)
	if err != nil {
		return "", err
	}
	recordIDs := snap.RecordIDs
	if recordIDs == nil {
		recordIDs = []string{}
	}
	recordIDsJSON, err := json.Marshal(recordIDs)
	if err != nil {
		return "", fmt.Errorf("failed to marshal record ids: %w", err)
	}
	if snap.CalculatedAt.IsZero() {
		snap.CalculatedAt = s.now()
	}

	id := payroll.SnapshotID(uuid.NewString())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pay_calculations (`+snapshotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		snap.EmployeeID,
		snap.Period.Start.Format(payroll.DateLayout),
		snap.Period.End.Format(payroll.DateLayout),
		snap.TotalHours.String(),
		snap.Summary.RegularHours.String(),
		snap.Summary.OvertimeHours.String(),
		snap.Summary.DoubleTimeHours.String(),
		snap.Summary.TotalAllowances.String(),
		snap.Summary.ShiftDifferentials.String(),
		components,
		string(recordIDsJSON),
		nullString(snap.CalculatedBy),
		formatTime(snap.CalculatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("failed to save calculation: %w", err)
	}
	return id, nil
}

// GetSnapshot retrieves a saved calculation.
func (s *Store) GetSnapshot(ctx context.Context, id payroll.SnapshotID) (*payroll.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+snapshotColumns+" FROM pay_calculations WHERE id = ?", id)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payroll.ErrCalculationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListSnapshots returns saved calculations newest first, with the total
// matching count for pagination.
func (s *Store) ListSnapshots(ctx context.Context, filter payroll.SnapshotFilter) ([]payroll.Snapshot, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := "", []any{}
	if filter.EmployeeID != "" {
		where = " WHERE employee_id = ?"
		args = append(args, filter.EmployeeID)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pay_calculations"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count calculations: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query := "SELECT " + snapshotColumns + " FROM pay_calculations" + where +
		" ORDER BY calculated_at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, limit, max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query calculations: %w", err)
	}
	defer rows.Close()

	var snaps []payroll.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, 0, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, total, rows.Err()
}

func scanSnapshot(row scanner) (payroll.Snapshot, error) {
	var snap payroll.Snapshot
	var start, end, components, recordIDs, calculatedAt string
	var calculatedBy sql.NullString
	var totals [6]string

	err := row.Scan(
		&snap.ID,
		&snap.EmployeeID,
		&start,
		&end,
		&totals[0],
		&totals[1],
		&totals[2],
		&totals[3],
		&totals[4],
		&totals[5],
		&components,
		&recordIDs,
		&calculatedBy,
		&calculatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return snap, err
		}
		return snap, fmt.Errorf("failed to scan calculation: %w", err)
	}

	if snap.Period, err = payroll.ParsePeriod(start, end); err != nil {
		return snap, err
	}

	var values [6]decimal.Decimal
	for i, text := range totals {
		if values[i], err = decimal.NewFromString(text); err != nil {
			return snap, fmt.Errorf("failed to parse stored amount %q: %w", text, err)
		}
	}
	snap.TotalHours = values[0]
	snap.Summary = payroll.Summary{
		RegularHours:       values[1],
		OvertimeHours:      values[2],
		DoubleTimeHours:    values[3],
		TotalAllowances:    values[4],
		ShiftDifferentials: values[5],
	}

	if snap.Components, err = payroll.UnmarshalComponents(components); err != nil {
		return snap, err
	}
	if err := json.Unmarshal([]byte(recordIDs), &snap.RecordIDs); err != nil {
		return snap, fmt.Errorf("failed to unmarshal record ids: %w", err)
	}
	snap.CalculatedBy = calculatedBy.String
	if snap.CalculatedAt, err = parseTime(calculatedAt); err != nil {
		return snap, err
	}
	return snap, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(text string) (time.Time, error) {
	t, err := time.Parse(timeLayout, text)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored time %q: %w", text, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func jsonOrEmpty(text string) string {
	if strings.TrimSpace(text) == "" {
		return "{}"
	}
	return text
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func likeEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
