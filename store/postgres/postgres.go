// Package postgres implements the payroll storage contract on PostgreSQL:
// the engine inputs (records, rules, roles), snapshots, and the rule and
// employee administration used by the HTTP API. The schema is managed by
// embedded golang-migrate migrations (see Migrate); New does not create
// tables.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/warp/payroll-engine/payroll"
)

// Store is safe for concurrent use; database/sql pools connections.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open connects to a database URL and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return New(db), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Reset deletes all data. Used by scenario loading.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		TRUNCATE pay_calculations, attendance_records, employee_roles, roles, pay_rules, employees
		RESTART IDENTITY CASCADE
	`)
	if err != nil {
		return fmt.Errorf("failed to reset database: %w", err)
	}
	return nil
}

// =============================================================================
// ATTENDANCE
// =============================================================================

// SaveRecords upserts attendance records, creating unknown employees.
func (s *Store) SaveRecords(ctx context.Context, records []payroll.AttendanceRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO employees (id, name) VALUES ($1, $2)
			ON CONFLICT (id) DO NOTHING
		`, r.EmployeeID, r.EmployeeName); err != nil {
			return fmt.Errorf("failed to ensure employee %s: %w", r.EmployeeID, err)
		}

		status, clockOut := "closed", sql.NullTime{}
		if r.ClockOut.IsZero() {
			status = "open"
		} else {
			clockOut = sql.NullTime{Time: r.ClockOut.UTC(), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO attendance_records (id, employee_id, clock_in, clock_out, status)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				employee_id = EXCLUDED.employee_id,
				clock_in = EXCLUDED.clock_in,
				clock_out = EXCLUDED.clock_out,
				status = EXCLUDED.status
		`, r.ID, r.EmployeeID, r.ClockIn.UTC(), clockOut, status); err != nil {
			return fmt.Errorf("failed to save record %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// FindClosedRecords returns closed records with clock-in in [from, to).
func (s *Store) FindClosedRecords(ctx context.Context, from, to time.Time, employees []payroll.EmployeeID) ([]payroll.AttendanceRecord, error) {
	ids := make([]string, len(employees))
	for i, id := range employees {
		ids[i] = string(id)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.employee_id, e.name, a.clock_in, a.clock_out
		FROM attendance_records a
		JOIN employees e ON e.id = a.employee_id
		WHERE a.status = 'closed' AND a.clock_out IS NOT NULL
		  AND a.clock_in >= $1 AND a.clock_in < $2
		  AND (cardinality($3::text[]) = 0 OR a.employee_id = ANY($3))
		ORDER BY a.clock_in ASC, a.id ASC
	`, from.UTC(), to.UTC(), pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query attendance: %w", err)
	}
	defer rows.Close()

	var result []payroll.AttendanceRecord
	for rows.Next() {
		var rec payroll.AttendanceRecord
		if err := rows.Scan(&rec.ID, &rec.EmployeeID, &rec.EmployeeName, &rec.ClockIn, &rec.ClockOut); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return result, nil
}

// =============================================================================
// PAY RULES
// =============================================================================

// CreateRule inserts a rule; a case-insensitive name clash returns
// payroll.ErrDuplicateRuleName.
func (s *Store) CreateRule(ctx context.Context, rule payroll.RuleRecord) error {
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
		INSERT INTO pay_rules (id, name, description, priority, active, conditions, actions,
			created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rule.ID, rule.Name, rule.Description, rule.Priority, rule.Active,
		jsonOrEmpty(rule.ConditionsJSON), jsonOrEmpty(rule.ActionsJSON),
		nullString(rule.CreatedBy), rule.CreatedAt.UTC(), rule.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %q", payroll.ErrDuplicateRuleName, rule.Name)
		}
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

const ruleColumns = `id, name, description, priority, active, conditions::text, actions::text,
	COALESCE(created_by, ''), created_at, updated_at`

// GetRule retrieves a rule by id.
func (s *Store) GetRule(ctx context.Context, id payroll.RuleID) (*payroll.RuleRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+ruleColumns+" FROM pay_rules WHERE id = $1", id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payroll.ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return &rule, nil
}

// FindActiveRules returns active rules by priority, newest first on ties.
func (s *Store) FindActiveRules(ctx context.Context) ([]payroll.RuleRecord, error) {
	return s.ListRules(ctx, payroll.RuleStatusActive)
}

// ListRules returns rules matching status, ordered by priority ascending
// then newest first.
func (s *Store) ListRules(ctx context.Context, status payroll.RuleStatus) ([]payroll.RuleRecord, error) {
	query := "SELECT " + ruleColumns + " FROM pay_rules"
	switch status {
	case payroll.RuleStatusActive:
		query += " WHERE active = TRUE"
	case payroll.RuleStatusInactive:
		query += " WHERE active = FALSE"
	}
	query += " ORDER BY priority ASC, created_at DESC, id ASC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []payroll.RuleRecord
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

// UpdateRule replaces a rule's definition. CreatedBy and CreatedAt are kept.
func (s *Store) UpdateRule(ctx context.Context, rule payroll.RuleRecord) error {
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE pay_rules
		SET name = $2, description = $3, priority = $4, active = $5,
		    conditions = $6, actions = $7, updated_at = $8
		WHERE id = $1
	`, rule.ID, rule.Name, rule.Description, rule.Priority, rule.Active,
		jsonOrEmpty(rule.ConditionsJSON), jsonOrEmpty(rule.ActionsJSON), rule.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %q", payroll.ErrDuplicateRuleName, rule.Name)
		}
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return requireAffected(res, payroll.ErrRuleNotFound)
}

func (s *Store) SetRuleActive(ctx context.Context, id payroll.RuleID, active bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE pay_rules SET active = $2, updated_at = $3 WHERE id = $1", id, active, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to toggle rule: %w", err)
	}
	return requireAffected(res, payroll.ErrRuleNotFound)
}

// ReorderRules assigns priorities in one transaction. Any unknown id rolls
// the whole batch back.
func (s *Store) ReorderRules(ctx context.Context, priorities map[payroll.RuleID]int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	for _, id := range slices.Sorted(maps.Keys(priorities)) {
		res, err := tx.ExecContext(ctx,
			"UPDATE pay_rules SET priority = $2, updated_at = $3 WHERE id = $1", id, priorities[id], now)
		if err != nil {
			return fmt.Errorf("failed to reorder rule %s: %w", id, err)
		}
		if err := requireAffected(res, payroll.ErrRuleNotFound); err != nil {
			return fmt.Errorf("%w: %s", err, id)
		}
	}
	return tx.Commit()
}

// DeleteRule removes a rule unless a saved calculation lists its name in
// some component's rules_applied.
func (s *Store) DeleteRule(ctx context.Context, id payroll.RuleID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var name string
	err = tx.QueryRowContext(ctx, "SELECT name FROM pay_rules WHERE id = $1 FOR UPDATE", id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return payroll.ErrRuleNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get rule: %w", err)
	}

	var inUse bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1
			FROM pay_calculations pc, jsonb_each(pc.pay_components) AS c(name, component)
			WHERE c.component -> 'rules_applied' ? $1
		)
	`, name).Scan(&inUse); err != nil {
		return fmt.Errorf("failed to check rule usage: %w", err)
	}
	if inUse {
		return fmt.Errorf("%w: %q", payroll.ErrRuleInUse, name)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM pay_rules WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(row scanner) (payroll.RuleRecord, error) {
	var r payroll.RuleRecord
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Priority, &r.Active,
		&r.ConditionsJSON, &r.ActionsJSON, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

// =============================================================================
// EMPLOYEES
// =============================================================================

// SaveEmployee upserts an employee. Nil Roles leaves existing links alone.
func (s *Store) SaveEmployee(ctx context.Context, emp payroll.Employee) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO employees (id, name, email, active) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			active = EXCLUDED.active
	`, emp.ID, emp.Name, nullString(emp.Email), emp.Active); err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}

	if emp.Roles != nil {
		if err := replaceRoles(ctx, tx, emp.ID, emp.Roles); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const employeeQuery = `
	SELECT e.id, e.name, COALESCE(e.email, ''), e.active,
	       COALESCE(array_agg(r.name ORDER BY r.name) FILTER (WHERE r.name IS NOT NULL), '{}')
	FROM employees e
	LEFT JOIN employee_roles er ON er.employee_id = e.id
	LEFT JOIN roles r ON r.id = er.role_id
`

// GetEmployee retrieves an employee with roles.
func (s *Store) GetEmployee(ctx context.Context, id payroll.EmployeeID) (*payroll.Employee, error) {
	row := s.db.QueryRowContext(ctx, employeeQuery+" WHERE e.id = $1 GROUP BY e.id", id)
	emp, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payroll.ErrEmployeeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}
	return &emp, nil
}

// ListEmployees returns all employees ordered by id.
func (s *Store) ListEmployees(ctx context.Context) ([]payroll.Employee, error) {
	rows, err := s.db.QueryContext(ctx, employeeQuery+" GROUP BY e.id ORDER BY e.id")
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	var employees []payroll.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		employees = append(employees, emp)
	}
	return employees, rows.Err()
}

func scanEmployee(row scanner) (payroll.Employee, error) {
	var emp payroll.Employee
	err := row.Scan(&emp.ID, &emp.Name, &emp.Email, &emp.Active, pq.Array(&emp.Roles))
	return emp, err
}

// =============================================================================
// ROLES
// =============================================================================

// AssignRoles replaces an employee's role links, creating missing roles.
func (s *Store) AssignRoles(ctx context.Context, id payroll.EmployeeID, roles []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM employees WHERE id = $1)", id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check employee: %w", err)
	}
	if !exists {
		return payroll.ErrEmployeeNotFound
	}

	if err := replaceRoles(ctx, tx, id, roles); err != nil {
		return err
	}
	return tx.Commit()
}

// FindRoleNames returns the employee's role names, sorted.
func (s *Store) FindRoleNames(ctx context.Context, id payroll.EmployeeID) ([]string, error) {
	var names []string
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(array_agg(r.name ORDER BY r.name), '{}')
		FROM roles r
		JOIN employee_roles er ON er.role_id = r.id
		WHERE er.employee_id = $1
	`, id).Scan(pq.Array(&names))
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	return names, nil
}

func replaceRoles(ctx context.Context, tx *sql.Tx, id payroll.EmployeeID, roles []string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM employee_roles WHERE employee_id = $1", id); err != nil {
		return fmt.Errorf("failed to clear roles: %w", err)
	}
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			WITH r AS (
				INSERT INTO roles (name) VALUES ($2)
				ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
				RETURNING id
			)
			INSERT INTO employee_roles (employee_id, role_id)
			SELECT $1, id FROM r
			ON CONFLICT DO NOTHING
		`, id, role); err != nil {
			return fmt.Errorf("failed to assign role %q: %w", role, err)
		}
	}
	return nil
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

// SaveSnapshot appends a calculation row.
func (s *Store) SaveSnapshot(ctx context.Context, snap payroll.Snapshot) (payroll.SnapshotID, error) {
	components, err := payroll.MarshalComponents(snap.Components)
	if err != nil {
		return "", err
	}
	recordIDs := snap.RecordIDs
	if recordIDs == nil {
		recordIDs = []string{}
	}
	if snap.CalculatedAt.IsZero() {
		snap.CalculatedAt = s.now()
	}

	id := payroll.SnapshotID(uuid.NewString())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pay_calculations (id, employee_id, period_start, period_end, total_hours,
			regular_hours, overtime_hours, double_time_hours, total_allowances, shift_differentials,
			pay_components, record_ids, calculated_by, calculated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		id,
		snap.EmployeeID,
		snap.Period.Start.Format(payroll.DateLayout),
		snap.Period.End.Format(payroll.DateLayout),
		snap.TotalHours,
		snap.Summary.RegularHours,
		snap.Summary.OvertimeHours,
		snap.Summary.DoubleTimeHours,
		snap.Summary.TotalAllowances,
		snap.Summary.ShiftDifferentials,
		components,
		pq.Array(recordIDs),
		nullString(snap.CalculatedBy),
		snap.CalculatedAt.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to save calculation: %w", err)
	}
	return id, nil
}

const snapshotColumns = `id, employee_id, period_start, period_end, total_hours,
	regular_hours, overtime_hours, double_time_hours, total_allowances, shift_differentials,
	pay_components::text, record_ids, COALESCE(calculated_by, ''), calculated_at`

// GetSnapshot reads back one calculation row.
func (s *Store) GetSnapshot(ctx context.Context, id payroll.SnapshotID) (*payroll.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+snapshotColumns+" FROM pay_calculations WHERE id = $1", id)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, payroll.ErrCalculationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get calculation: %w", err)
	}
	return &snap, nil
}

// ListSnapshots returns calculations newest first with the unpaged total.
// A zero Limit returns every row after Offset.
func (s *Store) ListSnapshots(ctx context.Context, filter payroll.SnapshotFilter) ([]payroll.Snapshot, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pay_calculations WHERE ($1 = '' OR employee_id = $1)", filter.EmployeeID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count calculations: %w", err)
	}

	limit := sql.NullInt64{Int64: int64(filter.Limit), Valid: filter.Limit > 0}
	rows, err := s.db.QueryContext(ctx, "SELECT "+snapshotColumns+`
		FROM pay_calculations
		WHERE ($1 = '' OR employee_id = $1)
		ORDER BY calculated_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, filter.EmployeeID, limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list calculations: %w", err)
	}
	defer rows.Close()

	var snaps []payroll.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan calculation: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return snaps, total, nil
}

func scanSnapshot(row scanner) (payroll.Snapshot, error) {
	var snap payroll.Snapshot
	var start, end time.Time
	var components string
	err := row.Scan(
		&snap.ID, &snap.EmployeeID, &start, &end, &snap.TotalHours,
		&snap.Summary.RegularHours, &snap.Summary.OvertimeHours, &snap.Summary.DoubleTimeHours,
		&snap.Summary.TotalAllowances, &snap.Summary.ShiftDifferentials,
		&components, pq.Array(&snap.RecordIDs), &snap.CalculatedBy, &snap.CalculatedAt,
	)
	if err != nil {
		return snap, err
	}
	snap.Period = payroll.NewPeriod(start.UTC(), end.UTC())
	if snap.Components, err = payroll.UnmarshalComponents(components); err != nil {
		return snap, err
	}
	return snap, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation"
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
