// Package store provides in-memory payroll store implementations.
package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	records   []payroll.AttendanceRecord
	rules     map[payroll.RuleID]payroll.RuleRecord
	ruleOrder []payroll.RuleID
	employees map[payroll.EmployeeID]payroll.Employee
	snapshots []payroll.Snapshot

	// FailSnapshotsFor makes SaveSnapshot fail for the listed employees.
	FailSnapshotsFor map[payroll.EmployeeID]error
}

func NewMemory() *Memory {
	return &Memory{
		rules:     make(map[payroll.RuleID]payroll.RuleRecord),
		employees: make(map[payroll.EmployeeID]payroll.Employee),
	}
}

// =============================================================================
// ATTENDANCE
// =============================================================================

// SaveRecords appends closed records.
func (m *Memory) SaveRecords(_ context.Context, recs []payroll.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, recs...)
	return nil
}

func (m *Memory) FindClosedRecords(_ context.Context, from, to time.Time, employees []payroll.EmployeeID) ([]payroll.AttendanceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []payroll.AttendanceRecord
	for _, r := range m.records {
		if r.ClockIn.Before(from) || !r.ClockIn.Before(to) {
			continue
		}
		if len(employees) > 0 && !slices.Contains(employees, r.EmployeeID) {
			continue
		}
		result = append(result, r)
	}
	slices.SortStableFunc(result, func(a, b payroll.AttendanceRecord) int { return a.ClockIn.Compare(b.ClockIn) })
	return result, nil
}

// =============================================================================
// RULES
// =============================================================================

func (m *Memory) CreateRule(_ context.Context, rule payroll.RuleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nameTakenLocked(rule.Name, "") {
		return payroll.ErrDuplicateRuleName
	}
	if rule.ID == "" {
		rule.ID = payroll.RuleID(uuid.NewString())
	}
	m.rules[rule.ID] = rule
	m.ruleOrder = append(m.ruleOrder, rule.ID)
	return nil
}

func (m *Memory) GetRule(_ context.Context, id payroll.RuleID) (*payroll.RuleRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, payroll.ErrRuleNotFound
	}
	return &r, nil
}

func (m *Memory) FindActiveRules(ctx context.Context) ([]payroll.RuleRecord, error) {
	return m.ListRules(ctx, payroll.RuleStatusActive)
}

// ListRules orders by priority, then insertion order.
func (m *Memory) ListRules(_ context.Context, status payroll.RuleStatus) ([]payroll.RuleRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []payroll.RuleRecord
	for _, id := range m.ruleOrder {
		r := m.rules[id]
		switch status {
		case payroll.RuleStatusActive:
			if !r.Active {
				continue
			}
		case payroll.RuleStatusInactive:
			if r.Active {
				continue
			}
		}
		result = append(result, r)
	}
	slices.SortStableFunc(result, func(a, b payroll.RuleRecord) int { return cmp.Compare(a.Priority, b.Priority) })
	return result, nil
}

func (m *Memory) UpdateRule(_ context.Context, rule payroll.RuleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[rule.ID]; !ok {
		return payroll.ErrRuleNotFound
	}
	if m.nameTakenLocked(rule.Name, rule.ID) {
		return payroll.ErrDuplicateRuleName
	}
	m.rules[rule.ID] = rule
	return nil
}

func (m *Memory) SetRuleActive(_ context.Context, id payroll.RuleID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return payroll.ErrRuleNotFound
	}
	r.Active = active
	r.UpdatedAt = time.Now().UTC()
	m.rules[id] = r
	return nil
}

// ReorderRules is all-or-nothing: unknown ids abort before any write.
func (m *Memory) ReorderRules(_ context.Context, priorities map[payroll.RuleID]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range priorities {
		if _, ok := m.rules[id]; !ok {
			return fmt.Errorf("reorder %s: %w", id, payroll.ErrRuleNotFound)
		}
	}
	for id, p := range priorities {
		r := m.rules[id]
		r.Priority = p
		m.rules[id] = r
	}
	return nil
}

func (m *Memory) DeleteRule(_ context.Context, id payroll.RuleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return payroll.ErrRuleNotFound
	}
	for _, s := range m.snapshots {
		for _, c := range s.Components {
			if slices.Contains(c.RulesApplied, r.Name) {
				return payroll.ErrRuleInUse
			}
		}
	}
	delete(m.rules, id)
	m.ruleOrder = slices.DeleteFunc(m.ruleOrder, func(x payroll.RuleID) bool { return x == id })
	return nil
}

func (m *Memory) nameTakenLocked(name string, except payroll.RuleID) bool {
	for id, r := range m.rules {
		if id != except && strings.EqualFold(r.Name, name) {
			return true
		}
	}
	return false
}

// =============================================================================
// EMPLOYEES & ROLES
// =============================================================================

func (m *Memory) SaveEmployee(_ context.Context, emp payroll.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.employees[emp.ID]; ok && emp.Roles == nil {
		emp.Roles = existing.Roles
	}
	m.employees[emp.ID] = emp
	return nil
}

func (m *Memory) GetEmployee(_ context.Context, id payroll.EmployeeID) (*payroll.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.employees[id]
	if !ok {
		return nil, payroll.ErrEmployeeNotFound
	}
	return &e, nil
}

func (m *Memory) ListEmployees(_ context.Context) ([]payroll.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]payroll.Employee, 0, len(m.employees))
	for _, e := range m.employees {
		result = append(result, e)
	}
	slices.SortFunc(result, func(a, b payroll.Employee) int { return cmp.Compare(a.ID, b.ID) })
	return result, nil
}

func (m *Memory) AssignRoles(_ context.Context, id payroll.EmployeeID, roles []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.employees[id]
	if !ok {
		return payroll.ErrEmployeeNotFound
	}
	e.Roles = slices.Clone(roles)
	m.employees[id] = e
	return nil
}

// FindRoleNames returns no roles for unknown employees.
func (m *Memory) FindRoleNames(_ context.Context, id payroll.EmployeeID) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.employees[id].Roles), nil
}

// =============================================================================
// SNAPSHOTS - Append-only
// =============================================================================

func (m *Memory) SaveSnapshot(_ context.Context, snap payroll.Snapshot) (payroll.SnapshotID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.FailSnapshotsFor[snap.EmployeeID]; ok {
		return "", err
	}
	snap.ID = payroll.SnapshotID(uuid.NewString())
	m.snapshots = append(m.snapshots, snap)
	return snap.ID, nil
}

func (m *Memory) GetSnapshot(_ context.Context, id payroll.SnapshotID) (*payroll.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.snapshots {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, payroll.ErrCalculationNotFound
}

// ListSnapshots returns newest first with the unpaged total.
func (m *Memory) ListSnapshots(_ context.Context, f payroll.SnapshotFilter) ([]payroll.Snapshot, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []payroll.Snapshot
	for i := len(m.snapshots) - 1; i >= 0; i-- {
		s := m.snapshots[i]
		if f.EmployeeID != "" && s.EmployeeID != f.EmployeeID {
			continue
		}
		matched = append(matched, s)
	}
	total := len(matched)
	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}
