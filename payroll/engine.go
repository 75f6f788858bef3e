/*
engine.go - Calculation orchestrator

PURPOSE:
  Runs one payroll calculation for a period: fetch, group, evaluate,
  reconcile, classify, aggregate and optionally persist.

PIPELINE:
  1. Fetch closed records (clock-in in [start, end + 1 day)) and active
     rules concurrently. No records is a NoEligibleDataError.
  2. Decode rules once. Invalid rules are skipped and reported.
  3. Group records by employee; prefetch role names (bounded).
  4. Per employee, on a bounded worker pool:
       for each record (clock-in ascending)
         for each rule (priority ascending, stable)
           Matches -> Apply -> Accumulator.Add
       ResolveResidual -> Classify
  5. Aggregate summaries across employees.
  6. If requested, save one snapshot per employee (partial success).

CANCELLATION:
  A cancelled context stops new employee pipelines from starting. The
  result is returned with Incomplete set and nothing is persisted.

SEE ALSO:
  - evaluate.go: The same pure pipeline over in-memory inputs
  - store.go: Collaborator interfaces
*/
package payroll

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds per-employee parallelism when Options.Workers is 0.
const DefaultWorkers = 4

// Sources bundles the engine's collaborators. Snapshots may be nil when
// persistence is never requested.
type Sources struct {
	Records   RecordSource
	Rules     RuleSource
	Roles     RoleSource
	Snapshots SnapshotSink
}

type Options struct {
	Workers int
	Clock   Clock
	Logger  *slog.Logger
	// Now stamps snapshots; defaults to time.Now.
	Now func() time.Time
	// Progress is called after each employee pipeline finishes.
	Progress func(done, total int)
}

// CalculateRequest describes one run.
type CalculateRequest struct {
	Period      Period
	EmployeeIDs []EmployeeID
	Persist     bool
	ActorID     string
	Debug       bool
}

type Engine struct {
	src  Sources
	opts Options
	log  *slog.Logger
}

func NewEngine(src Sources, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{src: src, opts: opts, log: log.With("component", "payroll.engine")}
}

// =============================================================================
// CALCULATE
// =============================================================================

func (e *Engine) Calculate(ctx context.Context, req CalculateRequest) (*CalculationResult, error) {
	if err := req.Period.Validate(); err != nil {
		return nil, err
	}
	// Period dates are calendar days in the payroll zone.
	req.Period = req.Period.In(e.opts.Clock.loc())
	if req.Persist && e.src.Snapshots == nil {
		return nil, fmt.Errorf("persistence requested but no snapshot sink configured")
	}
	started := time.Now()
	e.log.Info("payroll calculation started",
		"period", req.Period.String(),
		"employee_filter", len(req.EmployeeIDs),
		"persist", req.Persist)

	records, ruleRecords, err := e.fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &NoEligibleDataError{Period: req.Period, EmployeeIDs: req.EmployeeIDs}
	}

	rules, skipped := PrepareRules(ruleRecords)
	for _, issue := range skipped {
		e.log.Warn("skipping invalid pay rule",
			"rule_id", issue.RuleID, "rule_name", issue.RuleName, "reason", issue.Reason)
	}

	groups := GroupByEmployee(records)
	ids := sortedEmployeeIDs(groups)

	roles, err := e.prefetchRoles(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := newResult(req.Period)
	result.SkippedRules = skipped
	pipelines, incomplete := e.runPipelines(ctx, ids, groups, rules, roles, req.Debug)
	// Cancellation after the last pipeline started still leaves nothing
	// safe to persist.
	incomplete = incomplete || ctx.Err() != nil
	result.Incomplete = incomplete
	for i, id := range ids {
		p := pipelines[i]
		if p == nil {
			continue
		}
		result.Employees[id] = p.result
		result.Trace = append(result.Trace, p.trace...)
		for _, w := range p.result.Warnings {
			e.log.Warn("employee calculation warning", "employee_id", id, "warning", w)
		}
	}
	result.aggregate()

	if incomplete {
		e.log.Warn("payroll calculation cancelled",
			"completed", len(result.Employees), "total", len(ids), "error", ctx.Err())
		return result, nil
	}

	if req.Persist {
		result.Snapshots = e.persist(ctx, req, result)
	}

	e.log.Info("payroll calculation finished",
		"employees", result.EmployeeCount,
		"total_hours", result.Summary.TotalHours.String(),
		"skipped_rules", len(skipped),
		"duration", time.Since(started))
	return result, nil
}

// fetch issues the record and rule reads concurrently.
func (e *Engine) fetch(ctx context.Context, req CalculateRequest) ([]AttendanceRecord, []RuleRecord, error) {
	var (
		records []AttendanceRecord
		rules   []RuleRecord
	)
	from, to := req.Period.Window()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		records, err = e.src.Records.FindClosedRecords(gctx, from, to, req.EmployeeIDs)
		if err != nil {
			return fmt.Errorf("fetch attendance records: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		rules, err = e.src.Rules.FindActiveRules(gctx)
		if err != nil {
			return fmt.Errorf("fetch pay rules: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return records, rules, nil
}

func (e *Engine) prefetchRoles(ctx context.Context, ids []EmployeeID) (map[EmployeeID][]string, error) {
	roles := make(map[EmployeeID][]string, len(ids))
	if e.src.Roles == nil {
		return roles, nil
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for _, id := range ids {
		g.Go(func() error {
			names, err := e.src.Roles.FindRoleNames(gctx, id)
			if err != nil {
				return fmt.Errorf("fetch roles for employee %s: %w", id, err)
			}
			mu.Lock()
			roles[id] = names
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return roles, nil
}

type pipelineOutput struct {
	result *EmployeeResult
	trace  []TraceEntry
}

// runPipelines computes employees on a bounded pool. Slots for employees
// never started stay nil.
func (e *Engine) runPipelines(
	ctx context.Context,
	ids []EmployeeID,
	groups map[EmployeeID][]AttendanceRecord,
	rules []PayRule,
	roles map[EmployeeID][]string,
	debug bool,
) ([]*pipelineOutput, bool) {
	out := make([]*pipelineOutput, len(ids))
	sem := make(chan struct{}, e.opts.Workers)
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		done       int
		incomplete bool
	)

	for i, id := range ids {
		// Acquire semaphore
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			incomplete = true
		}
		if incomplete {
			break
		}
		if ctx.Err() != nil {
			<-sem
			incomplete = true
			break
		}

		wg.Add(1)
		go func(idx int, id EmployeeID) {
			defer wg.Done()
			defer func() { <-sem }()

			evalCtx := EvalContext{
				EmployeeID:   id,
				Roles:        roles[id],
				TotalRecords: len(groups[id]),
				Clock:        e.opts.Clock,
			}
			res, trace := calculateEmployee(groups[id], rules, evalCtx, debug)
			e.log.Debug("employee calculated",
				"employee_id", id, "records", res.RecordCount, "components", len(res.Components))

			mu.Lock()
			out[idx] = &pipelineOutput{result: res, trace: trace}
			done++
			if e.opts.Progress != nil {
				e.opts.Progress(done, len(ids))
			}
			mu.Unlock()
		}(i, id)
	}

	wg.Wait()
	return out, incomplete
}

func (e *Engine) persist(ctx context.Context, req CalculateRequest, result *CalculationResult) []SnapshotOutcome {
	at := e.opts.Now()
	outcomes := make([]SnapshotOutcome, 0, len(result.Employees))
	for _, id := range result.EmployeeIDs() {
		snap := NewSnapshot(req.Period, result.Employees[id], req.ActorID, at)
		snapID, err := e.src.Snapshots.SaveSnapshot(ctx, snap)
		if err != nil {
			perr := &PersistenceError{EmployeeID: id, Err: err}
			e.log.Error("failed to save payroll snapshot", "employee_id", id, "error", err)
			outcomes = append(outcomes, SnapshotOutcome{EmployeeID: id, Err: perr})
			continue
		}
		outcomes = append(outcomes, SnapshotOutcome{EmployeeID: id, SnapshotID: snapID})
	}
	return outcomes
}

// =============================================================================
// PURE PIPELINE STAGES
// =============================================================================

// PrepareRules decodes active rules and orders them by priority, keeping
// the supplied order for ties. Rules that fail to decode are returned as
// issues instead.
func PrepareRules(records []RuleRecord) ([]PayRule, []RuleIssue) {
	var (
		rules  []PayRule
		issues []RuleIssue
	)
	for _, rec := range records {
		if !rec.Active {
			continue
		}
		rule, err := DecodeRule(rec)
		if err != nil {
			issues = append(issues, RuleIssue{RuleID: rec.ID, RuleName: rec.Name, Reason: err.Error()})
			continue
		}
		rules = append(rules, rule)
	}
	sortRules(rules)
	return rules, issues
}

func sortRules(rules []PayRule) {
	slices.SortStableFunc(rules, func(a, b PayRule) int { return cmp.Compare(a.Priority, b.Priority) })
}

// GroupByEmployee buckets records per employee, each bucket sorted by
// clock-in.
func GroupByEmployee(records []AttendanceRecord) map[EmployeeID][]AttendanceRecord {
	groups := make(map[EmployeeID][]AttendanceRecord)
	for _, r := range records {
		groups[r.EmployeeID] = append(groups[r.EmployeeID], r)
	}
	for _, recs := range groups {
		slices.SortStableFunc(recs, func(a, b AttendanceRecord) int { return a.ClockIn.Compare(b.ClockIn) })
	}
	return groups
}

// calculateEmployee runs one employee's records through the rules.
func calculateEmployee(records []AttendanceRecord, rules []PayRule, ctx EvalContext, debug bool) (*EmployeeResult, []TraceEntry) {
	acc := NewAccumulator()
	total := decimal.Zero
	var trace []TraceEntry

	res := &EmployeeResult{
		EmployeeID:  ctx.EmployeeID,
		RecordCount: len(records),
		RecordIDs:   make([]string, 0, len(records)),
	}

	for _, rec := range records {
		if res.EmployeeName == "" {
			res.EmployeeName = rec.EmployeeName
		}
		res.RecordIDs = append(res.RecordIDs, rec.ID)
		total = total.Add(rec.ElapsedHours())

		for _, rule := range rules {
			matched := Matches(rec, rule.Conditions, ctx)
			if debug {
				trace = append(trace, TraceEntry{
					EmployeeID: ctx.EmployeeID, RecordID: rec.ID, RuleName: rule.Name, Matched: matched,
				})
			}
			if matched {
				acc.Add(Apply(rec, rule.Actions, rule.Name))
			}
		}
	}

	components := ResolveResidual(total, acc.Components())
	res.TotalHours = total
	res.Components = components
	res.Summary = Classify(components)
	res.Warnings = append(acc.Warnings(), UnbucketedWarnings(components)...)
	return res, trace
}

// =============================================================================
// AGGREGATION
// =============================================================================

func newResult(period Period) *CalculationResult {
	return &CalculationResult{
		Period:     period,
		Employees:  map[EmployeeID]*EmployeeResult{},
		Components: map[string]ComponentTotal{},
		Summary: PeriodSummary{
			Summary:    Classify(nil),
			TotalHours: decimal.Zero,
		},
	}
}

// aggregate sums employee results into the period summary and
// per-component totals.
func (r *CalculationResult) aggregate() {
	sum := Classify(nil)
	total := decimal.Zero
	comps := map[string]ComponentTotal{}

	for _, id := range r.EmployeeIDs() {
		emp := r.Employees[id]
		sum = sum.Add(emp.Summary)
		total = total.Add(emp.TotalHours)
		for _, name := range slices.Sorted(maps.Keys(emp.Components)) {
			c := emp.Components[name]
			ct, ok := comps[name]
			if !ok {
				ct = ComponentTotal{Type: c.Type, TotalHours: decimal.Zero, TotalAmount: decimal.Zero}
			}
			ct.TotalHours = ct.TotalHours.Add(c.Hours)
			ct.TotalAmount = ct.TotalAmount.Add(c.Amount)
			ct.EmployeeCount++
			comps[name] = ct
		}
	}

	r.EmployeeCount = len(r.Employees)
	r.Summary = PeriodSummary{Summary: sum, TotalHours: total, EmployeeCount: r.EmployeeCount}
	r.Components = comps
}

func sortedEmployeeIDs[V any](m map[EmployeeID]V) []EmployeeID {
	return slices.Sorted(maps.Keys(m))
}
