package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
)

type calculateOptions struct {
	from, to   string
	employees  []string
	rulesFile  string
	save       bool
	actor      string
	jsonOut    bool
	debug      bool
	noProgress bool
}

func calculateCmd(c *cli) *cobra.Command {
	var opts calculateOptions
	cmd := &cobra.Command{
		Use:   "calculate",
		Short: "Calculate payroll for a pay period",
		Long: `Calculate classifies every closed attendance record clocked in between
--from and --to (both inclusive dates) using the active stored rules, or the
rules in --rules-file instead.

With --save one snapshot per employee is appended to the database.`,
		Example: `  payctl calculate --from 2024-01-14 --to 2024-01-20
  payctl calculate --from 2024-01-14 --to 2024-01-20 --employee 1 --employee 2 --json
  payctl calculate --from 2024-01-14 --to 2024-01-20 --rules-file draft.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runCalculate(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.from, "from", "", "first day of the pay period (YYYY-MM-DD)")
	f.StringVar(&opts.to, "to", "", "last day of the pay period (YYYY-MM-DD)")
	f.StringSliceVar(&opts.employees, "employee", nil, "restrict to these employee ids (repeatable)")
	f.StringVar(&opts.rulesFile, "rules-file", "", "evaluate the rules in this YAML file instead of the stored rules")
	f.BoolVar(&opts.save, "save", false, "persist one calculation snapshot per employee")
	f.StringVar(&opts.actor, "actor", "payctl", "actor recorded on saved snapshots")
	f.BoolVar(&opts.jsonOut, "json", false, "print the full result as JSON")
	f.BoolVar(&opts.debug, "debug", false, "include the rule evaluation trace (JSON output)")
	f.BoolVar(&opts.noProgress, "no-progress", false, "disable the progress bar")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func (c *cli) runCalculate(cmd *cobra.Command, opts calculateOptions) error {
	ctx := cmd.Context()

	loc, err := c.cfg.Location()
	if err != nil {
		return err
	}
	period, err := payroll.ParsePeriodIn(opts.from, opts.to, loc)
	if err != nil {
		return err
	}
	if opts.save && opts.rulesFile != "" {
		return fmt.Errorf("--save cannot be combined with --rules-file")
	}

	store, err := c.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			c.log.Error("failed to close store", "error", closeErr)
		}
	}()

	var rules payroll.RuleSource = store
	if opts.rulesFile != "" {
		if rules, err = loadRuleFile(opts.rulesFile); err != nil {
			return err
		}
	}

	progress := newProgress(cmd.ErrOrStderr(), !opts.noProgress && !opts.jsonOut)
	engine := payroll.NewEngine(payroll.Sources{
		Records:   store,
		Rules:     rules,
		Roles:     store,
		Snapshots: store,
	}, payroll.Options{
		Workers:  c.cfg.Payroll.Workers,
		Clock:    payroll.Clock{Location: loc},
		Logger:   c.log,
		Progress: progress.update,
	})

	ids := make([]payroll.EmployeeID, len(opts.employees))
	for i, id := range opts.employees {
		ids[i] = payroll.EmployeeID(id)
	}

	result, err := engine.Calculate(ctx, payroll.CalculateRequest{
		Period:      period,
		EmployeeIDs: ids,
		Persist:     opts.save,
		ActorID:     opts.actor,
		Debug:       opts.debug,
	})
	progress.finish()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	return printResult(out, result)
}

// ruleFile serves rules read from a YAML rule set to the engine.
type ruleFile []payroll.RuleRecord

func (rf ruleFile) FindActiveRules(context.Context) ([]payroll.RuleRecord, error) {
	active := make([]payroll.RuleRecord, 0, len(rf))
	for _, r := range rf {
		if r.Active {
			active = append(active, r)
		}
	}
	return active, nil
}

func loadRuleFile(path string) (ruleFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rules file: %w", err)
	}
	defer f.Close()

	rf := factory.NewRuleFactory()
	authored, err := rf.LoadYAML(f)
	if err != nil {
		return nil, err
	}
	records := make(ruleFile, 0, len(authored))
	for _, rj := range authored {
		rec, err := rf.NewRecord(rj, "payctl")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// =============================================================================
// OUTPUT
// =============================================================================

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// header renders tab-separated column titles.
func header(cols ...string) string {
	styled := make([]string, len(cols))
	for i, c := range cols {
		styled[i] = headerStyle.Render(c)
	}
	return strings.Join(styled, "\t") + "\n"
}

func printResult(w io.Writer, res *payroll.CalculationResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprint(tw, header("EMPLOYEE", "NAME", "RECORDS", "HOURS", "REGULAR", "OVERTIME", "DOUBLE", "ALLOWANCES", "DIFFERENTIALS"))
	for _, id := range res.EmployeeIDs() {
		e := res.Employees[id]
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			id, e.EmployeeName, e.RecordCount, e.TotalHours.StringFixed(2),
			e.Summary.RegularHours.StringFixed(2), e.Summary.OvertimeHours.StringFixed(2),
			e.Summary.DoubleTimeHours.StringFixed(2), e.Summary.TotalAllowances.StringFixed(2),
			e.Summary.ShiftDifferentials.StringFixed(2))
	}
	s := res.Summary
	fmt.Fprintf(tw, "TOTAL\t\t\t%s\t%s\t%s\t%s\t%s\t%s\n",
		s.TotalHours.StringFixed(2), s.RegularHours.StringFixed(2), s.OvertimeHours.StringFixed(2),
		s.DoubleTimeHours.StringFixed(2), s.TotalAllowances.StringFixed(2), s.ShiftDifferentials.StringFixed(2))
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, id := range res.EmployeeIDs() {
		for _, warning := range res.Employees[id].Warnings {
			fmt.Fprintf(w, "%s employee %s: %s\n", warnStyle.Render("warning:"), id, warning)
		}
	}
	for _, issue := range res.SkippedRules {
		fmt.Fprintf(w, "%s %q: %s\n", warnStyle.Render("skipped rule"), issue.RuleName, issue.Reason)
	}
	if res.Incomplete {
		fmt.Fprintln(w, errStyle.Render("calculation cancelled: results are incomplete and were not saved"))
	}
	for _, o := range res.Snapshots {
		if o.Err != nil {
			fmt.Fprintf(w, "%s employee %s: %v\n", errStyle.Render("save failed:"), o.EmployeeID, o.Err)
			continue
		}
		fmt.Fprintf(w, "saved: employee %s -> %s\n", o.EmployeeID, o.SnapshotID)
	}
	return nil
}

// progress renders a bar once the engine reports the employee count.
type progress struct {
	w       io.Writer
	enabled bool

	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func newProgress(w io.Writer, enabled bool) *progress {
	return &progress{w: w, enabled: enabled}
}

func (p *progress) update(done, total int) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("Calculating employees"),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = p.bar.Set(done)
}

func (p *progress) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
