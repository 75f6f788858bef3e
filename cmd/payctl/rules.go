package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/warp/payroll-engine/factory"
	"github.com/warp/payroll-engine/payroll"
)

func rulesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage pay rules",
	}
	cmd.AddCommand(rulesListCmd(c))
	cmd.AddCommand(rulesImportCmd(c))
	cmd.AddCommand(rulesExamplesCmd())
	return cmd
}

func rulesListCmd(c *cli) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored pay rules in evaluation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			switch payroll.RuleStatus(status) {
			case payroll.RuleStatusActive, payroll.RuleStatusInactive, payroll.RuleStatusAll:
			default:
				return fmt.Errorf("invalid --status %q (use active, inactive or all)", status)
			}

			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			rules, err := store.ListRules(ctx, payroll.RuleStatus(status))
			if err != nil {
				return err
			}
			if len(rules) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("No pay rules found. Use 'payctl rules import' to add some."))
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprint(w, header("PRIORITY", "NAME", "ACTIVE", "CONDITIONS", "ACTIONS", "ID"))
			for _, r := range rules {
				fmt.Fprintf(w, "%d\t%s\t%t\t%s\t%s\t%s\n",
					r.Priority, r.Name, r.Active, r.ConditionsJSON, r.ActionsJSON, r.ID)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", string(payroll.RuleStatusAll), "filter: active, inactive or all")
	return cmd
}

func rulesImportCmd(c *cli) *cobra.Command {
	var (
		actor  string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Validate and store the rules in a YAML rule set",
		Long: `Import reads a rule-set file of the form

  rules:
    - name: Overtime 1.5x
      priority: 10
      conditions: {overtime_threshold: 8}
      actions: {pay_multiplier: 1.5}

Every rule is validated first; nothing is stored if any rule is invalid.
Rule names must be unique (case-insensitive).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open rules file: %w", err)
			}
			defer f.Close()

			rf := factory.NewRuleFactory()
			authored, err := rf.LoadYAML(f)
			if err != nil {
				return err
			}
			if len(authored) == 0 {
				return fmt.Errorf("%s contains no rules", args[0])
			}

			var problems []string
			records := make([]payroll.RuleRecord, 0, len(authored))
			for i, rj := range authored {
				report := rf.Validate(rj)
				for _, w := range report.Warnings {
					fmt.Fprintf(out, "%s rule %d (%s): %s\n", warnStyle.Render("warning:"), i+1, rj.Name, w)
				}
				if !report.Valid() {
					problems = append(problems, fmt.Sprintf("rule %d (%s): %s", i+1, rj.Name, strings.Join(report.Errors, "; ")))
					continue
				}
				rec, err := rf.NewRecord(rj, actor)
				if err != nil {
					return err
				}
				records = append(records, rec)
			}
			if len(problems) > 0 {
				return errors.New("invalid rules:\n  " + strings.Join(problems, "\n  "))
			}
			if dryRun {
				fmt.Fprintf(out, "%d rules valid\n", len(records))
				return nil
			}

			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, rec := range records {
				if err := store.CreateRule(ctx, rec); err != nil {
					return fmt.Errorf("rule %q: %w", rec.Name, err)
				}
				fmt.Fprintf(out, "created %s (%s)\n", rec.Name, rec.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "payctl", "actor recorded as the rules' creator")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate only")
	return cmd
}

func rulesExamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "examples [KEY]",
		Short: "Print the preset rules (all, or one by key) as JSON",
		Args:  cobra.MaximumNArgs(1),
		// Presets need no configuration or database.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if len(args) == 0 {
				return enc.Encode(factory.Examples())
			}
			rj, ok := factory.Example(args[0])
			if !ok {
				return fmt.Errorf("unknown example %q (available: %s)", args[0], strings.Join(factory.ExampleKeys, ", "))
			}
			return enc.Encode(rj)
		},
	}
}
