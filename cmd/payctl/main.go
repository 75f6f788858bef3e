// Command payctl runs payroll calculations and manages pay rules and the
// PostgreSQL schema from the command line.
//
//	payctl calculate --from 2024-01-14 --to 2024-01-20 --save
//	payctl calculate --from 2024-01-14 --to 2024-01-20 --rules-file rules.yaml --json
//	payctl rules import rules.yaml
//	payctl migrate up --database-url postgres://...
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/warp/payroll-engine/internal/app"
	"github.com/warp/payroll-engine/internal/config"
)

// cli holds what persistent flags resolve to; subcommands read it after
// PersistentPreRunE.
type cli struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	log     *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.New()}

	root := &cobra.Command{
		Use:   "payctl",
		Short: "Rule-driven payroll calculation engine",
		Long: `payctl turns closed attendance records into pay components using the
configured pay rules, and manages those rules.

Settings come from payroll.yaml (or --config), PAYROLL_* environment
variables and the flags below, in increasing order of precedence.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.init,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default: ./payroll.yaml when present)")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.String("driver", "sqlite", "database driver (sqlite, postgres)")
	flags.String("db", "payroll.db", "SQLite database path")
	flags.String("database-url", "", "PostgreSQL connection URL")

	_ = c.v.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = c.v.BindPFlag("logging.format", flags.Lookup("log-format"))
	_ = c.v.BindPFlag("database.driver", flags.Lookup("driver"))
	_ = c.v.BindPFlag("database.path", flags.Lookup("db"))
	_ = c.v.BindPFlag("database.url", flags.Lookup("database-url"))

	root.AddCommand(calculateCmd(c))
	root.AddCommand(rulesCmd(c))
	root.AddCommand(migrateCmd(c))
	return root
}

func (c *cli) init(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.v, c.cfgFile)
	if err != nil {
		return err
	}
	log, err := app.Logger(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	c.cfg, c.log = cfg, log
	return nil
}

func (c *cli) openStore(ctx context.Context) (app.Store, error) {
	return app.OpenStore(ctx, c.cfg, c.log)
}

func main() {
	// Set up signal handling; a cancelled calculation reports what finished
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
