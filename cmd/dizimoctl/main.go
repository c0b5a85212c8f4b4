package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dizimo/internal/bootstrap"
	"dizimo/internal/config"
	"dizimo/internal/domain"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "dizimoctl",
		Short:         "Operator commands for the dizimo service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(rolloverCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(reconcilePendingCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what every command needs: configuration, a logger and the database.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sql.DB
}

func openEnv() (*env, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	logger, err := bootstrap.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg.DB.MaxRetries = 1
	db, err := bootstrap.OpenDatabase(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, db: db}, nil
}

func (e *env) Close() {
	e.db.Close()
	e.logger.Sync()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			logger, err := bootstrap.NewLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()
			return bootstrap.Migrate(cfg, logger)
		},
	}
}

func rolloverCmd() *cobra.Command {
	var (
		month string
		year  int
	)
	cmd := &cobra.Command{
		Use:   "rollover",
		Short: "Open the payments of a month and close the previous community totals",
		Long: `Run the monthly rollover for one period.

Every active user gets a payment for the period and each community's
running total becomes its last month total. Running the same period again
creates nothing and leaves the community totals alone.

Examples:
  dizimoctl rollover
  dizimoctl rollover --month march --year 2024`,
		RunE: func(cmd *cobra.Command, args []string) error {
			period := domain.PeriodOf(time.Now())
			if month != "" || year != 0 {
				if year == 0 {
					year = period.Year
				}
				p, err := domain.NewPeriod(month, year)
				if err != nil {
					return err
				}
				period = p
			}

			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			app, err := bootstrap.NewApp(cmd.Context(), e.cfg, e.db, e.logger)
			if err != nil {
				return err
			}
			report, err := app.Rollover.Run(cmd.Context(), period)
			if err != nil {
				return fmt.Errorf("rollover %s: %w", period, err)
			}
			if err := printJSON(report); err != nil {
				return err
			}
			if n := report.Failures(); n > 0 {
				return fmt.Errorf("rollover %s finished with %d failures", period, n)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&month, "month", "", "month label or number (default: current month)")
	cmd.Flags().IntVar(&year, "year", 0, "year (default: current year)")

	return cmd
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [correlation-id]",
		Short: "Reconcile one charge against the PIX provider now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			app, err := bootstrap.NewApp(cmd.Context(), e.cfg, e.db, e.logger)
			if err != nil {
				return err
			}
			if err := app.Payments.Reconcile(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("reconcile %s: %w", args[0], err)
			}
			fmt.Printf("Charge %s reconciled\n", args[0])
			return nil
		},
	}
}

func reconcilePendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile-pending",
		Short: "Run every due reconciliation job once",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			app, err := bootstrap.NewApp(cmd.Context(), e.cfg, e.db, e.logger)
			if err != nil {
				return err
			}
			result, err := app.Worker.Drain(cmd.Context())
			if err != nil {
				return fmt.Errorf("drain reconciliation jobs: %w", err)
			}
			return printJSON(result)
		},
	}
}
