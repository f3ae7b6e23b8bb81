package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tournevent/printbridge/internal/fulfillment"
	"github.com/tournevent/printbridge/internal/repository/postgres"
	"github.com/tournevent/printbridge/internal/server"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var version = "0.0.1"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "printbridge",
	Short:   "Print on demand fulfillment bridge for the Lulu print API",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and the hourly status sweep",
	RunE:  runServe,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Check the print job status of every processing order once",
	Args:  cobra.NoArgs,
	RunE:  runSweep,
}

var statusCmd = &cobra.Command{
	Use:   "status <order-id>",
	Short: "Check the print job status of one order",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var quoteCmd = &cobra.Command{
	Use:   "quote <order-id>",
	Short: "Price the printable items of one order",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuote,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the PostgreSQL schema",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(serveCmd, sweepCmd, statusCmd, quoteCmd, migrateCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))

	a.logger.Info("Starting printbridge",
		zap.Int("port", a.cfg.Port),
		zap.String("version", a.cfg.Version),
		zap.String("lulu_mode", a.cfg.LuluMode),
		zap.Duration("sweep_interval", a.cfg.SweepInterval),
	)

	srv, err := server.New(server.Config{
		Port:          a.cfg.Port,
		WebhookSecret: a.cfg.WebhookSecret,
	}, a.service, a.logger, a.registry)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	scheduler := fulfillment.NewScheduler(a.service, a.cfg.SweepInterval, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Run(gctx); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	return g.Wait()
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))

	report, err := a.service.Sweep(ctx)
	if err != nil {
		return err
	}

	failures := make(map[string]string, len(report.Errors))
	for id, err := range report.Errors {
		failures[id] = err.Error()
	}
	return printJSON(cmd, map[string]any{
		"checked":  report.Checked,
		"changed":  report.Changed,
		"failed":   report.Failed,
		"errors":   failures,
		"duration": report.Duration.String(),
	})
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))

	check, err := a.service.CheckStatus(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(cmd, map[string]any{
		"order_id":             check.OrderID,
		"print_job_id":         check.PrintJobID,
		"previous":             check.Previous,
		"status":               check.Current,
		"label":                fulfillment.StatusLabel(check.Current),
		"changed":              check.Changed,
		"tracking_information": check.Tracking,
	})
}

func runQuote(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))

	result, err := a.service.QuoteOrder(ctx, args[0])
	if err != nil {
		return err
	}
	if result.Err != nil {
		_ = printJSON(cmd, map[string]any{"errors": result.Errors})
		return result.Err
	}
	return printJSON(cmd, result.Cost)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	db, err := postgres.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
