package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mapmeter/mapmeter/adapters/clock"
	"github.com/mapmeter/mapmeter/adapters/monitoring"
	"github.com/mapmeter/mapmeter/adapters/sqlite"
	"github.com/mapmeter/mapmeter/app"
	"github.com/mapmeter/mapmeter/config"
	"github.com/mapmeter/mapmeter/domain/usage"
	"github.com/mapmeter/mapmeter/ports"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the current month's usage report",
	Long: `Fetch request counts from Cloud Monitoring for the current month,
classify them into products, and print the quota reconciliation.

Examples:
  mapmeter report
  mapmeter report --local    # ledger only, no network`,
	RunE: runReport,
}

var bumpCmd = &cobra.Command{
	Use:   "bump",
	Short: "Manually add usage to the local ledger",
	Long: `Record usage the monitoring backend cannot see, e.g. requests made
through a channel outside the monitored project.

Examples:
  mapmeter bump --service "Roads API"
  mapmeter bump --service "Places API" --amount 25 --reason "backfill 09-01 outage"`,
	RunE: runBump,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the current month's local ledger",
	RunE:  runReset,
}

var (
	reportLocal bool
	bumpService string
	bumpAmount  int64
	bumpReason  string
)

func init() {
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(bumpCmd)
	rootCmd.AddCommand(resetCmd)

	reportCmd.Flags().BoolVar(&reportLocal, "local", false, "show only the local bump ledger")

	bumpCmd.Flags().StringVar(&bumpService, "service", "", "product name (required)")
	bumpCmd.Flags().Int64Var(&bumpAmount, "amount", 1, "amount to add")
	bumpCmd.Flags().StringVar(&bumpReason, "reason", "", "informational note kept in the audit ledger")
	bumpCmd.MarkFlagRequired("service")
}

func newServices(ctx context.Context, needRemote bool) (*app.ReportService, *app.LedgerService, func(), error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	holder := config.NewStaticHolder(cfg)
	logger := quietLogger()

	db, err := sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	cleanup := func() { db.Close() }

	var source ports.MetricSource
	if needRemote {
		src, err := monitoring.New(ctx, monitoring.Config{
			ProjectID:       cfg.GoogleCloud.ProjectID,
			CredentialsFile: cfg.GoogleCloud.CredentialsFile,
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		source = src
	}

	var names []string
	for _, p := range cfg.Products {
		names = append(names, p.Name)
	}
	store := sqlite.NewCounterStore(db, names)

	clk := clock.Real{}
	reports := app.NewReportService(holder, source, clk, logger, nil)
	ledger := app.NewLedgerService(store, holder, clk, logger, nil)
	return reports, ledger, cleanup, nil
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	reports, ledger, cleanup, err := newServices(ctx, !reportLocal)
	if err != nil {
		return err
	}
	defer cleanup()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	if !reportLocal {
		report, err := reports.Build(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Project %s, %s - %s\n\n",
			report.ProjectID,
			report.Period.Start.Format("2006-01-02 15:04"),
			report.Period.End.Format("2006-01-02 15:04"))

		fmt.Fprintln(w, "PRODUCT\tUSED\tQUOTA\tREMAINING\tPCT")
		for _, name := range serviceOrder(report) {
			row := report.Services[name]
			printRow(w, row)
		}
		printRow(w, report.Totals)
		w.Flush()

		if len(report.RawByService) > 0 {
			fmt.Println("\nRaw counts by service label:")
			for label, count := range report.RawByService {
				fmt.Printf("  %-45s %d\n", label, count)
			}
		}
		return nil
	}

	summary, err := ledger.Summary(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Local ledger for %s\n\n", summary.Month)
	fmt.Fprintln(w, "PRODUCT\tUSED\tQUOTA\tREMAINING\tPCT")
	for _, row := range summary.Rows {
		printRow(w, row)
	}
	printRow(w, summary.Total)
	return w.Flush()
}

func runBump(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	_, ledger, cleanup, err := newServices(ctx, false)
	if err != nil {
		return err
	}
	defer cleanup()

	event, err := ledger.Bump(ctx, bumpService, bumpAmount, bumpReason)
	if err != nil {
		return err
	}

	fmt.Printf("Bumped %s by %d for %s\n", event.Product, event.Amount, event.MonthKey)
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	_, ledger, cleanup, err := newServices(ctx, false)
	if err != nil {
		return err
	}
	defer cleanup()

	month, err := ledger.Reset(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Cleared local usage for %s\n", month)
	return nil
}

func serviceOrder(report *app.Report) []string {
	names := make([]string, 0, len(report.Services))
	for name := range report.Services {
		names = append(names, name)
	}
	// Stable output for scripts
	sort.Strings(names)
	return names
}

// quietLogger keeps CLI output clean; only real failures surface.
func quietLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.ErrorLevel)
}

func printRow(w *tabwriter.Writer, row usage.Row) {
	fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.1f%%\n", row.Name, row.Used, row.Quota, row.Remaining, row.Pct)
}
