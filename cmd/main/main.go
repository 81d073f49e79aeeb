package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"nepse-observer/src/jobs"
	"nepse-observer/src/models"

	"github.com/spf13/cobra"
)

// options are the persistent flags shared by every command.
type options struct {
	configPath  string
	headless    bool
	headlessSet bool
	dryRun      bool
	output      string
	symbols     []string
}

// -----------------------------------------------------------------------------

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "nepse-observer",
		Short:         "Scrape NEPSE market data into a live cache and a durable store",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts.headlessSet = cmd.Flags().Changed("headless")
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "config/default.yaml", "path to config file")
	pf.BoolVar(&opts.headless, "headless", true, "run the browser without a window")
	pf.BoolVar(&opts.dryRun, "dry-run", false, "print extracted data as JSON instead of storing it")
	pf.StringVarP(&opts.output, "output", "o", "-", "dry run output file, - for stdout")
	pf.StringSliceVar(&opts.symbols, "symbols", nil, "limit per-security jobs to these symbols")

	root.AddCommand(
		newScheduleCmd(opts),
		newFetchCmd(opts),
		newArchiveCmd(opts),
		newCleanupCmd(opts),
		newJobsCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

// -----------------------------------------------------------------------------
// One-shot commands
// -----------------------------------------------------------------------------

func newFetchCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{Use: "fetch", Short: "Run one extraction job now"}
	for _, sub := range []struct{ use, job, short string }{
		{"prices", jobs.StockPrices, "Today's prices of every security"},
		{"index", jobs.MarketIndex, "The main index and market status"},
		{"company", jobs.CompanyDetails, "Company details of listed securities"},
		{"history", jobs.PriceHistory, "End-of-day price history"},
	} {
		job := sub.job
		cmd.AddCommand(&cobra.Command{
			Use:   sub.use,
			Short: sub.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runOnce(cmd.Context(), opts, job)
			},
		})
	}
	return cmd
}

func newArchiveCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Copy live prices and index into history, then apply retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runArchive(cmd.Context(), opts, jobs.Archive)
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "prices",
			Short: "Archive today's prices only",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runArchive(cmd.Context(), opts, jobs.ArchivePrices)
			},
		},
		&cobra.Command{
			Use:   "index",
			Short: "Archive today's index only",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runArchive(cmd.Context(), opts, jobs.ArchiveIndex)
			},
		},
	)
	return cmd
}

func runArchive(ctx context.Context, opts *options, job string) error {
	if opts.dryRun {
		return fmt.Errorf("%s writes only to the store and has no dry run", job)
	}
	return runOnce(ctx, opts, job)
}

func newCleanupCmd(opts *options) *cobra.Command {
	var instrumentType string
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Re-extract and overwrite every stored security of one instrument type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			instrumentType = strings.ToLower(strings.TrimSpace(instrumentType))
			if !models.IsKnownInstrumentType(instrumentType) {
				return fmt.Errorf("unknown --type %q, want one of %s", instrumentType, strings.Join(jobs.CleanupTypes, ", "))
			}
			return runOnce(cmd.Context(), opts, jobs.CleanupJob(instrumentType))
		},
	}
	cmd.Flags().StringVar(&instrumentType, "type", "", "instrument type to clean up")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

// -----------------------------------------------------------------------------

// runOnce runs a registered job on this goroutine, so a one-shot command
// records the same status and counters as a scheduled run.
func runOnce(parent context.Context, opts *options, job string) error {
	ctx, stop := signalContext(parent)
	defer stop()

	a, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	a.scheduler.Restore(ctx)
	st, err := a.scheduler.RunNow(ctx, job)
	if err != nil {
		return err
	}
	a.log.Info("%s: %s", job, st.Message)
	return nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
