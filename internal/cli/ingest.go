package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"wxdata/internal/services"
	"wxdata/internal/station"
	"wxdata/pkg/logging"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*GlobalOptions
	DataDir         string
	Workers         int
	BatchSize       int
	FileTimeout     time.Duration
	JobTimeout      time.Duration
	StationStrategy string
	Aggregate       bool
	Migrate         bool
}

// NewIngestCommand is the standalone ingester binary.
func NewIngestCommand() *cobra.Command {
	opts := &GlobalOptions{}
	cmd := newIngestCommand(opts, "ingester")
	addGlobalFlags(cmd, opts)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return cmd
}

func newIngestCommand(global *GlobalOptions, use string) *cobra.Command {
	opts := &IngestOptions{GlobalOptions: global}

	cmd := &cobra.Command{
		Use:   use,
		Short: "Load station weather files into the store",
		Long: `Walk a directory of tab-separated station files and insert every
daily observation that is not already stored. Re-running over the same
files inserts nothing new.

Exit status is 0 when every line loaded, 2 when some lines or files were
rejected, and 1 on a fatal error.

Example:
  ingester --data-dir ./wx_data --db ./weather.db --workers 4 --aggregate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.DataDir, "data-dir", "", "directory of station files (env DATA_DIR)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "files ingested in parallel (env INGEST_WORKERS)")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 0, "observations per transaction (env INGEST_BATCH_SIZE)")
	cmd.Flags().DurationVar(&opts.FileTimeout, "file-timeout", 0, "deadline per file, 0 disables (env INGEST_FILE_TIMEOUT)")
	cmd.Flags().DurationVar(&opts.JobTimeout, "job-timeout", 0, "deadline for the whole run, 0 disables (env INGEST_JOB_TIMEOUT)")
	cmd.Flags().StringVar(&opts.StationStrategy, "station-strategy", "", "filename, hashed or fixed (env STATION_STRATEGY)")
	cmd.Flags().BoolVar(&opts.Aggregate, "aggregate", false, "recompute yearly statistics after ingesting")
	cmd.Flags().BoolVar(&opts.Migrate, "migrate", false, "apply the schema before ingesting")

	return cmd
}

func runIngest(cmd *cobra.Command, opts *IngestOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(opts.GlobalOptions)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		cfg.Ingest.DataDir = opts.DataDir
	}
	if flags.Changed("workers") {
		cfg.Ingest.Workers = opts.Workers
	}
	if flags.Changed("batch-size") {
		cfg.Ingest.BatchSize = opts.BatchSize
	}
	if flags.Changed("file-timeout") {
		cfg.Ingest.FileTimeout = opts.FileTimeout
	}
	if flags.Changed("job-timeout") {
		cfg.Ingest.JobTimeout = opts.JobTimeout
	}
	if flags.Changed("station-strategy") {
		cfg.Ingest.StationStrategy = opts.StationStrategy
	}

	e, err := setup(ctx, cmd, cfg, "wxdata-ingester")
	if err != nil {
		return err
	}
	defer e.Close()

	if opts.Migrate {
		if err := e.db.Migrate(ctx); err != nil {
			return WrapExitError(ExitFatal, "failed to apply schema", err)
		}
	}

	identifier, err := station.New(station.Options{
		Strategy: cfg.Ingest.StationStrategy,
		Codes:    cfg.Ingest.StationCodes,
		Code:     cfg.Ingest.StationCode,
		State:    cfg.Ingest.StationState,
	})
	if err != nil {
		return WrapExitError(ExitFatal, "invalid station strategy", err)
	}

	ingester := services.NewIngestionService(e.repo, identifier, e.logger, e.metrics, nil, services.IngestOptions{
		Workers:     cfg.Ingest.Workers,
		BatchSize:   cfg.Ingest.BatchSize,
		FileTimeout: cfg.Ingest.FileTimeout,
		JobTimeout:  cfg.Ingest.JobTimeout,
	})

	result, err := ingester.IngestDirectory(ctx, cfg.Ingest.DataDir)
	if result != nil {
		printIngestionSummary(cmd, result)
	}
	if err != nil {
		return WrapExitError(ExitFatal, "ingestion failed", err)
	}

	if opts.Aggregate {
		stats := services.NewStatisticsService(e.repo, e.logger, e.metrics, nil)
		affected, err := stats.Recompute(ctx)
		if err != nil {
			return WrapExitError(ExitFatal, "aggregation failed", err)
		}
		printf(cmd, "statistics rows written: %d\n", affected)
	}

	if result.HasLineErrors() {
		e.logger.Warn(ctx, "[INGEST_PARTIAL] Some input was rejected", logging.Fields{
			"skipped_lines": result.Skipped,
			"failed_files":  result.FailedFiles,
		})
		return NewExitError(ExitPartial, "ingestion completed with rejected input")
	}
	return nil
}

func printIngestionSummary(cmd *cobra.Command, r *services.IngestionResult) {
	for _, f := range r.Files {
		status := "ok"
		if f.Err != nil {
			status = "failed: " + f.Err.Error()
		}
		printf(cmd, "%s station=%s attempted=%d ingested=%d duplicates=%d skipped=%d %s\n",
			f.Path, f.StationCode, f.Attempted, f.Ingested, f.Duplicates, f.Skipped, status)
	}
	printf(cmd, "files=%d failed=%d attempted=%d ingested=%d duplicates=%d skipped=%d duration=%s\n",
		r.TotalFiles, r.FailedFiles, r.Attempted, r.Ingested, r.Duplicates, r.Skipped, r.Duration.Round(time.Millisecond))
}
