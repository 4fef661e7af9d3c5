package cli

import (
	"github.com/spf13/cobra"

	"wxdata/internal/services"
)

// NewAggregateCommand is the standalone aggregator binary.
func NewAggregateCommand() *cobra.Command {
	opts := &GlobalOptions{}
	cmd := newAggregateCommand(opts, "aggregator")
	addGlobalFlags(cmd, opts)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return cmd
}

func newAggregateCommand(global *GlobalOptions, use string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: "Recompute yearly statistics from stored observations",
		Long: `Replace every per-station yearly statistic with values computed from
the observations currently stored. Missing readings (-9999) are ignored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig(global)
			if err != nil {
				return err
			}
			e, err := setup(ctx, cmd, cfg, "wxdata-aggregator")
			if err != nil {
				return err
			}
			defer e.Close()

			stats := services.NewStatisticsService(e.repo, e.logger, e.metrics, nil)
			affected, err := stats.Recompute(ctx)
			if err != nil {
				return WrapExitError(ExitFatal, "aggregation failed", err)
			}
			printf(cmd, "statistics rows written: %d\n", affected)
			return nil
		},
	}
}
