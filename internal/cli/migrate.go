package cli

import (
	"github.com/spf13/cobra"

	"wxdata/pkg/logging"
)

// NewMigrateCommand is the standalone migrate binary.
func NewMigrateCommand() *cobra.Command {
	opts := &GlobalOptions{}
	cmd := newMigrateCommand(opts, "migrate")
	addGlobalFlags(cmd, opts)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return cmd
}

func newMigrateCommand(global *GlobalOptions, use string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: "Create the stations, observations and statistics tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig(global)
			if err != nil {
				return err
			}
			e, err := setup(ctx, cmd, cfg, "wxdata-migrate")
			if err != nil {
				return err
			}
			defer e.Close()

			e.logger.Info(ctx, "[MIGRATION_START] Applying schema", logging.Fields{
				"driver": e.db.DriverName(),
			})
			if err := e.db.Migrate(ctx); err != nil {
				return WrapExitError(ExitFatal, "migration failed", err)
			}
			printf(cmd, "schema applied (%s)\n", e.db.DriverName())
			return nil
		},
	}
}
