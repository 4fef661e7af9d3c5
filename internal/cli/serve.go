package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"wxdata/internal/handlers"
	"wxdata/internal/services"
	"wxdata/pkg/logging"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*GlobalOptions
	Host         string
	Port         int
	StatsRefresh time.Duration
}

// NewServeCommand is the standalone server binary.
func NewServeCommand() *cobra.Command {
	opts := &GlobalOptions{}
	cmd := newServeCommand(opts, "server")
	addGlobalFlags(cmd, opts)
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	return cmd
}

func newServeCommand(global *GlobalOptions, use string) *cobra.Command {
	opts := &ServeOptions{GlobalOptions: global}

	cmd := &cobra.Command{
		Use:   use,
		Short: "Serve observations and statistics over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Host, "host", "", "listen host (env SERVER_HOST)")
	cmd.Flags().IntVar(&opts.Port, "port", 0, "listen port (env SERVER_PORT)")
	cmd.Flags().DurationVar(&opts.StatsRefresh, "stats-refresh", 0, "recompute statistics on this interval, 0 disables (env STATS_REFRESH_INTERVAL)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(opts.GlobalOptions)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = opts.Host
	}
	if flags.Changed("port") {
		cfg.Server.Port = opts.Port
	}
	if flags.Changed("stats-refresh") {
		cfg.Stats.RefreshInterval = opts.StatsRefresh
	}

	e, err := setup(ctx, cmd, cfg, "wxdata-api")
	if err != nil {
		return err
	}
	defer e.Close()

	e.logger.Info(ctx, "[STARTUP] Starting weather API server", logging.Fields{
		"version":       Version,
		"server_host":   cfg.Server.Host,
		"server_port":   cfg.Server.Port,
		"db_driver":     cfg.Database.Driver,
		"stats_refresh": cfg.Stats.RefreshInterval.String(),
	})

	weatherService := services.NewWeatherService(e.repo)
	statsService := services.NewStatisticsService(e.repo, e.logger, e.metrics, nil)
	handler := handlers.NewWeatherHandler(weatherService, statsService, e.logger, e.metrics)
	router := handlers.NewRouter(handler, promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	if cfg.Stats.RefreshInterval > 0 {
		go func() {
			if err := statsService.StartScheduler(ctx, cfg.Stats.RefreshInterval); err != nil {
				e.logger.Error(ctx, "[STATS_SCHEDULE_ERROR] Statistics refresh not started", logging.Fields{}, err)
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		e.logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			e.logger.Error(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
			return WrapExitError(ExitFatal, "server failed", err)
		}
	case <-ctx.Done():
	}

	e.logger.Info(context.Background(), "[SHUTDOWN] Shutting down server...", logging.Fields{})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		e.logger.Error(shutdownCtx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
		return WrapExitError(ExitFatal, "shutdown failed", err)
	}

	e.logger.Info(context.Background(), "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
	return nil
}
