package serve

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/duskdb/duskdb/internal/config"
	"github.com/duskdb/duskdb/internal/engine"
	"github.com/duskdb/duskdb/internal/logger"
	"github.com/duskdb/duskdb/internal/server"
)

var (
	configPath string

	// ServeCmd starts the database server. Configuration comes from the
	// config file, overridable with DUSKDB_ environment variables.
	ServeCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the DuskDB server",
		Long: `Start the DuskDB server with the specified configuration.
Settings can be provided via a config.yaml file or environment variables
prefixed with DUSKDB_ (e.g. DUSKDB_SERVER_PORT=6380).`,
		RunE: run,
	}
)

func init() {
	ServeCmd.Flags().StringVar(&configPath, "config", ".", "directory containing config.yaml")
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	defer log.Sync() //nolint:errcheck

	log.Info("DuskDB starting",
		zap.String("version", engine.Version),
		zap.String("port", cfg.Server.Port),
	)

	eng, err := engine.New(cfg, log)
	if err != nil {
		log.Error("engine initialization failed", zap.Error(err))
		return err
	}

	srv := server.New(eng, cfg, log)
	if err := srv.Listen(); err != nil {
		log.Error("listener error", zap.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve()
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown timed out, forcing exit", zap.Error(err))
	} else {
		log.Info("all connections closed gracefully")
	}

	if err := eng.Close(); err != nil {
		log.Error("engine close failed", zap.Error(err))
	}

	log.Info("DuskDB stopped")
	return nil
}
