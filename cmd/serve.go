package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"settleflow/internal/server"
	"settleflow/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the run trigger and metrics over HTTP",
	Long: `Start an HTTP server that runs the report on POST /api/v1/runs and exposes
/health, /metrics, /api/v1/runs/latest, /api/v1/logs and /api/v1/system.

Only one run executes at a time; concurrent triggers receive 409.`,
	RunE: serve,
}

func serve(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}

	log := logger.GetLogger()
	if cfg.Server.Resources.DiskPath == "" {
		cfg.Server.Resources.DiskPath = cfg.Paths.OutputDir
	}
	srv := server.NewServer(cfg.Server, a.aggregator, a.recorder.Handler(), log)
	if err := srv.Run(ctx); err != nil {
		return err
	}
	log.WithComponent("main").Info("shutdown complete")
	return nil
}
