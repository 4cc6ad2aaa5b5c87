package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/provisionwatch/config"
	"github.com/jpalmerr/provisionwatch/internal/install"
	"github.com/jpalmerr/provisionwatch/internal/server"
	"github.com/jpalmerr/provisionwatch/internal/store"
	"github.com/jpalmerr/provisionwatch/web"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd runs the installer server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the installer server",
	Long: `Run the installer HTTP server.

The server will:
  - Start an install for every visitor of /
  - Send them through DigitalOcean OAuth (or straight on, in simulated mode)
  - Deploy Chain Core and report each stage at /status/{install-id}

Without a config file the server runs in simulated mode on port 8080.
The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  provisionwatch serve
  provisionwatch serve -c config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file")
	serveCmd.Flags().String("log-level", "info", "log level: debug, info, warn, error")
}

func runServe(cmd *cobra.Command, args []string) error {
	levelFlag, _ := cmd.Flags().GetString("log-level")
	level, err := parseLevel(levelFlag)
	if err != nil {
		return err
	}
	logger := newLogger(level)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sc := cfg.Server

	logger.Info("starting installer",
		"host", sc.Host,
		"port", sc.Port,
		"provisioner", sc.Provisioner,
		"public_url", sc.PublicURL,
	)

	st := store.NewMemoryStore()
	runner := install.NewRunner(st, config.ProvisionerFactory(sc, logger), sc.InstallTimeout.Duration(), logger)
	srv := server.NewServer(st, runner, config.OAuth(sc), sc.Host, sc.Port, web.Assets, logger)

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	<-ctx.Done()
	waitForInstalls(runner, logger)
	return nil
}

// waitForInstalls gives running installs time to record their outcome after
// the server context ends.
func waitForInstalls(runner *install.Runner, logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		runner.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out",
			"timeout", shutdownTimeout.String(),
			"action", "forcing exit",
		)
	}
}
