package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/provisionwatch"
	"github.com/jpalmerr/provisionwatch/config"
	"github.com/jpalmerr/provisionwatch/internal/digitalocean"
	"github.com/jpalmerr/provisionwatch/internal/install"
	"github.com/jpalmerr/provisionwatch/internal/server"
	"github.com/jpalmerr/provisionwatch/internal/store"
	"github.com/jpalmerr/provisionwatch/web"
)

const accessTokenEnvVar = "DIGITALOCEAN_ACCESS_TOKEN"

// deployCmd installs Chain Core without the browser flow.
var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Install Chain Core from the terminal",
	Long: `Install Chain Core on DigitalOcean using a personal access token.

The command runs the installer in-process on a loopback port, starts one
install and watches it exactly as "provisionwatch watch" would. The token is
read from DIGITALOCEAN_ACCESS_TOKEN (a .env file works) and is not revoked.

Use --simulate to walk through the stages without creating a droplet.

Example:
  DIGITALOCEAN_ACCESS_TOKEN=... provisionwatch deploy --region sfo3
  provisionwatch deploy --simulate`,
	SilenceUsage: true,
	RunE:         runDeploy,
}

func init() {
	rootCmd.AddCommand(deployCmd)

	deployCmd.Flags().StringP("config", "c", "", "path to config file")
	deployCmd.Flags().Bool("simulate", false, "use the simulated provisioner")
	deployCmd.Flags().String("region", "", "droplet region (overrides server.droplet.region)")
	deployCmd.Flags().String("size", "", "droplet size slug (overrides server.droplet.size)")
	deployCmd.Flags().Int64("volume-size", 0, "block storage size in GB (overrides server.droplet.volume_size_gb)")
	deployCmd.Flags().Bool("plain", false, "print one line per status change instead of a spinner")
	deployCmd.Flags().String("log-level", "warn", "log level: debug, info, warn, error")
}

func runDeploy(cmd *cobra.Command, args []string) error {
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

	var (
		factory     install.ProvisionerFactory
		accessToken string
	)
	if simulate, _ := cmd.Flags().GetBool("simulate"); simulate {
		factory = config.ProvisionerFactory(config.ServerConfig{
			Provisioner: config.ProvisionerSimulated,
			Simulate:    sc.Simulate,
		}, logger)
	} else {
		accessToken = os.Getenv(accessTokenEnvVar)
		if accessToken == "" {
			return fmt.Errorf("%s is not set", accessTokenEnvVar)
		}
		opts := digitalocean.Options{
			Region:       sc.Droplet.Region,
			Size:         sc.Droplet.Size,
			Image:        sc.Droplet.Image,
			VolumeSizeGB: sc.Droplet.VolumeSizeGB,
			SkipRevoke:   true,
			Logger:       logger,
		}
		if region, _ := cmd.Flags().GetString("region"); region != "" {
			opts.Region = region
		}
		if size, _ := cmd.Flags().GetString("size"); size != "" {
			opts.Size = size
		}
		if gb, _ := cmd.Flags().GetInt64("volume-size"); gb > 0 {
			opts.VolumeSizeGB = gb
		}
		factory = digitalocean.Factory(opts)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	// outlives the watch so an interrupted deploy is still recorded as failed
	installCtx, cancelInstall := context.WithCancel(context.Background())
	defer cancelInstall()

	st := store.NewMemoryStore()
	runner := install.NewRunner(st, factory, sc.InstallTimeout.Duration(), logger)
	srv := server.NewServer(st, runner, nil, "127.0.0.1", 0, web.Assets, logger)
	if err := srv.Start(installCtx); err != nil {
		return fmt.Errorf("start local installer: %w", err)
	}

	id := uuid.NewString()
	if err := runner.Register(id); err != nil {
		return err
	}
	runner.Go(installCtx, id, accessToken)
	fmt.Fprintf(os.Stderr, "install %s started\n", id)

	display := newDisplay(cmd)
	p, err := provisionwatch.New(id, append(config.WatchOptions(cfg.Watch),
		provisionwatch.WithBaseURL("http://"+srv.Addr()),
		provisionwatch.WithDisplay(display),
		provisionwatch.WithLogger(logger),
	)...)
	if err != nil {
		return err
	}

	err = watch(ctx, p, display)
	if ctx.Err() != nil {
		cancelInstall()
	}
	waitForInstalls(runner, logger)
	if errors.Is(err, provisionwatch.ErrInstallFailed) {
		return fmt.Errorf("install %s: %w", id, err)
	}
	return err
}
