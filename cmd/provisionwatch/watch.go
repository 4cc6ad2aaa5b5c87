package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/provisionwatch"
	"github.com/jpalmerr/provisionwatch/config"
	"github.com/jpalmerr/provisionwatch/internal/term"
)

// watchCmd follows one install until it finishes.
var watchCmd = &cobra.Command{
	Use:   "watch <install-id>",
	Short: "Follow an install until it finishes",
	Long: `Poll the installer's /status/{install-id} endpoint and show progress.

The command exits 0 when the install is done and prints the client token and
dashboard link. It exits 1 when the install fails, the install ID is unknown,
or the installer cannot be reached.

Example:
  provisionwatch watch 3f1c9a0e-... --base-url https://installer.example.com
  provisionwatch watch 3f1c9a0e-... -c config.yaml --plain`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringP("config", "c", "", "path to config file")
	watchCmd.Flags().String("base-url", "", "installer server URL (overrides watch.base_url)")
	watchCmd.Flags().Duration("interval", 0, "delay between status requests (overrides watch.interval)")
	watchCmd.Flags().Bool("continue-on-failure", false, "keep polling after a failed status")
	watchCmd.Flags().Bool("plain", false, "print one line per status change instead of a spinner")
	watchCmd.Flags().String("log-level", "warn", "log level: debug, info, warn, error")
}

func runWatch(cmd *cobra.Command, args []string) error {
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
	opts := config.WatchOptions(cfg.Watch)

	if baseURL, _ := cmd.Flags().GetString("base-url"); baseURL != "" {
		opts = append(opts, provisionwatch.WithBaseURL(baseURL))
	}
	if interval, _ := cmd.Flags().GetDuration("interval"); interval != 0 {
		opts = append(opts, provisionwatch.WithInterval(interval))
	}
	if cmd.Flags().Changed("continue-on-failure") {
		cont, _ := cmd.Flags().GetBool("continue-on-failure")
		opts = append(opts, provisionwatch.WithContinueOnFailure(cont))
	}

	display := newDisplay(cmd)
	opts = append(opts, provisionwatch.WithDisplay(display), provisionwatch.WithLogger(logger))

	p, err := provisionwatch.New(args[0], opts...)
	if err != nil {
		return fmt.Errorf("invalid watch settings: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return watch(ctx, p, display)
}

// watch runs p and converts an interrupt into a clean exit.
func watch(ctx context.Context, p *provisionwatch.Poller, display *term.Display) error {
	if _, err := p.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			display.Stop()
			fmt.Fprintln(os.Stderr, "watch interrupted; the install continues on the server")
			return nil
		}
		return err
	}
	return nil
}

func newDisplay(cmd *cobra.Command) *term.Display {
	if plain, _ := cmd.Flags().GetBool("plain"); plain {
		return term.NewPlain(os.Stdout)
	}
	return term.New(os.Stdout)
}
