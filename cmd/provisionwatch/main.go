// Package main is the entry point for the provisionwatch CLI.
//
// Usage:
//
//	provisionwatch watch <install-id>         # Follow an install until it finishes
//	provisionwatch serve -c config.yaml       # Run the installer server
//	provisionwatch deploy                     # Install Chain Core from the terminal
//	provisionwatch validate -c config.yaml    # Validate configuration
//	provisionwatch version                    # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/provisionwatch/config"
	"github.com/jpalmerr/provisionwatch/internal/term"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "provisionwatch",
	Short: "Install Chain Core on DigitalOcean and watch it finish",
	Long: `provisionwatch installs Chain Core Developer Edition on a DigitalOcean
droplet and reports its progress.

The installer server walks each install through its stages:

  pending auth → waiting for ssh → waiting for http → creating client token → done

and exposes the current status at /status/{install-id}. The watch command
polls that endpoint, shows a progress bar, and prints the client token and
dashboard link when the install completes.

Quick start:
  1. Run: provisionwatch serve
  2. Open http://localhost:8080 in your browser to start an install
  3. Or follow one from the terminal: provisionwatch watch <install-id>

Variables in a .env file in the working directory are loaded at startup.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// a missing .env file is fine
		_ = godotenv.Load()
		term.DisableColorBasedOnEnvVar()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this provisionwatch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("provisionwatch %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// newLogger creates a JSON logger for CLI use.
func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// parseLevel maps a --log-level flag value to a slog level.
func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// loadConfig loads the file named by the --config flag, or the defaults when
// the flag is empty.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
