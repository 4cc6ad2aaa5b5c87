package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/provisionwatch/config"
)

// validateCmd validates a config file without starting anything.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a provisionwatch configuration file without running anything.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  provisionwatch validate -c config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	w, s := cfg.Watch, cfg.Server

	fmt.Printf("Config is valid!\n")
	fmt.Printf("Watch:\n")
	fmt.Printf("  Base URL:      %s\n", w.BaseURL)
	fmt.Printf("  Interval:      %s\n", w.Interval.Duration())
	fmt.Printf("  Max retries:   %d\n", *w.MaxRetries)
	fmt.Printf("  On failure:    %s\n", failurePolicy(w.ContinueOnFailure))
	if len(w.Stages) > 0 {
		statuses := make([]string, 0, len(w.Stages))
		for status := range w.Stages {
			statuses = append(statuses, status)
		}
		sort.Strings(statuses)
		for _, status := range statuses {
			st := w.Stages[status]
			fmt.Printf("  Stage %-22q %3d%% %s\n", status, st.Percent, st.Text)
		}
	}
	fmt.Printf("Server:\n")
	fmt.Printf("  Port:          %d\n", s.Port)
	fmt.Printf("  Provisioner:   %s\n", s.Provisioner)
	fmt.Printf("  Public URL:    %s\n", s.PublicURL)

	return nil
}

func failurePolicy(continueOnFailure bool) string {
	if continueOnFailure {
		return "keep polling"
	}
	return "stop"
}
