package config

import (
	"log/slog"
	"strings"

	"golang.org/x/oauth2"

	"github.com/jpalmerr/provisionwatch"
	"github.com/jpalmerr/provisionwatch/internal/digitalocean"
	"github.com/jpalmerr/provisionwatch/internal/install"
)

// StageTable converts the configured stage overrides.
func (w WatchConfig) StageTable() provisionwatch.StageTable {
	table := make(provisionwatch.StageTable, len(w.Stages))
	for status, sc := range w.Stages {
		table[provisionwatch.Status(status)] = provisionwatch.Stage{Text: sc.Text, Percent: sc.Percent}
	}
	return table
}

// WatchOptions converts the watch section into poller options.
func WatchOptions(w WatchConfig) []provisionwatch.Option {
	opts := []provisionwatch.Option{
		provisionwatch.WithBaseURL(w.BaseURL),
		provisionwatch.WithInterval(w.Interval.Duration()),
		provisionwatch.WithDashboardPort(w.DashboardPort),
		provisionwatch.WithContinueOnFailure(w.ContinueOnFailure),
	}
	if w.RequestTimeout > 0 {
		opts = append(opts, provisionwatch.WithRequestTimeout(w.RequestTimeout.Duration()))
	}
	if w.MaxRetries != nil {
		opts = append(opts, provisionwatch.WithMaxRetries(*w.MaxRetries))
	}
	if len(w.Stages) > 0 {
		opts = append(opts, provisionwatch.WithStages(w.StageTable()))
	}
	return opts
}

// ProvisionerFactory returns the factory selected by server.provisioner.
func ProvisionerFactory(s ServerConfig, logger *slog.Logger) install.ProvisionerFactory {
	if s.Provisioner == ProvisionerDigitalOcean {
		return digitalocean.Factory(digitalocean.Options{
			Region:       s.Droplet.Region,
			Size:         s.Droplet.Size,
			Image:        s.Droplet.Image,
			VolumeSizeGB: s.Droplet.VolumeSizeGB,
			Logger:       logger,
		})
	}
	return install.SimulatedFactory(install.Simulated{
		Delay:     s.Simulate.delay(),
		FailStage: s.Simulate.FailStage,
	})
}

// OAuth returns the OAuth client config for the digitalocean provisioner and
// nil for the simulated one.
func OAuth(s ServerConfig) *oauth2.Config {
	if s.Provisioner != ProvisionerDigitalOcean {
		return nil
	}
	redirect := strings.TrimRight(s.PublicURL, "/") + "/progress"
	return digitalocean.OAuthConfig(s.OAuth.ClientID, s.OAuth.ClientSecret, redirect)
}
