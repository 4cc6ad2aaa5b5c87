// Package config provides YAML configuration parsing for provisionwatch.
//
// One file configures both sides: the watch section tunes the status poller
// used by "provisionwatch watch", and the server section configures the
// installer run by "provisionwatch serve".
//
// Example configuration:
//
//	watch:
//	  base_url: http://localhost:8080
//	  interval: 1s
//	  max_retries: 5
//	  stages:
//	    waiting for http:
//	      text: Starting Chain Core…
//	      percent: 50
//
//	server:
//	  port: 8080
//	  provisioner: digitalocean
//	  public_url: https://installer.example.com
//	  oauth:
//	    client_id: ${DO_CLIENT_ID}
//	    client_secret: ${DO_CLIENT_SECRET}
//	  droplet:
//	    region: ${DO_REGION:-nyc1}
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/provisionwatch"
	"github.com/jpalmerr/provisionwatch/internal/install"
)

// minInterval is the smallest accepted watch interval.
const minInterval = 100 * time.Millisecond

// Provisioner names accepted in server.provisioner.
const (
	ProvisionerSimulated    = "simulated"
	ProvisionerDigitalOcean = "digitalocean"
)

// Config is the root configuration structure.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	Watch  WatchConfig  `yaml:"watch"`
	Server ServerConfig `yaml:"server"`
}

// WatchConfig configures the status poller.
type WatchConfig struct {
	// BaseURL is the installer server URL. Supports ${VAR} substitution.
	// Defaults to http://localhost:8080.
	BaseURL string `yaml:"base_url"`

	// Interval is the delay between status requests. Defaults to 1s.
	Interval Duration `yaml:"interval"`

	// RequestTimeout bounds each status request. Defaults to 10s.
	RequestTimeout Duration `yaml:"request_timeout"`

	// MaxRetries is the number of retries after a transport error.
	// Defaults to 5; 0 disables retries.
	MaxRetries *int `yaml:"max_retries"`

	// ContinueOnFailure keeps polling after a "failed" status.
	ContinueOnFailure bool `yaml:"continue_on_failure"`

	// DashboardPort is the Chain Core dashboard port used in the access URL.
	// Defaults to 1999.
	DashboardPort int `yaml:"dashboard_port"`

	// Stages overrides the status line and percent per status.
	Stages map[string]StageConfig `yaml:"stages"`
}

// StageConfig is the display for one non-terminal status.
type StageConfig struct {
	Text    string `yaml:"text"`
	Percent int    `yaml:"percent"`
}

// ServerConfig configures the installer server.
type ServerConfig struct {
	// Host is the listen address. Empty listens on all interfaces.
	Host string `yaml:"host"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// PublicURL is where users reach the server; the OAuth redirect URL is
	// PublicURL + "/progress". Defaults to http://localhost:{port}.
	PublicURL string `yaml:"public_url"`

	// Provisioner is "simulated" (default) or "digitalocean".
	Provisioner string `yaml:"provisioner"`

	// InstallTimeout bounds one install. Defaults to 20m.
	InstallTimeout Duration `yaml:"install_timeout"`

	OAuth    OAuthConfig    `yaml:"oauth"`
	Droplet  DropletConfig  `yaml:"droplet"`
	Simulate SimulateConfig `yaml:"simulate"`
}

// OAuthConfig holds the DigitalOcean OAuth application credentials.
// Both values support ${VAR} substitution.
type OAuthConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// DropletConfig selects the droplet that hosts Chain Core.
// Empty fields use the provisioner's defaults.
type DropletConfig struct {
	Region       string `yaml:"region"`
	Size         string `yaml:"size"`
	Image        string `yaml:"image"`
	VolumeSizeGB int64  `yaml:"volume_size_gb"`
}

// SimulateConfig tunes the simulated provisioner.
type SimulateConfig struct {
	// StageDelay is how long each stage takes. Defaults to 2s; 0s is allowed.
	StageDelay *Duration `yaml:"stage_delay"`

	// FailStage makes one stage fail: deploy, ssh, http or token.
	FailStage string `yaml:"fail_stage"`
}

// delay returns the stage delay, or zero when unset.
func (s SimulateConfig) delay() time.Duration {
	if s.StageDelay == nil {
		return 0
	}
	return s.StageDelay.Duration()
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg, err := Parse(nil)
	if err != nil {
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return cfg
}

// Parse parses YAML configuration data, applies defaults and validates it.
//
// Environment variables are expanded in base_url, public_url, the droplet
// region and the OAuth credentials.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	w := &c.Watch
	if w.BaseURL == "" {
		w.BaseURL = "http://localhost:8080"
	}
	if w.Interval == 0 {
		w.Interval = Duration(time.Second)
	}
	if w.RequestTimeout == 0 {
		w.RequestTimeout = Duration(10 * time.Second)
	}
	if w.MaxRetries == nil {
		n := 5
		w.MaxRetries = &n
	}
	if w.DashboardPort == 0 {
		w.DashboardPort = provisionwatch.DefaultDashboardPort
	}

	s := &c.Server
	if s.Port == 0 {
		s.Port = 8080
	}
	if s.Provisioner == "" {
		s.Provisioner = ProvisionerSimulated
	}
	if s.InstallTimeout == 0 {
		s.InstallTimeout = Duration(20 * time.Minute)
	}
	if s.Simulate.StageDelay == nil {
		d := Duration(2 * time.Second)
		s.Simulate.StageDelay = &d
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if err := c.Watch.expandAndValidate(); err != nil {
		return err
	}
	return c.Server.expandAndValidate()
}

func (w *WatchConfig) expandAndValidate() error {
	expanded, err := expandEnvVars(w.BaseURL)
	if err != nil {
		return fmt.Errorf("watch.base_url: %w", err)
	}
	w.BaseURL = expanded
	if err := validateHTTPURL(w.BaseURL); err != nil {
		return fmt.Errorf("watch.base_url: %w", err)
	}

	if w.Interval.Duration() < minInterval {
		return fmt.Errorf("watch.interval must be at least %s, got %s", minInterval, w.Interval.Duration())
	}
	if w.RequestTimeout.Duration() < 0 {
		return fmt.Errorf("watch.request_timeout cannot be negative, got %s", w.RequestTimeout.Duration())
	}
	if *w.MaxRetries < 0 {
		return fmt.Errorf("watch.max_retries cannot be negative, got %d", *w.MaxRetries)
	}
	if w.DashboardPort < 1 || w.DashboardPort > 65535 {
		return fmt.Errorf("watch.dashboard_port must be between 1 and 65535, got %d", w.DashboardPort)
	}

	if len(w.Stages) > 0 {
		if err := w.StageTable().Validate(); err != nil {
			return fmt.Errorf("watch.stages: %w", err)
		}
	}
	return nil
}

func (s *ServerConfig) expandAndValidate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", s.Port)
	}

	if s.PublicURL == "" {
		s.PublicURL = fmt.Sprintf("http://localhost:%d", s.Port)
	}
	expanded, err := expandEnvVars(s.PublicURL)
	if err != nil {
		return fmt.Errorf("server.public_url: %w", err)
	}
	s.PublicURL = expanded
	if err := validateHTTPURL(s.PublicURL); err != nil {
		return fmt.Errorf("server.public_url: %w", err)
	}

	if s.InstallTimeout.Duration() < 0 {
		return fmt.Errorf("server.install_timeout cannot be negative, got %s", s.InstallTimeout.Duration())
	}

	for name, field := range map[string]*string{
		"server.oauth.client_id":     &s.OAuth.ClientID,
		"server.oauth.client_secret": &s.OAuth.ClientSecret,
		"server.droplet.region":      &s.Droplet.Region,
	} {
		expanded, err := expandEnvVars(*field)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*field = expanded
	}

	if s.Droplet.VolumeSizeGB < 0 {
		return fmt.Errorf("server.droplet.volume_size_gb cannot be negative, got %d", s.Droplet.VolumeSizeGB)
	}

	switch s.Provisioner {
	case ProvisionerSimulated:
		if d := s.Simulate.delay(); d < 0 {
			return fmt.Errorf("server.simulate.stage_delay cannot be negative, got %s", d)
		}
		stages := []string{install.StageDeploy, install.StageSSH, install.StageHTTP, install.StageToken}
		if s.Simulate.FailStage != "" && !slices.Contains(stages, s.Simulate.FailStage) {
			return fmt.Errorf("server.simulate.fail_stage must be one of %v, got %q", stages, s.Simulate.FailStage)
		}
	case ProvisionerDigitalOcean:
		if s.OAuth.ClientID == "" {
			return fmt.Errorf("server.oauth.client_id is required for provisioner %q", s.Provisioner)
		}
		if s.OAuth.ClientSecret == "" {
			return fmt.Errorf("server.oauth.client_secret is required for provisioner %q", s.Provisioner)
		}
	default:
		return fmt.Errorf("server.provisioner must be %q or %q, got %q",
			ProvisionerSimulated, ProvisionerDigitalOcean, s.Provisioner)
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url must have a host")
	}
	return nil
}
