package provisionwatch

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// pollerConfig holds mutable state during Poller construction.
type pollerConfig struct {
	baseURL           string
	interval          time.Duration
	requestTimeout    time.Duration
	maxRetries        int
	stages            StageTable
	dashboardPort     int
	continueOnFailure bool
	displays          []Display
	logger            *slog.Logger
	httpClient        *http.Client
}

// Option is a function that configures a [Poller] during construction.
//
// Options return an error if validation fails.
type Option func(*pollerConfig) error

// WithBaseURL sets the installer server the status endpoint lives on.
// The poller requests {baseURL}/status/{InstallID}.
// Defaults to http://localhost:8080.
//
// Returns an error if the URL is not absolute http or https.
func WithBaseURL(rawURL string) Option {
	return func(cfg *pollerConfig) error {
		u, err := url.Parse(rawURL)
		if err != nil {
			return err
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.New("base URL scheme must be http or https")
		}
		if u.Host == "" {
			return errors.New("base URL must include a host")
		}
		cfg.baseURL = rawURL
		return nil
	}
}

// WithInterval sets the delay between a handled response and the next poll.
// Defaults to 1 second.
//
// Returns an error if the duration is zero or negative.
func WithInterval(d time.Duration) Option {
	return func(cfg *pollerConfig) error {
		if d <= 0 {
			return errors.New("polling interval must be positive")
		}
		cfg.interval = d
		return nil
	}
}

// WithRequestTimeout bounds each individual status request.
// Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *pollerConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		cfg.requestTimeout = d
		return nil
	}
}

// WithMaxRetries sets how many times a failed status request is retried,
// with exponential backoff, before [Poller.Run] gives up with [ErrTransport].
// Zero disables retries. Defaults to 5.
//
// Returns an error if n is negative.
func WithMaxRetries(n int) Option {
	return func(cfg *pollerConfig) error {
		if n < 0 {
			return errors.New("max retries cannot be negative")
		}
		cfg.maxRetries = n
		return nil
	}
}

// WithStages overrides entries of the default stage table.
// Statuses not present in stages keep their default text and percent.
//
// Returns an error if any stage is invalid (see [StageTable.Validate]).
func WithStages(stages StageTable) Option {
	return func(cfg *pollerConfig) error {
		if err := stages.Validate(); err != nil {
			return err
		}
		cfg.stages = stages.merge()
		return nil
	}
}

// WithDashboardPort sets the port used in the generated access URL.
// Defaults to [DefaultDashboardPort].
//
// Returns an error if the port is outside the valid range (1-65535).
func WithDashboardPort(port int) Option {
	return func(cfg *pollerConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("dashboard port must be between 1 and 65535")
		}
		cfg.dashboardPort = port
		return nil
	}
}

// WithContinueOnFailure keeps polling after a "failed" or unrecognized status
// instead of stopping. Failure updates are still rendered with progress 0.
// Off by default.
func WithContinueOnFailure(enabled bool) Option {
	return func(cfg *pollerConfig) error {
		cfg.continueOnFailure = enabled
		return nil
	}
}

// WithDisplay registers a [Display] that receives every update.
//
// Multiple displays may be registered; they render in registration order.
// Nil displays are silently ignored.
func WithDisplay(d Display) Option {
	return func(cfg *pollerConfig) error {
		if d == nil {
			return nil
		}
		cfg.displays = append(cfg.displays, d)
		return nil
	}
}

// WithUpdateCallback registers a function that receives every update.
// It is shorthand for WithDisplay(DisplayFunc(cb)).
//
// Nil callbacks are silently ignored.
func WithUpdateCallback(cb func(Update)) Option {
	if cb == nil {
		return WithDisplay(nil)
	}
	return WithDisplay(DisplayFunc(cb))
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *pollerConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithHTTPClient sets the HTTP client used for status requests.
// Request timeouts are still applied per request.
//
// Returns an error if the client is nil.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *pollerConfig) error {
		if c == nil {
			return errors.New("http client cannot be nil")
		}
		cfg.httpClient = c
		return nil
	}
}
