package provisionwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jpalmerr/provisionwatch/internal/poller"
)

const (
	defaultBaseURL        = "http://localhost:8080"
	defaultInterval       = time.Second
	defaultRequestTimeout = 10 * time.Second
	defaultMaxRetries     = 5
)

// Poller watches one install's status resource until it reaches a terminal
// status.
//
// Poller is created with [New] and driven by [Poller.Run]. Each response is
// translated into an [Update] using the stage table and handed to every
// registered [Display]. The typical lifecycle is:
//
//	p, err := provisionwatch.New(installID,
//	    provisionwatch.WithBaseURL("https://installer.example.com"),
//	    provisionwatch.WithDisplay(display),
//	)
//	if err != nil {
//	    return err
//	}
//	final, err := p.Run(ctx) // blocks until done, failed, or ctx cancelled
//
// A Poller runs at most once at a time; it may be run again after Run returns.
type Poller struct {
	installID         string
	statusURL         string
	interval          time.Duration
	requestTimeout    time.Duration
	maxRetries        int
	stages            StageTable
	dashboardPort     int
	continueOnFailure bool
	displays          []Display
	logger            *slog.Logger
	httpClient        *http.Client

	mu       sync.Mutex
	progress int
	last     Update
	running  bool
	cancel   context.CancelFunc
}

// New creates a [Poller] for the given install.
//
// The install ID is required and is used verbatim as the last path segment of
// the status URL. Defaults:
//   - Base URL: http://localhost:8080
//   - Interval: 1 second
//   - Request timeout: 10 seconds
//   - Max retries: 5
//   - Dashboard port: 1999
//
// Returns an error if the install ID is empty or if any option is invalid.
func New(installID string, opts ...Option) (*Poller, error) {
	if strings.TrimSpace(installID) == "" {
		return nil, errors.New("install ID is required")
	}

	cfg := &pollerConfig{
		baseURL:        defaultBaseURL,
		interval:       defaultInterval,
		requestTimeout: defaultRequestTimeout,
		maxRetries:     defaultMaxRetries,
		stages:         DefaultStages(),
		dashboardPort:  DefaultDashboardPort,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Poller{
		installID:         installID,
		statusURL:         StatusURL(cfg.baseURL, installID),
		interval:          cfg.interval,
		requestTimeout:    cfg.requestTimeout,
		maxRetries:        cfg.maxRetries,
		stages:            cfg.stages,
		dashboardPort:     cfg.dashboardPort,
		continueOnFailure: cfg.continueOnFailure,
		displays:          cfg.displays,
		logger:            logger.With("install_id", installID),
		httpClient:        cfg.httpClient,
		last: Update{
			InstallID: installID,
			Status:    StatusPendingAuth,
			State:     StatePending,
		},
	}, nil
}

// StatusURL returns the status resource URL for an install on baseURL.
func StatusURL(baseURL, installID string) string {
	return strings.TrimRight(baseURL, "/") + "/status/" + url.PathEscape(installID)
}

// InstallID returns the watched install ID.
func (p *Poller) InstallID() string {
	return p.installID
}

// Progress returns the currently displayed progress percentage.
func (p *Poller) Progress() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

// Last returns the most recent update.
func (p *Poller) Last() Update {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Run polls the status endpoint until a terminal status is observed.
//
// The first request is made immediately. After each response has been
// rendered, the next request is scheduled one interval later. Run returns:
//
//   - the final update and nil once the install is done
//   - an error wrapping [ErrInstallFailed] on "failed" or an unrecognized
//     status (unless [WithContinueOnFailure] is set)
//   - an error wrapping [ErrTransport] or [ErrUnknownInstall] when the status
//     endpoint cannot be read after retries
//   - ctx.Err() when ctx is cancelled or [Poller.Stop] is called
func (p *Poller) Run(ctx context.Context) (Update, error) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return Update{}, errors.New("poller is already running")
	}
	p.running = true
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	defer func() {
		cancel()
		p.mu.Lock()
		p.running = false
		p.cancel = nil
		p.mu.Unlock()
	}()

	var (
		final    Update
		finalErr error
		finished bool
	)

	scheduler := poller.NewScheduler(poller.Config{
		InstallID:  p.installID,
		URL:        p.statusURL,
		Interval:   p.interval,
		Timeout:    p.requestTimeout,
		MaxRetries: p.maxRetries,
	}, poller.NewClient(p.httpClient), func(result poller.StatusResult) bool {
		u, err := p.handle(result)
		if !u.Terminal {
			return true
		}
		final, finalErr, finished = u, err, true
		return false
	}, p.logger)

	p.logger.Info("watching install", "url", p.statusURL, "interval", p.interval.String())
	scheduler.Start(ctx)
	<-scheduler.Done()
	scheduler.Stop()

	if !finished {
		return p.Last(), ctx.Err()
	}
	return final, finalErr
}

// Stop cancels a running [Poller.Run]. It is a no-op if the poller is idle.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

// handle translates a poll result, records it, and renders it.
func (p *Poller) handle(result poller.StatusResult) (Update, error) {
	var (
		u   Update
		err error
	)

	if result.Err != nil {
		u, err = p.transportFailure(result)
	} else {
		u = interpret(StatusResponse{
			Status:      Status(result.Status),
			ClientToken: result.ClientToken,
			IPAddress:   result.IPAddress,
			Error:       result.Reason,
		}, p.stages, p.dashboardPort)

		if u.State.IsTerminal() && !u.Done() {
			if p.continueOnFailure {
				u.Terminal = false
			} else {
				err = failureError(u.Status, result.Reason)
				u.Err = err
			}
		}
	}
	u.InstallID = p.installID
	u.CheckedAt = result.CheckedAt

	p.mu.Lock()
	p.progress = u.Percent
	p.last = u
	p.mu.Unlock()

	p.log(u, result)
	for _, d := range p.displays {
		renderSafe(d, u, p.logger)
	}
	return u, err
}

// transportFailure builds the terminal update for an unreadable status endpoint.
// The displayed progress is left where it was.
func (p *Poller) transportFailure(result poller.StatusResult) (Update, error) {
	var err error
	if errors.Is(result.Err, poller.ErrNotFound) {
		err = fmt.Errorf("%w %q: %w", ErrUnknownInstall, p.installID, result.Err)
	} else {
		err = fmt.Errorf("%w after %d attempts: %w", ErrTransport, result.Attempts, result.Err)
	}

	last := p.Last()
	return Update{
		Status:   last.Status,
		State:    last.State,
		Text:     "Lost contact with installer",
		Percent:  last.Percent,
		Terminal: true,
		Err:      err,
	}, err
}

func (p *Poller) log(u Update, result poller.StatusResult) {
	attrs := []any{
		"status", u.Status.String(),
		"state", u.State.String(),
		"percent", u.Percent,
		"latency_ms", result.Latency.Milliseconds(),
		"attempts", result.Attempts,
	}
	switch {
	case u.Err != nil:
		p.logger.Error("install watch ended", append(attrs, "error", u.Err.Error())...)
	case u.Done():
		p.logger.Info("install complete", append(attrs, "ip_address", u.IPAddress)...)
	case u.State.IsTerminal():
		p.logger.Warn("install failed, still polling", attrs...)
	default:
		p.logger.Debug("status polled", attrs...)
	}
}

// interpret maps a status response onto the stage table.
//
// Known non-terminal statuses take their stage's text and percent. "done"
// yields 100 and the access URL. "failed" and unrecognized statuses yield 0
// and a failure line.
func interpret(resp StatusResponse, stages StageTable, dashboardPort int) Update {
	u := Update{
		Status: resp.Status,
		State:  resp.Status.State(),
	}

	switch u.State {
	case StateDone:
		u.Text = completeText
		u.Percent = 100
		u.ClientToken = resp.ClientToken
		u.IPAddress = resp.IPAddress
		u.AccessURL = AccessURL(resp.ClientToken, resp.IPAddress, dashboardPort)
		u.Terminal = true
	case StateFailed, StateUnknown:
		u.Text = failureText(resp.Status, resp.Error)
		u.Percent = 0
		u.Terminal = true
	default:
		stage := stages[resp.Status]
		u.Text = stage.Text
		u.Percent = stage.Percent
	}
	return u
}
