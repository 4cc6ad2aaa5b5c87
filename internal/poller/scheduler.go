package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

const (
	defaultRetryInterval    = 250 * time.Millisecond
	defaultMaxRetryInterval = 5 * time.Second
)

// StatusResult holds the decoded outcome of a single poll.
type StatusResult struct {
	// InstallID identifies the polled install.
	InstallID string
	// Status is the raw status string reported by the server.
	Status string
	// ClientToken is set only when Status is "done".
	ClientToken string
	// IPAddress is set only when Status is "done".
	IPAddress string
	// Reason is the server-reported failure reason, if any.
	Reason string
	// StatusCode is the HTTP status code of the last attempt.
	StatusCode int
	// Latency is the duration of the last attempt.
	Latency time.Duration
	// Attempts is the number of requests made for this poll, retries included.
	Attempts int
	// CheckedAt is when the poll completed.
	CheckedAt time.Time
	// Err is set when no attempt produced a usable status document.
	Err error
}

// Handler receives each poll result. It returns false to stop polling.
type Handler func(StatusResult) bool

// Config holds the parameters of a [Scheduler].
type Config struct {
	// InstallID is the install being watched.
	InstallID string
	// URL is the full status resource URL.
	URL string
	// Interval is the delay between a handled response and the next request.
	Interval time.Duration
	// Timeout bounds each individual request. Zero means no per-request timeout.
	Timeout time.Duration
	// MaxRetries is how many times a failed request is retried within one poll.
	MaxRetries int
	// RetryInterval is the initial backoff between retries.
	RetryInterval time.Duration
}

// Scheduler polls one status resource until its handler asks it to stop.
//
// The first request is made immediately on [Scheduler.Start]. The next
// request is scheduled Interval after the handler returns, so at most one
// request is in flight. Transport failures are retried with exponential
// backoff up to MaxRetries times before the failure is handed to the handler.
//
// All lifecycle methods (Start, Stop, Done) are safe for concurrent use.
type Scheduler struct {
	cfg     Config
	client  *Client
	handler Handler
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	started  bool
	stopped  bool
	done     chan struct{}
	doneOnce sync.Once
}

// NewScheduler creates a new polling [Scheduler].
//
// The scheduler must be started with [Scheduler.Start]. It stops on its own
// when the handler returns false, or when [Scheduler.Stop] is called.
func NewScheduler(cfg Config, client *Client, handler Handler, logger *slog.Logger) *Scheduler {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	if client == nil {
		client = NewClient(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:     cfg,
		client:  client,
		handler: handler,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Done returns a channel that is closed once the polling loop has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Start begins the polling loop in a background goroutine.
//
// Start is idempotent; subsequent calls after the first are no-ops.
// If Stop was called before Start, Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	pollCtx := s.ctx // capture under lock to avoid race
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.closeDone()
		s.loop(pollCtx)
	}()
}

// Stop cancels the polling loop and waits for it to exit.
//
// Stop is idempotent and safe to call before Start. It must not be called
// from inside the handler; return false from the handler instead.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.client.Close()
	s.closeDone()
}

func (s *Scheduler) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Scheduler) loop(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		result := s.poll(ctx)
		if ctx.Err() != nil {
			return
		}
		if !s.safeHandle(result) {
			return
		}
		timer.Reset(s.cfg.Interval)
	}
}

// poll fetches and decodes the status resource, retrying transport failures.
func (s *Scheduler) poll(ctx context.Context) StatusResult {
	var result StatusResult

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.RetryInterval
	b.MaxInterval = defaultMaxRetryInterval
	b.MaxElapsedTime = 0 // bounded by MaxRetries instead
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(s.cfg.MaxRetries, 0))), ctx)

	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		result = s.fetchOnce(ctx)
		if result.Err == nil {
			return nil
		}
		if errors.Is(result.Err, ErrNotFound) {
			return backoff.Permanent(result.Err)
		}
		return result.Err
	}, policy, func(err error, next time.Duration) {
		s.logger.Warn("status poll failed, retrying",
			"install_id", s.cfg.InstallID,
			"attempt", attempts,
			"retry_in", next.String(),
			"error", err.Error(),
		)
	})

	result.Attempts = attempts
	result.CheckedAt = time.Now()
	if err != nil && result.Err == nil {
		// context cancelled between attempts
		result.Err = err
	}
	return result
}

// fetchOnce performs a single request.
func (s *Scheduler) fetchOnce(ctx context.Context) StatusResult {
	reply := s.client.FetchStatus(ctx, s.cfg.URL, s.cfg.Timeout)
	return StatusResult{
		InstallID:   s.cfg.InstallID,
		Status:      reply.Document.Status,
		ClientToken: reply.Document.ClientToken,
		IPAddress:   reply.Document.IPAddress,
		Reason:      reply.Document.Error,
		StatusCode:  reply.StatusCode,
		Latency:     reply.Latency,
		Err:         reply.Err,
	}
}

// safeHandle calls the handler with panic recovery.
// A panicking handler is logged with a correlation ID and polling continues.
func (s *Scheduler) safeHandle(result StatusResult) (cont bool) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			s.logger.Error("status handler panic",
				"correlation_id", correlationID,
				"install_id", result.InstallID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			cont = true
		}
	}()
	return s.handler(result)
}
