// Package install drives a Chain Core install through its workflow stages.
//
// A [Runner] owns the status transitions of each install:
//
//	pending auth → waiting for ssh → waiting for http → creating client token → done
//
// Any stage error moves the install to "failed" with the error text as the
// reason. The stages themselves are performed by a [Provisioner].
package install

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jpalmerr/provisionwatch"
	"github.com/jpalmerr/provisionwatch/internal/store"
)

const (
	defaultInstallTimeout = 20 * time.Minute
	closeTimeout          = 10 * time.Second
	dropletNamePrefix     = "chain-core-"
)

// Runner starts and tracks install workflows.
type Runner struct {
	store          store.Store
	newProvisioner ProvisionerFactory
	timeout        time.Duration
	logger         *slog.Logger

	wg sync.WaitGroup
}

// NewRunner creates a [Runner] that records progress in st.
//
// A non-positive timeout falls back to 20 minutes per install.
func NewRunner(st store.Store, factory ProvisionerFactory, timeout time.Duration, logger *slog.Logger) *Runner {
	if timeout <= 0 {
		timeout = defaultInstallTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:          st,
		newProvisioner: factory,
		timeout:        timeout,
		logger:         logger,
	}
}

// Register creates the install record in its initial "pending auth" state.
func (r *Runner) Register(id string) error {
	_, err := r.store.Create(id, provisionwatch.StatusPendingAuth.String())
	return err
}

// Go runs the workflow for id in a background goroutine.
// Use [Runner.Wait] to block until all started workflows have returned.
func (r *Runner) Go(ctx context.Context, id, accessToken string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = r.Run(ctx, id, accessToken)
	}()
}

// Wait blocks until every workflow started with [Runner.Go] has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Run performs the install workflow for a registered install.
//
// Every transition is written to the store. On failure the install is marked
// "failed" and the error is returned.
func (r *Runner) Run(ctx context.Context, id, accessToken string) (err error) {
	if _, ok := r.store.Get(id); !ok {
		return fmt.Errorf("install %q: %w", id, store.ErrNotFound)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	logger := r.logger.With("install_id", id)
	start := time.Now()

	defer func() {
		if err != nil {
			r.fail(id, err)
			logger.Error("install failed", "error", err.Error(), "elapsed", time.Since(start).String())
		}
	}()

	p, err := r.newProvisioner(accessToken)
	if err != nil {
		return fmt.Errorf("create provisioner: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if cerr := p.Close(closeCtx); cerr != nil {
			logger.Warn("failed to release provisioner", "error", cerr.Error())
		}
	}()

	logger.Info("deploying droplet")
	m, err := p.Deploy(ctx, DropletName(id))
	if err != nil {
		return fmt.Errorf("deploy: %w", err)
	}
	if err := r.advance(id, provisionwatch.StatusWaitingSSH, func(i *store.Install) {
		i.IPAddress = m.IPv4Address
	}); err != nil {
		return err
	}
	logger.Info("droplet created", "machine_id", m.ID, "ip_address", m.IPv4Address)

	if err := p.WaitForSSH(ctx, m); err != nil {
		return fmt.Errorf("wait for ssh: %w", err)
	}
	if err := r.advance(id, provisionwatch.StatusWaitingHTTP, nil); err != nil {
		return err
	}

	if err := p.WaitForHTTP(ctx, m); err != nil {
		return fmt.Errorf("wait for http: %w", err)
	}
	if err := r.advance(id, provisionwatch.StatusCreatingToken, nil); err != nil {
		return err
	}

	token, err := p.CreateClientToken(ctx, m)
	if err != nil {
		return fmt.Errorf("create client token: %w", err)
	}
	if err := r.advance(id, provisionwatch.StatusDone, func(i *store.Install) {
		i.ClientToken = token
	}); err != nil {
		return err
	}

	logger.Info("install complete", "ip_address", m.IPv4Address, "elapsed", time.Since(start).String())
	return nil
}

// advance moves the install to status, applying extra changes in the same update.
func (r *Runner) advance(id string, status provisionwatch.Status, extra func(*store.Install)) error {
	_, err := r.store.Update(id, func(i *store.Install) {
		i.Status = status.String()
		if extra != nil {
			extra(i)
		}
	})
	if err != nil {
		return fmt.Errorf("record %q: %w", status, err)
	}
	return nil
}

func (r *Runner) fail(id string, cause error) {
	reason := cause.Error()
	if errors.Is(cause, context.DeadlineExceeded) {
		reason = fmt.Sprintf("timed out after %s: %s", r.timeout, reason)
	}
	_, _ = r.store.Update(id, func(i *store.Install) {
		i.Status = provisionwatch.StatusFailed.String()
		i.Error = reason
	})
}

// DropletName derives the droplet name from an install ID.
func DropletName(id string) string {
	const n = 6
	if len(id) > n {
		id = id[:n]
	}
	return dropletNamePrefix + id
}
