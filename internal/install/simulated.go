package install

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stage names accepted by [Simulated.FailStage].
const (
	StageDeploy = "deploy"
	StageSSH    = "ssh"
	StageHTTP   = "http"
	StageToken  = "token"
)

// Simulated is a [Provisioner] that sleeps through each stage without
// touching any cloud provider. It backs the server's demo mode and tests.
type Simulated struct {
	// Delay is how long each stage takes.
	Delay time.Duration
	// FailStage, if set, makes that stage fail.
	FailStage string
	// IPv4Address is reported for the deployed machine. Defaults to 192.0.2.10.
	IPv4Address string
}

// SimulatedFactory returns a [ProvisionerFactory] producing copies of s.
func SimulatedFactory(s Simulated) ProvisionerFactory {
	return func(string) (Provisioner, error) {
		cp := s
		return &cp, nil
	}
}

func (s *Simulated) Deploy(ctx context.Context, name string) (*Machine, error) {
	if err := s.stage(ctx, StageDeploy); err != nil {
		return nil, err
	}
	ip := s.IPv4Address
	if ip == "" {
		ip = "192.0.2.10"
	}
	return &Machine{ID: name, IPv4Address: ip}, nil
}

func (s *Simulated) WaitForSSH(ctx context.Context, _ *Machine) error {
	return s.stage(ctx, StageSSH)
}

func (s *Simulated) WaitForHTTP(ctx context.Context, _ *Machine) error {
	return s.stage(ctx, StageHTTP)
}

func (s *Simulated) CreateClientToken(ctx context.Context, _ *Machine) (string, error) {
	if err := s.stage(ctx, StageToken); err != nil {
		return "", err
	}
	return "do:" + strings.ReplaceAll(uuid.NewString(), "-", ""), nil
}

func (s *Simulated) Close(context.Context) error {
	return nil
}

func (s *Simulated) stage(ctx context.Context, name string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.Delay):
	}
	if s.FailStage == name {
		return fmt.Errorf("simulated %s failure", name)
	}
	return nil
}
