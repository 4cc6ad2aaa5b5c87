package install

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/provisionwatch/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// closeTracker wraps a provisioner and records whether Close was called.
type closeTracker struct {
	Provisioner
	closed bool
}

func (c *closeTracker) Close(ctx context.Context) error {
	c.closed = true
	return c.Provisioner.Close(ctx)
}

func TestRunner_SuccessfulInstall(t *testing.T) {
	st := store.NewMemoryStore()
	runner := NewRunner(st, SimulatedFactory(Simulated{IPv4Address: "1.2.3.4"}), time.Minute, testLogger())

	if err := runner.Register("abcdef123"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	ch := st.Subscribe()
	defer st.Unsubscribe(ch)

	if err := runner.Run(context.Background(), "abcdef123", "token"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var statuses []string
	for len(ch) > 0 {
		statuses = append(statuses, (<-ch).Status)
	}
	want := []string{"waiting for ssh", "waiting for http", "creating client token", "done"}
	if strings.Join(statuses, ",") != strings.Join(want, ",") {
		t.Errorf("transitions = %v, want %v", statuses, want)
	}

	inst, _ := st.Get("abcdef123")
	if inst.Status != "done" {
		t.Errorf("Status = %q, want done", inst.Status)
	}
	if inst.IPAddress != "1.2.3.4" {
		t.Errorf("IPAddress = %q, want 1.2.3.4", inst.IPAddress)
	}
	if !strings.HasPrefix(inst.ClientToken, "do:") {
		t.Errorf("ClientToken = %q, want do: prefix", inst.ClientToken)
	}
	if inst.Error != "" {
		t.Errorf("Error = %q, want empty", inst.Error)
	}
}

func TestRunner_StageFailures(t *testing.T) {
	tests := []struct {
		stage      string
		wantReason string
		wantIP     bool
	}{
		{StageDeploy, "deploy: simulated deploy failure", false},
		{StageSSH, "wait for ssh: simulated ssh failure", true},
		{StageHTTP, "wait for http: simulated http failure", true},
		{StageToken, "create client token: simulated token failure", true},
	}

	for _, tt := range tests {
		t.Run(tt.stage, func(t *testing.T) {
			st := store.NewMemoryStore()
			runner := NewRunner(st, SimulatedFactory(Simulated{FailStage: tt.stage}), time.Minute, testLogger())
			if err := runner.Register("inst"); err != nil {
				t.Fatalf("Register() error = %v", err)
			}

			err := runner.Run(context.Background(), "inst", "token")
			if err == nil {
				t.Fatal("Run() error = nil, want stage failure")
			}

			inst, _ := st.Get("inst")
			if inst.Status != "failed" {
				t.Errorf("Status = %q, want failed", inst.Status)
			}
			if inst.Error != tt.wantReason {
				t.Errorf("Error = %q, want %q", inst.Error, tt.wantReason)
			}
			if (inst.IPAddress != "") != tt.wantIP {
				t.Errorf("IPAddress = %q, want set=%v", inst.IPAddress, tt.wantIP)
			}
			if inst.ClientToken != "" {
				t.Errorf("ClientToken = %q, want empty on failure", inst.ClientToken)
			}
		})
	}
}

func TestRunner_Timeout(t *testing.T) {
	st := store.NewMemoryStore()
	runner := NewRunner(st, SimulatedFactory(Simulated{Delay: time.Second}), 20*time.Millisecond, testLogger())
	if err := runner.Register("inst"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	err := runner.Run(context.Background(), "inst", "token")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want DeadlineExceeded", err)
	}

	inst, _ := st.Get("inst")
	if inst.Status != "failed" {
		t.Errorf("Status = %q, want failed", inst.Status)
	}
	if !strings.Contains(inst.Error, "timed out") {
		t.Errorf("Error = %q, want to mention timeout", inst.Error)
	}
}

func TestRunner_UnregisteredInstall(t *testing.T) {
	runner := NewRunner(store.NewMemoryStore(), SimulatedFactory(Simulated{}), time.Minute, testLogger())

	err := runner.Run(context.Background(), "missing", "token")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Run() error = %v, want ErrNotFound", err)
	}
}

func TestRunner_FactoryError(t *testing.T) {
	st := store.NewMemoryStore()
	runner := NewRunner(st, func(string) (Provisioner, error) {
		return nil, errors.New("bad token")
	}, time.Minute, testLogger())
	if err := runner.Register("inst"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := runner.Run(context.Background(), "inst", "token"); err == nil {
		t.Fatal("Run() error = nil, want factory error")
	}
	inst, _ := st.Get("inst")
	if inst.Error != "create provisioner: bad token" {
		t.Errorf("Error = %q", inst.Error)
	}
}

func TestRunner_ClosesProvisioner(t *testing.T) {
	for _, failStage := range []string{"", StageHTTP} {
		tracker := &closeTracker{Provisioner: &Simulated{FailStage: failStage}}
		st := store.NewMemoryStore()
		runner := NewRunner(st, func(string) (Provisioner, error) { return tracker, nil }, time.Minute, testLogger())
		if err := runner.Register("inst"); err != nil {
			t.Fatalf("Register() error = %v", err)
		}

		_ = runner.Run(context.Background(), "inst", "token")
		if !tracker.closed {
			t.Errorf("failStage=%q: provisioner was not closed", failStage)
		}
	}
}

func TestRunner_GoAndWait(t *testing.T) {
	st := store.NewMemoryStore()
	runner := NewRunner(st, SimulatedFactory(Simulated{Delay: time.Millisecond}), time.Minute, testLogger())

	ids := []string{"a", "b", "c"}
	for _, id := range ids {
		if err := runner.Register(id); err != nil {
			t.Fatalf("Register(%q) error = %v", id, err)
		}
		runner.Go(context.Background(), id, "token")
	}

	done := make(chan struct{})
	go func() {
		runner.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait() did not return")
	}

	for _, id := range ids {
		if inst, _ := st.Get(id); inst.Status != "done" {
			t.Errorf("install %q Status = %q, want done", id, inst.Status)
		}
	}
}

func TestRegister_Duplicate(t *testing.T) {
	runner := NewRunner(store.NewMemoryStore(), SimulatedFactory(Simulated{}), 0, nil)
	if err := runner.Register("x"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := runner.Register("x"); !errors.Is(err, store.ErrExists) {
		t.Errorf("Register() duplicate error = %v, want ErrExists", err)
	}
}

func TestDropletName(t *testing.T) {
	tests := map[string]string{
		"0123456789abcdef": "chain-core-012345",
		"abc":              "chain-core-abc",
	}
	for id, want := range tests {
		if got := DropletName(id); got != want {
			t.Errorf("DropletName(%q) = %q, want %q", id, got, want)
		}
	}
}
