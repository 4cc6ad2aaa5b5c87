package provisionwatch

import (
	"bytes"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestNew_Valid(t *testing.T) {
	p, err := New("abc")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.InstallID() != "abc" {
		t.Errorf("InstallID() = %q, want %q", p.InstallID(), "abc")
	}
}

func TestNew_EmptyInstallID(t *testing.T) {
	for _, id := range []string{"", "   "} {
		if _, err := New(id); err == nil {
			t.Errorf("New(%q) expected error, got nil", id)
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("abc")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if p.statusURL != "http://localhost:8080/status/abc" {
		t.Errorf("statusURL = %q, want default base URL", p.statusURL)
	}
	if p.interval != time.Second {
		t.Errorf("interval = %v, want 1s", p.interval)
	}
	if p.requestTimeout != 10*time.Second {
		t.Errorf("requestTimeout = %v, want 10s", p.requestTimeout)
	}
	if p.maxRetries != 5 {
		t.Errorf("maxRetries = %d, want 5", p.maxRetries)
	}
	if p.dashboardPort != 1999 {
		t.Errorf("dashboardPort = %d, want 1999", p.dashboardPort)
	}
	if p.continueOnFailure {
		t.Error("continueOnFailure = true, want false")
	}
	if len(p.stages) != 4 {
		t.Errorf("len(stages) = %d, want 4", len(p.stages))
	}
	if p.Progress() != 0 {
		t.Errorf("Progress() = %d, want 0", p.Progress())
	}
	if p.Last().State != StatePending {
		t.Errorf("Last().State = %v, want pending", p.Last().State)
	}
}

func TestOptions_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		opt     Option
		wantErr string
	}{
		{"base url scheme", WithBaseURL("ftp://example.com"), "scheme"},
		{"base url host", WithBaseURL("http://"), "host"},
		{"base url parse", WithBaseURL("http://[::1"), ""},
		{"zero interval", WithInterval(0), "interval must be positive"},
		{"negative interval", WithInterval(-time.Second), "interval must be positive"},
		{"zero timeout", WithRequestTimeout(0), "timeout must be positive"},
		{"negative retries", WithMaxRetries(-1), "cannot be negative"},
		{"dashboard port low", WithDashboardPort(0), "between 1 and 65535"},
		{"dashboard port high", WithDashboardPort(70000), "between 1 and 65535"},
		{"bad stage", WithStages(StageTable{StatusDone: {Text: "x"}}), "terminal"},
		{"nil logger", WithLogger(nil), "logger cannot be nil"},
		{"nil http client", WithHTTPClient(nil), "http client cannot be nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("abc", tt.opt)
			if err == nil {
				t.Fatal("New() expected error, got nil")
			}
			if tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("New() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestOptions_Valid(t *testing.T) {
	client := &http.Client{}
	p, err := New("abc",
		WithBaseURL("https://installer.example.com/"),
		WithInterval(250*time.Millisecond),
		WithRequestTimeout(2*time.Second),
		WithMaxRetries(0),
		WithDashboardPort(8443),
		WithContinueOnFailure(true),
		WithHTTPClient(client),
		WithStages(StageTable{StatusWaitingHTTP: {Text: "Starting Chain Core", Percent: 40}}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if p.statusURL != "https://installer.example.com/status/abc" {
		t.Errorf("statusURL = %q", p.statusURL)
	}
	if p.interval != 250*time.Millisecond {
		t.Errorf("interval = %v, want 250ms", p.interval)
	}
	if p.maxRetries != 0 {
		t.Errorf("maxRetries = %d, want 0", p.maxRetries)
	}
	if p.dashboardPort != 8443 {
		t.Errorf("dashboardPort = %d, want 8443", p.dashboardPort)
	}
	if !p.continueOnFailure {
		t.Error("continueOnFailure = false, want true")
	}
	if p.httpClient != client {
		t.Error("httpClient not applied")
	}
	if got := p.stages[StatusWaitingHTTP]; got.Text != "Starting Chain Core" || got.Percent != 40 {
		t.Errorf("stages[waiting for http] = %+v", got)
	}
	// unspecified stages keep defaults
	if got := p.stages[StatusPendingAuth]; got.Percent != 10 {
		t.Errorf("stages[pending auth].Percent = %d, want 10", got.Percent)
	}
}

func TestWithDisplay_NilIgnored(t *testing.T) {
	p, err := New("abc", WithDisplay(nil), WithUpdateCallback(nil))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if len(p.displays) != 0 {
		t.Errorf("len(displays) = %d, want 0", len(p.displays))
	}
}

func TestWithLogger_UsedForInstallLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	server, _ := statusServer(t, "abc", `{"status":"done","client_token":"t","ip_address":"1.1.1.1"}`)
	p, err := New("abc", WithBaseURL(server.URL), WithLogger(logger))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := runWithTimeout(t, p); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "install complete") {
		t.Errorf("log output missing 'install complete': %s", out)
	}
	if !strings.Contains(out, "install_id=abc") {
		t.Errorf("log output missing install_id attribute: %s", out)
	}
}
