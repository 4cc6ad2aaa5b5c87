package provisionwatch

import (
	"errors"
	"fmt"
)

// Status is the workflow status reported by the status endpoint.
//
// The server reports one of the predefined values below. Any other string is
// treated as [StateUnknown], which the poller handles like a failure.
type Status string

const (
	// StatusPendingAuth is the initial status, before the droplet is created.
	StatusPendingAuth Status = "pending auth"
	// StatusWaitingSSH means the droplet exists and its SSH port is not open yet.
	StatusWaitingSSH Status = "waiting for ssh"
	// StatusWaitingHTTP means SSH is up and Chain Core is not listening yet.
	StatusWaitingHTTP Status = "waiting for http"
	// StatusCreatingToken means a client token is being created over SSH.
	StatusCreatingToken Status = "creating client token"
	// StatusDone means the install completed. ClientToken and IPAddress are set.
	StatusDone Status = "done"
	// StatusFailed means the install stopped with an error.
	StatusFailed Status = "failed"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// State returns the state machine position of the status.
func (s Status) State() State {
	switch s {
	case StatusPendingAuth:
		return StatePending
	case StatusWaitingSSH:
		return StateWaitingSSH
	case StatusWaitingHTTP:
		return StateWaitingHTTP
	case StatusCreatingToken:
		return StateCreatingToken
	case StatusDone:
		return StateDone
	case StatusFailed:
		return StateFailed
	default:
		return StateUnknown
	}
}

// IsTerminal reports whether polling stops after observing s.
// Unrecognized statuses are terminal because they are treated as failures.
func (s Status) IsTerminal() bool {
	return s.State().IsTerminal()
}

// State is a position in the install state machine.
//
// Transitions are driven solely by the server-reported [Status]. The initial
// state is [StatePending]; [StateDone], [StateFailed] and [StateUnknown] are
// terminal.
type State int

const (
	StatePending State = iota
	StateWaitingSSH
	StateWaitingHTTP
	StateCreatingToken
	StateDone
	StateFailed
	StateUnknown
)

var stateNames = [...]string{
	StatePending:       "pending",
	StateWaitingSSH:    "waiting_ssh",
	StateWaitingHTTP:   "waiting_http",
	StateCreatingToken: "creating_token",
	StateDone:          "done",
	StateFailed:        "failed",
	StateUnknown:       "unknown",
}

// String returns the snake_case name of the state.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// IsTerminal reports whether the state ends polling.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed || s == StateUnknown
}

// StatusResponse is the JSON document served at /status/{InstallID}.
type StatusResponse struct {
	Status      Status `json:"status"`
	ClientToken string `json:"client_token,omitempty"`
	IPAddress   string `json:"ip_address,omitempty"`
	// Error carries the failure reason when Status is [StatusFailed].
	Error string `json:"error,omitempty"`
}

var (
	// ErrInstallFailed is returned by [Poller.Run] when the server reports
	// "failed" or a status the poller does not recognize.
	ErrInstallFailed = errors.New("install failed")

	// ErrTransport is returned by [Poller.Run] when the status endpoint could
	// not be read after all retries.
	ErrTransport = errors.New("status endpoint unreachable")

	// ErrUnknownInstall is returned by [Poller.Run] when the server has no
	// install with the polled ID.
	ErrUnknownInstall = errors.New("unknown install")
)
