package provisionwatch

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Update is what the poller reports after handling each status response.
//
// Update is the Go rendering of the install progress page: Text is the status
// line, Percent drives the progress bar, and a non-empty AccessURL means the
// completion panel should be shown.
type Update struct {
	// InstallID identifies the watched install.
	InstallID string
	// Status is the raw status reported by the server. Empty when the
	// endpoint could not be read.
	Status Status
	// State is the state machine position derived from Status.
	State State
	// Text is the human-readable status line.
	Text string
	// Percent is the displayed progress, 0 to 100.
	Percent int
	// ClientToken is set once the install is done.
	ClientToken string
	// IPAddress is set once the install is done.
	IPAddress string
	// AccessURL is the dashboard link, set once the install is done.
	AccessURL string
	// Terminal is true for the last update of a run.
	Terminal bool
	// Err is set when the run ends without a successful install.
	Err error
	// CheckedAt is when the status was fetched.
	CheckedAt time.Time
}

// Done reports whether the update completes a successful install.
func (u Update) Done() bool {
	return u.State == StateDone
}

// Display renders poller updates.
//
// Render is called synchronously from the polling goroutine, and the next
// request is not scheduled until it returns. Implementations must not block
// for long.
type Display interface {
	Render(Update)
}

// DisplayFunc adapts an ordinary function to the [Display] interface.
type DisplayFunc func(Update)

// Render calls f(u).
func (f DisplayFunc) Render(u Update) {
	f(u)
}

// renderSafe calls a display with panic recovery.
// Panics are logged with a correlation ID and do not stop polling.
func renderSafe(d Display, u Update, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("display panicked",
				"correlation_id", uuid.NewString(),
				"panic", r,
				"install_id", u.InstallID,
			)
		}
	}()
	d.Render(u)
}
