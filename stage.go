package provisionwatch

import (
	"fmt"
	"maps"
)

// Stage is the display text and progress target for a non-terminal status.
type Stage struct {
	// Text is the human-readable status line.
	Text string
	// Percent is the progress bar target, 0 to 100.
	Percent int
}

// StageTable maps each non-terminal [Status] to its [Stage].
type StageTable map[Status]Stage

const (
	completeText = "Install complete"
	failedText   = "Install failed"
)

// DefaultStages returns the canonical stage table.
//
// The returned map is a fresh copy and may be modified by the caller.
func DefaultStages() StageTable {
	return StageTable{
		StatusPendingAuth:   {Text: "Provisioning droplet…", Percent: 10},
		StatusWaitingSSH:    {Text: "Waiting for SSH…", Percent: 20},
		StatusWaitingHTTP:   {Text: "Waiting for HTTP…", Percent: 45},
		StatusCreatingToken: {Text: "Creating client token…", Percent: 95},
	}
}

// Validate checks that every stage has text and a percent in 0..99, and that
// no terminal status has an entry.
func (t StageTable) Validate() error {
	for status, stage := range t {
		if status.IsTerminal() {
			return fmt.Errorf("stage %q: terminal statuses cannot be configured", status)
		}
		if stage.Text == "" {
			return fmt.Errorf("stage %q: text is required", status)
		}
		if stage.Percent < 0 || stage.Percent > 99 {
			return fmt.Errorf("stage %q: percent must be between 0 and 99, got %d", status, stage.Percent)
		}
	}
	return nil
}

// merge returns a copy of the defaults overridden by t.
func (t StageTable) merge() StageTable {
	merged := DefaultStages()
	maps.Copy(merged, t)
	return merged
}

// failureText builds the failure status line for an unrecognized or failed status.
func failureText(status Status, reason string) string {
	switch {
	case reason != "":
		return fmt.Sprintf("%s: %s", failedText, reason)
	case status != "" && status != StatusFailed:
		return fmt.Sprintf("%s: %s", failedText, status)
	default:
		return failedText
	}
}

// failureError wraps ErrInstallFailed with the most specific cause available.
func failureError(status Status, reason string) error {
	switch {
	case reason != "":
		return fmt.Errorf("%w: %s", ErrInstallFailed, reason)
	case status != StatusFailed:
		return fmt.Errorf("%w: unrecognized status %q", ErrInstallFailed, status)
	default:
		return ErrInstallFailed
	}
}
