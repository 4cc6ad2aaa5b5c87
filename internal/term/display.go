// Package term renders install progress in a terminal.
package term

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	spin "github.com/briandowns/spinner"
	"github.com/mattn/go-isatty"

	"github.com/jpalmerr/provisionwatch"
)

const (
	spinnerDelay = 125 * time.Millisecond
	barWidth     = 20

	successPrefix = "✔"
	errorPrefix   = "✘"
)

var charset = spin.CharSets[14]

type spinner interface {
	Start()
	Stop()
}

// Display renders [provisionwatch.Update] values as a spinner with a
// progress bar, followed by a completion or failure summary.
//
// In non-interactive mode each change of status is written as its own line.
type Display struct {
	mu          sync.Mutex
	out         io.Writer
	internal    spinner
	interactive bool
	running     bool
	lastLine    string
}

var _ provisionwatch.Display = (*Display)(nil)

// New returns a Display that spins on stderr when stderr is a terminal and
// writes the summary to out. Otherwise it falls back to [NewPlain].
func New(out io.Writer) *Display {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return NewPlain(out)
	}
	s := spin.New(charset, spinnerDelay, spin.WithHiddenCursor(true))
	s.Writer = os.Stderr
	return &Display{
		out:         out,
		internal:    s,
		interactive: true,
	}
}

// NewPlain returns a Display that writes one line per status change to out.
func NewPlain(out io.Writer) *Display {
	return &Display{out: out}
}

// Render implements provisionwatch.Display.
func (d *Display) Render(u provisionwatch.Update) {
	d.mu.Lock()
	defer d.mu.Unlock()

	line := progressLine(u)
	if !u.Terminal {
		if d.interactive {
			d.suffix(" " + line)
			if !d.running {
				d.internal.Start()
				d.running = true
			}
			return
		}
		if line != d.lastLine {
			fmt.Fprintln(d.out, line)
			d.lastLine = line
		}
		return
	}

	if d.interactive && d.running {
		d.finalMSG("")
		d.internal.Stop()
		d.running = false
	}
	fmt.Fprint(d.out, summary(u))
}

// Stop halts the spinner without printing a summary. It is used when a watch
// is interrupted before the install finishes.
func (d *Display) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.interactive && d.running {
		d.finalMSG("")
		d.internal.Stop()
		d.running = false
	}
}

func (d *Display) suffix(label string) {
	if s, ok := d.internal.(*spin.Spinner); ok {
		s.Lock()
		s.Suffix = label
		s.Unlock()
	}
}

func (d *Display) finalMSG(label string) {
	if s, ok := d.internal.(*spin.Spinner); ok {
		s.Lock()
		s.FinalMSG = label
		s.Unlock()
	}
}

func progressLine(u provisionwatch.Update) string {
	text := u.Text
	if u.State == provisionwatch.StateFailed || u.State == provisionwatch.StateUnknown {
		text = errorSprint(text)
	}
	return fmt.Sprintf("%s %3d%% %s", bar(u.Percent), u.Percent, text)
}

// bar draws a fixed-width progress bar for percent.
func bar(percent int) string {
	percent = max(0, min(percent, 100))
	filled := percent * barWidth / 100
	return "[" + strings.Repeat("#", filled) + faintSprint(strings.Repeat(".", barWidth-filled)) + "]"
}

func summary(u provisionwatch.Update) string {
	var b strings.Builder
	switch {
	case u.Done():
		fmt.Fprintf(&b, "%s %s\n", successSprint(successPrefix), u.Text)
		fmt.Fprintf(&b, "  Client token: %s\n", u.ClientToken)
		fmt.Fprintf(&b, "  IP address:   %s\n", u.IPAddress)
		fmt.Fprintf(&b, "  Dashboard:    %s\n", HighlightLink(u.AccessURL))
	case u.Err != nil && !u.State.IsTerminal():
		fmt.Fprintf(&b, "%s %s: %v\n", errorSprint(errorPrefix), u.Text, u.Err)
	default:
		fmt.Fprintf(&b, "%s %s\n", errorSprint(errorPrefix), u.Text)
	}
	return b.String()
}
