package term

import (
	"os"
	"strings"

	"github.com/fatih/color"
)

const colorEnvVar = "COLOR"

var lookupEnv = os.LookupEnv

// Colored string formatting functions.
var (
	successSprint = color.New(color.FgHiGreen).SprintFunc()
	errorSprint   = color.New(color.FgHiRed).SprintFunc()
	faintSprint   = color.New(color.Faint).SprintFunc()
	linkSprint    = color.New(color.FgHiCyan, color.Underline).SprintFunc()
)

// DisableColorBasedOnEnvVar turns color output on or off from the COLOR
// environment variable. When COLOR is unset, the library's terminal
// detection decides.
func DisableColorBasedOnEnvVar() {
	value, exists := lookupEnv(colorEnvVar)
	if !exists {
		return
	}

	switch strings.ToLower(value) {
	case "false":
		color.NoColor = true
	case "true":
		color.NoColor = false
	}
}

// HighlightLink colors a URL for display.
func HighlightLink(s string) string {
	return linkSprint(s)
}
