// Package terminal decides whether console output goes to an interactive
// terminal and whether it may be coloured.
package terminal

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ciEnvVars contains common CI environment variables
var ciEnvVars = []string{
	"CI",
	"CONTINUOUS_INTEGRATION",
	"GITHUB_ACTIONS",
	"GITLAB_CI",
	"JENKINS_URL",
	"BUILD_NUMBER",
	"BUILDKITE",
	"TF_BUILD",
}

// colorTerminals lists TERM values (or prefixes) known to support ANSI colours.
var colorTerminals = []string{"xterm", "screen", "tmux", "rxvt", "vt100", "ansi", "linux"}

// Options overrides environment based detection.
type Options struct {
	ForceInteractive    bool
	ForceNonInteractive bool
	DisableColor        bool
}

// Capabilities reports terminal features for one output stream.
type Capabilities struct {
	options    Options
	isTerminal func() bool
	getenv     func(string) (string, bool)
}

// NewCapabilities detects capabilities of f (usually os.Stdout or os.Stderr).
func NewCapabilities(f *os.File, options Options) *Capabilities {
	return &Capabilities{
		options:    options,
		isTerminal: func() bool { return f != nil && term.IsTerminal(int(f.Fd())) },
		getenv:     os.LookupEnv,
	}
}

// IsInteractive reports whether output should be treated as interactive.
// Command line options win over CI detection, which wins over TTY detection.
func (c *Capabilities) IsInteractive() bool {
	if c.options.ForceInteractive {
		return true
	}
	if c.options.ForceNonInteractive || c.isCI() {
		return false
	}
	return c.isTerminal()
}

// SupportsColor reports whether ANSI colours may be written.
func (c *Capabilities) SupportsColor() bool {
	if c.options.DisableColor {
		return false
	}
	if v, ok := c.getenv("CLICOLOR_FORCE"); ok && isTruthy(v) {
		return true
	}
	if _, ok := c.getenv("NO_COLOR"); ok {
		return false
	}
	if !c.IsInteractive() {
		return false
	}
	termName, _ := c.getenv("TERM")
	termName = strings.ToLower(strings.TrimSpace(termName))
	for _, name := range colorTerminals {
		if termName == name || strings.HasPrefix(termName, name+"-") {
			return true
		}
	}
	return false
}

func (c *Capabilities) isCI() bool {
	for _, name := range ciEnvVars {
		value, ok := c.getenv(name)
		if !ok || value == "" {
			continue
		}
		// CI=false or CI=0 should not be considered a CI environment
		if name == "CI" {
			return !isFalsy(value)
		}
		return true
	}
	return false
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func isFalsy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "0", "false", "no":
		return true
	default:
		return false
	}
}

// ANSI colour codes used for key listings and log levels.
const (
	Reset  = "\033[0m"
	Gray   = "\033[90m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
)

// Colorize wraps text in code when enabled.
func Colorize(enabled bool, code, text string) string {
	if !enabled {
		return text
	}
	return code + text + Reset
}
