// Package security screens configured commands before relman runs them.
package security

import (
	"errors"
	"regexp"
	"strings"
)

// ErrEmptyCommand is returned for blank commands.
var ErrEmptyCommand = errors.New("empty command")

var dangerousPatterns = []*regexp.Regexp{
	// Destructive filesystem ops
	regexp.MustCompile(`(?i)\brm\s+-rf\s+/?$`),
	regexp.MustCompile(`(?i)\brm\s+-rf\s+/`),
	regexp.MustCompile(`(?i)\bmkfs\b`),
	regexp.MustCompile(`(?i)\bdd\s+if=`),
	// fork bombs (e.g. :(){ :|:& };:)
	regexp.MustCompile(`:\(\)\s*\{`),
	// history rewrites on the release remote
	regexp.MustCompile(`(?i)\bgit\s+push\b.*\s(--force|-f|--force-with-lease)(\s|=|$)`),
	regexp.MustCompile(`(?i)\bgit\s+push\b.*\s\+\S+`),
	regexp.MustCompile(`(?i)\bgit\s+reset\s+--hard\b`),
}

// CheckAllowed returns nil if the command may be configured for a step, or
// an error describing why it's blocked. Checking is conservative and not
// exhaustive.
func CheckAllowed(command string) error {
	cmd := strings.TrimSpace(command)
	if cmd == "" {
		return ErrEmptyCommand
	}
	for _, re := range dangerousPatterns {
		if re.MatchString(cmd) {
			return errors.New("command appears destructive or rewrites release history")
		}
	}
	return nil
}
