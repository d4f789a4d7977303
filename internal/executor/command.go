package executor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Command is one external program invocation. Env is injected into the
// child's environment only; the relman process environment is never touched.
type Command struct {
	Name string
	Args []string
	Env  map[string]string
	Dir  string
}

// String renders the command the way a user would type it, env first.
func (c Command) String() string {
	var b strings.Builder
	for _, k := range c.envKeys() {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(shellquote.Join(c.Env[k]))
		b.WriteByte(' ')
	}
	b.WriteString(shellquote.Join(append([]string{c.Name}, c.Args...)...))
	return b.String()
}

// WithEnv returns a copy of c with the given variables added.
func (c Command) WithEnv(env map[string]string) Command {
	merged := make(map[string]string, len(c.Env)+len(env))
	for k, v := range c.Env {
		merged[k] = v
	}
	for k, v := range env {
		merged[k] = v
	}
	c.Env = merged
	return c
}

func (c Command) envKeys() []string {
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseCommand turns a configured command line into a Command. The line is
// sanitized and validated first, then split with shell quoting rules.
// Leading NAME=value words become scoped environment variables. No shell is
// involved: pipes, globs and substitutions are passed through literally.
func ParseCommand(line string) (Command, error) {
	line, err := validateAndSanitize(line)
	if err != nil {
		return Command{}, err
	}
	words, err := shellquote.Split(line)
	if err != nil {
		return Command{}, fmt.Errorf("invalid command %q: %w", line, err)
	}
	c := Command{}
	for len(words) > 0 {
		k, v, ok := strings.Cut(words[0], "=")
		if !ok || !isEnvName(k) {
			break
		}
		if c.Env == nil {
			c.Env = map[string]string{}
		}
		c.Env[k] = v
		words = words[1:]
	}
	if len(words) == 0 {
		return Command{}, fmt.Errorf("invalid command %q: no program to run", line)
	}
	c.Name = words[0]
	c.Args = words[1:]
	return c, nil
}

func isEnvName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// sanitizeCommand normalizes common unicode characters that often get
// inserted by editors (e.g., smart quotes, NBSP, zero-width spaces) and
// converts them to their ASCII equivalents where sensible.
func sanitizeCommand(s string) string {
	r := strings.NewReplacer(
		"\u2018", "'", // left single quote
		"\u2019", "'", // right single quote
		"\u201C", "\"", // left double quote
		"\u201D", "\"", // right double quote
		"\u00A0", " ", // NO-BREAK SPACE
		"\u200B", "", // zero width space
		"\u200E", "", // left-to-right mark
		"\u200F", "", // right-to-left mark
	)
	return strings.Map(func(r rune) rune {
		if r == 0 {
			return -1
		}
		return r
	}, r.Replace(s))
}

func validateAndSanitize(command string) (string, error) {
	command = strings.TrimSpace(sanitizeCommand(command))
	if command == "" {
		return "", fmt.Errorf("invalid command: empty")
	}
	if err := ValidateCommand(command); err != nil {
		return "", err
	}
	return command, nil
}

// ValidateCommand checks for characters that cannot appear in a single
// configured command line (newlines and other control characters).
func ValidateCommand(s string) error {
	if strings.Contains(s, "\n") {
		return fmt.Errorf("invalid command: contains newline characters; each command must be a single line")
	}
	if strings.IndexFunc(s, isControl) != -1 {
		return fmt.Errorf("invalid command: contains control characters; remove non-printable characters")
	}
	return nil
}

func isControl(r rune) bool {
	return r == 0 || (r < 32 && r != '\t') || r == 0x7f
}
