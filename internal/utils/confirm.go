// Package utils provides utility functions.
package utils

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Confirm prompts with msg on out and expects y/n on in. Returns true for
// yes. End of input counts as no, so non-interactive callers never confirm
// by accident.
func Confirm(in io.Reader, out io.Writer, msg string) bool {
	_, _ = fmt.Fprintf(out, "%s [y/N]: ", msg)
	r := bufio.NewReader(in)
	line, _ := r.ReadString('\n')
	resp := strings.TrimSpace(strings.ToLower(line))
	return resp == "y" || resp == "yes"
}
