package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Test seams for the terminal.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// PromptLine prints prompt to w and reads one trimmed line from r. A final
// line without a terminator is accepted.
func PromptLine(r *bufio.Reader, w io.Writer, prompt string) (string, error) {
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return "", err
	}
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("client: read %q: %w", strings.TrimSpace(prompt), err)
	}
	return strings.TrimSpace(line), nil
}

// PromptSecret reads a secret without echo when stdin is a terminal, and
// falls back to a plain line read from r otherwise.
func PromptSecret(r *bufio.Reader, w io.Writer, prompt string) (string, error) {
	fd := int(os.Stdin.Fd()) //nolint:gosec // fd fits in int
	if !isTerminal(fd) {
		return PromptLine(r, w, prompt)
	}
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return "", err
	}
	pw, err := readPassword(fd)
	_, _ = fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("client: read password: %w", err)
	}
	return strings.TrimSpace(string(pw)), nil
}
