package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// prompter reads answers from the terminal, hiding passwords when stdin is
// a TTY. Tests feed it a plain reader.
type prompter struct {
	in  *bufio.Reader
	fd  int
	tty bool
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	p := &prompter{in: bufio.NewReader(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
		p.tty = true
	}
	return p
}

// Line prompts for a visible value. An existing value skips the prompt.
func (p *prompter) Line(label, current string) (string, error) {
	if current != "" {
		return current, nil
	}
	fmt.Fprintf(p.out, "%s: ", label)
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}

// Secret prompts for a hidden value. An existing value skips the prompt.
func (p *prompter) Secret(label, current string) (string, error) {
	if current != "" {
		return current, nil
	}
	if !p.tty {
		return p.Line(label, "")
	}
	fmt.Fprintf(p.out, "%s: ", label)
	secret, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out) // newline after password input
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return string(secret), nil
}

// Confirm asks a yes/no question, defaulting to no
func (p *prompter) Confirm(label string) (bool, error) {
	answer, err := p.Line(label+" [y/N]", "")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
