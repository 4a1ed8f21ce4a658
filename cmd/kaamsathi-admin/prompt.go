package main

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

var errAborted = errors.New("aborted by user")

// prompter asks the operator questions on out and reads answers from in.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// ask prints question and returns the trimmed answer. EOF aborts.
func (p *prompter) ask(question string) (string, error) {
	if err := writef(p.out, "%s", question); err != nil {
		return "", err
	}
	line, err := p.in.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", errAborted
	}
	return strings.TrimSpace(line), nil
}

// confirmation describes a destructive action awaiting a yes/no answer.
type confirmation struct {
	Action  string
	Target  string
	Warning string
	// Skip bypasses the prompt, e.g. for --yes or --dry-run.
	Skip bool
}

func (p *prompter) confirm(c confirmation) error {
	if c.Skip {
		return nil
	}
	if c.Warning != "" {
		if err := writeln(p.out, c.Warning); err != nil {
			return err
		}
	}
	if c.Target != "" {
		if err := writef(p.out, "About to %s for %s.\n", c.Action, c.Target); err != nil {
			return err
		}
	}
	answer, err := p.ask("Continue? [y/N]: ")
	if err != nil {
		return err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return nil
	default:
		return errAborted
	}
}

// confirmRemote requires the operator to type host back before action runs.
func (p *prompter) confirmRemote(host, action string) error {
	if err := writef(p.out, "\nWARNING: database host %q does not look like a local address.\nThis will %s.\n", host, action); err != nil {
		return err
	}
	answer, err := p.ask("Type the host name to continue or press enter to abort: ")
	if err != nil {
		return err
	}
	if answer != host {
		_ = writeln(p.out, "Remote safeguard check failed; aborting.")
		return errAborted
	}
	return nil
}
