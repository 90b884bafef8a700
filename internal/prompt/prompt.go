// Package prompt reads passwords and one-time codes from the user.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"golang.org/x/term"
)

// ErrNoInput is returned when the input stream ends before an answer.
var ErrNoInput = errors.New("no input available")

// Prompter asks the user for an answer to an authentication mechanism.
type Prompter interface {
	// Password reads a value without echoing it.
	Password(label string) (string, error)
	// Code reads a visible one-time code.
	Code(label string) (string, error)
}

// Terminal prompts on the controlling terminal. When In is not a TTY (piped
// input, tests) it falls back to reading plain lines.
type Terminal struct {
	In  io.Reader
	Out io.Writer

	once   sync.Once
	reader *bufio.Reader
}

// NewTerminal returns a prompter bound to stdin/stderr. Prompts go to stderr
// so stdout stays clean for `ispauth token`.
func NewTerminal() *Terminal {
	return &Terminal{In: os.Stdin, Out: os.Stderr}
}

// IsInteractive reports whether stdin is attached to a terminal.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func (t *Terminal) isTerminal() bool {
	f, ok := t.In.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (t *Terminal) Password(label string) (string, error) {
	if t.isTerminal() {
		rl, err := t.newReadline(label)
		if err != nil {
			return "", err
		}
		defer rl.Close()
		b, err := rl.ReadPassword(label + ": ")
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", label, err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	return t.readLine(label)
}

func (t *Terminal) Code(label string) (string, error) {
	if t.isTerminal() {
		rl, err := t.newReadline(label)
		if err != nil {
			return "", err
		}
		defer rl.Close()
		line, err := rl.Readline()
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", label, err)
		}
		return strings.TrimSpace(line), nil
	}
	return t.readLine(label)
}

func (t *Terminal) newReadline(label string) (*readline.Instance, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt: label + ": ",
		Stdout: t.Out,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open terminal: %w", err)
	}
	return rl, nil
}

func (t *Terminal) readLine(label string) (string, error) {
	if t.Out != nil {
		_, _ = fmt.Fprintf(t.Out, "%s: ", label)
	}
	return t.ReadLine()
}

// ReadLine reads one line from In without a prompt. Piped prompts read from
// the same buffer, so lines after it stay available to them.
func (t *Terminal) ReadLine() (string, error) {
	t.once.Do(func() { t.reader = bufio.NewReader(t.In) })
	line, err := t.reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return line, nil
		}
		if errors.Is(err, io.EOF) {
			return "", ErrNoInput
		}
		return "", err
	}
	return line, nil
}

// Scripted replays fixed answers. It is used by tests and by callers that
// collect answers up front.
type Scripted struct {
	mu      sync.Mutex
	Answers []string
	// Asked records every label that was prompted.
	Asked []string
}

func (s *Scripted) next(label string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Asked = append(s.Asked, label)
	if len(s.Answers) == 0 {
		return "", ErrNoInput
	}
	a := s.Answers[0]
	s.Answers = s.Answers[1:]
	return a, nil
}

func (s *Scripted) Password(label string) (string, error) { return s.next(label) }
func (s *Scripted) Code(label string) (string, error)     { return s.next(label) }
