package ui

import (
	"errors"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
)

// ErrAborted is returned when the user interrupts a prompt.
var ErrAborted = errors.New("aborted by user")

// Prompter asks the user for input.
type Prompter interface {
	// Confirm asks a yes/no question. An empty answer yields def.
	Confirm(question string, def bool) (bool, error)
	// Input asks for a line of text. An empty answer yields def.
	Input(question, def string) (string, error)
	// Secret asks for a line of text without echoing it.
	Secret(question string) (string, error)
}

// Terminal prompts on the terminal with readline.
type Terminal struct {
	Stdin  io.ReadCloser
	Stdout io.Writer
}

// NewTerminal returns a prompter on the process's standard streams.
func NewTerminal() *Terminal {
	return &Terminal{Stdin: os.Stdin, Stdout: os.Stdout}
}

func (t *Terminal) instance(prompt string) (*readline.Instance, error) {
	return readline.NewEx(&readline.Config{
		Prompt:          prompt,
		Stdin:           t.Stdin,
		Stdout:          t.Stdout,
		InterruptPrompt: "^C",
	})
}

func (t *Terminal) readLine(prompt string) (string, error) {
	rl, err := t.instance(prompt)
	if err != nil {
		return "", err
	}
	defer rl.Close()

	line, err := rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) {
		return "", ErrAborted
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Confirm implements Prompter.
func (t *Terminal) Confirm(question string, def bool) (bool, error) {
	hint := " [y/N]: "
	if def {
		hint = " [Y/n]: "
	}
	answer, err := t.readLine(prefix + " " + question + hint)
	if err != nil {
		return false, err
	}
	return ParseYesNo(answer, def), nil
}

// Input implements Prompter.
func (t *Terminal) Input(question, def string) (string, error) {
	prompt := prefix + " " + question
	if def != "" {
		prompt += " [" + def + "]"
	}
	answer, err := t.readLine(prompt + ": ")
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// Secret implements Prompter.
func (t *Terminal) Secret(question string) (string, error) {
	rl, err := t.instance("")
	if err != nil {
		return "", err
	}
	defer rl.Close()

	secret, err := rl.ReadPassword(prefix + " " + question + ": ")
	if errors.Is(err, readline.ErrInterrupt) {
		return "", ErrAborted
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(string(secret)), nil
}

// ParseYesNo interprets a yes/no answer; anything unrecognized yields def.
func ParseYesNo(answer string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return def
	}
}
