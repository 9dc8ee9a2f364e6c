package client

import (
	"bufio"
	"errors"
	"io"
	"os"

	"golang.org/x/term"
)

// InputStrategy reads local input and drives an InputState until the local
// session ends.
type InputStrategy interface {
	// Name identifies the strategy in diagnostics.
	Name() string
	// Run returns ErrQuit, ErrInterrupted, io.EOF or a transport error.
	Run(state *InputState) error
}

// CharInput delivers one keystroke at a time and so can emit typing signals.
// The reader is expected to be a terminal in raw mode.
type CharInput struct {
	in *bufio.Reader
}

// NewCharInput wraps a raw keystroke source.
func NewCharInput(in io.Reader) *CharInput {
	return &CharInput{in: bufio.NewReader(in)}
}

// Name implements InputStrategy.
func (c *CharInput) Name() string { return "character" }

// Run implements InputStrategy.
func (c *CharInput) Run(state *InputState) error {
	for {
		r, _, err := c.in.ReadRune()
		if err != nil {
			return err
		}
		if err := state.Key(r); err != nil {
			return err
		}
	}
}

// LineInput reads whole lines. It is used when keystrokes are unavailable
// and never emits typing signals.
type LineInput struct {
	scanner *bufio.Scanner
}

// NewLineInput wraps a line-oriented source.
func NewLineInput(in io.Reader) *LineInput {
	return &LineInput{scanner: bufio.NewScanner(in)}
}

// Name implements InputStrategy.
func (l *LineInput) Name() string { return "line" }

// Run implements InputStrategy.
func (l *LineInput) Run(state *InputState) error {
	for l.scanner.Scan() {
		if err := state.SubmitLine(l.scanner.Text()); err != nil {
			return err
		}
	}
	if err := l.scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

// Capabilities describes what the local input surface supports.
type Capabilities struct {
	Keystrokes bool
}

// DetectCapabilities reports whether f is a terminal that can be switched to
// raw mode for per-keystroke input.
func DetectCapabilities(f *os.File) Capabilities {
	return Capabilities{Keystrokes: term.IsTerminal(int(f.Fd()))}
}

// SelectStrategy picks the character strategy when f supports keystrokes and
// the line strategy otherwise. For the character strategy the terminal is
// put into raw mode; the returned restore function undoes that and must be
// called before exit.
func SelectStrategy(f *os.File, caps Capabilities) (InputStrategy, func() error, error) {
	noop := func() error { return nil }
	if !caps.Keystrokes {
		return NewLineInput(f), noop, nil
	}

	fd := int(f.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return NewLineInput(f), noop, errors.Join(errors.New("client: raw mode unavailable"), err)
	}
	restore := func() error { return term.Restore(fd, oldState) }
	return NewCharInput(f), restore, nil
}
