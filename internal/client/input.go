package client

import (
	"errors"
	"io"
	"strings"
	"unicode"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

// QuitCommand ends the local session when it is the whole submitted line,
// compared case-insensitively.
const QuitCommand = "/quit"

const (
	keyInterrupt = 0x03
	keyEOT       = 0x04
	keyBackspace = 0x08
	keyDelete    = 0x7f
)

var (
	// ErrQuit is returned when the user submits QuitCommand.
	ErrQuit = errors.New("client: quit requested")
	// ErrInterrupted is returned when the user presses Ctrl+C or the process
	// receives an interrupt.
	ErrInterrupted = errors.New("client: interrupted")
)

// Sink carries what the input state machine decides to transmit.
type Sink interface {
	SendSignal(kind protocol.Kind) error
	SendLine(text string) error
}

// InputState holds the line being composed and whether a TYPING signal is
// outstanding. A STOPPED signal is only ever sent to close an outstanding
// TYPING.
type InputState struct {
	sink   Sink
	echo   io.Writer
	buf    []rune
	typing bool
}

// NewInputState creates an empty state. echo receives the local rendering
// of keystrokes; it may be io.Discard.
func NewInputState(sink Sink, echo io.Writer) *InputState {
	if echo == nil {
		echo = io.Discard
	}
	return &InputState{sink: sink, echo: echo}
}

// Pending returns the unsubmitted text.
func (s *InputState) Pending() string {
	return string(s.buf)
}

// Typing reports whether a TYPING signal is outstanding.
func (s *InputState) Typing() bool {
	return s.typing
}

// Key applies one keystroke. It returns ErrQuit, ErrInterrupted or io.EOF
// when the local session should end, and a transport error if a chat line
// could not be sent.
func (s *InputState) Key(r rune) error {
	switch {
	case r == '\r' || r == '\n':
		return s.Submit()
	case r == keyBackspace || r == keyDelete:
		s.Backspace()
		return nil
	case r == keyInterrupt:
		return ErrInterrupted
	case r == keyEOT:
		if len(s.buf) == 0 {
			return io.EOF
		}
		return nil
	case unicode.IsPrint(r):
		s.Insert(r)
		return nil
	default:
		return nil
	}
}

// Insert appends r and signals TYPING on the first character of a run.
func (s *InputState) Insert(r rune) {
	if !s.typing {
		s.signal(protocol.KindTyping)
		s.typing = true
	}
	s.buf = append(s.buf, r)
	_, _ = io.WriteString(s.echo, string(r))
}

// Backspace erases the last character and signals STOPPED once the buffer
// is empty again.
func (s *InputState) Backspace() {
	if len(s.buf) > 0 {
		s.buf = s.buf[:len(s.buf)-1]
		_, _ = io.WriteString(s.echo, "\b \b")
	}
	if len(s.buf) == 0 && s.typing {
		s.signal(protocol.KindStopped)
		s.typing = false
	}
}

// Submit sends the pending line as chat and closes any outstanding TYPING.
// A line equal to QuitCommand is not sent and yields ErrQuit.
func (s *InputState) Submit() error {
	_, _ = io.WriteString(s.echo, "\r\n")

	line := string(s.buf)
	s.buf = s.buf[:0]
	if line != "" {
		if strings.EqualFold(line, QuitCommand) {
			return ErrQuit
		}
		if err := s.sink.SendLine(line); err != nil {
			return err
		}
	}

	if s.typing {
		s.signal(protocol.KindStopped)
		s.typing = false
	}
	return nil
}

// SubmitLine submits a complete line read without keystroke events. No
// typing signal is involved.
func (s *InputState) SubmitLine(line string) error {
	line = strings.TrimRight(line, "\r\n")
	if strings.EqualFold(line, QuitCommand) {
		return ErrQuit
	}
	if line == "" {
		return nil
	}
	return s.sink.SendLine(line)
}

// signal sends a typing indicator. Indicators are best effort; a broken
// transport surfaces on the next chat line or on the receiving side.
func (s *InputState) signal(kind protocol.Kind) {
	_ = s.sink.SendSignal(kind)
}
