package client

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"strings"
	"testing"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

// event is one thing the state machine transmitted.
type event struct {
	signal protocol.Kind
	line   string
}

func (e event) String() string {
	if e.line != "" {
		return "line:" + e.line
	}
	return e.signal.String()
}

type recordingSink struct {
	events  []event
	lineErr error
}

func (r *recordingSink) SendSignal(kind protocol.Kind) error {
	r.events = append(r.events, event{signal: kind})
	return nil
}

func (r *recordingSink) SendLine(text string) error {
	if r.lineErr != nil {
		return r.lineErr
	}
	r.events = append(r.events, event{signal: protocol.KindChat, line: text})
	return nil
}

func (r *recordingSink) trace() string {
	parts := make([]string, len(r.events))
	for i, e := range r.events {
		parts[i] = e.String()
	}
	return strings.Join(parts, ",")
}

func typeKeys(t *testing.T, s *InputState, keys string) {
	t.Helper()
	for _, r := range keys {
		if err := s.Key(r); err != nil {
			t.Fatalf("Key(%q) returned %v", r, err)
		}
	}
}

// TestInputStateTransitions tests the keystroke state machine on scripted
// input. It verifies which signals and lines are transmitted.
func TestInputStateTransitions(t *testing.T) {
	tests := []struct {
		name  string
		keys  string
		trace string
	}{
		{name: "Single TYPING for a run", keys: "hello", trace: "typing"},
		{name: "Submit sends line then STOPPED", keys: "hi\r", trace: "typing,line:hi,stopped"},
		{name: "Newline also submits", keys: "hi\n", trace: "typing,line:hi,stopped"},
		{name: "Erase to empty sends STOPPED", keys: "ab\b\x7f", trace: "typing,stopped"},
		{name: "Extra backspace is silent", keys: "a\b\b\b", trace: "typing,stopped"},
		{name: "Retyping after erase", keys: "a\bb\r", trace: "typing,stopped,typing,line:b,stopped"},
		{name: "Empty submit sends nothing", keys: "\r\r", trace: ""},
		{name: "Partial erase keeps typing", keys: "abc\b\r", trace: "typing,line:ab,stopped"},
		{name: "Non-printable ignored", keys: "\x1b\x07", trace: ""},
		{name: "Two lines", keys: "a\rb\r", trace: "typing,line:a,stopped,typing,line:b,stopped"},
		{name: "Unicode", keys: "héllo\r", trace: "typing,line:héllo,stopped"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			state := NewInputState(sink, nil)
			typeKeys(t, state, tt.keys)
			if got := sink.trace(); got != tt.trace {
				t.Errorf("Expected trace %q, got %q", tt.trace, got)
			}
		})
	}
}

// TestInputStateTermination tests the keys that end the local session.
// It verifies nothing further is transmitted when they fire.
func TestInputStateTermination(t *testing.T) {
	tests := []struct {
		name    string
		keys    string
		final   rune
		wantErr error
		trace   string
	}{
		{name: "Quit command", keys: "/quit", final: '\r', wantErr: ErrQuit, trace: "typing"},
		{name: "Quit command any case", keys: "/QuIt", final: '\r', wantErr: ErrQuit, trace: "typing"},
		{name: "Ctrl+C", keys: "abc", final: 0x03, wantErr: ErrInterrupted, trace: "typing"},
		{name: "Ctrl+D on empty line", keys: "", final: 0x04, wantErr: io.EOF, trace: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			state := NewInputState(sink, nil)
			typeKeys(t, state, tt.keys)
			if err := state.Key(tt.final); !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
			if got := sink.trace(); got != tt.trace {
				t.Errorf("Expected trace %q, got %q", tt.trace, got)
			}
		})
	}
}

// TestQuitRequiresFullMatch tests that the quit token inside other text is
// sent as chat.
func TestQuitRequiresFullMatch(t *testing.T) {
	sink := &recordingSink{}
	state := NewInputState(sink, nil)
	typeKeys(t, state, "/quit now\r")
	if got := sink.trace(); got != "typing,line:/quit now,stopped" {
		t.Errorf("Unexpected trace %q", got)
	}
}

// TestSignalAlternation tests random keystroke sequences.
// It verifies signals always alternate TYPING, STOPPED, TYPING... so a
// STOPPED is never sent without an outstanding TYPING, and that the typing
// flag matches whether the buffer holds text.
func TestSignalAlternation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	keys := []rune{'a', 'b', 'c', '\b', '\b', '\r'}

	for run := 0; run < 200; run++ {
		sink := &recordingSink{}
		state := NewInputState(sink, nil)
		for i := 0; i < 40; i++ {
			if err := state.Key(keys[rng.Intn(len(keys))]); err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if state.Typing() != (state.Pending() != "") {
				t.Fatalf("Typing flag %v with pending %q", state.Typing(), state.Pending())
			}
		}

		expectTyping := true
		for _, e := range sink.events {
			if !e.signal.IsSignal() {
				continue
			}
			if (e.signal == protocol.KindTyping) != expectTyping {
				t.Fatalf("Signals out of order: %s", sink.trace())
			}
			expectTyping = !expectTyping
		}
	}
}

// TestInputStateEcho tests the local rendering of keystrokes.
func TestInputStateEcho(t *testing.T) {
	var echo bytes.Buffer
	state := NewInputState(&recordingSink{}, &echo)
	typeKeys(t, state, "ab\b\r")
	if got := echo.String(); got != "ab\b \b\r\n" {
		t.Errorf("Unexpected echo %q", got)
	}
}

// TestSubmitPropagatesSendError tests that a failed chat write ends input.
func TestSubmitPropagatesSendError(t *testing.T) {
	sendErr := errors.New("broken pipe")
	state := NewInputState(&recordingSink{lineErr: sendErr}, nil)
	typeKeys(t, state, "hi")
	if err := state.Key('\r'); !errors.Is(err, sendErr) {
		t.Errorf("Expected send error, got %v", err)
	}
}

// TestLineInput tests the line-granular strategy.
// It verifies lines are sent without any signals and that quit and end of
// input stop it.
func TestLineInput(t *testing.T) {
	t.Run("End of input", func(t *testing.T) {
		sink := &recordingSink{}
		err := NewLineInput(strings.NewReader("hello\r\n\nworld\n")).Run(NewInputState(sink, nil))
		if !errors.Is(err, io.EOF) {
			t.Errorf("Expected io.EOF, got %v", err)
		}
		if got := sink.trace(); got != "line:hello,line:world" {
			t.Errorf("Unexpected trace %q", got)
		}
	})

	t.Run("Quit", func(t *testing.T) {
		sink := &recordingSink{}
		err := NewLineInput(strings.NewReader("one\n/Quit\ntwo\n")).Run(NewInputState(sink, nil))
		if !errors.Is(err, ErrQuit) {
			t.Errorf("Expected ErrQuit, got %v", err)
		}
		if got := sink.trace(); got != "line:one" {
			t.Errorf("Unexpected trace %q", got)
		}
	})
}

// TestCharInput tests the character-granular strategy over a byte stream.
func TestCharInput(t *testing.T) {
	sink := &recordingSink{}
	err := NewCharInput(strings.NewReader("hi\r/quit\r")).Run(NewInputState(sink, nil))
	if !errors.Is(err, ErrQuit) {
		t.Errorf("Expected ErrQuit, got %v", err)
	}
	if got := sink.trace(); got != "typing,line:hi,stopped,typing" {
		t.Errorf("Unexpected trace %q", got)
	}

	sink = &recordingSink{}
	err = NewCharInput(strings.NewReader("abc")).Run(NewInputState(sink, nil))
	if !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF at end of input, got %v", err)
	}
}
