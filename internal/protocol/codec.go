package protocol

import (
	"bytes"
	"strings"
)

// SignalPrefix marks a frame as a typing signal. Chat text is never escaped,
// so a user line that starts with this byte is read as a signal.
const SignalPrefix byte = 0x01

const (
	typingWord  = "TYPING"
	stoppedWord = "STOPPED"
)

// Kind identifies the logical event a Frame carries.
type Kind int

const (
	KindChat Kind = iota
	KindTyping
	KindStopped
	KindJoined
	KindLeft
)

func (k Kind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindTyping:
		return "typing"
	case KindStopped:
		return "stopped"
	case KindJoined:
		return "joined"
	case KindLeft:
		return "left"
	default:
		return "unknown"
	}
}

// IsSignal reports whether k is a typing indicator.
func (k Kind) IsSignal() bool {
	return k == KindTyping || k == KindStopped
}

// Frame is one logical relay event. Nickname is empty on frames a client
// sends to the server; the server fills it from the sending session.
type Frame struct {
	Kind     Kind
	Nickname string
	Text     string
}

// Chat builds a chat frame attributed to nickname.
func Chat(nickname, text string) Frame {
	return Frame{Kind: KindChat, Nickname: nickname, Text: text}
}

// Signal builds a typing or stopped frame attributed to nickname.
func Signal(kind Kind, nickname string) Frame {
	return Frame{Kind: kind, Nickname: nickname}
}

// Joined builds the system notice for a new member.
func Joined(nickname string) Frame {
	return Frame{Kind: KindJoined, Nickname: nickname}
}

// Left builds the system notice for a departed member.
func Left(nickname string) Frame {
	return Frame{Kind: KindLeft, Nickname: nickname}
}

// SystemText renders the human-readable body of a join or leave notice.
func (f Frame) SystemText() string {
	switch f.Kind {
	case KindJoined:
		return f.Nickname + " joined the chat"
	case KindLeft:
		return f.Nickname + " left the chat"
	default:
		return ""
	}
}

// DecodeInbound classifies a frame received by the server. Signals arrive
// bare ("TYPING", "STOPPED"); a prefixed frame with any other suffix is kept
// as chat text.
func DecodeInbound(line []byte) Frame {
	if len(line) > 0 && line[0] == SignalPrefix {
		switch string(line[1:]) {
		case typingWord:
			return Frame{Kind: KindTyping}
		case stoppedWord:
			return Frame{Kind: KindStopped}
		}
	}
	return Frame{Kind: KindChat, Text: string(line)}
}

// DecodeRelay classifies a frame received by a client from the server.
// Signals carry the sender as "TYPING:<name>" or "STOPPED:<name>". Join and
// leave notices are recognized by their fixed wording; other lines are chat.
func DecodeRelay(line []byte) Frame {
	if len(line) > 0 && line[0] == SignalPrefix {
		body := string(line[1:])
		if name, ok := strings.CutPrefix(body, typingWord+":"); ok {
			return Frame{Kind: KindTyping, Nickname: name}
		}
		if name, ok := strings.CutPrefix(body, stoppedWord+":"); ok {
			return Frame{Kind: KindStopped, Nickname: name}
		}
		return Frame{Kind: KindChat, Text: string(line)}
	}

	text := string(line)
	if inner, ok := cutNotice(text); ok {
		if name, ok := strings.CutSuffix(inner, " joined the chat"); ok {
			return Frame{Kind: KindJoined, Nickname: name}
		}
		if name, ok := strings.CutSuffix(inner, " left the chat"); ok {
			return Frame{Kind: KindLeft, Nickname: name}
		}
	}
	return Frame{Kind: KindChat, Text: text}
}

func cutNotice(s string) (string, bool) {
	inner, ok := strings.CutPrefix(s, "** ")
	if !ok {
		return "", false
	}
	return strings.CutSuffix(inner, " **")
}

// EncodeLine renders chat text for the client to server direction.
func EncodeLine(text string) []byte {
	return terminate([]byte(singleLine(text)))
}

// EncodeSignal renders a bare signal for the client to server direction.
// Kinds other than typing and stopped encode to nil.
func EncodeSignal(kind Kind) []byte {
	switch kind {
	case KindTyping:
		return terminate(append([]byte{SignalPrefix}, typingWord...))
	case KindStopped:
		return terminate(append([]byte{SignalPrefix}, stoppedWord...))
	default:
		return nil
	}
}

// EncodeRelay renders f for the server to client direction.
func EncodeRelay(f Frame) []byte {
	nickname := singleLine(f.Nickname)
	var b bytes.Buffer
	switch f.Kind {
	case KindTyping:
		b.WriteByte(SignalPrefix)
		b.WriteString(typingWord + ":" + nickname)
	case KindStopped:
		b.WriteByte(SignalPrefix)
		b.WriteString(stoppedWord + ":" + nickname)
	case KindJoined, KindLeft:
		b.WriteString("** " + singleLine(f.SystemText()) + " **")
	default:
		if nickname != "" {
			b.WriteString(nickname + ": ")
		}
		b.WriteString(singleLine(f.Text))
	}
	return terminate(b.Bytes())
}

func terminate(b []byte) []byte {
	return append(b, '\n')
}

func singleLine(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}
