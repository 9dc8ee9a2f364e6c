// Package testhelpers provides common utilities shared by the relay's tests.
//
// It wraps raw TCP connections in a line-oriented reader with deadlines,
// performs the nickname handshake, dials the WebSocket front end, and polls
// for asynchronous conditions so tests do not depend on fixed sleeps.
package testhelpers

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultTimeout bounds every blocking helper.
const DefaultTimeout = 2 * time.Second

// TestOrigin is the Origin header sent by ConnectWebSocket.
const TestOrigin = "http://localhost:8080"

// LineConn is a test-side TCP relay client.
type LineConn struct {
	t      *testing.T
	Conn   net.Conn
	reader *bufio.Reader
}

// Dial connects to a relay without performing the handshake.
func Dial(t *testing.T, addr string) *LineConn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, DefaultTimeout)
	if err != nil {
		t.Fatalf("Failed to dial %s: %v", addr, err)
	}
	lc := &LineConn{t: t, Conn: conn, reader: bufio.NewReader(conn)}
	t.Cleanup(func() { _ = conn.Close() })
	return lc
}

// Join dials addr, consumes the welcome prompt and sends nickname.
func Join(t *testing.T, addr, prompt, nickname string) *LineConn {
	t.Helper()
	lc := Dial(t, addr)
	lc.ExpectPrompt(prompt)
	lc.Send(nickname + "\n")
	return lc
}

// ExpectPrompt reads exactly len(prompt) bytes and compares them.
func (lc *LineConn) ExpectPrompt(prompt string) {
	lc.t.Helper()
	buf := make([]byte, len(prompt))
	lc.setDeadline(DefaultTimeout)
	if _, err := io.ReadFull(lc.reader, buf); err != nil {
		lc.t.Fatalf("Failed to read welcome prompt: %v", err)
	}
	if string(buf) != prompt {
		lc.t.Fatalf("Expected prompt %q, got %q", prompt, buf)
	}
}

// Send writes raw bytes.
func (lc *LineConn) Send(s string) {
	lc.t.Helper()
	if err := lc.Conn.SetWriteDeadline(time.Now().Add(DefaultTimeout)); err != nil {
		lc.t.Fatalf("Failed to set write deadline: %v", err)
	}
	if _, err := io.WriteString(lc.Conn, s); err != nil {
		lc.t.Fatalf("Failed to send %q: %v", s, err)
	}
}

// ReadLine returns the next line including its terminator.
func (lc *LineConn) ReadLine() (string, error) {
	lc.setDeadline(DefaultTimeout)
	return lc.reader.ReadString('\n')
}

// ExpectLine fails the test unless the next line equals want.
func (lc *LineConn) ExpectLine(want string) {
	lc.t.Helper()
	got, err := lc.ReadLine()
	if err != nil {
		lc.t.Fatalf("Expected line %q, got error: %v", want, err)
	}
	if got != want {
		lc.t.Fatalf("Expected line %q, got %q", want, got)
	}
}

// ExpectNoLine fails the test if a line arrives within wait.
func (lc *LineConn) ExpectNoLine(wait time.Duration) {
	lc.t.Helper()
	lc.setDeadline(wait)
	line, err := lc.reader.ReadString('\n')
	if err == nil {
		lc.t.Fatalf("Expected no line, got %q", line)
	}
	if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
		lc.t.Fatalf("Expected read timeout, got %v", err)
	}
}

// ReadLinesUntil collects lines until stop returns true for one of them.
func (lc *LineConn) ReadLinesUntil(stop func(string) bool) []string {
	lc.t.Helper()
	var lines []string
	for {
		line, err := lc.ReadLine()
		if err != nil {
			lc.t.Fatalf("Read failed after %q: %v", lines, err)
		}
		lines = append(lines, line)
		if stop(line) {
			return lines
		}
	}
}

func (lc *LineConn) setDeadline(d time.Duration) {
	if err := lc.Conn.SetReadDeadline(time.Now().Add(d)); err != nil {
		lc.t.Fatalf("Failed to set read deadline: %v", err)
	}
}

// Reset aborts the connection with a TCP RST instead of a FIN.
func (lc *LineConn) Reset() {
	lc.t.Helper()
	if tcp, ok := lc.Conn.(*net.TCPConn); ok {
		if err := tcp.SetLinger(0); err != nil {
			lc.t.Fatalf("Failed to set linger: %v", err)
		}
	}
	_ = lc.Conn.Close()
}

// WaitFor polls cond until it holds or DefaultTimeout passes.
func WaitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(DefaultTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

// BuildWebSocketURL converts an httptest server URL to its /ws endpoint.
func BuildWebSocketURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
// It returns the connection or an error if connection fails.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", TestOrigin)

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// ReceiveRecord reads one JSON record with a deadline.
func ReceiveRecord(conn *websocket.Conn) (map[string]string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(DefaultTimeout)); err != nil {
		return nil, err
	}
	var record map[string]string
	err := conn.ReadJSON(&record)
	return record, err
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
