// Package client implements the terminal side of the relay: connecting,
// the nickname handshake, rendering relayed frames, and turning local input
// into chat lines and typing signals.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

// ErrDisconnected is returned by Run when the server side of the connection
// goes away.
var ErrDisconnected = errors.New("client: disconnected from server")

const welcomeReadSize = 1024

// Client is a connected relay participant.
type Client struct {
	conn    net.Conn
	writeMu sync.Mutex
	closeMu sync.Once
}

// Dial connects to the relay at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// New wraps an established connection.
func New(conn net.Conn) *Client {
	return &Client{conn: conn}
}

// Welcome performs the single read that carries the server's prompt.
func (c *Client) Welcome() (string, error) {
	buf := make([]byte, welcomeReadSize)
	n, err := c.conn.Read(buf)
	if n > 0 {
		return string(buf[:n]), nil
	}
	if err == nil {
		err = io.EOF
	}
	return "", err
}

// Join sends the nickname line that completes the handshake.
func (c *Client) Join(nickname string) error {
	return c.write(protocol.EncodeLine(strings.TrimSpace(nickname)))
}

// SendLine implements Sink.
func (c *Client) SendLine(text string) error {
	return c.write(protocol.EncodeLine(text))
}

// SendSignal implements Sink.
func (c *Client) SendSignal(kind protocol.Kind) error {
	frame := protocol.EncodeSignal(kind)
	if frame == nil {
		return fmt.Errorf("client: %s is not a signal", kind)
	}
	return c.write(frame)
}

func (c *Client) write(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.conn.Write(b)
	return err
}

// Close closes the connection. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeMu.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// Run relays frames from the server to out while strategy feeds local input
// through an InputState. It returns when input ends, the user quits, ctx is
// cancelled, or the server disconnects. The connection is closed on return.
func (c *Client) Run(ctx context.Context, strategy InputStrategy, out io.Writer) error {
	defer c.Close()

	var outMu sync.Mutex
	console := &lockedWriter{mu: &outMu, w: out}

	received := make(chan error, 1)
	go func() {
		received <- c.receive(console)
	}()

	state := NewInputState(c, console)
	input := make(chan error, 1)
	go func() {
		input <- strategy.Run(state)
	}()

	select {
	case err := <-input:
		return err
	case err := <-received:
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			_, _ = fmt.Fprintf(console, "\nConnection error: %v\n", err)
		}
		_, _ = io.WriteString(console, "\nDisconnected from server.\n")
		return ErrDisconnected
	case <-ctx.Done():
		return ErrInterrupted
	}
}

// receive reads relayed frames until the stream ends.
func (c *Client) receive(out io.Writer) error {
	reader := protocol.NewReader(c.conn, 0)
	for {
		line, err := reader.ReadFrame()
		if err != nil {
			return err
		}
		if _, err := io.WriteString(out, Render(protocol.DecodeRelay(line))); err != nil {
			return err
		}
	}
}

// Render returns the console text for a relayed frame.
func Render(f protocol.Frame) string {
	switch f.Kind {
	case protocol.KindTyping:
		return fmt.Sprintf("\r  [%s is typing...]   \n", f.Nickname)
	case protocol.KindStopped:
		return fmt.Sprintf("\r  [%s stopped typing]\n", f.Nickname)
	default:
		return string(protocol.EncodeRelay(f))
	}
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// RawConsole adapts output for a terminal in raw mode, where a bare '\n'
// moves down without returning the carriage.
type RawConsole struct {
	W io.Writer
}

func (r RawConsole) Write(p []byte) (int, error) {
	converted := bytes.ReplaceAll(bytes.ReplaceAll(p, []byte("\r\n"), []byte("\n")), []byte("\n"), []byte("\r\n"))
	if _, err := r.W.Write(converted); err != nil {
		return 0, err
	}
	return len(p), nil
}
