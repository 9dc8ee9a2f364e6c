// Package server defines the peer abstraction shared by the TCP and
// WebSocket transports, and utility helpers reused across both.
package server

import (
	"errors"
	"io"
	"net"
	"strings"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

// Peer is a registered relay member. Deliver must be safe to call from any
// goroutine and must serialize writes to the underlying transport.
type Peer interface {
	ID() string
	Nickname() string
	Addr() string
	Deliver(f protocol.Frame) error
	Close() error
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
