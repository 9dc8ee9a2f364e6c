package server

import (
	"errors"
	"log"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

// SessionState is the lifecycle position of a TCP session.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateHandshake
	StateActive
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshake:
		return "handshake"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one accepted TCP connection speaking the line protocol.
type Session struct {
	id           string
	conn         net.Conn
	addr         string
	hub          *Hub
	reader       *protocol.Reader
	limiter      *rate.Limiter
	rateLimit    RateLimitConfig
	writeTimeout time.Duration
	welcome      string

	nickname string
	state    atomic.Int32

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewSession wraps an accepted connection. The session does nothing until
// Serve is called.
func NewSession(conn net.Conn, hub *Hub, cfg Config) *Session {
	cfg = cfg.sanitized()
	return &Session{
		id:           uuid.NewString(),
		conn:         conn,
		addr:         conn.RemoteAddr().String(),
		hub:          hub,
		reader:       protocol.NewReader(conn, cfg.MaxFrameSize),
		limiter:      newRateLimiter(cfg.RateLimit),
		rateLimit:    cfg.RateLimit,
		writeTimeout: cfg.WriteTimeout,
		welcome:      cfg.WelcomePrompt,
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Addr returns the remote address.
func (s *Session) Addr() string { return s.addr }

// Nickname returns the name bound during the handshake.
func (s *Session) Nickname() string { return s.nickname }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(state SessionState) {
	s.state.Store(int32(state))
}

// Serve runs the session to completion: handshake, receive loop, cleanup.
// It returns once the connection is closed.
func (s *Session) Serve() {
	log.Printf("[+] %s connected [%s]", s.addr, s.id)

	s.setState(StateHandshake)
	if err := s.handshake(); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Handshake with %s failed: %v", s.addr, err)
		}
		s.closeTransport()
		s.setState(StateClosed)
		log.Printf("[-] %s disconnected before joining", s.addr)
		return
	}

	s.setState(StateActive)
	s.hub.Join(s)

	s.receiveLoop()

	s.setState(StateClosing)
	s.hub.Leave(s)
	s.closeTransport()
	s.setState(StateClosed)
	log.Printf("[-] %s disconnected", s.addr)
}

// handshake sends the welcome prompt and binds the nickname from the first
// line the peer sends.
func (s *Session) handshake() error {
	if err := s.write([]byte(s.welcome)); err != nil {
		return err
	}

	line, err := s.reader.ReadFrame()
	if err != nil {
		return err
	}

	s.nickname = strings.TrimSpace(string(line))
	if s.nickname == "" {
		s.nickname = s.addr
	}
	return nil
}

func (s *Session) receiveLoop() {
	for {
		line, err := s.reader.ReadFrame()
		if err != nil {
			s.handleReadError(err)
			return
		}

		frame := protocol.DecodeInbound(line)
		if frame.Kind == protocol.KindChat && !s.checkRateLimit() {
			continue
		}
		s.hub.Relay(s, frame)
	}
}

// handleReadError logs why the receive loop is ending.
func (s *Session) handleReadError(err error) {
	switch {
	case errors.Is(err, protocol.ErrFrameTooLong):
		log.Printf("Line from %s exceeded maximum frame size; closing", s.addr)
	case isExpectedCloseError(err):
		log.Printf("Client %s connection closed", s.addr)
	default:
		log.Printf("Read error from %s: %v", s.addr, err)
	}
}

// checkRateLimit reports whether another chat line may be relayed now.
func (s *Session) checkRateLimit() bool {
	if s.limiter.Allow() {
		return true
	}
	log.Printf("Rate limit exceeded for %s (%d messages per %s); discarding message", s.addr, s.rateLimit.Burst, s.rateLimit.RefillInterval)
	return false
}

// Deliver writes f to the peer in line-protocol form.
func (s *Session) Deliver(f protocol.Frame) error {
	return s.write(protocol.EncodeRelay(f))
}

func (s *Session) write(b []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	_, err := s.conn.Write(b)
	return err
}

// Close closes the transport. The receive loop observes the closure and
// runs the normal departure path.
func (s *Session) Close() error {
	return s.closeTransport()
}

func (s *Session) closeTransport() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
