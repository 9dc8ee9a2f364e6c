// Package server constructs and runs the relay listeners: the TCP accept
// loop for line-protocol sessions and the HTTP service hosting the
// WebSocket front end.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"
)

// ErrServerClosed is returned by Serve and ListenAndServe after Shutdown.
var ErrServerClosed = errors.New("server: relay closed")

// Server accepts TCP connections and runs one Session per connection.
type Server struct {
	cfg Config
	hub *Hub

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	sessions  map[*Session]struct{}
	wg        sync.WaitGroup
}

// NewServer creates a relay bound to hub. A nil cfg selects defaults.
func NewServer(cfg *Config, hub *Hub) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	if hub == nil {
		hub = NewHub()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:       cfg.sanitized(),
		hub:       hub,
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[net.Listener]struct{}),
		sessions:  make(map[*Session]struct{}),
	}
}

// Hub returns the hub sessions join.
func (s *Server) Hub() *Hub {
	return s.hub
}

// ListenAndServe listens on the configured TCP address and serves it.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(listener)
}

// Serve accepts connections on listener until Shutdown is called, starting a
// goroutine per connection. It always returns a non-nil error.
func (s *Server) Serve(listener net.Listener) error {
	if !s.trackListener(listener) {
		_ = listener.Close()
		return ErrServerClosed
	}
	defer s.untrackListener(listener)

	log.Printf("Relay listening on %s", listener.Addr())

	var delay time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			delay = acceptBackoff(delay)
			log.Printf("Accept error: %v; retrying in %v", err, delay)
			time.Sleep(delay)
			continue
		}
		delay = 0

		s.startSession(conn)
	}
}

func acceptBackoff(delay time.Duration) time.Duration {
	if delay == 0 {
		return 5 * time.Millisecond
	}
	delay *= 2
	if delay > time.Second {
		delay = time.Second
	}
	return delay
}

func (s *Server) startSession(conn net.Conn) {
	session := NewSession(conn, s.hub, s.cfg)

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.sessions[session] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.sessions, session)
			s.mu.Unlock()
			s.wg.Done()
		}()
		session.Serve()
	}()
}

func (s *Server) trackListener(listener net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.listeners[listener] = struct{}{}
	return true
}

func (s *Server) untrackListener(listener net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, listener)
}

// Shutdown stops accepting connections and waits for active sessions to end
// on their own. If ctx expires first, the remaining connections are closed
// and ctx's error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Initiating relay shutdown...")

	s.mu.Lock()
	s.cancel()
	for listener := range s.listeners {
		if err := listener.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing listener %s: %v", listener.Addr(), err)
		}
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Relay shutdown completed successfully")
		return nil
	case <-ctx.Done():
	}

	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()

	for _, session := range sessions {
		_ = session.Close()
	}
	log.Printf("Relay shutdown deadline reached; closed %d remaining sessions", len(sessions))
	return ctx.Err()
}

// CreateServer creates and configures an HTTP server with the specified address and handler.
// It sets reasonable timeout values for production use. Hijacked WebSocket
// connections are not subject to these timeouts.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer starts the HTTP server and begins listening for connections.
// It returns an error if the server fails to start.
func StartServer(server *http.Server) error {
	log.Printf("HTTP front end listening on %s", server.Addr)
	return server.ListenAndServe()
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active connections.
// It waits for active connections to close or until the timeout is reached.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	log.Println("Shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		return err
	}

	log.Println("HTTP server shutdown completed")
	return nil
}
