// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

var errSendBufferFull = errors.New("server: client send buffer full")

// inboundRecord is a browser event: join, message, typing or stopped.
type inboundRecord struct {
	Type     string `json:"type"`
	Nickname string `json:"nickname,omitempty"`
	Text     string `json:"text,omitempty"`
}

// OutboundRecord is what the relay sends to browsers: system, chat, typing
// or stopped.
type OutboundRecord struct {
	Type     string `json:"type"`
	Nickname string `json:"nickname,omitempty"`
	Text     string `json:"text,omitempty"`
}

func outboundFor(f protocol.Frame) OutboundRecord {
	switch f.Kind {
	case protocol.KindJoined, protocol.KindLeft:
		return OutboundRecord{Type: "system", Text: f.SystemText()}
	case protocol.KindTyping:
		return OutboundRecord{Type: "typing", Nickname: f.Nickname}
	case protocol.KindStopped:
		return OutboundRecord{Type: "stopped", Nickname: f.Nickname}
	default:
		return OutboundRecord{Type: "chat", Nickname: f.Nickname, Text: f.Text}
	}
}

// Client is a browser peer connected over WebSocket. It becomes a relay
// member once it sends a join record.
type Client struct {
	id           string
	conn         *websocket.Conn
	hub          *Hub
	addr         string
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
	rateLimiter  *rate.Limiter
	rateLimit    RateLimitConfig

	mu       sync.RWMutex
	nickname string
	joined   bool
}

// NewClient creates a Client for an upgraded connection. A nil conn is
// accepted so the type can be exercised without a network.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, cfg Config) *Client {
	cfg = cfg.sanitized()
	if conn != nil {
		conn.SetReadLimit(int64(cfg.MaxFrameSize))
	}

	return &Client{
		id:           uuid.NewString(),
		conn:         conn,
		hub:          hub,
		addr:         addr,
		send:         make(chan []byte, sendBuffer),
		done:         make(chan struct{}),
		writeTimeout: cfg.WriteTimeout,
		rateLimiter:  newRateLimiter(cfg.RateLimit),
		rateLimit:    cfg.RateLimit,
	}
}

// ID returns the client's unique identifier.
func (c *Client) ID() string { return c.id }

// Addr returns the remote address.
func (c *Client) Addr() string { return c.addr }

// Nickname returns the name from the join record.
func (c *Client) Nickname() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nickname
}

// GetSendChan returns the client's queue of encoded outgoing records.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// Deliver queues f for the write pump. It fails instead of blocking when the
// queue is full or the client is closed.
func (c *Client) Deliver(f protocol.Frame) error {
	payload, err := json.Marshal(outboundFor(f))
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return websocket.ErrCloseSent
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close stops the write pump and closes the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Run starts the write pump and blocks in the read pump until the
// connection ends.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("Error setting initial read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("Error setting read deadline in pong handler for %s: %v", c.addr, err)
		}
		return nil
	})
}

// handleReadError logs why the read pump is ending.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Printf("Message from %s exceeded maximum size", c.addr)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.Printf("Client %s disconnected: %v", c.addr, err)
	case isExpectedCloseError(err):
		log.Printf("Client %s connection closed: %v", c.addr, err)
	default:
		log.Printf("WebSocket read error from %s: %v", c.addr, err)
	}
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the message should be processed
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter.Allow() {
		return true
	}
	log.Printf("Rate limit exceeded for %s (%d messages per %s); discarding message", c.addr, c.rateLimit.Burst, c.rateLimit.RefillInterval)
	return false
}

// processRecord applies one inbound browser record.
func (c *Client) processRecord(raw []byte) {
	var rec inboundRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		log.Printf("Invalid record from %s: %v", c.addr, err)
		return
	}

	c.mu.RLock()
	joined := c.joined
	c.mu.RUnlock()

	switch rec.Type {
	case "join":
		if joined {
			log.Printf("Duplicate join from %s ignored", c.addr)
			return
		}
		c.join(rec.Nickname)
	case "message":
		if joined && c.checkRateLimit() {
			c.hub.Relay(c, protocol.Chat("", rec.Text))
		}
	case "typing":
		if joined {
			c.hub.Relay(c, protocol.Signal(protocol.KindTyping, ""))
		}
	case "stopped":
		if joined {
			c.hub.Relay(c, protocol.Signal(protocol.KindStopped, ""))
		}
	default:
		log.Printf("Unknown record type %q from %s", rec.Type, c.addr)
	}
}

func (c *Client) join(nickname string) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		nickname = c.addr
	}

	c.mu.Lock()
	c.nickname = nickname
	c.joined = true
	c.mu.Unlock()

	c.hub.Join(c)
}

func (c *Client) readPump() {
	defer func() {
		c.mu.RLock()
		joined := c.joined
		c.mu.RUnlock()
		if joined {
			c.hub.Leave(c)
		}
		if err := c.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection in readPump: %v", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}
		c.processRecord(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection in writePump: %v", err)
		}
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message := <-c.send:
		return c.writeTextMessage(message)
	case <-ticker.C:
		return c.handlePing()
	case <-c.done:
		c.writeCloseMessage()
		return false
	}
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() {
	deadline := time.Now().Add(time.Second)
	err := c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	if err != nil && !isExpectedCloseError(err) {
		log.Printf("Error writing close message to %s: %v", c.addr, err)
	}
}

// writeTextMessage writes one record as a text message.
func (c *Client) writeTextMessage(message []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		log.Printf("Error setting write deadline for %s: %v", c.addr, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing message to %s: %v", c.addr, err)
		}
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		log.Printf("Error setting write deadline for ping to %s: %v", c.addr, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		log.Printf("Error writing ping message to %s: %v", c.addr, err)
		return false
	}
	return true
}
