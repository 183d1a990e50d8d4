package server

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Tyrowin/chatroom/internal/protocol"
	"github.com/Tyrowin/chatroom/internal/room"
)

const (
	sendBufferSize = 256
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	writeWait      = 10 * time.Second
)

// Client represents a WebSocket client connection in one room. It satisfies
// room.BatchConn: the room queues frames through Send and SendBatch and the
// write pump drains them. Each queued entry is an ordered batch of frames, so
// the connect sequence takes one slot however long the history is.
type Client struct {
	conn           *websocket.Conn
	send           chan [][]byte
	hub            *Hub
	addr           string
	roomName       string
	requestedID    string
	room           *room.Room
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
	log            *zap.Logger

	mu     sync.Mutex
	closed bool
}

// NewClient creates a new Client for conn in the named room. requestedID is
// the identity the client asked for and may be empty.
func NewClient(conn *websocket.Conn, hub *Hub, addr, roomName, requestedID string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		conn:           conn,
		send:           make(chan [][]byte, sendBufferSize),
		hub:            hub,
		addr:           addr,
		roomName:       roomName,
		requestedID:    requestedID,
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
		log:            zap.L().With(zap.String("addr", addr), zap.String("room", roomName)),
	}
}

// Send queues one frame without blocking. A client whose buffer is full is
// closed; it reports false for every frame from then on.
func (c *Client) Send(frame []byte) bool {
	return c.enqueue([][]byte{frame})
}

// SendBatch queues frames as one entry; the write pump writes them in order.
func (c *Client) SendBatch(frames [][]byte) bool {
	if len(frames) == 0 {
		return true
	}
	return c.enqueue(frames)
}

func (c *Client) enqueue(batch [][]byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- batch:
		return true
	default:
		c.log.Warn("Closing client with full send buffer")
		c.closeSendLocked()
		return false
	}
}

// closeSend stops further sends and lets the write pump finish.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeSendLocked()
}

func (c *Client) closeSendLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Debug("Error setting initial read deadline", zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Debug("Error setting read deadline in pong handler", zap.Error(err))
		}
		return nil
	})
}

// logReadError logs why the read loop ended.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Info("Message exceeded maximum size", zap.Int64("limit", c.maxMessageSize))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Info("Client disconnected", zap.Error(err))
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Info("Client connection closed", zap.Error(err))
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.log.Warn("Unexpected WebSocket error", zap.Error(err))
	default:
		c.log.Warn("WebSocket read error", zap.Error(err))
	}
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the message should be processed
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter == nil || c.rateLimiter.allow() {
		return true
	}
	c.log.Info("Rate limit exceeded; discarding message",
		zap.Int("burst", c.rateLimit.Burst),
		zap.Duration("interval", c.rateLimit.RefillInterval))
	if c.rateLimiter.notify() {
		c.sendRateLimitNotice()
	}
	return false
}

func (c *Client) sendRateLimitNotice() {
	frame, err := protocol.Encode(protocol.ErrorInfo{
		Info:    protocol.NewInfo(protocol.InfoError, time.Now().UnixMilli()),
		Code:    "rateLimited",
		Message: "too many messages; slow down",
	})
	if err != nil {
		c.log.Error("Failed to encode rate limit notice", zap.Error(err))
		return
	}
	c.Send(frame)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Debug("Error closing connection in readPump", zap.Error(err))
		}
	}()

	c.setupReadConnection()

	for {
		messageType, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		if !c.checkRateLimit() {
			continue
		}

		c.room.Submit(c, rawMessage)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case batch, ok := <-c.send:
		return c.handleBatch(batch, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Debug("Error closing connection in writePump", zap.Error(err))
	}
}

// handleBatch writes one queued batch and returns false if the connection should be closed
func (c *Client) handleBatch(batch [][]byte, ok bool) bool {
	if !ok {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			c.log.Debug("Error setting write deadline", zap.Error(err))
			return false
		}
		return c.writeCloseMessage()
	}

	for _, frame := range batch {
		if !c.writeFrame(frame) {
			return false
		}
	}
	return true
}

// writeFrame writes one text frame under its own write deadline.
func (c *Client) writeFrame(frame []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Debug("Error setting write deadline", zap.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error writing message", zap.Error(err))
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
		c.log.Debug("Error writing close message", zap.Error(err))
	}
	return false
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Debug("Error setting write deadline for ping", zap.Error(err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Debug("Error writing ping message", zap.Error(err))
		return false
	}
	return true
}
