package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// CloseSessionReplaced is sent to a connection evicted by a newer login of the same user.
	CloseSessionReplaced = 4001
)

var (
	ErrClientClosed   = errors.New("ws: client closed")
	ErrSendBufferFull = errors.New("ws: send buffer full")
)

// Client is the write side of one websocket connection. Payloads are queued
// on a bounded buffer and written by a single goroutine.
type Client struct {
	ID     string
	UserID string

	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	logger zerolog.Logger

	doneOnce  sync.Once
	closeOnce sync.Once
}

var _ Conn = (*Client)(nil)

// NewClient wraps conn. Call Start to begin writing.
func NewClient(conn *websocket.Conn, userID string, bufferSize int, logger zerolog.Logger) *Client {
	if bufferSize < 0 {
		bufferSize = 0
	}
	id := uuid.NewString()
	return &Client{
		ID:     id,
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, bufferSize),
		done:   make(chan struct{}),
		logger: logger.With().Str("conn_id", id).Str("user_id", userID).Logger(),
	}
}

// Start launches the write pump. It must be called at most once.
func (c *Client) Start() {
	go c.writePump()
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Send queues payload without blocking. A full buffer means the peer is not
// keeping up: the client is marked closed, ErrSendBufferFull is returned and
// the close handshake runs in the background, since the write pump may be
// stuck on the slow peer holding the write lock.
func (c *Client) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	default:
		c.markDone()
		go c.Close(websocket.CloseTryAgainLater, "send buffer full")
		return ErrSendBufferFull
	}
}

// Close sends a close frame with code and reason and tears down the connection.
// Calling it more than once is a no-op.
func (c *Client) Close(code int, reason string) {
	c.markDone()
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil && !isExpectedCloseError(err) {
			c.logger.Debug().Err(err).Msg("write close frame")
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Debug().Err(err).Msg("close connection")
		}
	})
}

func (c *Client) markDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			if err := c.write(websocket.TextMessage, payload); err != nil {
				c.logger.Debug().Err(err).Msg("write failed")
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.logger.Debug().Err(err).Msg("ping failed")
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}
		}
	}
}

func (c *Client) write(messageType int, payload []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, payload)
}
