package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/mcoot/gameserver/internal/protocol"
	"github.com/mcoot/gameserver/internal/registry"
)

// Errors returned by Send
var (
	ErrClosed         = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// conn adapts a websocket to registry.Conn. Writes happen on the write pump
// only; Send queues and Close asks the pump to flush and close.
type conn struct {
	id  string
	ws  *websocket.Conn
	cfg Config

	send chan []byte

	closeOnce   sync.Once
	closing     chan struct{}
	closeCode   int
	closeReason string

	// done is closed when the write pump has exited
	done     chan struct{}
	closeErr error
}

var _ registry.Conn = (*conn)(nil)

func newConn(ws *websocket.Conn, cfg Config) *conn {
	return &conn{
		id:      ulid.Make().String(),
		ws:      ws,
		cfg:     cfg,
		send:    make(chan []byte, cfg.SendBuffer),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (c *conn) ID() string {
	return c.id
}

func (c *conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// Send encodes env and queues it without blocking
func (c *conn) Send(env *protocol.Envelope) error {
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}

	select {
	case <-c.closing:
		return ErrClosed
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close flushes queued messages, sends a close frame and waits for the
// write pump to finish. Later calls return the first call's result.
func (c *conn) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.closing)
	})

	select {
	case <-c.done:
		return c.closeErr
	case <-time.After(c.cfg.WriteWait * 2):
		return errors.New("timed out closing connection")
	}
}

func (c *conn) write(messageType int, data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, data)
}

func (c *conn) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		close(c.done)
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.closeErr = err
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.closeErr = err
				return
			}
		case <-c.closing:
			c.closeErr = c.flushAndClose()
			return
		}
	}
}

func (c *conn) flushAndClose() error {
	for {
		select {
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return err
			}
		default:
			frame := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
			err := c.ws.WriteControl(websocket.CloseMessage, frame, time.Now().Add(c.cfg.WriteWait))
			if errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return err
		}
	}
}
