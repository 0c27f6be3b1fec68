package testutil

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mcoot/gameserver/internal/protocol"
)

var connSeq atomic.Int64

// FakeConn is an in-memory connection that records what is sent to it
type FakeConn struct {
	id string

	mu          sync.Mutex
	sent        []*protocol.Envelope
	closed      bool
	closeCode   int
	closeReason string

	// CloseErr is returned from Close when set
	CloseErr error
}

// NewFakeConn creates a FakeConn with a unique id
func NewFakeConn() *FakeConn {
	return &FakeConn{id: fmt.Sprintf("conn-%d", connSeq.Add(1))}
}

func (c *FakeConn) ID() string {
	return c.id
}

func (c *FakeConn) RemoteAddr() string {
	return "127.0.0.1:0"
}

// Send records env
func (c *FakeConn) Send(env *protocol.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, env)
	return nil
}

// Close records the close code and reason
func (c *FakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CloseErr != nil {
		return c.CloseErr
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	return nil
}

// Sent returns a copy of everything sent so far
func (c *FakeConn) Sent() []*protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*protocol.Envelope(nil), c.sent...)
}

// Last returns the most recent envelope, or nil
func (c *FakeConn) Last() *protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return nil
	}
	return c.sent[len(c.sent)-1]
}

// Clear forgets recorded envelopes
func (c *FakeConn) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}

// Closed reports whether Close succeeded, with its code and reason
func (c *FakeConn) Closed() (bool, int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeCode, c.closeReason
}
