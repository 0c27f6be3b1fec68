// Package registry tracks live connections and the in-memory room membership
// used for message routing.
package registry

import (
	"sync"

	"github.com/mcoot/gameserver/internal/model"
	"github.com/mcoot/gameserver/internal/protocol"
)

// Websocket close codes used by the server
const (
	CloseNormal        = 1000
	CloseGoingAway     = 1001
	CloseInternalError = 1011
)

// Conn is the transport handle owned by one Client
type Conn interface {
	ID() string
	RemoteAddr() string
	Send(env *protocol.Envelope) error
	Close(code int, reason string) error
}

// Client is the per-connection identity and authorization state
type Client struct {
	conn Conn

	mu           sync.RWMutex
	username     string
	sessionToken string
	userID       model.UserID
	caps         model.Capability
	room         model.RoomID

	// HOST was granted for hosting room, not carried by the role
	hosting bool
}

// NewClient creates an unauthenticated client bound to conn
func NewClient(conn Conn) *Client {
	return &Client{conn: conn}
}

// Conn returns the client's connection
func (c *Client) Conn() Conn {
	return c.conn
}

// ID returns the connection id
func (c *Client) ID() string {
	return c.conn.ID()
}

// CheckAuth reports whether the client holds mask together with AUTHENTICATED
func (c *Client) CheckAuth(mask model.Capability) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.caps.Has(mask)
}

// Authenticate sets the AUTHENTICATED bit, keeping the others
func (c *Client) Authenticate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.caps |= model.CapAuthenticated
}

// SetAuthorization replaces the mask with the OR of masks
func (c *Client) SetAuthorization(masks ...model.Capability) {
	var caps model.Capability
	for _, m := range masks {
		caps |= m
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.caps = caps
	c.hosting = false
}

// AddAuthorization ORs mask into the current mask
func (c *Client) AddAuthorization(mask model.Capability) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.caps |= mask
}

// GrantHost sets HOST for the room the client hosts. A client whose role
// already carries the HOST bit is left unchanged.
func (c *Client) GrantHost() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.caps&model.CapHost != 0 {
		return
	}
	c.caps |= model.CapHost
	c.hosting = true
}

// RevokeHost clears a HOST bit set by GrantHost
func (c *Client) RevokeHost() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hosting {
		return
	}
	c.caps &^= model.CapHost
	c.hosting = false
}

// Capabilities returns the current mask
func (c *Client) Capabilities() model.Capability {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.caps
}

func (c *Client) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

func (c *Client) SetUsername(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = name
}

func (c *Client) SessionToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionToken
}

func (c *Client) SetSessionToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionToken = token
}

func (c *Client) UserID() model.UserID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Client) SetUserID(id model.UserID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = id
}

// Room returns the client's current room, or "" when in none
func (c *Client) Room() model.RoomID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room
}

func (c *Client) SetRoom(id model.RoomID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room = id
}

// Reset clears identity and authorization after sign-out or eviction
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = ""
	c.sessionToken = ""
	c.userID = 0
	c.caps = 0
	c.room = ""
	c.hosting = false
}

// Send writes an envelope to the client's connection
func (c *Client) Send(env *protocol.Envelope) error {
	return c.conn.Send(env)
}

// Disconnect closes the client's connection
func (c *Client) Disconnect(code int, reason string) error {
	return c.conn.Close(code, reason)
}
