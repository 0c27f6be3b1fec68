package registry

import "sync"

// Connections maps connection ids to clients
type Connections struct {
	mu      sync.Mutex
	clients map[string]*Client
}

// NewConnections creates an empty connection registry
func NewConnections() *Connections {
	return &Connections{clients: make(map[string]*Client)}
}

// Register adds an unauthenticated client for conn
func (r *Connections) Register(conn Conn) *Client {
	client := NewClient(conn)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[conn.ID()] = client
	return client
}

// Lookup returns the client for a connection id
func (r *Connections) Lookup(id string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	return c, ok
}

// Remove drops a connection. It reports whether it was present.
func (r *Connections) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[id]; !ok {
		return false
	}
	delete(r.clients, id)
	return true
}

// Snapshot returns a copy of the registered clients
func (r *Connections) Snapshot() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	clients := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, c)
	}
	return clients
}

// Len returns the number of registered connections
func (r *Connections) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// DisconnectAll closes every connection. The read loops remove their own
// entries as they exit. It returns the number of connections closed.
func (r *Connections) DisconnectAll(code int, reason string) int {
	clients := r.Snapshot()
	for _, c := range clients {
		_ = c.Disconnect(code, reason)
	}
	return len(clients)
}
