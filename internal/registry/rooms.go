package registry

import (
	"sync"

	"github.com/mcoot/gameserver/internal/model"
)

// Rooms maps room ids to the clients currently in them
type Rooms struct {
	mu    sync.Mutex
	rooms map[model.RoomID]map[string]*Client
}

// NewRooms creates an empty room registry
func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[model.RoomID]map[string]*Client)}
}

// Create registers a new room with owner as its first member
func (r *Rooms) Create(id model.RoomID, owner *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[id]; ok {
		return model.ErrRoomExists
	}
	r.rooms[id] = map[string]*Client{owner.ID(): owner}
	return nil
}

// Ensure registers an empty room if it is not already known
func (r *Rooms) Ensure(id model.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[id]; !ok {
		r.rooms[id] = make(map[string]*Client)
	}
}

// AddMember adds client to an existing room
func (r *Rooms) AddMember(id model.RoomID, client *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[id]
	if !ok {
		return model.ErrRoomNotFound
	}
	members[client.ID()] = client
	return nil
}

// RemoveMember removes client from a room. The room itself stays registered.
func (r *Rooms) RemoveMember(id model.RoomID, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if members, ok := r.rooms[id]; ok {
		delete(members, client.ID())
	}
}

// MembersOf returns a copy of a room's members
func (r *Rooms) MembersOf(id model.RoomID) []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[id]
	result := make([]*Client, 0, len(members))
	for _, c := range members {
		result = append(result, c)
	}
	return result
}

// HostOf returns the first member holding the HOST bit
func (r *Rooms) HostOf(id model.RoomID) (*Client, bool) {
	for _, c := range r.MembersOf(id) {
		if c.CheckAuth(model.CapHost) {
			return c, true
		}
	}
	return nil, false
}

// Delete drops a room and returns its former members
func (r *Rooms) Delete(id model.RoomID) []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[id]
	delete(r.rooms, id)

	result := make([]*Client, 0, len(members))
	for _, c := range members {
		result = append(result, c)
	}
	return result
}

// Exists reports whether a room is registered
func (r *Rooms) Exists(id model.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rooms[id]
	return ok
}

// Len returns the number of registered rooms
func (r *Rooms) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
