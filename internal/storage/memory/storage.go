package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mcoot/gameserver/internal/dependencies/clock"
	"github.com/mcoot/gameserver/internal/model"
	"github.com/mcoot/gameserver/internal/storage"
)

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu sync.RWMutex

	credentials  map[string]*model.Credential
	sessions     map[string]*model.Session
	nextUserID   model.UserID
	rooms        map[model.RoomID]*model.Room
	members      map[model.UserID]model.RoomID
	roomValues   map[roomValueKey]string
	playerValues map[playerValueKey]string
}

type roomValueKey struct {
	roomID model.RoomID
	key    string
}

type playerValueKey struct {
	roomID model.RoomID
	userID model.UserID
	key    string
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		credentials:  make(map[string]*model.Credential),
		sessions:     make(map[string]*model.Session),
		rooms:        make(map[model.RoomID]*model.Room),
		members:      make(map[model.UserID]model.RoomID),
		roomValues:   make(map[roomValueKey]string),
		playerValues: make(map[playerValueKey]string),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Credential operations

func (s *Storage) CreateCredential(ctx context.Context, cred *model.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credentials[cred.Username]; ok {
		return model.ErrDuplicateUsername
	}
	c := *cred
	s.credentials[cred.Username] = &c
	return nil
}

func (s *Storage) GetCredential(ctx context.Context, username string) (*model.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.credentials[username]
	if !ok {
		return nil, model.ErrCredentialNotFound
	}
	c := *cred
	return &c, nil
}

func (s *Storage) CredentialExists(ctx context.Context, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.credentials[username]
	return ok, nil
}

// Session operations

func (s *Storage) UpsertSession(ctx context.Context, token, username string, now time.Time) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[token]
	if !ok {
		s.nextUserID++
		session = &model.Session{Token: token, UserID: s.nextUserID}
		s.sessions[token] = session
	}
	session.Username = username
	session.LastAccess = now
	copied := *session
	return &copied, nil
}

func (s *Storage) GetSession(ctx context.Context, token string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[token]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *Storage) SessionExists(ctx context.Context, token string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[token]
	return ok, nil
}

func (s *Storage) TouchSession(ctx context.Context, token string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[token]; ok {
		session.LastAccess = now
	}
	return nil
}

func (s *Storage) DeleteSession(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *Storage) ExpiredSessions(ctx context.Context, cutoff time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tokens := []string{}
	for token, session := range s.sessions {
		if clock.Expired(session.LastAccess, cutoff) {
			tokens = append(tokens, token)
		}
	}
	sort.Strings(tokens)
	return tokens, nil
}

func (s *Storage) DeleteExpiredMemberships(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for _, session := range s.sessions {
		if !clock.Expired(session.LastAccess, cutoff) {
			continue
		}
		if _, ok := s.members[session.UserID]; ok {
			delete(s.members, session.UserID)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Storage) DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for token, session := range s.sessions {
		if clock.Expired(session.LastAccess, cutoff) {
			delete(s.sessions, token)
			deleted++
		}
	}
	return deleted, nil
}

// Room operations

func (s *Storage) CreateRoom(ctx context.Context, room *model.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; ok {
		return model.ErrRoomExists
	}
	r := *room
	s.rooms[room.ID] = &r
	return nil
}

func (s *Storage) GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, model.ErrRoomNotFound
	}
	r := *room
	return &r, nil
}

func (s *Storage) RoomExists(ctx context.Context, id model.RoomID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[id]
	return ok, nil
}

func (s *Storage) TouchRoom(ctx context.Context, id model.RoomID, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[id]; ok {
		room.LastAccess = now
	}
	return nil
}

func (s *Storage) DeleteRoom(ctx context.Context, id model.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteRoomLocked(id)
	return nil
}

func (s *Storage) IsHost(ctx context.Context, userID model.UserID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, room := range s.rooms {
		if room.HostID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Storage) ExpiredRooms(ctx context.Context, cutoff time.Time) ([]model.RoomID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := []model.RoomID{}
	for id, room := range s.rooms {
		if clock.Expired(room.LastAccess, cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Storage) DeleteExpiredRooms(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, room := range s.rooms {
		if clock.Expired(room.LastAccess, cutoff) {
			s.deleteRoomLocked(id)
			deleted++
		}
	}
	return deleted, nil
}

// deleteRoomLocked removes a room with its memberships and data. Caller holds mu.
func (s *Storage) deleteRoomLocked(id model.RoomID) {
	delete(s.rooms, id)
	for userID, roomID := range s.members {
		if roomID == id {
			delete(s.members, userID)
		}
	}
	for key := range s.roomValues {
		if key.roomID == id {
			delete(s.roomValues, key)
		}
	}
	for key := range s.playerValues {
		if key.roomID == id {
			delete(s.playerValues, key)
		}
	}
}

// Membership operations

func (s *Storage) AddMember(ctx context.Context, id model.RoomID, userID model.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[id]; !ok {
		return model.ErrRoomNotFound
	}
	s.members[userID] = id
	return nil
}

func (s *Storage) RemoveMember(ctx context.Context, userID model.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, userID)
	return nil
}

func (s *Storage) RoomOfUser(ctx context.Context, userID model.UserID) (model.RoomID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.members[userID]
	if !ok {
		return "", model.ErrNotInRoom
	}
	return id, nil
}

// Room data operations

func (s *Storage) SaveRoomValue(ctx context.Context, id model.RoomID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[id]; !ok {
		return model.ErrRoomNotFound
	}
	s.roomValues[roomValueKey{id, key}] = value
	return nil
}

func (s *Storage) GetRoomValue(ctx context.Context, id model.RoomID, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.roomValues[roomValueKey{id, key}]
	if !ok {
		return "", model.ErrValueNotFound
	}
	return value, nil
}

func (s *Storage) SavePlayerValue(ctx context.Context, id model.RoomID, userID model.UserID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[id]; !ok {
		return model.ErrRoomNotFound
	}
	s.playerValues[playerValueKey{id, userID, key}] = value
	return nil
}

func (s *Storage) GetPlayerValue(ctx context.Context, id model.RoomID, userID model.UserID, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.playerValues[playerValueKey{id, userID, key}]
	if !ok {
		return "", model.ErrValueNotFound
	}
	return value, nil
}
