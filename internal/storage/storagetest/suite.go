// Package storagetest holds the behavioural contract every storage backend must meet.
package storagetest

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/gameserver/internal/model"
	"github.com/mcoot/gameserver/internal/storage"
)

// Suite runs the shared storage contract. Backends embed it and set
// NewStorage before SetupTest runs.
type Suite struct {
	suite.Suite
	NewStorage func() storage.Storage

	Store storage.Storage
	Ctx   context.Context
	Now   time.Time
}

func (s *Suite) SetupTest() {
	s.Require().NotNil(s.NewStorage, "NewStorage must be set")
	s.Store = s.NewStorage()
	s.Ctx = context.Background()
	s.Now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

func (s *Suite) createRoom(id model.RoomID, host model.UserID, lastAccess time.Time) {
	err := s.Store.CreateRoom(s.Ctx, &model.Room{
		ID:         id,
		HostID:     host,
		CreatedAt:  lastAccess,
		LastAccess: lastAccess,
	})
	s.Require().NoError(err)
}

// Credential tests

func (s *Suite) TestCreateAndGetCredential() {
	cred := &model.Credential{
		Username:     "alice",
		PasswordHash: "hash",
		Role:         model.ToStored(model.CapRegistered | model.CapPlayer),
		CreatedAt:    s.Now,
	}
	s.Require().NoError(s.Store.CreateCredential(s.Ctx, cred))

	got, err := s.Store.GetCredential(s.Ctx, "alice")
	s.Require().NoError(err)
	s.Equal("hash", got.PasswordHash)
	s.Equal(cred.Role, got.Role)

	exists, err := s.Store.CredentialExists(s.Ctx, "alice")
	s.Require().NoError(err)
	s.True(exists)
}

func (s *Suite) TestCreateCredentialDuplicate() {
	s.Require().NoError(s.Store.CreateCredential(s.Ctx, &model.Credential{Username: "alice", PasswordHash: "first"}))

	err := s.Store.CreateCredential(s.Ctx, &model.Credential{Username: "alice", PasswordHash: "second"})
	s.ErrorIs(err, model.ErrDuplicateUsername)

	got, err := s.Store.GetCredential(s.Ctx, "alice")
	s.Require().NoError(err)
	s.Equal("first", got.PasswordHash)
}

func (s *Suite) TestGetCredentialNotFound() {
	_, err := s.Store.GetCredential(s.Ctx, "nobody")
	s.ErrorIs(err, model.ErrCredentialNotFound)

	exists, err := s.Store.CredentialExists(s.Ctx, "nobody")
	s.Require().NoError(err)
	s.False(exists)
}

// Session tests

func (s *Suite) TestUpsertSessionAssignsDistinctIDs() {
	a, err := s.Store.UpsertSession(s.Ctx, "tokenA", "alice", s.Now)
	s.Require().NoError(err)
	b, err := s.Store.UpsertSession(s.Ctx, "tokenB", "alice", s.Now)
	s.Require().NoError(err)

	s.NotZero(a.UserID)
	s.NotZero(b.UserID)
	s.NotEqual(a.UserID, b.UserID)
}

func (s *Suite) TestUpsertSessionKeepsIdentity() {
	first, err := s.Store.UpsertSession(s.Ctx, "tokenA", "alice", s.Now)
	s.Require().NoError(err)

	second, err := s.Store.UpsertSession(s.Ctx, "tokenA", "alice", s.Now.Add(time.Minute))
	s.Require().NoError(err)
	s.Equal(first.UserID, second.UserID)

	got, err := s.Store.GetSession(s.Ctx, "tokenA")
	s.Require().NoError(err)
	s.Equal("alice", got.Username)
	s.Equal(first.UserID, got.UserID)
	s.True(got.LastAccess.Equal(s.Now.Add(time.Minute)))
}

func (s *Suite) TestGetSessionNotFound() {
	_, err := s.Store.GetSession(s.Ctx, "missing")
	s.ErrorIs(err, model.ErrSessionNotFound)

	exists, err := s.Store.SessionExists(s.Ctx, "missing")
	s.Require().NoError(err)
	s.False(exists)
}

func (s *Suite) TestTouchSession() {
	_, err := s.Store.UpsertSession(s.Ctx, "tokenA", "alice", s.Now)
	s.Require().NoError(err)

	s.Require().NoError(s.Store.TouchSession(s.Ctx, "tokenA", s.Now.Add(10*time.Minute)))

	got, err := s.Store.GetSession(s.Ctx, "tokenA")
	s.Require().NoError(err)
	s.True(got.LastAccess.Equal(s.Now.Add(10 * time.Minute)))

	// Touching an unknown session is a no-op
	s.NoError(s.Store.TouchSession(s.Ctx, "missing", s.Now))
	exists, err := s.Store.SessionExists(s.Ctx, "missing")
	s.Require().NoError(err)
	s.False(exists)
}

func (s *Suite) TestDeleteSession() {
	_, err := s.Store.UpsertSession(s.Ctx, "tokenA", "alice", s.Now)
	s.Require().NoError(err)

	s.Require().NoError(s.Store.DeleteSession(s.Ctx, "tokenA"))

	_, err = s.Store.GetSession(s.Ctx, "tokenA")
	s.ErrorIs(err, model.ErrSessionNotFound)
}

func (s *Suite) TestExpiredSessions() {
	_, err := s.Store.UpsertSession(s.Ctx, "old", "alice", s.Now.Add(-time.Hour))
	s.Require().NoError(err)
	_, err = s.Store.UpsertSession(s.Ctx, "edge", "bob", s.Now.Add(-30*time.Minute))
	s.Require().NoError(err)
	_, err = s.Store.UpsertSession(s.Ctx, "fresh", "carol", s.Now)
	s.Require().NoError(err)

	tokens, err := s.Store.ExpiredSessions(s.Ctx, s.Now.Add(-30*time.Minute))
	s.Require().NoError(err)
	s.ElementsMatch([]string{"old", "edge"}, tokens)
}

func (s *Suite) TestDeleteExpiredMembershipsAndSessions() {
	old, err := s.Store.UpsertSession(s.Ctx, "old", "alice", s.Now.Add(-time.Hour))
	s.Require().NoError(err)
	fresh, err := s.Store.UpsertSession(s.Ctx, "fresh", "bob", s.Now)
	s.Require().NoError(err)

	s.createRoom("room01", fresh.UserID, s.Now)
	s.Require().NoError(s.Store.AddMember(s.Ctx, "room01", old.UserID))
	s.Require().NoError(s.Store.AddMember(s.Ctx, "room01", fresh.UserID))

	cutoff := s.Now.Add(-30 * time.Minute)

	memberships, err := s.Store.DeleteExpiredMemberships(s.Ctx, cutoff)
	s.Require().NoError(err)
	s.Equal(1, memberships)

	sessions, err := s.Store.DeleteExpiredSessions(s.Ctx, cutoff)
	s.Require().NoError(err)
	s.Equal(1, sessions)

	_, err = s.Store.RoomOfUser(s.Ctx, old.UserID)
	s.ErrorIs(err, model.ErrNotInRoom)
	room, err := s.Store.RoomOfUser(s.Ctx, fresh.UserID)
	s.Require().NoError(err)
	s.Equal(model.RoomID("room01"), room)

	_, err = s.Store.GetSession(s.Ctx, "old")
	s.ErrorIs(err, model.ErrSessionNotFound)
	_, err = s.Store.GetSession(s.Ctx, "fresh")
	s.NoError(err)
}

// Room tests

func (s *Suite) TestCreateAndGetRoom() {
	s.createRoom("room01", 7, s.Now)

	room, err := s.Store.GetRoom(s.Ctx, "room01")
	s.Require().NoError(err)
	s.Equal(model.UserID(7), room.HostID)

	exists, err := s.Store.RoomExists(s.Ctx, "room01")
	s.Require().NoError(err)
	s.True(exists)

	isHost, err := s.Store.IsHost(s.Ctx, 7)
	s.Require().NoError(err)
	s.True(isHost)

	isHost, err = s.Store.IsHost(s.Ctx, 8)
	s.Require().NoError(err)
	s.False(isHost)
}

func (s *Suite) TestGetRoomNotFound() {
	_, err := s.Store.GetRoom(s.Ctx, "nope")
	s.ErrorIs(err, model.ErrRoomNotFound)

	exists, err := s.Store.RoomExists(s.Ctx, "nope")
	s.Require().NoError(err)
	s.False(exists)
}

func (s *Suite) TestTouchRoom() {
	s.createRoom("room01", 1, s.Now.Add(-time.Hour))

	s.Require().NoError(s.Store.TouchRoom(s.Ctx, "room01", s.Now))

	expired, err := s.Store.ExpiredRooms(s.Ctx, s.Now.Add(-30*time.Minute))
	s.Require().NoError(err)
	s.Empty(expired)
}

func (s *Suite) TestDeleteRoomCascades() {
	s.createRoom("room01", 1, s.Now)
	s.Require().NoError(s.Store.AddMember(s.Ctx, "room01", 1))
	s.Require().NoError(s.Store.SaveRoomValue(s.Ctx, "room01", "round", "3"))
	s.Require().NoError(s.Store.SavePlayerValue(s.Ctx, "room01", 1, "score", "10"))

	s.Require().NoError(s.Store.DeleteRoom(s.Ctx, "room01"))

	_, err := s.Store.GetRoom(s.Ctx, "room01")
	s.ErrorIs(err, model.ErrRoomNotFound)
	_, err = s.Store.RoomOfUser(s.Ctx, 1)
	s.ErrorIs(err, model.ErrNotInRoom)
	_, err = s.Store.GetRoomValue(s.Ctx, "room01", "round")
	s.ErrorIs(err, model.ErrValueNotFound)
	_, err = s.Store.GetPlayerValue(s.Ctx, "room01", 1, "score")
	s.ErrorIs(err, model.ErrValueNotFound)
	isHost, err := s.Store.IsHost(s.Ctx, 1)
	s.Require().NoError(err)
	s.False(isHost)
}

func (s *Suite) TestExpiredRooms() {
	s.createRoom("old", 1, s.Now.Add(-2*time.Hour))
	s.createRoom("fresh", 2, s.Now)

	cutoff := s.Now.Add(-time.Hour)

	ids, err := s.Store.ExpiredRooms(s.Ctx, cutoff)
	s.Require().NoError(err)
	s.Equal([]model.RoomID{"old"}, ids)

	deleted, err := s.Store.DeleteExpiredRooms(s.Ctx, cutoff)
	s.Require().NoError(err)
	s.Equal(1, deleted)

	exists, err := s.Store.RoomExists(s.Ctx, "old")
	s.Require().NoError(err)
	s.False(exists)
	exists, err = s.Store.RoomExists(s.Ctx, "fresh")
	s.Require().NoError(err)
	s.True(exists)
}

// Membership tests

func (s *Suite) TestAddMemberUnknownRoom() {
	err := s.Store.AddMember(s.Ctx, "nope", 1)
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *Suite) TestAddMemberMovesUser() {
	s.createRoom("room01", 1, s.Now)
	s.createRoom("room02", 2, s.Now)

	s.Require().NoError(s.Store.AddMember(s.Ctx, "room01", 3))
	s.Require().NoError(s.Store.AddMember(s.Ctx, "room02", 3))

	room, err := s.Store.RoomOfUser(s.Ctx, 3)
	s.Require().NoError(err)
	s.Equal(model.RoomID("room02"), room)
}

func (s *Suite) TestRemoveMember() {
	s.createRoom("room01", 1, s.Now)
	s.Require().NoError(s.Store.AddMember(s.Ctx, "room01", 1))

	s.Require().NoError(s.Store.RemoveMember(s.Ctx, 1))
	_, err := s.Store.RoomOfUser(s.Ctx, 1)
	s.ErrorIs(err, model.ErrNotInRoom)

	// Removing again is a no-op
	s.NoError(s.Store.RemoveMember(s.Ctx, 1))
}

// Room data tests

func (s *Suite) TestRoomValues() {
	s.createRoom("room01", 1, s.Now)

	s.Require().NoError(s.Store.SaveRoomValue(s.Ctx, "room01", "round", "1"))
	s.Require().NoError(s.Store.SaveRoomValue(s.Ctx, "room01", "round", "2"))

	value, err := s.Store.GetRoomValue(s.Ctx, "room01", "round")
	s.Require().NoError(err)
	s.Equal("2", value)

	_, err = s.Store.GetRoomValue(s.Ctx, "room01", "missing")
	s.ErrorIs(err, model.ErrValueNotFound)

	err = s.Store.SaveRoomValue(s.Ctx, "nope", "round", "1")
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *Suite) TestPlayerValues() {
	s.createRoom("room01", 1, s.Now)

	s.Require().NoError(s.Store.SavePlayerValue(s.Ctx, "room01", 1, "score", "10"))
	s.Require().NoError(s.Store.SavePlayerValue(s.Ctx, "room01", 2, "score", "20"))

	value, err := s.Store.GetPlayerValue(s.Ctx, "room01", 1, "score")
	s.Require().NoError(err)
	s.Equal("10", value)
	value, err = s.Store.GetPlayerValue(s.Ctx, "room01", 2, "score")
	s.Require().NoError(err)
	s.Equal("20", value)

	_, err = s.Store.GetPlayerValue(s.Ctx, "room01", 3, "score")
	s.ErrorIs(err, model.ErrValueNotFound)
}
