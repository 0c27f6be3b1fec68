package room

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/gameserver/internal/dependencies/mocks"
	"github.com/mcoot/gameserver/internal/ids"
	"github.com/mcoot/gameserver/internal/model"
	"github.com/mcoot/gameserver/internal/registry"
	"github.com/mcoot/gameserver/internal/storage"
	"github.com/mcoot/gameserver/internal/storage/memory"
	"github.com/mcoot/gameserver/internal/testutil"
)

// failingStorage fails AddMember on demand and can report a room id as
// claimed by another writer between the id check and the insert
type failingStorage struct {
	*memory.Storage
	failAddMember bool
	claimed       model.RoomID
}

func (f *failingStorage) CreateRoom(ctx context.Context, room *model.Room) error {
	if f.claimed != "" && room.ID == f.claimed {
		return model.ErrRoomExists
	}
	return f.Storage.CreateRoom(ctx, room)
}

func (f *failingStorage) AddMember(ctx context.Context, id model.RoomID, userID model.UserID) error {
	if f.failAddMember {
		return storage.Wrap("add member", errors.New("disk full"))
	}
	return f.Storage.AddMember(ctx, id, userID)
}

type ControllerSuite struct {
	suite.Suite
	storage    *failingStorage
	rooms      *registry.Rooms
	clock      *mocks.MockClock
	random     *mocks.MockRandom
	controller *Controller
	ctx        context.Context
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

func (s *ControllerSuite) SetupTest() {
	s.storage = &failingStorage{Storage: memory.New()}
	s.rooms = registry.NewRooms()
	s.clock = mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.random = mocks.NewMockRandom()
	s.controller = NewController(s.storage, s.rooms, s.clock, s.random, DefaultIDLength, testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *ControllerSuite) newPlayer(id model.UserID) *registry.Client {
	c := registry.NewClient(testutil.NewFakeConn())
	c.SetUserID(id)
	c.SetAuthorization(model.CapPlayer, model.CapAuthenticated)
	return c
}

// Create tests

func (s *ControllerSuite) TestCreate() {
	s.random.QueueString("ROOM01")
	host := s.newPlayer(1)

	id, err := s.controller.Create(s.ctx, host)
	s.Require().NoError(err)
	s.Equal(model.RoomID("ROOM01"), id)

	s.Equal(id, host.Room())
	s.True(host.CheckAuth(model.CapHost))
	s.Len(s.rooms.MembersOf(id), 1)

	room, err := s.storage.GetRoom(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(model.UserID(1), room.HostID)

	durable, err := s.storage.RoomOfUser(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(id, durable)
}

func (s *ControllerSuite) TestCreateSkipsTakenIDs() {
	s.random.QueueString("ROOM01", "ROOM01", "ROOM02")

	_, err := s.controller.Create(s.ctx, s.newPlayer(1))
	s.Require().NoError(err)

	id, err := s.controller.Create(s.ctx, s.newPlayer(2))
	s.Require().NoError(err)
	s.Equal(model.RoomID("ROOM02"), id)
}

func (s *ControllerSuite) TestCreateRetriesWhenIDClaimedConcurrently() {
	s.random.QueueString("ROOM01", "ROOM02")
	s.storage.claimed = "ROOM01"
	host := s.newPlayer(1)

	id, err := s.controller.Create(s.ctx, host)
	s.Require().NoError(err)
	s.Equal(model.RoomID("ROOM02"), id)
	s.Equal(id, host.Room())
	s.False(s.rooms.Exists("ROOM01"))
	s.True(s.rooms.Exists("ROOM02"))
}

func (s *ControllerSuite) TestCreateGivesUpWhenEveryIDIsClaimed() {
	s.random.QueueString("ROOM01", "ROOM01", "ROOM01", "ROOM01", "ROOM01")
	s.storage.claimed = "ROOM01"
	host := s.newPlayer(1)

	_, err := s.controller.Create(s.ctx, host)
	s.ErrorIs(err, ids.ErrExhausted)
	s.Empty(host.Room())
	s.False(host.CheckAuth(model.CapHost))
	s.False(s.rooms.Exists("ROOM01"))
}

func (s *ControllerSuite) TestCreateWhileInRoom() {
	host := s.newPlayer(1)
	_, err := s.controller.Create(s.ctx, host)
	s.Require().NoError(err)

	_, err = s.controller.Create(s.ctx, host)
	s.ErrorIs(err, model.ErrAlreadyInRoom)
}

func (s *ControllerSuite) TestCreateRollsBackOnStorageFailure() {
	s.random.QueueString("ROOM01")
	s.storage.failAddMember = true
	host := s.newPlayer(1)

	_, err := s.controller.Create(s.ctx, host)

	var opErr *storage.OpError
	s.ErrorAs(err, &opErr)
	s.False(s.rooms.Exists("ROOM01"))
	s.Empty(host.Room())
	s.False(host.CheckAuth(model.CapHost))
	exists, err := s.storage.RoomExists(s.ctx, "ROOM01")
	s.Require().NoError(err)
	s.False(exists)
}

// Enter tests

func (s *ControllerSuite) TestEnter() {
	id, err := s.controller.Create(s.ctx, s.newPlayer(1))
	s.Require().NoError(err)

	guest := s.newPlayer(2)
	s.Require().NoError(s.controller.Enter(s.ctx, guest, id))

	s.Equal(id, guest.Room())
	s.Len(s.rooms.MembersOf(id), 2)
	durable, err := s.storage.RoomOfUser(s.ctx, 2)
	s.Require().NoError(err)
	s.Equal(id, durable)
}

func (s *ControllerSuite) TestEnterSameRoomIsIdempotent() {
	id, err := s.controller.Create(s.ctx, s.newPlayer(1))
	s.Require().NoError(err)
	guest := s.newPlayer(2)
	s.Require().NoError(s.controller.Enter(s.ctx, guest, id))

	s.NoError(s.controller.Enter(s.ctx, guest, id))
	s.Len(s.rooms.MembersOf(id), 2)
}

func (s *ControllerSuite) TestEnterOtherRoomWhileInRoom() {
	s.random.QueueString("ROOM01", "ROOM02")
	_, err := s.controller.Create(s.ctx, s.newPlayer(1))
	s.Require().NoError(err)
	guest := s.newPlayer(2)
	_, err = s.controller.Create(s.ctx, guest)
	s.Require().NoError(err)

	s.ErrorIs(s.controller.Enter(s.ctx, guest, "ROOM01"), model.ErrAlreadyInRoom)
}

func (s *ControllerSuite) TestEnterUnknownRoom() {
	err := s.controller.Enter(s.ctx, s.newPlayer(2), "NOPE00")
	s.ErrorIs(err, model.ErrRoomNotFound)
}

func (s *ControllerSuite) TestEnterRepairsRegistryFromStorage() {
	s.Require().NoError(s.storage.CreateRoom(s.ctx, &model.Room{ID: "OLD001", HostID: 9, LastAccess: s.clock.Now()}))

	guest := s.newPlayer(2)
	s.Require().NoError(s.controller.Enter(s.ctx, guest, "OLD001"))
	s.True(s.rooms.Exists("OLD001"))
}

func (s *ControllerSuite) TestEnterRollsBackOnStorageFailure() {
	id, err := s.controller.Create(s.ctx, s.newPlayer(1))
	s.Require().NoError(err)
	s.storage.failAddMember = true

	guest := s.newPlayer(2)
	s.Error(s.controller.Enter(s.ctx, guest, id))

	s.Empty(guest.Room())
	s.Len(s.rooms.MembersOf(id), 1)
}

// Leave / Detach / Restore tests

func (s *ControllerSuite) TestLeave() {
	id, err := s.controller.Create(s.ctx, s.newPlayer(1))
	s.Require().NoError(err)
	guest := s.newPlayer(2)
	s.Require().NoError(s.controller.Enter(s.ctx, guest, id))

	s.Require().NoError(s.controller.Leave(s.ctx, guest))

	s.Empty(guest.Room())
	s.Len(s.rooms.MembersOf(id), 1)
	_, err = s.storage.RoomOfUser(s.ctx, 2)
	s.ErrorIs(err, model.ErrNotInRoom)

	s.ErrorIs(s.controller.Leave(s.ctx, guest), model.ErrNotInRoom)
}

func (s *ControllerSuite) TestLeaveRevokesHost() {
	s.random.QueueString("ROOMAA", "ROOMBB")
	alice := s.newPlayer(1)
	_, err := s.controller.Create(s.ctx, alice)
	s.Require().NoError(err)
	s.Require().NoError(s.controller.Leave(s.ctx, alice))
	s.False(alice.CheckAuth(model.CapHost))

	bob := s.newPlayer(2)
	id, err := s.controller.Create(s.ctx, bob)
	s.Require().NoError(err)
	s.Require().NoError(s.controller.Enter(s.ctx, alice, id))

	hosts := 0
	for _, member := range s.rooms.MembersOf(id) {
		if member.CheckAuth(model.CapHost) {
			hosts++
		}
	}
	s.Equal(1, hosts)
	got, ok := s.rooms.HostOf(id)
	s.Require().True(ok)
	s.Same(bob, got)
}

func (s *ControllerSuite) TestHostRegainsHostOnReturn() {
	host := s.newPlayer(1)
	id, err := s.controller.Create(s.ctx, host)
	s.Require().NoError(err)
	s.Require().NoError(s.controller.Leave(s.ctx, host))

	s.Require().NoError(s.controller.Enter(s.ctx, host, id))
	s.True(host.CheckAuth(model.CapHost))
}

func (s *ControllerSuite) TestLeaveKeepsRoleHostBit() {
	id, err := s.controller.Create(s.ctx, s.newPlayer(1))
	s.Require().NoError(err)
	manager := registry.NewClient(testutil.NewFakeConn())
	manager.SetUserID(5)
	manager.SetAuthorization(model.CapManager, model.CapAuthenticated)
	s.Require().NoError(s.controller.Enter(s.ctx, manager, id))

	s.Require().NoError(s.controller.Leave(s.ctx, manager))
	s.True(manager.CheckAuth(model.CapManager))
}

func (s *ControllerSuite) TestDetachKeepsDurableMembership() {
	host := s.newPlayer(1)
	id, err := s.controller.Create(s.ctx, host)
	s.Require().NoError(err)

	s.controller.Detach(host)

	s.Empty(s.rooms.MembersOf(id))
	durable, err := s.storage.RoomOfUser(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(id, durable)
}

func (s *ControllerSuite) TestRestoreAfterRestart() {
	s.Require().NoError(s.storage.CreateRoom(s.ctx, &model.Room{ID: "OLD001", HostID: 1, LastAccess: s.clock.Now()}))
	s.Require().NoError(s.storage.AddMember(s.ctx, "OLD001", 1))

	client := s.newPlayer(1)
	s.Require().NoError(s.controller.Restore(s.ctx, client, "OLD001"))

	s.Equal(model.RoomID("OLD001"), client.Room())
	s.Len(s.rooms.MembersOf("OLD001"), 1)
}

// Expire tests

func (s *ControllerSuite) TestExpire() {
	s.random.QueueString("OLD001", "NEW001")
	oldHost := s.newPlayer(1)
	oldID, err := s.controller.Create(s.ctx, oldHost)
	s.Require().NoError(err)

	s.clock.Advance(2 * time.Hour)
	newID, err := s.controller.Create(s.ctx, s.newPlayer(2))
	s.Require().NoError(err)

	removed, err := s.controller.Expire(s.ctx, s.clock.Now().Add(-time.Hour))
	s.Require().NoError(err)
	s.Equal(1, removed)

	s.False(s.rooms.Exists(oldID))
	s.Empty(oldHost.Room())
	s.False(oldHost.CheckAuth(model.CapHost))
	s.True(s.rooms.Exists(newID))

	exists, err := s.storage.RoomExists(s.ctx, oldID)
	s.Require().NoError(err)
	s.False(exists)
}

func (s *ControllerSuite) TestTouchedRoomIsNotExpired() {
	id, err := s.controller.Create(s.ctx, s.newPlayer(1))
	s.Require().NoError(err)

	s.clock.Advance(2 * time.Hour)
	s.Require().NoError(s.controller.Touch(s.ctx, id))

	removed, err := s.controller.Expire(s.ctx, s.clock.Now().Add(-time.Hour))
	s.Require().NoError(err)
	s.Zero(removed)
	s.True(s.rooms.Exists(id))
}

// Data tests

func (s *ControllerSuite) TestData() {
	id, err := s.controller.Create(s.ctx, s.newPlayer(1))
	s.Require().NoError(err)
	data := s.controller.Data(id)

	s.Require().NoError(data.SaveInt(s.ctx, "round", 3))
	round, err := data.GetInt(s.ctx, "round")
	s.Require().NoError(err)
	s.Equal(3, round)

	s.Require().NoError(data.SavePlayerString(s.ctx, 1, "colour", "red"))
	colour, err := data.GetPlayerString(s.ctx, 1, "colour")
	s.Require().NoError(err)
	s.Equal("red", colour)

	s.Require().NoError(data.SavePlayerInt(s.ctx, 1, "score", 42))
	score, err := data.GetPlayerInt(s.ctx, 1, "score")
	s.Require().NoError(err)
	s.Equal(42, score)

	_, err = data.GetString(s.ctx, "missing")
	s.ErrorIs(err, model.ErrValueNotFound)
}
