package redis

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/gameserver/internal/model"
	"github.com/mcoot/gameserver/internal/storage"
	"github.com/mcoot/gameserver/internal/storage/storagetest"
)

type StorageSuite struct {
	storagetest.Suite
	mini    *miniredis.Miniredis
	storage *Storage
}

func TestStorageSuite(t *testing.T) {
	s := new(StorageSuite)
	s.NewStorage = func() storage.Storage {
		s.mini = miniredis.RunT(s.T())
		client := redis.NewClient(&redis.Options{
			Addr: s.mini.Addr(),
		})
		s.storage = NewWithClient(client, DefaultConfig())
		return s.storage
	}
	suite.Run(t, s)
}

func (s *StorageSuite) TearDownTest() {
	if s.storage != nil {
		_ = s.storage.Close()
	}
	if s.mini != nil {
		s.mini.Close()
	}
}

func (s *StorageSuite) TestSessionAccessIsIndexed() {
	_, err := s.Store.UpsertSession(s.Ctx, "tokenA", "alice", s.Now)
	s.Require().NoError(err)

	s.True(s.mini.Exists(sessionKey("tokenA")))

	members, err := s.mini.ZMembers(sessionAccessKey())
	s.Require().NoError(err)
	s.Equal([]string{"tokenA"}, members)

	score, err := s.mini.ZScore(sessionAccessKey(), "tokenA")
	s.Require().NoError(err)
	s.Equal(float64(s.Now.UnixMilli()), score)
}

func (s *StorageSuite) TestTouchDoesNotCreateIndexEntry() {
	s.Require().NoError(s.Store.TouchRoom(s.Ctx, "ghost", s.Now))

	s.False(s.mini.Exists(roomAccessKey()))
}

func (s *StorageSuite) TestRoomKeysRemovedOnDelete() {
	s.Require().NoError(s.Store.CreateRoom(s.Ctx, &model.Room{
		ID:         "room01",
		HostID:     1,
		CreatedAt:  s.Now,
		LastAccess: s.Now,
	}))
	s.Require().NoError(s.Store.AddMember(s.Ctx, "room01", 1))
	s.Require().NoError(s.Store.SaveRoomValue(s.Ctx, "room01", "round", "1"))

	s.True(s.mini.Exists(roomMembersKey("room01")))
	s.True(s.mini.Exists(roomDataKey("room01")))

	s.Require().NoError(s.Store.DeleteRoom(s.Ctx, "room01"))

	s.False(s.mini.Exists(roomKey("room01")))
	s.False(s.mini.Exists(roomMembersKey("room01")))
	s.False(s.mini.Exists(roomDataKey("room01")))
	s.False(s.mini.Exists(memberKey(1)))
	s.False(s.mini.Exists(hostIndexKey(1)))
}

func (s *StorageSuite) TestDeleteRoomKeepsMembershipInOtherRoom() {
	for _, id := range []model.RoomID{"room01", "room02"} {
		s.Require().NoError(s.Store.CreateRoom(s.Ctx, &model.Room{ID: id, HostID: 9, CreatedAt: s.Now, LastAccess: s.Now}))
	}
	s.Require().NoError(s.Store.AddMember(s.Ctx, "room01", 1))
	s.Require().NoError(s.Store.AddMember(s.Ctx, "room02", 1))

	s.Require().NoError(s.Store.DeleteRoom(s.Ctx, "room01"))

	room, err := s.Store.RoomOfUser(s.Ctx, 1)
	s.Require().NoError(err)
	s.Equal(model.RoomID("room02"), room)
}

func (s *StorageSuite) TestBackendErrorIsWrapped() {
	s.mini.SetError("boom")
	defer s.mini.SetError("")

	_, err := s.Store.GetSession(s.Ctx, "tokenA")
	s.Require().Error(err)

	var opErr *storage.OpError
	s.ErrorAs(err, &opErr)
	s.Equal("get session", opErr.Op)
}

func (s *StorageSuite) TestScoresUseMilliseconds() {
	s.Equal(s.Now, fromScore(toScore(s.Now)))
	s.Equal("1704110400000", scoreBound(s.Now))
	s.Equal(s.Now.Add(time.Millisecond), fromScore(toScore(s.Now.Add(time.Millisecond))))
}

func (s *StorageSuite) TestCorruptRecordsAreStorageErrors() {
	s.Require().NoError(s.mini.Set(sessionKey("tokenA"), "{not json"))
	s.Require().NoError(s.mini.Set(roomKey("room01"), "{not json"))
	s.Require().NoError(s.mini.Set(credentialKey("alice"), "{not json"))

	var opErr *storage.OpError

	_, err := s.Store.GetSession(s.Ctx, "tokenA")
	s.ErrorAs(err, &opErr)

	_, err = s.Store.GetRoom(s.Ctx, "room01")
	s.ErrorAs(err, &opErr)

	_, err = s.Store.GetCredential(s.Ctx, "alice")
	s.ErrorAs(err, &opErr)
}
