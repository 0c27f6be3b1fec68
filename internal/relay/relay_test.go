package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/gameserver/internal/dependencies/mocks"
	"github.com/mcoot/gameserver/internal/model"
	"github.com/mcoot/gameserver/internal/protocol"
	"github.com/mcoot/gameserver/internal/registry"
	"github.com/mcoot/gameserver/internal/services/room"
	"github.com/mcoot/gameserver/internal/storage/memory"
	"github.com/mcoot/gameserver/internal/testutil"
)

type RelaySuite struct {
	suite.Suite
	rooms   *registry.Rooms
	random  *mocks.MockRandom
	roomCtl *room.Controller
	relay   *Relay
	ctx     context.Context

	host, guest         *registry.Client
	hostConn, guestConn *testutil.FakeConn
	roomID              model.RoomID
}

func TestRelaySuite(t *testing.T) {
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupTest() {
	store := memory.New()
	s.rooms = registry.NewRooms()
	s.random = mocks.NewMockRandom()
	clk := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	s.roomCtl = room.NewController(store, s.rooms, clk, s.random, room.DefaultIDLength, testutil.NopLogger())
	s.relay = New(s.rooms, s.roomCtl, testutil.NopLogger())
	s.ctx = context.Background()

	s.host, s.hostConn = s.player(1, "alice")
	s.guest, s.guestConn = s.player(2, "bob")

	s.random.QueueString("ROOM01")
	id, err := s.roomCtl.Create(s.ctx, s.host)
	s.Require().NoError(err)
	s.Require().NoError(s.roomCtl.Enter(s.ctx, s.guest, id))
	s.roomID = id
}

func (s *RelaySuite) player(id model.UserID, name string) (*registry.Client, *testutil.FakeConn) {
	conn := testutil.NewFakeConn()
	c := registry.NewClient(conn)
	c.SetUserID(id)
	c.SetUsername(name)
	c.SetAuthorization(model.CapPlayer, model.CapAuthenticated)
	return c, conn
}

func (s *RelaySuite) request(action string, value any, data string) *protocol.Envelope {
	env := &protocol.Envelope{
		Type:      protocol.TypeRequest,
		Action:    action,
		MessageID: "m",
		GameID:    string(s.roomID),
		Value:     value,
	}
	if data != "" {
		env.Data = json.RawMessage(data)
	}
	return env
}

func (s *RelaySuite) TestOnRoomOpenedRecordsHost() {
	s.relay.OnRoomOpened(s.ctx, s.host, s.roomID)

	value, err := s.roomCtl.Data(s.roomID).GetString(s.ctx, KeyHost)
	s.Require().NoError(err)
	s.Equal(`"alice"`, value)
}

func (s *RelaySuite) TestBroadcastSkipsSender() {
	err := s.relay.OnRoomMessage(s.ctx, s.guest, s.request(ActionBroadcast, nil, `[1,2,3]`))
	s.Require().NoError(err)

	ack := s.guestConn.Last()
	s.Equal(protocol.TypeResponse, ack.Type)
	s.Equal("m", ack.MessageID)
	s.Equal(1, ack.Value)
	s.Len(s.guestConn.Sent(), 1)

	out := s.hostConn.Last()
	s.Require().NotNil(out)
	s.Equal(protocol.TypeRequest, out.Type)
	s.Equal(ActionBroadcast, out.Action)
	s.Equal("bob", out.Username)
	s.Equal(string(s.roomID), out.GameID)
	s.JSONEq(`[1,2,3]`, string(out.Data))
	s.Empty(out.MessageID)
}

func (s *RelaySuite) TestSetAndGetData() {
	s.Require().NoError(s.relay.OnRoomMessage(s.ctx, s.host, s.request(ActionSetData, "score", `{"alice":3}`)))
	s.True(*s.hostConn.Last().Success)

	s.Require().NoError(s.relay.OnRoomMessage(s.ctx, s.guest, s.request(ActionGetData, "score", "")))
	resp := s.guestConn.Last()
	s.True(*resp.Success)
	s.JSONEq(`{"alice":3}`, string(resp.Data))
}

func (s *RelaySuite) TestGetMissingData() {
	s.Require().NoError(s.relay.OnRoomMessage(s.ctx, s.guest, s.request(ActionGetData, "nothing", "")))
	resp := s.guestConn.Last()
	s.False(*resp.Success)
	s.Nil(resp.Data)
}

func (s *RelaySuite) TestSetDataValidation() {
	err := s.relay.OnRoomMessage(s.ctx, s.host, s.request(ActionSetData, "", `1`))
	var pe *protocol.Error
	s.Require().ErrorAs(err, &pe)
	s.Equal(protocol.CodeMissingValue, pe.Code)

	err = s.relay.OnRoomMessage(s.ctx, s.host, s.request(ActionSetData, "k", `{broken`))
	s.Require().ErrorAs(err, &pe)
	s.Equal(protocol.CodeInvalidFormat, pe.Code)

	err = s.relay.OnRoomMessage(s.ctx, s.host, s.request(ActionGetData, nil, ""))
	s.Require().ErrorAs(err, &pe)
	s.Equal(protocol.CodeMissingValue, pe.Code)
}

func (s *RelaySuite) TestIgnoresOtherTraffic() {
	s.Require().NoError(s.relay.OnRoomMessage(s.ctx, s.host, s.request("dance", nil, "")))

	resp := s.request(ActionBroadcast, nil, `1`)
	resp.Type = protocol.TypeResponse
	s.Require().NoError(s.relay.OnRoomMessage(s.ctx, s.host, resp))

	s.Empty(s.hostConn.Sent())
	s.Empty(s.guestConn.Sent())
}
