package factory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/gameserver/internal/model"
	"github.com/mcoot/gameserver/internal/protocol"
	"github.com/mcoot/gameserver/internal/registry"
	"github.com/mcoot/gameserver/internal/testutil"
)

type IntegrationSuite struct {
	suite.Suite
	app *TestApp
	ctx context.Context
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationSuite))
}

func (s *IntegrationSuite) SetupTest() {
	s.app = NewTestApp()
	s.ctx = context.Background()
}

func (s *IntegrationSuite) send(c *registry.Client, raw string) {
	s.Require().NoError(s.app.Dispatcher.Handle(s.ctx, c, []byte(raw)))
}

func (s *IntegrationSuite) guest(name string) (*registry.Client, *testutil.FakeConn) {
	c, conn := s.app.Connect()
	s.send(c, `{"type":"authenticate","action":"login_guest","username":"`+name+`"}`)
	resp := conn.Last()
	s.Require().NotNil(resp)
	s.Require().Equal(protocol.TypeResponse, resp.Type)
	s.Require().True(*resp.Success)
	conn.Clear()
	return c, conn
}

// Test: A host opens a room, a guest joins and they exchange messages
func (s *IntegrationSuite) TestRoomRelayFlow() {
	s.app.MockRandom.QueueString("TOKENAAA", "ROOM01", "TOKENBBB")

	// Step 1: Host signs in and opens a room
	host, hostConn := s.guest("alice")
	s.send(host, `{"type":"request","action":"create_game","message_id":"m1"}`)
	created := hostConn.Last()
	s.Equal("ROOM01", created.GameID)
	s.Equal("m1", created.MessageID)
	s.True(host.CheckAuth(model.CapHost))

	// Step 2: A second guest enters
	player, playerConn := s.guest("bob")
	s.send(player, `{"type":"request","action":"enter_game","game_id":"ROOM01"}`)
	s.Equal("ROOM01", playerConn.Last().GameID)
	s.Len(s.app.Rooms.MembersOf("ROOM01"), 2)

	// Step 3: The guest broadcasts to the room
	hostConn.Clear()
	s.send(player, `{"type":"request","action":"broadcast","data":{"move":"e4"}}`)
	s.Equal(1, playerConn.Last().Value)

	relayed := hostConn.Last()
	s.Require().NotNil(relayed)
	s.Equal("broadcast", relayed.Action)
	s.Equal("bob", relayed.Username)
	s.JSONEq(`{"move":"e4"}`, string(relayed.Data))

	// Step 4: Room data is shared between members
	s.send(host, `{"type":"request","action":"set_data","value":"turn","data":"bob"}`)
	s.True(*hostConn.Last().Success)
	s.send(player, `{"type":"request","action":"get_data","value":"turn"}`)
	s.JSONEq(`"bob"`, string(playerConn.Last().Data))

	s.send(player, `{"type":"request","action":"get_data","value":"host"}`)
	s.JSONEq(`"alice"`, string(playerConn.Last().Data))

	// Step 5: The guest leaves
	s.send(player, `{"type":"request","action":"leave_game"}`)
	s.True(*playerConn.Last().Success)
	s.Len(s.app.Rooms.MembersOf("ROOM01"), 1)

	_, err := s.app.Storage.RoomOfUser(s.ctx, player.UserID())
	s.ErrorIs(err, model.ErrNotInRoom)
}

// Test: A registered user logs in and reads their own values
func (s *IntegrationSuite) TestRegisteredLoginFlow() {
	c, conn := s.app.Connect()

	s.send(c, `{"type":"authenticate","action":"register","username":"carol","password":"hunter2"}`)
	s.True(*conn.Last().Success)
	s.False(c.CheckAuth(0))

	s.send(c, `{"type":"authenticate","action":"login","username":"carol","password":"wrong"}`)
	s.Equal(protocol.TypeError, conn.Last().Type)
	s.Equal(protocol.CodeLoginError, conn.Last().ErrorCode)

	s.send(c, `{"type":"authenticate","action":"login","username":"carol","password":"hunter2"}`)
	s.True(*conn.Last().Success)
	s.NotEmpty(conn.Last().SessionID)
	s.True(c.CheckAuth(model.CapRegistered | model.CapPlayer))

	s.send(c, `{"type":"request","action":"value","value":"username"}`)
	s.Equal("carol", conn.Last().Value)

	// A guest cannot take a registered name
	other, otherConn := s.app.Connect()
	s.send(other, `{"type":"authenticate","action":"login_guest","username":"carol"}`)
	s.Equal(protocol.CodeLoginError, otherConn.Last().ErrorCode)
}

// Test: A dropped connection resumes its session and room on a new connection
func (s *IntegrationSuite) TestSessionResumeFlow() {
	s.app.MockRandom.QueueString("TOKENAAA", "ROOM01")

	host, hostConn := s.guest("alice")
	s.send(host, `{"type":"request","action":"create_game"}`)
	s.Equal("ROOM01", hostConn.Last().GameID)

	s.app.Dispatcher.Disconnected(host)
	s.Equal(0, s.app.Connections.Len())
	s.Empty(s.app.Rooms.MembersOf("ROOM01"))

	resumed, conn := s.app.Connect()
	s.send(resumed, `{"type":"authenticate","action":"session_auth","session_id":"TOKENAAA"}`)
	s.True(*conn.Last().Success)
	s.Equal("TOKENAAA", conn.Last().SessionID)
	s.True(resumed.CheckAuth(model.CapHost))

	s.send(resumed, `{"type":"request","action":"value","value":"game_id"}`)
	s.Equal("ROOM01", conn.Last().Value)
	s.Len(s.app.Rooms.MembersOf("ROOM01"), 1)

	// Signing out ends the session for good
	s.send(resumed, `{"type":"request","action":"sign_out"}`)
	closed, code, reason := conn.Closed()
	s.True(closed)
	s.Equal(registry.CloseNormal, code)
	s.Equal("User signed out", reason)

	again, againConn := s.app.Connect()
	s.send(again, `{"type":"authenticate","action":"session_auth","session_id":"TOKENAAA"}`)
	s.False(*againConn.Last().Success)
}

// Test: The sweeper disconnects idle sessions and removes idle rooms
func (s *IntegrationSuite) TestSweeperExpiresIdleState() {
	s.app.MockRandom.QueueString("TOKENAAA", "ROOM01", "TOKENBBB")

	host, hostConn := s.guest("alice")
	s.send(host, `{"type":"request","action":"create_game"}`)

	// A second client stays active past the session timeout
	s.app.MockClock.Advance(20 * time.Minute)
	active, _ := s.guest("bob")

	s.app.MockClock.Advance(15 * time.Minute)
	res := s.app.Sweeper.RunOnce(s.ctx)
	s.False(res.Skipped)
	s.Empty(res.Failed)
	s.Equal(1, res.Disconnected)
	s.Equal(1, res.Sessions)
	s.Equal(0, res.Rooms)

	closed, _, reason := hostConn.Closed()
	s.True(closed)
	s.Equal("Session Timeout", reason)
	s.Equal(1, s.app.Connections.Len())
	s.True(active.CheckAuth(0))

	// The room outlives the session until its own timeout
	s.True(s.app.Rooms.Exists("ROOM01"))
	s.app.MockClock.Advance(30 * time.Minute)
	res = s.app.Sweeper.RunOnce(s.ctx)
	s.Equal(1, res.Rooms)
	s.False(s.app.Rooms.Exists("ROOM01"))

	exists, err := s.app.Storage.RoomExists(s.ctx, "ROOM01")
	s.Require().NoError(err)
	s.False(exists)
}

// Test: Role scoped actions are only served to elevated clients
func (s *IntegrationSuite) TestServerStatsRequiresManager() {
	c, conn := s.guest("dave")

	s.send(c, `{"type":"request","action":"server_stats","message_id":"s1"}`)
	s.Equal("dave", c.Username())
	s.Len(conn.Sent(), 0)

	c.AddAuthorization(model.CapManager)
	s.send(c, `{"type":"request","action":"server_stats","message_id":"s2"}`)

	resp := conn.Last()
	s.Require().NotNil(resp)
	s.Equal("s2", resp.MessageID)

	raw, err := json.Marshal(resp.Value)
	s.Require().NoError(err)
	s.JSONEq(`{"connections":1,"rooms":0}`, string(raw))
}
