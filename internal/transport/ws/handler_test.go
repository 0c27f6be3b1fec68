package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/gameserver/internal/factory"
	"github.com/mcoot/gameserver/internal/protocol"
	"github.com/mcoot/gameserver/internal/testutil"
)

type HandlerSuite struct {
	suite.Suite
	app    *factory.TestApp
	server *httptest.Server
	cfg    Config
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.app = factory.NewTestApp()
	s.cfg = DefaultConfig()
	s.cfg.ServerName = "test-server"
	s.cfg.RateLimit = 0
}

func (s *HandlerSuite) start() {
	handler := NewHandler(s.app.Dispatcher, s.cfg, s.app.Metrics, testutil.NopLogger())
	s.server = httptest.NewServer(handler)
}

func (s *HandlerSuite) TearDownTest() {
	if s.server != nil {
		s.server.Close()
		s.server = nil
	}
}

func (s *HandlerSuite) dial() *websocket.Conn {
	url := "ws" + strings.TrimPrefix(s.server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	s.Equal("test-server", resp.Header.Get(HeaderServerName))
	s.T().Cleanup(func() { _ = conn.Close() })
	return conn
}

func (s *HandlerSuite) exchange(conn *websocket.Conn, raw string) *protocol.Envelope {
	s.Require().NoError(conn.WriteMessage(websocket.TextMessage, []byte(raw)))
	return s.read(conn)
}

func (s *HandlerSuite) read(conn *websocket.Conn) *protocol.Envelope {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	var env protocol.Envelope
	s.Require().NoError(conn.ReadJSON(&env))
	return &env
}

func (s *HandlerSuite) TestLoginAndValue() {
	s.start()
	conn := s.dial()

	resp := s.exchange(conn, `{"type":"authenticate","action":"login_guest","username":"alice","message_id":"1"}`)
	s.Equal(protocol.TypeResponse, resp.Type)
	s.Equal("1", resp.MessageID)
	s.True(*resp.Success)
	s.NotEmpty(resp.SessionID)

	resp = s.exchange(conn, `{"type":"request","action":"value","value":"username"}`)
	s.Equal("alice", resp.Value)
	s.Equal(1, s.app.Connections.Len())
}

func (s *HandlerSuite) TestMalformedMessageKeepsConnection() {
	s.start()
	conn := s.dial()

	resp := s.exchange(conn, `{{{`)
	s.Equal(protocol.TypeError, resp.Type)
	s.Equal(protocol.CodeInvalidFormat, resp.ErrorCode)

	resp = s.exchange(conn, `{"type":"request","action":"value","value":"authenticated"}`)
	s.Equal(false, resp.Value)
}

func (s *HandlerSuite) TestSignOutClosesSocket() {
	s.start()
	conn := s.dial()
	s.exchange(conn, `{"type":"authenticate","action":"login_guest","username":"alice"}`)

	resp := s.exchange(conn, `{"type":"request","action":"sign_out"}`)
	s.True(*resp.Success)

	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	s.Require().ErrorAs(err, &closeErr)
	s.Equal(websocket.CloseNormalClosure, closeErr.Code)
	s.Equal("User signed out", closeErr.Text)

	s.Eventually(func() bool { return s.app.Connections.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func (s *HandlerSuite) TestClientCloseDeregisters() {
	s.start()
	conn := s.dial()
	s.exchange(conn, `{"type":"authenticate","action":"login_guest","username":"alice"}`)
	s.Equal(1, s.app.Connections.Len())

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	s.Require().NoError(conn.WriteMessage(websocket.CloseMessage, msg))

	s.Eventually(func() bool { return s.app.Connections.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func (s *HandlerSuite) TestRateLimited() {
	s.cfg.RateLimit = 0.001
	s.cfg.RateBurst = 1
	s.start()
	conn := s.dial()

	resp := s.exchange(conn, `{"type":"request","action":"value","value":"authenticated"}`)
	s.Equal(protocol.TypeResponse, resp.Type)

	resp = s.exchange(conn, `{"type":"request","action":"value","value":"authenticated"}`)
	s.Equal(protocol.TypeError, resp.Type)
	s.Equal(protocol.CodeRateLimited, resp.ErrorCode)
}

func (s *HandlerSuite) TestNotAWebsocket() {
	s.start()
	resp, err := s.server.Client().Get(s.server.URL)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(400, resp.StatusCode)
}

func (s *HandlerSuite) TestDefaultsApplied() {
	h := NewHandler(s.app.Dispatcher, Config{PongWait: time.Second, PingPeriod: 2 * time.Second}, nil, testutil.NopLogger())
	s.Equal("gameserver", h.cfg.ServerName)
	s.Equal(64, h.cfg.SendBuffer)
	s.Equal(900*time.Millisecond, h.cfg.PingPeriod)
	s.Equal(float64(0), h.cfg.RateLimit)
}
