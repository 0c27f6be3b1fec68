package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mcoot/gameserver/internal/protocol"
	"github.com/mcoot/gameserver/internal/transport/ws"
)

// RemoteError is an error envelope returned by the server
type RemoteError struct {
	Code    protocol.ErrorCode
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// Session is one websocket connection to the server
type Session struct {
	conn       *websocket.Conn
	serverName string
	timeout    time.Duration

	// messages received while waiting for a response
	pending []*protocol.Envelope
}

// Dial opens a websocket to the server's /ws endpoint
func Dial(ctx context.Context, serverURL string, timeout time.Duration) (*Session, error) {
	target, err := websocketURL(serverURL)
	if err != nil {
		return nil, err
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = timeout

	conn, resp, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connection failed: HTTP %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("connection failed: %w", err)
	}

	return &Session{
		conn:       conn,
		serverName: resp.Header.Get(ws.HeaderServerName),
		timeout:    timeout,
	}, nil
}

// websocketURL maps an http(s) server URL onto its ws(s) endpoint
func websocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server URL %q: unsupported scheme", serverURL)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

// ServerName is the name the server announced during the handshake
func (s *Session) ServerName() string {
	return s.serverName
}

// Request sends env and waits for the response carrying the same message id.
// Error envelopes for the request, and those with no message id, are returned
// as a *RemoteError alongside the envelope.
func (s *Session) Request(ctx context.Context, env *protocol.Envelope) (*protocol.Envelope, error) {
	if env.MessageID == "" {
		env.MessageID = uuid.NewString()
	}
	if err := s.Send(env); err != nil {
		return nil, err
	}

	deadline := s.deadline(ctx)
	for {
		msg, err := s.read(ctx, deadline)
		if err != nil {
			return nil, err
		}

		if msg.Type == protocol.TypeError && (msg.MessageID == env.MessageID || msg.MessageID == "") {
			return msg, &RemoteError{Code: msg.ErrorCode, Message: msg.Message}
		}
		if msg.MessageID == env.MessageID {
			return msg, nil
		}
		s.pending = append(s.pending, msg)
	}
}

// Send writes env without waiting for a reply
func (s *Session) Send(env *protocol.Envelope) error {
	data, err := protocol.Encode(env)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Next returns the next message from the server, waiting until ctx is done.
// A clean close by the server ends the stream with ErrClosed.
func (s *Session) Next(ctx context.Context) (*protocol.Envelope, error) {
	if len(s.pending) > 0 {
		msg := s.pending[0]
		s.pending = s.pending[1:]
		return msg, nil
	}

	deadline, _ := ctx.Deadline()

	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	return s.read(ctx, deadline)
}

// ErrClosed reports that the server closed the connection
var ErrClosed = errors.New("connection closed by server")

func (s *Session) read(ctx context.Context, deadline time.Time) (*protocol.Envelope, error) {
	_ = s.conn.SetReadDeadline(deadline)

	_, data, err := s.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			if closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway {
				return nil, fmt.Errorf("%w: %s", ErrClosed, closeErr.Text)
			}
			return nil, fmt.Errorf("connection closed: %d %s", closeErr.Code, closeErr.Text)
		}
		return nil, fmt.Errorf("failed to read message: %w", err)
	}

	var msg protocol.Envelope
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

func (s *Session) deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}

// Close sends a normal close frame and closes the connection
func (s *Session) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return s.conn.Close()
}
