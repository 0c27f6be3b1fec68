// Package dispatch routes inbound protocol messages through the
// authorization scopes and converts handler failures into error envelopes.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/mcoot/gameserver/internal/model"
	"github.com/mcoot/gameserver/internal/obs"
	"github.com/mcoot/gameserver/internal/protocol"
	"github.com/mcoot/gameserver/internal/registry"
	"github.com/mcoot/gameserver/internal/services/auth"
	"github.com/mcoot/gameserver/internal/services/room"
)

// Handler processes one message. claimed reports whether the handler took
// ownership of the message; an unclaimed message moves on to the next scope.
type Handler func(ctx context.Context, c *registry.Client, env *protocol.Envelope) (claimed bool, err error)

type route struct {
	typ    protocol.Type
	action string
}

// scope is one level of the routing order
type scope struct {
	name string
	// allowed gates the scope. A client that fails it skips the scope, or is
	// rejected with deny when deny is set.
	allowed  func(c *registry.Client) bool
	deny     error
	handlers map[route]Handler
}

// Deps holds the collaborators of a Dispatcher
type Deps struct {
	Connections *registry.Connections
	Rooms       *registry.Rooms
	RoomControl *room.Controller
	Auth        *auth.Service
	Hooks       Hooks
	Metrics     *obs.Metrics
	Logger      *slog.Logger
}

// Dispatcher owns the message state machine for every connection
type Dispatcher struct {
	conns   *registry.Connections
	rooms   *registry.Rooms
	roomCtl *room.Controller
	auth    *auth.Service
	hooks   Hooks
	metrics *obs.Metrics
	logger  *slog.Logger

	scopes []scope
}

// New creates a Dispatcher
func New(deps Deps) *Dispatcher {
	if deps.Hooks == nil {
		deps.Hooks = NopHooks{}
	}
	if deps.Metrics == nil {
		deps.Metrics = obs.NewMetrics()
	}
	d := &Dispatcher{
		conns:   deps.Connections,
		rooms:   deps.Rooms,
		roomCtl: deps.RoomControl,
		auth:    deps.Auth,
		hooks:   deps.Hooks,
		metrics: deps.Metrics,
		logger:  deps.Logger.With("component", "dispatch"),
	}
	d.scopes = d.buildScopes()
	return d
}

func (d *Dispatcher) buildScopes() []scope {
	always := func(*registry.Client) bool { return true }
	requires := func(mask model.Capability) func(*registry.Client) bool {
		return func(c *registry.Client) bool { return c.CheckAuth(mask) }
	}

	return []scope{
		{
			name:    "public",
			allowed: always,
			handlers: map[route]Handler{
				{protocol.TypeAuthenticate, protocol.ActionRegister}:    d.handleRegister,
				{protocol.TypeAuthenticate, protocol.ActionLogin}:       d.authenticating(d.handleLogin),
				{protocol.TypeAuthenticate, protocol.ActionLoginGuest}:  d.authenticating(d.handleLoginGuest),
				{protocol.TypeAuthenticate, protocol.ActionSessionAuth}: d.authenticating(d.handleSessionAuth),
				{protocol.TypeRequest, protocol.ActionValue}:            d.handlePublicValue,
			},
		},
		{
			name:    "base",
			allowed: requires(0),
			deny:    errNotPermitted,
			handlers: map[route]Handler{
				{protocol.TypeRequest, protocol.ActionSignOut}:    d.handleSignOut,
				{protocol.TypeRequest, protocol.ActionValue}:      d.handleValue,
				{protocol.TypeRequest, protocol.ActionCreateGame}: d.handleCreateGame,
				{protocol.TypeRequest, protocol.ActionEnterGame}:  d.handleEnterGame,
				{protocol.TypeRequest, protocol.ActionLeaveGame}:  d.handleLeaveGame,
			},
		},
		{
			name:    "root",
			allowed: requires(model.CapRoot),
			handlers: map[route]Handler{
				{protocol.TypeRequest, protocol.ActionDisconnectAll}: d.handleDisconnectAll,
			},
		},
		{
			name:    "manager",
			allowed: requires(model.CapManager),
			handlers: map[route]Handler{
				{protocol.TypeRequest, protocol.ActionServerStats}: d.handleServerStats,
			},
		},
	}
}

// Connect registers a new connection and returns its unauthenticated client
func (d *Dispatcher) Connect(conn registry.Conn) *registry.Client {
	c := d.conns.Register(conn)
	d.metrics.Connections.Set(float64(d.conns.Len()))
	d.logger.Debug("client connected", "conn", conn.ID(), "remote", conn.RemoteAddr())
	return c
}

// Disconnected drops a closed connection from the connection registry and
// its room in memory. Durable membership survives for session resume.
func (d *Dispatcher) Disconnected(c *registry.Client) {
	d.conns.Remove(c.ID())
	d.roomCtl.Detach(c)
	d.metrics.Connections.Set(float64(d.conns.Len()))
	d.logger.Debug("client disconnected", "conn", c.ID(), "user", c.Username())
}

// Handle processes one inbound payload for c. Calls for one client must be
// serialized by the caller. A non-nil error means the connection has been
// closed after an unclassified failure and must not be read further.
func (d *Dispatcher) Handle(ctx context.Context, c *registry.Client, raw []byte) error {
	env, err := protocol.Decode(raw)
	if err != nil {
		var msgID string
		if env != nil {
			msgID = env.MessageID
		}
		d.metrics.Messages.WithLabelValues("invalid", "error").Inc()
		return d.fail(c, err, msgID)
	}

	if c.CheckAuth(0) {
		if err := d.auth.Touch(ctx, c.SessionToken()); err != nil {
			d.logger.Warn("failed to touch session", "conn", c.ID(), "error", err)
		}
	}

	claimed, err := d.route(ctx, c, env)
	if err != nil {
		d.metrics.Messages.WithLabelValues(string(env.Type), "error").Inc()
		return d.fail(c, err, env.MessageID)
	}
	if !claimed {
		d.metrics.Messages.WithLabelValues(string(env.Type), "unclaimed").Inc()
		d.logger.Debug("message not handled", "conn", c.ID(), "type", env.Type, "action", env.Action)
		return nil
	}

	d.metrics.Messages.WithLabelValues(string(env.Type), "ok").Inc()
	return nil
}

func (d *Dispatcher) route(ctx context.Context, c *registry.Client, env *protocol.Envelope) (bool, error) {
	switch env.Type {
	case protocol.TypeAuthenticate, protocol.TypeRequest, protocol.TypeResponse:
	default:
		return false, errInvalidType
	}

	key := route{env.Type, env.Action}
	for _, sc := range d.scopes {
		if !sc.allowed(c) {
			if sc.deny != nil {
				return false, sc.deny
			}
			continue
		}
		if h, ok := sc.handlers[key]; ok {
			claimed, err := h(ctx, c, env)
			if err != nil || claimed {
				return claimed || err != nil, err
			}
		}
	}

	return d.forwardToRoom(ctx, c, env)
}

func (d *Dispatcher) forwardToRoom(ctx context.Context, c *registry.Client, env *protocol.Envelope) (bool, error) {
	id := c.Room()
	if id == "" {
		return false, nil
	}

	if err := d.roomCtl.Touch(ctx, id); err != nil {
		d.logger.Warn("failed to touch room", "room", id, "error", err)
	}
	if !c.CheckAuth(model.CapPlayer) {
		return false, nil
	}

	forwarded := *env
	forwarded.GameID = string(id)
	return true, d.hooks.OnRoomMessage(ctx, c, &forwarded)
}

// fail reports err to the client. Unclassified errors also close the
// connection and are returned.
func (d *Dispatcher) fail(c *registry.Client, err error, msgID string) error {
	pe, classified := toProtocolError(err)
	d.metrics.ProtocolErrors.WithLabelValues(pe.Code.String()).Inc()

	switch {
	case !classified:
		d.logger.Error("unhandled error, closing connection", "conn", c.ID(), "error", err)
	case pe.Code == protocol.CodeSQLError || pe.Code == protocol.CodeCloseFailed:
		d.logger.Error("request failed", "conn", c.ID(), "code", pe.Code.String(), "error", err)
	default:
		d.logger.Debug("request rejected", "conn", c.ID(), "code", pe.Code.String(), "error", err)
	}

	if sendErr := c.Send(protocol.NewErrorEnvelope(pe.Code, pe.Message, msgID)); sendErr != nil {
		d.logger.Warn("failed to send error", "conn", c.ID(), "error", sendErr)
	}

	if classified {
		return nil
	}
	if closeErr := c.Disconnect(registry.CloseInternalError, "Internal server error"); closeErr != nil {
		d.logger.Warn("failed to close connection", "conn", c.ID(), "error", closeErr)
	}
	return err
}

func (d *Dispatcher) respond(c *registry.Client, env *protocol.Envelope) error {
	return c.Send(env)
}
