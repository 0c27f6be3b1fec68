package dispatch

import (
	"context"
	"errors"

	"github.com/mcoot/gameserver/internal/model"
	"github.com/mcoot/gameserver/internal/protocol"
	"github.com/mcoot/gameserver/internal/registry"
)

func (d *Dispatcher) handlePublicValue(_ context.Context, c *registry.Client, env *protocol.Envelope) (bool, error) {
	switch env.ValueName() {
	case "":
		return true, missingValue("Value name cannot be empty")
	case protocol.ValueAuthenticated:
		resp := protocol.NewResponse(env)
		resp.Value = c.CheckAuth(0)
		return true, d.respond(c, resp)
	default:
		return false, nil
	}
}

func (d *Dispatcher) handleValue(_ context.Context, c *registry.Client, env *protocol.Envelope) (bool, error) {
	resp := protocol.NewResponse(env)

	switch env.ValueName() {
	case protocol.ValueAuthenticated:
		resp.Value = c.CheckAuth(0)
	case protocol.ValueUsername:
		resp.Value = c.Username()
	case protocol.ValueGameID:
		resp.Value = string(c.Room())
	default:
		return true, protocol.NewError(protocol.CodeInvalidAction, "Invalid value")
	}
	return true, d.respond(c, resp)
}

// handleSignOut acknowledges, closes the connection and removes every trace
// of the session. Cleanup completes even when the close fails.
func (d *Dispatcher) handleSignOut(ctx context.Context, c *registry.Client, env *protocol.Envelope) (bool, error) {
	resp := protocol.NewResponse(env)
	resp.Success = protocol.Bool(true)
	if err := d.respond(c, resp); err != nil {
		d.logger.Warn("failed to acknowledge sign out", "conn", c.ID(), "error", err)
	}

	closeErr := c.Disconnect(registry.CloseNormal, "User signed out")

	d.conns.Remove(c.ID())
	d.roomCtl.Detach(c)
	endErr := d.auth.EndSession(ctx, c.UserID(), c.SessionToken())

	d.logger.Info("client signed out", "conn", c.ID(), "user", c.Username())
	c.Reset()
	d.metrics.Connections.Set(float64(d.conns.Len()))

	if closeErr != nil {
		return true, protocol.Wrap(protocol.CodeCloseFailed, "Server can't sign out client", closeErr)
	}
	return true, endErr
}

func (d *Dispatcher) handleCreateGame(ctx context.Context, c *registry.Client, env *protocol.Envelope) (bool, error) {
	id, err := d.roomCtl.Create(ctx, c)
	if err != nil {
		return true, err
	}
	d.metrics.Rooms.Set(float64(d.rooms.Len()))

	resp := protocol.NewResponse(env)
	resp.GameID = string(id)
	if err := d.respond(c, resp); err != nil {
		return true, err
	}

	d.hooks.OnRoomOpened(ctx, c, id)
	return true, nil
}

func (d *Dispatcher) handleEnterGame(ctx context.Context, c *registry.Client, env *protocol.Envelope) (bool, error) {
	if env.GameID == "" {
		return true, missingValue("Game id cannot be empty")
	}

	id := model.RoomID(env.GameID)
	if err := d.roomCtl.Enter(ctx, c, id); err != nil {
		return true, err
	}
	d.metrics.Rooms.Set(float64(d.rooms.Len()))

	resp := protocol.NewResponse(env)
	resp.GameID = string(id)
	return true, d.respond(c, resp)
}

func (d *Dispatcher) handleLeaveGame(ctx context.Context, c *registry.Client, env *protocol.Envelope) (bool, error) {
	id := c.Room()
	if err := d.roomCtl.Leave(ctx, c); err != nil {
		if errors.Is(err, model.ErrNotInRoom) {
			return true, errNotPermitted
		}
		return true, err
	}

	resp := protocol.NewResponse(env)
	resp.Success = protocol.Bool(true)
	resp.GameID = string(id)
	return true, d.respond(c, resp)
}
