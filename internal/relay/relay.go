// Package relay is the default room application: it fans messages out to
// room members and exposes the room's key/value data.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/mcoot/gameserver/internal/dispatch"
	"github.com/mcoot/gameserver/internal/model"
	"github.com/mcoot/gameserver/internal/protocol"
	"github.com/mcoot/gameserver/internal/registry"
	"github.com/mcoot/gameserver/internal/services/room"
)

// Room-scoped actions
const (
	ActionBroadcast = "broadcast"
	ActionSetData   = "set_data"
	ActionGetData   = "get_data"
)

// KeyHost is the room value recording who opened the room
const KeyHost = "host"

// Relay implements dispatch.Hooks
type Relay struct {
	rooms   *registry.Rooms
	roomCtl *room.Controller
	logger  *slog.Logger
}

var _ dispatch.Hooks = (*Relay)(nil)

// New creates a Relay
func New(rooms *registry.Rooms, roomCtl *room.Controller, logger *slog.Logger) *Relay {
	return &Relay{
		rooms:   rooms,
		roomCtl: roomCtl,
		logger:  logger.With("component", "relay"),
	}
}

// OnRoomOpened records the opening host's name, JSON encoded, in the room data
func (r *Relay) OnRoomOpened(ctx context.Context, c *registry.Client, id model.RoomID) {
	host, _ := json.Marshal(c.Username())
	if err := r.roomCtl.Data(id).SaveString(ctx, KeyHost, string(host)); err != nil {
		r.logger.Warn("failed to record room host", "room", id, "error", err)
	}
}

// OnRoomMessage handles the relay actions and ignores everything else
func (r *Relay) OnRoomMessage(ctx context.Context, c *registry.Client, env *protocol.Envelope) error {
	if env.Type != protocol.TypeRequest {
		return nil
	}

	switch env.Action {
	case ActionBroadcast:
		return r.broadcast(c, env)
	case ActionSetData:
		return r.setData(ctx, c, env)
	case ActionGetData:
		return r.getData(ctx, c, env)
	default:
		return nil
	}
}

func (r *Relay) broadcast(c *registry.Client, env *protocol.Envelope) error {
	id := model.RoomID(env.GameID)
	out := &protocol.Envelope{
		Type:     protocol.TypeRequest,
		Action:   ActionBroadcast,
		GameID:   env.GameID,
		Username: c.Username(),
		Data:     env.Data,
	}

	delivered := 0
	for _, member := range r.rooms.MembersOf(id) {
		if member.ID() == c.ID() {
			continue
		}
		if err := member.Send(out); err != nil {
			r.logger.Debug("broadcast to member failed", "room", id, "conn", member.ID(), "error", err)
			continue
		}
		delivered++
	}

	resp := protocol.NewResponse(env)
	resp.Success = protocol.Bool(true)
	resp.GameID = env.GameID
	resp.Value = delivered
	return c.Send(resp)
}

func (r *Relay) setData(ctx context.Context, c *registry.Client, env *protocol.Envelope) error {
	key := env.ValueName()
	if key == "" || len(env.Data) == 0 {
		return protocol.NewError(protocol.CodeMissingValue, "Data key and value are required")
	}
	if !json.Valid(env.Data) {
		return protocol.NewError(protocol.CodeInvalidFormat, "Data is not valid JSON")
	}

	if err := r.roomCtl.Data(model.RoomID(env.GameID)).SaveString(ctx, key, string(env.Data)); err != nil {
		return err
	}

	resp := protocol.NewResponse(env)
	resp.Success = protocol.Bool(true)
	resp.GameID = env.GameID
	return c.Send(resp)
}

func (r *Relay) getData(ctx context.Context, c *registry.Client, env *protocol.Envelope) error {
	key := env.ValueName()
	if key == "" {
		return protocol.NewError(protocol.CodeMissingValue, "Data key is required")
	}

	resp := protocol.NewResponse(env)
	resp.GameID = env.GameID

	value, err := r.roomCtl.Data(model.RoomID(env.GameID)).GetString(ctx, key)
	switch {
	case errors.Is(err, model.ErrValueNotFound):
		resp.Success = protocol.Bool(false)
	case err != nil:
		return err
	default:
		resp.Success = protocol.Bool(true)
		resp.Data = json.RawMessage(value)
	}
	return c.Send(resp)
}
