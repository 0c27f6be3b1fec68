package dispatch

import (
	"context"

	"github.com/mcoot/gameserver/internal/model"
	"github.com/mcoot/gameserver/internal/protocol"
	"github.com/mcoot/gameserver/internal/registry"
)

// Hooks is implemented by the application running inside rooms
type Hooks interface {
	// OnRoomOpened is called after a room has been created and acknowledged
	OnRoomOpened(ctx context.Context, c *registry.Client, id model.RoomID)

	// OnRoomMessage receives messages from PLAYER members of a room that no
	// server scope claimed. env.GameID is set to the sender's room.
	OnRoomMessage(ctx context.Context, c *registry.Client, env *protocol.Envelope) error
}

// NopHooks ignores every room event
type NopHooks struct{}

func (NopHooks) OnRoomOpened(context.Context, *registry.Client, model.RoomID) {}

func (NopHooks) OnRoomMessage(context.Context, *registry.Client, *protocol.Envelope) error {
	return nil
}
