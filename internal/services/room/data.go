package room

import (
	"context"
	"strconv"

	"github.com/mcoot/gameserver/internal/model"
	"github.com/mcoot/gameserver/internal/storage"
)

// Data is the durable key/value store attached to one room. Values are
// either room-wide or scoped to a player.
type Data struct {
	storage storage.Storage
	room    model.RoomID
}

// Room returns the room the data belongs to
func (d *Data) Room() model.RoomID {
	return d.room
}

func (d *Data) SaveString(ctx context.Context, key, value string) error {
	return d.storage.SaveRoomValue(ctx, d.room, key, value)
}

func (d *Data) GetString(ctx context.Context, key string) (string, error) {
	return d.storage.GetRoomValue(ctx, d.room, key)
}

func (d *Data) SaveInt(ctx context.Context, key string, value int) error {
	return d.SaveString(ctx, key, strconv.Itoa(value))
}

// GetInt reads a value saved with SaveInt
func (d *Data) GetInt(ctx context.Context, key string) (int, error) {
	s, err := d.GetString(ctx, key)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(s)
}

func (d *Data) SavePlayerString(ctx context.Context, userID model.UserID, key, value string) error {
	return d.storage.SavePlayerValue(ctx, d.room, userID, key, value)
}

func (d *Data) GetPlayerString(ctx context.Context, userID model.UserID, key string) (string, error) {
	return d.storage.GetPlayerValue(ctx, d.room, userID, key)
}

func (d *Data) SavePlayerInt(ctx context.Context, userID model.UserID, key string, value int) error {
	return d.SavePlayerString(ctx, userID, key, strconv.Itoa(value))
}

func (d *Data) GetPlayerInt(ctx context.Context, userID model.UserID, key string) (int, error) {
	s, err := d.GetPlayerString(ctx, userID, key)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(s)
}
