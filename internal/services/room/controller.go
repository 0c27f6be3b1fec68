// Package room manages the room lifecycle across the in-memory registry and
// durable storage.
package room

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mcoot/gameserver/internal/dependencies/clock"
	"github.com/mcoot/gameserver/internal/dependencies/random"
	"github.com/mcoot/gameserver/internal/ids"
	"github.com/mcoot/gameserver/internal/model"
	"github.com/mcoot/gameserver/internal/registry"
	"github.com/mcoot/gameserver/internal/storage"
)

// DefaultIDLength is the length of generated room ids
const DefaultIDLength = 6

const createAttempts = 5

// Controller applies room mutations to the registry first and storage second,
// rolling the registry back when the durable write fails. Mutations of one
// room are serialized by a per-room lock.
type Controller struct {
	storage storage.Storage
	rooms   *registry.Rooms
	locks   *registry.KeyedMutex
	clock   clock.Clock
	ids     *ids.Generator
	logger  *slog.Logger
}

// NewController creates a new room Controller
func NewController(
	storage storage.Storage,
	rooms *registry.Rooms,
	clock clock.Clock,
	random random.Random,
	idLength int,
	logger *slog.Logger,
) *Controller {
	if idLength <= 0 {
		idLength = DefaultIDLength
	}
	return &Controller{
		storage: storage,
		rooms:   rooms,
		locks:   registry.NewKeyedMutex(),
		clock:   clock,
		ids:     ids.NewGenerator(random, idLength),
		logger:  logger.With("component", "room"),
	}
}

func (c *Controller) idTaken(ctx context.Context, id string) (bool, error) {
	if c.rooms.Exists(model.RoomID(id)) {
		return true, nil
	}
	return c.storage.RoomExists(ctx, model.RoomID(id))
}

// Create opens a new room hosted by client and grants it HOST
func (c *Controller) Create(ctx context.Context, client *registry.Client) (model.RoomID, error) {
	if client.Room() != "" {
		return "", model.ErrAlreadyInRoom
	}

	// A generated id can be claimed by a concurrent Create before its lock is held
	for attempt := 0; attempt < createAttempts; attempt++ {
		id, err := c.tryCreate(ctx, client)
		if errors.Is(err, model.ErrRoomExists) {
			c.logger.Debug("room id claimed concurrently, retrying", "room", id)
			continue
		}
		return id, err
	}
	return "", ids.ErrExhausted
}

func (c *Controller) tryCreate(ctx context.Context, client *registry.Client) (model.RoomID, error) {
	raw, err := c.ids.Generate(ctx, c.idTaken)
	if err != nil {
		return "", err
	}
	id := model.RoomID(raw)

	unlock := c.locks.Lock(raw)
	defer unlock()

	if err := c.rooms.Create(id, client); err != nil {
		return id, err
	}

	now := c.clock.Now()
	room := &model.Room{
		ID:         id,
		HostID:     client.UserID(),
		CreatedAt:  now,
		LastAccess: now,
	}
	if err := c.storage.CreateRoom(ctx, room); err != nil {
		c.rooms.Delete(id)
		return id, err
	}
	if err := c.storage.AddMember(ctx, id, client.UserID()); err != nil {
		if delErr := c.storage.DeleteRoom(ctx, id); delErr != nil {
			c.logger.Error("failed to roll back room", "room", id, "error", delErr)
		}
		c.rooms.Delete(id)
		return "", err
	}

	client.SetRoom(id)
	client.GrantHost()

	c.logger.Info("room created", "room", id, "host", client.Username())
	return id, nil
}

// Enter adds client to an existing room. Entering the current room is a no-op.
func (c *Controller) Enter(ctx context.Context, client *registry.Client, id model.RoomID) error {
	switch current := client.Room(); {
	case current == id:
		return nil
	case current != "":
		return model.ErrAlreadyInRoom
	}

	unlock := c.locks.Lock(string(id))
	defer unlock()

	if !c.rooms.Exists(id) {
		exists, err := c.storage.RoomExists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return model.ErrRoomNotFound
		}
		c.rooms.Ensure(id)
	}

	if err := c.rooms.AddMember(id, client); err != nil {
		return err
	}
	if err := c.storage.AddMember(ctx, id, client.UserID()); err != nil {
		c.rooms.RemoveMember(id, client)
		return err
	}
	if err := c.storage.TouchRoom(ctx, id, c.clock.Now()); err != nil {
		c.logger.Warn("failed to touch room", "room", id, "error", err)
	}

	client.SetRoom(id)
	c.regrantHost(ctx, client, id)
	c.logger.Debug("room entered", "room", id, "user", client.Username())
	return nil
}

// Leave removes client from its room, in memory and durably
func (c *Controller) Leave(ctx context.Context, client *registry.Client) error {
	id := client.Room()
	if id == "" {
		return model.ErrNotInRoom
	}

	unlock := c.locks.Lock(string(id))
	defer unlock()

	c.rooms.RemoveMember(id, client)
	client.SetRoom("")
	client.RevokeHost()
	return c.storage.RemoveMember(ctx, client.UserID())
}

// Restore re-adds a resuming client to its durable room, registering the
// room in memory if this process has not seen it yet
func (c *Controller) Restore(ctx context.Context, client *registry.Client, id model.RoomID) error {
	unlock := c.locks.Lock(string(id))
	defer unlock()

	exists, err := c.storage.RoomExists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return model.ErrRoomNotFound
	}

	c.rooms.Ensure(id)
	if err := c.rooms.AddMember(id, client); err != nil {
		return err
	}
	client.SetRoom(id)
	return nil
}

// Detach removes client from its room in memory only. Durable membership is
// kept so the session can be resumed.
func (c *Controller) Detach(client *registry.Client) {
	id := client.Room()
	if id == "" {
		return
	}

	unlock := c.locks.Lock(string(id))
	defer unlock()

	c.rooms.RemoveMember(id, client)
	client.SetRoom("")
	client.RevokeHost()
}

// Touch refreshes a room's last access time
func (c *Controller) Touch(ctx context.Context, id model.RoomID) error {
	return c.storage.TouchRoom(ctx, id, c.clock.Now())
}

// Expire evicts rooms idle since cutoff from the registry and deletes them
// durably. A room touched after the scan but before its lock is acquired is
// skipped. It returns the number of rooms removed.
func (c *Controller) Expire(ctx context.Context, cutoff time.Time) (int, error) {
	expired, err := c.storage.ExpiredRooms(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, id := range expired {
		evicted, err := c.expireOne(ctx, id, cutoff)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if evicted {
			removed++
		}
	}

	leftover, err := c.storage.DeleteExpiredRooms(ctx, cutoff)
	if err != nil {
		errs = append(errs, err)
	}
	return removed + leftover, errors.Join(errs...)
}

func (c *Controller) expireOne(ctx context.Context, id model.RoomID, cutoff time.Time) (bool, error) {
	unlock := c.locks.Lock(string(id))
	defer unlock()

	room, err := c.storage.GetRoom(ctx, id)
	if errors.Is(err, model.ErrRoomNotFound) {
		c.evict(id)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !clock.Expired(room.LastAccess, cutoff) {
		return false, nil
	}

	c.evict(id)
	if err := c.storage.DeleteRoom(ctx, id); err != nil {
		return false, err
	}

	c.logger.Info("room expired", "room", id)
	return true, nil
}

func (c *Controller) evict(id model.RoomID) {
	for _, member := range c.rooms.Delete(id) {
		if member.Room() == id {
			member.SetRoom("")
			member.RevokeHost()
		}
	}
}

// regrantHost gives HOST back to the durable host of id when it returns
func (c *Controller) regrantHost(ctx context.Context, client *registry.Client, id model.RoomID) {
	room, err := c.storage.GetRoom(ctx, id)
	if err != nil {
		c.logger.Warn("failed to load room host", "room", id, "error", err)
		return
	}
	if room.HostID == client.UserID() {
		client.GrantHost()
	}
}

// Data returns the key/value store for a room
func (c *Controller) Data(id model.RoomID) *Data {
	return &Data{storage: c.storage, room: id}
}
