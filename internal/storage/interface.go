package storage

import (
	"context"
	"time"

	"github.com/mcoot/gameserver/internal/model"
)

// Storage defines the interface for durable session, room and credential state.
//
// Timed-out records are those whose last access is at or before the given
// cutoff. Not-found conditions are reported with the model sentinel errors;
// backend failures are wrapped in *OpError.
type Storage interface {
	// Credential operations
	CreateCredential(ctx context.Context, cred *model.Credential) error
	GetCredential(ctx context.Context, username string) (*model.Credential, error)
	CredentialExists(ctx context.Context, username string) (bool, error)

	// Session operations
	UpsertSession(ctx context.Context, token, username string, now time.Time) (*model.Session, error)
	GetSession(ctx context.Context, token string) (*model.Session, error)
	SessionExists(ctx context.Context, token string) (bool, error)
	TouchSession(ctx context.Context, token string, now time.Time) error
	DeleteSession(ctx context.Context, token string) error
	ExpiredSessions(ctx context.Context, cutoff time.Time) ([]string, error)
	DeleteExpiredMemberships(ctx context.Context, cutoff time.Time) (int, error)
	DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int, error)

	// Room operations
	CreateRoom(ctx context.Context, room *model.Room) error
	GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error)
	RoomExists(ctx context.Context, id model.RoomID) (bool, error)
	TouchRoom(ctx context.Context, id model.RoomID, now time.Time) error
	DeleteRoom(ctx context.Context, id model.RoomID) error
	IsHost(ctx context.Context, userID model.UserID) (bool, error)
	ExpiredRooms(ctx context.Context, cutoff time.Time) ([]model.RoomID, error)
	DeleteExpiredRooms(ctx context.Context, cutoff time.Time) (int, error)

	// Membership operations
	AddMember(ctx context.Context, id model.RoomID, userID model.UserID) error
	RemoveMember(ctx context.Context, userID model.UserID) error
	RoomOfUser(ctx context.Context, userID model.UserID) (model.RoomID, error)

	// Room data operations
	SaveRoomValue(ctx context.Context, id model.RoomID, key, value string) error
	GetRoomValue(ctx context.Context, id model.RoomID, key string) (string, error)
	SavePlayerValue(ctx context.Context, id model.RoomID, userID model.UserID, key, value string) error
	GetPlayerValue(ctx context.Context, id model.RoomID, userID model.UserID, key string) (string, error)
}

// Pinger is implemented by backends that can check their connection
type Pinger interface {
	Ping(ctx context.Context) error
}
