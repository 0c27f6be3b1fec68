// Package postgres is a PostgreSQL-backed storage implementation using
// database/sql over the pgx driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mcoot/gameserver/internal/model"
	"github.com/mcoot/gameserver/internal/storage"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Storage implements storage.Storage on a *sql.DB
type Storage struct {
	db *sql.DB
}

// Open connects to PostgreSQL, optionally applying migrations first
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Storage, error) {
	if cfg.AutoMigrate {
		if err := Migrate(cfg.DSN, logger); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, storage.Wrap("open", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, storage.Wrap("ping", err)
	}

	return NewWithDB(db), nil
}

// NewWithDB wraps an existing database handle (for testing)
func NewWithDB(db *sql.DB) *Storage {
	return &Storage{db: db}
}

// Close closes the database handle
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable
func (s *Storage) Ping(ctx context.Context) error {
	return storage.Wrap("ping", s.db.PingContext(ctx))
}

var _ storage.Storage = (*Storage)(nil)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func (s *Storage) exists(ctx context.Context, op, query string, arg any) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, arg).Scan(&exists); err != nil {
		return false, storage.Wrap(op, err)
	}
	return exists, nil
}

func (s *Storage) execCount(ctx context.Context, op, query string, args ...any) (int, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storage.Wrap(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storage.Wrap(op, err)
	}
	return int(n), nil
}

// Credential operations

func (s *Storage) CreateCredential(ctx context.Context, cred *model.Credential) error {
	_, err := s.db.ExecContext(ctx, qCreateCredential, cred.Username, cred.PasswordHash, int16(cred.Role), cred.CreatedAt)
	if pgCode(err) == pgUniqueViolation {
		return model.ErrDuplicateUsername
	}
	return storage.Wrap("create credential", err)
}

func (s *Storage) GetCredential(ctx context.Context, username string) (*model.Credential, error) {
	var cred model.Credential
	var role int16
	err := s.db.QueryRowContext(ctx, qGetCredential, username).Scan(&cred.Username, &cred.PasswordHash, &role, &cred.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrCredentialNotFound
	}
	if err != nil {
		return nil, storage.Wrap("get credential", err)
	}
	cred.Role = model.StoredRole(role)
	return &cred, nil
}

func (s *Storage) CredentialExists(ctx context.Context, username string) (bool, error) {
	return s.exists(ctx, "credential exists", qCredentialExists, username)
}

// Session operations

func (s *Storage) UpsertSession(ctx context.Context, token, username string, now time.Time) (*model.Session, error) {
	var userID int64
	if err := s.db.QueryRowContext(ctx, qUpsertSession, token, username, now).Scan(&userID); err != nil {
		return nil, storage.Wrap("upsert session", err)
	}
	return &model.Session{
		Token:      token,
		Username:   username,
		UserID:     model.UserID(userID),
		LastAccess: now,
	}, nil
}

func (s *Storage) GetSession(ctx context.Context, token string) (*model.Session, error) {
	var session model.Session
	var userID int64
	err := s.db.QueryRowContext(ctx, qGetSession, token).Scan(&session.Token, &session.Username, &userID, &session.LastAccess)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrSessionNotFound
	}
	if err != nil {
		return nil, storage.Wrap("get session", err)
	}
	session.UserID = model.UserID(userID)
	return &session, nil
}

func (s *Storage) SessionExists(ctx context.Context, token string) (bool, error) {
	return s.exists(ctx, "session exists", qSessionExists, token)
}

func (s *Storage) TouchSession(ctx context.Context, token string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, qTouchSession, token, now)
	return storage.Wrap("touch session", err)
}

func (s *Storage) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, qDeleteSession, token)
	return storage.Wrap("delete session", err)
}

func (s *Storage) ExpiredSessions(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, qExpiredSessions, cutoff)
	if err != nil {
		return nil, storage.Wrap("expired sessions", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, storage.Wrap("expired sessions", err)
		}
		tokens = append(tokens, token)
	}
	return tokens, storage.Wrap("expired sessions", rows.Err())
}

func (s *Storage) DeleteExpiredMemberships(ctx context.Context, cutoff time.Time) (int, error) {
	return s.execCount(ctx, "delete expired memberships", qDeleteExpiredMemberships, cutoff)
}

func (s *Storage) DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int, error) {
	return s.execCount(ctx, "delete expired sessions", qDeleteExpiredSessions, cutoff)
}

// Room operations

func (s *Storage) CreateRoom(ctx context.Context, room *model.Room) error {
	_, err := s.db.ExecContext(ctx, qCreateRoom, string(room.ID), int64(room.HostID), room.CreatedAt, room.LastAccess)
	if pgCode(err) == pgUniqueViolation {
		return model.ErrRoomExists
	}
	return storage.Wrap("create room", err)
}

func (s *Storage) GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error) {
	var room model.Room
	var roomID string
	var hostID int64
	err := s.db.QueryRowContext(ctx, qGetRoom, string(id)).Scan(&roomID, &hostID, &room.CreatedAt, &room.LastAccess)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrRoomNotFound
	}
	if err != nil {
		return nil, storage.Wrap("get room", err)
	}
	room.ID = model.RoomID(roomID)
	room.HostID = model.UserID(hostID)
	return &room, nil
}

func (s *Storage) RoomExists(ctx context.Context, id model.RoomID) (bool, error) {
	return s.exists(ctx, "room exists", qRoomExists, string(id))
}

func (s *Storage) TouchRoom(ctx context.Context, id model.RoomID, now time.Time) error {
	_, err := s.db.ExecContext(ctx, qTouchRoom, string(id), now)
	return storage.Wrap("touch room", err)
}

func (s *Storage) DeleteRoom(ctx context.Context, id model.RoomID) error {
	_, err := s.db.ExecContext(ctx, qDeleteRoom, string(id))
	return storage.Wrap("delete room", err)
}

func (s *Storage) IsHost(ctx context.Context, userID model.UserID) (bool, error) {
	return s.exists(ctx, "is host", qIsHost, int64(userID))
}

func (s *Storage) ExpiredRooms(ctx context.Context, cutoff time.Time) ([]model.RoomID, error) {
	rows, err := s.db.QueryContext(ctx, qExpiredRooms, cutoff)
	if err != nil {
		return nil, storage.Wrap("expired rooms", err)
	}
	defer rows.Close()

	var ids []model.RoomID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storage.Wrap("expired rooms", err)
		}
		ids = append(ids, model.RoomID(id))
	}
	return ids, storage.Wrap("expired rooms", rows.Err())
}

func (s *Storage) DeleteExpiredRooms(ctx context.Context, cutoff time.Time) (int, error) {
	return s.execCount(ctx, "delete expired rooms", qDeleteExpiredRooms, cutoff)
}

// Membership operations

func (s *Storage) AddMember(ctx context.Context, id model.RoomID, userID model.UserID) error {
	_, err := s.db.ExecContext(ctx, qAddMember, int64(userID), string(id))
	if pgCode(err) == pgForeignKeyViolation {
		return model.ErrRoomNotFound
	}
	return storage.Wrap("add member", err)
}

func (s *Storage) RemoveMember(ctx context.Context, userID model.UserID) error {
	_, err := s.db.ExecContext(ctx, qRemoveMember, int64(userID))
	return storage.Wrap("remove member", err)
}

func (s *Storage) RoomOfUser(ctx context.Context, userID model.UserID) (model.RoomID, error) {
	var id string
	err := s.db.QueryRowContext(ctx, qRoomOfUser, int64(userID)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", model.ErrNotInRoom
	}
	if err != nil {
		return "", storage.Wrap("room of user", err)
	}
	return model.RoomID(id), nil
}

// Room data operations

func (s *Storage) saveValue(ctx context.Context, op string, id model.RoomID, scope int64, key, value string) error {
	_, err := s.db.ExecContext(ctx, qSaveValue, string(id), scope, key, value)
	if pgCode(err) == pgForeignKeyViolation {
		return model.ErrRoomNotFound
	}
	return storage.Wrap(op, err)
}

func (s *Storage) getValue(ctx context.Context, op string, id model.RoomID, scope int64, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, qGetValue, string(id), scope, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", model.ErrValueNotFound
	}
	if err != nil {
		return "", storage.Wrap(op, err)
	}
	return value, nil
}

func (s *Storage) SaveRoomValue(ctx context.Context, id model.RoomID, key, value string) error {
	return s.saveValue(ctx, "save room value", id, roomScope, key, value)
}

func (s *Storage) GetRoomValue(ctx context.Context, id model.RoomID, key string) (string, error) {
	return s.getValue(ctx, "get room value", id, roomScope, key)
}

func (s *Storage) SavePlayerValue(ctx context.Context, id model.RoomID, userID model.UserID, key, value string) error {
	return s.saveValue(ctx, "save player value", id, int64(userID), key, value)
}

func (s *Storage) GetPlayerValue(ctx context.Context, id model.RoomID, userID model.UserID, key string) (string, error) {
	return s.getValue(ctx, "get player value", id, int64(userID), key)
}
