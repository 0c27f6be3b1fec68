package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/gameserver/internal/model"
	"github.com/mcoot/gameserver/internal/storage"
)

// Storage is a Redis-backed implementation of the storage interface.
//
// Last-access timestamps live only in the access ZSETs so that expiry queries
// are range scans and touches are single ZADD XX calls.
type Storage struct {
	client *redis.Client
	cfg    Config
}

// sessionRecord is the JSON stored under sessionKey
type sessionRecord struct {
	Token    string       `json:"token"`
	Username string       `json:"username"`
	UserID   model.UserID `json:"user_id"`
}

// roomRecord is the JSON stored under roomKey
type roomRecord struct {
	ID        model.RoomID `json:"id"`
	HostID    model.UserID `json:"host_id"`
	CreatedAt time.Time    `json:"created_at"`
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, storage.Wrap("ping", err)
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ping checks that Redis is reachable
func (s *Storage) Ping(ctx context.Context) error {
	return storage.Wrap("ping", s.client.Ping(ctx).Err())
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func toScore(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func fromScore(score float64) time.Time {
	return time.UnixMilli(int64(score)).UTC()
}

func scoreBound(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// Credential operations

func (s *Storage) CreateCredential(ctx context.Context, cred *model.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return err
	}

	created, err := s.client.SetNX(ctx, credentialKey(cred.Username), data, 0).Result()
	if err != nil {
		return storage.Wrap("create credential", err)
	}
	if !created {
		return model.ErrDuplicateUsername
	}
	return nil
}

func (s *Storage) GetCredential(ctx context.Context, username string) (*model.Credential, error) {
	data, err := s.client.Get(ctx, credentialKey(username)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrCredentialNotFound
		}
		return nil, storage.Wrap("get credential", err)
	}

	var cred model.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, storage.Wrap("decode credential", err)
	}
	return &cred, nil
}

func (s *Storage) CredentialExists(ctx context.Context, username string) (bool, error) {
	exists, err := s.client.Exists(ctx, credentialKey(username)).Result()
	if err != nil {
		return false, storage.Wrap("credential exists", err)
	}
	return exists > 0, nil
}

// Session operations

func (s *Storage) getSessionRecord(ctx context.Context, token string) (*sessionRecord, error) {
	data, err := s.client.Get(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrSessionNotFound
		}
		return nil, storage.Wrap("get session", err)
	}

	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, storage.Wrap("decode session", err)
	}
	return &rec, nil
}

func (s *Storage) UpsertSession(ctx context.Context, token, username string, now time.Time) (*model.Session, error) {
	rec, err := s.getSessionRecord(ctx, token)
	if errors.Is(err, model.ErrSessionNotFound) {
		id, incrErr := s.client.Incr(ctx, userIDSeqKey()).Result()
		if incrErr != nil {
			return nil, storage.Wrap("allocate user id", incrErr)
		}
		rec = &sessionRecord{Token: token, UserID: model.UserID(id)}
	} else if err != nil {
		return nil, err
	}
	rec.Username = username

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(token), data, 0)
	pipe.ZAdd(ctx, sessionAccessKey(), redis.Z{Score: toScore(now), Member: token})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, storage.Wrap("upsert session", err)
	}

	return &model.Session{
		Token:      token,
		Username:   rec.Username,
		UserID:     rec.UserID,
		LastAccess: fromScore(toScore(now)),
	}, nil
}

func (s *Storage) GetSession(ctx context.Context, token string) (*model.Session, error) {
	rec, err := s.getSessionRecord(ctx, token)
	if err != nil {
		return nil, err
	}

	session := &model.Session{Token: rec.Token, Username: rec.Username, UserID: rec.UserID}
	score, err := s.client.ZScore(ctx, sessionAccessKey(), token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, storage.Wrap("get session access", err)
	}
	if err == nil {
		session.LastAccess = fromScore(score)
	}
	return session, nil
}

func (s *Storage) SessionExists(ctx context.Context, token string) (bool, error) {
	exists, err := s.client.Exists(ctx, sessionKey(token)).Result()
	if err != nil {
		return false, storage.Wrap("session exists", err)
	}
	return exists > 0, nil
}

func (s *Storage) TouchSession(ctx context.Context, token string, now time.Time) error {
	err := s.client.ZAddXX(ctx, sessionAccessKey(), redis.Z{Score: toScore(now), Member: token}).Err()
	return storage.Wrap("touch session", err)
}

func (s *Storage) DeleteSession(ctx context.Context, token string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKey(token))
	pipe.ZRem(ctx, sessionAccessKey(), token)
	_, err := pipe.Exec(ctx)
	return storage.Wrap("delete session", err)
}

func (s *Storage) ExpiredSessions(ctx context.Context, cutoff time.Time) ([]string, error) {
	tokens, err := s.client.ZRangeByScore(ctx, sessionAccessKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: scoreBound(cutoff),
	}).Result()
	if err != nil {
		return nil, storage.Wrap("expired sessions", err)
	}
	return tokens, nil
}

func (s *Storage) DeleteExpiredMemberships(ctx context.Context, cutoff time.Time) (int, error) {
	tokens, err := s.ExpiredSessions(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, token := range tokens {
		rec, err := s.getSessionRecord(ctx, token)
		if errors.Is(err, model.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return deleted, err
		}

		exists, err := s.client.Exists(ctx, memberKey(rec.UserID)).Result()
		if err != nil {
			return deleted, storage.Wrap("delete expired memberships", err)
		}
		if exists == 0 {
			continue
		}
		if err := s.RemoveMember(ctx, rec.UserID); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func (s *Storage) DeleteExpiredSessions(ctx context.Context, cutoff time.Time) (int, error) {
	tokens, err := s.ExpiredSessions(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(tokens) == 0 {
		return 0, nil
	}

	pipe := s.client.TxPipeline()
	members := make([]any, 0, len(tokens))
	for _, token := range tokens {
		pipe.Del(ctx, sessionKey(token))
		members = append(members, token)
	}
	pipe.ZRem(ctx, sessionAccessKey(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, storage.Wrap("delete expired sessions", err)
	}
	return len(tokens), nil
}

// Room operations

func (s *Storage) getRoomRecord(ctx context.Context, id model.RoomID) (*roomRecord, error) {
	data, err := s.client.Get(ctx, roomKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrRoomNotFound
		}
		return nil, storage.Wrap("get room", err)
	}

	var rec roomRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, storage.Wrap("decode room", err)
	}
	return &rec, nil
}

func (s *Storage) CreateRoom(ctx context.Context, room *model.Room) error {
	data, err := json.Marshal(roomRecord{ID: room.ID, HostID: room.HostID, CreatedAt: room.CreatedAt})
	if err != nil {
		return err
	}

	created, err := s.client.SetNX(ctx, roomKey(room.ID), data, 0).Result()
	if err != nil {
		return storage.Wrap("create room", err)
	}
	if !created {
		return model.ErrRoomExists
	}

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, roomAccessKey(), redis.Z{Score: toScore(room.LastAccess), Member: string(room.ID)})
	pipe.SAdd(ctx, hostIndexKey(room.HostID), string(room.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		_ = s.client.Del(ctx, roomKey(room.ID)).Err()
		return storage.Wrap("create room", err)
	}
	return nil
}

func (s *Storage) GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error) {
	rec, err := s.getRoomRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	room := &model.Room{ID: rec.ID, HostID: rec.HostID, CreatedAt: rec.CreatedAt}
	score, err := s.client.ZScore(ctx, roomAccessKey(), string(id)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, storage.Wrap("get room access", err)
	}
	if err == nil {
		room.LastAccess = fromScore(score)
	}
	return room, nil
}

func (s *Storage) RoomExists(ctx context.Context, id model.RoomID) (bool, error) {
	exists, err := s.client.Exists(ctx, roomKey(id)).Result()
	if err != nil {
		return false, storage.Wrap("room exists", err)
	}
	return exists > 0, nil
}

func (s *Storage) TouchRoom(ctx context.Context, id model.RoomID, now time.Time) error {
	err := s.client.ZAddXX(ctx, roomAccessKey(), redis.Z{Score: toScore(now), Member: string(id)}).Err()
	return storage.Wrap("touch room", err)
}

func (s *Storage) DeleteRoom(ctx context.Context, id model.RoomID) error {
	rec, err := s.getRoomRecord(ctx, id)
	if errors.Is(err, model.ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	userIDs, err := s.client.SMembers(ctx, roomMembersKey(id)).Result()
	if err != nil {
		return storage.Wrap("delete room", err)
	}

	pipe := s.client.TxPipeline()
	for _, raw := range userIDs {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		current, err := s.client.Get(ctx, memberKey(model.UserID(userID))).Result()
		if err == nil && current == string(id) {
			pipe.Del(ctx, memberKey(model.UserID(userID)))
		}
	}
	pipe.Del(ctx, roomKey(id), roomMembersKey(id), roomDataKey(id), playerDataKey(id))
	pipe.ZRem(ctx, roomAccessKey(), string(id))
	pipe.SRem(ctx, hostIndexKey(rec.HostID), string(id))
	_, err = pipe.Exec(ctx)
	return storage.Wrap("delete room", err)
}

func (s *Storage) IsHost(ctx context.Context, userID model.UserID) (bool, error) {
	count, err := s.client.SCard(ctx, hostIndexKey(userID)).Result()
	if err != nil {
		return false, storage.Wrap("is host", err)
	}
	return count > 0, nil
}

func (s *Storage) ExpiredRooms(ctx context.Context, cutoff time.Time) ([]model.RoomID, error) {
	raw, err := s.client.ZRangeByScore(ctx, roomAccessKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: scoreBound(cutoff),
	}).Result()
	if err != nil {
		return nil, storage.Wrap("expired rooms", err)
	}

	ids := make([]model.RoomID, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, model.RoomID(id))
	}
	return ids, nil
}

func (s *Storage) DeleteExpiredRooms(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := s.ExpiredRooms(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, id := range ids {
		if err := s.DeleteRoom(ctx, id); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

// Membership operations

func (s *Storage) AddMember(ctx context.Context, id model.RoomID, userID model.UserID) error {
	exists, err := s.RoomExists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return model.ErrRoomNotFound
	}

	previous, err := s.client.Get(ctx, memberKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return storage.Wrap("add member", err)
	}

	pipe := s.client.TxPipeline()
	if previous != "" && previous != string(id) {
		pipe.SRem(ctx, roomMembersKey(model.RoomID(previous)), int64(userID))
	}
	pipe.Set(ctx, memberKey(userID), string(id), 0)
	pipe.SAdd(ctx, roomMembersKey(id), int64(userID))
	_, err = pipe.Exec(ctx)
	return storage.Wrap("add member", err)
}

func (s *Storage) RemoveMember(ctx context.Context, userID model.UserID) error {
	previous, err := s.client.Get(ctx, memberKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return storage.Wrap("remove member", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, memberKey(userID))
	pipe.SRem(ctx, roomMembersKey(model.RoomID(previous)), int64(userID))
	_, err = pipe.Exec(ctx)
	return storage.Wrap("remove member", err)
}

func (s *Storage) RoomOfUser(ctx context.Context, userID model.UserID) (model.RoomID, error) {
	id, err := s.client.Get(ctx, memberKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", model.ErrNotInRoom
		}
		return "", storage.Wrap("room of user", err)
	}
	return model.RoomID(id), nil
}

// Room data operations

func (s *Storage) SaveRoomValue(ctx context.Context, id model.RoomID, key, value string) error {
	exists, err := s.RoomExists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return model.ErrRoomNotFound
	}
	return storage.Wrap("save room value", s.client.HSet(ctx, roomDataKey(id), key, value).Err())
}

func (s *Storage) GetRoomValue(ctx context.Context, id model.RoomID, key string) (string, error) {
	value, err := s.client.HGet(ctx, roomDataKey(id), key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", model.ErrValueNotFound
		}
		return "", storage.Wrap("get room value", err)
	}
	return value, nil
}

func (s *Storage) SavePlayerValue(ctx context.Context, id model.RoomID, userID model.UserID, key, value string) error {
	exists, err := s.RoomExists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return model.ErrRoomNotFound
	}
	err = s.client.HSet(ctx, playerDataKey(id), playerDataField(userID, key), value).Err()
	return storage.Wrap("save player value", err)
}

func (s *Storage) GetPlayerValue(ctx context.Context, id model.RoomID, userID model.UserID, key string) (string, error) {
	value, err := s.client.HGet(ctx, playerDataKey(id), playerDataField(userID, key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", model.ErrValueNotFound
		}
		return "", storage.Wrap("get player value", err)
	}
	return value, nil
}
