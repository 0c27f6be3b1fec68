package redis

import (
	"fmt"

	"github.com/mcoot/gameserver/internal/model"
)

// Key prefix for all server data
const keyPrefix = "gs"

// credentialKey returns the Redis key for a Credential
func credentialKey(username string) string {
	return fmt.Sprintf("%s:credential:%s", keyPrefix, username)
}

// sessionKey returns the Redis key for a session record
func sessionKey(token string) string {
	return fmt.Sprintf("%s:session:%s", keyPrefix, token)
}

// sessionAccessKey returns the ZSET of session tokens scored by last access (unix ms)
func sessionAccessKey() string {
	return fmt.Sprintf("%s:idx:session_access", keyPrefix)
}

// userIDSeqKey returns the counter used to assign user ids
func userIDSeqKey() string {
	return fmt.Sprintf("%s:seq:user_id", keyPrefix)
}

// roomKey returns the Redis key for a room record
func roomKey(id model.RoomID) string {
	return fmt.Sprintf("%s:room:%s", keyPrefix, id)
}

// roomAccessKey returns the ZSET of room ids scored by last access (unix ms)
func roomAccessKey() string {
	return fmt.Sprintf("%s:idx:room_access", keyPrefix)
}

// hostIndexKey returns the SET of rooms hosted by a user
func hostIndexKey(userID model.UserID) string {
	return fmt.Sprintf("%s:idx:host:%d", keyPrefix, userID)
}

// memberKey returns the Redis key holding the room a user belongs to
func memberKey(userID model.UserID) string {
	return fmt.Sprintf("%s:member:%d", keyPrefix, userID)
}

// roomMembersKey returns the SET of user ids in a room
func roomMembersKey(id model.RoomID) string {
	return fmt.Sprintf("%s:idx:room_members:%s", keyPrefix, id)
}

// roomDataKey returns the HASH of room-level values
func roomDataKey(id model.RoomID) string {
	return fmt.Sprintf("%s:room_data:%s", keyPrefix, id)
}

// playerDataKey returns the HASH of per-player values for a room
func playerDataKey(id model.RoomID) string {
	return fmt.Sprintf("%s:player_data:%s", keyPrefix, id)
}

// playerDataField returns the hash field for a player's value
func playerDataField(userID model.UserID, key string) string {
	return fmt.Sprintf("%d:%s", userID, key)
}
