package postgres

const (
	qCreateCredential = `INSERT INTO credentials (username, password_hash, role, created_at) VALUES ($1, $2, $3, $4)`
	qGetCredential    = `SELECT username, password_hash, role, created_at FROM credentials WHERE username = $1`
	qCredentialExists = `SELECT EXISTS (SELECT 1 FROM credentials WHERE username = $1)`

	qUpsertSession = `INSERT INTO sessions (session_id, username, last_access) VALUES ($1, $2, $3)
ON CONFLICT (session_id) DO UPDATE SET username = EXCLUDED.username, last_access = EXCLUDED.last_access
RETURNING user_id`
	qGetSession               = `SELECT session_id, username, user_id, last_access FROM sessions WHERE session_id = $1`
	qSessionExists            = `SELECT EXISTS (SELECT 1 FROM sessions WHERE session_id = $1)`
	qTouchSession             = `UPDATE sessions SET last_access = $2 WHERE session_id = $1`
	qDeleteSession            = `DELETE FROM sessions WHERE session_id = $1`
	qExpiredSessions          = `SELECT session_id FROM sessions WHERE last_access <= $1 ORDER BY session_id`
	qDeleteExpiredMemberships = `DELETE FROM room_members WHERE user_id IN (SELECT user_id FROM sessions WHERE last_access <= $1)`
	qDeleteExpiredSessions    = `DELETE FROM sessions WHERE last_access <= $1`

	qCreateRoom         = `INSERT INTO rooms (room_id, host_id, created_at, last_access) VALUES ($1, $2, $3, $4)`
	qGetRoom            = `SELECT room_id, host_id, created_at, last_access FROM rooms WHERE room_id = $1`
	qRoomExists         = `SELECT EXISTS (SELECT 1 FROM rooms WHERE room_id = $1)`
	qTouchRoom          = `UPDATE rooms SET last_access = $2 WHERE room_id = $1`
	qDeleteRoom         = `DELETE FROM rooms WHERE room_id = $1`
	qIsHost             = `SELECT EXISTS (SELECT 1 FROM rooms WHERE host_id = $1)`
	qExpiredRooms       = `SELECT room_id FROM rooms WHERE last_access <= $1 ORDER BY room_id`
	qDeleteExpiredRooms = `DELETE FROM rooms WHERE last_access <= $1`

	qAddMember = `INSERT INTO room_members (user_id, room_id) VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE SET room_id = EXCLUDED.room_id`
	qRemoveMember = `DELETE FROM room_members WHERE user_id = $1`
	qRoomOfUser   = `SELECT room_id FROM room_members WHERE user_id = $1`

	qSaveValue = `INSERT INTO room_data (room_id, user_id, key, value) VALUES ($1, $2, $3, $4)
ON CONFLICT (room_id, user_id, key) DO UPDATE SET value = EXCLUDED.value`
	qGetValue = `SELECT value FROM room_data WHERE room_id = $1 AND user_id = $2 AND key = $3`
)

// roomScope is the user_id under which room-level values are stored
const roomScope int64 = 0
