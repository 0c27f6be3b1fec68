package model

import "time"

// RoomID is the short random identifier clients use to enter a game
type RoomID string

// Room is the durable record of a game
type Room struct {
	ID         RoomID
	HostID     UserID
	CreatedAt  time.Time
	LastAccess time.Time
}
