package model

import "time"

// UserID is the numeric identity assigned to a session once it is persisted
type UserID int64

// Credential is a registered account
type Credential struct {
	Username     string
	PasswordHash string // bcrypt hash
	Role         StoredRole
	CreatedAt    time.Time
}

// Session binds a session token to a display name and an identity.
// Guests and registered users both get one on successful authentication.
type Session struct {
	Token      string
	Username   string
	UserID     UserID
	LastAccess time.Time
}
