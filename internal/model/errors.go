package model

import "errors"

// Common errors used across the application
var (
	// Credential errors
	ErrCredentialNotFound = errors.New("credential not found")
	ErrDuplicateUsername  = errors.New("username already registered")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")

	// Room errors
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomExists    = errors.New("room already exists")
	ErrNotInRoom     = errors.New("user is not in a room")
	ErrAlreadyInRoom = errors.New("user is already in a room")
	ErrValueNotFound = errors.New("room value not found")
)
