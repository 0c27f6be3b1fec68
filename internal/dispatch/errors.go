package dispatch

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/gameserver/internal/ids"
	"github.com/mcoot/gameserver/internal/model"
	"github.com/mcoot/gameserver/internal/protocol"
	"github.com/mcoot/gameserver/internal/services/auth"
	"github.com/mcoot/gameserver/internal/storage"
)

var (
	errNotPermitted = protocol.NewError(protocol.CodeActionNotPermitted, "Action not permitted")
	errInvalidType  = protocol.NewError(protocol.CodeInvalidType, "Invalid message type")
	errAlreadyAuth  = protocol.NewError(protocol.CodeAlreadyAuthenticated, "Client is already authenticated")
)

func missingValue(message string) *protocol.Error {
	return protocol.NewError(protocol.CodeMissingValue, message)
}

// toProtocolError converts an error to the protocol error reported to the
// client. The second result is false for unclassified errors.
func toProtocolError(err error) (*protocol.Error, bool) {
	// Check for specific error types
	var pe *protocol.Error
	if errors.As(err, &pe) {
		return pe, true
	}

	// Map model errors
	switch {
	case errors.Is(err, model.ErrDuplicateUsername):
		return protocol.Wrap(protocol.CodeDuplicateUsername, "Username already taken", err), true
	case errors.Is(err, model.ErrRoomNotFound):
		return protocol.Wrap(protocol.CodeGameNotFound, "Game not found", err), true
	case errors.Is(err, model.ErrAlreadyInRoom):
		return protocol.Wrap(protocol.CodeActionNotPermitted, "Already in a game", err), true
	case errors.Is(err, model.ErrNotInRoom):
		return protocol.Wrap(protocol.CodeActionNotPermitted, "Not in a game", err), true

	// Map auth errors
	case errors.Is(err, auth.ErrInvalidCredentials):
		return protocol.Wrap(protocol.CodeLoginError, "Wrong username or password", err), true
	case errors.Is(err, auth.ErrNameRegistered):
		return protocol.Wrap(protocol.CodeLoginError, "Name belongs to a registered user", err), true
	case errors.Is(err, auth.ErrPasswordTooLong), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return protocol.Wrap(protocol.CodeInvalidFormat, "Password is too long", err), true

	// Map storage errors
	case errors.Is(err, model.ErrRoomExists):
		return protocol.Wrap(protocol.CodeSQLError, "Game id already in use", err), true
	case errors.Is(err, ids.ErrExhausted):
		return protocol.Wrap(protocol.CodeSQLError, "Could not allocate an identifier", err), true
	}

	var opErr *storage.OpError
	if errors.As(err, &opErr) {
		return protocol.Wrap(protocol.CodeSQLError, "Storage operation failed", err), true
	}

	return protocol.Wrap(protocol.CodeInternalError, "Internal server error", err), false
}
