package protocol

import "fmt"

// ErrorCode is the stable numeric code carried by error envelopes
type ErrorCode int

const (
	CodeInternalError        ErrorCode = 0x10
	CodeDuplicateUsername    ErrorCode = 0x11
	CodeInvalidAction        ErrorCode = 0x12
	CodeActionNotPermitted   ErrorCode = 0x13
	CodeUnknownUserType      ErrorCode = 0x14
	CodeNotARequest          ErrorCode = 0x15
	CodeInvalidFormat        ErrorCode = 0x16
	CodeMissingValue         ErrorCode = 0x17
	CodeCloseFailed          ErrorCode = 0x18
	CodeSQLError             ErrorCode = 0x19
	CodeLoginError           ErrorCode = 0x1A
	CodeInvalidType          ErrorCode = 0x1B
	CodeAlreadyAuthenticated ErrorCode = 0x1C
	CodeGameNotFound         ErrorCode = 0x1D
	CodeRateLimited          ErrorCode = 0x1E
)

var codeNames = map[ErrorCode]string{
	CodeInternalError:        "INTERNAL_ERROR",
	CodeDuplicateUsername:    "DUP_USERNAME",
	CodeInvalidAction:        "INVALID_ACTION",
	CodeActionNotPermitted:   "ACTION_NOT_PERMITTED",
	CodeUnknownUserType:      "UNKNOWN_USER_TYPE",
	CodeNotARequest:          "NOT_A_REQUEST",
	CodeInvalidFormat:        "INVALID_FORMAT",
	CodeMissingValue:         "MSG_MISSING_VALUE",
	CodeCloseFailed:          "CLOSE_FAILED",
	CodeSQLError:             "SQL_ERROR",
	CodeLoginError:           "LOGIN_ERROR",
	CodeInvalidType:          "INVALID_TYPE",
	CodeAlreadyAuthenticated: "ALREADY_AUTHENTICATED",
	CodeGameNotFound:         "GAME_NOT_FOUND",
	CodeRateLimited:          "RATE_LIMITED",
}

// String returns the symbolic name of the code
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(0x%02X)", int(c))
}

// Error is a protocol failure that is reported to the client as an error envelope
type Error struct {
	Code    ErrorCode
	Message string
	Err     error // internal cause, never sent to the client
}

// NewError creates a protocol error with a client-facing message
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a protocol error that keeps the underlying cause for logging
func Wrap(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}
