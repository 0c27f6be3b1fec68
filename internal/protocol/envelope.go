package protocol

import (
	"bytes"
	"encoding/json"
)

// Type is the top-level message category
type Type string

const (
	TypeAuthenticate Type = "authenticate"
	TypeRequest      Type = "request"
	TypeResponse     Type = "response"
	TypeError        Type = "error"
)

// Actions understood by the server itself. Any other action on a request or
// response is left to the room handler.
const (
	ActionRegister    = "register"
	ActionLogin       = "login"
	ActionLoginGuest  = "login_guest"
	ActionSessionAuth = "session_auth"
	ActionSignOut     = "sign_out"
	ActionValue       = "value"
	ActionEnterGame   = "enter_game"
	ActionCreateGame  = "create_game"
	ActionLeaveGame   = "leave_game"

	// Role scoped
	ActionServerStats   = "server_stats"
	ActionDisconnectAll = "disconnect_all"
)

// Value names for the value action
const (
	ValueAuthenticated = "authenticated"
	ValueUsername      = "username"
	ValueGameID        = "game_id"
)

// Envelope is one protocol message in either direction
type Envelope struct {
	Type      Type            `json:"type"`
	Action    string          `json:"action,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
	Success   *bool           `json:"success,omitempty"`
	Value     any             `json:"value,omitempty"`
	Username  string          `json:"username,omitempty"`
	Password  string          `json:"password,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	GameID    string          `json:"game_id,omitempty"`
	ErrorCode ErrorCode       `json:"error_code,omitempty"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Decode parses one inbound message.
//
// Payloads that are not a JSON object fail with CodeInvalidFormat. A missing
// type or action fails with CodeMissingValue; the partially decoded envelope
// is still returned so the caller can echo its message id.
func Decode(raw []byte) (*Envelope, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, NewError(CodeInvalidFormat, "Message could not be parsed (Invalid Format)")
	}

	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, Wrap(CodeInvalidFormat, "Message could not be parsed (Invalid Format)", err)
	}

	if env.Type == "" || env.Action == "" {
		return &env, NewError(CodeMissingValue, "Message is missing type or action")
	}
	return &env, nil
}

// Encode serializes an envelope for the wire
func Encode(env *Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// ValueName returns the value field as a string, or "" if it is not one
func (e *Envelope) ValueName() string {
	s, _ := e.Value.(string)
	return s
}

// NewResponse builds a response echoing the action and message id of req
func NewResponse(req *Envelope) *Envelope {
	return &Envelope{
		Type:      TypeResponse,
		Action:    req.Action,
		MessageID: req.MessageID,
	}
}

// NewErrorEnvelope builds an error envelope. messageID may be empty.
func NewErrorEnvelope(code ErrorCode, message, messageID string) *Envelope {
	return &Envelope{
		Type:      TypeError,
		ErrorCode: code,
		Message:   message,
		MessageID: messageID,
	}
}

// Bool returns a pointer to b, for the success field
func Bool(b bool) *bool {
	return &b
}
