package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/mcoot/gameserver/internal/api/response"
	"github.com/mcoot/gameserver/internal/protocol"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
	errW   io.Writer
}

// NewOutput creates a new Output formatter
func NewOutput(format string, w, errW io.Writer) *Output {
	return &Output{format: format, w: w, errW: errW}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintLine outputs one streamed message: a compact JSON line, or a single
// line of text
func (o *Output) PrintLine(env *protocol.Envelope) {
	if o.format == "json" {
		data, _ := json.Marshal(env)
		_, _ = fmt.Fprintln(o.w, string(data))
		return
	}
	_, _ = fmt.Fprintln(o.w, summarize(env))
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		_, _ = fmt.Fprintln(o.errW, string(data))
	} else {
		_, _ = fmt.Fprintf(o.errW, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		_, _ = fmt.Fprintln(o.w, string(data))
	} else {
		_, _ = fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case *protocol.Envelope:
		o.printEnvelope(v)
	case response.Health:
		_, _ = fmt.Fprintf(o.w, "Status: %s\n", v.Status)
		_, _ = fmt.Fprintf(o.w, "Server: %s\n", v.Server)
		_, _ = fmt.Fprintf(o.w, "Storage: %s\n", v.Storage)
	case response.Stats:
		_, _ = fmt.Fprintf(o.w, "Connections: %d\n", v.Connections)
		_, _ = fmt.Fprintf(o.w, "Rooms: %d\n", v.Rooms)
	default:
		o.printJSON(data)
	}
}

func (o *Output) printEnvelope(env *protocol.Envelope) {
	if env.Type == protocol.TypeError {
		_, _ = fmt.Fprintf(o.w, "Error: %s (%s)\n", env.Message, env.ErrorCode)
		return
	}

	_, _ = fmt.Fprintf(o.w, "Action: %s\n", env.Action)
	if env.Success != nil {
		_, _ = fmt.Fprintf(o.w, "Success: %t\n", *env.Success)
	}
	if env.Value != nil {
		_, _ = fmt.Fprintf(o.w, "Value: %v\n", env.Value)
	}
	if env.Username != "" {
		_, _ = fmt.Fprintf(o.w, "User: %s\n", env.Username)
	}
	if env.GameID != "" {
		_, _ = fmt.Fprintf(o.w, "Game: %s\n", env.GameID)
	}
	if env.SessionID != "" {
		_, _ = fmt.Fprintf(o.w, "Session: %s\n", env.SessionID)
	}
	if len(env.Data) > 0 {
		_, _ = fmt.Fprintf(o.w, "Data: %s\n", string(env.Data))
	}
}

func summarize(env *protocol.Envelope) string {
	if env.Type == protocol.TypeError {
		return fmt.Sprintf("[error] %s (%s)", env.Message, env.ErrorCode)
	}

	line := fmt.Sprintf("[%s] %s", env.Type, env.Action)
	if env.Username != "" {
		line += " from " + env.Username
	}
	if env.GameID != "" {
		line += " in " + env.GameID
	}
	if len(env.Data) > 0 {
		line += ": " + string(env.Data)
	}
	return line
}
