package dispatch

import (
	"context"

	"github.com/mcoot/gameserver/internal/protocol"
	"github.com/mcoot/gameserver/internal/registry"
)

// Stats is the value of a server_stats response
type Stats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

// Stats returns current registry sizes
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Connections: d.conns.Len(),
		Rooms:       d.rooms.Len(),
	}
}

func (d *Dispatcher) handleServerStats(_ context.Context, c *registry.Client, env *protocol.Envelope) (bool, error) {
	resp := protocol.NewResponse(env)
	resp.Value = d.Stats()
	return true, d.respond(c, resp)
}

// handleDisconnectAll closes every connection, including the caller's,
// after acknowledging with the number of connections closed
func (d *Dispatcher) handleDisconnectAll(_ context.Context, c *registry.Client, env *protocol.Envelope) (bool, error) {
	resp := protocol.NewResponse(env)
	resp.Success = protocol.Bool(true)
	resp.Value = d.conns.Len()
	if err := d.respond(c, resp); err != nil {
		return true, err
	}

	n := d.conns.DisconnectAll(registry.CloseNormal, "Server disconnected all clients")
	d.logger.Warn("all clients disconnected", "by", c.Username(), "count", n)
	return true, nil
}
