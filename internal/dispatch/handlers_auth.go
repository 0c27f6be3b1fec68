package dispatch

import (
	"context"
	"errors"
	"strings"

	"github.com/mcoot/gameserver/internal/model"
	"github.com/mcoot/gameserver/internal/protocol"
	"github.com/mcoot/gameserver/internal/registry"
	"github.com/mcoot/gameserver/internal/services/auth"
)

// authFunc authenticates c in memory and reports whether it succeeded
type authFunc func(ctx context.Context, c *registry.Client, env *protocol.Envelope) (bool, error)

// authenticating wraps an authenticate action: it rejects clients that are
// already authenticated, upserts the durable session on success and answers
// with success and the session id.
func (d *Dispatcher) authenticating(fn authFunc) Handler {
	return func(ctx context.Context, c *registry.Client, env *protocol.Envelope) (bool, error) {
		if c.CheckAuth(0) {
			return true, errAlreadyAuth
		}

		ok, err := fn(ctx, c, env)
		if err != nil {
			return true, err
		}

		resp := protocol.NewResponse(env)
		resp.Success = protocol.Bool(ok)
		if !ok {
			return true, d.respond(c, resp)
		}

		session, err := d.auth.StartSession(ctx, c.SessionToken(), c.Username())
		if err != nil {
			d.roomCtl.Detach(c)
			c.Reset()
			return true, err
		}
		c.SetSessionToken(session.Token)
		c.SetUserID(session.UserID)

		d.logger.Info("client authenticated",
			"conn", c.ID(),
			"action", env.Action,
			"user", c.Username(),
			"user_id", session.UserID,
			"caps", c.Capabilities().String(),
		)

		resp.SessionID = session.Token
		return true, d.respond(c, resp)
	}
}

func credentials(env *protocol.Envelope) (string, string, error) {
	username := strings.TrimSpace(env.Username)
	if username == "" || strings.TrimSpace(env.Password) == "" {
		return "", "", missingValue("Username and password cannot be empty")
	}
	return username, env.Password, nil
}

func (d *Dispatcher) handleRegister(ctx context.Context, c *registry.Client, env *protocol.Envelope) (bool, error) {
	if c.CheckAuth(0) {
		return true, errAlreadyAuth
	}

	username, password, err := credentials(env)
	if err != nil {
		return true, err
	}
	if err := d.auth.Register(ctx, username, password); err != nil {
		return true, err
	}

	resp := protocol.NewResponse(env)
	resp.Success = protocol.Bool(true)
	return true, d.respond(c, resp)
}

func (d *Dispatcher) handleLogin(ctx context.Context, c *registry.Client, env *protocol.Envelope) (bool, error) {
	username, password, err := credentials(env)
	if err != nil {
		return false, err
	}

	caps, err := d.auth.Login(ctx, username, password)
	if err != nil {
		return false, err
	}

	c.SetAuthorization(caps)
	c.Authenticate()
	c.SetUsername(username)
	return true, nil
}

func (d *Dispatcher) handleLoginGuest(ctx context.Context, c *registry.Client, env *protocol.Envelope) (bool, error) {
	username := strings.TrimSpace(env.Username)
	if username == "" {
		return false, missingValue("Username cannot be empty")
	}

	if err := d.auth.LoginGuest(ctx, username); err != nil {
		return false, err
	}

	c.SetAuthorization(model.CapPlayer, model.CapAuthenticated)
	c.SetUsername(username)
	return true, nil
}

func (d *Dispatcher) handleSessionAuth(ctx context.Context, c *registry.Client, env *protocol.Envelope) (bool, error) {
	if env.SessionID == "" {
		return false, missingValue("Session id cannot be empty")
	}

	resumed, err := d.auth.ResumeSession(ctx, env.SessionID)
	if errors.Is(err, auth.ErrInvalidSession) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	c.SetUsername(resumed.Session.Username)
	c.SetSessionToken(resumed.Session.Token)
	c.SetUserID(resumed.Session.UserID)
	c.SetAuthorization(model.CapPlayer, model.CapAuthenticated)
	if resumed.IsHost {
		c.GrantHost()
	}

	if resumed.Room != "" {
		if err := d.roomCtl.Restore(ctx, c, resumed.Room); err != nil {
			c.Reset()
			return false, err
		}
	}
	return true, nil
}
