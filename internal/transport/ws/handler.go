// Package ws serves the game protocol over websocket connections.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/mcoot/gameserver/internal/dispatch"
	"github.com/mcoot/gameserver/internal/obs"
	"github.com/mcoot/gameserver/internal/protocol"
	"github.com/mcoot/gameserver/internal/registry"
)

// HeaderServerName carries the server name in the handshake response
const HeaderServerName = "X-Server-Name"

// Config holds per-connection settings
type Config struct {
	ServerName string
	SendBuffer int
	ReadLimit  int64

	// RateLimit is messages per second; zero disables limiting
	RateLimit float64
	RateBurst int

	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration // must be shorter than PongWait
}

// DefaultConfig returns sensible defaults for websocket connections
func DefaultConfig() Config {
	return Config{
		ServerName: "gameserver",
		SendBuffer: 64,
		ReadLimit:  64 * 1024,
		RateLimit:  20,
		RateBurst:  40,
		WriteWait:  10 * time.Second,
		PongWait:   60 * time.Second,
		PingPeriod: 54 * time.Second,
	}
}

// Handler upgrades HTTP requests and runs one connection per request
type Handler struct {
	dispatcher *dispatch.Dispatcher
	upgrader   websocket.Upgrader
	cfg        Config
	metrics    *obs.Metrics
	logger     *slog.Logger
}

// NewHandler creates a websocket Handler. Zero fields in cfg fall back to
// DefaultConfig, except RateLimit, where zero disables limiting.
func NewHandler(d *dispatch.Dispatcher, cfg Config, metrics *obs.Metrics, logger *slog.Logger) *Handler {
	defaults := DefaultConfig()
	if cfg.ServerName == "" {
		cfg.ServerName = defaults.ServerName
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaults.SendBuffer
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaults.ReadLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaults.RateBurst
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaults.WriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaults.PongWait
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = cfg.PongWait * 9 / 10
	}
	if metrics == nil {
		metrics = obs.NewMetrics()
	}

	return &Handler{
		dispatcher: d,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With("component", "ws"),
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	header := http.Header{}
	header.Set(HeaderServerName, h.cfg.ServerName)

	wsConn, err := h.upgrader.Upgrade(w, r, header)
	if err != nil {
		// Upgrade has already replied to the client
		h.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newConn(wsConn, h.cfg)
	go c.writePump()

	client := h.dispatcher.Connect(c)
	h.readPump(r.Context(), c, client)
}

// readPump reads messages one at a time, so dispatch for a client is serialized
func (h *Handler) readPump(ctx context.Context, c *conn, client *registry.Client) {
	defer func() {
		_ = c.Close(websocket.CloseNormalClosure, "")
		h.dispatcher.Disconnected(client)
	}()

	var limiter *rate.Limiter
	if h.cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.cfg.RateLimit), h.cfg.RateBurst)
	}

	c.ws.SetReadLimit(h.cfg.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				h.logger.Debug("connection closed unexpectedly", "conn", c.ID(), "error", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))

		if limiter != nil && !limiter.Allow() {
			h.metrics.RateLimited.Inc()
			h.metrics.ProtocolErrors.WithLabelValues(protocol.CodeRateLimited.String()).Inc()
			if err := client.Send(protocol.NewErrorEnvelope(protocol.CodeRateLimited, "Too many messages", "")); err != nil {
				h.logger.Debug("failed to send rate limit error", "conn", c.ID(), "error", err)
			}
			continue
		}

		if err := h.dispatcher.Handle(ctx, client, data); err != nil {
			return
		}
	}
}
