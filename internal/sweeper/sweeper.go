// Package sweeper periodically evicts timed-out sessions and rooms.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mcoot/gameserver/internal/dependencies/clock"
	"github.com/mcoot/gameserver/internal/obs"
	"github.com/mcoot/gameserver/internal/registry"
	"github.com/mcoot/gameserver/internal/services/room"
	"github.com/mcoot/gameserver/internal/storage"
)

// Config holds sweeper timing
type Config struct {
	Interval       time.Duration
	SessionTimeout time.Duration
	RoomTimeout    time.Duration
}

// DefaultConfig returns default sweeper timing
func DefaultConfig() Config {
	return Config{
		Interval:       time.Minute,
		SessionTimeout: 30 * time.Minute,
		RoomTimeout:    60 * time.Minute,
	}
}

// Result summarizes one sweep
type Result struct {
	Skipped      bool
	Disconnected int
	Memberships  int
	Sessions     int
	Rooms        int
	Failed       []string // names of steps that failed
}

// Sweeper evicts expired state. At most one sweep runs at a time.
type Sweeper struct {
	storage storage.Storage
	conns   *registry.Connections
	roomCtl *room.Controller
	clock   clock.Clock
	cfg     Config
	metrics *obs.Metrics
	logger  *slog.Logger

	running atomic.Bool
}

// New creates a Sweeper
func New(
	storage storage.Storage,
	conns *registry.Connections,
	roomCtl *room.Controller,
	clock clock.Clock,
	cfg Config,
	metrics *obs.Metrics,
	logger *slog.Logger,
) *Sweeper {
	defaults := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = defaults.SessionTimeout
	}
	if cfg.RoomTimeout <= 0 {
		cfg.RoomTimeout = defaults.RoomTimeout
	}
	return &Sweeper{
		storage: storage,
		conns:   conns,
		roomCtl: roomCtl,
		clock:   clock,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With("component", "sweeper"),
	}
}

// Run sweeps every interval until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", "interval", s.cfg.Interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one sweep. It returns immediately with Skipped set if
// another sweep is in progress.
func (s *Sweeper) RunOnce(ctx context.Context) (res Result) {
	if !s.running.CompareAndSwap(false, true) {
		res.Skipped = true
		return res
	}
	defer s.running.Store(false)

	start := time.Now()
	defer func() {
		s.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	sessionCutoff := clock.Cutoff(s.clock, s.cfg.SessionTimeout)
	roomCutoff := clock.Cutoff(s.clock, s.cfg.RoomTimeout)

	s.step(&res, "disconnect_sessions", func() (err error) {
		res.Disconnected, err = s.disconnectExpired(ctx, sessionCutoff)
		return err
	})
	s.step(&res, "delete_memberships", func() (err error) {
		res.Memberships, err = s.storage.DeleteExpiredMemberships(ctx, sessionCutoff)
		return err
	})
	s.step(&res, "delete_sessions", func() (err error) {
		res.Sessions, err = s.storage.DeleteExpiredSessions(ctx, sessionCutoff)
		return err
	})
	s.step(&res, "expire_rooms", func() (err error) {
		res.Rooms, err = s.roomCtl.Expire(ctx, roomCutoff)
		return err
	})

	s.metrics.SweepEvictions.WithLabelValues("connection").Add(float64(res.Disconnected))
	s.metrics.SweepEvictions.WithLabelValues("membership").Add(float64(res.Memberships))
	s.metrics.SweepEvictions.WithLabelValues("session").Add(float64(res.Sessions))
	s.metrics.SweepEvictions.WithLabelValues("room").Add(float64(res.Rooms))
	s.metrics.Connections.Set(float64(s.conns.Len()))

	if res.Disconnected+res.Memberships+res.Sessions+res.Rooms > 0 || len(res.Failed) > 0 {
		s.logger.Info("sweep finished",
			"disconnected", res.Disconnected,
			"memberships", res.Memberships,
			"sessions", res.Sessions,
			"rooms", res.Rooms,
			"failed", res.Failed,
		)
	}
	return res
}

// step runs fn, recording and logging a failure or panic without stopping
// the remaining steps
func (s *Sweeper) step(res *Result, name string, fn func() error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn()
	}()
	if err != nil {
		res.Failed = append(res.Failed, name)
		s.metrics.SweepFailures.WithLabelValues(name).Inc()
		s.logger.Error("sweep step failed", "step", name, "error", err)
	}
}

// disconnectExpired closes live connections whose session has timed out
func (s *Sweeper) disconnectExpired(ctx context.Context, cutoff time.Time) (int, error) {
	tokens, err := s.storage.ExpiredSessions(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if len(tokens) == 0 {
		return 0, nil
	}

	expired := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		expired[t] = struct{}{}
	}

	disconnected := 0
	for _, c := range s.conns.Snapshot() {
		token := c.SessionToken()
		if token == "" {
			continue
		}
		if _, ok := expired[token]; !ok {
			continue
		}

		if err := c.Disconnect(registry.CloseNormal, "Session Timeout"); err != nil {
			s.logger.Warn("failed to close timed out connection", "conn", c.ID(), "error", err)
		}
		s.conns.Remove(c.ID())
		s.roomCtl.Detach(c)
		c.Reset()
		disconnected++
	}
	return disconnected, nil
}
