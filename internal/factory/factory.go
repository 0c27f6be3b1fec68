package factory

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/mcoot/gameserver/internal/dependencies/clock"
	"github.com/mcoot/gameserver/internal/dependencies/random"
	"github.com/mcoot/gameserver/internal/dispatch"
	"github.com/mcoot/gameserver/internal/obs"
	"github.com/mcoot/gameserver/internal/registry"
	"github.com/mcoot/gameserver/internal/relay"
	"github.com/mcoot/gameserver/internal/services/auth"
	"github.com/mcoot/gameserver/internal/services/room"
	"github.com/mcoot/gameserver/internal/storage"
	"github.com/mcoot/gameserver/internal/storage/memory"
	pgstorage "github.com/mcoot/gameserver/internal/storage/postgres"
	redisstorage "github.com/mcoot/gameserver/internal/storage/redis"
	"github.com/mcoot/gameserver/internal/sweeper"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypeRedis    = "redis"
	StorageTypePostgres = "postgres"
)

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock  clock.Clock
	Random random.Random

	// In-memory registries
	Connections *registry.Connections
	Rooms       *registry.Rooms

	// Services
	RoomController *room.Controller
	AuthService    *auth.Service
	Relay          *relay.Relay
	Dispatcher     *dispatch.Dispatcher
	Sweeper        *sweeper.Sweeper

	Metrics *obs.Metrics
	Logger  *slog.Logger
}

// Config holds configuration for the application factory
type Config struct {
	// AuthConfig holds configuration for the auth service (optional)
	// Zero fields fall back to auth.DefaultConfig()
	AuthConfig auth.Config
	// RoomIDLength is the length of generated room ids (optional)
	// If zero, defaults to room.DefaultIDLength
	RoomIDLength int
	// SweeperConfig holds expiry timing (optional)
	// Zero fields fall back to sweeper.DefaultConfig()
	SweeperConfig sweeper.Config
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory", "redis" or "postgres")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// PostgresConfig holds PostgreSQL settings (required if StorageType is "postgres")
	PostgresConfig *pgstorage.Config
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	store, err := newStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Create external dependencies
	clk := clock.New()
	rnd := random.New()

	return newWithDependencies(store, clk, rnd, cfg, logger), nil
}

func newStorage(cfg Config, logger *slog.Logger) (storage.Storage, error) {
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		return memory.New(), nil
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		return redisstorage.New(*cfg.RedisConfig)
	case StorageTypePostgres:
		if cfg.PostgresConfig == nil {
			return nil, errors.New("PostgresConfig required when StorageType is postgres")
		}
		return pgstorage.Open(context.Background(), *cfg.PostgresConfig, logger)
	default:
		return nil, errors.New("invalid StorageType: must be 'memory', 'redis' or 'postgres'")
	}
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(store storage.Storage, clk clock.Clock, rnd random.Random, cfg Config, logger *slog.Logger) *App {
	metrics := obs.NewMetrics()
	conns := registry.NewConnections()
	rooms := registry.NewRooms()

	roomIDLength := cfg.RoomIDLength
	if roomIDLength == 0 {
		roomIDLength = room.DefaultIDLength
	}

	// Create services
	roomController := room.NewController(store, rooms, clk, rnd, roomIDLength, logger)
	authService := auth.New(store, clk, rnd, cfg.AuthConfig, logger)
	relayHooks := relay.New(rooms, roomController, logger)
	dispatcher := dispatch.New(dispatch.Deps{
		Connections: conns,
		Rooms:       rooms,
		RoomControl: roomController,
		Auth:        authService,
		Hooks:       relayHooks,
		Metrics:     metrics,
		Logger:      logger,
	})
	sweep := sweeper.New(store, conns, roomController, clk, cfg.SweeperConfig, metrics, logger)

	return &App{
		Storage:        store,
		Clock:          clk,
		Random:         rnd,
		Connections:    conns,
		Rooms:          rooms,
		RoomController: roomController,
		AuthService:    authService,
		Relay:          relayHooks,
		Dispatcher:     dispatcher,
		Sweeper:        sweep,
		Metrics:        metrics,
		Logger:         logger,
	}
}

// Close releases the storage backend, if it holds any resources
func (a *App) Close() error {
	if closer, ok := a.Storage.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
