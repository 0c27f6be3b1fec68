package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/mcoot/gameserver/internal/api"
	"github.com/mcoot/gameserver/internal/config"
	"github.com/mcoot/gameserver/internal/factory"
	"github.com/mcoot/gameserver/internal/registry"
	"github.com/mcoot/gameserver/internal/services/auth"
	pgstorage "github.com/mcoot/gameserver/internal/storage/postgres"
	redisstorage "github.com/mcoot/gameserver/internal/storage/redis"
	"github.com/mcoot/gameserver/internal/sweeper"
	"github.com/mcoot/gameserver/internal/transport/ws"
)

func main() {
	configPath, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		os.Exit(2)
	}

	// Bootstrap logger until the configured level is known
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(logger, configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	level, _ := config.ParseLevel(cfg.Log.Level)
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Create application factory
	app, err := factory.New(factoryConfig(cfg, logger))
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("failed to close storage", slog.String("error", err.Error()))
		}
	}()

	wsHandler := ws.NewHandler(app.Dispatcher, ws.Config{
		ServerName: cfg.Server.Name,
		SendBuffer: cfg.Transport.SendBuffer,
		ReadLimit:  cfg.Transport.ReadLimit,
		RateLimit:  cfg.Transport.RateLimit,
		RateBurst:  cfg.Transport.RateBurst,
	}, app.Metrics, logger)

	router := api.NewRouter(api.RouterConfig{
		Logger:      logger,
		ServerName:  cfg.Server.Name,
		StorageType: cfg.Storage.Type,
		Storage:     app.Storage,
		Dispatcher:  app.Dispatcher,
		WebSocket:   wsHandler,
		Metrics:     app.Metrics,
	})

	// Create server
	server := api.NewServer(router, api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)
	server.RegisterOnShutdown(func() {
		n := app.Connections.DisconnectAll(registry.CloseGoingAway, "Server shutting down")
		logger.Info("closed websocket connections", slog.Int("count", n))
	})

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go app.Sweeper.Run(ctx)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("server started",
		slog.String("name", cfg.Server.Name),
		slog.String("addr", server.Addr()),
		slog.String("storage", cfg.Storage.Type),
	)

	// Wait for shutdown or error
	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	logger.Info("server stopped")
}

// parseFlags returns the config file path given on the command line
func parseFlags(args []string) (string, error) {
	flags := pflag.NewFlagSet("server", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to a YAML config file")
	if err := flags.Parse(args); err != nil {
		return "", err
	}
	return *configPath, nil
}

// factoryConfig maps loaded settings onto the application factory
func factoryConfig(cfg *config.Config, logger *slog.Logger) factory.Config {
	fc := factory.Config{
		AuthConfig: auth.Config{
			BcryptCost:      cfg.Auth.BcryptCost,
			SessionIDLength: cfg.Session.IDLength,
		},
		RoomIDLength: cfg.Game.IDLength,
		SweeperConfig: sweeper.Config{
			Interval:       cfg.Sweeper.Interval,
			SessionTimeout: cfg.Session.Timeout,
			RoomTimeout:    cfg.Game.Timeout,
		},
		Logger:      logger,
		StorageType: cfg.Storage.Type,
	}

	switch cfg.Storage.Type {
	case factory.StorageTypeRedis:
		fc.RedisConfig = &redisstorage.Config{
			URL:          cfg.Redis.URL,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}
	case factory.StorageTypePostgres:
		fc.PostgresConfig = &pgstorage.Config{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
			AutoMigrate:     cfg.Postgres.Migrate,
		}
	}
	return fc
}
