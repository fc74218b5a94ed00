// relay accepts WebSocket connections from the tracking device (?from=esp)
// and from dashboards (?from=site) and keeps both sides in sync.
// Usage: go run ./cmd/relay [--config configs/relay.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/rota-relay/internal/broadcast"
	"github.com/rickgao/rota-relay/internal/config"
	"github.com/rickgao/rota-relay/internal/connection"
	"github.com/rickgao/rota-relay/internal/database"
	"github.com/rickgao/rota-relay/internal/mirror"
	"github.com/rickgao/rota-relay/internal/model"
	"github.com/rickgao/rota-relay/internal/relay"
	"github.com/rickgao/rota-relay/internal/router"
	"github.com/rickgao/rota-relay/internal/server"
	"github.com/rickgao/rota-relay/internal/state"
	"github.com/rickgao/rota-relay/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to optional YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting relay",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("relay failed", "error", err)
		os.Exit(1)
	}
	logger.Info("relay stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Route history: database when configured, built-in list otherwise
	history := model.DemoRouteHistory()

	var pool *pgxpool.Pool
	if cfg.Database.Enabled() {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"database", cfg.Database.Name,
		)

		connectCtx, connectCancel := context.WithTimeout(ctx, 15*time.Second)
		p, err := database.Connect(connectCtx, cfg.Database)
		connectCancel()
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		pool = p
		defer pool.Close()

		history, err = database.LoadRouteHistory(ctx, pool)
		if err != nil {
			return fmt.Errorf("load route history: %w", err)
		}
		logger.Info("route history loaded", "routes", len(history))
	}

	st := state.New(history)
	registry := connection.NewRegistry(logger)

	// Optional MQTT mirror
	engineOpts := []broadcast.Option{broadcast.WithLogger(logger)}
	var mirrorPub *mirror.Publisher
	if cfg.MQTT.Enabled() {
		mcfg := mirror.DefaultConfig()
		mcfg.Broker = cfg.MQTT.Broker
		mcfg.ClientID = cfg.MQTT.ClientID
		mcfg.TopicPrefix = cfg.MQTT.TopicPrefix
		mcfg.QoS = byte(cfg.MQTT.QoS)
		mcfg.Username = cfg.MQTT.Username
		mcfg.Password = cfg.MQTT.Password
		mcfg.ConnectTimeout = cfg.MQTT.ConnectTimeout

		p, err := mirror.Connect(mcfg, logger)
		if err != nil {
			return fmt.Errorf("connect mqtt: %w", err)
		}
		mirrorPub = p
		defer mirrorPub.Close()

		engineOpts = append(engineOpts, broadcast.WithMirror(mirrorPub))
		logger.Info("mqtt mirror enabled",
			"broker", mcfg.Broker,
			"state_topic", mirror.Topic(mcfg.TopicPrefix, mirror.TopicState),
			"command_topic", mirror.Topic(mcfg.TopicPrefix, mirror.TopicCommand),
		)
	}

	engine := broadcast.New(registry, st, engineOpts...)
	rl := relay.New(registry, logger)

	rt := router.NewRouter(router.Config{QueueSize: cfg.Router.QueueSize}, registry, st, engine, rl, logger)
	if err := rt.Start(context.Background()); err != nil {
		return fmt.Errorf("start router: %w", err)
	}

	serverOpts := []server.Option{
		server.WithLogger(logger),
		server.WithComponent("broadcast", func() any { return engine.Stats() }),
	}
	if pool != nil {
		serverOpts = append(serverOpts, server.WithDatabase(pool))
	}
	if mirrorPub != nil {
		serverOpts = append(serverOpts, server.WithComponent("mirror", func() any { return mirrorPub.Stats() }))
	}

	connCfg := connection.DefaultConnConfig()
	connCfg.WriteTimeout = cfg.Server.WriteTimeout
	connCfg.OutboxSize = cfg.Server.OutboxSize

	srv := server.New(server.Config{
		Addr:            fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Conn:            connCfg,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Debug:           cfg.Log.Level == "debug",
	}, registry, rt, serverOpts...)

	logger.Info("relay running",
		"port", cfg.Server.Port,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port),
	)

	serveErr := srv.Run(ctx)

	logger.Info("shutting down...")

	// Stop in reverse order: the listener is closed, drain the router
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	stopErr := rt.Stop(shutdownCtx)

	return errors.Join(serveErr, stopErr)
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level, err := cfg.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
