package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/relaychat/relay-server/internal/api"
	"github.com/relaychat/relay-server/internal/config"
	"github.com/relaychat/relay-server/internal/friend"
	"github.com/relaychat/relay-server/internal/group"
	"github.com/relaychat/relay-server/internal/offline"
	"github.com/relaychat/relay-server/internal/postgres"
	"github.com/relaychat/relay-server/internal/redisbus"
	"github.com/relaychat/relay-server/internal/router"
	"github.com/relaychat/relay-server/internal/server"
	"github.com/relaychat/relay-server/internal/user"
)

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.IsDevelopment() {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger()
	}

	log.Info().Str("env", cfg.ServerEnv).Msg("Starting Relay Server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect PostgreSQL
	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConn, cfg.DatabaseMinConn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	log.Info().Msg("PostgreSQL connected")

	// Run migrations
	if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info().Msg("Database migrations complete")

	// Connect Redis
	rdb, err := redisbus.Connect(ctx, cfg.RedisURL, cfg.RedisDialTimeout)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	userRepo := user.NewPGRepository(db)
	friendRepo := friend.NewPGRepository(db)
	groupRepo := group.NewPGRepository(db)
	offlineRepo := offline.NewPGRepository(db)

	// An unclean shutdown leaves users stuck "online", which makes every delivery for them a dropped publish. Repair
	// before the first connection is accepted.
	if err := userRepo.ResetAllOffline(ctx); err != nil {
		return fmt.Errorf("reset user states: %w", err)
	}
	log.Info().Msg("Stale presence state cleared")

	bus := redisbus.New(rdb, log.Logger)
	defer bus.Close()

	rt := router.New(userRepo, friendRepo, groupRepo, offlineRepo, bus, log.Logger)

	// Bus receive loop with reconnection.
	go func() {
		for {
			if err := bus.Run(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				log.Error().Err(err).Msg("Bus receive loop stopped, restarting in 5s")
				select {
				case <-ctx.Done():
					return
				case <-time.After(5 * time.Second):
				}
				continue
			}
			return
		}
	}()

	// Health endpoint beside the chat port.
	healthApp := api.NewApp(&api.HealthHandler{DB: db, Redis: rdb})
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HealthPort)
		log.Info().Str("addr", addr).Msg("Health endpoint listening")
		if err := healthApp.Listen(addr); err != nil {
			log.Error().Err(err).Msg("Health endpoint stopped")
		}
	}()

	srv := server.New(rt, cfg, log.Logger)
	if err := srv.Listen(fmt.Sprintf(":%d", cfg.ChatPort)); err != nil {
		return err
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info().Msg("Shutting down server")
		_ = healthApp.Shutdown()
		cancel()
	}()

	log.Info().Int("port", cfg.ChatPort).Msg("Chat server listening")
	return srv.Serve(ctx)
}
