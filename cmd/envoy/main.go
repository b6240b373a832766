package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/envoy/internal/adjudicator"
	"github.com/freeeve/envoy/internal/chat"
	"github.com/freeeve/envoy/internal/config"
	"github.com/freeeve/envoy/internal/logger"
	"github.com/freeeve/envoy/internal/orchestrator"
	"github.com/freeeve/envoy/internal/repository/postgres"
	redisrepo "github.com/freeeve/envoy/internal/repository/redis"
)

func main() {
	logger.Init()
	cfg := config.Load()
	log.Info().Str("adjudicatorURL", cfg.AdjudicatorURL).Str("selfHandle", cfg.SelfHandle).Msg("Config loaded")

	// Database
	db, err := postgres.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	// Redis
	redisClient, err := redisrepo.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClient.Close()

	// Enable Redis keyspace notifications for timer expiry events.
	if err := redisClient.Underlying().ConfigSet(context.Background(), "notify-keyspace-events", "Ex").Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to set Redis keyspace notifications (timer expiry falls back to polling)")
	}

	gameStore := postgres.NewGameStore(db)
	engine := adjudicator.NewHTTPClient(cfg.AdjudicatorURL)

	orch := orchestrator.New(gameStore, redisClient, engine, orchestrator.Config{
		SelfHandle:       cfg.SelfHandle,
		MovementDuration: cfg.MovementDuration,
		AdjustDuration:   cfg.AdjustDuration,
		GracePeriod:      cfg.GracePeriod,
	})

	// The chat platform client plugs in here; until one is configured the
	// bot runs deadline processing only.
	var feed chat.Feed = chat.EmptyFeed{}
	var messenger chat.Messenger = chat.NoopMessenger{}

	driver := orchestrator.NewDriver(orch, feed, messenger, redisClient, redisClient.Underlying())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Msg("envoy started")
	driver.Run(ctx)
	log.Info().Msg("envoy stopped")
}
