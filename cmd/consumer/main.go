package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"userapi/internal/events/consumer"
	"userapi/internal/identity"
	"userapi/internal/platform/config"
	"userapi/internal/platform/kafka"
	"userapi/internal/platform/logger"
	"userapi/internal/platform/postgres"
)

// The consumer keeps a local user read model in sync with the user lifecycle
// stream.
func main() {
	cfg := config.FromEnv()
	log := logger.New("userapi-consumer")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(cfg.PostgresDSN)
	if err != nil {
		log.Error("opening postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		log.Error("ensuring schema", "error", err)
		os.Exit(1)
	}

	router := consumer.NewRouter(log)
	consumer.NewMirror(identity.NewPostgres(db), log).Register(router)

	group, err := kafka.NewConsumer(cfg.KafkaBrokers, "userapi", router.Topics(), log)
	if err != nil {
		log.Error("creating kafka consumer", "error", err)
		os.Exit(1)
	}
	if err := group.EnsureTopics(ctx, router.Topics()...); err != nil {
		log.Error("ensuring topics", "error", err)
		os.Exit(1)
	}

	log.Info("starting consumer", "topics", router.Topics())
	if err := group.Run(ctx, router); err != nil && ctx.Err() == nil {
		log.Error("consumer exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
