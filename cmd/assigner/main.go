package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"userapi/internal/company"
	"userapi/internal/events"
	"userapi/internal/identity"
	"userapi/internal/platform/config"
	"userapi/internal/platform/kafka"
	"userapi/internal/platform/logger"
	"userapi/internal/platform/metrics"
	"userapi/internal/platform/postgres"
	"userapi/internal/verification"
)

// The assigner runs separately from the API server so verification requests
// keep getting picked up even while the server is being redeployed.
func main() {
	cfg := config.FromEnv()
	log := logger.New("userapi-assigner")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(cfg.PostgresDSN)
	if err != nil {
		log.Error("opening postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, log)
	if err != nil {
		log.Error("creating kafka producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	m := metrics.New()
	publisher := events.NewKafkaStore(producer, log, m)

	userStore := identity.NewPostgres(db)
	companyStore := company.NewPostgres(db)
	verificationStore := verification.NewPostgres(db)
	engine := verification.NewEngine(verificationStore, userStore)
	service := verification.NewService(
		verificationStore, engine, userStore, userStore, companyStore, publisher, m, log)

	assigner := verification.NewAssigner(service, cfg.AssignPeriod, m, log)
	log.Info("starting assigner", "period", cfg.AssignPeriod)
	if err := assigner.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("assigner exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
