package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"userapi/internal/company"
	"userapi/internal/events"
	"userapi/internal/identity"
	jwttoken "userapi/internal/jwt_token"
	"userapi/internal/platform/cache"
	"userapi/internal/platform/config"
	"userapi/internal/platform/httpserver"
	"userapi/internal/platform/kafka"
	"userapi/internal/platform/logger"
	"userapi/internal/platform/metrics"
	"userapi/internal/platform/postgres"
	platformredis "userapi/internal/platform/redis"
	"userapi/internal/ratelimit"
	"userapi/internal/shahkar"
	"userapi/internal/storage"
	httptransport "userapi/internal/transport/http"
	"userapi/internal/verification"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New("userapi")

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

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	codeCache := cache.NewRedis(redisClient)

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, log)
	if err != nil {
		log.Error("creating kafka producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	m := metrics.New()
	publisher := events.NewKafkaStore(producer, log, m)
	otp := identity.NewOTPIssuer(codeCache, cfg.OTP.Length, cfg.OTP.Expiry, cfg.OTP.LogCodes, log)
	matcher := shahkar.NewClient(cfg.Shahkar, codeCache, log)

	userStore := identity.NewPostgres(db)
	companyStore := company.NewPostgres(db)
	verificationStore := verification.NewPostgres(db)

	users := identity.NewService(userStore, publisher, otp, matcher, m, log)
	companies := company.NewService(companyStore, otp, matcher, log)
	engine := verification.NewEngine(verificationStore, userStore)
	verifications := verification.NewService(
		verificationStore, engine, userStore, userStore, companyStore, publisher, m, log)

	tokens := jwttoken.NewJWTService(cfg.JWT.SigningKey, cfg.JWT.Issuer,
		cfg.JWT.AccessLifetime, cfg.JWT.RefreshLifetime)
	files := storage.NewDiskStore(cfg.FilesRoot)
	loginLimiter := ratelimit.NewLimiter(codeCache, "login", cfg.Login.Attempts, cfg.Login.Window, log)

	handler := httptransport.NewHandler(users, companies, verifications, tokens, files, loginLimiter, cfg, log)
	srv := httpserver.New(cfg.Addr, handler.Router())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
