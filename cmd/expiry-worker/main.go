package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/robertarktes/coworking-booking-engine/internal/adapters/crdb"
	"github.com/robertarktes/coworking-booking-engine/internal/availability"
	"github.com/robertarktes/coworking-booking-engine/internal/config"
	"github.com/robertarktes/coworking-booking-engine/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg, "cowork-expiry-worker")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	expirer := availability.NewExpirer(repo, logger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("failed to create scheduler: %v", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(cfg.ExpiryInterval),
		gocron.NewTask(func() {
			n, err := expirer.Sweep(ctx)
			if err != nil {
				logger.WithError(err).Error("expiry sweep failed")
				return
			}
			if n > 0 {
				logger.WithField("expired", n).Info("expired stale holds")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		log.Fatalf("failed to schedule expiry job: %v", err)
	}
	scheduler.Start()
	logger.WithField("interval", cfg.ExpiryInterval.String()).Info("expiry worker started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown expiry worker")
	cancel()
	if err := scheduler.Shutdown(); err != nil {
		logger.WithError(err).Warn("scheduler shutdown")
	}
}
