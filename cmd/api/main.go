package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/robertarktes/coworking-booking-engine/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/coworking-booking-engine/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/coworking-booking-engine/internal/adapters/redis"
	"github.com/robertarktes/coworking-booking-engine/internal/availability"
	"github.com/robertarktes/coworking-booking-engine/internal/booking"
	"github.com/robertarktes/coworking-booking-engine/internal/catalog"
	"github.com/robertarktes/coworking-booking-engine/internal/config"
	"github.com/robertarktes/coworking-booking-engine/internal/handoff"
	httphandler "github.com/robertarktes/coworking-booking-engine/internal/http"
	"github.com/robertarktes/coworking-booking-engine/internal/idempotency"
	"github.com/robertarktes/coworking-booking-engine/internal/observability"
	"github.com/robertarktes/coworking-booking-engine/internal/rateLimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.ValidateSecrets(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg, "cowork-api")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	crdbRepo := crdb.NewRepository(pool)
	if err := crdbRepo.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database(cfg.MongoDatabase)
	listingRepo := mongoadapter.NewListingRepository(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), idempotency.DefaultTTL)
	rl := rateLimit.NewRateLimiter(redisCache.Client())

	listings := catalog.New(listingRepo, redisCache, cfg.ListingCacheTTL, logger)
	resolver := availability.NewResolver(crdbRepo, logger, availability.Options{
		CheckTimeout:  cfg.CheckTimeout,
		CommitTimeout: cfg.CommitTimeout,
		HoldTTL:       cfg.HoldTTL,
	})
	checkout := booking.NewCheckout(resolver, cfg.CheckoutBaseURL)
	intents, err := handoff.NewService(redisadapter.NewIntentStore(redisClient), []byte(cfg.IntentSecret), cfg.IntentTTL, nil)
	if err != nil {
		log.Fatalf("failed to create intent hand-off: %v", err)
	}

	handlers := httphandler.NewHandlers(listings, resolver, checkout, crdbRepo, intents, logger, map[string]httphandler.Pinger{
		"crdb":  pool.Ping,
		"redis": redisCache.Ping,
		"mongo": func(ctx context.Context) error { return mongoClient.Ping(ctx, readpref.Primary()) },
	})

	r := httphandler.SetupRouter(handlers, logger, httphandler.RouterOptions{
		JWTSecret:   []byte(cfg.JWTSecret),
		Limiter:     rl,
		Idempotency: idemp,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()
	logger.WithField("addr", cfg.HTTPAddr).Info("API listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
