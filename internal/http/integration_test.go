//go:build integration

package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/robertarktes/coworking-booking-engine/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/coworking-booking-engine/internal/adapters/mongo"
	"github.com/robertarktes/coworking-booking-engine/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/coworking-booking-engine/internal/adapters/redis"
	"github.com/robertarktes/coworking-booking-engine/internal/audit"
	"github.com/robertarktes/coworking-booking-engine/internal/availability"
	"github.com/robertarktes/coworking-booking-engine/internal/booking"
	"github.com/robertarktes/coworking-booking-engine/internal/catalog"
	"github.com/robertarktes/coworking-booking-engine/internal/domain"
	"github.com/robertarktes/coworking-booking-engine/internal/handoff"
	httphandler "github.com/robertarktes/coworking-booking-engine/internal/http"
	"github.com/robertarktes/coworking-booking-engine/internal/idempotency"
	"github.com/robertarktes/coworking-booking-engine/internal/observability"
	"github.com/robertarktes/coworking-booking-engine/internal/outbox"
	"github.com/robertarktes/coworking-booking-engine/internal/rateLimit"
)

func startContainer(t *testing.T, req testcontainers.ContainerRequest, port string) string {
	t.Helper()
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	mapped, err := c.MappedPort(ctx, port)
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

func TestIntegration_BookingFlow(t *testing.T) {
	ctx := context.Background()
	logger := observability.NewLoggerWithOutput(io.Discard)
	secret := []byte("integration-secret")

	crdbAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "cockroachdb/cockroach:v24.1.1",
		Cmd:          []string{"start-single-node", "--insecure"},
		ExposedPorts: []string{"26257/tcp", "8080/tcp"},
		WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
	}, "26257")
	mongoAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForLog("Waiting for connections"),
	}, "27017")
	redisAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}, "6379")
	rabbitAddr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.13-management",
		ExposedPorts: []string{"5672/tcp", "15672/tcp"},
		WaitingFor:   wait.ForHTTP("/api/health/checks/alarms").WithPort("15672").WithBasicAuth("guest", "guest"),
	}, "5672")

	pool, err := pgxpool.New(ctx, "postgresql://root@"+crdbAddr+"/defaultdb?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	repo := crdb.NewRepository(pool)
	require.NoError(t, repo.EnsureSchema(ctx))

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI("mongodb://"+mongoAddr))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mongoClient.Disconnect(ctx) })
	db := mongoClient.Database("cowork_it")
	listingRepo := mongoadapter.NewListingRepository(db, logger)
	require.NoError(t, listingRepo.CreateListing(ctx, domain.Listing{
		ID:       "desk-1",
		OwnerID:  "host",
		Title:    "Window desk",
		Capacity: 2,
		TimeZone: "Asia/Manila",
		Rates: domain.RateSheet{
			PriceSeatDay: domain.Rate(1500),
			ServiceFee:   domain.Rate(100),
			CleaningFee:  domain.Rate(50),
			Currency:     "PHP",
		},
	}))

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: redisAddr})
	t.Cleanup(func() { _ = redisClient.Close() })
	cache := redisadapter.NewCache(redisClient)

	conn, err := amqp.Dial("amqp://guest:guest@" + rabbitAddr + "/")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	pub, err := rabbit.NewPublisher(conn)
	require.NoError(t, err)
	cons, err := rabbit.NewConsumer(conn, audit.Queue, audit.Bindings...)
	require.NoError(t, err)

	intents, err := handoff.NewService(redisadapter.NewIntentStore(redisClient), secret, time.Minute, nil)
	require.NoError(t, err)

	resolver := availability.NewResolver(repo, logger, availability.Options{})
	handlers := httphandler.NewHandlers(
		catalog.New(listingRepo, cache, time.Minute, logger),
		resolver,
		booking.NewCheckout(resolver, "https://pay.example/checkout"),
		repo,
		intents,
		logger,
		map[string]httphandler.Pinger{"crdb": pool.Ping, "redis": cache.Ping},
	)
	srv := httptest.NewServer(httphandler.SetupRouter(handlers, logger, httphandler.RouterOptions{
		JWTSecret:   secret,
		Limiter:     rateLimit.NewRateLimiter(redisClient),
		Idempotency: idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), time.Hour),
	}))
	t.Cleanup(srv.Close)

	userToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(secret)
	require.NoError(t, err)

	post := func(path string, body interface{}, auth bool, headers ...string) (int, map[string]interface{}) {
		t.Helper()
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req, err := http.NewRequest(http.MethodPost, srv.URL+path, bytes.NewReader(raw))
		require.NoError(t, err)
		if auth {
			req.Header.Set("Authorization", "Bearer "+userToken)
		}
		for i := 0; i+1 < len(headers); i += 2 {
			req.Header.Set(headers[i], headers[i+1])
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		out := map[string]interface{}{}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return resp.StatusCode, out
	}

	intent := domain.BookingIntent{
		ListingID: "desk-1",
		Window:    domain.BookingWindow{StartDate: "2030-09-01", EndDate: "2030-09-03", CheckInTime: "14:00", CheckOutTime: "12:00", Guests: 1},
	}

	// Anonymous user stashes the intent, logs in and claims it back.
	status, body := post("/bookings/handoff", intent, false)
	require.Equal(t, http.StatusCreated, status)
	status, body = post("/bookings/handoff/"+body["token"].(string)+"/claim", map[string]string{"listingId": "desk-1"}, true)
	require.Equal(t, http.StatusOK, status)

	status, body = post("/bookings/intent", intent, true, "Idempotency-Key", "it-flow-key-000000001")
	require.Equal(t, http.StatusCreated, status)
	assert.Contains(t, body["checkoutUrl"], "bookingId=")

	status, body = post("/bookings/check-availability", map[string]string{
		"listingId": "desk-1", "startDate": "2030-09-02", "endDate": "2030-09-02",
		"checkInTime": "09:00", "checkOutTime": "10:00",
	}, false)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["available"])

	relay := outbox.NewPublisher(repo, pub, logger, time.Second)
	n, err := relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	deliveries, err := cons.Consume(ctx)
	require.NoError(t, err)
	select {
	case d := <-deliveries:
		assert.Equal(t, "reservation.held", d.RoutingKey)
		audit.NewConsumer(mongoadapter.NewAuditLogger(db, logger), logger).Handle(ctx, d)
	case <-time.After(10 * time.Second):
		t.Fatal("no event delivered")
	}

	entries, err := mongoadapter.NewAuditLogger(db, logger).Find(ctx, "reservation.held", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].UserID)
}
