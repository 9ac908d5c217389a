package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

// MinSecretLength is the shortest HMAC key accepted for JWT_SECRET and
// INTENT_SECRET.
const MinSecretLength = 32

type Config struct {
	HTTPAddr        string
	CRDBDSN         string
	MongoURI        string
	MongoDatabase   string
	RedisAddr       string
	RabbitURL       string
	JWTSecret       string
	IntentSecret    string
	CheckoutBaseURL string
	HoldTTL         time.Duration
	IntentTTL       time.Duration
	CheckTimeout    time.Duration
	CommitTimeout   time.Duration
	ListingCacheTTL time.Duration
	ExpiryInterval  time.Duration
	OTLPEndpoint    string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		HTTPAddr:        stringEnv("HTTP_ADDR", ":8080"),
		CRDBDSN:         os.Getenv("CRDB_DSN"),
		MongoURI:        os.Getenv("MONGO_URI"),
		MongoDatabase:   stringEnv("MONGO_DATABASE", "cowork"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RabbitURL:       os.Getenv("RABBIT_URL"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		IntentSecret:    os.Getenv("INTENT_SECRET"),
		CheckoutBaseURL: os.Getenv("CHECKOUT_BASE_URL"),
		HoldTTL:         durationEnv("HOLD_TTL", 15*time.Minute),
		IntentTTL:       durationEnv("INTENT_TTL", 30*time.Minute),
		CheckTimeout:    durationEnv("CHECK_TIMEOUT", 2*time.Second),
		CommitTimeout:   durationEnv("COMMIT_TIMEOUT", 5*time.Second),
		ListingCacheTTL: durationEnv("LISTING_CACHE_TTL", time.Minute),
		ExpiryInterval:  durationEnv("EXPIRY_INTERVAL", time.Minute),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}

// ValidateSecrets fails when a signing secret is missing or too short. Only
// the API needs them, so the workers do not call it.
func (c *Config) ValidateSecrets() error {
	for name, secret := range map[string]string{"JWT_SECRET": c.JWTSecret, "INTENT_SECRET": c.IntentSecret} {
		if len(secret) < MinSecretLength {
			return errors.Newf("%s must be at least %d bytes", name, MinSecretLength)
		}
	}
	return nil
}

func stringEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) time.Duration {
	d, _ := time.ParseDuration(os.Getenv(key))
	if d <= 0 {
		return def
	}
	return d
}
