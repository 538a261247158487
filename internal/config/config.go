package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// DevHouseUserID is the house wallet owner used when HOUSE_USER_ID is unset in development.
const DevHouseUserID = "00000000-0000-4000-8000-000000000001"

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName         string        `envconfig:"APP_NAME" default:"Towlink"`
	Env             string        `envconfig:"APP_ENV" default:"development"`
	Port            string        `envconfig:"PORT" default:"8080"`
	WSPort          string        `envconfig:"WS_PORT" default:"8081"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	DatabaseURL     string        `envconfig:"DATABASE_URL"`
	RedisURL        string        `envconfig:"REDIS_URL"`
	ShutdownPeriod  time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	IdempotencyTTL  time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
	JWTSecret       string        `envconfig:"JWT_SECRET" default:"dev-access-secret"`
	RefreshSecret   string        `envconfig:"JWT_REFRESH_SECRET" default:"dev-refresh-secret"`
	AccessTokenTTL  time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"15m"`
	RefreshTokenTTL time.Duration `envconfig:"REFRESH_TOKEN_TTL" default:"720h"`
	HouseUserID     string        `envconfig:"HOUSE_USER_ID"`
	KafkaBrokers    []string      `envconfig:"KAFKA_BROKERS"`
	KafkaTopic      string        `envconfig:"KAFKA_TOPIC" default:"ride-events"`
	EventQueueSize  int           `envconfig:"EVENT_QUEUE_SIZE" default:"1024"`
	LoginRateLimit  int           `envconfig:"LOGIN_RATE_LIMIT" default:"5"`
	AutoMigrate     bool          `envconfig:"AUTO_MIGRATE" default:"false"`
	AdminPhone      string        `envconfig:"ADMIN_PHONE"`
	AdminPIN        string        `envconfig:"ADMIN_PIN"`
}

// Load reads configuration values from the environment (and an optional .env file)
// and populates a Config instance.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if cfg.IsDev() {
		if cfg.HouseUserID == "" {
			cfg.HouseUserID = DevHouseUserID
		}
		return cfg, nil
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}
	if cfg.JWTSecret == "" || cfg.JWTSecret == "dev-access-secret" {
		return Config{}, fmt.Errorf("JWT_SECRET must be set")
	}
	if cfg.HouseUserID == "" {
		return Config{}, fmt.Errorf("HOUSE_USER_ID must be set")
	}

	return cfg, nil
}

// IsDev reports whether the process runs in a local/development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.Env) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// IsProd reports whether internal error details must be hidden from callers.
func (c Config) IsProd() bool {
	return strings.EqualFold(c.Env, "production") || strings.EqualFold(c.Env, "prod")
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	return listenAddr(c.Port)
}

// WSAddress returns the listen address of the push gateway.
func (c Config) WSAddress() string {
	return listenAddr(c.WSPort)
}

func listenAddr(port string) string {
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}
