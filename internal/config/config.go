// Package config loads application configuration from environment variables.
package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env            string // APP_ENV, e.g. "dev" or "prod"
	Port           string // APP_PORT
	DBUser         string
	DBPass         string // optional
	DBHost         string
	DBPort         string
	DBName         string
	DBAutoMigrate  bool   // DB_AUTO_MIGRATE applies the bundled schema at startup
	JWTSecret      string // signs access tokens
	AccessTTLMin   int
	RefreshTTLDays int
	BcryptCost     int

	LogLevel  string // LOG_LEVEL: debug, info, warn, error
	LogFormat string // LOG_FORMAT: text or json
	LogDir    string // EVENT_LOG_DIR: where the event consumer appends

	GatewayTimeout      time.Duration // bound on one card authorization
	GatewayDeclineAbove int64         // simulated gateway declines amounts above this; 0 never
	IdempotencyLockTTL  time.Duration // lifetime of the in-flight key lock

	AuditSchedule string // cron spec for the ledger audit; empty disables
	RabbitURL     string
}

// Load reads configuration values from environment variables.  Required
// variables are enforced by must() and missing values cause the program
// to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:            must("APP_ENV"),
		Port:           must("APP_PORT"),
		DBUser:         must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"),
		DBHost:         must("DB_HOST"),
		DBPort:         must("DB_PORT"),
		DBName:         must("DB_NAME"),
		DBAutoMigrate:  envBool("DB_AUTO_MIGRATE", false),
		JWTSecret:      must("JWT_SECRET"),
		AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:     mustInt("BCRYPT_COST"),

		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: envStr("LOG_FORMAT", "text"),
		LogDir:    envStr("EVENT_LOG_DIR", "logs"),

		GatewayTimeout:      envDur("GATEWAY_TIMEOUT", 5*time.Second),
		GatewayDeclineAbove: envInt64("GATEWAY_DECLINE_ABOVE", 0),
		IdempotencyLockTTL:  envDur("IDEMPOTENCY_LOCK_TTL", 30*time.Second),

		AuditSchedule: os.Getenv("AUDIT_SCHEDULE"),
		RabbitURL:     rabbitURL(),
	}
}

// rabbitURL honours the legacy AMQP_URL name as a fallback.
func rabbitURL() string {
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		return v
	}
	return os.Getenv("AMQP_URL")
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}
