// Package config loads application configuration from environment variables.
// A .env file in the working directory is read first when present; variables
// already set in the environment win over the file.
package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values. Required variables are
// enforced by must(); everything else has a default.
type Config struct {
	Env       string // APP_ENV: dev, test or prod
	Port      string // APP_PORT: HTTP port to listen on
	JWTSecret string // JWT_SECRET: HMAC secret used to verify access tokens

	Database  DatabaseConfig
	Redis     RedisConfig
	Messenger MessengerConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Payment   PaymentConfig
}

// DatabaseConfig selects and addresses the relational store.
type DatabaseConfig struct {
	Driver       string // mysql or postgres
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string // postgres only
	MaxOpenConns int
	Migrate      bool // apply the embedded schema on startup
}

// Load reads configuration values from the environment. Missing required
// variables cause the program to exit with a fatal log message.
func Load() Config {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	driver := envStr("DB_DRIVER", "mysql")
	defPort := "3306"
	if driver == "postgres" {
		defPort = "5432"
	}

	return Config{
		Env:       envStr("APP_ENV", "dev"),
		Port:      envStr("APP_PORT", "8080"),
		JWTSecret: must("JWT_SECRET"),
		Database: DatabaseConfig{
			Driver:       driver,
			Host:         must("DB_HOST"),
			Port:         envStr("DB_PORT", defPort),
			User:         must("DB_USER"),
			Password:     os.Getenv("DB_PASS"), // empty allowed
			Name:         must("DB_NAME"),
			SSLMode:      envStr("DB_SSLMODE", "disable"),
			MaxOpenConns: envInt("DB_MAX_OPEN_CONNS", 25),
			Migrate:      envBool("MIGRATE", false),
		},
		Redis:     LoadRedisConfig(),
		Messenger: LoadMessengerConfig(),
		RateLimit: LoadRateLimitConfig(),
		Cache:     LoadCacheConfig(),
		Payment:   LoadPaymentConfig(),
	}
}

// IsProduction reports whether APP_ENV is prod.
func (c Config) IsProduction() bool { return c.Env == "prod" || c.Env == "production" }

// LoadJWTSecret returns JWT_SECRET without requiring the rest of the
// configuration. Used by development tooling.
func LoadJWTSecret() string {
	_ = godotenv.Load()
	return must("JWT_SECRET")
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
