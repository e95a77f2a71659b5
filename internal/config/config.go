package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Participant tokens
	JWTSecret string
	TokenTTL  time.Duration

	// Sessions
	CodeLength          int
	SubmissionWorkers   int
	ExpirySweepInterval time.Duration

	// Change feed reconnects
	FeedBaseDelay  time.Duration
	FeedMaxDelay   time.Duration
	FeedMaxRetries int

	// Participation cache
	ParticipationTTL time.Duration

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                getEnvOrDefault("PORT", "8080"),
		Env:                 getEnvOrDefault("ENV", "development"),
		DatabaseURL:         mustGetEnv("DATABASE_URL"),
		RedisURL:            mustGetEnv("REDIS_URL"),
		JWTSecret:           mustGetEnv("JWT_SECRET"),
		TokenTTL:            getEnvAsDurationOrDefault("TOKEN_TTL", 24*time.Hour),
		CodeLength:          getEnvAsIntOrDefault("CODE_LENGTH", 6),
		SubmissionWorkers:   getEnvAsIntOrDefault("SUBMISSION_WORKERS", 4),
		ExpirySweepInterval: getEnvAsDurationOrDefault("EXPIRY_SWEEP_INTERVAL", time.Minute),
		FeedBaseDelay:       getEnvAsDurationOrDefault("FEED_BASE_DELAY", 2*time.Second),
		FeedMaxDelay:        getEnvAsDurationOrDefault("FEED_MAX_DELAY", 30*time.Second),
		FeedMaxRetries:      getEnvAsIntOrDefault("FEED_MAX_RETRIES", 3),
		ParticipationTTL:    getEnvAsDurationOrDefault("PARTICIPATION_TTL", 24*time.Hour),
		FrontendURL:         getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// getEnvAsDurationOrDefault accepts Go durations ("30s") and bare seconds.
func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if n, err := strconv.Atoi(val); err == nil {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}
