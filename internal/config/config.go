package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string

	// Database
	DatabaseURL    string
	DBMaxOpenConns int
	DBMaxIdleConns int
	MigrateOnStart bool

	// Redis
	RedisURL string

	// Server
	Port        string
	FrontendURL string

	// Challenges
	ChallengeStore         string // "postgres" or "memory"
	ChallengeTTLHours      int
	RealtimeChannel        string
	AckWriteTimeoutSeconds int
	FetchTimeoutSeconds    int
	CacheIdleMinutes       int

	// Security
	JWTSecret string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Database
		DatabaseURL:    getEnv("DATABASE_URL", "postgres://localhost:5432/duels?sslmode=disable"),
		DBMaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
		MigrateOnStart: getEnvBool("MIGRATE_ON_START", false),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// Server
		Port:        getEnv("APP_PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

		// Challenges
		ChallengeStore:         getEnv("CHALLENGE_STORE", "postgres"),
		ChallengeTTLHours:      getEnvInt("CHALLENGE_TTL_HOURS", 168),
		RealtimeChannel:        getEnv("REALTIME_CHANNEL", "challenge_events"),
		AckWriteTimeoutSeconds: getEnvInt("ACK_WRITE_TIMEOUT_SECONDS", 5),
		FetchTimeoutSeconds:    getEnvInt("FETCH_TIMEOUT_SECONDS", 10),
		CacheIdleMinutes:       getEnvInt("CACHE_IDLE_MINUTES", 30),

		// Security
		JWTSecret: getEnv("JWT_SECRET", "change-me-in-production"),
	}
}

// ChallengeTTL is how long after creation a challenge's expires_at is set.
func (c *Config) ChallengeTTL() time.Duration {
	if c.ChallengeTTLHours <= 0 {
		return 168 * time.Hour
	}
	return time.Duration(c.ChallengeTTLHours) * time.Hour
}

func (c *Config) AckWriteTimeout() time.Duration {
	if c.AckWriteTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.AckWriteTimeoutSeconds) * time.Second
}

func (c *Config) FetchTimeout() time.Duration {
	if c.FetchTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// CacheIdleTTL is how long an unused per-user view stays cached.
func (c *Config) CacheIdleTTL() time.Duration {
	if c.CacheIdleMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.CacheIdleMinutes) * time.Minute
}

// UseMemoryStore reports whether challenges and inbox live in process memory
// instead of Postgres (local development only).
func (c *Config) UseMemoryStore() bool {
	return c.ChallengeStore == "memory"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
