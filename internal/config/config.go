package config

import (
	"os"
	"strconv"
	"time"
)

// Engagement thresholds. The session-scope and weekly at-risk thresholds are
// deliberately different: the weekly one serves an early-warning purpose
// over a longer horizon.
const (
	DefaultSessionLowEngagementThreshold = 0.40
	DefaultWeeklyAtRiskThreshold         = 0.50
)

// Config holds all runtime configuration, read from the environment.
type Config struct {
	MongoURI     string
	MongoDB      string
	RedisAddr    string
	HTTPPort     string
	JWTSecret    string
	AIServiceURL string
	AITimeout    time.Duration

	// Join codes are best-effort unique: this many generation attempts
	// against the active-code index before the last candidate is accepted.
	JoinCodeAttempts int

	MaxFrameBytes int64

	SessionLowEngagementThreshold float64
	WeeklyAtRiskThreshold         float64
}

// Load reads configuration from the environment with sane dev defaults.
func Load() *Config {
	return &Config{
		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:      getEnv("MONGO_DB", "engageai"),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		HTTPPort:     getEnv("PORT", "8080"),
		JWTSecret:    getEnv("JWT_SECRET", "super-secret-key-change-in-production"),
		AIServiceURL: getEnv("AI_SERVICE_URL", "http://localhost:8000"),
		AITimeout:    time.Duration(getEnvInt("AI_TIMEOUT_MS", 8000)) * time.Millisecond,

		JoinCodeAttempts: getEnvInt("JOIN_CODE_ATTEMPTS", 10),

		MaxFrameBytes: int64(getEnvInt("MAX_FRAME_BYTES", 5*1024*1024)),

		SessionLowEngagementThreshold: getEnvFloat("SESSION_LOW_ENGAGEMENT_THRESHOLD", DefaultSessionLowEngagementThreshold),
		WeeklyAtRiskThreshold:         getEnvFloat("WEEKLY_AT_RISK_THRESHOLD", DefaultWeeklyAtRiskThreshold),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
