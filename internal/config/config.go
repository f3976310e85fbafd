package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port       string
	Neo4jURI   string
	Neo4jUser  string
	Neo4jPass  string
	AIURL      string
	AIModel    string
	ReposPath  string
	WebhookURL string

	// Scan pipeline tuning.
	RequestsPerMinute int
	RequestsPerDay    int
	BatchSize         int
	BatchDelay        time.Duration
	MaxRetries        int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxFileBytes      int64
	ScanRetention     time.Duration
}

func Load() *Config {
	return &Config{
		Port:       getEnv("BACKEND_PORT", "3001"),
		Neo4jURI:   getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:  getEnv("NEO4J_USER", "neo4j"),
		Neo4jPass:  getEnv("NEO4J_PASSWORD", "repoguard_password"),
		AIURL:      getEnv("AI_URL", "http://localhost:8090"),
		AIModel:    getEnv("AI_MODEL", "gemini-1.5-flash"),
		ReposPath:  getEnv("REPOS_PATH", "./repos"),
		WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),

		RequestsPerMinute: getEnvInt("SCAN_RPM", 15),
		RequestsPerDay:    getEnvInt("SCAN_RPD", 1500),
		BatchSize:         getEnvInt("SCAN_BATCH_SIZE", 5),
		BatchDelay:        getEnvDuration("SCAN_BATCH_DELAY", 4*time.Second),
		MaxRetries:        getEnvInt("SCAN_MAX_RETRIES", 3),
		InitialBackoff:    getEnvDuration("SCAN_BACKOFF", 2*time.Second),
		BackoffMultiplier: getEnvFloat("SCAN_BACKOFF_MULT", 2.0),
		MaxFileBytes:      int64(getEnvInt("SCAN_MAX_FILE_BYTES", 100_000)),
		ScanRetention:     getEnvDuration("SCAN_RETENTION", time.Hour),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
