package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process configuration, loaded from the environment with an
// optional providers YAML file for transport tuning.
type Config struct {
	Port    string
	GinMode string

	// Logging
	LogLevel  string
	LogFormat string

	// Database. Empty selects the in-memory stores (dev mode).
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxIdleTime time.Duration
	DBConnMaxLifetime time.Duration

	// Firebase
	FirebaseProjectID string
	FirebaseCredJSON  string

	// NATS
	NatsURL           string
	NatsSubjectPrefix string

	// AWS SNS
	SNSRegion string

	// Engine
	SendTimeout   time.Duration
	SweepInterval time.Duration

	// Server
	ServerShutdownTimeout time.Duration

	// Providers holds per-transport tuning from the YAML file.
	Providers ProvidersConfig
}

// LoadConfig reads the environment (and .env when present) into a Config.
func LoadConfig() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", ""),

		DatabaseURL:       getEnvOrDefault("DATABASE_URL", ""),
		DBMaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		DBConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),

		FirebaseProjectID: getEnvOrDefault("FIREBASE_PROJECT_ID", ""),
		FirebaseCredJSON:  getEnvOrDefault("FIREBASE_CRED_JSON", ""),

		NatsURL:           getEnvOrDefault("NATS_URL", ""),
		NatsSubjectPrefix: getEnvOrDefault("NATS_SUBJECT_PREFIX", "push.device"),

		SNSRegion: getEnvOrDefault("SNS_REGION", ""),

		SendTimeout:   getEnvAsDuration("SEND_TIMEOUT", 20*time.Second),
		SweepInterval: getEnvAsDuration("SWEEP_INTERVAL", 60*time.Second),

		ServerShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
	}

	cfg.Providers = loadProvidersConfig(getEnvOrDefault("PROVIDERS_CONFIG", ""))

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Invalid integer for %s: %q, using default %d", key, raw, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Invalid duration for %s: %q, using default %s", key, raw, defaultValue)
		return defaultValue
	}
	return value
}
