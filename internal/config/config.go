package config

import (
	"os"
	"strconv"
)

type Config struct {
	// Server
	Port string

	// Database
	DBDriver string // "sqlite" | "postgres"
	DBPath   string // SQLite path
	DBUrl    string // Postgres DSN

	// Auth
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
	TokenExpiryHours       int

	// Resolver cache
	RedisAddr     string // empty = cache disabled
	RedisPassword string

	// Reminder sweeper
	ReminderHours int // tasks due within this many hours get a reminder event

	// Logging
	LogLevel string
}

func Load() *Config {
	return &Config{
		Port:                   getEnv("PORT", "8080"),
		DBDriver:               getEnv("PLANORA_DB_DRIVER", "sqlite"),
		DBPath:                 getEnv("PLANORA_DB_PATH", "./data/planora.db"),
		DBUrl:                  getEnv("PLANORA_DATABASE_URL", ""),
		BootstrapAdminEmail:    getEnv("PLANORA_BOOTSTRAP_EMAIL", "admin@local"),
		BootstrapAdminPassword: getEnv("PLANORA_BOOTSTRAP_PASSWORD", ""),
		TokenExpiryHours:       getEnvInt("PLANORA_TOKEN_EXPIRY_HOURS", 720),
		RedisAddr:              getEnv("PLANORA_REDIS_ADDR", ""),
		RedisPassword:          getEnv("PLANORA_REDIS_PASSWORD", ""),
		ReminderHours:          getEnvInt("PLANORA_REMINDER_HOURS", 24),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
