package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// GetEnv returns the environment variable value or a default.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetIntEnv returns an integer environment variable or a default.
// Unparseable values fall back to the default with a warning.
func GetIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("Ignoring invalid integer env value", "key", key, "value", value)
		return defaultValue
	}
	return intVal
}

// GetDurationEnv returns a duration environment variable or a default.
// Unparseable values fall back to the default with a warning.
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("Ignoring invalid duration env value", "key", key, "value", value)
		return defaultValue
	}
	return duration
}
