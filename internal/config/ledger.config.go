package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	HTTPAddr     string
	RedisAddr    string
	RedisPass    string
	KafkaBrokers []string
	JWTSecret    string

	// Locking / idempotency bounds
	LockTimeout   time.Duration
	ProcessingTTL time.Duration
	ResponseTTL   time.Duration
}

func Load() AppConfig {
	return AppConfig{
		HTTPAddr:     getEnv("HTTP_ADDR", ":8030"),
		RedisAddr:    getEnv("REDIS_ADDR", "redis:6379"),
		RedisPass:    getEnv("REDIS_PASS", ""),
		KafkaBrokers: getEnvSlice("KAFKA_BROKERS", nil),
		JWTSecret:    getEnv("JWT_SECRET", "dev-secret"),

		LockTimeout:   getEnvDuration("LOCK_TIMEOUT", 3*time.Second),
		ProcessingTTL: getEnvDuration("IDEMPOTENCY_PROCESSING_TTL", 10*time.Second),
		ResponseTTL:   getEnvDuration("IDEMPOTENCY_RESPONSE_TTL", 24*time.Hour),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
