package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	AppEnv    string
	Port      string
	LogLevel  string
	LogFormat string
	RedisURL  string

	// WebSocket connection limits
	MaxConnections int64
	MaxPerIP       int
	ConnRate       float64
	ConnBurst      int

	// Simulate emits a demo tracking sequence at startup
	Simulate bool
}

func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:    getEnv("APP_ENV", "development"),
		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		RedisURL:  getEnv("REDIS_URL", ""),
	}

	var err error
	if cfg.MaxConnections, err = getEnvInt64("WS_MAX_CONNECTIONS", 1000); err != nil {
		return nil, err
	}
	if cfg.MaxPerIP, err = getEnvInt("WS_MAX_PER_IP", 20); err != nil {
		return nil, err
	}
	if cfg.ConnRate, err = getEnvFloat("WS_CONN_RATE", 10); err != nil {
		return nil, err
	}
	if cfg.ConnBurst, err = getEnvInt("WS_CONN_BURST", 10); err != nil {
		return nil, err
	}
	cfg.Simulate = getEnv("SIMULATE", "") == "true"

	if cfg.MaxConnections <= 0 {
		return nil, fmt.Errorf("WS_MAX_CONNECTIONS must be positive")
	}
	if cfg.MaxPerIP <= 0 {
		return nil, fmt.Errorf("WS_MAX_PER_IP must be positive")
	}
	if cfg.ConnRate <= 0 {
		return nil, fmt.Errorf("WS_CONN_RATE must be positive")
	}
	if cfg.ConnBurst <= 0 {
		return nil, fmt.Errorf("WS_CONN_BURST must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}
