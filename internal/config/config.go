// Package config reads the environment for both binaries.
package config

import (
	"os"
	"strconv"
	"time"
)

type Client struct {
	BaseURL     string
	Token       string
	Timeout     time.Duration
	FanoutLimit int
	LogLevel    string
	LogFormat   string
}

type Server struct {
	Port          string
	DBPath        string
	LogLevel      string
	AdminEmail    string
	AdminPassword string
	TokenTTL      time.Duration
}

func LoadClient() Client {
	return Client{
		BaseURL:     getEnv("EVENTDESK_BASE_URL", "http://localhost:8000"),
		Token:       getEnv("EVENTDESK_TOKEN", ""),
		Timeout:     getEnvAsDuration("EVENTDESK_TIMEOUT", "10s"),
		FanoutLimit: getEnvAsInt("EVENTDESK_FANOUT_LIMIT", 8),
		LogLevel:    getEnv("EVENTDESK_LOG_LEVEL", "warn"),
		LogFormat:   getEnv("EVENTDESK_LOG_FORMAT", "text"),
	}
}

func LoadServer() Server {
	return Server{
		Port:          getEnv("EVENTD_PORT", "8000"),
		DBPath:        getEnv("EVENTD_DB_PATH", "eventd.db"),
		LogLevel:      getEnv("EVENTD_LOG_LEVEL", "info"),
		AdminEmail:    getEnv("EVENTD_ADMIN_EMAIL", ""),
		AdminPassword: getEnv("EVENTD_ADMIN_PASSWORD", ""),
		TokenTTL:      getEnvAsDuration("EVENTD_TOKEN_TTL", "24h"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key, defaultValue string) time.Duration {
	if d, err := time.ParseDuration(getEnv(key, defaultValue)); err == nil {
		return d
	}
	d, _ := time.ParseDuration(defaultValue)
	return d
}
