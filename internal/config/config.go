// Package config centralises configuration parsing for the bridge.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"example.com/pelotonbridge/internal/peloton"
)

// Config captures runtime configuration values for the bridge.
type Config struct {
	HTTPAddress         string
	CORSAllowedOrigin   string
	PelotonAPIURL       string
	PelotonHTTPTimeout  time.Duration
	KafkaBrokers        []string // Empty disables the Kafka transport.
	InboundTopic        string
	OutboundTopic       string
	ConsumerGroupID     string
	OutboxBuffer        int
	OutboxFlushInterval time.Duration
	OutboxBatchSize     int
	EventBuffer         int
	PostgresURL         string // Empty disables the snapshot archive.
	InstancesFile       string
	JWTSecret           string
	JWTIssuer           string
	AuthDisabled        bool
	ShutdownTimeout     time.Duration
}

// Load reads environment variables into Config, applying sensible defaults for local dev.
func Load() Config {
	return Config{
		HTTPAddress:         getEnv("HTTP_ADDRESS", ":8080"),
		CORSAllowedOrigin:   getEnv("CORS_ALLOWED_ORIGIN", "http://localhost:8080"),
		PelotonAPIURL:       getEnv("PELOTON_API_URL", peloton.DefaultBaseURL),
		PelotonHTTPTimeout:  getDurationEnv("PELOTON_HTTP_TIMEOUT", 10*time.Second),
		KafkaBrokers:        splitAndTrim(getEnv("KAFKA_BROKERS", "")),
		InboundTopic:        getEnv("INBOUND_TOPIC", "peloton_commands"),
		OutboundTopic:       getEnv("OUTBOUND_TOPIC", "peloton_notifications"),
		ConsumerGroupID:     getEnv("CONSUMER_GROUP_ID", "peloton-bridge"),
		OutboxBuffer:        getIntEnv("OUTBOX_BUFFER", 256),
		OutboxFlushInterval: getDurationEnv("OUTBOX_FLUSH_INTERVAL", 500*time.Millisecond),
		OutboxBatchSize:     getIntEnv("OUTBOX_BATCH_SIZE", 25),
		EventBuffer:         getIntEnv("EVENT_BUFFER", 32),
		PostgresURL:         getEnv("POSTGRES_URL", ""),
		InstancesFile:       getEnv("INSTANCES_FILE", ""),
		JWTSecret:           getEnv("JWT_SECRET", "dev-secret-change-me"),
		JWTIssuer:           getEnv("JWT_ISSUER", "pelotonbridge.local"),
		AuthDisabled:        getBoolEnv("AUTH_DISABLED", false),
		ShutdownTimeout:     getDurationEnv("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
}

// KafkaEnabled reports whether brokers were configured.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
