package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/joho/godotenv"
)

// TailConfig holds configuration for the eventtail client.
type TailConfig struct {
	CompanionAddr string
	Topics        []string
	RecordDir     string
	RecordName    string
	RecordMaxMB   int
	LogLevel      string
	LogFile       string
}

// LoadTail reads eventtail configuration from environment variables and an
// optional .env file.
func LoadTail() (*TailConfig, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &TailConfig{
		CompanionAddr: getEnvOrDefault("EVENTTAIL_COMPANION_ADDR", getEnvOrDefault("COMPANION_BIND_ADDR", "127.0.0.1:8190")),
		Topics:        getEnvListOrDefault("EVENTTAIL_TOPICS", nil),
		RecordDir:     getEnvOrDefault("EVENTTAIL_RECORD_DIR", ""),
		RecordName:    getEnvOrDefault("EVENTTAIL_RECORD_NAME", ""),
		RecordMaxMB:   getEnvIntOrDefault("EVENTTAIL_RECORD_MAX_MB", 25),
		LogLevel:      strings.ToLower(getEnvOrDefault("EVENTTAIL_LOG_LEVEL", "info")),
		LogFile:       getEnvOrDefault("EVENTTAIL_LOG_FILE", "logs/eventtail.log"),
	}
	if strings.TrimSpace(cfg.CompanionAddr) == "" {
		return nil, fmt.Errorf("config: EVENTTAIL_COMPANION_ADDR must not be empty")
	}
	return cfg, nil
}

// StreamURL returns the companion's WebSocket event endpoint.
func (c *TailConfig) StreamURL() string {
	u := url.URL{Scheme: "ws", Host: c.CompanionAddr, Path: "/api/v1/events/ws"}
	if len(c.Topics) > 0 {
		u.RawQuery = url.Values{"topics": {strings.Join(c.Topics, ",")}}.Encode()
	}
	return u.String()
}
