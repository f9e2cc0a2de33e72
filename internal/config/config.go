package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the companion process.
type Config struct {
	// Local API
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	// Remote cleaning service
	APIOrigin  string
	APIBaseURL string
	APITimeout time.Duration

	// Durable storage
	StoragePath   string
	WatchInterval time.Duration

	// Downloads
	DownloadDir string

	// Logging
	LogLevel string
	LogFile  string

	// Preferences
	PrefsProfile        string
	PrefersColorScheme  string
	CDPAddress          string
	CDPPort             int
	CDPThemeRoot        bool
	CDPTargetID         string
	CDPTabURLFilter     string
	ThemeRootPollPeriod time.Duration
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		BindAddr:            getEnvOrDefault("COMPANION_BIND_ADDR", "127.0.0.1:8190"),
		PortCandidates:      getEnvListOrDefault("COMPANION_PORT_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192"}),
		PortAutoFallback:    getEnvBoolOrDefault("COMPANION_PORT_AUTO_FALLBACK", true),
		APIOrigin:           strings.TrimRight(getEnvOrDefault("CLEAN_API_ORIGIN", "http://127.0.0.1:8000"), "/"),
		APIBaseURL:          strings.TrimRight(getEnvOrDefault("CLEAN_API_BASE_URL", ""), "/"),
		APITimeout:          time.Duration(getEnvIntOrDefault("CLEAN_API_TIMEOUT_MS", 120000)) * time.Millisecond,
		StoragePath:         getEnvOrDefault("COMPANION_STORAGE_PATH", "./data/companion.db"),
		WatchInterval:       time.Duration(getEnvIntOrDefault("COMPANION_WATCH_INTERVAL_MS", 250)) * time.Millisecond,
		DownloadDir:         getEnvOrDefault("COMPANION_DOWNLOAD_DIR", "./downloads"),
		LogLevel:            strings.ToLower(getEnvOrDefault("COMPANION_LOG_LEVEL", "info")),
		LogFile:             getEnvOrDefault("COMPANION_LOG_FILE", "logs/companion.log"),
		PrefsProfile:        getEnvOrDefault("COMPANION_PREFS_PROFILE", "./config/prefs.yaml"),
		PrefersColorScheme:  strings.ToLower(getEnvOrDefault("PREFERS_COLOR_SCHEME", "")),
		CDPAddress:          getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:             getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9220),
		CDPThemeRoot:        getEnvBoolOrDefault("COMPANION_CDP_THEME_ROOT", false),
		CDPTargetID:         getEnvOrDefault("COMPANION_CDP_TARGET_ID", ""),
		CDPTabURLFilter:     getEnvOrDefault("COMPANION_CDP_TAB_FILTER", ""),
		ThemeRootPollPeriod: time.Duration(getEnvIntOrDefault("COMPANION_THEME_POLL_MS", 300)) * time.Millisecond,
	}

	if cfg.APIOrigin == "" {
		return nil, fmt.Errorf("config: CLEAN_API_ORIGIN must not be empty")
	}
	if cfg.APITimeout < time.Second {
		cfg.APITimeout = time.Second
	}
	if cfg.WatchInterval < 50*time.Millisecond {
		cfg.WatchInterval = 50 * time.Millisecond
	}
	return cfg, nil
}

// CDPURL returns the CDP HTTP endpoint used by the browser theme root.
func (c *Config) CDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
