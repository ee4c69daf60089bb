package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config contains all runtime settings for the chat-history service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	DatabaseURL string

	AgentMode    string
	AgentHTTPURL string
	AgentTimeout time.Duration

	StoreTimeout time.Duration

	CacheMaxUsers     int
	CacheTurnsPerUser int
	HydrateWindow     int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:          envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:  envOrDefault("APP_METRICS_NAMESPACE", "membot"),
		DatabaseURL:       trimSpace(os.Getenv("DATABASE_URL")),
		AgentMode:         envOrDefault("AGENT_MODE", "auto"),
		AgentHTTPURL:      trimSpace(os.Getenv("AGENT_HTTP_URL")),
		AgentTimeout:      60 * time.Second,
		StoreTimeout:      5 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		CacheMaxUsers:     128,
		CacheTurnsPerUser: 20,
		HydrateWindow:     50,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AgentTimeout, err = durationFromEnv("AGENT_TIMEOUT", cfg.AgentTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.StoreTimeout, err = durationFromEnv("HISTORY_STORE_TIMEOUT", cfg.StoreTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.CacheMaxUsers, err = intFromEnv("CACHE_MAX_USERS", cfg.CacheMaxUsers)
	if err != nil {
		return Config{}, err
	}
	cfg.CacheTurnsPerUser, err = intFromEnv("CACHE_TURNS_PER_USER", cfg.CacheTurnsPerUser)
	if err != nil {
		return Config{}, err
	}
	cfg.HydrateWindow, err = intFromEnv("HISTORY_HYDRATE_WINDOW", cfg.HydrateWindow)
	if err != nil {
		return Config{}, err
	}

	if cfg.CacheMaxUsers <= 0 {
		return Config{}, fmt.Errorf("CACHE_MAX_USERS must be positive")
	}
	if cfg.CacheTurnsPerUser <= 0 {
		return Config{}, fmt.Errorf("CACHE_TURNS_PER_USER must be positive")
	}
	if cfg.HydrateWindow < cfg.CacheTurnsPerUser {
		return Config{}, fmt.Errorf("HISTORY_HYDRATE_WINDOW must be at least CACHE_TURNS_PER_USER")
	}
	if cfg.StoreTimeout < time.Second {
		return Config{}, fmt.Errorf("HISTORY_STORE_TIMEOUT must be at least 1s")
	}
	if cfg.AgentTimeout < time.Second {
		return Config{}, fmt.Errorf("AGENT_TIMEOUT must be at least 1s")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := trimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
