package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type config struct {
	Port          string
	DatabasePath  string
	BaseDomain    string
	AuthSecret    string
	RedisAddr     string
	RedisDB       int
	CacheTTL      time.Duration
	SweepInterval time.Duration
	LogLevel      slog.Level
}

func loadConfig() (config, error) {
	cfg := config{
		Port:         envOrDefault("PORT", "8080"),
		DatabasePath: envOrDefault("DATABASE_PATH", "pluginiq.db"),
		BaseDomain:   envOrDefault("BASE_DOMAIN", "localhost"),
		AuthSecret:   os.Getenv("AUTH_SECRET"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
	}

	var err error
	if cfg.RedisDB, err = strconv.Atoi(envOrDefault("REDIS_DB", "0")); err != nil {
		return config{}, fmt.Errorf("REDIS_DB: %w", err)
	}
	if cfg.CacheTTL, err = time.ParseDuration(envOrDefault("TENANT_CACHE_TTL", "5m")); err != nil {
		return config{}, fmt.Errorf("TENANT_CACHE_TTL: %w", err)
	}
	if cfg.SweepInterval, err = time.ParseDuration(envOrDefault("LICENSE_SWEEP_INTERVAL", "1h")); err != nil {
		return config{}, fmt.Errorf("LICENSE_SWEEP_INTERVAL: %w", err)
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(envOrDefault("LOG_LEVEL", "info"))); err != nil {
		return config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if cfg.AuthSecret == "" {
		return config{}, fmt.Errorf("AUTH_SECRET is required")
	}
	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
