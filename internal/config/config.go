// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Cache backends
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the sqlite databases (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	Composite CompositeConfig
	Cache     CacheConfig

	CalendarFile    string // Optional YAML file with market definitions
	DefaultMarket   string
	DataRefreshCron string // Six-field cron schedule; "off" disables the scheduled refresh
}

// CompositeConfig holds the limits of the composite chart service
type CompositeConfig struct {
	MaxCharts         int
	DefaultWindowDays int
	ChartCacheTTL     time.Duration
	CalcCacheTTL      time.Duration
}

// CacheConfig selects and sizes the result caches
type CacheConfig struct {
	Backend  string // memory or redis
	Capacity int    // Entries per in-memory cache
	RedisURL string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir, err := filepath.Abs(getEnv("COMPOSITE_DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  dataDir,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnvAsInt("GO_PORT", 8001),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		Composite: CompositeConfig{
			MaxCharts:         getEnvAsInt("COMPOSITE_MAX_CHARTS", 20),
			DefaultWindowDays: getEnvAsInt("COMPOSITE_DEFAULT_WINDOW_DAYS", 365),
			ChartCacheTTL:     getEnvAsDuration("COMPOSITE_CHART_CACHE_TTL", 5*time.Minute),
			CalcCacheTTL:      getEnvAsDuration("COMPOSITE_CALC_CACHE_TTL", time.Hour),
		},
		Cache: CacheConfig{
			Backend:  strings.ToLower(getEnv("CACHE_BACKEND", CacheBackendMemory)),
			Capacity: getEnvAsInt("COMPOSITE_CACHE_CAPACITY", 512),
			RedisURL: getEnv("REDIS_URL", "localhost:6379"),
		},
		CalendarFile:    getEnv("CALENDAR_FILE", ""),
		DefaultMarket:   strings.ToUpper(getEnv("DEFAULT_MARKET", "GLOBAL")),
		DataRefreshCron: getEnv("DATA_REFRESH_CRON", "0 */15 * * * *"),
	}

	if strings.EqualFold(cfg.DataRefreshCron, "off") {
		cfg.DataRefreshCron = ""
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that limits are usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Composite.MaxCharts <= 0 {
		return fmt.Errorf("COMPOSITE_MAX_CHARTS must be positive, got %d", c.Composite.MaxCharts)
	}
	if c.Composite.DefaultWindowDays <= 0 {
		return fmt.Errorf("COMPOSITE_DEFAULT_WINDOW_DAYS must be positive, got %d", c.Composite.DefaultWindowDays)
	}
	if c.Composite.ChartCacheTTL <= 0 || c.Composite.CalcCacheTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("COMPOSITE_CACHE_CAPACITY must be positive, got %d", c.Cache.Capacity)
	}
	switch c.Cache.Backend {
	case CacheBackendMemory, CacheBackendRedis:
	default:
		return fmt.Errorf("unknown cache backend: %s (must be memory or redis)", c.Cache.Backend)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
