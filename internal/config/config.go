package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/plchld/news-copilot/internal/pkg/logger"
)

type Config struct {
	Environment string

	HTTP        HTTPConfig
	Grok        GrokConfig
	Cache       CacheConfig
	Coordinator CoordinatorConfig
	Article     ArticleConfig
	Log         logger.Config
}

type HTTPConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type GrokConfig struct {
	APIKey        string
	BaseURL       string
	StandardModel string
	AdvancedModel string
	MaxTokens     int
	Temperature   float64
	Timeout       time.Duration
}

type CacheConfig struct {
	Backend       string // "memory" or "redis"
	RedisURL      string
	TTL           time.Duration
	SweepInterval time.Duration
	PoolSize      int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	DialTimeout   time.Duration
}

type CoordinatorConfig struct {
	RetryFailedAgents     bool
	MaxRetries            int
	RetryBackoffBase      time.Duration
	BatchTimeout          time.Duration
	QualityControl        bool
	MaxRefinementAttempts int
}

type ArticleConfig struct {
	Timeout         time.Duration
	MaxBodyRunes    int
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

func Load() (*Config, error) {
	// .env is optional; real deployments use process env
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		HTTP: HTTPConfig{
			Port:         getInt("PORT", 8080),
			ReadTimeout:  getDuration("HTTP_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDuration("HTTP_IDLE_TIMEOUT", 120*time.Second),
		},
		Grok: GrokConfig{
			APIKey:        os.Getenv("GROK_API_KEY"),
			BaseURL:       getEnv("GROK_BASE_URL", "https://api.x.ai/v1"),
			StandardModel: getEnv("GROK_STANDARD_MODEL", "grok-3-mini"),
			AdvancedModel: getEnv("GROK_ADVANCED_MODEL", "grok-4"),
			MaxTokens:     getInt("GROK_MAX_TOKENS", 4096),
			Temperature:   getFloat("GROK_TEMPERATURE", 0.3),
			Timeout:       getDuration("GROK_TIMEOUT", 60*time.Second),
		},
		Cache: CacheConfig{
			Backend:       getEnv("CACHE_BACKEND", "memory"),
			RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			TTL:           getDuration("SESSION_CACHE_TTL", 30*time.Minute),
			SweepInterval: getDuration("SESSION_CACHE_SWEEP_INTERVAL", 5*time.Minute),
			PoolSize:      getInt("REDIS_POOL_SIZE", 10),
			ReadTimeout:   getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:  getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			DialTimeout:   getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		},
		Coordinator: CoordinatorConfig{
			RetryFailedAgents:     getBool("RETRY_FAILED_AGENTS", true),
			MaxRetries:            getInt("MAX_RETRIES", 3),
			RetryBackoffBase:      getDuration("RETRY_BACKOFF_BASE", 2*time.Second),
			BatchTimeout:          getDuration("BATCH_TIMEOUT", 120*time.Second),
			QualityControl:        getBool("QUALITY_CONTROL", false),
			MaxRefinementAttempts: getInt("MAX_REFINEMENT_ATTEMPTS", 2),
		},
		Article: ArticleConfig{
			Timeout:         getDuration("ARTICLE_FETCH_TIMEOUT", 30*time.Second),
			MaxBodyRunes:    getInt("ARTICLE_MAX_BODY_RUNES", 40000),
			BreakerFailures: uint32(getInt("ARTICLE_BREAKER_FAILURES", 5)),
			BreakerTimeout:  getDuration("ARTICLE_BREAKER_TIMEOUT", 60*time.Second),
		},
		Log: logger.Config{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			Output:     getEnv("LOG_OUTPUT", "stdout"),
			FilePath:   getEnv("LOG_FILE_PATH", "logs/news-copilot.log"),
			MaxSizeMB:  getInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getInt("LOG_MAX_AGE_DAYS", 14),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Grok.APIKey == "" {
		return fmt.Errorf("GROK_API_KEY is required")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.HTTP.Port)
	}

	if c.Cache.Backend != "memory" && c.Cache.Backend != "redis" {
		return fmt.Errorf("invalid CACHE_BACKEND %q (expected memory or redis)", c.Cache.Backend)
	}

	if c.Coordinator.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1")
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("SESSION_CACHE_TTL must be positive")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}
