package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config maps 1:1 to environment variables. A .env file in the working
// directory is read when present.
type Config struct {
	// Server
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"APP_ENV"` // development | production
	AllowedOrigin  string `mapstructure:"ALLOWED_ORIGIN"`
	WorkerPoolSize int    `mapstructure:"WORKER_POOL_SIZE"`

	// Storage
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// Auth
	AuthSecret            string `mapstructure:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `mapstructure:"ACCESS_TOKEN_TTL_MINUTES"`

	ReorderCacheTTLSeconds int `mapstructure:"REORDER_CACHE_TTL_SECONDS"`
}

var defaults = map[string]any{
	"PORT":                      "8080",
	"APP_ENV":                   "development",
	"ALLOWED_ORIGIN":            "http://127.0.0.1:3000",
	"WORKER_POOL_SIZE":          4,
	"DATABASE_URL":              "",
	"REDIS_ADDR":                "",
	"REDIS_PASSWORD":            "",
	"REDIS_DB":                  0,
	"AUTH_SECRET":               "",
	"ACCESS_TOKEN_TTL_MINUTES":  480,
	"REORDER_CACHE_TTL_SECONDS": 60,
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	// Unmarshal only sees keys viper knows about, so every key gets a
	// default, empty ones included.
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	if cfg.ReorderCacheTTLSeconds < 1 {
		cfg.ReorderCacheTTLSeconds = 60
	}
	if cfg.WorkerPoolSize < 1 {
		cfg.WorkerPoolSize = 1
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) ReorderCacheTTL() time.Duration {
	return time.Duration(c.ReorderCacheTTLSeconds) * time.Second
}
