package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends for tab session areas.
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageRedis  = "redis"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	GraphQL   GraphQLConfig
	Session   SessionConfig
	Refresh   RefreshConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	LogLevel  string
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Addr is host:port for http.Server.
func (s ServerConfig) Addr() string { return net.JoinHostPort(s.Host, s.Port) }

type GraphQLConfig struct {
	URL        string
	Timeout    time.Duration // 0 leaves the transport default
	AuthPrefix string
}

type SessionConfig struct {
	Storage     string
	File        string // primebankctl session file
	Dir         string // per-tab files of the front server
	TTL         time.Duration
	IdleTimeout time.Duration
}

type RefreshConfig struct {
	Lead     time.Duration
	Fallback time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr is host:port for the redis client.
func (r RedisConfig) Addr() string { return net.JoinHostPort(r.Host, r.Port) }

type RateLimitConfig struct {
	Enabled  bool
	RPS      float64
	Burst    int
	UseRedis bool
	Window   time.Duration
}

// LoadConfig loads configuration from environment variables and an optional .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "3000")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("GRAPHQL_URL", "http://localhost:8000/graphql")
	viper.SetDefault("GRAPHQL_TIMEOUT", 0)
	viper.SetDefault("GRAPHQL_AUTH_PREFIX", "JWT")
	viper.SetDefault("SESSION_STORAGE", StorageMemory)
	viper.SetDefault("SESSION_FILE", "")
	viper.SetDefault("SESSION_DIR", "data/tabs")
	viper.SetDefault("SESSION_TTL", 720)
	viper.SetDefault("SESSION_IDLE_TIMEOUT", 60)
	viper.SetDefault("REFRESH_LEAD_SECONDS", 300)
	viper.SetDefault("REFRESH_FALLBACK_SECONDS", 600)
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("RATE_LIMIT_ENABLED", true)
	viper.SetDefault("RATE_LIMIT_RPS", 0.5)
	viper.SetDefault("RATE_LIMIT_BURST", 5)
	viper.SetDefault("RATE_LIMIT_USE_REDIS", false)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	viper.SetDefault("LOG_LEVEL", "info")

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		GraphQL: GraphQLConfig{
			URL:        viper.GetString("GRAPHQL_URL"),
			Timeout:    time.Duration(viper.GetInt("GRAPHQL_TIMEOUT")) * time.Second,
			AuthPrefix: viper.GetString("GRAPHQL_AUTH_PREFIX"),
		},
		Session: SessionConfig{
			Storage:     strings.ToLower(strings.TrimSpace(viper.GetString("SESSION_STORAGE"))),
			File:        viper.GetString("SESSION_FILE"),
			Dir:         viper.GetString("SESSION_DIR"),
			TTL:         time.Duration(viper.GetInt("SESSION_TTL")) * time.Minute,
			IdleTimeout: time.Duration(viper.GetInt("SESSION_IDLE_TIMEOUT")) * time.Minute,
		},
		Refresh: RefreshConfig{
			Lead:     time.Duration(viper.GetInt("REFRESH_LEAD_SECONDS")) * time.Second,
			Fallback: time.Duration(viper.GetInt("REFRESH_FALLBACK_SECONDS")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		RateLimit: RateLimitConfig{
			Enabled:  viper.GetBool("RATE_LIMIT_ENABLED"),
			RPS:      viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:    viper.GetInt("RATE_LIMIT_BURST"),
			UseRedis: viper.GetBool("RATE_LIMIT_USE_REDIS"),
			Window:   time.Duration(viper.GetInt("RATE_LIMIT_WINDOW_SECONDS")) * time.Second,
		},
		LogLevel: viper.GetString("LOG_LEVEL"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Session.Storage {
	case StorageMemory, StorageFile, StorageRedis:
	default:
		return fmt.Errorf("SESSION_STORAGE must be one of memory, file, redis; got %q", c.Session.Storage)
	}
	if c.GraphQL.URL == "" {
		return fmt.Errorf("GRAPHQL_URL is required")
	}
	if c.Refresh.Lead <= 0 || c.Refresh.Fallback <= 0 {
		return fmt.Errorf("REFRESH_LEAD_SECONDS and REFRESH_FALLBACK_SECONDS must be positive")
	}
	return nil
}

// NeedsRedis reports whether any configured component talks to Redis.
func (c *Config) NeedsRedis() bool {
	return c.Session.Storage == StorageRedis || (c.RateLimit.Enabled && c.RateLimit.UseRedis)
}
