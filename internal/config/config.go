package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	OpenAI    OpenAIConfig
	Data      DataConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port        int
	CORSOrigins []string
}

type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	ChatModel  string
	EmbedModel string
}

// DataConfig locates the seed datasets and the user store. The file names
// are resolved relative to Dir.
type DataConfig struct {
	Dir         string
	ProductsCSV string
	OutletsCSV  string
	UsersFile   string
}

type AuthConfig struct {
	Secret   string
	TokenTTL time.Duration
}

// RateLimitConfig holds the two throttle tiers. Anonymous callers share one
// identity and get the stricter tier; any authenticated subject gets the
// permissive one.
type RateLimitConfig struct {
	AnonLimit  int
	AnonWindow time.Duration
	AuthLimit  int
	AuthWindow time.Duration
}

type CacheConfig struct {
	Backend  string // "memory" or "redis"
	Size     int
	TTL      time.Duration
	RedisURL string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"*"},
		},
		OpenAI: OpenAIConfig{
			BaseURL:    "https://api.openai.com/v1",
			ChatModel:  "gpt-3.5-turbo",
			EmbedModel: "text-embedding-3-small",
		},
		Data: DataConfig{
			Dir:         "data",
			ProductsCSV: "zus_products.csv",
			OutletsCSV:  "zus_outlets.csv",
			UsersFile:   "users.json",
		},
		Auth: AuthConfig{
			TokenTTL: time.Hour,
		},
		RateLimit: RateLimitConfig{
			AnonLimit:  3,
			AnonWindow: time.Minute,
			AuthLimit:  5,
			AuthWindow: time.Minute,
		},
		Cache: CacheConfig{
			Backend: "memory",
			Size:    512,
			TTL:     15 * time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from defaults, an optional .env file in the
// working directory, and ZUS_* environment variables. Real environment
// variables win over .env values (godotenv does not overwrite existing vars).
func Load() (Config, error) {
	// Missing .env is fine; deployments usually set env vars directly.
	_ = godotenv.Load()

	cfg := defaults()
	applyEnvOverrides(&cfg)

	if cfg.OpenAI.APIKey == "" {
		return Config{}, fmt.Errorf("missing required config: OpenAI API key (set ZUS_OPENAI_API_KEY or OPENAI_API_KEY)")
	}
	if cfg.Auth.Secret == "" {
		return Config{}, fmt.Errorf("missing required config: token signing secret (set ZUS_AUTH_SECRET)")
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	envInt("ZUS_PORT", &cfg.Server.Port)
	envInt("PORT", &cfg.Server.Port) // hosting platforms inject PORT
	if v := os.Getenv("ZUS_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitAndTrim(v)
	}

	envStr("ZUS_OPENAI_BASE_URL", &cfg.OpenAI.BaseURL)
	envStr("OPENAI_API_KEY", &cfg.OpenAI.APIKey)
	envStr("ZUS_OPENAI_API_KEY", &cfg.OpenAI.APIKey)
	envStr("ZUS_CHAT_MODEL", &cfg.OpenAI.ChatModel)
	envStr("ZUS_EMBED_MODEL", &cfg.OpenAI.EmbedModel)

	envStr("ZUS_DATA_DIR", &cfg.Data.Dir)
	envStr("ZUS_PRODUCTS_CSV", &cfg.Data.ProductsCSV)
	envStr("ZUS_OUTLETS_CSV", &cfg.Data.OutletsCSV)
	envStr("ZUS_USERS_FILE", &cfg.Data.UsersFile)

	envStr("ZUS_AUTH_SECRET", &cfg.Auth.Secret)
	envDuration("ZUS_TOKEN_TTL", &cfg.Auth.TokenTTL)

	envInt("ZUS_RATE_LIMIT_ANON", &cfg.RateLimit.AnonLimit)
	envDuration("ZUS_RATE_WINDOW_ANON", &cfg.RateLimit.AnonWindow)
	envInt("ZUS_RATE_LIMIT_AUTH", &cfg.RateLimit.AuthLimit)
	envDuration("ZUS_RATE_WINDOW_AUTH", &cfg.RateLimit.AuthWindow)

	envStr("ZUS_CACHE_BACKEND", &cfg.Cache.Backend)
	envInt("ZUS_CACHE_SIZE", &cfg.Cache.Size)
	envDuration("ZUS_CACHE_TTL", &cfg.Cache.TTL)
	envStr("REDIS_URL", &cfg.Cache.RedisURL)
	envStr("ZUS_REDIS_URL", &cfg.Cache.RedisURL)

	envStr("ZUS_LOG_LEVEL", &cfg.Log.Level)
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
