package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"market_call/internal/domain"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	LiveKit     LiveKitConfig
	Moderation  ModerationConfig
	Log         LogConfig
}

type ServerConfig struct {
	Port         int
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	// DSN пустой — логи пишутся в память.
	DSN             string
	MaxConnections  int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig covers the service-to-service tokens guarding the management
// API; they are verified here, minted by the marketplace backend. LiveKit
// participant tokens are signed separately with the API secret.
type JWTConfig struct {
	Secret string
	Issuer string
}

type LiveKitConfig struct {
	URL       string
	APIKey    string
	APISecret string
	// TokenTTL is the default validity of issued participant tokens.
	TokenTTL time.Duration
}

type ModerationConfig struct {
	Enabled         bool
	TextModeration  bool
	AudioModeration bool
	VideoModeration bool
	Providers       []string
	// Keywords feeds the built-in keyword provider.
	Keywords       []string
	SampleInterval time.Duration
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	// Загрузка .env файла (если существует)
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DATABASE_DSN", ""),
			MaxConnections:  getEnvAsInt("DATABASE_MAX_CONNECTIONS", 25),
			ConnMaxLifetime: getEnvAsDuration("DATABASE_CONN_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "change-me-in-production"),
			Issuer: getEnv("JWT_ISSUER", "market-call"),
		},
		LiveKit: LiveKitConfig{
			URL:       getEnv("LIVEKIT_URL", "ws://localhost:7880"),
			APIKey:    getEnv("LIVEKIT_API_KEY", "devkey"),
			APISecret: getEnv("LIVEKIT_API_SECRET", "secret"),
			TokenTTL:  getEnvAsDuration("LIVEKIT_TOKEN_TTL", 6*time.Hour),
		},
		Moderation: ModerationConfig{
			Enabled:         getEnvAsBool("MODERATION_ENABLED", true),
			TextModeration:  getEnvAsBool("MODERATION_TEXT", true),
			AudioModeration: getEnvAsBool("MODERATION_AUDIO", false),
			VideoModeration: getEnvAsBool("MODERATION_VIDEO", false),
			Providers:       getEnvAsSlice("MODERATION_PROVIDERS", nil),
			Keywords:        getEnvAsSlice("MODERATION_KEYWORDS", nil),
			SampleInterval:  getEnvAsDuration("MODERATION_SAMPLE_INTERVAL", 5*time.Second),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.LiveKit.APIKey == "" || c.LiveKit.APISecret == "" {
		return fmt.Errorf("LiveKit API key and secret must be set")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret must be set")
	}
	return nil
}

// DefaultModeration is the session-level moderation config applied to rooms
// created without an explicit one.
func (c *Config) DefaultModeration() *domain.ModerationConfig {
	return &domain.ModerationConfig{
		Enabled:         c.Moderation.Enabled,
		TextModeration:  c.Moderation.TextModeration,
		AudioModeration: c.Moderation.AudioModeration,
		VideoModeration: c.Moderation.VideoModeration,
		Providers:       c.Moderation.Providers,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
