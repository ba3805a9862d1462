package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment        string
	HTTPPort           string
	DatabaseURL        string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	ServiceName        string
	AdminAPIToken      string
	ServiceAPIToken    string
	InternalAPIPrefix  string
	SecretNamePrefix   string
	VaultRegion        string
	VaultEndpoint      string
	VaultAccessKey     string
	VaultSecretKey     string
	ProviderTimeout    time.Duration
	AuthStateTTL       time.Duration
	RefreshCron        string
	RefreshThreshold   time.Duration
	RateLimitRPM       int
	TelemetryEndpoint  string
	TelemetryInsecure  bool
	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	adminToken := strings.TrimSpace(os.Getenv("ADMIN_API_TOKEN"))
	if adminToken == "" {
		return Config{}, fmt.Errorf("ADMIN_API_TOKEN is required")
	}

	cfg := Config{
		Environment:        getEnv("APP_ENV", "development"),
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisAddr:          getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getInt("REDIS_DB", 0),
		ServiceName:        getEnv("SERVICE_NAME", "bifrost-api"),
		AdminAPIToken:      adminToken,
		ServiceAPIToken:    getEnv("SERVICE_API_TOKEN", adminToken),
		InternalAPIPrefix:  getEnv("INTERNAL_API_PREFIX", "/api/v1"),
		SecretNamePrefix:   getEnv("SECRET_NAME_PREFIX", "bifrost"),
		VaultRegion:        getEnv("VAULT_AWS_REGION", "us-east-1"),
		VaultEndpoint:      os.Getenv("VAULT_ENDPOINT_URL"),
		VaultAccessKey:     os.Getenv("VAULT_AWS_ACCESS_KEY_ID"),
		VaultSecretKey:     os.Getenv("VAULT_AWS_SECRET_ACCESS_KEY"),
		ProviderTimeout:    getDuration("PROVIDER_TIMEOUT", 10*time.Second),
		AuthStateTTL:       getDuration("AUTH_STATE_TTL", 10*time.Minute),
		RefreshCron:        getEnv("REFRESH_CRON", "*/30 * * * *"),
		RefreshThreshold:   getDuration("REFRESH_THRESHOLD", time.Hour),
		RateLimitRPM:       getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:  getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins: getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 10 * time.Second
	}
	if cfg.RefreshThreshold <= 0 {
		cfg.RefreshThreshold = time.Hour
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
