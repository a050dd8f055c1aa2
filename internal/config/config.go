package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the demo server settings. It is read from the environment
// once at startup and treated as immutable.
type Config struct {
	// Server
	Addr     string
	LogLevel string

	// Redis. An empty RedisAddr runs against an embedded miniredis.
	RedisAddr   string
	RedisPrefix string
	StoreTTL    time.Duration
	CacheTTL    time.Duration

	// Tokens
	JWTSecret string
	JWTIssuer string
	TokenTTL  time.Duration

	// Login throttling
	LoginMaxAttempts int
	LoginCooldown    time.Duration

	// Cookie
	CookieSecure bool

	// Telemetry
	OTLPEndpoint string
	AuditLog     bool
}

// LoadDotEnv copies variables from the dotenv file at path into the process
// environment. A missing file is not an error, and variables that are already
// set keep their values.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads Config from the environment. It fails when a required
// variable is unset.
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}

	cfg.Addr = getEnvString("PORTAL_ADDR", ":8080")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.RedisAddr = getEnvString("REDIS_ADDR", "")
	cfg.RedisPrefix = getEnvString("REDIS_PREFIX", "pg")
	cfg.StoreTTL = getEnvDuration("STORE_TTL", 30*time.Minute)
	cfg.CacheTTL = getEnvDuration("CACHE_TTL", 7*24*time.Hour)
	cfg.JWTIssuer = getEnvString("JWT_ISSUER", "portalguard")
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", time.Hour)
	cfg.LoginMaxAttempts = getEnvInt("LOGIN_MAX_ATTEMPTS", 5)
	cfg.LoginCooldown = getEnvDuration("LOGIN_COOLDOWN", 15*time.Minute)
	cfg.CookieSecure = getEnvBool("COOKIE_SECURE", false)
	cfg.OTLPEndpoint = getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg.AuditLog = getEnvBool("AUDIT_LOG", true)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
