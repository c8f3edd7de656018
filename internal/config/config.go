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
	Server  ServerConfig
	Redis   RedisConfig
	Gateway GatewayConfig
	Cookie  CookieConfig
}

type ServerConfig struct {
	Port             string
	Env              string
	LogLevel         string
	AllowedOrigins   []string
	TrustedProxies   []string
	InternalAPIToken string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
}

type RedisConfig struct {
	URL            string
	Password       string
	DB             int
	PoolSize       int
	DialTimeout    time.Duration
	OpTimeout      time.Duration
	HealthInterval time.Duration
}

// Enabled reports whether a Redis backend is configured at all
func (c *RedisConfig) Enabled() bool {
	return c.URL != ""
}

type GatewayConfig struct {
	SessionTTL     time.Duration
	CSRFTokenTTL   time.Duration
	BlockDuration  time.Duration
	AuditRetention time.Duration
	Policies       Policies
}

type CookieConfig struct {
	Domain   string // Empty string = current host only
	Secure   bool   // HTTPS only
	SameSite string // "strict", "lax", or "none"
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	policies, err := loadPolicies()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:             getEnv("PORT", "8080"),
			Env:              env,
			LogLevel:         getEnv("LOG_LEVEL", "info"),
			AllowedOrigins:   parseAllowedOrigins(env),
			TrustedProxies:   getEnvAsList("TRUSTED_PROXIES"),
			InternalAPIToken: getEnv("INTERNAL_API_TOKEN", ""),
			ReadTimeout:      getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:     getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:      getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Redis: RedisConfig{
			URL:            getEnv("REDIS_URL", ""),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getEnvAsInt("REDIS_DB", 0),
			PoolSize:       getEnvAsInt("REDIS_POOL_SIZE", 20),
			DialTimeout:    getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			OpTimeout:      getEnvAsDuration("REDIS_OP_TIMEOUT", 500*time.Millisecond),
			HealthInterval: getEnvAsDuration("STORE_HEALTH_INTERVAL", 15*time.Second),
		},
		Gateway: GatewayConfig{
			SessionTTL:     getEnvAsDuration("SESSION_TTL", 24*time.Hour),
			CSRFTokenTTL:   getEnvAsDuration("CSRF_TOKEN_TTL", time.Hour),
			BlockDuration:  getEnvAsDuration("BLOCK_DURATION", 24*time.Hour),
			AuditRetention: getEnvAsDuration("AUDIT_RETENTION", 30*24*time.Hour),
			Policies:       policies,
		},
		Cookie: CookieConfig{
			Domain:   getEnv("COOKIE_DOMAIN", ""),
			Secure:   getEnvAsBool("COOKIE_SECURE", env == "production"),
			SameSite: getEnv("COOKIE_SAMESITE", "lax"),
		},
	}

	if env == "production" && !cfg.Redis.Enabled() {
		return nil, fmt.Errorf("REDIS_URL is required in production")
	}

	if err := validateInternalToken(cfg.Server.InternalAPIToken, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateInternalToken enforces minimum strength for the service-to-service
// token the authentication service presents when creating sessions
func validateInternalToken(token, env string) error {
	if token == "" {
		return fmt.Errorf("INTERNAL_API_TOKEN is required")
	}

	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32
	}

	if len(token) < minLength {
		return fmt.Errorf("INTERNAL_API_TOKEN must be at least %d characters in %s environment (got %d)",
			minLength, env, len(token))
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return []string{}
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return getEnvAsList("ALLOWED_ORIGINS")
	}

	if origins := getEnvAsList("ALLOWED_ORIGINS"); len(origins) > 0 {
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
