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
	Environment          string
	HTTPPort             string
	DatabaseURL          string
	ServiceName          string
	Issuer               string
	Audience             string
	JWKSPath             string
	PrivateKeyPath       string
	DefaultKeyID         string
	AccessTokenTTL       time.Duration
	DefaultTenantName    string
	PasswordHashMode     string
	SeedDemoData         bool
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	TenantCacheTTL       time.Duration
	RateLimitRPM         int
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := fromEnv()

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	switch cfg.PasswordHashMode {
	case "argon2id", "sha256":
	default:
		return Config{}, fmt.Errorf("PASSWORD_HASH_MODE must be argon2id or sha256")
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = time.Hour
	}

	return cfg, nil
}

// Defaults reads configuration like Load but skips validation. Intended
// for tooling that has no use for a database connection.
func Defaults() Config {
	_ = godotenv.Load()
	cfg := fromEnv()
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = time.Hour
	}
	return cfg
}

func fromEnv() Config {
	return Config{
		Environment:          getEnv("APP_ENV", "development"),
		HTTPPort:             getEnv("HTTP_PORT", "8000"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		ServiceName:          getEnv("SERVICE_NAME", "aiddiag-api"),
		Issuer:               getEnv("JWT_ISSUER", "http://localhost:8000"),
		Audience:             getEnv("JWT_AUDIENCE", "aiddiag-api"),
		JWKSPath:             getEnv("JWT_PUBLIC_JWKS_PATH", "static/jwks.json"),
		PrivateKeyPath:       getEnv("JWT_PRIVATE_KEY_PATH", "static/private.pem"),
		DefaultKeyID:         getEnv("JWT_LOCAL_KID", "local-rs256"),
		AccessTokenTTL:       getDuration("ACCESS_TOKEN_TTL", time.Hour),
		DefaultTenantName:    getEnv("DEFAULT_TENANT_NAME", "demo"),
		PasswordHashMode:     getEnv("PASSWORD_HASH_MODE", "argon2id"),
		SeedDemoData:         getBool("SEED_DEMO_DATA", true),
		RedisAddr:            getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getInt("REDIS_DB", 0),
		TenantCacheTTL:       getDuration("TENANT_CACHE_TTL", 5*time.Minute),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}
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
