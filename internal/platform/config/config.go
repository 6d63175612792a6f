package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures process-level configuration. Built once in main via FromEnv
// and passed down so packages never read the environment themselves.
type Config struct {
	Addr string

	PostgresDSN string

	Redis RedisConfig

	KafkaBrokers []string

	JWT JWTConfig

	OTP OTPConfig

	Shahkar ShahkarConfig

	// FilesRoot is where avatar and document files are stored.
	FilesRoot string

	// MaxDocumentMB bounds uploaded verification document size.
	MaxDocumentMB int

	// AssignPeriod is the background assigner polling interval.
	AssignPeriod time.Duration

	// SecureCookies toggles the Secure flag on auth cookies.
	SecureCookies bool

	// Login is the credential endpoint rate limit.
	Login RateLimitConfig
}

// RateLimitConfig caps attempts per client within a fixed window.
type RateLimitConfig struct {
	Attempts int
	Window   time.Duration
}

// RedisConfig holds connection settings for the shared Redis instance used as
// the OTP and token cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// JWTConfig holds signing material and token lifetimes.
type JWTConfig struct {
	SigningKey      string
	Issuer          string
	AccessLifetime  time.Duration
	RefreshLifetime time.Duration
}

// OTPConfig controls one-time verification codes.
type OTPConfig struct {
	Length int
	Expiry time.Duration
	// LogCodes enables logging generated codes, for environments without a
	// real mail/SMS pipeline.
	LogCodes bool
}

// ShahkarConfig configures the national identity matching client.
type ShahkarConfig struct {
	Mock         bool
	BaseURL      string
	Username     string
	Password     string
	PID          string
	ProviderCode string
	AuthCode     string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Addr:        envString("USERAPI_ADDR", ":8080"),
		PostgresDSN: envString("POSTGRES_DSN", "postgres://localhost:5432/userapi?sslmode=disable"),
		Redis: RedisConfig{
			URL:          envString("REDIS_URL", "redis://localhost:6379/0"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		KafkaBrokers: strings.Split(envString("KAFKA_URL", "localhost:9092"), ","),
		JWT: JWTConfig{
			SigningKey:      envString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:          envString("JWT_ISSUER", "userapi"),
			AccessLifetime:  envDuration("JWT_ACCESS_LIFETIME", 15*time.Minute),
			RefreshLifetime: envDuration("JWT_REFRESH_LIFETIME", 7*24*time.Hour),
		},
		OTP: OTPConfig{
			Length:   envInt("OTP_LENGTH", 5),
			Expiry:   envDuration("OTP_EXPIRY", 5*time.Minute),
			LogCodes: envBool("LOG_OTPS", false),
		},
		Shahkar: ShahkarConfig{
			Mock:         envBool("SHAHKAR_MOCK", true),
			BaseURL:      envString("SHAHKAR_BASE_URL", ""),
			Username:     envString("SHAHKAR_USERNAME", ""),
			Password:     envString("SHAHKAR_PASSWORD", ""),
			PID:          envString("SHAHKAR_PID", ""),
			ProviderCode: envString("SHAHKAR_PROVIDER_CODE", ""),
			AuthCode:     envString("SHAHKAR_AUTH_CODE", ""),
		},
		FilesRoot:     envString("FILES_ROOT", "files"),
		MaxDocumentMB: envInt("MAX_DOCUMENT_MB", 10),
		AssignPeriod:  envDuration("ASSIGN_PERIOD", 60*time.Second),
		SecureCookies: envBool("SECURED_COOKIE", false),
		Login: RateLimitConfig{
			Attempts: envInt("LOGIN_RATE_ATTEMPTS", 5),
			Window:   envDuration("LOGIN_RATE_WINDOW", 15*time.Minute),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "true" || v == "1"
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Bare integers are treated as seconds, matching older deployments.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
