package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName          string
	AppVersion       string
	Environment      string
	HTTPAddr         string
	AuthCookieSecure bool
	AuthCookieName   string
	SnowflakeNode    int64

	Telemetry TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	PermissionCache PermissionCacheConfig
	LoginRateLimit  LoginRateLimitConfig

	SubscriptionSweepSchedule string

	Bootstrap BootstrapConfig
}

// PermissionCacheConfig selects where resolved permission sets are kept.
type PermissionCacheConfig struct {
	Backend       string
	Size          int
	MaxAge        time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// LoginRateLimitConfig throttles login attempts per client and email.
// The redis backend shares the permission cache connection settings.
type LoginRateLimitConfig struct {
	Enabled   bool
	Backend   string
	PerMinute int
	Burst     int
}

// TelemetryConfig covers logging and OpenTelemetry export. Telemetry stays
// off unless an OTLP endpoint is configured.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OTLPEnabled   bool
	OTLPEndpoint  string
	OTLPProtocol  string
	SamplingRatio float64
}

// BootstrapConfig seeds the first platform owner on an empty install.
type BootstrapConfig struct {
	OwnerEmail    string
	OwnerPassword string
}

const (
	PermissionCacheMemory = "memory"
	PermissionCacheRedis  = "redis"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	authCookieSecure := environment == "production"
	if !authCookieSecure {
		authCookieSecure = getenvBool("AUTH_COOKIE_SECURE", false)
	}

	otlpEndpoint := strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", ""))

	return Config{
		AppName:          getenv("APP_SERVICE", "backoffice"),
		AppVersion:       getenv("APP_VERSION", "0.1.0"),
		Environment:      environment,
		HTTPAddr:         getenv("HTTP_ADDR", ":8080"),
		AuthCookieSecure: authCookieSecure,
		AuthCookieName:   strings.TrimSpace(getenv("AUTH_COOKIE_NAME", "bo_session")),
		SnowflakeNode:    getenvInt64("SNOWFLAKE_NODE", 1),

		DBType:            strings.ToLower(getenv("DATABASE_TYPE", "postgres")),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "backoffice"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),

		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(getenv("LOG_LEVEL", "info")),
			LogFormat:     strings.ToLower(getenv("LOG_FORMAT", "json")),
			OTLPEnabled:   getenvBool("OTEL_ENABLED", otlpEndpoint != ""),
			OTLPEndpoint:  otlpEndpoint,
			OTLPProtocol:  strings.ToLower(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		PermissionCache: PermissionCacheConfig{
			Backend:       normalizeCacheBackend(getenv("PERMISSION_CACHE", PermissionCacheMemory)),
			Size:          int(getenvInt64("PERMISSION_CACHE_SIZE", 4096)),
			MaxAge:        getenvSeconds("PERMISSION_CACHE_MAX_AGE_SECONDS", 300),
			RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "localhost:6379")),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       int(getenvInt64("REDIS_DB", 0)),
		},

		LoginRateLimit: LoginRateLimitConfig{
			Enabled:   getenvBool("LOGIN_RATE_LIMIT_ENABLED", true),
			Backend:   normalizeCacheBackend(getenv("LOGIN_RATE_LIMIT_BACKEND", PermissionCacheMemory)),
			PerMinute: int(getenvInt64("LOGIN_RATE_LIMIT_PER_MINUTE", 10)),
			Burst:     int(getenvInt64("LOGIN_RATE_LIMIT_BURST", 5)),
		},

		SubscriptionSweepSchedule: strings.TrimSpace(getenv("SUBSCRIPTION_SWEEP_SCHEDULE", "@every 1m")),

		Bootstrap: BootstrapConfig{
			OwnerEmail:    strings.TrimSpace(getenv("BOOTSTRAP_OWNER_EMAIL", "owner@backoffice.local")),
			OwnerPassword: getenv("BOOTSTRAP_OWNER_PASSWORD", "change-me-now"),
		},
	}
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPlatformConfigHolder),
)

func normalizeCacheBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case PermissionCacheRedis:
		return PermissionCacheRedis
	default:
		return PermissionCacheMemory
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

// getenvSeconds falls back to def for values below one second.
func getenvSeconds(key string, def int64) time.Duration {
	seconds := getenvInt64(key, def)
	if seconds < 1 {
		seconds = def
	}
	return time.Duration(seconds) * time.Second
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
