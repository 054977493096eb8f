package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends accepted by STORE_BACKEND
const (
	StoreBackendMemory   = "memory"
	StoreBackendRedis    = "redis"
	StoreBackendDatabase = "database"
)

// MinSecretLength is the minimum signing secret length in bytes (256 bits)
const MinSecretLength = 32

type Config struct {
	AppEnv         string
	LogLevel       slog.Level
	ApiServicePort string
	ApiGrpcPort    string

	DatabaseDriver     string // postgres or sqlite
	SQLitePath         string
	PostgreSQLHost     string
	PostgreSQLPort     int64
	PostgreSQLUser     string
	PostgreSQLPassword string
	PostgreSQLDatabase string
	SeedUsers          bool

	JWTSecret                string
	JWTIssuer                string
	JWTAudience              string
	AccessTokenExpiryMinutes int64
	RefreshTokenExpiryDays   int64
	GracePeriodSeconds       int64

	StoreBackend       string
	StoreSweepInterval int64 // seconds
	LockWaitTimeout    int64 // milliseconds
	LockTTL            int64 // milliseconds

	RedisHost     string
	RedisPort     int64
	RedisPassword string
	RedisDB       int64

	LoginMaxAttempts   int64
	LoginWindowSeconds int64

	CORSAllowedOrigins []string
}

func LoadConfig() *Config {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	appEnv := getEnv("APP_ENV", "development")
	production := strings.EqualFold(appEnv, "production")

	return &Config{
		AppEnv:         appEnv,                             // Default development
		LogLevel:       getLogLevel(),                      // Default INFO
		ApiServicePort: getEnv("API_SERVICE_PORT", "8080"), // Default 8080
		ApiGrpcPort:    getEnv("API_GRPC_PORT", "50052"),   // Default 50052

		DatabaseDriver:     getEnv("DATABASE_DRIVER", "sqlite"),                // Default sqlite
		SQLitePath:         getEnv("SQLITE_PATH", "authgate.db"),               // Default ./authgate.db
		PostgreSQLHost:     getEnv("POSTGRESQL_HOST", "db"),                    // Default db
		PostgreSQLPort:     getEnvAsInt64("POSTGRESQL_PORT", 5432),             // Default 5432
		PostgreSQLUser:     getEnv("POSTGRESQL_USER", "authgate_user"),         // Default user
		PostgreSQLPassword: getEnv("POSTGRESQL_PASSWORD", "authgate_password"), // Default password
		PostgreSQLDatabase: getEnv("POSTGRESQL_DATABASE", "authgate_db"),       // Default database name
		SeedUsers:          getEnvAsBool("SEED_USERS", !production),            // Default off in production

		JWTSecret:                getEnv("JWT_SECRET", ""),                         // No default, see Validate
		JWTIssuer:                getEnv("JWT_ISSUER", "authgate"),                 // Default authgate
		JWTAudience:              getEnv("JWT_AUDIENCE", "authgate-clients"),       // Default authgate-clients
		AccessTokenExpiryMinutes: getEnvAsInt64("ACCESS_TOKEN_EXPIRY_MINUTES", 15), // Default 15 minutes
		RefreshTokenExpiryDays:   getEnvAsInt64("REFRESH_TOKEN_EXPIRY_DAYS", 14),   // Default 14 days
		GracePeriodSeconds:       getEnvAsInt64("GRACE_PERIOD_SECONDS", 30),        // Default 30 seconds

		StoreBackend:       strings.ToLower(getEnv("STORE_BACKEND", StoreBackendMemory)), // Default memory
		StoreSweepInterval: getEnvAsInt64("STORE_SWEEP_INTERVAL", 60),                    // Default 1 minute
		LockWaitTimeout:    getEnvAsInt64("LOCK_WAIT_TIMEOUT_MS", 2000),                  // Default 2 seconds
		LockTTL:            getEnvAsInt64("LOCK_TTL_MS", 5000),                           // Default 5 seconds

		RedisHost:     getEnv("REDIS_HOST", "redis"),      // Default redis
		RedisPort:     getEnvAsInt64("REDIS_PORT", 6379),  // Default 6379
		RedisPassword: getEnv("REDIS_PASSWORD", ""),       // Default empty
		RedisDB:       getEnvAsInt64("REDIS_DATABASE", 0), // Default 0

		LoginMaxAttempts:   getEnvAsInt64("LOGIN_MAX_ATTEMPTS", 5),     // Default 5 failures
		LoginWindowSeconds: getEnvAsInt64("LOGIN_WINDOW_SECONDS", 900), // Default 15 minutes

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}), // Default Vite dev server
	}
}

// IsProduction reports whether APP_ENV is production
func (c *Config) IsProduction() bool {
	return strings.ToLower(c.AppEnv) == "production"
}

func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenExpiryMinutes) * time.Minute
}

func (c *Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenExpiryDays) * 24 * time.Hour
}

func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.StoreSweepInterval) * time.Second
}

func (c *Config) LockWait() time.Duration {
	return time.Duration(c.LockWaitTimeout) * time.Millisecond
}

func (c *Config) LockLease() time.Duration {
	return time.Duration(c.LockTTL) * time.Millisecond
}

func (c *Config) LoginWindow() time.Duration {
	return time.Duration(c.LoginWindowSeconds) * time.Second
}

// Validate rejects settings the token engine cannot run safely with.
func (c *Config) Validate() error {
	var errs []error

	if len(c.JWTSecret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes, got %d", MinSecretLength, len(c.JWTSecret)))
	}
	if c.AccessTokenExpiryMinutes <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_EXPIRY_MINUTES must be positive"))
	}
	if c.RefreshTokenExpiryDays <= 0 {
		errs = append(errs, errors.New("REFRESH_TOKEN_EXPIRY_DAYS must be positive"))
	}
	if c.GracePeriodSeconds < 0 {
		errs = append(errs, errors.New("GRACE_PERIOD_SECONDS must not be negative"))
	}
	if c.GracePeriod() >= c.AccessTokenTTL() && c.AccessTokenExpiryMinutes > 0 {
		errs = append(errs, errors.New("GRACE_PERIOD_SECONDS must be shorter than the access token lifetime"))
	}

	if c.StoreSweepInterval <= 0 {
		errs = append(errs, errors.New("STORE_SWEEP_INTERVAL must be positive"))
	}
	if c.LockWaitTimeout <= 0 {
		errs = append(errs, errors.New("LOCK_WAIT_TIMEOUT_MS must be positive"))
	}
	if c.LockTTL <= 0 {
		errs = append(errs, errors.New("LOCK_TTL_MS must be positive"))
	}
	if c.SeedUsers && c.IsProduction() {
		errs = append(errs, errors.New("SEED_USERS must be off in production, the seed accounts have published passwords"))
	}

	switch c.StoreBackend {
	case StoreBackendMemory, StoreBackendRedis, StoreBackendDatabase:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}

	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown DATABASE_DRIVER %q", c.DatabaseDriver))
	}

	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
			return value
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return fallback
}

// getEnvAsList splits a comma separated variable, dropping empty items
func getEnvAsList(key string, fallback []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}

	var values []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			values = append(values, item)
		}
	}
	return values
}

func getLogLevel() slog.Level {
	levelStr := getEnv("LOG_LEVEL", "INFO")

	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
