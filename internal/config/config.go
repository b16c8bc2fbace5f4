package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// DefaultJWTSecret is accepted outside production only.
const DefaultJWTSecret = "change-me"

// ErrDefaultSecretInProduction is returned when production runs with DefaultJWTSecret.
var ErrDefaultSecretInProduction = errors.New("JWT_SECRET must be set in production")

// Config holds application level configuration loaded from environment variables.
type Config struct {
	AppEnv     string `validate:"required,oneof=development staging production test"`
	ServerPort string `validate:"required,numeric"`

	DBDriver    string `validate:"required,oneof=mysql postgres memory"`
	DatabaseDSN string `validate:"required_unless=DBDriver memory"`

	RedisAddr string
	RedisDB   int `validate:"gte=0,lte=15"`
	RedisPass string

	JWTSecret         string        `validate:"required"`
	SessionTTL        time.Duration `validate:"gt=0"`
	ResetTokenTTL     time.Duration `validate:"gt=0"`
	OperationTimeout  time.Duration `validate:"gt=0"`
	BcryptCost        int           `validate:"gte=4,lte=31"`
	SessionRevocation bool

	PublicBaseURL     string `validate:"required,url"`
	NATSURL           string
	NATSSubjectPrefix string `validate:"required"`

	LogLevel  string `validate:"required,oneof=debug info warn error"`
	LogFormat string `validate:"required,oneof=json console"`
	LogFile   string

	RateLimitRPS float64 `validate:"gte=0"`
	SwaggerHost  string
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load builds Config from environment with sensible defaults. A .env file in
// the working directory is read first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:     getEnv("APP_ENV", "development"),
		ServerPort: getEnv("SERVER_PORT", "8080"),

		DBDriver:    getEnv("DB_DRIVER", "mysql"),
		DatabaseDSN: getEnv("DATABASE_DSN", "user:password@tcp(localhost:3306)/app?charset=utf8mb4&parseTime=True&loc=UTC"),

		RedisAddr: os.Getenv("REDIS_ADDR"),
		RedisDB:   getEnvInt("REDIS_DB", 0),
		RedisPass: os.Getenv("REDIS_PASSWORD"),

		JWTSecret:         getEnv("JWT_SECRET", DefaultJWTSecret),
		SessionTTL:        getEnvDuration("SESSION_TTL", 24*time.Hour),
		ResetTokenTTL:     getEnvDuration("RESET_TOKEN_TTL", time.Hour),
		OperationTimeout:  getEnvDuration("OPERATION_TIMEOUT", 5*time.Second),
		BcryptCost:        getEnvInt("BCRYPT_COST", 10),
		SessionRevocation: getEnvBool("SESSION_REVOCATION", false),

		PublicBaseURL:     getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		NATSURL:           os.Getenv("NATS_URL"),
		NATSSubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "authsvc.mail"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
		LogFile:   os.Getenv("LOG_FILE"),

		RateLimitRPS: getEnvFloat("RATE_LIMIT_RPS", 5),
		SwaggerHost:  os.Getenv("SWAGGER_HOST"),
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.IsProduction() && cfg.JWTSecret == DefaultJWTSecret {
		return nil, ErrDefaultSecretInProduction
	}
	return cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}
