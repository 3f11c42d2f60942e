package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Database drivers understood by Load.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds runtime settings read from the environment.
type Config struct {
	AppEnv    string
	LogLevel  string
	LogFormat string

	HTTPListenAddr     string
	PublicBasePath     string
	CORSAllowedOrigins []string

	DatabaseDriver string
	DatabaseURL    string
	DatabaseSchema string
	SQLitePath     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	MetricsNamespace string

	AuthJWTSecret string

	FlutterwaveBaseURL    string
	FlutterwaveSecretKey  string
	FlutterwaveSecretHash string
	FlutterwaveTimeout    time.Duration

	FundingMinimum  decimal.Decimal
	WithdrawMinimum decimal.Decimal
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return load(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("HTTP_LISTEN_ADDR", ":8080")
	v.SetDefault("PUBLIC_BASE_PATH", "")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("DATABASE_DRIVER", DriverPostgres)
	v.SetDefault("DATABASE_SCHEMA", "public")
	v.SetDefault("SQLITE_PATH", "silink.db")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_TLS", false)
	v.SetDefault("METRICS_NAMESPACE", "silink")
	v.SetDefault("FLW_BASE_URL", "https://api.flutterwave.com")
	v.SetDefault("FLW_TIMEOUT", "15s")
	v.SetDefault("FUNDING_MINIMUM", "100.00")
	v.SetDefault("WITHDRAW_MINIMUM", "500.00")
	return v
}

func load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		AppEnv:                v.GetString("APP_ENV"),
		LogLevel:              v.GetString("LOG_LEVEL"),
		LogFormat:             v.GetString("LOG_FORMAT"),
		HTTPListenAddr:        v.GetString("HTTP_LISTEN_ADDR"),
		PublicBasePath:        v.GetString("PUBLIC_BASE_PATH"),
		CORSAllowedOrigins:    splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		DatabaseDriver:        strings.ToLower(strings.TrimSpace(v.GetString("DATABASE_DRIVER"))),
		DatabaseURL:           v.GetString("DATABASE_URL"),
		DatabaseSchema:        v.GetString("DATABASE_SCHEMA"),
		SQLitePath:            v.GetString("SQLITE_PATH"),
		RedisAddr:             v.GetString("REDIS_ADDR"),
		RedisPassword:         v.GetString("REDIS_PASSWORD"),
		RedisDB:               v.GetInt("REDIS_DB"),
		RedisTLS:              v.GetBool("REDIS_TLS"),
		MetricsNamespace:      v.GetString("METRICS_NAMESPACE"),
		AuthJWTSecret:         v.GetString("AUTH_JWT_SECRET"),
		FlutterwaveBaseURL:    v.GetString("FLW_BASE_URL"),
		FlutterwaveSecretKey:  v.GetString("FLW_SECRET_KEY"),
		FlutterwaveSecretHash: v.GetString("FLW_SECRET_HASH"),
		FlutterwaveTimeout:    v.GetDuration("FLW_TIMEOUT"),
	}

	var err error
	if cfg.FundingMinimum, err = decimal.NewFromString(v.GetString("FUNDING_MINIMUM")); err != nil {
		return nil, fmt.Errorf("parse FUNDING_MINIMUM: %w", err)
	}
	if cfg.WithdrawMinimum, err = decimal.NewFromString(v.GetString("WITHDRAW_MINIMUM")); err != nil {
		return nil, fmt.Errorf("parse WITHDRAW_MINIMUM: %w", err)
	}

	switch cfg.DatabaseDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	case DriverSQLite:
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			return nil, fmt.Errorf("SQLITE_PATH is required for the sqlite driver")
		}
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}

	return cfg, nil
}

// Production reports whether APP_ENV names a production deployment.
func (c *Config) Production() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
