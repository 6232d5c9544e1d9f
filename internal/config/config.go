package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	SnowflakeNode int64

	AuthJWTSecret        string
	CallbackConfigSecret string

	OTLPEndpoint string

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
	DBAutoMigrate     bool

	SMTP      SMTPConfig
	RateLimit RateLimitConfig
	Voucher   VoucherConfig
	Delivery  DeliveryConfig
}

type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
	Timeout   time.Duration
}

// Enabled reports whether outbound mail is configured at all.
func (c SMTPConfig) Enabled() bool {
	return strings.TrimSpace(c.Host) != "" && strings.TrimSpace(c.FromEmail) != ""
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedeemRate    float64
	RedeemBurst   int
	FailOpen      bool
}

type VoucherConfig struct {
	DefaultExpirationHours int
	RedeemBaseURL          string
}

type DeliveryConfig struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	BaseBackoff time.Duration
	LockTTL     time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:              getenv("APP_SERVICE", "vouchr"),
		AppVersion:           getenv("APP_VERSION", "0.1.0"),
		Environment:          getenv("ENVIRONMENT", "development"),
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		SnowflakeNode:        int64(getenvInt("SNOWFLAKE_NODE", 1)),
		AuthJWTSecret:        strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		CallbackConfigSecret: strings.TrimSpace(getenv("CALLBACK_CONFIG_SECRET", "")),
		OTLPEndpoint:         getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:               getenv("DATABASE_TYPE", "postgres"),
		DBHost:               getenv("DATABASE_HOST", "localhost"),
		DBPort:               getenv("DATABASE_PORT", "5432"),
		DBName:               getenv("DATABASE_NAME", "vouchr"),
		DBUser:               getenv("DATABASE_USER", "postgres"),
		DBPassword:           getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:            getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:        getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:        getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime:    getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime:    getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),
		DBAutoMigrate:        getenvBool("DATABASE_AUTO_MIGRATE", true),
		SMTP: SMTPConfig{
			Host:      strings.TrimSpace(getenv("SMTP_HOST", "")),
			Port:      getenvInt("SMTP_PORT", 587),
			Username:  strings.TrimSpace(getenv("SMTP_USERNAME", "")),
			Password:  getenv("SMTP_PASSWORD", ""),
			FromEmail: strings.TrimSpace(getenv("SMTP_FROM_EMAIL", "")),
			FromName:  getenv("SMTP_FROM_NAME", "Vouchr"),
			Timeout:   getenvDuration("SMTP_TIMEOUT", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:     getenv("RATE_LIMIT_REDIS_ADDR", "localhost:6379"),
			RedisPassword: getenv("RATE_LIMIT_REDIS_PASSWORD", ""),
			RedisDB:       getenvInt("RATE_LIMIT_REDIS_DB", 0),
			RedeemRate:    getenvFloat("RATE_LIMIT_REDEEM_RATE", 5),
			RedeemBurst:   getenvInt("RATE_LIMIT_REDEEM_BURST", 20),
			FailOpen:      getenvBool("RATE_LIMIT_FAIL_OPEN", true),
		},
		Voucher: VoucherConfig{
			DefaultExpirationHours: getenvInt("VOUCHER_DEFAULT_EXPIRATION_HOURS", 720),
			RedeemBaseURL:          strings.TrimRight(getenv("VOUCHER_REDEEM_BASE_URL", ""), "/"),
		},
		Delivery: DeliveryConfig{
			Workers:     getenvInt("DELIVERY_WORKERS", 4),
			QueueSize:   getenvInt("DELIVERY_QUEUE_SIZE", 256),
			MaxAttempts: getenvInt("DELIVERY_MAX_ATTEMPTS", 3),
			BaseBackoff: getenvDuration("DELIVERY_BASE_BACKOFF", 2*time.Second),
			LockTTL:     getenvDuration("DELIVERY_LOCK_TTL", time.Minute),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
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

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
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

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
