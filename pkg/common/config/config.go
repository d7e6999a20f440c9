package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"

	IdentityModeJWT  = "jwt"
	IdentityModeOIDC = "oidc"

	BillingModeKafka = "kafka"
	BillingModeHTTP  = "http"
	BillingModeNone  = "none"
)

type Config struct {
	// Server
	ServerPort     string        `yaml:"server_port"`
	ServerHost     string        `yaml:"server_host"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxRequestBody int64         `yaml:"max_request_body_bytes"`
	LogLevel       string        `yaml:"log_level"`

	// Store
	StoreDriver string `yaml:"store_driver"`
	SQLitePath  string `yaml:"sqlite_path"`

	// Database
	PostgresHost     string        `yaml:"postgres_host"`
	PostgresPort     string        `yaml:"postgres_port"`
	PostgresUser     string        `yaml:"postgres_user"`
	PostgresPassword string        `yaml:"postgres_password"`
	PostgresDB       string        `yaml:"postgres_db"`
	PostgresSSLMode  string        `yaml:"postgres_sslmode"`
	MaxOpenConns     int           `yaml:"max_open_conns"`
	MaxIdleConns     int           `yaml:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout     time.Duration `yaml:"query_timeout"`

	// Redis
	RedisHost     string `yaml:"redis_host"`
	RedisPort     string `yaml:"redis_port"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Kafka
	KafkaBrokers    []string `yaml:"kafka_brokers"`
	KafkaUsageTopic string   `yaml:"kafka_usage_topic"`
	KafkaGroupID    string   `yaml:"kafka_group_id"`

	// Identity
	IdentityMode     string        `yaml:"identity_mode"`
	JWTSecret        string        `yaml:"jwt_secret"`
	JWTIssuer        string        `yaml:"jwt_issuer"`
	JWTAudience      string        `yaml:"jwt_audience"`
	OIDCIssuer       string        `yaml:"oidc_issuer"`
	OIDCClientID     string        `yaml:"oidc_client_id"`
	OIDCClientSecret string        `yaml:"oidc_client_secret"`
	OIDCUserInfoURL  string        `yaml:"oidc_userinfo_url"`
	IdentityTimeout  time.Duration `yaml:"identity_timeout"`

	// Billing
	BillingMode    string        `yaml:"billing_mode"`
	BillingBaseURL string        `yaml:"billing_base_url"`
	BillingAPIKey  string        `yaml:"billing_api_key"`
	BillingTimeout time.Duration `yaml:"billing_timeout"`
	MeterTimeout   time.Duration `yaml:"meter_timeout"`

	// Gateway specific
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	TaxonomyCatalog    string `yaml:"taxonomy_catalog"`
}

// Defaults returns the configuration used when neither a file nor the
// environment override a key.
func Defaults() *Config {
	return &Config{
		ServerPort:     "8080",
		ServerHost:     "0.0.0.0",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxRequestBody: 1 << 20,
		LogLevel:       "info",

		StoreDriver: StoreDriverPostgres,
		SQLitePath:  filepath.Join("data", "rxlocator.db"),

		PostgresHost:     "localhost",
		PostgresPort:     "5432",
		PostgresUser:     "rxlocator",
		PostgresPassword: "rxlocator",
		PostgresDB:       "rxlocator",
		PostgresSSLMode:  "disable",
		MaxOpenConns:     20,
		MaxIdleConns:     5,
		ConnMaxLifetime:  30 * time.Minute,
		QueryTimeout:     10 * time.Second,

		RedisHost: "localhost",
		RedisPort: "6379",

		KafkaBrokers:    []string{"localhost:9092"},
		KafkaUsageTopic: "search-usage",
		KafkaGroupID:    "usage-relay",

		IdentityMode:    IdentityModeJWT,
		JWTIssuer:       "rxlocator-identity",
		JWTAudience:     "rxlocator-api",
		IdentityTimeout: 5 * time.Second,

		BillingMode:    BillingModeNone,
		BillingTimeout: 10 * time.Second,
		MeterTimeout:   3 * time.Second,

		RateLimitPerMinute: 60,
	}
}

// Load reads .env (when present), then the YAML file named by CONFIG_FILE,
// then environment variables. Later sources win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.ServerPort = getEnv("SERVER_PORT", cfg.ServerPort)
	cfg.ServerHost = getEnv("SERVER_HOST", cfg.ServerHost)
	cfg.ReadTimeout = getDuration("READ_TIMEOUT", cfg.ReadTimeout)
	cfg.WriteTimeout = getDuration("WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.MaxRequestBody = int64(getIntEnv("MAX_REQUEST_BODY_BYTES", int(cfg.MaxRequestBody)))
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.StoreDriver = strings.ToLower(getEnv("STORE_DRIVER", cfg.StoreDriver))
	cfg.SQLitePath = getEnv("SQLITE_PATH", cfg.SQLitePath)

	cfg.PostgresHost = getEnv("POSTGRES_HOST", cfg.PostgresHost)
	cfg.PostgresPort = getEnv("POSTGRES_PORT", cfg.PostgresPort)
	cfg.PostgresUser = getEnv("POSTGRES_USER", cfg.PostgresUser)
	cfg.PostgresPassword = getEnv("POSTGRES_PASSWORD", cfg.PostgresPassword)
	cfg.PostgresDB = getEnv("POSTGRES_DB", cfg.PostgresDB)
	cfg.PostgresSSLMode = getEnv("POSTGRES_SSLMODE", cfg.PostgresSSLMode)
	cfg.MaxOpenConns = getIntEnv("DB_MAX_OPEN_CONNS", cfg.MaxOpenConns)
	cfg.MaxIdleConns = getIntEnv("DB_MAX_IDLE_CONNS", cfg.MaxIdleConns)
	cfg.ConnMaxLifetime = getDuration("DB_CONN_MAX_LIFETIME", cfg.ConnMaxLifetime)
	cfg.QueryTimeout = getDuration("DB_QUERY_TIMEOUT", cfg.QueryTimeout)

	cfg.RedisHost = getEnv("REDIS_HOST", cfg.RedisHost)
	cfg.RedisPort = getEnv("REDIS_PORT", cfg.RedisPort)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getIntEnv("REDIS_DB", cfg.RedisDB)

	cfg.KafkaBrokers = getStringSliceEnv("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaUsageTopic = getEnv("KAFKA_USAGE_TOPIC", cfg.KafkaUsageTopic)
	cfg.KafkaGroupID = getEnv("KAFKA_GROUP_ID", cfg.KafkaGroupID)

	cfg.IdentityMode = strings.ToLower(getEnv("IDENTITY_MODE", cfg.IdentityMode))
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTIssuer = getEnv("JWT_ISSUER", cfg.JWTIssuer)
	cfg.JWTAudience = getEnv("JWT_AUDIENCE", cfg.JWTAudience)
	cfg.OIDCIssuer = getEnv("OIDC_ISSUER", cfg.OIDCIssuer)
	cfg.OIDCClientID = getEnv("OIDC_CLIENT_ID", cfg.OIDCClientID)
	cfg.OIDCClientSecret = getEnv("OIDC_CLIENT_SECRET", cfg.OIDCClientSecret)
	cfg.OIDCUserInfoURL = getEnv("OIDC_USERINFO_URL", cfg.OIDCUserInfoURL)
	cfg.IdentityTimeout = getDuration("IDENTITY_TIMEOUT", cfg.IdentityTimeout)

	cfg.BillingMode = strings.ToLower(getEnv("BILLING_MODE", cfg.BillingMode))
	cfg.BillingBaseURL = getEnv("BILLING_BASE_URL", cfg.BillingBaseURL)
	cfg.BillingAPIKey = getEnv("BILLING_API_KEY", cfg.BillingAPIKey)
	cfg.BillingTimeout = getDuration("BILLING_TIMEOUT", cfg.BillingTimeout)
	cfg.MeterTimeout = getDuration("METER_TIMEOUT", cfg.MeterTimeout)

	cfg.RateLimitPerMinute = getIntEnv("RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute)
	cfg.TaxonomyCatalog = getEnv("TAXONOMY_CATALOG", cfg.TaxonomyCatalog)
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverSQLite:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.IdentityMode {
	case IdentityModeJWT, IdentityModeOIDC:
	default:
		return fmt.Errorf("unsupported IDENTITY_MODE %q", c.IdentityMode)
	}
	switch c.BillingMode {
	case BillingModeKafka, BillingModeHTTP, BillingModeNone:
	default:
		return fmt.Errorf("unsupported BILLING_MODE %q", c.BillingMode)
	}
	if c.MaxOpenConns <= 0 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be positive")
	}
	return nil
}

// PostgresDSN renders the key/value DSN understood by the pgx driver.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.PostgresHost,
		c.PostgresUser,
		c.PostgresPassword,
		c.PostgresDB,
		c.PostgresPort,
		c.PostgresSSLMode,
	)
}

// PostgresURL renders the URL form used by the migration runner.
func (c *Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.PostgresUser,
		c.PostgresPassword,
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDB,
		c.PostgresSSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
