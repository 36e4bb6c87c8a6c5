// services/common/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/zeebo/errs"

	"github.com/watchme-app/vault-api/services/common/metadata"
	"github.com/watchme-app/vault-api/services/common/objectstore"
	"github.com/watchme-app/vault-api/services/common/policy"
)

// Error is the class of configuration errors.
var Error = errs.Class("config")

const (
	BackendS3   = "s3"
	BackendDisk = "disk"

	defaultMaxUploadBytes = 100 * 1024 * 1024
)

// Config is read once at startup and shared read-only by every component.
type Config struct {
	// Service
	Port        string
	Environment string

	// Object store
	StorageBackend string
	DataDir        string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3Region       string
	S3UseSSL       bool

	// Metadata store
	MetadataDriver   string
	DatabaseURL      string
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	SQLitePath       string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers []string
	KafkaTopic   string

	// Ingestion policy
	MaxUploadBytes    int64
	SignedURLMinTTL   time.Duration
	SignedURLMaxTTL   time.Duration
	ReferenceLocation *time.Location
	Skip              *policy.Skip
}

// Load reads configuration from the environment, after an optional .env file.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	env := lookup(getenv)

	cfg := &Config{
		Port:        env.str("PORT", "8000"),
		Environment: env.str("ENVIRONMENT", "local"),

		StorageBackend: env.str("VAULT_STORAGE_BACKEND", BackendS3),
		DataDir:        env.str("VAULT_DATA_DIR", "./data"),
		S3Endpoint:     env.str("S3_ENDPOINT", "s3.amazonaws.com"),
		S3AccessKey:    env.str("AWS_ACCESS_KEY_ID", ""),
		S3SecretKey:    env.str("AWS_SECRET_ACCESS_KEY", ""),
		S3Bucket:       env.str("S3_BUCKET_NAME", "watchme-vault"),
		S3Region:       env.str("AWS_REGION", "us-east-1"),
		S3UseSSL:       env.boolean("S3_USE_SSL", true),

		MetadataDriver:   env.str("METADATA_DRIVER", metadata.DriverPostgres),
		DatabaseURL:      env.str("DATABASE_URL", ""),
		PostgresHost:     env.str("POSTGRES_HOST", ""),
		PostgresPort:     env.integer("POSTGRES_PORT", 5432),
		PostgresUser:     env.str("POSTGRES_USER", "postgres"),
		PostgresPassword: env.str("POSTGRES_PASSWORD", ""),
		PostgresDB:       env.str("POSTGRES_DB", "vault"),
		PostgresSSLMode:  env.str("POSTGRES_SSLMODE", "require"),
		SQLitePath:       env.str("SQLITE_PATH", ""),

		RedisAddr:     env.str("REDIS_ADDR", ""),
		RedisPassword: env.str("REDIS_PASSWORD", ""),
		RedisDB:       env.integer("REDIS_DB", 0),

		KafkaBrokers: policy.ParseList(env.str("KAFKA_BROKERS", "")),
		KafkaTopic:   env.str("KAFKA_TOPIC", "vault.events"),

		MaxUploadBytes:  int64(env.integer("VAULT_MAX_UPLOAD_BYTES", defaultMaxUploadBytes)),
		SignedURLMinTTL: time.Duration(env.integer("SIGNED_URL_MIN_HOURS", 1)) * time.Hour,
		SignedURLMaxTTL: time.Duration(env.integer("SIGNED_URL_MAX_HOURS", 24)) * time.Hour,
	}
	if env.err != nil {
		return nil, env.err
	}

	switch cfg.StorageBackend {
	case BackendS3, BackendDisk:
	default:
		return nil, Error.New("VAULT_STORAGE_BACKEND must be %q or %q, got %q", BackendS3, BackendDisk, cfg.StorageBackend)
	}
	switch cfg.MetadataDriver {
	case metadata.DriverPostgres, metadata.DriverSQLite:
	default:
		return nil, Error.New("METADATA_DRIVER must be %q or %q, got %q", metadata.DriverPostgres, metadata.DriverSQLite, cfg.MetadataDriver)
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, Error.New("VAULT_MAX_UPLOAD_BYTES must be positive")
	}
	if cfg.SignedURLMinTTL <= 0 || cfg.SignedURLMaxTTL < cfg.SignedURLMinTTL {
		return nil, Error.New("signed URL bounds must satisfy 0 < min <= max")
	}

	loc, err := loadLocation(env.str("VAULT_REFERENCE_TIMEZONE", "Asia/Tokyo"))
	if err != nil {
		return nil, err
	}
	cfg.ReferenceLocation = loc

	cfg.Skip, err = loadSkip(env)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// S3Configured reports whether object store credentials are present.
func (c *Config) S3Configured() bool {
	if c.StorageBackend == BackendDisk {
		return c.DataDir != ""
	}
	return c.S3AccessKey != "" && c.S3SecretKey != "" && c.S3Bucket != ""
}

// DatabaseConfigured reports whether metadata store connection details are present.
func (c *Config) DatabaseConfigured() bool {
	if c.MetadataDriver == metadata.DriverSQLite {
		return c.SQLitePath != ""
	}
	return c.DatabaseURL != "" || c.PostgresHost != ""
}

// RedisConfigured reports whether the device cache is enabled.
func (c *Config) RedisConfigured() bool { return c.RedisAddr != "" }

// KafkaConfigured reports whether upload events are published.
func (c *Config) KafkaConfigured() bool { return len(c.KafkaBrokers) > 0 }

// MinIO returns the S3 backend settings. A scheme on S3_ENDPOINT overrides S3_USE_SSL.
func (c *Config) MinIO() objectstore.MinIOConfig {
	endpoint, useSSL := c.S3Endpoint, c.S3UseSSL
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint, useSSL = strings.TrimPrefix(endpoint, "https://"), true
	case strings.HasPrefix(endpoint, "http://"):
		endpoint, useSSL = strings.TrimPrefix(endpoint, "http://"), false
	}
	return objectstore.MinIOConfig{
		Endpoint:  strings.TrimSuffix(endpoint, "/"),
		AccessKey: c.S3AccessKey,
		SecretKey: c.S3SecretKey,
		Bucket:    c.S3Bucket,
		Region:    c.S3Region,
		UseSSL:    useSSL,
	}
}

// MetadataDSN returns the connection string for the configured driver.
func (c *Config) MetadataDSN() string {
	if c.MetadataDriver == metadata.DriverSQLite {
		return c.SQLitePath
	}
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:     fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:     "/" + c.PostgresDB,
		RawQuery: url.Values{"sslmode": []string{c.PostgresSSLMode}}.Encode(),
	}
	return u.String()
}

func loadLocation(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, nil
	}
	// Hosts without zoneinfo still know the zone the devices ship with.
	if name == "Asia/Tokyo" {
		return time.FixedZone("JST", 9*3600), nil
	}
	return nil, Error.New("VAULT_REFERENCE_TIMEZONE %q: %v", name, err)
}

func loadSkip(env *envReader) (*policy.Skip, error) {
	if path := env.str("SKIP_POLICY_FILE", ""); path != "" {
		return policy.LoadSkipFile(path)
	}
	hours, err := policy.ParseHours(env.str("SKIP_HOURS", ""))
	if err != nil {
		return nil, err
	}
	return policy.NewSkip(
		env.boolean("SKIP_ENABLED", false),
		policy.ParseList(env.str("SKIP_DEVICE_IDS", "")),
		hours,
	)
}

type envReader struct {
	getenv func(string) string
	err    error
}

func lookup(getenv func(string) string) *envReader {
	return &envReader{getenv: getenv}
}

func (e *envReader) str(key, defaultValue string) string {
	if value := strings.TrimSpace(e.getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func (e *envReader) integer(key string, defaultValue int) int {
	value := strings.TrimSpace(e.getenv(key))
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		e.err = errs.Combine(e.err, Error.New("%s: %q is not an integer", key, value))
		return defaultValue
	}
	return intVal
}

func (e *envReader) boolean(key string, defaultValue bool) bool {
	value := strings.TrimSpace(e.getenv(key))
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		e.err = errs.Combine(e.err, Error.New("%s: %q is not a boolean", key, value))
		return defaultValue
	}
	return boolVal
}
