package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service       ServiceConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Cache         CacheConfig
	Storage       StorageConfig
	Proxy         ProxyConfig
	Orchestration OrchestrationConfig
	NamedQuery    NamedQueryConfig
	RateLimit     RateLimitConfig
	Telemetry     TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings for the session store
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CacheConfig holds tracked-asset cache settings
type CacheConfig struct {
	AssetTTL    time.Duration
	NotFoundTTL time.Duration
}

// StorageConfig holds object store and fast-disk settings
type StorageConfig struct {
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	StorageBucket string
	ThumbsBucket  string
	OutputBucket  string
	LocalRoot     string
}

// ProxyConfig holds downstream proxy destinations
type ProxyConfig struct {
	ImageServerRoot string
	ThumbsRoot      string
}

// OrchestrationConfig holds materialization settings
type OrchestrationConfig struct {
	LockTimeout time.Duration
	EngineRoot  string
}

// NamedQueryConfig holds stored named-query projection settings
type NamedQueryConfig struct {
	ControlStaleSecs int
	FireballRoot     string
	PdfKeyTemplate   string
	ZipKeyTemplate   string
	ScratchRoot      string
}

// RateLimitConfig holds delivery rate-limit settings (per-minute windows)
type RateLimitConfig struct {
	Enabled           bool
	GlobalPerMinute   int
	CustomerPerMinute int
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof bool
	PprofPort   int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "dam"),
			User:        getEnv("POSTGRES_USER", "dam"),
			Password:    getEnv("POSTGRES_PASSWORD", "dam"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Cache: CacheConfig{
			AssetTTL:    getEnvDuration("ASSET_CACHE_TTL", 5*time.Minute),
			NotFoundTTL: getEnvDuration("ASSET_CACHE_NOTFOUND_TTL", 30*time.Second),
		},
		Storage: StorageConfig{
			Region:        getEnv("AWS_REGION", "eu-west-1"),
			Endpoint:      getEnv("S3_ENDPOINT", ""),
			AccessKey:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretKey:     getEnv("AWS_SECRET_ACCESS_KEY", ""),
			StorageBucket: getEnv("STORAGE_BUCKET", "dam-storage"),
			ThumbsBucket:  getEnv("THUMBS_BUCKET", "dam-thumbs"),
			OutputBucket:  getEnv("OUTPUT_BUCKET", "dam-output"),
			LocalRoot:     getEnv("FAST_DISK_ROOT", "/nas/cache"),
		},
		Proxy: ProxyConfig{
			ImageServerRoot: getEnv("IMAGE_SERVER_ROOT", "http://image-server:8182"),
			ThumbsRoot:      getEnv("THUMBS_ROOT", "http://thumbs:8080"),
		},
		Orchestration: OrchestrationConfig{
			LockTimeout: getEnvDuration("ORCHESTRATION_LOCK_TIMEOUT", 10*time.Second),
			EngineRoot:  getEnv("ENGINE_ROOT", "http://engine:8081"),
		},
		NamedQuery: NamedQueryConfig{
			ControlStaleSecs: getEnvInt("CONTROL_STALE_SECS", 600),
			FireballRoot:     getEnv("FIREBALL_ROOT", "http://fireball:5000"),
			PdfKeyTemplate:   getEnv("PDF_KEY_TEMPLATE", "pdf/{customer}/{queryname}/{args}"),
			ZipKeyTemplate:   getEnv("ZIP_KEY_TEMPLATE", "zip/{customer}/{queryname}/{args}"),
			ScratchRoot:      getEnv("SCRATCH_ROOT", os.TempDir()),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getEnvBool("RATE_LIMIT_ENABLED", true),
			GlobalPerMinute:   getEnvInt("RATE_LIMIT_GLOBAL_PER_MINUTE", 50000),
			CustomerPerMinute: getEnvInt("RATE_LIMIT_CUSTOMER_PER_MINUTE", 5000),
		},
		Telemetry: TelemetryConfig{
			EnablePprof: getEnvBool("ENABLE_PPROF", true),
			PprofPort:   getEnvInt("PPROF_PORT", 6060),
		},
	}

	return cfg, nil
}

// DatabaseURL returns the Postgres connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.Split(value, ",")
	}
	return fallback
}
