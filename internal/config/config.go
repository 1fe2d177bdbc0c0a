package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Environment string            `mapstructure:"environment"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	TrustScore  TrustScoreConfig  `mapstructure:"trust_score"`
	Marketplace MarketplaceConfig `mapstructure:"marketplace"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Security    SecurityConfig    `mapstructure:"security"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	HTTP HTTPConfig `mapstructure:"http"`
}

// HTTPConfig contains HTTP server settings
type HTTPConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	Name               string        `mapstructure:"name"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	SSLMode            string        `mapstructure:"ssl_mode"`
	MaxOpenConnections int           `mapstructure:"max_open_connections"`
	MaxIdleConnections int           `mapstructure:"max_idle_connections"`
	ConnMaxLifetime    time.Duration `mapstructure:"connection_max_lifetime"`
	ConnectionTimeout  time.Duration `mapstructure:"connection_timeout"`
	QueryTimeout       time.Duration `mapstructure:"query_timeout"`
	SlowQueryThreshold time.Duration `mapstructure:"slow_query_threshold"`
	EnableQueryLogging bool          `mapstructure:"enable_query_logging"`
	MigrationsPath     string        `mapstructure:"migrations_path"`
}

// DSN builds the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.Username, c.Password, c.Name, c.SSLMode)
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	Database     int           `mapstructure:"database"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
}

// Addr returns host:port for the redis client.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// KafkaConfig contains Kafka configuration
type KafkaConfig struct {
	Enabled      bool              `mapstructure:"enabled"`
	Brokers      []string          `mapstructure:"brokers"`
	Topics       KafkaTopicsConfig `mapstructure:"topics"`
	BatchTimeout time.Duration     `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration     `mapstructure:"write_timeout"`
}

// KafkaTopicsConfig contains Kafka topic names
type KafkaTopicsConfig struct {
	ItemCreated       string `mapstructure:"item_created"`
	PurchaseCompleted string `mapstructure:"purchase_completed"`
	ScoreCalculated   string `mapstructure:"score_calculated"`
}

// TrustScoreConfig contains trust score engine settings
type TrustScoreConfig struct {
	Tiers           map[string]TierConfig `mapstructure:"tiers"`
	RateLimitWindow time.Duration         `mapstructure:"rate_limit_window"`
	CacheTTL        time.Duration         `mapstructure:"cache_ttl"`
	ScoreValidity   time.Duration         `mapstructure:"score_validity"`
	Workers         int                   `mapstructure:"workers"`
	QueueSize       int                   `mapstructure:"queue_size"`
	RefillSchedule  string                `mapstructure:"refill_schedule"`
	EstimatedTime   time.Duration         `mapstructure:"estimated_time"`
}

// TierConfig contains per-tier quota policy
type TierConfig struct {
	Allowance         float64 `mapstructure:"allowance"`
	RequestsPerWindow int     `mapstructure:"requests_per_window"`
}

// MarketplaceConfig contains marketplace settings
type MarketplaceConfig struct {
	DefaultComplianceChecks []string                 `mapstructure:"default_compliance_checks"`
	LicenseValidity         map[string]time.Duration `mapstructure:"license_validity"`
	RecentSalesLimit        int                      `mapstructure:"recent_sales_limit"`
	TopCategoriesLimit      int                      `mapstructure:"top_categories_limit"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig contains metrics and monitoring configuration
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// SecurityConfig contains security configuration
type SecurityConfig struct {
	RateLimiting RateLimitConfig `mapstructure:"rate_limiting"`
	CORS         CORSConfig      `mapstructure:"cors"`
}

// RateLimitConfig contains ingress rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	BurstSize         int  `mapstructure:"burst_size"`
}

// CORSConfig contains CORS settings
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load loads configuration from file and environment variables.
// An empty path skips the file and uses defaults plus environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("VANTAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	overrideWithEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the settings the service cannot start without
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host not configured")
	}
	if c.Server.HTTP.Port == 0 {
		return fmt.Errorf("HTTP port not configured")
	}
	for _, tier := range []string{"basic", "pro", "enterprise"} {
		t, ok := c.TrustScore.Tiers[tier]
		if !ok {
			return fmt.Errorf("trust score tier %q not configured", tier)
		}
		if t.Allowance < 0 || t.RequestsPerWindow <= 0 {
			return fmt.Errorf("trust score tier %q has invalid quota policy", tier)
		}
	}
	if c.TrustScore.Workers <= 0 {
		return fmt.Errorf("trust score workers must be positive")
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.http.port", 8080)
	v.SetDefault("server.http.read_timeout", "30s")
	v.SetDefault("server.http.write_timeout", "30s")
	v.SetDefault("server.http.idle_timeout", "120s")
	v.SetDefault("server.http.shutdown_timeout", "15s")
	v.SetDefault("server.http.max_header_bytes", 1048576)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "vantage")
	v.SetDefault("database.username", "vantage")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_connections", 25)
	v.SetDefault("database.max_idle_connections", 25)
	v.SetDefault("database.connection_max_lifetime", "5m")
	v.SetDefault("database.connection_timeout", "10s")
	v.SetDefault("database.query_timeout", "30s")
	v.SetDefault("database.slow_query_threshold", "500ms")
	v.SetDefault("database.enable_query_logging", false)
	v.SetDefault("database.migrations_path", "file://migrations")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")
	v.SetDefault("redis.pool_size", 10)

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topics.item_created", "marketplace.item.created")
	v.SetDefault("kafka.topics.purchase_completed", "marketplace.purchase.completed")
	v.SetDefault("kafka.topics.score_calculated", "trust.score.calculated")
	v.SetDefault("kafka.batch_timeout", "50ms")
	v.SetDefault("kafka.write_timeout", "10s")

	// Trust score defaults
	v.SetDefault("trust_score.tiers.basic.allowance", 100)
	v.SetDefault("trust_score.tiers.basic.requests_per_window", 10)
	v.SetDefault("trust_score.tiers.pro.allowance", 500)
	v.SetDefault("trust_score.tiers.pro.requests_per_window", 100)
	v.SetDefault("trust_score.tiers.enterprise.allowance", 5000)
	v.SetDefault("trust_score.tiers.enterprise.requests_per_window", 1000)
	v.SetDefault("trust_score.rate_limit_window", "1h")
	v.SetDefault("trust_score.cache_ttl", "10m")
	v.SetDefault("trust_score.score_validity", "720h")
	v.SetDefault("trust_score.workers", 4)
	v.SetDefault("trust_score.queue_size", 256)
	v.SetDefault("trust_score.refill_schedule", "@daily")
	v.SetDefault("trust_score.estimated_time", "30s")

	// Marketplace defaults
	v.SetDefault("marketplace.default_compliance_checks", []string{"security", "content"})
	v.SetDefault("marketplace.license_validity.standard", "8760h")
	v.SetDefault("marketplace.license_validity.premium", "17520h")
	v.SetDefault("marketplace.recent_sales_limit", 10)
	v.SetDefault("marketplace.top_categories_limit", 5)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Metrics and security defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.endpoint", "/metrics")
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 600)
	v.SetDefault("security.rate_limiting.burst_size", 50)
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
}

// overrideWithEnvVars overrides configuration with environment variables
func overrideWithEnvVars(v *viper.Viper) {
	// Database environment variables
	if host := os.Getenv("DATABASE_HOST"); host != "" {
		v.Set("database.host", host)
	}
	if port := os.Getenv("DATABASE_PORT"); port != "" {
		v.Set("database.port", port)
	}
	if name := os.Getenv("DATABASE_NAME"); name != "" {
		v.Set("database.name", name)
	}
	if username := os.Getenv("DATABASE_USERNAME"); username != "" {
		v.Set("database.username", username)
	}
	if password := os.Getenv("DATABASE_PASSWORD"); password != "" {
		v.Set("database.password", password)
	}

	// Redis environment variables
	if host := os.Getenv("REDIS_HOST"); host != "" {
		v.Set("redis.host", host)
	}
	if port := os.Getenv("REDIS_PORT"); port != "" {
		v.Set("redis.port", port)
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		v.Set("redis.password", password)
	}

	// Kafka environment variables
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		v.Set("kafka.brokers", strings.Split(brokers, ","))
		v.Set("kafka.enabled", true)
	}
}
