package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/ThanhSi1008/tilevania-sub000/internal/domain"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `yaml:"server" envPrefix:"SERVER_"`
	Store       StoreConfig       `yaml:"store" envPrefix:"STORE_"`
	Redis       RedisConfig       `yaml:"redis" envPrefix:"REDIS_"`
	Postgres    PostgresConfig    `yaml:"postgres" envPrefix:"POSTGRES_"`
	Kafka       KafkaConfig       `yaml:"kafka" envPrefix:"KAFKA_"`
	Auth        AuthConfig        `yaml:"auth" envPrefix:"AUTH_"`
	Session     SessionConfig     `yaml:"session" envPrefix:"SESSION_"`
	Leaderboard LeaderboardConfig `yaml:"leaderboard" envPrefix:"LEADERBOARD_"`
	WebSocket   WebSocketConfig   `yaml:"websocket" envPrefix:"WEBSOCKET_"`
	Catalog     CatalogConfig     `yaml:"catalog"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" env:"PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	// Driver is "postgres" or "memory"
	Driver string `yaml:"driver" env:"DRIVER"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled" env:"ENABLED"`
	Addr         string        `yaml:"addr" env:"ADDR"`
	Password     string        `yaml:"password" env:"PASSWORD"`
	DB           int           `yaml:"db" env:"DB"`
	PoolSize     int           `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int           `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Database        string        `yaml:"database" env:"DATABASE"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxConnections  int           `yaml:"max_connections" env:"MAX_CONNECTIONS"`
	MinConnections  int           `yaml:"min_connections" env:"MIN_CONNECTIONS"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"MAX_CONN_LIFETIME"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"MAX_CONN_IDLE_TIME"`
	ConnectRetries  int           `yaml:"connect_retries" env:"CONNECT_RETRIES"`
}

// ConnectionString returns the PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslMode,
	)
}

// KafkaConfig holds Kafka connection configuration for stats ingestion
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers" env:"BROKERS" envSeparator:","`
	Topic        string        `yaml:"topic" env:"TOPIC"`
	GroupID      string        `yaml:"group_id" env:"GROUP_ID"`
	Enabled      bool          `yaml:"enabled" env:"ENABLED"`
	BatchSize    int           `yaml:"batch_size" env:"BATCH_SIZE"`
	BatchTimeout time.Duration `yaml:"batch_timeout" env:"BATCH_TIMEOUT"`
}

// AuthConfig holds token issuing configuration
type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	Issuer     string        `yaml:"issuer" env:"ISSUER"`
	TokenTTL   time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
	BcryptCost int           `yaml:"bcrypt_cost" env:"BCRYPT_COST"`
	// AdminKey guards operator routes. Empty disables them.
	AdminKey string `yaml:"admin_key" env:"ADMIN_KEY"`
}

// SessionConfig holds session history paging limits
type SessionConfig struct {
	DefaultHistoryLimit int `yaml:"default_history_limit" env:"DEFAULT_HISTORY_LIMIT"`
	MaxHistoryLimit     int `yaml:"max_history_limit" env:"MAX_HISTORY_LIMIT"`
}

// LeaderboardConfig holds leaderboard-specific configuration
type LeaderboardConfig struct {
	DefaultLimit      int           `yaml:"default_limit" env:"DEFAULT_LIMIT"`
	MaxLimit          int           `yaml:"max_limit" env:"MAX_LIMIT"`
	RecomputeInterval time.Duration `yaml:"recompute_interval" env:"RECOMPUTE_INTERVAL"`
	RecomputeEnabled  bool          `yaml:"recompute_enabled" env:"RECOMPUTE_ENABLED"`
	LockTTL           time.Duration `yaml:"lock_ttl" env:"LOCK_TTL"`
}

// WebSocketConfig holds push hub configuration
type WebSocketConfig struct {
	// AllowedOrigins lists accepted Origin headers; empty accepts any origin
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	// BroadcastLimit caps the rows pushed per leaderboard update
	BroadcastLimit int `yaml:"broadcast_limit" env:"BROADCAST_LIMIT"`
}

// CatalogConfig lists the levels and achievements seeded at startup
type CatalogConfig struct {
	Levels       []domain.Level       `yaml:"levels"`
	Achievements []domain.Achievement `yaml:"achievements"`
}

// Load reads configuration from a YAML file, then applies environment
// overrides and defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment overrides: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot start with
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("invalid store driver %q (must be postgres or memory)", c.Store.Driver)
	}
	if c.Leaderboard.DefaultLimit > c.Leaderboard.MaxLimit {
		return fmt.Errorf("leaderboard default_limit %d exceeds max_limit %d",
			c.Leaderboard.DefaultLimit, c.Leaderboard.MaxLimit)
	}
	seen := make(map[int]bool, len(c.Catalog.Levels))
	for _, lvl := range c.Catalog.Levels {
		if lvl.LevelNumber <= 0 {
			return fmt.Errorf("catalog level %q has no level_number", lvl.Name)
		}
		if seen[lvl.LevelNumber] {
			return fmt.Errorf("catalog level_number %d declared twice", lvl.LevelNumber)
		}
		seen[lvl.LevelNumber] = true
	}
	return nil
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 5 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	if c.Store.Driver == "" {
		c.Store.Driver = "postgres"
	}

	// Redis defaults
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 100
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 10
	}
	if c.Redis.DialTimeout == 0 {
		c.Redis.DialTimeout = 5 * time.Second
	}
	if c.Redis.ReadTimeout == 0 {
		c.Redis.ReadTimeout = 3 * time.Second
	}
	if c.Redis.WriteTimeout == 0 {
		c.Redis.WriteTimeout = 3 * time.Second
	}

	// PostgreSQL defaults
	if c.Postgres.Host == "" {
		c.Postgres.Host = "localhost"
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
	if c.Postgres.Database == "" {
		c.Postgres.Database = "tilevania"
	}
	if c.Postgres.MaxConnections == 0 {
		c.Postgres.MaxConnections = 50
	}
	if c.Postgres.MinConnections == 0 {
		c.Postgres.MinConnections = 5
	}
	if c.Postgres.MaxConnLifetime == 0 {
		c.Postgres.MaxConnLifetime = 1 * time.Hour
	}
	if c.Postgres.MaxConnIdleTime == 0 {
		c.Postgres.MaxConnIdleTime = 30 * time.Minute
	}
	if c.Postgres.ConnectRetries == 0 {
		c.Postgres.ConnectRetries = 5
	}

	// Kafka defaults
	if len(c.Kafka.Brokers) == 0 {
		c.Kafka.Brokers = []string{"localhost:9092"}
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "session-stats"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "session-stats-consumer"
	}
	if c.Kafka.BatchSize == 0 {
		c.Kafka.BatchSize = 100
	}
	if c.Kafka.BatchTimeout == 0 {
		c.Kafka.BatchTimeout = 1 * time.Second
	}

	// Auth defaults
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = "dev-secret-change-me"
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "tilevania"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = 10
	}

	// Session defaults
	if c.Session.DefaultHistoryLimit == 0 {
		c.Session.DefaultHistoryLimit = 20
	}
	if c.Session.MaxHistoryLimit == 0 {
		c.Session.MaxHistoryLimit = 100
	}

	// Leaderboard defaults
	if c.Leaderboard.DefaultLimit == 0 {
		c.Leaderboard.DefaultLimit = 100
	}
	if c.Leaderboard.MaxLimit == 0 {
		c.Leaderboard.MaxLimit = 1000
	}
	if c.Leaderboard.RecomputeInterval == 0 {
		c.Leaderboard.RecomputeInterval = 5 * time.Minute
	}
	if c.Leaderboard.LockTTL == 0 {
		c.Leaderboard.LockTTL = 30 * time.Second
	}

	// WebSocket defaults
	if c.WebSocket.BroadcastLimit == 0 {
		c.WebSocket.BroadcastLimit = 100
	}
}

// DefaultConfig returns a configuration with all defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Leaderboard.RecomputeEnabled = true
	return cfg
}
