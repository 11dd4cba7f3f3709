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

// Config represents the complete application configuration
type Config struct {
	App      AppConfig
	Server   ServerConfig
	Data     DataConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Admin    AdminConfig
	CORS     CORSConfig
}

// AppConfig holds application-level settings
type AppConfig struct {
	Version     string
	Environment string // development, staging, production
	LogLevel    slog.Level
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DataConfig holds the dataset location and refresh settings
type DataConfig struct {
	File            string
	VariantsFile    string
	RefreshInterval time.Duration
	SourceTimeout   time.Duration
}

// DatabaseConfig holds database connection settings. An empty URL disables PostgreSQL.
type DatabaseConfig struct {
	URL               string
	MaxConns          int32
	MinConns          int32
	HealthCheckPeriod time.Duration
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	ConnectTimeout    time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
}

// RedisConfig holds Redis settings. An empty Addr keeps the in-memory cache only.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CacheConfig holds callback output cache settings
type CacheConfig struct {
	TTL time.Duration
}

// AdminConfig holds the argon2id hash of the admin bearer token
type AdminConfig struct {
	TokenHash string
}

// CORSConfig holds CORS middleware settings
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

// LoadConfig loads configuration from the environment, reading a .env file first when present.
func LoadConfig(logger *slog.Logger) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("loading application configuration")

	config := &Config{}

	if err := loadAppConfig(&config.App, logger); err != nil {
		return nil, fmt.Errorf("failed to load app config: %w", err)
	}

	if err := loadServerConfig(&config.Server, logger); err != nil {
		return nil, fmt.Errorf("failed to load server config: %w", err)
	}

	if err := loadDataConfig(&config.Data, logger); err != nil {
		return nil, fmt.Errorf("failed to load data config: %w", err)
	}

	loadDatabaseConfig(&config.Database, logger)
	loadRedisConfig(&config.Redis, logger)

	if err := loadCacheConfig(&config.Cache, logger); err != nil {
		return nil, fmt.Errorf("failed to load cache config: %w", err)
	}

	loadAdminConfig(&config.Admin, logger)
	loadCORSConfig(&config.CORS, logger)

	logger.Info("configuration loaded successfully",
		"environment", config.App.Environment,
		"version", config.App.Version,
		"port", config.Server.Port,
		"data_file", config.Data.File,
	)

	return config, nil
}

func loadAppConfig(cfg *AppConfig, logger *slog.Logger) error {
	version := os.Getenv("VERSION")
	if version == "" {
		version = "1.0.0"
		logger.Warn("VERSION not set, using default", "default", version)
	}
	cfg.Version = version

	env := os.Getenv("ENV")
	if env == "" {
		env = "development"
		logger.Warn("ENV not set, using default", "default", env)
	}
	cfg.Environment = env

	cfg.LogLevel = slog.LevelInfo
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(lvl)); err != nil {
			return fmt.Errorf("invalid LOG_LEVEL %q: %w", lvl, err)
		}
	}

	return nil
}

func loadServerConfig(cfg *ServerConfig, logger *slog.Logger) error {
	cfg.Host = os.Getenv("HOST")

	port := os.Getenv("PORT")
	if port == "" {
		port = "8050"
		logger.Warn("PORT not set, using default", "default", port)
	}
	if _, err := strconv.Atoi(port); err != nil {
		return fmt.Errorf("invalid PORT %q: %w", port, err)
	}
	cfg.Port = port

	var err error
	if cfg.ReadTimeout, err = getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second); err != nil {
		return err
	}
	if cfg.WriteTimeout, err = getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second); err != nil {
		return err
	}
	if cfg.IdleTimeout, err = getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second); err != nil {
		return err
	}
	if cfg.ShutdownTimeout, err = getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second); err != nil {
		return err
	}

	return nil
}

func loadDataConfig(cfg *DataConfig, logger *slog.Logger) error {
	cfg.File = os.Getenv("DATA_FILE")
	if cfg.File == "" {
		cfg.File = "data.csv"
		logger.Warn("DATA_FILE not set, using default", "default", cfg.File)
	}

	cfg.VariantsFile = os.Getenv("VARIANTS_FILE")
	if cfg.VariantsFile == "" {
		cfg.VariantsFile = "variants.csv"
	}

	var err error
	if cfg.RefreshInterval, err = getEnvAsDuration("REFRESH_INTERVAL", 24*time.Hour); err != nil {
		return err
	}
	if cfg.SourceTimeout, err = getEnvAsDuration("SOURCE_TIMEOUT", 2*time.Minute); err != nil {
		return err
	}

	logger.Debug("data config loaded",
		"file", cfg.File,
		"variants_file", cfg.VariantsFile,
		"refresh_interval", cfg.RefreshInterval,
	)

	return nil
}

func loadDatabaseConfig(cfg *DatabaseConfig, logger *slog.Logger) {
	cfg.URL = os.Getenv("DATABASE_URL")

	cfg.MaxConns = getEnvAsInt32("DB_MAX_CONNS", 10)
	cfg.MinConns = getEnvAsInt32("DB_MIN_CONNS", 2)

	healthCheckSec := getEnvAsInt32("DB_HEALTH_CHECK_PERIOD_SECONDS", 60)
	cfg.HealthCheckPeriod = time.Duration(healthCheckSec) * time.Second

	maxLifetimeMin := getEnvAsInt32("DB_MAX_CONN_LIFETIME_MINUTES", 0)
	cfg.MaxConnLifetime = time.Duration(maxLifetimeMin) * time.Minute

	maxIdleMin := getEnvAsInt32("DB_MAX_CONN_IDLE_TIME_MINUTES", 0)
	cfg.MaxConnIdleTime = time.Duration(maxIdleMin) * time.Minute

	cfg.ConnectTimeout = 10 * time.Second
	cfg.MaxRetries = getEnvAsInt("DB_MAX_RETRIES", 3)
	cfg.RetryDelay = 1 * time.Second

	if cfg.URL == "" {
		logger.Debug("DATABASE_URL not set, postgres store disabled")
		return
	}
	logger.Debug("database config loaded",
		"max_conns", cfg.MaxConns,
		"min_conns", cfg.MinConns,
	)
}

func loadRedisConfig(cfg *RedisConfig, logger *slog.Logger) {
	cfg.Addr = os.Getenv("REDIS_ADDR")
	cfg.Password = os.Getenv("REDIS_PASSWORD")
	cfg.DB = getEnvAsInt("REDIS_DB", 0)

	if cfg.Addr != "" {
		logger.Debug("Redis config loaded", "addr", cfg.Addr, "db", cfg.DB)
	}
}

func loadCacheConfig(cfg *CacheConfig, logger *slog.Logger) error {
	ttl, err := getEnvAsDuration("CACHE_TTL", 10*time.Minute)
	if err != nil {
		return err
	}
	cfg.TTL = ttl
	logger.Debug("cache config loaded", "ttl", cfg.TTL)
	return nil
}

func loadAdminConfig(cfg *AdminConfig, logger *slog.Logger) {
	cfg.TokenHash = os.Getenv("ADMIN_TOKEN_HASH")
	if cfg.TokenHash == "" {
		logger.Warn("ADMIN_TOKEN_HASH not set, admin endpoints disabled")
	}
}

func loadCORSConfig(cfg *CORSConfig, logger *slog.Logger) {
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitAndTrim(origins, ",")
	} else {
		cfg.AllowedOrigins = []string{"*"}
		logger.Warn("CORS_ALLOWED_ORIGINS not set, allowing all origins (not recommended for production)")
	}

	if methods := os.Getenv("CORS_ALLOWED_METHODS"); methods != "" {
		cfg.AllowedMethods = splitAndTrim(methods, ",")
	} else {
		cfg.AllowedMethods = []string{"GET", "POST", "HEAD", "OPTIONS"}
	}

	if headers := os.Getenv("CORS_ALLOWED_HEADERS"); headers != "" {
		cfg.AllowedHeaders = splitAndTrim(headers, ",")
	} else {
		cfg.AllowedHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}

	cfg.MaxAge = getEnvAsInt("CORS_MAX_AGE", 3600)

	logger.Debug("CORS config loaded", "origins_count", len(cfg.AllowedOrigins))
}

// Helper functions

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvAsInt32(key string, defaultVal int32) int32 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return int32(parsed)
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, val)
	}
	return d, nil
}

func splitAndTrim(s, sep string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, sep)
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// Addr returns the listen address of the HTTP server
func (c *Config) Addr() string {
	return c.Server.Addr()
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DebugRequested reports whether DEBUG asks for debug logging, for use before LoadConfig.
func DebugRequested() bool {
	return getEnvAsBool("DEBUG", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}
	if c.Data.File == "" {
		errs = append(errs, errors.New("data file is required"))
	}
	if c.Database.MinConns > c.Database.MaxConns {
		errs = append(errs, fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.Database.MinConns, c.Database.MaxConns))
	}
	if c.IsProduction() && len(c.CORS.AllowedOrigins) == 1 && c.CORS.AllowedOrigins[0] == "*" {
		errs = append(errs, errors.New("CORS wildcard origin (*) is not allowed in production"))
	}
	return errors.Join(errs...)
}
