// Package config provides application configuration management using environment variables
// and an optional YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DefaultIntents subscribes to guilds, members, presences, guild messages and message content
const DefaultIntents = 1 | 1<<1 | 1<<8 | 1<<9 | 1<<15

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Discord  DiscordConfig  `yaml:"discord"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Sync     SyncConfig     `yaml:"sync"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPPort string `yaml:"http_port"`
	GRPCPort string `yaml:"grpc_port"`
	Host     string `yaml:"host"`
	Env      string `yaml:"environment"`
}

// DiscordConfig holds bot credentials and platform endpoints
type DiscordConfig struct {
	BotToken       string        `yaml:"bot_token"`
	APIURL         string        `yaml:"api_url"`
	GatewayURL     string        `yaml:"gateway_url"`
	Intents        int           `yaml:"intents"`
	RequestTimeout time.Duration `yaml:"-"`
	GatewayEnabled bool          `yaml:"gateway_enabled"`
	RemoteEnabled  bool          `yaml:"-"`

	RequestTimeoutSeconds int `yaml:"request_timeout_seconds"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	Host         string `yaml:"host"`
	Port         string `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Name         string `yaml:"name"`
	SSLMode      string `yaml:"sslmode"`
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// CacheConfig holds in-memory cache sizing
type CacheConfig struct {
	Shards             int `yaml:"shards"`
	MaxEntriesPerShard int `yaml:"max_entries_per_shard"`
}

// SyncConfig controls the ready bootstrap
type SyncConfig struct {
	BootstrapFetch bool          `yaml:"bootstrap_fetch"`
	BootstrapTTL   time.Duration `yaml:"-"`

	BootstrapTTLMinutes int `yaml:"bootstrap_ttl_minutes"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from environment variables
// It optionally loads from a .env file if it exists, and from the YAML file named by
// CONFIG_FILE. Environment variables win over the file
func Load() (*Config, error) {
	// Try to load .env file (optional, ignore error if not found)
	_ = godotenv.Load()

	file := &Config{}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		file = loaded
	}

	cfg := &Config{}

	// Load Server Config
	cfg.Server = ServerConfig{
		HTTPPort: getEnv("HTTP_PORT", orString(file.Server.HTTPPort, "8080")),
		GRPCPort: getEnv("GRPC_PORT", orString(file.Server.GRPCPort, "50051")),
		Host:     getEnv("SERVER_HOST", orString(file.Server.Host, "localhost")),
		Env:      getEnv("ENVIRONMENT", orString(file.Server.Env, "development")),
	}

	// Load Discord Config
	intents, err := getEnvInt("DISCORD_INTENTS", orInt(file.Discord.Intents, DefaultIntents))
	if err != nil {
		return nil, err
	}
	timeoutSeconds, err := getEnvInt("DISCORD_REQUEST_TIMEOUT_SECONDS", orInt(file.Discord.RequestTimeoutSeconds, 10))
	if err != nil {
		return nil, err
	}
	gatewayEnabled, err := getEnvBool("GATEWAY_ENABLED", file.Discord.GatewayEnabled)
	if err != nil {
		return nil, err
	}
	remoteEnabled, err := getEnvBool("DISCORD_REMOTE_ENABLED", true)
	if err != nil {
		return nil, err
	}

	cfg.Discord = DiscordConfig{
		BotToken:              getEnv("DISCORD_BOT_TOKEN", file.Discord.BotToken),
		APIURL:                getEnv("DISCORD_API_URL", orString(file.Discord.APIURL, "https://discord.com/api/v10")),
		GatewayURL:            getEnv("DISCORD_GATEWAY_URL", orString(file.Discord.GatewayURL, "wss://gateway.discord.gg/?v=10&encoding=json")),
		Intents:               intents,
		RequestTimeoutSeconds: timeoutSeconds,
		RequestTimeout:        time.Duration(timeoutSeconds) * time.Second,
		GatewayEnabled:        gatewayEnabled,
		RemoteEnabled:         remoteEnabled,
	}

	// Load Database Config
	maxOpenConns, err := getEnvInt("DB_MAX_OPEN_CONNS", orInt(file.Database.MaxOpenConns, 25))
	if err != nil {
		return nil, err
	}
	maxIdleConns, err := getEnvInt("DB_MAX_IDLE_CONNS", orInt(file.Database.MaxIdleConns, 5))
	if err != nil {
		return nil, err
	}

	cfg.Database = DatabaseConfig{
		Driver:       getEnv("DB_DRIVER", orString(file.Database.Driver, DriverPostgres)),
		Host:         getEnv("DB_HOST", orString(file.Database.Host, "localhost")),
		Port:         getEnv("DB_PORT", orString(file.Database.Port, "5432")),
		User:         getEnv("DB_USER", orString(file.Database.User, "discordlitesync")),
		Password:     getEnv("DB_PASSWORD", file.Database.Password),
		Name:         getEnv("DB_NAME", orString(file.Database.Name, "discordlitesync")),
		SSLMode:      getEnv("DB_SSLMODE", orString(file.Database.SSLMode, "disable")),
		Path:         getEnv("DB_PATH", orString(file.Database.Path, "discordlitesync.db")),
		MaxOpenConns: maxOpenConns,
		MaxIdleConns: maxIdleConns,
	}

	// Load Cache Config
	shards, err := getEnvInt("CACHE_SHARDS", orInt(file.Cache.Shards, 16))
	if err != nil {
		return nil, err
	}
	maxEntries, err := getEnvInt("CACHE_MAX_ENTRIES_PER_SHARD", file.Cache.MaxEntriesPerShard)
	if err != nil {
		return nil, err
	}

	cfg.Cache = CacheConfig{
		Shards:             shards,
		MaxEntriesPerShard: maxEntries,
	}

	// Load Sync Config
	bootstrapFetch, err := getEnvBool("SYNC_BOOTSTRAP_FETCH", file.Sync.BootstrapFetch)
	if err != nil {
		return nil, err
	}
	ttlMinutes, err := getEnvInt("SYNC_BOOTSTRAP_TTL_MINUTES", orInt(file.Sync.BootstrapTTLMinutes, 60))
	if err != nil {
		return nil, err
	}

	cfg.Sync = SyncConfig{
		BootstrapFetch:      bootstrapFetch,
		BootstrapTTLMinutes: ttlMinutes,
		BootstrapTTL:        time.Duration(ttlMinutes) * time.Minute,
	}

	// Load Logging Config
	cfg.Logging = LoggingConfig{
		Level:  getEnv("LOG_LEVEL", orString(file.Logging.Level, "info")),
		Format: getEnv("LOG_FORMAT", orString(file.Logging.Format, "json")),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFile reads a YAML configuration file. Missing keys stay at their zero value
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate Discord Config
	if (c.Discord.GatewayEnabled || c.Discord.RemoteEnabled) && c.Discord.BotToken == "" {
		return fmt.Errorf("DISCORD_BOT_TOKEN is required when the gateway or remote source is enabled")
	}
	if c.Discord.Intents < 0 {
		return fmt.Errorf("DISCORD_INTENTS must not be negative")
	}
	if c.Discord.RequestTimeout <= 0 {
		return fmt.Errorf("DISCORD_REQUEST_TIMEOUT_SECONDS must be positive")
	}

	// Validate Database Config
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.User == "" {
			return fmt.Errorf("DB_USER is required")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("DB_NAME is required")
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("DB_PATH is required")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be one of: %s, %s", DriverPostgres, DriverSQLite)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be positive")
	}
	if c.Database.MaxIdleConns <= 0 {
		return fmt.Errorf("DB_MAX_IDLE_CONNS must be positive")
	}

	// Validate Cache Config
	if c.Cache.Shards <= 0 || c.Cache.Shards&(c.Cache.Shards-1) != 0 {
		return fmt.Errorf("CACHE_SHARDS must be a positive power of two")
	}
	if c.Cache.MaxEntriesPerShard < 0 {
		return fmt.Errorf("CACHE_MAX_ENTRIES_PER_SHARD must not be negative")
	}

	// Validate Sync Config
	if c.Sync.BootstrapTTL < 0 {
		return fmt.Errorf("SYNC_BOOTSTRAP_TTL_MINUTES must not be negative")
	}

	// Validate Logging Config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "console": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}

	return nil
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == DriverSQLite {
		if c.Path == ":memory:" {
			return "file::memory:?_time_format=sqlite"
		}
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite", c.Path)
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// getEnv retrieves an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, fmt.Errorf("invalid %s: must be a boolean: %w", key, err)
	}
	return b, nil
}

func orString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func orInt(value, fallback int) int {
	if value == 0 {
		return fallback
	}
	return value
}
