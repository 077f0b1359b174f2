package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when MONTEVECCHIO_CONFIG is not set.
const DefaultPath = "configs/config.yaml"

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Household  HouseholdConfig  `yaml:"household"`
	Storage    StorageConfig    `yaml:"storage"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	AWS        AWSConfig        `yaml:"aws"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Port            int      `yaml:"port"`
	APIKey          string   `yaml:"api_key"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	RateLimitPerSec float64  `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int      `yaml:"rate_limit_burst"`
	ShutdownSeconds int      `yaml:"shutdown_seconds"`
	TrustProxy      bool     `yaml:"trust_proxy"`
}

type HouseholdConfig struct {
	Name           string `yaml:"name"`
	Timezone       string `yaml:"timezone"`
	MaxSaveRetries int    `yaml:"max_save_retries"`
	HistoryLimit   int    `yaml:"history_limit"`
}

type StorageConfig struct {
	// Driver is one of memory, sqlite, redis or failover.
	Driver string `yaml:"driver"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	StoragePath   string `yaml:"storage_path"`
	RetentionDays int    `yaml:"retention_days"`
}

type MonitoringConfig struct {
	HealthCheckPort   int  `yaml:"health_check_port"`
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type TelegramConfig struct {
	Enabled      bool    `yaml:"enabled"`
	BotToken     string  `yaml:"bot_token"`
	ChatID       int64   `yaml:"chat_id"`
	Debug        bool    `yaml:"debug"`
	MessagesPerS float64 `yaml:"messages_per_second"`
}

type AWSConfig struct {
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Endpoint        string `yaml:"endpoint"`
	UploadURLTTLMin int    `yaml:"upload_url_ttl_minutes"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

var validDrivers = map[string]bool{"memory": true, "sqlite": true, "redis": true, "failover": true}

// Load reads the YAML file at path, expanding ${ENV_VAR} placeholders. A .env
// file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes and applies defaults.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Server.RateLimitPerSec <= 0 {
		c.Server.RateLimitPerSec = 5
	}
	if c.Server.RateLimitBurst <= 0 {
		c.Server.RateLimitBurst = 10
	}
	if c.Server.ShutdownSeconds <= 0 {
		c.Server.ShutdownSeconds = 10
	}
	if c.Household.Timezone == "" {
		c.Household.Timezone = "Europe/Rome"
	}
	if c.Household.MaxSaveRetries <= 0 {
		c.Household.MaxSaveRetries = 5
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	if c.Database.Path == "" {
		c.Database.Path = "data/montevecchio.db"
	}
	if c.Redis.Key == "" {
		c.Redis.Key = "montevecchio:group"
	}
	if c.Backup.Schedule == "" {
		c.Backup.Schedule = "0 3 * * *"
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "data/backups"
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Telegram.MessagesPerS <= 0 {
		c.Telegram.MessagesPerS = 1
	}
	if c.AWS.UploadURLTTLMin <= 0 {
		c.AWS.UploadURLTTLMin = 15
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports configuration that cannot start a server.
func (c *Config) Validate() error {
	if !validDrivers[c.Storage.Driver] {
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if (c.Storage.Driver == "redis" || c.Storage.Driver == "failover") && c.Redis.Address == "" {
		return fmt.Errorf("storage driver %q requires redis.address", c.Storage.Driver)
	}
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == 0) {
		return errors.New("telegram enabled without bot_token and chat_id")
	}
	if _, err := time.LoadLocation(c.Household.Timezone); err != nil {
		return fmt.Errorf("invalid household.timezone %q: %w", c.Household.Timezone, err)
	}
	return nil
}

// Location returns the household time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Household.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownSeconds) * time.Second
}

func (c *Config) UploadURLTTL() time.Duration {
	return time.Duration(c.AWS.UploadURLTTLMin) * time.Minute
}

// PhotosEnabled reports whether presigned photo uploads are configured.
func (c *Config) PhotosEnabled() bool {
	return c.AWS.Bucket != ""
}
