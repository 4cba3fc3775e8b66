// Package config provides configuration management for the visa tracker.
// It handles loading configuration from YAML files, applying environment
// variable and command line flag overrides, and validating the result.
// Missing secrets (JWT signing key, PII encryption key) are configuration
// errors that abort startup rather than degrading silently.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	Crypto   CryptoConfig   `yaml:"crypto"`
	Lockout  LockoutConfig  `yaml:"lockout"`
	CSRF     CSRFConfig     `yaml:"csrf"`
	Notify   NotifyConfig   `yaml:"notify"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	Host         string        `yaml:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type     string         `yaml:"type"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig holds PostgreSQL-specific configuration
type PostgresConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Database     string `yaml:"database"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// JWTConfig holds session token configuration
type JWTConfig struct {
	Secret     string        `yaml:"secret"`
	Expiration time.Duration `yaml:"expiration"`
	Issuer     string        `yaml:"issuer"`
}

// CryptoConfig holds the PII field-encryption secret
type CryptoConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

// LockoutConfig holds account-lockout tuning
type LockoutConfig struct {
	Threshold int           `yaml:"threshold"`
	Duration  time.Duration `yaml:"duration"`
}

// CSRFConfig holds CSRF token tuning
type CSRFConfig struct {
	TokenTTL      time.Duration `yaml:"token_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// NotifyConfig holds outbound notification configuration
type NotifyConfig struct {
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	From     string `yaml:"from"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORSEnabled bool     `yaml:"cors_enabled"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Load reads and parses the configuration file, then applies environment
// variable and flag overrides and validates the result.
func Load(path string, flags *Flags) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()
	if flags != nil {
		cfg.applyFlagOverrides(flags)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func (c *Config) applyEnvOverrides() {
	if port := os.Getenv("VISATRACK_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if host := os.Getenv("VISATRACK_SERVER_HOST"); host != "" {
		c.Server.Host = host
	}

	if dbType := os.Getenv("VISATRACK_DB_TYPE"); dbType != "" {
		c.Database.Type = dbType
	}
	if dbPath := os.Getenv("VISATRACK_DB_SQLITE_PATH"); dbPath != "" {
		c.Database.SQLite.Path = dbPath
	}
	if pgHost := os.Getenv("VISATRACK_DB_POSTGRES_HOST"); pgHost != "" {
		c.Database.Postgres.Host = pgHost
	}
	if pgPort := os.Getenv("VISATRACK_DB_POSTGRES_PORT"); pgPort != "" {
		if p, err := strconv.Atoi(pgPort); err == nil {
			c.Database.Postgres.Port = p
		}
	}
	if pgDB := os.Getenv("VISATRACK_DB_POSTGRES_DATABASE"); pgDB != "" {
		c.Database.Postgres.Database = pgDB
	}
	if pgUser := os.Getenv("VISATRACK_DB_POSTGRES_USER"); pgUser != "" {
		c.Database.Postgres.User = pgUser
	}
	if pgPass := os.Getenv("VISATRACK_DB_POSTGRES_PASSWORD"); pgPass != "" {
		c.Database.Postgres.Password = pgPass
	}

	if jwtSecret := os.Getenv("VISATRACK_JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}
	if encKey := os.Getenv("VISATRACK_ENCRYPTION_KEY"); encKey != "" {
		c.Crypto.EncryptionKey = encKey
	}

	if threshold := os.Getenv("VISATRACK_LOCKOUT_THRESHOLD"); threshold != "" {
		if n, err := strconv.Atoi(threshold); err == nil {
			c.Lockout.Threshold = n
		}
	}
	if duration := os.Getenv("VISATRACK_LOCKOUT_DURATION"); duration != "" {
		if d, err := time.ParseDuration(duration); err == nil {
			c.Lockout.Duration = d
		}
	}

	if smtpHost := os.Getenv("VISATRACK_SMTP_HOST"); smtpHost != "" {
		c.Notify.SMTPHost = smtpHost
	}
	if smtpPass := os.Getenv("VISATRACK_SMTP_PASSWORD"); smtpPass != "" {
		c.Notify.Password = smtpPass
	}

	if logLevel := os.Getenv("VISATRACK_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// applyDefaults fills in defaults for values the file may omit
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.JWT.Expiration == 0 {
		c.JWT.Expiration = 24 * time.Hour
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "visatrack"
	}
	if c.Lockout.Threshold == 0 {
		c.Lockout.Threshold = 5
	}
	if c.Lockout.Duration == 0 {
		c.Lockout.Duration = 30 * time.Minute
	}
	if c.CSRF.TokenTTL == 0 {
		c.CSRF.TokenTTL = 24 * time.Hour
	}
	if c.CSRF.SweepInterval == 0 {
		c.CSRF.SweepInterval = time.Hour
	}
	if c.Notify.SMTPPort == 0 {
		c.Notify.SMTPPort = 587
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Type != "sqlite" && c.Database.Type != "postgres" {
		return fmt.Errorf("invalid database type: %s (must be 'sqlite' or 'postgres')", c.Database.Type)
	}
	if c.Database.Type == "sqlite" && c.Database.SQLite.Path == "" {
		return fmt.Errorf("SQLite path not specified")
	}
	if c.Database.Type == "postgres" {
		if c.Database.Postgres.Host == "" || c.Database.Postgres.Database == "" {
			return fmt.Errorf("PostgreSQL host and database must be specified")
		}
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret not configured")
	}
	if c.Crypto.EncryptionKey == "" {
		return fmt.Errorf("PII encryption key not configured")
	}

	if c.Lockout.Threshold < 1 {
		return fmt.Errorf("lockout threshold must be at least 1")
	}
	if c.Lockout.Duration < time.Minute {
		return fmt.Errorf("lockout duration must be at least one minute")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}

// GetDSN returns the database connection string based on the configured type
func (c *Config) GetDSN() string {
	switch c.Database.Type {
	case "sqlite":
		return c.Database.SQLite.Path
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Database.Postgres.Host,
			c.Database.Postgres.Port,
			c.Database.Postgres.User,
			c.Database.Postgres.Password,
			c.Database.Postgres.Database,
			c.Database.Postgres.SSLMode,
		)
	default:
		return ""
	}
}
