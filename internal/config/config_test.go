package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validConfig = `
server:
  port: 8080
  host: 0.0.0.0
database:
  type: sqlite
  sqlite:
    path: ./visatrack.db
jwt:
  secret: test-jwt-secret
  expiration: 12h
crypto:
  encryption_key: test-encryption-secret
logging:
  level: info
`

func TestLoad(t *testing.T) {
	t.Run("Valid config file", func(t *testing.T) {
		path := writeConfigFile(t, validConfig)

		cfg, err := Load(path, nil)
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "sqlite", cfg.Database.Type)
		assert.Equal(t, "./visatrack.db", cfg.Database.SQLite.Path)
		assert.Equal(t, "test-jwt-secret", cfg.JWT.Secret)
		assert.Equal(t, 12*time.Hour, cfg.JWT.Expiration)
		assert.Equal(t, "test-encryption-secret", cfg.Crypto.EncryptionKey)
	})

	t.Run("Missing file returns error", func(t *testing.T) {
		_, err := Load("/nonexistent/config.yaml", nil)
		assert.Error(t, err)
	})

	t.Run("Invalid YAML returns error", func(t *testing.T) {
		path := writeConfigFile(t, "server: [not: valid")
		_, err := Load(path, nil)
		assert.Error(t, err)
	})

	t.Run("Defaults are applied", func(t *testing.T) {
		path := writeConfigFile(t, `
database:
  type: sqlite
  sqlite:
    path: ./test.db
jwt:
  secret: s
crypto:
  encryption_key: k
`)
		cfg, err := Load(path, nil)
		require.NoError(t, err)

		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 24*time.Hour, cfg.JWT.Expiration)
		assert.Equal(t, "visatrack", cfg.JWT.Issuer)
		assert.Equal(t, 5, cfg.Lockout.Threshold)
		assert.Equal(t, 30*time.Minute, cfg.Lockout.Duration)
		assert.Equal(t, 24*time.Hour, cfg.CSRF.TokenTTL)
		assert.Equal(t, time.Hour, cfg.CSRF.SweepInterval)
		assert.Equal(t, "info", cfg.Logging.Level)
	})

	t.Run("Environment variables override file", func(t *testing.T) {
		t.Setenv("VISATRACK_SERVER_PORT", "9090")
		t.Setenv("VISATRACK_JWT_SECRET", "env-secret")
		t.Setenv("VISATRACK_LOCKOUT_THRESHOLD", "3")
		t.Setenv("VISATRACK_LOCKOUT_DURATION", "10m")

		path := writeConfigFile(t, validConfig)
		cfg, err := Load(path, nil)
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "env-secret", cfg.JWT.Secret)
		assert.Equal(t, 3, cfg.Lockout.Threshold)
		assert.Equal(t, 10*time.Minute, cfg.Lockout.Duration)
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 8080},
			Database: DatabaseConfig{
				Type:   "sqlite",
				SQLite: SQLiteConfig{Path: "./test.db"},
			},
			JWT:     JWTConfig{Secret: "secret", Expiration: time.Hour},
			Crypto:  CryptoConfig{EncryptionKey: "key"},
			Lockout: LockoutConfig{Threshold: 5, Duration: 30 * time.Minute},
			Logging: LoggingConfig{Level: "info"},
		}
	}

	t.Run("Valid configuration", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("Invalid port", func(t *testing.T) {
		cfg := base()
		cfg.Server.Port = 70000
		assert.Error(t, cfg.Validate())
	})

	t.Run("Unknown database type", func(t *testing.T) {
		cfg := base()
		cfg.Database.Type = "mongodb"
		assert.Error(t, cfg.Validate())
	})

	t.Run("SQLite requires path", func(t *testing.T) {
		cfg := base()
		cfg.Database.SQLite.Path = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("Postgres requires host and database", func(t *testing.T) {
		cfg := base()
		cfg.Database.Type = "postgres"
		assert.Error(t, cfg.Validate())
	})

	t.Run("Missing JWT secret is fatal", func(t *testing.T) {
		cfg := base()
		cfg.JWT.Secret = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JWT secret")
	})

	t.Run("Missing encryption key is fatal", func(t *testing.T) {
		cfg := base()
		cfg.Crypto.EncryptionKey = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "encryption key")
	})

	t.Run("Lockout bounds", func(t *testing.T) {
		cfg := base()
		cfg.Lockout.Threshold = 0
		assert.Error(t, cfg.Validate())

		cfg = base()
		cfg.Lockout.Duration = time.Second
		assert.Error(t, cfg.Validate())
	})

	t.Run("Invalid log level", func(t *testing.T) {
		cfg := base()
		cfg.Logging.Level = "verbose"
		assert.Error(t, cfg.Validate())
	})
}

func TestGetDSN(t *testing.T) {
	t.Run("SQLite DSN is the file path", func(t *testing.T) {
		cfg := &Config{Database: DatabaseConfig{
			Type:   "sqlite",
			SQLite: SQLiteConfig{Path: "/var/lib/visatrack/app.db"},
		}}
		assert.Equal(t, "/var/lib/visatrack/app.db", cfg.GetDSN())
	})

	t.Run("Postgres DSN includes all parts", func(t *testing.T) {
		cfg := &Config{Database: DatabaseConfig{
			Type: "postgres",
			Postgres: PostgresConfig{
				Host:     "db.example.com",
				Port:     5432,
				Database: "visatrack",
				User:     "app",
				Password: "pw",
				SSLMode:  "require",
			},
		}}
		dsn := cfg.GetDSN()
		assert.Contains(t, dsn, "host=db.example.com")
		assert.Contains(t, dsn, "port=5432")
		assert.Contains(t, dsn, "dbname=visatrack")
		assert.Contains(t, dsn, "sslmode=require")
	})

	t.Run("Unknown type yields empty DSN", func(t *testing.T) {
		cfg := &Config{Database: DatabaseConfig{Type: "other"}}
		assert.Equal(t, "", cfg.GetDSN())
	})
}
