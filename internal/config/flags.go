package config

import (
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"
)

// Flags holds all command line flag values
type Flags struct {
	// General
	configFile *string
	version    *bool

	// Server
	serverPort         *int
	serverHost         *string
	serverReadTimeout  *string
	serverWriteTimeout *string

	// Database
	dbType                 *string
	dbSQLitePath           *string
	dbPostgresHost         *string
	dbPostgresPort         *int
	dbPostgresDatabase     *string
	dbPostgresUser         *string
	dbPostgresPassword     *string
	dbPostgresSSLMode      *string
	dbPostgresMaxOpenConns *int
	dbPostgresMaxIdleConns *int

	// JWT
	jwtSecret     *string
	jwtExpiration *string
	jwtIssuer     *string

	// Crypto
	cryptoEncryptionKey *string

	// Lockout
	lockoutThreshold *int
	lockoutDuration  *string

	// Logging
	logLevel  *string
	logFormat *string

	// Security
	securityCORSEnabled *bool
	securityCORSOrigins *[]string
}

// ParseFlags defines and parses all command line flags
func ParseFlags() (*Flags, string, bool) {
	f := &Flags{}

	// General flags
	f.configFile = flag.StringP("config", "c", "config.yaml", "Path to configuration file")
	f.version = flag.BoolP("version", "v", false, "Print version and exit")

	// Server flags
	f.serverPort = flag.Int("server.port", 0, "HTTP server port")
	f.serverHost = flag.String("server.host", "", "HTTP server bind address")
	f.serverReadTimeout = flag.String("server.read-timeout", "", "Server read timeout (e.g., 30s)")
	f.serverWriteTimeout = flag.String("server.write-timeout", "", "Server write timeout (e.g., 30s)")

	// Database flags
	f.dbType = flag.String("db.type", "", "Database type (sqlite or postgres)")
	f.dbSQLitePath = flag.String("db.sqlite.path", "", "SQLite database file path")
	f.dbPostgresHost = flag.String("db.postgres.host", "", "PostgreSQL host")
	f.dbPostgresPort = flag.Int("db.postgres.port", 0, "PostgreSQL port")
	f.dbPostgresDatabase = flag.String("db.postgres.database", "", "PostgreSQL database name")
	f.dbPostgresUser = flag.String("db.postgres.user", "", "PostgreSQL user")
	f.dbPostgresPassword = flag.String("db.postgres.password", "", "PostgreSQL password")
	f.dbPostgresSSLMode = flag.String("db.postgres.ssl-mode", "", "PostgreSQL SSL mode")
	f.dbPostgresMaxOpenConns = flag.Int("db.postgres.max-open-conns", 0, "PostgreSQL max open connections")
	f.dbPostgresMaxIdleConns = flag.Int("db.postgres.max-idle-conns", 0, "PostgreSQL max idle connections")

	// JWT flags
	f.jwtSecret = flag.String("jwt.secret", "", "JWT secret key")
	f.jwtExpiration = flag.String("jwt.expiration", "", "JWT expiration duration (e.g., 24h)")
	f.jwtIssuer = flag.String("jwt.issuer", "", "JWT issuer")

	// Crypto flags
	f.cryptoEncryptionKey = flag.String("crypto.encryption-key", "", "Secret used to derive the PII field encryption key")

	// Lockout flags
	f.lockoutThreshold = flag.Int("lockout.threshold", 0, "Failed login attempts before an account locks")
	f.lockoutDuration = flag.String("lockout.duration", "", "How long a locked account stays locked (e.g., 30m)")

	// Logging flags
	f.logLevel = flag.StringP("log.level", "l", "", "Log level (debug, info, warn, error)")
	f.logFormat = flag.String("log.format", "", "Log format (json or console)")

	// Security flags
	f.securityCORSEnabled = flag.Bool("security.cors-enabled", false, "Enable CORS")
	f.securityCORSOrigins = flag.StringSlice("security.cors-origins", nil, "CORS allowed origins (can be specified multiple times)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "VisaTrack - A visa application status tracking service\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nConfiguration priority (highest to lowest):\n")
		fmt.Fprintf(os.Stderr, "  1. Command line flags\n")
		fmt.Fprintf(os.Stderr, "  2. Environment variables (VISATRACK_*)\n")
		fmt.Fprintf(os.Stderr, "  3. Configuration file (default: config.yaml)\n\n")
		fmt.Fprintf(os.Stderr, "Examples:\n")
		fmt.Fprintf(os.Stderr, "  # Start with custom config file\n")
		fmt.Fprintf(os.Stderr, "  %s --config /etc/visatrack/config.yaml\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # Override port and database type\n")
		fmt.Fprintf(os.Stderr, "  %s --server.port 9000 --db.type postgres\n\n", os.Args[0])
	}

	flag.Parse()

	return f, *f.configFile, *f.version
}

// GetServerPort returns the server port flag value and whether it was set
func (f *Flags) GetServerPort() (int, bool) {
	return *f.serverPort, flag.Lookup("server.port").Changed
}

// GetServerHost returns the server host flag value and whether it was set
func (f *Flags) GetServerHost() (string, bool) {
	return *f.serverHost, flag.Lookup("server.host").Changed
}

// GetServerReadTimeout returns the server read timeout flag value and whether it was set
func (f *Flags) GetServerReadTimeout() (string, bool) {
	return *f.serverReadTimeout, flag.Lookup("server.read-timeout").Changed
}

// GetServerWriteTimeout returns the server write timeout flag value and whether it was set
func (f *Flags) GetServerWriteTimeout() (string, bool) {
	return *f.serverWriteTimeout, flag.Lookup("server.write-timeout").Changed
}

// GetDBType returns the database type flag value and whether it was set
func (f *Flags) GetDBType() (string, bool) {
	return *f.dbType, flag.Lookup("db.type").Changed
}

// GetDBSQLitePath returns the SQLite path flag value and whether it was set
func (f *Flags) GetDBSQLitePath() (string, bool) {
	return *f.dbSQLitePath, flag.Lookup("db.sqlite.path").Changed
}

// GetDBPostgresHost returns the PostgreSQL host flag value and whether it was set
func (f *Flags) GetDBPostgresHost() (string, bool) {
	return *f.dbPostgresHost, flag.Lookup("db.postgres.host").Changed
}

// GetDBPostgresPort returns the PostgreSQL port flag value and whether it was set
func (f *Flags) GetDBPostgresPort() (int, bool) {
	return *f.dbPostgresPort, flag.Lookup("db.postgres.port").Changed
}

// GetDBPostgresDatabase returns the PostgreSQL database flag value and whether it was set
func (f *Flags) GetDBPostgresDatabase() (string, bool) {
	return *f.dbPostgresDatabase, flag.Lookup("db.postgres.database").Changed
}

// GetDBPostgresUser returns the PostgreSQL user flag value and whether it was set
func (f *Flags) GetDBPostgresUser() (string, bool) {
	return *f.dbPostgresUser, flag.Lookup("db.postgres.user").Changed
}

// GetDBPostgresPassword returns the PostgreSQL password flag value and whether it was set
func (f *Flags) GetDBPostgresPassword() (string, bool) {
	return *f.dbPostgresPassword, flag.Lookup("db.postgres.password").Changed
}

// GetDBPostgresSSLMode returns the PostgreSQL SSL mode flag value and whether it was set
func (f *Flags) GetDBPostgresSSLMode() (string, bool) {
	return *f.dbPostgresSSLMode, flag.Lookup("db.postgres.ssl-mode").Changed
}

// GetDBPostgresMaxOpenConns returns the PostgreSQL max open connections flag value and whether it was set
func (f *Flags) GetDBPostgresMaxOpenConns() (int, bool) {
	return *f.dbPostgresMaxOpenConns, flag.Lookup("db.postgres.max-open-conns").Changed
}

// GetDBPostgresMaxIdleConns returns the PostgreSQL max idle connections flag value and whether it was set
func (f *Flags) GetDBPostgresMaxIdleConns() (int, bool) {
	return *f.dbPostgresMaxIdleConns, flag.Lookup("db.postgres.max-idle-conns").Changed
}

// GetJWTSecret returns the JWT secret flag value and whether it was set
func (f *Flags) GetJWTSecret() (string, bool) {
	return *f.jwtSecret, flag.Lookup("jwt.secret").Changed
}

// GetJWTExpiration returns the JWT expiration flag value and whether it was set
func (f *Flags) GetJWTExpiration() (string, bool) {
	return *f.jwtExpiration, flag.Lookup("jwt.expiration").Changed
}

// GetJWTIssuer returns the JWT issuer flag value and whether it was set
func (f *Flags) GetJWTIssuer() (string, bool) {
	return *f.jwtIssuer, flag.Lookup("jwt.issuer").Changed
}

// GetCryptoEncryptionKey returns the encryption key flag value and whether it was set
func (f *Flags) GetCryptoEncryptionKey() (string, bool) {
	return *f.cryptoEncryptionKey, flag.Lookup("crypto.encryption-key").Changed
}

// GetLockoutThreshold returns the lockout threshold flag value and whether it was set
func (f *Flags) GetLockoutThreshold() (int, bool) {
	return *f.lockoutThreshold, flag.Lookup("lockout.threshold").Changed
}

// GetLockoutDuration returns the lockout duration flag value and whether it was set
func (f *Flags) GetLockoutDuration() (string, bool) {
	return *f.lockoutDuration, flag.Lookup("lockout.duration").Changed
}

// GetLogLevel returns the log level flag value and whether it was set
func (f *Flags) GetLogLevel() (string, bool) {
	return *f.logLevel, flag.Lookup("log.level").Changed
}

// GetLogFormat returns the log format flag value and whether it was set
func (f *Flags) GetLogFormat() (string, bool) {
	return *f.logFormat, flag.Lookup("log.format").Changed
}

// GetSecurityCORSEnabled returns the CORS enabled flag value and whether it was set
func (f *Flags) GetSecurityCORSEnabled() (bool, bool) {
	return *f.securityCORSEnabled, flag.Lookup("security.cors-enabled").Changed
}

// GetSecurityCORSOrigins returns the CORS origins flag value and whether it was set
func (f *Flags) GetSecurityCORSOrigins() ([]string, bool) {
	return *f.securityCORSOrigins, flag.Lookup("security.cors-origins").Changed
}

// applyFlagOverrides applies command line flag overrides to the configuration.
// Flags win over both the file and environment variables.
func (c *Config) applyFlagOverrides(f *Flags) {
	if v, set := f.GetServerPort(); set {
		c.Server.Port = v
	}
	if v, set := f.GetServerHost(); set {
		c.Server.Host = v
	}
	if v, set := f.GetServerReadTimeout(); set {
		if d, err := time.ParseDuration(v); err == nil {
			c.Server.ReadTimeout = d
		}
	}
	if v, set := f.GetServerWriteTimeout(); set {
		if d, err := time.ParseDuration(v); err == nil {
			c.Server.WriteTimeout = d
		}
	}

	if v, set := f.GetDBType(); set {
		c.Database.Type = v
	}
	if v, set := f.GetDBSQLitePath(); set {
		c.Database.SQLite.Path = v
	}
	if v, set := f.GetDBPostgresHost(); set {
		c.Database.Postgres.Host = v
	}
	if v, set := f.GetDBPostgresPort(); set {
		c.Database.Postgres.Port = v
	}
	if v, set := f.GetDBPostgresDatabase(); set {
		c.Database.Postgres.Database = v
	}
	if v, set := f.GetDBPostgresUser(); set {
		c.Database.Postgres.User = v
	}
	if v, set := f.GetDBPostgresPassword(); set {
		c.Database.Postgres.Password = v
	}
	if v, set := f.GetDBPostgresSSLMode(); set {
		c.Database.Postgres.SSLMode = v
	}
	if v, set := f.GetDBPostgresMaxOpenConns(); set {
		c.Database.Postgres.MaxOpenConns = v
	}
	if v, set := f.GetDBPostgresMaxIdleConns(); set {
		c.Database.Postgres.MaxIdleConns = v
	}

	if v, set := f.GetJWTSecret(); set {
		c.JWT.Secret = v
	}
	if v, set := f.GetJWTExpiration(); set {
		if d, err := time.ParseDuration(v); err == nil {
			c.JWT.Expiration = d
		}
	}
	if v, set := f.GetJWTIssuer(); set {
		c.JWT.Issuer = v
	}

	if v, set := f.GetCryptoEncryptionKey(); set {
		c.Crypto.EncryptionKey = v
	}

	if v, set := f.GetLockoutThreshold(); set {
		c.Lockout.Threshold = v
	}
	if v, set := f.GetLockoutDuration(); set {
		if d, err := time.ParseDuration(v); err == nil {
			c.Lockout.Duration = d
		}
	}

	if v, set := f.GetLogLevel(); set {
		c.Logging.Level = v
	}
	if v, set := f.GetLogFormat(); set {
		c.Logging.Format = v
	}

	if v, set := f.GetSecurityCORSEnabled(); set {
		c.Security.CORSEnabled = v
	}
	if v, set := f.GetSecurityCORSOrigins(); set {
		c.Security.CORSOrigins = v
	}
}
