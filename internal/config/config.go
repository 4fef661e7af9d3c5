package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all settings, populated from environment variables.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Logging  LoggingConfig
	Ingest   IngestConfig
	Stats    StatsConfig
}

// DatabaseConfig locates the store. DSN wins over the discrete postgres
// fields when set.
type DatabaseConfig struct {
	Driver   string
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// ServerConfig configures the HTTP query service.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type LoggingConfig struct {
	Level string
}

// IngestConfig tunes the ingestion job.
type IngestConfig struct {
	DataDir         string
	Workers         int
	BatchSize       int
	FileTimeout     time.Duration
	JobTimeout      time.Duration
	StationStrategy string
	StationCodes    []string
	StationCode     string
	StationState    string
}

// StatsConfig controls periodic statistics refresh in the server. Zero
// disables it.
type StatsConfig struct {
	RefreshInterval time.Duration
}

const (
	defaultSQLitePath = "weather.db"
	driverSQLite      = "sqlite3"
	driverPostgres    = "postgres"
)

// LoadConfig reads configuration from environment variables, applying
// defaults where unset.
func LoadConfig() (*Config, error) {
	var errs []error
	intVar := func(key string, def int) int {
		n, err := envInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return n
	}
	durVar := func(key string, def time.Duration) time.Duration {
		d, err := envDuration(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Driver:          envOrDefault("DB_DRIVER", driverSQLite),
			DSN:             os.Getenv("DB_DSN"),
			Host:            envOrDefault("DB_HOST", "localhost"),
			Port:            intVar("DB_PORT", 5432),
			User:            envOrDefault("DB_USER", "postgres"),
			Password:        os.Getenv("DB_PASSWORD"),
			Database:        envOrDefault("DB_NAME", "weather"),
			SSLMode:         envOrDefault("DB_SSLMODE", "disable"),
			MaxOpenConns:    intVar("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    intVar("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: durVar("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: durVar("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Server: ServerConfig{
			Host:            envOrDefault("SERVER_HOST", "0.0.0.0"),
			Port:            intVar("SERVER_PORT", 8080),
			ReadTimeout:     durVar("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    durVar("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     durVar("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: durVar("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level: strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
		},
		Ingest: IngestConfig{
			DataDir:         envOrDefault("DATA_DIR", "wx_data"),
			Workers:         intVar("INGEST_WORKERS", 1),
			BatchSize:       intVar("INGEST_BATCH_SIZE", 1000),
			FileTimeout:     durVar("INGEST_FILE_TIMEOUT", 0),
			JobTimeout:      durVar("INGEST_JOB_TIMEOUT", 0),
			StationStrategy: strings.ToLower(envOrDefault("STATION_STRATEGY", "filename")),
			StationCodes:    parseList(os.Getenv("STATION_CODES")),
			StationCode:     os.Getenv("STATION_CODE"),
			StationState:    os.Getenv("STATION_STATE"),
		},
		Stats: StatsConfig{
			RefreshInterval: durVar("STATS_REFRESH_INTERVAL", 0),
		},
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that parse but make no sense.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case driverSQLite, driverPostgres:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (want %s or %s)", c.Database.Driver, driverSQLite, driverPostgres)
	}
	if c.Database.Driver == driverPostgres && c.Database.DSN == "" && c.Database.Host == "" {
		return errors.New("DB_HOST or DB_DSN is required for postgres")
	}
	if c.Database.MaxOpenConns < 1 {
		return errors.New("DB_MAX_OPEN_CONNS must be positive")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid SERVER_PORT %d", c.Server.Port)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error", "fatal":
	default:
		return fmt.Errorf("invalid LOG_LEVEL %q", c.Logging.Level)
	}
	if c.Ingest.Workers < 1 {
		return errors.New("INGEST_WORKERS must be at least 1")
	}
	if c.Ingest.BatchSize < 1 {
		return errors.New("INGEST_BATCH_SIZE must be at least 1")
	}
	if c.Ingest.FileTimeout < 0 || c.Ingest.JobTimeout < 0 {
		return errors.New("ingest timeouts must not be negative")
	}
	switch c.Ingest.StationStrategy {
	case "filename", "hashed":
	case "fixed":
		if c.Ingest.StationCode == "" {
			return errors.New("STATION_CODE is required when STATION_STRATEGY is fixed")
		}
	default:
		return fmt.Errorf("unknown STATION_STRATEGY %q", c.Ingest.StationStrategy)
	}
	if c.Stats.RefreshInterval < 0 {
		return errors.New("STATS_REFRESH_INTERVAL must not be negative")
	}
	return nil
}

// ConnectionString returns the DSN handed to the driver. For sqlite3 it is
// a file path; for postgres it is built from the discrete fields unless DSN
// is set.
func (d DatabaseConfig) ConnectionString() string {
	if d.DSN != "" {
		return d.DSN
	}
	if d.Driver != driverPostgres {
		return defaultSQLitePath
	}

	u := url.URL{
		Scheme:   "postgres",
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Database,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	} else if d.User != "" {
		u.User = url.User(d.User)
	}
	return u.String()
}

// Address is the listen address of the HTTP server.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
