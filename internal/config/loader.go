package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "taskdealer.yaml"

// CLIFlags holds command-line overrides. Nil fields were not set.
type CLIFlags struct {
	ConfigPath *string
	Port       *string
	LogLevel   *string
	DSN        *string
	NatsURL    *string
	Driver     *string
}

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// LoadWithCLI applies defaults < YAML < ENV < CLI flags and returns the
// config together with the YAML path that was consulted.
func LoadWithCLI(flags CLIFlags) (*Config, string, error) {
	path := DefaultConfigFile
	if flags.ConfigPath != nil {
		path = *flags.ConfigPath
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, path); err != nil {
		return nil, "", fmt.Errorf("config yaml: %w", err)
	}
	loadEnv(&cfg)
	applyCLI(&cfg, flags)

	if err := validate(&cfg); err != nil {
		return nil, "", fmt.Errorf("config validate: %w", err)
	}
	return &cfg, path, nil
}

// ParseFlags parses server command-line flags. Only flags that were given
// are set in the result.
func ParseFlags(args []string) (CLIFlags, error) {
	fs := flag.NewFlagSet("taskdealer", flag.ContinueOnError)

	var configPath, port, logLevel, dsn, natsURL, driver string
	fs.StringVar(&configPath, "config", "", "path to YAML config file")
	fs.StringVar(&configPath, "c", "", "path to YAML config file (shorthand)")
	fs.StringVar(&port, "port", "", "HTTP listen port")
	fs.StringVar(&port, "p", "", "HTTP listen port (shorthand)")
	fs.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&dsn, "dsn", "", "PostgreSQL DSN")
	fs.StringVar(&natsURL, "nats-url", "", "NATS server URL")
	fs.StringVar(&driver, "storage", "", "storage driver (postgres, mongo)")

	if err := fs.Parse(args); err != nil {
		return CLIFlags{}, err
	}

	var out CLIFlags
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config", "c":
			out.ConfigPath = &configPath
		case "port", "p":
			out.Port = &port
		case "log-level":
			out.LogLevel = &logLevel
		case "dsn":
			out.DSN = &dsn
		case "nats-url":
			out.NatsURL = &natsURL
		case "storage":
			out.Driver = &driver
		}
	})
	return out, nil
}

// applyCLI overlays set flags onto cfg.
func applyCLI(cfg *Config, flags CLIFlags) {
	if flags.Port != nil {
		cfg.Server.Port = *flags.Port
	}
	if flags.LogLevel != nil {
		cfg.Logging.Level = *flags.LogLevel
	}
	if flags.DSN != nil {
		cfg.Postgres.DSN = *flags.DSN
	}
	if flags.NatsURL != nil {
		cfg.NATS.URL = *flags.NatsURL
	}
	if flags.Driver != nil {
		cfg.Storage.Driver = *flags.Driver
	}
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "TASKDEALER_PORT")
	setString(&cfg.Server.CORSOrigin, "TASKDEALER_CORS_ORIGIN")
	setString(&cfg.Storage.Driver, "TASKDEALER_STORAGE_DRIVER")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "TASKDEALER_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "TASKDEALER_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "TASKDEALER_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "TASKDEALER_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "TASKDEALER_PG_HEALTH_CHECK")

	setString(&cfg.Mongo.URI, "MONGODB_URI")
	setString(&cfg.Mongo.Database, "TASKDEALER_MONGO_DATABASE")
	setBool(&cfg.Mongo.Transactions, "TASKDEALER_MONGO_TRANSACTIONS")
	setDuration(&cfg.Mongo.Timeout, "TASKDEALER_MONGO_TIMEOUT")

	setString(&cfg.NATS.URL, "NATS_URL")

	// Cache
	setInt64(&cfg.Cache.L1MaxSizeMB, "TASKDEALER_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.L1TTL, "TASKDEALER_CACHE_L1_TTL")
	setString(&cfg.Cache.L2Backend, "TASKDEALER_CACHE_L2_BACKEND")
	setString(&cfg.Cache.L2Bucket, "TASKDEALER_CACHE_L2_BUCKET")
	setDuration(&cfg.Cache.L2TTL, "TASKDEALER_CACHE_L2_TTL")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")

	// Upload
	setString(&cfg.Upload.Dir, "TASKDEALER_UPLOAD_DIR")
	setInt64(&cfg.Upload.MaxBytes, "TASKDEALER_UPLOAD_MAX_BYTES")

	setString(&cfg.Logging.Level, "TASKDEALER_LOG_LEVEL")
	setString(&cfg.Logging.Service, "TASKDEALER_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "TASKDEALER_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "TASKDEALER_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "TASKDEALER_BREAKER_TIMEOUT")
	setFloat64(&cfg.Rate.RequestsPerSecond, "TASKDEALER_RATE_RPS")
	setInt(&cfg.Rate.Burst, "TASKDEALER_RATE_BURST")

	// Idempotency
	setString(&cfg.Idempotency.Bucket, "TASKDEALER_IDEMPOTENCY_BUCKET")
	setDuration(&cfg.Idempotency.TTL, "TASKDEALER_IDEMPOTENCY_TTL")

	// OpenTelemetry
	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.OTEL.Insecure, "TASKDEALER_OTEL_INSECURE")
	setString(&cfg.OTEL.ServiceName, "OTEL_SERVICE_NAME")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	switch cfg.Storage.Driver {
	case DriverPostgres:
		if cfg.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
		if cfg.Postgres.MaxConns < 1 {
			return errors.New("postgres.max_conns must be >= 1")
		}
	case DriverMongo:
		if cfg.Mongo.URI == "" {
			return errors.New("mongo.uri is required")
		}
		if cfg.Mongo.Database == "" {
			return errors.New("mongo.database is required")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", cfg.Storage.Driver)
	}
	switch cfg.Cache.L2Backend {
	case L2None:
	case L2NATS, L2Redis:
		// Snapshot invalidations travel over NATS.
		if cfg.NATS.URL == "" {
			return fmt.Errorf("cache.l2_backend %s requires nats.url", cfg.Cache.L2Backend)
		}
	default:
		return fmt.Errorf("cache.l2_backend %q is not supported", cfg.Cache.L2Backend)
	}
	if cfg.Upload.Dir == "" {
		return errors.New("upload.dir is required")
	}
	if cfg.Upload.MaxBytes < 1 {
		return errors.New("upload.max_bytes must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
