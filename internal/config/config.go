package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DefaultPort           = 8080
	DefaultRegion         = "us-east-1"
	DefaultMaxConnections = 100
	DefaultConcurrency    = 100
	DefaultPDFDPI         = 300
	DefaultPNGQuality     = 100
	DefaultJPEGQuality    = 75
)

// Create new config instance with defaults applied
func NewConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            DefaultPort,
			ReadTimeout:     15,
			WriteTimeout:    300,
			ShutdownTimeout: 30,
		},
		Storage: StorageConfig{
			Region:         DefaultRegion,
			MaxConnections: DefaultMaxConnections,
		},
		Pipeline: PipelineConfig{
			Concurrency: DefaultConcurrency,
			PDFDPI:      DefaultPDFDPI,
			PNGQuality:  DefaultPNGQuality,
			JPEGQuality: DefaultJPEGQuality,
		},
		Redis: RedisConfig{
			HealthCheckInterval: 30,
			DialTimeout:         5,
			ReadTimeout:         3,
			WriteTimeout:        3,
			PoolSize:            20,
			ListingTTL:          30,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load configuration file in json format
func (c *Config) Read(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", file, err)
	}
	return nil
}

// Load reads file (a missing file is not an error), applies environment
// overrides from the process and an optional .env, then validates.
func Load(file string) (*Config, error) {
	_ = godotenv.Load()

	cfg := NewConfig()
	if file != "" {
		if err := cfg.Read(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Storage.BucketName, "S3_BUCKET")
	setString(&c.Storage.Region, "S3_REGION")
	setString(&c.Storage.Endpoint, "S3_ENDPOINT")
	setString(&c.Storage.AccessKeyID, "S3_ACCESS_KEY_ID")
	setString(&c.Storage.SecretKey, "S3_SECRET_ACCESS_KEY")
	setString(&c.Sentry.SentryDSN, "SENTRY_DSN")
	setString(&c.Sentry.Environment, "SENTRY_ENVIRONMENT")
	setString(&c.Log.Level, "LOG_LEVEL")

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("CONVERT_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CONVERT_CONCURRENCY %q: %w", v, err)
		}
		c.Pipeline.Concurrency = n
	}
	return nil
}

func setString(dst *string, env string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		*dst = v
	}
}

func (c *Config) Validate() error {
	v := validator.New()
	v.RegisterStructValidation(validateRedis, RedisConfig{})

	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// validateRedis requires a positive health check interval once nodes are set;
// the health loop ticks on it.
func validateRedis(sl validator.StructLevel) {
	rc := sl.Current().Interface().(RedisConfig)
	if rc.Enabled() && rc.HealthCheckInterval < 1 {
		sl.ReportError(rc.HealthCheckInterval, "HealthCheckInterval", "HealthCheckInterval", "gte", "1")
	}
}
