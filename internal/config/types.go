package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Storage  StorageConfig  `json:"storage"`
	Pipeline PipelineConfig `json:"pipeline"`
	Redis    RedisConfig    `json:"redis"`
	Sentry   SentryConfig   `json:"sentry"`
	Log      LogConfig      `json:"log"`
}

// Durations below are read as whole seconds and multiplied by time.Second at use.
type ServerConfig struct {
	Port            int           `json:"port" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// StorageConfig is the S3-compatible bucket the service converts in place.
type StorageConfig struct {
	BucketName     string `json:"bucket_name" validate:"required"`
	Region         string `json:"region" validate:"required"`
	Endpoint       string `json:"endpoint" validate:"omitempty,url"`
	AccessKeyID    string `json:"access_key_id"`
	SecretKey      string `json:"secret_key"`
	UsePathStyle   bool   `json:"use_path_style"`
	MaxConnections int    `json:"max_connections" validate:"gte=1"` // per-host connection cap of the http transport
	PageSize       int32  `json:"page_size" validate:"gte=0,lte=1000"`
}

type PipelineConfig struct {
	Concurrency    int     `json:"concurrency" validate:"gte=1"`     // in-flight conversions per batch
	ConvertWorkers int     `json:"convert_workers" validate:"gte=0"` // parallel decode/encode, 0 = GOMAXPROCS
	PDFDPI         float64 `json:"pdf_dpi" validate:"gt=0"`
	PNGQuality     float32 `json:"png_quality" validate:"gte=0,lte=100"`
	JPEGQuality    float32 `json:"jpeg_quality" validate:"gte=0,lte=100"`
	MaxWidth       int     `json:"max_width" validate:"gte=0"`
	MaxHeight      int     `json:"max_height" validate:"gte=0"`
}

type RedisConfig struct {
	Password            string        `json:"password"`
	DatabaseID          int           `json:"database_id"`
	HealthCheckInterval time.Duration `json:"health_check_interval"`
	DialTimeout         time.Duration `json:"dial_timeout"`
	ReadTimeout         time.Duration `json:"read_timeout"`
	WriteTimeout        time.Duration `json:"write_timeout"`
	PoolSize            int           `json:"pool_size"`
	ListingTTL          time.Duration `json:"listing_ttl"`
	Nodes               []RedisNode   `json:"nodes" validate:"dive"`
}

type RedisNode struct {
	Host string `json:"host" validate:"required"`
	Port int    `json:"port" validate:"gte=1,lte=65535"`
}

func (n RedisNode) Addr() string { return fmt.Sprintf("%s:%d", n.Host, n.Port) }

// Enabled reports whether a redis listing cache should be built.
func (c RedisConfig) Enabled() bool { return len(c.Nodes) > 0 }

type SentryConfig struct {
	SentryDSN   string `json:"sentry_dsn"`
	Environment string `json:"environment"`
}

type LogConfig struct {
	Level  string `json:"level" validate:"omitempty,oneof=debug info warn error"`
	Pretty bool   `json:"pretty"`
}
