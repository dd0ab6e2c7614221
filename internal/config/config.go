// Package config provides configuration loading for the TCGA importer.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Sorter names.
const (
	SorterMerge = "merge"
	SorterExec  = "exec"
)

// Sink names.
const (
	SinkLocal = "local"
	SinkMinIO = "minio"
)

// MinIOConfig holds the object sink settings.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Region    string
	UseSSL    bool
}

// Config holds importer and worker configuration.
type Config struct {
	// Build settings
	WorkDir     string
	OutDir      string
	Mirror      string
	UUIDTable   string
	Sanitize    bool
	KeepWorkDir bool
	Sorter      string
	// SortMemory is the merge sort run budget; zero selects the default.
	SortMemory    int64
	PlatformsFile string

	// Publication settings
	Sink        string
	MinIO       MinIOConfig
	Parquet     bool
	UploadRate  float64
	UploadBurst int

	// Catalog settings
	CatalogURL    string
	CatalogDriver string

	// Worker settings
	TemporalAddress   string
	TemporalNamespace string
	TaskQueue         string
	HealthAddr        string

	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment.
func Load() *Config {
	return &Config{
		WorkDir:       getEnv("TCGA_WORKDIR", os.TempDir()),
		OutDir:        getEnv("TCGA_OUTDIR", "."),
		Mirror:        getEnv("TCGA_MIRROR", ""),
		UUIDTable:     getEnv("TCGA_UUID_TABLE", ""),
		Sanitize:      getEnvBool("TCGA_SANITIZE", false),
		KeepWorkDir:   getEnvBool("TCGA_KEEP_WORKDIR", false),
		Sorter:        getEnv("TCGA_SORTER", SorterMerge),
		SortMemory:    getEnvInt64("TCGA_SORT_MEMORY", 0),
		PlatformsFile: getEnv("TCGA_PLATFORMS_FILE", ""),

		Sink: getEnv("TCGA_SINK", SinkLocal),
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "tcga"),
			Prefix:    getEnv("MINIO_PREFIX", ""),
			Region:    getEnv("MINIO_REGION", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Parquet:     getEnvBool("TCGA_PARQUET", false),
		UploadRate:  getEnvFloat("TCGA_UPLOAD_RATE", 4),
		UploadBurst: getEnvInt("TCGA_UPLOAD_BURST", 1),

		CatalogURL:    getEnv("CATALOG_DATABASE_URL", ""),
		CatalogDriver: getEnv("CATALOG_DRIVER", "pgx"),

		TemporalAddress:   getEnv("TEMPORAL_ADDRESS", "127.0.0.1:7233"),
		TemporalNamespace: getEnv("TEMPORAL_NAMESPACE", "default"),
		TaskQueue:         getEnv("TCGA_TASK_QUEUE", "tcga-import"),
		HealthAddr:        getEnv("TCGA_HEALTH_ADDR", ":9099"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// Validate checks enumerated settings and the settings each choice requires.
func (c *Config) Validate() error {
	switch c.Sorter {
	case SorterMerge, SorterExec:
	default:
		return fmt.Errorf("unknown sorter %q", c.Sorter)
	}
	switch c.Sink {
	case SinkLocal:
	case SinkMinIO:
		if c.MinIO.Endpoint == "" {
			return fmt.Errorf("MINIO_ENDPOINT is required for the %s sink", SinkMinIO)
		}
	default:
		return fmt.Errorf("unknown sink %q", c.Sink)
	}
	switch c.CatalogDriver {
	case "pgx", "postgres":
	default:
		return fmt.Errorf("unknown catalog driver %q", c.CatalogDriver)
	}
	if c.OutDir == "" {
		return fmt.Errorf("output directory is required")
	}
	return nil
}

// NewLogger builds the process logger from LogLevel and LogFormat.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logger.SetLevel(level)
	switch strings.ToLower(c.LogFormat) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return logger, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
