package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Archive backends selectable via ARCHIVE_BACKEND.
const (
	ArchiveNone  = "none"
	ArchiveDisk  = "disk"
	ArchiveAzure = "azure"
)

type Config struct {
	Host string
	Port string

	ModelPath         string
	ModelMetadataPath string

	// MaxUploadBytes bounds a single image payload. The request body
	// limiter adds form-encoding overhead on top of this.
	MaxUploadBytes int64

	// DefaultThreshold seeds the threshold store at startup.
	DefaultThreshold float64

	// PixelScale is the divisor applied to 8-bit pixel values during
	// preprocessing. It must match whatever the deployed model was
	// trained against; 255 matches the standard 0-1 normalization.
	PixelScale float64

	RequestTimeout time.Duration

	ArchiveBackend string
	ArchiveDir     string
	ArchiveWorkers int

	AzureAccount   string
	AzureKey       string
	AzureContainer string
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

func LoadFromEnv() (*Config, error) {
	// Set defaults
	cfg := &Config{
		Host:              getEnvOrDefault("HOST", "0.0.0.0"),
		Port:              getEnvOrDefault("PORT", "8080"),
		ModelPath:         getEnvOrDefault("MODEL_PATH", "models/pneumonia_model.onnx"),
		ModelMetadataPath: getEnvOrDefault("MODEL_METADATA_PATH", "models/model_metadata.json"),
		MaxUploadBytes:    parseIntOrDefault("MAX_UPLOAD_BYTES", 16*1024*1024), // 16MiB
		DefaultThreshold:  parseFloatOrDefault("DEFAULT_THRESHOLD", 0.5),
		PixelScale:        parseFloatOrDefault("PIXEL_SCALE", 255),
		RequestTimeout:    parseDurationOrDefault("REQUEST_TIMEOUT", 30*time.Second),
		ArchiveBackend:    getEnvOrDefault("ARCHIVE_BACKEND", ArchiveNone),
		ArchiveDir:        getEnvOrDefault("ARCHIVE_DIR", "uploads"),
		ArchiveWorkers:    int(parseIntOrDefault("ARCHIVE_WORKERS", 2)),
		AzureAccount:      os.Getenv("AZURE_STORAGE_ACCOUNT"),
		AzureKey:          os.Getenv("AZURE_STORAGE_KEY"),
		AzureContainer:    getEnvOrDefault("AZURE_STORAGE_CONTAINER", "xray-uploads"),
	}

	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(cfg.Port))
	if err != nil || p < 1 || p > 65535 {
		return nil, fmt.Errorf("invalid PORT: %q", cfg.Port)
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be > 0 (got %d)", cfg.MaxUploadBytes)
	}
	if cfg.DefaultThreshold < 0 || cfg.DefaultThreshold > 1 {
		return nil, fmt.Errorf("DEFAULT_THRESHOLD must be in [0,1] (got %g)", cfg.DefaultThreshold)
	}
	if cfg.PixelScale <= 0 {
		return nil, fmt.Errorf("PIXEL_SCALE must be > 0 (got %g)", cfg.PixelScale)
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("REQUEST_TIMEOUT must be > 0 (got %s)", cfg.RequestTimeout)
	}
	switch cfg.ArchiveBackend {
	case ArchiveNone, ArchiveDisk:
	case ArchiveAzure:
		if cfg.AzureAccount == "" || cfg.AzureKey == "" {
			return nil, fmt.Errorf("ARCHIVE_BACKEND=azure requires AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY")
		}
	default:
		return nil, fmt.Errorf("invalid ARCHIVE_BACKEND: %q", cfg.ArchiveBackend)
	}
	if cfg.ArchiveWorkers <= 0 {
		cfg.ArchiveWorkers = 1
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
