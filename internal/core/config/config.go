// Package config reads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/hazard-impact/internal/core/model"
)

type InvalidationCfg struct {
	Enabled bool
	Driver  string
	Topic   string
	Brokers string
	GroupID string
}

type Config struct {
	Addr      string
	LogLevel  string
	LogFormat string
	OutputDir string
	// GeoServerURL is used when a request names no server.
	GeoServerURL string
	// PluginCatalog is an optional HCL file of extra threshold functions.
	PluginCatalog string

	GeotransformRTol float64
	DensityScaling   model.ScalingMode
	H3Res            int

	OWSTimeout        time.Duration
	MetadataRetries   int
	MetadataBackoff   time.Duration
	MetadataCacheSize int
	MetadataCacheTTL  time.Duration
	RedisAddr         string
	RedisDB           int
	CacheOpTimeout    time.Duration
	Invalidation      InvalidationCfg
	MetricsEnabled    bool
	MetricsPath       string
}

// FromEnv reads the configuration. Malformed numbers fall back to defaults;
// values outside their range are clamped.
func FromEnv() Config {
	res := getint("H3_RES", 7)
	if res < 0 {
		res = -1
	}
	if res > 15 {
		res = 15
	}
	rtol := getfloat("GEOTRANSFORM_RTOL", 0.1)
	if rtol <= 0 {
		rtol = 0.1
	}

	return Config{
		Addr:             getenv("ADDR", ":8090"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		LogFormat:        getenv("LOG_FORMAT", "json"),
		OutputDir:        getenv("OUTPUT_DIR", os.TempDir()),
		GeoServerURL:     getenv("GEOSERVER_URL", "http://localhost:8080/geoserver"),
		PluginCatalog:    getenv("PLUGIN_CATALOG", ""),
		GeotransformRTol: rtol,
		DensityScaling:   model.ScalingMode(strings.ToLower(getenv("DENSITY_SCALING", string(model.ScalingAuto)))),
		H3Res:            res,

		OWSTimeout:        getduration("OWS_TIMEOUT", 60*time.Second),
		MetadataRetries:   max(getint("METADATA_RETRY_ATTEMPTS", 4), 1),
		MetadataBackoff:   getduration("METADATA_RETRY_BACKOFF", 300*time.Millisecond),
		MetadataCacheSize: max(getint("METADATA_CACHE_SIZE", 256), 1),
		MetadataCacheTTL:  getduration("METADATA_CACHE_TTL", 5*time.Minute),
		RedisAddr:         getenv("REDIS_ADDR", ""),
		RedisDB:           getint("REDIS_DB", 0),
		CacheOpTimeout:    getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Driver:  getenv("INVALIDATION_DRIVER", "kafka"),
			Topic:   getenv("KAFKA_TOPIC", "layer-updates"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "hazard-impact"),
		},
		MetricsEnabled: getbool("METRICS_ENABLED", true),
		MetricsPath:    getenv("METRICS_PATH", "/metrics"),
	}
}

// Validate rejects settings that cannot be clamped into something usable.
func (c Config) Validate() error {
	if _, err := model.ParseScalingMode(string(c.DensityScaling)); err != nil {
		return fmt.Errorf("DENSITY_SCALING: %w", err)
	}
	if c.Invalidation.Enabled && c.Invalidation.Driver != "kafka" {
		return fmt.Errorf("INVALIDATION_DRIVER: unsupported driver %q", c.Invalidation.Driver)
	}
	if c.Invalidation.Enabled && c.RedisAddr == "" {
		return fmt.Errorf("INVALIDATION_ENABLED needs REDIS_ADDR: without a shared cache there is nothing to invalidate across instances")
	}
	if !strings.HasPrefix(c.MetricsPath, "/") {
		return fmt.Errorf("METRICS_PATH must start with '/'")
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
