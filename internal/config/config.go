package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheSQLite = "sqlite"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration

	// Vegetation index API configuration. The service falls back to
	// synthetic observations when NDVIEnabled is false.
	NDVIAPIURL   string
	NDVIAPIToken string
	NDVIEnabled  bool
	NDVITimeout  time.Duration

	CacheBackend    string
	CacheSize       int
	CacheSQLitePath string

	RefreshInterval time.Duration
	RefreshWindow   time.Duration

	BatchConcurrency int
	MaxBatchPoints   int

	DefaultLat            float64
	DefaultLon            float64
	ForecastHistoryMonths int
	PhenologyCatalog      string

	// Report publishing is disabled when KafkaBrokers is empty.
	KafkaBrokers []string
	KafkaTopic   string

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is read first if present;
// it never overrides variables already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:         sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:  shutdownTimeout,
		NDVIAPIURL:       strings.TrimRight(os.Getenv("NDVI_API_URL"), "/"),
		NDVIAPIToken:     os.Getenv("NDVI_API_TOKEN"),
		CacheBackend:     strings.ToLower(sharedcfg.EnvOrDefault("CACHE_BACKEND", CacheMemory)),
		CacheSQLitePath:  sharedcfg.EnvOrDefault("CACHE_SQLITE_PATH", "bloom-cache.db"),
		PhenologyCatalog: os.Getenv("PHENOLOGY_CATALOG"),
		KafkaTopic:       sharedcfg.EnvOrDefault("KAFKA_TOPIC", "bloom-reports"),
	}

	durations := []struct {
		name string
		def  string
		dst  *time.Duration
	}{
		{"REQUEST_TIMEOUT", "8s", &cfg.RequestTimeout},
		{"NDVI_TIMEOUT", "5s", &cfg.NDVITimeout},
		{"REFRESH_INTERVAL", "1h", &cfg.RefreshInterval},
		{"REFRESH_WINDOW", "24h", &cfg.RefreshWindow},
	}
	for _, d := range durations {
		if *d.dst, err = parseDuration(d.name, d.def); err != nil {
			return nil, err
		}
	}

	ints := []struct {
		name string
		def  int
		dst  *int
	}{
		{"CACHE_SIZE", 1000, &cfg.CacheSize},
		{"BATCH_CONCURRENCY", 8, &cfg.BatchConcurrency},
		{"MAX_BATCH_POINTS", 100, &cfg.MaxBatchPoints},
		{"FORECAST_HISTORY_MONTHS", 36, &cfg.ForecastHistoryMonths},
	}
	for _, n := range ints {
		if *n.dst, err = parsePositiveInt(n.name, n.def); err != nil {
			return nil, err
		}
	}

	if cfg.DefaultLat, err = parseCoordinate("DEFAULT_LAT", 40.7128, 90); err != nil {
		return nil, err
	}
	if cfg.DefaultLon, err = parseCoordinate("DEFAULT_LON", -74.0060, 180); err != nil {
		return nil, err
	}

	credentials := cfg.NDVIAPIURL != "" && cfg.NDVIAPIToken != ""
	cfg.NDVIEnabled = credentials
	if v := os.Getenv("NDVI_ENABLED"); v != "" {
		cfg.NDVIEnabled = v == "true" && credentials
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.CORSAllowedOrigins = splitList(origins)
	} else {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	switch cfg.CacheBackend {
	case CacheMemory:
	case CacheSQLite:
		if cfg.CacheSQLitePath == "" {
			return nil, errors.New("CACHE_SQLITE_PATH is required when CACHE_BACKEND is sqlite")
		}
	default:
		return nil, fmt.Errorf("invalid CACHE_BACKEND %q (want memory or sqlite)", cfg.CacheBackend)
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// PublishingEnabled reports whether bloom reports are written to Kafka.
func (c *Config) PublishingEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func parseDuration(name, def string) (time.Duration, error) {
	s := sharedcfg.EnvOrDefault(name, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, s)
	}
	return d, nil
}

func parsePositiveInt(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, s)
	}
	return n, nil
}

func parseCoordinate(name string, def, limit float64) (float64, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.Abs(v) > limit {
		return 0, fmt.Errorf("invalid %s: %q", name, s)
	}
	return v, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
