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

// MaxLocateTimeout keeps a device-locate response inside the HTTP server's
// 30s write timeout.
const MaxLocateTimeout = 25 * time.Second

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Weather API the dashboard polls.
	WeatherAPIURL   string
	WeatherTimeout  time.Duration
	PollInterval    time.Duration
	FallbackEnabled bool

	// Geocoding configuration.
	GeocoderProvider  string // "nominatim" or "mapbox"
	GeocoderURL       string
	GeocoderUserAgent string
	GeocoderTimeout   time.Duration
	GeocoderCacheSize int
	MapboxToken       string
	SearchRateLimit   int // requests per minute per client IP

	// Device location via GeoIP.
	GeoIPDBPath   string
	GeoIPAddress  string
	LocateTimeout time.Duration

	// Persisted location.
	LocationStore string // "file" or "redis"
	LocationFile  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Dispatch simulation.
	DispatchDelay   time.Duration
	DispatchLogSize int

	// Delivery hook.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaDispatchTopic string
	KafkaShareTopic    string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	var errs []error
	duration := func(key, def string) time.Duration {
		d, err := parsePositiveDuration(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}
	integer := func(key string, def, lo, hi int) int {
		n, err := parseBoundedInt(key, def, lo, hi)
		if err != nil {
			errs = append(errs, err)
		}
		return n
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: duration("SHUTDOWN_TIMEOUT", "10s"),

		WeatherAPIURL:   strings.TrimRight(envOrDefault("WEATHER_API_URL", "http://localhost:3000"), "/"),
		WeatherTimeout:  duration("WEATHER_TIMEOUT", "10s"),
		PollInterval:    duration("POLL_INTERVAL", "5m"),
		FallbackEnabled: envOrDefault("FALLBACK_ENABLED", "true") == "true",

		GeocoderProvider:  strings.ToLower(envOrDefault("GEOCODER_PROVIDER", "nominatim")),
		GeocoderURL:       os.Getenv("GEOCODER_URL"),
		GeocoderUserAgent: envOrDefault("GEOCODER_USER_AGENT", "trace-alert-service/1.0"),
		GeocoderTimeout:   duration("GEOCODER_TIMEOUT", "5s"),
		GeocoderCacheSize: integer("GEOCODER_CACHE_SIZE", 1000, 1, 1_000_000),
		MapboxToken:       os.Getenv("MAPBOX_TOKEN"),
		SearchRateLimit:   integer("SEARCH_RATE_LIMIT", 30, 1, 10_000),

		GeoIPDBPath:   os.Getenv("GEOIP_DB_PATH"),
		GeoIPAddress:  os.Getenv("GEOIP_ADDRESS"),
		LocateTimeout: duration("LOCATE_TIMEOUT", "10s"),

		LocationStore: strings.ToLower(envOrDefault("LOCATION_STORE", "file")),
		LocationFile:  envOrDefault("LOCATION_FILE", "trace-location.json"),
		RedisAddr:     envOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       integer("REDIS_DB", 0, 0, 15),

		DispatchDelay:   duration("DISPATCH_DELAY", "1500ms"),
		DispatchLogSize: integer("DISPATCH_LOG_SIZE", 20, 1, 1000),

		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaDispatchTopic: envOrDefault("KAFKA_DISPATCH_TOPIC", "trace-dispatches"),
		KafkaShareTopic:    envOrDefault("KAFKA_SHARE_TOPIC", "trace-shares"),
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if _, err := url.ParseRequestURI(cfg.WeatherAPIURL); err != nil {
		return nil, fmt.Errorf("invalid WEATHER_API_URL: %w", err)
	}
	switch cfg.GeocoderProvider {
	case "nominatim":
		if cfg.GeocoderURL == "" {
			cfg.GeocoderURL = "https://nominatim.openstreetmap.org/search"
		}
	case "mapbox":
		if cfg.GeocoderURL == "" {
			cfg.GeocoderURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"
		}
		if cfg.MapboxToken == "" {
			return nil, errors.New("GEOCODER_PROVIDER is mapbox but MAPBOX_TOKEN is not set")
		}
	default:
		return nil, fmt.Errorf("invalid GEOCODER_PROVIDER %q", cfg.GeocoderProvider)
	}
	switch cfg.LocationStore {
	case "file":
		if cfg.LocationFile == "" {
			return nil, errors.New("LOCATION_FILE is required")
		}
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, errors.New("REDIS_ADDR is required")
		}
	default:
		return nil, fmt.Errorf("invalid LOCATION_STORE %q", cfg.LocationStore)
	}
	if cfg.LocateTimeout > MaxLocateTimeout {
		return nil, fmt.Errorf("invalid LOCATE_TIMEOUT: must not exceed %s", MaxLocateTimeout)
	}
	if cfg.GeoIPDBPath != "" && cfg.GeoIPAddress == "" {
		return nil, errors.New("GEOIP_DB_PATH is set but GEOIP_ADDRESS is not")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaDispatchTopic == "" || cfg.KafkaShareTopic == "" {
			return nil, errors.New("KAFKA_DISPATCH_TOPIC and KAFKA_SHARE_TOPIC are required")
		}
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseBoundedInt(key string, def, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be between %d and %d", key, lo, hi)
	}
	return n, nil
}

func parseBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
