package main

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/couchcryptid/trace-alert-service/internal/adapter/geocache"
	"github.com/couchcryptid/trace-alert-service/internal/adapter/geoip"
	httpadapter "github.com/couchcryptid/trace-alert-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/trace-alert-service/internal/adapter/kafka"
	"github.com/couchcryptid/trace-alert-service/internal/adapter/mapbox"
	"github.com/couchcryptid/trace-alert-service/internal/adapter/nominatim"
	"github.com/couchcryptid/trace-alert-service/internal/adapter/store"
	"github.com/couchcryptid/trace-alert-service/internal/adapter/weatherapi"
	"github.com/couchcryptid/trace-alert-service/internal/config"
	"github.com/couchcryptid/trace-alert-service/internal/dashboard"
	"github.com/couchcryptid/trace-alert-service/internal/dispatch"
	"github.com/couchcryptid/trace-alert-service/internal/domain"
	"github.com/couchcryptid/trace-alert-service/internal/fetcher"
	"github.com/couchcryptid/trace-alert-service/internal/intake"
	"github.com/couchcryptid/trace-alert-service/internal/location"
	"github.com/couchcryptid/trace-alert-service/internal/observability"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to load .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	var closers []io.Closer

	// Geocoder: Nominatim by default, Mapbox when configured. Both are cached.
	var geocoder domain.Geocoder
	switch cfg.GeocoderProvider {
	case "mapbox":
		geocoder = mapbox.NewClient(cfg.MapboxToken, cfg.GeocoderURL, cfg.GeocoderTimeout, metrics, logger)
	default:
		geocoder = nominatim.NewClient(cfg.GeocoderURL, cfg.GeocoderUserAgent, cfg.GeocoderTimeout, metrics, logger)
	}
	geocoder = geocache.NewCachedGeocoder(geocoder, cfg.GeocoderCacheSize, metrics)
	logger.Info("geocoding enabled", "provider", cfg.GeocoderProvider, "cache_size", cfg.GeocoderCacheSize)

	// Device location is only available with a GeoIP database.
	var locator domain.DeviceLocator
	if cfg.GeoIPDBPath != "" {
		l, err := geoip.Open(cfg.GeoIPDBPath, cfg.GeoIPAddress)
		if err != nil {
			logger.Error("failed to open geoip database", "error", err)
			os.Exit(1)
		}
		locator = l
		closers = append(closers, l)
		logger.Info("device location enabled", "address", cfg.GeoIPAddress)
	} else {
		logger.Info("device location disabled")
	}

	var (
		locationStore domain.LocationStore
		storagePing   dashboard.StoragePinger
	)
	switch cfg.LocationStore {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		closers = append(closers, client)
		redisStore := store.NewRedisStore(client)
		locationStore, storagePing = redisStore, redisStore
	default:
		locationStore = store.NewFileStore(cfg.LocationFile)
	}
	logger.Info("location store", "backend", cfg.LocationStore)

	// Delivery hook and share mechanism.
	dispatchOpts := dispatch.Options{
		Capacity: cfg.DispatchLogSize,
		Delay:    cfg.DispatchDelay,
		Clock:    clock,
		Metrics:  metrics,
		Logger:   logger,
	}
	if cfg.KafkaEnabled {
		publisher := kafkaadapter.NewPublisher(cfg, clock, logger)
		dispatchOpts.Sink = publisher
		dispatchOpts.Sharer = publisher
		closers = append(closers, publisher)
		logger.Info("kafka delivery enabled", "brokers", cfg.KafkaBrokers,
			"dispatch_topic", cfg.KafkaDispatchTopic, "share_topic", cfg.KafkaShareTopic)
	} else {
		logger.Info("kafka delivery disabled")
	}

	dispatcher := dispatch.New(dispatchOpts)
	tracker := intake.NewTracker(dispatcher, metrics, logger)
	resolver := location.NewResolver(locator, geocoder, locationStore, clock, cfg.LocateTimeout, metrics, logger)
	source := weatherapi.NewClient(cfg.WeatherAPIURL, cfg.WeatherTimeout, metrics, logger)

	ctrl := dashboard.New(resolver, fetcher.New(source, logger), tracker, dispatcher, dashboard.Options{
		PollInterval:    cfg.PollInterval,
		FallbackEnabled: cfg.FallbackEnabled,
		DeliveryEnabled: cfg.KafkaEnabled,
		Storage:         storagePing,
		Clock:           clock,
		Metrics:         metrics,
		Logger:          logger,
	})

	srv := httpadapter.NewServer(cfg.HTTPAddr, ctrl, cfg.SearchRateLimit, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ctrl.Start(ctx); err != nil {
		// A store outage should not keep the dashboard down; the user can set a location again.
		logger.Warn("could not restore saved location", "error", err)
	}

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	ctrl.Close()
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Error("close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
