// Package bootstrap wires configuration into the services shared by the
// worker, the API server and the operator CLI.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"draftlab/analytics/internal/aggregator"
	"draftlab/analytics/internal/cache"
	"draftlab/analytics/internal/config"
	"draftlab/analytics/internal/notify"
	"draftlab/analytics/internal/query"
	"draftlab/analytics/internal/repository"
	"draftlab/analytics/internal/store"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// aggregationLockKey is shared by every process that runs aggregations
const aggregationLockKey = "lock:aggregation"

// SetupLogger configures the zerolog logger
func SetupLogger(cfg *config.Config) {
	// Pretty console logging in development
	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	lvl := zerolog.InfoLevel
	if cfg.LogLevel != "" {
		if parsed, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
			lvl = parsed
		}
	}
	zerolog.SetGlobalLevel(lvl)

	log.Info().
		Str("level", lvl.String()).
		Msg("Logger initialized")
}

// Services holds the connections a process needs
type Services struct {
	Config   *config.Config
	Store    store.Store
	Notifier notify.Notifier

	// DB is nil with the memory store driver
	DB *repository.Database
	// Redis is nil when disabled or unreachable
	Redis *cache.RedisCache
}

// Open connects the store, Redis (when enabled) and the alert notifier
func Open(ctx context.Context, cfg *config.Config) (*Services, error) {
	svc := &Services{Config: cfg, Notifier: notify.Log{}}

	switch cfg.StoreDriver {
	case "memory":
		var opts []store.MemoryOption
		if cfg.RequireIndexes {
			opts = append(opts, store.WithRequiredIndexes(cfg.PublicBaseURL))
		}
		svc.Store = store.NewMemory(opts...)
		log.Warn().Msg("Using in-memory document store, data is not persisted")

	default:
		db, err := repository.NewDatabase(ctx, repository.Config{
			DSN:            cfg.DatabaseDSN(),
			MaxConns:       cfg.DatabaseMaxConns,
			RequireIndexes: cfg.RequireIndexes,
			PublicBaseURL:  cfg.PublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		svc.DB = db
		svc.Store = db.Store()
		log.Info().Msg("Database connection established")
	}

	if cfg.RedisEnabled {
		redisCache, err := cache.NewRedisCache(cache.Config{
			Addr:     cfg.RedisAddr(),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to Redis - continuing without cache")
		} else {
			svc.Redis = redisCache
			log.Info().Msg("Redis cache connected")
		}
	}

	if cfg.AlertsEnabled() {
		svc.Notifier = notify.NewEmail(cfg.SendGridAPIKey, cfg.AlertEmailFrom, cfg.AlertEmailTo)
		log.Info().Str("to", cfg.AlertEmailTo).Msg("Email alerts enabled")
	}

	return svc, nil
}

// Close releases connections
func (s *Services) Close() {
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis")
		}
	}
	if s.DB != nil {
		s.DB.Close()
	}
}

// Health checks the database and Redis
func (s *Services) Health(ctx context.Context) error {
	if s.DB != nil {
		if err := s.DB.Health(ctx); err != nil {
			return err
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Health(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Aggregator builds the aggregator; with Redis the run lock spans processes
func (s *Services) Aggregator() *aggregator.Aggregator {
	opts := []aggregator.Option{
		aggregator.WithPageSize(s.Config.AggregationPageSize),
		aggregator.WithBatchSize(s.Config.BatchWriteSize),
		aggregator.WithNotifier(s.Notifier),
	}
	if s.Redis != nil {
		opts = append(opts, aggregator.WithLocker(aggregator.NewRedisLocker(s.Redis, aggregationLockKey, aggregator.DefaultLockTTL)))
	}
	return aggregator.New(s.Store, opts...)
}

// QueryService builds the collection query service
func (s *Services) QueryService() *query.Service {
	opts := []query.Option{query.WithNotifier(s.Notifier)}
	if s.Redis != nil && s.Config.QueryCacheTTL > 0 {
		opts = append(opts, query.WithPageCache(s.Redis))
	}
	return query.NewService(s.Store, query.Config{
		Collections:  s.Config.QueryCollections,
		DefaultLimit: s.Config.QueryDefaultLimit,
		MaxLimit:     s.Config.QueryMaxLimit,
		CacheTTL:     s.Config.QueryCacheTTL,
	}, opts...)
}

// MetricsHandler serves Prometheus metrics and a health probe
func (s *Services) MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := s.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	return mux
}

// StartMetricsServer serves MetricsHandler on port until ctx is done
func (s *Services) StartMetricsServer(ctx context.Context, port int) {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Int("port", port).Msg("Starting metrics server")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Metrics server failed")
	}
}
