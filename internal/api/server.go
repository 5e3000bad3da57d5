package api

import (
	"context"
	"time"

	"draftlab/analytics/internal/aggregator"
	"draftlab/analytics/internal/cache"
	"draftlab/analytics/internal/query"
	"draftlab/analytics/internal/trends"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker reports backing store health
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Runner runs aggregations on demand
type Runner interface {
	Run(ctx context.Context) (*aggregator.Result, error)
	RunIncremental(ctx context.Context) (*aggregator.Result, error)
}

// Server holds the services behind the HTTP routes
type Server struct {
	Query      *query.Service
	Analytics  *cache.AnalyticsCache
	Trends     *trends.Service
	Aggregator Runner
	// Health may be nil when the store has nothing to check
	Health    HealthChecker
	JWTSecret string
}

// App builds the fiber application
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "draftlab-analytics",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
		ReadTimeout:           30 * time.Second,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(Metrics())

	app.Get("/health", s.health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")
	api.Post("/query/:collection", s.runQuery)
	api.Get("/analytics", s.analytics)
	api.Post("/analytics", s.analytics)
	api.Get("/trends", s.playerTrends)

	admin := app.Group("/admin", RequireAdmin(s.JWTSecret))
	admin.Post("/aggregate", s.aggregate)
	admin.Get("/index-requests", s.indexRequests)
	admin.Post("/indexes", s.createIndex)

	return app
}
