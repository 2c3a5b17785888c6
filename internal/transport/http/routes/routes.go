package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/marketplace-auth/internal/core/domain"
	"github.com/arklim/marketplace-auth/internal/infra/config"
	"github.com/arklim/marketplace-auth/internal/transport/http/handlers"
	"github.com/arklim/marketplace-auth/internal/transport/http/middleware"
	"github.com/arklim/marketplace-auth/internal/usecase"
)

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config *config.AppConfig
	Logger *zap.Logger
	Auth   *usecase.AuthService
	// Keys is optional; /.well-known/jwks.json is only served when set.
	Keys     handlers.KeySetSource
	Database DatabaseChecker
	Cache    CacheChecker
	// Registry defaults to the global Prometheus registry.
	Registry *prometheus.Registry
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) (*gin.Engine, error) {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	metricsOpts := middleware.HTTPMetricsOptions{}
	metricsHandler := promhttp.Handler()
	if deps.Registry != nil {
		metricsOpts.Registerer = deps.Registry
		metricsHandler = promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})
	}
	httpMetrics, err := middleware.NewHTTPMetrics(metricsOpts)
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(httpMetrics.Handler())
	r.Use(middleware.CORS(deps.Config.CORS.AllowedOrigins))

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(metricsHandler))

	if deps.Keys != nil {
		r.GET("/.well-known/jwks.json", handlers.NewJWKSHandler(deps.Keys).Keys)
	}

	if deps.Auth == nil {
		return r, nil
	}

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		for _, kind := range domain.AccountKinds {
			handlers.NewAuthHandler(deps.Auth, kind).RegisterRoutes(authGroup.Group("/" + kind.String()))
		}

		api.GET("/secure/verified-ping",
			middleware.RequireAuth(deps.Auth, ""),
			middleware.RequireVerified(),
			handlers.VerifiedPing,
		)

		if key := deps.Config.Auth.AdminAPIKey; key != "" {
			adminGroup := api.Group("/admin/accounts")
			adminGroup.Use(middleware.RequireAdminKey(key))
			handlers.NewApprovalHandler(deps.Auth).RegisterRoutes(adminGroup)
		}
	}

	return r, nil
}
