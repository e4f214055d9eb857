package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/courtbook/identity-service/internal/infra/config"
	"github.com/courtbook/identity-service/internal/transport/http/handlers"
	"github.com/courtbook/identity-service/internal/transport/http/middleware"
	"github.com/courtbook/identity-service/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth         *usecase.AuthService
	Registration *usecase.RegistrationService
	Verification *usecase.VerificationService
	Passwords    *usecase.PasswordService
	Social       *usecase.SocialLoginService
	Users        *usecase.UserService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config   *config.AppConfig
	Logger   *zap.Logger
	Services ServiceSet
	Metrics  *middleware.HTTPMetrics
	Database DatabaseChecker
	Cache    CacheChecker
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
func Register(deps Dependencies) *gin.Engine {
	if deps.Config != nil && deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.Logger(deps.Logger))
	if deps.Config != nil && len(deps.Config.App.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))
	}
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

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
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")

		registrationHandler := handlers.NewRegistrationHandler(deps.Services.Registration, deps.Services.Verification)
		registrationHandler.RegisterRoutes(authGroup)

		authHandler := handlers.NewAuthHandler(deps.Services.Auth, deps.Services.Social)
		authHandler.RegisterRoutes(authGroup)

		passwordHandler := handlers.NewPasswordHandler(deps.Services.Passwords, deps.Services.Auth)
		passwordHandler.RegisterRoutes(authGroup)

		userGroup := api.Group("/user")
		profileHandler := handlers.NewProfileHandler(deps.Services.Users, deps.Services.Auth)
		profileHandler.RegisterRoutes(userGroup)
	}

	return r
}
