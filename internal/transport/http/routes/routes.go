package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/account-guard/internal/infra/config"
	"github.com/arklim/account-guard/internal/transport/http/handlers"
	"github.com/arklim/account-guard/internal/transport/http/middleware"
	"github.com/arklim/account-guard/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth          *usecase.AuthService
	Registration  *usecase.RegistrationService
	PasswordReset *usecase.PasswordResetService
	Accounts      *usecase.AccountService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
	Services    ServiceSet
	Database    DatabaseChecker
	Cache       CacheChecker
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
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
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
		isDev := deps.Config.App.Env == "development"

		authHandler := handlers.NewAuthHandler(deps.Services.Auth)
		loginHandlers := append(buildRateLimitMiddlewares(deps, "auth_login_ip", deps.Config.RateLimit.LoginMaxAttempts, time.Minute), authHandler.Login)
		api.POST("/auth/login", loginHandlers...)

		registrationHandler := handlers.NewRegistrationHandler(deps.Services.Registration, isDev)
		registerGroup := api.Group("/register")
		if mws := buildRateLimitMiddlewares(deps, "register_ip", deps.Config.RateLimit.RegisterMaxAttempts, time.Hour); len(mws) > 0 {
			registerGroup.Use(mws...)
		}
		registerGroup.POST("", registrationHandler.Register)
		registerGroup.POST("/verify", registrationHandler.Verify)
		registerGroup.POST("/resend", registrationHandler.ResendVerification)

		passwordHandler := handlers.NewPasswordHandler(deps.Services.PasswordReset, isDev)
		resetGroup := api.Group("/password/reset")
		if mws := buildRateLimitMiddlewares(deps, "password_reset_ip", deps.Config.RateLimit.PasswordResetMaxAttempts, time.Hour); len(mws) > 0 {
			resetGroup.Use(mws...)
		}
		resetGroup.POST("", passwordHandler.RequestReset)
		resetGroup.POST("/confirm", passwordHandler.ConfirmReset)

		if deps.Services.Accounts != nil {
			accountHandler := handlers.NewAccountHandler(deps.Services.Accounts)
			adminGroup := api.Group("/admin/accounts")
			adminGroup.GET("/:id", accountHandler.Get)
			adminGroup.POST("/:id/unlock", accountHandler.Unlock)
			adminGroup.DELETE("/:id", accountHandler.Delete)
		}
	}

	return r
}

func buildRateLimitMiddlewares(deps Dependencies, name string, limit int, defaultWindow time.Duration) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil || limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = defaultWindow
	}

	rule := middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
