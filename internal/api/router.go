package api

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
	"golang.org/x/time/rate"

	"github.com/eventops/auth-gateway/internal/api/handler"
	"github.com/eventops/auth-gateway/internal/api/middleware"
	"github.com/eventops/auth-gateway/internal/core/domain"
	"github.com/eventops/auth-gateway/internal/core/ports"
	"github.com/eventops/auth-gateway/internal/infrastructure/http/handlers"
	"github.com/eventops/auth-gateway/internal/pkg/config"
)

// Dependencies is everything the router needs to build the HTTP surface.
type Dependencies struct {
	Config        *config.Config
	Log           zerolog.Logger
	Auth          ports.AuthService
	Authenticator ports.Authenticator
	Authorizer    ports.Authorizer
	CSRF          ports.CSRFService
	SecurityLogs  ports.SecurityLogService
	Health        handlers.Dependencies
	// Registry receives the HTTP metrics. Nil uses the default registry.
	Registry *prometheus.Registry
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	cfg := deps.Config
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)
	if cfg.TrustProxy {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	} else {
		e.IPExtractor = echo.ExtractIPDirect()
	}

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if deps.Registry != nil {
		registerer, gatherer = deps.Registry, deps.Registry
	}

	// --- Global middleware ---
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Recover())
	e.Use(requestLogger(deps.Log))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "authgw",
		Registerer: registerer,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowCredentials: true,
		AllowHeaders: []string{
			echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept,
			echo.HeaderAuthorization, middleware.HeaderCSRFToken, echo.HeaderXRequestID,
		},
		ExposeHeaders: []string{echo.HeaderXRequestID},
	}))
	if cfg.RateLimit.Enabled {
		e.Use(rateLimiter(cfg.RateLimit))
	}
	e.Use(echomiddleware.ContextTimeoutWithConfig(echomiddleware.ContextTimeoutConfig{
		Timeout: timeout,
		ErrorHandler: func(err error, c echo.Context) error {
			if errors.Is(err, context.DeadlineExceeded) {
				return domain.ErrTimeout
			}
			return err
		},
	}))
	if cfg.Security.CSRFEnabled {
		e.Use(middleware.CSRF(middleware.CSRFConfig{
			Service:     deps.CSRF,
			ExemptPaths: cfg.Security.CSRFExemptPaths,
		}))
	}

	authn := middleware.Auth(deps.Authenticator)
	authHandler := handler.NewAuthHandler(deps.Auth, deps.Authorizer, deps.CSRF)
	adminHandler := handler.NewAdminHandler(deps.SecurityLogs)

	// --- Auth routes ---
	auth := e.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.GET("/csrf-token", authHandler.CSRFToken, middleware.OptionalAuth(deps.Authenticator))

	auth.POST("/logout", authHandler.Logout, authn)
	auth.POST("/logout-all", authHandler.LogoutAll, authn)
	auth.PUT("/change-password", authHandler.ChangePassword, authn)
	auth.GET("/profile", authHandler.Profile, authn)
	auth.GET("/permissions", authHandler.Permissions, authn)
	auth.GET("/sessions", authHandler.Sessions, authn)
	auth.DELETE("/sessions/:id", authHandler.RevokeSession,
		authn, middleware.RequireOwnership(deps.Authorizer, "session", "id"))

	// --- Admin routes ---
	admin := e.Group("/admin",
		authn,
		middleware.RequireRole(deps.Authorizer, domain.RoleAdmin),
		middleware.RequirePermission(deps.Authorizer, "security_log", "read"),
	)
	admin.GET("/security-logs", adminHandler.SecurityLogs)

	// --- Health probes (no auth required) ---
	healthHandler := handlers.NewHealthHandler()
	healthDepsHandler := handlers.NewHealthDependenciesHandler(deps.Health)

	e.GET("/health", healthHandler.Liveness)            // liveness
	e.GET("/health/ready", healthDepsHandler.Readiness) // readiness

	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: gatherer}))
	e.GET("/docs/*", echoSwagger.WrapHandler)

	return e
}

// rateLimiter allows Max requests per Window per client IP, with a burst of Max.
func rateLimiter(cfg config.RateLimitConfig) echo.MiddlewareFunc {
	store := echomiddleware.NewRateLimiterMemoryStoreWithConfig(echomiddleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(cfg.Max) / cfg.Window.Seconds()),
		Burst:     cfg.Max,
		ExpiresIn: cfg.Window,
	})
	return echomiddleware.RateLimiterWithConfig(echomiddleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/health" || p == "/health/ready" || p == "/metrics"
		},
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
	})
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogMethod:    true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			switch {
			case v.Status >= 500:
				ev = log.Error().Err(v.Error)
			case v.Error != nil:
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	})
}

// defaultRequestTimeout is used when the configured deadline is not positive.
const defaultRequestTimeout = 30 * time.Second
