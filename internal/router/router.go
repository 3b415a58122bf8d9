package router

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/iliyamo/dispatch-backoffice/internal/config"
	"github.com/iliyamo/dispatch-backoffice/internal/handler"
	"github.com/iliyamo/dispatch-backoffice/internal/logger"
	"github.com/iliyamo/dispatch-backoffice/internal/metrics"
	"github.com/iliyamo/dispatch-backoffice/internal/middleware"
	"github.com/iliyamo/dispatch-backoffice/internal/repository"
	"github.com/iliyamo/dispatch-backoffice/internal/service"
)

// Deps is everything the HTTP surface is built from.  Redis may be nil;
// the rate limiter and the cache then pass requests through.
type Deps struct {
	Cfg       config.Config
	DB        *gorm.DB
	Svc       *service.Services
	Log       *zap.Logger
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
}

// New builds the echo instance with every route of the API.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	bodyLimit := d.Cfg.MaxUploadBytes + 1<<20
	e.Use(
		echomw.Recover(),
		echomw.CORS(),
		echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}),
		logger.Middleware(d.Log),
		metrics.Middleware(),
		echomw.BodyLimit(strconv.FormatInt(bodyLimit, 10)),
	)

	RegisterRoutes(e, d.DB)
	RegisterPublic(e, handler.NewPublicHandler(d.Svc.Plans()), middleware.NewRedisCache(d.Cache, d.Redis))

	auth := handler.NewAuthHandler(d.Cfg, repository.NewUserRepo(d.DB), repository.NewTokenRepo(d.DB), d.Svc.Directory, d.Svc.Now)
	RegisterAuth(e, auth, d.Cfg.JWTSecret, d.Svc.Directory, middleware.NewTokenBucket(d.RateLimit, d.Redis))
	RegisterTenant(e, handler.NewTenantHandler(d.Svc), d.Cfg.JWTSecret)
	RegisterOperator(e, handler.NewOperatorHandler(d.Svc.Lifecycle), d.Cfg.JWTSecret, d.Svc.Directory)
	return e
}

// RegisterRoutes registers the unauthenticated infrastructure endpoints.
func RegisterRoutes(e *echo.Echo, db *gorm.DB) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/metrics", metrics.Handler())
}

// RegisterPublic registers the plan catalog behind the response cache.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/plans", p.ListPlans, cache)
}

// RegisterAuth registers the credential endpoints under /v1/auth, rate
// limited, and the session endpoint /v1/me.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, dir middleware.Resolver, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", limiter)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me, middleware.JWTAuth(jwtSecret), middleware.Resolve(dir))
}
