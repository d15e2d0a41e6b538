package handler

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zots0127/marketadmin/pkg/config"
	"github.com/zots0127/marketadmin/pkg/logger"
	"github.com/zots0127/marketadmin/pkg/metrics"
	"github.com/zots0127/marketadmin/pkg/middleware"
)

// multipart framing on top of the payload limit
const multipartOverhead = 1 << 20

// Handlers groups every route owner the router mounts
type Handlers struct {
	Health  *HealthHandler
	Backup  *BackupHandler
	Setting *SettingHandler
	Upload  *UploadHandler
	Media   *MediaHandler
	Config  *config.ConfigMiddleware
}

// NewRouter builds the engine: ambient middleware, public health and metrics,
// then the authenticated API
func NewRouter(cfg *config.Config, h Handlers, auth *middleware.Authentication, limiter *middleware.RateLimit) (*gin.Engine, error) {
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		return nil, err
	}

	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		logger.GinLogger(),
		metrics.Middleware(),
		middleware.SecurityHeaders(middleware.DefaultSecurityHeadersConfig()),
	)
	if cfg.CORS.Enabled && len(cfg.CORS.AllowedOrigins) > 0 {
		router.Use(cors.New(corsConfig(cfg.CORS)))
	}

	if h.Health != nil {
		h.Health.RegisterRoutes(router)
	}
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api", auth.Middleware())
	if limiter != nil {
		api.Use(limiter.Middleware())
	}

	admin := api.Group("/admin", middleware.RequireRole(cfg.Security.AdminRole))
	if h.Backup != nil {
		backups := admin.Group("", middleware.BodyLimit(int64(cfg.Backup.MaxImportBytes)+multipartOverhead))
		h.Backup.RegisterRoutes(backups)
	}
	if h.Setting != nil {
		h.Setting.RegisterRoutes(admin.Group("", middleware.BodyLimit(64<<10)))
	}
	if h.Config != nil {
		h.Config.RegisterRoutes(admin)
	}

	if h.Upload != nil {
		h.Upload.RegisterRoutes(api.Group("", middleware.BodyLimit(64<<10)))
	}
	if h.Media != nil {
		h.Media.RegisterRoutes(api.Group("", middleware.RequireOperator(), middleware.BodyLimit(int64(cfg.Media.MaxUploadBytes)+multipartOverhead)))
	}

	return router, nil
}

func corsConfig(c config.CORSConfig) cors.Config {
	out := cors.Config{
		AllowMethods:     c.AllowedMethods,
		AllowHeaders:     c.AllowedHeaders,
		ExposeHeaders:    c.ExposedHeaders,
		AllowCredentials: c.AllowCredentials,
		MaxAge:           c.MaxAge,
	}
	for _, origin := range c.AllowedOrigins {
		if origin == "*" {
			out.AllowAllOrigins = true
			return out
		}
	}
	out.AllowOrigins = c.AllowedOrigins
	return out
}
