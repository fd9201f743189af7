package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docparse-backend/internal/documents"
	"docparse-backend/internal/services/health"
	"docparse-backend/internal/shared/config"
	"docparse-backend/internal/shared/metrics"
	"docparse-backend/internal/shared/server/middleware"
	"docparse-backend/internal/shared/server/respond"
)

const ocrRateGroup = "OCR"

// RouterDeps contains handlers used by the router.
type RouterDeps struct {
	Config          config.Config
	DocumentHandler *documents.Handler
	Health          *health.Service
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.APIKey(deps.Config.APIKey, "/", "/healthz", "/metrics"),
		middleware.RateLimit(rateLimitConfig(deps.Config)),
	)

	r.GET("/", func(c *gin.Context) {
		respond.OK(c, gin.H{"message": "Welcome to the OCR system !"})
	})
	r.GET("/healthz", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, deps.Health.Status(c.Request.Context()))
	})
	r.GET("/metrics", metrics.Handler())

	if deps.DocumentHandler != nil {
		deps.DocumentHandler.RegisterRoutes(r)
	}

	return r
}

// rateLimitConfig limits the OCR endpoints only; uploads and reads are free.
func rateLimitConfig(cfg config.Config) middleware.RateLimitConfig {
	rules := map[string]middleware.RateLimitRule{}
	if cfg.RateLimitRPS > 0 {
		rules[ocrRateGroup] = middleware.RateLimitRule{Rate: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst}
	}
	return middleware.RateLimitConfig{
		Rules: rules,
		GroupFor: func(c *gin.Context) string {
			if c.Request.Method != http.MethodPost {
				return ""
			}
			switch c.FullPath() {
			case "/ocr", "/ocr/jobs":
				return ocrRateGroup
			}
			return ""
		},
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
