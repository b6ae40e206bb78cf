// Package httpapi wires the HTTP transport (Gin) to the session registry,
// application services, middleware, and route handlers. It centralizes
// cross-cutting concerns such as tracing, correlation IDs, logging, panic
// recovery, metrics, CORS, security headers, and rate limiting.
//
// Design goals:
//   - Observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/realestate9x/whatsapp-listings/internal/config"
	"github.com/realestate9x/whatsapp-listings/internal/extract"
	"github.com/realestate9x/whatsapp-listings/internal/http/handlers"
	"github.com/realestate9x/whatsapp-listings/internal/http/middleware"
	"github.com/realestate9x/whatsapp-listings/internal/services"
	"github.com/realestate9x/whatsapp-listings/internal/wa"
)

// registryDirectory adapts the session registry to the read-only lookup the
// group service expects.
type registryDirectory struct {
	reg *wa.Registry
}

// Lookup proxies Registry.Get, hiding the concrete session type.
func (d registryDirectory) Lookup(userID string) (services.GroupSource, bool) {
	s, ok := d.reg.Get(userID)
	if !ok {
		return nil, false
	}
	return s, true
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. TenantID: resolve the X-User-ID header once
//  4. Logger: structured access logs
//  5. Recovery: capture panics after logger
//  6. Body size limiter
//  7. Metrics
//  8. Rate limiter (per user/IP)
//  9. CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, registry *wa.Registry, job *extract.Job, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Tenant identity from the X-User-ID header
	r.Use(middleware.TenantID())

	// 4) Structured access logging
	r.Use(middleware.Logger())

	// 5) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 6) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 9) CORS posture (allow all when no origins configured)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", "X-Request-ID"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: handlers ← registry/services/job
	groupSvc := &services.GroupService{DB: db, Sessions: registryDirectory{reg: registry}}
	listingSvc := &services.ListingService{DB: db}
	h := handlers.New(registry, groupSvc, listingSvc, job)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Session lifecycle
		api.POST("/whatsapp/connect", h.Connect)
		api.GET("/whatsapp/status", h.SessionStatus)
		api.GET("/whatsapp/qr", h.QR)
		api.POST("/whatsapp/disconnect", h.Disconnect)
		api.POST("/whatsapp/logout", h.Logout)

		// Group preferences
		api.GET("/groups", h.ListGroups)
		api.PUT("/groups", h.UpdateGroups)

		// Extraction control
		api.POST("/extraction/start", h.StartExtraction)
		api.POST("/extraction/stop", h.StopExtraction)
		api.POST("/extraction/run", h.RunExtraction)
		api.GET("/extraction/status", h.ExtractionStatus)

		// Listings
		api.GET("/listings", h.SearchListings)
	}
}

// limitBody caps the request body size for all endpoints using
// http.MaxBytesReader. Oversized bodies error on downstream reads.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "" as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
