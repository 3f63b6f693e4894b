// Package httpapi wires the HTTP transport (Gin) to the ledger, the
// recognition pipeline, middleware, and route handlers. It centralizes
// cross-cutting concerns such as tracing, correlation IDs, logging/redaction,
// panic recovery, metrics, CORS, security headers, idempotency, operator
// authentication, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Gate retries are idempotent; operator overrides are authenticated
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/parking-alpr/docs" // swagger spec registration
	"github.com/tbourn/parking-alpr/internal/config"
	"github.com/tbourn/parking-alpr/internal/feed"
	"github.com/tbourn/parking-alpr/internal/http/handlers"
	"github.com/tbourn/parking-alpr/internal/http/middleware"
	"github.com/tbourn/parking-alpr/internal/repo"
)

// multipartSlack is allowed on top of MAX_IMAGE_BYTES for form boundaries
// and headers.
const multipartSlack = 64 << 10

// Deps are the collaborators RegisterRoutes mounts.
type Deps struct {
	DB       *gorm.DB           // idempotency store
	Handlers *handlers.Handlers // ledger and gate endpoints
	Hub      *feed.Hub          // live decision feed; nil disables /ws
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, CORS and security headers, health and metrics endpoints, the live
// feed, and then mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with plate and token scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter (camera frames)
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per gate/IP, bypass on replay)
//  9. CORS and Security headers
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging, redacted unless LOG_REDACT=false
	if cfg.LogRedact {
		r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))
	} else {
		r.Use(middleware.Logger())
	}

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit: one camera frame
	r.Use(limitBody(cfg.Vision.MaxImageBytes + multipartSlack))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics("/metrics", "/ws"))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Idempotency (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		idempotencyLookup(deps.DB),
		idempotencySave(deps.DB, cfg.IdempotencyTTL),
	))

	// 8) Token-bucket rate limiter per gate/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByGateOrIP()).
		Exempt("/health", "/metrics", "/ws")
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all if none configured)
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
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

	// Live decision feed
	if cfg.LiveFeed && deps.Hub != nil {
		r.GET("/ws", gin.WrapF(deps.Hub.ServeWS))
	}

	// API docs
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := deps.Handlers
	operator := middleware.OperatorAuth(middleware.AuthOptions{
		Secret: []byte(cfg.Auth.JWTSecret),
		Issuer: cfg.Auth.JWTIssuer,
	})
	compress := gzip.Gzip(gzip.DefaultCompression)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath) // e.g. "/api/v1"
	{
		// Camera frames
		api.POST("/plates/read", h.ReadPlate)
		api.POST("/gate/entry", h.GateEntry)
		api.POST("/gate/exit", h.GateExit)

		// Known plates
		api.POST("/events/entry", h.RecordEntry)
		api.POST("/events/exit", h.RecordExit)
		api.POST("/events/manual-exit", operator, h.ManualExit)

		// Reads
		api.GET("/events", compress, h.ListEvents)
		api.GET("/events/open", compress, h.ListOpen)
		api.GET("/events/search", h.SearchOpen)
		api.GET("/events/summary", h.Summary)
		api.GET("/events/export", operator, compress, h.ExportCSV)
	}
}

func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	if db == nil {
		return nil
	}
	return func(ctx context.Context, scope, key string, now time.Time) (int, []byte, bool, error) {
		rec, err := repo.GetIdempotency(ctx, db, scope, key, now)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			return 0, nil, false, nil
		case err != nil:
			return 0, nil, false, err
		}
		return rec.Status, rec.Body, true, nil
	}
}

func idempotencySave(db *gorm.DB, ttl time.Duration) middleware.IdempotencySave {
	if db == nil {
		return nil
	}
	return func(ctx context.Context, scope, key string, status int, body []byte, now time.Time) error {
		_, err := repo.CreateIdempotency(ctx, db, scope, key, status, body, ttl, now)
		if errors.Is(err, repo.ErrDuplicate) {
			// A concurrent retry stored first; its response wins on replay.
			return nil
		}
		return err
	}
}

// corsMiddleware returns the CORS chain. With no allowlist every origin is
// accepted without credentials; otherwise the request Origin is echoed when
// it is allowed.
func corsMiddleware(allowedOrigins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization",
			middleware.HeaderGateID, middleware.HeaderOperatorToken, middleware.HeaderIdempotencyKey,
		},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", middleware.HeaderIdempotencyReplayed},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(allowedOrigins) == 0 {
		base.AllowAllOrigins = true // AllowCredentials must remain false
		return []gin.HandlerFunc{
			// Force ACAO: * even for requests without an Origin header (health checks, gates).
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = allowedOrigins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
