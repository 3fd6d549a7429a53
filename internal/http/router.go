// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/topfivefriends/companion-accounts/internal/config"
	"github.com/topfivefriends/companion-accounts/internal/http/handlers"
	"github.com/topfivefriends/companion-accounts/internal/http/middleware"
	"github.com/topfivefriends/companion-accounts/internal/notify"
	"github.com/topfivefriends/companion-accounts/internal/services"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"
)

// Version is the build identifier reported by /version. Overridden at build
// time via -ldflags.
var Version = "dev"

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting,
// CORS and security headers, health and metrics endpoints, and then mounts
// the public API at the configured base path.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per user/IP)
//  8. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, mailer notify.Mailer, activator notify.Activator, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"Stripe-Signature", // webhook auth material stays out of logs
		},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per user/IP. The payment webhook is
	// exempt: the provider retries on 429 and deliveries must not be shed.
	r.Use(middleware.RateBypassPaths(joinPath(cfg.APIBasePath, "/subscription/webhook")))
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "Stripe-Signature"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "Stripe-Signature"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

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
	r.GET("/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": Version}) })

	// Dependency injection: services ← repo/db/notify
	trialSvc := services.NewTrialService(db, cfg.TrialAllowance)
	accessSvc := services.NewAccessService(db, trialSvc)
	linkSvc := &services.LinkService{
		DB:            db,
		Mailer:        mailer,
		Activator:     activator,
		Characters:    cfg.Characters,
		BaseURL:       cfg.MagicLinkBaseURL,
		TTL:           cfg.LinkTTL,
		NotifyTimeout: cfg.NotifyTimeout,
	}
	billingSvc := &services.BillingService{
		DB:            db,
		Activator:     activator,
		Characters:    cfg.Characters,
		Stripe:        cfg.Stripe,
		EventTTL:      cfg.WebhookEventTTL,
		NotifyTimeout: cfg.NotifyTimeout,
	}
	h := handlers.New(accessSvc, trialSvc, linkSvc, billingSvc, cfg.Stripe.WebhookSecret, cfg.TrialAllowance)

	// Public API
	apiBase := cfg.APIBasePath // "/" keeps routes at the root
	api := groupWithPrefix(r, apiBase)
	{
		// Access
		api.GET("/access/:chatId", h.ListAccess)
		api.GET("/access/:chatId/:character", h.CheckAccess)

		// Trials
		api.POST("/trial/check", h.CheckTrial)
		api.POST("/trial/decrement", h.DecrementTrial)

		// Magic links
		api.POST("/link/initiate", h.InitiateLink)
		api.GET("/link/verify/:token", h.VerifyLink)
		api.POST("/link/complete", h.CompleteLink)

		// Subscriptions
		api.GET("/subscription/pricing", h.GetPricing)
		api.POST("/subscription/create-checkout", h.CreateCheckout)
		api.POST("/subscription/webhook", h.Webhook)
		api.GET("/subscription/:accountId", h.GetSubscription)
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

// joinPath prepends the API base path to route, collapsing the root prefix.
func joinPath(prefix, route string) string {
	if prefix == "" || prefix == "/" {
		return route
	}
	return strings.TrimRight(prefix, "/") + route
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
