// Package server assembles the HTTP surface: Gin router, middleware chain,
// and the handlers for both the bearer-authenticated dashboard API and the
// node-credential-authenticated agent API.
package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/decoyverse/decoyverse/internal/identity"
)

// Config carries the router-level settings.
type Config struct {
	AuthMode      identity.Mode
	RiskThreshold int
	CORSOrigins   []string
	RateLimitRPS  int
}

// Deps are the constructed services and stores the handlers consume.
type Deps struct {
	Tokens *identity.TokenIssuer
	Users  userSvc
	Nodes  interface {
		nodeSvc
		agentNodeSvc
	}
	Decoys   decoyStore
	Events   eventStore
	Alerts   alertStore
	Profiles profileStore
	Pipeline ingestPipeline
	Bundles  bundleBuilder
}

// New builds the Gin engine with the full middleware chain and all routes.
func New(cfg Config, deps Deps, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Node-Id", "X-Node-Key"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORSOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Request body size limit (1 MB); individual field limits are tighter.
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	if cfg.RateLimitRPS > 0 {
		router.Use(RateLimiter(cfg.RateLimitRPS, cfg.RateLimitRPS*2))
	}

	router.Use(PrometheusMiddleware())
	router.Use(requestLogger(logger))

	// Public surface
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", MetricsHandler())

	authHandler := NewAuthHandler(deps.Users, deps.Tokens, logger)
	authHandler.Register(router)

	// Agent surface — node-credential authenticated inside each handler.
	agentHandler := NewAgentHandler(deps.Pipeline, deps.Nodes, logger)
	agentHandler.Register(router)

	// Dashboard surface — bearer authenticated, scope resolved once.
	user := router.Group("/", identity.RequireUser(deps.Tokens, cfg.AuthMode))
	NewNodeHandler(deps.Nodes, deps.Bundles, logger).Register(user)
	NewDecoyHandler(deps.Decoys, deps.Nodes, logger).Register(user)
	NewLogHandler(deps.Events, deps.Nodes, logger).Register(user)
	NewAlertHandler(deps.Alerts, deps.Nodes, cfg.RiskThreshold, logger).Register(user)
	NewProfileHandler(deps.Profiles, logger).Register(user)

	return router
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
