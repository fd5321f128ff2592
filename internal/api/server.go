package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"autobot-dashboard/internal/catalog"
	"autobot-dashboard/internal/cleanup"
	"autobot-dashboard/internal/health"
	"autobot-dashboard/internal/session"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     ServerConfig

	repo      Store
	lifecycle *session.Controller
	healthAgg *health.Aggregator
	catalog   *catalog.Service
	sweeper   *cleanup.Sweeper

	log zerolog.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string
	Port           int
	ProductionMode bool
	CleanupToken   string
}

// NewServer creates a new API server
func NewServer(
	config ServerConfig,
	repo Store,
	lifecycle *session.Controller,
	healthAgg *health.Aggregator,
	catalogSvc *catalog.Service,
	sweeper *cleanup.Sweeper,
	logger zerolog.Logger,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "X-Cron-Token"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:    router,
		config:    config,
		repo:      repo,
		lifecycle: lifecycle,
		healthAgg: healthAgg,
		catalog:   catalogSvc,
		sweeper:   sweeper,
		log:       logger.With().Str("component", "api").Logger(),
	}

	router.Use(server.requestLogger())
	server.setupRoutes()

	return server
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Liveness probe
	s.router.GET("/health", s.handleLiveness)

	api := s.router.Group("/api")
	{
		// Configuration
		api.GET("/settings", s.handleGetSettings)
		api.POST("/settings", s.handlePostSettings)

		// Derived job health
		api.GET("/health/jobs", s.handleGetJobHealth)

		// Dashboard aggregates
		api.GET("/metrics", s.handleGetMetrics)

		// Trade history (session-scoped)
		api.GET("/trades", s.handleGetTrades)

		// Exchange symbol catalog
		api.GET("/exchange-info", s.handleGetExchangeInfo)

		// Worker reporting
		api.POST("/heartbeat", s.handlePostHeartbeat)
		api.POST("/journal", s.handlePostJournal)

		// Maintenance (token-guarded)
		api.GET("/maintenance/cleanup", s.handleCleanup)
		api.POST("/maintenance/cleanup", s.handleCleanup)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info().Str("addr", addr).Msg("starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// handleLiveness reports server and database health.
func (s *Server) handleLiveness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.repo.HealthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": "healthy"})
}

// jsonError converts an internal failure into the structured error payload
// every endpoint shares. Internals are logged, not exposed.
func (s *Server) jsonError(c *gin.Context, status int, err error) {
	s.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	c.JSON(status, gin.H{"error": err.Error()})
}
