package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/svd-classify/internal/catalog"
	"github.com/svd-classify/internal/domain"
	"github.com/svd-classify/internal/middleware"
	"github.com/svd-classify/internal/service"
)

// Version is reported by the health endpoint.
var Version = "dev"

// CatalogSource supplies and rebuilds the guideline catalog.
type CatalogSource interface {
	Current() *catalog.Catalog
	Reload() (*catalog.Catalog, error)
}

// ReloadPublisher tells other instances to reload their catalog.
type ReloadPublisher interface {
	Publish(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	cfg       domain.ServerConfig
	service   *service.ClassificationService
	catalogs  CatalogSource
	publisher ReloadPublisher
	health    func(ctx context.Context) error
	router    *gin.Engine
	server    *http.Server
	logger    *logrus.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithReloadPublisher broadcasts guideline reloads triggered over HTTP.
func WithReloadPublisher(p ReloadPublisher) Option {
	return func(s *Server) { s.publisher = p }
}

// WithHealthCheck adds a dependency probe to the health endpoint.
func WithHealthCheck(check func(ctx context.Context) error) Option {
	return func(s *Server) { s.health = check }
}

// NewServer creates a new HTTP server instance
func NewServer(
	cfg domain.ServerConfig,
	svc *service.ClassificationService,
	catalogs CatalogSource,
	logger *logrus.Logger,
	opts ...Option,
) *Server {
	s := &Server{
		cfg:      cfg,
		service:  svc,
		catalogs: catalogs,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst, 0).Middleware())
	if cfg.WriteTimeout > 0 {
		router.Use(middleware.RequestTimeout(cfg.WriteTimeout))
	}
	s.router = router

	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	v1.Use(middleware.Reviewer(s.cfg.UserHeader))
	{
		v1.GET("/guidelines", s.handleListGuidelines)
		v1.GET("/guidelines/:name", s.handleGetGuideline)
		v1.POST("/guidelines/reload", s.handleReloadGuidelines)
		v1.POST("/preview", s.handlePreview)

		c := v1.Group("/classifications")
		c.POST("", s.handleCreate)
		c.GET("", s.handleWorklist)
		c.GET("/:id", s.handleOpen)
		c.GET("/:id/summary", s.handleSummary)
		c.POST("/:id/codes", s.handleUpdateCodes)
		c.POST("/:id/info", s.handleCompleteInfo)
		c.POST("/:id/info/reopen", s.handleReopenInfo)
		c.POST("/:id/previous", s.handleCompletePrevious)
		c.POST("/:id/previous/reopen", s.handleReopenPrevious)
		c.POST("/:id/classification", s.handleCompleteClassification)
		c.POST("/:id/classification/reopen", s.handleReopenClassification)
		c.GET("/:id/previous-choices", s.handlePreviousChoices)
		c.GET("/:id/disagreements", s.handleDisagreements)
		c.POST("/:id/signoff", s.handleSignoff)
		c.POST("/:id/reopen", s.handleReopenCheck)
		c.GET("/:id/audit", s.handleAuditTrail)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	status, code := "healthy", http.StatusOK
	body := gin.H{
		"timestamp":  time.Now().UTC(),
		"version":    Version,
		"guidelines": len(s.catalogs.Current().Guidelines()),
	}
	if s.health != nil {
		if err := s.health(c.Request.Context()); err != nil {
			s.logger.WithError(err).Warn("Health check failed")
			status, code = "unhealthy", http.StatusServiceUnavailable
			body["error"] = err.Error()
		}
	}
	body["status"] = status
	c.JSON(code, body)
}
