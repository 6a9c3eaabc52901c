// Package server exposes stream extraction over HTTP so that browser clients
// and other hosts can use it as their intermediary service.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/sirupsen/logrus"

	"sportstream/internal/extract"
	"sportstream/internal/media"
)

const requestIDHeader = "X-Request-ID"

// Resolver is the extraction backend used by POST /api/extract.
type Resolver interface {
	Resolve(ctx context.Context, embedURL string) (mo.Option[media.ExtractedStream], error)
	// Retry resolves without trusting a cached outcome.
	Retry(ctx context.Context, embedURL string) (mo.Option[media.ExtractedStream], error)
	// Purge forgets every cached outcome.
	Purge()
}

// ExtractRequest is the body of POST /api/extract.
type ExtractRequest struct {
	EmbedURL string `json:"embedUrl" binding:"required"`
	Retry    bool   `json:"retry,omitempty"`
}

// ExtractResponse is empty when no stream was found.
type ExtractResponse struct {
	HLSURL string     `json:"hlsUrl,omitempty"`
	Kind   media.Kind `json:"kind,omitzero"`
}

// ErrorResponse carries a failure message and the request ID for correlation.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// Server is the HTTP front end for an extraction Resolver.
type Server struct {
	addr     string
	apiKey   string
	version  string
	resolver Resolver
	log      *logrus.Entry
	engine   *gin.Engine
	server   *http.Server
}

// New builds a server listening on addr. A non-empty apiKey is required
// in the X-API-Key header of every request except the health check.
func New(addr, apiKey, version string, resolver Resolver, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.WithField("component", "server")
	}
	s := &Server{
		addr:     addr,
		apiKey:   apiKey,
		version:  version,
		resolver: resolver,
		log:      log,
	}

	gin.SetMode(gin.ReleaseMode)
	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.engine.Use(s.requestIDMiddleware())
	s.engine.Use(s.loggingMiddleware())
	if s.apiKey != "" {
		s.engine.Use(s.authMiddleware())
	}

	api := s.engine.Group("/api")
	api.GET("/health", s.handleHealth)
	api.POST("/extract", s.handleExtract)
	api.DELETE("/cache", s.handlePurge)

	s.engine.NoRoute(func(c *gin.Context) {
		s.fail(c, http.StatusNotFound, "not found")
	})

	return s
}

// Handler returns the routing engine, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.log.WithField("addr", s.addr).WithField("auth", s.apiKey != "").Info("extraction service listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Middleware

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   time.Since(start).String(),
		}).Info("request")
	}
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/api/health" {
			c.Next()
			return
		}

		key := c.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			s.fail(c, http.StatusUnauthorized, "invalid or missing API key")
			c.Abort()
			return
		}
		c.Next()
	}
}

// Handlers

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": s.version,
	})
}

func (s *Server) handleExtract(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, "embedUrl is required")
		return
	}

	resolve := s.resolver.Resolve
	if req.Retry {
		resolve = s.resolver.Retry
	}

	result, err := resolve(c.Request.Context(), req.EmbedURL)
	switch {
	case errors.Is(err, extract.ErrInvalidURL):
		s.fail(c, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, extract.ErrNotConfigured):
		s.fail(c, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		s.log.WithError(err).WithField("request_id", c.GetString("request_id")).Warn("extraction aborted")
		s.fail(c, http.StatusInternalServerError, "extraction failed")
		return
	}

	stream, ok := result.Get()
	if !ok {
		c.JSON(http.StatusOK, ExtractResponse{})
		return
	}
	c.JSON(http.StatusOK, ExtractResponse{HLSURL: stream.URL, Kind: stream.Kind})
}

func (s *Server) handlePurge(c *gin.Context) {
	s.resolver.Purge()
	s.log.WithField("request_id", c.GetString("request_id")).Info("extraction cache purged")
	c.Status(http.StatusNoContent)
}

func (s *Server) fail(c *gin.Context, status int, msg string) {
	c.JSON(status, ErrorResponse{Error: msg, RequestID: c.GetString("request_id")})
}
