// Package server exposes the preview publisher over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	dperrors "github.com/randalmurphal/docpreviewer/errors"
	"github.com/randalmurphal/docpreviewer/metrics"
	"github.com/randalmurphal/docpreviewer/preview"
)

// Publisher publishes a pull request preview and returns its URL.
type Publisher interface {
	Publish(ctx context.Context, req preview.Request) (string, error)
}

// Config wires the HTTP handlers.
type Config struct {
	Publisher Publisher

	// OwnerAllowed reports whether an owner may publish. Nil allows all.
	OwnerAllowed func(owner string) bool

	// Metrics serves GET /metrics when set.
	Metrics http.Handler

	// Requests records request counts and latency.
	Requests metrics.RequestRecorder

	Logger *slog.Logger
}

// Server routes preview requests to a Publisher.
type Server struct {
	publisher    Publisher
	ownerAllowed func(string) bool
	logger       *slog.Logger
	router       *gin.Engine
}

// New builds the router. Call gin.SetMode before New to change gin's mode.
func New(cfg Config) (*Server, error) {
	if cfg.Publisher == nil {
		return nil, errors.New("publisher is required")
	}

	s := &Server{
		publisher:    cfg.Publisher,
		ownerAllowed: cfg.OwnerAllowed,
		logger:       cfg.Logger,
	}
	if s.ownerAllowed == nil {
		s.ownerAllowed = func(string) bool { return true }
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	requests := cfg.Requests
	if requests == nil {
		requests = metrics.Noop{}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(RequestLogger(s.logger, requests))

	router.POST("/submit/:owner/:repo/:pr", s.submit)
	router.POST("/submit/:owner/:repo/:pr/", s.submit)
	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	s.router = router
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer returns an http.Server listening on addr. There is no write
// timeout because a publish lasts as long as the artifact download.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}

func (s *Server) submit(c *gin.Context) {
	pr, err := strconv.ParseUint(c.Param("pr"), 10, 64)
	if err != nil {
		c.String(http.StatusBadRequest, "Pull request number %q is not a non-negative integer", c.Param("pr"))
		return
	}
	job, ok := c.GetQuery("job")
	if !ok {
		c.String(http.StatusBadRequest, "Query parameter job is required")
		return
	}

	owner := c.Param("owner")
	if !s.ownerAllowed(owner) {
		c.String(http.StatusForbidden, "GitHub organization %s is not allowed to use this server", owner)
		return
	}

	req := preview.Request{
		Owner:       owner,
		Repository:  c.Param("repo"),
		PullRequest: pr,
		JobLabel:    job,
	}
	publicURL, err := s.publisher.Publish(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, preview.ErrInvalidRequest) {
			c.String(http.StatusBadRequest, err.Error())
			return
		}
		diag := dperrors.Diagnose(err)
		c.Header("X-Preview-Error-Kind", string(diag.Kind))
		c.String(http.StatusInternalServerError, diag.Error())
		return
	}

	c.String(http.StatusOK, "Website preview of this PR available at: %s", publicURL)
}
