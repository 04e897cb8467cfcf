// Package health provides HTTP health check endpoints.
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/quote-engine/internal/logger"
)

const checkTimeout = 5 * time.Second

// Status represents the health check response.
type Status struct {
	Status    string           `json:"status"`
	Checks    map[string]Check `json:"checks"`
	Version   string           `json:"version,omitempty"`
	Timestamp string           `json:"timestamp"`
}

// Check represents an individual health check.
type Check struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// CheckFunc is a function that performs a health check.
type CheckFunc func(ctx context.Context) (bool, string)

// Server provides health check HTTP endpoints.
type Server struct {
	port    int
	version string
	logger  logger.LoggerInterface

	mu     sync.RWMutex
	checks map[string]CheckFunc
	ready  atomic.Bool

	engine *gin.Engine
	server *http.Server
}

// NewServer creates a new health check server. /ready answers 503 until MarkReady.
func NewServer(port int, version string, log logger.LoggerInterface) *Server {
	s := &Server{
		port:    port,
		version: version,
		logger:  log,
		checks:  make(map[string]CheckFunc),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", s.handleHealth)
	r.GET("/ready", s.handleReady)
	r.GET("/live", func(c *gin.Context) { c.String(http.StatusOK, "alive") })
	s.engine = r

	return s
}

// RegisterCheck registers a health check function.
func (s *Server) RegisterCheck(name string, check CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
}

// MarkReady flips /ready once startup has finished.
func (s *Server) MarkReady() {
	s.ready.Store(true)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves in the background. A failure to listen is logged, not fatal.
func (s *Server) Start() {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn(context.Background(), "health server stopped", "port", s.port, "error", err)
		}
	}()
}

// Stop gracefully stops the health check server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Run executes every check concurrently, each bounded by the same deadline.
func (s *Server) Run(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	s.mu.RLock()
	checks := make(map[string]CheckFunc, len(s.checks))
	for k, v := range s.checks {
		checks[k] = v
	}
	s.mu.RUnlock()

	var (
		mu      sync.Mutex
		results = make(map[string]Check, len(checks))
	)
	g, gctx := errgroup.WithContext(ctx)
	for name, check := range checks {
		g.Go(func() error {
			healthy, msg := check(gctx)
			mu.Lock()
			results[name] = Check{Healthy: healthy, Message: msg}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	status := Status{
		Status:    "ok",
		Checks:    results,
		Version:   s.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	for _, c := range results {
		if !c.Healthy {
			status.Status = "degraded"
			break
		}
	}
	return status
}

func (s *Server) handleHealth(c *gin.Context) {
	status := s.Run(c.Request.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (s *Server) handleReady(c *gin.Context) {
	if !s.ready.Load() {
		c.String(http.StatusServiceUnavailable, "starting")
		return
	}
	if s.Run(c.Request.Context()).Status != "ok" {
		c.String(http.StatusServiceUnavailable, "not ready")
		return
	}
	c.String(http.StatusOK, "ready")
}
