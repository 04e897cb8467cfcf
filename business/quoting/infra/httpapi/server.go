// Package httpapi serves the quoting operations and the settings admin over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fd1az/quote-engine/internal/logger"
)

const apiVersion = "v1"

// Config holds the server settings.
type Config struct {
	Port        int
	AdminToken  string
	CORSOrigins []string
	RateLimit   float64
	RateBurst   int
}

// ConnHandler serves a route that takes over the connection. It is mounted ahead of the gin
// engine because gin refuses to hijack a response once a status has been written.
type ConnHandler interface {
	http.Handler
	Root() string
}

// Server is the quote API.
type Server struct {
	mux    *http.ServeMux
	server *http.Server
	logger logger.LoggerInterface
}

// New builds the router and mounts every handler under /api/v1 and /api/v1/admin.
func New(cfg Config, log logger.LoggerInterface, handlers ...Handler) (*Server, error) {
	r := gin.New()
	r.Use(gin.Recovery())

	corsConf := cors.DefaultConfig()
	if len(cfg.CORSOrigins) == 0 || slices.Contains(cfg.CORSOrigins, "*") {
		corsConf.AllowAllOrigins = true
	} else {
		corsConf.AllowOrigins = cfg.CORSOrigins
	}
	corsConf.AddAllowHeaders("Authorization", OperatorHeader)
	r.Use(cors.New(corsConf))

	r.Use(metricsMiddleware())
	r.Use(requestLogger(log))
	if cfg.RateLimit > 0 {
		limiter, err := rateLimit(cfg.RateLimit, cfg.RateBurst)
		if err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		r.Use(limiter)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("api")
	pub := api.Group(apiVersion)
	admin := api.Group(apiVersion+"/admin", adminAuth(cfg.AdminToken))

	for _, h := range handlers {
		h.SetRoutes(pub.Group(h.Root()), admin.Group(h.Root()))
	}

	mux := http.NewServeMux()
	mux.Handle("/", r)

	return &Server{
		mux: mux,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           otelhttp.NewHandler(mux, "quote-api"),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: log,
	}, nil
}

// Mount serves h at GET /api/v1<root>, outside the gin middleware chain.
func (s *Server) Mount(h ConnHandler) {
	s.mux.Handle("GET /api/"+apiVersion+h.Root(), h)
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "http server started", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests for at most five seconds.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error(ctx, "failed to stop http server", "error", err)
		return err
	}
	s.logger.Info(ctx, "http server stopped gracefully")
	return nil
}

func requestLogger(log logger.LoggerInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client", c.ClientIP(),
		)
	}
}
