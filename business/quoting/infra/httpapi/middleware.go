package httpapi

import (
	"crypto/subtle"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fd1az/quote-engine/internal/apperror"
	"github.com/fd1az/quote-engine/internal/ratelimit"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quote_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	adminActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quote_admin_actions_total",
			Help: "Settings updates by action and outcome",
		},
		[]string{"action", "outcome"},
	)
)

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		httpRequests.WithLabelValues(c.Request.Method, path, status).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

const maxTrackedClients = 10_000

// rateLimit allows each client IP rps requests per second.
func rateLimit(rps float64, burst int) (gin.HandlerFunc, error) {
	clients, err := ratelimit.NewKeyed(rps, burst, maxTrackedClients)
	if err != nil {
		return nil, err
	}
	return func(c *gin.Context) {
		lim := clients.Get(c.ClientIP())
		if !lim.Allow() {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(lim.RetryAfter().Seconds()))))
			fail(c, apperror.New(apperror.CodeRateLimitExceeded, apperror.WithContext(c.ClientIP())))
			return
		}
		c.Next()
	}, nil
}

// adminAuth requires "Authorization: Bearer <token>". An empty token disables admin routes.
func adminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" || !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			fail(c, apperror.New(apperror.CodeUnauthorizedOperator, apperror.WithContext("admin token")))
			return
		}
		c.Next()
	}
}
