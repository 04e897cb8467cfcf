package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/quote-engine/internal/apperror"
)

// Handler mounts one resource. pub is open, admin sits behind the admin token.
type Handler interface {
	Root() string
	SetRoutes(pub *gin.RouterGroup, admin *gin.RouterGroup)
}

// Response is the envelope of every successful reply.
type Response struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// fail writes err with the status it carries. Foreign errors become INTERNAL_ERROR.
func fail(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		appErr = apperror.New(apperror.CodeInternalError, apperror.WithCause(err))
	}
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		appErr = appErr.WithTraceID(sc.TraceID().String())
	}
	c.AbortWithStatusJSON(appErr.StatusCode, appErr.ToResponse())
}

func badRequest(c *gin.Context, context string) {
	fail(c, apperror.Validation(apperror.CodeInvalidInput, context))
}
