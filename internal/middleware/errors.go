package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vantage/internal/apperrors"
)

// ErrorBody is the error payload returned to clients
type ErrorBody struct {
	Code      apperrors.Code `json:"code"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	RequestID string         `json:"requestId"`
}

// ErrorResponse wraps ErrorBody
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorHandler renders the last error attached with c.Error when the handler has not
// written a response. Typed errors keep their code and message; anything else becomes
// INTERNAL_ERROR and is logged.
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("errors")
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		RenderError(c, logger, c.Errors.Last().Err)
	}
}

// RenderError writes err as the error envelope and aborts the chain
func RenderError(c *gin.Context, logger *zap.Logger, err error) {
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Code == apperrors.CodeInternal {
		logger.Error("Request failed",
			zap.String("request_id", GetRequestID(c)),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		appErr = apperrors.Internal(err)
	}

	c.AbortWithStatusJSON(appErr.Status, ErrorResponse{
		Error: ErrorBody{
			Code:      appErr.Code,
			Message:   appErr.Message,
			Timestamp: time.Now().UTC(),
			RequestID: GetRequestID(c),
		},
	})
}

// Recovery turns a panic into a 500 error envelope
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("recovery")
	return func(c *gin.Context) {
		defer func() {
			if p := recover(); p != nil {
				logger.Error("Panic recovered",
					zap.Any("panic", p),
					zap.Stack("stack"))
				if !c.Writer.Written() {
					RenderError(c, logger, fmt.Errorf("panic: %v", p))
				} else {
					c.AbortWithStatus(http.StatusInternalServerError)
				}
			}
		}()
		c.Next()
	}
}
