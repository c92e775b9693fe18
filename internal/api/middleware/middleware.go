package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/teller-ledger/internal/domain"
	"github.com/dvloznov/teller-ledger/internal/logger"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Logger adds structured logging to HTTP requests.
func Logger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		ev := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = log.Error()
		}
		ev.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("route", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("remote_addr", c.ClientIP()).
			Str("request_id", RequestIDFrom(c.Request.Context())).
			Msg("HTTP request")
	}
}

// Recovery recovers from panics and returns a 500 error.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().
					Interface("error", err).
					Str("method", c.Request.Method).
					Str("path", c.Request.URL.Path).
					Str("request_id", RequestIDFrom(c.Request.Context())).
					Msg("Panic recovered")

				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
					Error:     "Internal server error",
					RequestID: RequestIDFrom(c.Request.Context()),
				})
			}
		}()

		c.Next()
	}
}

// RequestID tags the request with an id and stores a request-scoped logger in its context.
func RequestID(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Header(RequestIDHeader, requestID)
		ctx := context.WithValue(c.Request.Context(), requestIDKey, requestID)
		ctx = logger.WithContext(ctx, log.With().Str("request_id", requestID).Logger())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CORS allows the given origins. "*" allows any origin.
func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Content-Type", "Authorization", RequestIDHeader},
		ExposeHeaders: []string{RequestIDHeader},
		MaxAge:        time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// Context key for request ID.
type contextKey string

const requestIDKey contextKey = "requestID"

// RequestIDFrom returns the request id stored by RequestID, or "".
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// StatusFor maps a domain error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrIneligibleCustomer):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUnsupportedOperation), errors.Is(err, domain.ErrLedgerMismatch):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrStorage):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// kindOf names the sentinel an error matches.
func kindOf(err error) string {
	for _, k := range []error{
		domain.ErrValidation,
		domain.ErrNotFound,
		domain.ErrIneligibleCustomer,
		domain.ErrUnsupportedOperation,
		domain.ErrInsufficientFunds,
		domain.ErrStorage,
		domain.ErrLedgerMismatch,
	} {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return ""
}

// WriteError renders err with the status StatusFor picks. Server-side details are not exposed.
func WriteError(c *gin.Context, err error) {
	status := StatusFor(err)
	resp := ErrorResponse{
		Error:     err.Error(),
		Kind:      kindOf(err),
		RequestID: RequestIDFrom(c.Request.Context()),
	}
	if status >= http.StatusInternalServerError {
		resp.Error = http.StatusText(status)
		log := logger.FromContext(c.Request.Context())
		log.Error().Err(err).Msg("Request failed")
	}
	c.AbortWithStatusJSON(status, resp)
}

// WriteBadRequest renders a request-shape problem such as malformed JSON.
func WriteBadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error:     message,
		Kind:      domain.ErrValidation.Error(),
		RequestID: RequestIDFrom(c.Request.Context()),
	})
}
