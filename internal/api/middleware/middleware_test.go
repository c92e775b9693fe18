package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/teller-ledger/internal/domain"
	"github.com/dvloznov/teller-ledger/internal/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: http.StatusOK},
		{name: "invalid amount", err: (&domain.Error{Kind: domain.ErrInvalidAmount, Op: "Account.Deposit"}).WithAmount(decimal.Zero), want: http.StatusBadRequest},
		{name: "validation", err: domain.NewError(domain.ErrValidation, "OpenAccount", "", "branch is required"), want: http.StatusBadRequest},
		{name: "not found", err: domain.NotFoundAccount("Deposit", "700000000001"), want: http.StatusNotFound},
		{name: "ineligible", err: domain.NewError(domain.ErrIneligibleCustomer, "OpenAccount", "", "income not verified"), want: http.StatusForbidden},
		{name: "unsupported", err: domain.NewError(domain.ErrUnsupportedOperation, "Withdraw", "700000000001", ""), want: http.StatusConflict},
		{name: "mismatch", err: domain.NewError(domain.ErrLedgerMismatch, "VerifyHistory", "700000000001", ""), want: http.StatusConflict},
		{name: "insufficient", err: domain.NewError(domain.ErrInsufficientFunds, "Withdraw", "700000000001", ""), want: http.StatusUnprocessableEntity},
		{name: "storage", err: domain.StorageError("SaveAccount", errors.New("connection refused")), want: http.StatusServiceUnavailable},
		{name: "wrapped storage", err: fmt.Errorf("handler: %w", domain.StorageError("SaveAccount", errors.New("x"))), want: http.StatusServiceUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, want: http.StatusGatewayTimeout},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFor(tt.err); got != tt.want {
				t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func newEngine(buf *bytes.Buffer, routes func(r *gin.Engine)) *gin.Engine {
	log := logger.NewWithWriter(buf)
	r := gin.New()
	r.Use(RequestID(log), Recovery(log), Logger(log))
	routes(r)
	return r
}

func TestRequestID(t *testing.T) {
	buf := &bytes.Buffer{}
	var seen string
	r := newEngine(buf, func(r *gin.Engine) {
		r.GET("/ping", func(c *gin.Context) {
			seen = RequestIDFrom(c.Request.Context())
			log := logger.FromContext(c.Request.Context())
			log.Info().Msg("inside handler")
			c.Status(http.StatusOK)
		})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	r.ServeHTTP(w, req)

	if seen != "req-123" || w.Header().Get(RequestIDHeader) != "req-123" {
		t.Errorf("request id not propagated: context=%q header=%q", seen, w.Header().Get(RequestIDHeader))
	}
	if !strings.Contains(buf.String(), `"request_id":"req-123"`) {
		t.Errorf("handler log should carry the request id, got: %s", buf.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if len(w.Header().Get(RequestIDHeader)) != 36 {
		t.Errorf("generated request id %q is not a UUID", w.Header().Get(RequestIDHeader))
	}
}

func TestRecovery(t *testing.T) {
	buf := &bytes.Buffer{}
	r := newEngine(buf, func(r *gin.Engine) {
		r.GET("/panic", func(c *gin.Context) { panic("kaboom") })
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body %q: %v", w.Body.String(), err)
	}
	if body.Error != "Internal server error" || body.RequestID == "" {
		t.Errorf("unexpected body: %+v", body)
	}
	if !strings.Contains(buf.String(), "Panic recovered") {
		t.Errorf("panic not logged: %s", buf.String())
	}
}

func TestWriteError(t *testing.T) {
	buf := &bytes.Buffer{}
	r := newEngine(buf, func(r *gin.Engine) {
		r.GET("/rejected", func(c *gin.Context) {
			WriteError(c, domain.NewError(domain.ErrInsufficientFunds, "Withdraw", "700000000001", "balance is 10.00"))
		})
		r.GET("/storage", func(c *gin.Context) {
			WriteError(c, domain.StorageError("UpdateAccount", errors.New("password authentication failed for user ledger")))
		})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rejected", nil))
	var body ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if w.Code != http.StatusUnprocessableEntity || body.Kind != domain.ErrInsufficientFunds.Error() || !strings.Contains(body.Error, "balance is 10.00") {
		t.Errorf("unexpected rejection reply %d %+v", w.Code, body)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/storage", nil))
	body = ErrorResponse{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if w.Code != http.StatusServiceUnavailable || strings.Contains(body.Error, "password") {
		t.Errorf("storage details leaked: %d %+v", w.Code, body)
	}
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"*"}))
	r.GET("/api/accounts", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/accounts", nil)
	req.Header.Set("Origin", "https://teller.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}
