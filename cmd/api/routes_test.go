package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"wallet-ledger/internal/auth"
	"wallet-ledger/internal/config"
	"wallet-ledger/internal/httpapi"
	"wallet-ledger/internal/metrics"

	"github.com/gin-gonic/gin"
)

func testRouter(t *testing.T, health func(context.Context) error) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret"})
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	r := gin.New()
	registerRoutes(r, routeDeps{
		auth:     m,
		metrics:  metrics.New(),
		limiter:  httpapi.NewRateLimiter(10, 10),
		health:   health,
		handlers: httpapi.Handlers{},
	})
	return r
}

func TestHealthz(t *testing.T) {
	w := httptest.NewRecorder()
	testRouter(t, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	down := func(context.Context) error { return errors.New("db down") }
	testRouter(t, down).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestV1RequiresToken(t *testing.T) {
	w := httptest.NewRecorder()
	testRouter(t, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/wallet", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestMetricsExposed(t *testing.T) {
	w := httptest.NewRecorder()
	testRouter(t, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Fatalf("expected prometheus exposition, got %d", w.Code)
	}
}
