package main

import (
	"context"
	"net/http"

	"wallet-ledger/internal/auth"
	"wallet-ledger/internal/httpapi"
	"wallet-ledger/internal/metrics"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	auth     *auth.Manager
	metrics  *metrics.Metrics
	limiter  *httpapi.RateLimiter
	slots    httpapi.Slots
	health   func(ctx context.Context) error
	handlers httpapi.Handlers
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if d.health != nil {
			if err := d.health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if d.metrics != nil {
		r.GET("/metrics", gin.WrapH(d.metrics.Handler()))
	}

	// protected API group; the limiter runs after auth so it keys on user id.
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(d.auth))
	if d.limiter != nil {
		v1.Use(d.limiter.Middleware())
	}

	var onReject func(string)
	if d.metrics != nil {
		onReject = d.metrics.Rejected
	}
	d.handlers.Register(v1, httpapi.InFlight(d.slots, onReject))
}
