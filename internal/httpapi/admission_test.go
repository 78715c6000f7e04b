package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRateLimiter_PerCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(1, 1)
	var rejected []string
	rl.OnReject = func(reason string) { rejected = append(rejected, reason) }

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		c.Set("user_id", c.Query("u"))
		c.Next()
	}, rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := func(u string) int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x?u="+u, nil))
		return w.Code
	}

	if got := codes("a"); got != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", got)
	}
	if got := codes("a"); got != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", got)
	}
	if got := codes("b"); got != http.StatusOK {
		t.Fatalf("other caller: expected 200, got %d", got)
	}
	if len(rejected) != 1 || rejected[0] != RejectRateLimit {
		t.Fatalf("expected one rate_limit rejection, got %v", rejected)
	}
}

func TestRateLimiter_SweepDropsIdle(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	start := time.Now()
	rl.allow("a", start)
	rl.Sweep(start.Add(time.Minute))
	if len(rl.limiters) != 1 {
		t.Fatalf("recent limiter should survive")
	}
	rl.Sweep(start.Add(time.Hour))
	if len(rl.limiters) != 0 {
		t.Fatalf("idle limiter should be dropped")
	}
}

type fakeSlots struct {
	mu       sync.Mutex
	grant    bool
	err      error
	released int
}

func (f *fakeSlots) Acquire(context.Context, string) (bool, error) { return f.grant, f.err }

func (f *fakeSlots) Release(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
	return nil
}

func serveInFlight(slots Slots, onReject func(string)) int {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/x", func(c *gin.Context) {
		c.Set("user_id", "u1")
		c.Next()
	}, InFlight(slots, onReject), func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))
	return w.Code
}

func TestInFlight(t *testing.T) {
	granted := &fakeSlots{grant: true}
	if code := serveInFlight(granted, nil); code != http.StatusOK || granted.released != 1 {
		t.Fatalf("granted: expected 200 and one release, got %d / %d", code, granted.released)
	}

	var reason string
	full := &fakeSlots{grant: false}
	if code := serveInFlight(full, func(r string) { reason = r }); code != http.StatusTooManyRequests {
		t.Fatalf("full: expected 429, got %d", code)
	}
	if reason != RejectInFlight || full.released != 0 {
		t.Fatalf("full: expected in_flight rejection without release, got %q / %d", reason, full.released)
	}

	down := &fakeSlots{err: errors.New("redis down")}
	if code := serveInFlight(down, nil); code != http.StatusOK {
		t.Fatalf("unavailable: expected request to proceed, got %d", code)
	}
}
