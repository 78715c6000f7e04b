package fees

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"wallet-ledger/internal/config"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestResolver(t *testing.T, h http.HandlerFunc, timeout time.Duration) (*Resolver, *[]string) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	var reasons []string
	r := NewResolver(config.FeesConfig{
		ServiceURL:     srv.URL + "/api/public",
		DefaultPercent: decimal.NewFromInt(10),
		Timeout:        timeout,
	}, WithLogger(quietLogger()))
	r.OnFallback = func(reason string) { reasons = append(reasons, reason) }
	return r, &reasons
}

func TestResolveFeePercent_ReadsStringAndNumber(t *testing.T) {
	for _, body := range []string{`{"value":"7.5"}`, `{"value":7.5}`, `{"key":"PLATFORM_FEE_PERCENT","value":"7.50"}`} {
		r, reasons := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
			if req.URL.Path != "/api/public/configs/PLATFORM_FEE_PERCENT" {
				t.Errorf("unexpected path %s", req.URL.Path)
			}
			_, _ = w.Write([]byte(body))
		}, time.Second)

		got := r.ResolveFeePercent(context.Background())
		if !got.Equal(decimal.RequireFromString("7.5")) {
			t.Fatalf("body %s: expected 7.5, got %s", body, got)
		}
		if len(*reasons) != 0 {
			t.Fatalf("unexpected fallback %v", *reasons)
		}
	}
}

func TestResolveFeePercent_FallsBack(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		reason string
	}{
		{"server error", http.StatusInternalServerError, `{"value":"5"}`, ReasonStatus},
		{"not json", http.StatusOK, `<html>`, ReasonMalformed},
		{"missing value", http.StatusOK, `{}`, ReasonMalformed},
		{"not a number", http.StatusOK, `{"value":"ten"}`, ReasonMalformed},
		{"negative", http.StatusOK, `{"value":-1}`, ReasonOutOfRange},
		{"over 100", http.StatusOK, `{"value":"150"}`, ReasonOutOfRange},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, reasons := newTestResolver(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}, time.Second)

			got := r.ResolveFeePercent(context.Background())
			if !got.Equal(decimal.NewFromInt(10)) {
				t.Fatalf("expected fallback 10, got %s", got)
			}
			if len(*reasons) != 1 || (*reasons)[0] != tc.reason {
				t.Fatalf("expected reason %s, got %v", tc.reason, *reasons)
			}
		})
	}
}

func TestResolveFeePercent_TimeoutFallsBack(t *testing.T) {
	release := make(chan struct{})
	r, reasons := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
		select {
		case <-release:
		case <-req.Context().Done():
		}
	}, 50*time.Millisecond)
	defer close(release)

	start := time.Now()
	got := r.ResolveFeePercent(context.Background())
	if !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected fallback 10, got %s", got)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout not enforced")
	}
	if len(*reasons) != 1 || (*reasons)[0] != ReasonTransport {
		t.Fatalf("expected transport reason, got %v", *reasons)
	}
}

func TestResolveFeePercent_ZeroIsAccepted(t *testing.T) {
	r, _ := newTestResolver(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"value":"0"}`))
	}, time.Second)
	if got := r.ResolveFeePercent(context.Background()); !got.IsZero() {
		t.Fatalf("expected 0, got %s", got)
	}
}

type fakeCache struct {
	values map[string]string
	sets   int
	getErr error
}

func (f *fakeCache) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx, "get", key)
	if f.getErr != nil {
		cmd.SetErr(f.getErr)
		return cmd
	}
	v, ok := f.values[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (f *fakeCache) Set(ctx context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "set", key, value)
	f.values[key] = value.(string)
	f.sets++
	cmd.SetVal("OK")
	return cmd
}

func TestResolveFeePercent_UsesCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"value":"12"}`))
	}))
	defer srv.Close()

	cache := &fakeCache{values: map[string]string{}}
	r := NewResolver(config.FeesConfig{ServiceURL: srv.URL, DefaultPercent: decimal.NewFromInt(10)},
		WithCache(cache, time.Minute), WithLogger(quietLogger()))

	for i := 0; i < 3; i++ {
		if got := r.ResolveFeePercent(context.Background()); !got.Equal(decimal.NewFromInt(12)) {
			t.Fatalf("expected 12, got %s", got)
		}
	}
	if hits.Load() != 1 || cache.sets != 1 {
		t.Fatalf("expected one upstream call and one cache write, got %d/%d", hits.Load(), cache.sets)
	}
}

func TestResolveFeePercent_CacheErrorsAreIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"value":"3"}`))
	}))
	defer srv.Close()

	cache := &fakeCache{values: map[string]string{}, getErr: errors.New("redis down")}
	r := NewResolver(config.FeesConfig{ServiceURL: srv.URL, DefaultPercent: decimal.NewFromInt(10)},
		WithCache(cache, time.Minute), WithLogger(quietLogger()))

	if got := r.ResolveFeePercent(context.Background()); !got.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("expected 3, got %s", got)
	}
}
