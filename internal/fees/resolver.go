package fees

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"wallet-ledger/internal/config"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const (
	configKey = "PLATFORM_FEE_PERCENT"
	cacheKey  = "ledger:fee:platform_percent"

	// maxBody bounds the config response we are willing to read.
	maxBody = 64 << 10
)

// Fallback reasons reported to OnFallback.
const (
	ReasonTransport  = "transport"
	ReasonStatus     = "status"
	ReasonMalformed  = "malformed"
	ReasonOutOfRange = "out_of_range"
)

var (
	errMalformed  = errors.New("fee config value malformed")
	errOutOfRange = errors.New("fee config value out of range")
)

// Cache is the subset of a redis client used for caching the resolved percent.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Resolver looks up the platform fee percentage from the configuration service.
// Every failure resolves to the configured fallback; callers never see an error.
type Resolver struct {
	client   *http.Client
	url      string
	fallback decimal.Decimal
	timeout  time.Duration

	cache    Cache
	cacheTTL time.Duration

	log *slog.Logger
	// OnFallback is called with a Reason* value whenever the fallback is used.
	OnFallback func(reason string)
}

type Option func(*Resolver)

func WithHTTPClient(c *http.Client) Option { return func(r *Resolver) { r.client = c } }

func WithCache(c Cache, ttl time.Duration) Option {
	return func(r *Resolver) {
		r.cache = c
		r.cacheTTL = ttl
	}
}

func WithLogger(l *slog.Logger) Option { return func(r *Resolver) { r.log = l } }

func NewResolver(cfg config.FeesConfig, opts ...Option) *Resolver {
	r := &Resolver{
		client:   &http.Client{},
		url:      cfg.ServiceURL + "/configs/" + configKey,
		fallback: cfg.DefaultPercent,
		timeout:  cfg.Timeout,
		log:      slog.Default(),
	}
	if r.timeout <= 0 {
		r.timeout = 2 * time.Second
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Resolver) ResolveFeePercent(ctx context.Context) decimal.Decimal {
	if v, ok := r.cached(ctx); ok {
		return v
	}

	v, err := r.fetch(ctx)
	if err != nil {
		reason := reasonFor(err)
		r.log.Warn("platform fee lookup failed, using fallback",
			"reason", reason,
			"fallback_percent", r.fallback.String(),
			"err", err,
		)
		if r.OnFallback != nil {
			r.OnFallback(reason)
		}
		return r.fallback
	}

	r.store(ctx, v)
	return v
}

type statusError int

func (e statusError) Error() string { return fmt.Sprintf("fee config returned status %d", int(e)) }

func reasonFor(err error) string {
	var se statusError
	switch {
	case errors.As(err, &se):
		return ReasonStatus
	case errors.Is(err, errMalformed):
		return ReasonMalformed
	case errors.Is(err, errOutOfRange):
		return ReasonOutOfRange
	default:
		return ReasonTransport
	}
}

func (r *Resolver) fetch(ctx context.Context) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, statusError(resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return decimal.Zero, err
	}
	return ParsePercent(body)
}

// ParsePercent reads {"value": ...} where value is a JSON string or number.
func ParsePercent(body []byte) (decimal.Decimal, error) {
	if !gjson.ValidBytes(body) {
		return decimal.Zero, errMalformed
	}
	v := gjson.GetBytes(body, "value")

	var raw string
	switch v.Type {
	case gjson.String:
		raw = v.Str
	case gjson.Number:
		raw = v.Raw
	default:
		return decimal.Zero, errMalformed
	}

	pct, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", errMalformed, raw)
	}
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("%w: %s", errOutOfRange, pct)
	}
	return pct, nil
}

func (r *Resolver) cached(ctx context.Context) (decimal.Decimal, bool) {
	if r.cache == nil || r.cacheTTL <= 0 {
		return decimal.Zero, false
	}
	s, err := r.cache.Get(ctx, cacheKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Debug("fee cache read failed", "err", err)
		}
		return decimal.Zero, false
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}

func (r *Resolver) store(ctx context.Context, v decimal.Decimal) {
	if r.cache == nil || r.cacheTTL <= 0 {
		return
	}
	if err := r.cache.Set(ctx, cacheKey, v.String(), r.cacheTTL).Err(); err != nil {
		r.log.Debug("fee cache write failed", "err", err)
	}
}
