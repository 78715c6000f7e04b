package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration required by the ledger API process.
// Values come from the environment (optionally seeded from a .env file by main).
type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Fees   FeesConfig
	Ledger LedgerConfig
	HTTP   HTTPConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	// AutoMigrate applies the idempotent schema bootstrap on startup.
	AutoMigrate bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	// AccessTokenTTL bounds tokens minted by this process (tests and tooling).
	AccessTokenTTL time.Duration
}

// FeesConfig configures the platform fee lookup.
type FeesConfig struct {
	ServiceURL     string
	DefaultPercent decimal.Decimal
	Timeout        time.Duration
	CacheTTL       time.Duration
}

// LedgerConfig configures money movement.
type LedgerConfig struct {
	ClearingPeriod time.Duration
	MaxTxAttempts  int
}

// HTTPConfig configures request admission at the edge.
type HTTPConfig struct {
	RateLimitPerSecond int
	RateLimitBurst     int
	MaxInFlightPerUser int
	InFlightTTL        time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port, parseErrs = requiredInt(parseErrs, "APP_PORT")

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port, parseErrs = requiredInt(parseErrs, "DB_PORT")
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	c.DB.AutoMigrate, parseErrs = optionalBool(parseErrs, "DB_AUTO_MIGRATE")

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port, parseErrs = requiredInt(parseErrs, "REDIS_PORT")
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL, parseErrs = optionalDuration(parseErrs, "JWT_ACCESS_TTL")

	c.Fees.ServiceURL = strings.TrimRight(strings.TrimSpace(os.Getenv("FEE_SERVICE_URL")), "/")
	c.Fees.DefaultPercent, parseErrs = optionalDecimal(parseErrs, "FEE_DEFAULT_PERCENT")
	c.Fees.Timeout, parseErrs = optionalDuration(parseErrs, "FEE_TIMEOUT")
	c.Fees.CacheTTL, parseErrs = optionalDuration(parseErrs, "FEE_CACHE_TTL")

	c.Ledger.ClearingPeriod, parseErrs = optionalDuration(parseErrs, "LEDGER_CLEARING_PERIOD")
	c.Ledger.MaxTxAttempts, parseErrs = optionalInt(parseErrs, "LEDGER_MAX_TX_ATTEMPTS")

	c.HTTP.RateLimitPerSecond, parseErrs = optionalInt(parseErrs, "HTTP_RATE_LIMIT_PER_SECOND")
	c.HTTP.RateLimitBurst, parseErrs = optionalInt(parseErrs, "HTTP_RATE_LIMIT_BURST")
	c.HTTP.MaxInFlightPerUser, parseErrs = optionalInt(parseErrs, "HTTP_MAX_INFLIGHT_PER_USER")
	c.HTTP.InFlightTTL, parseErrs = optionalDuration(parseErrs, "HTTP_INFLIGHT_TTL")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}

	if c.Fees.ServiceURL == "" {
		errs = append(errs, errors.New("FEE_SERVICE_URL is required"))
	}
	if c.Fees.DefaultPercent.IsZero() {
		c.Fees.DefaultPercent = decimal.NewFromInt(10)
	}
	if c.Fees.DefaultPercent.IsNegative() || c.Fees.DefaultPercent.GreaterThan(decimal.NewFromInt(100)) {
		errs = append(errs, fmt.Errorf("FEE_DEFAULT_PERCENT must be within 0..100, got %s", c.Fees.DefaultPercent))
	}
	if c.Fees.Timeout <= 0 {
		c.Fees.Timeout = 2 * time.Second
	}
	if c.Fees.CacheTTL < 0 {
		errs = append(errs, errors.New("FEE_CACHE_TTL must not be negative"))
	}

	if c.Ledger.ClearingPeriod <= 0 {
		c.Ledger.ClearingPeriod = 5 * 24 * time.Hour
	}
	if c.Ledger.MaxTxAttempts <= 0 {
		c.Ledger.MaxTxAttempts = 3
	}

	if c.HTTP.RateLimitPerSecond <= 0 {
		c.HTTP.RateLimitPerSecond = 20
	}
	if c.HTTP.RateLimitBurst <= 0 {
		c.HTTP.RateLimitBurst = 2 * c.HTTP.RateLimitPerSecond
	}
	if c.HTTP.MaxInFlightPerUser <= 0 {
		c.HTTP.MaxInFlightPerUser = 4
	}
	if c.HTTP.InFlightTTL <= 0 {
		c.HTTP.InFlightTTL = 30 * time.Second
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func requiredInt(errs []error, key string) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, append(errs, fmt.Errorf("%s is required", key))
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func optionalInt(errs []error, key string) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func optionalBool(errs []error, key string) (bool, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, errs
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, append(errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
	}
	return b, errs
}

func optionalDuration(errs []error, key string) (time.Duration, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be a duration, got %q", key, v))
	}
	return d, errs
}

func optionalDecimal(errs []error, key string) (decimal.Decimal, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return decimal.Zero, errs
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, append(errs, fmt.Errorf("%s must be a decimal, got %q", key, v))
	}
	return d, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
