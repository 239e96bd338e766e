package authflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every environment variable read by [LoadConfigFromEnv].
const EnvPrefix = "AUTHFLOW_"

// Config holds every tunable of a [Coordinator]. Obtain defaults with
// [DefaultConfig] and override fields, or overlay the environment with
// [LoadConfigFromEnv].
type Config struct {
	RateLimit  RateLimitConfig  `envPrefix:"RATE_LIMIT_"`
	Provider   ProviderConfig   `envPrefix:"PROVIDER_"`
	Validation ValidationConfig `envPrefix:"VALIDATION_"`
	Session    SessionConfig    `envPrefix:"SESSION_"`
	Audit      AuditConfig      `envPrefix:"AUDIT_"`
	Metrics    MetricsConfig    `envPrefix:"METRICS_"`
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitPolicy bounds one action to MaxAttempts inside a sliding Window.
// MaxAttempts == 0 denies every attempt; Window == 0 never limits.
type RateLimitPolicy struct {
	MaxAttempts int           `env:"MAX_ATTEMPTS"`
	Window      time.Duration `env:"WINDOW"`
}

// RateLimitConfig holds the per-action policies and the Redis key namespace
// used when the limiter is Redis-backed.
type RateLimitConfig struct {
	Login       RateLimitPolicy `envPrefix:"LOGIN_"`
	SignUp      RateLimitPolicy `envPrefix:"SIGNUP_"`
	PhoneAuth   RateLimitPolicy `envPrefix:"PHONE_AUTH_"`
	OTPVerify   RateLimitPolicy `envPrefix:"OTP_VERIFY_"`
	Federated   RateLimitPolicy `envPrefix:"FEDERATED_"`
	RedisPrefix string          `env:"REDIS_PREFIX"`
}

func (c RateLimitConfig) longestWindow() time.Duration {
	longest := c.Login.Window
	for _, p := range []RateLimitPolicy{c.SignUp, c.PhoneAuth, c.OTPVerify, c.Federated} {
		if p.Window > longest {
			longest = p.Window
		}
	}
	return longest
}

/*
====================================
PROVIDER CONFIG
====================================
*/

// ProviderConfig bounds calls into the IdentityProvider.
type ProviderConfig struct {
	Timeout        time.Duration `env:"TIMEOUT"`
	SignOutTimeout time.Duration `env:"SIGN_OUT_TIMEOUT"`
}

/*
====================================
VALIDATION CONFIG
====================================
*/

// ValidationConfig holds market-specific input rules.
type ValidationConfig struct {
	// IndiaOnlyPhone restricts phone numbers to 10 digits starting with 6-9.
	IndiaOnlyPhone bool `env:"INDIA_ONLY_PHONE"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session token generation and the default backends.
type SessionConfig struct {
	// TokenBytes is the entropy of generated session tokens.
	TokenBytes int `env:"TOKEN_BYTES"`
	// RedisKey is the hash used when the session backend is Redis.
	RedisKey string `env:"REDIS_KEY"`
	// SQLitePath, when set and no backend is given, selects the SQLite backend.
	SQLitePath string `env:"SQLITE_PATH"`
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"ENABLED"`
	BufferSize int  `env:"BUFFER_SIZE"`
	DropIfFull bool `env:"DROP_IF_FULL"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED"`
	EnableLatencyHistograms bool `env:"ENABLE_LATENCY_HISTOGRAMS"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		RateLimit: RateLimitConfig{
			Login:       RateLimitPolicy{MaxAttempts: 5, Window: 15 * time.Minute},
			SignUp:      RateLimitPolicy{MaxAttempts: 5, Window: time.Hour},
			PhoneAuth:   RateLimitPolicy{MaxAttempts: 3, Window: 15 * time.Minute},
			OTPVerify:   RateLimitPolicy{MaxAttempts: 5, Window: 15 * time.Minute},
			Federated:   RateLimitPolicy{MaxAttempts: 10, Window: 15 * time.Minute},
			RedisPrefix: "arl",
		},
		Provider: ProviderConfig{
			Timeout:        30 * time.Second,
			SignOutTimeout: 5 * time.Second,
		},
		Session: SessionConfig{
			TokenBytes: 32,
			RedisKey:   "authflow:session",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	return cfg
}

// LoadConfigFromEnv overlays AUTHFLOW_* environment variables on the defaults
// and validates the result. For example AUTHFLOW_RATE_LIMIT_LOGIN_MAX_ATTEMPTS=3
// or AUTHFLOW_PROVIDER_TIMEOUT=10s.
func LoadConfigFromEnv() (Config, error) {
	cfg := defaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("authflow: parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	policies := []struct {
		name string
		p    RateLimitPolicy
	}{
		{"Login", c.RateLimit.Login},
		{"SignUp", c.RateLimit.SignUp},
		{"PhoneAuth", c.RateLimit.PhoneAuth},
		{"OTPVerify", c.RateLimit.OTPVerify},
		{"Federated", c.RateLimit.Federated},
	}
	for _, p := range policies {
		if p.p.MaxAttempts < 0 {
			return fmt.Errorf("RateLimit %s MaxAttempts must be >= 0", p.name)
		}
		if p.p.Window < 0 {
			return fmt.Errorf("RateLimit %s Window must be >= 0", p.name)
		}
	}

	if c.Provider.Timeout <= 0 {
		return errors.New("Provider Timeout must be > 0")
	}
	if c.Provider.SignOutTimeout <= 0 {
		return errors.New("Provider SignOutTimeout must be > 0")
	}

	if c.Session.TokenBytes < 16 || c.Session.TokenBytes > 256 {
		return errors.New("Session TokenBytes must be between 16 and 256")
	}
	if c.Session.RedisKey == "" {
		return errors.New("Session RedisKey must not be empty")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
