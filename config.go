package authgate

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment is the deployment environment tag. It toggles log verbosity
// and whether dev-only diagnostics are reachable.
type Environment string

const (
	// EnvDevelopment is the default environment.
	EnvDevelopment Environment = "development"
	// EnvStaging mirrors production behavior with relaxed secrets.
	EnvStaging Environment = "staging"
	// EnvProduction disables dev diagnostics and verbose logging.
	EnvProduction Environment = "production"
)

// Valid reports whether e is a recognized environment tag.
func (e Environment) Valid() bool {
	switch e {
	case EnvDevelopment, EnvStaging, EnvProduction:
		return true
	}
	return false
}

// Config defines the gate's immutable configuration. Instances are
// configured during initialization and treated as immutable after
// [Builder.Build].
type Config struct {
	// APIOrigin is the backend origin, e.g. "https://api.school.example".
	// It must be an absolute http(s) URL; Validate fails fast otherwise.
	APIOrigin string

	// Environment is the deployment tag. Defaults to development.
	Environment Environment

	// RequestTimeout bounds every HTTP call. Zero means the default of 15s.
	// A timeout surfaces as a network error, not a distinct kind.
	RequestTimeout time.Duration

	// RetryBudget is the number of 401-triggered replays permitted per
	// logical request. Zero means the default of one. The transport
	// decrements it structurally; there is no hidden retried flag.
	RetryBudget int

	// Endpoint paths on APIOrigin.
	LoginPath          string
	ProfilePath        string
	LogoutPath         string
	RefreshPath        string
	ChangePasswordPath string

	// AccessCookie names the access-token cookie inspected by the edge
	// gate. LegacyCookies lists alternate names cleared defensively on
	// logout so stale partial state from older sessions cannot linger.
	AccessCookie  string
	LegacyCookies []string

	// SnapshotKey scopes the persisted session snapshot and the broadcast
	// channel. Processes sharing a key share one logical session.
	SnapshotKey string

	// VerifyKey optionally holds a raw 32-byte Ed25519 public key. When
	// present the edge gate verifies token signatures; when absent it only
	// decodes claims (the cookie is server-set and httpOnly, so decode-only
	// is a coarse pre-check, never the authoritative decision).
	VerifyKey []byte
}

const (
	defaultRequestTimeout = 15 * time.Second
	defaultRetryBudget    = 1
	defaultSnapshotKey    = "authgate:session"
)

func defaultConfig() Config {
	return Config{
		Environment:        EnvDevelopment,
		RequestTimeout:     defaultRequestTimeout,
		RetryBudget:        defaultRetryBudget,
		LoginPath:          "/auth/login",
		ProfilePath:        "/auth/profile",
		LogoutPath:         "/auth/logout",
		RefreshPath:        "/auth/refresh",
		ChangePasswordPath: "/auth/change-password",
		AccessCookie:       "access_token",
		LegacyCookies:      []string{"accessToken", "refreshToken"},
		SnapshotKey:        defaultSnapshotKey,
	}
}

// FromEnv loads configuration from the process environment, reading a .env
// file first when one exists. Recognized variables: API_ORIGIN (required),
// ENVIRONMENT, REQUEST_TIMEOUT (Go duration), RETRY_BUDGET, SNAPSHOT_KEY.
func FromEnv() (Config, error) {
	// A missing .env is not an error; real environments set variables
	// directly.
	_ = godotenv.Load()

	cfg := defaultConfig()
	cfg.APIOrigin = os.Getenv("API_ORIGIN")
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		cfg.Environment = Environment(v)
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid REQUEST_TIMEOUT %q: %w", v, err)
		}
		cfg.RequestTimeout = d
	}
	if v := os.Getenv("RETRY_BUDGET"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RETRY_BUDGET %q: %w", v, err)
		}
		cfg.RetryBudget = n
	}
	if v := os.Getenv("SNAPSHOT_KEY"); v != "" {
		cfg.SnapshotKey = v
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate fails fast on malformed configuration. It is called by
// [Builder.Build]; callers constructing a Config by hand may call it early
// to surface mistakes at startup.
func (c *Config) Validate() error {
	if c.APIOrigin == "" {
		return errors.New("API origin is required")
	}
	u, err := url.Parse(c.APIOrigin)
	if err != nil {
		return fmt.Errorf("invalid API origin %q: %w", c.APIOrigin, err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("API origin %q must be an absolute http(s) URL", c.APIOrigin)
	}
	if !c.Environment.Valid() {
		return fmt.Errorf("unknown environment %q", c.Environment)
	}
	if c.RequestTimeout < 0 {
		return errors.New("request timeout must not be negative")
	}
	if c.RetryBudget < 0 {
		return errors.New("retry budget must not be negative")
	}
	if len(c.VerifyKey) != 0 && len(c.VerifyKey) != 32 {
		return errors.New("verify key must be a raw 32-byte ed25519 public key")
	}
	return nil
}

// IsProduction reports whether the production environment tag is set.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.RequestTimeout == 0 {
		out.RequestTimeout = defaultRequestTimeout
	}
	if out.RetryBudget == 0 {
		out.RetryBudget = defaultRetryBudget
	}
	d := defaultConfig()
	if out.LoginPath == "" {
		out.LoginPath = d.LoginPath
	}
	if out.ProfilePath == "" {
		out.ProfilePath = d.ProfilePath
	}
	if out.LogoutPath == "" {
		out.LogoutPath = d.LogoutPath
	}
	if out.RefreshPath == "" {
		out.RefreshPath = d.RefreshPath
	}
	if out.ChangePasswordPath == "" {
		out.ChangePasswordPath = d.ChangePasswordPath
	}
	if out.AccessCookie == "" {
		out.AccessCookie = d.AccessCookie
	}
	if out.LegacyCookies == nil {
		out.LegacyCookies = append([]string(nil), d.LegacyCookies...)
	}
	if out.SnapshotKey == "" {
		out.SnapshotKey = d.SnapshotKey
	}
	if out.Environment == "" {
		out.Environment = EnvDevelopment
	}
	return out
}
