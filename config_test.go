package authgate

import (
	"errors"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing origin", func(c *Config) { c.APIOrigin = "" }, true},
		{"relative origin", func(c *Config) { c.APIOrigin = "/api" }, true},
		{"non-http scheme", func(c *Config) { c.APIOrigin = "ftp://x.example" }, true},
		{"garbage origin", func(c *Config) { c.APIOrigin = "http://[::1" }, true},
		{"unknown environment", func(c *Config) { c.Environment = "qa" }, true},
		{"negative timeout", func(c *Config) { c.RequestTimeout = -time.Second }, true},
		{"negative budget", func(c *Config) { c.RetryBudget = -1 }, true},
		{"short verify key", func(c *Config) { c.VerifyKey = []byte("short") }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.APIOrigin = "https://api.school.example"
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("API_ORIGIN", "https://api.school.example")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("RETRY_BUDGET", "2")
	t.Setenv("SNAPSHOT_KEY", "school:session")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.APIOrigin != "https://api.school.example" {
		t.Fatalf("unexpected origin %q", cfg.APIOrigin)
	}
	if !cfg.IsProduction() {
		t.Fatal("expected production environment")
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Fatalf("unexpected timeout %v", cfg.RequestTimeout)
	}
	if cfg.RetryBudget != 2 {
		t.Fatalf("unexpected budget %d", cfg.RetryBudget)
	}
	if cfg.SnapshotKey != "school:session" {
		t.Fatalf("unexpected snapshot key %q", cfg.SnapshotKey)
	}
}

func TestFromEnvFailsFastOnMissingOrigin(t *testing.T) {
	t.Setenv("API_ORIGIN", "")
	if _, err := FromEnv(); err == nil {
		t.Fatal("missing API origin must fail at startup")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithConfig(Config{APIOrigin: "http://localhost:1"})
	gate, err := b.Build()
	if err != nil {
		t.Fatalf("first build: %v", err)
	}
	t.Cleanup(gate.Close)

	if _, err := b.Build(); !errors.Is(err, ErrBuilderUsed) {
		t.Fatalf("expected ErrBuilderUsed, got %v", err)
	}
}
