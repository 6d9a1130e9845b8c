package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("expected default addr :8080, got %s", cfg.HTTPAddr)
	}
	if cfg.Env != "development" || !cfg.IsDev() {
		t.Errorf("expected development env, got %s", cfg.Env)
	}
	if cfg.AuthEnabled {
		t.Error("auth should default to disabled in development")
	}
	if len(cfg.DemoPharmacies) != 1 || cfg.DemoPharmacies[0] != "Central" {
		t.Errorf("unexpected demo pharmacies: %v", cfg.DemoPharmacies)
	}
	if cfg.RateLimitRPS != 50 || cfg.RateLimitBurst != 100 {
		t.Errorf("unexpected rate limits: %d/%d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("DEMO_PHARMACIES", "Central, North ,,South")
	t.Setenv("RATE_LIMIT_RPS", "5")

	cfg, err := load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:9000" {
		t.Errorf("HTTP_ADDR not picked up: %s", cfg.HTTPAddr)
	}
	if got := cfg.DemoPharmacies; len(got) != 3 || got[1] != "North" {
		t.Errorf("unexpected demo pharmacies: %v", got)
	}
	if cfg.RateLimitRPS != 5 {
		t.Errorf("RATE_LIMIT_RPS not picked up: %d", cfg.RateLimitRPS)
	}
	if !cfg.AuthEnabled {
		t.Error("auth should default to enabled outside development")
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected missing AUTH_SECRET to fail validation")
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("LOG_LEVEL=debug\nDEMO_DATA=true\nAUTH_ENABLED=true\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LOG_LEVEL from file not applied: %s", cfg.LogLevel)
	}
	if !cfg.DemoData {
		t.Error("DEMO_DATA from file not applied")
	}
	if !cfg.AuthEnabled {
		t.Error("explicit AUTH_ENABLED should win over the development default")
	}
}

func TestValidate(t *testing.T) {
	base := Config{HTTPAddr: ":8080", Env: "development", RateLimitRPS: 1, RateLimitBurst: 1, MaxBodyBytes: 1}
	cases := map[string]func(c *Config){
		"bad http addr":  func(c *Config) { c.HTTPAddr = "8080" },
		"bad grpc addr":  func(c *Config) { c.GRPCAddr = "nope" },
		"zero rate":      func(c *Config) { c.RateLimitRPS = 0 },
		"zero body":      func(c *Config) { c.MaxBodyBytes = 0 },
		"demo no places": func(c *Config) { c.DemoData = true },
		"short secret":   func(c *Config) { c.AuthSecret = "test-secret" },
		"admin no key":   func(c *Config) { c.BootstrapAdmin = "admin" },
	}
	for name, mutate := range cases {
		c := base
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
	if err := base.Validate(); err != nil {
		t.Errorf("base config should validate: %v", err)
	}
	strong := base
	strong.AuthSecret = strings.Repeat("x", 32)
	strong.BootstrapAdmin = "admin"
	strong.BootstrapKey = "operator-key"
	if err := strong.Validate(); err != nil {
		t.Errorf("32-byte secret should validate: %v", err)
	}
}

func TestLoadRejectsUnreadableEnvFile(t *testing.T) {
	// A directory where the .env file should be cannot be read.
	if _, err := load(t.TempDir()); err == nil {
		t.Fatal("expected an unreadable env file to fail loading")
	}
}

func TestLoadBootstrapSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("AUTH_BOOTSTRAP_KEY=operator-key\nBOOTSTRAP_ADMIN=admin\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BootstrapKey != "operator-key" || cfg.BootstrapAdmin != "admin" {
		t.Errorf("bootstrap settings not applied: %q %q", cfg.BootstrapKey, cfg.BootstrapAdmin)
	}
}
