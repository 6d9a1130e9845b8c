package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strings"

	"github.com/spf13/viper"

	"uspguard.org/internal/auth"
)

type Config struct {
	HTTPAddr       string   `mapstructure:"HTTP_ADDR"`
	GRPCAddr       string   `mapstructure:"GRPC_ADDR"`
	Env            string   `mapstructure:"ENV"`
	LogLevel       string   `mapstructure:"LOG_LEVEL"`
	CatalogFile    string   `mapstructure:"CATALOG_FILE"`
	CatalogDSN     string   `mapstructure:"CATALOG_DSN"`
	DemoData       bool     `mapstructure:"DEMO_DATA"`
	DemoPharmacies []string `mapstructure:"DEMO_PHARMACIES"`
	DemoSeed       int64    `mapstructure:"DEMO_SEED"`
	RateLimitRPS   int      `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
	MaxBodyBytes   int64    `mapstructure:"MAX_BODY_BYTES"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	AuthEnabled    bool     `mapstructure:"AUTH_ENABLED"`
	AuthSecret     string   `mapstructure:"AUTH_SECRET"`
	BootstrapKey   string   `mapstructure:"AUTH_BOOTSTRAP_KEY"`
	BootstrapAdmin string   `mapstructure:"BOOTSTRAP_ADMIN"`
}

var keys = []string{
	"HTTP_ADDR", "GRPC_ADDR", "ENV", "LOG_LEVEL",
	"CATALOG_FILE", "CATALOG_DSN",
	"DEMO_DATA", "DEMO_PHARMACIES", "DEMO_SEED",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "MAX_BODY_BYTES", "CORS_ORIGINS",
	"AUTH_ENABLED", "AUTH_SECRET", "AUTH_BOOTSTRAP_KEY", "BOOTSTRAP_ADMIN",
}

// Load reads configuration from the environment and an optional .env file.
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", "")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DEMO_DATA", false)
	v.SetDefault("DEMO_PHARMACIES", "Central")
	v.SetDefault("DEMO_SEED", 1)
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("MAX_BODY_BYTES", 1<<20)
	v.SetDefault("CORS_ORIGINS", "")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env file is fine; an unreadable or malformed one is not.
	if err := v.ReadInConfig(); err != nil && !envFileMissing(err) {
		return nil, fmt.Errorf("read %s: %w", envFile, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.DemoPharmacies = splitList(v.GetString("DEMO_PHARMACIES"))
	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	if !v.IsSet("AUTH_ENABLED") {
		cfg.AuthEnabled = !cfg.IsDev()
	}
	return cfg, nil
}

func envFileMissing(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound)
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.HTTPAddr); err != nil {
		return fmt.Errorf("HTTP_ADDR %q is not host:port: %w", c.HTTPAddr, err)
	}
	if c.GRPCAddr != "" {
		if _, _, err := net.SplitHostPort(c.GRPCAddr); err != nil {
			return fmt.Errorf("GRPC_ADDR %q is not host:port: %w", c.GRPCAddr, err)
		}
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive, got %d/%d", c.RateLimitRPS, c.RateLimitBurst)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive, got %d", c.MaxBodyBytes)
	}
	if c.DemoData && len(c.DemoPharmacies) == 0 {
		return fmt.Errorf("DEMO_PHARMACIES is required when DEMO_DATA is true")
	}
	if c.AuthEnabled && !c.IsDev() && c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required when authentication is enabled outside development (ENV=%q)", c.Env)
	}
	if c.AuthSecret != "" && len(c.AuthSecret) < auth.MinSecretBytes {
		return fmt.Errorf("AUTH_SECRET must be at least %d bytes, got %d", auth.MinSecretBytes, len(c.AuthSecret))
	}
	if c.BootstrapAdmin != "" && c.BootstrapKey == "" {
		return errors.New("BOOTSTRAP_ADMIN requires AUTH_BOOTSTRAP_KEY to obtain its first token")
	}
	return nil
}
