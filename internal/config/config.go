// Package config defines the sandbox configuration file and its defaults.
// Durations and sizes are kept as strings ("30s", "1MB") so the file stays
// readable; the accessor methods parse them.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/zamadev/sandbox/internal/docs"
	"github.com/zamadev/sandbox/internal/storage"
)

// Config is the top-level sandbox configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Storage  StorageConfig  `yaml:"storage" mapstructure:"storage"`
	Security SecurityConfig `yaml:"security" mapstructure:"security"`
	Auth     AuthConfig     `yaml:"auth" mapstructure:"auth"`
	Usage    UsageConfig    `yaml:"usage" mapstructure:"usage"`
	Docs     DocsConfig     `yaml:"docs" mapstructure:"docs"`
	Features FeaturesConfig `yaml:"features" mapstructure:"features"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	MCP      MCPConfig      `yaml:"mcp" mapstructure:"mcp"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string          `yaml:"host" mapstructure:"host"`
	Port            int             `yaml:"port" mapstructure:"port"`
	PublicURL       string          `yaml:"public_url" mapstructure:"public_url"`
	MaxBodySize     string          `yaml:"max_body_size" mapstructure:"max_body_size"`
	ShutdownTimeout string          `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	CORS            CORSConfig      `yaml:"cors" mapstructure:"cors"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Metrics         bool            `yaml:"metrics" mapstructure:"metrics"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins" mapstructure:"origins"`
}

// RateLimitConfig caps requests per minute. Zero disables a limit.
type RateLimitConfig struct {
	Session   int `yaml:"session" mapstructure:"session"`
	KeyCreate int `yaml:"key_create" mapstructure:"key_create"`
}

// StorageConfig selects the profile substrate.
type StorageConfig struct {
	Driver    string `yaml:"driver" mapstructure:"driver"`
	DSN       string `yaml:"dsn" mapstructure:"dsn"`
	DataDir   string `yaml:"data_dir" mapstructure:"data_dir"`
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// SecurityConfig holds the secrets. Both should come from the environment
// (SANDBOX_SECURITY_ENCRYPTION_SECRET, SANDBOX_SECURITY_JWT_SECRET).
type SecurityConfig struct {
	EncryptionSecret string `yaml:"encryption_secret" mapstructure:"encryption_secret"`
	JWTSecret        string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
}

// AuthConfig controls the mock sign-in flow.
type AuthConfig struct {
	TokenTTL       string `yaml:"token_ttl" mapstructure:"token_ttl"`
	LoginLatency   string `yaml:"login_latency" mapstructure:"login_latency"`
	RefreshLatency string `yaml:"refresh_latency" mapstructure:"refresh_latency"`
}

// UsageConfig locates the usage fixture. An empty source uses the copy
// compiled into the binary.
type UsageConfig struct {
	Source   string `yaml:"source" mapstructure:"source"`
	CacheTTL string `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// DocsConfig controls the integration guide.
type DocsConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// FeaturesConfig holds feature flags as raw strings, parsed leniently.
type FeaturesConfig struct {
	ThemeToggle string `yaml:"theme_toggle" mapstructure:"theme_toggle"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MCPConfig controls the MCP server.
type MCPConfig struct {
	Transport string `yaml:"transport" mapstructure:"transport"`
	Addr      string `yaml:"addr" mapstructure:"addr"`
	MountHTTP bool   `yaml:"mount_http" mapstructure:"mount_http"`
}

// Default returns a Config pre-filled with sensible defaults. Secrets are
// left empty.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			MaxBodySize:     "1MB",
			ShutdownTimeout: "30s",
			CORS: CORSConfig{
				Origins: []string{"*"},
			},
			RateLimit: RateLimitConfig{
				Session:   10,
				KeyCreate: 30,
			},
			Metrics: true,
		},
		Storage: StorageConfig{
			Driver:    "sqlite",
			KeyPrefix: "sandbox:",
		},
		Auth: AuthConfig{
			TokenTTL:       "1h",
			LoginLatency:   "500ms",
			RefreshLatency: "300ms",
		},
		Usage: UsageConfig{
			CacheTTL: "5m",
		},
		Docs: DocsConfig{
			BaseURL: docs.DefaultBaseURL,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		MCP: MCPConfig{
			Transport: "stdio",
			Addr:      ":3001",
		},
	}
}

// Validate checks the settings a command needs before it opens anything.
// Errors name the offending key.
func (c *Config) Validate() error {
	var errs []error
	if c.Security.EncryptionSecret == "" {
		errs = append(errs, errors.New("security.encryption_secret is required (set SANDBOX_SECURITY_ENCRYPTION_SECRET)"))
	}
	if c.Security.JWTSecret == "" {
		errs = append(errs, errors.New("security.jwt_secret is required (set SANDBOX_SECURITY_JWT_SECRET)"))
	}
	if !validDriver(c.Storage.Driver) {
		errs = append(errs, fmt.Errorf("storage.driver %q is not one of %v", c.Storage.Driver, storage.Drivers))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	for key, v := range map[string]string{
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"auth.token_ttl":          c.Auth.TokenTTL,
		"auth.login_latency":      c.Auth.LoginLatency,
		"auth.refresh_latency":    c.Auth.RefreshLatency,
		"usage.cache_ttl":         c.Usage.CacheTTL,
	} {
		if _, err := parseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	if _, err := c.MaxBodyBytes(); err != nil {
		errs = append(errs, fmt.Errorf("server.max_body_size: %w", err))
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	switch c.MCP.Transport {
	case "", "stdio", "http":
	default:
		errs = append(errs, fmt.Errorf("mcp.transport %q must be stdio or http", c.MCP.Transport))
	}
	return errors.Join(errs...)
}

func validDriver(name string) bool {
	if name == "" {
		return true
	}
	for _, d := range storage.Drivers {
		if d == name {
			return true
		}
	}
	return false
}

// parseDuration treats an empty string as zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func mustDuration(s string) time.Duration {
	d, _ := parseDuration(s)
	return d
}

// ShutdownTimeout returns server.shutdown_timeout.
func (c *Config) ShutdownTimeout() time.Duration { return mustDuration(c.Server.ShutdownTimeout) }

// TokenTTL returns auth.token_ttl.
func (c *Config) TokenTTL() time.Duration { return mustDuration(c.Auth.TokenTTL) }

// LoginLatency returns auth.login_latency.
func (c *Config) LoginLatency() time.Duration { return mustDuration(c.Auth.LoginLatency) }

// RefreshLatency returns auth.refresh_latency.
func (c *Config) RefreshLatency() time.Duration { return mustDuration(c.Auth.RefreshLatency) }

// CacheTTL returns usage.cache_ttl.
func (c *Config) CacheTTL() time.Duration { return mustDuration(c.Usage.CacheTTL) }

// MaxBodyBytes parses server.max_body_size ("1MB", "512KiB"). Empty means
// no limit.
func (c *Config) MaxBodyBytes() (int64, error) {
	if c.Server.MaxBodySize == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.Server.MaxBodySize)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

// StorageOptions converts the storage section for storage.Open.
func (c *Config) StorageOptions() storage.Config {
	return storage.Config{
		Driver:    c.Storage.Driver,
		DSN:       c.Storage.DSN,
		DataDir:   c.Storage.DataDir,
		KeyPrefix: c.Storage.KeyPrefix,
	}
}

// FeatureFlags parses the features section. The theme toggle is off unless
// enabled.
func (c *Config) FeatureFlags() docs.Features {
	return docs.Features{
		EnableThemeToggle: docs.ParseBool(c.Features.ThemeToggle, false),
	}
}

// Redacted returns a copy with the secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	out.Server.CORS.Origins = append([]string(nil), c.Server.CORS.Origins...)
	if out.Security.EncryptionSecret != "" {
		out.Security.EncryptionSecret = "********"
	}
	if out.Security.JWTSecret != "" {
		out.Security.JWTSecret = "********"
	}
	return &out
}
