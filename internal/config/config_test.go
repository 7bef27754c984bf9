package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Security.EncryptionSecret = "enc"
	cfg.Security.JWTSecret = "jwt"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if cfg.TokenTTL() != time.Hour {
		t.Errorf("TokenTTL = %v, want 1h", cfg.TokenTTL())
	}
	if cfg.ShutdownTimeout() != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v", cfg.ShutdownTimeout())
	}
	n, err := cfg.MaxBodyBytes()
	if err != nil || n != 1000*1000 {
		t.Errorf("MaxBodyBytes = %d, %v", n, err)
	}
	if cfg.FeatureFlags().EnableThemeToggle {
		t.Error("theme toggle should default to off")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing encryption secret", func(c *Config) { c.Security.EncryptionSecret = "" }, "security.encryption_secret"},
		{"missing jwt secret", func(c *Config) { c.Security.JWTSecret = "" }, "security.jwt_secret"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "oracle" }, "storage.driver"},
		{"bad duration", func(c *Config) { c.Auth.TokenTTL = "forever" }, "auth.token_ttl"},
		{"bad size", func(c *Config) { c.Server.MaxBodySize = "lots" }, "server.max_body_size"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"bad transport", func(c *Config) { c.MCP.Transport = "grpc" }, "mcp.transport"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestFeatureFlags(t *testing.T) {
	for _, v := range []string{"true", "1", "yes", "on", "TRUE"} {
		cfg := Default()
		cfg.Features.ThemeToggle = v
		if !cfg.FeatureFlags().EnableThemeToggle {
			t.Errorf("ThemeToggle %q should enable the toggle", v)
		}
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	content := `
server:
  port: 9090
storage:
  driver: memory
auth:
  token_ttl: 15m
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SANDBOX_SECURITY_ENCRYPTION_SECRET", "from-env")
	t.Setenv("SANDBOX_LOG_LEVEL", "debug")

	v := viper.New()
	Configure(v, path)
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("Driver = %q, want memory", cfg.Storage.Driver)
	}
	if cfg.TokenTTL() != 15*time.Minute {
		t.Errorf("TokenTTL = %v", cfg.TokenTTL())
	}
	if cfg.Security.EncryptionSecret != "from-env" {
		t.Errorf("EncryptionSecret = %q", cfg.Security.EncryptionSecret)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	// Untouched keys keep their defaults.
	if cfg.Auth.LoginLatency != "500ms" {
		t.Errorf("LoginLatency = %q", cfg.Auth.LoginLatency)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	v := viper.New()
	Configure(v, "")
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	v := viper.New()
	Configure(v, filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(v); err == nil {
		t.Fatal("expected an error for a missing explicit config file")
	}
}

func TestLoadFileExpandsEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	content := "security:\n  jwt_secret: ${TEST_SANDBOX_JWT}\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TEST_SANDBOX_JWT", "expanded")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Security.JWTSecret != "expanded" {
		t.Errorf("JWTSecret = %q", cfg.Security.JWTSecret)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, defaults should survive", cfg.Server.Port)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := WriteDefault(path, false); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}
	if err := WriteDefault(path, false); err == nil {
		t.Error("expected an error when the file exists")
	}
	if err := WriteDefault(path, true); err != nil {
		t.Errorf("WriteDefault(force): %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Storage.KeyPrefix != "sandbox:" || cfg.Usage.CacheTTL != "5m" {
		t.Errorf("round trip lost defaults: %+v", cfg)
	}
}

func TestRedacted(t *testing.T) {
	cfg := validConfig()
	red := cfg.Redacted()
	if red.Security.EncryptionSecret == "enc" || red.Security.JWTSecret == "jwt" {
		t.Error("secrets were not masked")
	}
	if cfg.Security.EncryptionSecret != "enc" {
		t.Error("Redacted modified the original")
	}
	out, err := Marshal(red)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(out), "enc\n") {
		t.Errorf("marshalled output leaks a secret:\n%s", out)
	}
}
