package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g.
// SANDBOX_STORAGE_DRIVER for storage.driver.
const EnvPrefix = "SANDBOX"

// FileName is the default config file name, searched in "." and
// $HOME/.sandbox.
const FileName = "sandbox.yaml"

// Configure registers defaults, the environment mapping and the search path
// on v. path, when set, names the config file explicitly.
func Configure(v *viper.Viper, path string) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("sandbox")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.sandbox")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())
}

// setDefaults registers every key so AutomaticEnv applies to Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.public_url", d.Server.PublicURL)
	v.SetDefault("server.max_body_size", d.Server.MaxBodySize)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.cors.origins", d.Server.CORS.Origins)
	v.SetDefault("server.rate_limit.session", d.Server.RateLimit.Session)
	v.SetDefault("server.rate_limit.key_create", d.Server.RateLimit.KeyCreate)
	v.SetDefault("server.metrics", d.Server.Metrics)

	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.dsn", d.Storage.DSN)
	v.SetDefault("storage.data_dir", d.Storage.DataDir)
	v.SetDefault("storage.key_prefix", d.Storage.KeyPrefix)

	v.SetDefault("security.encryption_secret", d.Security.EncryptionSecret)
	v.SetDefault("security.jwt_secret", d.Security.JWTSecret)

	v.SetDefault("auth.token_ttl", d.Auth.TokenTTL)
	v.SetDefault("auth.login_latency", d.Auth.LoginLatency)
	v.SetDefault("auth.refresh_latency", d.Auth.RefreshLatency)

	v.SetDefault("usage.source", d.Usage.Source)
	v.SetDefault("usage.cache_ttl", d.Usage.CacheTTL)

	v.SetDefault("docs.base_url", d.Docs.BaseURL)
	v.SetDefault("features.theme_toggle", d.Features.ThemeToggle)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("mcp.transport", d.MCP.Transport)
	v.SetDefault("mcp.addr", d.MCP.Addr)
	v.SetDefault("mcp.mount_http", d.MCP.MountHTTP)
}

// Load reads the config file (optional unless named explicitly) and the
// environment into a Config. It does not validate.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// LoadFile parses a YAML file directly, expanding ${VAR} references first.
// Keys missing from the file keep their defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables: ${VAR_NAME}
	content := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// WriteDefault writes the default configuration to path. An existing file
// is only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	data, err := Marshal(Default())
	if err != nil {
		return err
	}
	header := "# Sandbox developer console configuration.\n" +
		"# Secrets belong in the environment: SANDBOX_SECURITY_ENCRYPTION_SECRET, SANDBOX_SECURITY_JWT_SECRET.\n\n"
	return os.WriteFile(path, append([]byte(header), data...), 0644)
}
